package redisstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultAddressKey is the hash the identity service mirrors user emails into.
const DefaultAddressKey = "users:email"

var ErrAddressNotFound = errors.New("no email address for user")

// AddressBook resolves user emails from a Redis hash of user id to address.
// It implements notifications.AddressBook.
type AddressBook struct {
	client redis.UniversalClient
	key    string
}

func NewAddressBook(client redis.UniversalClient, key string) *AddressBook {
	if client == nil {
		panic("redisstore: nil redis client")
	}
	if key == "" {
		key = DefaultAddressKey
	}
	return &AddressBook{client: client, key: key}
}

func (b *AddressBook) EmailFor(ctx context.Context, userID string) (string, error) {
	addr, err := b.client.HGet(ctx, b.key, userID).Result()
	switch {
	case errors.Is(err, redis.Nil), err == nil && addr == "":
		return "", fmt.Errorf("%w: %s", ErrAddressNotFound, userID)
	case err != nil:
		return "", fmt.Errorf("failed to look up email for %s: %w", userID, err)
	}
	return addr, nil
}

// SetEmail records a user's address.
func (b *AddressBook) SetEmail(ctx context.Context, userID, email string) error {
	if err := b.client.HSet(ctx, b.key, userID, email).Err(); err != nil {
		return fmt.Errorf("failed to store email for %s: %w", userID, err)
	}
	return nil
}
