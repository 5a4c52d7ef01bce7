// Package redisstore holds the Redis-backed pieces shared by every instance
// of the service: processed webhook event ids and the user email directory.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultPrefix = "billing:event:"
	DefaultTTL    = 72 * time.Hour
)

var ErrEmptyEventID = errors.New("event id is required")

// EventLog implements billing.EventLog with SET NX.
type EventLog struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

type Option func(*EventLog)

func WithPrefix(prefix string) Option {
	return func(l *EventLog) { l.prefix = prefix }
}

// WithTTL bounds how long a claim survives. Providers stop redelivering
// after a few days, so the default covers their retry window.
func WithTTL(ttl time.Duration) Option {
	return func(l *EventLog) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

func NewEventLog(client redis.UniversalClient, opts ...Option) *EventLog {
	if client == nil {
		panic("redisstore: nil redis client")
	}
	l := &EventLog{client: client, prefix: DefaultPrefix, ttl: DefaultTTL}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Claim returns false when the event id was already claimed.
func (l *EventLog) Claim(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, ErrEmptyEventID
	}
	ok, err := l.client.SetNX(ctx, l.prefix+eventID, time.Now().UTC().Unix(), l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim event %s: %w", eventID, err)
	}
	return ok, nil
}

func (l *EventLog) Release(ctx context.Context, eventID string) error {
	if eventID == "" {
		return ErrEmptyEventID
	}
	if err := l.client.Del(ctx, l.prefix+eventID).Err(); err != nil {
		return fmt.Errorf("failed to release event %s: %w", eventID, err)
	}
	return nil
}
