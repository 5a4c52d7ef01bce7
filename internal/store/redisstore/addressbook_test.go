package redisstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkshelf/linkshelf/internal/store/redisstore"
	"github.com/linkshelf/linkshelf/pkg/notifications"
)

var _ notifications.AddressBook = (*redisstore.AddressBook)(nil)

func TestAddressBook(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mr, client := setup(t)
	book := redisstore.NewAddressBook(client, "")

	_, err := book.EmailFor(ctx, "user-1")
	require.ErrorIs(t, err, redisstore.ErrAddressNotFound)

	require.NoError(t, book.SetEmail(ctx, "user-1", "ann@example.com"))
	addr, err := book.EmailFor(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", addr)
	assert.Equal(t, "ann@example.com", mr.HGet(redisstore.DefaultAddressKey, "user-1"))

	mr.Close()
	_, err = book.EmailFor(ctx, "user-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, redisstore.ErrAddressNotFound)
}
