package notifications_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/linkshelf/linkshelf/pkg/email"
	"github.com/linkshelf/linkshelf/pkg/logger"
	"github.com/linkshelf/linkshelf/pkg/notifications"
)

type mockDeliverer struct {
	mock.Mock
}

func (m *mockDeliverer) Deliver(ctx context.Context, n notifications.Notification) error {
	return m.Called(ctx, n).Error(0)
}

func renewal(userID string) notifications.Notification {
	return notifications.Notification{
		UserID:  userID,
		Kind:    notifications.KindRenewalUpcoming,
		Title:   "Your plan renews soon",
		Message: "Pro renews on 2026-04-01.",
	}
}

func TestManagerSend(t *testing.T) {
	t.Parallel()

	t.Run("stores even when delivery fails", func(t *testing.T) {
		t.Parallel()
		storage := notifications.NewMemoryStorage()
		d := &mockDeliverer{}
		d.On("Deliver", mock.Anything, mock.Anything).Return(errors.New("smtp down"))

		m := notifications.NewManager(storage, d, notifications.WithManagerLogger(logger.Noop()))
		require.NoError(t, m.Send(context.Background(), renewal("u1")))

		list, err := m.List(context.Background(), "u1", notifications.ListOptions{})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.NotEmpty(t, list[0].ID)
		assert.Equal(t, notifications.SeverityInfo, list[0].Severity)
		d.AssertExpectations(t)
	})

	t.Run("rejects invalid notifications", func(t *testing.T) {
		t.Parallel()
		m := notifications.NewManager(notifications.NewMemoryStorage(), nil)
		err := m.Send(context.Background(), notifications.Notification{UserID: "u1"})
		assert.ErrorIs(t, err, notifications.ErrInvalidNotification)
	})

	t.Run("send once deduplicates", func(t *testing.T) {
		t.Parallel()
		d := &mockDeliverer{}
		d.On("Deliver", mock.Anything, mock.Anything).Return(nil).Once()
		m := notifications.NewManager(notifications.NewMemoryStorage(), d)

		n := renewal("u1")
		n.DedupKey = "renewal:sub-1:2026-04-01"

		sent, err := m.SendOnce(context.Background(), n)
		require.NoError(t, err)
		assert.True(t, sent)

		sent, err = m.SendOnce(context.Background(), n)
		require.NoError(t, err)
		assert.False(t, sent)
		d.AssertExpectations(t)

		_, err = m.SendOnce(context.Background(), renewal("u1"))
		assert.ErrorIs(t, err, notifications.ErrInvalidNotification)
	})
}

func TestManagerReadState(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := notifications.NewManager(notifications.NewMemoryStorage(), nil)
	ctx := context.Background()

	for i := range 3 {
		n := renewal("u1")
		n.ID = string(rune('a' + i))
		n.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, m.Send(ctx, n))
	}

	list, err := m.List(ctx, "u1", notifications.ListOptions{Limit: 2})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "c", list[0].ID)

	require.NoError(t, m.MarkRead(ctx, "u1", "a", "c"))
	count, err := m.CountUnread(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	unread, err := m.List(ctx, "u1", notifications.ListOptions{OnlyUnread: true})
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "b", unread[0].ID)

	empty, err := m.List(ctx, "u1", notifications.ListOptions{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestEmailDeliverer(t *testing.T) {
	t.Parallel()

	sender := email.NewLogSender(logger.Noop())
	book := notifications.AddressBookFunc(func(_ context.Context, userID string) (string, error) {
		if userID == "u1" {
			return "ana@example.com", nil
		}
		return "", errors.New("unknown user")
	})
	d := notifications.NewEmailDeliverer(sender, book, "https://app.linkshelf.io/")

	n := renewal("u1")
	n.Title = "Renewal <soon>"
	require.NoError(t, d.Deliver(context.Background(), n))

	sent := sender.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "ana@example.com", sent[0].To)
	assert.Equal(t, string(notifications.KindRenewalUpcoming), sent[0].Tag)
	assert.Contains(t, sent[0].HTMLBody, "Renewal &lt;soon&gt;")
	assert.Contains(t, sent[0].HTMLBody, "https://app.linkshelf.io/settings/billing")

	assert.Error(t, d.Deliver(context.Background(), renewal("u2")))

	direct := renewal("")
	direct.Email = "finance@example.com"
	require.NoError(t, d.Deliver(context.Background(), direct))
	assert.Equal(t, "finance@example.com", sender.Sent()[1].To)
}

type countingDeliverer struct {
	mu    sync.Mutex
	count int
}

func (c *countingDeliverer) Deliver(context.Context, notifications.Notification) error {
	c.mu.Lock()
	c.count++
	c.mu.Unlock()
	return nil
}

func TestAsyncDeliverer(t *testing.T) {
	t.Parallel()

	next := &countingDeliverer{}
	d := notifications.NewAsyncDeliverer(next, logger.Noop(), notifications.AsyncOptions{QueueSize: 16, Workers: 2})

	for range 10 {
		require.NoError(t, d.Deliver(context.Background(), renewal("u1")))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))

	next.mu.Lock()
	assert.Equal(t, 10, next.count)
	next.mu.Unlock()

	assert.ErrorIs(t, d.Deliver(context.Background(), renewal("u1")), notifications.ErrDelivererClosed)
}
