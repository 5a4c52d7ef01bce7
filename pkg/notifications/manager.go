package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/linkshelf/linkshelf/pkg/logger"
)

type Manager struct {
	storage   Storage
	deliverer Deliverer
	log       *slog.Logger
	now       func() time.Time
}

type ManagerOption func(*Manager)

func WithManagerLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

func WithManagerClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager panics without storage. A nil deliverer keeps notifications
// inbox-only.
func NewManager(storage Storage, deliverer Deliverer, opts ...ManagerOption) *Manager {
	if storage == nil {
		panic("notifications: storage is required")
	}
	if deliverer == nil {
		deliverer = NoOpDeliverer{}
	}
	m := &Manager{storage: storage, deliverer: deliverer, log: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Send stores n and then attempts delivery. Delivery errors are logged only.
func (m *Manager) Send(ctx context.Context, n Notification) error {
	_, err := m.send(ctx, n)
	return err
}

// SendOnce is Send guarded by n.DedupKey. It reports false, with no error,
// when a notification with the same key was already sent.
func (m *Manager) SendOnce(ctx context.Context, n Notification) (bool, error) {
	if n.DedupKey == "" {
		return false, errors.Join(ErrInvalidNotification, errors.New("dedup key is required"))
	}
	return m.send(ctx, n)
}

func (m *Manager) send(ctx context.Context, n Notification) (bool, error) {
	if err := n.validate(); err != nil {
		return false, err
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = m.now().UTC()
	}
	if n.Severity == "" {
		n.Severity = SeverityInfo
	}

	if err := m.storage.Create(ctx, n); err != nil {
		if errors.Is(err, ErrDuplicateNotification) {
			return false, nil
		}
		return false, fmt.Errorf("failed to store notification: %w", err)
	}

	if err := m.deliverer.Deliver(ctx, n); err != nil {
		m.log.WarnContext(ctx, "notification stored but delivery failed",
			slog.String("notification_id", n.ID),
			slog.String("kind", string(n.Kind)),
			logger.UserID(n.UserID),
			logger.Error(err),
		)
	}
	return true, nil
}

func (m *Manager) List(ctx context.Context, userID string, opts ListOptions) ([]Notification, error) {
	return m.storage.List(ctx, userID, opts)
}

func (m *Manager) MarkRead(ctx context.Context, userID string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return m.storage.MarkRead(ctx, userID, m.now().UTC(), ids...)
}

func (m *Manager) CountUnread(ctx context.Context, userID string) (int, error) {
	return m.storage.CountUnread(ctx, userID)
}
