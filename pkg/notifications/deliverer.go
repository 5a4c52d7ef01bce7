package notifications

import (
	"context"
	"errors"
	"log/slog"
)

// Deliverer pushes a stored notification to an external channel.
type Deliverer interface {
	Deliver(ctx context.Context, n Notification) error
}

// MultiDeliverer fans out to several deliverers and joins their errors.
type MultiDeliverer []Deliverer

func (m MultiDeliverer) Deliver(ctx context.Context, n Notification) error {
	var errs []error
	for _, d := range m {
		if err := d.Deliver(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type NoOpDeliverer struct{}

func (NoOpDeliverer) Deliver(context.Context, Notification) error { return nil }

// LogDeliverer writes notifications to the log, useful in development.
type LogDeliverer struct {
	Log *slog.Logger
}

func (d LogDeliverer) Deliver(ctx context.Context, n Notification) error {
	d.Log.InfoContext(ctx, "notification",
		slog.String("kind", string(n.Kind)),
		slog.String("user_id", n.UserID),
		slog.String("title", n.Title),
	)
	return nil
}
