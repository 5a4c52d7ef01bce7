package billing

import (
	"context"

	"github.com/linkshelf/linkshelf/pkg/audit"
	"github.com/linkshelf/linkshelf/pkg/notifications"
)

// Notifier is satisfied by *notifications.Manager.
type Notifier interface {
	Send(ctx context.Context, n notifications.Notification) error
	SendOnce(ctx context.Context, n notifications.Notification) (bool, error)
}

// AuditLog is satisfied by *audit.Logger.
type AuditLog interface {
	Log(ctx context.Context, actor, action string, target audit.Target, meta map[string]any) error
	LogError(ctx context.Context, actor, action string, target audit.Target, err error, meta map[string]any) error
}

type noopNotifier struct{}

func (noopNotifier) Send(context.Context, notifications.Notification) error { return nil }

func (noopNotifier) SendOnce(context.Context, notifications.Notification) (bool, error) {
	return true, nil
}

type noopAudit struct{}

func (noopAudit) Log(context.Context, string, string, audit.Target, map[string]any) error {
	return nil
}

func (noopAudit) LogError(context.Context, string, string, audit.Target, error, map[string]any) error {
	return nil
}
