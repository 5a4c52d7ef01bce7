package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/linkshelf/linkshelf/pkg/notifications"
	"github.com/linkshelf/linkshelf/pkg/pg"
)

// NotificationStore implements notifications.Storage.
type NotificationStore struct {
	db *sql.DB
}

func NewNotificationStore(db *sql.DB) *NotificationStore {
	return &NotificationStore{db: db}
}

func (s *NotificationStore) Create(ctx context.Context, n notifications.Notification) error {
	var data []byte
	if n.Data != nil {
		var err error
		if data, err = marshalJSON(n.Data); err != nil {
			return err
		}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, email, kind, severity, title, message, data, dedup_key, read_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		n.ID, n.UserID, n.Email, n.Kind, n.Severity, n.Title, n.Message, data,
		nullString(n.DedupKey), n.ReadAt, n.CreatedAt)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return notifications.ErrDuplicateNotification
		}
		return fmt.Errorf("failed to store notification: %w", err)
	}
	return nil
}

func (s *NotificationStore) List(ctx context.Context, userID string, opts notifications.ListOptions) ([]notifications.Notification, error) {
	var (
		query strings.Builder
		args  = []any{userID}
	)
	query.WriteString(`SELECT id, user_id, email, kind, severity, title, message, data, dedup_key, read_at, created_at
		FROM notifications WHERE user_id = $1`)
	if opts.OnlyUnread {
		query.WriteString(` AND read_at IS NULL`)
	}
	if len(opts.Kinds) > 0 {
		query.WriteString(` AND kind IN (` + placeholders(len(args)+1, len(opts.Kinds)) + `)`)
		for _, k := range opts.Kinds {
			args = append(args, k)
		}
	}
	query.WriteString(` ORDER BY created_at DESC`)
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		fmt.Fprintf(&query, ` LIMIT $%d`, len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		fmt.Fprintf(&query, ` OFFSET $%d`, len(args))
	}

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	out := []notifications.Notification{}
	for rows.Next() {
		var (
			n     notifications.Notification
			data  []byte
			dedup sql.NullString
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.Email, &n.Kind, &n.Severity, &n.Title, &n.Message,
			&data, &dedup, &n.ReadAt, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		if err := unmarshalJSON(data, &n.Data); err != nil {
			return nil, err
		}
		n.DedupKey = dedup.String
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *NotificationStore) MarkRead(ctx context.Context, userID string, at time.Time, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	args := []any{at, userID}
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET read_at = $1
		WHERE user_id = $2 AND read_at IS NULL AND id IN (`+placeholders(3, len(ids))+`)`, args...)
	if err != nil {
		return fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return nil
}

func (s *NotificationStore) CountUnread(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM notifications WHERE user_id = $1 AND read_at IS NULL`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count notifications: %w", err)
	}
	return n, nil
}
