package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/linkshelf/linkshelf/pkg/audit"
	"github.com/linkshelf/linkshelf/pkg/pg"
)

// AuditStore implements audit.Storage.
type AuditStore struct {
	db *sql.DB
}

func NewAuditStore(db *sql.DB) *AuditStore {
	return &AuditStore{db: db}
}

func (s *AuditStore) Store(ctx context.Context, events ...audit.Event) error {
	if len(events) == 0 {
		return nil
	}
	return pg.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, e := range events {
			var meta []byte
			if e.Metadata != nil {
				var err error
				if meta, err = marshalJSON(e.Metadata); err != nil {
					return err
				}
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO audit_events (id, actor_id, action, target_type, target_id, result, error, request_id, metadata, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
				e.ID, e.ActorID, e.Action, e.Target.Type, e.Target.ID, e.Result, e.Error, e.RequestID, meta, e.CreatedAt)
			if err != nil {
				return fmt.Errorf("failed to insert audit event: %w", err)
			}
		}
		return nil
	})
}

// List returns the newest events for target first.
func (s *AuditStore) List(ctx context.Context, target audit.Target, limit int) ([]audit.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_id, action, target_type, target_id, result, error, request_id, metadata, created_at
		FROM audit_events WHERE target_type = $1 AND target_id = $2
		ORDER BY created_at DESC LIMIT $3`, target.Type, target.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer rows.Close()

	var out []audit.Event
	for rows.Next() {
		var (
			e    audit.Event
			meta []byte
		)
		if err := rows.Scan(&e.ID, &e.ActorID, &e.Action, &e.Target.Type, &e.Target.ID, &e.Result,
			&e.Error, &e.RequestID, &meta, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		if err := unmarshalJSON(meta, &e.Metadata); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
