package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/linkshelf/linkshelf/pkg/pg"
	"github.com/linkshelf/linkshelf/pkg/reports"
)

// ReportStore implements reports.Store.
type ReportStore struct {
	db *sql.DB
}

func NewReportStore(db *sql.DB) *ReportStore {
	return &ReportStore{db: db}
}

const scheduleColumns = `id, name, type, frequency, config, active, created_by, last_run_at, next_run_at, created_at`

func scanSchedule(row scanner) (*reports.Schedule, error) {
	var (
		s   reports.Schedule
		cfg []byte
	)
	if err := row.Scan(&s.ID, &s.Name, &s.Type, &s.Frequency, &cfg, &s.Active, &s.CreatedBy,
		&s.LastRunAt, &s.NextRunAt, &s.CreatedAt); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(cfg, &s.Config); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *ReportStore) Create(ctx context.Context, sched *reports.Schedule) error {
	cfg, err := marshalJSON(sched.Config)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO report_schedules (`+scheduleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		sched.ID, sched.Name, sched.Type, sched.Frequency, cfg, sched.Active, sched.CreatedBy,
		sched.LastRunAt, sched.NextRunAt, sched.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create report schedule: %w", err)
	}
	return nil
}

func (s *ReportStore) Get(ctx context.Context, id uuid.UUID) (*reports.Schedule, error) {
	sched, err := scanSchedule(s.db.QueryRowContext(ctx,
		`SELECT `+scheduleColumns+` FROM report_schedules WHERE id = $1`, id))
	if pg.IsNotFoundError(err) {
		return nil, reports.ErrScheduleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load report schedule: %w", err)
	}
	return sched, nil
}

func (s *ReportStore) List(ctx context.Context) ([]reports.Schedule, error) {
	return s.query(ctx, `SELECT `+scheduleColumns+` FROM report_schedules ORDER BY created_at`)
}

func (s *ReportStore) Due(ctx context.Context, now time.Time) ([]reports.Schedule, error) {
	return s.query(ctx, `SELECT `+scheduleColumns+` FROM report_schedules
		WHERE active AND next_run_at <= $1 ORDER BY next_run_at`, now)
}

func (s *ReportStore) SetActive(ctx context.Context, id uuid.UUID, active bool, nextRunAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE report_schedules SET active = $2, next_run_at = $3 WHERE id = $1`, id, active, nextRunAt)
	if err != nil {
		return fmt.Errorf("failed to update report schedule: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return reports.ErrScheduleNotFound
	}
	return nil
}

// ClaimRun is a compare-and-set on next_run_at.
func (s *ReportStore) ClaimRun(ctx context.Context, id uuid.UUID, expected, next, ranAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE report_schedules SET next_run_at = $3, last_run_at = $4
		WHERE id = $1 AND next_run_at = $2`, id, expected, next, ranAt)
	if err != nil {
		return false, fmt.Errorf("failed to claim report run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to claim report run: %w", err)
	}
	return n == 1, nil
}

func (s *ReportStore) query(ctx context.Context, query string, args ...any) ([]reports.Schedule, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list report schedules: %w", err)
	}
	defer rows.Close()

	var out []reports.Schedule
	for rows.Next() {
		sched, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report schedule: %w", err)
		}
		out = append(out, *sched)
	}
	return out, rows.Err()
}
