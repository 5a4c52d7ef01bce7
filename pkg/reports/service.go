package reports

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/linkshelf/linkshelf/pkg/audit"
	"github.com/linkshelf/linkshelf/pkg/billing"
	"github.com/linkshelf/linkshelf/pkg/logger"
)

// Auditor is satisfied by *audit.Logger.
type Auditor interface {
	Log(ctx context.Context, actor, action string, target audit.Target, meta map[string]any) error
}

// CreateParams describes a new schedule.
type CreateParams struct {
	Name      string    `json:"name"`
	Type      Type      `json:"type"`
	Frequency Frequency `json:"frequency"`
	Config    Config    `json:"config"`
}

// Service manages report schedules for admins.
type Service struct {
	store Store
	audit Auditor
	log   *slog.Logger
	now   func() time.Time
}

type ServiceOption func(*Service)

func WithServiceAudit(a Auditor) ServiceOption {
	return func(s *Service) {
		if a != nil {
			s.audit = a
		}
	}
}

func WithServiceLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(store Store, opts ...ServiceOption) *Service {
	if store == nil {
		panic("reports: Store is required")
	}
	s := &Service{store: store, log: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Create(ctx context.Context, actor billing.Actor, p CreateParams) (*Schedule, error) {
	if !actor.Admin {
		return nil, ErrForbidden
	}
	now := s.now().UTC()
	sched := Schedule{
		ID:        uuid.New(),
		Name:      p.Name,
		Type:      p.Type,
		Frequency: p.Frequency,
		Config:    p.Config,
		Active:    true,
		CreatedBy: actor.UserID,
		CreatedAt: now,
	}
	if err := sched.Validate(); err != nil {
		return nil, err
	}
	sched.NextRunAt = sched.NextRun(now)

	if err := s.store.Create(ctx, &sched); err != nil {
		return nil, err
	}
	if s.audit != nil {
		_ = s.audit.Log(ctx, actor.String(), "report_schedule.created",
			audit.NewTarget(audit.TargetReportSchedule, sched.ID),
			map[string]any{"type": sched.Type, "frequency": sched.Frequency})
	}
	s.log.InfoContext(ctx, "report schedule created",
		logger.ScheduleID(sched.ID), slog.Time("next_run_at", sched.NextRunAt))
	return &sched, nil
}

func (s *Service) List(ctx context.Context, actor billing.Actor) ([]Schedule, error) {
	if !actor.Admin {
		return nil, ErrForbidden
	}
	return s.store.List(ctx)
}

// SetActive pauses or resumes a schedule. Resuming recomputes the next run
// so missed periods are skipped.
func (s *Service) SetActive(ctx context.Context, actor billing.Actor, id uuid.UUID, active bool) (*Schedule, error) {
	if !actor.Admin {
		return nil, ErrForbidden
	}
	sched, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	next := sched.NextRunAt
	if active && !sched.Active {
		next = sched.NextRun(s.now())
	}
	if err := s.store.SetActive(ctx, id, active, next); err != nil {
		return nil, err
	}
	sched.Active, sched.NextRunAt = active, next
	if s.audit != nil {
		_ = s.audit.Log(ctx, actor.String(), "report_schedule.updated",
			audit.NewTarget(audit.TargetReportSchedule, id),
			map[string]any{"active": active})
	}
	return sched, nil
}
