// Package audit records who changed what in billing.
//
// There are no hooks: every mutating operation calls Logger.Log or
// Logger.LogError itself, naming the actor, the action and a Target. A Target
// is a tagged union of entity type and entity id, so one table covers plans,
// plan versions, subscriptions and report schedules.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/linkshelf/linkshelf/pkg/logger"
	"github.com/linkshelf/linkshelf/pkg/requestid"
)

var (
	ErrEventValidation = errors.New("audit event validation failed")
	ErrStorageFailure  = errors.New("audit storage failure")
)

// TargetType names the kind of entity an event refers to.
type TargetType string

const (
	TargetPlan           TargetType = "plan"
	TargetPlanVersion    TargetType = "plan_version"
	TargetSubscription   TargetType = "subscription"
	TargetReportSchedule TargetType = "report_schedule"
)

// Target identifies the entity an event is about.
type Target struct {
	Type TargetType `json:"type"`
	ID   string     `json:"id"`
}

func NewTarget(t TargetType, id fmt.Stringer) Target {
	return Target{Type: t, ID: id.String()}
}

type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
)

// SystemActor is used for changes made by webhooks and scheduled jobs.
const SystemActor = "system"

type Event struct {
	ID        string         `json:"id"`
	ActorID   string         `json:"actor_id"`
	Action    string         `json:"action"`
	Target    Target         `json:"target"`
	Result    Result         `json:"result"`
	Error     string         `json:"error,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

func (e Event) Validate() error {
	switch {
	case e.Action == "":
		return fmt.Errorf("%w: action is required", ErrEventValidation)
	case e.ActorID == "":
		return fmt.Errorf("%w: actor is required", ErrEventValidation)
	case e.Target.Type == "" || e.Target.ID == "":
		return fmt.Errorf("%w: target is required", ErrEventValidation)
	}
	return nil
}

// Storage persists audit events.
type Storage interface {
	Store(ctx context.Context, events ...Event) error
	List(ctx context.Context, target Target, limit int) ([]Event, error)
}

// Logger builds events and writes them to Storage. Storage failures are
// logged and returned; callers usually ignore them so an audit outage never
// blocks billing.
type Logger struct {
	storage Storage
	log     *slog.Logger
	now     func() time.Time
}

type Option func(*Logger)

func WithLogger(l *slog.Logger) Option {
	return func(a *Logger) {
		if l != nil {
			a.log = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *Logger) {
		if now != nil {
			a.now = now
		}
	}
}

func NewLogger(storage Storage, opts ...Option) *Logger {
	if storage == nil {
		panic("audit: storage is required")
	}
	a := &Logger{storage: storage, log: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Log records a successful action.
func (a *Logger) Log(ctx context.Context, actor, action string, target Target, meta map[string]any) error {
	return a.write(ctx, Event{ActorID: actor, Action: action, Target: target, Result: ResultSuccess, Metadata: meta})
}

// LogError records a failed action.
func (a *Logger) LogError(ctx context.Context, actor, action string, target Target, err error, meta map[string]any) error {
	e := Event{ActorID: actor, Action: action, Target: target, Result: ResultFailure, Metadata: meta}
	if err != nil {
		e.Error = err.Error()
	}
	return a.write(ctx, e)
}

func (a *Logger) write(ctx context.Context, e Event) error {
	e.ID = uuid.NewString()
	e.CreatedAt = a.now().UTC()
	e.RequestID = requestid.FromContext(ctx)
	if err := e.Validate(); err != nil {
		return err
	}
	if err := a.storage.Store(ctx, e); err != nil {
		a.log.ErrorContext(ctx, "failed to store audit event",
			logger.Component("audit"),
			slog.String("action", e.Action),
			slog.String("target_type", string(e.Target.Type)),
			slog.String("target_id", e.Target.ID),
			logger.Error(err),
		)
		return errors.Join(ErrStorageFailure, err)
	}
	return nil
}
