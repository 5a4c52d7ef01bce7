// Package reports computes revenue summaries and runs them on per-schedule
// calendars.
package reports

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type Type string

const (
	TypeRevenue       Type = "revenue"
	TypeSubscriptions Type = "subscriptions"
)

type Frequency string

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
)

// Metrics toggles the sections included in a report.
type Metrics struct {
	Revenue       bool `json:"revenue"`
	Subscriptions bool `json:"subscriptions"`
	Taxes         bool `json:"taxes"`
	Refunds       bool `json:"refunds"`
}

func (m Metrics) any() bool {
	return m.Revenue || m.Subscriptions || m.Taxes || m.Refunds
}

// Config is stored as JSON next to the schedule row.
type Config struct {
	// DayOfWeek is used by weekly schedules, Sunday = 0.
	DayOfWeek int `json:"day_of_week" validate:"min=0,max=6"`
	// DayOfMonth is used by monthly schedules. Days past the end of a short
	// month run on its last day.
	DayOfMonth int      `json:"day_of_month" validate:"min=0,max=31"`
	Hour       int      `json:"hour" validate:"min=0,max=23"`
	Recipients []string `json:"recipients" validate:"required,min=1,dive,email"`
	// WebhookURL, when set, also receives the summary as a signed POST.
	WebhookURL string  `json:"webhook_url,omitempty" validate:"omitempty,url"`
	Metrics    Metrics `json:"metrics"`
}

type Schedule struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name" validate:"required,max=120"`
	Type      Type       `json:"type" validate:"required,oneof=revenue subscriptions"`
	Frequency Frequency  `json:"frequency" validate:"required,oneof=daily weekly monthly"`
	Config    Config     `json:"config"`
	Active    bool       `json:"active"`
	CreatedBy uuid.UUID  `json:"created_by"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	NextRunAt time.Time  `json:"next_run_at"`
	CreatedAt time.Time  `json:"created_at"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (s Schedule) Validate() error {
	if err := validate.Struct(s); err != nil {
		return errors.Join(ErrInvalidSchedule, err)
	}
	if s.Frequency == Monthly && s.Config.DayOfMonth == 0 {
		return fmt.Errorf("%w: monthly schedules need day_of_month", ErrInvalidSchedule)
	}
	if !s.Config.Metrics.any() {
		return fmt.Errorf("%w: at least one metric must be enabled", ErrInvalidSchedule)
	}
	return nil
}

// NextRun returns the first run time strictly after from, in UTC.
func (s Schedule) NextRun(from time.Time) time.Time {
	from = from.UTC()
	hour := s.Config.Hour

	switch s.Frequency {
	case Weekly:
		days := (s.Config.DayOfWeek - int(from.Weekday()) + 7) % 7
		d := from.AddDate(0, 0, days)
		next := time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, time.UTC)
		if !next.After(from) {
			next = next.AddDate(0, 0, 7)
		}
		return next

	case Monthly:
		next := monthDay(from.Year(), from.Month(), s.Config.DayOfMonth, hour)
		if !next.After(from) {
			next = monthDay(from.Year(), from.Month()+1, s.Config.DayOfMonth, hour)
		}
		return next

	default:
		next := time.Date(from.Year(), from.Month(), from.Day(), hour, 0, 0, 0, time.UTC)
		if !next.After(from) {
			next = next.AddDate(0, 0, 1)
		}
		return next
	}
}

// Window is the reporting period that ends at run.
func (s Schedule) Window(run time.Time) (from, to time.Time) {
	switch s.Frequency {
	case Weekly:
		return run.AddDate(0, 0, -7), run
	case Monthly:
		return run.AddDate(0, -1, 0), run
	default:
		return run.AddDate(0, 0, -1), run
	}
}

// monthDay clamps day to the length of the month. Month overflow (13) is
// normalized by time.Date.
func monthDay(year int, month time.Month, day, hour int) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1).Day()
	return time.Date(first.Year(), first.Month(), min(day, last), hour, 0, 0, 0, time.UTC)
}
