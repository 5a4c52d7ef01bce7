// Package notifications stores in-app notices and fans them out to delivery
// channels such as email.
//
// Manager.Send persists first and delivers second: the inbox is the record of
// truth and a failed email never loses a notification. SendOnce adds
// deduplication by key so scheduled jobs can be re-run safely.
package notifications

import (
	"errors"
	"time"
)

var (
	ErrNotificationNotFound  = errors.New("notification not found")
	ErrDuplicateNotification = errors.New("notification with this dedup key already exists")
	ErrInvalidNotification   = errors.New("invalid notification")
	ErrQueueFull             = errors.New("notification delivery queue is full")
	ErrDelivererClosed       = errors.New("notification deliverer is closed")
)

// Kind identifies what happened, and selects the email template.
type Kind string

const (
	KindSubscriptionActivated Kind = "subscription_activated"
	KindPlanChanged           Kind = "plan_changed"
	KindSubscriptionCancelled Kind = "subscription_cancelled"
	KindSubscriptionResumed   Kind = "subscription_resumed"
	KindSubscriptionExpired   Kind = "subscription_expired"
	KindRenewalUpcoming       Kind = "renewal_upcoming"
	KindTrialEnding           Kind = "trial_ending"
	KindPaymentFailed         Kind = "payment_failed"
	KindPaymentRefunded       Kind = "payment_refunded"
	KindReportReady           Kind = "report_ready"
)

// Severity controls how the inbox renders a notification.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
)

type Notification struct {
	ID       string         `json:"id"`
	UserID   string         `json:"user_id"`
	Kind     Kind           `json:"kind"`
	Severity Severity       `json:"severity"`
	Title    string         `json:"title"`
	Message  string         `json:"message"`
	Data     map[string]any `json:"data,omitempty"`
	// Email overrides the recipient lookup, used for report recipients who
	// are not users.
	Email     string     `json:"email,omitempty"`
	DedupKey  string     `json:"dedup_key,omitempty"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func (n Notification) IsRead() bool { return n.ReadAt != nil }

func (n Notification) validate() error {
	switch {
	case n.UserID == "" && n.Email == "":
		return errors.Join(ErrInvalidNotification, errors.New("user id or email is required"))
	case n.Kind == "":
		return errors.Join(ErrInvalidNotification, errors.New("kind is required"))
	case n.Title == "":
		return errors.Join(ErrInvalidNotification, errors.New("title is required"))
	}
	return nil
}
