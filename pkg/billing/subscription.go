package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Subscription binds a user to a plan version.
type Subscription struct {
	ID            uuid.UUID          `json:"id"`
	UserID        uuid.UUID          `json:"user_id"`
	PlanID        uuid.UUID          `json:"plan_id"`
	PlanVersionID uuid.UUID          `json:"plan_version_id"`
	Status        SubscriptionStatus `json:"status"`
	Interval      BillingInterval    `json:"interval"`

	TrialEndsAt           *time.Time `json:"trial_ends_at,omitempty"`
	CurrentPeriodStartsAt *time.Time `json:"current_period_starts_at,omitempty"`
	CurrentPeriodEndsAt   *time.Time `json:"current_period_ends_at,omitempty"`
	CancelledAt           *time.Time `json:"cancelled_at,omitempty"`
	EndsAt                *time.Time `json:"ends_at,omitempty"`

	ProviderSubID      string `json:"provider_subscription_id,omitempty"`
	ProviderCustomerID string `json:"provider_customer_id,omitempty"`
	// DetachedProviderSubID is the provider subscription a move to a free
	// plan left behind. Its remaining lifecycle events no longer apply here.
	DetachedProviderSubID string `json:"-"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"-"`
}

// IsActiveAt is true for an active subscription whose end, if any, is still
// ahead.
func (s *Subscription) IsActiveAt(now time.Time) bool {
	return s.Status == StatusActive && (s.EndsAt == nil || s.EndsAt.After(now))
}

func (s *Subscription) IsActive() bool { return s.IsActiveAt(time.Now()) }

// IsCancelled reports whether cancellation was requested, including a
// cancellation still waiting for the period end.
func (s *Subscription) IsCancelled() bool { return s.CancelledAt != nil }

func (s *Subscription) IsOnTrialAt(now time.Time) bool {
	return s.TrialEndsAt != nil && s.TrialEndsAt.After(now)
}

func (s *Subscription) IsOnTrial() bool { return s.IsOnTrialAt(time.Now()) }

func (s *Subscription) HasEndedTrialAt(now time.Time) bool {
	return s.TrialEndsAt != nil && !s.TrialEndsAt.After(now)
}

func (s *Subscription) HasEndedTrial() bool { return s.HasEndedTrialAt(time.Now()) }

// HasAccessAt reports whether the subscriber may use paid features at now.
func (s *Subscription) HasAccessAt(now time.Time) bool {
	switch s.Status {
	case StatusActive:
		return s.IsActiveAt(now)
	case StatusTrialing:
		return s.IsOnTrialAt(now)
	case StatusCancelledPending:
		return s.EndsAt != nil && s.EndsAt.After(now)
	}
	return false
}

// Cancel requests cancellation at the end of the paid period (or trial). With
// nothing left to run out the subscription is cancelled immediately.
func (s *Subscription) Cancel(now time.Time) error {
	return s.Apply(context.Background(), EventCancel, now)
}

// Resume undoes a pending cancellation.
func (s *Subscription) Resume(now time.Time) error {
	return s.Apply(context.Background(), EventResume, now)
}

// Renew moves the current period forward. Periods never move backwards, so
// replaying an older renewal is a no-op; the return value reports whether
// anything changed.
func (s *Subscription) Renew(start, end time.Time) bool {
	if !end.After(start) {
		return false
	}
	if s.CurrentPeriodEndsAt != nil && !end.After(*s.CurrentPeriodEndsAt) {
		return false
	}
	s.CurrentPeriodStartsAt = &start
	s.CurrentPeriodEndsAt = &end
	return true
}

// DaysUntilRenewal returns whole days left in the period, or -1 without one.
func (s *Subscription) DaysUntilRenewal(now time.Time) int {
	if s.CurrentPeriodEndsAt == nil {
		return -1
	}
	return wholeDaysUntil(now, *s.CurrentPeriodEndsAt)
}

func (s *Subscription) clone() *Subscription {
	c := *s
	c.TrialEndsAt = cloneTime(s.TrialEndsAt)
	c.CurrentPeriodStartsAt = cloneTime(s.CurrentPeriodStartsAt)
	c.CurrentPeriodEndsAt = cloneTime(s.CurrentPeriodEndsAt)
	c.CancelledAt = cloneTime(s.CancelledAt)
	c.EndsAt = cloneTime(s.EndsAt)
	c.DeletedAt = cloneTime(s.DeletedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func timePtr(t time.Time) *time.Time { return &t }

type PaymentKind string

const (
	PaymentCharge   PaymentKind = "charge"
	PaymentRefund   PaymentKind = "refund"
	PaymentReversal PaymentKind = "reversal"
)

// Payment is a ledger entry recorded from provider payment events. Refunds
// and reversals carry positive amounts.
type Payment struct {
	ID                uuid.UUID       `json:"id"`
	SubscriptionID    uuid.UUID       `json:"subscription_id"`
	UserID            uuid.UUID       `json:"user_id"`
	ProviderPaymentID string          `json:"provider_payment_id"`
	Kind              PaymentKind     `json:"kind"`
	Amount            decimal.Decimal `json:"amount"`
	Tax               decimal.Decimal `json:"tax"`
	Currency          string          `json:"currency"`
	OccurredAt        time.Time       `json:"occurred_at"`
}
