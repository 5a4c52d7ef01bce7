package billing

import (
	"time"

	"github.com/google/uuid"
)

// BillingInterval is the length of a billing cycle.
type BillingInterval string

const (
	IntervalMonthly BillingInterval = "monthly"
	IntervalYearly  BillingInterval = "yearly"
)

func (i BillingInterval) Valid() bool {
	return i == IntervalMonthly || i == IntervalYearly
}

// DaysInCycle uses fixed 30 and 365 day cycles, not calendar months.
func (i BillingInterval) DaysInCycle() int {
	if i == IntervalYearly {
		return 365
	}
	return 30
}

// Advance returns t moved forward by one cycle.
func (i BillingInterval) Advance(t time.Time) time.Time {
	return t.AddDate(0, 0, i.DaysInCycle())
}

type SubscriptionStatus string

const (
	// StatusPending waits for the provider to confirm a paid checkout.
	StatusPending          SubscriptionStatus = "pending"
	StatusTrialing         SubscriptionStatus = "trialing"
	StatusActive           SubscriptionStatus = "active"
	StatusCancelledPending SubscriptionStatus = "cancelled_pending"
	StatusCancelled        SubscriptionStatus = "cancelled"
	StatusExpired          SubscriptionStatus = "expired"
	StatusPaymentFailed    SubscriptionStatus = "payment_failed"
)

// LiveStatuses are the statuses of a subscription that has not ended.
var LiveStatuses = []SubscriptionStatus{
	StatusPending, StatusTrialing, StatusActive, StatusCancelledPending, StatusPaymentFailed,
}

func (s SubscriptionStatus) Valid() bool {
	switch s {
	case StatusPending, StatusTrialing, StatusActive, StatusCancelledPending,
		StatusCancelled, StatusExpired, StatusPaymentFailed:
		return true
	}
	return false
}

// Terminal statuses never change again.
func (s SubscriptionStatus) Terminal() bool {
	return s == StatusCancelled || s == StatusExpired
}

// Resource is a countable thing a plan limits.
type Resource string

const (
	ResourceLists         Resource = "lists"
	ResourceURLsPerList   Resource = "urls_per_list"
	ResourceCollaborators Resource = "collaborators"
)

// Unlimited marks a limit without a ceiling.
const Unlimited int64 = -1

type Limits struct {
	MaxLists         int64 `json:"max_lists" yaml:"lists"`
	MaxURLsPerList   int64 `json:"max_urls_per_list" yaml:"urls_per_list"`
	MaxCollaborators int64 `json:"max_collaborators" yaml:"collaborators"`
}

func (l Limits) For(res Resource) (int64, bool) {
	switch res {
	case ResourceLists:
		return l.MaxLists, true
	case ResourceURLsPerList:
		return l.MaxURLsPerList, true
	case ResourceCollaborators:
		return l.MaxCollaborators, true
	}
	return 0, false
}

type UsageInfo struct {
	Used  int64 `json:"used"`
	Limit int64 `json:"limit"`
}

// Actor is the identity on whose behalf an operation runs. The zero value is
// the system actor used by webhooks and jobs.
type Actor struct {
	UserID uuid.UUID
	Admin  bool
}

var SystemActor = Actor{}

func (a Actor) IsSystem() bool { return a.UserID == uuid.Nil }

func (a Actor) String() string {
	if a.IsSystem() {
		return "system"
	}
	return a.UserID.String()
}

// canManage reports whether a may act on subscriptions owned by owner.
func (a Actor) canManage(owner uuid.UUID) bool {
	return a.IsSystem() || a.Admin || a.UserID == owner
}
