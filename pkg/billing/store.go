package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// PlanStore persists plans and their versions.
type PlanStore interface {
	ListPlans(ctx context.Context) ([]Plan, error)
	GetPlan(ctx context.Context, id uuid.UUID) (*Plan, error)
	GetPlanBySlug(ctx context.Context, slug string) (*Plan, error)
	// SavePlan inserts or updates by ID.
	SavePlan(ctx context.Context, p *Plan) error

	ListVersions(ctx context.Context, planID uuid.UUID) ([]PlanVersion, error)
	GetVersion(ctx context.Context, id uuid.UUID) (*PlanVersion, error)
	FindVersionByPriceID(ctx context.Context, priceID string) (*PlanVersion, error)
	// CreateVersion locks the plan, hands its existing versions to build and
	// inserts the result. When the new version is active every other version
	// of the plan is deactivated in the same transaction.
	CreateVersion(ctx context.Context, planID uuid.UUID, build func(existing []PlanVersion) (*PlanVersion, error)) (*PlanVersion, error)
}

// SubscriptionStore persists subscriptions.
type SubscriptionStore interface {
	Get(ctx context.Context, id uuid.UUID) (*Subscription, error)
	// GetByUser returns the user's most recent subscription that has not
	// reached a terminal status.
	GetByUser(ctx context.Context, userID uuid.UUID) (*Subscription, error)
	GetByProviderID(ctx context.Context, providerSubID string) (*Subscription, error)
	Create(ctx context.Context, s *Subscription) error
	// Update loads the subscription under an exclusive lock, lets fn modify
	// it and saves the result. Concurrent updates of the same subscription
	// run one after another. If fn fails nothing is written.
	Update(ctx context.Context, id uuid.UUID, fn func(s *Subscription) error) (*Subscription, error)
	List(ctx context.Context, statuses ...SubscriptionStatus) ([]Subscription, error)
}

// PaymentStore is the payment ledger.
type PaymentStore interface {
	// RecordPayment reports false when the provider payment id and kind were
	// already recorded.
	RecordPayment(ctx context.Context, p *Payment) (bool, error)
	ListPayments(ctx context.Context, from, to time.Time) ([]Payment, error)
}
