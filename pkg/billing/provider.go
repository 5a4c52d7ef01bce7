package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BillingProvider is the external payment processor. Implementations own
// signature verification and translate their payloads into WebhookEvent.
type BillingProvider interface {
	Name() string
	CreateCheckoutLink(ctx context.Context, req CheckoutRequest) (*CheckoutLink, error)
	GetCustomerPortalLink(ctx context.Context, sub *Subscription) (*PortalLink, error)
	// ChangePlan swaps the price on the provider subscription. Whether the
	// difference is charged now or on the next invoice follows the
	// provider's own proration rules.
	ChangePlan(ctx context.Context, req ChangePlanRequest) error
	// CancelSubscription schedules cancellation at the end of the period.
	CancelSubscription(ctx context.Context, providerSubID string) error
	// ResumeSubscription removes a scheduled cancellation.
	ResumeSubscription(ctx context.Context, providerSubID string) error
	// ParseWebhook verifies the signature and decodes the payload. Failed
	// verification must wrap ErrWebhookVerificationFailed.
	ParseWebhook(ctx context.Context, payload []byte, signature string) (*WebhookEvent, error)
}

type CheckoutRequest struct {
	PriceID        string
	SubscriptionID uuid.UUID
	UserID         uuid.UUID
	Email          string
	SuccessURL     string
	CancelURL      string
}

type CheckoutLink struct {
	URL       string    `json:"url"`
	SessionID string    `json:"session_id,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

type PortalLink struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

type ChangePlanRequest struct {
	ProviderSubID string
	PriceID       string
	Proration     Proration
}

// EventType is the provider-neutral webhook event type.
type EventType string

const (
	EventSubscriptionCreated   EventType = "subscription.created"
	EventSubscriptionActivated EventType = "subscription.activated"
	EventSubscriptionUpdated   EventType = "subscription.updated"
	EventSubscriptionCancelled EventType = "subscription.cancelled"
	EventSubscriptionSuspended EventType = "subscription.suspended"
	EventSubscriptionExpired   EventType = "subscription.expired"
	EventPaymentCompleted      EventType = "payment.completed"
	EventPaymentFailed         EventType = "payment.failed"
	EventPaymentRefunded       EventType = "payment.refunded"
	EventPaymentReversed       EventType = "payment.reversed"
	// EventUnknown is any provider event the reconciler does not handle.
	EventUnknown EventType = "unknown"
)

// WebhookEvent is a verified provider notification. Optional fields are nil
// when the provider did not send them.
type WebhookEvent struct {
	ID                string
	Type              EventType
	ProviderEventType string
	OccurredAt        time.Time

	ProviderSubID      string
	ProviderCustomerID string
	// SubscriptionID and UserID come from custom data attached at checkout.
	SubscriptionID uuid.UUID
	UserID         uuid.UUID

	Status      SubscriptionStatus
	PriceID     string
	PeriodStart *time.Time
	PeriodEnd   *time.Time
	TrialEndsAt *time.Time
	CancelAt    *time.Time

	Payment *PaymentInfo
}

type PaymentInfo struct {
	ID       string
	Amount   decimal.Decimal
	Tax      decimal.Decimal
	Currency string
}
