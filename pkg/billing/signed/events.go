package signed

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/linkshelf/linkshelf/pkg/billing"
)

// Event is the normalized envelope. Type uses billing.EventType names.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       EventData `json:"data"`
}

type EventData struct {
	ProviderSubscriptionID string     `json:"provider_subscription_id,omitempty"`
	ProviderCustomerID     string     `json:"provider_customer_id,omitempty"`
	SubscriptionID         uuid.UUID  `json:"subscription_id,omitzero"`
	UserID                 uuid.UUID  `json:"user_id,omitzero"`
	Status                 string     `json:"status,omitempty"`
	PriceID                string     `json:"price_id,omitempty"`
	PeriodStart            *time.Time `json:"period_start,omitempty"`
	PeriodEnd              *time.Time `json:"period_end,omitempty"`
	TrialEndsAt            *time.Time `json:"trial_ends_at,omitempty"`
	CancelAt               *time.Time `json:"cancel_at,omitempty"`
	Payment                *Payment   `json:"payment,omitempty"`
}

type Payment struct {
	ID       string          `json:"id"`
	Amount   decimal.Decimal `json:"amount"`
	Tax      decimal.Decimal `json:"tax"`
	Currency string          `json:"currency"`
}

var knownTypes = map[billing.EventType]bool{
	billing.EventSubscriptionCreated:   true,
	billing.EventSubscriptionActivated: true,
	billing.EventSubscriptionUpdated:   true,
	billing.EventSubscriptionCancelled: true,
	billing.EventSubscriptionSuspended: true,
	billing.EventSubscriptionExpired:   true,
	billing.EventPaymentCompleted:      true,
	billing.EventPaymentFailed:         true,
	billing.EventPaymentRefunded:       true,
	billing.EventPaymentReversed:       true,
}

func decodeEvent(payload []byte) (*billing.WebhookEvent, error) {
	var e Event
	if err := json.Unmarshal(payload, &e); err != nil {
		return nil, errors.Join(billing.ErrInvalidRequest, fmt.Errorf("failed to parse webhook: %w", err))
	}
	if e.ID == "" {
		return nil, errors.Join(billing.ErrInvalidRequest, errors.New("event id is required"))
	}

	typ := billing.EventType(e.Type)
	if !knownTypes[typ] {
		typ = billing.EventUnknown
	}
	ev := &billing.WebhookEvent{
		ID:                 e.ID,
		Type:               typ,
		ProviderEventType:  e.Type,
		OccurredAt:         e.OccurredAt,
		ProviderSubID:      e.Data.ProviderSubscriptionID,
		ProviderCustomerID: e.Data.ProviderCustomerID,
		SubscriptionID:     e.Data.SubscriptionID,
		UserID:             e.Data.UserID,
		PriceID:            e.Data.PriceID,
		PeriodStart:        e.Data.PeriodStart,
		PeriodEnd:          e.Data.PeriodEnd,
		TrialEndsAt:        e.Data.TrialEndsAt,
		CancelAt:           e.Data.CancelAt,
	}

	if e.Data.Status != "" {
		status := billing.SubscriptionStatus(e.Data.Status)
		if !status.Valid() {
			return nil, errors.Join(billing.ErrInvalidRequest, fmt.Errorf("unknown status %q", e.Data.Status))
		}
		ev.Status = status
	}

	if p := e.Data.Payment; p != nil {
		if p.ID == "" {
			return nil, errors.Join(billing.ErrInvalidRequest, errors.New("payment id is required"))
		}
		ev.Payment = &billing.PaymentInfo{
			ID:       p.ID,
			Amount:   p.Amount,
			Tax:      p.Tax,
			Currency: strings.ToUpper(p.Currency),
		}
	}
	return ev, nil
}
