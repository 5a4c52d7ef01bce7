package paddle

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"github.com/linkshelf/linkshelf/pkg/billing"
)

// Custom data keys attached at checkout.
const (
	customSubscriptionID = "subscription_id"
	customUserID         = "user_id"
)

type envelope struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

type period struct {
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
}

type subscriptionData struct {
	ID         string         `json:"id"`
	Status     string         `json:"status"`
	CustomerID string         `json:"customer_id"`
	CustomData map[string]any `json:"custom_data"`
	Items      []struct {
		Price struct {
			ID string `json:"id"`
		} `json:"price"`
		TrialDates *period `json:"trial_dates"`
	} `json:"items"`
	CurrentBillingPeriod *period `json:"current_billing_period"`
	ScheduledChange      *struct {
		Action      string    `json:"action"`
		EffectiveAt time.Time `json:"effective_at"`
	} `json:"scheduled_change"`
}

type transactionData struct {
	ID             string         `json:"id"`
	Status         string         `json:"status"`
	SubscriptionID string         `json:"subscription_id"`
	CustomerID     string         `json:"customer_id"`
	CurrencyCode   string         `json:"currency_code"`
	CustomData     map[string]any `json:"custom_data"`
	BillingPeriod  *period        `json:"billing_period"`
	Details        struct {
		Totals struct {
			Total string `json:"total"`
			Tax   string `json:"tax"`
		} `json:"totals"`
	} `json:"details"`
}

type adjustmentData struct {
	ID             string `json:"id"`
	Action         string `json:"action"`
	Status         string `json:"status"`
	TransactionID  string `json:"transaction_id"`
	SubscriptionID string `json:"subscription_id"`
	CustomerID     string `json:"customer_id"`
	CurrencyCode   string `json:"currency_code"`
	Totals         struct {
		Total string `json:"total"`
		Tax   string `json:"tax"`
	} `json:"totals"`
}

func decodeEvent(payload []byte) (*billing.WebhookEvent, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, errors.Join(billing.ErrInvalidRequest, fmt.Errorf("failed to parse paddle webhook: %w", err))
	}
	ev := &billing.WebhookEvent{
		ID:                env.EventID,
		Type:              billing.EventUnknown,
		ProviderEventType: env.EventType,
		OccurredAt:        env.OccurredAt,
	}

	var err error
	switch {
	case strings.HasPrefix(env.EventType, "subscription."):
		err = decodeSubscription(ev, env)
	case strings.HasPrefix(env.EventType, "transaction."):
		err = decodeTransaction(ev, env)
	case strings.HasPrefix(env.EventType, "adjustment."):
		err = decodeAdjustment(ev, env)
	}
	if err != nil {
		return nil, errors.Join(billing.ErrInvalidRequest, fmt.Errorf("failed to parse paddle %s: %w", env.EventType, err))
	}
	return ev, nil
}

func decodeSubscription(ev *billing.WebhookEvent, env envelope) error {
	var data subscriptionData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return err
	}

	switch env.EventType {
	case "subscription.created":
		ev.Type = billing.EventSubscriptionCreated
	case "subscription.activated", "subscription.trialing":
		ev.Type = billing.EventSubscriptionActivated
	case "subscription.updated", "subscription.resumed":
		ev.Type = billing.EventSubscriptionUpdated
	case "subscription.canceled":
		ev.Type = billing.EventSubscriptionCancelled
	case "subscription.past_due", "subscription.paused":
		ev.Type = billing.EventSubscriptionSuspended
	default:
		return nil
	}

	ev.ProviderSubID = data.ID
	ev.ProviderCustomerID = data.CustomerID
	ev.Status = mapStatus(data.Status)
	ev.SubscriptionID, ev.UserID = customIDs(data.CustomData)
	if len(data.Items) > 0 {
		ev.PriceID = data.Items[0].Price.ID
		if td := data.Items[0].TrialDates; td != nil && !td.EndsAt.IsZero() {
			ev.TrialEndsAt = &td.EndsAt
		}
	}
	if bp := data.CurrentBillingPeriod; bp != nil {
		ev.PeriodStart = &bp.StartsAt
		ev.PeriodEnd = &bp.EndsAt
	}
	if sc := data.ScheduledChange; sc != nil && sc.Action == "cancel" {
		ev.CancelAt = &sc.EffectiveAt
	}
	return nil
}

func decodeTransaction(ev *billing.WebhookEvent, env envelope) error {
	var data transactionData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return err
	}
	// One-off transactions are not subscription billing.
	if data.SubscriptionID == "" {
		return nil
	}

	switch env.EventType {
	case "transaction.completed":
		ev.Type = billing.EventPaymentCompleted
	case "transaction.payment_failed":
		ev.Type = billing.EventPaymentFailed
	default:
		return nil
	}

	ev.ProviderSubID = data.SubscriptionID
	ev.ProviderCustomerID = data.CustomerID
	ev.SubscriptionID, ev.UserID = customIDs(data.CustomData)
	if bp := data.BillingPeriod; bp != nil {
		ev.PeriodStart = &bp.StartsAt
		ev.PeriodEnd = &bp.EndsAt
	}
	if ev.Type == billing.EventPaymentCompleted {
		info, err := paymentInfo(data.ID, data.Details.Totals.Total, data.Details.Totals.Tax, data.CurrencyCode)
		if err != nil {
			return err
		}
		ev.Payment = info
	}
	return nil
}

func decodeAdjustment(ev *billing.WebhookEvent, env envelope) error {
	var data adjustmentData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return err
	}
	if data.Status != "approved" || data.SubscriptionID == "" {
		return nil
	}

	switch data.Action {
	case "refund":
		ev.Type = billing.EventPaymentRefunded
	case "chargeback", "chargeback_reverse":
		ev.Type = billing.EventPaymentReversed
	default:
		return nil
	}

	ev.ProviderSubID = data.SubscriptionID
	ev.ProviderCustomerID = data.CustomerID
	info, err := paymentInfo(data.ID, data.Totals.Total, data.Totals.Tax, data.CurrencyCode)
	if err != nil {
		return err
	}
	ev.Payment = info
	return nil
}

func mapStatus(s string) billing.SubscriptionStatus {
	switch s {
	case "active":
		return billing.StatusActive
	case "trialing":
		return billing.StatusTrialing
	case "past_due":
		return billing.StatusPaymentFailed
	case "canceled":
		return billing.StatusCancelled
	}
	return ""
}

func customIDs(data map[string]any) (subID, userID uuid.UUID) {
	if s, ok := data[customSubscriptionID].(string); ok {
		subID, _ = uuid.Parse(s)
	}
	if s, ok := data[customUserID].(string); ok {
		userID, _ = uuid.Parse(s)
	}
	return subID, userID
}

// paymentInfo converts Paddle's amounts, sent in the currency's minor unit,
// to decimal major units.
func paymentInfo(id, total, tax, code string) (*billing.PaymentInfo, error) {
	scale := int32(2)
	if unit, err := currency.ParseISO(code); err == nil {
		s, _ := currency.Standard.Rounding(unit)
		scale = int32(s)
	}
	amount, err := minorUnits(total, scale)
	if err != nil {
		return nil, err
	}
	taxAmount, err := minorUnits(tax, scale)
	if err != nil {
		return nil, err
	}
	return &billing.PaymentInfo{ID: id, Amount: amount, Tax: taxAmount, Currency: strings.ToUpper(code)}, nil
}

func minorUnits(s string, scale int32) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return d.Shift(-scale), nil
}
