package signed_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkshelf/linkshelf/pkg/billing"
	"github.com/linkshelf/linkshelf/pkg/billing/signed"
	"github.com/linkshelf/linkshelf/pkg/webhook"
)

const secret = "whsec_test"

var now = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func newProvider(t *testing.T) *signed.Provider {
	t.Helper()
	p, err := signed.New(signed.Config{
		Secret:    secret,
		BaseURL:   "https://billing.example.com/mock/",
		Tolerance: 5 * time.Minute,
	}, signed.WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	return p
}

func encode(t *testing.T, ev signed.Event) ([]byte, string) {
	t.Helper()
	payload, err := json.Marshal(ev)
	require.NoError(t, err)
	sig, err := webhook.Sign(secret, payload, now)
	require.NoError(t, err)
	return payload, sig.String()
}

func TestNew(t *testing.T) {
	t.Parallel()

	_, err := signed.New(signed.Config{BaseURL: "https://x.test"})
	assert.ErrorIs(t, err, signed.ErrMissingSecret)
	_, err = signed.New(signed.Config{Secret: "s", BaseURL: "not a url"})
	assert.ErrorIs(t, err, signed.ErrInvalidBaseURL)

	assert.Equal(t, "signed", newProvider(t).Name())
}

func TestProvider_Links(t *testing.T) {
	t.Parallel()
	p := newProvider(t)
	ctx := context.Background()

	subID, userID := uuid.New(), uuid.New()
	link, err := p.CreateCheckoutLink(ctx, billing.CheckoutRequest{
		PriceID:        "pri_pro_monthly",
		SubscriptionID: subID,
		UserID:         userID,
		SuccessURL:     "https://app.test/ok",
	})
	require.NoError(t, err)

	u, err := url.Parse(link.URL)
	require.NoError(t, err)
	assert.Equal(t, "/mock/checkout", u.Path)
	assert.Equal(t, "pri_pro_monthly", u.Query().Get("price"))
	assert.Equal(t, subID.String(), u.Query().Get("subscription"))
	assert.Equal(t, "https://app.test/ok", u.Query().Get("success_url"))
	assert.Equal(t, now.Add(24*time.Hour), link.ExpiresAt)

	_, err = p.CreateCheckoutLink(ctx, billing.CheckoutRequest{})
	assert.ErrorIs(t, err, billing.ErrMissingPriceID)

	portal, err := p.GetCustomerPortalLink(ctx, &billing.Subscription{ProviderCustomerID: "cus_1"})
	require.NoError(t, err)
	assert.Equal(t, "https://billing.example.com/mock/portal?customer=cus_1", portal.URL)

	_, err = p.GetCustomerPortalLink(ctx, &billing.Subscription{})
	assert.ErrorIs(t, err, billing.ErrMissingProviderCustomerID)
}

func TestProvider_SubscriptionOperations(t *testing.T) {
	t.Parallel()
	p := newProvider(t)
	ctx := context.Background()

	assert.NoError(t, p.ChangePlan(ctx, billing.ChangePlanRequest{ProviderSubID: "sub_1", PriceID: "pri_1"}))
	assert.ErrorIs(t, p.ChangePlan(ctx, billing.ChangePlanRequest{PriceID: "pri_1"}), billing.ErrCheckoutRequired)
	assert.ErrorIs(t, p.ChangePlan(ctx, billing.ChangePlanRequest{ProviderSubID: "sub_1"}), billing.ErrMissingPriceID)
	assert.NoError(t, p.CancelSubscription(ctx, "sub_1"))
	assert.ErrorIs(t, p.CancelSubscription(ctx, ""), billing.ErrCheckoutRequired)
	assert.NoError(t, p.ResumeSubscription(ctx, "sub_1"))
	assert.ErrorIs(t, p.ResumeSubscription(ctx, ""), billing.ErrCheckoutRequired)
}

func TestProvider_ParseWebhook_Subscription(t *testing.T) {
	t.Parallel()
	p := newProvider(t)

	subID, userID := uuid.New(), uuid.New()
	start, end := now, now.AddDate(0, 1, 0)
	payload, sig := encode(t, signed.Event{
		ID:         "evt_1",
		Type:       "subscription.activated",
		OccurredAt: now,
		Data: signed.EventData{
			ProviderSubscriptionID: "sub_1",
			ProviderCustomerID:     "cus_1",
			SubscriptionID:         subID,
			UserID:                 userID,
			Status:                 "active",
			PriceID:                "pri_pro_monthly",
			PeriodStart:            &start,
			PeriodEnd:              &end,
		},
	})

	ev, err := p.ParseWebhook(context.Background(), payload, sig)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", ev.ID)
	assert.Equal(t, billing.EventSubscriptionActivated, ev.Type)
	assert.Equal(t, billing.StatusActive, ev.Status)
	assert.Equal(t, "sub_1", ev.ProviderSubID)
	assert.Equal(t, subID, ev.SubscriptionID)
	assert.Equal(t, userID, ev.UserID)
	require.NotNil(t, ev.PeriodEnd)
	assert.True(t, end.Equal(*ev.PeriodEnd))
	assert.Nil(t, ev.Payment)
}

func TestProvider_ParseWebhook_Payment(t *testing.T) {
	t.Parallel()
	p := newProvider(t)

	payload, sig := encode(t, signed.Event{
		ID:   "evt_2",
		Type: "payment.completed",
		Data: signed.EventData{
			ProviderSubscriptionID: "sub_1",
			Payment: &signed.Payment{
				ID:       "txn_1",
				Amount:   decimal.RequireFromString("10.99"),
				Tax:      decimal.RequireFromString("1.00"),
				Currency: "usd",
			},
		},
	})

	ev, err := p.ParseWebhook(context.Background(), payload, sig)
	require.NoError(t, err)
	require.NotNil(t, ev.Payment)
	assert.Equal(t, "txn_1", ev.Payment.ID)
	assert.True(t, ev.Payment.Amount.Equal(decimal.RequireFromString("10.99")))
	assert.Equal(t, "USD", ev.Payment.Currency)
}

func TestProvider_ParseWebhook_UnknownType(t *testing.T) {
	t.Parallel()
	p := newProvider(t)

	payload, sig := encode(t, signed.Event{ID: "evt_3", Type: "invoice.drafted"})
	ev, err := p.ParseWebhook(context.Background(), payload, sig)
	require.NoError(t, err)
	assert.Equal(t, billing.EventUnknown, ev.Type)
	assert.Equal(t, "invoice.drafted", ev.ProviderEventType)
}

func TestProvider_ParseWebhook_Rejects(t *testing.T) {
	t.Parallel()
	p := newProvider(t)
	ctx := context.Background()

	payload, sig := encode(t, signed.Event{ID: "evt_4", Type: "subscription.updated"})

	t.Run("missing signature", func(t *testing.T) {
		t.Parallel()
		_, err := p.ParseWebhook(ctx, payload, "")
		assert.ErrorIs(t, err, billing.ErrWebhookVerificationFailed)
	})

	t.Run("tampered payload", func(t *testing.T) {
		t.Parallel()
		_, err := p.ParseWebhook(ctx, append([]byte(nil), []byte(`{"id":"evt_5"}`)...), sig)
		assert.ErrorIs(t, err, billing.ErrWebhookVerificationFailed)
	})

	t.Run("stale signature", func(t *testing.T) {
		t.Parallel()
		old, err := webhook.Sign(secret, payload, now.Add(-time.Hour))
		require.NoError(t, err)
		_, err = p.ParseWebhook(ctx, payload, old.String())
		assert.ErrorIs(t, err, billing.ErrWebhookVerificationFailed)
		assert.ErrorIs(t, err, webhook.ErrSignatureExpired)
	})

	t.Run("invalid status", func(t *testing.T) {
		t.Parallel()
		body, s := encode(t, signed.Event{ID: "evt_6", Type: "subscription.updated", Data: signed.EventData{Status: "zombie"}})
		_, err := p.ParseWebhook(ctx, body, s)
		assert.ErrorIs(t, err, billing.ErrInvalidRequest)
	})

	t.Run("missing id", func(t *testing.T) {
		t.Parallel()
		body, s := encode(t, signed.Event{Type: "subscription.updated"})
		_, err := p.ParseWebhook(ctx, body, s)
		assert.ErrorIs(t, err, billing.ErrInvalidRequest)
	})
}

func TestProvider_SignatureFromHeader(t *testing.T) {
	t.Parallel()
	p := newProvider(t)

	payload, _ := encode(t, signed.Event{ID: "evt_7", Type: "subscription.updated"})
	sig, err := webhook.Sign(secret, payload, now)
	require.NoError(t, err)

	h := http.Header{}
	sig.Apply(h)
	packed := p.SignatureFromHeader(h)
	assert.Equal(t, sig.String(), packed)

	_, err = p.ParseWebhook(context.Background(), payload, packed)
	assert.NoError(t, err)

	assert.Empty(t, p.SignatureFromHeader(http.Header{}))
}
