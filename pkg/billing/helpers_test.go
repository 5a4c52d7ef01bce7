package billing_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/linkshelf/linkshelf/pkg/billing"
	"github.com/linkshelf/linkshelf/pkg/notifications"
)

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

// clock is a settable time source shared by everything under test.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock(t time.Time) *clock { return &clock{t: t} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) CreateCheckoutLink(ctx context.Context, req billing.CheckoutRequest) (*billing.CheckoutLink, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.CheckoutLink), args.Error(1)
}

func (m *mockProvider) GetCustomerPortalLink(ctx context.Context, sub *billing.Subscription) (*billing.PortalLink, error) {
	args := m.Called(ctx, sub)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.PortalLink), args.Error(1)
}

func (m *mockProvider) ChangePlan(ctx context.Context, req billing.ChangePlanRequest) error {
	return m.Called(ctx, req).Error(0)
}

func (m *mockProvider) CancelSubscription(ctx context.Context, providerSubID string) error {
	return m.Called(ctx, providerSubID).Error(0)
}

func (m *mockProvider) ResumeSubscription(ctx context.Context, providerSubID string) error {
	return m.Called(ctx, providerSubID).Error(0)
}

func (m *mockProvider) ParseWebhook(ctx context.Context, payload []byte, signature string) (*billing.WebhookEvent, error) {
	args := m.Called(ctx, payload, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.WebhookEvent), args.Error(1)
}

// jsonProvider decodes payloads straight into WebhookEvent and accepts only
// the signature "valid".
type jsonProvider struct {
	mockProvider
}

func (p *jsonProvider) ParseWebhook(_ context.Context, payload []byte, signature string) (*billing.WebhookEvent, error) {
	if signature != "valid" {
		return nil, billing.ErrWebhookVerificationFailed
	}
	var ev billing.WebhookEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// recordingNotifier keeps every notification and honours dedup keys.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []notifications.Notification
	keys map[string]bool
}

func (n *recordingNotifier) Send(_ context.Context, note notifications.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, note)
	return nil
}

func (n *recordingNotifier) SendOnce(_ context.Context, note notifications.Notification) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.keys == nil {
		n.keys = make(map[string]bool)
	}
	if n.keys[note.DedupKey] {
		return false, nil
	}
	n.keys[note.DedupKey] = true
	n.sent = append(n.sent, note)
	return true, nil
}

func (n *recordingNotifier) kinds() []notifications.Kind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notifications.Kind, 0, len(n.sent))
	for _, s := range n.sent {
		out = append(out, s.Kind)
	}
	return out
}

// fixture is a catalog with three plans: free, pro (with a 14 day trial) and
// team.
type fixture struct {
	clock   *clock
	store   *billing.MemoryStore
	catalog *billing.Catalog

	free, pro, team    *billing.Plan
	freeV, proV, teamV *billing.PlanVersion
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{clock: newClock(testNow), store: billing.NewMemoryStore()}
	f.catalog = billing.NewCatalog(f.store, billing.WithCatalogClock(f.clock.Now))

	f.free, f.freeV = f.plan(t, ctx, "Free", "free", 0, billing.Limits{MaxLists: 3, MaxURLsPerList: 50, MaxCollaborators: 0}, "0", "0", "")
	f.pro, f.proV = f.plan(t, ctx, "Pro", "pro", 14, billing.Limits{MaxLists: 50, MaxURLsPerList: 1000, MaxCollaborators: 5}, "10", "100", "pro")
	f.team, f.teamV = f.plan(t, ctx, "Team", "team", 0, billing.Limits{MaxLists: billing.Unlimited, MaxURLsPerList: billing.Unlimited, MaxCollaborators: 50}, "20", "200", "team")
	return f
}

func (f *fixture) plan(t *testing.T, ctx context.Context, name, slug string, trial int, limits billing.Limits, monthly, yearly, priceKey string) (*billing.Plan, *billing.PlanVersion) {
	t.Helper()
	p := &billing.Plan{Name: name, Slug: slug, Active: true, TrialDays: trial, Limits: limits}
	require.NoError(t, f.catalog.SavePlan(ctx, billing.SystemActor, p))

	attrs := billing.VersionAttributes{
		MonthlyPrice: dec(monthly),
		YearlyPrice:  dec(yearly),
		Active:       true,
	}
	if priceKey != "" {
		attrs.ProviderMonthlyPriceID = "pri_" + priceKey + "_monthly"
		attrs.ProviderYearlyPriceID = "pri_" + priceKey + "_yearly"
	}
	v, err := f.catalog.CreateVersion(ctx, billing.SystemActor, p.ID, attrs)
	require.NoError(t, err)
	return p, v
}

// subscribe stores a subscription for a fresh user.
func (f *fixture) subscribe(t *testing.T, v *billing.PlanVersion, status billing.SubscriptionStatus, mutate func(*billing.Subscription)) *billing.Subscription {
	t.Helper()
	now := f.clock.Now()
	sub := &billing.Subscription{
		ID:                    uuid.New(),
		UserID:                uuid.New(),
		PlanID:                v.PlanID,
		PlanVersionID:         v.ID,
		Status:                status,
		Interval:              billing.IntervalMonthly,
		CurrentPeriodStartsAt: ptr(now.AddDate(0, 0, -15)),
		CurrentPeriodEndsAt:   ptr(now.AddDate(0, 0, 15)),
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if mutate != nil {
		mutate(sub)
	}
	require.NoError(t, f.store.Create(context.Background(), sub))
	return sub
}

func ptr[T any](v T) *T { return &v }
