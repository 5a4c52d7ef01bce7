package reports

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/linkshelf/linkshelf/pkg/billing"
)

// Sources is the read side of billing the summarizer needs. *billing.Catalog
// and the billing stores satisfy it together.
type Sources interface {
	List(ctx context.Context, statuses ...billing.SubscriptionStatus) ([]billing.Subscription, error)
	ListPayments(ctx context.Context, from, to time.Time) ([]billing.Payment, error)
	GetVersion(ctx context.Context, id uuid.UUID) (*billing.PlanVersion, error)
}

type sources struct {
	subs     billing.SubscriptionStore
	payments billing.PaymentStore
	catalog  *billing.Catalog
}

func (s sources) List(ctx context.Context, statuses ...billing.SubscriptionStatus) ([]billing.Subscription, error) {
	return s.subs.List(ctx, statuses...)
}

func (s sources) ListPayments(ctx context.Context, from, to time.Time) ([]billing.Payment, error) {
	return s.payments.ListPayments(ctx, from, to)
}

func (s sources) GetVersion(ctx context.Context, id uuid.UUID) (*billing.PlanVersion, error) {
	return s.catalog.GetVersion(ctx, id)
}

// NewSources combines the billing stores and catalog.
func NewSources(subs billing.SubscriptionStore, payments billing.PaymentStore, catalog *billing.Catalog) Sources {
	return sources{subs: subs, payments: payments, catalog: catalog}
}

// Summary is a point-in-time revenue snapshot plus the activity inside
// [From, To).
type Summary struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`

	Active           int `json:"active"`
	Trialing         int `json:"trialing"`
	PaymentFailed    int `json:"payment_failed"`
	CancelledPending int `json:"cancelled_pending"`
	New              int `json:"new"`
	Cancelled        int `json:"cancelled"`

	Currencies []CurrencyTotals `json:"currencies"`
}

// CurrencyTotals groups amounts by ISO currency code.
type CurrencyTotals struct {
	Currency string `json:"currency"`
	// MRR counts active subscriptions, yearly prices spread over 12 months.
	MRR     decimal.Decimal `json:"mrr"`
	Gross   decimal.Decimal `json:"gross"`
	Taxes   decimal.Decimal `json:"taxes"`
	Refunds decimal.Decimal `json:"refunds"`
	Net     decimal.Decimal `json:"net"`
}

var twelve = decimal.NewFromInt(12)

// Summarize builds the summary for [from, to).
func Summarize(ctx context.Context, src Sources, from, to time.Time) (*Summary, error) {
	subs, err := src.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	payments, err := src.ListPayments(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}

	sum := &Summary{From: from, To: to}
	totals := map[string]*CurrencyTotals{}
	bucket := func(code string) *CurrencyTotals {
		t, ok := totals[code]
		if !ok {
			t = &CurrencyTotals{Currency: code}
			totals[code] = t
		}
		return t
	}

	versions := map[uuid.UUID]*billing.PlanVersion{}
	for _, s := range subs {
		switch s.Status {
		case billing.StatusActive:
			sum.Active++
		case billing.StatusTrialing:
			sum.Trialing++
		case billing.StatusPaymentFailed:
			sum.PaymentFailed++
		case billing.StatusCancelledPending:
			sum.CancelledPending++
		}
		if within(s.CreatedAt, from, to) {
			sum.New++
		}
		if s.CancelledAt != nil && within(*s.CancelledAt, from, to) {
			sum.Cancelled++
		}

		if s.Status != billing.StatusActive {
			continue
		}
		v, ok := versions[s.PlanVersionID]
		if !ok {
			v, err = src.GetVersion(ctx, s.PlanVersionID)
			if err != nil {
				return nil, fmt.Errorf("failed to load plan version %s: %w", s.PlanVersionID, err)
			}
			versions[s.PlanVersionID] = v
		}
		price := v.Price(s.Interval)
		if price.IsZero() {
			continue
		}
		if s.Interval == billing.IntervalYearly {
			price = price.Div(twelve)
		}
		t := bucket(v.Currency)
		t.MRR = t.MRR.Add(price)
	}

	for _, p := range payments {
		t := bucket(p.Currency)
		switch p.Kind {
		case billing.PaymentCharge:
			t.Gross = t.Gross.Add(p.Amount)
			t.Taxes = t.Taxes.Add(p.Tax)
		case billing.PaymentRefund, billing.PaymentReversal:
			t.Refunds = t.Refunds.Add(p.Amount)
			t.Taxes = t.Taxes.Sub(p.Tax)
		}
	}

	for _, t := range totals {
		t.MRR = t.MRR.Round(2)
		t.Net = t.Gross.Sub(t.Refunds)
		sum.Currencies = append(sum.Currencies, *t)
	}
	slices.SortFunc(sum.Currencies, func(a, b CurrencyTotals) int { return cmp.Compare(a.Currency, b.Currency) })
	return sum, nil
}

func within(t, from, to time.Time) bool {
	return !t.Before(from) && t.Before(to)
}
