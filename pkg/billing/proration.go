package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// Proration is the cost breakdown of moving from one plan version to another.
// Amounts are rounded to cents, half away from zero. A negative NetAmount is
// a credit owed to the subscriber.
type Proration struct {
	Interval         BillingInterval `json:"interval"`
	Currency         string          `json:"currency"`
	CurrentDailyRate decimal.Decimal `json:"current_daily_rate"`
	NewDailyRate     decimal.Decimal `json:"new_daily_rate"`
	RefundAmount     decimal.Decimal `json:"refund_amount"`
	ChargeAmount     decimal.Decimal `json:"charge_amount"`
	NetAmount        decimal.Decimal `json:"net_amount"`
	RemainingDays    int             `json:"remaining_days"`
	EffectiveDate    time.Time       `json:"effective_date"`
	NextBillingDate  time.Time       `json:"next_billing_date"`
}

// ProrationCalculator computes plan switch costs with a fixed 30 or 365 day
// cycle.
type ProrationCalculator struct {
	now func() time.Time
}

func NewProrationCalculator(now func() time.Time) *ProrationCalculator {
	if now == nil {
		now = time.Now
	}
	return &ProrationCalculator{now: now}
}

// Calculate prices the switch as if a whole cycle remained: the refund is the
// full price of current and the charge the full price of next. current may be
// nil for a subscriber without a paid version.
func (c *ProrationCalculator) Calculate(current, next *PlanVersion, interval BillingInterval) (Proration, error) {
	now := c.now()
	return c.calculate(current, next, interval, interval.DaysInCycle(), now, interval.Advance(now))
}

// CalculateWithin prices the switch for the days actually left until
// periodEnd. The next billing date stays at periodEnd.
func (c *ProrationCalculator) CalculateWithin(current, next *PlanVersion, interval BillingInterval, periodEnd time.Time) (Proration, error) {
	now := c.now()
	remaining := min(max(wholeDaysUntil(now, periodEnd), 0), interval.DaysInCycle())
	return c.calculate(current, next, interval, remaining, now, periodEnd)
}

// Deferred returns a zero-cost proration for switches that take effect before
// anything is billed, such as during a trial.
func (c *ProrationCalculator) Deferred(next *PlanVersion, interval BillingInterval, billingStarts time.Time) Proration {
	now := c.now()
	return Proration{
		Interval:        interval,
		Currency:        next.Currency,
		NewDailyRate:    dailyRate(next.Price(interval), interval),
		RemainingDays:   max(wholeDaysUntil(now, billingStarts), 0),
		EffectiveDate:   now,
		NextBillingDate: billingStarts,
	}
}

func (c *ProrationCalculator) calculate(current, next *PlanVersion, interval BillingInterval, remaining int, now, nextBilling time.Time) (Proration, error) {
	if !interval.Valid() {
		return Proration{}, ErrInvalidInterval
	}
	if next == nil {
		return Proration{}, ErrPlanVersionNotFound
	}

	currentPrice := decimal.Zero
	if current != nil {
		if current.Currency != next.Currency && !current.Price(interval).IsZero() {
			return Proration{}, ErrCurrencyMismatch
		}
		currentPrice = current.Price(interval)
	}
	nextPrice := next.Price(interval)
	if currentPrice.IsNegative() || nextPrice.IsNegative() {
		return Proration{}, ErrNegativePrice
	}

	days := decimal.NewFromInt(int64(interval.DaysInCycle()))
	left := decimal.NewFromInt(int64(remaining))

	refund := currentPrice.Mul(left).Div(days).Round(2)
	charge := nextPrice.Mul(left).Div(days).Round(2)

	return Proration{
		Interval:         interval,
		Currency:         next.Currency,
		CurrentDailyRate: dailyRate(currentPrice, interval),
		NewDailyRate:     dailyRate(nextPrice, interval),
		RefundAmount:     refund,
		ChargeAmount:     charge,
		NetAmount:        charge.Sub(refund),
		RemainingDays:    remaining,
		EffectiveDate:    now,
		NextBillingDate:  nextBilling,
	}, nil
}

// dailyRate is the per-day price, kept to four decimals for display.
func dailyRate(price decimal.Decimal, interval BillingInterval) decimal.Decimal {
	return price.Div(decimal.NewFromInt(int64(interval.DaysInCycle()))).Round(4)
}

// wholeDaysUntil counts started days between now and t.
func wholeDaysUntil(now, t time.Time) int {
	d := t.Sub(now)
	if d <= 0 {
		return 0
	}
	const day = 24 * time.Hour
	return int((d + day - 1) / day)
}
