package billing_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkshelf/linkshelf/pkg/billing"
)

func version(monthly, yearly, currency string) *billing.PlanVersion {
	return &billing.PlanVersion{MonthlyPrice: dec(monthly), YearlyPrice: dec(yearly), Currency: currency}
}

func TestProrationCalculator_Calculate(t *testing.T) {
	t.Parallel()

	calc := billing.NewProrationCalculator(func() time.Time { return testNow })

	t.Run("upgrade over a full monthly cycle", func(t *testing.T) {
		t.Parallel()
		p, err := calc.Calculate(version("10", "100", "USD"), version("20", "200", "USD"), billing.IntervalMonthly)
		require.NoError(t, err)

		assert.True(t, p.RefundAmount.Equal(dec("10.00")), p.RefundAmount.String())
		assert.True(t, p.ChargeAmount.Equal(dec("20.00")), p.ChargeAmount.String())
		assert.True(t, p.NetAmount.Equal(dec("10.00")), p.NetAmount.String())
		assert.Equal(t, 30, p.RemainingDays)
		assert.True(t, p.CurrentDailyRate.Equal(dec("0.3333")), p.CurrentDailyRate.String())
		assert.True(t, p.NewDailyRate.Equal(dec("0.6667")), p.NewDailyRate.String())
		assert.Equal(t, testNow, p.EffectiveDate)
		assert.Equal(t, testNow.AddDate(0, 0, 30), p.NextBillingDate)
	})

	t.Run("from free plan", func(t *testing.T) {
		t.Parallel()
		p, err := calc.Calculate(nil, version("9.99", "99", "USD"), billing.IntervalMonthly)
		require.NoError(t, err)
		assert.True(t, p.RefundAmount.IsZero())
		assert.True(t, p.ChargeAmount.Equal(dec("9.99")))
		assert.True(t, p.NetAmount.Equal(dec("9.99")))
	})

	t.Run("downgrade yields a credit", func(t *testing.T) {
		t.Parallel()
		p, err := calc.Calculate(version("20", "200", "USD"), version("10", "100", "USD"), billing.IntervalYearly)
		require.NoError(t, err)
		assert.Equal(t, 365, p.RemainingDays)
		assert.True(t, p.NetAmount.Equal(dec("-100")), p.NetAmount.String())
		assert.Equal(t, testNow.AddDate(0, 0, 365), p.NextBillingDate)
	})

	t.Run("currency mismatch", func(t *testing.T) {
		t.Parallel()
		_, err := calc.Calculate(version("10", "100", "EUR"), version("20", "200", "USD"), billing.IntervalMonthly)
		require.ErrorIs(t, err, billing.ErrCurrencyMismatch)
	})

	t.Run("free current plan ignores currency", func(t *testing.T) {
		t.Parallel()
		_, err := calc.Calculate(version("0", "0", "EUR"), version("20", "200", "USD"), billing.IntervalMonthly)
		require.NoError(t, err)
	})

	t.Run("invalid interval", func(t *testing.T) {
		t.Parallel()
		_, err := calc.Calculate(nil, version("1", "1", "USD"), billing.BillingInterval("weekly"))
		require.ErrorIs(t, err, billing.ErrInvalidInterval)
	})

	t.Run("negative price", func(t *testing.T) {
		t.Parallel()
		_, err := calc.Calculate(nil, version("-1", "1", "USD"), billing.IntervalMonthly)
		require.ErrorIs(t, err, billing.ErrNegativePrice)
	})

	t.Run("missing target", func(t *testing.T) {
		t.Parallel()
		_, err := calc.Calculate(nil, nil, billing.IntervalMonthly)
		require.ErrorIs(t, err, billing.ErrPlanVersionNotFound)
	})
}

func TestProrationCalculator_CalculateWithin(t *testing.T) {
	t.Parallel()

	calc := billing.NewProrationCalculator(func() time.Time { return testNow })

	t.Run("half a monthly period left", func(t *testing.T) {
		t.Parallel()
		end := testNow.AddDate(0, 0, 15)
		p, err := calc.CalculateWithin(version("10", "100", "USD"), version("20", "200", "USD"), billing.IntervalMonthly, end)
		require.NoError(t, err)
		assert.Equal(t, 15, p.RemainingDays)
		assert.True(t, p.RefundAmount.Equal(dec("5")), p.RefundAmount.String())
		assert.True(t, p.ChargeAmount.Equal(dec("10")), p.ChargeAmount.String())
		assert.True(t, p.NetAmount.Equal(dec("5")), p.NetAmount.String())
		assert.Equal(t, end, p.NextBillingDate)
	})

	t.Run("yearly amounts round to cents", func(t *testing.T) {
		t.Parallel()
		end := testNow.AddDate(0, 0, 100)
		p, err := calc.CalculateWithin(version("10", "120", "USD"), version("20", "240", "USD"), billing.IntervalYearly, end)
		require.NoError(t, err)
		assert.True(t, p.RefundAmount.Equal(dec("32.88")), p.RefundAmount.String())
		assert.True(t, p.ChargeAmount.Equal(dec("65.75")), p.ChargeAmount.String())
		assert.True(t, p.NetAmount.Equal(dec("32.87")), p.NetAmount.String())
	})

	t.Run("half cent rounds away from zero", func(t *testing.T) {
		t.Parallel()
		p, err := calc.CalculateWithin(nil, version("0.15", "1", "USD"), billing.IntervalMonthly, testNow.Add(24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 1, p.RemainingDays)
		assert.True(t, p.ChargeAmount.Equal(dec("0.01")), p.ChargeAmount.String())
	})

	t.Run("partial day counts as a day", func(t *testing.T) {
		t.Parallel()
		p, err := calc.CalculateWithin(nil, version("30", "1", "USD"), billing.IntervalMonthly, testNow.Add(25*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 2, p.RemainingDays)
		assert.True(t, p.ChargeAmount.Equal(dec("2")), p.ChargeAmount.String())
	})

	t.Run("period already over", func(t *testing.T) {
		t.Parallel()
		p, err := calc.CalculateWithin(version("10", "1", "USD"), version("20", "1", "USD"), billing.IntervalMonthly, testNow.Add(-time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 0, p.RemainingDays)
		assert.True(t, p.NetAmount.IsZero())
	})

	t.Run("clamped to the cycle", func(t *testing.T) {
		t.Parallel()
		p, err := calc.CalculateWithin(nil, version("30", "1", "USD"), billing.IntervalMonthly, testNow.AddDate(0, 0, 45))
		require.NoError(t, err)
		assert.Equal(t, 30, p.RemainingDays)
		assert.True(t, p.ChargeAmount.Equal(dec("30")))
	})
}

func TestProrationCalculator_Deferred(t *testing.T) {
	t.Parallel()

	calc := billing.NewProrationCalculator(func() time.Time { return testNow })
	trialEnd := testNow.AddDate(0, 0, 7)

	p := calc.Deferred(version("20", "200", "USD"), billing.IntervalMonthly, trialEnd)
	assert.True(t, p.NetAmount.IsZero())
	assert.True(t, p.ChargeAmount.IsZero())
	assert.Equal(t, 7, p.RemainingDays)
	assert.Equal(t, trialEnd, p.NextBillingDate)
	assert.Equal(t, "USD", p.Currency)
}
