package billing_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkshelf/linkshelf/pkg/billing"
)

func TestFormatMoney(t *testing.T) {
	t.Parallel()

	assert.Contains(t, billing.FormatMoney(dec("9.99"), "usd"), "9.99")
	assert.Contains(t, billing.FormatMoney(dec("10"), "EUR"), "10.00")
	assert.True(t, len(billing.FormatMoney(dec("-5"), "USD")) > 0 && billing.FormatMoney(dec("-5"), "USD")[0] == '-')
	assert.Equal(t, "12.50 XYZ1", billing.FormatMoney(dec("12.5"), "XYZ1"))
}

func TestParseVersion(t *testing.T) {
	t.Parallel()

	v, err := billing.ParseVersion("1.10.3")
	require.NoError(t, err)
	assert.Equal(t, billing.Version{Major: 1, Minor: 10, Patch: 3}, v)
	assert.Equal(t, "1.10.4", v.NextPatch().String())
	assert.Equal(t, 1, v.Compare(billing.Version{Major: 1, Minor: 9, Patch: 99}))

	for _, bad := range []string{"", "1", "1.2", "1.2.3.4", "a.b.c", "1.-2.0", "1..0",
		"+1.0.0", "-0.1.0", "1.+2.3", "1. 2.3", "01.0.0", "1.0.0x", "١.0.0"} {
		_, err := billing.ParseVersion(bad)
		assert.ErrorIs(t, err, billing.ErrInvalidVersionLabel, bad)
	}
}

func TestMemoryEventLog(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	log := billing.NewMemoryEventLog(10, time.Hour)

	ok, err := log.Claim(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = log.Claim(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, log.Release(ctx, "evt_1"))
	ok, err = log.Claim(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, ok)
}
