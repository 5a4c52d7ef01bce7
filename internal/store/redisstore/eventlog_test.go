package redisstore_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkshelf/linkshelf/internal/store/redisstore"
	"github.com/linkshelf/linkshelf/pkg/billing"
)

var _ billing.EventLog = (*redisstore.EventLog)(nil)

func setup(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestEventLog_Claim(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mr, client := setup(t)
	log := redisstore.NewEventLog(client, redisstore.WithPrefix("test:"), redisstore.WithTTL(time.Hour))

	ok, err := log.Claim(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = log.Claim(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, ok, "second claim of the same event must fail")

	assert.True(t, mr.Exists("test:evt_1"))
	assert.Equal(t, time.Hour, mr.TTL("test:evt_1"))

	_, err = log.Claim(ctx, "")
	assert.ErrorIs(t, err, redisstore.ErrEmptyEventID)
}

func TestEventLog_Release(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, client := setup(t)
	log := redisstore.NewEventLog(client)

	ok, err := log.Claim(ctx, "evt_2")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, log.Release(ctx, "evt_2"))

	ok, err = log.Claim(ctx, "evt_2")
	require.NoError(t, err)
	assert.True(t, ok, "released event can be claimed again")
}

func TestEventLog_Expiry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mr, client := setup(t)
	log := redisstore.NewEventLog(client, redisstore.WithTTL(time.Minute))

	ok, err := log.Claim(ctx, "evt_3")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Minute)

	ok, err = log.Claim(ctx, "evt_3")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEventLog_ConcurrentClaims(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, client := setup(t)
	log := redisstore.NewEventLog(client)

	var (
		wg     sync.WaitGroup
		claims atomic.Int32
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, err := log.Claim(ctx, "evt_race"); err == nil && ok {
				claims.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), claims.Load())
}

func TestEventLog_RedisDown(t *testing.T) {
	t.Parallel()
	mr, client := setup(t)
	log := redisstore.NewEventLog(client)
	mr.Close()

	_, err := log.Claim(context.Background(), "evt_4")
	assert.Error(t, err)
}
