package ratelimiter_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkshelf/linkshelf/pkg/ratelimiter"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock { return &clock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var cfg = ratelimiter.Config{Capacity: 3, RefillRate: 1, RefillInterval: time.Second}

func stores(t *testing.T) map[string]ratelimiter.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return map[string]ratelimiter.Store{
		"memory": ratelimiter.NewMemoryStore(0, time.Hour),
		"redis":  ratelimiter.NewRedisStore(client, "test:"),
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	store := ratelimiter.NewMemoryStore(0, 0)

	tests := []struct {
		name string
		cfg  ratelimiter.Config
	}{
		{"zero capacity", ratelimiter.Config{RefillRate: 1, RefillInterval: time.Second}},
		{"zero rate", ratelimiter.Config{Capacity: 1, RefillInterval: time.Second}},
		{"zero interval", ratelimiter.Config{Capacity: 1, RefillRate: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ratelimiter.New(store, tt.cfg)
			assert.ErrorIs(t, err, ratelimiter.ErrInvalidConfig)
		})
	}

	_, err := ratelimiter.New(nil, cfg)
	assert.ErrorIs(t, err, ratelimiter.ErrInvalidConfig)
}

func TestBucket(t *testing.T) {
	t.Parallel()

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			clk := newClock()
			b, err := ratelimiter.New(store, cfg, ratelimiter.WithClock(clk.Now))
			require.NoError(t, err)

			for i := range 3 {
				res, err := b.Allow(ctx, "user-1")
				require.NoError(t, err)
				assert.True(t, res.Allowed, "request %d", i)
				assert.Equal(t, 2-i, res.Remaining)
				assert.Equal(t, 3, res.Limit)
			}

			res, err := b.Allow(ctx, "user-1")
			require.NoError(t, err)
			assert.False(t, res.Allowed)
			assert.Equal(t, 0, res.Remaining, "a denied request takes nothing")
			assert.Equal(t, time.Second, res.RetryAfter(clk.Now()))

			other, err := b.Allow(ctx, "user-2")
			require.NoError(t, err)
			assert.True(t, other.Allowed, "buckets are per key")

			clk.Advance(1500 * time.Millisecond)
			res, err = b.Allow(ctx, "user-1")
			require.NoError(t, err)
			assert.True(t, res.Allowed)
			assert.Equal(t, 0, res.Remaining)

			clk.Advance(time.Hour)
			res, err = b.AllowN(ctx, "user-1", 3)
			require.NoError(t, err)
			assert.True(t, res.Allowed, "refill is capped at capacity")
			assert.Equal(t, 0, res.Remaining)

			require.NoError(t, b.Reset(ctx, "user-1"))
			res, err = b.Allow(ctx, "user-1")
			require.NoError(t, err)
			assert.Equal(t, 2, res.Remaining)
		})
	}
}

func TestBucket_InvalidInput(t *testing.T) {
	t.Parallel()
	b, err := ratelimiter.New(ratelimiter.NewMemoryStore(0, 0), cfg)
	require.NoError(t, err)

	_, err = b.Allow(context.Background(), "")
	assert.ErrorIs(t, err, ratelimiter.ErrEmptyKey)
	_, err = b.AllowN(context.Background(), "k", 0)
	assert.ErrorIs(t, err, ratelimiter.ErrInvalidTokenCount)
	_, err = b.AllowN(context.Background(), "k", 4)
	assert.ErrorIs(t, err, ratelimiter.ErrInvalidTokenCount)
}

func TestRedisStore_Concurrent(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	clk := newClock()
	b, err := ratelimiter.New(ratelimiter.NewRedisStore(client, ""),
		ratelimiter.Config{Capacity: 5, RefillRate: 1, RefillInterval: time.Minute}, ratelimiter.WithClock(clk.Now))
	require.NoError(t, err)

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := b.Allow(context.Background(), "shared")
			if assert.NoError(t, err) && res.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(5), allowed.Load())
	assert.True(t, mr.Exists(ratelimiter.DefaultRedisPrefix+"shared"))

	mr.Close()
	_, err = b.Allow(context.Background(), "shared")
	assert.ErrorIs(t, err, ratelimiter.ErrStoreUnavailable)
}

func TestMiddleware(t *testing.T) {
	t.Parallel()
	clk := newClock()
	b, err := ratelimiter.New(ratelimiter.NewMemoryStore(0, 0),
		ratelimiter.Config{Capacity: 1, RefillRate: 1, RefillInterval: 30 * time.Second}, ratelimiter.WithClock(clk.Now))
	require.NoError(t, err)

	key := func(r *http.Request) string { return r.Header.Get("X-Key") }
	h := ratelimiter.Middleware(b, key)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	call := func(k string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		if k != "" {
			req.Header.Set("X-Key", k)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := call("a")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	rec = call("a")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusNoContent, call("").Code, "empty key is not limited")
	assert.Equal(t, http.StatusNoContent, call("b").Code)
}

func TestMiddleware_StoreErrors(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	b, err := ratelimiter.New(ratelimiter.NewRedisStore(client, ""), cfg)
	require.NoError(t, err)
	mr.Close()

	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	key := func(*http.Request) string { return "k" }

	rec := httptest.NewRecorder()
	ratelimiter.Middleware(b, key)(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "fails open by default")

	rec = httptest.NewRecorder()
	ratelimiter.Middleware(b, key, ratelimiter.OnError(func(w http.ResponseWriter, _ *http.Request, err error) {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	}))(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
