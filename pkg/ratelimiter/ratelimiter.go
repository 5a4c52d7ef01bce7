package ratelimiter

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidConfig     = errors.New("invalid rate limiter configuration")
	ErrInvalidTokenCount = errors.New("invalid token count")
	ErrEmptyKey          = errors.New("rate limit key is required")
	ErrStoreUnavailable  = errors.New("rate limit store unavailable")
)

type Config struct {
	Capacity       int           `env:"RATE_LIMIT_CAPACITY" envDefault:"10"`
	RefillRate     int           `env:"RATE_LIMIT_REFILL_RATE" envDefault:"1"`
	RefillInterval time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL" envDefault:"6s"`
}

func (c Config) validate() error {
	switch {
	case c.Capacity <= 0:
		return fmt.Errorf("%w: capacity must be positive, got %d", ErrInvalidConfig, c.Capacity)
	case c.RefillRate <= 0:
		return fmt.Errorf("%w: refill rate must be positive, got %d", ErrInvalidConfig, c.RefillRate)
	case c.RefillInterval <= 0:
		return fmt.Errorf("%w: refill interval must be positive, got %v", ErrInvalidConfig, c.RefillInterval)
	}
	return nil
}

// fullAfter is how long an empty bucket takes to refill completely.
func (c Config) fullAfter() time.Duration {
	steps := (c.Capacity + c.RefillRate - 1) / c.RefillRate
	return time.Duration(steps) * c.RefillInterval
}

// Result describes the bucket after a request.
type Result struct {
	Limit     int
	Remaining int
	Allowed   bool
	// ResetAt is when the next tokens are added.
	ResetAt time.Time
}

// RetryAfter is zero for allowed requests.
func (r Result) RetryAfter(now time.Time) time.Duration {
	if r.Allowed {
		return 0
	}
	return max(r.ResetAt.Sub(now), 0)
}

// Store keeps bucket state. Take refills the bucket for now, then removes n
// tokens if enough are left.
type Store interface {
	Take(ctx context.Context, key string, n int, cfg Config, now time.Time) (Result, error)
	Reset(ctx context.Context, key string) error
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

type Bucket struct {
	store Store
	cfg   Config
	now   func() time.Time
}

type Option func(*Bucket)

func WithClock(now func() time.Time) Option {
	return func(b *Bucket) { b.now = now }
}

func New(store Store, cfg Config, opts ...Option) (*Bucket, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidConfig)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	b := &Bucket{store: store, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

func (b *Bucket) Allow(ctx context.Context, key string) (Result, error) {
	return b.AllowN(ctx, key, 1)
}

func (b *Bucket) AllowN(ctx context.Context, key string, n int) (Result, error) {
	if key == "" {
		return Result{}, ErrEmptyKey
	}
	if n <= 0 || n > b.cfg.Capacity {
		return Result{}, fmt.Errorf("%w: %d", ErrInvalidTokenCount, n)
	}
	return b.store.Take(ctx, key, n, b.cfg, b.now())
}

func (b *Bucket) Reset(ctx context.Context, key string) error {
	return b.store.Reset(ctx, key)
}

// Now is the clock the bucket measures against.
func (b *Bucket) Now() time.Time { return b.now() }

// state is the persisted part of a bucket.
type state struct {
	tokens int
	last   time.Time
}

// take applies refill and consumption to s in place.
func take(s *state, n int, cfg Config, now time.Time) Result {
	if steps := int(now.Sub(s.last) / cfg.RefillInterval); steps > 0 {
		s.tokens = min(cfg.Capacity, s.tokens+min(steps, cfg.Capacity)*cfg.RefillRate)
		s.last = s.last.Add(time.Duration(steps) * cfg.RefillInterval)
	}
	if s.tokens >= cfg.Capacity {
		s.last = now
	}

	res := Result{Limit: cfg.Capacity, ResetAt: s.last.Add(cfg.RefillInterval)}
	if s.tokens >= n {
		s.tokens -= n
		res.Allowed = true
	}
	res.Remaining = s.tokens
	return res
}
