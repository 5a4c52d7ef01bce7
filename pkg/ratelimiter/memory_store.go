package ratelimiter

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultMemoryKeys bounds how many buckets a MemoryStore keeps.
const DefaultMemoryKeys = 10_000

// MemoryStore keeps buckets in a size bounded LRU. Idle buckets expire once
// they would have refilled anyway.
type MemoryStore struct {
	mu      sync.Mutex
	buckets *expirable.LRU[string, state]
	ttl     time.Duration
}

// NewMemoryStore keeps at most size buckets, each for at most ttl after its
// last use. A zero size uses DefaultMemoryKeys; a zero ttl keeps buckets
// until evicted by size.
func NewMemoryStore(size int, ttl time.Duration) *MemoryStore {
	if size <= 0 {
		size = DefaultMemoryKeys
	}
	return &MemoryStore{buckets: expirable.NewLRU[string, state](size, nil, ttl), ttl: ttl}
}

func (m *MemoryStore) Take(_ context.Context, key string, n int, cfg Config, now time.Time) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.buckets.Get(key)
	if !ok {
		s = state{tokens: cfg.Capacity, last: now}
	}
	res := take(&s, n, cfg, now)
	m.buckets.Add(key, s)
	return res, nil
}

func (m *MemoryStore) Reset(_ context.Context, key string) error {
	m.buckets.Remove(key)
	return nil
}
