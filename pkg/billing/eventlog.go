package billing

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// EventLog remembers which webhook events were handled. Claim is atomic: of
// several concurrent claims for the same id exactly one returns true.
type EventLog interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	// Release forgets a claim so a redelivered event is processed again.
	Release(ctx context.Context, eventID string) error
}

// MemoryEventLog keeps the most recent event ids for ttl.
type MemoryEventLog struct {
	mu   sync.Mutex
	seen *expirable.LRU[string, struct{}]
}

func NewMemoryEventLog(size int, ttl time.Duration) *MemoryEventLog {
	return &MemoryEventLog{seen: expirable.NewLRU[string, struct{}](size, nil, ttl)}
}

func (l *MemoryEventLog) Claim(_ context.Context, eventID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.seen.Contains(eventID) {
		return false, nil
	}
	l.seen.Add(eventID, struct{}{})
	return true, nil
}

func (l *MemoryEventLog) Release(_ context.Context, eventID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen.Remove(eventID)
	return nil
}
