package notifications

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"
)

// Storage persists notifications.
//
// Create must return ErrDuplicateNotification when a notification with the
// same non-empty DedupKey already exists.
type Storage interface {
	Create(ctx context.Context, n Notification) error
	List(ctx context.Context, userID string, opts ListOptions) ([]Notification, error)
	MarkRead(ctx context.Context, userID string, at time.Time, ids ...string) error
	CountUnread(ctx context.Context, userID string) (int, error)
}

type ListOptions struct {
	Limit      int
	Offset     int
	OnlyUnread bool
	Kinds      []Kind
}

// MemoryStorage is an in-process Storage.
type MemoryStorage struct {
	mu     sync.RWMutex
	byUser map[string][]Notification
	keys   map[string]struct{}
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		byUser: make(map[string][]Notification),
		keys:   make(map[string]struct{}),
	}
}

func (s *MemoryStorage) Create(_ context.Context, n Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n.DedupKey != "" {
		if _, ok := s.keys[n.DedupKey]; ok {
			return ErrDuplicateNotification
		}
		s.keys[n.DedupKey] = struct{}{}
	}
	owner := n.UserID
	if owner == "" {
		owner = n.Email
	}
	s.byUser[owner] = append(s.byUser[owner], n)
	return nil
}

// List returns notifications newest first.
func (s *MemoryStorage) List(_ context.Context, userID string, opts ListOptions) ([]Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Notification
	for _, n := range s.byUser[userID] {
		if opts.OnlyUnread && n.IsRead() {
			continue
		}
		if len(opts.Kinds) > 0 && !slices.Contains(opts.Kinds, n.Kind) {
			continue
		}
		out = append(out, n)
	}
	slices.SortStableFunc(out, func(a, b Notification) int {
		return cmp.Compare(b.CreatedAt.UnixNano(), a.CreatedAt.UnixNano())
	})

	if opts.Offset >= len(out) {
		return []Notification{}, nil
	}
	out = out[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (s *MemoryStorage) MarkRead(_ context.Context, userID string, at time.Time, ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.byUser[userID]
	for i := range items {
		if items[i].ReadAt == nil && slices.Contains(ids, items[i].ID) {
			items[i].ReadAt = &at
		}
	}
	return nil
}

func (s *MemoryStorage) CountUnread(_ context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, n := range s.byUser[userID] {
		if !n.IsRead() {
			count++
		}
	}
	return count, nil
}
