package reports

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Store interface {
	Create(ctx context.Context, s *Schedule) error
	Get(ctx context.Context, id uuid.UUID) (*Schedule, error)
	List(ctx context.Context) ([]Schedule, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool, nextRunAt time.Time) error
	// Due returns active schedules with NextRunAt at or before now.
	Due(ctx context.Context, now time.Time) ([]Schedule, error)
	// ClaimRun moves NextRunAt from expected to next and records ranAt. It
	// reports false when another run already moved it.
	ClaimRun(ctx context.Context, id uuid.UUID, expected, next, ranAt time.Time) (bool, error)
}

type MemoryStore struct {
	mu        sync.Mutex
	schedules map[uuid.UUID]Schedule
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{schedules: make(map[uuid.UUID]Schedule)}
}

func (m *MemoryStore) Create(_ context.Context, s *Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules[s.ID] = *s
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id uuid.UUID) (*Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schedules[id]
	if !ok {
		return nil, ErrScheduleNotFound
	}
	return &s, nil
}

func (m *MemoryStore) List(_ context.Context) ([]Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Schedule, 0, len(m.schedules))
	for _, s := range m.schedules {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b Schedule) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (m *MemoryStore) SetActive(_ context.Context, id uuid.UUID, active bool, nextRunAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schedules[id]
	if !ok {
		return ErrScheduleNotFound
	}
	s.Active = active
	s.NextRunAt = nextRunAt
	m.schedules[id] = s
	return nil
}

func (m *MemoryStore) Due(_ context.Context, now time.Time) ([]Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Schedule
	for _, s := range m.schedules {
		if s.Active && !s.NextRunAt.After(now) {
			out = append(out, s)
		}
	}
	slices.SortFunc(out, func(a, b Schedule) int { return a.NextRunAt.Compare(b.NextRunAt) })
	return out, nil
}

func (m *MemoryStore) ClaimRun(_ context.Context, id uuid.UUID, expected, next, ranAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schedules[id]
	if !ok {
		return false, ErrScheduleNotFound
	}
	if !s.NextRunAt.Equal(expected) {
		return false, nil
	}
	s.NextRunAt = next
	s.LastRunAt = &ranAt
	m.schedules[id] = s
	return true, nil
}
