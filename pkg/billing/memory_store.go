package billing

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore implements PlanStore, SubscriptionStore and PaymentStore in
// process memory. Values are copied in and out so callers never share state
// with the store.
type MemoryStore struct {
	mu            sync.RWMutex
	plans         map[uuid.UUID]Plan
	versions      map[uuid.UUID]PlanVersion
	subscriptions map[uuid.UUID]*Subscription
	payments      map[string]Payment

	locks keyedMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		plans:         make(map[uuid.UUID]Plan),
		versions:      make(map[uuid.UUID]PlanVersion),
		subscriptions: make(map[uuid.UUID]*Subscription),
		payments:      make(map[string]Payment),
	}
}

func (m *MemoryStore) ListPlans(_ context.Context) ([]Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Plan, 0, len(m.plans))
	for _, p := range m.plans {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b Plan) int { return cmp.Compare(a.Slug, b.Slug) })
	return out, nil
}

func (m *MemoryStore) GetPlan(_ context.Context, id uuid.UUID) (*Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.plans[id]
	if !ok {
		return nil, ErrPlanNotFound
	}
	return &p, nil
}

func (m *MemoryStore) GetPlanBySlug(_ context.Context, slug string) (*Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.plans {
		if p.Slug == slug {
			return &p, nil
		}
	}
	return nil, ErrPlanNotFound
}

func (m *MemoryStore) SavePlan(_ context.Context, p *Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plans[p.ID] = *p
	return nil
}

func (m *MemoryStore) ListVersions(_ context.Context, planID uuid.UUID) ([]PlanVersion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.versionsOf(planID), nil
}

func (m *MemoryStore) versionsOf(planID uuid.UUID) []PlanVersion {
	var out []PlanVersion
	for _, v := range m.versions {
		if v.PlanID == planID {
			out = append(out, v)
		}
	}
	slices.SortFunc(out, func(a, b PlanVersion) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out
}

func (m *MemoryStore) GetVersion(_ context.Context, id uuid.UUID) (*PlanVersion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.versions[id]
	if !ok {
		return nil, ErrPlanVersionNotFound
	}
	return &v, nil
}

func (m *MemoryStore) FindVersionByPriceID(_ context.Context, priceID string) (*PlanVersion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if priceID == "" {
		return nil, ErrPlanVersionNotFound
	}
	for _, v := range m.versions {
		if v.ProviderMonthlyPriceID == priceID || v.ProviderYearlyPriceID == priceID {
			return &v, nil
		}
	}
	return nil, ErrPlanVersionNotFound
}

func (m *MemoryStore) CreateVersion(_ context.Context, planID uuid.UUID, build func([]PlanVersion) (*PlanVersion, error)) (*PlanVersion, error) {
	unlock := m.locks.lock(planID)
	defer unlock()

	m.mu.RLock()
	_, ok := m.plans[planID]
	existing := m.versionsOf(planID)
	m.mu.RUnlock()
	if !ok {
		return nil, ErrPlanNotFound
	}

	v, err := build(existing)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if v.Active {
		for id, other := range m.versions {
			if other.PlanID == planID && other.Active {
				other.Active = false
				m.versions[id] = other
			}
		}
	}
	m.versions[v.ID] = *v
	out := *v
	return &out, nil
}

func (m *MemoryStore) Get(_ context.Context, id uuid.UUID) (*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.subscriptions[id]
	if !ok || s.DeletedAt != nil {
		return nil, ErrSubscriptionNotFound
	}
	return s.clone(), nil
}

func (m *MemoryStore) GetByUser(_ context.Context, userID uuid.UUID) (*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var found *Subscription
	for _, s := range m.subscriptions {
		if s.UserID != userID || s.DeletedAt != nil || s.Status.Terminal() {
			continue
		}
		if found == nil || s.CreatedAt.After(found.CreatedAt) {
			found = s
		}
	}
	if found == nil {
		return nil, ErrSubscriptionNotFound
	}
	return found.clone(), nil
}

func (m *MemoryStore) GetByProviderID(_ context.Context, providerSubID string) (*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if providerSubID == "" {
		return nil, ErrSubscriptionNotFound
	}
	for _, s := range m.subscriptions {
		if s.ProviderSubID == providerSubID && s.DeletedAt == nil {
			return s.clone(), nil
		}
	}
	return nil, ErrSubscriptionNotFound
}

func (m *MemoryStore) Create(_ context.Context, s *Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subscriptions[s.ID]; ok {
		return ErrSubscriptionAlreadyExists
	}
	m.subscriptions[s.ID] = s.clone()
	return nil
}

func (m *MemoryStore) Update(ctx context.Context, id uuid.UUID, fn func(*Subscription) error) (*Subscription, error) {
	unlock := m.locks.lock(id)
	defer unlock()

	current, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(current); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.subscriptions[id] = current.clone()
	m.mu.Unlock()
	return current, nil
}

func (m *MemoryStore) List(_ context.Context, statuses ...SubscriptionStatus) ([]Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Subscription
	for _, s := range m.subscriptions {
		if s.DeletedAt != nil {
			continue
		}
		if len(statuses) > 0 && !slices.Contains(statuses, s.Status) {
			continue
		}
		out = append(out, *s.clone())
	}
	slices.SortFunc(out, func(a, b Subscription) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (m *MemoryStore) RecordPayment(_ context.Context, p *Payment) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := p.ProviderPaymentID + "/" + string(p.Kind)
	if _, ok := m.payments[key]; ok {
		return false, nil
	}
	m.payments[key] = *p
	return true, nil
}

func (m *MemoryStore) ListPayments(_ context.Context, from, to time.Time) ([]Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Payment
	for _, p := range m.payments {
		if !p.OccurredAt.Before(from) && p.OccurredAt.Before(to) {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b Payment) int { return a.OccurredAt.Compare(b.OccurredAt) })
	return out, nil
}

// keyedMutex hands out one mutex per key and forgets it when unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key uuid.UUID) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[uuid.UUID]*refMutex)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &refMutex{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
