package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// limitsFor returns the limits that apply to userID right now. Users without
// a subscription, or whose subscription lost access, fall back to the default
// plan.
func (s *service) limitsFor(ctx context.Context, userID uuid.UUID) (Limits, error) {
	sub, err := s.store.GetByUser(ctx, userID)
	switch {
	case err == nil && sub.HasAccessAt(s.now()):
		plan, err := s.catalog.GetPlan(ctx, sub.PlanID)
		if err != nil {
			return Limits{}, err
		}
		return plan.Limits, nil
	case err != nil && !errors.Is(err, ErrSubscriptionNotFound):
		return Limits{}, err
	}

	plan, err := s.catalog.GetPlanBySlug(ctx, s.defaultPlanSlug)
	if err != nil {
		return Limits{}, fmt.Errorf("default plan %q: %w", s.defaultPlanSlug, err)
	}
	return plan.Limits, nil
}

// CanCreate returns ErrLimitExceeded when creating one more res would exceed
// the user's plan.
func (s *service) CanCreate(ctx context.Context, userID uuid.UUID, res Resource) error {
	limits, err := s.limitsFor(ctx, userID)
	if err != nil {
		return err
	}
	limit, ok := limits.For(res)
	if !ok {
		return fmt.Errorf("%w: %s", ErrInvalidResource, res)
	}
	if limit == Unlimited {
		return nil
	}
	counter, ok := s.counters[res]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoCounterRegistered, res)
	}
	used, err := counter(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to count %s: %w", res, err)
	}
	if used >= limit {
		return fmt.Errorf("%w: %s (%d/%d)", ErrLimitExceeded, res, used, limit)
	}
	return nil
}

// Usage reports every registered resource against the user's limits.
func (s *service) Usage(ctx context.Context, userID uuid.UUID) (map[Resource]UsageInfo, error) {
	limits, err := s.limitsFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make(map[Resource]UsageInfo, len(s.counters))
	for res, counter := range s.counters {
		used, err := counter(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", res, err)
		}
		limit, _ := limits.For(res)
		out[res] = UsageInfo{Used: used, Limit: limit}
	}
	return out, nil
}

// checkLimits rejects a switch to a plan whose limits are below current usage.
func (s *service) checkLimits(ctx context.Context, userID uuid.UUID, target Limits) error {
	for res, counter := range s.counters {
		limit, ok := target.For(res)
		if !ok || limit == Unlimited {
			continue
		}
		used, err := counter(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to count %s: %w", res, err)
		}
		if used > limit {
			return fmt.Errorf("%w: %s uses %d, plan allows %d", ErrDowngradeNotPossible, res, used, limit)
		}
	}
	return nil
}
