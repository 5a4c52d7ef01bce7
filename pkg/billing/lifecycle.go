package billing

import (
	"context"
	"errors"
	"time"

	"github.com/linkshelf/linkshelf/pkg/statemachine"
)

// LifecycleEvent drives subscription status changes.
type LifecycleEvent string

const (
	EventActivate    LifecycleEvent = "activate"
	EventRenew       LifecycleEvent = "renew"
	EventCancel      LifecycleEvent = "cancel"
	EventResume      LifecycleEvent = "resume"
	EventFinalize    LifecycleEvent = "finalize"
	EventExpire      LifecycleEvent = "expire"
	EventFailPayment LifecycleEvent = "fail_payment"
	// EventRecoverPayment follows a successful retry after a failed charge.
	EventRecoverPayment LifecycleEvent = "recover_payment"
	// EventStartTrial moves a pending checkout into its trial when the
	// provider reports one.
	EventStartTrial LifecycleEvent = "start_trial"
)

type (
	lifecycleGuard  = statemachine.Guard[SubscriptionStatus, LifecycleEvent]
	lifecycleAction = statemachine.Action[SubscriptionStatus, LifecycleEvent]
)

// transitionData is what guards and actions receive.
type transitionData struct {
	sub *Subscription
	now time.Time
}

func guard(fn func(s *Subscription, now time.Time) bool) statemachine.TransitionOption[SubscriptionStatus, LifecycleEvent] {
	return statemachine.WithGuard(lifecycleGuard(func(_ context.Context, _ SubscriptionStatus, _ LifecycleEvent, data any) bool {
		td := data.(*transitionData)
		return fn(td.sub, td.now)
	}))
}

func action(fn func(s *Subscription, now time.Time)) statemachine.TransitionOption[SubscriptionStatus, LifecycleEvent] {
	return statemachine.WithAction(lifecycleAction(func(_ context.Context, _, _ SubscriptionStatus, _ LifecycleEvent, data any) error {
		td := data.(*transitionData)
		fn(td.sub, td.now)
		return nil
	}))
}

// cancelBoundary is the point a cancelled subscription keeps access until.
func cancelBoundary(s *Subscription, now time.Time) *time.Time {
	if s.CurrentPeriodEndsAt != nil && s.CurrentPeriodEndsAt.After(now) {
		return s.CurrentPeriodEndsAt
	}
	if s.Status == StatusTrialing && s.IsOnTrialAt(now) {
		return s.TrialEndsAt
	}
	return nil
}

var lifecycle = statemachine.MustNew(
	statemachine.WithTransitionFrom(
		[]SubscriptionStatus{StatusPending, StatusTrialing, StatusPaymentFailed},
		StatusActive, EventActivate,
		action(func(s *Subscription, _ time.Time) { s.EndsAt = nil }),
	),
	statemachine.WithTransition(StatusActive, StatusActive, EventRenew),

	statemachine.WithTransitionFrom(
		[]SubscriptionStatus{StatusActive, StatusTrialing, StatusPaymentFailed},
		StatusCancelledPending, EventCancel,
		guard(func(s *Subscription, now time.Time) bool { return cancelBoundary(s, now) != nil }),
		action(func(s *Subscription, now time.Time) {
			s.CancelledAt = timePtr(now)
			s.EndsAt = cloneTime(cancelBoundary(s, now))
		}),
	),
	statemachine.WithTransitionFrom(
		[]SubscriptionStatus{StatusPending, StatusActive, StatusTrialing, StatusPaymentFailed},
		StatusCancelled, EventCancel,
		action(func(s *Subscription, now time.Time) {
			s.CancelledAt = timePtr(now)
			s.EndsAt = timePtr(now)
		}),
	),

	statemachine.WithTransition(StatusCancelledPending, StatusTrialing, EventResume,
		guard(func(s *Subscription, now time.Time) bool {
			return s.CurrentPeriodEndsAt == nil && s.IsOnTrialAt(now)
		}),
		action(clearCancellation),
	),
	statemachine.WithTransition(StatusCancelledPending, StatusActive, EventResume,
		guard(func(s *Subscription, now time.Time) bool { return s.EndsAt == nil || s.EndsAt.After(now) }),
		action(clearCancellation),
	),

	statemachine.WithTransition(StatusCancelledPending, StatusCancelled, EventFinalize,
		guard(func(s *Subscription, now time.Time) bool { return s.EndsAt == nil || !s.EndsAt.After(now) }),
		action(func(s *Subscription, now time.Time) {
			if s.EndsAt == nil {
				s.EndsAt = timePtr(now)
			}
		}),
	),

	statemachine.WithTransitionFrom(
		[]SubscriptionStatus{StatusPending, StatusTrialing, StatusActive, StatusCancelledPending, StatusPaymentFailed},
		StatusExpired, EventExpire,
		action(func(s *Subscription, now time.Time) {
			if s.EndsAt == nil || s.EndsAt.After(now) {
				s.EndsAt = timePtr(now)
			}
		}),
	),

	statemachine.WithTransitionFrom(
		[]SubscriptionStatus{StatusActive, StatusTrialing},
		StatusPaymentFailed, EventFailPayment,
	),
	statemachine.WithTransition(StatusPaymentFailed, StatusActive, EventRecoverPayment),
	statemachine.WithTransition(StatusPending, StatusTrialing, EventStartTrial,
		guard(func(s *Subscription, now time.Time) bool { return s.IsOnTrialAt(now) }),
	),
)

func clearCancellation(s *Subscription, _ time.Time) {
	s.CancelledAt = nil
	s.EndsAt = nil
}

// Apply fires a lifecycle event. Disallowed transitions return
// ErrInvalidSubscriptionState and leave the subscription untouched.
func (s *Subscription) Apply(ctx context.Context, ev LifecycleEvent, now time.Time) error {
	work := s.clone()
	next, err := lifecycle.Fire(ctx, work.Status, ev, &transitionData{sub: work, now: now})
	if err != nil {
		return errors.Join(ErrInvalidSubscriptionState, err)
	}
	work.Status = next
	work.UpdatedAt = now
	*s = *work
	return nil
}

// Can reports whether ev is allowed in the subscription's current state.
func (s *Subscription) Can(ev LifecycleEvent, now time.Time) bool {
	return lifecycle.CanFire(context.Background(), s.Status, ev, &transitionData{sub: s.clone(), now: now})
}
