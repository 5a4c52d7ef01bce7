package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/linkshelf/linkshelf/pkg/audit"
	"github.com/linkshelf/linkshelf/pkg/logger"
	"github.com/linkshelf/linkshelf/pkg/notifications"
)

// Jobs are the periodic subscription tasks. All of them can run again for the
// same day without repeating notices: every notice carries a dedup key.
type Jobs struct {
	options

	catalog *Catalog
	subs    SubscriptionStore
}

func NewJobs(catalog *Catalog, subs SubscriptionStore, opts ...Option) *Jobs {
	if catalog == nil {
		panic("billing: Catalog is required")
	}
	if subs == nil {
		panic("billing: SubscriptionStore is required")
	}
	return &Jobs{options: newOptions(opts), catalog: catalog, subs: subs}
}

// NotifyUpcomingRenewals notices active subscriptions whose period ends within
// window. It returns the number of notices sent.
func (j *Jobs) NotifyUpcomingRenewals(ctx context.Context, now time.Time, window time.Duration) (int, error) {
	subs, err := j.subs.List(ctx, StatusActive)
	if err != nil {
		return 0, err
	}

	sent := 0
	var errs []error
	for _, sub := range subs {
		if sub.CurrentPeriodEndsAt == nil || sub.IsCancelled() {
			continue
		}
		ends := *sub.CurrentPeriodEndsAt
		if !ends.After(now) || ends.Sub(now) > window {
			continue
		}

		msg := "Your subscription renews on " + ends.Format(time.DateOnly) + "."
		if v, err := j.catalog.GetVersion(ctx, sub.PlanVersionID); err == nil && !v.IsFree() {
			msg = fmt.Sprintf("Your subscription renews on %s for %s.",
				ends.Format(time.DateOnly), FormatMoney(v.Price(sub.Interval), v.Currency))
		}

		ok, err := j.notifier.SendOnce(ctx, notifications.Notification{
			UserID:   sub.UserID.String(),
			Kind:     notifications.KindRenewalUpcoming,
			Severity: notifications.SeverityInfo,
			Title:    "Upcoming renewal",
			Message:  msg,
			Data:     withSubscription(map[string]any{"renews_at": ends}, &sub),
			DedupKey: "renewal:" + sub.ID.String() + ":" + ends.Format(time.DateOnly),
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("subscription %s: %w", sub.ID, err))
			continue
		}
		if ok {
			sent++
			j.metrics.notice(string(notifications.KindRenewalUpcoming))
		}
	}

	j.log.InfoContext(ctx, "renewal notices sent", logger.Component("billing.jobs"), slog.Int("sent", sent))
	return sent, errors.Join(errs...)
}

// NotifyTrialEnding notices trials that end within window.
func (j *Jobs) NotifyTrialEnding(ctx context.Context, now time.Time, window time.Duration) (int, error) {
	subs, err := j.subs.List(ctx, StatusTrialing)
	if err != nil {
		return 0, err
	}

	sent := 0
	var errs []error
	for _, sub := range subs {
		if !sub.IsOnTrialAt(now) || sub.IsCancelled() {
			continue
		}
		ends := *sub.TrialEndsAt
		if ends.Sub(now) > window {
			continue
		}

		ok, err := j.notifier.SendOnce(ctx, notifications.Notification{
			UserID:   sub.UserID.String(),
			Kind:     notifications.KindTrialEnding,
			Severity: notifications.SeverityWarning,
			Title:    "Your trial is ending",
			Message:  "Your free trial ends on " + ends.Format(time.DateOnly) + ".",
			Data:     withSubscription(map[string]any{"trial_ends_at": ends}, &sub),
			DedupKey: "trial:" + sub.ID.String() + ":" + ends.Format(time.DateOnly),
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("subscription %s: %w", sub.ID, err))
			continue
		}
		if ok {
			sent++
			j.metrics.notice(string(notifications.KindTrialEnding))
		}
	}

	j.log.InfoContext(ctx, "trial notices sent", logger.Component("billing.jobs"), slog.Int("sent", sent))
	return sent, errors.Join(errs...)
}

// SweepExpired ends subscriptions whose access ran out: pending cancellations
// past their end become cancelled, trials that ended without a paid period
// expire. It returns the number of subscriptions changed.
func (j *Jobs) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	subs, err := j.subs.List(ctx, StatusCancelledPending, StatusTrialing)
	if err != nil {
		return 0, err
	}

	changed := 0
	var errs []error
	for _, candidate := range subs {
		var ev LifecycleEvent
		switch {
		case candidate.Status == StatusCancelledPending && candidate.EndsAt != nil && !candidate.EndsAt.After(now):
			ev = EventFinalize
		case candidate.Status == StatusTrialing && candidate.HasEndedTrialAt(now) && candidate.ProviderSubID == "":
			ev = EventExpire
		default:
			continue
		}

		var moved bool
		sub, err := j.subs.Update(ctx, candidate.ID, func(s *Subscription) error {
			moved = false
			if !s.Can(ev, now) {
				return nil
			}
			if err := s.Apply(ctx, ev, now); err != nil {
				return err
			}
			moved = true
			return nil
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("subscription %s: %w", candidate.ID, err))
			continue
		}
		if !moved {
			continue
		}

		changed++
		j.metrics.swept(sub.Status)
		_ = j.audit.Log(ctx, audit.SystemActor, "subscription."+string(ev), audit.NewTarget(audit.TargetSubscription, sub.ID), map[string]any{
			"status": string(sub.Status),
		})
		if sub.Status == StatusExpired {
			_, err := j.notifier.SendOnce(ctx, notifications.Notification{
				UserID:   sub.UserID.String(),
				Kind:     notifications.KindSubscriptionExpired,
				Severity: notifications.SeverityWarning,
				Title:    "Your trial has ended",
				Message:  "Choose a plan to keep your lists beyond the free plan limits.",
				Data:     withSubscription(nil, sub),
				DedupKey: "expired:" + sub.ID.String(),
			})
			if err != nil {
				errs = append(errs, fmt.Errorf("subscription %s: %w", sub.ID, err))
			}
		}
	}

	if changed > 0 {
		j.log.InfoContext(ctx, "subscriptions swept", logger.Component("billing.jobs"), slog.Int("changed", changed))
	}
	return changed, errors.Join(errs...)
}
