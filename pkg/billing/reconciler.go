package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/linkshelf/linkshelf/pkg/audit"
	"github.com/linkshelf/linkshelf/pkg/logger"
	"github.com/linkshelf/linkshelf/pkg/notifications"
)

// errEventIgnored marks events that are valid but refer to nothing local.
var errEventIgnored = errors.New("webhook event ignored")

// Reconciler applies provider webhook events to local subscriptions.
//
// Provider delivery is at-least-once and unordered. Every event id is claimed
// in the EventLog before it is applied and released again when applying
// fails, so the provider's redelivery retries it. Beyond that, writes are
// absolute (status targets, forward-only periods, payments unique per
// provider id) so a replay that slips past the log changes nothing.
type Reconciler struct {
	options

	provider BillingProvider
	catalog  *Catalog
	subs     SubscriptionStore
	payments PaymentStore
	events   EventLog
}

func NewReconciler(provider BillingProvider, catalog *Catalog, subs SubscriptionStore, payments PaymentStore, events EventLog, opts ...Option) *Reconciler {
	if provider == nil {
		panic("billing: BillingProvider is required")
	}
	if catalog == nil {
		panic("billing: Catalog is required")
	}
	if subs == nil {
		panic("billing: SubscriptionStore is required")
	}
	if payments == nil {
		panic("billing: PaymentStore is required")
	}
	if events == nil {
		panic("billing: EventLog is required")
	}
	return &Reconciler{
		options:  newOptions(opts),
		provider: provider,
		catalog:  catalog,
		subs:     subs,
		payments: payments,
		events:   events,
	}
}

// HandleWebhook verifies and applies one provider payload. Unknown event
// types, unknown subscriptions and duplicate deliveries return nil.
func (r *Reconciler) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	ev, err := r.provider.ParseWebhook(ctx, payload, signature)
	if err != nil {
		r.metrics.webhook(EventUnknown, resultRejected)
		if errors.Is(err, ErrWebhookVerificationFailed) {
			r.log.WarnContext(ctx, "webhook rejected", logger.Error(err))
		}
		return err
	}

	log := r.log.With(
		logger.EventID(ev.ID),
		logger.EventType(ev.ProviderEventType),
		logger.ProviderSubscriptionID(ev.ProviderSubID),
	)

	if ev.Type == EventUnknown {
		r.metrics.webhook(ev.Type, resultIgnored)
		log.DebugContext(ctx, "webhook event type not handled")
		return nil
	}

	claimed, err := r.events.Claim(ctx, ev.ID)
	if err != nil {
		r.metrics.webhook(ev.Type, resultFailed)
		return fmt.Errorf("failed to claim webhook event %s: %w", ev.ID, err)
	}
	if !claimed {
		r.metrics.webhook(ev.Type, resultDuplicate)
		log.InfoContext(ctx, "duplicate webhook event skipped")
		return nil
	}

	err = r.apply(ctx, ev)
	switch {
	case errors.Is(err, errEventIgnored):
		r.metrics.webhook(ev.Type, resultIgnored)
		log.InfoContext(ctx, "webhook event does not match a local subscription")
		return nil
	case err != nil:
		r.metrics.webhook(ev.Type, resultFailed)
		if relErr := r.events.Release(ctx, ev.ID); relErr != nil {
			log.ErrorContext(ctx, "failed to release webhook event", logger.Error(relErr))
		}
		log.ErrorContext(ctx, "failed to apply webhook event", logger.Error(err))
		return err
	}

	r.metrics.webhook(ev.Type, resultApplied)
	return nil
}

func (r *Reconciler) apply(ctx context.Context, ev *WebhookEvent) error {
	switch ev.Type {
	case EventSubscriptionCreated, EventSubscriptionActivated, EventSubscriptionUpdated,
		EventSubscriptionCancelled, EventSubscriptionSuspended, EventSubscriptionExpired:
		return r.syncSubscription(ctx, ev)
	case EventPaymentCompleted, EventPaymentFailed:
		return r.applyPayment(ctx, ev)
	case EventPaymentRefunded, EventPaymentReversed:
		return r.applyRefund(ctx, ev)
	}
	return errEventIgnored
}

// locate finds the local subscription an event refers to: by provider id
// first, then by the ids attached at checkout.
func (r *Reconciler) locate(ctx context.Context, ev *WebhookEvent) (*Subscription, error) {
	if ev.ProviderSubID != "" {
		sub, err := r.subs.GetByProviderID(ctx, ev.ProviderSubID)
		if err == nil {
			return sub, nil
		}
		if !errors.Is(err, ErrSubscriptionNotFound) {
			return nil, err
		}
	}

	var (
		sub *Subscription
		err error
	)
	switch {
	case ev.SubscriptionID != uuid.Nil:
		sub, err = r.subs.Get(ctx, ev.SubscriptionID)
	case ev.UserID != uuid.Nil:
		sub, err = r.subs.GetByUser(ctx, ev.UserID)
	default:
		return nil, errEventIgnored
	}
	if errors.Is(err, ErrSubscriptionNotFound) {
		return nil, errEventIgnored
	}
	if err != nil {
		return nil, err
	}
	// A subscription already bound to another provider id is not this one.
	if sub.ProviderSubID != "" && ev.ProviderSubID != "" && sub.ProviderSubID != ev.ProviderSubID {
		return nil, errEventIgnored
	}
	return sub, nil
}

// detached reports whether ev belongs to the provider subscription sub left
// behind when it moved to a free plan.
func detached(sub *Subscription, ev *WebhookEvent) bool {
	return ev.ProviderSubID != "" && sub.DetachedProviderSubID == ev.ProviderSubID
}

// targetStatus is the status an event asks for. Empty means "leave as is".
func targetStatus(ev *WebhookEvent) SubscriptionStatus {
	switch ev.Type {
	case EventSubscriptionActivated:
		if ev.Status == StatusTrialing {
			return StatusTrialing
		}
		return StatusActive
	case EventSubscriptionCancelled:
		return StatusCancelled
	case EventSubscriptionSuspended:
		return StatusPaymentFailed
	case EventSubscriptionExpired:
		return StatusExpired
	}
	return ev.Status
}

func (r *Reconciler) syncSubscription(ctx context.Context, ev *WebhookEvent) error {
	sub, err := r.locate(ctx, ev)
	if err != nil {
		return err
	}
	if detached(sub, ev) {
		return errEventIgnored
	}

	var (
		version  *PlanVersion
		interval BillingInterval
	)
	if ev.PriceID != "" {
		version, interval, err = r.catalog.VersionByPriceID(ctx, ev.PriceID)
		if err != nil && !errors.Is(err, ErrPlanVersionNotFound) {
			return err
		}
	}

	var (
		from        SubscriptionStatus
		fromVersion uuid.UUID
	)
	updated, err := r.subs.Update(ctx, sub.ID, func(s *Subscription) error {
		from, fromVersion = s.Status, s.PlanVersionID
		now := r.now().UTC()

		if s.ProviderSubID == "" {
			s.ProviderSubID = ev.ProviderSubID
		}
		if ev.ProviderCustomerID != "" {
			s.ProviderCustomerID = ev.ProviderCustomerID
		}
		if version != nil && !s.Status.Terminal() {
			s.PlanID = version.PlanID
			s.PlanVersionID = version.ID
			s.Interval = interval
		}
		if ev.TrialEndsAt != nil {
			s.TrialEndsAt = cloneTime(ev.TrialEndsAt)
		}
		if ev.PeriodStart != nil && ev.PeriodEnd != nil {
			s.Renew(*ev.PeriodStart, *ev.PeriodEnd)
		}

		want := targetStatus(ev)
		if want == StatusActive && s.Status == StatusCancelledPending && ev.CancelAt != nil && ev.CancelAt.After(now) {
			want = ""
		}
		if err := moveTo(ctx, s, want, now); err != nil {
			return err
		}
		if err := scheduleCancel(ctx, s, ev, now); err != nil {
			return err
		}
		s.UpdatedAt = now
		return nil
	})
	if err != nil {
		return err
	}

	r.afterTransition(ctx, ev, from, updated)
	if from == updated.Status && fromVersion != updated.PlanVersionID && updated.HasAccessAt(r.now()) {
		r.notify(ctx, updated, notifications.KindPlanChanged, notifications.SeveritySuccess,
			"Plan changed", "Your payment went through and your new plan is active.")
	}
	return nil
}

// moveTo walks s towards want through the lifecycle machine. Transitions the
// machine does not allow come from stale or reordered events and are skipped.
func moveTo(ctx context.Context, s *Subscription, want SubscriptionStatus, now time.Time) error {
	if want == "" || want == s.Status || s.Status.Terminal() {
		return nil
	}

	var steps []LifecycleEvent
	switch want {
	case StatusActive:
		steps = []LifecycleEvent{EventActivate, EventResume, EventRecoverPayment}
	case StatusTrialing:
		steps = []LifecycleEvent{EventStartTrial}
	case StatusCancelled:
		if s.Status == StatusCancelledPending {
			if s.EndsAt != nil && s.EndsAt.After(now) {
				s.EndsAt = timePtr(now)
			}
			return fire(ctx, s, EventFinalize, now)
		}
		if err := fire(ctx, s, EventCancel, now); err != nil {
			return err
		}
		if s.Status == StatusCancelledPending {
			s.EndsAt = timePtr(now)
			return fire(ctx, s, EventFinalize, now)
		}
		return nil
	case StatusPaymentFailed:
		steps = []LifecycleEvent{EventFailPayment}
	case StatusExpired:
		steps = []LifecycleEvent{EventExpire}
	case StatusCancelledPending:
		steps = []LifecycleEvent{EventCancel}
	}
	for _, ev := range steps {
		if s.Can(ev, now) {
			return s.Apply(ctx, ev, now)
		}
	}
	return nil
}

// scheduleCancel mirrors a cancellation the provider scheduled for later.
func scheduleCancel(ctx context.Context, s *Subscription, ev *WebhookEvent, now time.Time) error {
	if ev.CancelAt == nil || !ev.CancelAt.After(now) {
		return nil
	}
	if s.Status != StatusActive && s.Status != StatusTrialing {
		if s.Status == StatusCancelledPending {
			s.EndsAt = cloneTime(ev.CancelAt)
		}
		return nil
	}
	if err := fire(ctx, s, EventCancel, now); err != nil {
		return err
	}
	s.EndsAt = cloneTime(ev.CancelAt)
	return nil
}

func fire(ctx context.Context, s *Subscription, ev LifecycleEvent, now time.Time) error {
	if !s.Can(ev, now) {
		return nil
	}
	return s.Apply(ctx, ev, now)
}

func (r *Reconciler) applyPayment(ctx context.Context, ev *WebhookEvent) error {
	sub, err := r.locate(ctx, ev)
	if err != nil {
		return err
	}

	if ev.Type == EventPaymentCompleted && ev.Payment != nil {
		if _, err := r.recordPayment(ctx, sub, ev, PaymentCharge); err != nil {
			return err
		}
	}
	if detached(sub, ev) {
		return nil
	}

	var from SubscriptionStatus
	updated, err := r.subs.Update(ctx, sub.ID, func(s *Subscription) error {
		from = s.Status
		now := r.now().UTC()
		if s.ProviderSubID == "" {
			s.ProviderSubID = ev.ProviderSubID
		}
		if ev.ProviderCustomerID != "" && s.ProviderCustomerID == "" {
			s.ProviderCustomerID = ev.ProviderCustomerID
		}

		switch ev.Type {
		case EventPaymentCompleted:
			if ev.PeriodStart != nil && ev.PeriodEnd != nil {
				s.Renew(*ev.PeriodStart, *ev.PeriodEnd)
			}
			if s.Status == StatusPending || s.Status == StatusPaymentFailed {
				if err := moveTo(ctx, s, StatusActive, now); err != nil {
					return err
				}
			}
		case EventPaymentFailed:
			if err := moveTo(ctx, s, StatusPaymentFailed, now); err != nil {
				return err
			}
		}
		s.UpdatedAt = now
		return nil
	})
	if err != nil {
		return err
	}

	r.afterTransition(ctx, ev, from, updated)
	return nil
}

func (r *Reconciler) applyRefund(ctx context.Context, ev *WebhookEvent) error {
	if ev.Payment == nil {
		return errEventIgnored
	}
	sub, err := r.locate(ctx, ev)
	if err != nil {
		return err
	}

	kind := PaymentRefund
	if ev.Type == EventPaymentReversed {
		kind = PaymentReversal
	}
	recorded, err := r.recordPayment(ctx, sub, ev, kind)
	if err != nil || !recorded {
		return err
	}

	_ = r.audit.Log(ctx, audit.SystemActor, "payment."+string(kind), audit.NewTarget(audit.TargetSubscription, sub.ID), map[string]any{
		"provider_payment_id": ev.Payment.ID,
		"amount":              ev.Payment.Amount.StringFixed(2),
		"currency":            ev.Payment.Currency,
	})
	if kind == PaymentRefund {
		r.notify(ctx, sub, notifications.KindPaymentRefunded, notifications.SeverityInfo,
			"Refund issued",
			"We refunded "+FormatMoney(ev.Payment.Amount, ev.Payment.Currency)+" to your payment method.")
	}
	return nil
}

func (r *Reconciler) recordPayment(ctx context.Context, sub *Subscription, ev *WebhookEvent, kind PaymentKind) (bool, error) {
	occurred := ev.OccurredAt
	if occurred.IsZero() {
		occurred = r.now().UTC()
	}
	recorded, err := r.payments.RecordPayment(ctx, &Payment{
		ID:                uuid.New(),
		SubscriptionID:    sub.ID,
		UserID:            sub.UserID,
		ProviderPaymentID: ev.Payment.ID,
		Kind:              kind,
		Amount:            ev.Payment.Amount.Abs(),
		Tax:               ev.Payment.Tax.Abs(),
		Currency:          ev.Payment.Currency,
		OccurredAt:        occurred,
	})
	if err != nil {
		return false, fmt.Errorf("failed to record payment: %w", err)
	}
	return recorded, nil
}

// afterTransition audits and notifies when an event actually changed the
// subscription status.
func (r *Reconciler) afterTransition(ctx context.Context, ev *WebhookEvent, from SubscriptionStatus, sub *Subscription) {
	if from == sub.Status {
		return
	}

	_ = r.audit.Log(ctx, audit.SystemActor, "subscription.webhook", audit.NewTarget(audit.TargetSubscription, sub.ID), map[string]any{
		"event_id":   ev.ID,
		"event_type": ev.ProviderEventType,
		"from":       string(from),
		"to":         string(sub.Status),
	})
	r.log.InfoContext(ctx, "subscription status synced",
		logger.SubscriptionID(sub.ID),
		slog.String("from", string(from)),
		logger.Status(string(sub.Status)),
	)

	switch sub.Status {
	case StatusActive:
		if from == StatusCancelledPending {
			r.notify(ctx, sub, notifications.KindSubscriptionResumed, notifications.SeveritySuccess,
				"Subscription resumed", "Your subscription will renew as usual.")
			return
		}
		r.notify(ctx, sub, notifications.KindSubscriptionActivated, notifications.SeveritySuccess,
			"Subscription active", "Your payment went through and your plan is active.")
	case StatusTrialing:
		r.notify(ctx, sub, notifications.KindSubscriptionActivated, notifications.SeveritySuccess,
			"Trial started", "Your free trial has started.")
	case StatusCancelledPending:
		msg := "Your subscription has been cancelled."
		if sub.EndsAt != nil {
			msg = "Your subscription stays active until " + sub.EndsAt.Format(time.DateOnly) + "."
		}
		r.notify(ctx, sub, notifications.KindSubscriptionCancelled, notifications.SeverityWarning, "Subscription cancelled", msg)
	case StatusCancelled:
		if from != StatusCancelledPending {
			r.notify(ctx, sub, notifications.KindSubscriptionCancelled, notifications.SeverityWarning,
				"Subscription cancelled", "Your subscription has ended.")
		}
	case StatusExpired:
		r.notify(ctx, sub, notifications.KindSubscriptionExpired, notifications.SeverityWarning,
			"Subscription expired", "Your subscription has expired. Your account is back on the free plan.")
	case StatusPaymentFailed:
		r.notify(ctx, sub, notifications.KindPaymentFailed, notifications.SeverityWarning,
			"Payment failed", "We could not charge your payment method. Please update your billing details.")
	}
}

func (r *Reconciler) notify(ctx context.Context, sub *Subscription, kind notifications.Kind, sev notifications.Severity, title, msg string) {
	err := r.notifier.Send(ctx, notifications.Notification{
		UserID:   sub.UserID.String(),
		Kind:     kind,
		Severity: sev,
		Title:    title,
		Message:  msg,
		Data:     withSubscription(nil, sub),
	})
	if err != nil {
		r.log.WarnContext(ctx, "failed to send billing notification",
			logger.SubscriptionID(sub.ID),
			slog.String("kind", string(kind)),
			logger.Error(err),
		)
	}
}
