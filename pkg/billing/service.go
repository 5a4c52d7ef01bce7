package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/linkshelf/linkshelf/pkg/audit"
	"github.com/linkshelf/linkshelf/pkg/logger"
	"github.com/linkshelf/linkshelf/pkg/notifications"
)

// Service is the subscriber-facing billing API. Every operation names its
// actor explicitly.
type Service interface {
	CreateCheckout(ctx context.Context, actor Actor, params CheckoutParams) (*CheckoutResult, error)
	CurrentSubscription(ctx context.Context, actor Actor) (*Subscription, error)
	GetSubscription(ctx context.Context, actor Actor, id uuid.UUID) (*Subscription, error)
	PreviewSwitch(ctx context.Context, actor Actor, id uuid.UUID, req SwitchPlanRequest) (*Proration, error)
	SwitchPlan(ctx context.Context, actor Actor, id uuid.UUID, req SwitchPlanRequest) (*SwitchResult, error)
	Cancel(ctx context.Context, actor Actor, id uuid.UUID) (*Subscription, error)
	Resume(ctx context.Context, actor Actor, id uuid.UUID) (*Subscription, error)
	CustomerPortalLink(ctx context.Context, actor Actor) (*PortalLink, error)

	CanCreate(ctx context.Context, userID uuid.UUID, res Resource) error
	Usage(ctx context.Context, userID uuid.UUID) (map[Resource]UsageInfo, error)
}

type CheckoutParams struct {
	PlanID     uuid.UUID       `json:"plan_id" validate:"required"`
	Interval   BillingInterval `json:"interval" validate:"required,oneof=monthly yearly"`
	Email      string          `json:"email" validate:"omitempty,email"`
	SuccessURL string          `json:"success_url" validate:"omitempty,url"`
	CancelURL  string          `json:"cancel_url" validate:"omitempty,url"`
}

type CheckoutResult struct {
	Subscription *Subscription `json:"subscription"`
	// Link is nil for free plans, which activate immediately.
	Link *CheckoutLink `json:"checkout,omitempty"`
}

type SwitchPlanRequest struct {
	PlanVersionID uuid.UUID `json:"plan_version_id" validate:"required"`
	// Interval defaults to the subscription's current interval.
	Interval BillingInterval `json:"interval" validate:"omitempty,oneof=monthly yearly"`
	// SuccessURL and CancelURL are used when the switch needs a checkout.
	SuccessURL string `json:"success_url" validate:"omitempty,url"`
	CancelURL  string `json:"cancel_url" validate:"omitempty,url"`
}

type SwitchResult struct {
	Subscription *Subscription `json:"subscription"`
	Proration    Proration     `json:"proration"`
	// Link is set when a subscriber without a provider subscription moves to
	// a paid plan. The plan changes once the provider confirms the checkout.
	Link *CheckoutLink `json:"checkout,omitempty"`
}

// ResourceCounterFunc returns a user's current usage of a resource.
type ResourceCounterFunc func(ctx context.Context, userID uuid.UUID) (int64, error)

type service struct {
	options

	catalog    *Catalog
	store      SubscriptionStore
	provider   BillingProvider
	calculator *ProrationCalculator
}

// NewService wires the billing service. It panics when a required dependency
// is missing.
func NewService(catalog *Catalog, store SubscriptionStore, provider BillingProvider, opts ...Option) Service {
	if catalog == nil {
		panic("billing: Catalog is required")
	}
	if store == nil {
		panic("billing: SubscriptionStore is required")
	}
	if provider == nil {
		panic("billing: BillingProvider is required")
	}

	s := &service{
		options:  newOptions(opts),
		catalog:  catalog,
		store:    store,
		provider: provider,
	}
	s.calculator = NewProrationCalculator(s.now)
	return s
}

func (s *service) CreateCheckout(ctx context.Context, actor Actor, params CheckoutParams) (*CheckoutResult, error) {
	if actor.IsSystem() {
		return nil, ErrForbidden
	}
	if err := validate.Struct(params); err != nil {
		return nil, errors.Join(ErrInvalidRequest, err)
	}

	if existing, err := s.store.GetByUser(ctx, actor.UserID); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrSubscriptionAlreadyExists, existing.ID)
	} else if !errors.Is(err, ErrSubscriptionNotFound) {
		return nil, err
	}

	plan, err := s.catalog.GetPlan(ctx, params.PlanID)
	if err != nil {
		return nil, err
	}
	if !plan.Active {
		return nil, ErrPlanUnavailable
	}
	version, err := s.catalog.CurrentVersion(ctx, plan.ID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	sub := &Subscription{
		ID:            uuid.New(),
		UserID:        actor.UserID,
		PlanID:        plan.ID,
		PlanVersionID: version.ID,
		Interval:      params.Interval,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	var link *CheckoutLink
	switch {
	case version.IsFree():
		sub.Status = StatusActive
		sub.Renew(now, params.Interval.Advance(now))
	default:
		priceID := version.ProviderPriceID(params.Interval)
		if priceID == "" {
			return nil, ErrMissingPriceID
		}
		link, err = s.provider.CreateCheckoutLink(ctx, CheckoutRequest{
			PriceID:        priceID,
			SubscriptionID: sub.ID,
			UserID:         actor.UserID,
			Email:          params.Email,
			SuccessURL:     params.SuccessURL,
			CancelURL:      params.CancelURL,
		})
		if err != nil {
			return nil, errors.Join(ErrProviderError, err)
		}
		sub.Status = StatusPending
		if plan.HasTrial() {
			sub.Status = StatusTrialing
			sub.TrialEndsAt = timePtr(now.AddDate(0, 0, plan.TrialDays))
		}
	}

	if err := s.store.Create(ctx, sub); err != nil {
		return nil, err
	}

	_ = s.audit.Log(ctx, actor.String(), "subscription.checkout", audit.NewTarget(audit.TargetSubscription, sub.ID), map[string]any{
		"plan_version_id": version.ID.String(),
		"interval":        string(sub.Interval),
		"status":          string(sub.Status),
	})
	if sub.Status == StatusActive {
		s.notify(ctx, sub, notifications.KindSubscriptionActivated, notifications.SeveritySuccess,
			"Your "+plan.Name+" plan is active", "You can start using "+plan.Name+" right away.", nil)
	}
	s.log.InfoContext(ctx, "checkout started",
		logger.SubscriptionID(sub.ID),
		logger.UserID(actor.UserID),
		logger.PlanVersionID(version.ID),
		logger.Status(string(sub.Status)),
	)
	return &CheckoutResult{Subscription: sub, Link: link}, nil
}

func (s *service) CurrentSubscription(ctx context.Context, actor Actor) (*Subscription, error) {
	if actor.IsSystem() {
		return nil, ErrForbidden
	}
	return s.store.GetByUser(ctx, actor.UserID)
}

func (s *service) GetSubscription(ctx context.Context, actor Actor, id uuid.UUID) (*Subscription, error) {
	sub, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.canManage(sub.UserID) {
		return nil, ErrForbidden
	}
	return sub, nil
}

// switchTarget resolves and checks the version a subscription should move to.
func (s *service) switchTarget(ctx context.Context, req SwitchPlanRequest) (*Plan, *PlanVersion, error) {
	target, err := s.catalog.GetVersion(ctx, req.PlanVersionID)
	if err != nil {
		return nil, nil, err
	}
	plan, err := s.catalog.GetPlan(ctx, target.PlanID)
	if err != nil {
		return nil, nil, err
	}
	if !plan.Active {
		return nil, nil, ErrPlanUnavailable
	}
	current, err := s.catalog.CurrentVersion(ctx, plan.ID)
	if err != nil {
		return nil, nil, err
	}
	if current.ID != target.ID {
		return nil, nil, fmt.Errorf("%w: version %s is not the current version of %s", ErrPlanUnavailable, target.Version, plan.Slug)
	}
	return plan, target, nil
}

// prorate prices a switch of sub to target.
func (s *service) prorate(ctx context.Context, sub *Subscription, target *PlanVersion, interval BillingInterval) (Proration, error) {
	if sub.PlanVersionID == target.ID && sub.Interval == interval {
		return Proration{}, ErrSamePlanVersion
	}

	now := s.now()
	if sub.Status == StatusTrialing && sub.IsOnTrialAt(now) && sub.CurrentPeriodEndsAt == nil {
		return s.calculator.Deferred(target, interval, *sub.TrialEndsAt), nil
	}

	current, err := s.catalog.GetVersion(ctx, sub.PlanVersionID)
	if err != nil && !errors.Is(err, ErrPlanVersionNotFound) {
		return Proration{}, err
	}
	var p Proration
	if sub.CurrentPeriodEndsAt != nil && sub.Interval == interval {
		p, err = s.calculator.CalculateWithin(current, target, interval, *sub.CurrentPeriodEndsAt)
	} else {
		p, err = s.calculator.Calculate(current, target, interval)
	}
	if err != nil {
		return Proration{}, err
	}
	if target.IsFree() {
		// The provider cancels at the period end without a refund.
		p.RefundAmount = decimal.Zero
		p.NetAmount = p.ChargeAmount
	}
	return p, nil
}

func (s *service) PreviewSwitch(ctx context.Context, actor Actor, id uuid.UUID, req SwitchPlanRequest) (*Proration, error) {
	sub, err := s.GetSubscription(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	_, target, err := s.switchTarget(ctx, req)
	if err != nil {
		return nil, err
	}
	interval := req.Interval
	if interval == "" {
		interval = sub.Interval
	}
	p, err := s.prorate(ctx, sub, target, interval)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// SwitchPlan moves a subscription to another plan's current version. The
// provider call and the local write happen under the subscription lock, so a
// webhook for the same subscription waits until the switch is stored.
func (s *service) SwitchPlan(ctx context.Context, actor Actor, id uuid.UUID, req SwitchPlanRequest) (*SwitchResult, error) {
	if req.Interval != "" && !req.Interval.Valid() {
		return nil, ErrInvalidInterval
	}
	if err := validate.Struct(req); err != nil {
		return nil, errors.Join(ErrInvalidRequest, err)
	}
	plan, target, err := s.switchTarget(ctx, req)
	if err != nil {
		s.metrics.planSwitch(resultRejected, nil)
		return nil, err
	}

	var (
		proration Proration
		link      *CheckoutLink
	)
	sub, err := s.store.Update(ctx, id, func(sub *Subscription) error {
		if !actor.canManage(sub.UserID) {
			return ErrForbidden
		}
		if sub.Status != StatusActive && sub.Status != StatusTrialing {
			return fmt.Errorf("%w: cannot switch a %s subscription", ErrInvalidSubscriptionState, sub.Status)
		}
		interval := req.Interval
		if interval == "" {
			interval = sub.Interval
		}

		p, err := s.prorate(ctx, sub, target, interval)
		if err != nil {
			return err
		}
		if err := s.checkLimits(ctx, sub.UserID, plan.Limits); err != nil {
			return err
		}
		if !target.IsFree() && sub.ProviderSubID == "" {
			l, err := s.checkoutSwitch(ctx, sub, target, interval, req)
			if err != nil {
				return err
			}
			link, proration = l, p
			return nil
		}
		if err := s.switchOnProvider(ctx, sub, target, interval, p); err != nil {
			return err
		}

		now := s.now().UTC()
		sub.PlanID = target.PlanID
		sub.PlanVersionID = target.ID
		if interval != sub.Interval || sub.CurrentPeriodEndsAt == nil {
			sub.Interval = interval
			if sub.Status == StatusActive {
				sub.CurrentPeriodStartsAt = timePtr(now)
				sub.CurrentPeriodEndsAt = timePtr(p.NextBillingDate)
			}
		}
		sub.UpdatedAt = now
		proration = p
		return nil
	})

	auditTarget := audit.NewTarget(audit.TargetSubscription, id)
	if err != nil {
		s.metrics.planSwitch(resultFailed, nil)
		_ = s.audit.LogError(ctx, actor.String(), "subscription.switch_plan", auditTarget, err, map[string]any{
			"plan_version_id": target.ID.String(),
		})
		return nil, err
	}

	if link != nil {
		_ = s.audit.Log(ctx, actor.String(), "subscription.switch_checkout", auditTarget, map[string]any{
			"plan_version_id": target.ID.String(),
			"interval":        string(proration.Interval),
		})
		s.log.InfoContext(ctx, "plan switch waits for checkout",
			logger.SubscriptionID(sub.ID),
			logger.PlanVersionID(target.ID),
		)
		return &SwitchResult{Subscription: sub, Proration: proration, Link: link}, nil
	}

	s.metrics.planSwitch(resultApplied, &proration)
	_ = s.audit.Log(ctx, actor.String(), "subscription.switch_plan", auditTarget, map[string]any{
		"plan_version_id": target.ID.String(),
		"interval":        string(sub.Interval),
		"refund":          proration.RefundAmount.StringFixed(2),
		"charge":          proration.ChargeAmount.StringFixed(2),
		"net":             proration.NetAmount.StringFixed(2),
	})
	s.notify(ctx, sub, notifications.KindPlanChanged, notifications.SeveritySuccess,
		"You are now on "+plan.Name,
		fmt.Sprintf("Your plan changed to %s. Amount due now: %s.", plan.Name, FormatMoney(proration.NetAmount, proration.Currency)),
		map[string]any{"plan_version_id": target.ID.String(), "net_amount": proration.NetAmount.StringFixed(2)})
	s.log.InfoContext(ctx, "plan switched",
		logger.SubscriptionID(sub.ID),
		logger.PlanVersionID(target.ID),
		slog.String("net_amount", proration.NetAmount.StringFixed(2)),
	)
	return &SwitchResult{Subscription: sub, Proration: proration}, nil
}

// checkoutSwitch opens a provider checkout for target on behalf of a
// subscription the provider does not know yet. The activation event carries
// sub.ID back and moves it to the purchased version.
func (s *service) checkoutSwitch(ctx context.Context, sub *Subscription, target *PlanVersion, interval BillingInterval, req SwitchPlanRequest) (*CheckoutLink, error) {
	priceID := target.ProviderPriceID(interval)
	if priceID == "" {
		return nil, ErrMissingPriceID
	}
	link, err := s.provider.CreateCheckoutLink(ctx, CheckoutRequest{
		PriceID:        priceID,
		SubscriptionID: sub.ID,
		UserID:         sub.UserID,
		SuccessURL:     req.SuccessURL,
		CancelURL:      req.CancelURL,
	})
	if err != nil {
		return nil, errors.Join(ErrProviderError, err)
	}
	return link, nil
}

// switchOnProvider mirrors the switch on the provider subscription. Moving to
// a free plan cancels it and detaches it from sub, so its later events do not
// touch the free subscription.
func (s *service) switchOnProvider(ctx context.Context, sub *Subscription, target *PlanVersion, interval BillingInterval, p Proration) error {
	if target.IsFree() {
		if sub.ProviderSubID == "" {
			return nil
		}
		if err := s.provider.CancelSubscription(ctx, sub.ProviderSubID); err != nil {
			return errors.Join(ErrProviderError, err)
		}
		sub.DetachedProviderSubID = sub.ProviderSubID
		sub.ProviderSubID = ""
		return nil
	}
	priceID := target.ProviderPriceID(interval)
	if priceID == "" {
		return ErrMissingPriceID
	}
	if err := s.provider.ChangePlan(ctx, ChangePlanRequest{ProviderSubID: sub.ProviderSubID, PriceID: priceID, Proration: p}); err != nil {
		return errors.Join(ErrProviderError, err)
	}
	return nil
}

func (s *service) Cancel(ctx context.Context, actor Actor, id uuid.UUID) (*Subscription, error) {
	sub, err := s.store.Update(ctx, id, func(sub *Subscription) error {
		if !actor.canManage(sub.UserID) {
			return ErrForbidden
		}
		if !sub.Can(EventCancel, s.now()) {
			return fmt.Errorf("%w: cannot cancel a %s subscription", ErrInvalidSubscriptionState, sub.Status)
		}
		if sub.ProviderSubID != "" {
			if err := s.provider.CancelSubscription(ctx, sub.ProviderSubID); err != nil {
				return errors.Join(ErrProviderError, err)
			}
		}
		return sub.Cancel(s.now().UTC())
	})
	target := audit.NewTarget(audit.TargetSubscription, id)
	if err != nil {
		_ = s.audit.LogError(ctx, actor.String(), "subscription.cancel", target, err, nil)
		return nil, err
	}

	_ = s.audit.Log(ctx, actor.String(), "subscription.cancel", target, map[string]any{"status": string(sub.Status)})
	msg := "Your subscription has been cancelled."
	if sub.EndsAt != nil && sub.Status == StatusCancelledPending {
		msg = "Your subscription stays active until " + sub.EndsAt.Format(time.DateOnly) + "."
	}
	s.notify(ctx, sub, notifications.KindSubscriptionCancelled, notifications.SeverityWarning, "Subscription cancelled", msg, nil)
	return sub, nil
}

func (s *service) Resume(ctx context.Context, actor Actor, id uuid.UUID) (*Subscription, error) {
	sub, err := s.store.Update(ctx, id, func(sub *Subscription) error {
		if !actor.canManage(sub.UserID) {
			return ErrForbidden
		}
		if !sub.Can(EventResume, s.now()) {
			return fmt.Errorf("%w: cannot resume a %s subscription", ErrInvalidSubscriptionState, sub.Status)
		}
		if sub.ProviderSubID != "" {
			if err := s.provider.ResumeSubscription(ctx, sub.ProviderSubID); err != nil {
				return errors.Join(ErrProviderError, err)
			}
		}
		return sub.Resume(s.now().UTC())
	})
	target := audit.NewTarget(audit.TargetSubscription, id)
	if err != nil {
		_ = s.audit.LogError(ctx, actor.String(), "subscription.resume", target, err, nil)
		return nil, err
	}

	_ = s.audit.Log(ctx, actor.String(), "subscription.resume", target, nil)
	s.notify(ctx, sub, notifications.KindSubscriptionResumed, notifications.SeveritySuccess,
		"Subscription resumed", "Your subscription will renew as usual.", nil)
	return sub, nil
}

func (s *service) CustomerPortalLink(ctx context.Context, actor Actor) (*PortalLink, error) {
	sub, err := s.CurrentSubscription(ctx, actor)
	if err != nil {
		return nil, err
	}
	if sub.ProviderCustomerID == "" {
		return nil, ErrMissingProviderCustomerID
	}
	link, err := s.provider.GetCustomerPortalLink(ctx, sub)
	if err != nil {
		return nil, errors.Join(ErrProviderError, err)
	}
	return link, nil
}

// notify sends an inbox notification to the subscription owner. Failures are
// logged; the billing change already happened.
func (s *service) notify(ctx context.Context, sub *Subscription, kind notifications.Kind, sev notifications.Severity, title, msg string, data map[string]any) {
	err := s.notifier.Send(ctx, notifications.Notification{
		UserID:   sub.UserID.String(),
		Kind:     kind,
		Severity: sev,
		Title:    title,
		Message:  msg,
		Data:     withSubscription(data, sub),
	})
	if err != nil {
		s.log.WarnContext(ctx, "failed to send billing notification",
			logger.SubscriptionID(sub.ID),
			slog.String("kind", string(kind)),
			logger.Error(err),
		)
	}
}

func withSubscription(data map[string]any, sub *Subscription) map[string]any {
	if data == nil {
		data = make(map[string]any, 1)
	}
	data["subscription_id"] = sub.ID.String()
	return data
}
