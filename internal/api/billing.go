package api

import (
	"net/http"

	"github.com/linkshelf/linkshelf/binder"
	"github.com/linkshelf/linkshelf/handler"
	"github.com/linkshelf/linkshelf/pkg/billing"
)

type empty struct{}

func (s *server) listPlans() http.HandlerFunc {
	return wrap(s, func(ctx handler.Context, _ empty) handler.Response {
		plans, err := s.Catalog.ListPlans(ctx)
		if err != nil {
			return s.fail(ctx, err)
		}
		return handler.JSON(plans)
	})
}

func (s *server) currentSubscription() http.HandlerFunc {
	return wrap(s, func(ctx handler.Context, _ empty) handler.Response {
		sub, err := s.Billing.CurrentSubscription(ctx, actor(ctx))
		if err != nil {
			return s.fail(ctx, err)
		}
		return handler.JSON(sub)
	})
}

func (s *server) checkout() http.HandlerFunc {
	return wrap(s, func(ctx handler.Context, req billing.CheckoutParams) handler.Response {
		res, err := s.Billing.CreateCheckout(ctx, actor(ctx), req)
		if err != nil {
			return s.fail(ctx, err)
		}
		return handler.JSON(res, handler.WithJSONStatus(http.StatusCreated))
	}, binder.BindJSON())
}

func (s *server) previewSwitch() http.HandlerFunc {
	return wrap(s, func(ctx handler.Context, req billing.SwitchPlanRequest) handler.Response {
		a := actor(ctx)
		sub, err := s.Billing.CurrentSubscription(ctx, a)
		if err != nil {
			return s.fail(ctx, err)
		}
		p, err := s.Billing.PreviewSwitch(ctx, a, sub.ID, req)
		if err != nil {
			return s.fail(ctx, err)
		}
		return handler.JSON(p)
	}, binder.BindJSON())
}

func (s *server) switchPlan() http.HandlerFunc {
	return wrap(s, func(ctx handler.Context, req billing.SwitchPlanRequest) handler.Response {
		a := actor(ctx)
		sub, err := s.Billing.CurrentSubscription(ctx, a)
		if err != nil {
			return s.fail(ctx, err)
		}
		res, err := s.Billing.SwitchPlan(ctx, a, sub.ID, req)
		if err != nil {
			return s.fail(ctx, err)
		}
		return handler.JSON(res)
	}, binder.BindJSON())
}

func (s *server) cancel() http.HandlerFunc {
	return wrap(s, func(ctx handler.Context, _ empty) handler.Response {
		a := actor(ctx)
		sub, err := s.Billing.CurrentSubscription(ctx, a)
		if err != nil {
			return s.fail(ctx, err)
		}
		if sub, err = s.Billing.Cancel(ctx, a, sub.ID); err != nil {
			return s.fail(ctx, err)
		}
		return handler.JSON(sub)
	})
}

func (s *server) resume() http.HandlerFunc {
	return wrap(s, func(ctx handler.Context, _ empty) handler.Response {
		a := actor(ctx)
		sub, err := s.Billing.CurrentSubscription(ctx, a)
		if err != nil {
			return s.fail(ctx, err)
		}
		if sub, err = s.Billing.Resume(ctx, a, sub.ID); err != nil {
			return s.fail(ctx, err)
		}
		return handler.JSON(sub)
	})
}

func (s *server) portal() http.HandlerFunc {
	return wrap(s, func(ctx handler.Context, _ empty) handler.Response {
		link, err := s.Billing.CustomerPortalLink(ctx, actor(ctx))
		if err != nil {
			return s.fail(ctx, err)
		}
		return handler.JSON(link)
	})
}

func (s *server) usage() http.HandlerFunc {
	return wrap(s, func(ctx handler.Context, _ empty) handler.Response {
		usage, err := s.Billing.Usage(ctx, actor(ctx).UserID)
		if err != nil {
			return s.fail(ctx, err)
		}
		return handler.JSON(usage)
	})
}

// fail logs err through the shared error handler and returns a response
// that has already been written.
func (s *server) fail(ctx handler.Context, err error) handler.Response {
	s.errors(ctx, err)
	return written{}
}

type written struct{}

func (written) Render(http.ResponseWriter, *http.Request) error { return nil }
