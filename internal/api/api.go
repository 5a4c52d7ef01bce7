// Package api exposes the billing, reporting and notification services over
// HTTP. Authentication happens upstream; the proxy forwards the caller's
// identity in trusted headers.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/linkshelf/linkshelf/handler"
	"github.com/linkshelf/linkshelf/pkg/billing"
	"github.com/linkshelf/linkshelf/pkg/clientip"
	"github.com/linkshelf/linkshelf/pkg/httpserver"
	"github.com/linkshelf/linkshelf/pkg/notifications"
	"github.com/linkshelf/linkshelf/pkg/ratelimiter"
	"github.com/linkshelf/linkshelf/pkg/reports"
	"github.com/linkshelf/linkshelf/pkg/requestid"
)

// WebhookProcessor verifies and applies a provider webhook payload.
type WebhookProcessor interface {
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
}

// SignatureReader extracts the provider specific signature from request
// headers. Both billing providers implement it.
type SignatureReader interface {
	SignatureFromHeader(h http.Header) string
}

type Deps struct {
	Billing       billing.Service
	Catalog       *billing.Catalog
	Webhooks      WebhookProcessor
	Signatures    SignatureReader
	Reports       *reports.Service
	Notifications *notifications.Manager

	// Health checks by dependency name, served on /health.
	Health map[string]httpserver.HealthCheck

	// ClientIP defaults to clientip.New().
	ClientIP *clientip.Resolver
	// Limiter throttles billing mutations per caller. Nil disables it.
	Limiter *ratelimiter.Bucket

	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
	Logger     *slog.Logger
}

type server struct {
	Deps
	errors handler.ErrorHandler[handler.Context]
}

// NewRouter builds the HTTP handler. It panics when a required service is
// missing.
func NewRouter(d Deps) http.Handler {
	switch {
	case d.Billing == nil:
		panic("api: Billing service is required")
	case d.Catalog == nil:
		panic("api: Catalog is required")
	case d.Webhooks == nil:
		panic("api: WebhookProcessor is required")
	case d.Reports == nil:
		panic("api: Reports service is required")
	case d.Notifications == nil:
		panic("api: Notifications manager is required")
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}
	if d.ClientIP == nil {
		d.ClientIP = clientip.New()
	}

	s := &server{Deps: d, errors: handler.NewErrorHandler(d.Logger, classify)}

	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(d.ClientIP.Middleware)
	r.Use(middleware.Recoverer)
	r.Use(newHTTPMetrics(d.Registerer).middleware)
	r.Use(s.identify)

	r.Get("/health", httpserver.HealthCheckHandler(d.Logger, d.Health))
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))

	r.Post("/webhooks/billing", s.webhook())

	r.Route("/billing", func(r chi.Router) {
		r.Get("/plans", s.listPlans())
		r.Group(func(r chi.Router) {
			r.Use(s.requireUser)
			r.Get("/subscription", s.currentSubscription())
			r.Post("/subscription/preview", s.previewSwitch())
			r.Get("/usage", s.usage())

			r.Group(func(r chi.Router) {
				r.Use(s.throttle)
				r.Post("/checkout", s.checkout())
				r.Post("/subscription/switch", s.switchPlan())
				r.Post("/subscription/cancel", s.cancel())
				r.Post("/subscription/resume", s.resume())
				r.Get("/portal", s.portal())
			})
		})
	})

	r.Route("/notifications", func(r chi.Router) {
		r.Use(s.requireUser)
		r.Get("/", s.listNotifications())
		r.Post("/read", s.markNotificationsRead())
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(s.requireUser, s.requireAdmin)
		r.Post("/plans/{planID}/versions", s.createPlanVersion())
		r.Get("/report-schedules", s.listReportSchedules())
		r.Post("/report-schedules", s.createReportSchedule())
		r.Patch("/report-schedules/{scheduleID}", s.setReportScheduleActive())
	})

	return r
}

// wrap applies the shared error handler and the given binders.
func wrap[R any](s *server, h handler.HandlerFunc[handler.Context, R], binders ...handler.Bind) http.HandlerFunc {
	return handler.Wrap(h,
		handler.WithErrorHandler[handler.Context, R](s.errors),
		handler.WithBinders[handler.Context, R](binders...),
	)
}
