package billing

import (
	"log/slog"
	"time"
)

// options are shared by Service, Reconciler and Jobs. Each reads the fields
// it needs.
type options struct {
	notifier        Notifier
	audit           AuditLog
	metrics         *Metrics
	log             *slog.Logger
	now             func() time.Time
	counters        map[Resource]ResourceCounterFunc
	defaultPlanSlug string
}

// Option configures Service, Reconciler and Jobs.
type Option func(*options)

func newOptions(opts []Option) options {
	o := options{
		notifier:        noopNotifier{},
		audit:           noopAudit{},
		log:             slog.Default(),
		now:             time.Now,
		counters:        make(map[Resource]ResourceCounterFunc),
		defaultPlanSlug: "free",
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func WithNotifier(n Notifier) Option {
	return func(o *options) {
		if n != nil {
			o.notifier = n
		}
	}
}

func WithAudit(a AuditLog) Option {
	return func(o *options) {
		if a != nil {
			o.audit = a
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithDefaultPlan names the plan whose limits apply to users without a
// subscription.
func WithDefaultPlan(slug string) Option {
	return func(o *options) { o.defaultPlanSlug = slug }
}

// WithCounter registers the usage counter for a resource. Registering the
// same resource twice panics.
func WithCounter(resource Resource, fn ResourceCounterFunc) Option {
	return func(o *options) {
		if fn == nil {
			return
		}
		if _, exists := o.counters[resource]; exists {
			panic("billing: counter for resource " + string(resource) + " already registered")
		}
		o.counters[resource] = fn
	}
}
