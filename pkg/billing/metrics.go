package billing

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the billing Prometheus collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	webhookEvents *prometheus.CounterVec
	planSwitches  *prometheus.CounterVec
	prorationNet  prometheus.Histogram
	notices       *prometheus.CounterVec
	sweeps        *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg when it is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "linkshelf",
			Subsystem: "billing",
			Name:      "webhook_events_total",
			Help:      "Billing provider webhook events by type and outcome.",
		}, []string{"type", "result"}),
		planSwitches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "linkshelf",
			Subsystem: "billing",
			Name:      "plan_switches_total",
			Help:      "Plan switch attempts by outcome.",
		}, []string{"result"}),
		prorationNet: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "linkshelf",
			Subsystem: "billing",
			Name:      "proration_net_amount",
			Help:      "Net amount charged (negative: credited) on plan switches.",
			Buckets:   []float64{-100, -25, -5, 0, 5, 25, 100, 500},
		}),
		notices: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "linkshelf",
			Subsystem: "billing",
			Name:      "notices_sent_total",
			Help:      "Scheduled subscription notices sent by kind.",
		}, []string{"kind"}),
		sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "linkshelf",
			Subsystem: "billing",
			Name:      "subscriptions_ended_total",
			Help:      "Subscriptions moved to a terminal status by the sweep job.",
		}, []string{"status"}),
	}
	if reg != nil {
		reg.MustRegister(m.webhookEvents, m.planSwitches, m.prorationNet, m.notices, m.sweeps)
	}
	return m
}

const (
	resultApplied   = "applied"
	resultDuplicate = "duplicate"
	resultIgnored   = "ignored"
	resultFailed    = "failed"
	resultRejected  = "rejected"
)

func (m *Metrics) webhook(t EventType, result string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(string(t), result).Inc()
}

func (m *Metrics) planSwitch(result string, p *Proration) {
	if m == nil {
		return
	}
	m.planSwitches.WithLabelValues(result).Inc()
	if p != nil {
		m.prorationNet.Observe(p.NetAmount.InexactFloat64())
	}
}

func (m *Metrics) notice(kind string) {
	if m == nil {
		return
	}
	m.notices.WithLabelValues(kind).Inc()
}

func (m *Metrics) swept(status SubscriptionStatus) {
	if m == nil {
		return
	}
	m.sweeps.WithLabelValues(string(status)).Inc()
}

// WebhookEvents exposes the webhook counter for tests and dashboards.
func (m *Metrics) WebhookEvents() *prometheus.CounterVec { return m.webhookEvents }

// PlanSwitches exposes the plan switch counter.
func (m *Metrics) PlanSwitches() *prometheus.CounterVec { return m.planSwitches }
