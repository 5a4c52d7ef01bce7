package reports

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/linkshelf/linkshelf/pkg/billing"
	"github.com/linkshelf/linkshelf/pkg/logger"
	"github.com/linkshelf/linkshelf/pkg/notifications"
)

// Generator receives every computed report, e.g. to export or forward it.
type Generator interface {
	Generate(ctx context.Context, s Schedule, sum *Summary) error
}

type GeneratorFunc func(ctx context.Context, s Schedule, sum *Summary) error

func (f GeneratorFunc) Generate(ctx context.Context, s Schedule, sum *Summary) error {
	return f(ctx, s, sum)
}

// Notifier is satisfied by *notifications.Manager.
type Notifier interface {
	SendOnce(ctx context.Context, n notifications.Notification) (bool, error)
}

// Runner executes due schedules. Runs are claimed by compare-and-set on
// NextRunAt, so overlapping or repeated invocations produce each report once.
type Runner struct {
	store     Store
	sources   Sources
	generator Generator
	notifier  Notifier
	log       *slog.Logger
	runs      *prometheus.CounterVec
}

type RunnerOption func(*Runner)

func WithGenerator(g Generator) RunnerOption {
	return func(r *Runner) { r.generator = g }
}

func WithNotifier(n Notifier) RunnerOption {
	return func(r *Runner) { r.notifier = n }
}

func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.log = l
		}
	}
}

// WithRegisterer registers the runner's counters with reg.
func WithRegisterer(reg prometheus.Registerer) RunnerOption {
	return func(r *Runner) {
		if reg != nil {
			reg.MustRegister(r.runs)
		}
	}
}

func NewRunner(store Store, src Sources, opts ...RunnerOption) *Runner {
	if store == nil {
		panic("reports: Store is required")
	}
	if src == nil {
		panic("reports: Sources is required")
	}
	r := &Runner{
		store:   store,
		sources: src,
		log:     slog.Default(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "linkshelf",
			Subsystem: "reports",
			Name:      "runs_total",
			Help:      "Report schedule runs by outcome.",
		}, []string{"result"}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Runs exposes the run counter, mainly for tests.
func (r *Runner) Runs() *prometheus.CounterVec { return r.runs }

// RunDue runs every schedule due at now and returns how many it ran.
// Periods missed while the runner was down are not backfilled: the next run
// is computed from now.
func (r *Runner) RunDue(ctx context.Context, now time.Time) (int, error) {
	due, err := r.store.Due(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to load due report schedules: %w", err)
	}

	var (
		ran  int
		errs []error
	)
	for _, s := range due {
		ok, err := r.run(ctx, s, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("schedule %s: %w", s.ID, err))
		}
		if ok {
			ran++
		}
	}
	return ran, errors.Join(errs...)
}

func (r *Runner) run(ctx context.Context, s Schedule, now time.Time) (bool, error) {
	log := r.log.With(logger.ScheduleID(s.ID), slog.String("frequency", string(s.Frequency)))

	scheduled := s.NextRunAt
	claimed, err := r.store.ClaimRun(ctx, s.ID, scheduled, s.NextRun(now), now)
	if err != nil {
		r.runs.WithLabelValues("failed").Inc()
		return false, err
	}
	if !claimed {
		r.runs.WithLabelValues("skipped").Inc()
		log.DebugContext(ctx, "report run already claimed")
		return false, nil
	}

	from, to := s.Window(scheduled)
	sum, err := Summarize(ctx, r.sources, from, to)
	if err != nil {
		r.runs.WithLabelValues("failed").Inc()
		log.ErrorContext(ctx, "failed to summarize report", logger.Error(err))
		return true, err
	}

	var errs []error
	if r.generator != nil {
		if err := r.generator.Generate(ctx, s, sum); err != nil {
			log.ErrorContext(ctx, "report generator failed", logger.Error(err))
			errs = append(errs, err)
		}
	}
	if err := r.email(ctx, s, scheduled, sum); err != nil {
		log.ErrorContext(ctx, "failed to notify report recipients", logger.Error(err))
		errs = append(errs, err)
	}

	result := "completed"
	if len(errs) > 0 {
		result = "partial"
	}
	r.runs.WithLabelValues(result).Inc()
	log.InfoContext(ctx, "report run finished",
		slog.String("result", result), slog.Time("from", from), slog.Time("to", to))
	return true, errors.Join(errs...)
}

func (r *Runner) email(ctx context.Context, s Schedule, run time.Time, sum *Summary) error {
	if r.notifier == nil {
		return nil
	}
	title := fmt.Sprintf("%s report: %s", s.Name, sum.To.Format("2006-01-02"))
	body := Render(s.Config.Metrics, sum)

	var errs []error
	for _, to := range s.Config.Recipients {
		_, err := r.notifier.SendOnce(ctx, notifications.Notification{
			Email:    to,
			Kind:     notifications.KindReportReady,
			Severity: notifications.SeverityInfo,
			Title:    title,
			Message:  body,
			Data:     map[string]any{"schedule_id": s.ID.String(), "type": string(s.Type)},
			DedupKey: fmt.Sprintf("report:%s:%d:%s", s.ID, run.Unix(), to),
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Render formats the sections enabled in m as plain text.
func Render(m Metrics, sum *Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Period: %s to %s\n", sum.From.Format(time.DateOnly), sum.To.Format(time.DateOnly))

	if m.Subscriptions {
		fmt.Fprintf(&b, "\nSubscriptions\n")
		fmt.Fprintf(&b, "  active: %d, trialing: %d, payment failed: %d, cancelling: %d\n",
			sum.Active, sum.Trialing, sum.PaymentFailed, sum.CancelledPending)
		fmt.Fprintf(&b, "  new: %d, cancelled: %d\n", sum.New, sum.Cancelled)
	}
	for _, c := range sum.Currencies {
		if !m.Revenue && !m.Taxes && !m.Refunds {
			break
		}
		fmt.Fprintf(&b, "\n%s\n", c.Currency)
		if m.Revenue {
			fmt.Fprintf(&b, "  MRR: %s\n", billing.FormatMoney(c.MRR, c.Currency))
			fmt.Fprintf(&b, "  gross: %s\n", billing.FormatMoney(c.Gross, c.Currency))
			fmt.Fprintf(&b, "  net: %s\n", billing.FormatMoney(c.Net, c.Currency))
		}
		if m.Taxes {
			fmt.Fprintf(&b, "  taxes: %s\n", billing.FormatMoney(c.Taxes, c.Currency))
		}
		if m.Refunds {
			fmt.Fprintf(&b, "  refunds: %s\n", billing.FormatMoney(c.Refunds, c.Currency))
		}
	}
	return b.String()
}
