// Command linkshelf serves the billing API and runs the periodic
// subscription and report jobs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/linkshelf/linkshelf/internal/api"
	"github.com/linkshelf/linkshelf/internal/db"
	"github.com/linkshelf/linkshelf/internal/store/postgres"
	"github.com/linkshelf/linkshelf/internal/store/redisstore"
	"github.com/linkshelf/linkshelf/pkg/audit"
	"github.com/linkshelf/linkshelf/pkg/billing"
	"github.com/linkshelf/linkshelf/pkg/billing/paddle"
	"github.com/linkshelf/linkshelf/pkg/billing/signed"
	"github.com/linkshelf/linkshelf/pkg/clientip"
	appconfig "github.com/linkshelf/linkshelf/pkg/config"
	"github.com/linkshelf/linkshelf/pkg/email"
	"github.com/linkshelf/linkshelf/pkg/httpserver"
	"github.com/linkshelf/linkshelf/pkg/logger"
	"github.com/linkshelf/linkshelf/pkg/notifications"
	"github.com/linkshelf/linkshelf/pkg/pg"
	"github.com/linkshelf/linkshelf/pkg/ratelimiter"
	"github.com/linkshelf/linkshelf/pkg/redis"
	"github.com/linkshelf/linkshelf/pkg/reports"
	"github.com/linkshelf/linkshelf/pkg/requestid"
	"github.com/linkshelf/linkshelf/pkg/webhook"
)

func main() {
	seed := flag.String("seed", "", "seed the plan catalog from a YAML file before serving")
	flag.Parse()

	var cfg config
	appconfig.MustLoad(&cfg)

	log := logger.New(
		logger.WithEnvironment(cfg.App.Env, cfg.App.ServiceName),
		logger.WithContextExtractors(requestid.LogExtractor(), clientip.LogExtractor()),
	)
	logger.SetAsDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log, *seed); err != nil {
		log.Error("linkshelf stopped with error", logger.Error(err))
		os.Exit(1)
	}
}

// provider is what the API needs from a billing provider.
type provider interface {
	billing.BillingProvider
	api.SignatureReader
}

func newProvider(cfg config) (provider, error) {
	if cfg.Paddle.APIKey != "" {
		return paddle.New(cfg.Paddle)
	}
	return signed.New(cfg.Signed)
}

func run(ctx context.Context, cfg config, log *slog.Logger, seedPath string) error {
	pool, err := pg.Connect(ctx, cfg.PG)
	if err != nil {
		return err
	}
	defer pool.Close()
	sqlDB := pg.OpenDB(pool)
	defer sqlDB.Close()

	if err := pg.Migrate(ctx, sqlDB, db.Migrations, db.MigrationsDir, cfg.PG, log); err != nil {
		return err
	}

	rdb, err := redis.Connect(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer rdb.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	auditLog := audit.NewLogger(postgres.NewAuditStore(sqlDB), audit.WithLogger(log))

	deliverer, closeDeliverer, err := newDeliverer(cfg, rdb, log)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := closeDeliverer(shutdownCtx); err != nil {
			log.Error("failed to drain notification queue", logger.Error(err))
		}
	}()
	notifier := notifications.NewManager(postgres.NewNotificationStore(sqlDB), deliverer,
		notifications.WithManagerLogger(log))

	prov, err := newProvider(cfg)
	if err != nil {
		return fmt.Errorf("billing provider: %w", err)
	}
	log.Info("billing provider configured", "provider", prov.Name())

	catalog := billing.NewCatalog(postgres.NewPlanStore(sqlDB),
		billing.WithCatalogLogger(log),
		billing.WithCatalogAudit(auditLog),
		billing.WithCurrentVersionCache(cfg.App.PlanCacheSize, cfg.App.PlanCacheTTL),
	)
	if seedPath != "" {
		if err := seedCatalog(ctx, catalog, seedPath, log); err != nil {
			return err
		}
	}

	subs := postgres.NewSubscriptionStore(sqlDB)
	metrics := billing.NewMetrics(reg)
	opts := []billing.Option{
		billing.WithLogger(log),
		billing.WithNotifier(notifier),
		billing.WithAudit(auditLog),
		billing.WithMetrics(metrics),
		billing.WithDefaultPlan(cfg.App.DefaultPlan),
	}
	svc := billing.NewService(catalog, subs, prov, opts...)
	reconciler := billing.NewReconciler(prov, catalog, subs, subs,
		redisstore.NewEventLog(rdb, redisstore.WithTTL(cfg.App.EventTTL)), opts...)
	jobs := billing.NewJobs(catalog, subs, opts...)

	reportStore := postgres.NewReportStore(sqlDB)
	runner := reports.NewRunner(reportStore, reports.NewSources(subs, subs, catalog),
		reports.WithNotifier(notifier),
		reports.WithGenerator(reports.NewWebhookGenerator(webhook.NewSender(webhook.WithSecret(cfg.App.ReportWebhookSecret)))),
		reports.WithLogger(log),
		reports.WithRegisterer(reg),
	)

	limiter, err := ratelimiter.New(ratelimiter.NewRedisStore(rdb, ""), cfg.RateLimit)
	if err != nil {
		return err
	}

	router := api.NewRouter(api.Deps{
		Billing:       svc,
		Catalog:       catalog,
		Webhooks:      reconciler,
		Signatures:    prov,
		Reports:       reports.NewService(reportStore, reports.WithServiceAudit(auditLog), reports.WithServiceLogger(log)),
		Notifications: notifier,
		Health: map[string]httpserver.HealthCheck{
			"postgres": pg.Healthcheck(sqlDB),
			"redis":    redis.Healthcheck(rdb),
		},
		ClientIP:   clientip.New(cfg.ClientIP.TrustedHeaders...),
		Limiter:    limiter,
		Registerer: reg,
		Gatherer:   reg,
		Logger:     log,
	})

	scheduler, err := newScheduler(cfg.App, jobs, runner, log)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpserver.New(cfg.HTTP, httpserver.WithLogger(log)).Run(ctx, router)
	})
	g.Go(func() error {
		scheduler.Start()
		<-ctx.Done()
		<-scheduler.Stop().Done()
		log.Info("job scheduler stopped")
		return nil
	})
	return g.Wait()
}

// newDeliverer sends email through Postmark when it is configured and only
// logs notifications otherwise.
func newDeliverer(cfg config, rdb goredis.UniversalClient, log *slog.Logger) (notifications.Deliverer, func(context.Context) error, error) {
	if cfg.Email.PostmarkServerToken == "" {
		log.Warn("postmark is not configured, notifications are only logged")
		return notifications.LogDeliverer{Log: log}, func(context.Context) error { return nil }, nil
	}
	sender, err := email.NewPostmarkSender(cfg.Email)
	if err != nil {
		return nil, nil, err
	}
	async := notifications.NewAsyncDeliverer(
		notifications.NewEmailDeliverer(sender, redisstore.NewAddressBook(rdb, cfg.App.AddressKey), cfg.App.AppURL),
		log,
		notifications.AsyncOptions{Workers: cfg.App.NotificationWorkers, QueueSize: cfg.App.NotificationQueue},
	)
	return async, async.Close, nil
}

func seedCatalog(ctx context.Context, catalog *billing.Catalog, path string, log *slog.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()

	n, err := catalog.SeedFromYAML(ctx, f)
	if err != nil {
		return errors.Join(fmt.Errorf("seed catalog from %s", path), err)
	}
	log.InfoContext(ctx, "plan catalog seeded", "path", path, "created", n)
	return nil
}
