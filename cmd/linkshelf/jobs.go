package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/linkshelf/linkshelf/pkg/billing"
	"github.com/linkshelf/linkshelf/pkg/logger"
	"github.com/linkshelf/linkshelf/pkg/reports"
)

// jobTimeout bounds a single scheduled run.
const jobTimeout = 10 * time.Minute

func newScheduler(cfg appConfig, jobs *billing.Jobs, runner *reports.Runner, log *slog.Logger) (*cron.Cron, error) {
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger), cron.Recover(cron.DiscardLogger)),
	)

	daily := func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		now := time.Now().UTC()

		if n, err := jobs.NotifyUpcomingRenewals(ctx, now, cfg.RenewalNoticeWindow); err != nil {
			log.ErrorContext(ctx, "renewal notices failed", logger.Error(err))
		} else {
			log.InfoContext(ctx, "renewal notices sent", slog.Int("count", n))
		}
		if n, err := jobs.NotifyTrialEnding(ctx, now, cfg.TrialNoticeWindow); err != nil {
			log.ErrorContext(ctx, "trial notices failed", logger.Error(err))
		} else {
			log.InfoContext(ctx, "trial notices sent", slog.Int("count", n))
		}
		if n, err := jobs.SweepExpired(ctx, now); err != nil {
			log.ErrorContext(ctx, "subscription sweep failed", logger.Error(err))
		} else {
			log.InfoContext(ctx, "subscriptions swept", slog.Int("count", n))
		}
	}

	hourly := func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		n, err := runner.RunDue(ctx, time.Now().UTC())
		if err != nil {
			log.ErrorContext(ctx, "report run failed", logger.Error(err))
			return
		}
		if n > 0 {
			log.InfoContext(ctx, "reports generated", slog.Int("count", n))
		}
	}

	if _, err := c.AddFunc(cfg.DailySchedule, daily); err != nil {
		return nil, err
	}
	if _, err := c.AddFunc(cfg.ReportsSchedule, hourly); err != nil {
		return nil, err
	}
	return c, nil
}
