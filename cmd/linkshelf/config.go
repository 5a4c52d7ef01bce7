package main

import (
	"time"

	"github.com/linkshelf/linkshelf/pkg/billing/paddle"
	"github.com/linkshelf/linkshelf/pkg/billing/signed"
	"github.com/linkshelf/linkshelf/pkg/clientip"
	"github.com/linkshelf/linkshelf/pkg/email"
	"github.com/linkshelf/linkshelf/pkg/httpserver"
	"github.com/linkshelf/linkshelf/pkg/pg"
	"github.com/linkshelf/linkshelf/pkg/ratelimiter"
	"github.com/linkshelf/linkshelf/pkg/redis"
)

type appConfig struct {
	Env         string `env:"APP_ENV" envDefault:"development"`
	ServiceName string `env:"APP_SERVICE" envDefault:"linkshelf"`
	AppURL      string `env:"APP_URL" envDefault:"http://localhost:8080"`

	DefaultPlan   string        `env:"BILLING_DEFAULT_PLAN" envDefault:"free"`
	PlanCacheSize int           `env:"BILLING_PLAN_CACHE_SIZE" envDefault:"256"`
	PlanCacheTTL  time.Duration `env:"BILLING_PLAN_CACHE_TTL" envDefault:"1m"`
	EventTTL      time.Duration `env:"BILLING_EVENT_TTL" envDefault:"72h"`

	RenewalNoticeWindow time.Duration `env:"BILLING_RENEWAL_NOTICE_WINDOW" envDefault:"72h"`
	TrialNoticeWindow   time.Duration `env:"BILLING_TRIAL_NOTICE_WINDOW" envDefault:"72h"`
	DailySchedule       string        `env:"JOBS_DAILY_SCHEDULE" envDefault:"0 6 * * *"`
	ReportsSchedule     string        `env:"JOBS_REPORTS_SCHEDULE" envDefault:"5 * * * *"`

	ReportWebhookSecret string `env:"REPORTS_WEBHOOK_SECRET"`
	AddressKey          string `env:"USER_EMAIL_HASH" envDefault:"users:email"`

	NotificationWorkers int `env:"NOTIFICATION_WORKERS" envDefault:"4"`
	NotificationQueue   int `env:"NOTIFICATION_QUEUE_SIZE" envDefault:"256"`
}

type config struct {
	App    appConfig
	HTTP   httpserver.Config
	PG     pg.Config
	Redis  redis.Config
	Email  email.Config
	Paddle paddle.Config
	Signed signed.Config

	ClientIP  clientip.Config
	RateLimit ratelimiter.Config
}
