// Package signed implements billing.BillingProvider for a normalized JSON
// event feed authenticated with a shared HMAC secret.
//
// The provider never talks to an external API: checkout and portal links
// point at a configured base URL and plan changes are accepted as-is. It
// backs local development and upstream gateways that already translate
// processor events into the normalized envelope.
package signed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/linkshelf/linkshelf/pkg/billing"
	"github.com/linkshelf/linkshelf/pkg/webhook"
)

type Config struct {
	Secret    string        `env:"BILLING_WEBHOOK_SECRET"`
	BaseURL   string        `env:"BILLING_CHECKOUT_BASE_URL" envDefault:"http://localhost:8080/billing/mock"`
	Tolerance time.Duration `env:"BILLING_WEBHOOK_TOLERANCE" envDefault:"5m"`
}

var (
	ErrMissingSecret  = errors.New("signed provider secret is required")
	ErrInvalidBaseURL = errors.New("signed provider base URL is invalid")
)

type Provider struct {
	secret    string
	base      *url.URL
	tolerance time.Duration
	now       func() time.Time
}

type Option func(*Provider)

// WithClock overrides the time source used for signature tolerance.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) {
		if now != nil {
			p.now = now
		}
	}
}

func New(cfg Config, opts ...Option) (*Provider, error) {
	if cfg.Secret == "" {
		return nil, ErrMissingSecret
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, cfg.BaseURL)
	}
	p := &Provider{
		secret:    cfg.Secret,
		base:      base,
		tolerance: cfg.Tolerance,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Provider) Name() string { return "signed" }

func (p *Provider) CreateCheckoutLink(_ context.Context, req billing.CheckoutRequest) (*billing.CheckoutLink, error) {
	if req.PriceID == "" {
		return nil, billing.ErrMissingPriceID
	}
	q := url.Values{}
	q.Set("price", req.PriceID)
	q.Set("subscription", req.SubscriptionID.String())
	q.Set("user", req.UserID.String())
	if req.SuccessURL != "" {
		q.Set("success_url", req.SuccessURL)
	}
	if req.CancelURL != "" {
		q.Set("cancel_url", req.CancelURL)
	}
	return &billing.CheckoutLink{
		URL:       p.link("checkout", q),
		SessionID: "chk_" + req.SubscriptionID.String(),
		ExpiresAt: p.now().Add(24 * time.Hour),
	}, nil
}

func (p *Provider) GetCustomerPortalLink(_ context.Context, sub *billing.Subscription) (*billing.PortalLink, error) {
	if sub == nil || sub.ProviderCustomerID == "" {
		return nil, billing.ErrMissingProviderCustomerID
	}
	q := url.Values{}
	q.Set("customer", sub.ProviderCustomerID)
	return &billing.PortalLink{URL: p.link("portal", q)}, nil
}

func (p *Provider) ChangePlan(_ context.Context, req billing.ChangePlanRequest) error {
	if req.ProviderSubID == "" {
		return billing.ErrCheckoutRequired
	}
	if req.PriceID == "" {
		return billing.ErrMissingPriceID
	}
	return nil
}

func (p *Provider) CancelSubscription(_ context.Context, providerSubID string) error {
	if providerSubID == "" {
		return billing.ErrCheckoutRequired
	}
	return nil
}

func (p *Provider) ResumeSubscription(_ context.Context, providerSubID string) error {
	if providerSubID == "" {
		return billing.ErrCheckoutRequired
	}
	return nil
}

// ParseWebhook accepts the packed "t=<unix>,v1=<hex>" signature form.
func (p *Provider) ParseWebhook(_ context.Context, payload []byte, signature string) (*billing.WebhookEvent, error) {
	sig, err := webhook.Parse(signature)
	if err != nil {
		return nil, errors.Join(billing.ErrWebhookVerificationFailed, err)
	}
	if err := webhook.Verify(p.secret, payload, sig, p.tolerance, p.now()); err != nil {
		return nil, errors.Join(billing.ErrWebhookVerificationFailed, err)
	}
	return decodeEvent(payload)
}

// SignatureFromHeader packs the X-Webhook-Signature and X-Webhook-Timestamp
// headers into the form ParseWebhook expects. Missing headers yield an empty
// string, which ParseWebhook rejects.
func (p *Provider) SignatureFromHeader(h http.Header) string {
	sig, err := webhook.FromHeader(h)
	if err != nil {
		return ""
	}
	return sig.String()
}

func (p *Provider) link(action string, q url.Values) string {
	u := *p.base
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + action
	u.RawQuery = q.Encode()
	return u.String()
}
