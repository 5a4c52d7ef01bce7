// Package paddle implements billing.BillingProvider on top of Paddle Billing.
package paddle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"

	"github.com/linkshelf/linkshelf/pkg/billing"
)

// Config holds the Paddle credentials.
type Config struct {
	APIKey        string `env:"PADDLE_API_KEY"`
	WebhookSecret string `env:"PADDLE_WEBHOOK_SECRET"`
	Environment   string `env:"PADDLE_ENVIRONMENT" envDefault:"production"`
}

var (
	ErrMissingAPIKey        = errors.New("paddle API key is required")
	ErrMissingWebhookSecret = errors.New("paddle webhook secret is required")
	ErrInvalidEnvironment   = errors.New("invalid paddle environment")
)

// Provider implements billing.BillingProvider for Paddle.
type Provider struct {
	client   *paddle.SDK
	verifier *paddle.WebhookVerifier
	now      func() time.Time
}

// New creates a Paddle provider for the production or sandbox environment.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.WebhookSecret == "" {
		return nil, ErrMissingWebhookSecret
	}

	var (
		client *paddle.SDK
		err    error
	)
	switch strings.ToLower(cfg.Environment) {
	case "sandbox":
		client, err = paddle.NewSandbox(cfg.APIKey)
	case "production", "":
		client, err = paddle.New(cfg.APIKey)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidEnvironment, cfg.Environment)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create paddle client: %w", err)
	}

	return &Provider{
		client:   client,
		verifier: paddle.NewWebhookVerifier(cfg.WebhookSecret),
		now:      time.Now,
	}, nil
}

func (p *Provider) Name() string { return "paddle" }

// CreateCheckoutLink creates a draft transaction and returns its hosted
// checkout URL. The local subscription and user ids travel as custom data and
// come back on every webhook for the resulting subscription.
func (p *Provider) CreateCheckoutLink(ctx context.Context, req billing.CheckoutRequest) (*billing.CheckoutLink, error) {
	if req.PriceID == "" {
		return nil, billing.ErrMissingPriceID
	}

	item := paddle.NewCreateTransactionItemsTransactionItemFromCatalog(&paddle.TransactionItemFromCatalog{
		PriceID:  req.PriceID,
		Quantity: 1,
	})
	txReq := &paddle.CreateTransactionRequest{
		Items: []paddle.CreateTransactionItems{*item},
		CustomData: paddle.CustomData{
			customSubscriptionID: req.SubscriptionID.String(),
			customUserID:         req.UserID.String(),
		},
	}
	if req.Email != "" {
		txReq.CustomData["email"] = req.Email
	}
	if req.SuccessURL != "" {
		txReq.Checkout = &paddle.TransactionCheckout{URL: paddle.PtrTo(req.SuccessURL)}
	}

	tx, err := p.client.TransactionsClient.CreateTransaction(ctx, txReq)
	if err != nil {
		return nil, fmt.Errorf("failed to create paddle transaction: %w", err)
	}
	if tx.Checkout == nil || tx.Checkout.URL == nil {
		return nil, errors.New("no checkout URL returned from paddle")
	}

	return &billing.CheckoutLink{
		URL:       *tx.Checkout.URL,
		SessionID: tx.ID,
		ExpiresAt: p.now().Add(24 * time.Hour),
	}, nil
}

// GetCustomerPortalLink opens a customer portal session scoped to the
// subscription.
func (p *Provider) GetCustomerPortalLink(ctx context.Context, sub *billing.Subscription) (*billing.PortalLink, error) {
	if sub == nil || sub.ProviderCustomerID == "" {
		return nil, billing.ErrMissingProviderCustomerID
	}

	req := &paddle.CreateCustomerPortalSessionRequest{CustomerID: sub.ProviderCustomerID}
	if sub.ProviderSubID != "" {
		req.SubscriptionIDs = []string{sub.ProviderSubID}
	}
	session, err := p.client.CustomerPortalSessionsClient.CreateCustomerPortalSession(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create paddle customer portal session: %w", err)
	}
	if session.URLs.General.Overview == "" {
		return nil, errors.New("no portal URL returned from paddle")
	}
	return &billing.PortalLink{
		URL:       session.URLs.General.Overview,
		ExpiresAt: p.now().Add(24 * time.Hour),
	}, nil
}

// ChangePlan swaps the subscription's only item and bills the prorated
// difference immediately.
func (p *Provider) ChangePlan(ctx context.Context, req billing.ChangePlanRequest) error {
	if req.PriceID == "" {
		return billing.ErrMissingPriceID
	}
	item := paddle.NewUpdateSubscriptionItemsSubscriptionUpdateItemFromCatalog(&paddle.SubscriptionUpdateItemFromCatalog{
		PriceID:  req.PriceID,
		Quantity: 1,
	})
	_, err := p.client.SubscriptionsClient.UpdateSubscription(ctx, &paddle.UpdateSubscriptionRequest{
		SubscriptionID:       req.ProviderSubID,
		Items:                paddle.NewPatchField([]paddle.UpdateSubscriptionItems{*item}),
		ProrationBillingMode: paddle.NewPatchField(paddle.ProrationBillingModeProratedImmediately),
	})
	if err != nil {
		return fmt.Errorf("failed to update paddle subscription: %w", err)
	}
	return nil
}

func (p *Provider) CancelSubscription(ctx context.Context, providerSubID string) error {
	_, err := p.client.SubscriptionsClient.CancelSubscription(ctx, &paddle.CancelSubscriptionRequest{
		SubscriptionID: providerSubID,
		EffectiveFrom:  paddle.PtrTo(paddle.EffectiveFromNextBillingPeriod),
	})
	if err != nil {
		return fmt.Errorf("failed to cancel paddle subscription: %w", err)
	}
	return nil
}

// ResumeSubscription drops the scheduled cancellation.
func (p *Provider) ResumeSubscription(ctx context.Context, providerSubID string) error {
	_, err := p.client.SubscriptionsClient.UpdateSubscription(ctx, &paddle.UpdateSubscriptionRequest{
		SubscriptionID:  providerSubID,
		ScheduledChange: paddle.NewPatchField[*paddle.SubscriptionScheduledChange](nil),
	})
	if err != nil {
		return fmt.Errorf("failed to resume paddle subscription: %w", err)
	}
	return nil
}

// ParseWebhook verifies the Paddle-Signature header value and normalizes the
// payload.
func (p *Provider) ParseWebhook(ctx context.Context, payload []byte, signature string) (*billing.WebhookEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/webhook", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request for verification: %w", err)
	}
	req.Header.Set(SignatureHeader, signature)

	valid, err := p.verifier.Verify(req)
	if err != nil {
		return nil, errors.Join(billing.ErrWebhookVerificationFailed, err)
	}
	if !valid {
		return nil, billing.ErrWebhookVerificationFailed
	}
	return decodeEvent(payload)
}

// SignatureHeader carries the Paddle webhook signature.
const SignatureHeader = "Paddle-Signature"

// SignatureFromHeader returns the value ParseWebhook expects.
func (p *Provider) SignatureFromHeader(h http.Header) string {
	return h.Get(SignatureHeader)
}
