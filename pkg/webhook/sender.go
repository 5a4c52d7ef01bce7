package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const userAgent = "linkshelf-webhook/1.0"

// Attempt describes a single delivery try, reported to the WithOnAttempt hook.
type Attempt struct {
	Number     int
	StatusCode int
	Duration   time.Duration
	Err        error
}

// Sender posts signed JSON payloads with retries.
type Sender struct {
	client     *http.Client
	secret     string
	maxRetries int
	timeout    time.Duration
	backoff    Backoff
	onAttempt  func(Attempt)
	now        func() time.Time
}

type Option func(*Sender)

// WithSecret signs every payload with the shared secret.
func WithSecret(secret string) Option {
	return func(s *Sender) { s.secret = secret }
}

func WithMaxRetries(n int) Option {
	return func(s *Sender) {
		if n >= 0 {
			s.maxRetries = n
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(s *Sender) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithBackoff(b Backoff) Option {
	return func(s *Sender) {
		if b != nil {
			s.backoff = b
		}
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(s *Sender) {
		if c != nil {
			s.client = c
		}
	}
}

// WithOnAttempt registers a hook called after every delivery try.
func WithOnAttempt(fn func(Attempt)) Option {
	return func(s *Sender) { s.onAttempt = fn }
}

func NewSender(opts ...Option) *Sender {
	s := &Sender{
		client:     &http.Client{},
		maxRetries: 3,
		timeout:    10 * time.Second,
		backoff:    Exponential(time.Second, 30*time.Second),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send marshals data to JSON and posts it to target. 4xx responses other
// than 408 and 429 are not retried.
func (s *Sender) Send(ctx context.Context, target string, data any) error {
	if err := validateURL(target); err != nil {
		return err
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.backoff(attempt)):
			}
		}

		start := time.Now()
		status, err := s.post(ctx, target, payload)
		if s.onAttempt != nil {
			s.onAttempt(Attempt{Number: attempt + 1, StatusCode: status, Duration: time.Since(start), Err: err})
		}
		if err == nil {
			return nil
		}
		lastErr = err
		if permanent(status) {
			return errors.Join(ErrPermanentFailure, err)
		}
	}
	return errors.Join(ErrDeliveryFailed, fmt.Errorf("after %d attempts", s.maxRetries+1), lastErr)
}

func (s *Sender) post(ctx context.Context, target string, payload []byte) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if s.secret != "" {
		sig, err := Sign(s.secret, payload, s.now())
		if err != nil {
			return 0, err
		}
		sig.Apply(req.Header)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

func permanent(status int) bool {
	return status >= 400 && status < 500 &&
		status != http.StatusRequestTimeout && status != http.StatusTooManyRequests
}

func validateURL(target string) error {
	u, err := url.Parse(target)
	if err != nil {
		return errors.Join(ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme must be http or https", ErrInvalidURL)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidURL)
	}
	return nil
}
