package webhook

import "errors"

var (
	ErrMissingSecret     = errors.New("webhook secret is required")
	ErrEmptyPayload      = errors.New("webhook payload is empty")
	ErrMissingSignature  = errors.New("webhook signature is missing")
	ErrMalformedHeader   = errors.New("webhook signature header is malformed")
	ErrSignatureMismatch = errors.New("webhook signature mismatch")
	ErrSignatureExpired  = errors.New("webhook signature timestamp outside tolerance")
	ErrInvalidURL        = errors.New("invalid webhook URL")
	ErrDeliveryFailed    = errors.New("webhook delivery failed")
	ErrPermanentFailure  = errors.New("webhook endpoint rejected the payload")
)
