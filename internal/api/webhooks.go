package api

import (
	"errors"
	"net/http"

	"github.com/linkshelf/linkshelf/binder"
	"github.com/linkshelf/linkshelf/handler"
	"github.com/linkshelf/linkshelf/pkg/billing"
	"github.com/linkshelf/linkshelf/pkg/webhook"
)

// maxWebhookBody bounds provider payloads.
const maxWebhookBody = 512 << 10

var errInvalidWebhook = handler.NewHTTPError(http.StatusBadRequest, "invalid_webhook")

type webhookRequest struct {
	payload []byte
}

func (w *webhookRequest) SetPayload(b []byte) { w.payload = b }

func (s *server) signature(h http.Header) string {
	if s.Signatures != nil {
		return s.Signatures.SignatureFromHeader(h)
	}
	return h.Get(webhook.HeaderSignature)
}

// webhook answers 200 for applied, duplicate and ignored events so the
// provider stops retrying. Bad signatures and malformed payloads are 400;
// anything else is 500 with the cause, which makes the provider redeliver.
func (s *server) webhook() http.HandlerFunc {
	return wrap(s, func(ctx handler.Context, req webhookRequest) handler.Response {
		err := s.Webhooks.HandleWebhook(ctx, req.payload, s.signature(ctx.Request().Header))
		switch {
		case err == nil:
			return handler.JSON(map[string]string{"status": "ok"})
		case errors.Is(err, billing.ErrWebhookVerificationFailed):
			return s.fail(ctx, errors.Join(err, errInvalidWebhook.WithMessage("signature verification failed")))
		case errors.Is(err, billing.ErrInvalidRequest):
			return s.fail(ctx, errors.Join(err, errInvalidWebhook.WithMessage(firstLine(err))))
		default:
			return s.fail(ctx, errors.Join(err, handler.ErrInternalServerError.WithMessage(err.Error())))
		}
	}, binder.RawBody(maxWebhookBody))
}
