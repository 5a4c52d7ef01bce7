package handler

import (
	"log/slog"
	"net/http"

	"github.com/linkshelf/linkshelf/pkg/logger"
	"github.com/linkshelf/linkshelf/pkg/requestid"
)

// Classifier translates domain errors into HTTPError or ValidationError
// values. Errors it does not recognise are returned unchanged.
type Classifier func(error) error

// NewErrorHandler logs every failed request and renders the classified error
// as JSON. Client errors log at warn, server errors at error.
func NewErrorHandler(log *slog.Logger, classify Classifier) ErrorHandler[Context] {
	if log == nil {
		log = slog.Default()
	}
	if classify == nil {
		classify = func(err error) error { return err }
	}

	return func(ctx Context, err error) {
		r := ctx.Request()
		mapped := classify(err)
		status := StatusOf(mapped)

		level := slog.LevelError
		if status < http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		log.LogAttrs(r.Context(), level, "request failed",
			logger.RequestID(requestid.FromContext(r.Context())),
			logger.Error(err),
			slog.Int("status_code", status),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			logger.Component("api"),
		)

		if renderErr := JSONError(mapped).Render(ctx.ResponseWriter(), r); renderErr != nil {
			log.ErrorContext(r.Context(), "failed to render error response", logger.Error(renderErr))
		}
	}
}
