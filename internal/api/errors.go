package api

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/linkshelf/linkshelf/binder"
	"github.com/linkshelf/linkshelf/handler"
	"github.com/linkshelf/linkshelf/pkg/billing"
	"github.com/linkshelf/linkshelf/pkg/reports"
)

var (
	conflictErrors = []error{
		billing.ErrSubscriptionAlreadyExists,
		billing.ErrPlanUnavailable,
		billing.ErrDuplicateVersionLabel,
		billing.ErrInvalidSubscriptionState,
		billing.ErrCheckoutRequired,
		billing.ErrMissingProviderCustomerID,
	}
	unprocessableErrors = []error{
		billing.ErrSamePlanVersion,
		billing.ErrInvalidRequest,
		billing.ErrInvalidInterval,
		billing.ErrInvalidVersionLabel,
		billing.ErrNegativePrice,
		billing.ErrInvalidValidityWindow,
		billing.ErrInvalidPlan,
		billing.ErrInvalidVersion,
		billing.ErrCurrencyMismatch,
		billing.ErrLimitExceeded,
		billing.ErrInvalidResource,
		billing.ErrDowngradeNotPossible,
		reports.ErrInvalidSchedule,
	}
)

// classify maps service and binder errors onto HTTP errors. An HTTPError
// anywhere in the chain wins. Provider failures get a generic message.
func classify(err error) error {
	var httpErr handler.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		out := handler.NewValidationError()
		for _, fe := range verrs {
			out.Add(snakeCase(fe.Field()), fmt.Sprintf("failed on the %q rule", fe.Tag()))
		}
		return out
	}

	switch {
	case errors.Is(err, binder.ErrBodyTooLarge):
		return handler.ErrRequestTooLarge
	case errors.Is(err, binder.ErrUnsupportedMediaType), errors.Is(err, binder.ErrMissingContentType):
		return handler.ErrUnsupportedMediaType.WithMessage(err.Error())
	case errors.Is(err, binder.ErrInvalidJSON), errors.Is(err, binder.ErrInvalidQuery), errors.Is(err, binder.ErrInvalidPath):
		return handler.ErrBadRequest.WithMessage(err.Error())
	case billing.IsNotFound(err), errors.Is(err, reports.ErrScheduleNotFound):
		return handler.ErrNotFound.WithMessage(firstLine(err))
	case errors.Is(err, billing.ErrForbidden), errors.Is(err, reports.ErrForbidden):
		return handler.ErrForbidden
	case errors.Is(err, billing.ErrProviderError), errors.Is(err, billing.ErrMissingPriceID):
		return handler.ErrBadGateway.WithMessage("billing provider unavailable, try again later")
	case isAny(err, conflictErrors):
		return handler.ErrConflict.WithMessage(firstLine(err))
	case isAny(err, unprocessableErrors):
		return handler.ErrUnprocessableEntity.WithMessage(firstLine(err))
	}
	return err
}

func isAny(err error, targets []error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

// firstLine trims errors.Join output to its leading message.
func firstLine(err error) string {
	msg, _, _ := strings.Cut(err.Error(), "\n")
	return msg
}

func snakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 && !unicode.IsUpper(rune(s[i-1])) {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}
