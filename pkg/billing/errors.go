package billing

import "errors"

var (
	ErrPlanNotFound         = errors.New("billing plan not found")
	ErrPlanVersionNotFound  = errors.New("billing plan version not found")
	ErrPlanUnavailable      = errors.New("billing plan has no current version")
	ErrSubscriptionNotFound = errors.New("subscription not found")

	ErrForbidden = errors.New("not allowed to manage this subscription")

	ErrInvalidRequest            = errors.New("invalid billing request")
	ErrInvalidInterval           = errors.New("invalid billing interval")
	ErrInvalidVersionLabel       = errors.New("plan version label must be major.minor.patch")
	ErrDuplicateVersionLabel     = errors.New("plan version label already exists")
	ErrNegativePrice             = errors.New("plan price cannot be negative")
	ErrInvalidValidityWindow     = errors.New("plan version valid_until must be after valid_from")
	ErrInvalidPlan               = errors.New("invalid billing plan")
	ErrInvalidVersion            = errors.New("invalid billing plan version")
	ErrCurrencyMismatch          = errors.New("plan versions use different currencies")
	ErrSamePlanVersion           = errors.New("subscription is already on this plan version")
	ErrInvalidSubscriptionState  = errors.New("invalid subscription state")
	ErrSubscriptionAlreadyExists = errors.New("user already has a subscription")
	ErrCheckoutRequired          = errors.New("paid plan requires checkout first")

	ErrLimitExceeded        = errors.New("plan limit exceeded")
	ErrInvalidResource      = errors.New("invalid plan resource")
	ErrNoCounterRegistered  = errors.New("no usage counter registered for resource")
	ErrDowngradeNotPossible = errors.New("current usage exceeds target plan limits")

	ErrProviderError             = errors.New("billing provider error")
	ErrWebhookVerificationFailed = errors.New("webhook signature verification failed")
	ErrMissingPriceID            = errors.New("plan version has no provider price for this interval")
	ErrMissingProviderCustomerID = errors.New("provider customer ID not available")
)

// IsNotFound reports whether err is one of the not-found errors.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPlanNotFound) ||
		errors.Is(err, ErrPlanVersionNotFound) ||
		errors.Is(err, ErrSubscriptionNotFound)
}
