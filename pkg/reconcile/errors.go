package reconcile

import "errors"

var (
	// ErrInvalidSignature is returned when webhook signature validation fails.
	// This is the only error that surfaces to the provider as a non-2xx.
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrMalformedEvent is returned when an authenticated event is missing
	// fields its handler requires (e.g. no subscription reference on a
	// completed checkout). Logged and acknowledged, never retried.
	ErrMalformedEvent = errors.New("malformed provider event")

	// ErrUnresolvableOwner is returned when neither event metadata nor a
	// reverse lookup by external subscription id yields an internal user.
	ErrUnresolvableOwner = errors.New("cannot resolve subscription owner")

	// ErrPlanNotFound is returned when a price id does not resolve to a plan
	// in the catalog. Callers treat this as "no plan change".
	ErrPlanNotFound = errors.New("plan not found for price id")

	// ErrSubscriptionNotFound is returned by repositories when no row matches
	// the external subscription id.
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// ErrProviderAPI is returned when the payment provider's API rejects or
	// fails a detail-retrieval call.
	ErrProviderAPI = errors.New("payment provider API error")

	// ErrEngineNotConfigured is returned by NewEngine when a required
	// collaborator is missing.
	ErrEngineNotConfigured = errors.New("reconciliation engine not configured")
)
