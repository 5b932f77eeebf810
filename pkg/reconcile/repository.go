package reconcile

import "context"

// SubscriptionRepository is the persistence collaborator. Writes keyed by
// external subscription id must be atomic upserts: two concurrent handlers
// for the same id converge to one row, last write wins. The engine performs
// no locking of its own.
type SubscriptionRepository interface {
	// Create inserts a new canonical row. Implementations generate the
	// internal id. Creating an external subscription id that already exists
	// must behave as an update of the existing row (upsert semantics).
	Create(ctx context.Context, fields SubscriptionFields) (*Subscription, error)

	// UpdateByExternalID replaces the mutable fields of the row with the
	// given external subscription id. Returns ErrSubscriptionNotFound when no
	// row matches.
	UpdateByExternalID(ctx context.Context, externalID string, fields SubscriptionFields) (*Subscription, error)

	// FindByExternalID returns the row with the given external subscription
	// id, or ErrSubscriptionNotFound.
	FindByExternalID(ctx context.Context, externalID string) (*Subscription, error)
}

// PlanLookup resolves a provider price id to an internal plan id. A plan
// matches on either its monthly or its yearly price reference. Returns
// ErrPlanNotFound when neither matches; callers treat that as "no change".
type PlanLookup interface {
	FindPlanByPriceID(ctx context.Context, priceID string) (string, error)
}

// ProviderClient retrieves full subscription detail from the payment
// provider. Used by the checkout handler, whose session payload carries only
// a subscription reference.
type ProviderClient interface {
	GetSubscription(ctx context.Context, externalID string) (*SubscriptionEvent, error)
}

// EventDeduper short-circuits redelivered events by provider event id.
// Implementations must be safe for concurrent use. A nil deduper on the
// engine disables dedupe; the repository upsert still keeps replays
// idempotent.
type EventDeduper interface {
	// Seen marks the event id as processed and reports whether it had already
	// been marked.
	Seen(ctx context.Context, eventID string) (bool, error)
}
