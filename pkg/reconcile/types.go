package reconcile

import "time"

// Status is the canonical internal subscription status. It is a closed enum:
// provider status strings are always mapped through MapStatus and never stored
// verbatim.
type Status string

const (
	StatusActive   Status = "active"
	StatusTrialing Status = "trialing"
	StatusPastDue  Status = "past_due"
	StatusCanceled Status = "canceled"
)

// BillingCycle distinguishes monthly from yearly subscriptions.
type BillingCycle string

const (
	CycleMonthly BillingCycle = "monthly"
	CycleYearly  BillingCycle = "yearly"
)

// Interval is the provider's recurring-interval vocabulary.
type Interval string

const (
	IntervalDay   Interval = "day"
	IntervalWeek  Interval = "week"
	IntervalMonth Interval = "month"
	IntervalYear  Interval = "year"
)

// Subscription is the canonical internal record this engine reconciles
// provider events into. ExternalSubscriptionID is globally unique and is the
// idempotency key for all writes.
type Subscription struct {
	ID                     string
	UserID                 string
	PlanID                 string
	ExternalCustomerID     string
	ExternalSubscriptionID string
	Status                 Status
	BillingCycle           BillingCycle
	CurrentPeriodStart     time.Time
	CurrentPeriodEnd       time.Time
	CancelAtPeriodEnd      bool
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// SubscriptionFields is the full set of mutable fields a handler writes.
// Handlers compose the complete set and issue a single repository call so a
// canceled request never leaves a partially-applied row.
type SubscriptionFields struct {
	UserID                 string
	PlanID                 string
	ExternalCustomerID     string
	ExternalSubscriptionID string
	Status                 Status
	BillingCycle           BillingCycle
	CurrentPeriodStart     time.Time
	CurrentPeriodEnd       time.Time
	CancelAtPeriodEnd      bool
}

// Event is the verified provider event envelope handed to the engine. The
// payload union carries exactly one non-nil member matching Type; events of
// types the engine does not handle carry none and are acknowledged untouched.
type Event struct {
	// ID is the provider-assigned event identifier, used for dedupe.
	ID string

	// Type is the provider event type tag, e.g. "customer.subscription.updated".
	Type string

	// Created is when the provider emitted the event. Zero when the envelope
	// omitted it.
	Created time.Time

	CheckoutCompleted   *CheckoutCompleted
	SubscriptionCreated *SubscriptionEvent
	SubscriptionUpdated *SubscriptionEvent
	SubscriptionDeleted *SubscriptionEvent
	InvoicePaid         *InvoiceEvent
	InvoiceFailed       *InvoiceEvent
}

// CheckoutCompleted carries the fields the checkout handler needs from a
// checkout.session.completed payload.
type CheckoutCompleted struct {
	SessionID              string
	ExternalCustomerID     string
	ExternalSubscriptionID string
	// Metadata is set at checkout creation time and carries the internal
	// user_id and plan_id this session was opened for.
	Metadata map[string]string
}

// SubscriptionEvent carries the fields shared by the subscription
// created/updated/deleted payloads.
type SubscriptionEvent struct {
	ExternalSubscriptionID string
	ExternalCustomerID     string
	ProviderStatus         string
	CancelAtPeriodEnd      bool
	Metadata               map[string]string
	Item                   *PricedItem
}

// PricedItem is the priced line of a subscription: the active price id plus
// the recurrence that anchors the billing period.
type PricedItem struct {
	PriceID            string
	Interval           Interval
	IntervalCount      int64
	CurrentPeriodStart int64 // unix seconds; 0 when absent
}

// InvoiceEvent carries the business-signal fields of an invoice payment
// outcome. Invoice events never mutate the subscription row.
type InvoiceEvent struct {
	InvoiceID              string
	ExternalCustomerID     string
	ExternalSubscriptionID string
	AmountCents            int64
	Currency               string
}

// CycleForInterval maps a recurring interval onto the internal billing cycle.
// Everything shorter than a year bills monthly.
func CycleForInterval(interval Interval) BillingCycle {
	if interval == IntervalYear {
		return CycleYearly
	}
	return CycleMonthly
}
