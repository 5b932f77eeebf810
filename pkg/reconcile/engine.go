// Package reconcile converts asynchronous, possibly out-of-order, possibly
// duplicated payment-provider webhook events into a consistent internal
// subscription record. The engine is stateless per invocation: all state
// lives behind the SubscriptionRepository, whose upsert keyed on the external
// subscription id is the sole serialization point for concurrent deliveries.
package reconcile

import (
	"context"
	"time"
)

// Event type tags as emitted by the provider.
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventSubscriptionCreated = "customer.subscription.created"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
	EventInvoicePaid         = "invoice.payment_succeeded"
	EventInvoiceFailed       = "invoice.payment_failed"
)

// Metadata keys set at checkout-creation time.
const (
	MetadataUserID = "user_id"
	MetadataPlanID = "plan_id"
)

// Config carries the engine's collaborators. Repository is required; Plans
// and Provider are required for the handlers that use them; the rest default
// to no-ops.
type Config struct {
	// Repository persists the canonical subscription rows.
	Repository SubscriptionRepository

	// Plans resolves provider price ids to internal plan ids.
	Plans PlanLookup

	// Provider retrieves full subscription detail; used by the checkout
	// handler whose session payload only references the subscription.
	Provider ProviderClient

	// Deduper short-circuits redelivered event ids. Optional: with a nil
	// deduper every delivery runs its handler, which is safe but wasteful.
	Deduper EventDeduper

	// Metrics receives reconciliation and payment business signals.
	// If nil, metrics are silently ignored (no-op).
	Metrics Metrics

	// Logger receives structured processing logs. If nil, logging is a no-op.
	Logger Logger
}

// Engine dispatches verified events to type-specific reconciliation handlers.
// Safe for concurrent use; invocations share only read-only collaborators.
type Engine struct {
	repo     SubscriptionRepository
	plans    PlanLookup
	provider ProviderClient
	deduper  EventDeduper
	metrics  Metrics
	logger   Logger
	now      func() time.Time
}

// NewEngine creates a reconciliation engine from explicitly injected
// collaborators. No package-level state is consulted.
func NewEngine(config Config) (*Engine, error) {
	if config.Repository == nil {
		return nil, ErrEngineNotConfigured
	}

	metrics := config.Metrics
	if metrics == nil {
		metrics = &NoopMetrics{}
	}
	logger := config.Logger
	if logger == nil {
		logger = &NoopLogger{}
	}

	return &Engine{
		repo:     config.Repository,
		plans:    config.Plans,
		provider: config.Provider,
		deduper:  config.Deduper,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// HandleEvent routes a verified event to its handler and returns what was
// done. Every path acknowledges: handler failures are recorded in
// Result.Err, logged here, and never propagated to the provider, whose
// retries are not the reconciliation mechanism of record.
func (e *Engine) HandleEvent(ctx context.Context, event *Event) Result {
	startTime := e.now()

	if e.deduper != nil && event.ID != "" {
		seen, err := e.deduper.Seen(ctx, event.ID)
		if err != nil {
			// Dedupe is an optimization; a failing deduper must not block
			// processing. The repository upsert keeps replays idempotent.
			e.logger.Warn("event dedupe check failed",
				Field{Key: "event_id", Value: event.ID},
				Field{Key: "error", Value: err.Error()})
		} else if seen {
			e.metrics.RecordWebhookEvent(event.Type, "duplicate")
			return Result{Outcome: OutcomeDuplicate}
		}
	}

	result := e.dispatch(ctx, event)

	switch result.Outcome {
	case OutcomeApplied:
		e.metrics.RecordWebhookEvent(event.Type, "success")
	case OutcomeIgnored:
		e.metrics.RecordWebhookEvent(event.Type, "ignored")
	case OutcomeSkipped:
		e.metrics.RecordWebhookEvent(event.Type, "error")
		e.logger.Warn("event acknowledged without mutation",
			Field{Key: "event_id", Value: event.ID},
			Field{Key: "event_type", Value: event.Type},
			Field{Key: "error", Value: errString(result.Err)})
	}
	e.metrics.RecordWebhookProcessingDuration(event.Type, e.now().Sub(startTime))

	return result
}

// dispatch maps the event type tag to a handler. Tags without a handler are
// acknowledged untouched: the provider's event taxonomy grows over time and
// the engine must not fail closed on types it has not been taught.
func (e *Engine) dispatch(ctx context.Context, event *Event) Result {
	switch event.Type {
	case EventCheckoutCompleted:
		return e.handleCheckoutCompleted(ctx, event)
	case EventSubscriptionCreated:
		return e.handleSubscriptionCreated(ctx, event)
	case EventSubscriptionUpdated:
		return e.handleSubscriptionUpdated(ctx, event)
	case EventSubscriptionDeleted:
		return e.handleSubscriptionDeleted(ctx, event)
	case EventInvoicePaid:
		return e.handleInvoicePaid(ctx, event)
	case EventInvoiceFailed:
		return e.handleInvoiceFailed(ctx, event)
	default:
		return ignored()
	}
}

// fallbackAnchor is the anchor for the 30-day fallback period when the event
// carries no usable period anchor: the event's own timestamp when present,
// wall clock otherwise.
func (e *Engine) fallbackAnchor(event *Event) time.Time {
	if !event.Created.IsZero() {
		return event.Created
	}
	return e.now()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
