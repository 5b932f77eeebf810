package reconcile

import (
	"context"
	"errors"
	"fmt"
)

// handleCheckoutCompleted establishes the canonical row for a freshly
// checked-out subscription. The session metadata must carry the internal
// user and plan ids set at checkout-creation time, and the session must
// reference a subscription; anything else is a malformed upstream event,
// acknowledged without mutation.
func (e *Engine) handleCheckoutCompleted(ctx context.Context, event *Event) Result {
	session := event.CheckoutCompleted
	if session == nil {
		return skipped(fmt.Errorf("%w: no checkout payload", ErrMalformedEvent))
	}

	userID := session.Metadata[MetadataUserID]
	planID := session.Metadata[MetadataPlanID]
	if userID == "" || planID == "" {
		return skipped(fmt.Errorf("%w: checkout session %s missing user_id/plan_id metadata",
			ErrMalformedEvent, session.SessionID))
	}
	if session.ExternalSubscriptionID == "" {
		return skipped(fmt.Errorf("%w: checkout session %s has no subscription reference",
			ErrMalformedEvent, session.SessionID))
	}
	if e.provider == nil {
		return skipped(fmt.Errorf("%w: no provider client", ErrEngineNotConfigured))
	}

	// The session payload carries only a subscription reference; period and
	// status live on the subscription itself.
	detail, err := e.provider.GetSubscription(ctx, session.ExternalSubscriptionID)
	if err != nil {
		return skipped(fmt.Errorf("fetch subscription %s: %w", session.ExternalSubscriptionID, err))
	}

	fields := e.composeFields(event, detail, userID, planID)
	fields.ExternalSubscriptionID = session.ExternalSubscriptionID
	fields.ExternalCustomerID = firstNonEmpty(session.ExternalCustomerID, detail.ExternalCustomerID)

	sub, err := e.repo.Create(ctx, fields)
	if err != nil {
		return e.writeFailed(event, fields, err)
	}

	e.metrics.RecordSubscriptionCreated(sub.PlanID)
	e.logger.Info("subscription established from checkout",
		Field{Key: "external_subscription_id", Value: sub.ExternalSubscriptionID},
		Field{Key: "user_id", Value: sub.UserID},
		Field{Key: "plan_id", Value: sub.PlanID})
	return applied(sub)
}

// handleSubscriptionCreated upserts the row for a provider-created
// subscription. Replay-safe: a duplicate "created" for an established row
// refreshes period and status and changes nothing else.
func (e *Engine) handleSubscriptionCreated(ctx context.Context, event *Event) Result {
	payload := event.SubscriptionCreated
	if payload == nil || payload.ExternalSubscriptionID == "" {
		return skipped(fmt.Errorf("%w: no subscription payload", ErrMalformedEvent))
	}

	userID, err := e.resolveUser(ctx, payload.Metadata, payload.ExternalSubscriptionID)
	if err != nil {
		return skipped(err)
	}

	existing, _ := e.findExisting(ctx, payload.ExternalSubscriptionID)
	currentPlan := ""
	if existing != nil {
		currentPlan = existing.PlanID
	}
	planID := e.resolvePlan(ctx, payload.Item, currentPlan)

	fields := e.composeFields(event, payload, userID, planID)

	sub, err := e.repo.Create(ctx, fields)
	if err != nil {
		return e.writeFailed(event, fields, err)
	}

	if existing == nil {
		e.metrics.RecordSubscriptionCreated(sub.PlanID)
	} else if existing.Status != sub.Status {
		e.metrics.RecordStatusChange(existing.Status, sub.Status)
	}
	return applied(sub)
}

// handleSubscriptionUpdated recomputes and replaces every mutable field of
// the established row, including cancel_at_period_end. The full row is
// composed from this event alone rather than merged field-by-field, so a
// stale delivery cannot leave a half-old half-new record.
func (e *Engine) handleSubscriptionUpdated(ctx context.Context, event *Event) Result {
	payload := event.SubscriptionUpdated
	if payload == nil || payload.ExternalSubscriptionID == "" {
		return skipped(fmt.Errorf("%w: no subscription payload", ErrMalformedEvent))
	}

	userID, err := e.resolveUser(ctx, payload.Metadata, payload.ExternalSubscriptionID)
	if err != nil {
		return skipped(err)
	}

	existing, _ := e.findExisting(ctx, payload.ExternalSubscriptionID)
	currentPlan := ""
	if existing != nil {
		currentPlan = existing.PlanID
	}
	planID := e.resolvePlan(ctx, payload.Item, currentPlan)

	fields := e.composeFields(event, payload, userID, planID)

	sub, err := e.repo.UpdateByExternalID(ctx, payload.ExternalSubscriptionID, fields)
	if err != nil {
		return e.writeFailed(event, fields, err)
	}

	if existing != nil && existing.Status != sub.Status {
		e.metrics.RecordStatusChange(existing.Status, sub.Status)
	}
	return applied(sub)
}

// handleSubscriptionDeleted marks the row canceled. The row is kept for
// audit and history; cancellation is a status transition, never a delete.
func (e *Engine) handleSubscriptionDeleted(ctx context.Context, event *Event) Result {
	payload := event.SubscriptionDeleted
	if payload == nil || payload.ExternalSubscriptionID == "" {
		return skipped(fmt.Errorf("%w: no subscription payload", ErrMalformedEvent))
	}

	existing, err := e.findExisting(ctx, payload.ExternalSubscriptionID)
	if err != nil {
		return skipped(err)
	}
	if existing == nil {
		// Deletion of a subscription this engine never established. Nothing
		// to cancel; acknowledge.
		return skipped(fmt.Errorf("%w: %s", ErrSubscriptionNotFound, payload.ExternalSubscriptionID))
	}

	fields := SubscriptionFields{
		UserID:                 existing.UserID,
		PlanID:                 existing.PlanID,
		ExternalCustomerID:     firstNonEmpty(payload.ExternalCustomerID, existing.ExternalCustomerID),
		ExternalSubscriptionID: existing.ExternalSubscriptionID,
		Status:                 StatusCanceled,
		BillingCycle:           existing.BillingCycle,
		CurrentPeriodStart:     existing.CurrentPeriodStart,
		CurrentPeriodEnd:       existing.CurrentPeriodEnd,
		CancelAtPeriodEnd:      true,
	}

	sub, err := e.repo.UpdateByExternalID(ctx, payload.ExternalSubscriptionID, fields)
	if err != nil {
		return e.writeFailed(event, fields, err)
	}

	e.metrics.RecordSubscriptionCancelled(sub.PlanID)
	if existing.Status != StatusCanceled {
		e.metrics.RecordStatusChange(existing.Status, StatusCanceled)
	}
	e.logger.Info("subscription canceled",
		Field{Key: "external_subscription_id", Value: sub.ExternalSubscriptionID},
		Field{Key: "user_id", Value: sub.UserID})
	return applied(sub)
}

// handleInvoicePaid emits the payment-succeeded business signal. Invoice
// events never mutate the subscription row; period advancement arrives on
// the subscription.updated that accompanies a renewal.
func (e *Engine) handleInvoicePaid(_ context.Context, event *Event) Result {
	invoice := event.InvoicePaid
	if invoice == nil || invoice.ExternalSubscriptionID == "" {
		// Not a subscription invoice (one-off charge). Nothing to record.
		return ignored()
	}

	e.metrics.RecordPaymentSucceeded(invoice.AmountCents, invoice.Currency)
	e.logger.Info("invoice payment succeeded",
		Field{Key: "invoice_id", Value: invoice.InvoiceID},
		Field{Key: "external_subscription_id", Value: invoice.ExternalSubscriptionID},
		Field{Key: "amount_cents", Value: invoice.AmountCents},
		Field{Key: "currency", Value: invoice.Currency})
	return ignored()
}

// handleInvoiceFailed emits the payment-failed business signal. The
// subscription stays as-is until the provider moves it to past_due or
// canceled via a subscription event.
func (e *Engine) handleInvoiceFailed(_ context.Context, event *Event) Result {
	invoice := event.InvoiceFailed
	if invoice == nil || invoice.ExternalSubscriptionID == "" {
		return ignored()
	}

	e.metrics.RecordPaymentFailed(invoice.AmountCents, invoice.Currency)
	e.logger.Warn("invoice payment failed",
		Field{Key: "invoice_id", Value: invoice.InvoiceID},
		Field{Key: "external_subscription_id", Value: invoice.ExternalSubscriptionID},
		Field{Key: "amount_cents", Value: invoice.AmountCents},
		Field{Key: "currency", Value: invoice.Currency})
	return ignored()
}

// composeFields builds the complete replacement row for a subscription-class
// payload: period from the priced item's anchor, canonical status from the
// provider status, billing cycle from the recurrence.
func (e *Engine) composeFields(event *Event, payload *SubscriptionEvent, userID, planID string) SubscriptionFields {
	var anchor, count int64
	interval := IntervalMonth
	if payload.Item != nil {
		anchor = payload.Item.CurrentPeriodStart
		count = payload.Item.IntervalCount
		if payload.Item.Interval != "" {
			interval = payload.Item.Interval
		}
	}
	start, end := ComputePeriod(anchor, interval, count, e.fallbackAnchor(event))

	return SubscriptionFields{
		UserID:                 userID,
		PlanID:                 planID,
		ExternalCustomerID:     payload.ExternalCustomerID,
		ExternalSubscriptionID: payload.ExternalSubscriptionID,
		Status:                 MapStatus(payload.ProviderStatus),
		BillingCycle:           CycleForInterval(interval),
		CurrentPeriodStart:     start,
		CurrentPeriodEnd:       end,
		CancelAtPeriodEnd:      payload.CancelAtPeriodEnd,
	}
}

// findExisting looks up the current row, mapping "no row" to nil.
func (e *Engine) findExisting(ctx context.Context, externalID string) (*Subscription, error) {
	sub, err := e.repo.FindByExternalID(ctx, externalID)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find subscription %s: %w", externalID, err)
	}
	return sub, nil
}

// writeFailed logs a swallowed repository failure with full event context.
// The webhook is still acknowledged; an out-of-band consistency sweep is the
// backstop for dropped writes.
func (e *Engine) writeFailed(event *Event, fields SubscriptionFields, err error) Result {
	e.logger.Error("subscription write failed",
		Field{Key: "event_id", Value: event.ID},
		Field{Key: "event_type", Value: event.Type},
		Field{Key: "external_subscription_id", Value: fields.ExternalSubscriptionID},
		Field{Key: "user_id", Value: fields.UserID},
		Field{Key: "plan_id", Value: fields.PlanID},
		Field{Key: "status", Value: string(fields.Status)},
		Field{Key: "error", Value: err.Error()})
	e.metrics.RecordWebhookError("repository_error")
	return skipped(err)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
