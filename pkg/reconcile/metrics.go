package reconcile

import "time"

// Metrics defines the interface for tracking reconciliation activity and the
// business signals carried by invoice events. All methods are optional -
// callers should pass NoopMetrics rather than nil.
type Metrics interface {
	// RecordWebhookEvent records a webhook event received from the provider.
	// status: "success", "ignored", "duplicate" or "error"
	RecordWebhookEvent(eventType, status string)

	// RecordWebhookProcessingDuration records how long it took to process a webhook.
	RecordWebhookProcessingDuration(eventType string, duration time.Duration)

	// RecordWebhookError records a webhook processing error.
	// errorType: e.g. "auth_failed", "invalid_payload", "repository_error"
	RecordWebhookError(errorType string)

	// RecordPaymentSucceeded records a successful invoice payment.
	RecordPaymentSucceeded(amountCents int64, currency string)

	// RecordPaymentFailed records a failed invoice payment.
	RecordPaymentFailed(amountCents int64, currency string)

	// RecordSubscriptionCreated records that a canonical subscription row was
	// first established for a plan.
	RecordSubscriptionCreated(planID string)

	// RecordSubscriptionCancelled records a cancellation transition.
	RecordSubscriptionCancelled(planID string)

	// RecordStatusChange records a canonical status transition.
	RecordStatusChange(from, to Status)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordWebhookEvent(_, _ string)                            {}
func (n *NoopMetrics) RecordWebhookProcessingDuration(_ string, _ time.Duration) {}
func (n *NoopMetrics) RecordWebhookError(_ string)                               {}
func (n *NoopMetrics) RecordPaymentSucceeded(_ int64, _ string)                  {}
func (n *NoopMetrics) RecordPaymentFailed(_ int64, _ string)                     {}
func (n *NoopMetrics) RecordSubscriptionCreated(_ string)                        {}
func (n *NoopMetrics) RecordSubscriptionCancelled(_ string)                      {}
func (n *NoopMetrics) RecordStatusChange(_, _ Status)                            {}
