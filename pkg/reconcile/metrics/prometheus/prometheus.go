package prommetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/applytrack/billsync/pkg/reconcile"
)

// Metrics implements reconcile.Metrics using Prometheus.
type Metrics struct {
	webhookEventsTotal        *prometheus.CounterVec
	webhookProcessingDuration *prometheus.HistogramVec
	webhookErrorsTotal        *prometheus.CounterVec
	paymentsTotal             *prometheus.CounterVec
	paymentAmountCents        *prometheus.CounterVec
	subscriptionsCreated      *prometheus.CounterVec
	subscriptionsCancelled    *prometheus.CounterVec
	statusChangesTotal        *prometheus.CounterVec
}

// NewMetrics creates a new Prometheus metrics implementation for the
// reconciliation engine.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		webhookEventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "webhook_events_total",
			Help:      "Total number of webhook events received from the payment provider.",
		}, []string{"event_type", "status"}),

		webhookProcessingDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "webhook_processing_duration_seconds",
			Help:      "Duration of webhook processing in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event_type"}),

		webhookErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "webhook_errors_total",
			Help:      "Total number of webhook processing errors.",
		}, []string{"error_type"}),

		paymentsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "payments_total",
			Help:      "Total number of invoice payment outcomes.",
		}, []string{"outcome", "currency"}),

		paymentAmountCents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "payment_amount_cents_total",
			Help:      "Cumulative invoice amounts in cents by outcome.",
		}, []string{"outcome", "currency"}),

		subscriptionsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "subscriptions_created_total",
			Help:      "Total number of canonical subscriptions established.",
		}, []string{"plan_id"}),

		subscriptionsCancelled: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "subscriptions_cancelled_total",
			Help:      "Total number of subscription cancellations.",
		}, []string{"plan_id"}),

		statusChangesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "status_changes_total",
			Help:      "Total number of canonical status transitions.",
		}, []string{"from", "to"}),
	}
}

func (m *Metrics) RecordWebhookEvent(eventType, status string) {
	m.webhookEventsTotal.WithLabelValues(eventType, status).Inc()
}

func (m *Metrics) RecordWebhookProcessingDuration(eventType string, duration time.Duration) {
	m.webhookProcessingDuration.WithLabelValues(eventType).Observe(duration.Seconds())
}

func (m *Metrics) RecordWebhookError(errorType string) {
	m.webhookErrorsTotal.WithLabelValues(errorType).Inc()
}

func (m *Metrics) RecordPaymentSucceeded(amountCents int64, currency string) {
	m.paymentsTotal.WithLabelValues("succeeded", currency).Inc()
	m.paymentAmountCents.WithLabelValues("succeeded", currency).Add(float64(amountCents))
}

func (m *Metrics) RecordPaymentFailed(amountCents int64, currency string) {
	m.paymentsTotal.WithLabelValues("failed", currency).Inc()
	m.paymentAmountCents.WithLabelValues("failed", currency).Add(float64(amountCents))
}

func (m *Metrics) RecordSubscriptionCreated(planID string) {
	m.subscriptionsCreated.WithLabelValues(planID).Inc()
}

func (m *Metrics) RecordSubscriptionCancelled(planID string) {
	m.subscriptionsCancelled.WithLabelValues(planID).Inc()
}

func (m *Metrics) RecordStatusChange(from, to reconcile.Status) {
	m.statusChangesTotal.WithLabelValues(string(from), string(to)).Inc()
}

// DefaultMetrics returns a Metrics implementation using the default
// Prometheus registerer.
func DefaultMetrics(namespace string) reconcile.Metrics {
	return NewMetrics(prometheus.DefaultRegisterer, namespace)
}
