package prommetrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/applytrack/billsync/pkg/reconcile"
)

func TestNewMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "test")

	if metrics == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestMetrics_RecordWebhookEvent(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "test")

	metrics.RecordWebhookEvent("customer.subscription.updated", "success")
	metrics.RecordWebhookEvent("customer.subscription.updated", "error")
	metrics.RecordWebhookProcessingDuration("customer.subscription.updated", 50*time.Millisecond)
	metrics.RecordWebhookError("auth_failed")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	if len(families) == 0 {
		t.Error("Expected metrics to be recorded")
	}
}

func TestMetrics_PaymentAmountsAccumulate(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "test")

	metrics.RecordPaymentSucceeded(1900, "usd")
	metrics.RecordPaymentSucceeded(600, "usd")
	metrics.RecordPaymentFailed(1900, "eur")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	var amountFamily *dto.MetricFamily
	for _, mf := range families {
		if mf.GetName() == "test_billing_payment_amount_cents_total" {
			amountFamily = mf
		}
	}
	if amountFamily == nil {
		t.Fatal("payment amount metric not registered")
	}

	total := 0.0
	for _, m := range amountFamily.GetMetric() {
		total += m.GetCounter().GetValue()
	}
	if total != 4400 {
		t.Errorf("accumulated amount = %v, want 4400", total)
	}
}

func TestMetrics_SubscriptionLifecycleCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "test")

	metrics.RecordSubscriptionCreated("pro")
	metrics.RecordSubscriptionCancelled("pro")
	metrics.RecordStatusChange(reconcile.StatusActive, reconcile.StatusCanceled)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	want := map[string]bool{
		"test_billing_subscriptions_created_total":   false,
		"test_billing_subscriptions_cancelled_total": false,
		"test_billing_status_changes_total":          false,
	}
	for _, mf := range families {
		if _, ok := want[mf.GetName()]; ok {
			want[mf.GetName()] = true
		}
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("metric %s not recorded", name)
		}
	}
}
