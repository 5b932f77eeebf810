package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeRepo is an in-memory SubscriptionRepository with upsert semantics and
// switchable write failures.
type fakeRepo struct {
	mu         sync.Mutex
	subs       map[string]*Subscription
	failWrites bool
	nextID     int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{subs: make(map[string]*Subscription)}
}

func (r *fakeRepo) Create(_ context.Context, fields SubscriptionFields) (*Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWrites {
		return nil, errors.New("store unavailable")
	}

	sub, ok := r.subs[fields.ExternalSubscriptionID]
	if !ok {
		r.nextID++
		sub = &Subscription{ID: fmt.Sprintf("sub-%d", r.nextID), CreatedAt: time.Now()}
		r.subs[fields.ExternalSubscriptionID] = sub
	}
	r.apply(sub, fields)
	subCopy := *sub
	return &subCopy, nil
}

func (r *fakeRepo) UpdateByExternalID(_ context.Context, externalID string, fields SubscriptionFields) (*Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWrites {
		return nil, errors.New("store unavailable")
	}

	sub, ok := r.subs[externalID]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	r.apply(sub, fields)
	subCopy := *sub
	return &subCopy, nil
}

func (r *fakeRepo) FindByExternalID(_ context.Context, externalID string) (*Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subs[externalID]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	subCopy := *sub
	return &subCopy, nil
}

func (r *fakeRepo) apply(sub *Subscription, fields SubscriptionFields) {
	if sub.UserID == "" {
		sub.UserID = fields.UserID
	}
	if fields.PlanID != "" {
		sub.PlanID = fields.PlanID
	}
	if fields.ExternalCustomerID != "" {
		sub.ExternalCustomerID = fields.ExternalCustomerID
	}
	sub.ExternalSubscriptionID = fields.ExternalSubscriptionID
	sub.Status = fields.Status
	sub.BillingCycle = fields.BillingCycle
	sub.CurrentPeriodStart = fields.CurrentPeriodStart
	sub.CurrentPeriodEnd = fields.CurrentPeriodEnd
	sub.CancelAtPeriodEnd = fields.CancelAtPeriodEnd
	sub.UpdatedAt = time.Now()
}

// fakePlans maps price ids to plan ids.
type fakePlans struct {
	plans   map[string]string
	lookErr error
}

func (p *fakePlans) FindPlanByPriceID(_ context.Context, priceID string) (string, error) {
	if p.lookErr != nil {
		return "", p.lookErr
	}
	planID, ok := p.plans[priceID]
	if !ok {
		return "", ErrPlanNotFound
	}
	return planID, nil
}

// fakeProvider serves canned subscription detail.
type fakeProvider struct {
	subs    map[string]*SubscriptionEvent
	callErr error
	calls   int
}

func (p *fakeProvider) GetSubscription(_ context.Context, externalID string) (*SubscriptionEvent, error) {
	p.calls++
	if p.callErr != nil {
		return nil, p.callErr
	}
	sub, ok := p.subs[externalID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderAPI, externalID)
	}
	return sub, nil
}

// captureMetrics records business signals for assertions.
type captureMetrics struct {
	mu            sync.Mutex
	events        map[string]int // "type/status"
	errorTypes    []string
	paidCents     int64
	failedCents   int64
	currencies    []string
	created       []string
	cancelled     []string
	statusChanges []string
}

func newCaptureMetrics() *captureMetrics {
	return &captureMetrics{events: make(map[string]int)}
}

func (m *captureMetrics) RecordWebhookEvent(eventType, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[eventType+"/"+status]++
}
func (m *captureMetrics) RecordWebhookProcessingDuration(string, time.Duration) {}
func (m *captureMetrics) RecordWebhookError(errorType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorTypes = append(m.errorTypes, errorType)
}
func (m *captureMetrics) RecordPaymentSucceeded(amountCents int64, currency string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paidCents += amountCents
	m.currencies = append(m.currencies, currency)
}
func (m *captureMetrics) RecordPaymentFailed(amountCents int64, currency string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failedCents += amountCents
	m.currencies = append(m.currencies, currency)
}
func (m *captureMetrics) RecordSubscriptionCreated(planID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, planID)
}
func (m *captureMetrics) RecordSubscriptionCancelled(planID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelled = append(m.cancelled, planID)
}
func (m *captureMetrics) RecordStatusChange(from, to Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusChanges = append(m.statusChanges, string(from)+"->"+string(to))
}

type testEnv struct {
	engine   *Engine
	repo     *fakeRepo
	plans    *fakePlans
	provider *fakeProvider
	metrics  *captureMetrics
}

func newTestEngine(t *testing.T) *testEnv {
	t.Helper()

	repo := newFakeRepo()
	plans := &fakePlans{plans: map[string]string{
		"price_pro_monthly": "pro",
		"price_pro_yearly":  "pro",
	}}
	provider := &fakeProvider{subs: make(map[string]*SubscriptionEvent)}
	metrics := newCaptureMetrics()

	engine, err := NewEngine(Config{
		Repository: repo,
		Plans:      plans,
		Provider:   provider,
		Metrics:    metrics,
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	return &testEnv{engine: engine, repo: repo, plans: plans, provider: provider, metrics: metrics}
}

func TestNewEngine_RequiresRepository(t *testing.T) {
	if _, err := NewEngine(Config{}); !errors.Is(err, ErrEngineNotConfigured) {
		t.Fatalf("expected ErrEngineNotConfigured, got %v", err)
	}
}

func TestHandleEvent_UnknownTypeAcknowledged(t *testing.T) {
	env := newTestEngine(t)

	result := env.engine.HandleEvent(context.Background(), &Event{
		ID:   "evt_1",
		Type: "customer.subscription.paused",
	})

	if result.Outcome != OutcomeIgnored {
		t.Fatalf("outcome = %q, want ignored", result.Outcome)
	}
	if result.Err != nil {
		t.Fatalf("unknown event types must never produce an error, got %v", result.Err)
	}
	if len(env.repo.subs) != 0 {
		t.Error("unknown event type must not mutate the store")
	}
}

func TestHandleEvent_DedupeShortCircuits(t *testing.T) {
	env := newTestEngine(t)
	env.engine.deduper = NewMemoryDeduper(time.Hour)

	event := &Event{
		ID:   "evt_dup",
		Type: EventInvoicePaid,
		InvoicePaid: &InvoiceEvent{
			InvoiceID:              "in_1",
			ExternalSubscriptionID: "sub_ext_1",
			AmountCents:            1900,
			Currency:               "usd",
		},
	}

	first := env.engine.HandleEvent(context.Background(), event)
	second := env.engine.HandleEvent(context.Background(), event)

	if first.Outcome == OutcomeDuplicate {
		t.Fatal("first delivery flagged as duplicate")
	}
	if second.Outcome != OutcomeDuplicate {
		t.Fatalf("second delivery outcome = %q, want duplicate", second.Outcome)
	}
	if env.metrics.paidCents != 1900 {
		t.Errorf("payment recorded %d cents, want 1900 (exactly once)", env.metrics.paidCents)
	}
}

type failingDeduper struct{}

func (failingDeduper) Seen(context.Context, string) (bool, error) {
	return false, errors.New("dedupe store down")
}

func TestHandleEvent_DeduperFailureDoesNotBlockProcessing(t *testing.T) {
	env := newTestEngine(t)
	env.engine.deduper = failingDeduper{}

	result := env.engine.HandleEvent(context.Background(), &Event{
		ID:   "evt_1",
		Type: EventInvoicePaid,
		InvoicePaid: &InvoiceEvent{
			InvoiceID:              "in_1",
			ExternalSubscriptionID: "sub_ext_1",
			AmountCents:            500,
			Currency:               "eur",
		},
	})

	if result.Outcome == OutcomeDuplicate {
		t.Fatal("failing deduper must not mark events duplicate")
	}
	if env.metrics.paidCents != 500 {
		t.Error("event behind a failing deduper must still be processed")
	}
}

func TestHandleEvent_InvoiceFailedRecordsSignal(t *testing.T) {
	env := newTestEngine(t)

	result := env.engine.HandleEvent(context.Background(), &Event{
		ID:   "evt_1",
		Type: EventInvoiceFailed,
		InvoiceFailed: &InvoiceEvent{
			InvoiceID:              "in_2",
			ExternalSubscriptionID: "sub_ext_1",
			AmountCents:            1900,
			Currency:               "usd",
		},
	})

	if result.Outcome != OutcomeIgnored {
		t.Fatalf("outcome = %q, want ignored (no row mutation)", result.Outcome)
	}
	if env.metrics.failedCents != 1900 {
		t.Errorf("failed payment cents = %d, want 1900", env.metrics.failedCents)
	}
	if len(env.repo.subs) != 0 {
		t.Error("invoice events must not mutate the subscription store")
	}
}

func TestHandleEvent_NonSubscriptionInvoiceIgnored(t *testing.T) {
	env := newTestEngine(t)

	result := env.engine.HandleEvent(context.Background(), &Event{
		ID:   "evt_1",
		Type: EventInvoicePaid,
		InvoicePaid: &InvoiceEvent{
			InvoiceID:   "in_oneoff",
			AmountCents: 4200,
			Currency:    "usd",
		},
	})

	if result.Outcome != OutcomeIgnored {
		t.Fatalf("outcome = %q, want ignored", result.Outcome)
	}
	if env.metrics.paidCents != 0 {
		t.Error("one-off invoices must not count as subscription payments")
	}
}
