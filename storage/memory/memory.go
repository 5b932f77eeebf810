// Package memory provides in-memory implementations of the reconcile
// repository interfaces. Primarily intended for testing and development.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/applytrack/billsync/pkg/reconcile"
)

// Repository implements reconcile.SubscriptionRepository using an in-memory
// map keyed by external subscription id. The mutex gives the same
// one-row-per-external-id guarantee the SQL unique index gives in production.
type Repository struct {
	mu            sync.RWMutex
	subscriptions map[string]*reconcile.Subscription
	nowFunc       func() time.Time
}

// New creates a new in-memory repository.
func New() *Repository {
	return &Repository{
		subscriptions: make(map[string]*reconcile.Subscription),
		nowFunc:       time.Now,
	}
}

// Create implements reconcile.SubscriptionRepository. Upsert semantics: a
// create for an existing external subscription id updates that row in place,
// keeping its internal id and owner.
func (r *Repository) Create(ctx context.Context, fields reconcile.SubscriptionFields) (*reconcile.Subscription, error) {
	if fields.ExternalSubscriptionID == "" {
		return nil, fmt.Errorf("external subscription id is required")
	}
	if fields.UserID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.nowFunc().UTC()
	if existing, ok := r.subscriptions[fields.ExternalSubscriptionID]; ok {
		applyFields(existing, fields, now)
		subCopy := *existing
		return &subCopy, nil
	}

	sub := &reconcile.Subscription{
		ID:        uuid.NewString(),
		CreatedAt: now,
	}
	applyFields(sub, fields, now)
	r.subscriptions[fields.ExternalSubscriptionID] = sub

	subCopy := *sub
	return &subCopy, nil
}

// UpdateByExternalID implements reconcile.SubscriptionRepository.
func (r *Repository) UpdateByExternalID(ctx context.Context, externalID string, fields reconcile.SubscriptionFields) (*reconcile.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subscriptions[externalID]
	if !ok {
		return nil, reconcile.ErrSubscriptionNotFound
	}

	applyFields(sub, fields, r.nowFunc().UTC())
	subCopy := *sub
	return &subCopy, nil
}

// FindByExternalID implements reconcile.SubscriptionRepository.
func (r *Repository) FindByExternalID(ctx context.Context, externalID string) (*reconcile.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sub, ok := r.subscriptions[externalID]
	if !ok {
		return nil, reconcile.ErrSubscriptionNotFound
	}

	// Return a copy to prevent external mutations
	subCopy := *sub
	return &subCopy, nil
}

// applyFields replaces the mutable fields of sub. UserID is set once and
// never cleared by later partially-informative events.
func applyFields(sub *reconcile.Subscription, fields reconcile.SubscriptionFields, now time.Time) {
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
	sub.UpdatedAt = now
}

// PlanCatalog implements reconcile.PlanLookup from a static price table. A
// plan matches on either its monthly or its yearly price reference.
type PlanCatalog struct {
	mu        sync.RWMutex
	byPriceID map[string]string
}

// Plan describes one catalog entry for NewPlanCatalog.
type Plan struct {
	ID             string
	MonthlyPriceID string
	YearlyPriceID  string
}

// NewPlanCatalog creates a price-id index over the given plans.
func NewPlanCatalog(plans []Plan) *PlanCatalog {
	index := make(map[string]string)
	for _, plan := range plans {
		if plan.MonthlyPriceID != "" {
			index[strings.ToLower(plan.MonthlyPriceID)] = plan.ID
		}
		if plan.YearlyPriceID != "" {
			index[strings.ToLower(plan.YearlyPriceID)] = plan.ID
		}
	}
	return &PlanCatalog{byPriceID: index}
}

// FindPlanByPriceID implements reconcile.PlanLookup.
func (c *PlanCatalog) FindPlanByPriceID(ctx context.Context, priceID string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	planID, ok := c.byPriceID[strings.ToLower(strings.TrimSpace(priceID))]
	if !ok {
		return "", reconcile.ErrPlanNotFound
	}
	return planID, nil
}
