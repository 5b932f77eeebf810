package reconcile

import (
	"context"
	"errors"
	"fmt"
)

// resolveUser determines which internal user a subscription event belongs to.
// Explicit owner metadata wins; otherwise the existing row for the external
// subscription id is consulted. Update events are not guaranteed to carry
// metadata, so the reverse lookup is the usual path for them.
func (e *Engine) resolveUser(ctx context.Context, metadata map[string]string, externalID string) (string, error) {
	if userID := metadata[MetadataUserID]; userID != "" {
		return userID, nil
	}

	if externalID != "" {
		sub, err := e.repo.FindByExternalID(ctx, externalID)
		if err == nil && sub.UserID != "" {
			return sub.UserID, nil
		}
		if err != nil && !errors.Is(err, ErrSubscriptionNotFound) {
			return "", fmt.Errorf("owner lookup: %w", err)
		}
	}

	return "", fmt.Errorf("%w: subscription %s", ErrUnresolvableOwner, externalID)
}

// resolvePlan maps the active price id to an internal plan id. A price that
// does not resolve, or a failing lookup, keeps the current plan: a plan
// assignment is never destructively nulled by a partially-informative event.
func (e *Engine) resolvePlan(ctx context.Context, item *PricedItem, currentPlanID string) string {
	if e.plans == nil || item == nil || item.PriceID == "" {
		return currentPlanID
	}

	planID, err := e.plans.FindPlanByPriceID(ctx, item.PriceID)
	if err != nil {
		if !errors.Is(err, ErrPlanNotFound) {
			e.logger.Warn("plan lookup failed, keeping current plan",
				Field{Key: "price_id", Value: item.PriceID},
				Field{Key: "error", Value: err.Error()})
		}
		return currentPlanID
	}
	return planID
}
