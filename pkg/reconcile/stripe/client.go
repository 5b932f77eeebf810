package stripe

import (
	"context"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v83"
	"golang.org/x/sync/singleflight"

	"github.com/applytrack/billsync/pkg/reconcile"
)

// Client implements reconcile.ProviderClient over the provider's REST API.
// Concurrent retrievals of the same subscription id are collapsed into a
// single API call: the provider commonly fires several events for one
// subscription back to back, and each handler wanting full detail would
// otherwise fetch it redundantly.
type Client struct {
	api   *stripe.Client
	group singleflight.Group
}

// NewClient creates a provider client from an API key.
func NewClient(apiKey string) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, reconcile.ErrEngineNotConfigured
	}
	return &Client{api: stripe.NewClient(apiKey)}, nil
}

// GetSubscription implements reconcile.ProviderClient.
func (c *Client) GetSubscription(ctx context.Context, externalID string) (*reconcile.SubscriptionEvent, error) {
	v, err, _ := c.group.Do(externalID, func() (interface{}, error) {
		sub, err := c.api.V1Subscriptions.Retrieve(ctx, externalID, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: retrieve subscription %s: %v", reconcile.ErrProviderAPI, externalID, err)
		}
		return fromAPISubscription(sub), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*reconcile.SubscriptionEvent), nil
}

// fromAPISubscription maps the SDK's subscription object onto the engine's
// payload shape.
func fromAPISubscription(sub *stripe.Subscription) *reconcile.SubscriptionEvent {
	out := &reconcile.SubscriptionEvent{
		ExternalSubscriptionID: sub.ID,
		ProviderStatus:         string(sub.Status),
		CancelAtPeriodEnd:      sub.CancelAtPeriodEnd,
		Metadata:               sub.Metadata,
	}
	if sub.Customer != nil {
		out.ExternalCustomerID = sub.Customer.ID
	}

	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		priced := &reconcile.PricedItem{
			CurrentPeriodStart: item.CurrentPeriodStart,
		}
		if item.Price != nil {
			priced.PriceID = item.Price.ID
			if item.Price.Recurring != nil {
				priced.Interval = reconcile.Interval(item.Price.Recurring.Interval)
				priced.IntervalCount = item.Price.Recurring.IntervalCount
			}
		}
		out.Item = priced
	}

	return out
}
