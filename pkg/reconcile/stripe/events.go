package stripe

import (
	"encoding/json"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/applytrack/billsync/pkg/reconcile"
)

// The webhook payloads are decoded into thin local structs carrying only the
// fields the handlers need, rather than the SDK's full object graph. The
// wire shapes below follow the provider's event JSON, where expandable
// references ("customer", "subscription") arrive either as a bare id string
// or as an embedded object.

type idRef struct {
	ID string
}

func (r *idRef) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		return json.Unmarshal(b, &r.ID)
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	r.ID = obj.ID
	return nil
}

type checkoutSessionPayload struct {
	ID           string            `json:"id"`
	Mode         string            `json:"mode"`
	Customer     idRef             `json:"customer"`
	Subscription idRef             `json:"subscription"`
	Metadata     map[string]string `json:"metadata"`
}

type subscriptionPayload struct {
	ID                string            `json:"id"`
	Customer          idRef             `json:"customer"`
	Status            string            `json:"status"`
	CancelAtPeriodEnd bool              `json:"cancel_at_period_end"`
	Metadata          map[string]string `json:"metadata"`
	Items             struct {
		Data []struct {
			CurrentPeriodStart int64 `json:"current_period_start"`
			Price              struct {
				ID        string `json:"id"`
				Recurring struct {
					Interval      string `json:"interval"`
					IntervalCount int64  `json:"interval_count"`
				} `json:"recurring"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

type invoicePayload struct {
	ID           string `json:"id"`
	Customer     idRef  `json:"customer"`
	Subscription idRef  `json:"subscription"`
	AmountPaid   int64  `json:"amount_paid"`
	AmountDue    int64  `json:"amount_due"`
	Currency     string `json:"currency"`
	Parent       *struct {
		SubscriptionDetails *struct {
			Subscription idRef `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

// DecodeEvent converts a verified provider envelope into the engine's typed
// event. Decode failures leave the matching payload member nil; the engine
// treats that as a malformed event and acknowledges without mutation.
func DecodeEvent(event *stripe.Event) *reconcile.Event {
	out := &reconcile.Event{
		ID:   event.ID,
		Type: string(event.Type),
	}
	if event.Created > 0 {
		out.Created = time.Unix(event.Created, 0).UTC()
	}

	switch out.Type {
	case reconcile.EventCheckoutCompleted:
		var session checkoutSessionPayload
		if err := json.Unmarshal(event.Data.Raw, &session); err == nil {
			out.CheckoutCompleted = &reconcile.CheckoutCompleted{
				SessionID:              session.ID,
				ExternalCustomerID:     session.Customer.ID,
				ExternalSubscriptionID: session.Subscription.ID,
				Metadata:               session.Metadata,
			}
		}
	case reconcile.EventSubscriptionCreated:
		out.SubscriptionCreated = decodeSubscription(event.Data.Raw)
	case reconcile.EventSubscriptionUpdated:
		out.SubscriptionUpdated = decodeSubscription(event.Data.Raw)
	case reconcile.EventSubscriptionDeleted:
		out.SubscriptionDeleted = decodeSubscription(event.Data.Raw)
	case reconcile.EventInvoicePaid:
		out.InvoicePaid = decodeInvoice(event.Data.Raw)
	case reconcile.EventInvoiceFailed:
		out.InvoiceFailed = decodeInvoice(event.Data.Raw)
	}

	return out
}

func decodeSubscription(raw json.RawMessage) *reconcile.SubscriptionEvent {
	var payload subscriptionPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.ID == "" {
		return nil
	}

	sub := &reconcile.SubscriptionEvent{
		ExternalSubscriptionID: payload.ID,
		ExternalCustomerID:     payload.Customer.ID,
		ProviderStatus:         payload.Status,
		CancelAtPeriodEnd:      payload.CancelAtPeriodEnd,
		Metadata:               payload.Metadata,
	}

	if len(payload.Items.Data) > 0 {
		item := payload.Items.Data[0]
		sub.Item = &reconcile.PricedItem{
			PriceID:            item.Price.ID,
			Interval:           reconcile.Interval(item.Price.Recurring.Interval),
			IntervalCount:      item.Price.Recurring.IntervalCount,
			CurrentPeriodStart: item.CurrentPeriodStart,
		}
	}

	return sub
}

func decodeInvoice(raw json.RawMessage) *reconcile.InvoiceEvent {
	var payload invoicePayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.ID == "" {
		return nil
	}

	subscriptionID := payload.Subscription.ID
	if subscriptionID == "" && payload.Parent != nil && payload.Parent.SubscriptionDetails != nil {
		subscriptionID = payload.Parent.SubscriptionDetails.Subscription.ID
	}

	// Settled invoices report amount_paid; failed ones only carry amount_due.
	amount := payload.AmountPaid
	if amount == 0 {
		amount = payload.AmountDue
	}

	return &reconcile.InvoiceEvent{
		InvoiceID:              payload.ID,
		ExternalCustomerID:     payload.Customer.ID,
		ExternalSubscriptionID: subscriptionID,
		AmountCents:            amount,
		Currency:               payload.Currency,
	}
}
