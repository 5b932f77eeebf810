package stripe

import (
	"errors"
	"net/http"

	"github.com/stripe/stripe-go/v83"

	"github.com/applytrack/billsync/pkg/reconcile"
	"github.com/applytrack/billsync/pkg/reconcile/internal"
)

const webhookBodyLimit = 256 * 1024

// WebhookHandler is the inbound POST endpoint for provider events. It
// authenticates the raw payload against the signing secret, decodes the
// envelope, and hands the typed event to the engine. Only signature failures
// produce a non-2xx: the engine's acknowledge-everything policy keeps
// malformed or unprocessable events from triggering provider retry storms.
type WebhookHandler struct {
	engine  *reconcile.Engine
	secret  []byte
	metrics reconcile.Metrics
	logger  reconcile.Logger
}

// NewWebhookHandler creates the webhook endpoint. The engine and signing
// secret are required.
func NewWebhookHandler(engine *reconcile.Engine, webhookSecret string, metrics reconcile.Metrics, logger reconcile.Logger) (*WebhookHandler, error) {
	if engine == nil || webhookSecret == "" {
		return nil, reconcile.ErrEngineNotConfigured
	}
	if metrics == nil {
		metrics = &reconcile.NoopMetrics{}
	}
	if logger == nil {
		logger = &reconcile.NoopLogger{}
	}
	return &WebhookHandler{
		engine:  engine,
		secret:  []byte(webhookSecret),
		metrics: metrics,
		logger:  logger,
	}, nil
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	setSecurityHeaders(w)

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := internal.ReadBodyStrict(w, r, webhookBodyLimit)
	if err != nil {
		if errors.Is(err, internal.ErrPayloadTooLarge) {
			http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
			h.metrics.RecordWebhookError("payload_too_large")
		} else {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			h.metrics.RecordWebhookError("invalid_payload")
		}
		return
	}

	sig := r.Header.Get("Stripe-Signature")
	if sig == "" {
		sig = r.Header.Get("stripe-signature")
	}

	// The signature covers the raw bytes. Any mismatch is rejected without
	// detail: the response must not reveal which part of the check failed.
	event, err := stripe.ConstructEvent(body, sig, string(h.secret))
	if err != nil {
		http.Error(w, "invalid signature", http.StatusBadRequest)
		h.metrics.RecordWebhookError("auth_failed")
		return
	}

	result := h.engine.HandleEvent(r.Context(), DecodeEvent(&event))

	_ = internal.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"received": true,
		"status":   string(result.Outcome),
	})
}

func setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}
