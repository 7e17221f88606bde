package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Rushan-dev/jeyani-gift-shop/internal/platform/httpx"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/services"
)

// Stripe rejects webhook payloads larger than this.
const maxWebhookBodySize = 64 * 1024

// WebhookHandlers receives payment provider notifications.
type WebhookHandlers struct {
	payments services.PaymentReconciler
}

// NewWebhookHandlers constructs webhook handlers.
func NewWebhookHandlers(payments services.PaymentReconciler) *WebhookHandlers {
	return &WebhookHandlers{payments: payments}
}

// Routes registers the /webhooks endpoints. Authenticity is established by the payload signature.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/stripe", h.stripe)
}

func (h *WebhookHandlers) stripe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payments_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}
	signature := r.Header.Get("Stripe-Signature")
	if signature == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "Stripe-Signature header is required", http.StatusBadRequest))
		return
	}
	payload, err := readLimitedBody(r, maxWebhookBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	if err := h.payments.HandleWebhook(ctx, payload, signature); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]bool{"received": true})
}
