package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Rushan-dev/jeyani-gift-shop/internal/platform/httpx"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/services"
)

// SettingsHandlers serves storefront settings.
type SettingsHandlers struct {
	settings services.SettingsService
}

// NewSettingsHandlers constructs settings handlers.
func NewSettingsHandlers(settings services.SettingsService) *SettingsHandlers {
	return &SettingsHandlers{settings: settings}
}

// Routes registers the public /settings endpoints.
func (h *SettingsHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/shipping-fee", h.getShippingFee)
}

// AdminRoutes registers settings management endpoints. The caller mounts them behind admin auth.
func (h *SettingsHandlers) AdminRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/settings/shipping-fee", h.getShippingFee)
	r.Put("/settings/shipping-fee", h.updateShippingFee)
}

type shippingFeeRequest struct {
	Enabled *bool  `json:"enabled"`
	Amount  *int64 `json:"amount"`
}

type shippingFeeResponse struct {
	ShippingFee shippingFeePayload `json:"shippingFee"`
}

func (h *SettingsHandlers) getShippingFee(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.settings == nil {
		writeSettingsUnavailable(w, r)
		return
	}
	setting, err := h.settings.ShippingFee(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, shippingFeeResponse{ShippingFee: buildShippingFeePayload(setting)})
}

func (h *SettingsHandlers) updateShippingFee(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.settings == nil {
		writeSettingsUnavailable(w, r)
		return
	}
	var req shippingFeeRequest
	if !decodeJSONBody(w, r, maxCartBodySize, &req) {
		return
	}
	if req.Enabled == nil || req.Amount == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "enabled and amount are required", http.StatusBadRequest))
		return
	}
	setting, err := h.settings.UpdateShippingFee(ctx, services.UpdateShippingFeeCommand{
		Enabled: *req.Enabled,
		Amount:  *req.Amount,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, shippingFeeResponse{ShippingFee: buildShippingFeePayload(setting)})
}

func writeSettingsUnavailable(w http.ResponseWriter, r *http.Request) {
	httpx.WriteError(r.Context(), w, httpx.NewError("settings_unavailable", "settings service unavailable", http.StatusServiceUnavailable))
}
