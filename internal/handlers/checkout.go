package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Rushan-dev/jeyani-gift-shop/internal/platform/auth"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/platform/httpx"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/services"
)

const maxCheckoutRequestBody = 32 * 1024

// CheckoutHandlers exposes order placement and card payment confirmation for authenticated users.
type CheckoutHandlers struct {
	authn       *auth.Authenticator
	checkout    services.CheckoutService
	payments    services.PaymentReconciler
	idempotency func(http.Handler) http.Handler
}

// CheckoutOption customises CheckoutHandlers.
type CheckoutOption func(*CheckoutHandlers)

// WithCheckoutIdempotency wraps order placement with the given replay-protection middleware.
func WithCheckoutIdempotency(mw func(http.Handler) http.Handler) CheckoutOption {
	return func(h *CheckoutHandlers) {
		h.idempotency = mw
	}
}

// NewCheckoutHandlers constructs checkout handlers guarded by Firebase authentication.
func NewCheckoutHandlers(authn *auth.Authenticator, checkout services.CheckoutService, payments services.PaymentReconciler, opts ...CheckoutOption) *CheckoutHandlers {
	h := &CheckoutHandlers{
		authn:    authn,
		checkout: checkout,
		payments: payments,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers checkout endpoints on the /orders router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := r
	if h.authn != nil {
		group = group.With(h.authn.RequireAuth)
	}
	create := group
	if h.idempotency != nil {
		create = create.With(h.idempotency)
	}
	create.Post("/", h.createOrder)
	group.Post("/verify-stripe", h.verifyPayment)
}

type createOrderRequest struct {
	Items           []orderLineRequest     `json:"items"`
	ShippingAddress shippingAddressPayload `json:"shippingAddress"`
	PaymentMethod   string                 `json:"paymentMethod"`
}

type orderLineRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type createOrderResponse struct {
	Order       orderPayload `json:"order"`
	CheckoutURL string       `json:"checkoutUrl,omitempty"`
	SessionID   string       `json:"sessionId,omitempty"`
}

type verifyPaymentRequest struct {
	SessionID string `json:"sessionId"`
}

type verifyPaymentResponse struct {
	Order         orderPayload `json:"order"`
	PaymentStatus string       `json:"paymentStatus"`
	Finalized     bool         `json:"finalized"`
}

func (h *CheckoutHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	var req createOrderRequest
	if !decodeJSONBody(w, r, maxCheckoutRequestBody, &req) {
		return
	}

	cmd := services.CreateOrderCommand{
		UserID:    identity.UID,
		UserEmail: identity.Email,
		Items:     make([]services.OrderLineInput, 0, len(req.Items)),
		ShippingAddress: services.ShippingAddress{
			Name:       req.ShippingAddress.Name,
			Phone:      req.ShippingAddress.Phone,
			Address:    req.ShippingAddress.Address,
			City:       req.ShippingAddress.City,
			PostalCode: req.ShippingAddress.PostalCode,
		},
		PaymentMethod: strings.TrimSpace(req.PaymentMethod),
	}
	for _, line := range req.Items {
		cmd.Items = append(cmd.Items, services.OrderLineInput{
			ProductID: strings.TrimSpace(line.ProductID),
			Quantity:  line.Quantity,
		})
	}

	result, err := h.checkout.CreateOrder(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, createOrderResponse{
		Order:       buildOrderPayload(result.Order),
		CheckoutURL: result.CheckoutURL,
		SessionID:   result.SessionID,
	})
}

func (h *CheckoutHandlers) verifyPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payments_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	var req verifyPaymentRequest
	if !decodeJSONBody(w, r, maxCheckoutRequestBody, &req) {
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "sessionId is required", http.StatusBadRequest))
		return
	}

	result, err := h.payments.VerifyAndFinalize(ctx, services.VerifyPaymentCommand{
		SessionID: strings.TrimSpace(req.SessionID),
		Viewer:    viewerFor(ctx, h.authn, identity),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, verifyPaymentResponse{
		Order:         buildOrderPayload(result.Order),
		PaymentStatus: result.PaymentStatus,
		Finalized:     result.Finalized,
	})
}
