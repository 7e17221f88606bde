package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Rushan-dev/jeyani-gift-shop/internal/platform/auth"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/platform/httpx"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/platform/pagination"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/services"
)

const maxOrderBodySize = 16 * 1024

// OrderHandlers serves order reads, payment slip uploads and the admin order workflow.
type OrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewOrderHandlers constructs order handlers.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{
		authn:  authn,
		orders: orders,
	}
}

// Routes registers the shopper-facing /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := r
	if h.authn != nil {
		group = group.With(h.authn.RequireAuth)
	}
	group.Get("/", h.listOrders)
	group.Get("/{orderID}", h.getOrder)
	group.Post("/{orderID}/payment-slip", h.uploadPaymentSlip)
}

// AdminRoutes registers order management endpoints. The caller mounts them behind admin auth.
func (h *OrderHandlers) AdminRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/orders", h.adminListOrders)
	r.Put("/orders/{orderID}/status", h.updateStatus)
	r.Put("/orders/{orderID}/payment", h.updatePaymentStatus)
	r.Put("/orders/{orderID}/tracking", h.updateTracking)
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderListResponse struct {
	Items         []orderPayload `json:"items"`
	NextPageToken string         `json:"nextPageToken,omitempty"`
}

type updateOrderStatusRequest struct {
	Status string `json:"status"`
}

type updatePaymentStatusRequest struct {
	PaymentStatus string `json:"paymentStatus"`
	Status        string `json:"status"`
}

type updateTrackingRequest struct {
	TrackingNumber *string    `json:"trackingNumber"`
	Status         string     `json:"status"`
	Location       string     `json:"location"`
	Description    string     `json:"description"`
	Timestamp      *time.Time `json:"timestamp"`
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeOrdersUnavailable(w, r)
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	orders, err := h.orders.ListUserOrders(ctx, identity.UID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderListResponse{Items: buildOrderPayloads(orders)})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeOrdersUnavailable(w, r)
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	order, err := h.orders.GetOrder(ctx, viewerFor(ctx, h.authn, identity), chi.URLParam(r, "orderID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) uploadPaymentSlip(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeOrdersUnavailable(w, r)
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	upload, ok := readUploadedFile(w, r, "paymentSlip", "file")
	if !ok {
		return
	}
	defer upload.file.Close()

	order, err := h.orders.UploadPaymentSlip(ctx, services.UploadPaymentSlipCommand{
		UserID:      identity.UID,
		OrderID:     chi.URLParam(r, "orderID"),
		FileName:    upload.header.Filename,
		ContentType: upload.contentType(),
		Size:        upload.header.Size,
		Body:        upload.file,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) adminListOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeOrdersUnavailable(w, r)
		return
	}
	page, err := pagination.FromRequest(r, pagination.Options{})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	query := r.URL.Query()
	result, err := h.orders.ListOrders(ctx, services.OrderListFilter{
		UserID:        strings.TrimSpace(query.Get("userId")),
		OrderStatus:   strings.TrimSpace(query.Get("status")),
		PaymentStatus: strings.TrimSpace(query.Get("paymentStatus")),
		PaymentMethod: strings.TrimSpace(query.Get("paymentMethod")),
		Pagination:    services.Pagination{PageSize: page.PageSize, PageToken: page.PageToken},
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderListResponse{
		Items:         buildOrderPayloads(result.Items),
		NextPageToken: result.NextPageToken,
	})
}

func (h *OrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeOrdersUnavailable(w, r)
		return
	}
	var req updateOrderStatusRequest
	if !decodeJSONBody(w, r, maxOrderBodySize, &req) {
		return
	}
	order, err := h.orders.UpdateOrderStatus(ctx, services.UpdateOrderStatusCommand{
		OrderID: chi.URLParam(r, "orderID"),
		Status:  req.Status,
		ActorID: actorID(r),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) updatePaymentStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeOrdersUnavailable(w, r)
		return
	}
	var req updatePaymentStatusRequest
	if !decodeJSONBody(w, r, maxOrderBodySize, &req) {
		return
	}
	order, err := h.orders.UpdatePaymentStatus(ctx, services.UpdatePaymentStatusCommand{
		OrderID: chi.URLParam(r, "orderID"),
		Status:  firstNonEmpty(req.PaymentStatus, req.Status),
		ActorID: actorID(r),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) updateTracking(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeOrdersUnavailable(w, r)
		return
	}
	var req updateTrackingRequest
	if !decodeJSONBody(w, r, maxOrderBodySize, &req) {
		return
	}
	cmd := services.UpdateTrackingCommand{
		OrderID:        chi.URLParam(r, "orderID"),
		TrackingNumber: req.TrackingNumber,
		ActorID:        actorID(r),
	}
	if req.Status != "" || req.Location != "" || req.Description != "" {
		cmd.Event = &services.TrackingEventInput{
			Status:      req.Status,
			Location:    req.Location,
			Description: req.Description,
			Timestamp:   req.Timestamp,
		}
	}
	order, err := h.orders.UpdateTracking(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func actorID(r *http.Request) string {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok {
		return identity.UID
	}
	return ""
}

func writeOrdersUnavailable(w http.ResponseWriter, r *http.Request) {
	httpx.WriteError(r.Context(), w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
}
