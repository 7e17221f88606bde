package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Rushan-dev/jeyani-gift-shop/internal/platform/httpx"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/platform/idempotency"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/platform/requestctx"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/services"
)

const maxInternalBodySize = 4 * 1024

// InternalHandlers serves scheduler-triggered maintenance endpoints. The caller mounts them
// behind OIDC verification.
type InternalHandlers struct {
	payments    services.PaymentReconciler
	idempotency idempotency.Store

	cleanupBatchSize int
	cleanupBatches   int
	clock            func() time.Time
}

// InternalOption customises InternalHandlers.
type InternalOption func(*InternalHandlers)

// WithIdempotencyCleanup enables the idempotency cleanup endpoint.
func WithIdempotencyCleanup(store idempotency.Store, batchSize, maxBatches int) InternalOption {
	return func(h *InternalHandlers) {
		h.idempotency = store
		h.cleanupBatchSize = batchSize
		h.cleanupBatches = maxBatches
	}
}

// WithInternalClock overrides the clock used for expiry decisions.
func WithInternalClock(clock func() time.Time) InternalOption {
	return func(h *InternalHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// NewInternalHandlers constructs the maintenance handlers.
func NewInternalHandlers(payments services.PaymentReconciler, opts ...InternalOption) *InternalHandlers {
	h := &InternalHandlers{
		payments: payments,
		clock:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /internal endpoints.
func (h *InternalHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/payments/reconcile", h.reconcilePayments)
	r.Post("/maintenance/idempotency-cleanup", h.cleanupIdempotency)
}

type reconcileRequest struct {
	OlderThan string `json:"olderThan"`
	Limit     int    `json:"limit"`
}

type reconcileResponse struct {
	Checked   int `json:"checked"`
	Finalized int `json:"finalized"`
	Failed    int `json:"failed"`
	Errors    int `json:"errors"`
}

type cleanupResponse struct {
	Deleted int `json:"deleted"`
}

func (h *InternalHandlers) reconcilePayments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payments_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}

	// Scheduler jobs may post an empty body to use the defaults.
	var req reconcileRequest
	if body, err := readLimitedBody(r, maxInternalBodySize); err == nil {
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
			return
		}
	} else if !errors.Is(err, errEmptyBody) {
		writeBodyError(ctx, w, err)
		return
	}

	cmd := services.ReconcilePendingCommand{Limit: req.Limit}
	if req.OlderThan != "" {
		d, err := time.ParseDuration(req.OlderThan)
		if err != nil || d < 0 {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "olderThan must be a non-negative duration such as 30m", http.StatusBadRequest))
			return
		}
		cmd.OlderThan = d
	}

	summary, err := h.payments.ReconcilePending(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, reconcileResponse{
		Checked:   summary.Checked,
		Finalized: summary.Finalized,
		Failed:    summary.Failed,
		Errors:    summary.Errors,
	})
}

func (h *InternalHandlers) cleanupIdempotency(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.idempotency == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cleanup_unavailable", "idempotency cleanup not configured", http.StatusServiceUnavailable))
		return
	}
	deleted, err := idempotency.Cleanup(ctx, h.idempotency, h.clock().UTC(), h.cleanupBatchSize, h.cleanupBatches)
	if err != nil {
		requestctx.Logger(ctx).Error("idempotency cleanup failed", zap.Error(err), zap.Int("deleted", deleted))
		httpx.WriteError(ctx, w, httpx.NewError("cleanup_failed", "idempotency cleanup failed", http.StatusInternalServerError))
		return
	}
	writeJSONResponse(w, http.StatusOK, cleanupResponse{Deleted: deleted})
}
