package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Rushan-dev/jeyani-gift-shop/internal/platform/idempotency"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/services"
)

func newInternalRouter(h *InternalHandlers) chi.Router {
	router := chi.NewRouter()
	router.Route("/internal", h.Routes)
	return router
}

func TestInternalHandlersReconcile(t *testing.T) {
	var captured services.ReconcilePendingCommand
	payments := &stubPaymentReconciler{
		reconcileFunc: func(ctx context.Context, cmd services.ReconcilePendingCommand) (services.ReconcileSummary, error) {
			captured = cmd
			return services.ReconcileSummary{Checked: 4, Finalized: 2, Failed: 1, Errors: 1}, nil
		},
	}
	router := newInternalRouter(NewInternalHandlers(payments))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/internal/payments/reconcile", strings.NewReader(`{"olderThan":"45m","limit":10}`)))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OlderThan != 45*time.Minute || captured.Limit != 10 {
		t.Fatalf("unexpected command %#v", captured)
	}
	var resp reconcileResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp != (reconcileResponse{Checked: 4, Finalized: 2, Failed: 1, Errors: 1}) {
		t.Fatalf("unexpected summary %#v", resp)
	}

	captured = services.ReconcilePendingCommand{Limit: -1}
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/internal/payments/reconcile", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected empty body to use defaults, got %d", rr.Code)
	}
	if captured.OlderThan != 0 || captured.Limit != 0 {
		t.Fatalf("expected zero-value command for defaults, got %#v", captured)
	}
}

func TestInternalHandlersReconcileRejectsBadDuration(t *testing.T) {
	for _, body := range []string{`{"olderThan":"soon"}`, `{"olderThan":"-5m"}`, `{"olderThan":`} {
		rr := httptest.NewRecorder()
		router := newInternalRouter(NewInternalHandlers(&stubPaymentReconciler{}))
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/internal/payments/reconcile", strings.NewReader(body)))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", body, rr.Code)
		}
	}
}

func TestInternalHandlersIdempotencyCleanup(t *testing.T) {
	now := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	store := idempotency.NewMemoryStore()
	ctx := context.Background()
	if _, err := store.Reserve(ctx, "old", "fp", now.Add(-48*time.Hour), time.Hour); err != nil {
		t.Fatalf("reserve old: %v", err)
	}
	if _, err := store.Reserve(ctx, "fresh", "fp", now, time.Hour); err != nil {
		t.Fatalf("reserve fresh: %v", err)
	}

	handler := NewInternalHandlers(nil, WithIdempotencyCleanup(store, 10, 1), WithInternalClock(func() time.Time { return now }))
	rr := httptest.NewRecorder()
	newInternalRouter(handler).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/internal/maintenance/idempotency-cleanup", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp cleanupResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Deleted != 1 {
		t.Fatalf("expected one expired key deleted, got %d", resp.Deleted)
	}
}

func TestInternalHandlersUnavailable(t *testing.T) {
	router := newInternalRouter(NewInternalHandlers(nil))
	for _, target := range []string{"/internal/payments/reconcile", "/internal/maintenance/idempotency-cleanup"} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, target, nil))
		if rr.Code != http.StatusServiceUnavailable {
			t.Fatalf("%s: expected 503, got %d", target, rr.Code)
		}
	}
}
