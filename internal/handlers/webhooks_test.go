package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/Rushan-dev/jeyani-gift-shop/internal/services"
)

func newWebhookRouter(payments services.PaymentReconciler) chi.Router {
	handler := NewWebhookHandlers(payments)
	router := chi.NewRouter()
	router.Route("/webhooks", handler.Routes)
	return router
}

func TestWebhookHandlersStripe(t *testing.T) {
	var gotPayload, gotSignature string
	payments := &stubPaymentReconciler{
		webhookFunc: func(ctx context.Context, payload []byte, signature string) error {
			gotPayload = string(payload)
			gotSignature = signature
			return nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(`{"type":"checkout.session.completed"}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=abc")
	rr := httptest.NewRecorder()
	newWebhookRouter(payments).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotSignature != "t=1,v1=abc" || !strings.Contains(gotPayload, "checkout.session.completed") {
		t.Fatalf("unexpected webhook input %q %q", gotSignature, gotPayload)
	}
	if strings.TrimSpace(rr.Body.String()) != `{"received":true}` {
		t.Fatalf("unexpected body %s", rr.Body.String())
	}
}

func TestWebhookHandlersStripeRejects(t *testing.T) {
	t.Run("missing signature", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(`{}`))
		rr := httptest.NewRecorder()
		newWebhookRouter(&stubPaymentReconciler{}).ServeHTTP(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rr.Code)
		}
	})

	t.Run("bad signature", func(t *testing.T) {
		payments := &stubPaymentReconciler{
			webhookFunc: func(context.Context, []byte, string) error {
				return fmt.Errorf("%w: no valid v1 signature", services.ErrPaymentInvalidSignature)
			},
		}
		req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(`{}`))
		req.Header.Set("Stripe-Signature", "t=1,v1=forged")
		rr := httptest.NewRecorder()
		newWebhookRouter(payments).ServeHTTP(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rr.Code)
		}
		if !strings.Contains(rr.Body.String(), "invalid_signature") {
			t.Fatalf("expected invalid_signature code, got %s", rr.Body.String())
		}
	})

	t.Run("oversized", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(strings.Repeat("a", maxWebhookBodySize+1)))
		req.Header.Set("Stripe-Signature", "t=1,v1=abc")
		rr := httptest.NewRecorder()
		newWebhookRouter(&stubPaymentReconciler{}).ServeHTTP(rr, req)
		if rr.Code != http.StatusRequestEntityTooLarge {
			t.Fatalf("expected 413, got %d", rr.Code)
		}
	})
}
