package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Rushan-dev/jeyani-gift-shop/internal/domain"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/platform/auth"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/platform/idempotency"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/services"
)

const checkoutBody = `{
	"items": [{"productId": " prod-1 ", "quantity": 2}],
	"shippingAddress": {"name": "Nimali", "phone": "0771234567", "address": "12 Temple Rd", "city": "Kandy", "postalCode": "20000"},
	"paymentMethod": "stripe"
}`

func newCheckoutRouter(handler *CheckoutHandlers) chi.Router {
	router := chi.NewRouter()
	router.Route("/orders", handler.Routes)
	return router
}

func TestCheckoutHandlersCreateOrderSuccess(t *testing.T) {
	created := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	var captured services.CreateOrderCommand
	service := &stubCheckoutService{
		createFunc: func(ctx context.Context, cmd services.CreateOrderCommand) (services.CheckoutResult, error) {
			captured = cmd
			return services.CheckoutResult{
				Order: services.Order{
					ID:            "01hzx3k9q7abcdefgh",
					UserID:        cmd.UserID,
					Items:         []services.OrderItem{{ProductID: "prod-1", Name: "Rose Hamper", Quantity: 2, Price: 1500}},
					PaymentMethod: domain.PaymentMethodCard,
					PaymentStatus: domain.PaymentStatusPending,
					OrderStatus:   domain.OrderStatusPending,
					Subtotal:      3000,
					ShippingFee:   350,
					TotalAmount:   3350,
					CreatedAt:     created,
				},
				CheckoutURL: "https://checkout.stripe.test/cs_123",
				SessionID:   "cs_123",
			}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(checkoutBody))
	req = withIdentity(req, &auth.Identity{UID: "user-1", Email: "nimali@example.com"})
	rr := httptest.NewRecorder()
	newCheckoutRouter(NewCheckoutHandlers(nil, service, nil)).ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.UserID != "user-1" || captured.UserEmail != "nimali@example.com" {
		t.Fatalf("unexpected caller on command %#v", captured)
	}
	if len(captured.Items) != 1 || captured.Items[0].ProductID != "prod-1" || captured.Items[0].Quantity != 2 {
		t.Fatalf("unexpected items %#v", captured.Items)
	}
	if captured.PaymentMethod != "stripe" || captured.ShippingAddress.City != "Kandy" {
		t.Fatalf("unexpected command %#v", captured)
	}

	var resp createOrderResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.SessionID != "cs_123" || resp.CheckoutURL == "" {
		t.Fatalf("expected payment session in response, got %#v", resp)
	}
	if resp.Order.Reference != "ABCDEFGH" {
		t.Fatalf("expected short reference ABCDEFGH, got %q", resp.Order.Reference)
	}
	if resp.Order.TotalAmount != 3350 || resp.Order.Items[0].LineTotal != 3000 {
		t.Fatalf("unexpected totals %#v", resp.Order)
	}
}

func TestCheckoutHandlersCreateOrderUnauthenticated(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(checkoutBody))
	newCheckoutRouter(NewCheckoutHandlers(nil, &stubCheckoutService{}, nil)).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestCheckoutHandlersCreateOrderMapsServiceErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"invalid input", fmt.Errorf("%w: shipping address incomplete", services.ErrCheckoutInvalidInput), http.StatusBadRequest, "invalid_request"},
		{"out of stock", fmt.Errorf("%w: prod-1", services.ErrInsufficientStock), http.StatusConflict, "insufficient_stock"},
		{"missing product", fmt.Errorf("%w: prod-1", services.ErrProductNotFound), http.StatusNotFound, "product_not_found"},
		{"gateway", fmt.Errorf("%w: stripe: invalid api key sk_live_x", services.ErrCheckoutPaymentFailed), http.StatusBadGateway, "payment_provider_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			service := &stubCheckoutService{
				createFunc: func(context.Context, services.CreateOrderCommand) (services.CheckoutResult, error) {
					return services.CheckoutResult{}, tc.err
				},
			}
			req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(checkoutBody))
			req = withIdentity(req, &auth.Identity{UID: "user-1"})
			rr := httptest.NewRecorder()
			newCheckoutRouter(NewCheckoutHandlers(nil, service, nil)).ServeHTTP(rr, req)

			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
			var body map[string]any
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("failed to decode body: %v", err)
			}
			if body["error"] != tc.code {
				t.Fatalf("expected code %s, got %v", tc.code, body["error"])
			}
			if strings.Contains(rr.Body.String(), "sk_live_x") {
				t.Fatalf("gateway detail leaked to client: %s", rr.Body.String())
			}
		})
	}
}

func TestCheckoutHandlersCreateOrderIdempotentReplay(t *testing.T) {
	calls := 0
	service := &stubCheckoutService{
		createFunc: func(ctx context.Context, cmd services.CreateOrderCommand) (services.CheckoutResult, error) {
			calls++
			return services.CheckoutResult{Order: services.Order{ID: fmt.Sprintf("order-%d", calls), UserID: cmd.UserID}}, nil
		},
	}
	mw := idempotency.Middleware(idempotency.NewMemoryStore())
	router := newCheckoutRouter(NewCheckoutHandlers(nil, service, nil, WithCheckoutIdempotency(mw)))

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(checkoutBody))
		req.Header.Set("Idempotency-Key", "checkout-abc")
		req = withIdentity(req, &auth.Identity{UID: "user-1"})
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	first := send()
	second := send()

	if first.Code != http.StatusCreated || second.Code != http.StatusCreated {
		t.Fatalf("expected both responses 201, got %d and %d", first.Code, second.Code)
	}
	if calls != 1 {
		t.Fatalf("expected one order creation, got %d", calls)
	}
	if second.Header().Get("X-Idempotent-Replay") != "true" {
		t.Fatalf("expected replay header on second response")
	}
	if first.Body.String() != second.Body.String() {
		t.Fatalf("expected replayed body to match original")
	}
}

func TestCheckoutHandlersVerifyPaymentSuccess(t *testing.T) {
	var captured services.VerifyPaymentCommand
	payments := &stubPaymentReconciler{
		verifyFunc: func(ctx context.Context, cmd services.VerifyPaymentCommand) (services.PaymentVerification, error) {
			captured = cmd
			return services.PaymentVerification{
				Order:         services.Order{ID: "order-1", PaymentStatus: domain.PaymentStatusPaid, Finalized: true},
				PaymentStatus: "paid",
				Finalized:     true,
			}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/orders/verify-stripe", strings.NewReader(`{"sessionId":" cs_123 "}`))
	req = withIdentity(req, &auth.Identity{UID: "user-1", Roles: []string{auth.RoleUser}})
	rr := httptest.NewRecorder()
	newCheckoutRouter(NewCheckoutHandlers(nil, nil, payments)).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.SessionID != "cs_123" {
		t.Fatalf("expected trimmed session id, got %q", captured.SessionID)
	}
	if captured.Viewer.UserID != "user-1" || captured.Viewer.IsAdmin {
		t.Fatalf("unexpected viewer %#v", captured.Viewer)
	}
	var resp verifyPaymentResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Finalized || resp.PaymentStatus != "paid" || resp.Order.PaymentStatus != "paid" {
		t.Fatalf("unexpected response %#v", resp)
	}
}

func TestCheckoutHandlersVerifyPaymentRequiresSession(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/orders/verify-stripe", strings.NewReader(`{"sessionId":"  "}`))
	req = withIdentity(req, &auth.Identity{UID: "user-1"})
	rr := httptest.NewRecorder()
	newCheckoutRouter(NewCheckoutHandlers(nil, nil, &stubPaymentReconciler{})).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestCheckoutHandlersVerifyPaymentMapsServiceErrors(t *testing.T) {
	cases := map[string]struct {
		err    error
		status int
	}{
		"foreign order":  {fmt.Errorf("%w: order belongs to another user", services.ErrOrderForbidden), http.StatusForbidden},
		"unknown":        {fmt.Errorf("%w: no order for session", services.ErrPaymentInvalidSession), http.StatusBadRequest},
		"gateway outage": {fmt.Errorf("%w: timeout", services.ErrPaymentGatewayFailure), http.StatusBadGateway},
		"cancelled":      {fmt.Errorf("%w: order-1", services.ErrPaymentOrderCancelled), http.StatusConflict},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			payments := &stubPaymentReconciler{
				verifyFunc: func(context.Context, services.VerifyPaymentCommand) (services.PaymentVerification, error) {
					return services.PaymentVerification{}, tc.err
				},
			}
			req := httptest.NewRequest(http.MethodPost, "/orders/verify-stripe", strings.NewReader(`{"sessionId":"cs_1"}`))
			req = withIdentity(req, &auth.Identity{UID: "user-1"})
			rr := httptest.NewRecorder()
			newCheckoutRouter(NewCheckoutHandlers(nil, nil, payments)).ServeHTTP(rr, req)

			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
		})
	}
}
