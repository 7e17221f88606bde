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

	"github.com/Rushan-dev/jeyani-gift-shop/internal/platform/auth"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/repositories"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/services"
)

func newCartRouter(service services.CartService) chi.Router {
	handler := NewCartHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/cart", handler.Routes)
	return router
}

func TestCartHandlersGetCartSuccess(t *testing.T) {
	now := time.Date(2024, 5, 12, 10, 0, 0, 0, time.UTC)
	discount := int64(1500)

	service := &stubCartService{
		getFunc: func(ctx context.Context, userID string) (services.CartView, error) {
			if userID != "user-7" {
				t.Fatalf("unexpected user id %q", userID)
			}
			return services.CartView{
				UserID: "user-7",
				Items: []services.CartLine{
					{
						Item: services.CartItem{ID: "item-1", ProductID: "prod-1", Quantity: 2, AddedAt: now},
						Product: &services.Product{
							ID:            "prod-1",
							Name:          "Rose Hamper",
							Images:        []string{"https://cdn.example/rose.jpg"},
							OriginalPrice: 2000,
							DiscountPrice: &discount,
							Stock:         4,
							ShippingFee:   350,
						},
					},
					{
						Item: services.CartItem{ID: "item-2", ProductID: "gone", Quantity: 1, AddedAt: now},
					},
				},
				Subtotal:  3000,
				UpdatedAt: now,
			}, nil
		},
	}

	req := withIdentity(httptest.NewRequest(http.MethodGet, "/cart", nil), &auth.Identity{UID: "user-7"})
	rr := httptest.NewRecorder()
	newCartRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if cc := rr.Header().Get("Cache-Control"); !strings.Contains(cc, "no-store") {
		t.Fatalf("expected no-store cache control, got %q", cc)
	}
	if lm := rr.Header().Get("Last-Modified"); lm != now.Format(http.TimeFormat) {
		t.Fatalf("expected last-modified %q, got %q", now.Format(http.TimeFormat), lm)
	}

	var resp cartResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	cart := resp.Cart
	if cart.ItemsCount != 3 {
		t.Fatalf("expected items count 3, got %d", cart.ItemsCount)
	}
	if cart.Subtotal != 3000 {
		t.Fatalf("expected subtotal 3000, got %d", cart.Subtotal)
	}
	if len(cart.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(cart.Items))
	}
	first := cart.Items[0]
	if first.Product == nil || first.Product.Price != 1500 || first.LineTotal != 3000 {
		t.Fatalf("expected discounted line, got %#v", first)
	}
	if first.Product.Image != "https://cdn.example/rose.jpg" {
		t.Fatalf("expected first image, got %q", first.Product.Image)
	}
	if cart.Items[1].Product != nil || cart.Items[1].LineTotal != 0 {
		t.Fatalf("expected removed product to render without details, got %#v", cart.Items[1])
	}
}

func TestCartHandlersServiceUnavailable(t *testing.T) {
	handler := NewCartHandlers(nil, nil)
	router := chi.NewRouter()
	router.Route("/cart", handler.Routes)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/cart", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestCartHandlersGetCartUnauthenticated(t *testing.T) {
	rr := httptest.NewRecorder()
	newCartRouter(&stubCartService{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/cart", nil))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestCartHandlersAddItemDefaultsQuantity(t *testing.T) {
	var captured services.AddCartItemCommand
	service := &stubCartService{
		addFunc: func(ctx context.Context, cmd services.AddCartItemCommand) (services.CartView, error) {
			captured = cmd
			return services.CartView{UserID: cmd.UserID}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/cart/items", strings.NewReader(`{"productId":"prod-9"}`))
	req = withIdentity(req, &auth.Identity{UID: "user-1"})
	rr := httptest.NewRecorder()
	newCartRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.UserID != "user-1" || captured.ProductID != "prod-9" || captured.Quantity != 1 {
		t.Fatalf("unexpected command %#v", captured)
	}
}

func TestCartHandlersAddItemExplicitQuantity(t *testing.T) {
	var captured services.AddCartItemCommand
	service := &stubCartService{
		addFunc: func(ctx context.Context, cmd services.AddCartItemCommand) (services.CartView, error) {
			captured = cmd
			return services.CartView{}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/cart/items", strings.NewReader(`{"productId":"prod-9","quantity":0}`))
	req = withIdentity(req, &auth.Identity{UID: "user-1"})
	rr := httptest.NewRecorder()
	newCartRouter(service).ServeHTTP(rr, req)

	if captured.Quantity != 0 {
		t.Fatalf("expected explicit zero quantity to reach the service, got %d", captured.Quantity)
	}
}

func TestCartHandlersAddItemInsufficientStock(t *testing.T) {
	service := &stubCartService{
		addFunc: func(ctx context.Context, cmd services.AddCartItemCommand) (services.CartView, error) {
			invErr := &repositories.InventoryError{
				Op:        "check",
				Code:      repositories.InventoryErrorInsufficientStock,
				ProductID: cmd.ProductID,
			}
			return services.CartView{}, fmt.Errorf("%w: %w", services.ErrInsufficientStock, invErr)
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/cart/items", strings.NewReader(`{"productId":"prod-9","quantity":50}`))
	req = withIdentity(req, &auth.Identity{UID: "user-1"})
	rr := httptest.NewRecorder()
	newCartRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["error"] != "insufficient_stock" || body["productId"] != "prod-9" {
		t.Fatalf("unexpected error body %v", body)
	}
}

func TestCartHandlersAddItemInvalidJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/cart/items", strings.NewReader(`{"productId":`))
	req = withIdentity(req, &auth.Identity{UID: "user-1"})
	rr := httptest.NewRecorder()
	newCartRouter(&stubCartService{}).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestCartHandlersUpdateItem(t *testing.T) {
	var captured services.UpdateCartItemCommand
	service := &stubCartService{
		updateFunc: func(ctx context.Context, cmd services.UpdateCartItemCommand) (services.CartView, error) {
			captured = cmd
			return services.CartView{}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPut, "/cart/items/item-3", strings.NewReader(`{"quantity":4}`))
	req = withIdentity(req, &auth.Identity{UID: "user-1"})
	rr := httptest.NewRecorder()
	newCartRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if captured.ItemID != "item-3" || captured.Quantity != 4 || captured.UserID != "user-1" {
		t.Fatalf("unexpected command %#v", captured)
	}
}

func TestCartHandlersRemoveItemNotFound(t *testing.T) {
	service := &stubCartService{
		removeFunc: func(ctx context.Context, userID, itemID string) (services.CartView, error) {
			return services.CartView{}, fmt.Errorf("%w: %s", services.ErrCartItemNotFound, itemID)
		},
	}

	req := withIdentity(httptest.NewRequest(http.MethodDelete, "/cart/items/missing", nil), &auth.Identity{UID: "user-1"})
	rr := httptest.NewRecorder()
	newCartRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestCartHandlersClearCart(t *testing.T) {
	cleared := ""
	service := &stubCartService{
		clearFunc: func(ctx context.Context, userID string) error {
			cleared = userID
			return nil
		},
	}

	req := withIdentity(httptest.NewRequest(http.MethodDelete, "/cart", nil), &auth.Identity{UID: "user-1"})
	rr := httptest.NewRecorder()
	newCartRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if cleared != "user-1" {
		t.Fatalf("expected cart for user-1 cleared, got %q", cleared)
	}
}
