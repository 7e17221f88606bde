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
	"github.com/Rushan-dev/jeyani-gift-shop/internal/services"
)

func newReviewRouter(service services.ReviewService) chi.Router {
	handler := NewReviewHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/products", handler.ProductRoutes)
	router.Route("/reviews", handler.Routes)
	return router
}

func TestReviewHandlersListReviews(t *testing.T) {
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	service := &stubReviewService{
		listFunc: func(ctx context.Context, productID string) ([]services.Review, error) {
			if productID != "prod-1" {
				t.Fatalf("unexpected product %q", productID)
			}
			return []services.Review{
				{ID: "rev-1", ProductID: productID, UserID: "user-1", UserName: "Nimali", Rating: 5, Comment: "Lovely", CreatedAt: created},
			}, nil
		},
	}

	rr := httptest.NewRecorder()
	newReviewRouter(service).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/products/prod-1/reviews", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp reviewListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].Rating != 5 || resp.Items[0].CreatedAt != "2024-03-01T12:00:00Z" {
		t.Fatalf("unexpected reviews %#v", resp.Items)
	}
}

func TestReviewHandlersCreateSuccess(t *testing.T) {
	var captured services.CreateReviewCommand
	service := &stubReviewService{
		createFunc: func(ctx context.Context, cmd services.CreateReviewCommand) (services.Review, error) {
			captured = cmd
			return services.Review{ID: "rev-9", ProductID: cmd.ProductID, UserID: cmd.UserID, UserName: cmd.UserName, Rating: cmd.Rating, Comment: cmd.Comment}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/products/prod-1/reviews", strings.NewReader(`{"rating":4,"comment":"Well packed"}`))
	req = withIdentity(req, &auth.Identity{UID: "user-1", Email: "kasun@example.com"})
	rr := httptest.NewRecorder()
	newReviewRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.ProductID != "prod-1" || captured.UserID != "user-1" || captured.Rating != 4 {
		t.Fatalf("unexpected command %#v", captured)
	}
	if captured.UserName != "kasun" {
		t.Fatalf("expected email local part as reviewer name, got %q", captured.UserName)
	}
}

func TestReviewHandlersCreateInvalidJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/products/prod-1/reviews", strings.NewReader(`{"rating":`))
	req = withIdentity(req, &auth.Identity{UID: "user-1"})
	rr := httptest.NewRecorder()
	newReviewRouter(&stubReviewService{}).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestReviewHandlersCreateUnauthenticated(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/products/prod-1/reviews", strings.NewReader(`{"rating":4}`))
	rr := httptest.NewRecorder()
	newReviewRouter(&stubReviewService{}).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestReviewHandlersCreateServiceErrors(t *testing.T) {
	cases := map[string]struct {
		err    error
		status int
		code   string
	}{
		"duplicate":   {fmt.Errorf("%w: user-1 on prod-1", services.ErrReviewAlreadyExists), http.StatusConflict, "review_exists"},
		"bad rating":  {fmt.Errorf("%w: rating must be 1-5", services.ErrReviewInvalidInput), http.StatusBadRequest, "invalid_request"},
		"no product":  {fmt.Errorf("%w: prod-1", services.ErrProductNotFound), http.StatusNotFound, "product_not_found"},
		"unavailable": {fmt.Errorf("%w: firestore", services.ErrCatalogUnavailable), http.StatusServiceUnavailable, "service_unavailable"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			service := &stubReviewService{
				createFunc: func(context.Context, services.CreateReviewCommand) (services.Review, error) {
					return services.Review{}, tc.err
				},
			}
			req := httptest.NewRequest(http.MethodPost, "/products/prod-1/reviews", strings.NewReader(`{"rating":9}`))
			req = withIdentity(req, &auth.Identity{UID: "user-1", Name: "Kasun"})
			rr := httptest.NewRecorder()
			newReviewRouter(service).ServeHTTP(rr, req)

			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
			var body map[string]any
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("failed to decode body: %v", err)
			}
			if body["error"] != tc.code {
				t.Fatalf("expected %s, got %v", tc.code, body["error"])
			}
		})
	}
}

func TestReviewHandlersUpdatePartial(t *testing.T) {
	var captured services.UpdateReviewCommand
	service := &stubReviewService{
		updateFunc: func(ctx context.Context, cmd services.UpdateReviewCommand) (services.Review, error) {
			captured = cmd
			return services.Review{ID: cmd.ReviewID, Rating: 3}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPut, "/reviews/rev-1", strings.NewReader(`{"comment":"Changed my mind"}`))
	req = withIdentity(req, &auth.Identity{UID: "user-1"})
	rr := httptest.NewRecorder()
	newReviewRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if captured.Rating != nil {
		t.Fatalf("expected rating untouched, got %v", *captured.Rating)
	}
	if captured.Comment == nil || *captured.Comment != "Changed my mind" || captured.UserID != "user-1" {
		t.Fatalf("unexpected command %#v", captured)
	}
}

func TestReviewHandlersDelete(t *testing.T) {
	t.Run("admin deletes", func(t *testing.T) {
		var captured services.DeleteReviewCommand
		service := &stubReviewService{
			deleteFunc: func(ctx context.Context, cmd services.DeleteReviewCommand) error {
				captured = cmd
				return nil
			},
		}
		req := withIdentity(httptest.NewRequest(http.MethodDelete, "/reviews/rev-1", nil), &auth.Identity{UID: "admin-1", Roles: []string{auth.RoleAdmin}})
		rr := httptest.NewRecorder()
		newReviewRouter(service).ServeHTTP(rr, req)

		if rr.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", rr.Code)
		}
		if captured.ReviewID != "rev-1" || !captured.Viewer.IsAdmin {
			t.Fatalf("unexpected command %#v", captured)
		}
	})

	t.Run("other user forbidden", func(t *testing.T) {
		service := &stubReviewService{
			deleteFunc: func(context.Context, services.DeleteReviewCommand) error {
				return services.ErrReviewForbidden
			},
		}
		req := withIdentity(httptest.NewRequest(http.MethodDelete, "/reviews/rev-1", nil), &auth.Identity{UID: "user-2"})
		rr := httptest.NewRecorder()
		newReviewRouter(service).ServeHTTP(rr, req)

		if rr.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", rr.Code)
		}
	})
}

func TestReviewHandlersServiceUnavailable(t *testing.T) {
	rr := httptest.NewRecorder()
	newReviewRouter(nil).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/products/prod-1/reviews", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}
