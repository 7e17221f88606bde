package handlers

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/Rushan-dev/jeyani-gift-shop/internal/platform/httpx"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/platform/requestctx"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/platform/storage"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/repositories"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/services"
)

type errorMapping struct {
	target error
	code   string
	status int
}

// upstreamMessages replace err.Error() for 5xx mappings; the wrapped cause is only logged.
var upstreamMessages = map[string]string{
	"payment_provider_error": "payment provider request failed; please try again",
	"service_unavailable":    "service temporarily unavailable",
}

// serviceErrors is checked in order; the first sentinel matched by errors.Is wins.
var serviceErrors = []errorMapping{
	{services.ErrInsufficientStock, "insufficient_stock", http.StatusConflict},
	{services.ErrOrderInvalidTransition, "invalid_status_transition", http.StatusConflict},
	{services.ErrReviewAlreadyExists, "review_exists", http.StatusConflict},
	{services.ErrUserAlreadyExists, "user_exists", http.StatusConflict},
	{services.ErrWishlistDuplicate, "wishlist_duplicate", http.StatusConflict},
	{services.ErrCatalogConflict, "catalog_conflict", http.StatusConflict},
	{services.ErrPaymentOrderCancelled, "order_cancelled", http.StatusConflict},

	{services.ErrOrderForbidden, "forbidden", http.StatusForbidden},
	{services.ErrReviewForbidden, "forbidden", http.StatusForbidden},

	{services.ErrProductNotFound, "product_not_found", http.StatusNotFound},
	{services.ErrCategoryNotFound, "category_not_found", http.StatusNotFound},
	{services.ErrCartItemNotFound, "cart_item_not_found", http.StatusNotFound},
	{services.ErrOrderNotFound, "order_not_found", http.StatusNotFound},
	{services.ErrReviewNotFound, "review_not_found", http.StatusNotFound},
	{services.ErrUserNotFound, "user_not_found", http.StatusNotFound},
	{services.ErrWishlistItemNotFound, "wishlist_item_not_found", http.StatusNotFound},

	{services.ErrPaymentInvalidSignature, "invalid_signature", http.StatusBadRequest},
	{services.ErrPaymentInvalidSession, "invalid_session", http.StatusBadRequest},
	{services.ErrCartInvalidInput, "invalid_request", http.StatusBadRequest},
	{services.ErrCatalogInvalidInput, "invalid_request", http.StatusBadRequest},
	{services.ErrCheckoutInvalidInput, "invalid_request", http.StatusBadRequest},
	{services.ErrInventoryInvalidInput, "invalid_request", http.StatusBadRequest},
	{services.ErrOrderInvalidInput, "invalid_request", http.StatusBadRequest},
	{services.ErrPaymentInvalidInput, "invalid_request", http.StatusBadRequest},
	{services.ErrReviewInvalidInput, "invalid_request", http.StatusBadRequest},
	{services.ErrSettingsInvalidInput, "invalid_request", http.StatusBadRequest},
	{services.ErrUserInvalidInput, "invalid_request", http.StatusBadRequest},

	{storage.ErrUploadTooLarge, "payload_too_large", http.StatusRequestEntityTooLarge},
	{storage.ErrContentTypeDenied, "unsupported_media_type", http.StatusUnsupportedMediaType},

	{services.ErrCheckoutPaymentFailed, "payment_provider_error", http.StatusBadGateway},
	{services.ErrPaymentGatewayFailure, "payment_provider_error", http.StatusBadGateway},

	{services.ErrCatalogUnavailable, "service_unavailable", http.StatusServiceUnavailable},
	{services.ErrOrderUnavailable, "service_unavailable", http.StatusServiceUnavailable},
}

// writeServiceError maps service and repository failures onto the JSON error envelope.
// Messages of unclassified errors are logged, never returned to the caller.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	for _, m := range serviceErrors {
		if !errors.Is(err, m.target) {
			continue
		}
		message := err.Error()
		if m.status >= http.StatusInternalServerError {
			requestctx.Logger(ctx).Warn("upstream failure", zap.String("code", m.code), zap.Error(err))
			message = upstreamMessages[m.code]
		}
		apiErr := httpx.NewError(m.code, message, m.status)
		if invErr, ok := repositories.AsInventoryError(err); ok && invErr.ProductID != "" {
			apiErr = apiErr.WithDetails(map[string]any{"productId": invErr.ProductID})
		}
		httpx.WriteError(ctx, w, apiErr)
		return
	}

	switch {
	case repositories.IsNotFound(err):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", "resource not found", http.StatusNotFound))
	case repositories.IsConflict(err):
		httpx.WriteError(ctx, w, httpx.NewError("conflict", "resource was modified concurrently; retry", http.StatusConflict))
	case repositories.IsUnavailable(err):
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "storage temporarily unavailable", http.StatusServiceUnavailable))
	default:
		requestctx.Logger(ctx).Error("unhandled service error", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "internal server error", http.StatusInternalServerError))
	}
}
