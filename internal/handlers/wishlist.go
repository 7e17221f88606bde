package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Rushan-dev/jeyani-gift-shop/internal/platform/auth"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/platform/httpx"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/services"
)

// WishlistHandlers exposes the current user's wishlist.
type WishlistHandlers struct {
	authn *auth.Authenticator
	users services.UserService
}

// NewWishlistHandlers constructs wishlist handlers backed by the user service.
func NewWishlistHandlers(authn *auth.Authenticator, users services.UserService) *WishlistHandlers {
	return &WishlistHandlers{
		authn: authn,
		users: users,
	}
}

// Routes wires the /wishlist endpoints onto the provided router.
func (h *WishlistHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := r
	if h.authn != nil {
		group = group.With(h.authn.RequireAuth)
	}
	group.Get("/", h.getWishlist)
	group.Post("/", h.addProduct)
	group.Delete("/{productID}", h.removeProduct)
}

type wishlistRequest struct {
	ProductID string `json:"productId"`
}

type wishlistResponse struct {
	Items []productPayload `json:"items"`
}

func (h *WishlistHandlers) getWishlist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		writeWishlistUnavailable(w, r)
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	products, err := h.users.GetWishlist(ctx, identity.UID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, wishlistResponse{Items: buildProductPayloads(products)})
}

func (h *WishlistHandlers) addProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		writeWishlistUnavailable(w, r)
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	var req wishlistRequest
	if !decodeJSONBody(w, r, maxCartBodySize, &req) {
		return
	}
	if req.ProductID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "productId is required", http.StatusBadRequest))
		return
	}
	products, err := h.users.AddToWishlist(ctx, identity.UID, req.ProductID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, wishlistResponse{Items: buildProductPayloads(products)})
}

func (h *WishlistHandlers) removeProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		writeWishlistUnavailable(w, r)
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	products, err := h.users.RemoveFromWishlist(ctx, identity.UID, chi.URLParam(r, "productID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, wishlistResponse{Items: buildProductPayloads(products)})
}

func writeWishlistUnavailable(w http.ResponseWriter, r *http.Request) {
	httpx.WriteError(r.Context(), w, httpx.NewError("wishlist_unavailable", "wishlist service unavailable", http.StatusServiceUnavailable))
}
