package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Rushan-dev/jeyani-gift-shop/internal/platform/auth"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/platform/httpx"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/services"
)

const maxCartBodySize = 16 * 1024

// CartHandlers exposes authenticated cart endpoints for the current user.
type CartHandlers struct {
	authn *auth.Authenticator
	carts services.CartService
}

// NewCartHandlers constructs handlers enforcing Firebase authentication before invoking the cart service.
func NewCartHandlers(authn *auth.Authenticator, carts services.CartService) *CartHandlers {
	return &CartHandlers{
		authn: authn,
		carts: carts,
	}
}

// Routes wires the /cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := r
	if h.authn != nil {
		group = group.With(h.authn.RequireAuth)
	}
	group.Get("/", h.getCart)
	group.Delete("/", h.clearCart)
	group.Post("/items", h.addItem)
	group.Put("/items/{itemID}", h.updateItem)
	group.Delete("/items/{itemID}", h.removeItem)
}

type cartResponse struct {
	Cart cartPayload `json:"cart"`
}

type addCartItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  *int   `json:"quantity"`
}

type updateCartItemRequest struct {
	Quantity int `json:"quantity"`
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		writeCartUnavailable(w, r)
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	cart, err := h.carts.GetCart(ctx, identity.UID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeCart(w, http.StatusOK, cart)
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		writeCartUnavailable(w, r)
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	var req addCartItemRequest
	if !decodeJSONBody(w, r, maxCartBodySize, &req) {
		return
	}
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	cart, err := h.carts.AddItem(ctx, services.AddCartItemCommand{
		UserID:    identity.UID,
		ProductID: req.ProductID,
		Quantity:  quantity,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeCart(w, http.StatusOK, cart)
}

func (h *CartHandlers) updateItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		writeCartUnavailable(w, r)
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	var req updateCartItemRequest
	if !decodeJSONBody(w, r, maxCartBodySize, &req) {
		return
	}

	cart, err := h.carts.UpdateItem(ctx, services.UpdateCartItemCommand{
		UserID:   identity.UID,
		ItemID:   chi.URLParam(r, "itemID"),
		Quantity: req.Quantity,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeCart(w, http.StatusOK, cart)
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		writeCartUnavailable(w, r)
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	cart, err := h.carts.RemoveItem(ctx, identity.UID, chi.URLParam(r, "itemID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeCart(w, http.StatusOK, cart)
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		writeCartUnavailable(w, r)
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if err := h.carts.ClearCart(ctx, identity.UID); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeCart disables caching since the hydrated cart reflects live prices and stock.
func writeCart(w http.ResponseWriter, status int, cart services.CartView) {
	w.Header().Set("Cache-Control", "no-store, no-cache, max-age=0, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	if !cart.UpdatedAt.IsZero() {
		w.Header().Set("Last-Modified", cart.UpdatedAt.UTC().Format(http.TimeFormat))
	}
	writeJSONResponse(w, status, cartResponse{Cart: buildCartPayload(cart)})
}

func writeCartUnavailable(w http.ResponseWriter, r *http.Request) {
	httpx.WriteError(r.Context(), w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
}
