package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Rushan-dev/jeyani-gift-shop/internal/platform/auth"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/platform/httpx"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/services"
)

const maxReviewBodySize = 32 * 1024

// ReviewHandlers exposes endpoints for reading and writing product reviews.
type ReviewHandlers struct {
	authn   *auth.Authenticator
	reviews services.ReviewService
}

// NewReviewHandlers constructs a new ReviewHandlers instance.
func NewReviewHandlers(authn *auth.Authenticator, reviews services.ReviewService) *ReviewHandlers {
	return &ReviewHandlers{
		authn:   authn,
		reviews: reviews,
	}
}

// ProductRoutes registers /products/{productID}/reviews on the products router.
func (h *ReviewHandlers) ProductRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/{productID}/reviews", h.listReviews)
	h.authenticated(r).Post("/{productID}/reviews", h.createReview)
}

// Routes registers the /reviews endpoints.
func (h *ReviewHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := h.authenticated(r)
	group.Put("/{reviewID}", h.updateReview)
	group.Delete("/{reviewID}", h.deleteReview)
}

func (h *ReviewHandlers) authenticated(r chi.Router) chi.Router {
	if h.authn == nil {
		return r
	}
	return r.With(h.authn.RequireAuth)
}

type createReviewRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

type updateReviewRequest struct {
	Rating  *int    `json:"rating"`
	Comment *string `json:"comment"`
}

type reviewResponse struct {
	Review reviewPayload `json:"review"`
}

type reviewListResponse struct {
	Items []reviewPayload `json:"items"`
}

func (h *ReviewHandlers) listReviews(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reviews == nil {
		writeReviewsUnavailable(w, r)
		return
	}
	reviews, err := h.reviews.ListProductReviews(ctx, chi.URLParam(r, "productID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	resp := reviewListResponse{Items: make([]reviewPayload, 0, len(reviews))}
	for _, review := range reviews {
		resp.Items = append(resp.Items, buildReviewPayload(review))
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *ReviewHandlers) createReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reviews == nil {
		writeReviewsUnavailable(w, r)
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	var req createReviewRequest
	if !decodeJSONBody(w, r, maxReviewBodySize, &req) {
		return
	}

	review, err := h.reviews.CreateReview(ctx, services.CreateReviewCommand{
		ProductID: chi.URLParam(r, "productID"),
		UserID:    identity.UID,
		UserName:  identity.DisplayName(),
		Rating:    req.Rating,
		Comment:   req.Comment,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, reviewResponse{Review: buildReviewPayload(review)})
}

func (h *ReviewHandlers) updateReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reviews == nil {
		writeReviewsUnavailable(w, r)
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	var req updateReviewRequest
	if !decodeJSONBody(w, r, maxReviewBodySize, &req) {
		return
	}

	review, err := h.reviews.UpdateReview(ctx, services.UpdateReviewCommand{
		ReviewID: chi.URLParam(r, "reviewID"),
		UserID:   identity.UID,
		Rating:   req.Rating,
		Comment:  req.Comment,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, reviewResponse{Review: buildReviewPayload(review)})
}

func (h *ReviewHandlers) deleteReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reviews == nil {
		writeReviewsUnavailable(w, r)
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	err := h.reviews.DeleteReview(ctx, services.DeleteReviewCommand{
		ReviewID: chi.URLParam(r, "reviewID"),
		Viewer:   viewerFor(ctx, h.authn, identity),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeReviewsUnavailable(w http.ResponseWriter, r *http.Request) {
	httpx.WriteError(r.Context(), w, httpx.NewError("review_service_unavailable", "review service unavailable", http.StatusServiceUnavailable))
}
