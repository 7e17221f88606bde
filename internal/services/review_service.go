package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	"github.com/Rushan-dev/jeyani-gift-shop/internal/platform/textutil"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/repositories"
)

const maxReviewCommentLength = 2000

var (
	// ErrReviewInvalidInput indicates an invalid review payload.
	ErrReviewInvalidInput = errors.New("review: invalid input")
	// ErrReviewNotFound indicates the review does not exist.
	ErrReviewNotFound = errors.New("review: not found")
	// ErrReviewForbidden indicates the caller may not modify the review.
	ErrReviewForbidden = errors.New("review: forbidden")
	// ErrReviewAlreadyExists indicates the user already reviewed the product.
	ErrReviewAlreadyExists = errors.New("review: already exists")
)

// ReviewServiceDeps wires the repositories used by the review service.
type ReviewServiceDeps struct {
	Reviews     repositories.ReviewRepository
	Products    repositories.ProductRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type reviewService struct {
	reviews  repositories.ReviewRepository
	products repositories.ProductRepository
	now      func() time.Time
	newID    func() string
	logger   func(ctx context.Context, event string, fields map[string]any)
}

// NewReviewService constructs a ReviewService.
func NewReviewService(deps ReviewServiceDeps) (ReviewService, error) {
	if deps.Reviews == nil {
		return nil, errors.New("review service: review repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("review service: product repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &reviewService{
		reviews:  deps.Reviews,
		products: deps.Products,
		now:      func() time.Time { return clock().UTC() },
		newID:    idGen,
		logger:   logger,
	}, nil
}

func (s *reviewService) ListProductReviews(ctx context.Context, productID string) ([]Review, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, ErrReviewInvalidInput
	}
	reviews, err := s.reviews.ListByProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if reviews == nil {
		reviews = []Review{}
	}
	return reviews, nil
}

func (s *reviewService) CreateReview(ctx context.Context, cmd CreateReviewCommand) (Review, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	userID := strings.TrimSpace(cmd.UserID)
	if productID == "" || userID == "" {
		return Review{}, ErrReviewInvalidInput
	}
	if err := validateRating(cmd.Rating); err != nil {
		return Review{}, err
	}
	comment, err := sanitizeComment(cmd.Comment)
	if err != nil {
		return Review{}, err
	}
	if _, err := s.products.FindByID(ctx, productID); err != nil {
		return Review{}, mapInventoryError(err)
	}
	if _, err := s.reviews.FindByProductAndUser(ctx, productID, userID); err == nil {
		return Review{}, fmt.Errorf("%w: product %s", ErrReviewAlreadyExists, productID)
	} else if !repositories.IsNotFound(err) {
		return Review{}, err
	}

	now := s.now()
	review := Review{
		ID:        s.newID(),
		ProductID: productID,
		UserID:    userID,
		UserName:  textutil.PlainText(cmd.UserName),
		Rating:    cmd.Rating,
		Comment:   comment,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.reviews.Insert(ctx, review); err != nil {
		return Review{}, err
	}
	if err := s.refreshRating(ctx, productID); err != nil {
		return Review{}, err
	}
	s.logger(ctx, "review.created", map[string]any{"reviewId": review.ID, "productId": productID, "rating": review.Rating})
	return review, nil
}

func (s *reviewService) UpdateReview(ctx context.Context, cmd UpdateReviewCommand) (Review, error) {
	review, err := s.findReview(ctx, cmd.ReviewID)
	if err != nil {
		return Review{}, err
	}
	if review.UserID != strings.TrimSpace(cmd.UserID) {
		return Review{}, ErrReviewForbidden
	}
	if cmd.Rating != nil {
		if err := validateRating(*cmd.Rating); err != nil {
			return Review{}, err
		}
		review.Rating = *cmd.Rating
	}
	if cmd.Comment != nil {
		comment, err := sanitizeComment(*cmd.Comment)
		if err != nil {
			return Review{}, err
		}
		review.Comment = comment
	}
	review.UpdatedAt = s.now()
	if err := s.reviews.Update(ctx, review); err != nil {
		return Review{}, err
	}
	if err := s.refreshRating(ctx, review.ProductID); err != nil {
		return Review{}, err
	}
	return review, nil
}

func (s *reviewService) DeleteReview(ctx context.Context, cmd DeleteReviewCommand) error {
	review, err := s.findReview(ctx, cmd.ReviewID)
	if err != nil {
		return err
	}
	if review.UserID != cmd.Viewer.UserID && !cmd.Viewer.IsAdmin {
		return ErrReviewForbidden
	}
	if err := s.reviews.Delete(ctx, review.ID); err != nil {
		return err
	}
	if err := s.refreshRating(ctx, review.ProductID); err != nil {
		return err
	}
	s.logger(ctx, "review.deleted", map[string]any{"reviewId": review.ID, "productId": review.ProductID, "actorId": cmd.Viewer.UserID})
	return nil
}

func (s *reviewService) findReview(ctx context.Context, reviewID string) (Review, error) {
	reviewID = strings.TrimSpace(reviewID)
	if reviewID == "" {
		return Review{}, ErrReviewInvalidInput
	}
	review, err := s.reviews.FindByID(ctx, reviewID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return Review{}, fmt.Errorf("%w: %s", ErrReviewNotFound, reviewID)
		}
		return Review{}, err
	}
	return review, nil
}

// refreshRating recomputes the product average from the stored reviews.
func (s *reviewService) refreshRating(ctx context.Context, productID string) error {
	reviews, err := s.reviews.ListByProduct(ctx, productID)
	if err != nil {
		return err
	}
	var average float64
	if len(reviews) > 0 {
		sum := 0
		for _, review := range reviews {
			sum += review.Rating
		}
		average = math.Round(float64(sum)/float64(len(reviews))*10) / 10
	}
	if err := s.products.UpdateRating(ctx, productID, average, len(reviews)); err != nil {
		if repositories.IsNotFound(err) {
			// The product was deleted; its reviews are orphaned but harmless.
			return nil
		}
		return err
	}
	return nil
}

func validateRating(rating int) error {
	if rating < 1 || rating > 5 {
		return fmt.Errorf("%w: rating must be between 1 and 5", ErrReviewInvalidInput)
	}
	return nil
}

func sanitizeComment(raw string) (string, error) {
	comment := textutil.PlainText(raw)
	if utf8.RuneCountInString(comment) > maxReviewCommentLength {
		return "", fmt.Errorf("%w: comment must be at most %d characters", ErrReviewInvalidInput, maxReviewCommentLength)
	}
	return comment, nil
}
