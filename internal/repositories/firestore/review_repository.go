package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/Rushan-dev/jeyani-gift-shop/internal/domain"
	pfirestore "github.com/Rushan-dev/jeyani-gift-shop/internal/platform/firestore"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/repositories"
)

const reviewCollection = "reviews"

// ReviewRepository persists product reviews in a top-level collection keyed by review ID.
type ReviewRepository struct {
	base *pfirestore.Collection[reviewDocument]
}

var _ repositories.ReviewRepository = (*ReviewRepository)(nil)

// NewReviewRepository constructs a Firestore-backed review repository.
func NewReviewRepository(provider *pfirestore.Provider) (*ReviewRepository, error) {
	if provider == nil {
		return nil, errors.New("review repository requires firestore provider")
	}
	return &ReviewRepository{
		base: pfirestore.NewCollection[reviewDocument](provider, reviewCollection),
	}, nil
}

func (r *ReviewRepository) Insert(ctx context.Context, review domain.Review) error {
	return r.base.Create(ctx, review.ID, newReviewDocument(review))
}

func (r *ReviewRepository) Update(ctx context.Context, review domain.Review) error {
	return r.base.Update(ctx, review.ID, []firestore.Update{
		{Path: "rating", Value: review.Rating},
		{Path: "comment", Value: review.Comment},
		{Path: "updatedAt", Value: review.UpdatedAt.UTC()},
	})
}

func (r *ReviewRepository) Delete(ctx context.Context, reviewID string) error {
	return r.base.Delete(ctx, reviewID, firestore.Exists)
}

func (r *ReviewRepository) FindByID(ctx context.Context, reviewID string) (domain.Review, error) {
	doc, err := r.base.Get(ctx, reviewID)
	if err != nil {
		return domain.Review{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *ReviewRepository) FindByProductAndUser(ctx context.Context, productID, userID string) (domain.Review, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("productId", "==", productID).Where("userId", "==", userID).Limit(1)
	})
	if err != nil {
		return domain.Review{}, err
	}
	if len(docs) == 0 {
		return domain.Review{}, pfirestore.WrapError("reviews.find_by_product_and_user", status.Error(codes.NotFound, "review not found"))
	}
	return docs[0].Data.toDomain(docs[0].ID), nil
}

func (r *ReviewRepository) ListByProduct(ctx context.Context, productID string) ([]domain.Review, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("productId", "==", productID).OrderBy("createdAt", firestore.Desc)
	})
	if err != nil {
		return nil, err
	}
	reviews := make([]domain.Review, 0, len(docs))
	for _, doc := range docs {
		reviews = append(reviews, doc.Data.toDomain(doc.ID))
	}
	return reviews, nil
}

type reviewDocument struct {
	ProductID string    `firestore:"productId"`
	UserID    string    `firestore:"userId"`
	UserName  string    `firestore:"userName"`
	Rating    int       `firestore:"rating"`
	Comment   string    `firestore:"comment"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func newReviewDocument(r domain.Review) reviewDocument {
	return reviewDocument{
		ProductID: r.ProductID,
		UserID:    r.UserID,
		UserName:  r.UserName,
		Rating:    r.Rating,
		Comment:   r.Comment,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

func (d reviewDocument) toDomain(id string) domain.Review {
	return domain.Review{
		ID:        id,
		ProductID: d.ProductID,
		UserID:    d.UserID,
		UserName:  d.UserName,
		Rating:    d.Rating,
		Comment:   d.Comment,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}
