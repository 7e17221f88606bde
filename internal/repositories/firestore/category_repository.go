package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/Rushan-dev/jeyani-gift-shop/internal/domain"
	pfirestore "github.com/Rushan-dev/jeyani-gift-shop/internal/platform/firestore"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/repositories"
)

const categoryCollection = "categories"

// CategoryRepository persists catalog categories.
type CategoryRepository struct {
	base *pfirestore.Collection[categoryDocument]
}

var _ repositories.CategoryRepository = (*CategoryRepository)(nil)

// NewCategoryRepository constructs a Firestore-backed category repository.
func NewCategoryRepository(provider *pfirestore.Provider) (*CategoryRepository, error) {
	if provider == nil {
		return nil, errors.New("category repository requires firestore provider")
	}
	return &CategoryRepository{
		base: pfirestore.NewCollection[categoryDocument](provider, categoryCollection),
	}, nil
}

func (r *CategoryRepository) Insert(ctx context.Context, category domain.Category) error {
	return r.base.Create(ctx, category.ID, newCategoryDocument(category))
}

func (r *CategoryRepository) Update(ctx context.Context, category domain.Category) error {
	doc := newCategoryDocument(category)
	return r.base.Update(ctx, category.ID, []firestore.Update{
		{Path: "name", Value: doc.Name},
		{Path: "slug", Value: doc.Slug},
		{Path: "description", Value: doc.Description},
		{Path: "image", Value: doc.Image},
		{Path: "updatedAt", Value: doc.UpdatedAt},
	})
}

func (r *CategoryRepository) Delete(ctx context.Context, categoryID string) error {
	return r.base.Delete(ctx, categoryID, firestore.Exists)
}

func (r *CategoryRepository) FindByID(ctx context.Context, categoryID string) (domain.Category, error) {
	doc, err := r.base.Get(ctx, categoryID)
	if err != nil {
		return domain.Category{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *CategoryRepository) FindBySlug(ctx context.Context, slug string) (domain.Category, error) {
	slug = strings.TrimSpace(slug)
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("slug", "==", slug).Limit(1)
	})
	if err != nil {
		return domain.Category{}, err
	}
	if len(docs) == 0 {
		return domain.Category{}, pfirestore.WrapError("categories.find_by_slug", status.Errorf(codes.NotFound, "category %q not found", slug))
	}
	return docs[0].Data.toDomain(docs[0].ID), nil
}

func (r *CategoryRepository) List(ctx context.Context) ([]domain.Category, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("name", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	categories := make([]domain.Category, 0, len(docs))
	for _, doc := range docs {
		categories = append(categories, doc.Data.toDomain(doc.ID))
	}
	return categories, nil
}

type categoryDocument struct {
	Name        string    `firestore:"name"`
	Slug        string    `firestore:"slug"`
	Description string    `firestore:"description"`
	Image       string    `firestore:"image"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

func newCategoryDocument(c domain.Category) categoryDocument {
	return categoryDocument{
		Name:        strings.TrimSpace(c.Name),
		Slug:        strings.TrimSpace(c.Slug),
		Description: c.Description,
		Image:       strings.TrimSpace(c.Image),
		CreatedAt:   c.CreatedAt.UTC(),
		UpdatedAt:   c.UpdatedAt.UTC(),
	}
}

func (d categoryDocument) toDomain(id string) domain.Category {
	return domain.Category{
		ID:          id,
		Name:        d.Name,
		Slug:        d.Slug,
		Description: d.Description,
		Image:       d.Image,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}
