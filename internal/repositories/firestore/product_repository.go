package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/Rushan-dev/jeyani-gift-shop/internal/domain"
	pfirestore "github.com/Rushan-dev/jeyani-gift-shop/internal/platform/firestore"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/repositories"
)

const productCollection = "products"

// ProductRepository persists catalog products and owns the stock counter.
type ProductRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.Collection[productDocument]
	now      func() time.Time
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	base := pfirestore.NewCollection[productDocument](provider, productCollection)
	return &ProductRepository{provider: provider, base: base, now: time.Now}, nil
}

func (r *ProductRepository) Insert(ctx context.Context, product domain.Product) error {
	if strings.TrimSpace(product.ID) == "" {
		return errors.New("product repository: id is required")
	}
	return r.base.Create(ctx, product.ID, newProductDocument(product))
}

func (r *ProductRepository) Update(ctx context.Context, product domain.Product) error {
	if strings.TrimSpace(product.ID) == "" {
		return errors.New("product repository: id is required")
	}
	doc := newProductDocument(product)
	// Stock and rating have dedicated writers; a catalog edit must not overwrite them.
	return r.base.Update(ctx, product.ID, []firestore.Update{
		{Path: "name", Value: doc.Name},
		{Path: "nameLower", Value: doc.NameLower},
		{Path: "description", Value: doc.Description},
		{Path: "categoryId", Value: doc.CategoryID},
		{Path: "images", Value: doc.Images},
		{Path: "originalPrice", Value: doc.OriginalPrice},
		{Path: "discountPrice", Value: doc.DiscountPrice},
		{Path: "effectivePrice", Value: doc.EffectivePrice},
		{Path: "shippingFee", Value: doc.ShippingFee},
		{Path: "updatedAt", Value: doc.UpdatedAt},
	})
}

func (r *ProductRepository) Delete(ctx context.Context, productID string) error {
	return r.base.Delete(ctx, productID, firestore.Exists)
}

func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	doc, err := r.base.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *ProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	offset, limit, err := pageWindow(filter.Pagination)
	if err != nil {
		return domain.CursorPage[domain.Product]{}, err
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if categoryID := strings.TrimSpace(filter.CategoryID); categoryID != "" {
			q = q.Where("categoryId", "==", categoryID)
		}
		if prefix := strings.ToLower(strings.TrimSpace(filter.NamePrefix)); prefix != "" {
			q = q.Where("nameLower", ">=", prefix).Where("nameLower", "<", prefix+"\uf8ff").OrderBy("nameLower", firestore.Asc)
		} else {
			switch filter.Sort {
			case repositories.ProductSortPriceAsc:
				q = q.OrderBy("effectivePrice", firestore.Asc)
			case repositories.ProductSortPriceDesc:
				q = q.OrderBy("effectivePrice", firestore.Desc)
			case repositories.ProductSortRating:
				q = q.OrderBy("rating", firestore.Desc)
			default:
				q = q.OrderBy("createdAt", firestore.Desc)
			}
		}
		return q.Offset(offset).Limit(limit + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Product]{}, err
	}

	items := make([]domain.Product, 0, min(len(docs), limit))
	for i, doc := range docs {
		if i == limit {
			break
		}
		items = append(items, doc.Data.toDomain(doc.ID))
	}
	next, err := nextPageToken(offset, limit, len(docs))
	if err != nil {
		return domain.CursorPage[domain.Product]{}, err
	}
	return domain.CursorPage[domain.Product]{Items: items, NextPageToken: next}, nil
}

// AdjustStock reads, checks and writes the stock counter inside one transaction so
// concurrent decrements can never drive it below zero.
func (r *ProductRepository) AdjustStock(ctx context.Context, productID string, delta int) (int, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return 0, errors.New("product repository: id is required")
	}

	var remaining int
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.Ref(ctx, productID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.ProductNotFound(productID, err)
			}
			return err
		}
		var doc productDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode product %s: %w", productID, err)
		}
		next := doc.Stock + delta
		if next < 0 {
			return repositories.InsufficientStock(productID, doc.Stock, -delta)
		}
		remaining = next
		return tx.Update(ref, []firestore.Update{
			{Path: "stock", Value: next},
			{Path: "updatedAt", Value: r.now().UTC()},
		})
	})
	if err != nil {
		return 0, wrapInventoryError("products.adjust_stock", err)
	}
	return remaining, nil
}

func (r *ProductRepository) UpdateRating(ctx context.Context, productID string, rating float64, count int) error {
	return r.base.Update(ctx, productID, []firestore.Update{
		{Path: "rating", Value: rating},
		{Path: "numReviews", Value: count},
		{Path: "updatedAt", Value: r.now().UTC()},
	})
}

type productDocument struct {
	Name           string    `firestore:"name"`
	NameLower      string    `firestore:"nameLower"`
	Description    string    `firestore:"description"`
	CategoryID     string    `firestore:"categoryId"`
	Images         []string  `firestore:"images"`
	OriginalPrice  int64     `firestore:"originalPrice"`
	DiscountPrice  *int64    `firestore:"discountPrice"`
	EffectivePrice int64     `firestore:"effectivePrice"`
	ShippingFee    int64     `firestore:"shippingFee"`
	Stock          int       `firestore:"stock"`
	Rating         float64   `firestore:"rating"`
	NumReviews     int       `firestore:"numReviews"`
	CreatedAt      time.Time `firestore:"createdAt"`
	UpdatedAt      time.Time `firestore:"updatedAt"`
}

func newProductDocument(p domain.Product) productDocument {
	images := append([]string(nil), p.Images...)
	if images == nil {
		images = []string{}
	}
	var discount *int64
	if p.DiscountPrice != nil {
		value := *p.DiscountPrice
		discount = &value
	}
	return productDocument{
		Name:           strings.TrimSpace(p.Name),
		NameLower:      strings.ToLower(strings.TrimSpace(p.Name)),
		Description:    p.Description,
		CategoryID:     strings.TrimSpace(p.CategoryID),
		Images:         images,
		OriginalPrice:  p.OriginalPrice,
		DiscountPrice:  discount,
		EffectivePrice: p.UnitPrice(),
		ShippingFee:    p.ShippingFee,
		Stock:          p.Stock,
		Rating:         p.Rating,
		NumReviews:     p.NumReviews,
		CreatedAt:      p.CreatedAt.UTC(),
		UpdatedAt:      p.UpdatedAt.UTC(),
	}
}

func (d productDocument) toDomain(id string) domain.Product {
	var discount *int64
	if d.DiscountPrice != nil {
		value := *d.DiscountPrice
		discount = &value
	}
	return domain.Product{
		ID:            id,
		Name:          d.Name,
		Description:   d.Description,
		CategoryID:    d.CategoryID,
		Images:        append([]string(nil), d.Images...),
		OriginalPrice: d.OriginalPrice,
		DiscountPrice: discount,
		ShippingFee:   d.ShippingFee,
		Stock:         d.Stock,
		Rating:        d.Rating,
		NumReviews:    d.NumReviews,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}
