package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"

	domain "github.com/Rushan-dev/jeyani-gift-shop/internal/domain"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/platform/pagination"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/repositories"
)

// ProductRepository is the in-memory product store.
type ProductRepository struct{ store *Store }

var _ repositories.ProductRepository = (*ProductRepository)(nil)

func (r *ProductRepository) Insert(_ context.Context, product domain.Product) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.products[product.ID]; ok {
		return conflict("products.insert", "product", product.ID)
	}
	r.store.products[product.ID] = cloneProduct(product)
	return nil
}

func (r *ProductRepository) Update(_ context.Context, product domain.Product) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	current, ok := r.store.products[product.ID]
	if !ok {
		return notFound("products.update", "product", product.ID)
	}
	product.Stock = current.Stock
	product.Rating = current.Rating
	product.NumReviews = current.NumReviews
	product.CreatedAt = current.CreatedAt
	r.store.products[product.ID] = cloneProduct(product)
	return nil
}

func (r *ProductRepository) Delete(_ context.Context, productID string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.products[productID]; !ok {
		return notFound("products.delete", "product", productID)
	}
	delete(r.store.products, productID)
	return nil
}

func (r *ProductRepository) FindByID(_ context.Context, productID string) (domain.Product, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	product, ok := r.store.products[productID]
	if !ok {
		return domain.Product{}, notFound("products.get", "product", productID)
	}
	return cloneProduct(product), nil
}

func (r *ProductRepository) List(_ context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	r.store.mu.Lock()
	matched := make([]domain.Product, 0, len(r.store.products))
	prefix := strings.ToLower(strings.TrimSpace(filter.NamePrefix))
	for _, product := range r.store.products {
		if filter.CategoryID != "" && product.CategoryID != filter.CategoryID {
			continue
		}
		if prefix != "" && !strings.HasPrefix(strings.ToLower(product.Name), prefix) {
			continue
		}
		matched = append(matched, cloneProduct(product))
	}
	r.store.mu.Unlock()

	slices.SortFunc(matched, func(a, b domain.Product) int {
		if prefix != "" {
			return cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
		}
		switch filter.Sort {
		case repositories.ProductSortPriceAsc:
			return cmp.Compare(a.UnitPrice(), b.UnitPrice())
		case repositories.ProductSortPriceDesc:
			return cmp.Compare(b.UnitPrice(), a.UnitPrice())
		case repositories.ProductSortRating:
			return cmp.Compare(b.Rating, a.Rating)
		default:
			return b.CreatedAt.Compare(a.CreatedAt)
		}
	})

	start, end, next, err := pagination.Window(len(matched), filter.Pagination.PageSize, filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Product]{}, err
	}
	return domain.CursorPage[domain.Product]{Items: matched[start:end], NextPageToken: next}, nil
}

func (r *ProductRepository) AdjustStock(_ context.Context, productID string, delta int) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	product, ok := r.store.products[productID]
	if !ok {
		err := repositories.ProductNotFound(productID, nil)
		err.Op = "products.adjust_stock"
		return 0, err
	}
	next := product.Stock + delta
	if next < 0 {
		err := repositories.InsufficientStock(productID, product.Stock, -delta)
		err.Op = "products.adjust_stock"
		return 0, err
	}
	product.Stock = next
	product.UpdatedAt = r.store.now().UTC()
	r.store.products[productID] = product
	return next, nil
}

func (r *ProductRepository) UpdateRating(_ context.Context, productID string, rating float64, count int) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	product, ok := r.store.products[productID]
	if !ok {
		return notFound("products.update_rating", "product", productID)
	}
	product.Rating = rating
	product.NumReviews = count
	r.store.products[productID] = product
	return nil
}

// CategoryRepository is the in-memory category store.
type CategoryRepository struct{ store *Store }

var _ repositories.CategoryRepository = (*CategoryRepository)(nil)

func (r *CategoryRepository) Insert(_ context.Context, category domain.Category) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.categories[category.ID]; ok {
		return conflict("categories.insert", "category", category.ID)
	}
	r.store.categories[category.ID] = category
	return nil
}

func (r *CategoryRepository) Update(_ context.Context, category domain.Category) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	current, ok := r.store.categories[category.ID]
	if !ok {
		return notFound("categories.update", "category", category.ID)
	}
	category.CreatedAt = current.CreatedAt
	r.store.categories[category.ID] = category
	return nil
}

func (r *CategoryRepository) Delete(_ context.Context, categoryID string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.categories[categoryID]; !ok {
		return notFound("categories.delete", "category", categoryID)
	}
	delete(r.store.categories, categoryID)
	return nil
}

func (r *CategoryRepository) FindByID(_ context.Context, categoryID string) (domain.Category, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	category, ok := r.store.categories[categoryID]
	if !ok {
		return domain.Category{}, notFound("categories.get", "category", categoryID)
	}
	return category, nil
}

func (r *CategoryRepository) FindBySlug(_ context.Context, slug string) (domain.Category, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, category := range r.store.categories {
		if category.Slug == slug {
			return category, nil
		}
	}
	return domain.Category{}, notFound("categories.find_by_slug", "category", slug)
}

func (r *CategoryRepository) List(_ context.Context) ([]domain.Category, error) {
	r.store.mu.Lock()
	categories := make([]domain.Category, 0, len(r.store.categories))
	for _, category := range r.store.categories {
		categories = append(categories, category)
	}
	r.store.mu.Unlock()
	slices.SortFunc(categories, func(a, b domain.Category) int { return cmp.Compare(a.Name, b.Name) })
	return categories, nil
}

// ReviewRepository is the in-memory review store.
type ReviewRepository struct{ store *Store }

var _ repositories.ReviewRepository = (*ReviewRepository)(nil)

func (r *ReviewRepository) Insert(_ context.Context, review domain.Review) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.reviews[review.ID]; ok {
		return conflict("reviews.insert", "review", review.ID)
	}
	r.store.reviews[review.ID] = review
	return nil
}

func (r *ReviewRepository) Update(_ context.Context, review domain.Review) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	current, ok := r.store.reviews[review.ID]
	if !ok {
		return notFound("reviews.update", "review", review.ID)
	}
	current.Rating = review.Rating
	current.Comment = review.Comment
	current.UpdatedAt = review.UpdatedAt
	r.store.reviews[review.ID] = current
	return nil
}

func (r *ReviewRepository) Delete(_ context.Context, reviewID string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.reviews[reviewID]; !ok {
		return notFound("reviews.delete", "review", reviewID)
	}
	delete(r.store.reviews, reviewID)
	return nil
}

func (r *ReviewRepository) FindByID(_ context.Context, reviewID string) (domain.Review, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	review, ok := r.store.reviews[reviewID]
	if !ok {
		return domain.Review{}, notFound("reviews.get", "review", reviewID)
	}
	return review, nil
}

func (r *ReviewRepository) FindByProductAndUser(_ context.Context, productID, userID string) (domain.Review, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, review := range r.store.reviews {
		if review.ProductID == productID && review.UserID == userID {
			return review, nil
		}
	}
	return domain.Review{}, notFound("reviews.find_by_product_and_user", "review", productID+"/"+userID)
}

func (r *ReviewRepository) ListByProduct(_ context.Context, productID string) ([]domain.Review, error) {
	r.store.mu.Lock()
	reviews := make([]domain.Review, 0)
	for _, review := range r.store.reviews {
		if review.ProductID == productID {
			reviews = append(reviews, review)
		}
	}
	r.store.mu.Unlock()
	slices.SortFunc(reviews, func(a, b domain.Review) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return reviews, nil
}
