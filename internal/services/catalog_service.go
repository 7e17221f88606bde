package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/Rushan-dev/jeyani-gift-shop/internal/domain"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/platform/textutil"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/repositories"
)

const (
	maxProductNameLength        = 200
	maxProductDescriptionLength = 5000
	maxProductImages            = 10
)

var (
	// ErrCatalogInvalidInput indicates the caller supplied invalid catalog data.
	ErrCatalogInvalidInput = errors.New("catalog: invalid input")
	// ErrCategoryNotFound indicates the category does not exist.
	ErrCategoryNotFound = errors.New("catalog: category not found")
	// ErrCatalogConflict indicates a uniqueness rule was violated.
	ErrCatalogConflict = errors.New("catalog: conflict")
	// ErrCatalogUnavailable indicates a required collaborator is not configured.
	ErrCatalogUnavailable = errors.New("catalog: unavailable")
)

// CatalogServiceDeps wires the repositories used by the catalog service.
type CatalogServiceDeps struct {
	Products    repositories.ProductRepository
	Categories  repositories.CategoryRepository
	Uploads     ObjectUploader
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type catalogService struct {
	products   repositories.ProductRepository
	categories repositories.CategoryRepository
	uploads    ObjectUploader
	now        func() time.Time
	newID      func() string
	logger     func(ctx context.Context, event string, fields map[string]any)
}

// NewCatalogService constructs a CatalogService validating required dependencies.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, errors.New("catalog service: product repository is required")
	}
	if deps.Categories == nil {
		return nil, errors.New("catalog service: category repository is required")
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
	return &catalogService{
		products:   deps.Products,
		categories: deps.Categories,
		uploads:    deps.Uploads,
		now:        func() time.Time { return clock().UTC() },
		newID:      idGen,
		logger:     logger,
	}, nil
}

func (s *catalogService) ListProducts(ctx context.Context, filter ProductListFilter) (domain.CursorPage[Product], error) {
	sort, err := parseProductSort(filter.Sort)
	if err != nil {
		return domain.CursorPage[Product]{}, err
	}
	repoFilter := repositories.ProductListFilter{
		CategoryID: strings.TrimSpace(filter.CategoryID),
		NamePrefix: strings.TrimSpace(filter.Search),
		Sort:       sort,
		Pagination: filter.Pagination,
	}
	if slug := strings.TrimSpace(filter.CategorySlug); slug != "" && repoFilter.CategoryID == "" {
		category, err := s.categories.FindBySlug(ctx, slug)
		if err != nil {
			if repositories.IsNotFound(err) {
				return domain.CursorPage[Product]{Items: []Product{}}, nil
			}
			return domain.CursorPage[Product]{}, err
		}
		repoFilter.CategoryID = category.ID
	}
	return s.products.List(ctx, repoFilter)
}

func (s *catalogService) GetProduct(ctx context.Context, productID string) (Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Product{}, ErrCatalogInvalidInput
	}
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, mapInventoryError(err)
	}
	return product, nil
}

func (s *catalogService) CreateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error) {
	product := Product{ID: s.newID(), CreatedAt: s.now()}
	if err := s.applyProduct(ctx, &product, cmd); err != nil {
		return Product{}, err
	}
	if cmd.Stock != nil {
		if *cmd.Stock < 0 {
			return Product{}, fmt.Errorf("%w: stock cannot be negative", ErrCatalogInvalidInput)
		}
		product.Stock = *cmd.Stock
	}
	if err := s.products.Insert(ctx, product); err != nil {
		if repositories.IsConflict(err) {
			return Product{}, fmt.Errorf("%w: product %s already exists", ErrCatalogConflict, product.ID)
		}
		return Product{}, err
	}
	s.logger(ctx, "catalog.product_created", map[string]any{"productId": product.ID})
	return product, nil
}

// UpdateProduct rewrites catalog fields only; stock moves through the inventory endpoints.
func (s *catalogService) UpdateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error) {
	if cmd.Stock != nil {
		return Product{}, fmt.Errorf("%w: stock is adjusted through the stock endpoint", ErrCatalogInvalidInput)
	}
	product, err := s.GetProduct(ctx, cmd.ProductID)
	if err != nil {
		return Product{}, err
	}
	if err := s.applyProduct(ctx, &product, cmd); err != nil {
		return Product{}, err
	}
	if err := s.products.Update(ctx, product); err != nil {
		return Product{}, mapInventoryError(err)
	}
	return product, nil
}

func (s *catalogService) DeleteProduct(ctx context.Context, productID string) error {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return ErrCatalogInvalidInput
	}
	if err := s.products.Delete(ctx, productID); err != nil {
		return mapInventoryError(err)
	}
	s.logger(ctx, "catalog.product_deleted", map[string]any{"productId": productID})
	return nil
}

func (s *catalogService) AddProductImage(ctx context.Context, cmd ProductImageCommand) (Product, error) {
	if s.uploads == nil {
		return Product{}, ErrCatalogUnavailable
	}
	if cmd.Body == nil || cmd.Size == 0 {
		return Product{}, fmt.Errorf("%w: image file is required", ErrCatalogInvalidInput)
	}
	product, err := s.GetProduct(ctx, cmd.ProductID)
	if err != nil {
		return Product{}, err
	}
	if len(product.Images) >= maxProductImages {
		return Product{}, fmt.Errorf("%w: a product can have at most %d images", ErrCatalogInvalidInput, maxProductImages)
	}
	url, err := s.uploads.Upload(ctx, UploadObject{
		Kind:        UploadKindProductImage,
		OwnerID:     product.ID,
		FileName:    cmd.FileName,
		ContentType: cmd.ContentType,
		Size:        cmd.Size,
		Body:        cmd.Body,
	})
	if err != nil {
		return Product{}, fmt.Errorf("catalog service: upload image: %w", err)
	}
	product.Images = append(product.Images, url)
	product.UpdatedAt = s.now()
	if err := s.products.Update(ctx, product); err != nil {
		return Product{}, mapInventoryError(err)
	}
	return product, nil
}

func (s *catalogService) applyProduct(ctx context.Context, product *Product, cmd UpsertProductCommand) error {
	name := textutil.PlainText(cmd.Name)
	if name == "" || len(name) > maxProductNameLength {
		return fmt.Errorf("%w: name is required and must be at most %d characters", ErrCatalogInvalidInput, maxProductNameLength)
	}
	description := textutil.RichText(cmd.Description)
	if len(description) > maxProductDescriptionLength {
		return fmt.Errorf("%w: description is too long", ErrCatalogInvalidInput)
	}
	if cmd.OriginalPrice <= 0 {
		return fmt.Errorf("%w: price must be positive", ErrCatalogInvalidInput)
	}
	var discount *int64
	if cmd.DiscountPrice != nil && *cmd.DiscountPrice > 0 {
		if *cmd.DiscountPrice > cmd.OriginalPrice {
			return fmt.Errorf("%w: discount price cannot exceed the original price", ErrCatalogInvalidInput)
		}
		value := *cmd.DiscountPrice
		discount = &value
	}
	if cmd.ShippingFee < 0 {
		return fmt.Errorf("%w: shipping fee cannot be negative", ErrCatalogInvalidInput)
	}
	images := make([]string, 0, len(cmd.Images))
	for _, image := range cmd.Images {
		if image = strings.TrimSpace(image); image != "" {
			images = append(images, image)
		}
	}
	if len(images) > maxProductImages {
		return fmt.Errorf("%w: a product can have at most %d images", ErrCatalogInvalidInput, maxProductImages)
	}
	categoryID := strings.TrimSpace(cmd.CategoryID)
	if categoryID != "" {
		if _, err := s.categories.FindByID(ctx, categoryID); err != nil {
			if repositories.IsNotFound(err) {
				return fmt.Errorf("%w: %s", ErrCategoryNotFound, categoryID)
			}
			return err
		}
	}

	product.Name = name
	product.Description = description
	product.CategoryID = categoryID
	product.Images = images
	product.OriginalPrice = cmd.OriginalPrice
	product.DiscountPrice = discount
	product.ShippingFee = cmd.ShippingFee
	product.UpdatedAt = s.now()
	return nil
}

func (s *catalogService) ListCategories(ctx context.Context) ([]Category, error) {
	categories, err := s.categories.List(ctx)
	if err != nil {
		return nil, err
	}
	if categories == nil {
		categories = []Category{}
	}
	return categories, nil
}

func (s *catalogService) GetCategoryBySlug(ctx context.Context, slug string) (Category, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if slug == "" {
		return Category{}, ErrCatalogInvalidInput
	}
	category, err := s.categories.FindBySlug(ctx, slug)
	if err != nil {
		if repositories.IsNotFound(err) {
			return Category{}, fmt.Errorf("%w: %s", ErrCategoryNotFound, slug)
		}
		return Category{}, err
	}
	return category, nil
}

func (s *catalogService) CreateCategory(ctx context.Context, cmd UpsertCategoryCommand) (Category, error) {
	now := s.now()
	category := Category{ID: s.newID(), CreatedAt: now}
	if err := s.applyCategory(ctx, &category, cmd); err != nil {
		return Category{}, err
	}
	if err := s.categories.Insert(ctx, category); err != nil {
		if repositories.IsConflict(err) {
			return Category{}, fmt.Errorf("%w: category %s already exists", ErrCatalogConflict, category.ID)
		}
		return Category{}, err
	}
	s.logger(ctx, "catalog.category_created", map[string]any{"categoryId": category.ID, "slug": category.Slug})
	return category, nil
}

func (s *catalogService) UpdateCategory(ctx context.Context, cmd UpsertCategoryCommand) (Category, error) {
	categoryID := strings.TrimSpace(cmd.CategoryID)
	if categoryID == "" {
		return Category{}, ErrCatalogInvalidInput
	}
	category, err := s.categories.FindByID(ctx, categoryID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return Category{}, fmt.Errorf("%w: %s", ErrCategoryNotFound, categoryID)
		}
		return Category{}, err
	}
	if err := s.applyCategory(ctx, &category, cmd); err != nil {
		return Category{}, err
	}
	if err := s.categories.Update(ctx, category); err != nil {
		if repositories.IsNotFound(err) {
			return Category{}, fmt.Errorf("%w: %s", ErrCategoryNotFound, categoryID)
		}
		return Category{}, err
	}
	return category, nil
}

func (s *catalogService) DeleteCategory(ctx context.Context, categoryID string) error {
	categoryID = strings.TrimSpace(categoryID)
	if categoryID == "" {
		return ErrCatalogInvalidInput
	}
	if err := s.categories.Delete(ctx, categoryID); err != nil {
		if repositories.IsNotFound(err) {
			return fmt.Errorf("%w: %s", ErrCategoryNotFound, categoryID)
		}
		return err
	}
	return nil
}

// applyCategory derives the slug from the name and rejects slugs held by another category.
func (s *catalogService) applyCategory(ctx context.Context, category *Category, cmd UpsertCategoryCommand) error {
	name := textutil.PlainText(cmd.Name)
	slug := textutil.Slugify(name)
	if name == "" || slug == "" {
		return fmt.Errorf("%w: category name is required", ErrCatalogInvalidInput)
	}
	existing, err := s.categories.FindBySlug(ctx, slug)
	switch {
	case err == nil && existing.ID != category.ID:
		return fmt.Errorf("%w: category %q already exists", ErrCatalogConflict, name)
	case err != nil && !repositories.IsNotFound(err):
		return err
	}
	category.Name = name
	category.Slug = slug
	category.Description = textutil.PlainText(cmd.Description)
	category.Image = strings.TrimSpace(cmd.Image)
	category.UpdatedAt = s.now()
	return nil
}

func parseProductSort(raw string) (repositories.ProductSort, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "newest":
		return repositories.ProductSortNewest, nil
	case "price_asc":
		return repositories.ProductSortPriceAsc, nil
	case "price_desc":
		return repositories.ProductSortPriceDesc, nil
	case "rating":
		return repositories.ProductSortRating, nil
	default:
		return "", fmt.Errorf("%w: unknown sort %q", ErrCatalogInvalidInput, raw)
	}
}
