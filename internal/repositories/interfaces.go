package repositories

import (
	"context"
	"errors"
	"time"

	domain "github.com/Rushan-dev/jeyani-gift-shop/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// IsNotFound reports whether err is a repository error signalling a missing document.
func IsNotFound(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

// IsConflict reports whether err is a repository error signalling a conflicting write.
func IsConflict(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

// IsUnavailable reports whether err is a repository error signalling a transient outage.
func IsUnavailable(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsUnavailable()
}

// ProductRepository persists catalog products and owns the stock counter.
type ProductRepository interface {
	Insert(ctx context.Context, product domain.Product) error
	Update(ctx context.Context, product domain.Product) error
	Delete(ctx context.Context, productID string) error
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	List(ctx context.Context, filter ProductListFilter) (domain.CursorPage[domain.Product], error)
	// AdjustStock applies delta to the stock counter as one atomic conditional write.
	// It fails with InventoryErrorInsufficientStock when the result would be negative.
	AdjustStock(ctx context.Context, productID string, delta int) (int, error)
	UpdateRating(ctx context.Context, productID string, rating float64, count int) error
}

// CategoryRepository persists catalog categories.
type CategoryRepository interface {
	Insert(ctx context.Context, category domain.Category) error
	Update(ctx context.Context, category domain.Category) error
	Delete(ctx context.Context, categoryID string) error
	FindByID(ctx context.Context, categoryID string) (domain.Category, error)
	FindBySlug(ctx context.Context, slug string) (domain.Category, error)
	List(ctx context.Context) ([]domain.Category, error)
}

// ReviewRepository persists product reviews.
type ReviewRepository interface {
	Insert(ctx context.Context, review domain.Review) error
	Update(ctx context.Context, review domain.Review) error
	Delete(ctx context.Context, reviewID string) error
	FindByID(ctx context.Context, reviewID string) (domain.Review, error)
	FindByProductAndUser(ctx context.Context, productID, userID string) (domain.Review, error)
	ListByProduct(ctx context.Context, productID string) ([]domain.Review, error)
}

// CartRepository persists per-user carts.
type CartRepository interface {
	// Get returns the user's cart, or an empty cart when none has been stored yet.
	Get(ctx context.Context, userID string) (domain.Cart, error)
	// Mutate applies fn to the current cart and persists the result atomically.
	Mutate(ctx context.Context, userID string, fn func(cart *domain.Cart) error) (domain.Cart, error)
}

// OrderRepository persists order aggregates.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Delete(ctx context.Context, orderID string) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	// ListAwaitingPayment returns unfinalized, uncancelled card orders still pending payment created
	// before cutoff.
	ListAwaitingPayment(ctx context.Context, cutoff time.Time, limit int) ([]domain.Order, error)
	// Mutate applies fn to the stored order and persists the result atomically.
	Mutate(ctx context.Context, orderID string, fn func(order *domain.Order) error) (domain.Order, error)
	// Finalize decrements stock for every order line and clears the buyer's cart exactly once.
	Finalize(ctx context.Context, req FinalizeRequest) (FinalizeResult, error)
}

// UserRepository persists shop profiles keyed by Firebase UID.
type UserRepository interface {
	// Create stores a new profile together with its empty cart. Existing profiles yield a conflict error.
	Create(ctx context.Context, user domain.User) error
	FindByID(ctx context.Context, userID string) (domain.User, error)
	Mutate(ctx context.Context, userID string, fn func(user *domain.User) error) (domain.User, error)
}

// SettingsRepository persists storefront settings.
type SettingsRepository interface {
	ShippingFee(ctx context.Context) (domain.ShippingFeeSetting, error)
	SaveShippingFee(ctx context.Context, setting domain.ShippingFeeSetting) error
}

// ProductSort enumerates catalog orderings.
type ProductSort string

const (
	ProductSortNewest    ProductSort = "newest"
	ProductSortPriceAsc  ProductSort = "price_asc"
	ProductSortPriceDesc ProductSort = "price_desc"
	ProductSortRating    ProductSort = "rating"
)

// ProductListFilter narrows catalog listings.
type ProductListFilter struct {
	CategoryID string
	// NamePrefix performs a case-insensitive prefix match and overrides Sort.
	NamePrefix string
	Sort       ProductSort
	Pagination domain.Pagination
}

// OrderListFilter narrows admin order listings.
type OrderListFilter struct {
	UserID        string
	OrderStatus   domain.OrderStatus
	PaymentStatus domain.PaymentStatus
	PaymentMethod domain.PaymentMethod
	Pagination    domain.Pagination
}

// FinalizeRequest describes a finalize attempt.
type FinalizeRequest struct {
	OrderID string
	// Apply mutates the order inside the same transaction, e.g. to record payment.
	// It runs only when the order has not been finalized yet.
	Apply func(order *domain.Order) error
	Now   time.Time
}

// FinalizeResult reports the outcome of Finalize.
type FinalizeResult struct {
	Order domain.Order
	// Applied is false when the order had already been finalized and nothing changed.
	Applied bool
	// Stock holds the remaining stock per product after decrement.
	Stock map[string]int
}

// HealthRepository probes downstream dependencies for readiness reporting.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
