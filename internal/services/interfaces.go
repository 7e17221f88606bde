package services

import (
	"context"
	"io"
	"time"

	domain "github.com/Rushan-dev/jeyani-gift-shop/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	User               = domain.User
	Product            = domain.Product
	Category           = domain.Category
	Review             = domain.Review
	Cart               = domain.Cart
	CartItem           = domain.CartItem
	Order              = domain.Order
	OrderItem          = domain.OrderItem
	OrderStatus        = domain.OrderStatus
	PaymentStatus      = domain.PaymentStatus
	PaymentMethod      = domain.PaymentMethod
	ShippingAddress    = domain.ShippingAddress
	TrackingEvent      = domain.TrackingEvent
	ShippingFeeSetting = domain.ShippingFeeSetting
	SystemHealthReport = domain.SystemHealthReport
)

// InventoryService owns per-product stock counts. Every mutation is a single conditional write.
type InventoryService interface {
	CheckAvailability(ctx context.Context, productID string, quantity int) (bool, error)
	Decrement(ctx context.Context, productID string, quantity int) (int, error)
	Restock(ctx context.Context, cmd RestockCommand) (int, error)
}

// CartService manages the per-user cart, validating quantities against live stock.
type CartService interface {
	GetCart(ctx context.Context, userID string) (CartView, error)
	AddItem(ctx context.Context, cmd AddCartItemCommand) (CartView, error)
	UpdateItem(ctx context.Context, cmd UpdateCartItemCommand) (CartView, error)
	RemoveItem(ctx context.Context, userID string, itemID string) (CartView, error)
	ClearCart(ctx context.Context, userID string) error
}

// CheckoutService turns a set of requested lines into a persisted order and, for card
// payments, a hosted payment session.
type CheckoutService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (CheckoutResult, error)
}

// PaymentReconciler finalizes card orders once the gateway confirms payment.
type PaymentReconciler interface {
	VerifyAndFinalize(ctx context.Context, cmd VerifyPaymentCommand) (PaymentVerification, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
	ReconcilePending(ctx context.Context, cmd ReconcilePendingCommand) (ReconcileSummary, error)
}

// OrderService exposes order reads and the admin status workflow.
type OrderService interface {
	GetOrder(ctx context.Context, viewer Viewer, orderID string) (Order, error)
	ListUserOrders(ctx context.Context, userID string) ([]Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)
	UploadPaymentSlip(ctx context.Context, cmd UploadPaymentSlipCommand) (Order, error)
	UpdateOrderStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error)
	UpdatePaymentStatus(ctx context.Context, cmd UpdatePaymentStatusCommand) (Order, error)
	UpdateTracking(ctx context.Context, cmd UpdateTrackingCommand) (Order, error)
}

// CatalogService manages products and categories.
type CatalogService interface {
	ListProducts(ctx context.Context, filter ProductListFilter) (domain.CursorPage[Product], error)
	GetProduct(ctx context.Context, productID string) (Product, error)
	CreateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error)
	UpdateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error)
	DeleteProduct(ctx context.Context, productID string) error
	AddProductImage(ctx context.Context, cmd ProductImageCommand) (Product, error)
	ListCategories(ctx context.Context) ([]Category, error)
	GetCategoryBySlug(ctx context.Context, slug string) (Category, error)
	CreateCategory(ctx context.Context, cmd UpsertCategoryCommand) (Category, error)
	UpdateCategory(ctx context.Context, cmd UpsertCategoryCommand) (Category, error)
	DeleteCategory(ctx context.Context, categoryID string) error
}

// ReviewService manages product reviews and keeps product ratings in sync.
type ReviewService interface {
	ListProductReviews(ctx context.Context, productID string) ([]Review, error)
	CreateReview(ctx context.Context, cmd CreateReviewCommand) (Review, error)
	UpdateReview(ctx context.Context, cmd UpdateReviewCommand) (Review, error)
	DeleteReview(ctx context.Context, cmd DeleteReviewCommand) error
}

// UserService manages shop profiles linked to Firebase identities and their wishlists.
type UserService interface {
	Register(ctx context.Context, cmd RegisterUserCommand) (User, error)
	Login(ctx context.Context, cmd RegisterUserCommand) (User, error)
	GetProfile(ctx context.Context, userID string) (User, error)
	GetWishlist(ctx context.Context, userID string) ([]Product, error)
	AddToWishlist(ctx context.Context, userID string, productID string) ([]Product, error)
	RemoveFromWishlist(ctx context.Context, userID string, productID string) ([]Product, error)
}

// SettingsService manages storefront settings.
type SettingsService interface {
	ShippingFee(ctx context.Context) (ShippingFeeSetting, error)
	UpdateShippingFee(ctx context.Context, cmd UpdateShippingFeeCommand) (ShippingFeeSetting, error)
}

// SystemService aggregates utility endpoints.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// OrderEventPublisher forwards order lifecycle notifications to downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) (string, error)
}

// ObjectUploader stores binary uploads and returns their public URL.
type ObjectUploader interface {
	Upload(ctx context.Context, object UploadObject) (string, error)
}

// Command and DTO definitions ------------------------------------------------

// Viewer identifies the caller reading a resource.
type Viewer struct {
	UserID  string
	IsAdmin bool
}

type RestockCommand struct {
	ProductID string
	Quantity  int
	ActorID   string
}

type AddCartItemCommand struct {
	UserID    string
	ProductID string
	Quantity  int
}

type UpdateCartItemCommand struct {
	UserID   string
	ItemID   string
	Quantity int
}

// CartView is a cart hydrated with live product details for display.
type CartView struct {
	UserID    string
	Items     []CartLine
	Subtotal  int64
	UpdatedAt time.Time
}

// CartLine pairs a cart entry with the product it references. Product is nil when the
// product has since been removed from the catalog.
type CartLine struct {
	Item    CartItem
	Product *Product
}

type OrderLineInput struct {
	ProductID string
	Quantity  int
}

type CreateOrderCommand struct {
	UserID          string
	UserEmail       string
	Items           []OrderLineInput
	ShippingAddress ShippingAddress
	PaymentMethod   string
}

type CheckoutResult struct {
	Order       Order
	CheckoutURL string
	SessionID   string
}

type VerifyPaymentCommand struct {
	SessionID string
	Viewer    Viewer
}

// PaymentVerification carries the gateway's raw payment status alongside the order.
type PaymentVerification struct {
	Order         Order
	PaymentStatus string
	Finalized     bool
}

type ReconcilePendingCommand struct {
	OlderThan time.Duration
	Limit     int
}

type ReconcileSummary struct {
	Checked   int
	Finalized int
	Failed    int
	Errors    int
}

type OrderListFilter struct {
	UserID        string
	OrderStatus   string
	PaymentStatus string
	PaymentMethod string
	Pagination    Pagination
}

type UploadPaymentSlipCommand struct {
	UserID      string
	OrderID     string
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

type UpdateOrderStatusCommand struct {
	OrderID string
	Status  string
	ActorID string
}

type UpdatePaymentStatusCommand struct {
	OrderID string
	Status  string
	ActorID string
}

type TrackingEventInput struct {
	Status      string
	Location    string
	Description string
	Timestamp   *time.Time
}

type UpdateTrackingCommand struct {
	OrderID        string
	TrackingNumber *string
	Event          *TrackingEventInput
	ActorID        string
}

type ProductListFilter struct {
	CategoryID   string
	CategorySlug string
	Search       string
	Sort         string
	Pagination   Pagination
}

type UpsertProductCommand struct {
	ProductID     string
	Name          string
	Description   string
	CategoryID    string
	Images        []string
	OriginalPrice int64
	DiscountPrice *int64
	ShippingFee   int64
	Stock         *int
}

type ProductImageCommand struct {
	ProductID   string
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

type UpsertCategoryCommand struct {
	CategoryID  string
	Name        string
	Description string
	Image       string
}

type CreateReviewCommand struct {
	ProductID string
	UserID    string
	UserName  string
	Rating    int
	Comment   string
}

type UpdateReviewCommand struct {
	ReviewID string
	UserID   string
	Rating   *int
	Comment  *string
}

type DeleteReviewCommand struct {
	ReviewID string
	Viewer   Viewer
}

type RegisterUserCommand struct {
	UID      string
	Email    string
	Name     string
	Phone    string
	PhotoURL string
}

type UpdateShippingFeeCommand struct {
	Enabled bool
	Amount  int64
}

// Order event types published on the orders topic.
const (
	OrderEventCreated              = "order.created"
	OrderEventFinalized            = "order.finalized"
	OrderEventStatusChanged        = "order.status_changed"
	OrderEventPaymentStatusChanged = "order.payment_status_changed"
)

// OrderEvent is the payload published for order lifecycle changes.
type OrderEvent struct {
	Type          string    `json:"type"`
	OrderID       string    `json:"orderId"`
	UserID        string    `json:"userId"`
	PaymentMethod string    `json:"paymentMethod"`
	PaymentStatus string    `json:"paymentStatus"`
	OrderStatus   string    `json:"orderStatus"`
	TotalAmount   int64     `json:"totalAmount"`
	OccurredAt    time.Time `json:"occurredAt"`
}

// UploadObject kinds map to storage prefixes.
const (
	UploadKindPaymentSlip  = "payment_slip"
	UploadKindProductImage = "product_image"
)

type UploadObject struct {
	Kind        string
	OwnerID     string
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}
