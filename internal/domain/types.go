package domain

import (
	"strings"
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// Role values stored on user profiles.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is the shop profile linked to a Firebase identity.
type User struct {
	ID          string
	FirebaseUID string
	Name        string
	Email       string
	Phone       string
	PhotoURL    string
	Role        string
	Wishlist    []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsAdmin reports whether the profile carries the admin role.
func (u User) IsAdmin() bool {
	return strings.EqualFold(strings.TrimSpace(u.Role), RoleAdmin)
}

// Category groups products for browsing.
type Category struct {
	ID          string
	Name        string
	Slug        string
	Description string
	Image       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Product is a catalog entry. Amounts are whole units of the shop currency.
type Product struct {
	ID            string
	Name          string
	Description   string
	CategoryID    string
	Images        []string
	OriginalPrice int64
	DiscountPrice *int64
	ShippingFee   int64
	Stock         int
	Rating        float64
	NumReviews    int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// UnitPrice returns the discounted price when one is set, otherwise the original price.
func (p Product) UnitPrice() int64 {
	if p.DiscountPrice != nil && *p.DiscountPrice > 0 {
		return *p.DiscountPrice
	}
	return p.OriginalPrice
}

// Review captures a single user's rating of a product.
type Review struct {
	ID        string
	ProductID string
	UserID    string
	UserName  string
	Rating    int
	Comment   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Cart is the per-user list of intended purchases.
type Cart struct {
	UserID    string
	Items     []CartItem
	UpdatedAt time.Time
}

// CartItem is a single product entry in a cart; at most one entry exists per product.
type CartItem struct {
	ID        string
	ProductID string
	Quantity  int
	AddedAt   time.Time
}

// FindItem returns the index of the item with the given id, or -1.
func (c Cart) FindItem(itemID string) int {
	for i, item := range c.Items {
		if item.ID == itemID {
			return i
		}
	}
	return -1
}

// FindProduct returns the index of the entry for productID, or -1.
func (c Cart) FindProduct(productID string) int {
	for i, item := range c.Items {
		if item.ProductID == productID {
			return i
		}
	}
	return -1
}

// PaymentMethod enumerates the accepted ways to pay for an order.
type PaymentMethod string

const (
	PaymentMethodCashOnDelivery PaymentMethod = "cash_on_delivery"
	PaymentMethodBankTransfer   PaymentMethod = "bank_transfer"
	PaymentMethodCard           PaymentMethod = "card"
)

var paymentMethodAliases = map[string]PaymentMethod{
	"cod":              PaymentMethodCashOnDelivery,
	"cash_on_delivery": PaymentMethodCashOnDelivery,
	"bank_transfer":    PaymentMethodBankTransfer,
	"stripe":           PaymentMethodCard,
	"card":             PaymentMethodCard,
}

// ParsePaymentMethod accepts both the storefront vocabulary (cod, stripe) and the canonical names.
func ParsePaymentMethod(raw string) (PaymentMethod, bool) {
	method, ok := paymentMethodAliases[strings.ToLower(strings.TrimSpace(raw))]
	return method, ok
}

// PaymentStatus tracks whether the order has been paid.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// OrderStatus tracks the fulfilment lifecycle of an order.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// ShippingAddress is the delivery destination captured at checkout.
type ShippingAddress struct {
	Name       string
	Phone      string
	Address    string
	City       string
	PostalCode string
}

// Normalize trims all fields.
func (a ShippingAddress) Normalize() ShippingAddress {
	return ShippingAddress{
		Name:       strings.TrimSpace(a.Name),
		Phone:      strings.TrimSpace(a.Phone),
		Address:    strings.TrimSpace(a.Address),
		City:       strings.TrimSpace(a.City),
		PostalCode: strings.TrimSpace(a.PostalCode),
	}
}

// MissingFields lists the names of empty address fields.
func (a ShippingAddress) MissingFields() []string {
	a = a.Normalize()
	var missing []string
	if a.Name == "" {
		missing = append(missing, "name")
	}
	if a.Phone == "" {
		missing = append(missing, "phone")
	}
	if a.Address == "" {
		missing = append(missing, "address")
	}
	if a.City == "" {
		missing = append(missing, "city")
	}
	if a.PostalCode == "" {
		missing = append(missing, "postalCode")
	}
	return missing
}

// OrderItem is a purchased line with its unit price frozen at order creation.
type OrderItem struct {
	ProductID string
	Name      string
	Image     string
	Quantity  int
	Price     int64
}

// LineTotal returns price multiplied by quantity.
func (i OrderItem) LineTotal() int64 {
	return i.Price * int64(i.Quantity)
}

// TrackingEvent is an append-only shipment history entry.
type TrackingEvent struct {
	Status      string
	Location    string
	Description string
	Timestamp   time.Time
}

// Order is the durable record of one checkout attempt.
type Order struct {
	ID               string
	UserID           string
	Items            []OrderItem
	ShippingAddress  ShippingAddress
	PaymentMethod    PaymentMethod
	PaymentStatus    PaymentStatus
	OrderStatus      OrderStatus
	Subtotal         int64
	ShippingFee      int64
	TotalAmount      int64
	PaymentSlipURL   string
	PaymentSessionID string
	TrackingNumber   string
	TrackingHistory  []TrackingEvent
	Finalized        bool
	FinalizedAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ShortID is the customer-facing reference printed on payment pages.
func (o Order) ShortID() string {
	id := strings.ToUpper(o.ID)
	if len(id) <= 8 {
		return id
	}
	return id[len(id)-8:]
}

// ShippingFeeSetting is the storefront shipping banner configured by staff.
type ShippingFeeSetting struct {
	Enabled   bool
	Amount    int64
	UpdatedAt time.Time
}

// HealthStatus summarises the outcome of a readiness probe.
type HealthStatus string

const (
	HealthStatusOK       HealthStatus = "ok"
	HealthStatusDegraded HealthStatus = "degraded"
	HealthStatusError    HealthStatus = "error"
)

// SystemHealthCheck is the result of probing one dependency.
type SystemHealthCheck struct {
	Status    HealthStatus
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency checks.
type SystemHealthReport struct {
	Status      HealthStatus
	Version     string
	Environment string
	Checks      map[string]SystemHealthCheck
	GeneratedAt time.Time
}
