// Package memory provides process-local repository implementations backed by a single mutex.
// They serve local runs without a Firestore emulator and service-level tests.
package memory

import (
	"fmt"
	"sync"
	"time"

	domain "github.com/Rushan-dev/jeyani-gift-shop/internal/domain"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/repositories"
)

// Store holds every collection behind one lock so multi-collection operations stay atomic.
type Store struct {
	mu         sync.Mutex
	now        func() time.Time
	products   map[string]domain.Product
	categories map[string]domain.Category
	reviews    map[string]domain.Review
	carts      map[string]domain.Cart
	orders     map[string]domain.Order
	users      map[string]domain.User
	shipping   domain.ShippingFeeSetting
}

// Option customises the store.
type Option func(*Store)

// WithClock injects the clock used for UpdatedAt stamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		if clock != nil {
			s.now = clock
		}
	}
}

// NewStore constructs an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		now:        time.Now,
		products:   make(map[string]domain.Product),
		categories: make(map[string]domain.Category),
		reviews:    make(map[string]domain.Review),
		carts:      make(map[string]domain.Cart),
		orders:     make(map[string]domain.Order),
		users:      make(map[string]domain.User),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Store) Products() *ProductRepository    { return &ProductRepository{store: s} }
func (s *Store) Categories() *CategoryRepository { return &CategoryRepository{store: s} }
func (s *Store) Reviews() *ReviewRepository      { return &ReviewRepository{store: s} }
func (s *Store) Carts() *CartRepository          { return &CartRepository{store: s} }
func (s *Store) Orders() *OrderRepository        { return &OrderRepository{store: s} }
func (s *Store) Users() *UserRepository          { return &UserRepository{store: s} }
func (s *Store) Settings() *SettingsRepository   { return &SettingsRepository{store: s} }

// Error implements repositories.RepositoryError for the in-memory store.
type Error struct {
	op       string
	msg      string
	notFound bool
	conflict bool
}

func (e *Error) Error() string       { return fmt.Sprintf("%s: %s", e.op, e.msg) }
func (e *Error) IsNotFound() bool    { return e.notFound }
func (e *Error) IsConflict() bool    { return e.conflict }
func (e *Error) IsUnavailable() bool { return false }

var _ repositories.RepositoryError = (*Error)(nil)

func notFound(op, kind, id string) error {
	return &Error{op: op, msg: fmt.Sprintf("%s %s not found", kind, id), notFound: true}
}

func conflict(op, kind, id string) error {
	return &Error{op: op, msg: fmt.Sprintf("%s %s already exists", kind, id), conflict: true}
}

func cloneProduct(p domain.Product) domain.Product {
	p.Images = append([]string(nil), p.Images...)
	if p.DiscountPrice != nil {
		value := *p.DiscountPrice
		p.DiscountPrice = &value
	}
	return p
}

func cloneCart(c domain.Cart) domain.Cart {
	c.Items = append([]domain.CartItem{}, c.Items...)
	return c
}

func cloneOrder(o domain.Order) domain.Order {
	o.Items = append([]domain.OrderItem(nil), o.Items...)
	o.TrackingHistory = append([]domain.TrackingEvent(nil), o.TrackingHistory...)
	if o.FinalizedAt != nil {
		ts := *o.FinalizedAt
		o.FinalizedAt = &ts
	}
	return o
}

func cloneUser(u domain.User) domain.User {
	u.Wishlist = append([]string(nil), u.Wishlist...)
	return u
}
