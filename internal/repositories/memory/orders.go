package memory

import (
	"context"
	"slices"
	"sort"
	"time"

	domain "github.com/Rushan-dev/jeyani-gift-shop/internal/domain"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/platform/pagination"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/repositories"
)

// CartRepository is the in-memory cart store.
type CartRepository struct{ store *Store }

var _ repositories.CartRepository = (*CartRepository)(nil)

func (r *CartRepository) Get(_ context.Context, userID string) (domain.Cart, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cart, ok := r.store.carts[userID]
	if !ok {
		return domain.Cart{UserID: userID, Items: []domain.CartItem{}}, nil
	}
	return cloneCart(cart), nil
}

func (r *CartRepository) Mutate(_ context.Context, userID string, fn func(cart *domain.Cart) error) (domain.Cart, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cart, ok := r.store.carts[userID]
	if !ok {
		cart = domain.Cart{UserID: userID, Items: []domain.CartItem{}}
	}
	working := cloneCart(cart)
	if err := fn(&working); err != nil {
		return domain.Cart{}, err
	}
	working.UserID = userID
	working.UpdatedAt = r.store.now().UTC()
	r.store.carts[userID] = cloneCart(working)
	return working, nil
}

// OrderRepository is the in-memory order store.
type OrderRepository struct{ store *Store }

var _ repositories.OrderRepository = (*OrderRepository)(nil)

func (r *OrderRepository) Insert(_ context.Context, order domain.Order) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.orders[order.ID]; ok {
		return conflict("orders.insert", "order", order.ID)
	}
	r.store.orders[order.ID] = cloneOrder(order)
	return nil
}

func (r *OrderRepository) Delete(_ context.Context, orderID string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	delete(r.store.orders, orderID)
	return nil
}

func (r *OrderRepository) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	order, ok := r.store.orders[orderID]
	if !ok {
		return domain.Order{}, notFound("orders.get", "order", orderID)
	}
	return cloneOrder(order), nil
}

func (r *OrderRepository) ListByUser(_ context.Context, userID string) ([]domain.Order, error) {
	return r.collect(func(o domain.Order) bool { return o.UserID == userID }), nil
}

func (r *OrderRepository) List(_ context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	orders := r.collect(func(o domain.Order) bool {
		switch {
		case filter.UserID != "" && o.UserID != filter.UserID:
			return false
		case filter.OrderStatus != "" && o.OrderStatus != filter.OrderStatus:
			return false
		case filter.PaymentStatus != "" && o.PaymentStatus != filter.PaymentStatus:
			return false
		case filter.PaymentMethod != "" && o.PaymentMethod != filter.PaymentMethod:
			return false
		}
		return true
	})
	start, end, next, err := pagination.Window(len(orders), filter.Pagination.PageSize, filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	return domain.CursorPage[domain.Order]{Items: orders[start:end], NextPageToken: next}, nil
}

func (r *OrderRepository) ListAwaitingPayment(_ context.Context, cutoff time.Time, limit int) ([]domain.Order, error) {
	orders := r.collect(func(o domain.Order) bool {
		return o.PaymentMethod == domain.PaymentMethodCard &&
			o.PaymentStatus == domain.PaymentStatusPending &&
			o.OrderStatus == domain.OrderStatusPending &&
			!o.Finalized &&
			o.CreatedAt.Before(cutoff)
	})
	slices.Reverse(orders)
	if limit > 0 && len(orders) > limit {
		orders = orders[:limit]
	}
	return orders, nil
}

func (r *OrderRepository) Mutate(_ context.Context, orderID string, fn func(order *domain.Order) error) (domain.Order, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	order, ok := r.store.orders[orderID]
	if !ok {
		return domain.Order{}, notFound("orders.mutate", "order", orderID)
	}
	working := cloneOrder(order)
	if err := fn(&working); err != nil {
		return domain.Order{}, err
	}
	working.ID = orderID
	working.UpdatedAt = r.store.now().UTC()
	r.store.orders[orderID] = cloneOrder(working)
	return working, nil
}

// Finalize mirrors the Firestore transaction: all checks run before any write.
func (r *OrderRepository) Finalize(_ context.Context, req repositories.FinalizeRequest) (repositories.FinalizeResult, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	order, ok := r.store.orders[req.OrderID]
	if !ok {
		return repositories.FinalizeResult{}, notFound("orders.finalize", "order", req.OrderID)
	}
	if order.Finalized {
		return repositories.FinalizeResult{Order: cloneOrder(order)}, nil
	}

	demand := make(map[string]int, len(order.Items))
	for _, item := range order.Items {
		demand[item.ProductID] += item.Quantity
	}
	productIDs := make([]string, 0, len(demand))
	for productID := range demand {
		productIDs = append(productIDs, productID)
	}
	sort.Strings(productIDs)

	remaining := make(map[string]int, len(demand))
	for _, productID := range productIDs {
		product, ok := r.store.products[productID]
		if !ok {
			err := repositories.ProductNotFound(productID, nil)
			err.Op = "orders.finalize"
			return repositories.FinalizeResult{}, err
		}
		if product.Stock < demand[productID] {
			err := repositories.InsufficientStock(productID, product.Stock, demand[productID])
			err.Op = "orders.finalize"
			return repositories.FinalizeResult{}, err
		}
		remaining[productID] = product.Stock - demand[productID]
	}

	working := cloneOrder(order)
	if req.Apply != nil {
		if err := req.Apply(&working); err != nil {
			return repositories.FinalizeResult{}, err
		}
	}
	now := req.Now.UTC()
	if req.Now.IsZero() {
		now = r.store.now().UTC()
	}
	working.Finalized = true
	working.FinalizedAt = &now
	working.UpdatedAt = now

	for productID, stock := range remaining {
		product := r.store.products[productID]
		product.Stock = stock
		product.UpdatedAt = now
		r.store.products[productID] = product
	}
	r.store.carts[working.UserID] = domain.Cart{UserID: working.UserID, Items: []domain.CartItem{}, UpdatedAt: now}
	r.store.orders[working.ID] = cloneOrder(working)

	return repositories.FinalizeResult{Order: working, Applied: true, Stock: remaining}, nil
}

// collect returns matching orders sorted newest first.
func (r *OrderRepository) collect(match func(domain.Order) bool) []domain.Order {
	r.store.mu.Lock()
	orders := make([]domain.Order, 0)
	for _, order := range r.store.orders {
		if match(order) {
			orders = append(orders, cloneOrder(order))
		}
	}
	r.store.mu.Unlock()
	slices.SortFunc(orders, func(a, b domain.Order) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return orders
}

// UserRepository is the in-memory profile store.
type UserRepository struct{ store *Store }

var _ repositories.UserRepository = (*UserRepository)(nil)

func (r *UserRepository) Create(_ context.Context, user domain.User) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.users[user.ID]; ok {
		return conflict("users.create", "user", user.ID)
	}
	if user.Role == "" {
		user.Role = domain.RoleUser
	}
	r.store.users[user.ID] = cloneUser(user)
	r.store.carts[user.ID] = domain.Cart{UserID: user.ID, Items: []domain.CartItem{}, UpdatedAt: user.CreatedAt}
	return nil
}

func (r *UserRepository) FindByID(_ context.Context, userID string) (domain.User, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	user, ok := r.store.users[userID]
	if !ok {
		return domain.User{}, notFound("users.get", "user", userID)
	}
	return cloneUser(user), nil
}

func (r *UserRepository) Mutate(_ context.Context, userID string, fn func(user *domain.User) error) (domain.User, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	user, ok := r.store.users[userID]
	if !ok {
		return domain.User{}, notFound("users.mutate", "user", userID)
	}
	working := cloneUser(user)
	if err := fn(&working); err != nil {
		return domain.User{}, err
	}
	working.ID = userID
	working.UpdatedAt = r.store.now().UTC()
	r.store.users[userID] = cloneUser(working)
	return working, nil
}

// SettingsRepository is the in-memory settings store.
type SettingsRepository struct{ store *Store }

var _ repositories.SettingsRepository = (*SettingsRepository)(nil)

func (r *SettingsRepository) ShippingFee(_ context.Context) (domain.ShippingFeeSetting, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return r.store.shipping, nil
}

func (r *SettingsRepository) SaveShippingFee(_ context.Context, setting domain.ShippingFeeSetting) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.shipping = setting
	return nil
}
