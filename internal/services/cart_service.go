package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	domain "github.com/Rushan-dev/jeyani-gift-shop/internal/domain"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/repositories"
)

const cartHydrationConcurrency = 8

var (
	// ErrCartInvalidInput indicates the caller supplied invalid input.
	ErrCartInvalidInput = errors.New("cart service: invalid input")
	// ErrCartItemNotFound indicates the cart has no entry with the requested id.
	ErrCartItemNotFound = errors.New("cart service: item not found")
)

// CartServiceDeps wires the repositories used for cart operations.
type CartServiceDeps struct {
	Carts       repositories.CartRepository
	Products    repositories.ProductRepository
	Clock       func() time.Time
	Logger      func(context.Context, string, map[string]any)
	IDGenerator func() string
}

type cartService struct {
	carts    repositories.CartRepository
	products repositories.ProductRepository
	newID    func() string
	now      func() time.Time
	logger   func(context.Context, string, map[string]any)
}

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil {
		return nil, errors.New("cart service: cart repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("cart service: product repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	return &cartService{
		carts:    deps.Carts,
		products: deps.Products,
		newID:    idGen,
		now:      func() time.Time { return clock().UTC() },
		logger:   logger,
	}, nil
}

func (s *cartService) GetCart(ctx context.Context, userID string) (CartView, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return CartView{}, ErrCartInvalidInput
	}
	cart, err := s.carts.Get(ctx, userID)
	if err != nil {
		return CartView{}, err
	}
	return s.hydrate(ctx, cart)
}

// AddItem merges quantity into the existing entry for the product, or appends a new entry.
// The cumulative quantity is checked against live stock.
func (s *cartService) AddItem(ctx context.Context, cmd AddCartItemCommand) (CartView, error) {
	userID := strings.TrimSpace(cmd.UserID)
	productID := strings.TrimSpace(cmd.ProductID)
	quantity := cmd.Quantity
	if quantity == 0 {
		quantity = 1
	}
	if userID == "" || productID == "" || quantity < 1 {
		return CartView{}, ErrCartInvalidInput
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return CartView{}, mapInventoryError(err)
	}

	cart, err := s.carts.Mutate(ctx, userID, func(cart *domain.Cart) error {
		if idx := cart.FindProduct(productID); idx >= 0 {
			total := cart.Items[idx].Quantity + quantity
			if total > product.Stock {
				return stockShortfall(productID, product.Stock, total)
			}
			cart.Items[idx].Quantity = total
			return nil
		}
		if quantity > product.Stock {
			return stockShortfall(productID, product.Stock, quantity)
		}
		cart.Items = append(cart.Items, domain.CartItem{
			ID:        s.newID(),
			ProductID: productID,
			Quantity:  quantity,
			AddedAt:   s.now(),
		})
		return nil
	})
	if err != nil {
		return CartView{}, err
	}
	s.logger(ctx, "cart.item_added", map[string]any{
		"userId":    userID,
		"productId": productID,
		"quantity":  quantity,
	})
	return s.hydrate(ctx, cart)
}

func (s *cartService) UpdateItem(ctx context.Context, cmd UpdateCartItemCommand) (CartView, error) {
	userID := strings.TrimSpace(cmd.UserID)
	itemID := strings.TrimSpace(cmd.ItemID)
	if userID == "" || itemID == "" || cmd.Quantity < 1 {
		return CartView{}, ErrCartInvalidInput
	}

	current, err := s.carts.Get(ctx, userID)
	if err != nil {
		return CartView{}, err
	}
	idx := current.FindItem(itemID)
	if idx < 0 {
		return CartView{}, fmt.Errorf("%w: %s", ErrCartItemNotFound, itemID)
	}
	productID := current.Items[idx].ProductID
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return CartView{}, mapInventoryError(err)
	}
	if cmd.Quantity > product.Stock {
		return CartView{}, stockShortfall(productID, product.Stock, cmd.Quantity)
	}

	cart, err := s.carts.Mutate(ctx, userID, func(cart *domain.Cart) error {
		idx := cart.FindItem(itemID)
		if idx < 0 {
			return fmt.Errorf("%w: %s", ErrCartItemNotFound, itemID)
		}
		cart.Items[idx].Quantity = cmd.Quantity
		return nil
	})
	if err != nil {
		return CartView{}, err
	}
	return s.hydrate(ctx, cart)
}

func (s *cartService) RemoveItem(ctx context.Context, userID string, itemID string) (CartView, error) {
	userID = strings.TrimSpace(userID)
	itemID = strings.TrimSpace(itemID)
	if userID == "" || itemID == "" {
		return CartView{}, ErrCartInvalidInput
	}
	cart, err := s.carts.Mutate(ctx, userID, func(cart *domain.Cart) error {
		idx := cart.FindItem(itemID)
		if idx < 0 {
			return fmt.Errorf("%w: %s", ErrCartItemNotFound, itemID)
		}
		cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)
		return nil
	})
	if err != nil {
		return CartView{}, err
	}
	return s.hydrate(ctx, cart)
}

func (s *cartService) ClearCart(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrCartInvalidInput
	}
	_, err := s.carts.Mutate(ctx, userID, func(cart *domain.Cart) error {
		cart.Items = []domain.CartItem{}
		return nil
	})
	return err
}

// hydrate attaches current product details to each cart entry for display.
func (s *cartService) hydrate(ctx context.Context, cart domain.Cart) (CartView, error) {
	view := CartView{
		UserID:    cart.UserID,
		Items:     make([]CartLine, len(cart.Items)),
		UpdatedAt: cart.UpdatedAt,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cartHydrationConcurrency)
	for i, item := range cart.Items {
		view.Items[i].Item = item
		g.Go(func() error {
			product, err := s.products.FindByID(gctx, item.ProductID)
			if err != nil {
				if repositories.IsNotFound(err) {
					return nil
				}
				return err
			}
			view.Items[i].Product = &product
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return CartView{}, err
	}

	for _, line := range view.Items {
		if line.Product != nil {
			view.Subtotal += line.Product.UnitPrice() * int64(line.Item.Quantity)
		}
	}
	return view, nil
}

func stockShortfall(productID string, available, requested int) error {
	return fmt.Errorf("%w: %w", ErrInsufficientStock, repositories.InsufficientStock(productID, available, requested))
}
