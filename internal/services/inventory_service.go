package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Rushan-dev/jeyani-gift-shop/internal/repositories"
)

var (
	// ErrInventoryInvalidInput signals the caller provided invalid arguments.
	ErrInventoryInvalidInput = errors.New("inventory: invalid input")
	// ErrInsufficientStock indicates the requested quantity exceeds live stock. The wrapped
	// repositories.InventoryError identifies the product.
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrProductNotFound indicates the referenced product does not exist.
	ErrProductNotFound = errors.New("catalog: product not found")
)

// InventoryServiceDeps bundles the collaborators required to construct an inventory service.
type InventoryServiceDeps struct {
	Products repositories.ProductRepository
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type inventoryService struct {
	products repositories.ProductRepository
	clock    func() time.Time
	logger   func(context.Context, string, map[string]any)
}

// NewInventoryService wires dependencies into a concrete InventoryService implementation.
func NewInventoryService(deps InventoryServiceDeps) (InventoryService, error) {
	if deps.Products == nil {
		return nil, errors.New("inventory service: product repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &inventoryService{
		products: deps.Products,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (s *inventoryService) CheckAvailability(ctx context.Context, productID string, quantity int) (bool, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" || quantity < 1 {
		return false, ErrInventoryInvalidInput
	}
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return false, mapInventoryError(err)
	}
	return product.Stock >= quantity, nil
}

// Decrement removes quantity units in one conditional write; it never drives stock negative.
func (s *inventoryService) Decrement(ctx context.Context, productID string, quantity int) (int, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" || quantity < 1 {
		return 0, ErrInventoryInvalidInput
	}
	remaining, err := s.products.AdjustStock(ctx, productID, -quantity)
	if err != nil {
		return 0, mapInventoryError(err)
	}
	s.logger(ctx, "inventory.decrement", map[string]any{
		"productId": productID,
		"quantity":  quantity,
		"remaining": remaining,
	})
	return remaining, nil
}

func (s *inventoryService) Restock(ctx context.Context, cmd RestockCommand) (int, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" || cmd.Quantity < 1 {
		return 0, ErrInventoryInvalidInput
	}
	stock, err := s.products.AdjustStock(ctx, productID, cmd.Quantity)
	if err != nil {
		return 0, mapInventoryError(err)
	}
	s.logger(ctx, "inventory.restock", map[string]any{
		"productId": productID,
		"quantity":  cmd.Quantity,
		"stock":     stock,
		"actorId":   strings.TrimSpace(cmd.ActorID),
		"at":        s.clock(),
	})
	return stock, nil
}

// mapInventoryError translates repository stock failures into service sentinels while keeping
// the InventoryError reachable through errors.As.
func mapInventoryError(err error) error {
	if err == nil {
		return nil
	}
	if invErr, ok := repositories.AsInventoryError(err); ok {
		switch invErr.Code {
		case repositories.InventoryErrorInsufficientStock:
			return fmt.Errorf("%w: %w", ErrInsufficientStock, invErr)
		case repositories.InventoryErrorProductNotFound:
			return fmt.Errorf("%w: %w", ErrProductNotFound, invErr)
		}
	}
	if repositories.IsNotFound(err) {
		return fmt.Errorf("%w: %w", ErrProductNotFound, err)
	}
	return err
}
