//go:build integration

package firestore

import (
	"context"
	"sync"
	"testing"
	"time"

	domain "github.com/Rushan-dev/jeyani-gift-shop/internal/domain"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/repositories"
)

func TestOrderRepositoryFinalizeIntegration(t *testing.T) {
	provider := newEmulatorProvider(t, "orders-test")

	products, err := NewProductRepository(provider)
	if err != nil {
		t.Fatalf("new product repository: %v", err)
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		t.Fatalf("new order repository: %v", err)
	}
	carts, err := NewCartRepository(provider)
	if err != nil {
		t.Fatalf("new cart repository: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Second)
	if err := products.Insert(ctx, domain.Product{ID: "vase", Name: "Clay Vase", OriginalPrice: 2500, Stock: 3, CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("insert product: %v", err)
	}
	if _, err := carts.Mutate(ctx, "buyer-1", func(cart *domain.Cart) error {
		cart.Items = append(cart.Items, domain.CartItem{ID: "ci-1", ProductID: "vase", Quantity: 2, AddedAt: now})
		return nil
	}); err != nil {
		t.Fatalf("seed cart: %v", err)
	}

	order := domain.Order{
		ID:            "order-1",
		UserID:        "buyer-1",
		Items:         []domain.OrderItem{{ProductID: "vase", Name: "Clay Vase", Quantity: 2, Price: 2500}},
		PaymentMethod: domain.PaymentMethodCard,
		PaymentStatus: domain.PaymentStatusPending,
		OrderStatus:   domain.OrderStatusPending,
		Subtotal:      5000,
		TotalAmount:   5000,
		CreatedAt:     now.Add(-time.Hour),
		UpdatedAt:     now.Add(-time.Hour),
	}
	if err := orders.Insert(ctx, order); err != nil {
		t.Fatalf("insert order: %v", err)
	}

	awaiting, err := orders.ListAwaitingPayment(ctx, now, 10)
	if err != nil {
		t.Fatalf("list awaiting payment: %v", err)
	}
	if len(awaiting) != 1 || awaiting[0].ID != "order-1" {
		t.Fatalf("expected order-1 awaiting payment, got %+v", awaiting)
	}

	markPaid := func(o *domain.Order) error {
		o.PaymentStatus = domain.PaymentStatusPaid
		o.OrderStatus = domain.OrderStatusProcessing
		return nil
	}
	result, err := orders.Finalize(ctx, repositories.FinalizeRequest{OrderID: "order-1", Apply: markPaid, Now: now})
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if !result.Applied || result.Stock["vase"] != 1 {
		t.Fatalf("unexpected finalize result %+v", result)
	}

	again, err := orders.Finalize(ctx, repositories.FinalizeRequest{OrderID: "order-1", Apply: markPaid, Now: now})
	if err != nil {
		t.Fatalf("second finalize: %v", err)
	}
	if again.Applied {
		t.Fatalf("expected second finalize to be a no-op")
	}

	product, err := products.FindByID(ctx, "vase")
	if err != nil {
		t.Fatalf("find product: %v", err)
	}
	if product.Stock != 1 {
		t.Fatalf("expected stock 1 after single finalize, got %d", product.Stock)
	}
	cart, err := carts.Get(ctx, "buyer-1")
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if len(cart.Items) != 0 {
		t.Fatalf("expected cart cleared, got %+v", cart.Items)
	}
	stored, err := orders.FindByID(ctx, "order-1")
	if err != nil {
		t.Fatalf("find order: %v", err)
	}
	if !stored.Finalized || stored.PaymentStatus != domain.PaymentStatusPaid || stored.OrderStatus != domain.OrderStatusProcessing {
		t.Fatalf("unexpected stored order %+v", stored)
	}
}

func TestProductRepositoryAdjustStockLastUnitIntegration(t *testing.T) {
	provider := newEmulatorProvider(t, "stock-test")
	products, err := NewProductRepository(provider)
	if err != nil {
		t.Fatalf("new product repository: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	now := time.Now().UTC()
	if err := products.Insert(ctx, domain.Product{ID: "last", Name: "Last Candle", OriginalPrice: 900, Stock: 1, CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("insert product: %v", err)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := products.AdjustStock(ctx, "last", -1)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case repositories.IsConflict(err):
				conflicts++
			default:
				t.Errorf("unexpected adjust error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 || conflicts != 1 {
		t.Fatalf("expected exactly one decrement to win, got successes=%d conflicts=%d", successes, conflicts)
	}

	if _, err := products.AdjustStock(ctx, "missing", -1); !repositories.IsNotFound(err) {
		t.Fatalf("expected not found for unknown product, got %v", err)
	}
}
