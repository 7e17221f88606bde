package firestore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/Rushan-dev/jeyani-gift-shop/internal/domain"
	pfirestore "github.com/Rushan-dev/jeyani-gift-shop/internal/platform/firestore"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/repositories"
)

const orderCollection = "orders"

// OrderRepository persists order aggregates and performs the finalize transaction spanning
// orders, products and carts.
type OrderRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.Collection[orderDocument]
	products *pfirestore.Collection[productDocument]
	carts    *pfirestore.Collection[cartDocument]
	now      func() time.Time
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		provider: provider,
		base:     pfirestore.NewCollection[orderDocument](provider, orderCollection),
		products: pfirestore.NewCollection[productDocument](provider, productCollection),
		carts:    pfirestore.NewCollection[cartDocument](provider, cartCollection),
		now:      time.Now,
	}, nil
}

func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order repository: id is required")
	}
	return r.base.Create(ctx, order.ID, newOrderDocument(order))
}

func (r *OrderRepository) Delete(ctx context.Context, orderID string) error {
	return r.base.Delete(ctx, orderID)
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("userId", "==", userID).OrderBy("createdAt", firestore.Desc)
	})
	if err != nil {
		return nil, err
	}
	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, doc.Data.toDomain(doc.ID))
	}
	return orders, nil
}

func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	offset, limit, err := pageWindow(filter.Pagination)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if uid := strings.TrimSpace(filter.UserID); uid != "" {
			q = q.Where("userId", "==", uid)
		}
		if filter.OrderStatus != "" {
			q = q.Where("orderStatus", "==", string(filter.OrderStatus))
		}
		if filter.PaymentStatus != "" {
			q = q.Where("paymentStatus", "==", string(filter.PaymentStatus))
		}
		if filter.PaymentMethod != "" {
			q = q.Where("paymentMethod", "==", string(filter.PaymentMethod))
		}
		return q.OrderBy("createdAt", firestore.Desc).Offset(offset).Limit(limit + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	items := make([]domain.Order, 0, min(len(docs), limit))
	for i, doc := range docs {
		if i == limit {
			break
		}
		items = append(items, doc.Data.toDomain(doc.ID))
	}
	next, err := nextPageToken(offset, limit, len(docs))
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	return domain.CursorPage[domain.Order]{Items: items, NextPageToken: next}, nil
}

func (r *OrderRepository) ListAwaitingPayment(ctx context.Context, cutoff time.Time, limit int) ([]domain.Order, error) {
	if limit <= 0 {
		limit = 50
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("paymentMethod", "==", string(domain.PaymentMethodCard)).
			Where("paymentStatus", "==", string(domain.PaymentStatusPending)).
			Where("orderStatus", "==", string(domain.OrderStatusPending)).
			Where("finalized", "==", false).
			Where("createdAt", "<", cutoff.UTC()).
			OrderBy("createdAt", firestore.Asc).
			Limit(limit)
	})
	if err != nil {
		return nil, err
	}
	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, doc.Data.toDomain(doc.ID))
	}
	return orders, nil
}

func (r *OrderRepository) Mutate(ctx context.Context, orderID string, fn func(order *domain.Order) error) (domain.Order, error) {
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, errors.New("order repository: id is required")
	}
	var saved domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.Ref(ctx, id)
		if err != nil {
			return err
		}
		order, err := r.readOrder(tx, ref)
		if err != nil {
			return err
		}
		if err := fn(&order); err != nil {
			return err
		}
		order.ID = id
		order.UpdatedAt = r.now().UTC()
		saved = order
		return tx.Set(ref, newOrderDocument(order))
	})
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.mutate", err)
	}
	return saved, nil
}

// Finalize is the only place stock leaves the shelf for an order. Within one transaction it
// reads the order and every product it references, rejects the attempt if any product lacks
// stock, applies the caller's mutation, decrements stock, empties the buyer's cart and marks
// the order finalized. A finalized order is returned untouched with Applied=false.
func (r *OrderRepository) Finalize(ctx context.Context, req repositories.FinalizeRequest) (repositories.FinalizeResult, error) {
	id := strings.TrimSpace(req.OrderID)
	if id == "" {
		return repositories.FinalizeResult{}, errors.New("order repository: id is required")
	}
	now := req.Now.UTC()
	if req.Now.IsZero() {
		now = r.now().UTC()
	}

	var result repositories.FinalizeResult
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		result = repositories.FinalizeResult{}
		orderRef, err := r.base.Ref(ctx, id)
		if err != nil {
			return err
		}
		order, err := r.readOrder(tx, orderRef)
		if err != nil {
			return err
		}
		if order.Finalized {
			result.Order = order
			return nil
		}

		demand := aggregateDemand(order.Items)
		productIDs := make([]string, 0, len(demand))
		for productID := range demand {
			productIDs = append(productIDs, productID)
		}
		sort.Strings(productIDs)

		refs := make([]*firestore.DocumentRef, 0, len(productIDs))
		for _, productID := range productIDs {
			ref, err := r.products.Ref(ctx, productID)
			if err != nil {
				return err
			}
			refs = append(refs, ref)
		}
		snaps, err := tx.GetAll(refs)
		if err != nil {
			return err
		}

		remaining := make(map[string]int, len(productIDs))
		for i, snap := range snaps {
			productID := productIDs[i]
			if !snap.Exists() {
				return repositories.ProductNotFound(productID, nil)
			}
			var doc productDocument
			if err := snap.DataTo(&doc); err != nil {
				return fmt.Errorf("decode product %s: %w", productID, err)
			}
			if doc.Stock < demand[productID] {
				return repositories.InsufficientStock(productID, doc.Stock, demand[productID])
			}
			remaining[productID] = doc.Stock - demand[productID]
		}

		if req.Apply != nil {
			if err := req.Apply(&order); err != nil {
				return err
			}
		}
		order.Finalized = true
		order.FinalizedAt = &now
		order.UpdatedAt = now

		for i, productID := range productIDs {
			if err := tx.Update(refs[i], []firestore.Update{
				{Path: "stock", Value: remaining[productID]},
				{Path: "updatedAt", Value: now},
			}); err != nil {
				return err
			}
		}
		cartRef, err := r.carts.Ref(ctx, order.UserID)
		if err != nil {
			return err
		}
		if err := tx.Set(cartRef, cartDocument{Items: []cartItemDocument{}, UpdatedAt: now}); err != nil {
			return err
		}
		if err := tx.Set(orderRef, newOrderDocument(order)); err != nil {
			return err
		}

		result = repositories.FinalizeResult{Order: order, Applied: true, Stock: remaining}
		return nil
	})
	if err != nil {
		return repositories.FinalizeResult{}, wrapInventoryError("orders.finalize", err)
	}
	return result, nil
}

func (r *OrderRepository) readOrder(tx *firestore.Transaction, ref *firestore.DocumentRef) (domain.Order, error) {
	snap, err := tx.Get(ref)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return domain.Order{}, pfirestore.WrapError("orders.get", err)
		}
		return domain.Order{}, err
	}
	var doc orderDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Order{}, fmt.Errorf("decode order %s: %w", ref.ID, err)
	}
	return doc.toDomain(ref.ID), nil
}

func aggregateDemand(items []domain.OrderItem) map[string]int {
	demand := make(map[string]int, len(items))
	for _, item := range items {
		demand[item.ProductID] += item.Quantity
	}
	return demand
}

type orderDocument struct {
	UserID           string                  `firestore:"userId"`
	Items            []orderItemDocument     `firestore:"items"`
	ShippingAddress  shippingAddressDocument `firestore:"shippingAddress"`
	PaymentMethod    string                  `firestore:"paymentMethod"`
	PaymentStatus    string                  `firestore:"paymentStatus"`
	OrderStatus      string                  `firestore:"orderStatus"`
	Subtotal         int64                   `firestore:"subtotal"`
	ShippingFee      int64                   `firestore:"shippingFee"`
	TotalAmount      int64                   `firestore:"totalAmount"`
	PaymentSlipURL   string                  `firestore:"paymentSlipUrl,omitempty"`
	PaymentSessionID string                  `firestore:"paymentSessionId,omitempty"`
	TrackingNumber   string                  `firestore:"trackingNumber,omitempty"`
	TrackingHistory  []trackingEventDocument `firestore:"trackingHistory"`
	Finalized        bool                    `firestore:"finalized"`
	FinalizedAt      *time.Time              `firestore:"finalizedAt"`
	CreatedAt        time.Time               `firestore:"createdAt"`
	UpdatedAt        time.Time               `firestore:"updatedAt"`
}

type orderItemDocument struct {
	ProductID string `firestore:"productId"`
	Name      string `firestore:"name"`
	Image     string `firestore:"image,omitempty"`
	Quantity  int    `firestore:"quantity"`
	Price     int64  `firestore:"price"`
}

type shippingAddressDocument struct {
	Name       string `firestore:"name"`
	Phone      string `firestore:"phone"`
	Address    string `firestore:"address"`
	City       string `firestore:"city"`
	PostalCode string `firestore:"postalCode"`
}

type trackingEventDocument struct {
	Status      string    `firestore:"status"`
	Location    string    `firestore:"location,omitempty"`
	Description string    `firestore:"description,omitempty"`
	Timestamp   time.Time `firestore:"timestamp"`
}

func newOrderDocument(o domain.Order) orderDocument {
	items := make([]orderItemDocument, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, orderItemDocument{
			ProductID: item.ProductID,
			Name:      item.Name,
			Image:     item.Image,
			Quantity:  item.Quantity,
			Price:     item.Price,
		})
	}
	history := make([]trackingEventDocument, 0, len(o.TrackingHistory))
	for _, event := range o.TrackingHistory {
		history = append(history, trackingEventDocument{
			Status:      event.Status,
			Location:    event.Location,
			Description: event.Description,
			Timestamp:   event.Timestamp.UTC(),
		})
	}
	var finalizedAt *time.Time
	if o.FinalizedAt != nil {
		ts := o.FinalizedAt.UTC()
		finalizedAt = &ts
	}
	return orderDocument{
		UserID: o.UserID,
		Items:  items,
		ShippingAddress: shippingAddressDocument{
			Name:       o.ShippingAddress.Name,
			Phone:      o.ShippingAddress.Phone,
			Address:    o.ShippingAddress.Address,
			City:       o.ShippingAddress.City,
			PostalCode: o.ShippingAddress.PostalCode,
		},
		PaymentMethod:    string(o.PaymentMethod),
		PaymentStatus:    string(o.PaymentStatus),
		OrderStatus:      string(o.OrderStatus),
		Subtotal:         o.Subtotal,
		ShippingFee:      o.ShippingFee,
		TotalAmount:      o.TotalAmount,
		PaymentSlipURL:   o.PaymentSlipURL,
		PaymentSessionID: o.PaymentSessionID,
		TrackingNumber:   o.TrackingNumber,
		TrackingHistory:  history,
		Finalized:        o.Finalized,
		FinalizedAt:      finalizedAt,
		CreatedAt:        o.CreatedAt.UTC(),
		UpdatedAt:        o.UpdatedAt.UTC(),
	}
}

func (d orderDocument) toDomain(id string) domain.Order {
	items := make([]domain.OrderItem, 0, len(d.Items))
	for _, item := range d.Items {
		items = append(items, domain.OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Image:     item.Image,
			Quantity:  item.Quantity,
			Price:     item.Price,
		})
	}
	history := make([]domain.TrackingEvent, 0, len(d.TrackingHistory))
	for _, event := range d.TrackingHistory {
		history = append(history, domain.TrackingEvent{
			Status:      event.Status,
			Location:    event.Location,
			Description: event.Description,
			Timestamp:   event.Timestamp,
		})
	}
	return domain.Order{
		ID:     id,
		UserID: d.UserID,
		Items:  items,
		ShippingAddress: domain.ShippingAddress{
			Name:       d.ShippingAddress.Name,
			Phone:      d.ShippingAddress.Phone,
			Address:    d.ShippingAddress.Address,
			City:       d.ShippingAddress.City,
			PostalCode: d.ShippingAddress.PostalCode,
		},
		PaymentMethod:    domain.PaymentMethod(d.PaymentMethod),
		PaymentStatus:    domain.PaymentStatus(d.PaymentStatus),
		OrderStatus:      domain.OrderStatus(d.OrderStatus),
		Subtotal:         d.Subtotal,
		ShippingFee:      d.ShippingFee,
		TotalAmount:      d.TotalAmount,
		PaymentSlipURL:   d.PaymentSlipURL,
		PaymentSessionID: d.PaymentSessionID,
		TrackingNumber:   d.TrackingNumber,
		TrackingHistory:  history,
		Finalized:        d.Finalized,
		FinalizedAt:      d.FinalizedAt,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
}
