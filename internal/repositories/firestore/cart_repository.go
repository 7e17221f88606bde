package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/Rushan-dev/jeyani-gift-shop/internal/domain"
	pfirestore "github.com/Rushan-dev/jeyani-gift-shop/internal/platform/firestore"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/repositories"
)

const cartCollection = "carts"

// CartRepository persists one cart document per user, keyed by the user ID.
type CartRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.Collection[cartDocument]
	now      func() time.Time
}

var _ repositories.CartRepository = (*CartRepository)(nil)

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	return &CartRepository{
		provider: provider,
		base:     pfirestore.NewCollection[cartDocument](provider, cartCollection),
		now:      time.Now,
	}, nil
}

// Get loads the cart for userID. A missing document yields an empty cart.
func (r *CartRepository) Get(ctx context.Context, userID string) (domain.Cart, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}
	doc, err := r.base.Get(ctx, uid)
	if err != nil {
		if repositories.IsNotFound(err) {
			return domain.Cart{UserID: uid, Items: []domain.CartItem{}}, nil
		}
		return domain.Cart{}, err
	}
	return doc.Data.toDomain(uid), nil
}

// Mutate runs fn against the current cart inside a transaction and writes the result back.
func (r *CartRepository) Mutate(ctx context.Context, userID string, fn func(cart *domain.Cart) error) (domain.Cart, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}
	if fn == nil {
		return domain.Cart{}, errors.New("cart repository: mutation is required")
	}

	var saved domain.Cart
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.Ref(ctx, uid)
		if err != nil {
			return err
		}
		cart := domain.Cart{UserID: uid, Items: []domain.CartItem{}}
		snap, err := tx.Get(ref)
		switch {
		case err == nil:
			var doc cartDocument
			if err := snap.DataTo(&doc); err != nil {
				return fmt.Errorf("decode cart %s: %w", uid, err)
			}
			cart = doc.toDomain(uid)
		case status.Code(err) != codes.NotFound:
			return err
		}

		if err := fn(&cart); err != nil {
			return err
		}
		cart.UserID = uid
		cart.UpdatedAt = r.now().UTC()
		saved = cart
		return tx.Set(ref, newCartDocument(cart))
	})
	if err != nil {
		return domain.Cart{}, wrapInventoryError("carts.mutate", err)
	}
	return saved, nil
}

type cartDocument struct {
	Items     []cartItemDocument `firestore:"items"`
	UpdatedAt time.Time          `firestore:"updatedAt"`
}

type cartItemDocument struct {
	ID        string    `firestore:"id"`
	ProductID string    `firestore:"productId"`
	Quantity  int       `firestore:"quantity"`
	AddedAt   time.Time `firestore:"addedAt"`
}

func newCartDocument(cart domain.Cart) cartDocument {
	items := make([]cartItemDocument, 0, len(cart.Items))
	for _, item := range cart.Items {
		items = append(items, cartItemDocument{
			ID:        item.ID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			AddedAt:   item.AddedAt.UTC(),
		})
	}
	return cartDocument{Items: items, UpdatedAt: cart.UpdatedAt.UTC()}
}

func (d cartDocument) toDomain(userID string) domain.Cart {
	items := make([]domain.CartItem, 0, len(d.Items))
	for _, item := range d.Items {
		items = append(items, domain.CartItem{
			ID:        item.ID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			AddedAt:   item.AddedAt,
		})
	}
	return domain.Cart{UserID: userID, Items: items, UpdatedAt: d.UpdatedAt}
}
