package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/Rushan-dev/jeyani-gift-shop/internal/domain"
	pfirestore "github.com/Rushan-dev/jeyani-gift-shop/internal/platform/firestore"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/repositories"
)

const userCollection = "users"

// UserRepository persists shop profiles keyed by Firebase UID.
type UserRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.Collection[userDocument]
	carts    *pfirestore.Collection[cartDocument]
	now      func() time.Time
}

var _ repositories.UserRepository = (*UserRepository)(nil)

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	return &UserRepository{
		provider: provider,
		base:     pfirestore.NewCollection[userDocument](provider, userCollection),
		carts:    pfirestore.NewCollection[cartDocument](provider, cartCollection),
		now:      time.Now,
	}, nil
}

// Create writes the profile and an empty cart in one transaction.
func (r *UserRepository) Create(ctx context.Context, user domain.User) error {
	uid := strings.TrimSpace(user.ID)
	if uid == "" {
		return errors.New("user repository: id is required")
	}
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		userRef, err := r.base.Ref(ctx, uid)
		if err != nil {
			return err
		}
		cartRef, err := r.carts.Ref(ctx, uid)
		if err != nil {
			return err
		}
		if err := tx.Create(userRef, newUserDocument(user)); err != nil {
			return err
		}
		return tx.Set(cartRef, cartDocument{Items: []cartItemDocument{}, UpdatedAt: user.CreatedAt.UTC()})
	})
	return pfirestore.WrapError("users.create", err)
}

func (r *UserRepository) FindByID(ctx context.Context, userID string) (domain.User, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(userID))
	if err != nil {
		return domain.User{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// Mutate applies fn to the stored profile inside a transaction.
func (r *UserRepository) Mutate(ctx context.Context, userID string, fn func(user *domain.User) error) (domain.User, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.User{}, errors.New("user repository: id is required")
	}
	var saved domain.User
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.Ref(ctx, uid)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc userDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode user %s: %w", uid, err)
		}
		user := doc.toDomain(uid)
		if err := fn(&user); err != nil {
			return err
		}
		user.ID = uid
		user.UpdatedAt = r.now().UTC()
		saved = user
		return tx.Set(ref, newUserDocument(user))
	})
	if err != nil {
		return domain.User{}, pfirestore.WrapError("users.mutate", err)
	}
	return saved, nil
}

type userDocument struct {
	FirebaseUID string    `firestore:"firebaseUid"`
	Name        string    `firestore:"name"`
	Email       string    `firestore:"email"`
	Phone       string    `firestore:"phone,omitempty"`
	PhotoURL    string    `firestore:"photoUrl,omitempty"`
	Role        string    `firestore:"role"`
	Wishlist    []string  `firestore:"wishlist"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

func newUserDocument(u domain.User) userDocument {
	wishlist := append([]string(nil), u.Wishlist...)
	if wishlist == nil {
		wishlist = []string{}
	}
	role := strings.TrimSpace(u.Role)
	if role == "" {
		role = domain.RoleUser
	}
	return userDocument{
		FirebaseUID: strings.TrimSpace(u.FirebaseUID),
		Name:        strings.TrimSpace(u.Name),
		Email:       strings.TrimSpace(u.Email),
		Phone:       strings.TrimSpace(u.Phone),
		PhotoURL:    strings.TrimSpace(u.PhotoURL),
		Role:        role,
		Wishlist:    wishlist,
		CreatedAt:   u.CreatedAt.UTC(),
		UpdatedAt:   u.UpdatedAt.UTC(),
	}
}

func (d userDocument) toDomain(id string) domain.User {
	return domain.User{
		ID:          id,
		FirebaseUID: d.FirebaseUID,
		Name:        d.Name,
		Email:       d.Email,
		Phone:       d.Phone,
		PhotoURL:    d.PhotoURL,
		Role:        d.Role,
		Wishlist:    append([]string(nil), d.Wishlist...),
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}
