package services

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	domain "github.com/Rushan-dev/jeyani-gift-shop/internal/domain"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/platform/textutil"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/repositories"
)

var (
	// ErrUserInvalidInput indicates missing identity or wishlist input.
	ErrUserInvalidInput = errors.New("user: invalid input")
	// ErrUserNotFound indicates no profile exists for the identity.
	ErrUserNotFound = errors.New("user: not found")
	// ErrUserAlreadyExists indicates Register was called for an existing profile.
	ErrUserAlreadyExists = errors.New("user: already exists")
	// ErrWishlistDuplicate indicates the product is already on the wishlist.
	ErrWishlistDuplicate = errors.New("user: product already in wishlist")
	// ErrWishlistItemNotFound indicates the product is not on the wishlist.
	ErrWishlistItemNotFound = errors.New("user: product not in wishlist")
)

// UserServiceDeps wires the repositories used by the user service.
type UserServiceDeps struct {
	Users    repositories.UserRepository
	Products repositories.ProductRepository
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type userService struct {
	users    repositories.UserRepository
	products repositories.ProductRepository
	now      func() time.Time
	logger   func(ctx context.Context, event string, fields map[string]any)
}

// NewUserService constructs a UserService.
func NewUserService(deps UserServiceDeps) (UserService, error) {
	if deps.Users == nil {
		return nil, errors.New("user service: user repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("user service: product repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &userService{
		users:    deps.Users,
		products: deps.Products,
		now:      func() time.Time { return clock().UTC() },
		logger:   logger,
	}, nil
}

// Register creates the profile for a verified identity. The profile ID is the Firebase UID.
func (s *userService) Register(ctx context.Context, cmd RegisterUserCommand) (User, error) {
	user, err := s.newProfile(cmd)
	if err != nil {
		return User{}, err
	}
	if err := s.users.Create(ctx, user); err != nil {
		if repositories.IsConflict(err) {
			return User{}, fmt.Errorf("%w: %s", ErrUserAlreadyExists, user.ID)
		}
		return User{}, err
	}
	s.logger(ctx, "user.registered", map[string]any{"userId": user.ID})
	return user, nil
}

// Login returns the profile for the identity, creating it on first sign-in and filling
// contact details the profile is still missing.
func (s *userService) Login(ctx context.Context, cmd RegisterUserCommand) (User, error) {
	uid := strings.TrimSpace(cmd.UID)
	if uid == "" {
		return User{}, ErrUserInvalidInput
	}
	if _, err := s.users.FindByID(ctx, uid); err != nil {
		if !repositories.IsNotFound(err) {
			return User{}, err
		}
		user, err := s.Register(ctx, cmd)
		if !errors.Is(err, ErrUserAlreadyExists) {
			return user, err
		}
	}
	return s.users.Mutate(ctx, uid, func(user *User) error {
		if user.Email == "" {
			user.Email = strings.TrimSpace(cmd.Email)
		}
		if user.Phone == "" {
			user.Phone = strings.TrimSpace(cmd.Phone)
		}
		if user.Name == "" {
			user.Name = textutil.PlainText(cmd.Name)
		}
		if user.PhotoURL == "" {
			user.PhotoURL = strings.TrimSpace(cmd.PhotoURL)
		}
		return nil
	})
}

func (s *userService) GetProfile(ctx context.Context, userID string) (User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return User{}, ErrUserInvalidInput
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return User{}, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
		}
		return User{}, err
	}
	return user, nil
}

func (s *userService) GetWishlist(ctx context.Context, userID string) ([]Product, error) {
	user, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.hydrateWishlist(ctx, user.Wishlist)
}

func (s *userService) AddToWishlist(ctx context.Context, userID string, productID string) ([]Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, fmt.Errorf("%w: product id is required", ErrUserInvalidInput)
	}
	if _, err := s.products.FindByID(ctx, productID); err != nil {
		return nil, mapInventoryError(err)
	}
	user, err := s.mutateWishlist(ctx, userID, func(wishlist []string) ([]string, error) {
		if slices.Contains(wishlist, productID) {
			return nil, fmt.Errorf("%w: %s", ErrWishlistDuplicate, productID)
		}
		return append(wishlist, productID), nil
	})
	if err != nil {
		return nil, err
	}
	return s.hydrateWishlist(ctx, user.Wishlist)
}

func (s *userService) RemoveFromWishlist(ctx context.Context, userID string, productID string) ([]Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, fmt.Errorf("%w: product id is required", ErrUserInvalidInput)
	}
	user, err := s.mutateWishlist(ctx, userID, func(wishlist []string) ([]string, error) {
		idx := slices.Index(wishlist, productID)
		if idx < 0 {
			return nil, fmt.Errorf("%w: %s", ErrWishlistItemNotFound, productID)
		}
		return slices.Delete(wishlist, idx, idx+1), nil
	})
	if err != nil {
		return nil, err
	}
	return s.hydrateWishlist(ctx, user.Wishlist)
}

func (s *userService) mutateWishlist(ctx context.Context, userID string, fn func([]string) ([]string, error)) (User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return User{}, ErrUserInvalidInput
	}
	user, err := s.users.Mutate(ctx, userID, func(user *User) error {
		next, err := fn(user.Wishlist)
		if err != nil {
			return err
		}
		user.Wishlist = next
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrWishlistDuplicate), errors.Is(err, ErrWishlistItemNotFound):
			return User{}, err
		case repositories.IsNotFound(err):
			return User{}, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
		}
		return User{}, err
	}
	return user, nil
}

// hydrateWishlist loads wishlist products in order, skipping products removed from the catalog.
func (s *userService) hydrateWishlist(ctx context.Context, productIDs []string) ([]Product, error) {
	found := make([]*Product, len(productIDs))
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(8)
	for i, productID := range productIDs {
		group.Go(func() error {
			product, err := s.products.FindByID(gctx, productID)
			if err != nil {
				if repositories.IsNotFound(err) {
					return nil
				}
				return err
			}
			found[i] = &product
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	products := make([]Product, 0, len(found))
	for _, product := range found {
		if product != nil {
			products = append(products, *product)
		}
	}
	return products, nil
}

func (s *userService) newProfile(cmd RegisterUserCommand) (User, error) {
	uid := strings.TrimSpace(cmd.UID)
	if uid == "" {
		return User{}, ErrUserInvalidInput
	}
	email := strings.TrimSpace(cmd.Email)
	phone := strings.TrimSpace(cmd.Phone)
	name := cmp.Or(textutil.PlainText(cmd.Name), email, phone, "User")
	now := s.now()
	return User{
		ID:          uid,
		FirebaseUID: uid,
		Name:        name,
		Email:       email,
		Phone:       phone,
		PhotoURL:    strings.TrimSpace(cmd.PhotoURL),
		Role:        domain.RoleUser,
		Wishlist:    []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}
