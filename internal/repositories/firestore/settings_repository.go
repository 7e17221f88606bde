package firestore

import (
	"context"
	"errors"
	"time"

	domain "github.com/Rushan-dev/jeyani-gift-shop/internal/domain"
	pfirestore "github.com/Rushan-dev/jeyani-gift-shop/internal/platform/firestore"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/repositories"
)

const (
	settingsCollection = "settings"
	shippingFeeDocID   = "shippingFee"
)

// SettingsRepository stores storefront settings as single documents under the settings collection.
type SettingsRepository struct {
	base *pfirestore.Collection[shippingFeeDocument]
}

var _ repositories.SettingsRepository = (*SettingsRepository)(nil)

// NewSettingsRepository constructs a Firestore-backed settings repository.
func NewSettingsRepository(provider *pfirestore.Provider) (*SettingsRepository, error) {
	if provider == nil {
		return nil, errors.New("settings repository requires firestore provider")
	}
	return &SettingsRepository{
		base: pfirestore.NewCollection[shippingFeeDocument](provider, settingsCollection),
	}, nil
}

// ShippingFee returns the stored banner setting, or a disabled zero setting when none exists.
func (r *SettingsRepository) ShippingFee(ctx context.Context) (domain.ShippingFeeSetting, error) {
	doc, err := r.base.Get(ctx, shippingFeeDocID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return domain.ShippingFeeSetting{}, nil
		}
		return domain.ShippingFeeSetting{}, err
	}
	return domain.ShippingFeeSetting{
		Enabled:   doc.Data.Enabled,
		Amount:    doc.Data.Amount,
		UpdatedAt: doc.Data.UpdatedAt,
	}, nil
}

func (r *SettingsRepository) SaveShippingFee(ctx context.Context, setting domain.ShippingFeeSetting) error {
	return r.base.Set(ctx, shippingFeeDocID, shippingFeeDocument{
		Enabled:   setting.Enabled,
		Amount:    setting.Amount,
		UpdatedAt: setting.UpdatedAt.UTC(),
	})
}

type shippingFeeDocument struct {
	Enabled   bool      `firestore:"enabled"`
	Amount    int64     `firestore:"amount"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}
