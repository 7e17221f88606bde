package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Rushan-dev/jeyani-gift-shop/internal/repositories"
)

// ErrSettingsInvalidInput indicates an invalid settings update.
var ErrSettingsInvalidInput = errors.New("settings: invalid input")

// SettingsServiceDeps wires the settings repository.
type SettingsServiceDeps struct {
	Settings repositories.SettingsRepository
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type settingsService struct {
	settings repositories.SettingsRepository
	now      func() time.Time
	logger   func(ctx context.Context, event string, fields map[string]any)
}

// NewSettingsService constructs a SettingsService.
func NewSettingsService(deps SettingsServiceDeps) (SettingsService, error) {
	if deps.Settings == nil {
		return nil, errors.New("settings service: settings repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &settingsService{
		settings: deps.Settings,
		now:      func() time.Time { return clock().UTC() },
		logger:   logger,
	}, nil
}

func (s *settingsService) ShippingFee(ctx context.Context) (ShippingFeeSetting, error) {
	return s.settings.ShippingFee(ctx)
}

// UpdateShippingFee stores the storefront banner. Order totals use per-product fees and ignore it.
func (s *settingsService) UpdateShippingFee(ctx context.Context, cmd UpdateShippingFeeCommand) (ShippingFeeSetting, error) {
	if cmd.Amount < 0 {
		return ShippingFeeSetting{}, fmt.Errorf("%w: amount cannot be negative", ErrSettingsInvalidInput)
	}
	setting := ShippingFeeSetting{Enabled: cmd.Enabled, Amount: cmd.Amount, UpdatedAt: s.now()}
	if err := s.settings.SaveShippingFee(ctx, setting); err != nil {
		return ShippingFeeSetting{}, err
	}
	s.logger(ctx, "settings.shipping_fee_updated", map[string]any{"enabled": setting.Enabled, "amount": setting.Amount})
	return setting, nil
}
