package fees

import (
	"context"
	"errors"
	"fmt"

	"card-settlement-go/internal/models"
	"card-settlement-go/internal/store"
	"card-settlement-go/internal/tokens"

	"github.com/shopspring/decimal"
)

const CardOrderFee = "card_order"

var ErrInvalidFee = errors.New("invalid fee configuration")

type Store interface {
	GetFeeSetting(ctx context.Context, name string) (*models.FeeSetting, error)
}

// Fee is an immutable snapshot of the fee in force for one operation
type Fee struct {
	Amount            decimal.Decimal
	NetworkType       string
	SettlementAddress string
}

func (f Fee) Validate() error {
	if !f.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be greater than zero, got %s", ErrInvalidFee, f.Amount)
	}
	if !tokens.ValidNetworkType(f.NetworkType) {
		return fmt.Errorf("%w: unknown network type %q", ErrInvalidFee, f.NetworkType)
	}
	if f.SettlementAddress == "" {
		return fmt.Errorf("%w: settlement address is not configured", ErrInvalidFee)
	}
	return nil
}

func (f Fee) Equal(other Fee) bool {
	return f.Amount.Equal(other.Amount) &&
		f.NetworkType == other.NetworkType &&
		f.SettlementAddress == other.SettlementAddress
}

// Schedule resolves fees from fee_settings, falling back to the configured defaults
type Schedule struct {
	store    Store
	defaults models.CardOrderConfig
}

func NewSchedule(s Store, defaults models.CardOrderConfig) *Schedule {
	return &Schedule{store: s, defaults: defaults}
}

func (s *Schedule) CardOrder(ctx context.Context) (Fee, error) {
	setting, err := s.store.GetFeeSetting(ctx, CardOrderFee)
	if err != nil {
		if errors.Is(err, store.ErrFeeSettingNotFound) {
			return Fee{
				Amount:            s.defaults.Fee,
				NetworkType:       s.defaults.NetworkType,
				SettlementAddress: s.defaults.SettlementAddress,
			}, nil
		}
		return Fee{}, fmt.Errorf("unable to load card order fee: %w", err)
	}

	fee := Fee{
		Amount:            setting.Amount,
		NetworkType:       setting.NetworkType,
		SettlementAddress: setting.SettlementAddress,
	}
	if fee.NetworkType == "" {
		fee.NetworkType = s.defaults.NetworkType
	}
	if fee.SettlementAddress == "" {
		fee.SettlementAddress = s.defaults.SettlementAddress
	}
	return fee, nil
}
