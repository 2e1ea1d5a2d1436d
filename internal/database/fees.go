package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"card-settlement-go/internal/models"
	"card-settlement-go/internal/store"

	"go.uber.org/zap"
)

func (s *Service) GetFeeSetting(ctx context.Context, name string) (*models.FeeSetting, error) {
	var setting models.FeeSetting
	err := s.db.QueryRowContext(ctx, s.rebind(queryGetFeeSetting), name).Scan(
		&setting.Name, &setting.Amount, &setting.NetworkType, &setting.SettlementAddress, &setting.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrFeeSettingNotFound, name)
		}
		return nil, fmt.Errorf("unable to query fee setting: %w", err)
	}
	return &setting, nil
}

func (s *Service) UpsertFeeSetting(ctx context.Context, setting models.FeeSetting) error {
	if setting.UpdatedAt.IsZero() {
		setting.UpdatedAt = now()
	}

	_, err := s.db.ExecContext(ctx, s.rebind(queryUpsertFeeSetting),
		setting.Name, setting.Amount, setting.NetworkType, setting.SettlementAddress, setting.UpdatedAt)
	if err != nil {
		return fmt.Errorf("unable to upsert fee setting: %w", err)
	}

	zap.L().Info("Fee setting updated",
		zap.String("name", setting.Name),
		zap.String("amount", setting.Amount.String()),
		zap.String("network_type", setting.NetworkType))
	return nil
}
