package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"card-settlement-go/internal/models"
	"card-settlement-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func scanFundsLock(row rowScanner) (*models.FundsLock, error) {
	var lock models.FundsLock
	err := row.Scan(&lock.Id, &lock.UserId, &lock.SubUserId, &lock.Symbol, &lock.ChainType,
		&lock.BlockchainNetwork, &lock.AmountLocked, &lock.Status, &lock.Type, &lock.CreatedAt, &lock.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &lock, nil
}

func (s *Service) CreateFundsLock(ctx context.Context, params store.CreateFundsLockParams) (*models.FundsLock, error) {
	if !params.Amount.IsPositive() {
		return nil, fmt.Errorf("lock amount must be positive, got %s", params.Amount.String())
	}

	lockId := uuid.New().String()
	createdAt := now()

	lock, err := scanFundsLock(s.db.QueryRowContext(ctx, s.rebind(queryInsertFundsLock),
		lockId, params.UserId, nullable(params.SubUserId), params.Symbol, params.ChainType,
		params.BlockchainNetwork, params.Amount, models.FundsLocked, params.Type, createdAt, createdAt))
	if err != nil {
		zap.L().Error("Failed to insert funds lock",
			zap.String("user_id", params.UserId),
			zap.String("sub_user_id", params.SubUserId),
			zap.Error(err))
		return nil, fmt.Errorf("unable to insert funds lock: %w", err)
	}

	zap.L().Info("Funds locked",
		zap.String("lock_id", lock.Id),
		zap.String("user_id", lock.UserId),
		zap.String("sub_user_id", lock.SubUserId),
		zap.String("symbol", lock.Symbol),
		zap.String("network", lock.BlockchainNetwork),
		zap.String("amount", lock.AmountLocked.String()))
	return lock, nil
}

func (s *Service) GetFundsLock(ctx context.Context, lockId string) (*models.FundsLock, error) {
	lock, err := scanFundsLock(s.db.QueryRowContext(ctx, s.rebind(queryGetFundsLock), lockId))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrFundsLockNotFound, lockId)
		}
		return nil, fmt.Errorf("unable to query funds lock: %w", err)
	}
	return lock, nil
}

// FindActiveLocks returns LOCKED rows of lockType matching all five key dimensions exactly.
func (s *Service) FindActiveLocks(ctx context.Context, key store.FundsLockKey, lockType models.FundsLockType) ([]models.FundsLock, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(queryFindActiveLocks),
		key.UserId, key.SubUserId, key.Symbol, key.ChainType, key.BlockchainNetwork, models.FundsLocked, lockType)
	if err != nil {
		zap.L().Error("Failed to query funds locks",
			zap.String("user_id", key.UserId),
			zap.String("sub_user_id", key.SubUserId),
			zap.Error(err))
		return nil, fmt.Errorf("unable to query funds locks: %w", err)
	}
	defer closeRows(rows)

	var locks []models.FundsLock
	for rows.Next() {
		lock, err := scanFundsLock(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan funds lock row: %w", err)
		}
		locks = append(locks, *lock)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating funds lock rows: %w", err)
	}
	return locks, nil
}

// LockedTotal sums every LOCKED amount the user holds for a token on a network.
func (s *Service) LockedTotal(ctx context.Context, userId, symbol, chainType, network string) (decimal.Decimal, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(queryLockedAmounts), userId, symbol, chainType, network, models.FundsLocked)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unable to query locked amounts: %w", err)
	}
	defer closeRows(rows)

	total := decimal.Zero
	for rows.Next() {
		var amount decimal.Decimal
		if err := rows.Scan(&amount); err != nil {
			return decimal.Zero, fmt.Errorf("unable to scan locked amount: %w", err)
		}
		total = total.Add(amount)
	}

	if err := rows.Err(); err != nil {
		return decimal.Zero, fmt.Errorf("error iterating locked amounts: %w", err)
	}
	return total, nil
}
