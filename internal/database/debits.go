package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"card-settlement-go/internal/models"
	"card-settlement-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func scanPlatformDebit(row rowScanner) (*models.PlatformDebit, error) {
	var debit models.PlatformDebit
	err := row.Scan(&debit.Id, &debit.UserId, &debit.DebitedUserId, &debit.Symbol, &debit.Amount,
		&debit.TransactionHash, &debit.ChainType, &debit.BlockchainNetwork, &debit.TransactionType,
		&debit.Status, &debit.IdempotencyKey, &debit.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &debit, nil
}

// insertPlatformDebit appends a debit record. A completed debit without a hash is refused.
func (s *Service) insertPlatformDebit(ctx context.Context, exec execer, debit models.PlatformDebit) (*models.PlatformDebit, error) {
	if debit.Status == models.DebitCompleted && debit.TransactionHash == "" {
		return nil, fmt.Errorf("refusing to record completed debit without transaction hash")
	}
	if debit.Id == "" {
		debit.Id = uuid.New().String()
	}
	if debit.CreatedAt.IsZero() {
		debit.CreatedAt = now()
	}
	if debit.TransactionType == "" {
		debit.TransactionType = models.DebitOther
	}

	_, err := exec.ExecContext(ctx, s.rebind(queryInsertPlatformDebit),
		debit.Id, debit.UserId, debit.DebitedUserId, debit.Symbol, debit.Amount, debit.TransactionHash,
		debit.ChainType, debit.BlockchainNetwork, debit.TransactionType, debit.Status,
		debit.IdempotencyKey, debit.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", store.ErrDuplicateDebit, debit.TransactionHash)
		}
		return nil, fmt.Errorf("unable to insert platform debit: %w", err)
	}
	return &debit, nil
}

// RecordPlatformDebit appends a debit outside a settlement, used for failed on-chain outcomes.
func (s *Service) RecordPlatformDebit(ctx context.Context, debit models.PlatformDebit) (*models.PlatformDebit, error) {
	recorded, err := s.insertPlatformDebit(ctx, s.db, debit)
	if err != nil {
		zap.L().Error("Failed to record platform debit",
			zap.String("user_id", debit.UserId),
			zap.String("transaction_hash", debit.TransactionHash),
			zap.Error(err))
		return nil, err
	}

	zap.L().Info("Platform debit recorded",
		zap.String("id", recorded.Id),
		zap.String("status", string(recorded.Status)),
		zap.String("transaction_hash", recorded.TransactionHash))
	return recorded, nil
}

func (s *Service) GetPlatformDebitByHash(ctx context.Context, hash string) (*models.PlatformDebit, error) {
	debit, err := scanPlatformDebit(s.db.QueryRowContext(ctx, s.rebind(queryGetPlatformDebitByHash), hash))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("unable to query platform debit: %w", err)
	}
	return debit, nil
}

func (s *Service) ListPlatformDebits(ctx context.Context, userId string) ([]models.PlatformDebit, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(queryListPlatformDebits), userId, userId)
	if err != nil {
		return nil, fmt.Errorf("unable to query platform debits: %w", err)
	}
	defer closeRows(rows)

	var debits []models.PlatformDebit
	for rows.Next() {
		debit, err := scanPlatformDebit(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan platform debit row: %w", err)
		}
		debits = append(debits, *debit)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating platform debit rows: %w", err)
	}
	return debits, nil
}

func (s *Service) CountDebits(ctx context.Context, userId string, txType models.DebitType, status models.DebitStatus) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, s.rebind(queryCountDebits), userId, txType, status).Scan(&count); err != nil {
		return 0, fmt.Errorf("unable to count platform debits: %w", err)
	}
	return count, nil
}
