package database

import (
	"context"
	"fmt"

	"card-settlement-go/internal/models"
	"card-settlement-go/internal/store"

	"go.uber.org/zap"
)

// SettleCardOrder commits the three settlement writes atomically: consume the
// funds lock earmarked for the order (if any), append the completed platform debit, and move the
// orderer's card status from not_ordered to ordered. Any failure rolls back all three.
func (s *Service) SettleCardOrder(ctx context.Context, params store.SettlementParams) (*models.PlatformDebit, error) {
	debit := params.Debit
	debit.Status = models.DebitCompleted
	debit.TransactionType = models.DebitCardOrder

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx)

	if params.ConsumeLockId != "" {
		result, err := tx.ExecContext(ctx, s.rebind(queryConsumeFundsLock),
			models.FundsFree, now(), params.ConsumeLockId, models.FundsLocked)
		if err != nil {
			return nil, fmt.Errorf("failed to consume funds lock: %w", err)
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("unable to get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return nil, fmt.Errorf("%w: %s", store.ErrLockNotConsumable, params.ConsumeLockId)
		}
	}

	recorded, err := s.insertPlatformDebit(ctx, tx, debit)
	if err != nil {
		return nil, err
	}

	result, err := tx.ExecContext(ctx, s.rebind(queryAdvanceCardOrderStatus),
		models.CardOrdered, now(), params.OrdererId, models.CardNotOrdered)
	if err != nil {
		return nil, fmt.Errorf("failed to update card order status: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("unable to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, fmt.Errorf("%w: user %s", store.ErrCardStatusChanged, params.OrdererId)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	zap.L().Info("Card order settled",
		zap.String("user_id", params.OrdererId),
		zap.String("debited_user_id", recorded.DebitedUserId),
		zap.String("consumed_lock_id", params.ConsumeLockId),
		zap.String("debit_id", recorded.Id),
		zap.String("transaction_hash", recorded.TransactionHash))
	return recorded, nil
}
