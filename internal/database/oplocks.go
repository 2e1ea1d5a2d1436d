package database

import (
	"context"
	"fmt"
	"time"

	"card-settlement-go/internal/models"
	"card-settlement-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AcquireOperationLock inserts an ACTIVE lock row. The partial unique index on
// (operation_name, user_id) WHERE status='ACTIVE' rejects a second holder across
// all instances. ACTIVE rows older than staleAfter are released first.
func (s *Service) AcquireOperationLock(ctx context.Context, userId, operation string, staleAfter time.Duration) (*models.OperationLock, error) {
	acquiredAt := now()

	if staleAfter > 0 {
		result, err := s.db.ExecContext(ctx, s.rebind(queryReleaseStaleOperationLocks),
			models.OperationReleased, acquiredAt, operation, userId, models.OperationActive, acquiredAt.Add(-staleAfter))
		if err != nil {
			return nil, fmt.Errorf("failed to release stale operation locks: %w", err)
		}
		if released, err := result.RowsAffected(); err == nil && released > 0 {
			zap.L().Warn("Released stale operation lock",
				zap.String("operation", operation),
				zap.String("user_id", userId),
				zap.Duration("stale_after", staleAfter))
		}
	}

	lock := &models.OperationLock{
		Id:            uuid.New().String(),
		OperationName: operation,
		UserId:        userId,
		Status:        models.OperationActive,
		CreatedAt:     acquiredAt,
		UpdatedAt:     acquiredAt,
	}

	_, err := s.db.ExecContext(ctx, s.rebind(queryInsertOperationLock),
		lock.Id, lock.OperationName, lock.UserId, lock.Status, lock.CreatedAt, lock.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s for user %s", store.ErrOperationActive, operation, userId)
		}
		return nil, fmt.Errorf("failed to insert operation lock: %w", err)
	}

	zap.L().Debug("Operation lock acquired",
		zap.String("lock_id", lock.Id),
		zap.String("operation", operation),
		zap.String("user_id", userId))
	return lock, nil
}

func (s *Service) ReleaseOperationLock(ctx context.Context, lockId string) error {
	result, err := s.db.ExecContext(ctx, s.rebind(queryReleaseOperationLock),
		models.OperationReleased, now(), lockId, models.OperationActive)
	if err != nil {
		return fmt.Errorf("failed to release operation lock: %w", err)
	}

	if rowsAffected, err := result.RowsAffected(); err == nil && rowsAffected == 0 {
		zap.L().Warn("Operation lock was not active on release", zap.String("lock_id", lockId))
	}

	zap.L().Debug("Operation lock released", zap.String("lock_id", lockId))
	return nil
}
