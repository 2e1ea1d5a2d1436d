package oplock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"card-settlement-go/internal/models"
	"card-settlement-go/internal/store"

	"go.uber.org/zap"
)

const (
	OpCardOrder = "CARD_ORDER"
	OpMapCard   = "MAP_CARD"
	OpLockFunds = "LOCK_FUNDS"
)

var ErrAlreadyActive = errors.New("operation already in progress")

const releaseTimeout = 5 * time.Second

type Store interface {
	AcquireOperationLock(ctx context.Context, userId, operation string, staleAfter time.Duration) (*models.OperationLock, error)
	ReleaseOperationLock(ctx context.Context, lockId string) error
}

// Guard serializes sensitive operations per (user, operation) through the
// store's active-lock unique index, so it holds across processes.
type Guard struct {
	store      Store
	staleAfter time.Duration
}

func NewGuard(s Store, staleAfter time.Duration) *Guard {
	return &Guard{store: s, staleAfter: staleAfter}
}

// Acquire takes the lock or returns ErrAlreadyActive. The returned release is
// safe to call more than once and survives cancellation of ctx.
func (g *Guard) Acquire(ctx context.Context, userId, operation string) (func(), error) {
	lock, err := g.store.AcquireOperationLock(ctx, userId, operation, g.staleAfter)
	if err != nil {
		if errors.Is(err, store.ErrOperationActive) {
			zap.L().Info("Operation already in progress",
				zap.String("operation", operation),
				zap.String("user_id", userId))
			return nil, fmt.Errorf("%w: %s for user %s", ErrAlreadyActive, operation, userId)
		}
		return nil, fmt.Errorf("failed to acquire %s lock: %w", operation, err)
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
			defer cancel()

			if err := g.store.ReleaseOperationLock(releaseCtx, lock.Id); err != nil {
				zap.L().Error("Failed to release operation lock",
					zap.String("lock_id", lock.Id),
					zap.String("operation", operation),
					zap.String("user_id", userId),
					zap.Error(err))
			}
		})
	}
	return release, nil
}

// Run executes fn while holding the lock, releasing it on every exit path
func (g *Guard) Run(ctx context.Context, userId, operation string, fn func(ctx context.Context) error) error {
	release, err := g.Acquire(ctx, userId, operation)
	if err != nil {
		return err
	}
	defer release()

	return fn(ctx)
}
