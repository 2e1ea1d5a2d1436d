// Package fundslock reserves token amounts a main user earmarks for a
// sub-user's card order, and answers whether a reservation covers a fee.
package fundslock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"card-settlement-go/internal/apperr"
	"card-settlement-go/internal/balance"
	"card-settlement-go/internal/models"
	"card-settlement-go/internal/oplock"
	"card-settlement-go/internal/store"
	"card-settlement-go/internal/tokens"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrNoLockedFunds = errors.New("no sufficient locked funds")

type Store interface {
	GetUserById(ctx context.Context, userId string) (*models.User, error)
	GetWallets(ctx context.Context, userId, chainType string) ([]models.Wallet, error)
	CreateFundsLock(ctx context.Context, params store.CreateFundsLockParams) (*models.FundsLock, error)
	FindActiveLocks(ctx context.Context, key store.FundsLockKey, lockType models.FundsLockType) ([]models.FundsLock, error)
	LockedTotal(ctx context.Context, userId, symbol, chainType, network string) (decimal.Decimal, error)
}

type BalanceReader interface {
	Balance(ctx context.Context, token tokens.Token, address string) (decimal.Decimal, error)
}

type Ledger struct {
	store       Store
	guard       *oplock.Guard
	registry    *tokens.Registry
	balances    BalanceReader
	networkType string
}

func NewLedger(s Store, guard *oplock.Guard, registry *tokens.Registry, balances BalanceReader, networkType string) *Ledger {
	return &Ledger{
		store:       s,
		guard:       guard,
		registry:    registry,
		balances:    balances,
		networkType: networkType,
	}
}

// FindActiveLocks returns the LOCKED reservations for the exact tuple. An
// empty subUserId selects the locker's own reservations.
func (l *Ledger) FindActiveLocks(ctx context.Context, parentUserId, subUserId, symbol, chainType, network string) ([]models.FundsLock, error) {
	lockType := models.LockMainUserCardOrder
	if subUserId != "" {
		lockType = models.LockSubUserCardOrder
	}

	return l.store.FindActiveLocks(ctx, store.FundsLockKey{
		UserId:            parentUserId,
		SubUserId:         subUserId,
		Symbol:            strings.ToUpper(strings.TrimSpace(symbol)),
		ChainType:         chainType,
		BlockchainNetwork: network,
	}, lockType)
}

// HasSufficientLock reports whether any lock covers required. Equality counts.
func HasSufficientLock(locks []models.FundsLock, required decimal.Decimal) bool {
	for _, lock := range locks {
		if lock.AmountLocked.GreaterThanOrEqual(required) {
			return true
		}
	}
	return false
}

// SelectLock picks the smallest sufficient lock, oldest first on ties
func SelectLock(locks []models.FundsLock, required decimal.Decimal) (models.FundsLock, error) {
	var candidates []models.FundsLock
	for _, lock := range locks {
		if lock.Status == models.FundsLocked && lock.AmountLocked.GreaterThanOrEqual(required) {
			candidates = append(candidates, lock)
		}
	}
	if len(candidates) == 0 {
		return models.FundsLock{}, fmt.Errorf("%w: %d locks, none covering %s", ErrNoLockedFunds, len(locks), required)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if !candidates[i].AmountLocked.Equal(candidates[j].AmountLocked) {
			return candidates[i].AmountLocked.LessThan(candidates[j].AmountLocked)
		}
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})
	return candidates[0], nil
}

// LockRequest reserves Amount of a token held by UserId. SubUserId, when set,
// earmarks the reservation for that sub-user's card order.
type LockRequest struct {
	UserId            string
	SubUserId         string
	Symbol            string
	ChainType         string
	BlockchainNetwork string
	Amount            decimal.Decimal
}

// Lock creates a reservation under the LOCK_FUNDS guard, refusing amounts
// above the locker's balance net of what is already LOCKED.
func (l *Ledger) Lock(ctx context.Context, req LockRequest) (*models.FundsLock, error) {
	if req.UserId == "" || req.Symbol == "" || req.ChainType == "" || req.BlockchainNetwork == "" {
		return nil, apperr.BadRequest(apperr.CodeInvalidInput, "userId, symbol, chainType and blockchainNetwork are required", nil)
	}
	if !req.Amount.IsPositive() {
		return nil, apperr.BadRequest(apperr.CodeInvalidInput, "amount must be greater than zero", nil)
	}

	user, err := l.store.GetUserById(ctx, req.UserId)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, apperr.NotFound(apperr.CodeUserNotFound, "user not found", err)
		}
		return nil, apperr.Internal(apperr.CodeInternal, "unable to load user", err)
	}
	if user.IsSubUser() {
		return nil, apperr.BadRequest(apperr.CodeNotMainUser, "only main users can lock funds", nil)
	}

	release, err := l.guard.Acquire(ctx, user.Id, oplock.OpLockFunds)
	if err != nil {
		if errors.Is(err, oplock.ErrAlreadyActive) {
			return nil, apperr.Conflict(apperr.CodeOperationInProgress, "a funds lock is already being created for this user", err)
		}
		return nil, apperr.Internal(apperr.CodeInternal, "unable to acquire operation lock", err)
	}
	defer release()

	if req.SubUserId != "" {
		sub, err := l.store.GetUserById(ctx, req.SubUserId)
		if err != nil {
			if errors.Is(err, store.ErrUserNotFound) {
				return nil, apperr.NotFound(apperr.CodeUserNotFound, "sub-user not found", err)
			}
			return nil, apperr.Internal(apperr.CodeInternal, "unable to load sub-user", err)
		}
		if sub.ParentUserId != user.Id {
			return nil, apperr.BadRequest(apperr.CodeInvalidInput, "sub-user does not belong to this user", nil)
		}
	}

	token, ok := l.registry.Lookup(req.Symbol, l.networkType, req.ChainType, req.BlockchainNetwork)
	if !ok {
		return nil, apperr.BadRequest(apperr.CodeUnsupportedToken,
			fmt.Sprintf("%s is not supported on %s (%s)", strings.ToUpper(req.Symbol), req.BlockchainNetwork, req.ChainType), nil)
	}

	wallets, err := l.store.GetWallets(ctx, user.Id, req.ChainType)
	if err != nil {
		return nil, apperr.Internal(apperr.CodeInternal, "unable to load wallets", err)
	}
	if len(wallets) == 0 {
		return nil, apperr.BadRequest(apperr.CodeWalletNotFound, fmt.Sprintf("no %s wallet found for user", req.ChainType), nil)
	}

	gross, err := l.balances.Balance(ctx, token, wallets[0].Address)
	if err != nil {
		return nil, apperr.BadRequest(apperr.CodeBalanceUnavailable, "unable to fetch wallet balance", err)
	}
	locked, err := l.store.LockedTotal(ctx, user.Id, token.Symbol, token.ChainType, token.Network)
	if err != nil {
		return nil, apperr.Internal(apperr.CodeInternal, "unable to load locked funds", err)
	}

	available := balance.Spendable(gross, locked, decimal.Zero)
	if available.LessThan(req.Amount) {
		return nil, apperr.BadRequest(apperr.CodeInsufficientBalance,
			fmt.Sprintf("insufficient balance: required %s, available %s",
				balance.FormatAmount(req.Amount), balance.FormatAmount(available)), nil)
	}

	lockType := models.LockMainUserCardOrder
	if req.SubUserId != "" {
		lockType = models.LockSubUserCardOrder
	}

	lock, err := l.store.CreateFundsLock(ctx, store.CreateFundsLockParams{
		FundsLockKey: store.FundsLockKey{
			UserId:            user.Id,
			SubUserId:         req.SubUserId,
			Symbol:            token.Symbol,
			ChainType:         token.ChainType,
			BlockchainNetwork: token.Network,
		},
		Amount: req.Amount,
		Type:   lockType,
	})
	if err != nil {
		return nil, apperr.Internal(apperr.CodeInternal, "unable to create funds lock", err)
	}

	zap.L().Info("Funds locked",
		zap.String("lock_id", lock.Id),
		zap.String("user_id", user.Id),
		zap.String("sub_user_id", req.SubUserId),
		zap.String("symbol", token.Symbol),
		zap.String("network", token.Network),
		zap.String("amount", req.Amount.String()))
	return lock, nil
}
