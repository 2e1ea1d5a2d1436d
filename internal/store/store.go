package store

import (
	"context"
	"errors"
	"time"

	"card-settlement-go/internal/models"

	"github.com/shopspring/decimal"
)

// Sentinel errors shared across all backend implementations.
var (
	ErrUserNotFound           = errors.New("user not found")
	ErrDuplicateUser          = errors.New("user already exists")
	ErrInvalidParent          = errors.New("parent must be an existing main user")
	ErrFundsLockNotFound      = errors.New("funds lock not found")
	ErrLockNotConsumable      = errors.New("funds lock is no longer LOCKED")
	ErrCardStatusChanged      = errors.New("card order status changed")
	ErrCardAlreadyMapped      = errors.New("card already mapped to another user")
	ErrDuplicateDebit         = errors.New("platform debit already recorded for transaction hash")
	ErrOperationActive        = errors.New("operation already active for user")
	ErrFeeSettingNotFound     = errors.New("fee setting not found")
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// CreateUserParams contains the parameters for creating a user.
// ParentUserId is empty for main users.
type CreateUserParams struct {
	Name               string
	Email              string
	ParentUserId       string
	VerificationStatus string
}

// StoreWalletParams contains the parameters for storing a custodial wallet.
type StoreWalletParams struct {
	UserId            string
	ChainType         string
	Address           string
	CustodyWalletId   string
	AccountIdentifier string
}

// FundsLockKey identifies the exact tuple a sub-user lock is matched on.
type FundsLockKey struct {
	UserId            string
	SubUserId         string
	Symbol            string
	ChainType         string
	BlockchainNetwork string
}

// CreateFundsLockParams contains the parameters for reserving funds.
type CreateFundsLockParams struct {
	FundsLockKey
	Amount decimal.Decimal
	Type   models.FundsLockType
}

// SettlementParams is everything the settlement transaction writes.
// ConsumeLockId is empty for main-user orders.
type SettlementParams struct {
	OrdererId     string
	ConsumeLockId string
	Debit         models.PlatformDebit
}

// MapCardParams links a physical card to a user.
type MapCardParams struct {
	UserId string
	CardId string
}

type UserStore interface {
	CreateUser(ctx context.Context, params CreateUserParams) (*models.User, error)
	GetUserById(ctx context.Context, userId string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	ListSubUsers(ctx context.Context, parentUserId string) ([]models.User, error)
	MapCard(ctx context.Context, params MapCardParams) (*models.User, error)
}

type WalletStore interface {
	StoreWallet(ctx context.Context, params StoreWalletParams) (*models.Wallet, error)
	GetWallets(ctx context.Context, userId, chainType string) ([]models.Wallet, error)
	ListCustodyWalletIds(ctx context.Context) ([]string, error)
}

type FundsLockStore interface {
	CreateFundsLock(ctx context.Context, params CreateFundsLockParams) (*models.FundsLock, error)
	GetFundsLock(ctx context.Context, lockId string) (*models.FundsLock, error)
	FindActiveLocks(ctx context.Context, key FundsLockKey, lockType models.FundsLockType) ([]models.FundsLock, error)
	LockedTotal(ctx context.Context, userId, symbol, chainType, network string) (decimal.Decimal, error)
}

type DebitStore interface {
	RecordPlatformDebit(ctx context.Context, debit models.PlatformDebit) (*models.PlatformDebit, error)
	GetPlatformDebitByHash(ctx context.Context, hash string) (*models.PlatformDebit, error)
	ListPlatformDebits(ctx context.Context, userId string) ([]models.PlatformDebit, error)
	CountDebits(ctx context.Context, userId string, txType models.DebitType, status models.DebitStatus) (int, error)
}

type SettlementStore interface {
	SettleCardOrder(ctx context.Context, params SettlementParams) (*models.PlatformDebit, error)
}

type OperationLockStore interface {
	AcquireOperationLock(ctx context.Context, userId, operation string, staleAfter time.Duration) (*models.OperationLock, error)
	ReleaseOperationLock(ctx context.Context, lockId string) error
}

type FeeStore interface {
	GetFeeSetting(ctx context.Context, name string) (*models.FeeSetting, error)
	UpsertFeeSetting(ctx context.Context, setting models.FeeSetting) error
}

// CardStore is the full persistence surface of the card settlement engine.
type CardStore interface {
	UserStore
	WalletStore
	FundsLockStore
	DebitStore
	SettlementStore
	OperationLockStore
	FeeStore
	Close()
}
