package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CardOrderStatus tracks a user's physical card lifecycle
type CardOrderStatus string

const (
	CardNotOrdered CardOrderStatus = "not_ordered"
	CardOrdered    CardOrderStatus = "ordered"
	CardShipped    CardOrderStatus = "shipped"
	CardDelivered  CardOrderStatus = "delivered"
	CardActivated  CardOrderStatus = "activated"
)

// Mappable reports whether a card in this status can be mapped to a physical card
func (s CardOrderStatus) Mappable() bool {
	return s == CardOrdered || s == CardShipped || s == CardDelivered
}

type FundsLockStatus string

const (
	FundsLocked FundsLockStatus = "LOCKED"
	FundsFree   FundsLockStatus = "FREE"
)

type FundsLockType string

const (
	LockMainUserCardOrder FundsLockType = "mainuser_card_order"
	LockSubUserCardOrder  FundsLockType = "subuser_card_order"
)

type DebitStatus string

const (
	DebitCompleted DebitStatus = "completed"
	DebitFailed    DebitStatus = "failed"
)

type DebitType string

const (
	DebitCardOrder DebitType = "card_order"
	DebitOther     DebitType = "other"
)

type OperationLockStatus string

const (
	OperationActive   OperationLockStatus = "ACTIVE"
	OperationReleased OperationLockStatus = "RELEASED"
)

// User represents a platform account. ParentUserId is empty for main users.
type User struct {
	Id                 string          `db:"id"`
	Name               string          `db:"name"`
	Email              string          `db:"email"`
	ParentUserId       string          `db:"parent_user_id"`
	CardOrderStatus    CardOrderStatus `db:"card_order_status"`
	CardId             string          `db:"card_id"`
	VerificationStatus string          `db:"verification_status"`
	CreatedAt          time.Time       `db:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at"`
}

// IsSubUser reports whether the user's card order is paid by a parent
func (u User) IsSubUser() bool {
	return u.ParentUserId != ""
}

// Wallet represents a user's custodial wallet on one chain type
type Wallet struct {
	Id                string    `db:"id"`
	UserId            string    `db:"user_id"`
	ChainType         string    `db:"chain_type"`
	Address           string    `db:"address"`
	CustodyWalletId   string    `db:"custody_wallet_id"`
	AccountIdentifier string    `db:"account_identifier"`
	CreatedAt         time.Time `db:"created_at"`
}

// FundsLock reserves a token amount for a downstream operation
type FundsLock struct {
	Id                string          `db:"id" json:"id"`
	UserId            string          `db:"user_id" json:"userId"`
	SubUserId         string          `db:"sub_user_id" json:"subUserId"`
	Symbol            string          `db:"symbol" json:"symbol"`
	ChainType         string          `db:"chain_type" json:"chainType"`
	BlockchainNetwork string          `db:"blockchain_network" json:"blockchainNetwork"`
	AmountLocked      decimal.Decimal `db:"amount_locked" json:"amountLocked"`
	Status            FundsLockStatus `db:"status" json:"status"`
	Type              FundsLockType   `db:"type" json:"type"`
	CreatedAt         time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updatedAt"`
}

// PlatformDebit is an append-only record of a fee debit.
// UserId is the account the fee was charged for, DebitedUserId owns the wallet that paid.
type PlatformDebit struct {
	Id                string          `db:"id"`
	UserId            string          `db:"user_id"`
	DebitedUserId     string          `db:"debited_user_id"`
	Symbol            string          `db:"symbol"`
	Amount            decimal.Decimal `db:"amount"`
	TransactionHash   string          `db:"transaction_hash"`
	ChainType         string          `db:"chain_type"`
	BlockchainNetwork string          `db:"blockchain_network"`
	TransactionType   DebitType       `db:"transaction_type"`
	Status            DebitStatus     `db:"status"`
	IdempotencyKey    string          `db:"idempotency_key"`
	CreatedAt         time.Time       `db:"created_at"`
}

// OperationLock marks an in-flight sensitive operation for a user
type OperationLock struct {
	Id            string              `db:"id"`
	OperationName string              `db:"operation_name"`
	UserId        string              `db:"user_id"`
	Status        OperationLockStatus `db:"status"`
	CreatedAt     time.Time           `db:"created_at"`
	UpdatedAt     time.Time           `db:"updated_at"`
}

// FeeSetting is a run-time fee override keyed by operation name
type FeeSetting struct {
	Name              string          `db:"name"`
	Amount            decimal.Decimal `db:"amount"`
	NetworkType       string          `db:"network_type"`
	SettlementAddress string          `db:"settlement_address"`
	UpdatedAt         time.Time       `db:"updated_at"`
}
