// Package custody defines the wallet custody boundary the debit executor drives.
package custody

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// TransferState is the provider-neutral lifecycle of a submitted transfer
type TransferState string

const (
	TransferPending   TransferState = "pending"
	TransferConfirmed TransferState = "confirmed"
	TransferFailed    TransferState = "failed"
)

// Wallet is a custodial wallet able to send on a chain type
type Wallet struct {
	Id      string
	UserId  string
	Address string
}

// TransferRequest moves Amount of a token out of WalletId to Recipient
type TransferRequest struct {
	WalletId       string
	Symbol         string
	Amount         decimal.Decimal
	Recipient      string
	ChainId        int64
	Network        string
	NetworkId      string
	NetworkType    string
	TokenAddress   string
	IdempotencyKey string
}

// Submission is the provider's acknowledgement. Either field may be empty
// until the transfer is broadcast, but not both.
type Submission struct {
	Reference string
	Hash      string
}

type TransferStatus struct {
	State TransferState
	Hash  string
}

type Provider interface {
	GetWallets(ctx context.Context, userId, chainType string) ([]Wallet, error)
	SendTransaction(ctx context.Context, req TransferRequest) (Submission, error)
	TransferStatus(ctx context.Context, walletId, reference string) (TransferStatus, error)
}

// ProviderError is a failure reported by the custody provider itself
type ProviderError struct {
	Status  int
	Message string
	Err     error
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("custody provider error (status %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("custody provider error: %s", e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
