package prime

import (
	"context"
	"fmt"
	"time"

	"card-settlement-go/internal/custody"
	"card-settlement-go/internal/models"

	"go.uber.org/zap"
)

const (
	statusDone      = "TRANSACTION_DONE"
	statusCancelled = "TRANSACTION_CANCELLED"
	statusRejected  = "TRANSACTION_REJECTED"
	statusFailed    = "TRANSACTION_FAILED"
	statusExpired   = "TRANSACTION_EXPIRED"
)

// Client is the slice of the Prime API the custody adapter needs
type Client interface {
	CreateWithdrawal(ctx context.Context, params CreateWithdrawalParams) (*models.Withdrawal, error)
	ListWalletTransactions(ctx context.Context, portfolioId, walletId string, startTime time.Time) ([]models.PrimeTransaction, error)
}

type WalletStore interface {
	GetWallets(ctx context.Context, userId, chainType string) ([]models.Wallet, error)
}

// Custody drives card order debits through Prime wallet withdrawals.
// Wallets are resolved from the local address book, transfers are tracked by idempotency key.
type Custody struct {
	client      Client
	wallets     WalletStore
	portfolioId string
	lookback    time.Duration
}

var _ custody.Provider = (*Custody)(nil)

func NewCustody(c Client, wallets WalletStore, portfolioId string, lookback time.Duration) *Custody {
	if lookback <= 0 {
		lookback = time.Hour
	}
	return &Custody{client: c, wallets: wallets, portfolioId: portfolioId, lookback: lookback}
}

func (c *Custody) GetWallets(ctx context.Context, userId, chainType string) ([]custody.Wallet, error) {
	stored, err := c.wallets.GetWallets(ctx, userId, chainType)
	if err != nil {
		return nil, fmt.Errorf("unable to load wallets: %w", err)
	}

	result := make([]custody.Wallet, 0, len(stored))
	for _, w := range stored {
		if w.CustodyWalletId == "" {
			zap.L().Warn("Wallet has no Prime wallet id, skipping",
				zap.String("wallet_id", w.Id),
				zap.String("user_id", userId))
			continue
		}
		result = append(result, custody.Wallet{Id: w.CustodyWalletId, UserId: w.UserId, Address: w.Address})
	}
	return result, nil
}

func (c *Custody) SendTransaction(ctx context.Context, req custody.TransferRequest) (custody.Submission, error) {
	withdrawal, err := c.client.CreateWithdrawal(ctx, CreateWithdrawalParams{
		PortfolioId:        c.portfolioId,
		WalletId:           req.WalletId,
		DestinationAddress: req.Recipient,
		Amount:             req.Amount.String(),
		Symbol:             req.Symbol,
		NetworkId:          req.NetworkId,
		NetworkType:        req.NetworkType,
		IdempotencyKey:     req.IdempotencyKey,
	})
	if err != nil {
		return custody.Submission{}, &custody.ProviderError{Message: "withdrawal rejected by Prime", Err: err}
	}

	return custody.Submission{Reference: withdrawal.IdempotencyKey}, nil
}

// TransferStatus finds the withdrawal carrying reference as its idempotency key.
// A withdrawal not yet listed is pending.
func (c *Custody) TransferStatus(ctx context.Context, walletId, reference string) (custody.TransferStatus, error) {
	since := time.Now().UTC().Add(-c.lookback)

	txns, err := c.client.ListWalletTransactions(ctx, c.portfolioId, walletId, since)
	if err != nil {
		return custody.TransferStatus{}, &custody.ProviderError{Message: "unable to list Prime wallet transactions", Err: err}
	}

	for _, tx := range txns {
		if tx.IdempotencyKey != reference {
			continue
		}
		status := custody.TransferStatus{State: mapStatus(tx.Status), Hash: tx.TransactionId}
		zap.L().Debug("Prime withdrawal status",
			zap.String("transaction_id", tx.Id),
			zap.String("status", tx.Status),
			zap.String("hash", tx.TransactionId))
		return status, nil
	}

	return custody.TransferStatus{State: custody.TransferPending}, nil
}

func mapStatus(status string) custody.TransferState {
	switch status {
	case statusDone:
		return custody.TransferConfirmed
	case statusCancelled, statusRejected, statusFailed, statusExpired:
		return custody.TransferFailed
	default:
		return custody.TransferPending
	}
}
