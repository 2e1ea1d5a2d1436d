// Package debit moves a fee from a payer's custodial wallet to the settlement
// address and reports the resulting on-chain transaction hash.
package debit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"card-settlement-go/internal/custody"
	"card-settlement-go/internal/tokens"

	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrUnsupportedToken      = errors.New("token not supported on network")
	ErrWalletNotFound        = errors.New("no wallet found for chain type")
	ErrInsufficientAllowance = errors.New("gateway allowance below debit amount")
	ErrEmptyHash             = errors.New("custody provider returned no transaction hash")
	ErrUnconfirmed           = errors.New("transfer not confirmed")
	ErrTransferFailed        = errors.New("transfer failed on chain")
)

var errPending = errors.New("transfer pending")

type AllowanceReader interface {
	Allowance(ctx context.Context, token tokens.Token, owner, spender string) (decimal.Decimal, error)
}

// Request debits Amount of Symbol from PayerId's wallet to Recipient
type Request struct {
	PayerId        string
	Symbol         string
	NetworkType    string
	ChainType      string
	Network        string
	Amount         decimal.Decimal
	Recipient      string
	IdempotencyKey string
}

// Receipt identifies a submitted transfer. Hash may be set alongside ErrTransferFailed.
type Receipt struct {
	Hash          string
	Reference     string
	WalletId      string
	WalletAddress string
}

type Executor struct {
	provider   custody.Provider
	registry   *tokens.Registry
	allowances AllowanceReader
	attempts   int
	interval   time.Duration
}

// NewExecutor polls allowance and confirmation up to attempts times, waiting
// interval times the attempt number between polls.
func NewExecutor(provider custody.Provider, registry *tokens.Registry, allowances AllowanceReader, attempts int, interval time.Duration) *Executor {
	if attempts < 1 {
		attempts = 1
	}
	if interval <= 0 {
		interval = time.Millisecond
	}
	return &Executor{
		provider:   provider,
		registry:   registry,
		allowances: allowances,
		attempts:   attempts,
		interval:   interval,
	}
}

func (e *Executor) linearBackoff() retry.Backoff {
	var attempt int64
	next := retry.BackoffFunc(func() (time.Duration, bool) {
		attempt++
		return time.Duration(attempt) * e.interval, false
	})
	return retry.WithMaxRetries(uint64(e.attempts-1), next)
}

func (e *Executor) Execute(ctx context.Context, req Request) (Receipt, error) {
	token, ok := e.registry.Lookup(req.Symbol, req.NetworkType, req.ChainType, req.Network)
	if !ok {
		return Receipt{}, fmt.Errorf("%w: %s on %s", ErrUnsupportedToken, req.Symbol, req.Network)
	}

	wallets, err := e.provider.GetWallets(ctx, req.PayerId, req.ChainType)
	if err != nil {
		return Receipt{}, fmt.Errorf("unable to resolve payer wallet: %w", err)
	}
	if len(wallets) == 0 {
		return Receipt{}, fmt.Errorf("%w: user %s, chain %s", ErrWalletNotFound, req.PayerId, req.ChainType)
	}
	wallet := wallets[0]
	receipt := Receipt{WalletId: wallet.Id, WalletAddress: wallet.Address}

	if token.GatewayAddress != "" && e.allowances != nil {
		if err := e.awaitAllowance(ctx, token, wallet.Address, req.Amount); err != nil {
			return receipt, err
		}
	}

	network, _ := e.registry.Network(token.NetworkType, token.Network)
	submission, err := e.provider.SendTransaction(ctx, custody.TransferRequest{
		WalletId:       wallet.Id,
		Symbol:         token.Symbol,
		Amount:         req.Amount,
		Recipient:      req.Recipient,
		ChainId:        token.ChainId,
		Network:        token.Network,
		NetworkId:      network.PrimeNetworkId,
		NetworkType:    network.PrimeNetworkType,
		TokenAddress:   token.TokenAddress,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return receipt, fmt.Errorf("unable to submit transfer: %w", err)
	}
	receipt.Reference = submission.Reference

	zap.L().Info("Debit submitted",
		zap.String("payer_id", req.PayerId),
		zap.String("wallet_id", wallet.Id),
		zap.String("symbol", token.Symbol),
		zap.String("network", token.Network),
		zap.String("amount", req.Amount.String()),
		zap.String("reference", submission.Reference),
		zap.String("hash", submission.Hash))

	if submission.Reference == "" {
		if submission.Hash == "" {
			return receipt, ErrEmptyHash
		}
		receipt.Hash = submission.Hash
		return receipt, nil
	}

	status, err := e.awaitConfirmation(ctx, wallet.Id, submission.Reference)
	if status.Hash != "" {
		receipt.Hash = status.Hash
	}
	if err != nil {
		return receipt, err
	}

	zap.L().Info("Debit confirmed",
		zap.String("payer_id", req.PayerId),
		zap.String("reference", submission.Reference),
		zap.String("hash", receipt.Hash))
	return receipt, nil
}

func (e *Executor) awaitAllowance(ctx context.Context, token tokens.Token, owner string, amount decimal.Decimal) error {
	err := retry.Do(ctx, e.linearBackoff(), func(ctx context.Context) error {
		allowance, err := e.allowances.Allowance(ctx, token, owner, token.GatewayAddress)
		if err != nil {
			return retry.RetryableError(err)
		}
		if allowance.LessThan(amount) {
			return retry.RetryableError(fmt.Errorf("%w: have %s, need %s", ErrInsufficientAllowance, allowance, amount))
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientAllowance) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrInsufficientAllowance, err)
	}
	return nil
}

func (e *Executor) awaitConfirmation(ctx context.Context, walletId, reference string) (custody.TransferStatus, error) {
	var last custody.TransferStatus
	_, err := retry.DoValue(ctx, e.linearBackoff(), func(ctx context.Context) (custody.TransferStatus, error) {
		status, err := e.provider.TransferStatus(ctx, walletId, reference)
		if err != nil {
			zap.L().Warn("Transfer status poll failed",
				zap.String("reference", reference),
				zap.Error(err))
			return status, retry.RetryableError(err)
		}
		last = status

		switch status.State {
		case custody.TransferConfirmed:
			if status.Hash == "" {
				return status, ErrEmptyHash
			}
			return status, nil
		case custody.TransferFailed:
			return status, fmt.Errorf("%w: reference %s", ErrTransferFailed, reference)
		default:
			return status, retry.RetryableError(errPending)
		}
	})
	if err == nil {
		return last, nil
	}
	if errors.Is(err, ErrEmptyHash) || errors.Is(err, ErrTransferFailed) || errors.Is(err, context.Canceled) {
		return last, err
	}
	return last, fmt.Errorf("%w after %d attempts: %w", ErrUnconfirmed, e.attempts, err)
}
