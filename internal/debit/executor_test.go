package debit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"card-settlement-go/internal/custody"
	"card-settlement-go/internal/tokens"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	mu         sync.Mutex
	wallets    []custody.Wallet
	submission custody.Submission
	sendErr    error
	statuses   []custody.TransferStatus
	statusErr  error
	sent       []custody.TransferRequest
	polls      int
}

func (f *fakeProvider) GetWallets(context.Context, string, string) ([]custody.Wallet, error) {
	return f.wallets, nil
}

func (f *fakeProvider) SendTransaction(_ context.Context, req custody.TransferRequest) (custody.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, req)
	return f.submission, f.sendErr
}

func (f *fakeProvider) TransferStatus(context.Context, string, string) (custody.TransferStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if f.statusErr != nil {
		return custody.TransferStatus{}, f.statusErr
	}
	if len(f.statuses) == 0 {
		return custody.TransferStatus{State: custody.TransferPending}, nil
	}
	status := f.statuses[0]
	if len(f.statuses) > 1 {
		f.statuses = f.statuses[1:]
	}
	return status, nil
}

type fakeAllowances struct {
	values []decimal.Decimal
	calls  int
}

func (f *fakeAllowances) Allowance(context.Context, tokens.Token, string, string) (decimal.Decimal, error) {
	v := f.values[min(f.calls, len(f.values)-1)]
	f.calls++
	return v, nil
}

func testRegistry(t *testing.T) *tokens.Registry {
	t.Helper()
	registry, err := tokens.New(
		[]tokens.Network{{Name: "Base", ChainType: "ethereum", NetworkType: "mainnet", ChainId: 8453, PrimeNetworkId: "base", PrimeNetworkType: "mainnet"}},
		[]tokens.Token{
			{Symbol: "USDC", Network: "Base", NetworkType: "mainnet", Decimals: 6, TokenAddress: "0xusdc"},
			{Symbol: "EURC", Network: "Base", NetworkType: "mainnet", Decimals: 6, TokenAddress: "0xeurc", GatewayAddress: "0x00000000000000000000000000000000000000bb"},
		},
	)
	require.NoError(t, err)
	return registry
}

func request(symbol string) Request {
	return Request{
		PayerId:        "payer",
		Symbol:         symbol,
		NetworkType:    "mainnet",
		ChainType:      "ethereum",
		Network:        "Base",
		Amount:         decimal.NewFromInt(50),
		Recipient:      "0xsettlement",
		IdempotencyKey: "key-1",
	}
}

func payerWallet() []custody.Wallet {
	return []custody.Wallet{{Id: "prime-1", UserId: "payer", Address: "0x00000000000000000000000000000000000000aa"}}
}

func TestExecute_ConfirmsAfterPending(t *testing.T) {
	provider := &fakeProvider{
		wallets:    payerWallet(),
		submission: custody.Submission{Reference: "key-1"},
		statuses: []custody.TransferStatus{
			{State: custody.TransferPending},
			{State: custody.TransferPending, Hash: "0xhash"},
			{State: custody.TransferConfirmed, Hash: "0xhash"},
		},
	}
	executor := NewExecutor(provider, testRegistry(t), nil, 5, time.Millisecond)

	receipt, err := executor.Execute(context.Background(), request("usdc"))
	require.NoError(t, err)
	assert.Equal(t, "0xhash", receipt.Hash)
	assert.Equal(t, "prime-1", receipt.WalletId)
	assert.Equal(t, 3, provider.polls)

	require.Len(t, provider.sent, 1)
	sent := provider.sent[0]
	assert.Equal(t, "USDC", sent.Symbol)
	assert.Equal(t, int64(8453), sent.ChainId)
	assert.Equal(t, "base", sent.NetworkId)
	assert.Equal(t, "key-1", sent.IdempotencyKey)
}

func TestExecute_WalletNotFoundBeforeSubmit(t *testing.T) {
	provider := &fakeProvider{}
	executor := NewExecutor(provider, testRegistry(t), nil, 5, time.Millisecond)

	_, err := executor.Execute(context.Background(), request("USDC"))
	assert.ErrorIs(t, err, ErrWalletNotFound)
	assert.Empty(t, provider.sent)
}

func TestExecute_UnsupportedToken(t *testing.T) {
	provider := &fakeProvider{wallets: payerWallet()}
	executor := NewExecutor(provider, testRegistry(t), nil, 5, time.Millisecond)

	_, err := executor.Execute(context.Background(), request("DOGE"))
	assert.ErrorIs(t, err, ErrUnsupportedToken)
	assert.Empty(t, provider.sent)
}

func TestExecute_EmptyHash(t *testing.T) {
	t.Run("empty submission", func(t *testing.T) {
		provider := &fakeProvider{wallets: payerWallet()}
		executor := NewExecutor(provider, testRegistry(t), nil, 5, time.Millisecond)

		receipt, err := executor.Execute(context.Background(), request("USDC"))
		assert.ErrorIs(t, err, ErrEmptyHash)
		assert.Empty(t, receipt.Hash)
	})

	t.Run("confirmed without hash", func(t *testing.T) {
		provider := &fakeProvider{
			wallets:    payerWallet(),
			submission: custody.Submission{Reference: "key-1"},
			statuses:   []custody.TransferStatus{{State: custody.TransferConfirmed}},
		}
		executor := NewExecutor(provider, testRegistry(t), nil, 5, time.Millisecond)

		_, err := executor.Execute(context.Background(), request("USDC"))
		assert.ErrorIs(t, err, ErrEmptyHash)
		assert.Equal(t, 1, provider.polls)
	})
}

func TestExecute_HashOnSubmission(t *testing.T) {
	provider := &fakeProvider{wallets: payerWallet(), submission: custody.Submission{Hash: "0xdirect"}}
	executor := NewExecutor(provider, testRegistry(t), nil, 5, time.Millisecond)

	receipt, err := executor.Execute(context.Background(), request("USDC"))
	require.NoError(t, err)
	assert.Equal(t, "0xdirect", receipt.Hash)
	assert.Zero(t, provider.polls)
}

func TestExecute_UnconfirmedAfterAttempts(t *testing.T) {
	provider := &fakeProvider{
		wallets:    payerWallet(),
		submission: custody.Submission{Reference: "key-1"},
	}
	executor := NewExecutor(provider, testRegistry(t), nil, 5, time.Millisecond)

	_, err := executor.Execute(context.Background(), request("USDC"))
	assert.ErrorIs(t, err, ErrUnconfirmed)
	assert.Equal(t, 5, provider.polls)
}

func TestExecute_ProviderErrorsAreRetried(t *testing.T) {
	provider := &fakeProvider{
		wallets:    payerWallet(),
		submission: custody.Submission{Reference: "key-1"},
		statusErr:  &custody.ProviderError{Status: 503, Message: "unavailable"},
	}
	executor := NewExecutor(provider, testRegistry(t), nil, 3, time.Millisecond)

	_, err := executor.Execute(context.Background(), request("USDC"))
	assert.ErrorIs(t, err, ErrUnconfirmed)
	var providerErr *custody.ProviderError
	assert.ErrorAs(t, err, &providerErr)
	assert.Equal(t, 3, provider.polls)
}

func TestExecute_TransferFailedKeepsHash(t *testing.T) {
	provider := &fakeProvider{
		wallets:    payerWallet(),
		submission: custody.Submission{Reference: "key-1"},
		statuses:   []custody.TransferStatus{{State: custody.TransferFailed, Hash: "0xreverted"}},
	}
	executor := NewExecutor(provider, testRegistry(t), nil, 5, time.Millisecond)

	receipt, err := executor.Execute(context.Background(), request("USDC"))
	assert.ErrorIs(t, err, ErrTransferFailed)
	assert.Equal(t, "0xreverted", receipt.Hash)
	assert.Equal(t, 1, provider.polls)
}

func TestExecute_SubmitFailure(t *testing.T) {
	provider := &fakeProvider{
		wallets: payerWallet(),
		sendErr: &custody.ProviderError{Status: 400, Message: "insufficient gas"},
	}
	executor := NewExecutor(provider, testRegistry(t), nil, 5, time.Millisecond)

	_, err := executor.Execute(context.Background(), request("USDC"))
	var providerErr *custody.ProviderError
	require.ErrorAs(t, err, &providerErr)
	assert.Equal(t, 400, providerErr.Status)
	assert.Zero(t, provider.polls)
}

func TestExecute_GatewayAllowance(t *testing.T) {
	t.Run("allowance arrives", func(t *testing.T) {
		provider := &fakeProvider{wallets: payerWallet(), submission: custody.Submission{Hash: "0xhash"}}
		allowances := &fakeAllowances{values: []decimal.Decimal{decimal.Zero, decimal.NewFromInt(100)}}
		executor := NewExecutor(provider, testRegistry(t), allowances, 5, time.Millisecond)

		_, err := executor.Execute(context.Background(), request("EURC"))
		require.NoError(t, err)
		assert.Equal(t, 2, allowances.calls)
	})

	t.Run("allowance never sufficient", func(t *testing.T) {
		provider := &fakeProvider{wallets: payerWallet(), submission: custody.Submission{Hash: "0xhash"}}
		allowances := &fakeAllowances{values: []decimal.Decimal{decimal.NewFromInt(10)}}
		executor := NewExecutor(provider, testRegistry(t), allowances, 5, time.Millisecond)

		_, err := executor.Execute(context.Background(), request("EURC"))
		assert.ErrorIs(t, err, ErrInsufficientAllowance)
		assert.Equal(t, 5, allowances.calls)
		assert.Empty(t, provider.sent)
	})
}

func TestExecute_CancelledContext(t *testing.T) {
	provider := &fakeProvider{
		wallets:    payerWallet(),
		submission: custody.Submission{Reference: "key-1"},
	}
	executor := NewExecutor(provider, testRegistry(t), nil, 5, time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := executor.Execute(ctx, request("USDC"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrTransferFailed))
}
