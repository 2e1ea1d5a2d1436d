package balance

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"card-settlement-go/internal/models"
	"card-settlement-go/internal/tokens"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	UnsupportedCombination = "Unsupported combination"
	ErrorFetchingBalance   = "Error fetching balance"
)

var (
	ErrUnsupported    = errors.New("unsupported token/network combination")
	ErrInvalidAddress = errors.New("invalid wallet address")
)

var (
	balanceOfSelector = []byte{0x70, 0xa0, 0x82, 0x31}
	allowanceSelector = []byte{0xdd, 0x62, 0xed, 0x3e}
)

// ChainReader is the subset of ethclient.Client the oracle reads through
type ChainReader interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Dialer opens a reader for a network
type Dialer func(ctx context.Context, network tokens.Network) (ChainReader, error)

// DialRPC connects to the network's configured JSON-RPC endpoint
func DialRPC(ctx context.Context, network tokens.Network) (ChainReader, error) {
	if network.RpcUrl == "" {
		return nil, fmt.Errorf("network %s has no rpc_url", network.Name)
	}
	return ethclient.DialContext(ctx, network.RpcUrl)
}

// LockedTotaler reports the amount a user currently has LOCKED for a token
type LockedTotaler interface {
	LockedTotal(ctx context.Context, userId, symbol, chainType, network string) (decimal.Decimal, error)
}

// Query selects the (symbol, network) pairs to read for one address
type Query struct {
	Symbols     []string
	Address     string
	ChainType   string
	Networks    []string
	NetworkType string

	// NetOfLocksFor, when set, subtracts that user's LOCKED total from each balance
	NetOfLocksFor string
}

type Oracle struct {
	registry *tokens.Registry
	dial     Dialer
	locks    LockedTotaler
	attempts int
	interval time.Duration

	mu      sync.Mutex
	readers map[string]ChainReader
}

type Option func(*Oracle)

func WithLockedTotals(locks LockedTotaler) Option {
	return func(o *Oracle) { o.locks = locks }
}

// WithRetry bounds each read to attempts tries spaced by interval
func WithRetry(attempts int, interval time.Duration) Option {
	return func(o *Oracle) {
		o.attempts = attempts
		o.interval = interval
	}
}

func NewOracle(registry *tokens.Registry, dial Dialer, opts ...Option) *Oracle {
	o := &Oracle{
		registry: registry,
		dial:     dial,
		attempts: 3,
		interval: 500 * time.Millisecond,
		readers:  make(map[string]ChainReader),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.attempts < 1 {
		o.attempts = 1
	}
	if o.interval <= 0 {
		o.interval = time.Millisecond
	}
	return o
}

// ParseSymbols accepts single symbols and comma lists alike, returning
// upper-cased, de-duplicated symbols in first-seen order.
func ParseSymbols(values ...string) []string {
	seen := make(map[string]bool)
	var symbols []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			symbol := strings.ToUpper(strings.TrimSpace(part))
			if symbol == "" || seen[symbol] {
				continue
			}
			seen[symbol] = true
			symbols = append(symbols, symbol)
		}
	}
	return symbols
}

// Balances resolves every (symbol, network) pair independently. A pair that
// cannot be resolved carries a sentinel string instead of aborting the query.
func (o *Oracle) Balances(ctx context.Context, q Query) (models.Balances, error) {
	if !common.IsHexAddress(q.Address) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, q.Address)
	}
	symbols := ParseSymbols(q.Symbols...)
	if len(symbols) == 0 {
		return nil, errors.New("at least one symbol is required")
	}
	if len(q.Networks) == 0 {
		return nil, errors.New("at least one network is required")
	}

	result := make(models.Balances, len(symbols))
	for _, symbol := range symbols {
		result[symbol] = make(map[string]string, len(q.Networks))
		for _, network := range q.Networks {
			token, ok := o.registry.Lookup(symbol, q.NetworkType, q.ChainType, network)
			if !ok || token.ChainType != tokens.ChainTypeEthereum {
				result[symbol][network] = UnsupportedCombination
				continue
			}

			amount, err := o.Balance(ctx, token, q.Address)
			if err == nil && q.NetOfLocksFor != "" && o.locks != nil {
				var locked decimal.Decimal
				locked, err = o.locks.LockedTotal(ctx, q.NetOfLocksFor, token.Symbol, token.ChainType, token.Network)
				amount = Spendable(amount, locked, decimal.Zero)
			}
			if err != nil {
				zap.L().Warn("Balance read failed",
					zap.String("symbol", symbol),
					zap.String("network", network),
					zap.String("address", q.Address),
					zap.Error(err))
				result[symbol][network] = ErrorFetchingBalance
				continue
			}
			result[symbol][network] = amount.String()
		}
	}
	return result, nil
}

// Balance reads the gross balance of address for one token deployment
func (o *Oracle) Balance(ctx context.Context, token tokens.Token, address string) (decimal.Decimal, error) {
	if !common.IsHexAddress(address) {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	owner := common.HexToAddress(address)

	raw, err := o.read(ctx, token, func(ctx context.Context, reader ChainReader) (*big.Int, error) {
		if token.Native() {
			return reader.BalanceAt(ctx, owner, nil)
		}
		return callUint256(ctx, reader, token.TokenAddress, balanceOfSelector, owner)
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("unable to read %s balance on %s: %w", token.Symbol, token.Network, err)
	}
	return decimal.NewFromBigInt(raw, -token.Decimals), nil
}

// Allowance reads the ERC-20 allowance owner has granted spender
func (o *Oracle) Allowance(ctx context.Context, token tokens.Token, owner, spender string) (decimal.Decimal, error) {
	if token.Native() {
		return decimal.Zero, fmt.Errorf("%w: %s has no allowance on %s", ErrUnsupported, token.Symbol, token.Network)
	}
	if !common.IsHexAddress(owner) || !common.IsHexAddress(spender) {
		return decimal.Zero, fmt.Errorf("%w: owner %q spender %q", ErrInvalidAddress, owner, spender)
	}

	raw, err := o.read(ctx, token, func(ctx context.Context, reader ChainReader) (*big.Int, error) {
		return callUint256(ctx, reader, token.TokenAddress, allowanceSelector,
			common.HexToAddress(owner), common.HexToAddress(spender))
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("unable to read %s allowance on %s: %w", token.Symbol, token.Network, err)
	}
	return decimal.NewFromBigInt(raw, -token.Decimals), nil
}

func (o *Oracle) read(ctx context.Context, token tokens.Token, fn func(context.Context, ChainReader) (*big.Int, error)) (*big.Int, error) {
	reader, err := o.reader(ctx, token)
	if err != nil {
		return nil, err
	}

	backoff := retry.WithMaxRetries(uint64(o.attempts-1), retry.NewConstant(o.interval))
	return retry.DoValue(ctx, backoff, func(ctx context.Context) (*big.Int, error) {
		value, err := fn(ctx, reader)
		if err != nil {
			return nil, retry.RetryableError(err)
		}
		return value, nil
	})
}

func (o *Oracle) reader(ctx context.Context, token tokens.Token) (ChainReader, error) {
	network, ok := o.registry.Network(token.NetworkType, token.Network)
	if !ok {
		return nil, fmt.Errorf("%w: network %s", ErrUnsupported, token.Network)
	}
	key := network.NetworkType + "|" + network.Name

	o.mu.Lock()
	reader, ok := o.readers[key]
	o.mu.Unlock()
	if ok {
		return reader, nil
	}

	reader, err := o.dial(ctx, network)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to %s: %w", network.Name, err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if existing, ok := o.readers[key]; ok {
		return existing, nil
	}
	o.readers[key] = reader
	return reader, nil
}

func callUint256(ctx context.Context, reader ChainReader, contract string, selector []byte, args ...common.Address) (*big.Int, error) {
	data := make([]byte, 0, len(selector)+32*len(args))
	data = append(data, selector...)
	for _, arg := range args {
		data = append(data, common.LeftPadBytes(arg.Bytes(), 32)...)
	}

	to := common.HexToAddress(contract)
	out, err := reader.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	if len(out) < 32 {
		return nil, fmt.Errorf("short uint256 response from %s: %d bytes", contract, len(out))
	}
	return new(big.Int).SetBytes(out[:32]), nil
}

// Spendable nets a gross balance against LOCKED funds, adding back the amount
// reserved for the operation being paid. The result is never negative.
func Spendable(gross, locked, reserved decimal.Decimal) decimal.Decimal {
	spendable := gross.Sub(locked).Add(reserved)
	if spendable.IsNegative() {
		return decimal.Zero
	}
	return spendable
}

// FormatAmount renders an amount with at least two decimal places
func FormatAmount(d decimal.Decimal) string {
	s := d.String()
	if dot := strings.IndexByte(s, '.'); dot < 0 || len(s)-dot-1 < 2 {
		return d.StringFixed(2)
	}
	return s
}
