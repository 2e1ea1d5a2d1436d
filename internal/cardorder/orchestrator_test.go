package cardorder

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"card-settlement-go/internal/apperr"
	"card-settlement-go/internal/custody"
	"card-settlement-go/internal/database"
	"card-settlement-go/internal/debit"
	"card-settlement-go/internal/fees"
	"card-settlement-go/internal/fundslock"
	"card-settlement-go/internal/models"
	"card-settlement-go/internal/oplock"
	"card-settlement-go/internal/store"
	"card-settlement-go/internal/tokens"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const settlementAddress = "0x5e771e5e771e5e771e5e771e5e771e5e771e5e77"

type fakeBalances struct {
	mu     sync.Mutex
	values []decimal.Decimal
	calls  int
	onCall func(call int)
}

func balances(values ...string) *fakeBalances {
	f := &fakeBalances{}
	for _, v := range values {
		f.values = append(f.values, decimal.RequireFromString(v))
	}
	return f
}

func (f *fakeBalances) Balance(context.Context, tokens.Token, string) (decimal.Decimal, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	value := f.values[min(call, len(f.values))-1]
	hook := f.onCall
	f.mu.Unlock()

	if hook != nil {
		hook(call)
	}
	return value, nil
}

type fakeExecutor struct {
	mu       sync.Mutex
	requests []debit.Request
	receipt  debit.Receipt
	err      error
	entered  chan struct{}
	gate     chan struct{}
}

func (f *fakeExecutor) Execute(_ context.Context, req debit.Request) (debit.Receipt, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.gate != nil {
		<-f.gate
	}
	return f.receipt, f.err
}

func (f *fakeExecutor) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type fakeJournal struct {
	debits   []models.PlatformDebit
	contexts []*models.SettlementContext
}

func (f *fakeJournal) RecordDebit(ctx context.Context, d models.PlatformDebit) error {
	f.debits = append(f.debits, d)
	f.contexts = append(f.contexts, models.GetSettlementContext(ctx))
	return nil
}

type fixture struct {
	t        *testing.T
	db       *database.Service
	balances *fakeBalances
	executor *fakeExecutor
	journal  *fakeJournal
	orch     *Orchestrator
	registry *tokens.Registry
}

func newFixture(t *testing.T, b *fakeBalances) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := database.NewService(ctx, models.DatabaseConfig{
		Driver:       "sqlite3",
		Path:         filepath.Join(t.TempDir(), "orders.db"),
		MaxOpenConns: 8,
		MaxIdleConns: 2,
		PingTimeout:  time.Second,
		BusyTimeout:  5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	registry, err := tokens.New(
		[]tokens.Network{
			{Name: "Base", ChainType: "ethereum", NetworkType: "mainnet", ChainId: 8453},
			{Name: "BNB Smart Chain", ChainType: "ethereum", NetworkType: "mainnet", ChainId: 56},
		},
		[]tokens.Token{
			{Symbol: "USDC", Network: "Base", NetworkType: "mainnet", Decimals: 6, TokenAddress: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"},
			{Symbol: "USDT", Network: "BNB Smart Chain", NetworkType: "mainnet", Decimals: 18, TokenAddress: "0x55d398326f99059fF775485246999027B3197955"},
		},
	)
	require.NoError(t, err)

	f := &fixture{
		t:        t,
		db:       db,
		balances: b,
		executor: &fakeExecutor{receipt: debit.Receipt{Hash: "0xfeedbeef"}},
		journal:  &fakeJournal{},
		registry: registry,
	}
	f.orch = f.orchestrator(f.executor)
	return f
}

func (f *fixture) orchestrator(executor DebitExecutor) *Orchestrator {
	return NewOrchestrator(f.config(executor))
}

func (f *fixture) config(executor DebitExecutor) Config {
	guard := oplock.NewGuard(f.db, time.Minute)
	return Config{
		Store: f.db,
		Locks: fundslock.NewLedger(f.db, guard, f.registry, f.balances, "mainnet"),
		Guard: guard,
		Fees: fees.NewSchedule(f.db, models.CardOrderConfig{
			Fee:               decimal.NewFromInt(50),
			NetworkType:       "mainnet",
			SettlementAddress: settlementAddress,
		}),
		Registry: f.registry,
		Balances: f.balances,
		Debits:   executor,
		Journal:  f.journal,
		Timeout:  10 * time.Second,
	}
}

func (f *fixture) user(email, parentId string, withWallet bool) *models.User {
	f.t.Helper()
	ctx := context.Background()

	user, err := f.db.CreateUser(ctx, store.CreateUserParams{Name: email, Email: email, ParentUserId: parentId})
	require.NoError(f.t, err)
	if withWallet {
		_, err = f.db.StoreWallet(ctx, store.StoreWalletParams{
			UserId:          user.Id,
			ChainType:       "ethereum",
			Address:         "0x00000000000000000000000000000000000000aa",
			CustodyWalletId: "prime-" + email,
		})
		require.NoError(f.t, err)
	}
	return user
}

func (f *fixture) lock(parent, sub *models.User, amount string) *models.FundsLock {
	f.t.Helper()
	return f.createLock(parent.Id, sub.Id, amount, models.LockSubUserCardOrder)
}

// selfLock reserves funds a main user set aside for its own card
func (f *fixture) selfLock(owner *models.User, amount string) *models.FundsLock {
	f.t.Helper()
	return f.createLock(owner.Id, "", amount, models.LockMainUserCardOrder)
}

func (f *fixture) createLock(userId, subUserId, amount string, lockType models.FundsLockType) *models.FundsLock {
	f.t.Helper()
	lock, err := f.db.CreateFundsLock(context.Background(), store.CreateFundsLockParams{
		FundsLockKey: store.FundsLockKey{
			UserId:            userId,
			SubUserId:         subUserId,
			Symbol:            "USDC",
			ChainType:         "ethereum",
			BlockchainNetwork: "Base",
		},
		Amount: decimal.RequireFromString(amount),
		Type:   lockType,
	})
	require.NoError(f.t, err)
	return lock
}

func (f *fixture) cardStatus(userId string) models.CardOrderStatus {
	f.t.Helper()
	user, err := f.db.GetUserById(context.Background(), userId)
	require.NoError(f.t, err)
	return user.CardOrderStatus
}

func (f *fixture) lockStatus(lockId string) models.FundsLockStatus {
	f.t.Helper()
	lock, err := f.db.GetFundsLock(context.Background(), lockId)
	require.NoError(f.t, err)
	return lock.Status
}

func (f *fixture) debits(userId string) []models.PlatformDebit {
	f.t.Helper()
	debits, err := f.db.ListPlatformDebits(context.Background(), userId)
	require.NoError(f.t, err)
	return debits
}

func usdcOrder(userId string) models.OrderCardRequest {
	return models.OrderCardRequest{UserId: userId, Symbol: "usdc", ChainType: "ethereum", BlockchainNetwork: "Base"}
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, code), "expected %s, got %v", code, err)
}

func TestOrderCard_MainUserSuccess(t *testing.T) {
	f := newFixture(t, balances("75.25"))
	alice := f.user("alice@example.com", "", true)

	result, err := f.orch.OrderCard(context.Background(), usdcOrder(alice.Id))
	require.NoError(t, err)

	assert.Equal(t, "success", result.Status)
	assert.Equal(t, models.CardOrdered, result.CardOrderStatus)
	assert.Equal(t, "0xfeedbeef", result.TransactionHash)
	assert.Equal(t, alice.Id, result.UserId)
	assert.Equal(t, models.CardOrdered, f.cardStatus(alice.Id))

	debits := f.debits(alice.Id)
	require.Len(t, debits, 1)
	assert.Equal(t, models.DebitCompleted, debits[0].Status)
	assert.Equal(t, alice.Id, debits[0].DebitedUserId)
	assert.True(t, debits[0].Amount.Equal(decimal.NewFromInt(50)))
	assert.NotEmpty(t, debits[0].IdempotencyKey)

	require.Len(t, f.executor.requests, 1)
	req := f.executor.requests[0]
	assert.Equal(t, alice.Id, req.PayerId)
	assert.Equal(t, settlementAddress, req.Recipient)
	assert.Equal(t, "USDC", req.Symbol)

	require.Len(t, f.journal.debits, 1)
	require.NotNil(t, f.journal.contexts[0])
	assert.Equal(t, "prime-alice@example.com", f.journal.contexts[0].WalletId)
	assert.Equal(t, 2, f.balances.calls, "balance must be read again before the debit")
}

func TestOrderCard_InsufficientBalance(t *testing.T) {
	f := newFixture(t, balances("30.50"))
	alice := f.user("alice@example.com", "", true)

	_, err := f.orch.OrderCard(context.Background(), models.OrderCardRequest{
		UserId: alice.Id, Symbol: "USDT", ChainType: "ethereum", BlockchainNetwork: "BNB Smart Chain",
	})
	requireCode(t, err, apperr.CodeInsufficientBalance)
	assert.Contains(t, err.Error(), "required 50.00, available 30.50")
	assert.Equal(t, apperr.KindBadRequest, apperr.From(err).Kind)
	assert.Zero(t, f.executor.calls())
}

func TestOrderCard_RejectsAlreadyOrdered(t *testing.T) {
	for _, status := range []models.CardOrderStatus{models.CardOrdered, models.CardActivated} {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture(t, balances("100"))
			alice := f.user("alice@example.com", "", true)

			_, err := f.db.SettleCardOrder(context.Background(), store.SettlementParams{
				OrdererId: alice.Id,
				Debit:     models.PlatformDebit{UserId: alice.Id, DebitedUserId: alice.Id, Symbol: "USDC", Amount: decimal.NewFromInt(50), TransactionHash: "0xfirst"},
			})
			require.NoError(t, err)
			if status == models.CardActivated {
				_, err = f.db.MapCard(context.Background(), store.MapCardParams{UserId: alice.Id, CardId: "card-1"})
				require.NoError(t, err)
			}

			_, err = f.orch.OrderCard(context.Background(), usdcOrder(alice.Id))
			requireCode(t, err, apperr.CodeCardAlreadyOrdered)
			assert.Zero(t, f.executor.calls())
		})
	}
}

func TestOrderCard_SubUserLockSufficiency(t *testing.T) {
	t.Run("second lock qualifies", func(t *testing.T) {
		f := newFixture(t, balances("100"))
		alice := f.user("alice@example.com", "", true)
		bob := f.user("bob@example.com", alice.Id, false)
		small := f.lock(alice, bob, "40")
		large := f.lock(alice, bob, "60")

		result, err := f.orch.OrderCard(context.Background(), usdcOrder(bob.Id))
		require.NoError(t, err)
		assert.Equal(t, models.CardOrdered, result.CardOrderStatus)

		assert.Equal(t, models.FundsFree, f.lockStatus(large.Id))
		assert.Equal(t, models.FundsLocked, f.lockStatus(small.Id))
		assert.Equal(t, models.CardOrdered, f.cardStatus(bob.Id))
		assert.Equal(t, models.CardNotOrdered, f.cardStatus(alice.Id))

		debits := f.debits(bob.Id)
		require.Len(t, debits, 1)
		assert.Equal(t, alice.Id, debits[0].DebitedUserId)
		assert.Equal(t, alice.Id, f.executor.requests[0].PayerId)
	})

	t.Run("no lock qualifies", func(t *testing.T) {
		f := newFixture(t, balances("100"))
		alice := f.user("alice@example.com", "", true)
		bob := f.user("bob@example.com", alice.Id, false)
		f.lock(alice, bob, "40")
		f.lock(alice, bob, "30")

		_, err := f.orch.OrderCard(context.Background(), usdcOrder(bob.Id))
		requireCode(t, err, apperr.CodeNoLockedFunds)
		assert.Zero(t, f.executor.calls())
	})
}

func TestOrderCard_MainUserSelfLock(t *testing.T) {
	t.Run("covering self-lock is spent and consumed", func(t *testing.T) {
		f := newFixture(t, balances("75.25"))
		alice := f.user("alice@example.com", "", true)
		lock := f.selfLock(alice, "50")

		result, err := f.orch.OrderCard(context.Background(), usdcOrder(alice.Id))
		require.NoError(t, err)
		assert.Equal(t, models.CardOrdered, result.CardOrderStatus)
		assert.Equal(t, models.FundsFree, f.lockStatus(lock.Id))

		locked, err := f.db.LockedTotal(context.Background(), alice.Id, "USDC", "ethereum", "Base")
		require.NoError(t, err)
		assert.True(t, locked.IsZero(), "consumed self-lock must stop reducing the balance, got %s", locked)
	})

	t.Run("best fit self-lock is consumed", func(t *testing.T) {
		f := newFixture(t, balances("200"))
		alice := f.user("alice@example.com", "", true)
		large := f.selfLock(alice, "80")
		exact := f.selfLock(alice, "50")

		_, err := f.orch.OrderCard(context.Background(), usdcOrder(alice.Id))
		require.NoError(t, err)
		assert.Equal(t, models.FundsFree, f.lockStatus(exact.Id))
		assert.Equal(t, models.FundsLocked, f.lockStatus(large.Id))
	})

	t.Run("short self-lock stays netted out", func(t *testing.T) {
		f := newFixture(t, balances("75.25"))
		alice := f.user("alice@example.com", "", true)
		lock := f.selfLock(alice, "40")

		_, err := f.orch.OrderCard(context.Background(), usdcOrder(alice.Id))
		requireCode(t, err, apperr.CodeInsufficientBalance)
		assert.Zero(t, f.executor.calls())
		assert.Equal(t, models.FundsLocked, f.lockStatus(lock.Id))
	})

	t.Run("lock held for a sub-user is not the main user's", func(t *testing.T) {
		f := newFixture(t, balances("75.25"))
		alice := f.user("alice@example.com", "", true)
		bob := f.user("bob@example.com", alice.Id, false)
		lock := f.lock(alice, bob, "50")

		_, err := f.orch.OrderCard(context.Background(), usdcOrder(alice.Id))
		requireCode(t, err, apperr.CodeInsufficientBalance)
		assert.Equal(t, models.FundsLocked, f.lockStatus(lock.Id))
	})
}

// reparentedStore reports extra parents for users the database stores as
// main users, to model rows written outside CreateUser.
type reparentedStore struct {
	*database.Service
	parents map[string]string
}

func (s reparentedStore) GetUserById(ctx context.Context, userId string) (*models.User, error) {
	user, err := s.Service.GetUserById(ctx, userId)
	if err != nil {
		return nil, err
	}
	if parentId, ok := s.parents[userId]; ok {
		user.ParentUserId = parentId
	}
	return user, nil
}

func TestOrderCard_RejectsNestedParent(t *testing.T) {
	f := newFixture(t, balances("100"))
	root := f.user("root@example.com", "", true)
	alice := f.user("alice@example.com", "", true)
	bob := f.user("bob@example.com", alice.Id, false)
	f.lock(alice, bob, "60")

	cfg := f.config(f.executor)
	cfg.Store = reparentedStore{Service: f.db, parents: map[string]string{alice.Id: root.Id}}

	_, err := NewOrchestrator(cfg).OrderCard(context.Background(), usdcOrder(bob.Id))
	requireCode(t, err, apperr.CodeParentNotFound)
	assert.Zero(t, f.executor.calls())
	assert.Equal(t, models.CardNotOrdered, f.cardStatus(bob.Id))
}

func TestOrderCard_BalanceDrift(t *testing.T) {
	f := newFixture(t, balances("100", "40"))
	alice := f.user("alice@example.com", "", true)

	_, err := f.orch.OrderCard(context.Background(), usdcOrder(alice.Id))
	requireCode(t, err, apperr.CodeBalanceChanged)
	assert.Zero(t, f.executor.calls())
	assert.Equal(t, models.CardNotOrdered, f.cardStatus(alice.Id))
}

func TestOrderCard_FeeDrift(t *testing.T) {
	f := newFixture(t, balances("100"))
	alice := f.user("alice@example.com", "", true)
	f.balances.onCall = func(call int) {
		if call == 1 {
			require.NoError(t, f.db.UpsertFeeSetting(context.Background(), models.FeeSetting{
				Name:              fees.CardOrderFee,
				Amount:            decimal.NewFromInt(60),
				NetworkType:       "mainnet",
				SettlementAddress: settlementAddress,
			}))
		}
	}

	_, err := f.orch.OrderCard(context.Background(), usdcOrder(alice.Id))
	requireCode(t, err, apperr.CodeFeeChanged)
	assert.Zero(t, f.executor.calls())
}

func TestOrderCard_UserStatusDrift(t *testing.T) {
	f := newFixture(t, balances("100"))
	alice := f.user("alice@example.com", "", true)
	f.balances.onCall = func(call int) {
		if call == 1 {
			_, err := f.db.SettleCardOrder(context.Background(), store.SettlementParams{
				OrdererId: alice.Id,
				Debit:     models.PlatformDebit{UserId: alice.Id, DebitedUserId: alice.Id, Symbol: "USDC", Amount: decimal.NewFromInt(50), TransactionHash: "0xconcurrent"},
			})
			require.NoError(t, err)
		}
	}

	_, err := f.orch.OrderCard(context.Background(), usdcOrder(alice.Id))
	requireCode(t, err, apperr.CodeUserStatusChanged)
	assert.Zero(t, f.executor.calls())
}

func TestOrderCard_FundsLockDrift(t *testing.T) {
	f := newFixture(t, balances("100"))
	alice := f.user("alice@example.com", "", true)
	bob := f.user("bob@example.com", alice.Id, false)
	carol := f.user("carol@example.com", "", false)
	lock := f.lock(alice, bob, "60")

	f.balances.onCall = func(call int) {
		if call == 2 {
			_, err := f.db.SettleCardOrder(context.Background(), store.SettlementParams{
				OrdererId:     carol.Id,
				ConsumeLockId: lock.Id,
				Debit:         models.PlatformDebit{UserId: carol.Id, DebitedUserId: alice.Id, Symbol: "USDC", Amount: decimal.NewFromInt(50), TransactionHash: "0xelsewhere"},
			})
			require.NoError(t, err)
		}
	}

	_, err := f.orch.OrderCard(context.Background(), usdcOrder(bob.Id))
	requireCode(t, err, apperr.CodeFundsLockChanged)
	assert.Zero(t, f.executor.calls())
	assert.Equal(t, models.CardNotOrdered, f.cardStatus(bob.Id))
}

func TestOrderCard_SettlementFailureRollsBack(t *testing.T) {
	f := newFixture(t, balances("100"))
	alice := f.user("alice@example.com", "", true)
	bob := f.user("bob@example.com", alice.Id, false)
	lock := f.lock(alice, bob, "60")

	_, err := f.db.RecordPlatformDebit(context.Background(), models.PlatformDebit{
		UserId: alice.Id, DebitedUserId: alice.Id, Symbol: "USDC", Amount: decimal.NewFromInt(1),
		TransactionHash: "0xfeedbeef", Status: models.DebitCompleted,
	})
	require.NoError(t, err)

	_, err = f.orch.OrderCard(context.Background(), usdcOrder(bob.Id))
	requireCode(t, err, apperr.CodeSettlementFailed)
	assert.Equal(t, apperr.KindInternal, apperr.From(err).Kind)
	assert.Equal(t, 1, f.executor.calls())

	assert.Equal(t, models.FundsLocked, f.lockStatus(lock.Id))
	assert.Equal(t, models.CardNotOrdered, f.cardStatus(bob.Id))
	assert.Empty(t, f.debits(bob.Id))
	assert.Empty(t, f.journal.debits)
}

func TestOrderCard_EmptyHashNeverSettles(t *testing.T) {
	f := newFixture(t, balances("100"))
	alice := f.user("alice@example.com", "", true)
	f.executor.receipt = debit.Receipt{}

	_, err := f.orch.OrderCard(context.Background(), usdcOrder(alice.Id))
	requireCode(t, err, apperr.CodeDebitFailed)
	assert.Empty(t, f.debits(alice.Id))
	assert.Equal(t, models.CardNotOrdered, f.cardStatus(alice.Id))
}

func TestOrderCard_FailedTransferIsRecorded(t *testing.T) {
	f := newFixture(t, balances("100"))
	alice := f.user("alice@example.com", "", true)
	f.executor.receipt = debit.Receipt{Hash: "0xreverted"}
	f.executor.err = debit.ErrTransferFailed

	_, err := f.orch.OrderCard(context.Background(), usdcOrder(alice.Id))
	requireCode(t, err, apperr.CodeDebitFailed)

	debits := f.debits(alice.Id)
	require.Len(t, debits, 1)
	assert.Equal(t, models.DebitFailed, debits[0].Status)
	assert.Equal(t, "0xreverted", debits[0].TransactionHash)
	assert.Equal(t, models.CardNotOrdered, f.cardStatus(alice.Id))

	// A retry after a recorded failure must not reuse the failed withdrawal's key
	f.executor.receipt = debit.Receipt{Hash: "0xsecond"}
	f.executor.err = nil
	_, err = f.orch.OrderCard(context.Background(), usdcOrder(alice.Id))
	require.NoError(t, err)
	require.Len(t, f.executor.requests, 2)
	assert.NotEqual(t, f.executor.requests[0].IdempotencyKey, f.executor.requests[1].IdempotencyKey)
}

func TestOrderCard_UnconfirmedRetryReusesKey(t *testing.T) {
	f := newFixture(t, balances("100"))
	alice := f.user("alice@example.com", "", true)
	f.executor.err = debit.ErrUnconfirmed

	_, err := f.orch.OrderCard(context.Background(), usdcOrder(alice.Id))
	requireCode(t, err, apperr.CodeDebitFailed)
	assert.Empty(t, f.debits(alice.Id))

	f.executor.err = nil
	_, err = f.orch.OrderCard(context.Background(), usdcOrder(alice.Id))
	require.NoError(t, err)
	require.Len(t, f.executor.requests, 2)
	assert.Equal(t, f.executor.requests[0].IdempotencyKey, f.executor.requests[1].IdempotencyKey)
}

func TestOrderCard_ConcurrentOrdersForSameUser(t *testing.T) {
	f := newFixture(t, balances("100"))
	alice := f.user("alice@example.com", "", true)
	f.executor.entered = make(chan struct{}, 1)
	f.executor.gate = make(chan struct{})

	type outcome struct {
		result *models.OrderCardResult
		err    error
	}
	first := make(chan outcome, 1)
	go func() {
		result, err := f.orch.OrderCard(context.Background(), usdcOrder(alice.Id))
		first <- outcome{result, err}
	}()

	<-f.executor.entered

	_, err := f.orch.OrderCard(context.Background(), usdcOrder(alice.Id))
	requireCode(t, err, apperr.CodeOperationInProgress)
	assert.Equal(t, apperr.KindConflict, apperr.From(err).Kind)

	close(f.executor.gate)
	got := <-first
	require.NoError(t, got.err)
	assert.Equal(t, models.CardOrdered, got.result.CardOrderStatus)
	assert.Equal(t, 1, f.executor.calls())

	// The guard is released once the first order completes
	_, err = f.orch.OrderCard(context.Background(), usdcOrder(alice.Id))
	requireCode(t, err, apperr.CodeCardAlreadyOrdered)
}

func TestOrderCard_ValidationFailures(t *testing.T) {
	f := newFixture(t, balances("100"))
	alice := f.user("alice@example.com", "", true)
	noWallet := f.user("nowallet@example.com", "", false)
	ctx := context.Background()

	_, err := f.orch.OrderCard(ctx, models.OrderCardRequest{UserId: alice.Id})
	requireCode(t, err, apperr.CodeInvalidInput)

	_, err = f.orch.OrderCard(ctx, usdcOrder("missing-user"))
	requireCode(t, err, apperr.CodeUserNotFound)
	assert.Equal(t, apperr.KindNotFound, apperr.From(err).Kind)

	_, err = f.orch.OrderCard(ctx, models.OrderCardRequest{UserId: alice.Id, Symbol: "USDT", ChainType: "ethereum", BlockchainNetwork: "Base"})
	requireCode(t, err, apperr.CodeUnsupportedToken)

	_, err = f.orch.OrderCard(ctx, usdcOrder(noWallet.Id))
	requireCode(t, err, apperr.CodeWalletNotFound)

	require.NoError(t, f.db.UpsertFeeSetting(ctx, models.FeeSetting{
		Name: fees.CardOrderFee, Amount: decimal.Zero, NetworkType: "mainnet", SettlementAddress: settlementAddress,
	}))
	_, err = f.orch.OrderCard(ctx, usdcOrder(alice.Id))
	requireCode(t, err, apperr.CodeInvalidFeeConfig)

	assert.Zero(t, f.executor.calls())
}

type scriptedProvider struct {
	wallets []custody.Wallet
	polls   int
}

func (p *scriptedProvider) GetWallets(context.Context, string, string) ([]custody.Wallet, error) {
	return p.wallets, nil
}

func (p *scriptedProvider) SendTransaction(_ context.Context, req custody.TransferRequest) (custody.Submission, error) {
	return custody.Submission{Reference: req.IdempotencyKey}, nil
}

func (p *scriptedProvider) TransferStatus(context.Context, string, string) (custody.TransferStatus, error) {
	p.polls++
	if p.polls < 2 {
		return custody.TransferStatus{State: custody.TransferPending}, nil
	}
	return custody.TransferStatus{State: custody.TransferConfirmed, Hash: "0xconfirmed"}, nil
}

func TestOrderCard_WithDebitExecutor(t *testing.T) {
	f := newFixture(t, balances("75.25"))
	alice := f.user("alice@example.com", "", true)

	provider := &scriptedProvider{wallets: []custody.Wallet{{Id: "prime-1", Address: "0x00000000000000000000000000000000000000aa"}}}
	orch := f.orchestrator(debit.NewExecutor(provider, f.registry, nil, 5, time.Millisecond))

	result, err := orch.OrderCard(context.Background(), usdcOrder(alice.Id))
	require.NoError(t, err)
	assert.Equal(t, "0xconfirmed", result.TransactionHash)
	assert.Equal(t, 2, provider.polls)
}

func TestMapCard(t *testing.T) {
	f := newFixture(t, balances("100"))
	alice := f.user("alice@example.com", "", true)
	carol := f.user("carol@example.com", "", true)
	ctx := context.Background()

	_, err := f.orch.MapCard(ctx, models.MapCardRequest{UserId: alice.Id, CardId: "card-1"})
	requireCode(t, err, apperr.CodeCardNotMappable)

	_, err = f.orch.OrderCard(ctx, usdcOrder(alice.Id))
	require.NoError(t, err)

	result, err := f.orch.MapCard(ctx, models.MapCardRequest{UserId: alice.Id, CardId: " card-1 "})
	require.NoError(t, err)
	assert.Equal(t, models.CardActivated, result.CardOrderStatus)
	assert.Equal(t, "card-1", result.CardId)

	f.executor.receipt = debit.Receipt{Hash: "0xcarol"}
	_, err = f.orch.OrderCard(ctx, usdcOrder(carol.Id))
	require.NoError(t, err)

	_, err = f.orch.MapCard(ctx, models.MapCardRequest{UserId: carol.Id, CardId: "card-1"})
	requireCode(t, err, apperr.CodeCardAlreadyMapped)
	assert.Equal(t, models.CardOrdered, f.cardStatus(carol.Id))

	_, err = f.orch.MapCard(ctx, models.MapCardRequest{UserId: "missing", CardId: "card-2"})
	requireCode(t, err, apperr.CodeUserNotFound)

	_, err = f.orch.MapCard(ctx, models.MapCardRequest{UserId: alice.Id})
	requireCode(t, err, apperr.CodeInvalidInput)
}

func TestIdempotencyKeyIsDeterministic(t *testing.T) {
	f := newFixture(t, balances("100"))
	alice := f.user("alice@example.com", "", true)
	ctx := context.Background()

	first, err := f.orch.idempotencyKey(ctx, alice.Id)
	require.NoError(t, err)
	second, err := f.orch.idempotencyKey(ctx, alice.Id)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	other, err := f.orch.idempotencyKey(ctx, "someone-else")
	require.NoError(t, err)
	assert.NotEqual(t, first, other)
}
