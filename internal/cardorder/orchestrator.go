// Package cardorder drives a card order from balance verification through the
// on-chain fee debit to the atomic settlement write.
package cardorder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"card-settlement-go/internal/apperr"
	"card-settlement-go/internal/balance"
	"card-settlement-go/internal/debit"
	"card-settlement-go/internal/fees"
	"card-settlement-go/internal/fundslock"
	"card-settlement-go/internal/models"
	"card-settlement-go/internal/oplock"
	"card-settlement-go/internal/store"
	"card-settlement-go/internal/tokens"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const settlementTimeout = 30 * time.Second

var idempotencyNamespace = uuid.MustParse("6f1c9a52-3d4e-4b8a-9c71-2e5d8f0a4b13")

type Store interface {
	GetUserById(ctx context.Context, userId string) (*models.User, error)
	GetWallets(ctx context.Context, userId, chainType string) ([]models.Wallet, error)
	LockedTotal(ctx context.Context, userId, symbol, chainType, network string) (decimal.Decimal, error)
	CountDebits(ctx context.Context, userId string, txType models.DebitType, status models.DebitStatus) (int, error)
	RecordPlatformDebit(ctx context.Context, debit models.PlatformDebit) (*models.PlatformDebit, error)
	SettleCardOrder(ctx context.Context, params store.SettlementParams) (*models.PlatformDebit, error)
	MapCard(ctx context.Context, params store.MapCardParams) (*models.User, error)
}

// LockFinder lists the LOCKED reservations for an exact tuple. An empty
// subUserId selects the locker's own reservations.
type LockFinder interface {
	FindActiveLocks(ctx context.Context, parentUserId, subUserId, symbol, chainType, network string) ([]models.FundsLock, error)
}

type FeeSource interface {
	CardOrder(ctx context.Context) (fees.Fee, error)
}

type BalanceReader interface {
	Balance(ctx context.Context, token tokens.Token, address string) (decimal.Decimal, error)
}

type DebitExecutor interface {
	Execute(ctx context.Context, req debit.Request) (debit.Receipt, error)
}

// DebitJournal mirrors settled debits to an external ledger
type DebitJournal interface {
	RecordDebit(ctx context.Context, debit models.PlatformDebit) error
}

type Config struct {
	Store    Store
	Locks    LockFinder
	Guard    *oplock.Guard
	Fees     FeeSource
	Registry *tokens.Registry
	Balances BalanceReader
	Debits   DebitExecutor
	Journal  DebitJournal
	Timeout  time.Duration
}

type Orchestrator struct {
	store    Store
	locks    LockFinder
	guard    *oplock.Guard
	fees     FeeSource
	registry *tokens.Registry
	balances BalanceReader
	debits   DebitExecutor
	journal  DebitJournal
	timeout  time.Duration
}

func NewOrchestrator(cfg Config) *Orchestrator {
	return &Orchestrator{
		store:    cfg.Store,
		locks:    cfg.Locks,
		guard:    cfg.Guard,
		fees:     cfg.Fees,
		registry: cfg.Registry,
		balances: cfg.Balances,
		debits:   cfg.Debits,
		journal:  cfg.Journal,
		timeout:  cfg.Timeout,
	}
}

// snapshot is what one verification pass observed. Re-verification compares
// a fresh snapshot against it.
type snapshot struct {
	user      models.User
	payer     models.User
	fee       fees.Fee
	token     tokens.Token
	wallet    models.Wallet
	locks     []models.FundsLock
	lock      *models.FundsLock
	spendable decimal.Decimal
}

func (o *Orchestrator) OrderCard(ctx context.Context, req models.OrderCardRequest) (*models.OrderCardResult, error) {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	if req.UserId == "" || req.Symbol == "" || req.ChainType == "" || req.BlockchainNetwork == "" {
		return nil, apperr.BadRequest(apperr.CodeInvalidInput, "userId, symbol, chainType and blockchainNetwork are required", nil)
	}

	user, err := o.loadUser(ctx, req.UserId)
	if err != nil {
		return nil, err
	}

	release, err := o.guard.Acquire(ctx, user.Id, oplock.OpCardOrder)
	if err != nil {
		if errors.Is(err, oplock.ErrAlreadyActive) {
			return nil, apperr.Conflict(apperr.CodeOperationInProgress, "a card order is already in progress for this user", err)
		}
		return nil, apperr.Internal(apperr.CodeInternal, "unable to acquire operation lock", err)
	}
	defer release()

	verified, err := o.verify(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := o.authorize(verified); err != nil {
		return nil, err
	}
	if err := o.reverify(ctx, req, verified); err != nil {
		return nil, err
	}

	return o.debitAndSettle(ctx, verified)
}

func (o *Orchestrator) loadUser(ctx context.Context, userId string) (*models.User, error) {
	user, err := o.store.GetUserById(ctx, userId)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, apperr.NotFound(apperr.CodeUserNotFound, fmt.Sprintf("user %s not found", userId), err)
		}
		return nil, apperr.Internal(apperr.CodeInternal, "unable to load user", err)
	}
	return user, nil
}

// verify takes the INIT -> BALANCE_VERIFIED step
func (o *Orchestrator) verify(ctx context.Context, req models.OrderCardRequest) (*snapshot, error) {
	fee, err := o.fees.CardOrder(ctx)
	if err != nil {
		return nil, apperr.Internal(apperr.CodeInternal, "unable to load card order fee", err)
	}
	if err := fee.Validate(); err != nil {
		return nil, apperr.BadRequest(apperr.CodeInvalidFeeConfig, err.Error(), err)
	}

	token, ok := o.registry.Lookup(req.Symbol, fee.NetworkType, req.ChainType, req.BlockchainNetwork)
	if !ok {
		return nil, apperr.BadRequest(apperr.CodeUnsupportedToken,
			fmt.Sprintf("%s is not supported on %s (%s, %s)", req.Symbol, req.BlockchainNetwork, req.ChainType, fee.NetworkType), nil)
	}

	user, err := o.loadUser(ctx, req.UserId)
	if err != nil {
		return nil, err
	}

	payer := *user
	if user.IsSubUser() {
		parent, err := o.store.GetUserById(ctx, user.ParentUserId)
		if err != nil {
			if errors.Is(err, store.ErrUserNotFound) {
				return nil, apperr.BadRequest(apperr.CodeParentNotFound, "parent user not found", err)
			}
			return nil, apperr.Internal(apperr.CodeInternal, "unable to load parent user", err)
		}
		if parent.IsSubUser() {
			return nil, apperr.BadRequest(apperr.CodeParentNotFound,
				fmt.Sprintf("parent user %s is itself a sub-user", parent.Id), nil)
		}
		payer = *parent
	}

	wallets, err := o.store.GetWallets(ctx, payer.Id, req.ChainType)
	if err != nil {
		return nil, apperr.Internal(apperr.CodeInternal, "unable to load wallets", err)
	}
	if len(wallets) == 0 {
		return nil, apperr.BadRequest(apperr.CodeWalletNotFound, fmt.Sprintf("no %s wallet found for paying user", req.ChainType), nil)
	}

	snap := &snapshot{
		user:   *user,
		payer:  payer,
		fee:    fee,
		token:  token,
		wallet: wallets[0],
	}
	if err := o.readSpendable(ctx, snap); err != nil {
		return nil, err
	}

	if snap.spendable.LessThan(fee.Amount) {
		return nil, apperr.BadRequest(apperr.CodeInsufficientBalance,
			fmt.Sprintf("insufficient balance: required %s, available %s",
				balance.FormatAmount(fee.Amount), balance.FormatAmount(snap.spendable)), nil)
	}

	zap.L().Debug("Balance verified",
		zap.String("user_id", user.Id),
		zap.String("payer_id", payer.Id),
		zap.String("spendable", snap.spendable.String()),
		zap.String("fee", fee.Amount.String()))
	return snap, nil
}

// readSpendable fills the snapshot's locks and spendable balance. LOCKED funds
// are netted out, except those earmarked for this orderer's card. A sub-user
// gets back every lock its parent holds for it; a main user gets back only the
// self-lock the order will consume.
func (o *Orchestrator) readSpendable(ctx context.Context, snap *snapshot) error {
	gross, err := o.balances.Balance(ctx, snap.token, snap.wallet.Address)
	if err != nil {
		return apperr.BadRequest(apperr.CodeBalanceUnavailable, "unable to fetch wallet balance", err)
	}

	locked, err := o.store.LockedTotal(ctx, snap.payer.Id, snap.token.Symbol, snap.token.ChainType, snap.token.Network)
	if err != nil {
		return apperr.Internal(apperr.CodeInternal, "unable to load locked funds", err)
	}

	subUserId := ""
	if snap.user.IsSubUser() {
		subUserId = snap.user.Id
	}
	snap.locks, err = o.locks.FindActiveLocks(ctx, snap.payer.Id, subUserId,
		snap.token.Symbol, snap.token.ChainType, snap.token.Network)
	if err != nil {
		return apperr.Internal(apperr.CodeInternal, "unable to load funds locks", err)
	}

	reserved := decimal.Zero
	switch {
	case snap.user.IsSubUser():
		for _, lock := range snap.locks {
			reserved = reserved.Add(lock.AmountLocked)
		}
	case fundslock.HasSufficientLock(snap.locks, snap.fee.Amount):
		lock, err := fundslock.SelectLock(snap.locks, snap.fee.Amount)
		if err != nil {
			return apperr.Internal(apperr.CodeInternal, "unable to select funds lock", err)
		}
		reserved = lock.AmountLocked
	}

	snap.spendable = balance.Spendable(gross, locked, reserved)
	return nil
}

// authorize takes the BALANCE_VERIFIED -> AUTHORIZED step. A sub-user needs a
// covering lock; a main user consumes one only if it holds one.
func (o *Orchestrator) authorize(snap *snapshot) error {
	if snap.user.CardOrderStatus != models.CardNotOrdered {
		return apperr.BadRequest(apperr.CodeCardAlreadyOrdered,
			fmt.Sprintf("card already ordered (status %s)", snap.user.CardOrderStatus), nil)
	}

	if !fundslock.HasSufficientLock(snap.locks, snap.fee.Amount) {
		if !snap.user.IsSubUser() {
			return nil
		}
		return apperr.BadRequest(apperr.CodeNoLockedFunds,
			fmt.Sprintf("no locked funds of at least %s %s for this sub-user on %s",
				balance.FormatAmount(snap.fee.Amount), snap.token.Symbol, snap.token.Network), fundslock.ErrNoLockedFunds)
	}

	lock, err := fundslock.SelectLock(snap.locks, snap.fee.Amount)
	if err != nil {
		return apperr.BadRequest(apperr.CodeNoLockedFunds, "no selectable funds lock", err)
	}
	snap.lock = &lock
	return nil
}

// reverify re-reads fee, user, lock and balance just before the debit and
// rejects any regression since the first pass.
func (o *Orchestrator) reverify(ctx context.Context, req models.OrderCardRequest, before *snapshot) error {
	fee, err := o.fees.CardOrder(ctx)
	if err != nil {
		return apperr.Internal(apperr.CodeInternal, "unable to reload card order fee", err)
	}
	if !fee.Equal(before.fee) {
		return apperr.BadRequest(apperr.CodeFeeChanged, "card order fee changed during processing, please retry", nil)
	}

	user, err := o.loadUser(ctx, req.UserId)
	if err != nil {
		return err
	}
	if user.CardOrderStatus != models.CardNotOrdered || user.ParentUserId != before.user.ParentUserId {
		return apperr.BadRequest(apperr.CodeUserStatusChanged, "user status changed during processing, please retry", nil)
	}

	after := &snapshot{
		user:   *user,
		payer:  before.payer,
		fee:    fee,
		token:  before.token,
		wallet: before.wallet,
	}
	if err := o.readSpendable(ctx, after); err != nil {
		return err
	}

	if before.lock != nil && !containsLock(after.locks, *before.lock) {
		return apperr.BadRequest(apperr.CodeFundsLockChanged, "funds lock changed during processing, please retry", nil)
	}

	if after.spendable.LessThan(fee.Amount) {
		return apperr.BadRequest(apperr.CodeBalanceChanged,
			fmt.Sprintf("balance changed during processing: required %s, available %s",
				balance.FormatAmount(fee.Amount), balance.FormatAmount(after.spendable)), nil)
	}
	return nil
}

func containsLock(locks []models.FundsLock, want models.FundsLock) bool {
	for _, lock := range locks {
		if lock.Id == want.Id && lock.AmountLocked.Equal(want.AmountLocked) {
			return true
		}
	}
	return false
}

func (o *Orchestrator) idempotencyKey(ctx context.Context, userId string) (string, error) {
	failed, err := o.store.CountDebits(ctx, userId, models.DebitCardOrder, models.DebitFailed)
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("%s|%s|%d", models.DebitCardOrder, userId, failed)
	return uuid.NewSHA1(idempotencyNamespace, []byte(name)).String(), nil
}

// debitAndSettle takes the AUTHORIZED -> FEE_DEBITED -> SETTLED steps
func (o *Orchestrator) debitAndSettle(ctx context.Context, snap *snapshot) (*models.OrderCardResult, error) {
	key, err := o.idempotencyKey(ctx, snap.user.Id)
	if err != nil {
		return nil, apperr.Internal(apperr.CodeInternal, "unable to derive idempotency key", err)
	}

	record := models.PlatformDebit{
		UserId:            snap.user.Id,
		DebitedUserId:     snap.payer.Id,
		Symbol:            snap.token.Symbol,
		Amount:            snap.fee.Amount,
		ChainType:         snap.token.ChainType,
		BlockchainNetwork: snap.token.Network,
		TransactionType:   models.DebitCardOrder,
		IdempotencyKey:    key,
	}

	settleCtx := models.WithSettlementContext(ctx, &models.SettlementContext{
		WalletId:         snap.wallet.CustodyWalletId,
		WalletAddress:    snap.wallet.Address,
		Reference:        key,
		Recipient:        snap.fee.SettlementAddress,
		ChainId:          snap.token.ChainId,
		OrdererIsSubUser: snap.user.IsSubUser(),
	})

	receipt, err := o.debits.Execute(settleCtx, debit.Request{
		PayerId:        snap.payer.Id,
		Symbol:         snap.token.Symbol,
		NetworkType:    snap.fee.NetworkType,
		ChainType:      snap.token.ChainType,
		Network:        snap.token.Network,
		Amount:         snap.fee.Amount,
		Recipient:      snap.fee.SettlementAddress,
		IdempotencyKey: key,
	})
	if err != nil {
		return nil, o.debitFailure(ctx, record, receipt, err)
	}
	if receipt.Hash == "" {
		return nil, apperr.BadRequest(apperr.CodeDebitFailed, "debit returned no transaction hash", debit.ErrEmptyHash)
	}
	record.TransactionHash = receipt.Hash

	params := store.SettlementParams{OrdererId: snap.user.Id, Debit: record}
	if snap.lock != nil {
		params.ConsumeLockId = snap.lock.Id
	}

	// The transfer is already on chain; settle even if the caller has gone away.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(settleCtx), settlementTimeout)
	defer cancel()

	settled, err := o.store.SettleCardOrder(writeCtx, params)
	if err != nil {
		zap.L().DPanic("CRITICAL: on-chain debit succeeded but settlement failed, reconciliation required",
			zap.String("user_id", snap.user.Id),
			zap.String("debited_user_id", snap.payer.Id),
			zap.String("transaction_hash", receipt.Hash),
			zap.String("consume_lock_id", params.ConsumeLockId),
			zap.String("amount", snap.fee.Amount.String()),
			zap.String("symbol", snap.token.Symbol),
			zap.Error(err))
		return nil, apperr.Internal(apperr.CodeSettlementFailed,
			"fee was debited but the order could not be recorded; support has been notified", err)
	}

	if o.journal != nil {
		if err := o.journal.RecordDebit(writeCtx, *settled); err != nil {
			zap.L().Warn("Failed to mirror debit to ledger",
				zap.String("debit_id", settled.Id),
				zap.String("transaction_hash", settled.TransactionHash),
				zap.Error(err))
		}
	}

	zap.L().Info("Card ordered",
		zap.String("user_id", snap.user.Id),
		zap.String("payer_id", snap.payer.Id),
		zap.String("transaction_hash", settled.TransactionHash))

	return &models.OrderCardResult{
		Status:          "success",
		Message:         "Card ordered successfully",
		UserId:          snap.user.Id,
		TransactionHash: settled.TransactionHash,
		CardOrderStatus: models.CardOrdered,
	}, nil
}

// debitFailure records reverted transfers and maps executor errors
func (o *Orchestrator) debitFailure(ctx context.Context, record models.PlatformDebit, receipt debit.Receipt, err error) error {
	zap.L().Error("Card order debit failed",
		zap.String("user_id", record.UserId),
		zap.String("debited_user_id", record.DebitedUserId),
		zap.String("transaction_hash", receipt.Hash),
		zap.Error(err))

	switch {
	case errors.Is(err, debit.ErrWalletNotFound):
		return apperr.BadRequest(apperr.CodeWalletNotFound, "no wallet found for paying user", err)
	case errors.Is(err, debit.ErrUnsupportedToken):
		return apperr.BadRequest(apperr.CodeUnsupportedToken, err.Error(), err)
	case errors.Is(err, debit.ErrTransferFailed) && receipt.Hash != "":
		record.TransactionHash = receipt.Hash
		record.Status = models.DebitFailed
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settlementTimeout)
		defer cancel()
		if _, recErr := o.store.RecordPlatformDebit(writeCtx, record); recErr != nil {
			zap.L().Error("Failed to record failed debit",
				zap.String("transaction_hash", receipt.Hash),
				zap.Error(recErr))
		}
	}

	return apperr.BadRequest(apperr.CodeDebitFailed, fmt.Sprintf("fee debit failed: %v", err), err)
}

func (o *Orchestrator) MapCard(ctx context.Context, req models.MapCardRequest) (*models.MapCardResult, error) {
	req.CardId = strings.TrimSpace(req.CardId)
	if req.UserId == "" || req.CardId == "" {
		return nil, apperr.BadRequest(apperr.CodeInvalidInput, "userId and cardId are required", nil)
	}

	user, err := o.loadUser(ctx, req.UserId)
	if err != nil {
		return nil, err
	}

	release, err := o.guard.Acquire(ctx, user.Id, oplock.OpMapCard)
	if err != nil {
		if errors.Is(err, oplock.ErrAlreadyActive) {
			return nil, apperr.Conflict(apperr.CodeOperationInProgress, "a card is already being mapped for this user", err)
		}
		return nil, apperr.Internal(apperr.CodeInternal, "unable to acquire operation lock", err)
	}
	defer release()

	if !user.CardOrderStatus.Mappable() {
		return nil, apperr.BadRequest(apperr.CodeCardNotMappable,
			fmt.Sprintf("card cannot be mapped in status %s", user.CardOrderStatus), nil)
	}

	mapped, err := o.store.MapCard(ctx, store.MapCardParams{UserId: user.Id, CardId: req.CardId})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrCardAlreadyMapped):
			return nil, apperr.Conflict(apperr.CodeCardAlreadyMapped, "card is already mapped to another user", err)
		case errors.Is(err, store.ErrCardStatusChanged):
			return nil, apperr.BadRequest(apperr.CodeUserStatusChanged, "card status changed during processing, please retry", err)
		}
		return nil, apperr.Internal(apperr.CodeInternal, "unable to map card", err)
	}

	return &models.MapCardResult{
		Status:          "success",
		UserId:          mapped.Id,
		CardId:          mapped.CardId,
		CardOrderStatus: mapped.CardOrderStatus,
	}, nil
}
