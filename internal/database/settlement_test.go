package database

import (
	"context"
	"errors"
	"testing"

	"card-settlement-go/internal/models"
	"card-settlement-go/internal/store"

	"github.com/shopspring/decimal"
)

func testDebit(userId, debitedUserId, hash string) models.PlatformDebit {
	return models.PlatformDebit{
		UserId:            userId,
		DebitedUserId:     debitedUserId,
		Symbol:            "USDC",
		Amount:            decimal.NewFromInt(50),
		TransactionHash:   hash,
		ChainType:         "ethereum",
		BlockchainNetwork: "Base",
	}
}

func assertLockStatus(t *testing.T, service *Service, lockId string, want models.FundsLockStatus) {
	t.Helper()
	lock, err := service.GetFundsLock(context.Background(), lockId)
	if err != nil {
		t.Fatalf("GetFundsLock failed: %v", err)
	}
	if lock.Status != want {
		t.Errorf("Expected lock status %s, got %s", want, lock.Status)
	}
}

func assertCardStatus(t *testing.T, service *Service, userId string, want models.CardOrderStatus) {
	t.Helper()
	user, err := service.GetUserById(context.Background(), userId)
	if err != nil {
		t.Fatalf("GetUserById failed: %v", err)
	}
	if user.CardOrderStatus != want {
		t.Errorf("Expected card status %s, got %s", want, user.CardOrderStatus)
	}
}

func assertDebitCount(t *testing.T, service *Service, userId string, want int) {
	t.Helper()
	debits, err := service.ListPlatformDebits(context.Background(), userId)
	if err != nil {
		t.Fatalf("ListPlatformDebits failed: %v", err)
	}
	if len(debits) != want {
		t.Errorf("Expected %d debits, got %d", want, len(debits))
	}
}

func TestSettleCardOrder_SubUser(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	parent := createTestUser(t, service, "alice@example.com", "")
	child := createTestUser(t, service, "bob@example.com", parent.Id)
	lock := createTestLock(t, service, parent, child, "60")

	debit, err := service.SettleCardOrder(ctx, store.SettlementParams{
		OrdererId:     child.Id,
		ConsumeLockId: lock.Id,
		Debit:         testDebit(child.Id, parent.Id, "0xabc"),
	})
	if err != nil {
		t.Fatalf("SettleCardOrder failed: %v", err)
	}

	if debit.Status != models.DebitCompleted || debit.TransactionType != models.DebitCardOrder {
		t.Errorf("Expected completed card_order debit, got %s %s", debit.Status, debit.TransactionType)
	}
	assertLockStatus(t, service, lock.Id, models.FundsFree)
	assertCardStatus(t, service, child.Id, models.CardOrdered)
	assertCardStatus(t, service, parent.Id, models.CardNotOrdered)

	stored, err := service.GetPlatformDebitByHash(ctx, "0xabc")
	if err != nil || stored == nil {
		t.Fatalf("Expected stored debit, got %v (%v)", stored, err)
	}
	if stored.DebitedUserId != parent.Id || stored.UserId != child.Id {
		t.Errorf("Unexpected debit parties: %+v", stored)
	}
	if !stored.Amount.Equal(decimal.NewFromInt(50)) {
		t.Errorf("Expected amount 50, got %s", stored.Amount)
	}
}

// A failure on the last write must leave the lock and the ledger untouched.
func TestSettleCardOrder_RollsBackWhenStatusChanged(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	parent := createTestUser(t, service, "alice@example.com", "")
	child := createTestUser(t, service, "bob@example.com", parent.Id)
	lock := createTestLock(t, service, parent, child, "60")

	if _, err := service.db.ExecContext(ctx, `UPDATE users SET card_order_status = 'shipped' WHERE id = ?`, child.Id); err != nil {
		t.Fatalf("Failed to set status: %v", err)
	}

	_, err := service.SettleCardOrder(ctx, store.SettlementParams{
		OrdererId:     child.Id,
		ConsumeLockId: lock.Id,
		Debit:         testDebit(child.Id, parent.Id, "0xabc"),
	})
	if !errors.Is(err, store.ErrCardStatusChanged) {
		t.Fatalf("Expected ErrCardStatusChanged, got %v", err)
	}

	assertLockStatus(t, service, lock.Id, models.FundsLocked)
	assertCardStatus(t, service, child.Id, models.CardShipped)
	assertDebitCount(t, service, child.Id, 0)
}

func TestSettleCardOrder_RollsBackOnDuplicateHash(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	parent := createTestUser(t, service, "alice@example.com", "")
	child := createTestUser(t, service, "bob@example.com", parent.Id)
	lock := createTestLock(t, service, parent, child, "60")

	if _, err := service.RecordPlatformDebit(ctx, models.PlatformDebit{
		UserId:          parent.Id,
		DebitedUserId:   parent.Id,
		Symbol:          "USDC",
		Amount:          decimal.NewFromInt(1),
		TransactionHash: "0xdup",
		Status:          models.DebitCompleted,
	}); err != nil {
		t.Fatalf("RecordPlatformDebit failed: %v", err)
	}

	_, err := service.SettleCardOrder(ctx, store.SettlementParams{
		OrdererId:     child.Id,
		ConsumeLockId: lock.Id,
		Debit:         testDebit(child.Id, parent.Id, "0xdup"),
	})
	if !errors.Is(err, store.ErrDuplicateDebit) {
		t.Fatalf("Expected ErrDuplicateDebit, got %v", err)
	}

	assertLockStatus(t, service, lock.Id, models.FundsLocked)
	assertCardStatus(t, service, child.Id, models.CardNotOrdered)
}

func TestSettleCardOrder_LockAlreadyConsumed(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	parent := createTestUser(t, service, "alice@example.com", "")
	first := createTestUser(t, service, "bob@example.com", parent.Id)
	lock := createTestLock(t, service, parent, first, "60")

	if _, err := service.SettleCardOrder(ctx, store.SettlementParams{
		OrdererId:     first.Id,
		ConsumeLockId: lock.Id,
		Debit:         testDebit(first.Id, parent.Id, "0x1"),
	}); err != nil {
		t.Fatalf("First settlement failed: %v", err)
	}

	second := createTestUser(t, service, "carol@example.com", parent.Id)
	_, err := service.SettleCardOrder(ctx, store.SettlementParams{
		OrdererId:     second.Id,
		ConsumeLockId: lock.Id,
		Debit:         testDebit(second.Id, parent.Id, "0x2"),
	})
	if !errors.Is(err, store.ErrLockNotConsumable) {
		t.Fatalf("Expected ErrLockNotConsumable, got %v", err)
	}
	assertCardStatus(t, service, second.Id, models.CardNotOrdered)
	assertDebitCount(t, service, second.Id, 0)
}

func TestSettleCardOrder_RefusesEmptyHash(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	user := createTestUser(t, service, "alice@example.com", "")

	_, err := service.SettleCardOrder(context.Background(), store.SettlementParams{
		OrdererId: user.Id,
		Debit:     testDebit(user.Id, user.Id, ""),
	})
	if err == nil {
		t.Fatal("Expected error for completed debit without hash")
	}
	assertCardStatus(t, service, user.Id, models.CardNotOrdered)
	assertDebitCount(t, service, user.Id, 0)
}

func TestRecordPlatformDebit_Failed(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	user := createTestUser(t, service, "alice@example.com", "")

	debit := testDebit(user.Id, user.Id, "0xreverted")
	debit.Status = models.DebitFailed
	debit.TransactionType = models.DebitCardOrder
	if _, err := service.RecordPlatformDebit(ctx, debit); err != nil {
		t.Fatalf("RecordPlatformDebit failed: %v", err)
	}

	count, err := service.CountDebits(ctx, user.Id, models.DebitCardOrder, models.DebitFailed)
	if err != nil {
		t.Fatalf("CountDebits failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 failed debit, got %d", count)
	}
	assertCardStatus(t, service, user.Id, models.CardNotOrdered)
}
