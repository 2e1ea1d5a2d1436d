package database

import (
	"context"
	"testing"

	"card-settlement-go/internal/models"
	"card-settlement-go/internal/store"

	"github.com/shopspring/decimal"
)

func TestFindActiveLocks_ExactTupleMatch(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	parent := createTestUser(t, service, "alice@example.com", "")
	child := createTestUser(t, service, "bob@example.com", parent.Id)
	otherChild := createTestUser(t, service, "carol@example.com", parent.Id)

	createTestLock(t, service, parent, child, "40")
	createTestLock(t, service, parent, child, "60")
	createTestLock(t, service, parent, otherChild, "100")
	createTestLock(t, service, parent, nil, "25")

	key := store.FundsLockKey{
		UserId:            parent.Id,
		SubUserId:         child.Id,
		Symbol:            "USDC",
		ChainType:         "ethereum",
		BlockchainNetwork: "Base",
	}

	locks, err := service.FindActiveLocks(ctx, key, models.LockSubUserCardOrder)
	if err != nil {
		t.Fatalf("FindActiveLocks failed: %v", err)
	}
	if len(locks) != 2 {
		t.Fatalf("Expected 2 locks, got %d", len(locks))
	}
	for _, lock := range locks {
		if lock.SubUserId != child.Id || lock.Status != models.FundsLocked {
			t.Errorf("Unexpected lock returned: %+v", lock)
		}
	}

	mismatches := []store.FundsLockKey{
		{UserId: parent.Id, SubUserId: child.Id, Symbol: "USDT", ChainType: "ethereum", BlockchainNetwork: "Base"},
		{UserId: parent.Id, SubUserId: child.Id, Symbol: "USDC", ChainType: "ethereum", BlockchainNetwork: "Polygon"},
		{UserId: parent.Id, SubUserId: child.Id, Symbol: "usdc", ChainType: "ethereum", BlockchainNetwork: "Base"},
		{UserId: child.Id, SubUserId: child.Id, Symbol: "USDC", ChainType: "ethereum", BlockchainNetwork: "Base"},
	}
	for _, mismatch := range mismatches {
		locks, err := service.FindActiveLocks(ctx, mismatch, models.LockSubUserCardOrder)
		if err != nil {
			t.Fatalf("FindActiveLocks failed: %v", err)
		}
		if len(locks) != 0 {
			t.Errorf("Expected no locks for %+v, got %d", mismatch, len(locks))
		}
	}

	selfLocks, err := service.FindActiveLocks(ctx, store.FundsLockKey{
		UserId: parent.Id, Symbol: "USDC", ChainType: "ethereum", BlockchainNetwork: "Base",
	}, models.LockMainUserCardOrder)
	if err != nil {
		t.Fatalf("FindActiveLocks failed: %v", err)
	}
	if len(selfLocks) != 1 || selfLocks[0].SubUserId != "" {
		t.Errorf("Expected one self lock, got %+v", selfLocks)
	}
}

func TestLockedTotal(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	parent := createTestUser(t, service, "alice@example.com", "")
	child := createTestUser(t, service, "bob@example.com", parent.Id)

	createTestLock(t, service, parent, child, "40.25")
	consumed := createTestLock(t, service, parent, child, "10")
	createTestLock(t, service, parent, nil, "9.75")

	if _, err := service.SettleCardOrder(ctx, store.SettlementParams{
		OrdererId:     child.Id,
		ConsumeLockId: consumed.Id,
		Debit:         testDebit(child.Id, parent.Id, "0xlock"),
	}); err != nil {
		t.Fatalf("SettleCardOrder failed: %v", err)
	}

	total, err := service.LockedTotal(ctx, parent.Id, "USDC", "ethereum", "Base")
	if err != nil {
		t.Fatalf("LockedTotal failed: %v", err)
	}
	if !total.Equal(decimal.NewFromInt(50)) {
		t.Errorf("Expected locked total 50, got %s", total)
	}
}

func TestCreateFundsLock_RejectsNonPositive(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	parent := createTestUser(t, service, "alice@example.com", "")

	_, err := service.CreateFundsLock(context.Background(), store.CreateFundsLockParams{
		FundsLockKey: store.FundsLockKey{UserId: parent.Id, Symbol: "USDC", ChainType: "ethereum", BlockchainNetwork: "Base"},
		Amount:       decimal.Zero,
		Type:         models.LockMainUserCardOrder,
	})
	if err == nil {
		t.Error("Expected error for zero lock amount")
	}
}
