package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"card-settlement-go/internal/models"
	"card-settlement-go/internal/store"

	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"
)

func setupTestDb(t *testing.T) (*Service, func()) {
	t.Helper()

	service, err := NewService(context.Background(), models.DatabaseConfig{
		Driver:       "sqlite3",
		Path:         filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns: 8,
		MaxIdleConns: 2,
		PingTimeout:  time.Second,
		BusyTimeout:  5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	cleanup := func() {
		service.Close()
	}

	return service, cleanup
}

func createTestUser(t *testing.T, service *Service, email, parentId string) *models.User {
	t.Helper()

	user, err := service.CreateUser(context.Background(), store.CreateUserParams{
		Name:         email,
		Email:        email,
		ParentUserId: parentId,
	})
	if err != nil {
		t.Fatalf("CreateUser(%s) failed: %v", email, err)
	}
	return user
}

func createTestLock(t *testing.T, service *Service, parent, sub *models.User, amount string) *models.FundsLock {
	t.Helper()

	lockType := models.LockMainUserCardOrder
	subId := ""
	if sub != nil {
		lockType = models.LockSubUserCardOrder
		subId = sub.Id
	}

	lock, err := service.CreateFundsLock(context.Background(), store.CreateFundsLockParams{
		FundsLockKey: store.FundsLockKey{
			UserId:            parent.Id,
			SubUserId:         subId,
			Symbol:            "USDC",
			ChainType:         "ethereum",
			BlockchainNetwork: "Base",
		},
		Amount: decimal.RequireFromString(amount),
		Type:   lockType,
	})
	if err != nil {
		t.Fatalf("CreateFundsLock failed: %v", err)
	}
	return lock
}

func TestNewService_InvalidConfig(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		cfg  models.DatabaseConfig
	}{
		{"zero open conns", models.DatabaseConfig{Path: "x.db", PingTimeout: time.Second}},
		{"missing path", models.DatabaseConfig{MaxOpenConns: 1, PingTimeout: time.Second}},
		{"missing postgres url", models.DatabaseConfig{Driver: "postgres", MaxOpenConns: 1, PingTimeout: time.Second}},
		{"unknown driver", models.DatabaseConfig{Driver: "mysql", MaxOpenConns: 1, PingTimeout: time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewService(ctx, tt.cfg); err == nil {
				t.Errorf("Expected error for %s", tt.name)
			}
		})
	}
}

func TestRebind(t *testing.T) {
	sqlite := &Service{dialect: goose.DialectSQLite3}
	postgres := &Service{dialect: goose.DialectPostgres}

	query := "SELECT * FROM users WHERE id = ? AND email = ?"

	if got := sqlite.rebind(query); got != query {
		t.Errorf("Expected sqlite query unchanged, got %s", got)
	}
	if got := postgres.rebind(query); got != "SELECT * FROM users WHERE id = $1 AND email = $2" {
		t.Errorf("Unexpected postgres query: %s", got)
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	if err := runMigrations(context.Background(), service.db, goose.DialectSQLite3); err != nil {
		t.Fatalf("Re-running migrations failed: %v", err)
	}
}
