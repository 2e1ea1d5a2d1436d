package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config represents the application configuration
type Config struct {
	Database   DatabaseConfig
	Prime      PrimeConfig
	Tokens     TokensConfig
	CardOrder  CardOrderConfig
	Debit      PollingConfig
	Balance    PollingConfig
	OpLock     OperationLockConfig
	Server     ServerConfig
	Reconciler ReconcilerConfig
	Formance   FormanceConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver           string // "sqlite3" or "postgres"
	Path             string // sqlite file
	Url              string // postgres DSN
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
	ConnMaxIdleTime  time.Duration
	PingTimeout      time.Duration
	BusyTimeout      time.Duration
	CreateDummyUsers bool
}

// PrimeConfig selects the custody portfolio used for card order debits
type PrimeConfig struct {
	PortfolioName string
	WalletType    string
	Lookback      time.Duration
}

// TokensConfig points at the token/network registry file
type TokensConfig struct {
	File string
}

// CardOrderConfig holds the default card order fee and orchestration limits.
// A fee_settings row overrides the fee fields at run time.
type CardOrderConfig struct {
	Fee               decimal.Decimal
	NetworkType       string
	SettlementAddress string
	Timeout           time.Duration
}

// PollingConfig bounds a retry loop: total attempts and base interval
type PollingConfig struct {
	Attempts int
	Interval time.Duration
}

// OperationLockConfig controls stale operation lock recovery
type OperationLockConfig struct {
	StaleAfter time.Duration
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// ReconcilerConfig holds settlement reconciler settings
type ReconcilerConfig struct {
	LookbackWindow  time.Duration
	PollingInterval time.Duration
	CleanupInterval time.Duration
}

// FormanceConfig holds the optional Formance ledger mirror settings
type FormanceConfig struct {
	StackURL     string
	ClientID     string
	ClientSecret string
	LedgerName   string
}

// Enabled reports whether the Formance mirror is configured
func (c FormanceConfig) Enabled() bool {
	return c.StackURL != ""
}
