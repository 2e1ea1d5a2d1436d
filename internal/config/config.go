/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"card-settlement-go/internal/models"

	"github.com/shopspring/decimal"
)

type durationSetting struct {
	key      string
	fallback time.Duration
	target   *time.Duration
}

func Load() (*models.Config, error) {
	var (
		connMaxLifetime, connMaxIdleTime, pingTimeout, busyTimeout   time.Duration
		orderTimeout, debitInterval, balanceInterval, lockStaleAfter time.Duration
		shutdownTimeout, primeLookback                               time.Duration
		lookbackWindow, pollingInterval, cleanupInterval             time.Duration
	)

	settings := []durationSetting{
		{"DB_CONN_MAX_LIFETIME", 5 * time.Minute, &connMaxLifetime},
		{"DB_CONN_MAX_IDLE_TIME", 30 * time.Second, &connMaxIdleTime},
		{"DB_PING_TIMEOUT", 5 * time.Second, &pingTimeout},
		{"DB_BUSY_TIMEOUT", 5 * time.Second, &busyTimeout},
		{"CARD_ORDER_TIMEOUT", 90 * time.Second, &orderTimeout},
		{"DEBIT_POLL_INTERVAL", 3 * time.Second, &debitInterval},
		{"BALANCE_RETRY_INTERVAL", 500 * time.Millisecond, &balanceInterval},
		{"OPERATION_LOCK_TTL", 10 * time.Minute, &lockStaleAfter},
		{"SERVER_SHUTDOWN_TIMEOUT", 15 * time.Second, &shutdownTimeout},
		{"PRIME_LOOKBACK_WINDOW", time.Hour, &primeLookback},
		{"RECONCILER_LOOKBACK_WINDOW", 24 * time.Hour, &lookbackWindow},
		{"RECONCILER_POLLING_INTERVAL", 5 * time.Minute, &pollingInterval},
		{"RECONCILER_CLEANUP_INTERVAL", time.Hour, &cleanupInterval},
	}
	for _, setting := range settings {
		value, err := getEnvDuration(setting.key, setting.fallback)
		if err != nil {
			return nil, err
		}
		*setting.target = value
	}

	fee, err := getEnvDecimal("CARD_ORDER_FEE", decimal.NewFromInt(50))
	if err != nil {
		return nil, err
	}

	driver := strings.ToLower(getEnvString("DATABASE_DRIVER", "sqlite3"))
	if driver != "sqlite3" && driver != "postgres" {
		return nil, fmt.Errorf("unsupported DATABASE_DRIVER %q (want sqlite3 or postgres)", driver)
	}

	return &models.Config{
		Database: models.DatabaseConfig{
			Driver:           driver,
			Path:             getEnvString("DATABASE_PATH", "card_settlement.db"),
			Url:              getEnvString("DATABASE_URL", ""),
			MaxOpenConns:     getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:     getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:  connMaxLifetime,
			ConnMaxIdleTime:  connMaxIdleTime,
			PingTimeout:      pingTimeout,
			BusyTimeout:      busyTimeout,
			CreateDummyUsers: getEnvBool("CREATE_DUMMY_USERS", false),
		},
		Prime: models.PrimeConfig{
			PortfolioName: getEnvString("PRIME_PORTFOLIO_NAME", "Default Portfolio"),
			WalletType:    getEnvString("PRIME_WALLET_TYPE", "TRADING"),
			Lookback:      primeLookback,
		},
		Tokens: models.TokensConfig{
			File: getEnvString("TOKENS_FILE", "tokens.yaml"),
		},
		CardOrder: models.CardOrderConfig{
			Fee:               fee,
			NetworkType:       getEnvString("CARD_ORDER_NETWORK_TYPE", "mainnet"),
			SettlementAddress: getEnvString("SETTLEMENT_ADDRESS", ""),
			Timeout:           orderTimeout,
		},
		Debit: models.PollingConfig{
			Attempts: getEnvInt("DEBIT_POLL_ATTEMPTS", 5),
			Interval: debitInterval,
		},
		Balance: models.PollingConfig{
			Attempts: getEnvInt("BALANCE_RETRY_ATTEMPTS", 3),
			Interval: balanceInterval,
		},
		OpLock: models.OperationLockConfig{
			StaleAfter: lockStaleAfter,
		},
		Server: models.ServerConfig{
			Addr:            getEnvString("SERVER_ADDR", ":8080"),
			ShutdownTimeout: shutdownTimeout,
		},
		Reconciler: models.ReconcilerConfig{
			LookbackWindow:  lookbackWindow,
			PollingInterval: pollingInterval,
			CleanupInterval: cleanupInterval,
		},
		Formance: models.FormanceConfig{
			StackURL:     getEnvString("FORMANCE_STACK_URL", ""),
			ClientID:     getEnvString("FORMANCE_CLIENT_ID", ""),
			ClientSecret: getEnvString("FORMANCE_CLIENT_SECRET", ""),
			LedgerName:   getEnvString("FORMANCE_LEDGER", "card-settlement"),
		},
	}, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) (decimal.Decimal, error) {
	if value := os.Getenv(key); value != "" {
		amount, err := decimal.NewFromString(value)
		if err != nil {
			return decimal.Zero, fmt.Errorf("invalid decimal for %s: %q (%w)", key, value, err)
		}
		return amount, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
