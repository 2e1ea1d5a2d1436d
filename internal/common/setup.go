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

package common

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"card-settlement-go/internal/balance"
	"card-settlement-go/internal/cardorder"
	"card-settlement-go/internal/database"
	"card-settlement-go/internal/debit"
	"card-settlement-go/internal/fees"
	"card-settlement-go/internal/formance"
	"card-settlement-go/internal/fundslock"
	"card-settlement-go/internal/models"
	"card-settlement-go/internal/oplock"
	"card-settlement-go/internal/prime"
	"card-settlement-go/internal/reconcile"
	"card-settlement-go/internal/tokens"

	"github.com/coinbase-samples/prime-sdk-go/credentials"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// init loads environment variables from .env file if it exists
func init() {
	// Environment variables can also be set via shell export, docker, etc.
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
		log.Println("Make sure to set environment variables via export or other means")
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

// Services is the wired engine. Prime-backed fields are nil after InitializeCore.
type Services struct {
	DbService *database.Service
	Registry  *tokens.Registry
	Oracle    *balance.Oracle
	Guard     *oplock.Guard
	Fees      *fees.Schedule
	Locks     *fundslock.Ledger

	PrimeService *prime.Service
	Portfolio    *models.Portfolio
	Orders       *cardorder.Orchestrator
	Journal      *formance.Journal
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

// InitializeCore wires the database, token registry, balance oracle and
// funds lock ledger. Nothing here talks to Prime.
func InitializeCore(ctx context.Context, cfg *models.Config) (*Services, error) {
	registry, err := tokens.Load(cfg.Tokens.File)
	if err != nil {
		return nil, err
	}

	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	oracle := balance.NewOracle(registry, balance.DialRPC,
		balance.WithLockedTotals(dbService),
		balance.WithRetry(cfg.Balance.Attempts, cfg.Balance.Interval))
	guard := oplock.NewGuard(dbService, cfg.OpLock.StaleAfter)

	return &Services{
		DbService: dbService,
		Registry:  registry,
		Oracle:    oracle,
		Guard:     guard,
		Fees:      fees.NewSchedule(dbService, cfg.CardOrder),
		Locks:     fundslock.NewLedger(dbService, guard, registry, oracle, cfg.CardOrder.NetworkType),
	}, nil
}

// InitializeServices wires the full card order engine on top of InitializeCore.
// The Formance mirror is attached only when configured.
func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	services, err := InitializeCore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := services.attachPrime(ctx, cfg); err != nil {
		services.Close()
		return nil, err
	}

	executor := debit.NewExecutor(
		prime.NewCustody(services.PrimeService, services.DbService, services.Portfolio.Id, cfg.Prime.Lookback),
		services.Registry, services.Oracle, cfg.Debit.Attempts, cfg.Debit.Interval)

	orderCfg := cardorder.Config{
		Store:    services.DbService,
		Locks:    services.Locks,
		Guard:    services.Guard,
		Fees:     services.Fees,
		Registry: services.Registry,
		Balances: services.Oracle,
		Debits:   executor,
		Timeout:  cfg.CardOrder.Timeout,
	}

	if cfg.Formance.Enabled() {
		journal, err := formance.NewJournal(ctx, cfg.Formance)
		if err != nil {
			services.Close()
			return nil, err
		}
		services.Journal = journal
		orderCfg.Journal = journal
	} else {
		zap.L().Info("Formance mirror disabled (FORMANCE_STACK_URL not set)")
	}

	services.Orders = cardorder.NewOrchestrator(orderCfg)
	return services, nil
}

// InitializePrime wires InitializeCore plus the Prime client, without the order engine
func InitializePrime(ctx context.Context, cfg *models.Config) (*Services, error) {
	services, err := InitializeCore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := services.attachPrime(ctx, cfg); err != nil {
		services.Close()
		return nil, err
	}
	return services, nil
}

func (cs *Services) attachPrime(ctx context.Context, cfg *models.Config) error {
	zap.L().Info("Loading Prime API credentials")
	creds, err := loadPrimeCredentials()
	if err != nil {
		return err
	}

	primeService, err := prime.NewService(creds)
	if err != nil {
		return err
	}

	portfolio, err := primeService.FindPortfolio(ctx, cfg.Prime.PortfolioName)
	if err != nil {
		return err
	}
	zap.L().Info("Using portfolio",
		zap.String("name", portfolio.Name),
		zap.String("id", portfolio.Id))

	cs.PrimeService = primeService
	cs.Portfolio = portfolio
	return nil
}

// NewReconciler builds the settlement reconciler; requires InitializePrime or InitializeServices
func (cs *Services) NewReconciler(cfg *models.Config) (*reconcile.Reconciler, error) {
	if cs.PrimeService == nil || cs.Portfolio == nil {
		return nil, fmt.Errorf("reconciler requires a Prime connection")
	}
	return reconcile.New(reconcile.Config{
		Prime:           cs.PrimeService,
		Store:           cs.DbService,
		Fees:            cs.Fees,
		PortfolioId:     cs.Portfolio.Id,
		LookbackWindow:  cfg.Reconciler.LookbackWindow,
		PollingInterval: cfg.Reconciler.PollingInterval,
		CleanupInterval: cfg.Reconciler.CleanupInterval,
	}), nil
}

func (cs *Services) Close() {
	if cs.DbService != nil {
		cs.DbService.Close()
	}
}

func loadPrimeCredentials() (*credentials.Credentials, error) {
	accessKey := os.Getenv("PRIME_ACCESS_KEY")
	passphrase := os.Getenv("PRIME_PASSPHRASE")
	signingKey := os.Getenv("PRIME_SIGNING_KEY")

	var missing []string
	for _, env := range []struct{ name, value string }{
		{"PRIME_ACCESS_KEY", accessKey},
		{"PRIME_PASSPHRASE", passphrase},
		{"PRIME_SIGNING_KEY", signingKey},
	} {
		if env.value == "" {
			missing = append(missing, env.name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required Prime API credentials: %s", strings.Join(missing, ", "))
	}

	return &credentials.Credentials{
		AccessKey:  accessKey,
		Passphrase: passphrase,
		SigningKey: signingKey,
	}, nil
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
