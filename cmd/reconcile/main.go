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

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"card-settlement-go/internal/balance"
	"card-settlement-go/internal/common"
	"card-settlement-go/internal/config"
	"card-settlement-go/internal/formance"
	"card-settlement-go/internal/models"

	"go.uber.org/zap"
)

func main() {
	watchFlag := flag.Bool("watch", false, "Keep polling until interrupted")
	feesFlag := flag.String("ledger-fees", "", "Comma separated symbols whose collected fees to read from the Formance ledger")
	flag.Parse()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	services, err := common.InitializePrime(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	reconciler, err := services.NewReconciler(cfg)
	if err != nil {
		zap.L().Fatal("Failed to create reconciler", zap.Error(err))
	}

	if !*watchFlag {
		report, err := reconciler.RunOnce(ctx)
		if err != nil {
			zap.L().Fatal("Reconciliation failed", zap.Error(err))
		}
		common.PrintReconcileReport(report)
		printLedgerFees(ctx, cfg.Formance, *feesFlag)
		if len(report.Orphans()) > 0 {
			services.Close()
			loggerCleanup()
			os.Exit(2)
		}
		return
	}

	if err := reconciler.Start(ctx); err != nil {
		zap.L().Fatal("Failed to start reconciler", zap.Error(err))
	}
	zap.L().Info("Reconciler running, press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	zap.L().Info("Shutdown signal received, stopping reconciler...")

	done := make(chan struct{})
	go func() {
		reconciler.Stop()
		close(done)
	}()

	select {
	case <-done:
		zap.L().Info("Reconciler stopped gracefully")
	case <-time.After(30 * time.Second):
		zap.L().Warn("Forced shutdown after timeout")
	}
}

func printLedgerFees(ctx context.Context, cfg models.FormanceConfig, symbols string) {
	if symbols == "" {
		return
	}
	if !cfg.Enabled() {
		zap.L().Warn("--ledger-fees ignored: FORMANCE_STACK_URL not set")
		return
	}

	journal, err := formance.NewJournal(ctx, cfg)
	if err != nil {
		zap.L().Error("Failed to connect to Formance", zap.Error(err))
		return
	}

	fmt.Println("Fees mirrored to the ledger")
	for _, symbol := range balance.ParseSymbols(symbols) {
		collected, err := journal.CollectedFees(ctx, symbol)
		if err != nil {
			fmt.Printf("  %-6s %s\n", symbol, balance.ErrorFetchingBalance)
			zap.L().Error("Failed to read collected fees", zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		fmt.Printf("  %-6s %s\n", symbol, balance.FormatAmount(collected))
	}
}
