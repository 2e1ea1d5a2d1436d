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

package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"card-settlement-go/internal/fees"
	"card-settlement-go/internal/models"

	"go.uber.org/zap"
)

// PrimeClient is the slice of the Prime API the reconciler reads
type PrimeClient interface {
	ListWalletTransactions(ctx context.Context, portfolioId, walletId string, startTime time.Time) ([]models.PrimeTransaction, error)
}

// Store resolves custody wallets and recorded debits
type Store interface {
	ListCustodyWalletIds(ctx context.Context) ([]string, error)
	GetPlatformDebitByHash(ctx context.Context, hash string) (*models.PlatformDebit, error)
}

type FeeSource interface {
	CardOrder(ctx context.Context) (fees.Fee, error)
}

// Config contains configuration for Reconciler
type Config struct {
	Prime           PrimeClient
	Store           Store
	Fees            FeeSource
	PortfolioId     string
	LookbackWindow  time.Duration
	PollingInterval time.Duration
	CleanupInterval time.Duration
}

// Reconciler polls custody wallets for withdrawals to the settlement address
// that never produced a platform debit
type Reconciler struct {
	prime       PrimeClient
	store       Store
	fees        FeeSource
	portfolioId string

	processedTxIds  map[string]time.Time
	mutex           sync.RWMutex
	lookbackWindow  time.Duration
	pollingInterval time.Duration
	cleanupInterval time.Duration

	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce sync.Once
	doneOnce sync.Once
}

func New(cfg Config) *Reconciler {
	if cfg.LookbackWindow <= 0 {
		cfg.LookbackWindow = 6 * time.Hour
	}
	if cfg.PollingInterval <= 0 {
		cfg.PollingInterval = time.Minute
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 15 * time.Minute
	}
	return &Reconciler{
		prime:           cfg.Prime,
		store:           cfg.Store,
		fees:            cfg.Fees,
		portfolioId:     cfg.PortfolioId,
		processedTxIds:  make(map[string]time.Time),
		lookbackWindow:  cfg.LookbackWindow,
		pollingInterval: cfg.PollingInterval,
		cleanupInterval: cfg.CleanupInterval,
		stopChan:        make(chan struct{}),
		doneChan:        make(chan struct{}),
	}
}

// Start runs one pass synchronously, then keeps polling in the background
func (r *Reconciler) Start(ctx context.Context) error {
	zap.L().Info("Starting settlement reconciler",
		zap.Duration("polling_interval", r.pollingInterval),
		zap.Duration("lookback_window", r.lookbackWindow))

	if _, err := r.RunOnce(ctx); err != nil {
		// No loop will run, so Stop must not wait for one.
		r.finish()
		return fmt.Errorf("initial reconciliation failed: %w", err)
	}

	go r.pollLoop(ctx)
	go r.cleanupLoop(ctx)
	return nil
}

// Stop gracefully stops the reconciler
func (r *Reconciler) Stop() {
	r.stopOnce.Do(func() {
		zap.L().Info("Stopping settlement reconciler")
		close(r.stopChan)
	})
	<-r.doneChan
	zap.L().Info("Settlement reconciler stopped")
}

func (r *Reconciler) finish() {
	r.doneOnce.Do(func() { close(r.doneChan) })
}

func (r *Reconciler) pollLoop(ctx context.Context) {
	defer r.finish()

	ticker := time.NewTicker(r.pollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil {
				zap.L().Error("Reconciliation pass failed", zap.Error(err))
			}
		case <-r.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (r *Reconciler) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(r.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.cleanupProcessed()
		case <-r.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (r *Reconciler) isProcessed(txId string) bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	_, ok := r.processedTxIds[txId]
	return ok
}

func (r *Reconciler) markProcessed(txId string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.processedTxIds[txId] = time.Now()
}

// cleanupProcessed forgets transactions older than twice the lookback window
func (r *Reconciler) cleanupProcessed() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	cutoff := time.Now().Add(-2 * r.lookbackWindow)
	removed := 0
	for id, seen := range r.processedTxIds {
		if seen.Before(cutoff) {
			delete(r.processedTxIds, id)
			removed++
		}
	}

	if removed > 0 {
		zap.L().Debug("Cleaned up processed transactions",
			zap.Int("removed", removed),
			zap.Int("remaining", len(r.processedTxIds)))
	}
}
