package reconcile

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"card-settlement-go/internal/models"

	"go.uber.org/zap"
)

const statusDone = "TRANSACTION_DONE"

// Finding is a completed settlement-address withdrawal that does not line up
// with a completed platform debit
type Finding struct {
	WalletId      string
	TransactionId string // Prime transaction id
	Hash          string
	Symbol        string
	Amount        string
	Network       string
	CompletedAt   time.Time
	DebitStatus   models.DebitStatus // empty when no debit was recorded at all
}

// Orphan reports an on-chain debit with no settlement record
func (f Finding) Orphan() bool { return f.DebitStatus == "" }

// Report summarizes one reconciliation pass
type Report struct {
	WalletsScanned int
	Withdrawals    int
	Matched        int
	Findings       []Finding
	WalletErrors   map[string]error
}

func (r Report) Orphans() []Finding {
	var out []Finding
	for _, f := range r.Findings {
		if f.Orphan() {
			out = append(out, f)
		}
	}
	return out
}

// RunOnce scans every custody wallet over the lookback window.
// Failing wallets are reported and skipped; the pass fails only when none can be read.
func (r *Reconciler) RunOnce(ctx context.Context) (*Report, error) {
	fee, err := r.fees.CardOrder(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to resolve settlement address: %w", err)
	}

	walletIds, err := r.store.ListCustodyWalletIds(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to list custody wallets: %w", err)
	}

	report := &Report{WalletErrors: make(map[string]error)}
	if len(walletIds) == 0 {
		zap.L().Warn("No custody wallets to reconcile")
		return report, nil
	}

	since := time.Now().UTC().Add(-r.lookbackWindow)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, walletId := range walletIds {
		wg.Add(1)
		go func(walletId string) {
			defer wg.Done()

			scanned, matched, findings, err := r.scanWallet(ctx, walletId, fee.SettlementAddress, since)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				zap.L().Error("Failed to reconcile wallet", zap.String("wallet_id", walletId), zap.Error(err))
				report.WalletErrors[walletId] = err
				return
			}
			report.WalletsScanned++
			report.Withdrawals += scanned
			report.Matched += matched
			report.Findings = append(report.Findings, findings...)
		}(walletId)
	}
	wg.Wait()

	if report.WalletsScanned == 0 {
		return report, fmt.Errorf("reconciliation failed for all %d wallets", len(walletIds))
	}

	zap.L().Info("Reconciliation pass complete",
		zap.Int("wallets", report.WalletsScanned),
		zap.Int("withdrawals", report.Withdrawals),
		zap.Int("matched", report.Matched),
		zap.Int("findings", len(report.Findings)),
		zap.Int("wallet_errors", len(report.WalletErrors)))

	return report, nil
}

func (r *Reconciler) scanWallet(ctx context.Context, walletId, settlementAddress string, since time.Time) (int, int, []Finding, error) {
	txns, err := r.prime.ListWalletTransactions(ctx, r.portfolioId, walletId, since)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("failed to fetch transactions: %w", err)
	}

	var (
		scanned, matched int
		findings         []Finding
	)
	for _, tx := range txns {
		if tx.Status != statusDone || !strings.EqualFold(tx.TransferTo.Address, settlementAddress) {
			continue
		}
		if r.isProcessed(tx.Id) {
			continue
		}
		scanned++

		finding := Finding{
			WalletId:      walletId,
			TransactionId: tx.Id,
			Hash:          tx.TransactionId,
			Symbol:        tx.Symbol,
			Amount:        tx.Amount,
			Network:       tx.Network,
			CompletedAt:   tx.CompletedAt,
		}

		if tx.TransactionId == "" {
			// Prime has not published the hash yet; look again next pass
			zap.L().Warn("Completed withdrawal without transaction hash",
				zap.String("transaction_id", tx.Id),
				zap.String("wallet_id", walletId))
			continue
		}

		debit, err := r.store.GetPlatformDebitByHash(ctx, tx.TransactionId)
		if err != nil {
			return 0, 0, nil, err
		}

		switch {
		case debit == nil:
			zap.L().DPanic("CRITICAL: on-chain card order debit has no settlement record",
				zap.String("transaction_id", tx.Id),
				zap.String("transaction_hash", tx.TransactionId),
				zap.String("wallet_id", walletId),
				zap.String("symbol", tx.Symbol),
				zap.String("amount", tx.Amount))
			findings = append(findings, finding)
		case debit.Status != models.DebitCompleted:
			finding.DebitStatus = debit.Status
			zap.L().Error("Completed withdrawal recorded with non-completed debit",
				zap.String("transaction_hash", tx.TransactionId),
				zap.String("debit_id", debit.Id),
				zap.String("debit_status", string(debit.Status)))
			findings = append(findings, finding)
		default:
			matched++
			r.markProcessed(tx.Id)
		}
	}

	return scanned, matched, findings, nil
}
