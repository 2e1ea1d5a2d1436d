package common

import (
	"fmt"
	"sort"
	"strings"

	"card-settlement-go/internal/balance"
	"card-settlement-go/internal/models"
	"card-settlement-go/internal/reconcile"

	"github.com/shopspring/decimal"
)

const (
	DefaultWidth = 80
	WideWidth    = 100
)

func PrintSeparator(char string, width int) {
	fmt.Println(strings.Repeat(char, width))
}

// PrintHeader prints a title framed by separators
func PrintHeader(title string, width int) {
	fmt.Println("\n" + strings.Repeat("=", width))
	fmt.Println(title)
	PrintSeparator("=", width)
}

func PrintFooter(message string, width int) {
	fmt.Println("\n" + strings.Repeat("=", width))
	fmt.Println(message)
	fmt.Println(strings.Repeat("=", width) + "\n")
}

// BoxPrefix returns the box-drawing prefix for list items
func BoxPrefix(isLast bool) string {
	if isLast {
		return "└  "
	}
	return "│  "
}

// PrintBalances prints one block per symbol with a line per network.
// Sentinel values are printed as-is, amounts with at least two decimals.
func PrintBalances(address string, balances models.Balances) {
	PrintHeader(fmt.Sprintf("Balances for %s", address), DefaultWidth)

	symbols := make([]string, 0, len(balances))
	for symbol := range balances {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	for _, symbol := range symbols {
		fmt.Printf("%s\n", symbol)
		networks := make([]string, 0, len(balances[symbol]))
		for network := range balances[symbol] {
			networks = append(networks, network)
		}
		sort.Strings(networks)

		for i, network := range networks {
			fmt.Printf("%s%-20s %s\n", BoxPrefix(i == len(networks)-1), network, displayAmount(balances[symbol][network]))
		}
	}
}

func displayAmount(value string) string {
	switch value {
	case balance.UnsupportedCombination, balance.ErrorFetchingBalance:
		return value
	}
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return value
	}
	return balance.FormatAmount(amount)
}

func PrintFundsLock(lock *models.FundsLock) {
	PrintHeader("Funds locked", DefaultWidth)
	fmt.Printf("Lock ID:   %s\n", lock.Id)
	fmt.Printf("Locker:    %s\n", lock.UserId)
	if lock.SubUserId != "" {
		fmt.Printf("Sub-user:  %s\n", lock.SubUserId)
	}
	fmt.Printf("Amount:    %s %s\n", balance.FormatAmount(lock.AmountLocked), lock.Symbol)
	fmt.Printf("Network:   %s (%s)\n", lock.BlockchainNetwork, lock.ChainType)
	fmt.Printf("Type:      %s\n", lock.Type)
}

func PrintOrderResult(result *models.OrderCardResult) {
	PrintHeader("Card order", DefaultWidth)
	fmt.Printf("User:        %s\n", result.UserId)
	fmt.Printf("Status:      %s\n", result.Status)
	fmt.Printf("Card status: %s\n", result.CardOrderStatus)
	fmt.Printf("Tx hash:     %s\n", result.TransactionHash)
	PrintFooter(result.Message, DefaultWidth)
}

// PrintReconcileReport lists every finding; orphans first
func PrintReconcileReport(report *reconcile.Report) {
	PrintHeader("Settlement reconciliation", WideWidth)
	fmt.Printf("Wallets scanned: %d\n", report.WalletsScanned)
	fmt.Printf("Withdrawals:     %d\n", report.Withdrawals)
	fmt.Printf("Matched:         %d\n", report.Matched)

	findings := append([]reconcile.Finding(nil), report.Findings...)
	sort.SliceStable(findings, func(i, j int) bool {
		return findings[i].Orphan() && !findings[j].Orphan()
	})

	if len(findings) > 0 {
		fmt.Printf("\nFindings (%d)\n", len(findings))
		for i, f := range findings {
			kind := "ORPHAN"
			if !f.Orphan() {
				kind = "DEBIT " + strings.ToUpper(string(f.DebitStatus))
			}
			fmt.Printf("%s%-14s %s %s %s | wallet %s | %s\n",
				BoxPrefix(i == len(findings)-1), kind, f.Amount, f.Symbol, f.Network, f.WalletId, f.Hash)
		}
	}

	if len(report.WalletErrors) > 0 {
		fmt.Printf("\nWallet errors (%d)\n", len(report.WalletErrors))
		for walletId, err := range report.WalletErrors {
			fmt.Printf("  %s: %v\n", walletId, err)
		}
	}

	if len(report.Orphans()) == 0 {
		PrintFooter("No orphaned debits", WideWidth)
	} else {
		PrintFooter(fmt.Sprintf("%d orphaned debit(s) require manual settlement", len(report.Orphans())), WideWidth)
	}
}
