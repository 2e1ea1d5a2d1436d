package models

import (
	"context"
)

type settlementContextKey struct{}

// SettlementContext carries custody details of a debit through context
// so the ledger mirror can store them as metadata without widening its interface.
type SettlementContext struct {
	WalletId         string // payer's custody wallet
	WalletAddress    string // on-chain source address
	Reference        string // custody reference (idempotency key for Prime)
	Recipient        string // settlement address
	ChainId          int64
	OrdererIsSubUser bool
}

// WithSettlementContext attaches debit details to a context.
func WithSettlementContext(ctx context.Context, sc *SettlementContext) context.Context {
	return context.WithValue(ctx, settlementContextKey{}, sc)
}

// GetSettlementContext retrieves debit details from context, or nil if absent.
func GetSettlementContext(ctx context.Context) *SettlementContext {
	sc, _ := ctx.Value(settlementContextKey{}).(*SettlementContext)
	return sc
}
