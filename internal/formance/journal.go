package formance

import (
	"context"
	"fmt"
	"math/big"

	"card-settlement-go/internal/models"

	v3 "github.com/formancehq/formance-sdk-go/v3"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const feesAccount = "platform:fees:card_order"

// On-chain wallets are not tracked in the ledger, hence the unbounded overdraft.
const numscriptCardOrderFee = `vars {
  asset $asset
  number $amount
  account $payer
  string $user_id
  string $debited_user_id
  string $transaction_hash
  string $chain_type
  string $network
  string $idempotency_key
  string $amount_human
  string $wallet_id
  string $recipient
}

send [$asset $amount] (
  source = @users:$payer:wallets allowing unbounded overdraft
  destination = @platform:fees:card_order
)

set_tx_meta("event_type", "card_order_fee")
set_tx_meta("user_id", $user_id)
set_tx_meta("debited_user_id", $debited_user_id)
set_tx_meta("transaction_hash", $transaction_hash)
set_tx_meta("chain_type", $chain_type)
set_tx_meta("network", $network)
set_tx_meta("idempotency_key", $idempotency_key)
set_tx_meta("amount_human", $amount_human)
set_tx_meta("wallet_id", $wallet_id)
set_tx_meta("recipient", $recipient)
`

// smallestUnits converts a human amount to the ledger's integer representation
func smallestUnits(amount decimal.Decimal, symbol string) string {
	return amount.Abs().Shift(int32(precisionFor(symbol))).BigInt().String()
}

func cardOrderVars(debit models.PlatformDebit, sc *models.SettlementContext) map[string]string {
	vars := map[string]string{
		"asset":            formanceAsset(debit.Symbol),
		"amount":           smallestUnits(debit.Amount, debit.Symbol),
		"payer":            debit.DebitedUserId,
		"user_id":          debit.UserId,
		"debited_user_id":  debit.DebitedUserId,
		"transaction_hash": debit.TransactionHash,
		"chain_type":       debit.ChainType,
		"network":          debit.BlockchainNetwork,
		"idempotency_key":  debit.IdempotencyKey,
		"amount_human":     debit.Amount.String(),
		"wallet_id":        "",
		"recipient":        "",
	}
	if sc != nil {
		vars["wallet_id"] = sc.WalletId
		vars["recipient"] = sc.Recipient
	}
	return vars
}

// RecordDebit posts a settled card order fee. The transaction hash is the
// ledger reference, so replays are no-ops.
func (j *Journal) RecordDebit(ctx context.Context, debit models.PlatformDebit) error {
	if debit.TransactionHash == "" {
		return fmt.Errorf("refusing to mirror debit %s without transaction hash", debit.Id)
	}

	postTx := shared.V2PostTransaction{
		Reference: strPtr(debit.TransactionHash),
		Script: &shared.V2PostTransactionScript{
			Plain: numscriptCardOrderFee,
			Vars:  cardOrderVars(debit, models.GetSettlementContext(ctx)),
		},
	}
	if !debit.CreatedAt.IsZero() {
		postTx.Timestamp = &debit.CreatedAt
	}

	_, err := j.client.Ledger.V2.CreateTransaction(ctx, operations.V2CreateTransactionRequest{
		Ledger:            j.ledger,
		V2PostTransaction: postTx,
	})
	if err != nil {
		if isConflictError(err) {
			zap.L().Debug("Debit already mirrored", zap.String("transaction_hash", debit.TransactionHash))
			return nil
		}
		return fmt.Errorf("failed to mirror debit: %w", err)
	}

	zap.L().Info("Debit mirrored to Formance",
		zap.String("debit_id", debit.Id),
		zap.String("symbol", debit.Symbol),
		zap.String("amount", debit.Amount.String()),
		zap.String("transaction_hash", debit.TransactionHash))
	return nil
}

// CollectedFees returns the card order fees the ledger holds for a symbol
func (j *Journal) CollectedFees(ctx context.Context, symbol string) (decimal.Decimal, error) {
	resp, err := j.client.Ledger.V2.GetAccount(ctx, operations.V2GetAccountRequest{
		Ledger:  j.ledger,
		Address: feesAccount,
		Expand:  v3.Pointer("volumes"),
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("unable to read %s: %w", feesAccount, err)
	}

	return volumeBalance(resp.V2AccountResponse.Data.Volumes, symbol), nil
}

func volumeBalance(vols map[string]shared.V2Volume, symbol string) decimal.Decimal {
	vol, ok := vols[formanceAsset(symbol)]
	if !ok {
		return decimal.Zero
	}

	raw := vol.Balance
	if raw == nil {
		if vol.Input == nil {
			return decimal.Zero
		}
		raw = new(big.Int).Set(vol.Input)
		if vol.Output != nil {
			raw.Sub(raw, vol.Output)
		}
	}
	return decimal.NewFromBigInt(raw, -int32(precisionFor(symbol)))
}
