package database

import (
	"context"
	"fmt"

	"card-settlement-go/internal/models"
	"card-settlement-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func scanWallet(row rowScanner) (*models.Wallet, error) {
	var wallet models.Wallet
	err := row.Scan(&wallet.Id, &wallet.UserId, &wallet.ChainType, &wallet.Address,
		&wallet.CustodyWalletId, &wallet.AccountIdentifier, &wallet.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (s *Service) StoreWallet(ctx context.Context, params store.StoreWalletParams) (*models.Wallet, error) {
	zap.L().Info("Storing wallet",
		zap.String("user_id", params.UserId),
		zap.String("chain_type", params.ChainType),
		zap.String("address", params.Address))

	walletId := uuid.New().String()

	wallet, err := scanWallet(s.db.QueryRowContext(ctx, s.rebind(queryInsertWallet),
		walletId, params.UserId, params.ChainType, params.Address, params.CustodyWalletId,
		params.AccountIdentifier, now()))
	if err != nil {
		zap.L().Error("Failed to insert wallet",
			zap.String("user_id", params.UserId),
			zap.String("chain_type", params.ChainType),
			zap.Error(err))
		return nil, fmt.Errorf("unable to insert wallet: %w", err)
	}

	zap.L().Info("Wallet stored successfully", zap.String("id", walletId))
	return wallet, nil
}

// GetWallets returns the user's wallets for a chain type. An empty result is not an error.
func (s *Service) GetWallets(ctx context.Context, userId, chainType string) ([]models.Wallet, error) {
	zap.L().Debug("Querying wallets",
		zap.String("user_id", userId),
		zap.String("chain_type", chainType))

	rows, err := s.db.QueryContext(ctx, s.rebind(queryGetUserWallets), userId, chainType)
	if err != nil {
		zap.L().Error("Failed to query wallets",
			zap.String("user_id", userId),
			zap.String("chain_type", chainType),
			zap.Error(err))
		return nil, fmt.Errorf("unable to query wallets: %w", err)
	}
	defer closeRows(rows)

	var wallets []models.Wallet
	for rows.Next() {
		wallet, err := scanWallet(rows)
		if err != nil {
			zap.L().Error("Failed to scan wallet row", zap.Error(err))
			return nil, fmt.Errorf("unable to scan wallet row: %w", err)
		}
		wallets = append(wallets, *wallet)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating wallet rows: %w", err)
	}

	return wallets, nil
}

// ListCustodyWalletIds returns every distinct custody wallet referenced by a user wallet.
func (s *Service) ListCustodyWalletIds(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(queryListCustodyWalletIds))
	if err != nil {
		return nil, fmt.Errorf("unable to query custody wallets: %w", err)
	}
	defer closeRows(rows)

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("unable to scan custody wallet id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating custody wallet rows: %w", err)
	}
	return ids, nil
}
