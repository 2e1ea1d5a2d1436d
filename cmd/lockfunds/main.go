package main

import (
	"context"
	"flag"

	"card-settlement-go/internal/apperr"
	"card-settlement-go/internal/common"
	"card-settlement-go/internal/config"
	"card-settlement-go/internal/fundslock"
	"card-settlement-go/internal/tokens"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	userFlag := flag.String("user", "", "Locking main user id or email (required)")
	subUserFlag := flag.String("sub-user", "", "Sub-user id or email the funds are reserved for")
	symbolFlag := flag.String("symbol", "USDC", "Token symbol")
	chainFlag := flag.String("chain", tokens.ChainTypeEthereum, "Chain type")
	networkFlag := flag.String("network", "Base", "Blockchain network")
	amountFlag := flag.String("amount", "", "Amount to lock (required)")
	flag.Parse()

	if *userFlag == "" || *amountFlag == "" {
		zap.L().Fatal("Both flags are required: --user and --amount")
	}

	amount, err := decimal.NewFromString(*amountFlag)
	if err != nil {
		zap.L().Fatal("Invalid amount", zap.String("amount", *amountFlag), zap.Error(err))
	}

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeCore(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	user, err := common.ResolveUser(ctx, services.DbService, *userFlag)
	if err != nil {
		zap.L().Fatal("Failed to resolve user", zap.Error(err))
	}

	req := fundslock.LockRequest{
		UserId:            user.Id,
		Symbol:            *symbolFlag,
		ChainType:         *chainFlag,
		BlockchainNetwork: *networkFlag,
		Amount:            amount,
	}
	if *subUserFlag != "" {
		sub, err := common.ResolveUser(ctx, services.DbService, *subUserFlag)
		if err != nil {
			zap.L().Fatal("Failed to resolve sub-user", zap.Error(err))
		}
		req.SubUserId = sub.Id
	}

	lock, err := services.Locks.Lock(ctx, req)
	if err != nil {
		appErr := apperr.From(err)
		zap.L().Fatal("Lock failed",
			zap.String("code", appErr.Code),
			zap.String("message", appErr.Message),
			zap.Error(err))
	}

	common.PrintFundsLock(lock)
}
