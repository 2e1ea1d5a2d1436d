package main

import (
	"context"
	"flag"
	"fmt"

	"card-settlement-go/internal/apperr"
	"card-settlement-go/internal/common"
	"card-settlement-go/internal/config"
	"card-settlement-go/internal/models"
	"card-settlement-go/internal/tokens"

	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	userFlag := flag.String("user", "", "Ordering user id or email (required)")
	symbolFlag := flag.String("symbol", "USDC", "Fee token symbol")
	chainFlag := flag.String("chain", tokens.ChainTypeEthereum, "Chain type")
	networkFlag := flag.String("network", "Base", "Blockchain network")
	mapFlag := flag.String("map-card", "", "Map this physical card id instead of ordering")
	flag.Parse()

	if *userFlag == "" {
		zap.L().Fatal("--user is required")
	}

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	user, err := common.ResolveUser(ctx, services.DbService, *userFlag)
	if err != nil {
		zap.L().Fatal("Failed to resolve user", zap.Error(err))
	}

	if *mapFlag != "" {
		mapped, err := services.Orders.MapCard(ctx, models.MapCardRequest{UserId: user.Id, CardId: *mapFlag})
		if err != nil {
			fail("Card mapping failed", err)
		}
		common.PrintHeader("Card mapped", common.DefaultWidth)
		fmt.Printf("User:        %s\n", mapped.UserId)
		fmt.Printf("Card:        %s\n", mapped.CardId)
		fmt.Printf("Card status: %s\n", mapped.CardOrderStatus)
		return
	}

	result, err := services.Orders.OrderCard(ctx, models.OrderCardRequest{
		UserId:            user.Id,
		Symbol:            *symbolFlag,
		ChainType:         *chainFlag,
		BlockchainNetwork: *networkFlag,
	})
	if err != nil {
		fail("Card order failed", err)
	}

	common.PrintOrderResult(result)
}

func fail(msg string, err error) {
	appErr := apperr.From(err)
	zap.L().Fatal(msg,
		zap.String("code", appErr.Code),
		zap.String("message", appErr.Message),
		zap.Int("http_status", appErr.HTTPStatus()),
		zap.Error(err))
}
