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
	"strings"
	"time"

	"card-settlement-go/internal/balance"
	"card-settlement-go/internal/common"
	"card-settlement-go/internal/config"
	"card-settlement-go/internal/tokens"

	"go.uber.org/zap"
)

type multiFlag []string

func (m *multiFlag) String() string { return strings.Join(*m, ",") }

func (m *multiFlag) Set(value string) error {
	*m = append(*m, value)
	return nil
}

func main() {
	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	var networks multiFlag
	userFlag := flag.String("user", "", "User id or email; resolves the address and nets out LOCKED funds")
	addressFlag := flag.String("address", "", "Address to read (defaults to the user's wallet)")
	symbolFlag := flag.String("symbol", "", "Comma separated symbols (defaults to every registry symbol)")
	chainFlag := flag.String("chain", tokens.ChainTypeEthereum, "Chain type")
	networkTypeFlag := flag.String("network-type", "", "mainnet or testnet (defaults to CARD_ORDER_NETWORK_TYPE)")
	grossFlag := flag.Bool("gross", false, "Do not net out LOCKED funds")
	timeoutFlag := flag.Duration("timeout", 30*time.Second, "Overall query timeout")
	flag.Var(&networks, "network", "Network name, repeatable (defaults to every registry network)")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeoutFlag)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeCore(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	networkType := *networkTypeFlag
	if networkType == "" {
		networkType = cfg.CardOrder.NetworkType
	}

	query := balance.Query{
		Symbols:     balance.ParseSymbols(*symbolFlag),
		Address:     *addressFlag,
		ChainType:   *chainFlag,
		Networks:    networks,
		NetworkType: networkType,
	}
	if len(query.Symbols) == 0 {
		query.Symbols = services.Registry.Symbols(networkType)
	}
	if len(query.Networks) == 0 {
		query.Networks = services.Registry.NetworkNames(networkType, *chainFlag)
	}

	if *userFlag != "" {
		user, err := common.ResolveUser(ctx, services.DbService, *userFlag)
		if err != nil {
			zap.L().Fatal("Failed to resolve user", zap.Error(err))
		}
		if query.Address == "" {
			wallets, err := services.DbService.GetWallets(ctx, user.Id, *chainFlag)
			if err != nil {
				zap.L().Fatal("Failed to load wallets", zap.Error(err))
			}
			if len(wallets) == 0 {
				zap.L().Fatal("User has no wallet for chain", zap.String("user_id", user.Id), zap.String("chain_type", *chainFlag))
			}
			query.Address = wallets[0].Address
		}
		if !*grossFlag {
			query.NetOfLocksFor = user.Id
		}
	}

	if query.Address == "" {
		zap.L().Fatal("Either --user or --address is required")
	}

	result, err := services.Oracle.Balances(ctx, query)
	if err != nil {
		zap.L().Fatal("Balance query failed", zap.Error(err))
	}

	common.PrintBalances(query.Address, result)
	if query.NetOfLocksFor != "" {
		fmt.Println("\nAmounts are net of LOCKED funds")
	}
}
