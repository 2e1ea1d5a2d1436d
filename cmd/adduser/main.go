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
	"errors"
	"flag"
	"fmt"
	"regexp"

	"card-settlement-go/internal/common"
	"card-settlement-go/internal/config"
	"card-settlement-go/internal/models"
	"card-settlement-go/internal/store"
	"card-settlement-go/internal/tokens"

	"go.uber.org/zap"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email cannot be empty")
	}
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format: %s", email)
	}
	return nil
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if len(name) < 2 {
		return fmt.Errorf("name must be at least 2 characters")
	}
	return nil
}

// provisionWallet creates a dedicated Prime wallet for the user and a deposit
// address on the given network, then records it in the address book
func provisionWallet(ctx context.Context, services *common.Services, user *models.User, symbol string, network tokens.Network, walletType string) (*models.Wallet, error) {
	if network.PrimeNetworkId == "" {
		return nil, fmt.Errorf("network %s has no prime_network_id in the token registry", network.Name)
	}

	walletName := fmt.Sprintf("%s %s Card Wallet", user.Email, symbol)
	zap.L().Info("Creating Prime wallet",
		zap.String("user_id", user.Id),
		zap.String("symbol", symbol),
		zap.String("wallet_name", walletName))

	wallet, err := services.PrimeService.CreateWallet(ctx, services.Portfolio.Id, walletName, symbol, walletType)
	if err != nil {
		return nil, fmt.Errorf("error creating wallet: %w", err)
	}

	depositAddress, err := services.PrimeService.CreateDepositAddress(ctx, services.Portfolio.Id, wallet.Id, symbol, network.PrimeNetworkId)
	if err != nil {
		return nil, fmt.Errorf("error creating deposit address: %w", err)
	}

	stored, err := services.DbService.StoreWallet(ctx, store.StoreWalletParams{
		UserId:            user.Id,
		ChainType:         network.ChainType,
		Address:           depositAddress.Address,
		CustodyWalletId:   wallet.Id,
		AccountIdentifier: depositAddress.Id,
	})
	if err != nil {
		return nil, fmt.Errorf("error storing wallet to database: %w", err)
	}
	return stored, nil
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	nameFlag := flag.String("name", "", "User's full name (required)")
	emailFlag := flag.String("email", "", "User's email address (required)")
	parentFlag := flag.String("parent", "", "Parent user id or email; creates a sub-user")
	symbolFlag := flag.String("symbol", "USDC", "Asset of the user's Prime wallet")
	networkFlag := flag.String("network", "Base", "Network of the deposit address")
	noWalletFlag := flag.Bool("no-wallet", false, "Skip Prime wallet provisioning")
	flag.Parse()

	if *nameFlag == "" || *emailFlag == "" {
		zap.L().Fatal("Both flags are required: --name and --email")
	}
	if err := validateName(*nameFlag); err != nil {
		zap.L().Fatal("Invalid name", zap.Error(err))
	}
	if err := validateEmail(*emailFlag); err != nil {
		zap.L().Fatal("Invalid email", zap.Error(err))
	}

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	// Sub-users pay through their parent, so they never get a wallet
	provision := !*noWalletFlag && *parentFlag == ""

	var services *common.Services
	if provision {
		services, err = common.InitializePrime(ctx, cfg)
	} else {
		services, err = common.InitializeCore(ctx, cfg)
	}
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	var network tokens.Network
	if provision {
		var ok bool
		network, ok = services.Registry.Network(cfg.CardOrder.NetworkType, *networkFlag)
		if !ok {
			zap.L().Fatal("Unknown network", zap.String("network", *networkFlag), zap.String("network_type", cfg.CardOrder.NetworkType))
		}
	}

	params := store.CreateUserParams{Name: *nameFlag, Email: *emailFlag}
	if *parentFlag != "" {
		parent, err := common.ResolveUser(ctx, services.DbService, *parentFlag)
		if err != nil {
			zap.L().Fatal("Failed to resolve parent user", zap.Error(err))
		}
		params.ParentUserId = parent.Id
	}

	user, err := services.DbService.CreateUser(ctx, params)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicateUser):
			zap.L().Fatal("User already exists with this email", zap.String("email", *emailFlag))
		case errors.Is(err, store.ErrInvalidParent):
			zap.L().Fatal("Parent must be a main user", zap.String("parent", *parentFlag))
		}
		zap.L().Fatal("Failed to create user", zap.Error(err))
	}

	common.PrintHeader("USER CREATED", common.DefaultWidth)
	fmt.Printf("ID:     %s\n", user.Id)
	fmt.Printf("Name:   %s\n", user.Name)
	fmt.Printf("Email:  %s\n", user.Email)
	if user.IsSubUser() {
		fmt.Printf("Parent: %s\n", user.ParentUserId)
	}
	common.PrintSeparator("=", common.DefaultWidth)

	if !provision {
		fmt.Println("\nNo wallet provisioned")
		return
	}

	wallet, err := provisionWallet(ctx, services, user, *symbolFlag, network, cfg.Prime.WalletType)
	if err != nil {
		zap.L().Error("User created but wallet provisioning failed",
			zap.String("user_id", user.Id),
			zap.Error(err))
		fmt.Println("\n✗ Wallet provisioning failed; the user exists without a wallet")
		return
	}

	fmt.Printf("\n✓ %s wallet on %s: %s\n", *symbolFlag, network.Name, wallet.Address)
	zap.L().Info("User and wallet created successfully",
		zap.String("user_id", user.Id),
		zap.String("wallet_id", wallet.CustodyWalletId))
}
