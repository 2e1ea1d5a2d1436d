package models

import "time"

// Portfolio represents a Prime portfolio
type Portfolio struct {
	Id   string
	Name string
}

// PrimeWallet represents a Prime wallet
type PrimeWallet struct {
	Id     string
	Name   string
	Symbol string
	Type   string
}

// DepositAddress is a blockchain address provisioned on a Prime wallet
type DepositAddress struct {
	Id      string
	Address string
	Network string
}

// Withdrawal is Prime's acknowledgement of a blockchain withdrawal
type Withdrawal struct {
	ActivityId     string
	Symbol         string
	NetworkId      string
	Amount         string
	Destination    string
	IdempotencyKey string
}

// TransferTarget is where a Prime withdrawal was sent
type TransferTarget struct {
	Address           string
	AccountIdentifier string
}

// PrimeTransaction is a wallet withdrawal as listed by Prime. TransactionId
// carries the on-chain hash once broadcast.
type PrimeTransaction struct {
	Id             string
	WalletId       string
	Type           string
	Status         string
	Symbol         string
	Amount         string
	CreatedAt      time.Time
	CompletedAt    time.Time
	TransferTo     TransferTarget
	TransactionId  string
	Network        string
	IdempotencyKey string
}
