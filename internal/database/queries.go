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

package database

const (
	// User queries
	userColumns = `id, name, email, COALESCE(parent_user_id, ''), card_order_status, COALESCE(card_id, ''), verification_status, created_at, updated_at`

	queryInsertUser = `
		INSERT INTO users (id, name, email, parent_user_id, card_order_status, verification_status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetUserById = `
		SELECT ` + userColumns + `
		FROM users
		WHERE id = ?`

	queryGetUserByEmail = `
		SELECT ` + userColumns + `
		FROM users
		WHERE email = ?`

	queryListUsers = `
		SELECT ` + userColumns + `
		FROM users
		ORDER BY created_at`

	queryListSubUsers = `
		SELECT ` + userColumns + `
		FROM users
		WHERE parent_user_id = ?
		ORDER BY created_at`

	queryMapCard = `
		UPDATE users
		SET card_id = ?, card_order_status = ?, updated_at = ?
		WHERE id = ? AND card_order_status IN (?, ?, ?)`

	queryAdvanceCardOrderStatus = `
		UPDATE users
		SET card_order_status = ?, updated_at = ?
		WHERE id = ? AND card_order_status = ?`

	// Wallet queries
	walletColumns = `id, user_id, chain_type, address, custody_wallet_id, account_identifier, created_at`

	queryInsertWallet = `
		INSERT INTO wallets (id, user_id, chain_type, address, custody_wallet_id, account_identifier, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING ` + walletColumns

	queryGetUserWallets = `
		SELECT ` + walletColumns + `
		FROM wallets
		WHERE user_id = ? AND chain_type = ?
		ORDER BY created_at`

	queryListCustodyWalletIds = `
		SELECT DISTINCT custody_wallet_id
		FROM wallets
		ORDER BY custody_wallet_id`

	// Funds lock queries
	fundsLockColumns = `id, user_id, COALESCE(sub_user_id, ''), symbol, chain_type, blockchain_network, amount_locked, status, type, created_at, updated_at`

	queryInsertFundsLock = `
		INSERT INTO funds_locks (id, user_id, sub_user_id, symbol, chain_type, blockchain_network, amount_locked, status, type, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING ` + fundsLockColumns

	queryGetFundsLock = `
		SELECT ` + fundsLockColumns + `
		FROM funds_locks
		WHERE id = ?`

	queryFindActiveLocks = `
		SELECT ` + fundsLockColumns + `
		FROM funds_locks
		WHERE user_id = ? AND COALESCE(sub_user_id, '') = ? AND symbol = ?
		  AND chain_type = ? AND blockchain_network = ? AND status = ? AND type = ?
		ORDER BY created_at`

	queryLockedAmounts = `
		SELECT amount_locked
		FROM funds_locks
		WHERE user_id = ? AND symbol = ? AND chain_type = ? AND blockchain_network = ? AND status = ?`

	queryConsumeFundsLock = `
		UPDATE funds_locks
		SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`

	// Platform debit queries (append-only: no UPDATE or DELETE)
	platformDebitColumns = `id, user_id, debited_user_id, symbol, amount, transaction_hash, chain_type, blockchain_network, transaction_type, status, idempotency_key, created_at`

	queryInsertPlatformDebit = `
		INSERT INTO platform_debits (id, user_id, debited_user_id, symbol, amount, transaction_hash, chain_type, blockchain_network, transaction_type, status, idempotency_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetPlatformDebitByHash = `
		SELECT ` + platformDebitColumns + `
		FROM platform_debits
		WHERE transaction_hash = ?`

	queryListPlatformDebits = `
		SELECT ` + platformDebitColumns + `
		FROM platform_debits
		WHERE user_id = ? OR debited_user_id = ?
		ORDER BY created_at DESC`

	queryCountDebits = `
		SELECT COUNT(*)
		FROM platform_debits
		WHERE user_id = ? AND transaction_type = ? AND status = ?`

	// Operation lock queries
	queryReleaseStaleOperationLocks = `
		UPDATE operation_locks
		SET status = ?, updated_at = ?
		WHERE operation_name = ? AND user_id = ? AND status = ? AND created_at < ?`

	queryInsertOperationLock = `
		INSERT INTO operation_locks (id, operation_name, user_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	queryReleaseOperationLock = `
		UPDATE operation_locks
		SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`

	// Fee setting queries
	queryGetFeeSetting = `
		SELECT name, amount, network_type, settlement_address, updated_at
		FROM fee_settings
		WHERE name = ?`

	queryUpsertFeeSetting = `
		INSERT INTO fee_settings (name, amount, network_type, settlement_address, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			amount = excluded.amount,
			network_type = excluded.network_type,
			settlement_address = excluded.settlement_address,
			updated_at = excluded.updated_at`
)
