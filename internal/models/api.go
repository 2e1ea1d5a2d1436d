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

package models

// OrderCardRequest is the validated input to a card order
type OrderCardRequest struct {
	UserId            string `json:"userId" binding:"required"`
	Symbol            string `json:"symbol" binding:"required"`
	ChainType         string `json:"chainType" binding:"required"`
	BlockchainNetwork string `json:"blockchainNetwork" binding:"required"`
}

// OrderCardResult is returned to callers after a successful settlement
type OrderCardResult struct {
	Status          string          `json:"status"`
	Message         string          `json:"message"`
	UserId          string          `json:"userId"`
	TransactionHash string          `json:"transactionHash"`
	CardOrderStatus CardOrderStatus `json:"cardOrderStatus"`
}

// MapCardRequest links a physical card to a user with an ordered card
type MapCardRequest struct {
	UserId string `json:"userId" binding:"required"`
	CardId string `json:"cardId" binding:"required"`
}

// MapCardResult is returned after a card has been mapped
type MapCardResult struct {
	Status          string          `json:"status"`
	UserId          string          `json:"userId"`
	CardId          string          `json:"cardId"`
	CardOrderStatus CardOrderStatus `json:"cardOrderStatus"`
}

// LockFundsRequest reserves funds, optionally on behalf of a sub-user
type LockFundsRequest struct {
	UserId            string `json:"userId" binding:"required"`
	SubUserId         string `json:"subUserId"`
	Symbol            string `json:"symbol" binding:"required"`
	ChainType         string `json:"chainType" binding:"required"`
	BlockchainNetwork string `json:"blockchainNetwork" binding:"required"`
	Amount            string `json:"amount" binding:"required"`
}

// ErrorResponse is the single externally visible error shape
type ErrorResponse struct {
	StatusCode int    `json:"statusCode"`
	Error      string `json:"error"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

// Balances maps symbol -> network -> balance string or sentinel
type Balances map[string]map[string]string
