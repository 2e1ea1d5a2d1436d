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

package api

import (
	"context"
	"net/http"
	"time"

	"card-settlement-go/internal/apperr"
	"card-settlement-go/internal/balance"
	"card-settlement-go/internal/fundslock"
	"card-settlement-go/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type CardOrders interface {
	OrderCard(ctx context.Context, req models.OrderCardRequest) (*models.OrderCardResult, error)
	MapCard(ctx context.Context, req models.MapCardRequest) (*models.MapCardResult, error)
}

type FundsLocker interface {
	Lock(ctx context.Context, req fundslock.LockRequest) (*models.FundsLock, error)
}

type BalanceQuerier interface {
	Balances(ctx context.Context, q balance.Query) (models.Balances, error)
}

// WalletLookup resolves a user's custody address when a balance query names a user
type WalletLookup interface {
	GetWallets(ctx context.Context, userId, chainType string) ([]models.Wallet, error)
}

type NetworkLister interface {
	NetworkNames(networkType, chainType string) []string
}

// Config wires the engine components behind the HTTP routes
type Config struct {
	Orders      CardOrders
	Locks       FundsLocker
	Balances    BalanceQuerier
	Wallets     WalletLookup
	Networks    NetworkLister
	Health      func(ctx context.Context) error
	NetworkType string
}

// Handler adapts engine operations to JSON over HTTP
type Handler struct {
	orders      CardOrders
	locks       FundsLocker
	balances    BalanceQuerier
	wallets     WalletLookup
	networks    NetworkLister
	health      func(ctx context.Context) error
	networkType string
}

func NewHandler(cfg Config) *Handler {
	return &Handler{
		orders:      cfg.Orders,
		locks:       cfg.Locks,
		balances:    cfg.Balances,
		wallets:     cfg.Wallets,
		networks:    cfg.Networks,
		health:      cfg.Health,
		networkType: cfg.NetworkType,
	}
}

// NewRouter registers all routes on a fresh gin engine
func NewRouter(h *Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", h.Health)

	v1 := router.Group("/api/v1")
	v1.POST("/card-orders", h.OrderCard)
	v1.POST("/cards/map", h.MapCard)
	v1.POST("/funds-locks", h.LockFunds)
	v1.GET("/balances", h.GetBalances)

	return router
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		zap.L().Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)))
	}
}

// writeError renders err as the single error response shape
func writeError(c *gin.Context, err error) {
	appErr := apperr.From(err)
	status := appErr.HTTPStatus()

	if status >= http.StatusInternalServerError {
		zap.L().Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.String("code", appErr.Code),
			zap.Error(err))
	}

	c.AbortWithStatusJSON(status, models.ErrorResponse{
		StatusCode: status,
		Error:      http.StatusText(status),
		Code:       appErr.Code,
		Message:    appErr.Message,
	})
}

func bindError(err error) error {
	return apperr.BadRequest(apperr.CodeInvalidInput, "invalid request body", err)
}

func (h *Handler) Health(c *gin.Context) {
	if h.health != nil {
		if err := h.health(c.Request.Context()); err != nil {
			zap.L().Warn("Health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
