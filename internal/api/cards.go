package api

import (
	"net/http"

	"card-settlement-go/internal/apperr"
	"card-settlement-go/internal/fundslock"
	"card-settlement-go/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

func (h *Handler) OrderCard(c *gin.Context) {
	var req models.OrderCardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, bindError(err))
		return
	}

	result, err := h.orders.OrderCard(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) MapCard(c *gin.Context) {
	var req models.MapCardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, bindError(err))
		return
	}

	result, err := h.orders.MapCard(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) LockFunds(c *gin.Context) {
	var req models.LockFundsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, bindError(err))
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(c, apperr.BadRequest(apperr.CodeInvalidInput, "amount must be a decimal string", err))
		return
	}

	lock, err := h.locks.Lock(c.Request.Context(), fundslock.LockRequest{
		UserId:            req.UserId,
		SubUserId:         req.SubUserId,
		Symbol:            req.Symbol,
		ChainType:         req.ChainType,
		BlockchainNetwork: req.BlockchainNetwork,
		Amount:            amount,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, lock)
}
