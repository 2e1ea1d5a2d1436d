package api

import (
	"errors"
	"net/http"

	"card-settlement-go/internal/apperr"
	"card-settlement-go/internal/balance"
	"card-settlement-go/internal/tokens"

	"github.com/gin-gonic/gin"
)

// GetBalances reads on-chain balances for one address.
//
//	symbol       comma list or repeated
//	network      repeated; defaults to every registry network of chainType
//	address      optional when userId is given
//	userId       resolves the address and nets out the user's LOCKED funds
func (h *Handler) GetBalances(c *gin.Context) {
	ctx := c.Request.Context()

	chainType := c.DefaultQuery("chainType", tokens.ChainTypeEthereum)
	networkType := c.DefaultQuery("networkType", h.networkType)
	userId := c.Query("userId")
	address := c.Query("address")

	symbols := balance.ParseSymbols(c.QueryArray("symbol")...)
	if len(symbols) == 0 {
		writeError(c, apperr.BadRequest(apperr.CodeInvalidInput, "symbol is required", nil))
		return
	}

	if address == "" {
		if userId == "" {
			writeError(c, apperr.BadRequest(apperr.CodeInvalidInput, "address or userId is required", nil))
			return
		}
		wallets, err := h.wallets.GetWallets(ctx, userId, chainType)
		if err != nil {
			writeError(c, apperr.Internal(apperr.CodeInternal, "unable to load wallets", err))
			return
		}
		if len(wallets) == 0 {
			writeError(c, apperr.NotFound(apperr.CodeWalletNotFound, "no wallet for user", nil))
			return
		}
		address = wallets[0].Address
	}

	networks := c.QueryArray("network")
	if len(networks) == 0 && h.networks != nil {
		networks = h.networks.NetworkNames(networkType, chainType)
	}

	result, err := h.balances.Balances(ctx, balance.Query{
		Symbols:       symbols,
		Address:       address,
		ChainType:     chainType,
		Networks:      networks,
		NetworkType:   networkType,
		NetOfLocksFor: userId,
	})
	if err != nil {
		if errors.Is(err, balance.ErrInvalidAddress) {
			writeError(c, apperr.BadRequest(apperr.CodeInvalidInput, "invalid address", err))
			return
		}
		writeError(c, apperr.BadRequest(apperr.CodeInvalidInput, err.Error(), err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"address":  address,
		"balances": result,
	})
}
