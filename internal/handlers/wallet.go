package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/karhabty/karhabty-backend/internal/engine"
)

func GetWalletBalance(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		balance, err := eng.Ledger().Balance(currentUserID(c))
		if err != nil {
			respondError(c, err)
			return
		}
		below, err := eng.Ledger().BelowFloor(currentUserID(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(200, gin.H{"balance": balance, "atFloor": below})
	}
}

func GetWalletHistory(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 50
		if v, err := intQuery(c, "limit"); err == nil && v > 0 {
			limit = v
		}
		entries, err := eng.Ledger().History(currentUserID(c), limit)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(200, entries)
	}
}

type topUpInput struct {
	AmountCents int64 `json:"amountCents" binding:"required"`
}

// WalletTopUp returns a hosted-payment URL; the wallet is credited when the
// gateway webhook confirms the charge.
func WalletTopUp(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input topUpInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(400, gin.H{"code": engine.CodeMissingAmount, "error": "amountCents is required"})
			return
		}

		url, err := eng.WalletTopUpURL(c.Request.Context(), currentUserID(c), input.AmountCents)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(200, gin.H{"paymentUrl": url})
	}
}
