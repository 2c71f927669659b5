package handlers

import (
	"io"

	"github.com/gin-gonic/gin"

	"github.com/karhabty/karhabty-backend/internal/webhooks"
)

// PaymentWebhook ingests gateway callbacks. Unauthenticated: the HMAC on the
// body is the authentication. A duplicate delivery gets 200 with no mutation
// so the gateway stops retrying.
func PaymentWebhook(reconciler *webhooks.Reconciler) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(400, gin.H{"error": "Cannot read body"})
			return
		}

		sig := c.Query("hmac")
		if sig == "" {
			sig = c.GetHeader("hmac")
		}

		if err := reconciler.Handle(c.Request.Context(), body, sig); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(200, gin.H{"message": "ok"})
	}
}
