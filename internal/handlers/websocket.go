package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/karhabty/karhabty-backend/internal/services"
)

// HandleWebSocket upgrades the connection and streams rental lifecycle
// events to the authenticated user.
func HandleWebSocket(hub *services.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := services.UpgradeConnection(c.Writer, c.Request)
		if err != nil {
			c.JSON(400, gin.H{"error": "Failed to upgrade connection"})
			return
		}

		client := &services.Client{
			ID:       currentUserID(c),
			UserType: c.GetString("userType"),
			Conn:     conn,
			Send:     make(chan []byte, 256),
			Hub:      hub,
		}

		hub.Register(client)
		go client.WritePump()
		go client.ReadPump()
	}
}
