package handlers

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/karhabty/karhabty-backend/internal/models"
)

// ListCards returns the user's saved cards. Tokens never leave the server;
// only masked display fields are serialised.
func ListCards(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var cards []models.SavedCard
		if err := db.Where("user_id = ?", currentUserID(c)).Find(&cards).Error; err != nil {
			c.JSON(500, gin.H{"error": "Failed to fetch cards"})
			return
		}
		c.JSON(200, cards)
	}
}

func DeleteCard(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		cardID, ok := pathID(c, "id")
		if !ok {
			return
		}

		var card models.SavedCard
		if err := db.First(&card, cardID).Error; err != nil {
			c.JSON(404, gin.H{"error": "Card not found"})
			return
		}
		if card.UserID != currentUserID(c) {
			c.JSON(403, gin.H{"error": "Not your card"})
			return
		}

		if err := db.Delete(&card).Error; err != nil {
			c.JSON(500, gin.H{"error": "Failed to delete card"})
			return
		}
		c.JSON(200, gin.H{"message": "Card deleted"})
	}
}
