package handlers

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/karhabty/karhabty-backend/internal/models"
)

type registerDeviceInput struct {
	FCMToken string `json:"fcmToken" binding:"required"`
	Platform string `json:"platform"`
}

// RegisterDevice stores an FCM token so lifecycle pushes reach the device.
// Re-registering the same token moves it to the current user.
func RegisterDevice(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input registerDeviceInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}
		userID := currentUserID(c)

		var device models.UserDevice
		err := db.Where("fcm_token = ?", input.FCMToken).First(&device).Error
		if err == gorm.ErrRecordNotFound {
			device = models.UserDevice{
				UserID:   userID,
				FCMToken: input.FCMToken,
				Platform: input.Platform,
			}
			if err := db.Create(&device).Error; err != nil {
				c.JSON(500, gin.H{"error": "Failed to register device"})
				return
			}
			c.JSON(201, gin.H{"message": "Device registered"})
			return
		}
		if err != nil {
			c.JSON(500, gin.H{"error": "Failed to register device"})
			return
		}

		device.UserID = userID
		device.Platform = input.Platform
		if err := db.Save(&device).Error; err != nil {
			c.JSON(500, gin.H{"error": "Failed to register device"})
			return
		}
		c.JSON(200, gin.H{"message": "Device updated"})
	}
}

func UnregisterDevice(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input registerDeviceInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}

		db.Where("fcm_token = ? AND user_id = ?", input.FCMToken, currentUserID(c)).
			Delete(&models.UserDevice{})
		c.JSON(200, gin.H{"message": "Device unregistered"})
	}
}
