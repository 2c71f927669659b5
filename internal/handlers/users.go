package handlers

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/karhabty/karhabty-backend/internal/models"
)

func GetProfile(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := currentUserID(c)

		var user models.User
		if err := db.First(&user, userID).Error; err != nil {
			c.JSON(404, gin.H{"error": "User not found"})
			return
		}

		c.JSON(200, gin.H{
			"id":                   user.ID,
			"email":                user.Email,
			"username":             user.Username,
			"phoneNumber":          user.PhoneNumber,
			"userType":             user.UserType,
			"cannotAcceptBookings": user.CannotAcceptBookings,
		})
	}
}

type UpdateProfileInput struct {
	Username string `json:"username"`
	Phone    string `json:"phone"`
}

func UpdateProfile(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := currentUserID(c)

		var input UpdateProfileInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}

		updates := map[string]interface{}{}
		if input.Username != "" {
			updates["username"] = input.Username
		}
		if input.Phone != "" {
			updates["phone_number"] = input.Phone
		}
		if len(updates) == 0 {
			c.JSON(400, gin.H{"error": "Nothing to update"})
			return
		}

		if err := db.Model(&models.User{}).Where("id = ?", userID).Updates(updates).Error; err != nil {
			c.JSON(500, gin.H{"error": "Failed to update profile"})
			return
		}
		c.JSON(200, gin.H{"message": "Profile updated"})
	}
}
