package handlers

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/karhabty/karhabty-backend/internal/models"
)

type CreateReviewInput struct {
	RentalID   uint    `json:"rentalId" binding:"required"`
	TargetKind string  `json:"targetKind" binding:"required,oneof=car user_role"`
	Rating     float64 `json:"rating" binding:"required,min=1,max=5"`
	Comment    string  `json:"comment"`
}

// CreateReview lets either party rate the other (or the car) after the trip
// finished. One review per (rental, reviewer, target kind).
func CreateReview(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input CreateReviewInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}
		userID := currentUserID(c)

		var rental models.Rental
		if err := db.Preload("Car").First(&rental, input.RentalID).Error; err != nil {
			c.JSON(404, gin.H{"error": "Rental not found"})
			return
		}
		if rental.Status != models.RentalStatusFinished {
			c.JSON(409, gin.H{"error": "Rental is not finished yet"})
			return
		}

		isRenter := rental.RenterID == userID
		isOwner := rental.Car != nil && rental.Car.OwnerID == userID
		if !isRenter && !isOwner {
			c.JSON(403, gin.H{"error": "Not a party of this rental"})
			return
		}

		var targetID uint
		switch models.ReviewTargetKind(input.TargetKind) {
		case models.ReviewTargetCar:
			if !isRenter {
				c.JSON(403, gin.H{"error": "Only the renter reviews the car"})
				return
			}
			targetID = rental.CarID
		case models.ReviewTargetUserRole:
			if isRenter {
				targetID = rental.Car.OwnerID
			} else {
				targetID = rental.RenterID
			}
		}

		review := models.Review{
			RentalID:   input.RentalID,
			ReviewerID: userID,
			TargetKind: models.ReviewTargetKind(input.TargetKind),
			TargetID:   targetID,
			Rating:     input.Rating,
			Comment:    input.Comment,
		}
		if err := db.Create(&review).Error; err != nil {
			// Unique index: one review per rental and target
			c.JSON(409, gin.H{"error": "Review already submitted"})
			return
		}
		c.JSON(201, review)
	}
}

func ListCarReviews(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		carID, ok := pathID(c, "id")
		if !ok {
			return
		}

		var reviews []models.Review
		if err := db.Where("target_kind = ? AND target_id = ?", models.ReviewTargetCar, carID).
			Order("id DESC").Find(&reviews).Error; err != nil {
			c.JSON(500, gin.H{"error": "Failed to fetch reviews"})
			return
		}
		c.JSON(200, reviews)
	}
}
