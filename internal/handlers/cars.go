package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/karhabty/karhabty-backend/internal/models"
)

type CreateCarInput struct {
	Make          string          `json:"make" binding:"required"`
	Model         string          `json:"model" binding:"required"`
	Year          int             `json:"year"`
	PlateNumber   string          `json:"plateNumber" binding:"required"`
	Color         string          `json:"color"`
	Seats         int             `json:"seats"`
	DailyPrice    decimal.Decimal `json:"dailyPrice" binding:"required"`
	DailyKmLimit  int             `json:"dailyKmLimit" binding:"required"`
	ExtraKmRate   decimal.Decimal `json:"extraKmRate" binding:"required"`
	ExtraHourRate decimal.Decimal `json:"extraHourRate" binding:"required"`
	ImageURL      string          `json:"imageUrl"`
}

func CreateCar(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString("userType") != string(models.UserTypeOwner) {
			c.JSON(403, gin.H{"error": "Only owners can list cars"})
			return
		}

		var input CreateCarInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}

		car := models.Car{
			OwnerID:       currentUserID(c),
			Make:          input.Make,
			CarModel:      input.Model,
			Year:          input.Year,
			PlateNumber:   input.PlateNumber,
			Color:         input.Color,
			Seats:         input.Seats,
			DailyPrice:    input.DailyPrice,
			DailyKmLimit:  input.DailyKmLimit,
			ExtraKmRate:   input.ExtraKmRate,
			ExtraHourRate: input.ExtraHourRate,
			IsAvailable:   true,
			ImageURL:      input.ImageURL,
		}

		if err := db.Create(&car).Error; err != nil {
			c.JSON(500, gin.H{"error": "Failed to create car: " + err.Error()})
			return
		}
		c.JSON(201, car)
	}
}

func ListCars(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var cars []models.Car
		query := db.Where("is_available = ?", true)
		if c.Query("mine") == "true" {
			query = db.Where("owner_id = ?", currentUserID(c))
		}
		if err := query.Find(&cars).Error; err != nil {
			c.JSON(500, gin.H{"error": "Failed to fetch cars"})
			return
		}
		c.JSON(200, cars)
	}
}

func GetCar(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		carID, ok := pathID(c, "id")
		if !ok {
			return
		}

		var car models.Car
		if err := db.Preload("Owner").First(&car, carID).Error; err != nil {
			c.JSON(404, gin.H{"error": "Car not found"})
			return
		}
		c.JSON(200, car)
	}
}

type UpdateCarInput struct {
	IsAvailable   *bool            `json:"isAvailable"`
	DailyPrice    *decimal.Decimal `json:"dailyPrice"`
	DailyKmLimit  *int             `json:"dailyKmLimit"`
	ExtraKmRate   *decimal.Decimal `json:"extraKmRate"`
	ExtraHourRate *decimal.Decimal `json:"extraHourRate"`
	ImageURL      *string          `json:"imageUrl"`
}

func UpdateCar(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		carID, ok := pathID(c, "id")
		if !ok {
			return
		}

		var car models.Car
		if err := db.First(&car, carID).Error; err != nil {
			c.JSON(404, gin.H{"error": "Car not found"})
			return
		}
		if car.OwnerID != currentUserID(c) {
			c.JSON(403, gin.H{"error": "Not your car"})
			return
		}

		var input UpdateCarInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}

		updates := map[string]interface{}{}
		if input.IsAvailable != nil {
			updates["is_available"] = *input.IsAvailable
		}
		if input.DailyPrice != nil {
			updates["daily_price"] = *input.DailyPrice
		}
		if input.DailyKmLimit != nil {
			updates["daily_km_limit"] = *input.DailyKmLimit
		}
		if input.ExtraKmRate != nil {
			updates["extra_km_rate"] = *input.ExtraKmRate
		}
		if input.ExtraHourRate != nil {
			updates["extra_hour_rate"] = *input.ExtraHourRate
		}
		if input.ImageURL != nil {
			updates["image_url"] = *input.ImageURL
		}
		if len(updates) == 0 {
			c.JSON(400, gin.H{"error": "Nothing to update"})
			return
		}

		if err := db.Model(&car).Updates(updates).Error; err != nil {
			c.JSON(500, gin.H{"error": "Failed to update car"})
			return
		}
		c.JSON(200, car)
	}
}
