package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/karhabty/karhabty-backend/internal/engine"
	"github.com/karhabty/karhabty-backend/internal/models"
)

func CreateRental(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input engine.CreateRentalInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(400, gin.H{"code": engine.CodeInvalidData, "error": err.Error()})
			return
		}

		rental, err := eng.CreateRental(c.Request.Context(), currentUserID(c), input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(201, rental)
	}
}

func GetRental(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		rentalID, ok := pathID(c, "id")
		if !ok {
			return
		}

		rental, err := eng.Store().GetRental(rentalID)
		if err != nil {
			c.JSON(404, gin.H{"code": engine.CodeNotFound, "error": "Rental not found"})
			return
		}

		db := eng.Store().DB()
		var payment models.RentalPayment
		db.Where("rental_id = ?", rentalID).First(&payment)
		var breakdown models.Breakdown
		db.Where("rental_id = ?", rentalID).First(&breakdown)

		c.JSON(200, gin.H{
			"rental":    rental,
			"payment":   payment,
			"breakdown": breakdown,
		})
	}
}

// ListClientRentals lists the bookings the authenticated user made as a
// renter, newest first.
func ListClientRentals(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		db := eng.Store().DB()

		var rentals []models.Rental
		query := db.Preload("Car").Order("id DESC").
			Where("renter_id = ?", currentUserID(c))
		if status := c.Query("status"); status != "" {
			query = query.Where("rentals.status = ?", status)
		}
		if err := query.Find(&rentals).Error; err != nil {
			c.JSON(500, gin.H{"error": "Failed to fetch rentals"})
			return
		}
		c.JSON(200, rentals)
	}
}

// ListOwnerRentals lists the bookings made against the authenticated
// owner's cars.
func ListOwnerRentals(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		db := eng.Store().DB()

		var rentals []models.Rental
		query := db.Preload("Car").Order("id DESC").
			Joins("JOIN cars ON cars.id = rentals.car_id").
			Where("cars.owner_id = ?", currentUserID(c))
		if status := c.Query("status"); status != "" {
			query = query.Where("rentals.status = ?", status)
		}
		if err := query.Find(&rentals).Error; err != nil {
			c.JSON(500, gin.H{"error": "Failed to fetch rentals"})
			return
		}
		c.JSON(200, rentals)
	}
}

// ConfirmBooking is the owner accepting a pending request.
func ConfirmBooking(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		rentalID, ok := pathID(c, "id")
		if !ok {
			return
		}
		rental, err := eng.OwnerConfirm(c.Request.Context(), currentUserID(c), rentalID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(200, rental)
	}
}

func OwnerConfirmArrival(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		rentalID, ok := pathID(c, "id")
		if !ok {
			return
		}
		rental, err := eng.OwnerConfirmArrival(c.Request.Context(), currentUserID(c), rentalID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(200, rental)
	}
}

func DepositPayment(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		rentalID, ok := pathID(c, "id")
		if !ok {
			return
		}
		var input engine.DepositPaymentInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(400, gin.H{"code": engine.CodeInvalidData, "error": err.Error()})
			return
		}

		rental, err := eng.PayDeposit(c.Request.Context(), currentUserID(c), rentalID, input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(200, rental)
	}
}

// NewCardDepositPayment returns the hosted-iframe URL; the charge outcome
// arrives on the webhook.
func NewCardDepositPayment(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		rentalID, ok := pathID(c, "id")
		if !ok {
			return
		}
		url, err := eng.NewCardDepositURL(c.Request.Context(), currentUserID(c), rentalID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(200, gin.H{"paymentUrl": url})
	}
}

func StartTrip(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		rentalID, ok := pathID(c, "id")
		if !ok {
			return
		}
		rental, err := eng.StartTrip(c.Request.Context(), currentUserID(c), rentalID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(200, rental)
	}
}

type stopInput struct {
	StopOrder int `json:"stopOrder" binding:"required"`
}

func StopArrival(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		rentalID, ok := pathID(c, "id")
		if !ok {
			return
		}
		var input stopInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(400, gin.H{"code": engine.CodeInvalidData, "error": err.Error()})
			return
		}
		stop, err := eng.StopArrival(c.Request.Context(), currentUserID(c), rentalID, input.StopOrder)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(200, stop)
	}
}

func EndWaiting(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		rentalID, ok := pathID(c, "id")
		if !ok {
			return
		}
		var input stopInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(400, gin.H{"code": engine.CodeInvalidData, "error": err.Error()})
			return
		}
		stop, err := eng.EndWaiting(c.Request.Context(), currentUserID(c), rentalID, input.StopOrder)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(200, stop)
	}
}

func EndTrip(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		rentalID, ok := pathID(c, "id")
		if !ok {
			return
		}
		var input engine.EndTripInput
		// Body is optional for electronic methods
		_ = c.ShouldBindJSON(&input)

		rental, err := eng.EndTrip(c.Request.Context(), currentUserID(c), rentalID, input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(200, rental)
	}
}

type cancelInput struct {
	Reason string `json:"reason"`
}

func CancelRental(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		rentalID, ok := pathID(c, "id")
		if !ok {
			return
		}
		var input cancelInput
		_ = c.ShouldBindJSON(&input)

		rental, err := eng.OwnerCancel(c.Request.Context(), currentUserID(c), rentalID, input.Reason)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(200, rental)
	}
}

// RentalAuditTrail exposes the per-rental audit log.
func RentalAuditTrail(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		rentalID, ok := pathID(c, "id")
		if !ok {
			return
		}
		entries, err := eng.Store().AuditTrail(rentalID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(200, entries)
	}
}
