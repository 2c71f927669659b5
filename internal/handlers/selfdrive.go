package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/karhabty/karhabty-backend/internal/engine"
	"github.com/karhabty/karhabty-backend/internal/services"
)

// OwnerPickupHandover uploads the signed contract image and completes the
// owner's half of the self-drive pickup. Multipart form: contractImage file,
// cashCollected flag for cash rentals.
func OwnerPickupHandover(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		rentalID, ok := pathID(c, "id")
		if !ok {
			return
		}

		file, err := c.FormFile("contractImage")
		if err != nil {
			c.JSON(400, gin.H{"code": engine.CodeContractImage, "error": "contractImage file is required"})
			return
		}
		imageURL, err := services.UploadEvidence(file, services.FolderContracts)
		if err != nil {
			c.JSON(500, gin.H{"error": "Failed to store contract image"})
			return
		}

		rental, err := eng.OwnerPickupHandover(c.Request.Context(), currentUserID(c), rentalID, engine.OwnerPickupInput{
			ContractImageURL:       imageURL,
			CashRemainingCollected: c.PostForm("cashCollected") == "true",
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(200, rental)
	}
}

// RenterPickupHandover uploads the car photo and start odometer and completes
// the renter's half of the pickup. Multipart form: carImage, odometerImage,
// odometer value.
func RenterPickupHandover(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		rentalID, ok := pathID(c, "id")
		if !ok {
			return
		}

		carFile, err := c.FormFile("carImage")
		if err != nil {
			c.JSON(400, gin.H{"code": engine.CodeCarImageRequired, "error": "carImage file is required"})
			return
		}
		carURL, err := services.UploadEvidence(carFile, services.FolderCarPhotos)
		if err != nil {
			c.JSON(500, gin.H{"error": "Failed to store car image"})
			return
		}

		var odoURL string
		if odoFile, err := c.FormFile("odometerImage"); err == nil {
			odoURL, err = services.UploadEvidence(odoFile, services.FolderOdometer)
			if err != nil {
				c.JSON(500, gin.H{"error": "Failed to store odometer image"})
				return
			}
		}

		input := engine.RenterPickupInput{
			CarImageURL:      carURL,
			OdometerImageURL: odoURL,
		}
		if v := c.PostForm("odometer"); v != "" {
			reading, err := strconv.Atoi(v)
			if err != nil {
				c.JSON(400, gin.H{"code": engine.CodeInvalidData, "error": "odometer must be a number"})
				return
			}
			input.StartOdometer = &reading
		}

		rental, err := eng.RenterPickupHandover(c.Request.Context(), currentUserID(c), rentalID, input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(200, rental)
	}
}

// RenterDropoffHandover uploads the return photo and end odometer; the engine
// computes and collects the excess.
func RenterDropoffHandover(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		rentalID, ok := pathID(c, "id")
		if !ok {
			return
		}

		carFile, err := c.FormFile("carImage")
		if err != nil {
			c.JSON(400, gin.H{"code": engine.CodeCarImageRequired, "error": "carImage file is required"})
			return
		}
		carURL, err := services.UploadEvidence(carFile, services.FolderCarPhotos)
		if err != nil {
			c.JSON(500, gin.H{"error": "Failed to store car image"})
			return
		}

		var odoURL string
		if odoFile, err := c.FormFile("odometerImage"); err == nil {
			odoURL, err = services.UploadEvidence(odoFile, services.FolderOdometer)
			if err != nil {
				c.JSON(500, gin.H{"error": "Failed to store odometer image"})
				return
			}
		}

		input := engine.RenterDropoffInput{
			CarImageURL:      carURL,
			OdometerImageURL: odoURL,
		}
		if v := c.PostForm("odometer"); v != "" {
			reading, err := strconv.Atoi(v)
			if err != nil {
				c.JSON(400, gin.H{"code": engine.CodeInvalidData, "error": "odometer must be a number"})
				return
			}
			input.EndOdometer = &reading
		}

		rental, err := eng.RenterDropoffHandover(c.Request.Context(), currentUserID(c), rentalID, input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(200, rental)
	}
}

// OwnerDropoffHandover closes the rental after the owner takes the car back.
func OwnerDropoffHandover(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		rentalID, ok := pathID(c, "id")
		if !ok {
			return
		}

		var input struct {
			CashExcessCollected bool `json:"cashExcessCollected"`
		}
		_ = c.ShouldBindJSON(&input)

		rental, err := eng.OwnerDropoffHandover(c.Request.Context(), currentUserID(c), rentalID, engine.OwnerDropoffInput{
			CashExcessCollected: input.CashExcessCollected,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(200, rental)
	}
}
