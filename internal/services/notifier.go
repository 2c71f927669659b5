package services

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/karhabty/karhabty-backend/internal/models"
)

// RentalNotifier fans a lifecycle event out to both parties of a rental over
// the websocket hub and FCM. Delivery is best effort.
type RentalNotifier struct {
	db  *gorm.DB
	hub *Hub
}

func NewRentalNotifier(db *gorm.DB, hub *Hub) *RentalNotifier {
	return &RentalNotifier{db: db, hub: hub}
}

var eventTitles = map[string]string{
	"rental_created":          "New booking request",
	"owner_confirm":           "Booking accepted",
	"deposit_paid":            "Deposit received",
	"deposit_expired":         "Booking expired",
	"owner_cancel":            "Booking canceled",
	"owner_confirm_arrival":   "Your driver has arrived",
	"start_trip":              "Trip started",
	"end_trip":                "Trip finished",
	"owner_pickup_handover":   "Pickup handover updated",
	"renter_pickup_handover":  "Pickup handover updated",
	"renter_dropoff_handover": "Return handover updated",
	"owner_dropoff_handover":  "Rental finished",
}

// NotifyRentalEvent pushes one event to the renter and the car's owner.
func (n *RentalNotifier) NotifyRentalEvent(rental *models.Rental, event string, data map[string]interface{}) {
	userIDs := []uint{rental.RenterID}

	var car models.Car
	if err := n.db.First(&car, rental.CarID).Error; err == nil {
		userIDs = append(userIDs, car.OwnerID)
	}

	if n.hub != nil {
		n.hub.SendRentalEvent(userIDs, RentalEvent{
			RentalID: rental.ID,
			Event:    event,
			Status:   rental.Status,
			Data:     data,
		})
	}

	title := eventTitles[event]
	if title == "" {
		title = "Rental update"
	}
	body := fmt.Sprintf("Rental #%d is now %s", rental.ID, rental.Status)
	push := map[string]string{
		"rentalId": fmt.Sprintf("%d", rental.ID),
		"event":    event,
		"status":   rental.Status,
	}
	for _, userID := range userIDs {
		SendPushToUser(n.db, userID, title, body, push)
	}
}
