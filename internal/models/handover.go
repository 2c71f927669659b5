package models

import (
	"time"

	"gorm.io/gorm"
)

// Handover holds the two-sided evidence trail of a rental: signed contract,
// pickup/return confirmations, odometer readings and car photos. Every field
// is set exactly once; a second write is rejected by the engine.
type Handover struct {
	gorm.Model
	RentalID uint `json:"rentalId" gorm:"not null;uniqueIndex"`

	OwnerContractImage string     `json:"ownerContractImage,omitempty"`
	OwnerSignedAt      *time.Time `json:"ownerSignedAt,omitempty"`
	RenterSignedAt     *time.Time `json:"renterSignedAt,omitempty"`

	OwnerPickupDoneAt  *time.Time `json:"ownerPickupDoneAt,omitempty"`
	RenterPickupDoneAt *time.Time `json:"renterPickupDoneAt,omitempty"`
	OwnerReturnDoneAt  *time.Time `json:"ownerReturnDoneAt,omitempty"`
	RenterReturnDoneAt *time.Time `json:"renterReturnDoneAt,omitempty"`

	StartOdometer      *int   `json:"startOdometer,omitempty"`
	StartOdometerImage string `json:"startOdometerImage,omitempty"`
	EndOdometer        *int   `json:"endOdometer,omitempty"`
	EndOdometerImage   string `json:"endOdometerImage,omitempty"`

	PickupCarImage string `json:"pickupCarImage,omitempty"`
	ReturnCarImage string `json:"returnCarImage,omitempty"`

	// Cash rentals only: the owner's explicit confirmation of collecting
	// the remaining / excess amounts in cash.
	RemainingCashConfirmedAt *time.Time `json:"remainingCashConfirmedAt,omitempty"`
	ExcessCashConfirmedAt    *time.Time `json:"excessCashConfirmedAt,omitempty"`
}

// TableName specifies the table name
func (Handover) TableName() string {
	return "handovers"
}
