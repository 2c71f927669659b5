package models

import (
	"time"

	"gorm.io/gorm"
)

// Rental states. The literals are persisted as-is and are part of the API
// contract; do not rename.
const (
	RentalStatusPendingOwnerConfirmation = "PendingOwnerConfirmation"
	RentalStatusDepositRequired          = "DepositRequired"
	RentalStatusConfirmed                = "Confirmed"
	RentalStatusOngoing                  = "Ongoing"
	RentalStatusFinished                 = "Finished"
	RentalStatusCanceled                 = "Canceled"
)

type RentalMode string

const (
	ModeWithDriver    RentalMode = "WithDriver"
	ModeWithoutDriver RentalMode = "WithoutDriver" // self-drive
)

type PaymentMethod string

const (
	MethodWallet PaymentMethod = "Wallet"
	MethodCard   PaymentMethod = "Card"
	MethodCash   PaymentMethod = "Cash"
)

// Rental is the aggregate root of a booking. Payment, breakdown, trip and
// handover rows hang off it by rental_id; the rental is never deleted and
// Finished/Canceled are terminal.
type Rental struct {
	gorm.Model
	RenterID uint `json:"renterId" gorm:"not null;index"`
	CarID    uint `json:"carId" gorm:"not null;index"`

	Mode          RentalMode    `json:"mode" gorm:"not null"`
	PaymentMethod PaymentMethod `json:"paymentMethod" gorm:"not null"`
	SavedCardID   *uint         `json:"savedCardId,omitempty"`

	StartDate time.Time `json:"startDate" gorm:"not null"`
	EndDate   time.Time `json:"endDate" gorm:"not null"`

	PickupLat   float64 `json:"pickupLat" gorm:"not null"`
	PickupLng   float64 `json:"pickupLng" gorm:"not null"`
	PickupAddr  string  `json:"pickupAddress" gorm:"not null"`
	DropoffLat  float64 `json:"dropoffLat"`
	DropoffLng  float64 `json:"dropoffLng"`
	DropoffAddr string  `json:"dropoffAddress"`

	Status         string `json:"status" gorm:"not null;default:'PendingOwnerConfirmation'"`
	OwnerArrived   bool   `json:"ownerArrived" gorm:"not null;default:false"`
	CancelReason   string `json:"cancelReason,omitempty"`
	// Bumped on every state-changing write; concurrent writers lose.
	LockVersion int `json:"-" gorm:"not null;default:0"`

	Renter *User `json:"renter,omitempty" gorm:"foreignKey:RenterID"`
	Car    *Car  `json:"car,omitempty" gorm:"foreignKey:CarID"`
}

// TableName specifies the table name
func (Rental) TableName() string {
	return "rentals"
}

// IsTerminal reports whether the rental can never change state again.
func (r *Rental) IsTerminal() bool {
	return r.Status == RentalStatusFinished || r.Status == RentalStatusCanceled
}

// IsSelfDrive reports whether the rental is a self-drive booking.
func (r *Rental) IsSelfDrive() bool {
	return r.Mode == ModeWithoutDriver
}
