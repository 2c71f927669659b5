package models

import (
	"time"

	"gorm.io/gorm"
)

// PlannedTrip is the multi-stop itinerary of a with-driver rental.
type PlannedTrip struct {
	gorm.Model
	RentalID  uint          `json:"rentalId" gorm:"not null;uniqueIndex"`
	StartedAt *time.Time    `json:"startedAt,omitempty"`
	EndedAt   *time.Time    `json:"endedAt,omitempty"`
	Stops     []PlannedStop `json:"stops,omitempty" gorm:"foreignKey:TripID"`
}

// TableName specifies the table name
func (PlannedTrip) TableName() string {
	return "planned_trips"
}

// PlannedStop is one stop on a planned trip. Immutable once the trip starts,
// except for the arrival/waiting fields which are written exactly once each.
type PlannedStop struct {
	gorm.Model
	TripID    uint    `json:"tripId" gorm:"not null;index;uniqueIndex:idx_trip_stop_order,priority:1"`
	StopOrder int     `json:"stopOrder" gorm:"not null;uniqueIndex:idx_trip_stop_order,priority:2"`
	Lat       float64 `json:"lat" gorm:"not null"`
	Lng       float64 `json:"lng" gorm:"not null"`
	Address   string  `json:"address"`

	ApproxWaitingMinutes int        `json:"approxWaitingMinutes" gorm:"not null;default:0"`
	ActualWaitingMinutes int        `json:"actualWaitingMinutes" gorm:"not null;default:0"`
	WaitingStartedAt     *time.Time `json:"waitingStartedAt,omitempty"`
	WaitingEndedAt       *time.Time `json:"waitingEndedAt,omitempty"`
	LocationVerified     bool       `json:"locationVerified" gorm:"not null;default:false"`
	IsCompleted          bool       `json:"isCompleted" gorm:"not null;default:false"`
}

// TableName specifies the table name
func (PlannedStop) TableName() string {
	return "planned_stops"
}
