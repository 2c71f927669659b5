package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Breakdown is the cost sheet of a rental, written once at creation and
// updated once more at end of trip with the excess figures. With-driver and
// self-drive rentals populate different column groups; the shared head
// (final cost, commission split) is always set.
type Breakdown struct {
	gorm.Model
	RentalID uint       `json:"rentalId" gorm:"not null;uniqueIndex"`
	Mode     RentalMode `json:"mode" gorm:"not null"`

	// Shared head
	DailyPrice     decimal.Decimal `json:"dailyPrice" gorm:"type:decimal(10,2);not null"`
	BaseCost       decimal.Decimal `json:"baseCost" gorm:"type:decimal(10,2);not null"`
	FinalCost      decimal.Decimal `json:"finalCost" gorm:"type:decimal(10,2);not null"`
	CommissionRate decimal.Decimal `json:"commissionRate" gorm:"type:decimal(10,2);not null"`
	PlatformFee    decimal.Decimal `json:"platformFee" gorm:"type:decimal(10,2);not null"`
	OwnerEarnings  decimal.Decimal `json:"ownerEarnings" gorm:"type:decimal(10,2);not null"`
	AllowedKm      decimal.Decimal `json:"allowedKm" gorm:"type:decimal(10,2);not null"`

	// With-driver
	PlannedKm             decimal.Decimal `json:"plannedKm,omitempty" gorm:"type:decimal(10,2);default:0"`
	PlannedWaitingMinutes int             `json:"plannedWaitingMinutes,omitempty" gorm:"default:0"`
	ExtraKm               decimal.Decimal `json:"extraKm,omitempty" gorm:"type:decimal(10,2);default:0"`
	ExtraKmCost           decimal.Decimal `json:"extraKmCost,omitempty" gorm:"type:decimal(10,2);default:0"`
	WaitingCost           decimal.Decimal `json:"waitingCost,omitempty" gorm:"type:decimal(10,2);default:0"`
	InsuranceBuffer       decimal.Decimal `json:"insuranceBuffer,omitempty" gorm:"type:decimal(10,2);default:0"`
	ActualWaitingMinutes  int             `json:"actualWaitingMinutes,omitempty" gorm:"default:0"`
	ExtraWaitingMinutes   int             `json:"extraWaitingMinutes,omitempty" gorm:"default:0"`
	ExcessWaitingCost     decimal.Decimal `json:"excessWaitingCost,omitempty" gorm:"type:decimal(10,2);default:0"`
	FinalTotalCost        decimal.Decimal `json:"finalTotalCost,omitempty" gorm:"type:decimal(10,2);default:0"`

	// Self-drive
	NumDays         int             `json:"numDays,omitempty" gorm:"default:0"`
	CtwFee          decimal.Decimal `json:"ctwFee,omitempty" gorm:"type:decimal(10,2);default:0"`
	InitialCost     decimal.Decimal `json:"initialCost,omitempty" gorm:"type:decimal(10,2);default:0"`
	ExtraKmFee      decimal.Decimal `json:"extraKmFee,omitempty" gorm:"type:decimal(10,2);default:0"`
	LateDays        int             `json:"lateDays,omitempty" gorm:"default:0"`
	LateFee         decimal.Decimal `json:"lateFee,omitempty" gorm:"type:decimal(10,2);default:0"`
	TotalExtrasCost decimal.Decimal `json:"totalExtrasCost,omitempty" gorm:"type:decimal(10,2);default:0"`
}

// TableName specifies the table name
func (Breakdown) TableName() string {
	return "breakdowns"
}
