package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Car is an owner's listed vehicle. The per-day rates on the row feed the
// pricing calculator when a rental is created.
type Car struct {
	gorm.Model
	OwnerID       uint            `json:"ownerId" gorm:"not null;index"`
	Make          string          `json:"make" gorm:"not null"`
	CarModel      string          `json:"model" gorm:"column:model;not null"`
	Year          int             `json:"year"`
	PlateNumber   string          `json:"plateNumber" gorm:"unique;not null"`
	Color         string          `json:"color"`
	Seats         int             `json:"seats" gorm:"default:5"`
	DailyPrice    decimal.Decimal `json:"dailyPrice" gorm:"type:decimal(10,2);not null"`
	DailyKmLimit  int             `json:"dailyKmLimit" gorm:"not null"`
	ExtraKmRate   decimal.Decimal `json:"extraKmRate" gorm:"type:decimal(10,2);not null"`
	ExtraHourRate decimal.Decimal `json:"extraHourRate" gorm:"type:decimal(10,2);not null"`
	IsAvailable   bool            `json:"isAvailable" gorm:"not null;default:true"`
	ImageURL      string          `json:"imageUrl,omitempty"`
	Owner         *User           `json:"owner,omitempty" gorm:"foreignKey:OwnerID"`
}

// TableName specifies the table name
func (Car) TableName() string {
	return "cars"
}
