package models

import "gorm.io/gorm"

// SavedCard is a tokenised card captured from a gateway TOKEN webhook. Only
// the gateway token and display fields are stored, never the PAN.
type SavedCard struct {
	gorm.Model
	UserID    uint   `json:"userId" gorm:"not null;index"`
	Token     string `json:"-" gorm:"not null;uniqueIndex"`
	MaskedPan string `json:"maskedPan" gorm:"not null"`
	Subtype   string `json:"subtype"` // VISA, MASTERCARD, ...
	User      *User  `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

// TableName specifies the table name
func (SavedCard) TableName() string {
	return "saved_cards"
}
