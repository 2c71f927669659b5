package models

import "gorm.io/gorm"

// AuditEntry is one append-only line in a rental's audit trail. Every state
// transition writes exactly one entry in the same transaction.
type AuditEntry struct {
	gorm.Model
	RentalID  uint   `json:"rentalId" gorm:"not null;index"`
	Event     string `json:"event" gorm:"not null"`
	ActorID   uint   `json:"actorId"`
	ActorRole string `json:"actorRole"` // renter, owner, system
	Details   string `json:"details,omitempty"`
}

// TableName specifies the table name
func (AuditEntry) TableName() string {
	return "rental_audit_log"
}
