package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Purse statuses. Persisted literals, part of the API contract.
const (
	PurseStatusPending           = "Pending"
	PurseStatusPaid              = "Paid"
	PurseStatusConfirmed         = "Confirmed"
	PurseStatusFailed            = "Failed"
	PurseStatusRefunded          = "Refunded"
	PurseStatusPartiallyRefunded = "Partially Refunded"
	PurseStatusNoRemaining       = "No Remaining to Refund"
)

// RentalPayment tracks the three purses of a rental: deposit, remaining and
// end-of-trip excess. One row per rental. A purse that reached Paid never
// goes back to Pending or Failed.
type RentalPayment struct {
	gorm.Model
	RentalID uint `json:"rentalId" gorm:"not null;uniqueIndex"`

	Method      PaymentMethod   `json:"paymentMethod" gorm:"not null"`
	TotalAmount decimal.Decimal `json:"rentalTotalAmount" gorm:"type:decimal(10,2);not null"`

	DepositAmount decimal.Decimal `json:"depositAmount" gorm:"type:decimal(10,2);not null"`
	DepositStatus string          `json:"depositStatus" gorm:"not null;default:'Pending'"`
	DepositPaidAt *time.Time      `json:"depositPaidAt,omitempty"`
	DepositTxnID  string          `json:"depositTransactionId,omitempty"`
	DepositDueAt  *time.Time      `json:"depositDueAt,omitempty"`

	RemainingAmount decimal.Decimal `json:"remainingAmount" gorm:"type:decimal(10,2);not null"`
	RemainingStatus string          `json:"remainingStatus" gorm:"not null;default:'Pending'"`
	RemainingPaidAt *time.Time      `json:"remainingPaidAt,omitempty"`
	RemainingTxnID  string          `json:"remainingTransactionId,omitempty"`

	ExcessAmount decimal.Decimal `json:"excessAmount" gorm:"type:decimal(10,2);not null;default:0"`
	ExcessStatus string          `json:"excessStatus" gorm:"not null;default:'Pending'"`
	ExcessPaidAt *time.Time      `json:"excessPaidAt,omitempty"`
	ExcessTxnID  string          `json:"excessTransactionId,omitempty"`
}

// TableName specifies the table name
func (RentalPayment) TableName() string {
	return "rental_payments"
}

// DepositExpired reports whether the deposit deadline has passed unpaid.
func (p *RentalPayment) DepositExpired(now time.Time) bool {
	return p.DepositDueAt != nil && now.After(*p.DepositDueAt) && p.DepositStatus != PurseStatusPaid
}
