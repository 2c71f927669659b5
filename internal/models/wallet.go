package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Wallet transaction kinds.
const (
	TxnKindRecharge           = "Recharge"
	TxnKindDepositPayment     = "DepositPayment"
	TxnKindRemainingPayment   = "RemainingPayment"
	TxnKindExcessPayment      = "ExcessPayment"
	TxnKindDepositRefund      = "DepositRefund"
	TxnKindDriverEarnings     = "DriverEarnings"
	TxnKindPlatformCommission = "PlatformCommission"
)

// Wallet is a user's balance. It may go negative down to the configured
// floor (owners owing platform commission on cash rentals).
type Wallet struct {
	gorm.Model
	UserID  uint            `json:"userId" gorm:"not null;uniqueIndex"`
	Balance decimal.Decimal `json:"balance" gorm:"type:decimal(10,2);not null;default:0"`
	User    *User           `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

// TableName specifies the table name
func (Wallet) TableName() string {
	return "wallets"
}

// WalletTransaction is one journal row. The journal is append-only; the
// wallet balance always equals the sum of its credits minus its debits.
type WalletTransaction struct {
	gorm.Model
	WalletID      uint            `json:"walletId" gorm:"not null;index"`
	UserID        uint            `json:"userId" gorm:"not null;index"`
	Amount        decimal.Decimal `json:"amount" gorm:"type:decimal(10,2);not null"` // positive = credit, negative = debit
	BalanceBefore decimal.Decimal `json:"balanceBefore" gorm:"type:decimal(10,2);not null"`
	BalanceAfter  decimal.Decimal `json:"balanceAfter" gorm:"type:decimal(10,2);not null"`
	Kind          string          `json:"kind" gorm:"not null;index"`
	ReferenceID   string          `json:"referenceId,omitempty"`
	ReferenceType string          `json:"referenceType,omitempty"` // e.g. rental, gateway_txn
	Description   string          `json:"description,omitempty"`
}

// TableName specifies the table name
func (WalletTransaction) TableName() string {
	return "wallet_transactions"
}
