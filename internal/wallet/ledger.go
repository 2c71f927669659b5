// Package wallet is the ledger behind user balances. Every balance change
// happens inside a transaction that locks the wallet row, writes the new
// balance and appends exactly one journal entry.
package wallet

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/karhabty/karhabty-backend/internal/models"
)

var (
	// ErrFloorExceeded means the debit would push the balance below the
	// configured floor.
	ErrFloorExceeded = errors.New("wallet: balance floor exceeded")
	// ErrNegativeAmount guards against inverted credit/debit calls.
	ErrNegativeAmount = errors.New("wallet: amount must not be negative")
)

// Movement describes what a journal entry is for.
type Movement struct {
	Kind          string
	ReferenceID   string
	ReferenceType string
	Description   string
}

type Ledger struct {
	db    *gorm.DB
	floor decimal.Decimal
	log   *logrus.Logger
}

func NewLedger(db *gorm.DB, floor decimal.Decimal, log *logrus.Logger) *Ledger {
	return &Ledger{db: db, floor: floor, log: log}
}

// Credit adds funds in its own transaction.
func (l *Ledger) Credit(userID uint, amount decimal.Decimal, mv Movement) (*models.WalletTransaction, error) {
	var entry *models.WalletTransaction
	err := l.db.Transaction(func(tx *gorm.DB) error {
		var err error
		entry, err = l.CreditTx(tx, userID, amount, mv)
		return err
	})
	return entry, err
}

// Debit removes funds in its own transaction.
func (l *Ledger) Debit(userID uint, amount decimal.Decimal, mv Movement) (*models.WalletTransaction, error) {
	var entry *models.WalletTransaction
	err := l.db.Transaction(func(tx *gorm.DB) error {
		var err error
		entry, err = l.DebitTx(tx, userID, amount, mv)
		return err
	})
	return entry, err
}

// CreditTx adds funds inside the caller's transaction, so a rental state
// change and its wallet posting commit or roll back together.
func (l *Ledger) CreditTx(tx *gorm.DB, userID uint, amount decimal.Decimal, mv Movement) (*models.WalletTransaction, error) {
	if amount.IsNegative() {
		return nil, ErrNegativeAmount
	}

	w, err := l.lockWallet(tx, userID)
	if err != nil {
		return nil, err
	}

	before := w.Balance
	after := before.Add(amount)
	if err := tx.Model(&models.Wallet{}).Where("id = ?", w.ID).Update("balance", after).Error; err != nil {
		return nil, err
	}

	entry := &models.WalletTransaction{
		WalletID:      w.ID,
		UserID:        userID,
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		Kind:          mv.Kind,
		ReferenceID:   mv.ReferenceID,
		ReferenceType: mv.ReferenceType,
		Description:   mv.Description,
	}
	if err := tx.Create(entry).Error; err != nil {
		return nil, err
	}

	if before.LessThanOrEqual(l.floor) && after.GreaterThan(l.floor) {
		if err := tx.Model(&models.User{}).Where("id = ?", userID).
			Update("cannot_accept_bookings", false).Error; err != nil {
			return nil, err
		}
	}

	l.log.WithFields(logrus.Fields{
		"user":    userID,
		"kind":    mv.Kind,
		"amount":  amount.String(),
		"balance": after.String(),
	}).Info("wallet credit")
	return entry, nil
}

// DebitTx removes funds inside the caller's transaction. The balance may go
// negative, but never below the floor.
func (l *Ledger) DebitTx(tx *gorm.DB, userID uint, amount decimal.Decimal, mv Movement) (*models.WalletTransaction, error) {
	if amount.IsNegative() {
		return nil, ErrNegativeAmount
	}

	w, err := l.lockWallet(tx, userID)
	if err != nil {
		return nil, err
	}

	before := w.Balance
	after := before.Sub(amount)
	if after.LessThan(l.floor) {
		return nil, fmt.Errorf("%w: balance %s, debit %s, floor %s",
			ErrFloorExceeded, before, amount, l.floor)
	}

	if err := tx.Model(&models.Wallet{}).Where("id = ?", w.ID).Update("balance", after).Error; err != nil {
		return nil, err
	}

	entry := &models.WalletTransaction{
		WalletID:      w.ID,
		UserID:        userID,
		Amount:        amount.Neg(),
		BalanceBefore: before,
		BalanceAfter:  after,
		Kind:          mv.Kind,
		ReferenceID:   mv.ReferenceID,
		ReferenceType: mv.ReferenceType,
		Description:   mv.Description,
	}
	if err := tx.Create(entry).Error; err != nil {
		return nil, err
	}

	if after.LessThanOrEqual(l.floor) {
		if err := tx.Model(&models.User{}).Where("id = ?", userID).
			Update("cannot_accept_bookings", true).Error; err != nil {
			return nil, err
		}
	}

	l.log.WithFields(logrus.Fields{
		"user":    userID,
		"kind":    mv.Kind,
		"amount":  amount.String(),
		"balance": after.String(),
	}).Info("wallet debit")
	return entry, nil
}

// TransferTx moves funds between two wallets. Wallet rows are locked in
// ascending user-id order so concurrent transfers cannot deadlock.
func (l *Ledger) TransferTx(tx *gorm.DB, fromID, toID uint, amount decimal.Decimal, mv Movement) error {
	if fromID == toID {
		return fmt.Errorf("wallet: transfer to self")
	}

	first, second := fromID, toID
	if second < first {
		first, second = second, first
	}
	if _, err := l.lockWallet(tx, first); err != nil {
		return err
	}
	if _, err := l.lockWallet(tx, second); err != nil {
		return err
	}

	if _, err := l.DebitTx(tx, fromID, amount, mv); err != nil {
		return err
	}
	_, err := l.CreditTx(tx, toID, amount, mv)
	return err
}

// Balance reads the current balance without locking; zero for users who
// have no wallet row yet.
func (l *Ledger) Balance(userID uint) (decimal.Decimal, error) {
	var w models.Wallet
	err := l.db.Where("user_id = ?", userID).First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return w.Balance, nil
}

// History returns the journal, newest first.
func (l *Ledger) History(userID uint, limit int) ([]models.WalletTransaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var entries []models.WalletTransaction
	err := l.db.Where("user_id = ?", userID).
		Order("id DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

// BelowFloor reports whether the user's balance is at or under the floor.
func (l *Ledger) BelowFloor(userID uint) (bool, error) {
	balance, err := l.Balance(userID)
	if err != nil {
		return false, err
	}
	return balance.LessThanOrEqual(l.floor), nil
}

// lockWallet fetches the wallet row FOR UPDATE, creating it on first use.
func (l *Ledger) lockWallet(tx *gorm.DB, userID uint) (*models.Wallet, error) {
	var w models.Wallet
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		w = models.Wallet{UserID: userID, Balance: decimal.Zero}
		if err := tx.Create(&w).Error; err != nil {
			return nil, err
		}
		// Re-read under lock; another transaction may have raced the insert.
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).
			First(&w).Error; err != nil {
			return nil, err
		}
		return &w, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}
