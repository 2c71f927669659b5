package engine

import (
	"context"

	"gorm.io/gorm"

	"github.com/karhabty/karhabty-backend/internal/models"
)

// ApplyDepositOutcome applies a gateway TRANSACTION webhook to the deposit
// purse. Idempotent by transaction id: redelivery of an applied outcome
// returns applied=false with no error and no mutation.
func (e *Engine) ApplyDepositOutcome(ctx context.Context, rentalID uint, txnID string, amountCents int64, success bool) (bool, error) {
	applied := false
	var confirmed *models.Rental
	err := e.withRentalLock(ctx, rentalID, func() error {
		return e.store.Transaction(func(tx *gorm.DB) error {
			rental, err := e.loadRental(tx, rentalID)
			if err != nil {
				return err
			}
			payment, err := e.store.GetPayment(tx, rentalID)
			if err != nil {
				return Errf(CodePaymentNotFound, "no payment record for rental %d", rentalID)
			}

			if payment.DepositTxnID == txnID && txnID != "" {
				return nil // already applied
			}
			if payment.DepositStatus == models.PurseStatusPaid {
				// Paid through another path (saved card, wallet); nothing to do.
				return nil
			}

			if amountCents != cents(payment.DepositAmount) {
				return Errf(CodeAmountMismatch, "webhook amount does not match the deposit for rental %d", rentalID)
			}

			if !success {
				payment.DepositStatus = models.PurseStatusFailed
				payment.DepositTxnID = txnID
				if err := e.store.SavePayment(tx, payment); err != nil {
					return err
				}
				applied = true
				return e.store.AppendAudit(tx, rentalID, "deposit_failed", 0, "gateway", txnID)
			}

			if rental.Status != models.RentalStatusDepositRequired {
				// Money arrived for a rental that moved on (expired, canceled).
				// Record the transaction id; the refund is an operator action.
				payment.DepositTxnID = txnID
				return e.store.SavePayment(tx, payment)
			}

			payment.DepositTxnID = txnID
			if err := e.markDepositPaid(tx, rental, payment, "webhook", 0); err != nil {
				return err
			}
			applied = true
			confirmed = rental
			return nil
		})
	})
	if confirmed != nil {
		e.afterCommit(ctx, confirmed, "deposit_paid", map[string]interface{}{"via": "webhook"})
	}
	return applied, err
}

// ApplyRemainingOutcome applies a gateway TRANSACTION webhook to the
// remaining purse. This is the authoritative path after a synchronous
// remaining charge timed out; the blocked pickup or trip start is simply
// retried once the purse reads Paid.
func (e *Engine) ApplyRemainingOutcome(ctx context.Context, rentalID uint, txnID string, amountCents int64, success bool) (bool, error) {
	applied := false
	err := e.withRentalLock(ctx, rentalID, func() error {
		return e.store.Transaction(func(tx *gorm.DB) error {
			if _, err := e.loadRental(tx, rentalID); err != nil {
				return err
			}
			payment, err := e.store.GetPayment(tx, rentalID)
			if err != nil {
				return Errf(CodePaymentNotFound, "no payment record for rental %d", rentalID)
			}

			if payment.RemainingTxnID == txnID && txnID != "" {
				return nil // already applied
			}
			if payment.RemainingStatus == models.PurseStatusPaid ||
				payment.RemainingStatus == models.PurseStatusConfirmed {
				return nil
			}

			if amountCents != cents(payment.RemainingAmount) {
				return Errf(CodeAmountMismatch, "webhook amount does not match the remaining for rental %d", rentalID)
			}

			if !success {
				payment.RemainingStatus = models.PurseStatusFailed
				payment.RemainingTxnID = txnID
				if err := e.store.SavePayment(tx, payment); err != nil {
					return err
				}
				applied = true
				return e.store.AppendAudit(tx, rentalID, "remaining_failed", 0, "gateway", txnID)
			}

			now := e.clock.Now()
			payment.RemainingStatus = models.PurseStatusPaid
			payment.RemainingPaidAt = &now
			payment.RemainingTxnID = txnID
			if err := e.store.SavePayment(tx, payment); err != nil {
				return err
			}
			applied = true
			return e.store.AppendAudit(tx, rentalID, "remaining_paid", 0, "gateway", txnID)
		})
	})
	return applied, err
}

// ApplyExcessOutcome applies a gateway TRANSACTION webhook to the excess
// purse, mirroring ApplyRemainingOutcome for the end-of-trip charge.
func (e *Engine) ApplyExcessOutcome(ctx context.Context, rentalID uint, txnID string, amountCents int64, success bool) (bool, error) {
	applied := false
	err := e.withRentalLock(ctx, rentalID, func() error {
		return e.store.Transaction(func(tx *gorm.DB) error {
			if _, err := e.loadRental(tx, rentalID); err != nil {
				return err
			}
			payment, err := e.store.GetPayment(tx, rentalID)
			if err != nil {
				return Errf(CodePaymentNotFound, "no payment record for rental %d", rentalID)
			}

			if payment.ExcessTxnID == txnID && txnID != "" {
				return nil // already applied
			}
			if payment.ExcessStatus == models.PurseStatusPaid {
				return nil
			}

			if amountCents != cents(payment.ExcessAmount) {
				return Errf(CodeAmountMismatch, "webhook amount does not match the excess for rental %d", rentalID)
			}

			if !success {
				payment.ExcessStatus = models.PurseStatusFailed
				payment.ExcessTxnID = txnID
				if err := e.store.SavePayment(tx, payment); err != nil {
					return err
				}
				applied = true
				return e.store.AppendAudit(tx, rentalID, "excess_failed", 0, "gateway", txnID)
			}

			now := e.clock.Now()
			payment.ExcessStatus = models.PurseStatusPaid
			payment.ExcessPaidAt = &now
			payment.ExcessTxnID = txnID
			if err := e.store.SavePayment(tx, payment); err != nil {
				return err
			}
			applied = true
			return e.store.AppendAudit(tx, rentalID, "excess_paid", 0, "gateway", txnID)
		})
	})
	return applied, err
}
