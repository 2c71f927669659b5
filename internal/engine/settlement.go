package engine

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/karhabty/karhabty-backend/internal/gateway"
	"github.com/karhabty/karhabty-backend/internal/models"
	"github.com/karhabty/karhabty-backend/internal/pricing"
	"github.com/karhabty/karhabty-backend/internal/wallet"
)

// collectWithDriverDues settles the renter-side money at end of trip: the
// waiting excess for electronic methods, or the owner's explicit cash
// confirmation of remaining plus excess.
func (e *Engine) collectWithDriverDues(ctx context.Context, rental *models.Rental, payment *models.RentalPayment, excess pricing.WithDriverExcess, cashCollected bool) error {
	hasExcess := !pricing.IsZeroAmount(excess.ExcessWaitingCost)

	switch payment.Method {
	case models.MethodWallet:
		if !hasExcess || payment.ExcessStatus == models.PurseStatusPaid {
			return nil
		}
		return e.chargeExcessFromWallet(rental.ID, rental.RenterID)

	case models.MethodCard:
		if !hasExcess || payment.ExcessStatus == models.PurseStatusPaid {
			return nil
		}
		return e.chargeExcessWithCard(ctx, rental)

	case models.MethodCash:
		if !cashCollected {
			if hasExcess {
				return Errf(CodeExcessCashConfirm, "confirm cash collection of remaining and excess to finish the trip")
			}
			return Errf(CodeRemainingCash, "confirm cash collection of the remaining amount to finish the trip")
		}
		return e.confirmCashCollection(rental.ID, hasExcess)
	}
	return nil
}

func (e *Engine) chargeExcessFromWallet(rentalID, renterID uint) error {
	return e.store.Transaction(func(tx *gorm.DB) error {
		payment, err := e.store.GetPayment(tx, rentalID)
		if err != nil {
			return err
		}
		if payment.ExcessStatus == models.PurseStatusPaid {
			return nil
		}
		_, err = e.ledger.DebitTx(tx, renterID, payment.ExcessAmount, wallet.Movement{
			Kind:          models.TxnKindExcessPayment,
			ReferenceID:   itoa(rentalID),
			ReferenceType: "rental",
			Description:   "end-of-trip excess",
		})
		if errors.Is(err, wallet.ErrFloorExceeded) {
			return Errf(CodeExcessRequired, "insufficient wallet balance for the excess amount")
		}
		if err != nil {
			return err
		}
		now := e.clock.Now()
		payment.ExcessStatus = models.PurseStatusPaid
		payment.ExcessPaidAt = &now
		return e.store.SavePayment(tx, payment)
	})
}

func (e *Engine) chargeExcessWithCard(ctx context.Context, rental *models.Rental) error {
	if rental.SavedCardID == nil {
		return Errf(CodeNoSelectedCard, "no card selected for this rental")
	}
	var card *models.SavedCard
	var payment *models.RentalPayment
	alreadyPaid := false
	err := e.store.Transaction(func(tx *gorm.DB) error {
		var err error
		payment, err = e.store.GetPayment(tx, rental.ID)
		if err != nil {
			return err
		}
		if payment.ExcessStatus == models.PurseStatusPaid {
			alreadyPaid = true // webhook reconciled an earlier timed-out charge
			return nil
		}
		card, err = e.store.GetSavedCard(tx, *rental.SavedCardID)
		return err
	})
	if err != nil {
		return err
	}
	if alreadyPaid {
		return nil
	}

	renter, err := e.store.GetUser(rental.RenterID)
	if err != nil {
		return err
	}
	result, err := e.gateway.ChargeSavedCard(ctx, gateway.ChargeRequest{
		AmountCents:   cents(payment.ExcessAmount),
		MerchantRef:   gateway.RentalExcessRef(rental.ID, rental.RenterID),
		CardToken:     card.Token,
		IntegrationID: e.cfg.IntegrationMoto,
		Billing:       billingFor(renter),
	})
	if errors.Is(err, gateway.ErrTimeout) {
		// Purse stays Pending; the webhook is the authoritative outcome.
		return Errf(CodePaymentTimeout, "payment gateway timed out; the result will be reconciled asynchronously")
	}
	if err != nil {
		return ErrWithDetails(CodeExcessRequired, "excess charge failed", err.Error())
	}
	if !result.Success {
		return ErrWithDetails(CodeExcessRequired, "excess charge declined", result.Message)
	}

	return e.store.Transaction(func(tx *gorm.DB) error {
		payment, err := e.store.GetPayment(tx, rental.ID)
		if err != nil {
			return err
		}
		if payment.ExcessStatus == models.PurseStatusPaid {
			return nil // webhook beat us to it
		}
		now := e.clock.Now()
		payment.ExcessStatus = models.PurseStatusPaid
		payment.ExcessPaidAt = &now
		payment.ExcessTxnID = result.TransactionID
		return e.store.SavePayment(tx, payment)
	})
}

// confirmCashCollection records the owner's confirmation of collecting the
// remaining (and any excess) in cash.
func (e *Engine) confirmCashCollection(rentalID uint, hasExcess bool) error {
	return e.store.Transaction(func(tx *gorm.DB) error {
		payment, err := e.store.GetPayment(tx, rentalID)
		if err != nil {
			return err
		}
		handover, err := e.store.GetHandover(tx, rentalID)
		if err != nil {
			return err
		}

		now := e.clock.Now()
		if payment.RemainingStatus != models.PurseStatusConfirmed {
			payment.RemainingStatus = models.PurseStatusConfirmed
			payment.RemainingPaidAt = &now
			handover.RemainingCashConfirmedAt = &now
		}
		if hasExcess && payment.ExcessStatus != models.PurseStatusPaid {
			payment.ExcessStatus = models.PurseStatusPaid
			payment.ExcessPaidAt = &now
			handover.ExcessCashConfirmedAt = &now
		}
		if err := e.store.SavePayment(tx, payment); err != nil {
			return err
		}
		return e.store.SaveHandover(tx, handover)
	})
}

// settleOwner posts the owner's side of the money when a rental finishes:
// earnings for electronic rentals, the platform's commission debit for cash
// rentals. Runs inside the finishing transaction.
func (e *Engine) settleOwner(tx *gorm.DB, rental *models.Rental, payment *models.RentalPayment, breakdown *models.Breakdown) error {
	car, err := e.store.GetCar(rental.CarID)
	if err != nil {
		return err
	}

	switch payment.Method {
	case models.MethodWallet, models.MethodCard:
		_, err := e.ledger.CreditTx(tx, car.OwnerID, breakdown.OwnerEarnings, wallet.Movement{
			Kind:          models.TxnKindDriverEarnings,
			ReferenceID:   itoa(rental.ID),
			ReferenceType: "rental",
			Description:   "rental earnings",
		})
		return err

	case models.MethodCash:
		// The owner holds the full cash amount; the platform claws back its
		// commission from their wallet, possibly driving it negative.
		_, err := e.ledger.DebitTx(tx, car.OwnerID, breakdown.PlatformFee, wallet.Movement{
			Kind:          models.TxnKindPlatformCommission,
			ReferenceID:   itoa(rental.ID),
			ReferenceType: "rental",
			Description:   "platform commission on cash rental",
		})
		if errors.Is(err, wallet.ErrFloorExceeded) {
			return Errf(CodeWalletLimit, "owner wallet is at the floor; top up before closing the rental")
		}
		return err
	}
	return nil
}
