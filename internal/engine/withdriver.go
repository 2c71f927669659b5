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

// OwnerConfirmArrival flags that the driver reached the pickup point. The
// rental stays Confirmed; the flag is a precondition of StartTrip.
func (e *Engine) OwnerConfirmArrival(ctx context.Context, ownerID, rentalID uint) (*models.Rental, error) {
	var out *models.Rental
	err := e.withRentalLock(ctx, rentalID, func() error {
		return e.store.Transaction(func(tx *gorm.DB) error {
			rental, err := e.loadRental(tx, rentalID)
			if err != nil {
				return err
			}
			if err := e.requireOwner(rental, ownerID); err != nil {
				return err
			}
			if err := guardState(rental, OpOwnerConfirmArrival); err != nil {
				return err
			}
			if rental.OwnerArrived {
				return Errf(CodeAlreadyConfirmed, "arrival already confirmed")
			}

			rental.OwnerArrived = true
			if err := e.store.SaveRental(tx, rental); err != nil {
				return err
			}
			if err := e.store.AppendAudit(tx, rentalID, OpOwnerConfirmArrival, ownerID, "owner", ""); err != nil {
				return err
			}
			out = rental
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	e.afterCommit(ctx, out, OpOwnerConfirmArrival, nil)
	return out, nil
}

// StartTrip begins a with-driver trip. Electronic rentals pay the remaining
// purse here, before the state flips; a declined charge leaves the rental
// Confirmed.
func (e *Engine) StartTrip(ctx context.Context, renterID, rentalID uint) (*models.Rental, error) {
	var out *models.Rental
	err := e.withRentalLock(ctx, rentalID, func() error {
		var rental *models.Rental
		var payment *models.RentalPayment
		err := e.store.Transaction(func(tx *gorm.DB) error {
			var err error
			rental, err = e.loadRental(tx, rentalID)
			if err != nil {
				return err
			}
			if err := e.requireRenter(rental, renterID); err != nil {
				return err
			}
			if rental.Mode != models.ModeWithDriver {
				return Errf(CodeInvalidMethod, "not a with-driver rental")
			}
			if err := guardState(rental, OpStartTrip); err != nil {
				return err
			}
			payment, err = e.store.GetPayment(tx, rentalID)
			if err != nil {
				return err
			}
			if payment.DepositStatus != models.PurseStatusPaid {
				return Errf(CodeDepositRequired, "deposit has not been paid")
			}
			if !rental.OwnerArrived {
				return Errf(CodeOwnerArrivalRequired, "driver has not confirmed arrival")
			}
			return nil
		})
		if err != nil {
			return err
		}

		// Collect the remaining purse for electronic methods.
		switch {
		case payment.RemainingStatus == models.PurseStatusPaid:
			// Re-entry after an earlier partial failure; just flip the state.
		case payment.Method == models.MethodWallet:
			if err := e.payRemainingFromWallet(rentalID, renterID); err != nil {
				return err
			}
		case payment.Method == models.MethodCard:
			if err := e.payRemainingWithCard(ctx, rental, renterID, payment); err != nil {
				return err
			}
		case payment.Method == models.MethodCash:
			// Remaining is collected in cash at end of trip.
		}

		return e.store.Transaction(func(tx *gorm.DB) error {
			fresh, err := e.loadRental(tx, rentalID)
			if err != nil {
				return err
			}
			if err := guardState(fresh, OpStartTrip); err != nil {
				return err
			}
			trip, err := e.store.GetTripWithStops(tx, rentalID)
			if err != nil {
				return err
			}
			now := e.clock.Now()
			trip.StartedAt = &now
			if err := e.store.SaveTrip(tx, trip); err != nil {
				return err
			}
			fresh.Status = models.RentalStatusOngoing
			if err := e.store.SaveRental(tx, fresh); err != nil {
				return err
			}
			if err := e.store.AppendAudit(tx, rentalID, OpStartTrip, renterID, "renter", ""); err != nil {
				return err
			}
			out = fresh
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	e.afterCommit(ctx, out, OpStartTrip, nil)
	return out, nil
}

func (e *Engine) payRemainingFromWallet(rentalID, renterID uint) error {
	return e.store.Transaction(func(tx *gorm.DB) error {
		payment, err := e.store.GetPayment(tx, rentalID)
		if err != nil {
			return err
		}
		if payment.RemainingStatus == models.PurseStatusPaid {
			return nil
		}
		_, err = e.ledger.DebitTx(tx, renterID, payment.RemainingAmount, wallet.Movement{
			Kind:          models.TxnKindRemainingPayment,
			ReferenceID:   itoa(rentalID),
			ReferenceType: "rental",
			Description:   "rental remaining",
		})
		if errors.Is(err, wallet.ErrFloorExceeded) {
			return Errf(CodeRemainingRequired, "insufficient wallet balance for the remaining amount")
		}
		if err != nil {
			return err
		}
		now := e.clock.Now()
		payment.RemainingStatus = models.PurseStatusPaid
		payment.RemainingPaidAt = &now
		return e.store.SavePayment(tx, payment)
	})
}

func (e *Engine) payRemainingWithCard(ctx context.Context, rental *models.Rental, renterID uint, payment *models.RentalPayment) error {
	if rental.SavedCardID == nil {
		return Errf(CodeNoSelectedCard, "no card selected for this rental")
	}
	var card *models.SavedCard
	alreadyPaid := false
	err := e.store.Transaction(func(tx *gorm.DB) error {
		fresh, err := e.store.GetPayment(tx, rental.ID)
		if err != nil {
			return err
		}
		if fresh.RemainingStatus == models.PurseStatusPaid {
			alreadyPaid = true // webhook reconciled an earlier timed-out charge
			return nil
		}
		card, err = e.store.GetSavedCard(tx, *rental.SavedCardID)
		if err != nil {
			return Errf(CodeCardNotFound, "card %d not found", *rental.SavedCardID)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if alreadyPaid {
		return nil
	}
	if card.UserID != renterID {
		return Errf(CodeCardNotOwned, "card does not belong to you")
	}

	renter, err := e.store.GetUser(renterID)
	if err != nil {
		return err
	}
	result, err := e.gateway.ChargeSavedCard(ctx, gateway.ChargeRequest{
		AmountCents:   cents(payment.RemainingAmount),
		MerchantRef:   gateway.RentalRemainingRef(rental.ID, renterID),
		CardToken:     card.Token,
		IntegrationID: e.cfg.IntegrationMoto,
		Billing:       billingFor(renter),
	})
	if errors.Is(err, gateway.ErrTimeout) {
		// Purse stays Pending; the webhook is the authoritative outcome.
		return Errf(CodePaymentTimeout, "payment gateway timed out; the result will be reconciled asynchronously")
	}
	if err != nil {
		return ErrWithDetails(CodeRemainingRequired, "remaining charge failed", err.Error())
	}
	if !result.Success {
		return ErrWithDetails(CodeRemainingRequired, "remaining charge declined", result.Message)
	}

	return e.store.Transaction(func(tx *gorm.DB) error {
		payment, err := e.store.GetPayment(tx, rental.ID)
		if err != nil {
			return err
		}
		if payment.RemainingStatus == models.PurseStatusPaid {
			return nil // webhook beat us to it
		}
		now := e.clock.Now()
		payment.RemainingStatus = models.PurseStatusPaid
		payment.RemainingPaidAt = &now
		payment.RemainingTxnID = result.TransactionID
		return e.store.SavePayment(tx, payment)
	})
}

// StopArrival marks the driver's arrival at stop k. Stops are strictly
// ordered: stop k cannot start until stop k-1 has ended.
func (e *Engine) StopArrival(ctx context.Context, ownerID, rentalID uint, stopOrder int) (*models.PlannedStop, error) {
	var out *models.PlannedStop
	err := e.withRentalLock(ctx, rentalID, func() error {
		return e.store.Transaction(func(tx *gorm.DB) error {
			rental, err := e.loadRental(tx, rentalID)
			if err != nil {
				return err
			}
			if err := e.requireOwner(rental, ownerID); err != nil {
				return err
			}
			if err := guardState(rental, OpStopArrival); err != nil {
				return err
			}
			trip, err := e.store.GetTripWithStops(tx, rentalID)
			if err != nil {
				return err
			}
			if trip.StartedAt == nil {
				return Errf(CodeInvalidStatus, "trip has not started")
			}

			stop := findStop(trip, stopOrder)
			if stop == nil {
				return Errf(CodeNotFound, "stop %d not found", stopOrder)
			}
			if stop.WaitingStartedAt != nil {
				return Errf(CodeAlreadyDone, "arrival at stop %d already recorded", stopOrder)
			}
			if prev := findStop(trip, stopOrder-1); prev != nil && !prev.IsCompleted {
				return Errf(CodeInvalidStatus, "stop %d has not been completed yet", stopOrder-1)
			}

			now := e.clock.Now()
			stop.WaitingStartedAt = &now
			stop.LocationVerified = true
			if err := e.store.SaveStop(tx, stop); err != nil {
				return err
			}
			if err := e.store.AppendAudit(tx, rentalID, OpStopArrival, ownerID, "owner", itoa(uint(stopOrder))); err != nil {
				return err
			}
			out = stop
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// EndWaiting closes the waiting window at stop k and records the actual
// minutes waited. One-shot.
func (e *Engine) EndWaiting(ctx context.Context, ownerID, rentalID uint, stopOrder int) (*models.PlannedStop, error) {
	var out *models.PlannedStop
	err := e.withRentalLock(ctx, rentalID, func() error {
		return e.store.Transaction(func(tx *gorm.DB) error {
			rental, err := e.loadRental(tx, rentalID)
			if err != nil {
				return err
			}
			if err := e.requireOwner(rental, ownerID); err != nil {
				return err
			}
			if err := guardState(rental, OpEndWaiting); err != nil {
				return err
			}
			trip, err := e.store.GetTripWithStops(tx, rentalID)
			if err != nil {
				return err
			}

			stop := findStop(trip, stopOrder)
			if stop == nil {
				return Errf(CodeNotFound, "stop %d not found", stopOrder)
			}
			if stop.WaitingStartedAt == nil {
				return Errf(CodeInvalidStatus, "arrival at stop %d has not been recorded", stopOrder)
			}
			if stop.WaitingEndedAt != nil {
				return Errf(CodeAlreadyDone, "waiting at stop %d already ended", stopOrder)
			}

			now := e.clock.Now()
			stop.WaitingEndedAt = &now
			stop.ActualWaitingMinutes = int(now.Sub(*stop.WaitingStartedAt).Minutes())
			stop.IsCompleted = true
			if err := e.store.SaveStop(tx, stop); err != nil {
				return err
			}
			if err := e.store.AppendAudit(tx, rentalID, OpEndWaiting, ownerID, "owner", itoa(uint(stopOrder))); err != nil {
				return err
			}
			out = stop
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// EndTripInput closes a with-driver trip. Cash rentals must confirm the cash
// collection of remaining and excess.
type EndTripInput struct {
	CashCollected bool `json:"cashCollected"`
}

// EndTrip finishes a with-driver rental: computes the waiting excess,
// collects it per the payment method and settles the owner's earnings.
func (e *Engine) EndTrip(ctx context.Context, ownerID, rentalID uint, in EndTripInput) (*models.Rental, error) {
	var out *models.Rental
	err := e.withRentalLock(ctx, rentalID, func() error {
		var rental *models.Rental
		var payment *models.RentalPayment
		var breakdown *models.Breakdown
		var excess pricing.WithDriverExcess

		err := e.store.Transaction(func(tx *gorm.DB) error {
			var err error
			rental, err = e.loadRental(tx, rentalID)
			if err != nil {
				return err
			}
			if err := e.requireOwner(rental, ownerID); err != nil {
				return err
			}
			if rental.Mode != models.ModeWithDriver {
				return Errf(CodeInvalidMethod, "not a with-driver rental")
			}
			if err := guardState(rental, OpEndTrip); err != nil {
				return err
			}
			payment, err = e.store.GetPayment(tx, rentalID)
			if err != nil {
				return err
			}
			breakdown, err = e.store.GetBreakdown(tx, rentalID)
			if err != nil {
				return err
			}
			trip, err := e.store.GetTripWithStops(tx, rentalID)
			if err != nil {
				return err
			}

			car, err := e.store.GetCar(rental.CarID)
			if err != nil {
				return err
			}
			actualWaiting := 0
			for _, s := range trip.Stops {
				actualWaiting += s.ActualWaitingMinutes
			}
			excess = pricing.ComputeWithDriverExcess(
				breakdown.PlannedWaitingMinutes, actualWaiting,
				car.ExtraHourRate, breakdown.FinalCost)

			breakdown.ActualWaitingMinutes = excess.ActualWaitingMinutes
			breakdown.ExtraWaitingMinutes = excess.ExtraWaitingMinutes
			breakdown.ExcessWaitingCost = excess.ExcessWaitingCost
			breakdown.FinalTotalCost = excess.FinalTotalCost
			if err := e.store.SaveBreakdown(tx, breakdown); err != nil {
				return err
			}
			payment.ExcessAmount = excess.ExcessWaitingCost
			if err := e.store.SavePayment(tx, payment); err != nil {
				return err
			}

			now := e.clock.Now()
			trip.EndedAt = &now
			return e.store.SaveTrip(tx, trip)
		})
		if err != nil {
			return err
		}

		if err := e.collectWithDriverDues(ctx, rental, payment, excess, in.CashCollected); err != nil {
			return err
		}

		return e.store.Transaction(func(tx *gorm.DB) error {
			fresh, err := e.loadRental(tx, rentalID)
			if err != nil {
				return err
			}
			if err := guardState(fresh, OpEndTrip); err != nil {
				return err
			}
			payment, err := e.store.GetPayment(tx, rentalID)
			if err != nil {
				return err
			}
			breakdown, err := e.store.GetBreakdown(tx, rentalID)
			if err != nil {
				return err
			}
			if err := e.settleOwner(tx, fresh, payment, breakdown); err != nil {
				return err
			}
			fresh.Status = models.RentalStatusFinished
			if err := e.store.SaveRental(tx, fresh); err != nil {
				return err
			}
			if err := e.store.AppendAudit(tx, rentalID, OpEndTrip, ownerID, "owner", ""); err != nil {
				return err
			}
			out = fresh
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	e.afterCommit(ctx, out, OpEndTrip, nil)
	return out, nil
}

func findStop(trip *models.PlannedTrip, order int) *models.PlannedStop {
	for i := range trip.Stops {
		if trip.Stops[i].StopOrder == order {
			return &trip.Stops[i]
		}
	}
	return nil
}
