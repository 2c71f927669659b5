package engine

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/karhabty/karhabty-backend/internal/models"
	"github.com/karhabty/karhabty-backend/internal/pricing"
)

// OwnerPickupInput is the owner's half of the self-drive pickup handover.
type OwnerPickupInput struct {
	ContractImageURL string
	// Cash rentals: the owner confirms collecting the remaining amount in
	// cash at key handover.
	CashRemainingCollected bool
}

// OwnerPickupHandover records the owner's pickup phase: signed contract and,
// for cash rentals, the remaining-amount collection. Must precede the
// renter's phase.
func (e *Engine) OwnerPickupHandover(ctx context.Context, ownerID, rentalID uint, in OwnerPickupInput) (*models.Rental, error) {
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
			if !rental.IsSelfDrive() {
				return Errf(CodeInvalidMethod, "not a self-drive rental")
			}
			if err := guardState(rental, OpOwnerPickup); err != nil {
				return err
			}

			payment, err := e.store.GetPayment(tx, rentalID)
			if err != nil {
				return err
			}
			if payment.DepositStatus != models.PurseStatusPaid {
				return Errf(CodeDepositRequired, "deposit has not been paid")
			}
			handover, err := e.store.GetHandover(tx, rentalID)
			if err != nil {
				return err
			}
			if handover.OwnerPickupDoneAt != nil {
				return Errf(CodeHandoverAlreadyDone, "owner pickup handover already completed")
			}
			if in.ContractImageURL == "" {
				return Errf(CodeContractImage, "signed contract image is required")
			}

			now := e.clock.Now()
			handover.OwnerContractImage = in.ContractImageURL
			handover.OwnerSignedAt = &now
			handover.OwnerPickupDoneAt = &now

			if payment.Method == models.MethodCash {
				if !in.CashRemainingCollected {
					return Errf(CodeRemainingCash, "confirm cash collection of the remaining amount")
				}
				payment.RemainingStatus = models.PurseStatusConfirmed
				payment.RemainingPaidAt = &now
				handover.RemainingCashConfirmedAt = &now
				if err := e.store.SavePayment(tx, payment); err != nil {
					return err
				}
			}

			if err := e.store.SaveHandover(tx, handover); err != nil {
				return err
			}
			if err := e.store.AppendAudit(tx, rentalID, OpOwnerPickup, ownerID, "owner", ""); err != nil {
				return err
			}
			out = rental
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	e.afterCommit(ctx, out, OpOwnerPickup, nil)
	return out, nil
}

// RenterPickupInput is the renter's half of the pickup handover.
type RenterPickupInput struct {
	CarImageURL      string
	OdometerImageURL string
	StartOdometer    *int
}

// RenterPickupHandover records the renter's pickup phase: car photo and the
// start odometer. Electronic rentals pay the remaining purse here; the trip
// flips to Ongoing as soon as all preconditions hold.
func (e *Engine) RenterPickupHandover(ctx context.Context, renterID, rentalID uint, in RenterPickupInput) (*models.Rental, error) {
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
			if !rental.IsSelfDrive() {
				return Errf(CodeInvalidMethod, "not a self-drive rental")
			}
			if err := guardState(rental, OpRenterPickup); err != nil {
				return err
			}
			handover, err := e.store.GetHandover(tx, rentalID)
			if err != nil {
				return err
			}
			if handover.OwnerPickupDoneAt == nil {
				return Errf(CodeOwnerPickupRequired, "owner has not completed the pickup handover")
			}
			if handover.RenterPickupDoneAt != nil {
				return Errf(CodeHandoverAlreadyDone, "renter pickup handover already completed")
			}
			if in.CarImageURL == "" {
				return Errf(CodeCarImageRequired, "car photo is required")
			}
			if in.StartOdometer == nil {
				return Errf(CodeOdometerStart, "start odometer reading is required")
			}
			if *in.StartOdometer < 0 {
				return Errf(CodeInvalidData, "odometer reading cannot be negative")
			}
			payment, err = e.store.GetPayment(tx, rentalID)
			return err
		})
		if err != nil {
			return err
		}

		// Electronic methods pay the remaining purse before the keys change
		// hands.
		switch {
		case payment.RemainingStatus == models.PurseStatusPaid,
			payment.RemainingStatus == models.PurseStatusConfirmed:
		case payment.Method == models.MethodWallet:
			if err := e.payRemainingFromWallet(rentalID, renterID); err != nil {
				return err
			}
		case payment.Method == models.MethodCard:
			if err := e.payRemainingWithCard(ctx, rental, renterID, payment); err != nil {
				return err
			}
		}

		return e.store.Transaction(func(tx *gorm.DB) error {
			fresh, err := e.loadRental(tx, rentalID)
			if err != nil {
				return err
			}
			handover, err := e.store.GetHandover(tx, rentalID)
			if err != nil {
				return err
			}
			payment, err := e.store.GetPayment(tx, rentalID)
			if err != nil {
				return err
			}

			now := e.clock.Now()
			handover.RenterSignedAt = &now
			handover.RenterPickupDoneAt = &now
			handover.PickupCarImage = in.CarImageURL
			handover.StartOdometer = in.StartOdometer
			handover.StartOdometerImage = in.OdometerImageURL
			if err := e.store.SaveHandover(tx, handover); err != nil {
				return err
			}

			if selfDriveReadyToStart(payment, handover) {
				fresh.Status = models.RentalStatusOngoing
				if err := e.store.SaveRental(tx, fresh); err != nil {
					return err
				}
				if err := e.store.AppendAudit(tx, rentalID, OpStartTrip, 0, "system", "auto-start after pickup handover"); err != nil {
					return err
				}
			}
			if err := e.store.AppendAudit(tx, rentalID, OpRenterPickup, renterID, "renter", ""); err != nil {
				return err
			}
			out = fresh
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	e.afterCommit(ctx, out, OpRenterPickup, nil)
	return out, nil
}

// selfDriveReadyToStart checks every precondition of the automatic trip
// start: both signatures, both pickup flags, deposit paid and the remaining
// purse settled per method.
func selfDriveReadyToStart(payment *models.RentalPayment, h *models.Handover) bool {
	if h.OwnerSignedAt == nil || h.RenterSignedAt == nil {
		return false
	}
	if h.OwnerPickupDoneAt == nil || h.RenterPickupDoneAt == nil {
		return false
	}
	if payment.DepositStatus != models.PurseStatusPaid {
		return false
	}
	switch payment.Method {
	case models.MethodCash:
		return payment.RemainingStatus == models.PurseStatusConfirmed
	default:
		return payment.RemainingStatus == models.PurseStatusPaid
	}
}

// RenterDropoffInput is the renter's half of the return handover.
type RenterDropoffInput struct {
	CarImageURL      string
	OdometerImageURL string
	EndOdometer      *int
}

// RenterDropoffHandover records the renter's return: end odometer and car
// photo. It computes the excess (extra kilometres, late days) and collects it
// for electronic methods; cash excess waits for the owner's confirmation.
// The handover is marked done only after the collection succeeds, so a
// declined or timed-out charge leaves the dropoff retryable.
func (e *Engine) RenterDropoffHandover(ctx context.Context, renterID, rentalID uint, in RenterDropoffInput) (*models.Rental, error) {
	var out *models.Rental
	err := e.withRentalLock(ctx, rentalID, func() error {
		var rental *models.Rental
		var payment *models.RentalPayment
		var collect bool
		err := e.store.Transaction(func(tx *gorm.DB) error {
			var err error
			rental, err = e.loadRental(tx, rentalID)
			if err != nil {
				return err
			}
			if err := e.requireRenter(rental, renterID); err != nil {
				return err
			}
			if !rental.IsSelfDrive() {
				return Errf(CodeInvalidMethod, "not a self-drive rental")
			}
			if err := guardState(rental, OpRenterDropoff); err != nil {
				return err
			}
			handover, err := e.store.GetHandover(tx, rentalID)
			if err != nil {
				return err
			}
			if handover.RenterReturnDoneAt != nil {
				return Errf(CodeHandoverAlreadyDone, "renter return handover already completed")
			}
			if in.CarImageURL == "" {
				return Errf(CodeCarImageRequired, "car return photo is required")
			}
			if in.EndOdometer == nil {
				return Errf(CodeOdometerEnd, "end odometer reading is required")
			}
			if handover.StartOdometer == nil {
				return Errf(CodeOdometerStart, "start odometer reading is missing")
			}

			payment, err = e.store.GetPayment(tx, rentalID)
			if err != nil {
				return err
			}

			// A webhook may have settled the excess of an earlier failed
			// attempt; keep those figures instead of recomputing.
			if payment.ExcessStatus != models.PurseStatusPaid {
				breakdown, err := e.store.GetBreakdown(tx, rentalID)
				if err != nil {
					return err
				}
				car, err := e.store.GetCar(rental.CarID)
				if err != nil {
					return err
				}

				excess, err := pricing.ComputeSelfDriveExcess(pricing.SelfDriveExcessInput{
					StartOdometer: *handover.StartOdometer,
					EndOdometer:   *in.EndOdometer,
					AllowedKm:     breakdown.AllowedKm,
					ExtraKmRate:   car.ExtraKmRate,
					PlannedEnd:    rental.EndDate,
					ActualDropoff: e.clock.Now(),
					DailyPrice:    breakdown.DailyPrice,
					LateFeeMult:   e.cfg.LateFeeMult,
					InitialCost:   breakdown.InitialCost,
				})
				if errors.Is(err, pricing.ErrInvalidInput) {
					return Errf(CodeInvalidData, "end odometer is below the start reading")
				}
				if err != nil {
					return err
				}

				breakdown.ExtraKm = excess.ExtraKm
				breakdown.ExtraKmFee = excess.ExtraKmFee
				breakdown.LateDays = excess.LateDays
				breakdown.LateFee = excess.LateFee
				breakdown.TotalExtrasCost = excess.TotalExtrasCost
				breakdown.FinalCost = excess.FinalCost
				if err := e.store.SaveBreakdown(tx, breakdown); err != nil {
					return err
				}

				payment.ExcessAmount = excess.TotalExtrasCost
				if pricing.IsZeroAmount(excess.TotalExtrasCost) {
					payment.ExcessStatus = models.PurseStatusNoRemaining
				}
				if err := e.store.SavePayment(tx, payment); err != nil {
					return err
				}
				collect = !pricing.IsZeroAmount(excess.TotalExtrasCost)
			}

			handover.ReturnCarImage = in.CarImageURL
			handover.EndOdometer = in.EndOdometer
			handover.EndOdometerImage = in.OdometerImageURL
			return e.store.SaveHandover(tx, handover)
		})
		if err != nil {
			return err
		}

		// A failed collection aborts here with the handover still open; the
		// renter retries the dropoff once the charge can go through.
		if collect {
			switch payment.Method {
			case models.MethodWallet:
				if err := e.chargeExcessFromWallet(rentalID, renterID); err != nil {
					return err
				}
			case models.MethodCard:
				if err := e.chargeExcessWithCard(ctx, rental); err != nil {
					return err
				}
			case models.MethodCash:
				// Owner confirms the cash excess at their dropoff phase.
			}
		}

		return e.store.Transaction(func(tx *gorm.DB) error {
			handover, err := e.store.GetHandover(tx, rentalID)
			if err != nil {
				return err
			}
			now := e.clock.Now()
			handover.RenterReturnDoneAt = &now
			if err := e.store.SaveHandover(tx, handover); err != nil {
				return err
			}
			if err := e.store.AppendAudit(tx, rentalID, OpRenterDropoff, renterID, "renter", ""); err != nil {
				return err
			}
			out = rental
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	e.afterCommit(ctx, out, OpRenterDropoff, nil)
	return out, nil
}

// OwnerDropoffInput is the owner's half of the return handover.
type OwnerDropoffInput struct {
	// Cash rentals with an excess: the owner confirms collecting it in cash.
	CashExcessCollected bool
}

// OwnerDropoffHandover closes a self-drive rental: the owner takes the car
// back, confirms any cash excess, and the settlement posts the owner's share.
func (e *Engine) OwnerDropoffHandover(ctx context.Context, ownerID, rentalID uint, in OwnerDropoffInput) (*models.Rental, error) {
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
			if !rental.IsSelfDrive() {
				return Errf(CodeInvalidMethod, "not a self-drive rental")
			}
			if err := guardState(rental, OpOwnerDropoff); err != nil {
				return err
			}
			handover, err := e.store.GetHandover(tx, rentalID)
			if err != nil {
				return err
			}
			if handover.RenterReturnDoneAt == nil {
				return Errf(CodeRenterHandoverRequired, "renter has not completed the return handover")
			}
			if handover.OwnerReturnDoneAt != nil {
				return Errf(CodeHandoverAlreadyDone, "owner return handover already completed")
			}

			payment, err := e.store.GetPayment(tx, rentalID)
			if err != nil {
				return err
			}
			breakdown, err := e.store.GetBreakdown(tx, rentalID)
			if err != nil {
				return err
			}

			now := e.clock.Now()
			hasExcess := !pricing.IsZeroAmount(payment.ExcessAmount)
			if hasExcess && payment.ExcessStatus != models.PurseStatusPaid {
				if payment.Method != models.MethodCash {
					return Errf(CodeExcessRequired, "the excess amount has not been collected")
				}
				if !in.CashExcessCollected {
					return Errf(CodeExcessCashConfirm, "confirm cash collection of the excess amount")
				}
				payment.ExcessStatus = models.PurseStatusPaid
				payment.ExcessPaidAt = &now
				handover.ExcessCashConfirmedAt = &now
				if err := e.store.SavePayment(tx, payment); err != nil {
					return err
				}
			}

			handover.OwnerReturnDoneAt = &now
			if err := e.store.SaveHandover(tx, handover); err != nil {
				return err
			}

			if err := e.settleOwner(tx, rental, payment, breakdown); err != nil {
				return err
			}

			rental.Status = models.RentalStatusFinished
			if err := e.store.SaveRental(tx, rental); err != nil {
				return err
			}
			if err := e.store.AppendAudit(tx, rentalID, OpOwnerDropoff, ownerID, "owner", ""); err != nil {
				return err
			}
			out = rental
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	e.afterCommit(ctx, out, OpOwnerDropoff, nil)
	return out, nil
}
