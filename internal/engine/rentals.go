package engine

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/karhabty/karhabty-backend/internal/gateway"
	"github.com/karhabty/karhabty-backend/internal/models"
	"github.com/karhabty/karhabty-backend/internal/pricing"
	"github.com/karhabty/karhabty-backend/internal/wallet"
)

// StopInput is one planned stop of a with-driver itinerary.
type StopInput struct {
	Lat                  float64 `json:"lat" binding:"required"`
	Lng                  float64 `json:"lng" binding:"required"`
	Address              string  `json:"address"`
	ApproxWaitingMinutes int     `json:"approxWaitingMinutes"`
}

// CreateRentalInput is the booking request.
type CreateRentalInput struct {
	CarID         uint                 `json:"carId" binding:"required"`
	Mode          models.RentalMode    `json:"mode" binding:"required"`
	PaymentMethod models.PaymentMethod `json:"paymentMethod" binding:"required"`
	SavedCardID   *uint                `json:"savedCardId"`

	StartDate time.Time `json:"startDate" binding:"required"`
	EndDate   time.Time `json:"endDate" binding:"required"`

	PickupLat   float64 `json:"pickupLat"`
	PickupLng   float64 `json:"pickupLng"`
	PickupAddr  string  `json:"pickupAddress"`
	DropoffLat  float64 `json:"dropoffLat"`
	DropoffLng  float64 `json:"dropoffLng"`
	DropoffAddr string  `json:"dropoffAddress"`

	// With-driver only
	PlannedKm decimal.Decimal `json:"plannedKm"`
	Stops     []StopInput     `json:"stops"`
}

// CreateRental prices the booking, persists the rental aggregate and leaves
// it waiting for the owner's confirmation.
func (e *Engine) CreateRental(ctx context.Context, renterID uint, in CreateRentalInput) (*models.Rental, error) {
	switch in.PaymentMethod {
	case models.MethodWallet, models.MethodCard, models.MethodCash:
	default:
		return nil, Errf(CodeInvalidPaymentMethod, "unknown payment method %q", in.PaymentMethod)
	}
	switch in.Mode {
	case models.ModeWithDriver, models.ModeWithoutDriver:
	default:
		return nil, Errf(CodeInvalidMethod, "unknown rental mode %q", in.Mode)
	}
	if !in.EndDate.After(in.StartDate) && !in.EndDate.Equal(in.StartDate) {
		return nil, Errf(CodeInvalidData, "end date precedes start date")
	}

	car, err := e.store.GetCar(in.CarID)
	if err != nil {
		return nil, Errf(CodeNotFound, "car %d not found", in.CarID)
	}
	if !car.IsAvailable {
		return nil, Errf(CodeInvalidData, "car %d is not available", in.CarID)
	}
	if car.OwnerID == renterID {
		return nil, Errf(CodeInvalidData, "cannot rent your own car")
	}

	rental := &models.Rental{
		RenterID:      renterID,
		CarID:         car.ID,
		Mode:          in.Mode,
		PaymentMethod: in.PaymentMethod,
		SavedCardID:   in.SavedCardID,
		StartDate:     in.StartDate,
		EndDate:       in.EndDate,
		PickupLat:     in.PickupLat,
		PickupLng:     in.PickupLng,
		PickupAddr:    in.PickupAddr,
		DropoffLat:    in.DropoffLat,
		DropoffLng:    in.DropoffLng,
		DropoffAddr:   in.DropoffAddr,
		Status:        models.RentalStatusPendingOwnerConfirmation,
	}

	var payment *models.RentalPayment
	var breakdown *models.Breakdown
	var trip *models.PlannedTrip

	if in.Mode == models.ModeWithDriver {
		plannedWaiting := 0
		for _, s := range in.Stops {
			plannedWaiting += s.ApproxWaitingMinutes
		}
		quote, err := pricing.QuoteWithDriver(pricing.WithDriverInput{
			Start:                 in.StartDate,
			End:                   in.EndDate,
			PlannedKm:             in.PlannedKm,
			PlannedWaitingMinutes: plannedWaiting,
			Method:                in.PaymentMethod,
			DailyPrice:            car.DailyPrice,
			DailyKmLimit:          car.DailyKmLimit,
			ExtraKmRate:           car.ExtraKmRate,
			ExtraHourRate:         car.ExtraHourRate,
			CommissionRate:        e.cfg.CommissionRate,
			BufferPct:             e.cfg.BufferPct,
			DepositPct:            e.cfg.DepositPct,
		})
		if err != nil {
			return nil, Errf(CodeInvalidData, "cannot price rental: %v", err)
		}

		payment = &models.RentalPayment{
			Method:          in.PaymentMethod,
			TotalAmount:     quote.FinalCost,
			DepositAmount:   quote.Deposit,
			RemainingAmount: quote.Remaining,
		}
		breakdown = &models.Breakdown{
			Mode:                  models.ModeWithDriver,
			DailyPrice:            car.DailyPrice,
			BaseCost:              quote.BaseCost,
			FinalCost:             quote.FinalCost,
			CommissionRate:        e.cfg.CommissionRate,
			PlatformFee:           quote.PlatformFee,
			OwnerEarnings:         quote.OwnerEarnings,
			AllowedKm:             quote.AllowedKm,
			PlannedKm:             in.PlannedKm,
			PlannedWaitingMinutes: plannedWaiting,
			ExtraKm:               quote.ExtraKm,
			ExtraKmCost:           quote.ExtraKmCost,
			WaitingCost:           quote.WaitingCost,
			InsuranceBuffer:       quote.InsuranceBuffer,
		}
		trip = &models.PlannedTrip{}
		for i, s := range in.Stops {
			trip.Stops = append(trip.Stops, models.PlannedStop{
				StopOrder:            i + 1,
				Lat:                  s.Lat,
				Lng:                  s.Lng,
				Address:              s.Address,
				ApproxWaitingMinutes: s.ApproxWaitingMinutes,
			})
		}
	} else {
		days := pricing.RentalDays(in.StartDate, in.EndDate)
		quote, err := pricing.QuoteSelfDrive(pricing.SelfDriveInput{
			DailyPrice:     car.DailyPrice,
			NumDays:        days,
			DailyKmLimit:   car.DailyKmLimit,
			CommissionRate: e.cfg.CommissionRate,
			ServiceFeePct:  e.cfg.ServiceFeePct,
			DepositPct:     e.cfg.DepositPct,
		})
		if err != nil {
			return nil, Errf(CodeInvalidData, "cannot price rental: %v", err)
		}

		payment = &models.RentalPayment{
			Method:          in.PaymentMethod,
			TotalAmount:     quote.InitialCost,
			DepositAmount:   quote.Deposit,
			RemainingAmount: quote.Remaining,
		}
		breakdown = &models.Breakdown{
			Mode:           models.ModeWithoutDriver,
			DailyPrice:     car.DailyPrice,
			BaseCost:       quote.BaseCost,
			FinalCost:      quote.InitialCost,
			CommissionRate: e.cfg.CommissionRate,
			PlatformFee:    quote.PlatformFee,
			OwnerEarnings:  quote.OwnerEarnings,
			AllowedKm:      quote.AllowedKm,
			NumDays:        quote.NumDays,
			CtwFee:         quote.CtwFee,
			InitialCost:    quote.InitialCost,
		}
	}

	if err := e.store.CreateRentalBundle(rental, payment, breakdown, trip); err != nil {
		return nil, err
	}

	e.afterCommit(ctx, rental, "rental_created", map[string]interface{}{
		"totalAmount":   payment.TotalAmount.String(),
		"depositAmount": payment.DepositAmount.String(),
	})
	return rental, nil
}

// OwnerConfirm accepts a pending booking: the rental moves to DepositRequired
// and the renter has DepositTTL to pay. Owners sitting at the wallet floor
// cannot take new bookings until they settle up.
func (e *Engine) OwnerConfirm(ctx context.Context, ownerID, rentalID uint) (*models.Rental, error) {
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
			if err := guardState(rental, OpOwnerConfirm); err != nil {
				return err
			}

			owner, err := e.store.GetUser(ownerID)
			if err != nil {
				return err
			}
			if owner.CannotAcceptBookings {
				return Errf(CodeWalletLimit, "wallet balance is at the floor; settle outstanding commission first")
			}
			below, err := e.ledger.BelowFloor(ownerID)
			if err != nil {
				return err
			}
			if below {
				return Errf(CodeWalletLimit, "wallet balance is at the floor; settle outstanding commission first")
			}

			payment, err := e.store.GetPayment(tx, rentalID)
			if err != nil {
				return err
			}
			dueAt := e.clock.Now().Add(e.cfg.DepositTTL)
			payment.DepositDueAt = &dueAt
			if err := e.store.SavePayment(tx, payment); err != nil {
				return err
			}

			rental.Status = models.RentalStatusDepositRequired
			if err := e.store.SaveRental(tx, rental); err != nil {
				return err
			}
			if err := e.store.AppendAudit(tx, rentalID, OpOwnerConfirm, ownerID, "owner", ""); err != nil {
				return err
			}
			out = rental
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	e.afterCommit(ctx, out, OpOwnerConfirm, map[string]interface{}{
		"status": out.Status,
	})
	return out, nil
}

// OwnerCancel cancels a booking before any handover happened. A paid deposit
// is refunded to the renter's wallet in the same transaction.
func (e *Engine) OwnerCancel(ctx context.Context, ownerID, rentalID uint, reason string) (*models.Rental, error) {
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
			if err := guardState(rental, OpOwnerCancel); err != nil {
				return err
			}

			handover, err := e.store.GetHandover(tx, rentalID)
			if err != nil {
				return err
			}
			if handoverStarted(handover) {
				return Errf(CodeInvalidStatus, "cannot cancel after handover has started")
			}

			payment, err := e.store.GetPayment(tx, rentalID)
			if err != nil {
				return err
			}
			if payment.DepositStatus == models.PurseStatusPaid {
				_, err := e.ledger.CreditTx(tx, rental.RenterID, payment.DepositAmount, wallet.Movement{
					Kind:          models.TxnKindDepositRefund,
					ReferenceID:   itoa(rentalID),
					ReferenceType: "rental",
					Description:   "deposit refund on owner cancellation",
				})
				if err != nil {
					return err
				}
				payment.DepositStatus = models.PurseStatusRefunded
				if err := e.store.SavePayment(tx, payment); err != nil {
					return err
				}
			}

			rental.Status = models.RentalStatusCanceled
			rental.CancelReason = reason
			if err := e.store.SaveRental(tx, rental); err != nil {
				return err
			}
			if err := e.store.AppendAudit(tx, rentalID, OpOwnerCancel, ownerID, "owner", reason); err != nil {
				return err
			}
			out = rental
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	e.afterCommit(ctx, out, OpOwnerCancel, map[string]interface{}{"reason": reason})
	return out, nil
}

// DepositPaymentInput selects the deposit path: wallet debit or a saved-card
// charge. The client echoes the amount so a stale quote is caught before any
// money moves.
type DepositPaymentInput struct {
	Method      models.PaymentMethod `json:"method" binding:"required"`
	SavedCardID *uint                `json:"savedCardId"`
	AmountCents int64                `json:"amountCents"`
}

// PayDeposit pays the deposit purse via wallet or a stored card. On success
// the rental moves to Confirmed in the same transaction as the purse update.
func (e *Engine) PayDeposit(ctx context.Context, renterID, rentalID uint, in DepositPaymentInput) (*models.Rental, error) {
	var out *models.Rental
	err := e.withRentalLock(ctx, rentalID, func() error {
		// Validate state and amount first; the card path then talks to the
		// gateway outside the transaction and applies the outcome in a second
		// one. The rental lock spans all of it.
		var payment *models.RentalPayment
		var rental *models.Rental
		err := e.store.Transaction(func(tx *gorm.DB) error {
			var err error
			rental, err = e.loadRental(tx, rentalID)
			if err != nil {
				return err
			}
			if err := e.requireRenter(rental, renterID); err != nil {
				return err
			}
			if err := guardState(rental, OpDepositPayment); err != nil {
				return err
			}
			payment, err = e.store.GetPayment(tx, rentalID)
			if err != nil {
				return err
			}
			if payment.DepositStatus == models.PurseStatusPaid {
				return Errf(CodeAlreadyPaid, "deposit already paid")
			}
			if payment.DepositExpired(e.clock.Now()) {
				return Errf(CodeDepositExpired, "deposit window for rental %d has expired", rentalID)
			}
			if in.AmountCents == 0 {
				return Errf(CodeMissingAmount, "amountCents is required")
			}
			if in.AmountCents != cents(payment.DepositAmount) {
				return Errf(CodeInvalidAmount, "amount does not match the required deposit")
			}
			return nil
		})
		if err != nil {
			return err
		}

		switch in.Method {
		case models.MethodWallet:
			err = e.payDepositFromWallet(rentalID, renterID, &out)
		case models.MethodCard:
			err = e.payDepositWithSavedCard(ctx, rental, renterID, in.SavedCardID, &out)
		default:
			err = Errf(CodeInvalidPaymentMethod, "deposit cannot be paid with %q", in.Method)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if out != nil {
		e.afterCommit(ctx, out, "deposit_paid", nil)
	}
	return out, nil
}

func (e *Engine) payDepositFromWallet(rentalID, renterID uint, out **models.Rental) error {
	return e.store.Transaction(func(tx *gorm.DB) error {
		rental, err := e.loadRental(tx, rentalID)
		if err != nil {
			return err
		}
		if err := guardState(rental, OpDepositPayment); err != nil {
			return err
		}
		payment, err := e.store.GetPayment(tx, rentalID)
		if err != nil {
			return err
		}
		if payment.DepositStatus == models.PurseStatusPaid {
			return Errf(CodeAlreadyPaid, "deposit already paid")
		}

		_, err = e.ledger.DebitTx(tx, renterID, payment.DepositAmount, wallet.Movement{
			Kind:          models.TxnKindDepositPayment,
			ReferenceID:   itoa(rentalID),
			ReferenceType: "rental",
			Description:   "rental deposit",
		})
		if errors.Is(err, wallet.ErrFloorExceeded) {
			return Errf(CodeWalletLimit, "insufficient wallet balance for the deposit")
		}
		if err != nil {
			return err
		}
		if err := e.markDepositPaid(tx, rental, payment, "wallet", renterID); err != nil {
			return err
		}
		*out = rental
		return nil
	})
}

func (e *Engine) payDepositWithSavedCard(ctx context.Context, rental *models.Rental, renterID uint, savedCardID *uint, out **models.Rental) error {
	if savedCardID == nil {
		savedCardID = rental.SavedCardID
	}
	if savedCardID == nil {
		return Errf(CodeNoSelectedCard, "no card selected for this rental")
	}

	var card *models.SavedCard
	var payment *models.RentalPayment
	err := e.store.Transaction(func(tx *gorm.DB) error {
		var err error
		card, err = e.store.GetSavedCard(tx, *savedCardID)
		if err != nil {
			return Errf(CodeCardNotFound, "card %d not found", *savedCardID)
		}
		if card.UserID != renterID {
			return Errf(CodeCardNotOwned, "card %d does not belong to you", *savedCardID)
		}
		payment, err = e.store.GetPayment(tx, rental.ID)
		return err
	})
	if err != nil {
		return err
	}

	renter, err := e.store.GetUser(renterID)
	if err != nil {
		return err
	}

	ref := gateway.RentalDepositRef(rental.ID, renterID)
	if rental.IsSelfDrive() {
		ref = gateway.SelfDriveDepositRef(rental.ID, renterID)
	}
	result, err := e.gateway.ChargeSavedCard(ctx, gateway.ChargeRequest{
		AmountCents:   cents(payment.DepositAmount),
		MerchantRef:   ref,
		CardToken:     card.Token,
		IntegrationID: e.cfg.IntegrationMoto,
		Billing:       billingFor(renter),
	})
	if errors.Is(err, gateway.ErrTimeout) {
		// Purse stays Pending; the webhook is the authoritative outcome.
		return Errf(CodePaymentTimeout, "payment gateway timed out; the result will be reconciled asynchronously")
	}
	if err != nil {
		return ErrWithDetails(CodePaymentFailed, "deposit charge failed", err.Error())
	}
	if !result.Success {
		return ErrWithDetails(CodePaymentFailed, "deposit charge declined", result.Message)
	}

	return e.store.Transaction(func(tx *gorm.DB) error {
		fresh, err := e.loadRental(tx, rental.ID)
		if err != nil {
			return err
		}
		payment, err := e.store.GetPayment(tx, rental.ID)
		if err != nil {
			return err
		}
		if payment.DepositStatus == models.PurseStatusPaid {
			*out = fresh
			return nil // webhook beat us to it
		}
		payment.DepositTxnID = result.TransactionID
		if err := e.markDepositPaid(tx, fresh, payment, "card", renterID); err != nil {
			return err
		}
		*out = fresh
		return nil
	})
}

// markDepositPaid flips the deposit purse and the rental together.
func (e *Engine) markDepositPaid(tx *gorm.DB, rental *models.Rental, payment *models.RentalPayment, via string, actorID uint) error {
	now := e.clock.Now()
	payment.DepositStatus = models.PurseStatusPaid
	payment.DepositPaidAt = &now
	if err := e.store.SavePayment(tx, payment); err != nil {
		return err
	}
	rental.Status = models.RentalStatusConfirmed
	if err := e.store.SaveRental(tx, rental); err != nil {
		return err
	}
	return e.store.AppendAudit(tx, rental.ID, "deposit_paid", actorID, "renter", via)
}

// NewCardDepositURL registers a hosted-payment order for the deposit and
// returns the iframe URL. The outcome arrives on the webhook.
func (e *Engine) NewCardDepositURL(ctx context.Context, renterID, rentalID uint) (string, error) {
	var url string
	err := e.withRentalLock(ctx, rentalID, func() error {
		var payment *models.RentalPayment
		var rental *models.Rental
		err := e.store.Transaction(func(tx *gorm.DB) error {
			var err error
			rental, err = e.loadRental(tx, rentalID)
			if err != nil {
				return err
			}
			if err := e.requireRenter(rental, renterID); err != nil {
				return err
			}
			if err := guardState(rental, OpDepositPayment); err != nil {
				return err
			}
			payment, err = e.store.GetPayment(tx, rentalID)
			if err != nil {
				return err
			}
			if payment.DepositStatus == models.PurseStatusPaid {
				return Errf(CodeAlreadyPaid, "deposit already paid")
			}
			if payment.DepositExpired(e.clock.Now()) {
				return Errf(CodeDepositExpired, "deposit window for rental %d has expired", rentalID)
			}
			return nil
		})
		if err != nil {
			return err
		}

		renter, err := e.store.GetUser(renterID)
		if err != nil {
			return err
		}
		ref := gateway.RentalDepositRef(rentalID, renterID)
		if rental.IsSelfDrive() {
			ref = gateway.SelfDriveDepositRef(rentalID, renterID)
		}
		url, _, err = e.gateway.HostedPaymentURL(ctx, gateway.IntentRequest{
			AmountCents:   cents(payment.DepositAmount),
			MerchantRef:   ref,
			IntegrationID: e.cfg.IntegrationCard,
			Billing:       billingFor(renter),
		})
		if errors.Is(err, gateway.ErrTimeout) {
			return Errf(CodePaymentTimeout, "payment gateway timed out")
		}
		if err != nil {
			return ErrWithDetails(CodePaymentIntentFailed, "could not create payment intent", err.Error())
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return url, nil
}

// CheckDepositExpiry cancels a rental whose deposit deadline passed unpaid.
// The only transition that runs without an actor request.
func (e *Engine) CheckDepositExpiry(ctx context.Context, rentalID uint) error {
	var out *models.Rental
	err := e.withRentalLock(ctx, rentalID, func() error {
		return e.store.Transaction(func(tx *gorm.DB) error {
			rental, err := e.loadRental(tx, rentalID)
			if err != nil {
				return err
			}
			if rental.Status != models.RentalStatusDepositRequired {
				return nil
			}
			payment, err := e.store.GetPayment(tx, rentalID)
			if err != nil {
				return err
			}
			if !payment.DepositExpired(e.clock.Now()) {
				return nil
			}

			rental.Status = models.RentalStatusCanceled
			rental.CancelReason = "deposit not paid in time"
			if err := e.store.SaveRental(tx, rental); err != nil {
				return err
			}
			if err := e.store.AppendAudit(tx, rentalID, OpDepositExpired, 0, "system", ""); err != nil {
				return err
			}
			out = rental
			return nil
		})
	})
	if err != nil {
		return err
	}
	if out != nil {
		e.afterCommit(ctx, out, OpDepositExpired, nil)
	}
	return nil
}

// SweepExpiredDeposits runs CheckDepositExpiry over every overdue rental;
// invoked by the scheduler.
func (e *Engine) SweepExpiredDeposits(ctx context.Context) {
	rentals, err := e.store.ExpiredDepositRentals(e.clock.Now())
	if err != nil {
		e.log.WithError(err).Error("deposit expiry sweep query failed")
		return
	}
	for _, rental := range rentals {
		if err := e.CheckDepositExpiry(ctx, rental.ID); err != nil {
			e.log.WithError(err).WithField("rental", rental.ID).Warn("deposit expiry failed")
		}
	}
}
