package engine

import "github.com/karhabty/karhabty-backend/internal/models"

// Operation names double as audit events.
const (
	OpOwnerConfirm        = "owner_confirm"
	OpOwnerCancel         = "owner_cancel"
	OpDepositPayment      = "deposit_payment"
	OpDepositExpired      = "deposit_expired"
	OpOwnerConfirmArrival = "owner_confirm_arrival"
	OpStartTrip           = "start_trip"
	OpStopArrival         = "stop_arrival"
	OpEndWaiting          = "end_waiting"
	OpEndTrip             = "end_trip"
	OpOwnerPickup         = "owner_pickup_handover"
	OpRenterPickup        = "renter_pickup_handover"
	OpRenterDropoff       = "renter_dropoff_handover"
	OpOwnerDropoff        = "owner_dropoff_handover"
)

// allowedStates maps each operation onto the rental states it may run in.
// Guards are total: an operation invoked in any other state fails with
// INVALID_STATUS (or a more specific code resolved by guardState).
var allowedStates = map[string][]string{
	OpOwnerConfirm:        {models.RentalStatusPendingOwnerConfirmation},
	OpOwnerCancel:         {models.RentalStatusPendingOwnerConfirmation, models.RentalStatusDepositRequired, models.RentalStatusConfirmed},
	OpDepositPayment:      {models.RentalStatusDepositRequired},
	OpDepositExpired:      {models.RentalStatusDepositRequired},
	OpOwnerConfirmArrival: {models.RentalStatusConfirmed},
	OpStartTrip:           {models.RentalStatusConfirmed},
	OpStopArrival:         {models.RentalStatusOngoing},
	OpEndWaiting:          {models.RentalStatusOngoing},
	OpEndTrip:             {models.RentalStatusOngoing},
	OpOwnerPickup:         {models.RentalStatusConfirmed},
	OpRenterPickup:        {models.RentalStatusConfirmed},
	OpRenterDropoff:       {models.RentalStatusOngoing},
	OpOwnerDropoff:        {models.RentalStatusOngoing},
}

// guardState validates the current state against the operation's allowed set
// and picks the most specific error code when it fails.
func guardState(rental *models.Rental, op string) error {
	states, ok := allowedStates[op]
	if !ok {
		return Errf(CodeInternal, "unknown operation %s", op)
	}
	for _, s := range states {
		if rental.Status == s {
			return nil
		}
	}
	switch rental.Status {
	case models.RentalStatusCanceled:
		return Errf(CodeAlreadyCanceled, "rental %d is canceled", rental.ID)
	case models.RentalStatusFinished:
		return Errf(CodeAlreadyDone, "rental %d is finished", rental.ID)
	case models.RentalStatusPendingOwnerConfirmation:
		if op == OpDepositPayment {
			return Errf(CodeOwnerConfirmationRequired, "owner has not confirmed rental %d yet", rental.ID)
		}
	case models.RentalStatusDepositRequired:
		switch op {
		case OpStartTrip, OpOwnerConfirmArrival, OpOwnerPickup, OpRenterPickup:
			return Errf(CodeDepositRequired, "deposit for rental %d has not been paid", rental.ID)
		}
	}
	return Errf(CodeInvalidStatus, "operation %s not allowed in state %s", op, rental.Status)
}
