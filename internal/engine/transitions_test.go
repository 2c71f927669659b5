package engine

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/karhabty/karhabty-backend/internal/models"
)

func rentalIn(status string) *models.Rental {
	r := &models.Rental{Status: status}
	r.ID = 7
	return r
}

func TestGuardStateAllows(t *testing.T) {
	cases := []struct {
		op     string
		status string
	}{
		{OpOwnerConfirm, models.RentalStatusPendingOwnerConfirmation},
		{OpDepositPayment, models.RentalStatusDepositRequired},
		{OpOwnerConfirmArrival, models.RentalStatusConfirmed},
		{OpStartTrip, models.RentalStatusConfirmed},
		{OpStopArrival, models.RentalStatusOngoing},
		{OpEndTrip, models.RentalStatusOngoing},
		{OpOwnerPickup, models.RentalStatusConfirmed},
		{OpRenterDropoff, models.RentalStatusOngoing},
		{OpOwnerCancel, models.RentalStatusDepositRequired},
	}
	for _, c := range cases {
		assert.NoError(t, guardState(rentalIn(c.status), c.op), "%s in %s", c.op, c.status)
	}
}

func TestGuardStateRejectsWithSpecificCodes(t *testing.T) {
	cases := []struct {
		op     string
		status string
		code   string
	}{
		{OpDepositPayment, models.RentalStatusPendingOwnerConfirmation, CodeOwnerConfirmationRequired},
		{OpStartTrip, models.RentalStatusDepositRequired, CodeDepositRequired},
		{OpOwnerPickup, models.RentalStatusDepositRequired, CodeDepositRequired},
		{OpStartTrip, models.RentalStatusOngoing, CodeInvalidStatus},
		{OpEndTrip, models.RentalStatusConfirmed, CodeInvalidStatus},
		{OpOwnerConfirm, models.RentalStatusConfirmed, CodeInvalidStatus},
		{OpOwnerCancel, models.RentalStatusOngoing, CodeInvalidStatus},
	}
	for _, c := range cases {
		err := guardState(rentalIn(c.status), c.op)
		assert.True(t, IsCode(err, c.code), "%s in %s: got %v, want %s", c.op, c.status, err, c.code)
	}
}

func TestGuardStateTerminalStates(t *testing.T) {
	for _, op := range []string{OpOwnerConfirm, OpDepositPayment, OpStartTrip, OpEndTrip, OpOwnerCancel} {
		assert.True(t, IsCode(guardState(rentalIn(models.RentalStatusCanceled), op), CodeAlreadyCanceled), op)
		assert.True(t, IsCode(guardState(rentalIn(models.RentalStatusFinished), op), CodeAlreadyDone), op)
	}
}

func TestGuardStateIsTotal(t *testing.T) {
	statuses := []string{
		models.RentalStatusPendingOwnerConfirmation,
		models.RentalStatusDepositRequired,
		models.RentalStatusConfirmed,
		models.RentalStatusOngoing,
		models.RentalStatusFinished,
		models.RentalStatusCanceled,
	}
	for op := range allowedStates {
		for _, status := range statuses {
			err := guardState(rentalIn(status), op)
			if err != nil {
				var e *Error
				assert.True(t, errors.As(err, &e), "%s in %s must fail with a coded error", op, status)
			}
		}
	}
}

func TestAsErrorHidesInternals(t *testing.T) {
	wrapped := AsError(errors.New("pq: duplicate key value violates unique constraint"))
	assert.Equal(t, CodeInternal, wrapped.Code)
	assert.NotContains(t, wrapped.Message, "pq:")

	coded := AsError(Errf(CodeNotOwner, "nope"))
	assert.Equal(t, CodeNotOwner, coded.Code)
}

func TestCents(t *testing.T) {
	assert.Equal(t, int64(25875), cents(decimal.RequireFromString("258.75")))
	assert.Equal(t, int64(0), cents(decimal.Zero))
}
