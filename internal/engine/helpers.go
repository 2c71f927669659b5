package engine

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/karhabty/karhabty-backend/internal/gateway"
	"github.com/karhabty/karhabty-backend/internal/models"
)

var hundred = decimal.NewFromInt(100)

// cents converts a monetary amount to the gateway's minor units.
func cents(d decimal.Decimal) int64 {
	return d.Mul(hundred).Round(0).IntPart()
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

// requireOwner checks the actor owns the rented car.
func (e *Engine) requireOwner(rental *models.Rental, actorID uint) error {
	car, err := e.store.GetCar(rental.CarID)
	if err != nil {
		return err
	}
	if car.OwnerID != actorID {
		return Errf(CodeNotOwner, "you are not the owner of this rental's car")
	}
	return nil
}

// requireRenter checks the actor booked the rental.
func (e *Engine) requireRenter(rental *models.Rental, actorID uint) error {
	if rental.RenterID != actorID {
		return Errf(CodeNotRenter, "you are not the renter of this rental")
	}
	return nil
}

// handoverStarted reports whether either side has begun the pickup handover;
// cancellation is blocked from that point on.
func handoverStarted(h *models.Handover) bool {
	return h.OwnerSignedAt != nil || h.RenterSignedAt != nil ||
		h.OwnerPickupDoneAt != nil || h.RenterPickupDoneAt != nil
}

// billingFor fills the gateway's payer identification from the user row. The
// gateway requires every field; unknown ones are sent as NA.
func billingFor(u *models.User) gateway.BillingData {
	first, last := u.Username, "NA"
	if i := strings.IndexByte(u.Username, ' '); i > 0 {
		first, last = u.Username[:i], u.Username[i+1:]
	}
	phone := u.PhoneNumber
	if phone == "" {
		phone = "NA"
	}
	return gateway.BillingData{
		FirstName:   first,
		LastName:    last,
		Email:       u.Email,
		PhoneNumber: phone,
	}
}
