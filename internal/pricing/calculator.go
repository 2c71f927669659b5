package pricing

import (
	"errors"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/karhabty/karhabty-backend/internal/models"
)

// ErrInvalidInput is returned for quotes that cannot be priced (zero km
// limit, inverted dates, non-positive rates).
var ErrInvalidInput = errors.New("pricing: invalid input")

// Epsilon for comparing monetary values against zero.
var epsilon = decimal.NewFromFloat(0.005)

var sixty = decimal.NewFromInt(60)

// IsZeroAmount reports whether an amount is zero within the money epsilon.
func IsZeroAmount(d decimal.Decimal) bool {
	return d.Abs().LessThanOrEqual(epsilon)
}

// round normalises a monetary value to two fractional digits, half-to-even.
func round(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(2)
}

// RentalDays counts calendar days between two instants, both ends included.
// Same-day start and end is one rental day.
func RentalDays(start, end time.Time) int {
	s := start.UTC().Truncate(24 * time.Hour)
	e := end.UTC().Truncate(24 * time.Hour)
	if e.Before(s) {
		return 0
	}
	return int(e.Sub(s).Hours()/24) + 1
}

// WithDriverInput are the parameters of a chauffeured quote. The rates come
// from the car row; the percentages from the platform configuration.
type WithDriverInput struct {
	Start                 time.Time
	End                   time.Time
	PlannedKm             decimal.Decimal
	PlannedWaitingMinutes int
	Method                models.PaymentMethod
	DailyPrice            decimal.Decimal
	DailyKmLimit          int
	ExtraKmRate           decimal.Decimal
	ExtraHourRate         decimal.Decimal
	CommissionRate        decimal.Decimal
	BufferPct             decimal.Decimal
	DepositPct            decimal.Decimal
}

// WithDriverQuote is the priced breakdown of a chauffeured rental.
type WithDriverQuote struct {
	RentalDays      int
	AllowedKm       decimal.Decimal
	ExtraKm         decimal.Decimal
	ExtraKmCost     decimal.Decimal
	WaitingCost     decimal.Decimal
	BaseCost        decimal.Decimal
	InsuranceBuffer decimal.Decimal
	Deposit         decimal.Decimal
	Remaining       decimal.Decimal
	FinalCost       decimal.Decimal
	PlatformFee     decimal.Decimal
	OwnerEarnings   decimal.Decimal
}

// QuoteWithDriver prices a with-driver rental. Electronic payments (wallet,
// card) carry the insurance buffer; cash does not.
func QuoteWithDriver(in WithDriverInput) (WithDriverQuote, error) {
	if in.DailyKmLimit <= 0 || !in.DailyPrice.IsPositive() {
		return WithDriverQuote{}, ErrInvalidInput
	}
	if in.PlannedKm.IsNegative() || in.PlannedWaitingMinutes < 0 {
		return WithDriverQuote{}, ErrInvalidInput
	}
	days := RentalDays(in.Start, in.End)
	if days <= 0 {
		return WithDriverQuote{}, ErrInvalidInput
	}

	q := WithDriverQuote{RentalDays: days}
	nDays := decimal.NewFromInt(int64(days))

	q.AllowedKm = nDays.Mul(decimal.NewFromInt(int64(in.DailyKmLimit)))
	q.ExtraKm = decimal.Max(decimal.Zero, in.PlannedKm.Sub(q.AllowedKm))
	q.ExtraKmCost = round(q.ExtraKm.Mul(in.ExtraKmRate))
	q.WaitingCost = round(decimal.NewFromInt(int64(in.PlannedWaitingMinutes)).Mul(in.ExtraHourRate).Div(sixty))
	q.BaseCost = round(nDays.Mul(in.DailyPrice))

	totalBeforeBuffer := q.BaseCost.Add(q.ExtraKmCost).Add(q.WaitingCost)
	if in.Method == models.MethodWallet || in.Method == models.MethodCard {
		q.InsuranceBuffer = round(totalBeforeBuffer.Mul(in.BufferPct))
	} else {
		q.InsuranceBuffer = decimal.Zero
	}

	q.FinalCost = totalBeforeBuffer.Add(q.InsuranceBuffer)
	q.Deposit = round(q.FinalCost.Mul(in.DepositPct))
	q.Remaining = q.FinalCost.Sub(q.Deposit)
	q.PlatformFee = round(q.FinalCost.Mul(in.CommissionRate))
	q.OwnerEarnings = q.FinalCost.Sub(q.PlatformFee)
	return q, nil
}

// SelfDriveQuote is the priced breakdown of a self-drive rental.
type SelfDriveQuote struct {
	NumDays       int
	BaseCost      decimal.Decimal
	CtwFee        decimal.Decimal
	InitialCost   decimal.Decimal
	Deposit       decimal.Decimal
	Remaining     decimal.Decimal
	AllowedKm     decimal.Decimal
	PlatformFee   decimal.Decimal
	OwnerEarnings decimal.Decimal
}

// SelfDriveInput are the parameters of a self-drive quote.
type SelfDriveInput struct {
	DailyPrice     decimal.Decimal
	NumDays        int
	DailyKmLimit   int
	CommissionRate decimal.Decimal
	ServiceFeePct  decimal.Decimal
	DepositPct     decimal.Decimal
}

// QuoteSelfDrive prices a self-drive rental: base plus the service fee, a
// deposit cut up-front and the rest due at pickup.
func QuoteSelfDrive(in SelfDriveInput) (SelfDriveQuote, error) {
	if in.NumDays <= 0 || in.DailyKmLimit <= 0 || !in.DailyPrice.IsPositive() {
		return SelfDriveQuote{}, ErrInvalidInput
	}

	q := SelfDriveQuote{NumDays: in.NumDays}
	nDays := decimal.NewFromInt(int64(in.NumDays))

	q.BaseCost = round(in.DailyPrice.Mul(nDays))
	q.CtwFee = round(q.BaseCost.Mul(in.ServiceFeePct))
	q.InitialCost = q.BaseCost.Add(q.CtwFee)
	q.Deposit = round(q.InitialCost.Mul(in.DepositPct))
	q.Remaining = q.InitialCost.Sub(q.Deposit)
	q.AllowedKm = nDays.Mul(decimal.NewFromInt(int64(in.DailyKmLimit)))
	q.PlatformFee = round(q.InitialCost.Mul(in.CommissionRate))
	q.OwnerEarnings = q.InitialCost.Sub(q.PlatformFee)
	return q, nil
}

// WithDriverExcess computes the end-of-trip surcharge of a chauffeured
// rental: waiting minutes beyond the plan, billed at the hourly rate.
type WithDriverExcess struct {
	ActualWaitingMinutes int
	ExtraWaitingMinutes  int
	ExcessWaitingCost    decimal.Decimal
	FinalTotalCost       decimal.Decimal
}

func ComputeWithDriverExcess(plannedMinutes, actualMinutes int, extraHourRate, finalCost decimal.Decimal) WithDriverExcess {
	extra := actualMinutes - plannedMinutes
	if extra < 0 {
		extra = 0
	}
	cost := round(decimal.NewFromInt(int64(extra)).Mul(extraHourRate).Div(sixty))
	return WithDriverExcess{
		ActualWaitingMinutes: actualMinutes,
		ExtraWaitingMinutes:  extra,
		ExcessWaitingCost:    cost,
		FinalTotalCost:       finalCost.Add(cost),
	}
}

// SelfDriveExcess computes the end-of-trip surcharge of a self-drive rental:
// kilometres over the allowance plus a late-return fee per started day.
type SelfDriveExcess struct {
	KmUsed          decimal.Decimal
	ExtraKm         decimal.Decimal
	ExtraKmFee      decimal.Decimal
	LateDays        int
	LateFee         decimal.Decimal
	TotalExtrasCost decimal.Decimal
	FinalCost       decimal.Decimal
}

// SelfDriveExcessInput carries the return readings against the breakdown.
type SelfDriveExcessInput struct {
	StartOdometer int
	EndOdometer   int
	AllowedKm     decimal.Decimal
	ExtraKmRate   decimal.Decimal
	PlannedEnd    time.Time
	ActualDropoff time.Time
	DailyPrice    decimal.Decimal
	LateFeeMult   decimal.Decimal
	InitialCost   decimal.Decimal
}

func ComputeSelfDriveExcess(in SelfDriveExcessInput) (SelfDriveExcess, error) {
	if in.EndOdometer < in.StartOdometer {
		return SelfDriveExcess{}, ErrInvalidInput
	}

	var e SelfDriveExcess
	e.KmUsed = decimal.NewFromInt(int64(in.EndOdometer - in.StartOdometer))
	e.ExtraKm = decimal.Max(decimal.Zero, e.KmUsed.Sub(in.AllowedKm))
	e.ExtraKmFee = round(e.ExtraKm.Mul(in.ExtraKmRate))

	// A late return is billed per full day overdue; a sub-day overrun is
	// within the return window and costs nothing.
	if in.ActualDropoff.After(in.PlannedEnd) {
		e.LateDays = int(math.Floor(in.ActualDropoff.Sub(in.PlannedEnd).Hours() / 24))
	}
	if e.LateDays > 0 {
		e.LateFee = round(decimal.NewFromInt(int64(e.LateDays)).Mul(in.DailyPrice).Mul(in.LateFeeMult))
	} else {
		e.LateFee = decimal.Zero
	}

	e.TotalExtrasCost = e.ExtraKmFee.Add(e.LateFee)
	e.FinalCost = in.InitialCost.Add(e.TotalExtrasCost)
	return e, nil
}
