package pricing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karhabty/karhabty-backend/internal/models"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func defaultRates() (commission, buffer, deposit, serviceFee, lateMult decimal.Decimal) {
	return dec("0.20"), dec("0.25"), dec("0.15"), dec("0.15"), dec("1.30")
}

func TestRentalDays(t *testing.T) {
	day := func(d int) time.Time {
		return time.Date(2026, 3, d, 9, 0, 0, 0, time.UTC)
	}

	assert.Equal(t, 1, RentalDays(day(1), day(1)))
	assert.Equal(t, 2, RentalDays(day(1), day(2)))
	assert.Equal(t, 31, RentalDays(day(1), time.Date(2026, 3, 31, 23, 0, 0, 0, time.UTC)))
	assert.Equal(t, 0, RentalDays(day(2), day(1)))
}

func TestQuoteSelfDrive(t *testing.T) {
	commission, _, deposit, serviceFee, _ := defaultRates()

	q, err := QuoteSelfDrive(SelfDriveInput{
		DailyPrice:     dec("500"),
		NumDays:        3,
		DailyKmLimit:   200,
		CommissionRate: commission,
		ServiceFeePct:  serviceFee,
		DepositPct:     deposit,
	})
	require.NoError(t, err)

	assert.True(t, q.BaseCost.Equal(dec("1500")), "base = %s", q.BaseCost)
	assert.True(t, q.CtwFee.Equal(dec("225")), "ctw = %s", q.CtwFee)
	assert.True(t, q.InitialCost.Equal(dec("1725")), "initial = %s", q.InitialCost)
	assert.True(t, q.Deposit.Equal(dec("258.75")), "deposit = %s", q.Deposit)
	assert.True(t, q.Remaining.Equal(dec("1466.25")), "remaining = %s", q.Remaining)
	assert.True(t, q.AllowedKm.Equal(dec("600")))
	assert.True(t, q.OwnerEarnings.Equal(dec("1380")), "earnings = %s", q.OwnerEarnings)
	assert.True(t, q.PlatformFee.Equal(dec("345")))

	// Deposit + remaining must reassemble the initial cost to the cent.
	assert.True(t, q.Deposit.Add(q.Remaining).Sub(q.InitialCost).Abs().LessThanOrEqual(dec("0.01")))
}

func TestQuoteSelfDriveInvalid(t *testing.T) {
	commission, _, deposit, serviceFee, _ := defaultRates()
	in := SelfDriveInput{
		DailyPrice:     dec("500"),
		NumDays:        3,
		DailyKmLimit:   0, // zero km limit cannot be priced
		CommissionRate: commission,
		ServiceFeePct:  serviceFee,
		DepositPct:     deposit,
	}
	_, err := QuoteSelfDrive(in)
	assert.ErrorIs(t, err, ErrInvalidInput)

	in.DailyKmLimit = 200
	in.NumDays = 0
	_, err = QuoteSelfDrive(in)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestQuoteWithDriverCash(t *testing.T) {
	commission, buffer, deposit, _, _ := defaultRates()

	q, err := QuoteWithDriver(WithDriverInput{
		Start:                 time.Date(2026, 5, 10, 8, 0, 0, 0, time.UTC),
		End:                   time.Date(2026, 5, 11, 20, 0, 0, 0, time.UTC),
		PlannedKm:             dec("150"),
		PlannedWaitingMinutes: 60,
		Method:                models.MethodCash,
		DailyPrice:            dec("1000"),
		DailyKmLimit:          200,
		ExtraKmRate:           dec("5"),
		ExtraHourRate:         dec("60"),
		CommissionRate:        commission,
		BufferPct:             buffer,
		DepositPct:            deposit,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, q.RentalDays)
	assert.True(t, q.BaseCost.Equal(dec("2000")), "base = %s", q.BaseCost)
	assert.True(t, q.ExtraKm.IsZero())
	assert.True(t, q.WaitingCost.Equal(dec("60")), "waiting = %s", q.WaitingCost)
	assert.True(t, q.InsuranceBuffer.IsZero(), "no buffer on cash")
	assert.True(t, q.FinalCost.Equal(dec("2060")), "final = %s", q.FinalCost)
	assert.True(t, q.Deposit.Equal(dec("309")), "deposit = %s", q.Deposit)
	assert.True(t, q.Remaining.Equal(dec("1751")), "remaining = %s", q.Remaining)
	assert.True(t, q.PlatformFee.Equal(dec("412")), "fee = %s", q.PlatformFee)
	assert.True(t, q.OwnerEarnings.Equal(dec("1648")))
}

func TestQuoteWithDriverElectronicBuffer(t *testing.T) {
	commission, buffer, deposit, _, _ := defaultRates()

	q, err := QuoteWithDriver(WithDriverInput{
		Start:                 time.Date(2026, 5, 10, 8, 0, 0, 0, time.UTC),
		End:                   time.Date(2026, 5, 11, 20, 0, 0, 0, time.UTC),
		PlannedKm:             dec("500"),
		PlannedWaitingMinutes: 0,
		Method:                models.MethodCard,
		DailyPrice:            dec("1000"),
		DailyKmLimit:          200,
		ExtraKmRate:           dec("5"),
		ExtraHourRate:         dec("60"),
		CommissionRate:        commission,
		BufferPct:             buffer,
		DepositPct:            deposit,
	})
	require.NoError(t, err)

	// 2 days x 200 km allowed, 100 extra at 5 = 500
	assert.True(t, q.ExtraKm.Equal(dec("100")))
	assert.True(t, q.ExtraKmCost.Equal(dec("500")))
	// buffer = 25% of 2500
	assert.True(t, q.InsuranceBuffer.Equal(dec("625")), "buffer = %s", q.InsuranceBuffer)
	assert.True(t, q.FinalCost.Equal(dec("3125")))
	assert.True(t, q.Deposit.Equal(dec("468.75")))
	assert.True(t, q.Deposit.Add(q.Remaining).Equal(q.FinalCost))
}

func TestQuoteWithDriverBoundaryKm(t *testing.T) {
	commission, buffer, deposit, _, _ := defaultRates()

	// planned_km exactly equals the allowance: no extra charge
	q, err := QuoteWithDriver(WithDriverInput{
		Start:                 time.Date(2026, 5, 10, 8, 0, 0, 0, time.UTC),
		End:                   time.Date(2026, 5, 11, 20, 0, 0, 0, time.UTC),
		PlannedKm:             dec("400"),
		PlannedWaitingMinutes: 0,
		Method:                models.MethodCash,
		DailyPrice:            dec("1000"),
		DailyKmLimit:          200,
		ExtraKmRate:           dec("5"),
		ExtraHourRate:         dec("60"),
		CommissionRate:        commission,
		BufferPct:             buffer,
		DepositPct:            deposit,
	})
	require.NoError(t, err)
	assert.True(t, q.ExtraKm.IsZero())
	assert.True(t, q.ExtraKmCost.IsZero())
}

func TestQuoteWithDriverInvalidKmLimit(t *testing.T) {
	commission, buffer, deposit, _, _ := defaultRates()
	_, err := QuoteWithDriver(WithDriverInput{
		Start:          time.Date(2026, 5, 10, 8, 0, 0, 0, time.UTC),
		End:            time.Date(2026, 5, 11, 20, 0, 0, 0, time.UTC),
		PlannedKm:      dec("100"),
		Method:         models.MethodCash,
		DailyPrice:     dec("1000"),
		DailyKmLimit:   0,
		ExtraKmRate:    dec("5"),
		ExtraHourRate:  dec("60"),
		CommissionRate: commission,
		BufferPct:      buffer,
		DepositPct:     deposit,
	})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestComputeWithDriverExcess(t *testing.T) {
	e := ComputeWithDriverExcess(60, 90, dec("60"), dec("2060"))
	assert.Equal(t, 30, e.ExtraWaitingMinutes)
	assert.True(t, e.ExcessWaitingCost.Equal(dec("30")), "excess = %s", e.ExcessWaitingCost)
	assert.True(t, e.FinalTotalCost.Equal(dec("2090")))

	// Under plan: nothing owed
	e = ComputeWithDriverExcess(60, 45, dec("60"), dec("2060"))
	assert.Equal(t, 0, e.ExtraWaitingMinutes)
	assert.True(t, e.ExcessWaitingCost.IsZero())
	assert.True(t, e.FinalTotalCost.Equal(dec("2060")))
}

func TestComputeSelfDriveExcess(t *testing.T) {
	plannedEnd := time.Date(2026, 6, 4, 18, 0, 0, 0, time.UTC)

	t.Run("within allowance and sub-day dropoff", func(t *testing.T) {
		e, err := ComputeSelfDriveExcess(SelfDriveExcessInput{
			StartOdometer: 10000,
			EndOdometer:   10550,
			AllowedKm:     dec("600"),
			ExtraKmRate:   dec("5"),
			PlannedEnd:    plannedEnd,
			ActualDropoff: plannedEnd.Add(2 * time.Hour),
			DailyPrice:    dec("500"),
			LateFeeMult:   dec("1.30"),
			InitialCost:   dec("1725"),
		})
		require.NoError(t, err)
		assert.True(t, e.KmUsed.Equal(dec("550")))
		assert.True(t, e.ExtraKm.IsZero())
		assert.Equal(t, 0, e.LateDays)
		assert.True(t, e.TotalExtrasCost.IsZero())
		assert.True(t, e.FinalCost.Equal(dec("1725")))
	})

	t.Run("on-time dropoff boundary", func(t *testing.T) {
		e, err := ComputeSelfDriveExcess(SelfDriveExcessInput{
			StartOdometer: 10000,
			EndOdometer:   10600,
			AllowedKm:     dec("600"),
			ExtraKmRate:   dec("5"),
			PlannedEnd:    plannedEnd,
			ActualDropoff: plannedEnd,
			DailyPrice:    dec("500"),
			LateFeeMult:   dec("1.30"),
			InitialCost:   dec("1725"),
		})
		require.NoError(t, err)
		assert.Equal(t, 0, e.LateDays)
		assert.True(t, e.ExtraKm.IsZero(), "km used equals the allowance")
	})

	t.Run("over km and a day late", func(t *testing.T) {
		e, err := ComputeSelfDriveExcess(SelfDriveExcessInput{
			StartOdometer: 10000,
			EndOdometer:   10750,
			AllowedKm:     dec("600"),
			ExtraKmRate:   dec("5"),
			PlannedEnd:    plannedEnd,
			ActualDropoff: plannedEnd.Add(26 * time.Hour),
			DailyPrice:    dec("500"),
			LateFeeMult:   dec("1.30"),
			InitialCost:   dec("1725"),
		})
		require.NoError(t, err)
		assert.True(t, e.ExtraKm.Equal(dec("150")))
		assert.True(t, e.ExtraKmFee.Equal(dec("750")))
		assert.Equal(t, 1, e.LateDays)
		assert.True(t, e.LateFee.Equal(dec("650")), "late = %s", e.LateFee)
		assert.True(t, e.FinalCost.Equal(dec("3125")))
	})

	t.Run("odometer rollback rejected", func(t *testing.T) {
		_, err := ComputeSelfDriveExcess(SelfDriveExcessInput{
			StartOdometer: 10000,
			EndOdometer:   9000,
			AllowedKm:     dec("600"),
			ExtraKmRate:   dec("5"),
			PlannedEnd:    plannedEnd,
			ActualDropoff: plannedEnd,
			DailyPrice:    dec("500"),
			LateFeeMult:   dec("1.30"),
			InitialCost:   dec("1725"),
		})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestIsZeroAmount(t *testing.T) {
	assert.True(t, IsZeroAmount(dec("0")))
	assert.True(t, IsZeroAmount(dec("0.004")))
	assert.True(t, IsZeroAmount(dec("-0.005")))
	assert.False(t, IsZeroAmount(dec("0.01")))
}
