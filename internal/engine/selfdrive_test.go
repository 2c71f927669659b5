package engine

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/karhabty/karhabty-backend/internal/config"
	"github.com/karhabty/karhabty-backend/internal/store"
	"github.com/karhabty/karhabty-backend/internal/wallet"
)

func newTestEngine(t *testing.T) (*Engine, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	cfg := &config.Config{
		LateFeeMult: decimal.RequireFromString("1.30"),
	}
	st := store.New(gdb)
	ledger := wallet.NewLedger(gdb, decimal.RequireFromString("-1000"), log)
	return New(cfg, st, ledger, nil, SystemClock(), nil, log), mock
}

func selfDriveRentalRow(endDate time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "renter_id", "car_id", "mode", "payment_method", "status", "end_date", "lock_version",
	}).AddRow(9, 42, 3, "WithoutDriver", "Wallet", "Ongoing", endDate, 0)
}

func openReturnHandoverRow() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "rental_id", "start_odometer", "renter_return_done_at",
	}).AddRow(1, 9, 1000, nil)
}

func walletPaymentRow(excessAmount string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "rental_id", "method", "deposit_status", "remaining_status", "excess_status", "excess_amount",
	}).AddRow(5, 9, "Wallet", "Paid", "Paid", "Pending", excessAmount)
}

func selfDriveBreakdownRow() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "rental_id", "allowed_km", "daily_price", "initial_cost",
	}).AddRow(2, 9, "100", "80.00", "960.00")
}

// expectDropoffPhaseOne mocks the first transaction of the renter dropoff:
// readings validated, excess computed and persisted, handover still open.
func expectDropoffPhaseOne(mock sqlmock.Sqlmock, excessAmount string) {
	endDate := time.Now().Add(48 * time.Hour)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "rentals" .* FOR UPDATE`).
		WillReturnRows(selfDriveRentalRow(endDate))
	mock.ExpectQuery(`SELECT \* FROM "handovers"`).
		WillReturnRows(openReturnHandoverRow())
	mock.ExpectQuery(`SELECT \* FROM "rental_payments"`).
		WillReturnRows(walletPaymentRow(excessAmount))
	mock.ExpectQuery(`SELECT \* FROM "breakdowns"`).
		WillReturnRows(selfDriveBreakdownRow())
	mock.ExpectQuery(`SELECT \* FROM "cars"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "owner_id", "extra_km_rate"}).
			AddRow(3, 7, "5.00"))
	mock.ExpectQuery(`SELECT \* FROM "users"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectExec(`UPDATE "breakdowns" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "rental_payments" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "handovers" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
}

// A wallet excess charge that fails must leave the return handover open so
// the renter can retry the dropoff; the second attempt collects and
// completes instead of reporting the handover as already done.
func TestRenterDropoffRetriesAfterFailedExcessCharge(t *testing.T) {
	eng, mock := newTestEngine(t)
	endOdo := 1250 // 150 km over the 100 km allowance at 5.00/km = 750 excess

	// First attempt: wallet sits on the floor, the debit is refused.
	expectDropoffPhaseOne(mock, "0")
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "rental_payments"`).
		WillReturnRows(walletPaymentRow("750.00"))
	mock.ExpectQuery(`SELECT \* FROM "wallets" .* FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "balance"}).
			AddRow(4, 42, "-1000.00"))
	mock.ExpectRollback()

	_, err := eng.RenterDropoffHandover(context.Background(), 42, 9, RenterDropoffInput{
		CarImageURL: "uploads/return.jpg",
		EndOdometer: &endOdo,
	})
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeExcessRequired), "got %v", err)

	// Second attempt after a top-up: the guard must let the dropoff back in,
	// collect the excess and close the renter's phase.
	expectDropoffPhaseOne(mock, "750.00")
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "rental_payments"`).
		WillReturnRows(walletPaymentRow("750.00"))
	mock.ExpectQuery(`SELECT \* FROM "wallets" .* FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "balance"}).
			AddRow(4, 42, "1000.00"))
	mock.ExpectExec(`UPDATE "wallets" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO "wallet_transactions"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectExec(`UPDATE "rental_payments" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "handovers"`).
		WillReturnRows(openReturnHandoverRow())
	mock.ExpectExec(`UPDATE "handovers" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO "rental_audit_log"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	rental, err := eng.RenterDropoffHandover(context.Background(), 42, 9, RenterDropoffInput{
		CarImageURL: "uploads/return.jpg",
		EndOdometer: &endOdo,
	})
	require.NoError(t, err)
	assert.Equal(t, uint(9), rental.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
