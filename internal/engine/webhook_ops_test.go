package engine

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rentalRowForWebhook(status string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "renter_id", "car_id", "mode", "payment_method", "status", "lock_version",
	}).AddRow(7, 42, 3, "WithDriver", "Card", status, 0)
}

// A remaining charge that timed out synchronously is settled by its webhook:
// the purse flips to Paid even though the deposit was paid long before.
func TestRemainingWebhookSettlesPendingPurse(t *testing.T) {
	eng, mock := newTestEngine(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "rentals" .* FOR UPDATE`).
		WillReturnRows(rentalRowForWebhook("Confirmed"))
	mock.ExpectQuery(`SELECT \* FROM "rental_payments"`).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "rental_id", "method", "deposit_status", "remaining_amount", "remaining_status", "remaining_txn_id",
		}).AddRow(5, 7, "Card", "Paid", "1466.25", "Pending", ""))
	mock.ExpectExec(`UPDATE "rental_payments" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO "rental_audit_log"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	applied, err := eng.ApplyRemainingOutcome(context.Background(), 7, "555", 146625, true)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// Redelivery of an applied remaining outcome must not touch the purse.
func TestRemainingWebhookRedeliveryIsNoop(t *testing.T) {
	eng, mock := newTestEngine(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "rentals" .* FOR UPDATE`).
		WillReturnRows(rentalRowForWebhook("Ongoing"))
	mock.ExpectQuery(`SELECT \* FROM "rental_payments"`).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "rental_id", "method", "deposit_status", "remaining_amount", "remaining_status", "remaining_txn_id",
		}).AddRow(5, 7, "Card", "Paid", "1466.25", "Paid", "555"))
	mock.ExpectCommit()

	applied, err := eng.ApplyRemainingOutcome(context.Background(), 7, "555", 146625, true)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// The webhook amount must match the remaining purse exactly.
func TestRemainingWebhookRejectsAmountMismatch(t *testing.T) {
	eng, mock := newTestEngine(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "rentals" .* FOR UPDATE`).
		WillReturnRows(rentalRowForWebhook("Confirmed"))
	mock.ExpectQuery(`SELECT \* FROM "rental_payments"`).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "rental_id", "method", "deposit_status", "remaining_amount", "remaining_status", "remaining_txn_id",
		}).AddRow(5, 7, "Card", "Paid", "1466.25", "Pending", ""))
	mock.ExpectRollback()

	applied, err := eng.ApplyRemainingOutcome(context.Background(), 7, "555", 100, true)
	assert.True(t, IsCode(err, CodeAmountMismatch))
	assert.False(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// A successful excess webhook settles the purse left Pending by a timed-out
// end-of-trip charge; the owner's dropoff then proceeds.
func TestExcessWebhookSettlesPendingPurse(t *testing.T) {
	eng, mock := newTestEngine(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "rentals" .* FOR UPDATE`).
		WillReturnRows(rentalRowForWebhook("Ongoing"))
	mock.ExpectQuery(`SELECT \* FROM "rental_payments"`).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "rental_id", "method", "deposit_status", "excess_amount", "excess_status", "excess_txn_id",
		}).AddRow(5, 7, "Card", "Paid", "750.00", "Pending", ""))
	mock.ExpectExec(`UPDATE "rental_payments" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO "rental_audit_log"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	applied, err := eng.ApplyExcessOutcome(context.Background(), 7, "556", 75000, true)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}
