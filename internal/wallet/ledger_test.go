package wallet

import (
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
)

func newMockLedger(t *testing.T, floor string) (*Ledger, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return NewLedger(gdb, decimal.RequireFromString(floor), log), mock
}

func walletRow(id, userID uint, balance string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"id", "created_at", "updated_at", "deleted_at", "user_id", "balance"}).
		AddRow(id, now, now, nil, userID, balance)
}

func TestCreditAppendsJournalRow(t *testing.T) {
	l, mock := newMockLedger(t, "-1000")

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "wallets" .* FOR UPDATE`).
		WillReturnRows(walletRow(3, 42, "100.00"))
	mock.ExpectExec(`UPDATE "wallets" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO "wallet_transactions"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	entry, err := l.Credit(42, decimal.RequireFromString("500"), Movement{
		Kind: "DepositRefund", ReferenceID: "7", ReferenceType: "rental",
	})
	require.NoError(t, err)

	assert.True(t, entry.Amount.Equal(decimal.RequireFromString("500")))
	assert.True(t, entry.BalanceBefore.Equal(decimal.RequireFromString("100")))
	assert.True(t, entry.BalanceAfter.Equal(decimal.RequireFromString("600")))
	assert.Equal(t, "DepositRefund", entry.Kind)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDebitRecordsNegativeAmount(t *testing.T) {
	l, mock := newMockLedger(t, "-1000")

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "wallets" .* FOR UPDATE`).
		WillReturnRows(walletRow(3, 42, "100.00"))
	mock.ExpectExec(`UPDATE "wallets" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO "wallet_transactions"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	entry, err := l.Debit(42, decimal.RequireFromString("412"), Movement{
		Kind: "PlatformCommission", ReferenceID: "7", ReferenceType: "rental",
	})
	require.NoError(t, err)

	assert.True(t, entry.Amount.Equal(decimal.RequireFromString("-412")))
	assert.True(t, entry.BalanceAfter.Equal(decimal.RequireFromString("-312")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDebitRejectedBelowFloor(t *testing.T) {
	l, mock := newMockLedger(t, "-1000")

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "wallets" .* FOR UPDATE`).
		WillReturnRows(walletRow(3, 42, "-900.00"))
	mock.ExpectRollback()

	_, err := l.Debit(42, decimal.RequireFromString("200"), Movement{Kind: "PlatformCommission"})
	assert.ErrorIs(t, err, ErrFloorExceeded)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDebitAtFloorFlagsOwner(t *testing.T) {
	l, mock := newMockLedger(t, "-1000")

	// Debit that lands exactly on the floor goes through and flags the user.
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "wallets" .* FOR UPDATE`).
		WillReturnRows(walletRow(3, 42, "-588.00"))
	mock.ExpectExec(`UPDATE "wallets" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO "wallet_transactions"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectExec(`UPDATE "users" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	entry, err := l.Debit(42, decimal.RequireFromString("412"), Movement{Kind: "PlatformCommission"})
	require.NoError(t, err)
	assert.True(t, entry.BalanceAfter.Equal(decimal.RequireFromString("-1000")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransferMovesFundsBetweenWallets(t *testing.T) {
	l, mock := newMockLedger(t, "-1000")

	mock.ExpectBegin()
	// Both wallets are locked first, in ascending user-id order (7 before
	// 42) regardless of transfer direction.
	mock.ExpectQuery(`SELECT \* FROM "wallets" .* FOR UPDATE`).
		WillReturnRows(walletRow(2, 7, "50.00"))
	mock.ExpectQuery(`SELECT \* FROM "wallets" .* FOR UPDATE`).
		WillReturnRows(walletRow(3, 42, "900.00"))
	// Debit leg
	mock.ExpectQuery(`SELECT \* FROM "wallets" .* FOR UPDATE`).
		WillReturnRows(walletRow(3, 42, "900.00"))
	mock.ExpectExec(`UPDATE "wallets" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO "wallet_transactions"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	// Credit leg
	mock.ExpectQuery(`SELECT \* FROM "wallets" .* FOR UPDATE`).
		WillReturnRows(walletRow(2, 7, "50.00"))
	mock.ExpectExec(`UPDATE "wallets" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO "wallet_transactions"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	err := l.db.Transaction(func(tx *gorm.DB) error {
		return l.TransferTx(tx, 42, 7, decimal.RequireFromString("300"), Movement{
			Kind: "DepositRefund", ReferenceID: "9", ReferenceType: "rental",
		})
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransferRefusedBelowFloor(t *testing.T) {
	l, mock := newMockLedger(t, "-1000")

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "wallets" .* FOR UPDATE`).
		WillReturnRows(walletRow(2, 7, "50.00"))
	mock.ExpectQuery(`SELECT \* FROM "wallets" .* FOR UPDATE`).
		WillReturnRows(walletRow(3, 42, "-900.00"))
	mock.ExpectQuery(`SELECT \* FROM "wallets" .* FOR UPDATE`).
		WillReturnRows(walletRow(3, 42, "-900.00"))
	mock.ExpectRollback()

	err := l.db.Transaction(func(tx *gorm.DB) error {
		return l.TransferTx(tx, 42, 7, decimal.RequireFromString("200"), Movement{Kind: "DepositRefund"})
	})
	assert.ErrorIs(t, err, ErrFloorExceeded)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransferToSelfRejected(t *testing.T) {
	l, mock := newMockLedger(t, "-1000")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := l.db.Transaction(func(tx *gorm.DB) error {
		return l.TransferTx(tx, 42, 42, decimal.RequireFromString("10"), Movement{Kind: "DepositRefund"})
	})
	assert.Error(t, err)
}

func TestCreditNegativeAmountRejected(t *testing.T) {
	l, mock := newMockLedger(t, "-1000")

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := l.Credit(42, decimal.RequireFromString("-5"), Movement{Kind: "Recharge"})
	assert.ErrorIs(t, err, ErrNegativeAmount)
}
