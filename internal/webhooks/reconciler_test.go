package webhooks

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/karhabty/karhabty-backend/internal/config"
	"github.com/karhabty/karhabty-backend/internal/engine"
	"github.com/karhabty/karhabty-backend/internal/gateway"
	"github.com/karhabty/karhabty-backend/internal/store"
	"github.com/karhabty/karhabty-backend/internal/wallet"
)

// fakeGateway trusts or distrusts every signature; the HMAC algorithm itself
// is covered by the gateway package tests.
type fakeGateway struct {
	trust bool
}

func (f fakeGateway) ChargeSavedCard(context.Context, gateway.ChargeRequest) (*gateway.ChargeResult, error) {
	return &gateway.ChargeResult{Success: true}, nil
}

func (f fakeGateway) HostedPaymentURL(context.Context, gateway.IntentRequest) (string, int64, error) {
	return "https://pay.example/iframe", 1, nil
}

func (f fakeGateway) VerifyTransactionSignature(*gateway.TransactionCallback, string) bool {
	return f.trust
}

func (f fakeGateway) VerifyTokenSignature(*gateway.TokenCallback, string) bool {
	return f.trust
}

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return gdb, mock
}

func quietLog() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func TestHandleRejectsMalformedBody(t *testing.T) {
	r := NewReconciler(nil, nil, fakeGateway{trust: true}, nil, quietLog())
	err := r.Handle(context.Background(), []byte("{not json"), "sig")
	assert.True(t, engine.IsCode(err, engine.CodeInvalidData))
}

func TestHandleRejectsUnknownType(t *testing.T) {
	r := NewReconciler(nil, nil, fakeGateway{trust: true}, nil, quietLog())
	err := r.Handle(context.Background(), []byte(`{"type":"DELIVERY","obj":{}}`), "sig")
	assert.True(t, engine.IsCode(err, engine.CodeInvalidData))
}

func TestHandleRejectsBadTransactionSignature(t *testing.T) {
	r := NewReconciler(nil, nil, fakeGateway{trust: false}, nil, quietLog())
	body := []byte(`{"type":"TRANSACTION","obj":{"id":90,"success":true,"amount_cents":25875,"order":{"id":1,"merchant_order_id":"rental_deposit_7_abc_42"}}}`)
	err := r.Handle(context.Background(), body, "tampered")
	assert.True(t, engine.IsCode(err, engine.CodeInvalidHMAC))
}

func TestHandleRejectsBadTokenSignature(t *testing.T) {
	r := NewReconciler(nil, nil, fakeGateway{trust: false}, nil, quietLog())
	body := []byte(`{"type":"TOKEN","obj":{"id":5,"token":"tok_1","email":"a@b.c"}}`)
	err := r.Handle(context.Background(), body, "tampered")
	assert.True(t, engine.IsCode(err, engine.CodeInvalidHMAC))
}

func TestHandleRejectsUnroutableReference(t *testing.T) {
	r := NewReconciler(nil, nil, fakeGateway{trust: true}, nil, quietLog())
	body := []byte(`{"type":"TRANSACTION","obj":{"id":90,"success":true,"order":{"id":1,"merchant_order_id":"mystery_ref_1"}}}`)
	err := r.Handle(context.Background(), body, "sig")
	assert.True(t, engine.IsCode(err, engine.CodeInvalidData))
}

// A remaining-purse callback must land on the remaining purse even when the
// deposit was settled long before: it carries its own merchant reference
// purpose and must not be mistaken for a deposit redelivery.
func TestRemainingCallbackRoutedToRemainingPurse(t *testing.T) {
	db, mock := newMockDB(t)
	log := quietLog()
	ledger := wallet.NewLedger(db, decimal.RequireFromString("-1000"), log)
	eng := engine.New(&config.Config{}, store.New(db), ledger, fakeGateway{trust: true},
		engine.SystemClock(), nil, log)
	r := NewReconciler(eng, ledger, fakeGateway{trust: true}, db, log)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "rentals" .* FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "renter_id", "car_id", "status"}).
			AddRow(7, 42, 3, "Confirmed"))
	mock.ExpectQuery(`SELECT \* FROM "rental_payments"`).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "rental_id", "deposit_status", "remaining_amount", "remaining_status", "remaining_txn_id",
		}).AddRow(5, 7, "Paid", "1466.25", "Pending", ""))
	mock.ExpectExec(`UPDATE "rental_payments" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO "rental_audit_log"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	body := []byte(`{"type":"TRANSACTION","obj":{"id":555,"success":true,"amount_cents":146625,"order":{"id":1,"merchant_order_id":"rental_remaining_7_nonce_42"}}}`)
	err := r.Handle(context.Background(), body, "sig")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenCallbackForUnknownUserIsDropped(t *testing.T) {
	db, mock := newMockDB(t)
	r := NewReconciler(nil, nil, fakeGateway{trust: true}, db, quietLog())

	mock.ExpectQuery(`SELECT \* FROM "users"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	body := []byte(`{"type":"TOKEN","obj":{"id":5,"token":"tok_1","masked_pan":"xxxx-1234","card_subtype":"VISA","email":"ghost@example.com"}}`)
	err := r.Handle(context.Background(), body, "sig")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenCallbackSavesCard(t *testing.T) {
	db, mock := newMockDB(t)
	r := NewReconciler(nil, nil, fakeGateway{trust: true}, db, quietLog())

	mock.ExpectQuery(`SELECT \* FROM "users"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email"}).AddRow(42, "renter@example.com"))
	mock.ExpectQuery(`SELECT \* FROM "saved_cards"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "saved_cards"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	body := []byte(`{"type":"TOKEN","obj":{"id":5,"token":"tok_1","masked_pan":"xxxx-1234","card_subtype":"VISA","email":"renter@example.com"}}`)
	err := r.Handle(context.Background(), body, "sig")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
