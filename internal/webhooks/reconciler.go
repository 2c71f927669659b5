// Package webhooks reconciles asynchronous gateway callbacks with the rental
// engine: TRANSACTION outcomes land on the matching purse or wallet,
// TOKEN events store reusable cards. Application is idempotent by merchant
// reference plus gateway transaction id.
package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/karhabty/karhabty-backend/internal/engine"
	"github.com/karhabty/karhabty-backend/internal/gateway"
	"github.com/karhabty/karhabty-backend/internal/models"
	"github.com/karhabty/karhabty-backend/internal/services"
	"github.com/karhabty/karhabty-backend/internal/wallet"
)

type Reconciler struct {
	engine *engine.Engine
	ledger *wallet.Ledger
	gw     gateway.PaymentGateway
	db     *gorm.DB
	log    *logrus.Logger
}

func NewReconciler(eng *engine.Engine, ledger *wallet.Ledger, gw gateway.PaymentGateway, db *gorm.DB, log *logrus.Logger) *Reconciler {
	return &Reconciler{engine: eng, ledger: ledger, gw: gw, db: db, log: log}
}

// Handle processes one webhook delivery. The hmac parameter is the signature
// the gateway appended to the callback URL.
func (r *Reconciler) Handle(ctx context.Context, body []byte, hmacParam string) error {
	var env gateway.WebhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return engine.Errf(engine.CodeInvalidData, "malformed webhook body")
	}

	switch env.Type {
	case gateway.CallbackTypeTransaction:
		return r.handleTransaction(ctx, env.Obj, hmacParam)
	case gateway.CallbackTypeToken:
		return r.handleToken(env.Obj, hmacParam)
	default:
		return engine.Errf(engine.CodeInvalidData, "unknown webhook type %q", env.Type)
	}
}

func (r *Reconciler) handleTransaction(ctx context.Context, obj json.RawMessage, hmacParam string) error {
	var cb gateway.TransactionCallback
	if err := json.Unmarshal(obj, &cb); err != nil {
		return engine.Errf(engine.CodeInvalidData, "malformed transaction callback")
	}
	if !r.gw.VerifyTransactionSignature(&cb, hmacParam) {
		return engine.Errf(engine.CodeInvalidHMAC, "webhook signature mismatch")
	}

	ref, err := gateway.ParseMerchantRef(cb.Order.MerchantOrderID)
	if err != nil {
		return engine.Errf(engine.CodeInvalidData, "unrecognised merchant reference")
	}
	txnID := strconv.FormatInt(cb.ID, 10)

	log := r.log.WithFields(logrus.Fields{
		"ref":     cb.Order.MerchantOrderID,
		"txn":     txnID,
		"purpose": ref.Purpose,
		"success": cb.Success,
	})

	// Fast-path dedup; the database checks below remain authoritative.
	if services.RedisClient != nil {
		first, err := services.MarkWebhookSeen(ctx, cb.Order.MerchantOrderID, txnID)
		if err == nil && !first {
			log.Info("duplicate webhook delivery, skipping")
			return nil
		}
	}
	applied := false
	defer func() {
		if !applied && services.RedisClient != nil {
			services.ClearWebhookSeen(ctx, cb.Order.MerchantOrderID, txnID)
		}
	}()

	switch ref.Purpose {
	case gateway.RefWalletRecharge:
		if !cb.Success {
			log.Info("failed wallet recharge, ignoring")
			applied = true
			return nil
		}
		if err := r.creditRecharge(ref.UserID, txnID, cb.AmountCents); err != nil {
			return err
		}
		applied = true
		log.Info("wallet recharge applied")
		return nil

	case gateway.RefRentalDeposit, gateway.RefSelfDriveDeposit:
		done, err := r.engine.ApplyDepositOutcome(ctx, ref.RentalID, txnID, cb.AmountCents, cb.Success)
		if err != nil {
			return err
		}
		applied = true
		if done {
			log.Info("deposit outcome applied")
		} else {
			log.Info("deposit outcome already applied, no change")
		}
		return nil

	case gateway.RefRentalRemaining:
		done, err := r.engine.ApplyRemainingOutcome(ctx, ref.RentalID, txnID, cb.AmountCents, cb.Success)
		if err != nil {
			return err
		}
		applied = true
		if done {
			log.Info("remaining outcome applied")
		} else {
			log.Info("remaining outcome already applied, no change")
		}
		return nil

	case gateway.RefRentalExcess:
		done, err := r.engine.ApplyExcessOutcome(ctx, ref.RentalID, txnID, cb.AmountCents, cb.Success)
		if err != nil {
			return err
		}
		applied = true
		if done {
			log.Info("excess outcome applied")
		} else {
			log.Info("excess outcome already applied, no change")
		}
		return nil
	}
	return engine.Errf(engine.CodeInvalidData, "unroutable merchant reference")
}

// creditRecharge credits a successful top-up exactly once per gateway
// transaction.
func (r *Reconciler) creditRecharge(userID uint, txnID string, amountCents int64) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var existing models.WalletTransaction
		err := tx.Where("reference_id = ? AND kind = ?", txnID, models.TxnKindRecharge).
			First(&existing).Error
		if err == nil {
			return nil // already credited
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		amount := decimal.NewFromInt(amountCents).Div(decimal.NewFromInt(100))
		_, err = r.ledger.CreditTx(tx, userID, amount, wallet.Movement{
			Kind:          models.TxnKindRecharge,
			ReferenceID:   txnID,
			ReferenceType: "gateway_txn",
			Description:   "wallet top-up",
		})
		return err
	})
}

func (r *Reconciler) handleToken(obj json.RawMessage, hmacParam string) error {
	var cb gateway.TokenCallback
	if err := json.Unmarshal(obj, &cb); err != nil {
		return engine.Errf(engine.CodeInvalidData, "malformed token callback")
	}
	if !r.gw.VerifyTokenSignature(&cb, hmacParam) {
		return engine.Errf(engine.CodeInvalidHMAC, "webhook signature mismatch")
	}
	if cb.Token == "" {
		return engine.Errf(engine.CodeInvalidData, "token callback without a token")
	}

	var user models.User
	err := r.db.Where("email = ?", cb.Email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		r.log.WithField("email", cb.Email).Warn("token callback for unknown user, dropped")
		return nil
	}
	if err != nil {
		return err
	}

	// Upsert by token: redelivery or a re-tokenised card updates in place.
	var card models.SavedCard
	err = r.db.Where("token = ?", cb.Token).First(&card).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		card = models.SavedCard{
			UserID:    user.ID,
			Token:     cb.Token,
			MaskedPan: cb.MaskedPan,
			Subtype:   cb.CardSubtype,
		}
		if err := r.db.Create(&card).Error; err != nil {
			return err
		}
		r.log.WithField("user", user.ID).Info("card tokenised and saved")
		return nil
	}
	if err != nil {
		return err
	}
	card.MaskedPan = cb.MaskedPan
	card.Subtype = cb.CardSubtype
	return r.db.Save(&card).Error
}
