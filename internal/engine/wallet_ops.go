package engine

import (
	"context"
	"errors"

	"github.com/karhabty/karhabty-backend/internal/gateway"
)

// WalletTopUpURL registers a hosted-payment order for a wallet recharge and
// returns the iframe URL. The credit lands when the webhook confirms the
// charge.
func (e *Engine) WalletTopUpURL(ctx context.Context, userID uint, amountCents int64) (string, error) {
	if amountCents <= 0 {
		return "", Errf(CodeInvalidAmount, "top-up amount must be positive")
	}

	user, err := e.store.GetUser(userID)
	if err != nil {
		return "", err
	}

	url, _, err := e.gateway.HostedPaymentURL(ctx, gateway.IntentRequest{
		AmountCents:   amountCents,
		MerchantRef:   gateway.WalletRechargeRef(userID),
		IntegrationID: e.cfg.IntegrationCard,
		Billing:       billingFor(user),
	})
	if errors.Is(err, gateway.ErrTimeout) {
		return "", Errf(CodePaymentTimeout, "payment gateway timed out")
	}
	if err != nil {
		return "", ErrWithDetails(CodePaymentIntentFailed, "could not create top-up intent", err.Error())
	}
	return url, nil
}
