// Package gateway integrates the external card-payment provider. The engine
// only sees the PaymentGateway port; the Client speaks the provider's HTTP
// protocol (token auth, order registration, payment keys, hosted iframe).
package gateway

import (
	"context"
	"errors"
)

// ErrTimeout marks a gateway call that exceeded its deadline. The purse is
// left Pending and the webhook remains the authoritative outcome.
var ErrTimeout = errors.New("gateway: request timed out")

// BillingData identifies the payer on order/payment-key requests.
type BillingData struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
}

// ChargeRequest charges a previously tokenised card synchronously.
type ChargeRequest struct {
	AmountCents   int64
	MerchantRef   string
	CardToken     string
	IntegrationID string
	Billing       BillingData
}

// ChargeResult is the provider's synchronous verdict on a charge.
type ChargeResult struct {
	Success       bool
	Pending       bool
	TransactionID string
	OrderID       int64
	Message       string
}

// IntentRequest asks for a hosted-payment URL; the outcome arrives later on
// the webhook, keyed by MerchantRef.
type IntentRequest struct {
	AmountCents   int64
	MerchantRef   string
	IntegrationID string
	Billing       BillingData
}

// PaymentGateway is the engine-facing port.
type PaymentGateway interface {
	// ChargeSavedCard runs the full auth/order/key/pay sequence against a
	// stored card token.
	ChargeSavedCard(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
	// HostedPaymentURL registers an order and returns the iframe URL the
	// client completes the payment in, plus the gateway order id.
	HostedPaymentURL(ctx context.Context, req IntentRequest) (string, int64, error)
	// VerifyTransactionSignature checks the HMAC on a TRANSACTION callback.
	VerifyTransactionSignature(cb *TransactionCallback, received string) bool
	// VerifyTokenSignature checks the HMAC on a TOKEN callback.
	VerifyTokenSignature(cb *TokenCallback, received string) bool
}
