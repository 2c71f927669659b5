package gateway

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/karhabty/karhabty-backend/internal/config"
)

func testClient() *Client {
	return NewClient(&config.Config{
		GatewayBaseURL:    "https://gateway.example.com/api",
		GatewayAPIKey:     "test-key",
		GatewayHMACSecret: "super-secret",
		IframeID:          "12345",
		GatewayTimeout:    time.Second,
	}, logrus.New())
}

func sampleTransaction() *TransactionCallback {
	cb := &TransactionCallback{
		ID:            998877,
		AmountCents:   25875,
		Success:       true,
		IntegrationID: 4321,
		CreatedAt:     "2026-09-01T10:00:00.000000",
		Currency:      "EGP",
		Owner:         11,
	}
	cb.Order.ID = 555
	cb.Order.MerchantOrderID = "selfdrive_deposit_9_abc_13"
	cb.SourceData.Pan = "2346"
	cb.SourceData.SubType = "MasterCard"
	cb.SourceData.Type = "card"
	return cb
}

func TestVerifyTransactionSignature(t *testing.T) {
	c := testClient()
	cb := sampleTransaction()

	sig := computeHMAC(transactionHMACFields(cb), "super-secret")
	assert.True(t, c.VerifyTransactionSignature(cb, sig))

	// Wrong secret
	bad := computeHMAC(transactionHMACFields(cb), "other-secret")
	assert.False(t, c.VerifyTransactionSignature(cb, bad))
}

func TestVerifyTransactionSignatureTamperedBody(t *testing.T) {
	c := testClient()
	cb := sampleTransaction()
	sig := computeHMAC(transactionHMACFields(cb), "super-secret")

	// Any mutation of a signed field must break verification.
	cb.AmountCents++
	assert.False(t, c.VerifyTransactionSignature(cb, sig))
	cb.AmountCents--
	assert.True(t, c.VerifyTransactionSignature(cb, sig))

	cb.Success = false
	assert.False(t, c.VerifyTransactionSignature(cb, sig))
	cb.Success = true

	cb.SourceData.Pan = "2347"
	assert.False(t, c.VerifyTransactionSignature(cb, sig))
}

func TestVerifyTokenSignature(t *testing.T) {
	c := testClient()
	cb := &TokenCallback{
		ID:          4141,
		Token:       "tok_abcdef",
		MaskedPan:   "xxxx-xxxx-xxxx-2346",
		CardSubtype: "MasterCard",
		CreatedAt:   "2026-09-01T10:00:00.000000",
		Email:       "renter@example.com",
		MerchantID:  77,
		OrderID:     "987",
	}

	sig := computeHMAC(tokenHMACFields(cb), "super-secret")
	assert.True(t, c.VerifyTokenSignature(cb, sig))

	cb.Token = "tok_abcdeg"
	assert.False(t, c.VerifyTokenSignature(cb, sig))
}

func TestIframeURL(t *testing.T) {
	c := testClient()
	assert.Equal(t,
		"https://gateway.example.com/api/acceptance/iframes/12345?payment_token=ptok",
		c.IframeURL("ptok"))
}
