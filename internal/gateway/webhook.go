package gateway

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"strconv"
)

// Webhook event types posted by the gateway.
const (
	CallbackTypeTransaction = "TRANSACTION"
	CallbackTypeToken       = "TOKEN"
)

// WebhookEnvelope is the outer webhook body: a type tag plus the raw object.
type WebhookEnvelope struct {
	Type string          `json:"type"`
	Obj  json.RawMessage `json:"obj"`
}

// TransactionCallback is the TRANSACTION payload: the result of a charge.
type TransactionCallback struct {
	ID                   int64  `json:"id"`
	Pending              bool   `json:"pending"`
	AmountCents          int64  `json:"amount_cents"`
	Success              bool   `json:"success"`
	IsAuth               bool   `json:"is_auth"`
	IsCapture            bool   `json:"is_capture"`
	IsStandalonePayment  bool   `json:"is_standalone_payment"`
	IsVoided             bool   `json:"is_voided"`
	IsRefunded           bool   `json:"is_refunded"`
	Is3DSecure           bool   `json:"is_3d_secure"`
	IntegrationID        int64  `json:"integration_id"`
	HasParentTransaction bool   `json:"has_parent_transaction"`
	ErrorOccured         bool   `json:"error_occured"`
	CreatedAt            string `json:"created_at"`
	Currency             string `json:"currency"`
	Owner                int64  `json:"owner"`
	Order                struct {
		ID              int64  `json:"id"`
		MerchantOrderID string `json:"merchant_order_id"`
	} `json:"order"`
	SourceData struct {
		Pan     string `json:"pan"`
		SubType string `json:"sub_type"`
		Type    string `json:"type"`
	} `json:"source_data"`
	Data struct {
		Message string `json:"message"`
	} `json:"data"`
}

// TokenCallback is the TOKEN payload: a card was tokenised for later use.
type TokenCallback struct {
	ID          int64  `json:"id"`
	Token       string `json:"token"`
	MaskedPan   string `json:"masked_pan"`
	CardSubtype string `json:"card_subtype"`
	CreatedAt   string `json:"created_at"`
	Email       string `json:"email"`
	MerchantID  int64  `json:"merchant_id"`
	OrderID     string `json:"order_id"`
}

// transactionHMACFields returns the signed fields in the order mandated by
// the gateway: alphabetised flattened names, booleans lowercased, numerics
// as decimal strings.
func transactionHMACFields(cb *TransactionCallback) []string {
	return []string{
		strconv.FormatInt(cb.AmountCents, 10),
		cb.CreatedAt,
		cb.Currency,
		strconv.FormatBool(cb.ErrorOccured),
		strconv.FormatBool(cb.HasParentTransaction),
		strconv.FormatInt(cb.ID, 10),
		strconv.FormatInt(cb.IntegrationID, 10),
		strconv.FormatBool(cb.Is3DSecure),
		strconv.FormatBool(cb.IsAuth),
		strconv.FormatBool(cb.IsCapture),
		strconv.FormatBool(cb.IsRefunded),
		strconv.FormatBool(cb.IsStandalonePayment),
		strconv.FormatBool(cb.IsVoided),
		strconv.FormatInt(cb.Order.ID, 10),
		strconv.FormatInt(cb.Owner, 10),
		strconv.FormatBool(cb.Pending),
		cb.SourceData.Pan,
		cb.SourceData.SubType,
		cb.SourceData.Type,
		strconv.FormatBool(cb.Success),
	}
}

func tokenHMACFields(cb *TokenCallback) []string {
	return []string{
		cb.CardSubtype,
		cb.CreatedAt,
		cb.Email,
		strconv.FormatInt(cb.ID, 10),
		cb.MaskedPan,
		strconv.FormatInt(cb.MerchantID, 10),
		cb.OrderID,
		cb.Token,
	}
}

func computeHMAC(fields []string, secret string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	for _, f := range fields {
		mac.Write([]byte(f))
	}
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyTransactionSignature checks a TRANSACTION callback's HMAC-SHA512 in
// constant time.
func (c *Client) VerifyTransactionSignature(cb *TransactionCallback, received string) bool {
	expected := computeHMAC(transactionHMACFields(cb), c.hmacSecret)
	return hmac.Equal([]byte(expected), []byte(received))
}

// VerifyTokenSignature checks a TOKEN callback's HMAC-SHA512 in constant time.
func (c *Client) VerifyTokenSignature(cb *TokenCallback, received string) bool {
	expected := computeHMAC(tokenHMACFields(cb), c.hmacSecret)
	return hmac.Equal([]byte(expected), []byte(received))
}
