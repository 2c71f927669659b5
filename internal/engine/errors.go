package engine

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

// Error codes returned by engine operations. The string literals are part of
// the API contract with the mobile clients.
const (
	// Permission
	CodeNotOwner     = "NOT_OWNER"
	CodeNotRenter    = "NOT_RENTER"
	CodeCardNotOwned = "CARD_NOT_OWNED"
	CodeWalletLimit  = "WALLET_LIMIT"

	// State
	CodeInvalidStatus             = "INVALID_STATUS"
	CodeAlreadyDone               = "ALREADY_DONE"
	CodeAlreadyPaid               = "ALREADY_PAID"
	CodeAlreadyConfirmed          = "ALREADY_CONFIRMED"
	CodeAlreadyCanceled           = "ALREADY_CANCELED"
	CodeHandoverAlreadyDone       = "HANDOVER_ALREADY_DONE"
	CodeRenterHandoverRequired    = "RENTER_HANDOVER_REQUIRED"
	CodeOwnerPickupRequired       = "OWNER_PICKUP_REQUIRED"
	CodeOwnerConfirmationRequired = "OWNER_CONFIRMATION_REQUIRED"
	CodeOwnerArrivalRequired      = "OWNER_ARRIVAL_REQUIRED"
	CodeContractNotSigned         = "CONTRACT_NOT_SIGNED"

	// Input
	CodeInvalidAmount        = "INVALID_AMOUNT"
	CodeInvalidAmountFormat  = "INVALID_AMOUNT_FORMAT"
	CodeMissingAmount        = "MISSING_AMOUNT"
	CodeInvalidMethod        = "INVALID_METHOD"
	CodeInvalidPaymentMethod = "INVALID_PAYMENT_METHOD"
	CodeInvalidData          = "INVALID_DATA"
	CodeCarImageRequired     = "CAR_IMAGE_REQUIRED"
	CodeContractImage        = "CONTRACT_IMAGE_REQUIRED"
	CodeOdometerStart        = "ODOMETER_START_REQUIRED"
	CodeOdometerEnd          = "ODOMETER_END_REQUIRED"

	// Payment
	CodePaymentFailed       = "PAYMENT_FAILED"
	CodePaymentTimeout      = "PAYMENT_TIMEOUT"
	CodePaymentIntentFailed = "PAYMENT_INTENT_FAILED"
	CodeDepositExpired      = "DEPOSIT_EXPIRED"
	CodeDepositRequired     = "DEPOSIT_REQUIRED"
	CodeRemainingRequired   = "REMAINING_REQUIRED"
	CodeRemainingCash       = "REMAINING_CASH_CONFIRM"
	CodeExcessRequired      = "EXCESS_REQUIRED"
	CodeExcessCashConfirm   = "EXCESS_CASH_CONFIRM_REQUIRED"
	CodeAmountMismatch      = "AMOUNT_MISMATCH"

	// Integrity
	CodeInvalidHMAC       = "INVALID_HMAC"
	CodeCardNotFound      = "CARD_NOT_FOUND"
	CodePaymentNotFound   = "PAYMENT_NOT_FOUND"
	CodeBreakdownNotFound = "BREAKDOWN_NOT_FOUND"
	CodeNoSelectedCard    = "NO_SELECTED_CARD"

	CodeNotFound = "NOT_FOUND"
	CodeInternal = "INTERNAL"
)

// Error is the engine's structured failure. Details carries the raw provider
// response for payment errors; it is opaque to the engine.
type Error struct {
	Code    string      `json:"code"`
	Message string      `json:"error"`
	Status  int         `json:"-"`
	Details interface{} `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// statusFor maps a code onto the HTTP status the façade responds with.
func statusFor(code string) int {
	switch code {
	case CodeNotOwner, CodeNotRenter, CodeCardNotOwned:
		return http.StatusForbidden
	case CodeNotFound, CodeCardNotFound, CodePaymentNotFound, CodeBreakdownNotFound:
		return http.StatusNotFound
	case CodeInvalidStatus, CodeAlreadyDone, CodeAlreadyPaid, CodeAlreadyConfirmed,
		CodeAlreadyCanceled, CodeHandoverAlreadyDone, CodeDepositExpired:
		return http.StatusConflict
	case CodePaymentFailed, CodePaymentIntentFailed, CodeWalletLimit:
		return http.StatusPaymentRequired
	case CodePaymentTimeout:
		return http.StatusGatewayTimeout
	case CodeInvalidHMAC:
		return http.StatusUnauthorized
	case CodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// Errf builds an engine error with a formatted message.
func Errf(code, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Status:  statusFor(code),
	}
}

// ErrWithDetails attaches an opaque details payload, typically the gateway's
// raw response.
func ErrWithDetails(code, message string, details interface{}) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Status:  statusFor(code),
		Details: details,
	}
}

// AsError extracts a structured engine error, or wraps anything else as
// INTERNAL with a correlation id the client can quote back. SQL and gateway
// internals never reach the response body.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	correlation := uuid.NewString()[:8]
	return &Error{
		Code:    CodeInternal,
		Message: fmt.Sprintf("internal error (ref %s)", correlation),
		Status:  http.StatusInternalServerError,
	}
}

// IsCode reports whether err is an engine error with the given code.
func IsCode(err error, code string) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}
