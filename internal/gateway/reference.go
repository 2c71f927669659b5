package gateway

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Merchant reference purposes. The reference string travels to the gateway
// on order creation and comes back verbatim on webhooks; it is the engine's
// primary reconciliation key.
type RefPurpose string

const (
	RefWalletRecharge   RefPurpose = "wallet_recharge"
	RefRentalDeposit    RefPurpose = "rental_deposit"
	RefSelfDriveDeposit RefPurpose = "selfdrive_deposit"
	RefRentalRemaining  RefPurpose = "rental_remaining"
	RefRentalExcess     RefPurpose = "rental_excess"
)

// MerchantRef is a parsed merchant reference.
type MerchantRef struct {
	Purpose  RefPurpose
	RentalID uint // zero for wallet recharges
	Nonce    string
	UserID   uint
}

// WalletRechargeRef builds "wallet_recharge_<uuid>_<user_id>".
func WalletRechargeRef(userID uint) string {
	return fmt.Sprintf("%s_%s_%d", RefWalletRecharge, uuid.NewString(), userID)
}

// RentalDepositRef builds "rental_deposit_<rental_id>_<uuid>_<user_id>".
func RentalDepositRef(rentalID, userID uint) string {
	return fmt.Sprintf("%s_%d_%s_%d", RefRentalDeposit, rentalID, uuid.NewString(), userID)
}

// SelfDriveDepositRef builds "selfdrive_deposit_<rental_id>_<uuid>_<user_id>".
func SelfDriveDepositRef(rentalID, userID uint) string {
	return fmt.Sprintf("%s_%d_%s_%d", RefSelfDriveDeposit, rentalID, uuid.NewString(), userID)
}

// RentalRemainingRef builds "rental_remaining_<rental_id>_<uuid>_<user_id>".
// The remaining purse carries its own purpose so a timed-out charge can be
// reconciled by the webhook without touching the deposit.
func RentalRemainingRef(rentalID, userID uint) string {
	return fmt.Sprintf("%s_%d_%s_%d", RefRentalRemaining, rentalID, uuid.NewString(), userID)
}

// RentalExcessRef builds "rental_excess_<rental_id>_<uuid>_<user_id>".
func RentalExcessRef(rentalID, userID uint) string {
	return fmt.Sprintf("%s_%d_%s_%d", RefRentalExcess, rentalID, uuid.NewString(), userID)
}

// ParseMerchantRef recovers the purpose and ids from a reference string.
func ParseMerchantRef(ref string) (*MerchantRef, error) {
	switch {
	case strings.HasPrefix(ref, string(RefWalletRecharge)+"_"):
		rest := strings.TrimPrefix(ref, string(RefWalletRecharge)+"_")
		parts := strings.Split(rest, "_")
		if len(parts) != 2 {
			return nil, fmt.Errorf("malformed wallet recharge reference %q", ref)
		}
		userID, err := parseID(parts[1])
		if err != nil {
			return nil, err
		}
		return &MerchantRef{Purpose: RefWalletRecharge, Nonce: parts[0], UserID: userID}, nil

	case strings.HasPrefix(ref, string(RefRentalDeposit)+"_"):
		return parseRentalRef(RefRentalDeposit, ref)
	case strings.HasPrefix(ref, string(RefSelfDriveDeposit)+"_"):
		return parseRentalRef(RefSelfDriveDeposit, ref)
	case strings.HasPrefix(ref, string(RefRentalRemaining)+"_"):
		return parseRentalRef(RefRentalRemaining, ref)
	case strings.HasPrefix(ref, string(RefRentalExcess)+"_"):
		return parseRentalRef(RefRentalExcess, ref)
	}
	return nil, fmt.Errorf("unrecognised merchant reference %q", ref)
}

func parseRentalRef(purpose RefPurpose, ref string) (*MerchantRef, error) {
	rest := strings.TrimPrefix(ref, string(purpose)+"_")
	parts := strings.Split(rest, "_")
	if len(parts) != 3 {
		return nil, fmt.Errorf("malformed rental reference %q", ref)
	}
	rentalID, err := parseID(parts[0])
	if err != nil {
		return nil, err
	}
	userID, err := parseID(parts[2])
	if err != nil {
		return nil, err
	}
	return &MerchantRef{Purpose: purpose, RentalID: rentalID, Nonce: parts[1], UserID: userID}, nil
}

func parseID(s string) (uint, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("bad id %q in merchant reference", s)
	}
	return uint(v), nil
}
