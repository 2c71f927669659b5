package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMerchantRefRoundTrip(t *testing.T) {
	t.Run("wallet recharge", func(t *testing.T) {
		ref := WalletRechargeRef(42)
		parsed, err := ParseMerchantRef(ref)
		require.NoError(t, err)
		assert.Equal(t, RefWalletRecharge, parsed.Purpose)
		assert.Equal(t, uint(42), parsed.UserID)
		assert.Zero(t, parsed.RentalID)
		assert.NotEmpty(t, parsed.Nonce)
	})

	t.Run("rental deposit", func(t *testing.T) {
		ref := RentalDepositRef(7, 42)
		parsed, err := ParseMerchantRef(ref)
		require.NoError(t, err)
		assert.Equal(t, RefRentalDeposit, parsed.Purpose)
		assert.Equal(t, uint(7), parsed.RentalID)
		assert.Equal(t, uint(42), parsed.UserID)
	})

	t.Run("selfdrive deposit", func(t *testing.T) {
		ref := SelfDriveDepositRef(9, 13)
		parsed, err := ParseMerchantRef(ref)
		require.NoError(t, err)
		assert.Equal(t, RefSelfDriveDeposit, parsed.Purpose)
		assert.Equal(t, uint(9), parsed.RentalID)
		assert.Equal(t, uint(13), parsed.UserID)
	})

	t.Run("rental remaining", func(t *testing.T) {
		ref := RentalRemainingRef(7, 42)
		parsed, err := ParseMerchantRef(ref)
		require.NoError(t, err)
		assert.Equal(t, RefRentalRemaining, parsed.Purpose)
		assert.Equal(t, uint(7), parsed.RentalID)
		assert.Equal(t, uint(42), parsed.UserID)
	})

	t.Run("rental excess", func(t *testing.T) {
		ref := RentalExcessRef(7, 42)
		parsed, err := ParseMerchantRef(ref)
		require.NoError(t, err)
		assert.Equal(t, RefRentalExcess, parsed.Purpose)
		assert.Equal(t, uint(7), parsed.RentalID)
		assert.Equal(t, uint(42), parsed.UserID)
	})
}

// Purse purposes must stay distinct: a remaining or excess charge must never
// parse as a deposit, or its webhook would be applied to the wrong purse.
func TestPurseReferencesDoNotCollide(t *testing.T) {
	remaining, err := ParseMerchantRef(RentalRemainingRef(7, 42))
	require.NoError(t, err)
	assert.NotEqual(t, RefRentalDeposit, remaining.Purpose)

	excess, err := ParseMerchantRef(RentalExcessRef(7, 42))
	require.NoError(t, err)
	assert.NotEqual(t, RefRentalDeposit, excess.Purpose)
	assert.NotEqual(t, remaining.Purpose, excess.Purpose)
}

func TestParseMerchantRefRejectsGarbage(t *testing.T) {
	for _, ref := range []string{
		"",
		"something_else_1_2",
		"rental_deposit_abc_nonce_42",
		"rental_deposit_1",
		"wallet_recharge_nonce_notanumber",
	} {
		_, err := ParseMerchantRef(ref)
		assert.Error(t, err, "ref %q should not parse", ref)
	}
}
