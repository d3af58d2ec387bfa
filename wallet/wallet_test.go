package wallet

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMakeWalletAddressValidates(t *testing.T) {
	w, err := MakeWallet()
	require.NoError(t, err)
	require.True(t, ValidateAddress(w.Address()))
}

func TestDistinctWalletsDistinctAddresses(t *testing.T) {
	a, err := MakeWallet()
	require.NoError(t, err)
	b, err := MakeWallet()
	require.NoError(t, err)
	require.NotEqual(t, a.Address(), b.Address())
}

func TestPublicKeyHashLength(t *testing.T) {
	w, err := MakeWallet()
	require.NoError(t, err)
	require.Len(t, PublicKeyHash(w.PublicKey), 20)
}
