package wallet

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenFirstRunIsEmptyNotError(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir, "node1")
	require.NoError(t, err)
	require.Empty(t, s.Addresses())
}

func TestAddWalletPersistsAcrossOpen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir, "node1")
	require.NoError(t, err)
	address, err := s.AddWallet()
	require.NoError(t, err)

	reopened, err := Open(dir, "node1")
	require.NoError(t, err)
	w, err := reopened.Get(address)
	require.NoError(t, err)
	require.Equal(t, address, w.Address())
}

func TestGetMissingWalletIsError(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "node1")
	require.NoError(t, err)
	_, err = s.Get("not-a-real-address")
	require.Error(t, err)
}

func TestSeparateNodeIDsDoNotShareAStore(t *testing.T) {
	dir := t.TempDir()

	a, err := Open(dir, "alice")
	require.NoError(t, err)
	_, err = a.AddWallet()
	require.NoError(t, err)

	b, err := Open(dir, "bob")
	require.NoError(t, err)
	require.Empty(t, b.Addresses(), "a different node id should not see another node's wallets")
}
