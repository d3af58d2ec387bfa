package chainstore

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/utxochain/ledger/block"
	"github.com/utxochain/ledger/tx"
	"github.com/utxochain/ledger/wallet"
)

func mustAddress(t *testing.T) string {
	t.Helper()
	w, err := wallet.MakeWallet()
	require.NoError(t, err)
	return w.Address()
}

func TestCreateThenOpen(t *testing.T) {
	dir := t.TempDir()

	chain, err := Create(dir, mustAddress(t))
	require.NoError(t, err)
	chain.Close() //nolint:errcheck

	reopened, err := Open(dir)
	require.NoError(t, err)
	defer reopened.Close() //nolint:errcheck

	height, err := reopened.GetBestHeight()
	require.NoError(t, err)
	require.Equal(t, int32(0), height)
}

func TestCreateTwiceFails(t *testing.T) {
	dir := t.TempDir()
	address := mustAddress(t)

	chain, err := Create(dir, address)
	require.NoError(t, err)
	chain.Close() //nolint:errcheck

	_, err = Create(dir, address)
	require.Error(t, err, "creating a chain where one already exists should fail")
}

func TestOpenMissingFails(t *testing.T) {
	dir := t.TempDir()
	_, err := Open(dir)
	require.Error(t, err, "opening a chain that was never created should fail")
}

func TestMineBlockAdvancesHeight(t *testing.T) {
	dir := t.TempDir()
	chain, err := Create(dir, mustAddress(t))
	require.NoError(t, err)
	defer chain.Close() //nolint:errcheck

	coinbase, err := tx.NewCoinbase(mustAddress(t), "")
	require.NoError(t, err)
	mined, err := chain.MineBlock([]*tx.Transaction{coinbase})
	require.NoError(t, err)
	require.Equal(t, int32(1), mined.Height)

	height, err := chain.GetBestHeight()
	require.NoError(t, err)
	require.Equal(t, int32(1), height)
}

func TestAddBlockRejectsSameHeightFork(t *testing.T) {
	dir := t.TempDir()
	chain, err := Create(dir, mustAddress(t))
	require.NoError(t, err)
	defer chain.Close() //nolint:errcheck

	cb1, err := tx.NewCoinbase(mustAddress(t), "")
	require.NoError(t, err)
	_, err = chain.MineBlock([]*tx.Transaction{cb1})
	require.NoError(t, err)

	it, err := chain.Iterator()
	require.NoError(t, err)
	_, _ = it.Next() // height 1
	genesis, ok := it.Next() // height 0
	require.True(t, ok, "expected to reach genesis")

	cb2, err := tx.NewCoinbase(mustAddress(t), "")
	require.NoError(t, err)
	fork, err := block.Mine([]*tx.Transaction{cb2}, genesis.Hash, 1)
	require.NoError(t, err)

	advanced, err := chain.AddBlock(fork)
	require.NoError(t, err)
	require.False(t, advanced, "a same-height fork should not advance the tip")

	height, err := chain.GetBestHeight()
	require.NoError(t, err)
	require.Equal(t, int32(1), height, "tip height should remain unchanged")
}

func TestFindTransactionMissing(t *testing.T) {
	dir := t.TempDir()
	chain, err := Create(dir, mustAddress(t))
	require.NoError(t, err)
	defer chain.Close() //nolint:errcheck

	_, err = chain.FindTransaction("0000000000000000000000000000000000000000000000000000000000000000")
	require.Error(t, err)
	_, unwrappable := err.(interface{ Unwrap() error })
	require.True(t, unwrappable, "expected an unwrappable error, got %T", err)
}

func TestVerifyTransactionViaChainAcceptsCoinbase(t *testing.T) {
	dir := t.TempDir()
	chain, err := Create(dir, mustAddress(t))
	require.NoError(t, err)
	defer chain.Close() //nolint:errcheck

	ok, err := chain.VerifyTransaction(mustGenesisCoinbase(t, chain))
	require.NoError(t, err)
	require.True(t, ok, "a coinbase transaction should verify trivially")
}

func mustGenesisCoinbase(t *testing.T, chain *Chain) *tx.Transaction {
	t.Helper()
	it, err := chain.Iterator()
	require.NoError(t, err)
	b, ok := it.Next()
	require.True(t, ok, "expected at least one block")
	return b.Transactions[0]
}
