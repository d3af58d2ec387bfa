package utxoset

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/utxochain/ledger/addr"
	"github.com/utxochain/ledger/chainstore"
	"github.com/utxochain/ledger/tx"
	"github.com/utxochain/ledger/wallet"
)

func mustAddress(t *testing.T) (*wallet.Wallet, string) {
	t.Helper()
	w, err := wallet.MakeWallet()
	require.NoError(t, err)
	return w, w.Address()
}

// mineWithCoinbase mirrors node.MineLocally without importing the node
// package, which itself imports utxoset and would otherwise create a cycle
// from this internal test package.
func mineWithCoinbase(t *testing.T, chain *chainstore.Chain, set *Set, rewardAddr string, transactions []*tx.Transaction) {
	t.Helper()
	coinbase, err := tx.NewCoinbase(rewardAddr, "")
	require.NoError(t, err)
	all := append(append([]*tx.Transaction{}, transactions...), coinbase)

	mined, err := chain.MineBlock(all)
	require.NoError(t, err)
	require.NoError(t, set.Update(mined))
}

func balanceOf(t *testing.T, set *Set, address string) int32 {
	t.Helper()
	hash, err := addr.Decode(address)
	require.NoError(t, err)
	outs, err := set.FindUTXO(hash)
	require.NoError(t, err)
	var balance int32
	for _, out := range outs {
		balance += out.Value
	}
	return balance
}

func TestReindexMatchesGenesisBalance(t *testing.T) {
	dir := t.TempDir()
	_, founder := mustAddress(t)

	chain, err := chainstore.Create(dir, founder)
	require.NoError(t, err)
	defer chain.Close() //nolint:errcheck

	set := Open(chain)
	require.NoError(t, set.Reindex())

	require.Equal(t, tx.Subsidy, balanceOf(t, set, founder))
}

func TestUpdateAfterTransferMovesBalance(t *testing.T) {
	dir := t.TempDir()
	founderWallet, founder := mustAddress(t)
	_, receiver := mustAddress(t)

	chain, err := chainstore.Create(dir, founder)
	require.NoError(t, err)
	defer chain.Close() //nolint:errcheck

	set := Open(chain)
	require.NoError(t, set.Reindex())

	transfer, err := tx.NewTransfer(founder, receiver, founderWallet.PublicKey, 4, set)
	require.NoError(t, err)
	require.NoError(t, chain.SignTransaction(transfer, founderWallet.PrivateKey))

	mineWithCoinbase(t, chain, set, founder, []*tx.Transaction{transfer})

	require.Equal(t, int32(4), balanceOf(t, set, receiver))
	// founder started with 10, spent 4 (leaving 6 change), then received a
	// fresh 10 coinbase for mining the block.
	require.Equal(t, int32(16), balanceOf(t, set, founder))
}

func TestCountTransactionsReflectsReindex(t *testing.T) {
	dir := t.TempDir()
	_, founder := mustAddress(t)

	chain, err := chainstore.Create(dir, founder)
	require.NoError(t, err)
	defer chain.Close() //nolint:errcheck

	set := Open(chain)
	require.NoError(t, set.Reindex())
	count, err := set.CountTransactions()
	require.NoError(t, err)
	require.Equal(t, 1, count)
}
