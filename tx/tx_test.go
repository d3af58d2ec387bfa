package tx

import (
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/require"

	"github.com/utxochain/ledger/wallet"
)

// fakeSource is a minimal SpendableSource backed by an in-memory set of
// outputs, standing in for utxoset.Set in these package-local tests.
type fakeSource struct {
	byTx map[string][]TxOutput
}

func (f *fakeSource) FindSpendableOutputs(pubKeyHash []byte, amount int32) (int32, map[string][]int32, error) {
	var accumulated int32
	selected := make(map[string][]int32)
	for txID, outs := range f.byTx {
		for idx, out := range outs {
			if accumulated >= amount {
				break
			}
			if out.LockedWith(pubKeyHash) {
				accumulated += out.Value
				selected[txID] = append(selected[txID], int32(idx))
			}
		}
	}
	return accumulated, selected, nil
}

func mustWallet(t *testing.T) *wallet.Wallet {
	t.Helper()
	w, err := wallet.MakeWallet()
	require.NoError(t, err)
	return w
}

func TestCoinbaseIsCoinbase(t *testing.T) {
	to := mustWallet(t).Address()
	cb, err := NewCoinbase(to, "")
	require.NoError(t, err)
	require.True(t, cb.IsCoinbase(), "a freshly built coinbase should report IsCoinbase() == true")
	require.Equal(t, Subsidy, cb.Outputs[0].Value)
}

func TestSetIDIsDeterministic(t *testing.T) {
	to := mustWallet(t).Address()
	a, err := NewCoinbase(to, "fixed data")
	require.NoError(t, err)
	b, err := NewCoinbase(to, "fixed data")
	require.NoError(t, err)
	require.Equal(t, a.ID, b.ID, "identical coinbase contents should hash to the same id")
}

func TestSignThenVerifySucceeds(t *testing.T) {
	sender := mustWallet(t)
	receiver := mustWallet(t)

	senderHash := wallet.PublicKeyHash(sender.PublicKey)
	fund, err := NewCoinbase(sender.Address(), "")
	require.NoError(t, err)

	src := &fakeSource{byTx: map[string][]TxOutput{fund.ID: fund.Outputs}}
	transfer, err := NewTransfer(sender.Address(), receiver.Address(), sender.PublicKey, 4, src)
	require.NoError(t, err)

	prevTxs := map[string]*Transaction{fund.ID: fund}
	require.NoError(t, transfer.Sign(sender.PrivateKey, prevTxs))

	ok, err := transfer.Verify(prevTxs)
	require.NoError(t, err)
	require.True(t, ok, "a correctly signed transfer should verify:\n%s", spew.Sdump(transfer))

	require.Len(t, transfer.Inputs, 1)
	require.True(t, transfer.Inputs[0].UsesKey(senderHash))
}

func TestVerifyFailsOnTamperedSignature(t *testing.T) {
	sender := mustWallet(t)
	receiver := mustWallet(t)

	fund, err := NewCoinbase(sender.Address(), "")
	require.NoError(t, err)
	src := &fakeSource{byTx: map[string][]TxOutput{fund.ID: fund.Outputs}}
	transfer, err := NewTransfer(sender.Address(), receiver.Address(), sender.PublicKey, 4, src)
	require.NoError(t, err)
	prevTxs := map[string]*Transaction{fund.ID: fund}
	require.NoError(t, transfer.Sign(sender.PrivateKey, prevTxs))

	transfer.Inputs[0].Signature[0] ^= 0xFF

	ok, err := transfer.Verify(prevTxs)
	require.NoError(t, err)
	require.False(t, ok, "a tampered signature should fail verification:\n%s", spew.Sdump(transfer))
}

func TestNewTransferInsufficientFunds(t *testing.T) {
	sender := mustWallet(t)
	receiver := mustWallet(t)

	fund, err := NewCoinbase(sender.Address(), "")
	require.NoError(t, err)
	src := &fakeSource{byTx: map[string][]TxOutput{fund.ID: fund.Outputs}}

	_, err = NewTransfer(sender.Address(), receiver.Address(), sender.PublicKey, Subsidy+1, src)
	require.Error(t, err, "requesting more than the available balance should fail")
}

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	to := mustWallet(t).Address()
	cb, err := NewCoinbase(to, "")
	require.NoError(t, err)
	data, err := cb.Serialize()
	require.NoError(t, err)
	got, err := Deserialize(data)
	require.NoError(t, err)
	require.Equal(t, cb.ID, got.ID)
}

func TestLockLocksToDecodedAddress(t *testing.T) {
	w := mustWallet(t)
	var out TxOutput
	require.NoError(t, out.Lock(w.Address()))
	require.True(t, out.LockedWith(wallet.PublicKeyHash(w.PublicKey)))
}
