// Package tx implements the UTXO transaction model: coinbase and regular
// transfers, the canonical id/signing encoding, and the trimmed-copy
// sign/verify protocol, using Ed25519 signatures and string-hex ids over a
// canonical (non-gob) encoding for hash stability.
package tx

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/utxochain/ledger/addr"
	"github.com/utxochain/ledger/chainerr"
	"github.com/utxochain/ledger/internal/canon"
	"github.com/utxochain/ledger/wallet"
)

// Subsidy is the fixed coinbase reward; this chain has no fee market.
const Subsidy = int32(10)

// TxInput references a previous output being spent.
type TxInput struct {
	TxID      string // hex id of the transaction holding the referenced output; empty for coinbase
	Vout      int32  // index of the referenced output; -1 for coinbase
	Signature []byte
	PubKey    []byte
}

// TxOutput allocates value to whoever can prove ownership of PubKeyHash.
type TxOutput struct {
	Value      int32
	PubKeyHash []byte
}

// Lock sets the output's spending condition to address's pub-key-hash.
func (out *TxOutput) Lock(address string) error {
	hash, err := addr.Decode(address)
	if err != nil {
		return errors.Wrap(err, "tx: lock output")
	}
	out.PubKeyHash = hash
	return nil
}

// UsesKey reports whether in was signed with a public key hashing to
// pubKeyHash.
func (in *TxInput) UsesKey(pubKeyHash []byte) bool {
	return bytes.Equal(wallet.PublicKeyHash(in.PubKey), pubKeyHash)
}

// LockedWith reports whether out is locked with pubKeyHash.
func (out *TxOutput) LockedWith(pubKeyHash []byte) bool {
	return bytes.Equal(out.PubKeyHash, pubKeyHash)
}

// Transaction is the UTXO unit of transfer: a list of spent outputs
// (inputs) and a list of newly created outputs.
type Transaction struct {
	ID      string
	Inputs  []TxInput
	Outputs []TxOutput
}

// IsCoinbase reports whether tx mints new coins rather than spending an
// existing output: one input, empty txid, vout -1.
func (t *Transaction) IsCoinbase() bool {
	return len(t.Inputs) == 1 && t.Inputs[0].TxID == "" && t.Inputs[0].Vout == -1
}

// NewCoinbase builds the reward transaction paying the block's miner (or
// the genesis founder). data defaults to "Reward to <to>" when empty.
func NewCoinbase(to, data string) (*Transaction, error) {
	if data == "" {
		data = fmt.Sprintf("Reward to %s", to)
	}

	pubKeyHash, err := addr.Decode(to)
	if err != nil {
		return nil, errors.Wrap(err, "tx: decode coinbase recipient")
	}

	t := &Transaction{
		Inputs:  []TxInput{{TxID: "", Vout: -1, Signature: nil, PubKey: []byte(data)}},
		Outputs: []TxOutput{{Value: Subsidy, PubKeyHash: pubKeyHash}},
	}
	t.SetID()
	return t, nil
}

// SpendableSource is the view of the UTXO index NewTransfer needs; it is
// implemented by utxoset.Set, kept as an interface here so tx never imports
// the storage layer directly — transaction construction stays a pure
// function of a UTXO view, not of any particular index implementation.
type SpendableSource interface {
	FindSpendableOutputs(pubKeyHash []byte, amount int32) (int32, map[string][]int32, error)
}

// NewTransfer builds a signed-ready (but not yet signed) regular transfer
// moving amount from fromAddr to toAddr by accumulating spendable outputs
// until the amount is covered. Call Sign afterward with the sender's
// private key and the referenced previous transactions.
func NewTransfer(fromAddr, toAddr string, fromPubKey ed25519.PublicKey, amount int32, src SpendableSource) (*Transaction, error) {
	pubKeyHash := wallet.PublicKeyHash(fromPubKey)

	accumulated, selected, err := src.FindSpendableOutputs(pubKeyHash, amount)
	if err != nil {
		return nil, err
	}
	if accumulated < amount {
		return nil, errors.WithStack(&chainerr.InsufficientFunds{
			Accumulated: int64(accumulated),
			Requested:   int64(amount),
		})
	}

	var inputs []TxInput
	for txID, outs := range selected {
		for _, voutIdx := range outs {
			inputs = append(inputs, TxInput{TxID: txID, Vout: voutIdx, PubKey: fromPubKey})
		}
	}

	toHash, err := addr.Decode(toAddr)
	if err != nil {
		return nil, errors.Wrap(err, "tx: decode recipient")
	}

	outputs := []TxOutput{{Value: amount, PubKeyHash: toHash}}
	if accumulated > amount {
		outputs = append(outputs, TxOutput{Value: accumulated - amount, PubKeyHash: pubKeyHash})
	}

	t := &Transaction{Inputs: inputs, Outputs: outputs}
	t.SetID()
	return t, nil
}

// TrimmedCopy returns a shallow clone with every input's signature and
// public key cleared.
func (t *Transaction) TrimmedCopy() Transaction {
	inputs := make([]TxInput, len(t.Inputs))
	for i, in := range t.Inputs {
		inputs[i] = TxInput{TxID: in.TxID, Vout: in.Vout}
	}

	outputs := make([]TxOutput, len(t.Outputs))
	for i, out := range t.Outputs {
		outputs[i] = TxOutput{Value: out.Value, PubKeyHash: out.PubKeyHash}
	}

	return Transaction{ID: t.ID, Inputs: inputs, Outputs: outputs}
}

// Sign implements the per-input trimmed-copy signing protocol: each input
// is signed over a message computed with only that input's locking hash
// exposed and every signature cleared. It requires every referenced
// previous transaction in prevTxs; coinbase transactions are not signed.
func (t *Transaction) Sign(priv ed25519.PrivateKey, prevTxs map[string]*Transaction) error {
	if t.IsCoinbase() {
		return nil
	}

	for _, in := range t.Inputs {
		prev, ok := prevTxs[in.TxID]
		if !ok || prev.ID == "" {
			return errors.WithStack(chainerr.ErrMissingPrevTx)
		}
	}

	trimmed := t.TrimmedCopy()
	for i, in := range trimmed.Inputs {
		prev := prevTxs[in.TxID]

		trimmed.Inputs[i].Signature = nil
		trimmed.Inputs[i].PubKey = prev.Outputs[in.Vout].PubKeyHash

		message := trimmed.hashHex()
		trimmed.ID = message

		trimmed.Inputs[i].PubKey = nil

		t.Inputs[i].Signature = ed25519.Sign(priv, []byte(message))
	}
	return nil
}

// Verify mirrors Sign: every input must verify against its referenced
// output's locking hash. Coinbases verify trivially.
func (t *Transaction) Verify(prevTxs map[string]*Transaction) (bool, error) {
	if t.IsCoinbase() {
		return true, nil
	}

	for _, in := range t.Inputs {
		prev, ok := prevTxs[in.TxID]
		if !ok || prev.ID == "" {
			return false, errors.WithStack(chainerr.ErrMissingPrevTx)
		}
	}

	trimmed := t.TrimmedCopy()
	for i, in := range t.Inputs {
		prev := prevTxs[in.TxID]

		trimmed.Inputs[i].Signature = nil
		trimmed.Inputs[i].PubKey = prev.Outputs[in.Vout].PubKeyHash

		message := trimmed.hashHex()
		trimmed.ID = message

		trimmed.Inputs[i].PubKey = nil

		if len(in.PubKey) != ed25519.PublicKeySize {
			return false, nil
		}
		if !ed25519.Verify(in.PubKey, []byte(message), in.Signature) {
			return false, nil
		}
	}
	return true, nil
}

// SetID recomputes ID as the SHA-256 (hex) of the transaction's canonical
// encoding with ID itself cleared.
func (t *Transaction) SetID() {
	t.ID = t.hashHex()
}

func (t *Transaction) hashHex() string {
	sum := sha256.Sum256(t.canonicalBytesForID())
	return hex.EncodeToString(sum[:])
}

// canonicalBytesForID encodes every field except ID itself, in declaration
// order, length-prefixed throughout — the pre-image for both transaction
// ids and the per-input signing message.
func (t *Transaction) canonicalBytesForID() []byte {
	w := canon.NewWriter()
	w.String("")
	w.ListLen(len(t.Inputs))
	for _, in := range t.Inputs {
		w.String(in.TxID)
		w.Int32(in.Vout)
		w.ByteSlice(in.Signature)
		w.ByteSlice(in.PubKey)
	}
	w.ListLen(len(t.Outputs))
	for _, out := range t.Outputs {
		w.Int32(out.Value)
		w.ByteSlice(out.PubKeyHash)
	}
	return w.Bytes()
}

// EncodeCanonical writes t's full canonical encoding (ID included) into w.
// The block package uses this to fold a block's transaction list into its
// own hash input, so a tx's on-chain identity is pinned the same way its
// own id is.
func (t *Transaction) EncodeCanonical(w *canon.Writer) {
	w.String(t.ID)
	w.ListLen(len(t.Inputs))
	for _, in := range t.Inputs {
		w.String(in.TxID)
		w.Int32(in.Vout)
		w.ByteSlice(in.Signature)
		w.ByteSlice(in.PubKey)
	}
	w.ListLen(len(t.Outputs))
	for _, out := range t.Outputs {
		w.Int32(out.Value)
		w.ByteSlice(out.PubKeyHash)
	}
}

// Serialize gob-encodes the transaction for disk/network storage. This is
// not consensus-critical — every reader decodes what the same process
// family wrote — so gob's own versioning is acceptable here, unlike the
// canonical hash encoding above.
func (t *Transaction) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(t); err != nil {
		return nil, errors.Wrap(err, "tx: serialize")
	}
	return buf.Bytes(), nil
}

// Deserialize decodes a transaction previously written by Serialize.
func Deserialize(data []byte) (*Transaction, error) {
	var t Transaction
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&t); err != nil {
		return nil, errors.Wrap(err, "tx: deserialize")
	}
	return &t, nil
}

// String renders a debug view of the transaction.
func (t *Transaction) String() string {
	var lines []string
	lines = append(lines, fmt.Sprintf("--- Transaction %s:", t.ID))
	for i, in := range t.Inputs {
		lines = append(lines, fmt.Sprintf("     Input %d:", i))
		lines = append(lines, fmt.Sprintf("       TxID:      %s", in.TxID))
		lines = append(lines, fmt.Sprintf("       Out:       %d", in.Vout))
		lines = append(lines, fmt.Sprintf("       Signature: %x", in.Signature))
		lines = append(lines, fmt.Sprintf("       PubKey:    %x", in.PubKey))
	}
	for i, out := range t.Outputs {
		lines = append(lines, fmt.Sprintf("     Output %d:", i))
		lines = append(lines, fmt.Sprintf("       Value:      %d", out.Value))
		lines = append(lines, fmt.Sprintf("       PubKeyHash: %x", out.PubKeyHash))
	}
	return strings.Join(lines, "\n")
}
