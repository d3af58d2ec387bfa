// Package block implements the block record and its proof-of-work mining
// loop: hex prev_hash/hash, a transaction list, fixed difficulty, and a
// canonical, non-gob hashing encoding.
package block

import (
	"bytes"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"github.com/pkg/errors"

	"github.com/utxochain/ledger/internal/canon"
	"github.com/utxochain/ledger/tx"
)

// Difficulty is the fixed number of leading hex '0' characters a valid
// block hash must have. There is no retargeting mechanism.
const Difficulty = 4

// GenesisReward is the subsidy paid by the genesis block's coinbase.
const GenesisReward = int32(10)

// GenesisData is the literal coinbase message carried by the genesis block.
const GenesisData = "The Times 03/Jan/2009 Chancellor on brink of second bailout for banks"

// Block is a timestamped, hash-linked record of transactions plus the
// proof-of-work nonce that makes it expensive to forge.
type Block struct {
	Timestamp    int64
	Transactions []*tx.Transaction
	PrevHash     string
	Hash         string
	Nonce        int32
	Height       int32
}

// target is the big.Int threshold a block's hash (read as a big-endian
// integer) must fall under to satisfy Difficulty leading hex zeros. Each
// hex digit is 4 bits, so the threshold shifts left by 256 - Difficulty*4.
func target() *big.Int {
	t := big.NewInt(1)
	t.Lsh(t, uint(256-Difficulty*4))
	return t
}

// encodeForHash produces the canonical, non-gob encoding of
// (prevHash, transactions, timestamp, difficulty, nonce) that both mining
// and verification hash, pinned field by field so the chain's validity
// never depends on gob's encoding choices.
func encodeForHash(prevHash string, txs []*tx.Transaction, timestamp int64, difficulty int, nonce int32) []byte {
	w := canon.NewWriter()
	w.String(prevHash)
	w.ListLen(len(txs))
	for _, t := range txs {
		t.EncodeCanonical(w)
	}
	w.Uint128(uint64(timestamp))
	w.Uint64(uint64(difficulty))
	w.Int32(nonce)
	return w.Bytes()
}

func hashHex(prevHash string, txs []*tx.Transaction, timestamp int64, difficulty int, nonce int32) string {
	sum := sha256.Sum256(encodeForHash(prevHash, txs, timestamp, difficulty, nonce))
	return hex.EncodeToString(sum[:])
}

// Mine constructs a block over transactions on top of prevHash at the given
// height, running the nonce search until the difficulty predicate holds.
// The timestamp is fixed once at the start of the search, so the result is
// exactly reproducible from its own fields.
func Mine(transactions []*tx.Transaction, prevHash string, height int32) (*Block, error) {
	if len(transactions) == 0 {
		return nil, errors.New("block: cannot mine an empty block")
	}

	timestamp := time.Now().UnixMilli()
	threshold := target()

	var nonce int32
	var hash string
	for {
		hash = hashHex(prevHash, transactions, timestamp, Difficulty, nonce)

		var asInt big.Int
		hashBytes, err := hex.DecodeString(hash)
		if err != nil {
			return nil, errors.Wrap(err, "block: decode candidate hash")
		}
		asInt.SetBytes(hashBytes)

		if asInt.Cmp(threshold) == -1 {
			break
		}
		nonce++
	}

	return &Block{
		Timestamp:    timestamp,
		Transactions: transactions,
		PrevHash:     prevHash,
		Hash:         hash,
		Nonce:        nonce,
		Height:       height,
	}, nil
}

// Genesis constructs height-0 block, paying the founding address the
// subsidy through a single coinbase.
func Genesis(founder string) (*Block, error) {
	coinbase, err := tx.NewCoinbase(founder, GenesisData)
	if err != nil {
		return nil, errors.Wrap(err, "block: build genesis coinbase")
	}
	return Mine([]*tx.Transaction{coinbase}, "", 0)
}

// Valid reports whether b's stored hash is both internally consistent
// (recomputing it from its own fields yields the same digest) and meets
// the difficulty predicate.
func (b *Block) Valid() bool {
	if hashHex(b.PrevHash, b.Transactions, b.Timestamp, Difficulty, b.Nonce) != b.Hash {
		return false
	}
	for i := 0; i < Difficulty; i++ {
		if b.Hash[i] != '0' {
			return false
		}
	}
	return true
}

// Serialize gob-encodes the block for chain-store persistence. Storage is
// not the hash-critical path (see encodeForHash); gob round-trips fine
// within this process family.
func (b *Block) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(b); err != nil {
		return nil, errors.Wrap(err, "block: serialize")
	}
	return buf.Bytes(), nil
}

// Deserialize decodes a block previously written by Serialize.
func Deserialize(data []byte) (*Block, error) {
	var b Block
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&b); err != nil {
		return nil, errors.Wrap(err, "block: deserialize")
	}
	return &b, nil
}

// String renders a debug view suitable for a chain-printing CLI command.
func (b *Block) String() string {
	s := fmt.Sprintf("Height: %d\nHash: %s\nPrevHash: %s\nNonce: %d\nTimestamp: %d\n",
		b.Height, b.Hash, b.PrevHash, b.Nonce, b.Timestamp)
	for _, t := range b.Transactions {
		s += t.String() + "\n"
	}
	return s
}
