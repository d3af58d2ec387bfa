// Package chainstore is the persistent, hash-linked block store: a
// mapping hash -> serialized block plus the distinguished LAST tip
// pointer, backed by BadgerDB, with hex-string block/tx ids and
// reject-lower-height fork handling.
package chainstore

import (
	"crypto/ed25519"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"

	"github.com/utxochain/ledger/block"
	"github.com/utxochain/ledger/chainerr"
	"github.com/utxochain/ledger/internal/nodelog"
	"github.com/utxochain/ledger/tx"
)

// lastKey is the distinguished key holding the hex hash of the chain tip.
var lastKey = []byte("LAST")

// Chain is a persistent, append-only hash-linked block store.
type Chain struct {
	db  *badger.DB
	mu  sync.Mutex
	log *log.Logger
}

// Open opens an existing chain store at path, failing with
// chainerr.ErrStoreMissing if no LAST pointer is present yet.
func Open(path string) (*Chain, error) {
	db, err := openDB(path, badger.DefaultOptions(path).WithLogger(nil))
	if err != nil {
		return nil, errors.Wrap(err, "chainstore: open database")
	}

	c := &Chain{db: db, log: nodelog.Get(nodelog.Chain)}

	_, err = c.tipHash()
	if err != nil {
		db.Close() //nolint:errcheck
		return nil, err
	}
	return c, nil
}

// Create initializes a brand-new chain store at path, writing the genesis
// block paying founder the subsidy. Fails with chainerr.ErrAlreadyInitialized
// if a LAST pointer is already present.
func Create(path, founder string) (*Chain, error) {
	db, err := openDB(path, badger.DefaultOptions(path).WithLogger(nil))
	if err != nil {
		return nil, errors.Wrap(err, "chainstore: open database")
	}

	c := &Chain{db: db, log: nodelog.Get(nodelog.Chain)}

	if _, err := c.tipHash(); err == nil {
		db.Close() //nolint:errcheck
		return nil, errors.WithStack(chainerr.ErrAlreadyInitialized)
	}

	genesis, err := block.Genesis(founder)
	if err != nil {
		db.Close() //nolint:errcheck
		return nil, errors.Wrap(err, "chainstore: build genesis block")
	}

	if err := c.putBlock(genesis, true); err != nil {
		db.Close() //nolint:errcheck
		return nil, err
	}

	c.log.Printf("genesis block created for %s", founder)
	return c, nil
}

// Close flushes and closes the underlying database.
func (c *Chain) Close() error {
	return c.db.Close()
}

// DB exposes the underlying BadgerDB handle so the UTXO index can share it
// under its own key prefix — a key prefix inside the chain's own store is
// the Go-idiomatic way to express a logical namespace over one ordered
// byte store.
func (c *Chain) DB() *badger.DB {
	return c.db
}

func (c *Chain) tipHash() (string, error) {
	var hash string
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(lastKey)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return errors.WithStack(chainerr.ErrStoreMissing)
			}
			return err
		}
		return item.Value(func(val []byte) error {
			hash = string(val)
			return nil
		})
	})
	return hash, err
}

func (c *Chain) getBlock(hash string) (*block.Block, error) {
	var data []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(hash))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return errors.WithStack(&chainerr.NotFound{ID: hash})
			}
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return block.Deserialize(data)
}

// putBlock writes b under its hash key and, when asTip is true, points
// LAST at it in the same transaction. It does no height comparison of its
// own; AddBlock decides asTip from the heights.
func (c *Chain) putBlock(b *block.Block, asTip bool) error {
	data, err := b.Serialize()
	if err != nil {
		return errors.Wrap(err, "chainstore: serialize block")
	}

	return c.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(b.Hash), data); err != nil {
			return err
		}
		if asTip {
			return txn.Set(lastKey, []byte(b.Hash))
		}
		return nil
	})
}

// GetBlock returns the block stored under hash.
func (c *Chain) GetBlock(hash string) (*block.Block, error) {
	return c.getBlock(hash)
}

// GetBestHeight returns the height of the current tip.
func (c *Chain) GetBestHeight() (int32, error) {
	tip, err := c.tipHash()
	if err != nil {
		return 0, err
	}
	b, err := c.getBlock(tip)
	if err != nil {
		return 0, err
	}
	return b.Height, nil
}

// MineBlock verifies every non-coinbase transaction against the current
// chain, mines a new block on top of the tip, and appends it atomically
// from the caller's perspective.
func (c *Chain) MineBlock(transactions []*tx.Transaction) (*block.Block, error) {
	c.mu.Lock()
	tip, err := c.tipHash()
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	tipBlock, err := c.getBlock(tip)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.mu.Unlock()

	for _, t := range transactions {
		if t.IsCoinbase() {
			continue
		}
		ok, err := c.VerifyTransaction(t)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errors.Wrapf(chainerr.ErrInvalidTransaction, "tx %s", t.ID)
		}
	}

	mined, err := block.Mine(transactions, tip, tipBlock.Height+1)
	if err != nil {
		return nil, errors.Wrap(err, "chainstore: mine block")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.putBlock(mined, true); err != nil {
		return nil, errors.Wrap(err, "chainstore: append mined block")
	}
	return mined, nil
}

// AddBlock accepts a block received from the network. It is a no-op if the
// block is already present. LAST advances only if the new block's height
// exceeds the current tip's height; otherwise the block is stored but the
// tip is left alone and the fork is logged — lower/equal height blocks are
// rejected rather than triggering a reorganization.
func (c *Chain) AddBlock(b *block.Block) (advanced bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.getBlock(b.Hash); err == nil {
		return false, nil
	}

	tip, err := c.tipHash()
	if err != nil {
		return false, err
	}
	tipBlock, err := c.getBlock(tip)
	if err != nil {
		return false, err
	}

	asTip := b.Height > tipBlock.Height
	if err := c.putBlock(b, asTip); err != nil {
		return false, errors.Wrap(err, "chainstore: store received block")
	}
	if !asTip {
		c.log.Printf("fork detected: received block %s at height %d does not exceed tip height %d, keeping current tip",
			b.Hash, b.Height, tipBlock.Height)
	}
	return asTip, nil
}

// Iterator walks blocks from the tip back to genesis, following PrevHash.
type Iterator struct {
	chain   *Chain
	current string
	done    bool
}

// Iterator returns a fresh iterator starting at the current tip.
func (c *Chain) Iterator() (*Iterator, error) {
	tip, err := c.tipHash()
	if err != nil {
		return nil, err
	}
	return &Iterator{chain: c, current: tip}, nil
}

// Next returns the next block in tip-to-genesis order, or (nil, false) once
// the walk is exhausted: a lookup miss or deserialization failure ends the
// iteration rather than returning an error.
func (it *Iterator) Next() (*block.Block, bool) {
	if it.done || it.current == "" {
		return nil, false
	}

	b, err := it.chain.getBlock(it.current)
	if err != nil {
		it.done = true
		return nil, false
	}

	it.current = b.PrevHash
	if b.PrevHash == "" {
		it.done = true
	}
	return b, true
}

// FindTransaction linear-scans the chain tip-to-genesis for a transaction
// id, returning chainerr.NotFound if it is never seen.
func (c *Chain) FindTransaction(id string) (*tx.Transaction, error) {
	it, err := c.Iterator()
	if err != nil {
		return nil, err
	}
	for {
		b, ok := it.Next()
		if !ok {
			break
		}
		for _, t := range b.Transactions {
			if t.ID == id {
				return t, nil
			}
		}
	}
	return nil, errors.WithStack(&chainerr.NotFound{ID: id})
}

// GetBlockHashes returns hex hashes from tip to genesis, inclusive.
func (c *Chain) GetBlockHashes() ([]string, error) {
	it, err := c.Iterator()
	if err != nil {
		return nil, err
	}
	var hashes []string
	for {
		b, ok := it.Next()
		if !ok {
			break
		}
		hashes = append(hashes, b.Hash)
	}
	return hashes, nil
}

// resolvePrevTxs gathers, for every input of t, the transaction it
// references — the shared lookup behind both signing and verification.
func (c *Chain) resolvePrevTxs(t *tx.Transaction) (map[string]*tx.Transaction, error) {
	prevTxs := make(map[string]*tx.Transaction, len(t.Inputs))
	for _, in := range t.Inputs {
		if _, ok := prevTxs[in.TxID]; ok {
			continue
		}
		prev, err := c.FindTransaction(in.TxID)
		if err != nil {
			return nil, errors.WithStack(chainerr.ErrMissingPrevTx)
		}
		prevTxs[in.TxID] = prev
	}
	return prevTxs, nil
}

// SignTransaction resolves t's referenced previous transactions and signs
// every input with priv.
func (c *Chain) SignTransaction(t *tx.Transaction, priv ed25519.PrivateKey) error {
	if t.IsCoinbase() {
		return nil
	}
	prevTxs, err := c.resolvePrevTxs(t)
	if err != nil {
		return err
	}
	return t.Sign(priv, prevTxs)
}

// VerifyTransaction resolves t's referenced previous transactions and
// verifies every input's signature.
func (c *Chain) VerifyTransaction(t *tx.Transaction) (bool, error) {
	if t.IsCoinbase() {
		return true, nil
	}
	prevTxs, err := c.resolvePrevTxs(t)
	if err != nil {
		return false, err
	}
	return t.Verify(prevTxs)
}

// FindAllUTXO walks the chain tip-to-genesis, returning for every
// transaction the outputs not consumed by any later input. Reverse
// iteration is safe because spending can only reference earlier outputs.
func (c *Chain) FindAllUTXO() (map[string][]tx.TxOutput, error) {
	utxo := make(map[string][]tx.TxOutput)
	spent := make(map[string]map[int32]bool)

	it, err := c.Iterator()
	if err != nil {
		return nil, err
	}
	for {
		b, ok := it.Next()
		if !ok {
			break
		}
		for _, t := range b.Transactions {
			for outIdx, out := range t.Outputs {
				if spent[t.ID] != nil && spent[t.ID][int32(outIdx)] {
					continue
				}
				utxo[t.ID] = append(utxo[t.ID], out)
			}
			if !t.IsCoinbase() {
				for _, in := range t.Inputs {
					if spent[in.TxID] == nil {
						spent[in.TxID] = make(map[int32]bool)
					}
					spent[in.TxID][in.Vout] = true
				}
			}
		}
	}
	return utxo, nil
}

func retryUnlock(dir string, opts badger.Options) (*badger.DB, error) {
	lockPath := filepath.Join(dir, "LOCK")
	if err := os.Remove(lockPath); err != nil {
		return nil, fmt.Errorf("remove stale lock file: %w", err)
	}
	return badger.Open(opts)
}

// openDB opens the BadgerDB at dir, retrying once by removing a stale LOCK
// file left by an unclean shutdown — a real failure mode on repeated local
// runs.
func openDB(dir string, opts badger.Options) (*badger.DB, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	opts.Dir = dir
	opts.ValueDir = dir

	db, err := badger.Open(opts)
	if err == nil {
		return db, nil
	}
	if !strings.Contains(err.Error(), "LOCK") {
		return nil, err
	}

	db, retryErr := retryUnlock(dir, opts)
	if retryErr != nil {
		return nil, fmt.Errorf("database locked, retry failed: %w (original: %v)", retryErr, err)
	}
	return db, nil
}
