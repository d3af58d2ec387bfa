// Package utxoset is the secondary, persistent index of unspent
// transaction outputs, keyed by transaction id under the "utxo-" prefix of
// the chain's own BadgerDB.
package utxoset

import (
	"bytes"
	"encoding/gob"
	"encoding/hex"
	"log"

	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"

	"github.com/utxochain/ledger/block"
	"github.com/utxochain/ledger/chainstore"
	"github.com/utxochain/ledger/internal/nodelog"
	"github.com/utxochain/ledger/tx"
)

var utxoPrefix = []byte("utxo-")

// deleteBatchSize bounds how many keys each delete transaction in Reindex
// removes. All index keys are collected in memory first, then deleted in
// batches of this size.
const deleteBatchSize = 100000

// Set is the UTXO index layered over a chain's BadgerDB.
type Set struct {
	db    *badger.DB
	chain *chainstore.Chain
	log   *log.Logger
}

// Open returns a UTXO index sharing chain's database.
func Open(chain *chainstore.Chain) *Set {
	return &Set{db: chain.DB(), chain: chain, log: nodelog.Get(nodelog.UTXO)}
}

func key(txID string) ([]byte, error) {
	raw, err := hex.DecodeString(txID)
	if err != nil {
		return nil, errors.Wrap(err, "utxoset: decode transaction id")
	}
	return append(append([]byte{}, utxoPrefix...), raw...), nil
}

func serializeOutputs(outs []tx.TxOutput) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(outs); err != nil {
		return nil, errors.Wrap(err, "utxoset: serialize outputs")
	}
	return buf.Bytes(), nil
}

func deserializeOutputs(data []byte) ([]tx.TxOutput, error) {
	var outs []tx.TxOutput
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&outs); err != nil {
		return nil, errors.Wrap(err, "utxoset: deserialize outputs")
	}
	return outs, nil
}

// Reindex drops the entire index and rebuilds it with one full-chain pass.
func (s *Set) Reindex() error {
	if err := s.deleteAll(); err != nil {
		return err
	}

	utxo, err := s.chain.FindAllUTXO()
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		for txID, outs := range utxo {
			if len(outs) == 0 {
				continue
			}
			k, err := key(txID)
			if err != nil {
				return err
			}
			data, err := serializeOutputs(outs)
			if err != nil {
				return err
			}
			if err := txn.Set(k, data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Set) deleteAll() error {
	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(utxoPrefix); it.ValidForPrefix(utxoPrefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "utxoset: collect keys for deletion")
	}

	for start := 0; start < len(keys); start += deleteBatchSize {
		end := start + deleteBatchSize
		if end > len(keys) {
			end = len(keys)
		}
		batch := keys[start:end]
		err := s.db.Update(func(txn *badger.Txn) error {
			for _, k := range batch {
				if err := txn.Delete(k); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return errors.Wrap(err, "utxoset: delete batch")
		}
	}
	return nil
}

// Update applies a mined or received block's transactions to the index
// incrementally, without a full rescan.
func (s *Set) Update(b *block.Block) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for _, t := range b.Transactions {
			if !t.IsCoinbase() {
				for _, in := range t.Inputs {
					k, err := key(in.TxID)
					if err != nil {
						return err
					}
					item, err := txn.Get(k)
					if err != nil {
						if errors.Is(err, badger.ErrKeyNotFound) {
							continue
						}
						return err
					}
					data, err := item.ValueCopy(nil)
					if err != nil {
						return err
					}
					outs, err := deserializeOutputs(data)
					if err != nil {
						return err
					}

					var remaining []tx.TxOutput
					for idx, out := range outs {
						if int32(idx) != in.Vout {
							remaining = append(remaining, out)
						}
					}

					if len(remaining) == 0 {
						if err := txn.Delete(k); err != nil {
							return err
						}
					} else {
						data, err := serializeOutputs(remaining)
						if err != nil {
							return err
						}
						if err := txn.Set(k, data); err != nil {
							return err
						}
					}
				}
			}

			k, err := key(t.ID)
			if err != nil {
				return err
			}
			data, err := serializeOutputs(t.Outputs)
			if err != nil {
				return err
			}
			if err := txn.Set(k, data); err != nil {
				return err
			}
		}
		return nil
	})
}

// FindUTXO returns every output in the index locked with pubKeyHash.
func (s *Set) FindUTXO(pubKeyHash []byte) ([]tx.TxOutput, error) {
	var found []tx.TxOutput
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(utxoPrefix); it.ValidForPrefix(utxoPrefix); it.Next() {
			data, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			outs, err := deserializeOutputs(data)
			if err != nil {
				return err
			}
			for _, out := range outs {
				if out.LockedWith(pubKeyHash) {
					found = append(found, out)
				}
			}
		}
		return nil
	})
	return found, err
}

// FindSpendableOutputs accumulates outputs locked with pubKeyHash until
// amount is reached, returning the accumulated total and a map of
// transaction id to the selected output indices. It implements
// tx.SpendableSource.
func (s *Set) FindSpendableOutputs(pubKeyHash []byte, amount int32) (int32, map[string][]int32, error) {
	unspent := make(map[string][]int32)
	var accumulated int32

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

	Scan:
		for it.Seek(utxoPrefix); it.ValidForPrefix(utxoPrefix); it.Next() {
			k := bytes.TrimPrefix(it.Item().KeyCopy(nil), utxoPrefix)
			txID := hex.EncodeToString(k)

			data, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			outs, err := deserializeOutputs(data)
			if err != nil {
				return err
			}

			for idx, out := range outs {
				if accumulated >= amount {
					break Scan
				}
				if out.LockedWith(pubKeyHash) {
					accumulated += out.Value
					unspent[txID] = append(unspent[txID], int32(idx))
				}
			}
		}
		return nil
	})
	return accumulated, unspent, err
}

// CountTransactions returns the number of transactions with at least one
// unspent output currently indexed.
func (s *Set) CountTransactions() (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(utxoPrefix); it.ValidForPrefix(utxoPrefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}
