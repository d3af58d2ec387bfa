package wallet

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/utxochain/ledger/chainerr"
)

// DefaultDir is the wallet store's persistent location.
const DefaultDir = "./db/wallets"

// Store is a collection of wallets, persisted as one gob file per node
// identity (so a `startnode`/`minernode` process and the CLI operating on
// the same machine but a different port each keep their own wallets).
type Store struct {
	Wallets map[string]*Wallet

	path string
}

// Open loads an existing wallet store from dir/nodeID.data, or returns an
// empty, ready-to-use store if none exists yet — first run is not an error.
func Open(dir, nodeID string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrap(err, "wallet: create store directory")
	}

	s := &Store{
		Wallets: make(map[string]*Wallet),
		path:    filepath.Join(dir, fmt.Sprintf("%s.data", nodeID)),
	}

	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return s, nil
	}

	content, err := os.ReadFile(s.path)
	if err != nil {
		return nil, errors.Wrap(err, "wallet: read store file")
	}

	var loaded Store
	if err := gob.NewDecoder(bytes.NewReader(content)).Decode(&loaded); err != nil {
		return nil, errors.Wrap(err, "wallet: decode store file")
	}
	s.Wallets = loaded.Wallets
	return s, nil
}

// AddWallet generates a fresh keypair, stores it under its derived address,
// persists the store, and returns the new address.
func (s *Store) AddWallet() (string, error) {
	w, err := MakeWallet()
	if err != nil {
		return "", err
	}

	address := w.Address()
	s.Wallets[address] = w

	if err := s.Save(); err != nil {
		return "", err
	}
	return address, nil
}

// Addresses returns every address currently held by this store.
func (s *Store) Addresses() []string {
	addresses := make([]string, 0, len(s.Wallets))
	for address := range s.Wallets {
		addresses = append(addresses, address)
	}
	return addresses
}

// Get returns the wallet for address, or chainerr.ErrWalletMissing if none
// is stored under that address.
func (s *Store) Get(address string) (*Wallet, error) {
	w, ok := s.Wallets[address]
	if !ok {
		return nil, errors.Wrapf(chainerr.ErrWalletMissing, "address %s", address)
	}
	return w, nil
}

// Save serializes the entire store to its backing file.
func (s *Store) Save() error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s); err != nil {
		return errors.Wrap(err, "wallet: encode store")
	}
	if err := os.WriteFile(s.path, buf.Bytes(), 0o600); err != nil {
		return errors.Wrap(err, "wallet: write store file")
	}
	return nil
}
