// Package chainerr defines the sentinel error kinds shared across the
// chain store, transaction, wallet, and node packages so callers can
// switch on error identity rather than message text.
package chainerr

import "errors"

var (
	// ErrStoreMissing is returned by chainstore.Open when no chain has
	// been created yet at the given path.
	ErrStoreMissing = errors.New("chainstore: no blockchain found, create one first")

	// ErrAlreadyInitialized is returned by chainstore.Create when a
	// chain already exists at the given path.
	ErrAlreadyInitialized = errors.New("chainstore: blockchain already exists")

	// ErrNotFound is returned when a block or transaction lookup misses.
	ErrNotFound = errors.New("chainstore: not found")

	// ErrInvalidTransaction is returned when a transaction's input
	// signatures do not verify. A missing previous transaction is reported
	// as ErrMissingPrevTx instead; amounts are not validated.
	ErrInvalidTransaction = errors.New("tx: invalid transaction")

	// ErrMissingPrevTx is returned when a transaction input references a
	// previous transaction that cannot be located.
	ErrMissingPrevTx = errors.New("tx: referenced previous transaction not found")

	// ErrInsufficientFunds is returned by NewTransfer when the sender's
	// spendable outputs do not cover the requested amount.
	ErrInsufficientFunds = errors.New("tx: insufficient funds")

	// ErrWalletMissing is returned when an address has no corresponding
	// entry in the wallet store.
	ErrWalletMissing = errors.New("wallet: no wallet for address")

	// ErrPeerUnreachable is logged and absorbed by the node; it is
	// exported so tests can assert on it.
	ErrPeerUnreachable = errors.New("node: peer unreachable")
)

// InsufficientFunds carries the accumulated amount alongside the sentinel
// so callers can report exactly how short a transfer fell.
type InsufficientFunds struct {
	Accumulated int64
	Requested   int64
}

func (e *InsufficientFunds) Error() string {
	return ErrInsufficientFunds.Error()
}

func (e *InsufficientFunds) Unwrap() error {
	return ErrInsufficientFunds
}

// NotFound carries the identifier that could not be located.
type NotFound struct {
	ID string
}

func (e *NotFound) Error() string {
	return ErrNotFound.Error() + ": " + e.ID
}

func (e *NotFound) Unwrap() error {
	return ErrNotFound
}
