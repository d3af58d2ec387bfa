// Package addr is the address-format codec: Base58Check encoding of a
// script-type payload whose body is the 20-byte pub-key-hash. It knows
// nothing about wallets, transactions, or the chain — only how to wrap and
// unwrap a hash into a human-typeable address string.
package addr

import (
	"bytes"
	"crypto/sha256"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
)

const (
	// version is the single script-type version byte this pedagogical
	// chain uses; real networks define several (mainnet, testnet, P2SH).
	version       = byte(0x00)
	checksumLen   = 4
	pubKeyHashLen = 20
)

// ErrInvalidAddress is returned by Decode when the checksum does not match
// or the decoded payload has the wrong length.
var ErrInvalidAddress = errors.New("addr: invalid address")

// Checksum returns the first 4 bytes of double-SHA256(payload).
func Checksum(payload []byte) []byte {
	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])
	return second[:checksumLen]
}

// Encode wraps a pub-key-hash into a Base58Check address string.
func Encode(pubKeyHash []byte) string {
	versioned := append([]byte{version}, pubKeyHash...)
	full := append(versioned, Checksum(versioned)...)
	return base58.Encode(full)
}

// Decode recovers the pub-key-hash from a Base58Check address string,
// validating its checksum.
func Decode(address string) ([]byte, error) {
	full, err := base58.Decode(address)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidAddress, err.Error())
	}
	if len(full) != 1+pubKeyHashLen+checksumLen {
		return nil, ErrInvalidAddress
	}

	versionByte := full[0]
	pubKeyHash := full[1 : len(full)-checksumLen]
	gotChecksum := full[len(full)-checksumLen:]

	wantChecksum := Checksum(append([]byte{versionByte}, pubKeyHash...))
	if !bytes.Equal(gotChecksum, wantChecksum) {
		return nil, ErrInvalidAddress
	}
	return pubKeyHash, nil
}

// Valid reports whether address decodes and checksums correctly.
func Valid(address string) bool {
	_, err := Decode(address)
	return err == nil
}
