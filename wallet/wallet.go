package wallet

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"

	"github.com/pkg/errors"
	"golang.org/x/crypto/ripemd160"

	"github.com/utxochain/ledger/addr"
)

// Wallet holds an Ed25519 keypair. In blockchain, a wallet doesn't store
// coins - it stores keys to access them.
type Wallet struct {
	PrivateKey ed25519.PrivateKey
	PublicKey  ed25519.PublicKey
}

// Address derives this wallet's address from its public key:
// PublicKey → SHA256 → RIPEMD160 → Base58Check(version, hash).
func (w Wallet) Address() string {
	return addr.Encode(PublicKeyHash(w.PublicKey))
}

// ValidateAddress checks that address decodes and checksums correctly.
func ValidateAddress(address string) bool {
	return addr.Valid(address)
}

// NewKeyPair generates a fresh Ed25519 key pair.
func NewKeyPair() (ed25519.PrivateKey, ed25519.PublicKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, errors.Wrap(err, "wallet: generate keypair")
	}
	return priv, pub, nil
}

// MakeWallet creates a new wallet with a fresh key pair.
func MakeWallet() (*Wallet, error) {
	priv, pub, err := NewKeyPair()
	if err != nil {
		return nil, err
	}
	return &Wallet{PrivateKey: priv, PublicKey: pub}, nil
}

// PublicKeyHash creates the public key hash using Bitcoin's standard
// method: SHA256 followed by RIPEMD160 (often called "hash160").
func PublicKeyHash(pubKey []byte) []byte {
	pubHash := sha256.Sum256(pubKey)

	hasher := ripemd160.New()
	hasher.Write(pubHash[:]) //nolint:errcheck // ripemd160.Write never errors

	return hasher.Sum(nil)
}

// Checksum calculates a 4-byte checksum using double SHA256, delegated to
// the addr codec so the two packages agree on one definition.
func Checksum(payload []byte) []byte {
	return addr.Checksum(payload)
}
