// Package keys derives Pocket addresses from ed25519 keys.
package keys

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// AddressLen is the length in bytes of an address.
const AddressLen = 20

var ErrInvalidKey = errors.New("invalid key")

// AddressFromPublicKey returns the lowercase hex address of a hex encoded public key:
// the first 20 bytes of its sha256.
func AddressFromPublicKey(pubKeyHex string) (string, error) {
	pub, err := hex.DecodeString(strings.TrimPrefix(pubKeyHex, "0x"))
	if err != nil {
		return "", fmt.Errorf("%w: public key: %v", ErrInvalidKey, err)
	}
	sum := sha256.Sum256(pub)
	return hex.EncodeToString(sum[:AddressLen]), nil
}

// PublicKeyFromPrivateKey derives the hex public key of a hex private key. Only the
// first 32 bytes (the seed) are used, so both seeds and 64 byte expanded keys work.
func PublicKeyFromPrivateKey(privKeyHex string) (string, error) {
	priv, err := hex.DecodeString(strings.TrimPrefix(privKeyHex, "0x"))
	if err != nil {
		return "", fmt.Errorf("%w: private key: %v", ErrInvalidKey, err)
	}
	if len(priv) < ed25519.SeedSize {
		return "", fmt.Errorf("%w: private key has %d bytes, want at least %d", ErrInvalidKey, len(priv), ed25519.SeedSize)
	}
	pub := ed25519.NewKeyFromSeed(priv[:ed25519.SeedSize]).Public().(ed25519.PublicKey)
	return hex.EncodeToString(pub), nil
}

// ValidatePrivateKey reports whether privKeyHex controls address.
func ValidatePrivateKey(privKeyHex, address string) (bool, error) {
	pub, err := PublicKeyFromPrivateKey(privKeyHex)
	if err != nil {
		return false, err
	}
	derived, err := AddressFromPublicKey(pub)
	if err != nil {
		return false, err
	}
	return derived == address, nil
}
