package hashlock

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/lightningnetwork/lnd/lntypes"
)

// SecretSize is the size of secrets generated by NewSecret. Secrets supplied
// by makers may be of any length.
const SecretSize = 32

var (
	// ErrInvalidHashLength is returned when a hash lock does not decode to
	// exactly lntypes.HashSize bytes.
	ErrInvalidHashLength = errors.New("hash lock must be 32 bytes")

	// ErrEmptySecret is returned when an empty secret is parsed.
	ErrEmptySecret = errors.New("secret must not be empty")
)

// Hash is the 32 byte commitment that gates the release of escrowed funds.
type Hash = lntypes.Hash

// ZeroHash is the empty hash lock.
var ZeroHash Hash

// ComputeHashLock returns the sha256 commitment of the given secret. Any
// secret length is accepted.
func ComputeHashLock(secret []byte) Hash {
	return Hash(sha256.Sum256(secret))
}

// VerifySecret recomputes the commitment of secret and compares it to the
// expected hash lock in constant time. It never fails, a malformed secret
// simply does not verify.
func VerifySecret(secret []byte, expected Hash) bool {
	actual := ComputeHashLock(secret)

	return Equal(actual, expected)
}

// Equal compares two hash locks in constant time.
func Equal(a, b Hash) bool {
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}

// IsZero returns true if the hash lock is unset.
func IsZero(h Hash) bool {
	return Equal(h, ZeroHash)
}

// ParseHash decodes a hex encoded hash lock. Surrounding whitespace and an
// optional 0x prefix are ignored and the hex digits are case insensitive.
func ParseHash(s string) (Hash, error) {
	raw, err := decodeHex(s)
	if err != nil {
		return ZeroHash, err
	}

	if len(raw) != lntypes.HashSize {
		return ZeroHash, fmt.Errorf("%w: got %d bytes",
			ErrInvalidHashLength, len(raw))
	}

	var h Hash
	copy(h[:], raw)

	return h, nil
}

// ParseSecret decodes a secret submitted by a maker. Hex strings with a 0x
// prefix are decoded, everything else is taken as the raw utf-8 bytes of
// the secret.
func ParseSecret(s string) ([]byte, error) {
	if s == "" {
		return nil, ErrEmptySecret
	}

	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		return decodeHex(trimmed)
	}

	return []byte(s), nil
}

// NewSecret returns a fresh random secret together with its hash lock.
func NewSecret() ([]byte, Hash, error) {
	secret := make([]byte, SecretSize)
	if _, err := rand.Read(secret); err != nil {
		return nil, ZeroHash, err
	}

	return secret, ComputeHashLock(secret), nil
}

// decodeHex normalizes and decodes a hex string.
func decodeHex(s string) ([]byte, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "0x")

	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}

	return raw, nil
}
