package permit

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/Anmol-Dhiman/stellar-fusionX/hashlock"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

// Scheme identifies the signature scheme of a permit key.
type Scheme uint8

const (
	// SchemeEd25519 is used by accounts on the smart-contract ledger.
	SchemeEd25519 Scheme = iota

	// SchemeSecp256k1 is used by accounts on the account-based chain.
	SchemeSecp256k1
)

// String returns the name of the scheme.
func (s Scheme) String() string {
	switch s {
	case SchemeEd25519:
		return "ed25519"

	case SchemeSecp256k1:
		return "secp256k1"

	default:
		return fmt.Sprintf("Scheme(%d)", s)
	}
}

// ParseScheme parses the textual name of a signature scheme.
func ParseScheme(s string) (Scheme, error) {
	switch s {
	case "", "ed25519":
		return SchemeEd25519, nil

	case "secp256k1":
		return SchemeSecp256k1, nil

	default:
		return 0, fmt.Errorf("unknown signature scheme: %v", s)
	}
}

// ErrInvalidKey is returned when key material cannot be parsed.
var ErrInvalidKey = errors.New("invalid key")

// PrivateKey is an owner key that can sign permit digests.
type PrivateKey interface {
	// Scheme returns the signature scheme of the key.
	Scheme() Scheme

	// PubKey returns the raw public key bytes used for on-chain
	// verification.
	PubKey() []byte

	// Sign produces a detached signature over the digest.
	Sign(digest hashlock.Hash) ([]byte, error)
}

// Signature is a detached permit signature together with the raw public key
// that has to be handed to the on-chain verifier.
type Signature struct {
	Scheme    Scheme
	PubKey    []byte
	Signature []byte
}

// SigHex returns the hex encoding of the signature bytes.
func (s *Signature) SigHex() string {
	return hex.EncodeToString(s.Signature)
}

// PubKeyHex returns the hex encoding of the public key bytes.
func (s *Signature) PubKeyHex() string {
	return hex.EncodeToString(s.PubKey)
}

// SignDigest signs the permit digest with the owner's key.
func SignDigest(key PrivateKey, digest hashlock.Hash) (*Signature, error) {
	sig, err := key.Sign(digest)
	if err != nil {
		return nil, err
	}

	return &Signature{
		Scheme:    key.Scheme(),
		PubKey:    key.PubKey(),
		Signature: sig,
	}, nil
}

// VerifyPermit checks a detached signature over a permit digest. Malformed
// keys or signatures never verify.
func VerifyPermit(scheme Scheme, pubKey []byte, digest hashlock.Hash,
	sig []byte) bool {

	switch scheme {
	case SchemeEd25519:
		if len(pubKey) != ed25519.PublicKeySize {
			return false
		}

		return ed25519.Verify(ed25519.PublicKey(pubKey), digest[:], sig)

	case SchemeSecp256k1:
		pub, err := btcec.ParsePubKey(pubKey)
		if err != nil {
			return false
		}

		parsed, err := ecdsa.ParseDERSignature(sig)
		if err != nil {
			return false
		}

		return parsed.Verify(digest[:], pub)

	default:
		return false
	}
}

// Ed25519Key is an owner key of the smart-contract ledger.
type Ed25519Key struct {
	key ed25519.PrivateKey
}

// NewEd25519Key creates a key from a 32 byte seed.
func NewEd25519Key(seed []byte) (*Ed25519Key, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: ed25519 seed must be %d bytes",
			ErrInvalidKey, ed25519.SeedSize)
	}

	return &Ed25519Key{key: ed25519.NewKeyFromSeed(seed)}, nil
}

// Scheme returns SchemeEd25519.
func (k *Ed25519Key) Scheme() Scheme {
	return SchemeEd25519
}

// PubKey returns the 32 byte raw public key.
func (k *Ed25519Key) PubKey() []byte {
	pub, _ := k.key.Public().(ed25519.PublicKey)

	return []byte(pub)
}

// Sign signs the raw digest bytes.
func (k *Ed25519Key) Sign(digest hashlock.Hash) ([]byte, error) {
	return ed25519.Sign(k.key, digest[:]), nil
}

// Secp256k1Key is an owner key of the account-based chain.
type Secp256k1Key struct {
	key *btcec.PrivateKey
}

// NewSecp256k1Key creates a key from its 32 byte scalar.
func NewSecp256k1Key(raw []byte) (*Secp256k1Key, error) {
	if len(raw) != btcec.PrivKeyBytesLen {
		return nil, fmt.Errorf("%w: secp256k1 key must be %d bytes",
			ErrInvalidKey, btcec.PrivKeyBytesLen)
	}

	priv, _ := btcec.PrivKeyFromBytes(raw)

	return &Secp256k1Key{key: priv}, nil
}

// Scheme returns SchemeSecp256k1.
func (k *Secp256k1Key) Scheme() Scheme {
	return SchemeSecp256k1
}

// PubKey returns the compressed public key.
func (k *Secp256k1Key) PubKey() []byte {
	return k.key.PubKey().SerializeCompressed()
}

// Sign returns a DER encoded ECDSA signature over the digest.
func (k *Secp256k1Key) Sign(digest hashlock.Hash) ([]byte, error) {
	return ecdsa.Sign(k.key, digest[:]).Serialize(), nil
}

// ParsePrivateKey parses a hex encoded private key of the given scheme.
func ParsePrivateKey(scheme Scheme, keyHex string) (PrivateKey, error) {
	raw, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	switch scheme {
	case SchemeEd25519:
		return NewEd25519Key(raw)

	case SchemeSecp256k1:
		return NewSecp256k1Key(raw)

	default:
		return nil, fmt.Errorf("unknown scheme %v", scheme)
	}
}
