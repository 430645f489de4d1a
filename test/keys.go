package test

import (
	"crypto/ed25519"

	"github.com/btcsuite/btcd/btcec/v2"
)

// CreateKey returns a deterministically generated key pair.
func CreateKey(index int32) (*btcec.PrivateKey, *btcec.PublicKey) {
	// Avoid all zeros, because it results in an invalid key.
	privKey, pubKey := btcec.PrivKeyFromBytes([]byte{
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, byte(index + 1),
	})

	return privKey, pubKey
}

// CreateEd25519Seed returns a deterministic ed25519 seed.
func CreateEd25519Seed(index int32) []byte {
	seed := make([]byte, ed25519.SeedSize)
	seed[len(seed)-1] = byte(index + 1)

	return seed
}
