package test

import (
	"crypto/sha256"
	"errors"
	"os"
	"runtime/pprof"
	"testing"
	"time"

	"github.com/Anmol-Dhiman/stellar-fusionX/hashlock"
	"github.com/holiman/uint256"
)

var (
	// Timeout is the default timeout when tests wait for something to
	// happen.
	Timeout = time.Second * 5

	// ErrTimeout is returned on timeout.
	ErrTimeout = errors.New("test timeout")
)

// Secret deterministically derives a 32 byte secret and its hash lock from a
// seed.
func Secret(seed string) ([]byte, hashlock.Hash) {
	digest := sha256.Sum256([]byte(seed))
	secret := digest[:]

	return secret, hashlock.ComputeHashLock(secret)
}

// Amount parses a decimal amount and fails the test if it is malformed.
func Amount(t *testing.T, dec string) *uint256.Int {
	t.Helper()

	amt, err := uint256.FromDecimal(dec)
	if err != nil {
		t.Fatalf("invalid amount %v: %v", dec, err)
	}

	return amt
}

// DumpGoroutines dumps all currently running goroutines.
func DumpGoroutines() {
	_ = pprof.Lookup("goroutine").WriteTo(os.Stdout, 1)
}
