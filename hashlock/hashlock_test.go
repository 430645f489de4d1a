package hashlock

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestVerifySecretRoundTrip asserts that every secret verifies against its own
// hash lock and never against the hash lock of a different secret.
func TestVerifySecretRoundTrip(t *testing.T) {
	secrets := [][]byte{
		[]byte("swap-secret-42"),
		[]byte("wrong"),
		{},
		{0x00},
		[]byte(strings.Repeat("a", 1024)),
	}

	for i, s1 := range secrets {
		require.True(t, VerifySecret(s1, ComputeHashLock(s1)))

		for j, s2 := range secrets {
			if i == j {
				continue
			}

			require.False(
				t, VerifySecret(s1, ComputeHashLock(s2)),
				"secret %d verified against hash of %d", i, j,
			)
		}
	}
}

// TestComputeHashLockSha256 makes sure the commitment is plain sha256 so that
// hash locks created by maker tooling match.
func TestComputeHashLockSha256(t *testing.T) {
	secret := []byte("swap-secret-42")
	expected := sha256.Sum256(secret)

	got := ComputeHashLock(secret)
	require.Equal(t, expected[:], got[:])
}

func TestParseHash(t *testing.T) {
	digest := ComputeHashLock([]byte("swap-secret-42"))
	lower := hex.EncodeToString(digest[:])

	tests := []struct {
		name  string
		input string
		err   error
	}{
		{
			name:  "lower case",
			input: lower,
		},
		{
			name:  "upper case with prefix",
			input: "0x" + strings.ToUpper(lower),
		},
		{
			name:  "surrounding whitespace",
			input: "  " + lower + "\n",
		},
		{
			name:  "short",
			input: lower[:62],
			err:   ErrInvalidHashLength,
		},
		{
			name:  "long",
			input: lower + "00",
			err:   ErrInvalidHashLength,
		},
	}

	for _, test := range tests {
		test := test

		t.Run(test.name, func(t *testing.T) {
			h, err := ParseHash(test.input)
			if test.err != nil {
				require.ErrorIs(t, err, test.err)
				return
			}

			require.NoError(t, err)
			require.True(t, Equal(digest, h))
		})
	}

	_, err := ParseHash("zz")
	require.Error(t, err)
}

func TestParseSecret(t *testing.T) {
	secret, err := ParseSecret("swap-secret-42")
	require.NoError(t, err)
	require.Equal(t, []byte("swap-secret-42"), secret)

	secret, err = ParseSecret("0xDEADbeef")
	require.NoError(t, err)
	require.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, secret)

	_, err = ParseSecret("")
	require.ErrorIs(t, err, ErrEmptySecret)
}

func TestNewSecret(t *testing.T) {
	secret, hash, err := NewSecret()
	require.NoError(t, err)
	require.Len(t, secret, SecretSize)
	require.True(t, VerifySecret(secret, hash))
	require.False(t, IsZero(hash))
	require.True(t, IsZero(ZeroHash))
}
