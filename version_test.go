package fusionx

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestUserAgent checks the webhook User-Agent layout.
func TestUserAgent(t *testing.T) {
	oldCommit := Commit
	defer func() { Commit = oldCommit }()

	Commit = ""
	require.Equal(t, "fusiond/v0.3.0-alpha", UserAgent(""))
	require.Equal(
		t, "fusiond/v0.3.0-alpha network=simnet", UserAgent(" simnet "),
	)

	Commit = "abc123"
	require.Equal(
		t, "fusiond/v0.3.0-alpha commit=abc123 network=mainnet",
		UserAgent("main net!"),
	)

	agent := UserAgent(strings.Repeat("x", 100))
	require.True(t, strings.HasSuffix(
		agent, " network="+strings.Repeat("x", maxNetworkLen),
	))
}

// TestVersion checks the version string carries the build commit.
func TestVersion(t *testing.T) {
	oldCommit := Commit
	defer func() { Commit = oldCommit }()

	Commit = "deadbeef"
	require.Equal(t, "0.3.0-alpha commit=deadbeef", Version())
}
