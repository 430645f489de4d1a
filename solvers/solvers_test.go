package solvers

import (
	"context"
	"testing"
	"time"

	"github.com/Anmol-Dhiman/stellar-fusionX/fusiondb"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/require"
)

var testTime = time.Unix(1_700_000_000, 0).UTC()

// TestNormalizeWebhookURL tests webhook url validation.
func TestNormalizeWebhookURL(t *testing.T) {
	tests := []struct {
		raw      string
		expected string
		valid    bool
	}{
		{
			raw:      "https://Resolver.example/hooks/",
			expected: "https://resolver.example/hooks",
			valid:    true,
		},
		{
			raw:      " http://127.0.0.1:8080 ",
			expected: "http://127.0.0.1:8080",
			valid:    true,
		},
		{
			raw:      "https://resolver.example/?a=b#frag",
			expected: "https://resolver.example",
			valid:    true,
		},
		{
			raw: "ftp://resolver.example",
		},
		{
			raw: "resolver.example",
		},
		{
			raw: "https://",
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.raw, func(t *testing.T) {
			got, err := NormalizeWebhookURL(test.raw)
			if !test.valid {
				require.ErrorIs(t, err, ErrInvalidSolver)
				return
			}

			require.NoError(t, err)
			require.Equal(t, test.expected, got)
		})
	}
}

// TestRegistry runs the registry tests against the memory and the sql store.
func TestRegistry(t *testing.T) {
	stores := map[string]func(t *testing.T) Store{
		"mem": func(t *testing.T) Store {
			return NewMemStore()
		},
		"sql": func(t *testing.T) Store {
			return NewSQLStore(fusiondb.NewTestDB(t))
		},
	}

	for name, newStore := range stores {
		newStore := newStore
		t.Run(name, func(t *testing.T) {
			testRegistry(t, newStore(t))
		})
	}
}

func testRegistry(t *testing.T, store Store) {
	ctx := context.Background()
	testClock := clock.NewTestClock(testTime)
	registry := NewRegistry(store, testClock)

	solver, err := registry.Register(
		ctx, "resolver-1", "https://resolver-1.example/",
	)
	require.NoError(t, err)
	require.Equal(t, "https://resolver-1.example", solver.WebhookURL)
	require.True(t, testTime.Equal(solver.RegisteredAt))

	// Registering the same solver again is a no-op.
	_, err = registry.Register(
		ctx, "resolver-1", "https://resolver-1.example",
	)
	require.NoError(t, err)

	// A different webhook for the same wallet is rejected.
	_, err = registry.Register(
		ctx, "resolver-1", "https://other.example",
	)
	require.ErrorIs(t, err, ErrAlreadyRegistered)

	// The same webhook for another wallet is rejected.
	_, err = registry.Register(
		ctx, "resolver-2", "https://RESOLVER-1.example",
	)
	require.ErrorIs(t, err, ErrDuplicateWebhook)

	testClock.SetTime(testTime.Add(time.Minute))
	_, err = registry.Register(
		ctx, "resolver-2", "https://resolver-2.example",
	)
	require.NoError(t, err)

	all, err := registry.ListSolvers(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "resolver-1", all[0].WalletAddress)
	require.Equal(t, "resolver-2", all[1].WalletAddress)

	recipients, err := registry.Recipients(ctx)
	require.NoError(t, err)
	require.Len(t, recipients, 2)
	require.Equal(t, "https://resolver-2.example", recipients[1].URL)

	ok, err := registry.IsResolver(ctx, "resolver-2")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = registry.IsResolver(ctx, "stranger")
	require.NoError(t, err)
	require.False(t, ok)

	got, err := registry.GetByWallet(ctx, "resolver-1")
	require.NoError(t, err)
	require.Equal(t, "https://resolver-1.example", got.WebhookURL)

	require.NoError(t, registry.Remove(ctx, "resolver-1"))
	require.ErrorIs(t, registry.Remove(ctx, "resolver-1"), ErrSolverNotFound)

	_, err = registry.GetByWallet(ctx, "resolver-1")
	require.ErrorIs(t, err, ErrSolverNotFound)

	// Once removed, the webhook may be reused.
	_, err = registry.Register(
		ctx, "resolver-3", "https://resolver-1.example",
	)
	require.NoError(t, err)
}
