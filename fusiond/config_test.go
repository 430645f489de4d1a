package fusiond

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestValidate tests the validation of the daemon config.
func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(cfg *Config)
		err    string
	}{
		{
			name:   "defaults",
			modify: func(*Config) {},
		},
		{
			name: "simnet",
			modify: func(cfg *Config) {
				cfg.Network = "simnet"
				cfg.Relay = true
			},
		},
		{
			name: "relay without adapters",
			modify: func(cfg *Config) {
				cfg.Relay = true
			},
			err: "relay requires chain adapters",
		},
		{
			name: "log dir and fusion dir",
			modify: func(cfg *Config) {
				cfg.LogDir = "/tmp/fusion-logs"
			},
			err: "fusiondir overwrites logdir",
		},
		{
			name: "same chains",
			modify: func(cfg *Config) {
				cfg.Dst.ID = cfg.Src.ID
			},
			err: "both sepolia",
		},
		{
			name: "timeouts",
			modify: func(cfg *Config) {
				cfg.Dst.EscrowTimeout = cfg.Src.EscrowTimeout
			},
			err: "source escrow timeout must be longer",
		},
		{
			name: "chain kind",
			modify: func(cfg *Config) {
				cfg.Src.Kind = "utxo"
			},
			err: "invalid source chain",
		},
		{
			name: "permit encoding",
			modify: func(cfg *Config) {
				cfg.PermitEncoding = "rlp"
			},
			err: "rlp",
		},
		{
			name: "block interval",
			modify: func(cfg *Config) {
				cfg.Network = "simnet"
				cfg.Simnet.BlockInterval = -time.Second
			},
			err: "block interval must be positive",
		},
	}

	for _, test := range tests {
		test := test

		t.Run(test.name, func(t *testing.T) {
			dir := t.TempDir()

			cfg := DefaultConfig()
			cfg.FusionDir = dir
			test.modify(&cfg)

			err := Validate(&cfg)
			if test.err != "" {
				require.ErrorContains(t, err, test.err)
				return
			}
			require.NoError(t, err)

			dataDir := filepath.Join(dir, cfg.Network)
			require.Equal(t, dataDir, cfg.DataDir)
			require.Equal(
				t, filepath.Join(dir, defaultLogDirname,
					cfg.Network),
				cfg.LogDir,
			)
			require.Equal(
				t, filepath.Join(
					dataDir, defaultSqliteDatabaseFileName,
				),
				cfg.Sqlite.DatabaseFileName,
			)
			require.DirExists(t, cfg.DataDir)
			require.DirExists(t, cfg.LogDir)
		})
	}
}
