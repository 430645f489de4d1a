package fusiond

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Anmol-Dhiman/stellar-fusionX/chain"
	"github.com/Anmol-Dhiman/stellar-fusionX/fusiondb"
	"github.com/Anmol-Dhiman/stellar-fusionX/order"
	"github.com/Anmol-Dhiman/stellar-fusionX/permit"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/lightningnetwork/lnd/lncfg"
)

const (
	defaultConfigFilename = "fusiond.conf"

	// DatabaseBackendSqlite is the name of the sqlite backend.
	DatabaseBackendSqlite = "sqlite"

	// DatabaseBackendPostgres is the name of the postgres backend.
	DatabaseBackendPostgres = "postgres"

	defaultSqliteDatabaseFileName = "fusion.db"
)

var (
	// FusionDirBase is the default main directory where fusiond stores
	// its data.
	FusionDirBase = btcutil.AppDataDir("fusiond", false)

	defaultNetwork     = "testnet"
	defaultLogLevel    = "info"
	defaultLogDirname  = "logs"
	defaultLogFilename = "fusiond.log"
	defaultLogDir      = filepath.Join(FusionDirBase, defaultLogDirname)
	defaultConfigFile  = filepath.Join(
		FusionDirBase, defaultNetwork, defaultConfigFilename,
	)

	defaultMaxLogFiles    = 3
	defaultMaxLogFileSize = 10

	defaultSqliteDatabasePath = filepath.Join(
		FusionDirBase, defaultNetwork, defaultSqliteDatabaseFileName,
	)

	defaultSimBlockInterval = time.Second
)

type chainConfig struct {
	ID            string        `long:"id" description:"Chain identifier used in orders"`
	Kind          string        `long:"kind" description:"Ledger model of the chain" choice:"account" choice:"contract"`
	ConfDepth     uint32        `long:"confdepth" description:"Number of confirmations after which a deposit is final"`
	EscrowTimeout time.Duration `long:"escrowtimeout" description:"Default lifetime of escrows deployed on the chain"`
	SrcFactory    string        `long:"srcfactory" description:"Address of the source escrow factory"`
	DstFactory    string        `long:"dstfactory" description:"Address of the destination escrow factory"`
	RPCURL        string        `long:"rpcurl" description:"Endpoint of the chain node"`
}

// params converts the config group into chain parameters.
func (c *chainConfig) params() (*chain.Params, error) {
	kind, err := chain.ParseKind(c.Kind)
	if err != nil {
		return nil, err
	}

	p := &chain.Params{
		ID:            c.ID,
		Kind:          kind,
		ConfDepth:     c.ConfDepth,
		EscrowTimeout: c.EscrowTimeout,
		SrcFactory:    c.SrcFactory,
		DstFactory:    c.DstFactory,
		RPCURL:        c.RPCURL,
	}

	return p, p.Validate()
}

type webhookConfig struct {
	Timeout        time.Duration `long:"timeout" description:"Timeout of a single webhook request"`
	MaxElapsedTime time.Duration `long:"maxelapsedtime" description:"Time after which delivery to a resolver is given up"`
}

type auctionConfig struct {
	Enable      bool          `long:"enable" description:"Run a Dutch auction for every submitted order"`
	Duration    time.Duration `long:"duration" description:"Time the auction price decays over"`
	StartBuffer time.Duration `long:"startbuffer" description:"Delay before an auction accepts fills"`
	PremiumBps  uint64        `long:"premiumbps" description:"Premium over the destination amount an auction opens at, in basis points"`
}

type simnetConfig struct {
	BlockInterval time.Duration `long:"blockinterval" description:"Interval simulated chains mine a block at"`
}

type viewParameters struct{}

// Config is the configuration of the fusion daemon.
type Config struct {
	ShowVersion bool   `long:"version" description:"Display version information and exit"`
	Network     string `long:"network" description:"Network to run on" choice:"mainnet" choice:"testnet" choice:"simnet"`
	RESTListen  string `long:"restlisten" description:"Address to listen on for REST clients"`

	FusionDir      string `long:"fusiondir" description:"The directory for all of fusiond's data."`
	ConfigFile     string `long:"configfile" description:"Path to configuration file."`
	DataDir        string `long:"datadir" description:"Directory for the order database."`
	LogDir         string `long:"logdir" description:"Directory to log output."`
	MaxLogFiles    int    `long:"maxlogfiles" description:"Maximum logfiles to keep (0 for no rotation)"`
	MaxLogFileSize int    `long:"maxlogfilesize" description:"Maximum logfile size in MB"`

	DebugLevel string `long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`

	DatabaseBackend string                   `long:"databasebackend" description:"The database backend to use for storing all order related data." choice:"sqlite" choice:"postgres"`
	Sqlite          *fusiondb.SqliteConfig   `group:"sqlite" namespace:"sqlite"`
	Postgres        *fusiondb.PostgresConfig `group:"postgres" namespace:"postgres"`

	OrderTTL             time.Duration `long:"orderttl" description:"Time after which an order without escrows expires"`
	TimeoutInterval      time.Duration `long:"timeoutinterval" description:"Interval escrow timeouts and order expiry are checked at"`
	FinalityPollInterval time.Duration `long:"finalitypollinterval" description:"Interval destination confirmations are polled at"`
	ConfDepth            uint32        `long:"confdepth" description:"Confirmation depth for destination chains without a configured adapter"`
	PermitSpender        string        `long:"permitspender" description:"Spender address maker permits are verified for"`
	PermitEncoding       string        `long:"permitencoding" description:"Digest encoding of maker permits" choice:"legacy" choice:"tlv"`
	BroadcastSecrets     bool          `long:"broadcastsecrets" description:"Share revealed secrets with all registered resolvers"`
	Relay                bool          `long:"relay" description:"Submit escrow transactions through the chain adapters"`

	Src *chainConfig `group:"src" namespace:"src"`
	Dst *chainConfig `group:"dst" namespace:"dst"`

	Webhook *webhookConfig `group:"webhook" namespace:"webhook"`
	Auction *auctionConfig `group:"auction" namespace:"auction"`
	Simnet  *simnetConfig  `group:"simnet" namespace:"simnet"`

	View viewParameters `command:"view" alias:"v" description:"View all orders in the database. This command can only be executed when fusiond is not running."`
}

// DefaultConfig returns all default values for the Config struct.
func DefaultConfig() Config {
	return Config{
		Network:        defaultNetwork,
		RESTListen:     "localhost:8088",
		FusionDir:      FusionDirBase,
		ConfigFile:     defaultConfigFile,
		DataDir:        FusionDirBase,
		LogDir:         defaultLogDir,
		MaxLogFiles:    defaultMaxLogFiles,
		MaxLogFileSize: defaultMaxLogFileSize,
		DebugLevel:     defaultLogLevel,

		DatabaseBackend: DatabaseBackendSqlite,
		Sqlite: &fusiondb.SqliteConfig{
			DatabaseFileName: defaultSqliteDatabasePath,
		},
		Postgres: &fusiondb.PostgresConfig{},

		OrderTTL:             order.DefaultOrderTTL,
		TimeoutInterval:      order.DefaultTimeoutInterval,
		FinalityPollInterval: order.DefaultFinalityPollInterval,
		ConfDepth:            order.DefaultConfDepth,
		PermitEncoding:       permit.EncodingLegacy.String(),

		Src: &chainConfig{
			ID:            "sepolia",
			Kind:          chain.KindAccount.String(),
			ConfDepth:     12,
			EscrowTimeout: 2 * time.Hour,
		},
		Dst: &chainConfig{
			ID:            "stellar-testnet",
			Kind:          chain.KindContract.String(),
			ConfDepth:     order.DefaultConfDepth,
			EscrowTimeout: time.Hour,
		},

		Webhook: &webhookConfig{},
		Auction: &auctionConfig{},
		Simnet: &simnetConfig{
			BlockInterval: defaultSimBlockInterval,
		},
	}
}

// Validate cleans up paths in the config provided and validates it.
func Validate(cfg *Config) error {
	// Cleanup any paths before we use them.
	cfg.FusionDir = lncfg.CleanAndExpandPath(cfg.FusionDir)
	cfg.DataDir = lncfg.CleanAndExpandPath(cfg.DataDir)
	cfg.LogDir = lncfg.CleanAndExpandPath(cfg.LogDir)

	// Since our fusion directory overrides our log/data dir values, make
	// sure that they are not set when fusion dir is set. We fail hard here
	// rather than overwriting and potentially confusing the user.
	logDirSet := cfg.LogDir != defaultLogDir
	dataDirSet := cfg.DataDir != FusionDirBase
	fusionDirSet := cfg.FusionDir != FusionDirBase

	if fusionDirSet {
		if logDirSet {
			return fmt.Errorf("fusiondir overwrites logdir, please " +
				"only set one value")
		}

		if dataDirSet {
			return fmt.Errorf("fusiondir overwrites datadir, please " +
				"only set one value")
		}

		// Once we are satisfied that neither config value was set, we
		// replace them with our fusion dir.
		cfg.DataDir = cfg.FusionDir
		cfg.LogDir = filepath.Join(cfg.FusionDir, defaultLogDirname)
	}

	// Append the network type to the data and log directory so they are
	// "namespaced" per network.
	cfg.DataDir = filepath.Join(cfg.DataDir, cfg.Network)
	cfg.LogDir = filepath.Join(cfg.LogDir, cfg.Network)

	// If the user didn't pick a database file, we place it in the data
	// directory of the network.
	if cfg.Sqlite.DatabaseFileName == defaultSqliteDatabasePath {
		cfg.Sqlite.DatabaseFileName = filepath.Join(
			cfg.DataDir, defaultSqliteDatabaseFileName,
		)
	}
	cfg.Sqlite.DatabaseFileName = lncfg.CleanAndExpandPath(
		cfg.Sqlite.DatabaseFileName,
	)

	if _, err := permit.ParseEncoding(cfg.PermitEncoding); err != nil {
		return err
	}

	src, err := cfg.Src.params()
	if err != nil {
		return fmt.Errorf("invalid source chain: %w", err)
	}
	dst, err := cfg.Dst.params()
	if err != nil {
		return fmt.Errorf("invalid destination chain: %w", err)
	}
	if src.ID == dst.ID {
		return fmt.Errorf("source and destination chain are both %v",
			src.ID)
	}

	if cfg.Src.EscrowTimeout <= cfg.Dst.EscrowTimeout {
		return errors.New("source escrow timeout must be longer than " +
			"destination escrow timeout")
	}

	switch {
	case cfg.Network == "simnet" && cfg.Simnet.BlockInterval <= 0:
		return errors.New("simnet block interval must be positive")

	// Chain adapters are only available for the simulated chains.
	case cfg.Network != "simnet" && cfg.Relay:
		return errors.New("relay requires chain adapters, which are " +
			"only available on simnet")
	}

	// If either of these directories do not exist, create them.
	if err := os.MkdirAll(cfg.DataDir, os.ModePerm); err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.LogDir, os.ModePerm); err != nil {
		return err
	}

	return nil
}
