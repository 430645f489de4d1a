package fusiond

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	fusionx "github.com/Anmol-Dhiman/stellar-fusionX"
	"github.com/Anmol-Dhiman/stellar-fusionX/auction"
	"github.com/Anmol-Dhiman/stellar-fusionX/chain"
	"github.com/Anmol-Dhiman/stellar-fusionX/fusiondb"
	"github.com/Anmol-Dhiman/stellar-fusionX/notifications"
	"github.com/Anmol-Dhiman/stellar-fusionX/order"
	"github.com/Anmol-Dhiman/stellar-fusionX/permit"
	"github.com/Anmol-Dhiman/stellar-fusionX/solvers"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

// Daemon is the fusion coordinator daemon. It owns the database, the order
// coordinator and the REST server.
type Daemon struct {
	cfg *Config

	db       *fusiondb.BaseDB
	clock    clock.Clock
	registry *solvers.Registry
	notifier *notifications.WebhookNotifier
	updates  *notifications.Manager
	manager  *order.Manager

	book    *auction.Book
	watcher *auction.Watcher

	ledgers []*chain.SimLedger

	metrics *prometheus.Registry
	server  *http.Server
}

// openDatabase opens the configured database backend and applies the
// migrations.
func openDatabase(cfg *Config) (*fusiondb.BaseDB, error) {
	switch cfg.DatabaseBackend {
	case DatabaseBackendSqlite:
		log.Infof("Opening sqlite3 database at: %v",
			cfg.Sqlite.DatabaseFileName)

		store, err := fusiondb.NewSqliteStore(cfg.Sqlite)
		if err != nil {
			return nil, err
		}

		return store.BaseDB, nil

	case DatabaseBackendPostgres:
		log.Infof("Opening postgres database at: %v",
			cfg.Postgres.DSN(true))

		store, err := fusiondb.NewPostgresStore(cfg.Postgres)
		if err != nil {
			return nil, err
		}

		return store.BaseDB, nil

	default:
		return nil, fmt.Errorf("unknown database backend: %s",
			cfg.DatabaseBackend)
	}
}

// New creates the daemon and all its subsystems.
func New(cfg *Config) (*Daemon, error) {
	db, err := openDatabase(cfg)
	if err != nil {
		return nil, err
	}

	d, err := newDaemon(cfg, db, clock.NewDefaultClock())
	if err != nil {
		_ = db.DB.Close()
		return nil, err
	}

	return d, nil
}

func newDaemon(cfg *Config, db *fusiondb.BaseDB,
	clk clock.Clock) (*Daemon, error) {

	encoding, err := permit.ParseEncoding(cfg.PermitEncoding)
	if err != nil {
		return nil, err
	}

	d := &Daemon{
		cfg:     cfg,
		db:      db,
		clock:   clk,
		updates: notifications.NewManager(),
		metrics: prometheus.NewRegistry(),
	}

	d.registry = solvers.NewRegistry(solvers.NewSQLStore(db), clk)

	d.notifier = notifications.NewWebhookNotifier(
		&notifications.WebhookConfig{
			RequestTimeout: cfg.Webhook.Timeout,
			MaxElapsedTime: cfg.Webhook.MaxElapsedTime,
			UserAgent:      fusionx.UserAgent(cfg.Network),
			Metrics:        notifications.NewMetrics(d.metrics),
		},
	)

	var chains chain.Adapters
	if cfg.Network == "simnet" {
		chains, err = d.simChains()
		if err != nil {
			return nil, err
		}
	}

	d.manager, err = order.NewManager(&order.Config{
		Store:                order.NewSQLStore(db),
		Chains:               chains,
		Solvers:              d.registry,
		Notifier:             d.notifier,
		Updates:              d.updates,
		Metrics:              order.NewMetrics(d.metrics),
		Clock:                clk,
		OrderTTL:             cfg.OrderTTL,
		DefaultConfDepth:     cfg.ConfDepth,
		PermitSpender:        cfg.PermitSpender,
		PermitEncoding:       encoding,
		BroadcastSecrets:     cfg.BroadcastSecrets,
		Relay:                cfg.Relay,
		TimeoutInterval:      cfg.TimeoutInterval,
		FinalityPollInterval: cfg.FinalityPollInterval,
	})
	if err != nil {
		return nil, err
	}

	if cfg.Auction.Enable {
		d.book = auction.NewBook(&auction.BookConfig{
			Duration:    cfg.Auction.Duration,
			StartBuffer: cfg.Auction.StartBuffer,
			PremiumBps:  cfg.Auction.PremiumBps,
			Clock:       clk,
		})
		d.watcher = auction.NewWatcher(d.book, d.manager)
	}

	return d, nil
}

// simChains creates simulated ledgers for the configured chains.
func (d *Daemon) simChains() (chain.Adapters, error) {
	var adapters []chain.Adapter
	for _, c := range []*chainConfig{d.cfg.Src, d.cfg.Dst} {
		params, err := c.params()
		if err != nil {
			return nil, err
		}

		ledger := chain.NewSimLedger(&chain.SimLedgerConfig{
			Params:    params,
			Clock:     d.clock,
			Resolvers: d.registry,
		})
		d.ledgers = append(d.ledgers, ledger)
		adapters = append(adapters, ledger)
	}

	return chain.NewAdapters(adapters...)
}

// Run starts all subsystems and blocks until the context is canceled or one
// of them fails.
func (d *Daemon) Run(ctx context.Context) error {
	defer func() {
		if err := d.db.DB.Close(); err != nil {
			log.Errorf("Error closing database: %v", err)
		}
	}()

	listener, err := net.Listen("tcp", d.cfg.RESTListen)
	if err != nil {
		return err
	}

	return d.serve(ctx, listener)
}

func (d *Daemon) serve(ctx context.Context, listener net.Listener) error {
	d.notifier.Start()
	defer d.notifier.Stop()

	group, ctx := errgroup.WithContext(ctx)

	// Subscribe before any order can be submitted.
	var created <-chan *notifications.OrderUpdate
	if d.book != nil {
		created = d.updates.SubscribeOrderUpdates(ctx)
	}

	group.Go(func() error {
		return d.manager.Run(ctx)
	})

	if d.book != nil {
		group.Go(func() error {
			return d.watcher.Run(ctx)
		})
		group.Go(func() error {
			d.startAuctions(ctx, created)
			return nil
		})
	}

	if len(d.ledgers) > 0 {
		group.Go(func() error {
			d.mineBlocks(ctx)
			return nil
		})
	}

	d.server = &http.Server{
		Handler:           newRESTServer(d).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	group.Go(func() error {
		log.Infof("REST server listening on %v", listener.Addr())

		err := d.server.Serve(listener)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return err
	})

	group.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(
			context.Background(), shutdownTimeout,
		)
		defer cancel()

		return d.server.Shutdown(shutdownCtx)
	})

	log.Infof("fusiond %v started", fusionx.Version())

	err := group.Wait()

	log.Infof("fusiond stopped")

	return err
}

// startAuctions opens an auction for every newly created order.
func (d *Daemon) startAuctions(ctx context.Context,
	updates <-chan *notifications.OrderUpdate) {

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return
			}

			if update.Status != string(order.Created) {
				continue
			}

			o, err := d.manager.GetOrder(ctx, update.OrderID)
			if err != nil {
				log.Errorf("Unable to load order %v: %v",
					update.OrderID, err)
				continue
			}

			_, err = d.book.StartAuction(ctx, o)
			if err != nil {
				log.Errorf("Unable to start auction for "+
					"order %v: %v", o.ID, err)
			}

		case <-ctx.Done():
			return
		}
	}
}

// mineBlocks advances the simulated chains.
func (d *Daemon) mineBlocks(ctx context.Context) {
	t := ticker.New(d.cfg.Simnet.BlockInterval)
	t.Resume()
	defer t.Stop()

	for {
		select {
		case <-t.Ticks():
			for _, ledger := range d.ledgers {
				ledger.Mine(1)
			}

		case <-ctx.Done():
			return
		}
	}
}
