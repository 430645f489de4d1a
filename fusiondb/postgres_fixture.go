package fusiondb

import (
	"context"
	"database/sql"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

const (
	testPgUser   = "fusion"
	testPgPass   = "fusion"
	testPgDBName = "fusion"
)

// TestPgFixture runs an embedded Postgres 15 server for the lifetime of a
// test.
type TestPgFixture struct {
	db          *sql.DB
	pg          *embeddedpostgres.EmbeddedPostgres
	host        string
	port        int
	expiryTimer *time.Timer
	stopOnce    sync.Once
}

// NewTestPgFixture starts an embedded Postgres server. The server is stopped
// after expiry if TearDown was not called before.
func NewTestPgFixture(t *testing.T, expiry time.Duration) *TestPgFixture {
	port := getFreePort(t)
	runtimePath := t.TempDir()
	logDir := filepath.Join(runtimePath, "logs")
	require.NoError(t, os.MkdirAll(logDir, 0o755))

	config := embeddedpostgres.DefaultConfig().
		Version(embeddedpostgres.V15).
		Database(testPgDBName).
		Username(testPgUser).
		Password(testPgPass).
		Port(uint32(port)).
		RuntimePath(runtimePath).
		StartParameters(map[string]string{
			"listen_addresses":  "127.0.0.1",
			"log_destination":   "stderr",
			"logging_collector": "on",
			"log_directory":     logDir,
			"log_filename":      "postgres.log",
		})

	pg := embeddedpostgres.NewDatabase(config)
	require.NoError(t, pg.Start(), "could not start embedded postgres")

	fixture := &TestPgFixture{
		host: "127.0.0.1",
		port: port,
		pg:   pg,
	}

	if expiry > 0 {
		fixture.expiryTimer = time.AfterFunc(expiry, func() {
			log.Warnf("Postgres fixture exceeded lifetime of %v", expiry)
			fixture.TearDown(t)
		})
	}

	dsn := fixture.GetConfig().DSN(false)
	log.Infof("Connecting to postgres fixture %v",
		fixture.GetConfig().DSN(true))

	testDB, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	require.NoError(t, testDB.Ping(), "postgres fixture unreachable")
	fixture.db = testDB

	return fixture
}

// GetConfig returns the config to connect to the fixture.
func (f *TestPgFixture) GetConfig() *PostgresConfig {
	return &PostgresConfig{
		Host:     f.host,
		Port:     f.port,
		User:     testPgUser,
		Password: testPgPass,
		DBName:   testPgDBName,
	}
}

// ResetDB drops every table of the fixture.
func (f *TestPgFixture) ResetDB(t *testing.T) {
	_, err := f.db.ExecContext(
		context.Background(),
		`DROP SCHEMA IF EXISTS public CASCADE;
		 CREATE SCHEMA public;`,
	)
	require.NoError(t, err)
}

// TearDown stops the embedded server.
func (f *TestPgFixture) TearDown(t *testing.T) {
	if f.expiryTimer != nil {
		f.expiryTimer.Stop()
	}

	f.stopOnce.Do(func() {
		if f.db != nil {
			require.NoError(t, f.db.Close())
		}

		if f.pg != nil {
			require.NoError(t, f.pg.Stop())
		}

		f.db = nil
		f.pg = nil
	})
}

// getFreePort returns an available TCP port on localhost.
func getFreePort(t *testing.T) int {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	defer func() {
		require.NoError(t, listener.Close())
	}()

	return listener.Addr().(*net.TCPAddr).Port
}
