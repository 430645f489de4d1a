package fusiondb

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/Anmol-Dhiman/stellar-fusionX/fusiondb/sqlc"
	"github.com/stretchr/testify/require"
)

// TestMigrationsAndUniqueViolation asserts the schema is in place after the
// store is opened and that constraint violations are mapped to the database
// agnostic error.
func TestMigrationsAndUniqueViolation(t *testing.T) {
	t.Logf("Running against %v", testDBType)

	db := NewTestDB(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0).UTC()

	err := db.ExecTx(ctx, NewSqlWriteOpts(), func(q *sqlc.Queries) error {
		return q.InsertSolver(ctx, sqlc.InsertSolverParams{
			WalletAddress: "resolver-1",
			WebhookUrl:    "https://resolver-1.example",
			RegisteredAt:  now,
		})
	})
	require.NoError(t, err)

	err = db.ExecTx(ctx, NewSqlWriteOpts(), func(q *sqlc.Queries) error {
		return q.InsertSolver(ctx, sqlc.InsertSolverParams{
			WalletAddress: "resolver-2",
			WebhookUrl:    "https://resolver-1.example",
			RegisteredAt:  now,
		})
	})
	require.True(t, IsUniqueConstraintViolation(err), "got %v", err)

	solvers, err := db.ListSolvers(ctx)
	require.NoError(t, err)
	require.Len(t, solvers, 1)
	require.Equal(t, "resolver-1", solvers[0].WalletAddress)
	require.True(t, now.Equal(solvers[0].RegisteredAt))
}

// TestExecTxRollback asserts that a failing transaction body leaves no trace.
func TestExecTxRollback(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()

	errAbort := errors.New("abort")
	err := db.ExecTx(ctx, NewSqlWriteOpts(), func(q *sqlc.Queries) error {
		err := q.InsertSolver(ctx, sqlc.InsertSolverParams{
			WalletAddress: "resolver-1",
			WebhookUrl:    "https://resolver-1.example",
			RegisteredAt:  time.Now().UTC(),
		})
		if err != nil {
			return err
		}

		return errAbort
	})
	require.ErrorIs(t, err, errAbort)

	_, err = db.GetSolver(ctx, "resolver-1")
	require.ErrorIs(t, err, sql.ErrNoRows)
}

// TestReplacerFS asserts the postgres schema rewrite.
func TestReplacerFS(t *testing.T) {
	fsys := newReplacerFS(sqlSchemas, postgresSchemaReplacements)

	f, err := fsys.Open("sqlc/migrations/000001_orders.up.sql")
	require.NoError(t, err)
	defer f.Close()

	buf := make([]byte, 1<<16)
	n, err := f.Read(buf)
	require.NoError(t, err)

	schema := string(buf[:n])
	require.Contains(t, schema, "secret_hash BYTEA NOT NULL")
	require.Contains(t, schema, "id SERIAL PRIMARY KEY")
	require.NotContains(t, schema, "BLOB")
}
