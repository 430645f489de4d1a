package fusiondb

import (
	"context"
	"database/sql"

	"github.com/Anmol-Dhiman/stellar-fusionX/fusiondb/sqlc"
)

// BaseDB is the base database struct that each implementation can embed to
// gain some common functionality.
type BaseDB struct {
	*sql.DB

	*sqlc.Queries
}

// BeginTx wraps the normal sql specific BeginTx method with the TxOptions
// interface. This interface is then mapped to the concrete sql tx options
// struct.
func (db *BaseDB) BeginTx(ctx context.Context,
	opts TxOptions) (*sql.Tx, error) {

	sqlOptions := sql.TxOptions{
		ReadOnly: opts.ReadOnly(),
	}
	return db.DB.BeginTx(ctx, &sqlOptions)
}

// ExecTx is a wrapper for txBody to abstract the creation and commit of a db
// transaction. The db transaction is embedded in a `*sqlc.Queries` that
// txBody needs to use when executing each one of the queries that need to be
// applied atomically. Errors are mapped with MapSQLError.
func (db *BaseDB) ExecTx(ctx context.Context, txOptions TxOptions,
	txBody func(*sqlc.Queries) error) error {

	// Create the db transaction.
	tx, err := db.BeginTx(ctx, txOptions)
	if err != nil {
		return MapSQLError(err)
	}

	// Rollback is safe to call even if the tx is already closed, so if
	// the tx commits successfully, this is a no-op.
	defer tx.Rollback() //nolint: errcheck

	if err := txBody(db.Queries.WithTx(tx)); err != nil {
		return MapSQLError(err)
	}

	// Commit transaction.
	if err = tx.Commit(); err != nil {
		return MapSQLError(err)
	}

	return nil
}

// TxOptions represents a set of options one can use to control what type of
// database transaction is created. Transaction can either be read or write.
type TxOptions interface {
	// ReadOnly returns true if the transaction should be read only.
	ReadOnly() bool
}

// SqlTxOptions defines the set of db txn options the stores understand.
type SqlTxOptions struct {
	// readOnly governs if a read only transaction is needed or not.
	readOnly bool
}

// NewSqlReadOpts returns a new SqlTxOptions instance that triggers a read
// transaction.
func NewSqlReadOpts() *SqlTxOptions {
	return &SqlTxOptions{
		readOnly: true,
	}
}

// NewSqlWriteOpts returns a new SqlTxOptions instance that triggers a write
// transaction.
func NewSqlWriteOpts() *SqlTxOptions {
	return &SqlTxOptions{
		readOnly: false,
	}
}

// ReadOnly returns true if the transaction should be read only.
//
// NOTE: This implements the TxOptions interface.
func (r *SqlTxOptions) ReadOnly() bool {
	return r.readOnly
}
