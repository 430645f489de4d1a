package solvers

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Anmol-Dhiman/stellar-fusionX/fusiondb"
	"github.com/Anmol-Dhiman/stellar-fusionX/fusiondb/sqlc"
)

// BaseDB is the interface that contains all the queries for the solvers
// table.
type BaseDB interface {
	// GetSolver fetches a solver by wallet address.
	GetSolver(ctx context.Context, walletAddress string) (sqlc.Solver,
		error)

	// ListSolvers fetches all solvers.
	ListSolvers(ctx context.Context) ([]sqlc.Solver, error)

	// ExecTx allows for executing a function in the context of a database
	// transaction.
	ExecTx(ctx context.Context, txOptions fusiondb.TxOptions,
		txBody func(*sqlc.Queries) error) error
}

// SQLStore manages the solvers in the database.
type SQLStore struct {
	baseDb BaseDB
}

// NewSQLStore creates a new SQLStore.
func NewSQLStore(db BaseDB) *SQLStore {
	return &SQLStore{
		baseDb: db,
	}
}

// AddSolver stores a new solver.
func (s *SQLStore) AddSolver(ctx context.Context, solver *Solver) error {
	return s.baseDb.ExecTx(ctx, fusiondb.NewSqlWriteOpts(),
		func(q *sqlc.Queries) error {
			_, err := q.GetSolver(ctx, solver.WalletAddress)
			switch {
			case err == nil:
				return ErrAlreadyRegistered

			case !errors.Is(err, sql.ErrNoRows):
				return err
			}

			err = q.InsertSolver(ctx, sqlc.InsertSolverParams{
				WalletAddress: solver.WalletAddress,
				WebhookUrl:    solver.WebhookURL,
				RegisteredAt:  solver.RegisteredAt.UTC(),
			})
			if fusiondb.IsUniqueConstraintViolation(
				fusiondb.MapSQLError(err),
			) {

				return ErrDuplicateWebhook
			}

			return err
		})
}

// GetSolver returns the solver with the wallet address.
func (s *SQLStore) GetSolver(ctx context.Context,
	walletAddress string) (*Solver, error) {

	row, err := s.baseDb.GetSolver(ctx, walletAddress)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSolverNotFound
	}
	if err != nil {
		return nil, err
	}

	return solverFromRow(row), nil
}

// ListSolvers returns all solvers in registration order.
func (s *SQLStore) ListSolvers(ctx context.Context) ([]*Solver, error) {
	rows, err := s.baseDb.ListSolvers(ctx)
	if err != nil {
		return nil, err
	}

	all := make([]*Solver, 0, len(rows))
	for _, row := range rows {
		all = append(all, solverFromRow(row))
	}

	return all, nil
}

// RemoveSolver deletes the solver.
func (s *SQLStore) RemoveSolver(ctx context.Context,
	walletAddress string) error {

	return s.baseDb.ExecTx(ctx, fusiondb.NewSqlWriteOpts(),
		func(q *sqlc.Queries) error {
			n, err := q.DeleteSolver(ctx, walletAddress)
			if err != nil {
				return err
			}
			if n == 0 {
				return ErrSolverNotFound
			}

			return nil
		})
}

func solverFromRow(row sqlc.Solver) *Solver {
	return &Solver{
		WalletAddress: row.WalletAddress,
		WebhookURL:    row.WebhookUrl,
		RegisteredAt:  row.RegisteredAt.UTC(),
	}
}
