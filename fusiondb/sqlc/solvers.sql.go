package sqlc

import (
	"context"
	"time"
)

const insertSolver = `-- name: InsertSolver :exec
INSERT INTO solvers (
    wallet_address, webhook_url, registered_at
) VALUES (
    $1, $2, $3
)
`

type InsertSolverParams struct {
	WalletAddress string
	WebhookUrl    string
	RegisteredAt  time.Time
}

func (q *Queries) InsertSolver(ctx context.Context,
	arg InsertSolverParams) error {

	_, err := q.db.ExecContext(ctx, insertSolver,
		arg.WalletAddress,
		arg.WebhookUrl,
		arg.RegisteredAt,
	)
	return err
}

const getSolver = `-- name: GetSolver :one
SELECT wallet_address, webhook_url, registered_at FROM solvers
WHERE wallet_address = $1
`

func (q *Queries) GetSolver(ctx context.Context,
	walletAddress string) (Solver, error) {

	row := q.db.QueryRowContext(ctx, getSolver, walletAddress)

	var i Solver
	err := row.Scan(&i.WalletAddress, &i.WebhookUrl, &i.RegisteredAt)
	return i, err
}

const listSolvers = `-- name: ListSolvers :many
SELECT wallet_address, webhook_url, registered_at FROM solvers
ORDER BY registered_at, wallet_address
`

func (q *Queries) ListSolvers(ctx context.Context) ([]Solver, error) {
	rows, err := q.db.QueryContext(ctx, listSolvers)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Solver
	for rows.Next() {
		var i Solver
		if err := rows.Scan(
			&i.WalletAddress, &i.WebhookUrl, &i.RegisteredAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

const deleteSolver = `-- name: DeleteSolver :execrows
DELETE FROM solvers WHERE wallet_address = $1
`

func (q *Queries) DeleteSolver(ctx context.Context,
	walletAddress string) (int64, error) {

	result, err := q.db.ExecContext(ctx, deleteSolver, walletAddress)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}
