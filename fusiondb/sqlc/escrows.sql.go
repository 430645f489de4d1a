package sqlc

import (
	"context"
	"time"
)

const escrowColumns = `id, order_id, side, chain, address, token, amount,
    hash_lock, timeout_at, caller, beneficiary, depositor, state,
    funded_amount, secret, closed_by, deployed_at, updated_at`

const upsertEscrow = `-- name: UpsertEscrow :exec
INSERT INTO escrows (
    ` + escrowColumns + `
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
    $17, $18
)
ON CONFLICT (id) DO UPDATE SET
    state = excluded.state,
    funded_amount = excluded.funded_amount,
    secret = excluded.secret,
    closed_by = excluded.closed_by,
    updated_at = excluded.updated_at
`

type UpsertEscrowParams struct {
	ID           string
	OrderID      string
	Side         int32
	Chain        string
	Address      string
	Token        string
	Amount       string
	HashLock     []byte
	TimeoutAt    time.Time
	Caller       string
	Beneficiary  string
	Depositor    string
	State        string
	FundedAmount string
	Secret       []byte
	ClosedBy     string
	DeployedAt   time.Time
	UpdatedAt    time.Time
}

// UpsertEscrow inserts the escrow or updates its mutable columns.
func (q *Queries) UpsertEscrow(ctx context.Context,
	arg UpsertEscrowParams) error {

	_, err := q.db.ExecContext(ctx, upsertEscrow,
		arg.ID,
		arg.OrderID,
		arg.Side,
		arg.Chain,
		arg.Address,
		arg.Token,
		arg.Amount,
		arg.HashLock,
		arg.TimeoutAt,
		arg.Caller,
		arg.Beneficiary,
		arg.Depositor,
		arg.State,
		arg.FundedAmount,
		arg.Secret,
		arg.ClosedBy,
		arg.DeployedAt,
		arg.UpdatedAt,
	)
	return err
}

func scanEscrow(row rowScanner) (Escrow, error) {
	var i Escrow
	err := row.Scan(
		&i.ID,
		&i.OrderID,
		&i.Side,
		&i.Chain,
		&i.Address,
		&i.Token,
		&i.Amount,
		&i.HashLock,
		&i.TimeoutAt,
		&i.Caller,
		&i.Beneficiary,
		&i.Depositor,
		&i.State,
		&i.FundedAmount,
		&i.Secret,
		&i.ClosedBy,
		&i.DeployedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getOrderEscrows = `-- name: GetOrderEscrows :many
SELECT ` + escrowColumns + ` FROM escrows WHERE order_id = $1 ORDER BY side
`

func (q *Queries) GetOrderEscrows(ctx context.Context,
	orderID string) ([]Escrow, error) {

	rows, err := q.db.QueryContext(ctx, getOrderEscrows, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Escrow
	for rows.Next() {
		i, err := scanEscrow(rows)
		if err != nil {
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

const getEscrowByAddress = `-- name: GetEscrowByAddress :one
SELECT ` + escrowColumns + ` FROM escrows WHERE chain = $1 AND address = $2
`

type GetEscrowByAddressParams struct {
	Chain   string
	Address string
}

func (q *Queries) GetEscrowByAddress(ctx context.Context,
	arg GetEscrowByAddressParams) (Escrow, error) {

	row := q.db.QueryRowContext(
		ctx, getEscrowByAddress, arg.Chain, arg.Address,
	)
	return scanEscrow(row)
}
