package sqlc

import (
	"context"
	"time"
)

const orderColumns = `id, maker, source_chain, destination_chain, source_token,
    destination_token, source_amount, destination_amount, signature,
    signature_scheme, maker_pubkey, secret_hash, order_timestamp, status,
    resolver, price, secret, secret_shared_to_resolver,
    secret_shared_to_network, finality_depth, created_at, updated_at,
    expires_at, version, receiver`

const insertOrder = `-- name: InsertOrder :exec
INSERT INTO orders (
    ` + orderColumns + `
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
    $17, $18, $19, $20, $21, $22, $23, $24, $25
)
`

type InsertOrderParams struct {
	ID                     string
	Maker                  string
	SourceChain            string
	DestinationChain       string
	SourceToken            string
	DestinationToken       string
	SourceAmount           string
	DestinationAmount      string
	Signature              string
	SignatureScheme        string
	MakerPubkey            []byte
	SecretHash             []byte
	OrderTimestamp         time.Time
	Status                 string
	Resolver               string
	Price                  string
	Secret                 []byte
	SecretSharedToResolver bool
	SecretSharedToNetwork  bool
	FinalityDepth          int32
	CreatedAt              time.Time
	UpdatedAt              time.Time
	ExpiresAt              time.Time
	Version                int64
	Receiver               string
}

func (q *Queries) InsertOrder(ctx context.Context,
	arg InsertOrderParams) error {

	_, err := q.db.ExecContext(ctx, insertOrder,
		arg.ID,
		arg.Maker,
		arg.SourceChain,
		arg.DestinationChain,
		arg.SourceToken,
		arg.DestinationToken,
		arg.SourceAmount,
		arg.DestinationAmount,
		arg.Signature,
		arg.SignatureScheme,
		arg.MakerPubkey,
		arg.SecretHash,
		arg.OrderTimestamp,
		arg.Status,
		arg.Resolver,
		arg.Price,
		arg.Secret,
		arg.SecretSharedToResolver,
		arg.SecretSharedToNetwork,
		arg.FinalityDepth,
		arg.CreatedAt,
		arg.UpdatedAt,
		arg.ExpiresAt,
		arg.Version,
		arg.Receiver,
	)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (Order, error) {
	var i Order
	err := row.Scan(
		&i.ID,
		&i.Maker,
		&i.SourceChain,
		&i.DestinationChain,
		&i.SourceToken,
		&i.DestinationToken,
		&i.SourceAmount,
		&i.DestinationAmount,
		&i.Signature,
		&i.SignatureScheme,
		&i.MakerPubkey,
		&i.SecretHash,
		&i.OrderTimestamp,
		&i.Status,
		&i.Resolver,
		&i.Price,
		&i.Secret,
		&i.SecretSharedToResolver,
		&i.SecretSharedToNetwork,
		&i.FinalityDepth,
		&i.CreatedAt,
		&i.UpdatedAt,
		&i.ExpiresAt,
		&i.Version,
		&i.Receiver,
	)
	return i, err
}

const getOrder = `-- name: GetOrder :one
SELECT ` + orderColumns + ` FROM orders WHERE id = $1
`

func (q *Queries) GetOrder(ctx context.Context, id string) (Order, error) {
	row := q.db.QueryRowContext(ctx, getOrder, id)
	return scanOrder(row)
}

const getOrderBySecretHash = `-- name: GetOrderBySecretHash :one
SELECT ` + orderColumns + ` FROM orders WHERE secret_hash = $1
`

func (q *Queries) GetOrderBySecretHash(ctx context.Context,
	secretHash []byte) (Order, error) {

	row := q.db.QueryRowContext(ctx, getOrderBySecretHash, secretHash)
	return scanOrder(row)
}

const listOrders = `-- name: ListOrders :many
SELECT ` + orderColumns + ` FROM orders ORDER BY created_at, id
`

func (q *Queries) ListOrders(ctx context.Context) ([]Order, error) {
	return q.queryOrders(ctx, listOrders)
}

const listOrdersByStatus = `-- name: ListOrdersByStatus :many
SELECT ` + orderColumns + ` FROM orders WHERE status = $1
ORDER BY created_at, id
`

func (q *Queries) ListOrdersByStatus(ctx context.Context,
	status string) ([]Order, error) {

	return q.queryOrders(ctx, listOrdersByStatus, status)
}

func (q *Queries) queryOrders(ctx context.Context, query string,
	args ...interface{}) ([]Order, error) {

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Order
	for rows.Next() {
		i, err := scanOrder(rows)
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

const updateOrder = `-- name: UpdateOrder :execrows
UPDATE orders SET
    status = $2,
    resolver = $3,
    price = $4,
    secret = $5,
    secret_shared_to_resolver = $6,
    secret_shared_to_network = $7,
    finality_depth = $8,
    updated_at = $9,
    version = version + 1
WHERE id = $1 AND version = $10
`

type UpdateOrderParams struct {
	ID                     string
	Status                 string
	Resolver               string
	Price                  string
	Secret                 []byte
	SecretSharedToResolver bool
	SecretSharedToNetwork  bool
	FinalityDepth          int32
	UpdatedAt              time.Time
	Version                int64
}

// UpdateOrder returns the number of updated rows, which is zero if the
// stored version differs from arg.Version.
func (q *Queries) UpdateOrder(ctx context.Context,
	arg UpdateOrderParams) (int64, error) {

	result, err := q.db.ExecContext(ctx, updateOrder,
		arg.ID,
		arg.Status,
		arg.Resolver,
		arg.Price,
		arg.Secret,
		arg.SecretSharedToResolver,
		arg.SecretSharedToNetwork,
		arg.FinalityDepth,
		arg.UpdatedAt,
		arg.Version,
	)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

const insertOrderUpdate = `-- name: InsertOrderUpdate :exec
INSERT INTO order_updates (
    order_id, update_timestamp, previous_status, status, event
) VALUES (
    $1, $2, $3, $4, $5
)
`

type InsertOrderUpdateParams struct {
	OrderID         string
	UpdateTimestamp time.Time
	PreviousStatus  string
	Status          string
	Event           string
}

func (q *Queries) InsertOrderUpdate(ctx context.Context,
	arg InsertOrderUpdateParams) error {

	_, err := q.db.ExecContext(ctx, insertOrderUpdate,
		arg.OrderID,
		arg.UpdateTimestamp,
		arg.PreviousStatus,
		arg.Status,
		arg.Event,
	)
	return err
}

const getOrderUpdates = `-- name: GetOrderUpdates :many
SELECT id, order_id, update_timestamp, previous_status, status, event
FROM order_updates WHERE order_id = $1 ORDER BY id
`

func (q *Queries) GetOrderUpdates(ctx context.Context,
	orderID string) ([]OrderUpdate, error) {

	rows, err := q.db.QueryContext(ctx, getOrderUpdates, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []OrderUpdate
	for rows.Next() {
		var i OrderUpdate
		if err := rows.Scan(
			&i.ID,
			&i.OrderID,
			&i.UpdateTimestamp,
			&i.PreviousStatus,
			&i.Status,
			&i.Event,
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
