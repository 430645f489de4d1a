package order

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/Anmol-Dhiman/stellar-fusionX/escrow"
	"github.com/Anmol-Dhiman/stellar-fusionX/fsm"
	"github.com/Anmol-Dhiman/stellar-fusionX/fusiondb"
	"github.com/Anmol-Dhiman/stellar-fusionX/fusiondb/sqlc"
	"github.com/Anmol-Dhiman/stellar-fusionX/permit"
	"github.com/holiman/uint256"
)

// BaseDB is the interface that contains all the queries for the orders,
// escrows and order_updates tables.
type BaseDB interface {
	// GetOrder fetches an order by id.
	GetOrder(ctx context.Context, id string) (sqlc.Order, error)

	// GetOrderEscrows fetches the escrows of an order.
	GetOrderEscrows(ctx context.Context, orderID string) ([]sqlc.Escrow,
		error)

	// ListOrders fetches all orders.
	ListOrders(ctx context.Context) ([]sqlc.Order, error)

	// ListOrdersByStatus fetches the orders in the status.
	ListOrdersByStatus(ctx context.Context, status string) ([]sqlc.Order,
		error)

	// GetOrderUpdates fetches the status history of an order.
	GetOrderUpdates(ctx context.Context, orderID string) (
		[]sqlc.OrderUpdate, error)

	// ExecTx allows for executing a function in the context of a database
	// transaction.
	ExecTx(ctx context.Context, txOptions fusiondb.TxOptions,
		txBody func(*sqlc.Queries) error) error
}

// SQLStore manages the orders in the database.
type SQLStore struct {
	baseDb BaseDB
}

// NewSQLStore creates a new SQLStore.
func NewSQLStore(db BaseDB) *SQLStore {
	return &SQLStore{
		baseDb: db,
	}
}

// CreateOrder stores a new order together with its first updates.
func (s *SQLStore) CreateOrder(ctx context.Context, o *Order,
	updates []*Update) error {

	return s.baseDb.ExecTx(ctx, fusiondb.NewSqlWriteOpts(),
		func(q *sqlc.Queries) error {
			_, err := q.GetOrderBySecretHash(ctx, o.HashLock[:])
			switch {
			case err == nil:
				return ErrDuplicateHashLock

			case !errors.Is(err, sql.ErrNoRows):
				return err
			}

			err = q.InsertOrder(ctx, insertOrderParams(o))
			if fusiondb.IsUniqueConstraintViolation(
				fusiondb.MapSQLError(err),
			) {

				return ErrDuplicateHashLock
			}
			if err != nil {
				return err
			}

			return insertUpdates(ctx, q, o.ID, updates)
		})
}

// GetOrder returns the order with its escrow references set.
func (s *SQLStore) GetOrder(ctx context.Context, id string) (*Order, error) {
	var o *Order
	err := s.baseDb.ExecTx(ctx, fusiondb.NewSqlReadOpts(),
		func(q *sqlc.Queries) error {
			row, err := q.GetOrder(ctx, id)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: %v", ErrOrderNotFound, id)
			}
			if err != nil {
				return err
			}

			o, err = orderFromRow(row)
			if err != nil {
				return err
			}

			escrowRows, err := q.GetOrderEscrows(ctx, id)
			if err != nil {
				return err
			}

			escrows, err := escrowsFromRows(escrowRows)
			if err != nil {
				return err
			}
			o.setEscrowRefs(escrows)

			return nil
		})
	if err != nil {
		return nil, err
	}

	return o, nil
}

// GetEscrows returns the escrows of the order ordered by side.
func (s *SQLStore) GetEscrows(ctx context.Context,
	orderID string) ([]*escrow.Escrow, error) {

	rows, err := s.baseDb.GetOrderEscrows(ctx, orderID)
	if err != nil {
		return nil, err
	}

	return escrowsFromRows(rows)
}

// ListOrders returns all orders in creation order.
func (s *SQLStore) ListOrders(ctx context.Context) ([]*Order, error) {
	rows, err := s.baseDb.ListOrders(ctx)
	if err != nil {
		return nil, err
	}

	return s.ordersFromRows(ctx, rows)
}

// ListOrdersByStatus returns the orders in the status.
func (s *SQLStore) ListOrdersByStatus(ctx context.Context,
	status fsm.StateType) ([]*Order, error) {

	rows, err := s.baseDb.ListOrdersByStatus(ctx, string(status))
	if err != nil {
		return nil, err
	}

	return s.ordersFromRows(ctx, rows)
}

// UpdateOrder stores the mutable fields of the order, its escrows and the
// updates, guarded by the version the order was read at. On success the
// version of the order is bumped.
func (s *SQLStore) UpdateOrder(ctx context.Context, o *Order,
	escrows []*escrow.Escrow, updates []*Update) error {

	err := s.baseDb.ExecTx(ctx, fusiondb.NewSqlWriteOpts(),
		func(q *sqlc.Queries) error {
			n, err := q.UpdateOrder(ctx, sqlc.UpdateOrderParams{
				ID:                     o.ID,
				Status:                 string(o.Status),
				Resolver:               o.Resolver,
				Price:                  decString(o.Price),
				Secret:                 o.Secret,
				SecretSharedToResolver: o.SecretSharedToResolver,
				SecretSharedToNetwork:  o.SecretSharedToNetwork,
				FinalityDepth:          int32(o.FinalityDepth),
				UpdatedAt:              o.UpdatedAt.UTC(),
				Version:                o.Version,
			})
			if err != nil {
				return err
			}
			if n == 0 {
				return fmt.Errorf("%w: order %v at version %d",
					ErrVersionConflict, o.ID, o.Version)
			}

			for _, e := range escrows {
				err := q.UpsertEscrow(ctx, upsertEscrowParams(e))
				if err != nil {
					return err
				}
			}

			return insertUpdates(ctx, q, o.ID, updates)
		})
	if err != nil {
		return err
	}

	o.Version++

	return nil
}

// GetOrderUpdates returns the status history of the order.
func (s *SQLStore) GetOrderUpdates(ctx context.Context,
	id string) ([]*Update, error) {

	rows, err := s.baseDb.GetOrderUpdates(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := make([]*Update, 0, len(rows))
	for _, row := range rows {
		updates = append(updates, &Update{
			PreviousStatus: fsm.StateType(row.PreviousStatus),
			Status:         fsm.StateType(row.Status),
			Event:          fsm.EventType(row.Event),
			Timestamp:      row.UpdateTimestamp.UTC(),
		})
	}

	return updates, nil
}

func (s *SQLStore) ordersFromRows(ctx context.Context,
	rows []sqlc.Order) ([]*Order, error) {

	orders := make([]*Order, 0, len(rows))
	for _, row := range rows {
		o, err := orderFromRow(row)
		if err != nil {
			return nil, err
		}

		escrows, err := s.GetEscrows(ctx, o.ID)
		if err != nil {
			return nil, err
		}
		o.setEscrowRefs(escrows)

		orders = append(orders, o)
	}

	return orders, nil
}

func insertUpdates(ctx context.Context, q *sqlc.Queries, orderID string,
	updates []*Update) error {

	for _, u := range updates {
		err := q.InsertOrderUpdate(ctx, sqlc.InsertOrderUpdateParams{
			OrderID:         orderID,
			UpdateTimestamp: u.Timestamp.UTC(),
			PreviousStatus:  string(u.PreviousStatus),
			Status:          string(u.Status),
			Event:           string(u.Event),
		})
		if err != nil {
			return err
		}
	}

	return nil
}

func insertOrderParams(o *Order) sqlc.InsertOrderParams {
	var scheme string
	if len(o.MakerPubKey) > 0 {
		scheme = o.SignatureScheme.String()
	}

	return sqlc.InsertOrderParams{
		ID:                     o.ID,
		Maker:                  o.Maker,
		Receiver:               o.Receiver,
		SourceChain:            o.SourceChain,
		DestinationChain:       o.DestinationChain,
		SourceToken:            o.SourceToken,
		DestinationToken:       o.DestinationToken,
		SourceAmount:           o.SourceAmount.Dec(),
		DestinationAmount:      o.DestinationAmount.Dec(),
		Signature:              hex.EncodeToString(o.Signature),
		SignatureScheme:        scheme,
		MakerPubkey:            o.MakerPubKey,
		SecretHash:             o.HashLock[:],
		OrderTimestamp:         o.Timestamp.UTC(),
		Status:                 string(o.Status),
		Resolver:               o.Resolver,
		Price:                  decString(o.Price),
		Secret:                 o.Secret,
		SecretSharedToResolver: o.SecretSharedToResolver,
		SecretSharedToNetwork:  o.SecretSharedToNetwork,
		FinalityDepth:          int32(o.FinalityDepth),
		CreatedAt:              o.CreatedAt.UTC(),
		UpdatedAt:              o.UpdatedAt.UTC(),
		ExpiresAt:              o.ExpiresAt.UTC(),
		Version:                o.Version,
	}
}

func orderFromRow(row sqlc.Order) (*Order, error) {
	sourceAmount, err := uint256.FromDecimal(row.SourceAmount)
	if err != nil {
		return nil, fmt.Errorf("order %v: source amount: %w", row.ID,
			err)
	}

	destinationAmount, err := uint256.FromDecimal(row.DestinationAmount)
	if err != nil {
		return nil, fmt.Errorf("order %v: destination amount: %w",
			row.ID, err)
	}

	signature, err := hex.DecodeString(row.Signature)
	if err != nil {
		return nil, fmt.Errorf("order %v: signature: %w", row.ID, err)
	}

	o := &Order{
		ID: row.ID,
		Terms: Terms{
			Maker:             row.Maker,
			Receiver:          row.Receiver,
			SourceChain:       row.SourceChain,
			DestinationChain:  row.DestinationChain,
			SourceToken:       row.SourceToken,
			DestinationToken:  row.DestinationToken,
			SourceAmount:      sourceAmount,
			DestinationAmount: destinationAmount,
			Signature:         signature,
			MakerPubKey:       row.MakerPubkey,
			Timestamp:         row.OrderTimestamp.UTC(),
		},
		Status:                 fsm.StateType(row.Status),
		Resolver:               row.Resolver,
		Secret:                 row.Secret,
		SecretSharedToResolver: row.SecretSharedToResolver,
		SecretSharedToNetwork:  row.SecretSharedToNetwork,
		FinalityDepth:          uint32(row.FinalityDepth),
		CreatedAt:              row.CreatedAt.UTC(),
		UpdatedAt:              row.UpdatedAt.UTC(),
		ExpiresAt:              row.ExpiresAt.UTC(),
		Version:                row.Version,
	}
	copy(o.HashLock[:], row.SecretHash)

	if row.SignatureScheme != "" {
		o.SignatureScheme, err = permit.ParseScheme(row.SignatureScheme)
		if err != nil {
			return nil, fmt.Errorf("order %v: %w", row.ID, err)
		}
	}

	if row.Price != "" {
		o.Price, err = uint256.FromDecimal(row.Price)
		if err != nil {
			return nil, fmt.Errorf("order %v: price: %w", row.ID,
				err)
		}
	}

	if len(o.Secret) == 0 {
		o.Secret = nil
	}
	if len(o.MakerPubKey) == 0 {
		o.MakerPubKey = nil
	}

	return o, nil
}

func upsertEscrowParams(e *escrow.Escrow) sqlc.UpsertEscrowParams {
	return sqlc.UpsertEscrowParams{
		ID:           string(e.ID),
		OrderID:      e.OrderID,
		Side:         int32(e.Side),
		Chain:        e.Chain,
		Address:      e.Address,
		Token:        e.Token,
		Amount:       e.Amount.Dec(),
		HashLock:     e.HashLock[:],
		TimeoutAt:    e.Timeout.UTC(),
		Caller:       e.Caller,
		Beneficiary:  e.Beneficiary,
		Depositor:    e.Depositor,
		State:        string(e.State),
		FundedAmount: decString(e.FundedAmount),
		Secret:       e.Secret,
		ClosedBy:     e.ClosedBy,
		DeployedAt:   e.DeployedAt.UTC(),
		UpdatedAt:    e.UpdatedAt.UTC(),
	}
}

func escrowsFromRows(rows []sqlc.Escrow) ([]*escrow.Escrow, error) {
	escrows := make([]*escrow.Escrow, 0, len(rows))
	for _, row := range rows {
		amount, err := uint256.FromDecimal(row.Amount)
		if err != nil {
			return nil, fmt.Errorf("escrow %v: amount: %w", row.ID,
				err)
		}

		e := &escrow.Escrow{
			ID:          escrow.ID(row.ID),
			OrderID:     row.OrderID,
			Side:        escrow.Side(row.Side),
			Chain:       row.Chain,
			Address:     row.Address,
			Token:       row.Token,
			Amount:      amount,
			Timeout:     row.TimeoutAt.UTC(),
			Caller:      row.Caller,
			Beneficiary: row.Beneficiary,
			Depositor:   row.Depositor,
			State:       fsm.StateType(row.State),
			ClosedBy:    row.ClosedBy,
			DeployedAt:  row.DeployedAt.UTC(),
			UpdatedAt:   row.UpdatedAt.UTC(),
		}
		copy(e.HashLock[:], row.HashLock)

		if row.FundedAmount != "" {
			e.FundedAmount, err = uint256.FromDecimal(
				row.FundedAmount,
			)
			if err != nil {
				return nil, fmt.Errorf("escrow %v: funded "+
					"amount: %w", row.ID, err)
			}
		}
		if len(row.Secret) > 0 {
			e.Secret = row.Secret
		}

		escrows = append(escrows, e)
	}

	return escrows, nil
}

// decString returns the decimal representation of the amount, or an empty
// string if it is unset.
func decString(amount *uint256.Int) string {
	if amount == nil {
		return ""
	}

	return amount.Dec()
}
