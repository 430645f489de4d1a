package order

import (
	"context"
	"time"

	"github.com/Anmol-Dhiman/stellar-fusionX/chain"
	"github.com/Anmol-Dhiman/stellar-fusionX/escrow"
	"github.com/Anmol-Dhiman/stellar-fusionX/fsm"
	"github.com/Anmol-Dhiman/stellar-fusionX/notifications"
	"github.com/Anmol-Dhiman/stellar-fusionX/permit"
	"github.com/Anmol-Dhiman/stellar-fusionX/solvers"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/ticker"
)

// Store persists orders, their escrows and their status history.
type Store interface {
	// CreateOrder stores a new order. It fails with ErrDuplicateHashLock
	// if another order uses the same hash lock.
	CreateOrder(ctx context.Context, order *Order, updates []*Update) error

	// GetOrder returns the order with its escrow references set, or
	// ErrOrderNotFound.
	GetOrder(ctx context.Context, id string) (*Order, error)

	// GetEscrows returns the escrows of the order.
	GetEscrows(ctx context.Context, orderID string) ([]*escrow.Escrow,
		error)

	// ListOrders returns all orders in creation order.
	ListOrders(ctx context.Context) ([]*Order, error)

	// ListOrdersByStatus returns the orders in the status.
	ListOrdersByStatus(ctx context.Context,
		status fsm.StateType) ([]*Order, error)

	// UpdateOrder atomically stores the order, its escrows and the
	// updates if the stored version still equals order.Version, and bumps
	// the version. It fails with ErrVersionConflict otherwise.
	UpdateOrder(ctx context.Context, order *Order,
		escrows []*escrow.Escrow, updates []*Update) error

	// GetOrderUpdates returns the status history of the order.
	GetOrderUpdates(ctx context.Context, id string) ([]*Update, error)
}

// Notifier delivers webhooks to resolvers. Delivery never blocks the caller.
type Notifier interface {
	// NotifyNewOrder announces a new order.
	NotifyNewOrder(orderID string, payload interface{},
		recipients []notifications.Recipient,
		done notifications.DoneFunc)

	// NotifySecret shares a revealed secret.
	NotifySecret(orderID, secret string,
		recipients []notifications.Recipient,
		done notifications.DoneFunc)
}

// SolverSource provides the registered resolvers.
type SolverSource interface {
	escrow.ResolverChecker

	// GetByWallet returns the resolver with the wallet address.
	GetByWallet(ctx context.Context, walletAddress string) (
		*solvers.Solver, error)

	// Recipients returns the notification recipients of all resolvers.
	Recipients(ctx context.Context) ([]notifications.Recipient, error)
}

// Config contains the services and parameters of the coordinator.
type Config struct {
	// Store persists the orders.
	Store Store

	// Chains are the adapters of the supported chains. The confirmation
	// depth of the destination chain gates finality.
	Chains chain.Adapters

	// Solvers are the registered resolvers.
	Solvers SolverSource

	// Notifier delivers webhooks. It is optional.
	Notifier Notifier

	// Updates fans out order updates in process. It is optional.
	Updates *notifications.Manager

	// Metrics records coordinator metrics. It is optional.
	Metrics *Metrics

	// Clock is used for all timestamps and timeouts.
	Clock clock.Clock

	// OrderTTL is the time after which an order without escrows expires.
	OrderTTL time.Duration

	// DefaultConfDepth is the confirmation depth used for destination
	// chains without an adapter.
	DefaultConfDepth uint32

	// PermitSpender is the spender maker permits are verified for.
	PermitSpender string

	// PermitEncoding is the digest encoding of maker permits.
	PermitEncoding permit.Encoding

	// BroadcastSecrets shares revealed secrets with all registered
	// resolvers instead of only the bound one.
	BroadcastSecrets bool

	// Relay submits escrow transactions through the chain adapters before
	// recording them.
	Relay bool

	// TimeoutInterval is the interval of the timeout watcher.
	TimeoutInterval time.Duration

	// TimeoutTicker drives the timeout watcher. It defaults to a ticker
	// at TimeoutInterval.
	TimeoutTicker *ticker.Force

	// FinalityPollInterval is the interval confirmations are polled at.
	FinalityPollInterval time.Duration

	// MaxCommitRetryDuration bounds the retries of conflicting commits.
	MaxCommitRetryDuration time.Duration
}
