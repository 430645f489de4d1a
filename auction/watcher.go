package auction

import (
	"context"
	"errors"

	"github.com/Anmol-Dhiman/stellar-fusionX/order"
	"github.com/holiman/uint256"
)

// Accepter binds resolvers to orders.
type Accepter interface {
	Accept(ctx context.Context, orderID, resolver string,
		price *uint256.Int) (*order.Order, error)
}

// Watcher turns auction fills into accepted orders.
type Watcher struct {
	adapter Adapter
	orders  Accepter
}

// NewWatcher creates a fill watcher.
func NewWatcher(adapter Adapter, orders Accepter) *Watcher {
	return &Watcher{
		adapter: adapter,
		orders:  orders,
	}
}

// Run consumes fills until the context is canceled.
func (w *Watcher) Run(ctx context.Context) error {
	fills, err := w.adapter.SubscribeFills(ctx)
	if err != nil {
		return err
	}

	for {
		select {
		case fill, ok := <-fills:
			if !ok {
				return nil
			}

			w.handleFill(ctx, fill)

		case <-ctx.Done():
			return nil
		}
	}
}

func (w *Watcher) handleFill(ctx context.Context, fill *Fill) {
	_, err := w.orders.Accept(
		ctx, fill.OrderID, fill.Resolver, fill.AmountOut,
	)
	switch {
	case err == nil:
		log.Infof("Order %v accepted by %v at %v", fill.OrderID,
			fill.Resolver, fill.AmountOut.Dec())

	case errors.Is(err, order.ErrAlreadyAccepted):
		log.Infof("Dropping fill of order %v by %v: %v", fill.OrderID,
			fill.Resolver, err)

	default:
		log.Errorf("Unable to accept fill of order %v by %v: %v",
			fill.OrderID, fill.Resolver, err)
	}
}
