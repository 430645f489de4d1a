package fusiond

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/Anmol-Dhiman/stellar-fusionX/order"
)

// view prints all orders currently in the database.
func view(config *Config) error {
	db, err := openDatabase(config)
	if err != nil {
		return err
	}
	defer db.DB.Close()

	return viewOrders(context.Background(), os.Stdout, order.NewSQLStore(db))
}

func viewOrders(ctx context.Context, w io.Writer, store order.Store) error {
	orders, err := store.ListOrders(ctx)
	if err != nil {
		return err
	}

	for _, o := range orders {
		fmt.Fprintf(w, "ORDER %v\n", o.ID)
		fmt.Fprintf(w, "   Created: %v, expires: %v\n", o.CreatedAt,
			o.ExpiresAt)
		fmt.Fprintf(w, "   Maker: %v (receiver %v)\n", o.Maker,
			o.Receiver)
		fmt.Fprintf(w, "   Sell: %v %v on %v\n", o.SourceAmount.Dec(),
			o.SourceToken, o.SourceChain)
		fmt.Fprintf(w, "   Buy: %v %v on %v\n",
			o.DestinationAmount.Dec(), o.DestinationToken,
			o.DestinationChain)
		fmt.Fprintf(w, "   Hash lock: %v\n", o.HashLock)
		fmt.Fprintf(w, "   Status: %v\n", o.Status)

		if o.Resolver != "" {
			fmt.Fprintf(w, "   Resolver: %v at %v\n", o.Resolver,
				o.Price.Dec())
		}

		escrows, err := store.GetEscrows(ctx, o.ID)
		if err != nil {
			return err
		}
		for _, e := range escrows {
			fmt.Fprintf(w, "   Escrow %v: %v on %v, %v, "+
				"timeout %v\n", e.Side, e.Address, e.Chain,
				e.State, e.Timeout)
		}

		updates, err := store.GetOrderUpdates(ctx, o.ID)
		if err != nil {
			return err
		}
		for i, u := range updates {
			fmt.Fprintf(w, "   Update %v, Time %v, Status: %v\n",
				i, u.Timestamp, u.Status)
		}

		fmt.Fprintln(w)
	}

	return nil
}
