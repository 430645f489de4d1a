package auction

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Anmol-Dhiman/stellar-fusionX/order"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/queue"
)

const fillQueueSize = 20

// BookConfig configures the in-process auction book.
type BookConfig struct {
	// Duration is the decay time of an auction.
	Duration time.Duration

	// StartBuffer is the delay before an auction accepts fills.
	StartBuffer time.Duration

	// PremiumBps is the premium over the destination amount an auction
	// opens at.
	PremiumBps uint64

	// Clock is the clock auctions are priced with.
	Clock clock.Clock
}

// Book is an in-process Adapter running one Dutch auction per order.
type Book struct {
	cfg *BookConfig

	auctions map[string]*DutchAuction

	subscribers map[uint64]*queue.ConcurrentQueue
	nextSubID   uint64

	sync.Mutex
}

// NewBook creates an auction book. Zero config values are replaced by the
// defaults.
func NewBook(cfg *BookConfig) *Book {
	c := *cfg
	if c.Duration == 0 {
		c.Duration = DefaultDuration
	}
	if c.StartBuffer == 0 {
		c.StartBuffer = DefaultStartBuffer
	}
	if c.PremiumBps == 0 {
		c.PremiumBps = DefaultPremiumBps
	}
	if c.Clock == nil {
		c.Clock = clock.NewDefaultClock()
	}

	return &Book{
		cfg:         &c,
		auctions:    make(map[string]*DutchAuction),
		subscribers: make(map[uint64]*queue.ConcurrentQueue),
	}
}

// StartAuction opens an auction for the order. The minimum amount out is the
// destination amount of the order.
func (b *Book) StartAuction(_ context.Context,
	o *order.Order) (*DutchAuction, error) {

	b.Lock()
	defer b.Unlock()

	if _, ok := b.auctions[o.ID]; ok {
		return nil, fmt.Errorf("%w: %v", ErrAuctionExists, o.ID)
	}

	a, err := NewDutchAuction(
		o.ID, o.DestinationAmount,
		openingAmount(o.DestinationAmount, b.cfg.PremiumBps),
		b.cfg.Clock.Now(), b.cfg.StartBuffer, b.cfg.Duration,
	)
	if err != nil {
		return nil, err
	}

	b.auctions[o.ID] = a

	log.Infof("Started auction for order %v: %v -> %v from %v", o.ID,
		a.MaxAmountOut.Dec(), a.MinAmountOut.Dec(), a.StartTime)

	return a, nil
}

// Auction returns the auction of the order.
func (b *Book) Auction(orderID string) (*DutchAuction, error) {
	b.Lock()
	defer b.Unlock()

	a, ok := b.auctions[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrAuctionNotFound, orderID)
	}

	return a, nil
}

// Fill takes the order for the resolver at the current price and emits the
// fill to all subscribers. The auction is closed afterwards.
func (b *Book) Fill(_ context.Context, orderID,
	resolver string) (*Fill, error) {

	b.Lock()
	defer b.Unlock()

	a, ok := b.auctions[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrAuctionNotFound, orderID)
	}

	now := b.cfg.Clock.Now()
	if !a.Started(now) {
		return nil, fmt.Errorf("%w: %v opens at %v",
			ErrAuctionNotStarted, orderID, a.StartTime)
	}

	fill := &Fill{
		OrderID:   orderID,
		Resolver:  resolver,
		AmountOut: a.AmountOut(now),
		FilledAt:  now,
	}
	delete(b.auctions, orderID)

	log.Debugf("Order %v filled by %v at %v", orderID, resolver,
		fill.AmountOut.Dec())

	for _, sub := range b.subscribers {
		sub.ChanIn() <- fill
	}

	return fill, nil
}

// SubscribeFills subscribes to all fills of the book.
func (b *Book) SubscribeFills(ctx context.Context) (<-chan *Fill, error) {
	fills := make(chan *Fill, 1)

	q := queue.NewConcurrentQueue(fillQueueSize)
	q.Start()

	b.Lock()
	id := b.nextSubID
	b.nextSubID++
	b.subscribers[id] = q
	b.Unlock()

	go func() {
		defer close(fills)
		defer func() {
			b.Lock()
			delete(b.subscribers, id)
			b.Unlock()

			q.Stop()
		}()

		for {
			select {
			case item := <-q.ChanOut():
				fill, ok := item.(*Fill)
				if !ok {
					continue
				}

				select {
				case fills <- fill:
				case <-ctx.Done():
					return
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	return fills, nil
}
