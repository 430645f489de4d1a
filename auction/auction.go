package auction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Anmol-Dhiman/stellar-fusionX/order"
	"github.com/holiman/uint256"
)

const (
	// DefaultDuration is the time it takes the price to decay from the
	// maximum to the minimum amount out.
	DefaultDuration = 10 * time.Minute

	// DefaultStartBuffer is the delay between starting an auction and the
	// first possible fill.
	DefaultStartBuffer = 2 * time.Minute

	// DefaultPremiumBps is the premium over the destination amount of the
	// order the auction opens at, in basis points.
	DefaultPremiumBps = 100

	bpsDenominator = 10_000
)

var (
	// ErrAuctionNotFound is returned when no auction runs for the order.
	ErrAuctionNotFound = errors.New("auction not found")

	// ErrAuctionNotStarted is returned for fills before the start buffer
	// elapsed.
	ErrAuctionNotStarted = errors.New("auction not started")

	// ErrAuctionExists is returned when an auction was already started
	// for the order.
	ErrAuctionExists = errors.New("auction already started")
)

// Fill is a resolver taking an order at the current auction price.
type Fill struct {
	// OrderID is the filled order.
	OrderID string

	// Resolver is the wallet address of the filling resolver.
	Resolver string

	// AmountOut is the destination amount the resolver committed to.
	AmountOut *uint256.Int

	// FilledAt is the time of the fill.
	FilledAt time.Time
}

// Adapter is the price discovery collaborator. The coordinator only consumes
// the fills it emits.
type Adapter interface {
	// StartAuction opens a price auction for the order.
	StartAuction(ctx context.Context, o *order.Order) (*DutchAuction,
		error)

	// SubscribeFills returns a channel of fills that is closed when the
	// context is canceled.
	SubscribeFills(ctx context.Context) (<-chan *Fill, error)
}

// DutchAuction is a descending price auction for one order. The amount out
// decays linearly from MaxAmountOut at StartTime to MinAmountOut at EndTime.
type DutchAuction struct {
	// OrderID is the auctioned order.
	OrderID string

	// MinAmountOut is the amount out at the end of the auction, the
	// destination amount of the order.
	MinAmountOut *uint256.Int

	// MaxAmountOut is the opening amount out.
	MaxAmountOut *uint256.Int

	// StartTime is the time fills are accepted from.
	StartTime time.Time

	// EndTime is the time the amount out reaches MinAmountOut.
	EndTime time.Time
}

// NewDutchAuction creates an auction opening startBuffer after now.
func NewDutchAuction(orderID string, minOut, maxOut *uint256.Int,
	now time.Time, startBuffer, duration time.Duration) (*DutchAuction,
	error) {

	switch {
	case minOut == nil || maxOut == nil:
		return nil, fmt.Errorf("auction %v: missing amount", orderID)

	case maxOut.Lt(minOut):
		return nil, fmt.Errorf("auction %v: max amount out %v below "+
			"min amount out %v", orderID, maxOut.Dec(), minOut.Dec())

	case duration < 0 || startBuffer < 0:
		return nil, fmt.Errorf("auction %v: negative duration",
			orderID)
	}

	start := now.Add(startBuffer)

	return &DutchAuction{
		OrderID:      orderID,
		MinAmountOut: new(uint256.Int).Set(minOut),
		MaxAmountOut: new(uint256.Int).Set(maxOut),
		StartTime:    start,
		EndTime:      start.Add(duration),
	}, nil
}

// Started returns true once fills are possible.
func (a *DutchAuction) Started(at time.Time) bool {
	return !at.Before(a.StartTime)
}

// AmountOut returns the price of the auction at the given time. Times before
// the start or after the end are clamped.
func (a *DutchAuction) AmountOut(at time.Time) *uint256.Int {
	total := a.EndTime.Sub(a.StartTime)
	if total <= 0 {
		return new(uint256.Int).Set(a.MaxAmountOut)
	}

	elapsed := at.Sub(a.StartTime)
	switch {
	case elapsed < 0:
		elapsed = 0
	case elapsed > total:
		elapsed = total
	}

	// The decay is scaled in 512 bits and never exceeds the spread.
	spread := new(uint256.Int).Sub(a.MaxAmountOut, a.MinAmountOut)
	decay, overflow := new(uint256.Int).MulDivOverflow(
		spread, uint256.NewInt(uint64(elapsed)),
		uint256.NewInt(uint64(total)),
	)
	if overflow || decay.Gt(spread) {
		decay = spread
	}

	return new(uint256.Int).Sub(a.MaxAmountOut, decay)
}

// openingAmount returns the destination amount plus the premium, capped at
// the largest representable amount.
func openingAmount(minOut *uint256.Int, premiumBps uint64) *uint256.Int {
	out, overflow := new(uint256.Int).MulDivOverflow(
		minOut, uint256.NewInt(bpsDenominator+premiumBps),
		uint256.NewInt(bpsDenominator),
	)
	if overflow {
		return new(uint256.Int).SetAllOne()
	}

	return out
}
