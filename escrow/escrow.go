package escrow

import (
	"context"
	"fmt"
	"time"

	"github.com/Anmol-Dhiman/stellar-fusionX/fsm"
	"github.com/Anmol-Dhiman/stellar-fusionX/hashlock"
	"github.com/holiman/uint256"
)

// Side identifies which leg of a swap an escrow belongs to.
type Side uint8

const (
	// SideSource is the escrow on the maker's chain. It holds the maker's
	// tokens and pays out to the resolver.
	SideSource Side = iota

	// SideDestination is the escrow on the destination chain. It holds the
	// resolver's tokens and pays out to the maker.
	SideDestination
)

// String returns the name of the side.
func (s Side) String() string {
	switch s {
	case SideSource:
		return "source"

	case SideDestination:
		return "destination"

	default:
		return fmt.Sprintf("Side(%d)", s)
	}
}

// ParseSide parses the name of a side.
func ParseSide(s string) (Side, error) {
	switch s {
	case "source", "src":
		return SideSource, nil

	case "destination", "dest", "dst":
		return SideDestination, nil

	default:
		return 0, fmt.Errorf("unknown escrow side: %v", s)
	}
}

// Sides lists both sides of a swap.
var Sides = []Side{SideSource, SideDestination}

// ID identifies an escrow. An order owns at most one escrow per side, so the
// id is derived from both.
type ID string

// MakeID returns the id of the escrow of the given order and side.
func MakeID(orderID string, side Side) ID {
	return ID(fmt.Sprintf("%s/%s", orderID, side))
}

// ResolverChecker reports whether an address belongs to a registered
// resolver. Public withdrawals are restricted to registered resolvers.
type ResolverChecker interface {
	IsResolver(ctx context.Context, address string) (bool, error)
}

// Params are the parameters an escrow is deployed with, as observed on
// chain.
type Params struct {
	// OrderID is the order the escrow belongs to.
	OrderID string

	// Side is the leg of the swap.
	Side Side

	// Chain is the identifier of the chain the escrow lives on.
	Chain string

	// Address is the contract address of the escrow.
	Address string

	// Token is the id of the locked token.
	Token string

	// Amount is the amount the escrow is required to lock.
	Amount *uint256.Int

	// HashLock is the raw hash lock the escrow was initialized with.
	HashLock []byte

	// Timeout is the absolute deadline after which the public paths open
	// and the private paths close.
	Timeout time.Time

	// Caller is the designated caller that may withdraw or cancel before
	// the timeout.
	Caller string

	// Beneficiary receives the funds on withdrawal.
	Beneficiary string

	// Depositor receives the funds on cancellation.
	Depositor string
}

// Validate checks the deployment parameters.
func (p *Params) Validate() error {
	switch {
	case p.OrderID == "":
		return newValidationError("order id", "missing")

	case p.Side != SideSource && p.Side != SideDestination:
		return newValidationError("side", "unknown side %d", p.Side)

	case p.Address == "":
		return newValidationError("address", "missing")

	case p.Token == "":
		return newValidationError("token", "missing")

	case p.Amount == nil || p.Amount.IsZero():
		return newValidationError("amount", "must be positive")

	case len(p.HashLock) != len(hashlock.ZeroHash):
		return newValidationError(
			"hash lock", "expected %d bytes, got %d",
			len(hashlock.ZeroHash), len(p.HashLock),
		)

	case p.Timeout.IsZero():
		return newValidationError("timeout", "missing")

	case p.Caller == "":
		return newValidationError("caller", "missing")

	case p.Beneficiary == "":
		return newValidationError("beneficiary", "missing")
	}

	return nil
}

// Escrow is a single HTLC deposit on one chain.
type Escrow struct {
	// ID identifies the escrow.
	ID ID

	// OrderID is the order the escrow belongs to.
	OrderID string

	// Side is the leg of the swap.
	Side Side

	// Chain is the chain the escrow lives on.
	Chain string

	// Address is the contract address of the escrow.
	Address string

	// Token is the locked token id.
	Token string

	// Amount is the amount the escrow must lock.
	Amount *uint256.Int

	// HashLock gates withdrawals.
	HashLock hashlock.Hash

	// Timeout is the absolute deadline of the escrow.
	Timeout time.Time

	// Caller is the designated caller of the private paths.
	Caller string

	// Beneficiary receives the funds on withdrawal.
	Beneficiary string

	// Depositor receives the funds on cancellation.
	Depositor string

	// State is the current lifecycle state.
	State fsm.StateType

	// FundedAmount is the amount observed when the escrow was funded.
	FundedAmount *uint256.Int

	// Secret is the pre-image used to withdraw, set once withdrawn.
	Secret []byte

	// ClosedBy is the address that withdrew or cancelled the escrow.
	ClosedBy string

	// DeployedAt is the time the escrow was recorded.
	DeployedAt time.Time

	// UpdatedAt is the time of the last transition.
	UpdatedAt time.Time
}

// Copy returns a deep copy of the escrow.
func (e *Escrow) Copy() *Escrow {
	c := *e

	if e.Amount != nil {
		c.Amount = new(uint256.Int).Set(e.Amount)
	}
	if e.FundedAmount != nil {
		c.FundedAmount = new(uint256.Int).Set(e.FundedAmount)
	}
	if e.Secret != nil {
		c.Secret = append([]byte(nil), e.Secret...)
	}

	return &c
}

// IsFinal returns true if the escrow is withdrawn or cancelled.
func (e *Escrow) IsFinal() bool {
	return IsFinalState(e.State)
}

// IsFunded returns true if the escrow reached the funded state at some
// point.
func (e *Escrow) IsFunded() bool {
	return e.State == Funded || e.State == Withdrawn ||
		(e.State == Cancelled && e.FundedAmount != nil)
}

// TimedOut returns true if the timeout of the escrow has elapsed at the
// given time.
func (e *Escrow) TimedOut(now time.Time) bool {
	return !now.Before(e.Timeout)
}

// IsFinalState returns true if the state is terminal.
func IsFinalState(state fsm.StateType) bool {
	return state == Withdrawn || state == Cancelled
}
