package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Anmol-Dhiman/stellar-fusionX/escrow"
	"github.com/Anmol-Dhiman/stellar-fusionX/fsm"
	"github.com/holiman/uint256"
)

var (
	// ErrUnknownChain is returned when no adapter is configured for a
	// chain id.
	ErrUnknownChain = errors.New("unknown chain")

	// ErrEscrowNotFound is returned when no escrow contract exists at an
	// address.
	ErrEscrowNotFound = errors.New("escrow not found")

	// ErrTxRejected is returned when a transaction would revert.
	ErrTxRejected = errors.New("transaction rejected")
)

// Kind is the ledger model of a chain.
type Kind uint8

const (
	// KindAccount is an account based chain.
	KindAccount Kind = iota

	// KindContract is a smart-contract ledger.
	KindContract
)

// String returns the name of the kind.
func (k Kind) String() string {
	switch k {
	case KindAccount:
		return "account"

	case KindContract:
		return "contract"

	default:
		return fmt.Sprintf("unknown(%d)", k)
	}
}

// ParseKind parses a kind name.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "account":
		return KindAccount, nil

	case "contract":
		return KindContract, nil

	default:
		return 0, fmt.Errorf("unknown chain kind %q", s)
	}
}

// Params are the per chain parameters the coordinator is configured with.
type Params struct {
	// ID identifies the chain in orders.
	ID string

	// Kind is the ledger model of the chain.
	Kind Kind

	// ConfDepth is the number of confirmations after which a deposit is
	// considered final.
	ConfDepth uint32

	// EscrowTimeout is the default lifetime of escrows deployed on the
	// chain.
	EscrowTimeout time.Duration

	// SrcFactory is the address of the source escrow factory.
	SrcFactory string

	// DstFactory is the address of the destination escrow factory.
	DstFactory string

	// RPCURL is the endpoint of the chain node.
	RPCURL string
}

// Validate checks the parameters.
func (p *Params) Validate() error {
	switch {
	case p.ID == "":
		return errors.New("chain id missing")

	case p.Kind != KindAccount && p.Kind != KindContract:
		return fmt.Errorf("chain %v: unknown kind %v", p.ID, p.Kind)

	case p.ConfDepth == 0:
		return fmt.Errorf("chain %v: confirmation depth must be "+
			"positive", p.ID)

	case p.EscrowTimeout <= 0:
		return fmt.Errorf("chain %v: escrow timeout must be positive",
			p.ID)
	}

	return nil
}

// EscrowInfo is the on-chain view of an escrow contract.
type EscrowInfo struct {
	// Params are the parameters the escrow was deployed with.
	Params escrow.Params

	// Balance is the amount currently locked.
	Balance *uint256.Int

	// BalanceToken is the token of the locked balance.
	BalanceToken string

	// State is the lifecycle state of the contract.
	State fsm.StateType

	// Secret is set once the escrow was withdrawn.
	Secret []byte

	// ClosedBy is the address that withdrew or cancelled the escrow.
	ClosedBy string

	// DeployHeight is the height the escrow was deployed at.
	DeployHeight uint32

	// FundHeight is the height the escrow got funded at, zero if not
	// funded.
	FundHeight uint32
}

// TxKind is the kind of an escrow transaction.
type TxKind uint8

const (
	// TxFund deposits into an escrow.
	TxFund TxKind = iota

	// TxWithdraw redeems an escrow through the private path.
	TxWithdraw

	// TxPublicWithdraw redeems an escrow through the public path.
	TxPublicWithdraw

	// TxCancel refunds an escrow through the private path.
	TxCancel

	// TxPublicCancel refunds an escrow through the public path.
	TxPublicCancel
)

// String returns the name of the transaction kind.
func (k TxKind) String() string {
	switch k {
	case TxFund:
		return "fund"

	case TxWithdraw:
		return "withdraw"

	case TxPublicWithdraw:
		return "public-withdraw"

	case TxCancel:
		return "cancel"

	case TxPublicCancel:
		return "public-cancel"

	default:
		return fmt.Sprintf("unknown(%d)", k)
	}
}

// Tx is a transaction against an escrow contract.
type Tx struct {
	// Kind is the escrow method called.
	Kind TxKind

	// Escrow is the address of the escrow contract.
	Escrow string

	// Caller is the sender of the transaction.
	Caller string

	// Secret is the pre-image for withdrawals.
	Secret []byte

	// Amount is the deposit of a fund transaction.
	Amount *uint256.Int

	// Token is the deposited token of a fund transaction.
	Token string
}

// Receipt is the result of a submitted transaction.
type Receipt struct {
	// TxID identifies the transaction.
	TxID string

	// Height is the height the transaction was included at.
	Height uint32
}

// Adapter is the interface of a chain the coordinator observes and, in relay
// mode, submits to. Signing and fee handling are up to the implementation.
type Adapter interface {
	// Params returns the parameters of the chain.
	Params() *Params

	// DeployEscrowSrc deploys a source escrow through the source factory
	// and returns its on-chain view.
	DeployEscrowSrc(ctx context.Context,
		params *escrow.Params) (*EscrowInfo, error)

	// DeployEscrowDst deploys a destination escrow through the
	// destination factory and returns its on-chain view.
	DeployEscrowDst(ctx context.Context,
		params *escrow.Params) (*EscrowInfo, error)

	// EscrowState queries the escrow contract at the address.
	EscrowState(ctx context.Context, address string) (*EscrowInfo, error)

	// Simulate dry-runs the transaction and returns the error it would
	// fail with.
	Simulate(ctx context.Context, tx *Tx) error

	// Submit broadcasts the transaction and returns once it is included.
	Submit(ctx context.Context, tx *Tx) (*Receipt, error)

	// Confirmations returns the number of confirmations of the funding of
	// the escrow at the address.
	Confirmations(ctx context.Context, address string) (uint32, error)

	// BestHeight returns the current chain height.
	BestHeight(ctx context.Context) (uint32, error)
}

// Adapters holds the adapters of all configured chains keyed by chain id.
type Adapters map[string]Adapter

// NewAdapters indexes the adapters by their chain id.
func NewAdapters(adapters ...Adapter) (Adapters, error) {
	a := make(Adapters, len(adapters))
	for _, adapter := range adapters {
		params := adapter.Params()
		if err := params.Validate(); err != nil {
			return nil, err
		}

		if _, ok := a[params.ID]; ok {
			return nil, fmt.Errorf("duplicate chain %v", params.ID)
		}

		a[params.ID] = adapter
	}

	return a, nil
}

// Get returns the adapter of the chain.
func (a Adapters) Get(chainID string) (Adapter, error) {
	adapter, ok := a[chainID]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnknownChain, chainID)
	}

	return adapter, nil
}
