package chain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/Anmol-Dhiman/stellar-fusionX/escrow"
	"github.com/holiman/uint256"
	"github.com/lightningnetwork/lnd/clock"
)

// SimLedgerConfig is the configuration of a simulated ledger.
type SimLedgerConfig struct {
	// Params are the parameters of the simulated chain.
	Params *Params

	// Clock drives the escrow timeouts.
	Clock clock.Clock

	// Resolvers restricts public withdrawals to registered resolvers.
	Resolvers escrow.ResolverChecker
}

// simEscrow is an escrow contract on the simulated ledger.
type simEscrow struct {
	contract     *escrow.FSM
	params       escrow.Params
	balance      *uint256.Int
	deployHeight uint32
	fundHeight   uint32
}

// SimLedger is an in-memory chain whose escrow contracts are escrow state
// machines. Blocks are only produced by Mine.
type SimLedger struct {
	cfg       *SimLedgerConfig
	escrowCfg *escrow.Config

	height  uint32
	escrows map[string]*simEscrow
	txCount uint64

	sync.Mutex
}

// A compile time check to ensure SimLedger implements the Adapter interface.
var _ Adapter = (*SimLedger)(nil)

// NewSimLedger creates a simulated ledger at height one.
func NewSimLedger(cfg *SimLedgerConfig) *SimLedger {
	return &SimLedger{
		cfg: cfg,
		escrowCfg: &escrow.Config{
			Clock:     cfg.Clock,
			Resolvers: cfg.Resolvers,
		},
		height:  1,
		escrows: make(map[string]*simEscrow),
	}
}

// Params returns the parameters of the chain.
func (s *SimLedger) Params() *Params {
	return s.cfg.Params
}

// Mine advances the chain by n blocks and returns the new height.
func (s *SimLedger) Mine(n uint32) uint32 {
	s.Lock()
	defer s.Unlock()

	s.height += n

	log.Debugf("Chain %v mined %d blocks, height %d", s.cfg.Params.ID,
		n, s.height)

	return s.height
}

// DeployEscrowSrc deploys a source escrow.
func (s *SimLedger) DeployEscrowSrc(ctx context.Context,
	params *escrow.Params) (*EscrowInfo, error) {

	if params.Side != escrow.SideSource {
		return nil, fmt.Errorf("%w: source factory cannot deploy %v "+
			"escrow", ErrTxRejected, params.Side)
	}

	return s.deploy(ctx, s.cfg.Params.SrcFactory, params)
}

// DeployEscrowDst deploys a destination escrow.
func (s *SimLedger) DeployEscrowDst(ctx context.Context,
	params *escrow.Params) (*EscrowInfo, error) {

	if params.Side != escrow.SideDestination {
		return nil, fmt.Errorf("%w: destination factory cannot "+
			"deploy %v escrow", ErrTxRejected, params.Side)
	}

	return s.deploy(ctx, s.cfg.Params.DstFactory, params)
}

// deploy creates the escrow contract. Missing addresses are derived from the
// factory and the escrow id, a missing timeout from the chain default.
func (s *SimLedger) deploy(ctx context.Context, factory string,
	params *escrow.Params) (*EscrowInfo, error) {

	s.Lock()
	defer s.Unlock()

	p := *params
	p.Chain = s.cfg.Params.ID
	if p.Address == "" {
		p.Address = deriveAddress(
			factory, escrow.MakeID(p.OrderID, p.Side),
		)
	}
	if p.Timeout.IsZero() {
		p.Timeout = s.cfg.Clock.Now().Add(s.cfg.Params.EscrowTimeout)
	}

	if _, ok := s.escrows[p.Address]; ok {
		return nil, fmt.Errorf("%w: escrow %v already deployed",
			ErrTxRejected, p.Address)
	}

	contract, err := escrow.Deploy(ctx, s.escrowCfg, &p)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTxRejected, err)
	}

	e := &simEscrow{
		contract:     contract,
		params:       p,
		balance:      new(uint256.Int),
		deployHeight: s.height,
	}
	s.escrows[p.Address] = e

	return e.info(), nil
}

// EscrowState returns the on-chain view of the escrow.
func (s *SimLedger) EscrowState(_ context.Context,
	address string) (*EscrowInfo, error) {

	s.Lock()
	defer s.Unlock()

	e, ok := s.escrows[address]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrEscrowNotFound, address)
	}

	return e.info(), nil
}

// Simulate applies the transaction to a copy of the escrow.
func (s *SimLedger) Simulate(ctx context.Context, tx *Tx) error {
	s.Lock()
	defer s.Unlock()

	e, ok := s.escrows[tx.Escrow]
	if !ok {
		return fmt.Errorf("%w: %v", ErrEscrowNotFound, tx.Escrow)
	}

	dryRun := &simEscrow{
		contract: escrow.NewFSMFromEscrow(
			s.escrowCfg, e.contract.Escrow(),
		),
		params:  e.params,
		balance: new(uint256.Int).Set(e.balance),
	}

	return dryRun.apply(ctx, tx, s.height)
}

// Submit applies the transaction and includes it in the next block.
func (s *SimLedger) Submit(ctx context.Context, tx *Tx) (*Receipt, error) {
	s.Lock()
	defer s.Unlock()

	e, ok := s.escrows[tx.Escrow]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrEscrowNotFound, tx.Escrow)
	}

	s.height++
	if err := e.apply(ctx, tx, s.height); err != nil {
		s.height--
		return nil, err
	}

	s.txCount++
	txID := sha256.Sum256([]byte(fmt.Sprintf(
		"%s/%d/%s/%s", s.cfg.Params.ID, s.txCount, tx.Kind, tx.Escrow,
	)))

	log.Debugf("Chain %v included %v on %v at height %d",
		s.cfg.Params.ID, tx.Kind, tx.Escrow, s.height)

	return &Receipt{
		TxID:   hex.EncodeToString(txID[:]),
		Height: s.height,
	}, nil
}

// Confirmations returns the confirmations of the funding of the escrow.
func (s *SimLedger) Confirmations(_ context.Context,
	address string) (uint32, error) {

	s.Lock()
	defer s.Unlock()

	e, ok := s.escrows[address]
	if !ok {
		return 0, fmt.Errorf("%w: %v", ErrEscrowNotFound, address)
	}

	if e.fundHeight == 0 {
		return 0, nil
	}

	return s.height - e.fundHeight + 1, nil
}

// BestHeight returns the current height.
func (s *SimLedger) BestHeight(_ context.Context) (uint32, error) {
	s.Lock()
	defer s.Unlock()

	return s.height, nil
}

// apply executes the transaction against the escrow contract.
func (e *simEscrow) apply(ctx context.Context, tx *Tx, height uint32) error {
	var err error
	switch tx.Kind {
	case TxFund:
		if tx.Amount == nil || tx.Amount.IsZero() {
			return fmt.Errorf("%w: empty deposit", ErrTxRejected)
		}
		if tx.Token != e.params.Token {
			return fmt.Errorf("%w: escrow locks %v, got %v",
				ErrTxRejected, e.params.Token, tx.Token)
		}

		balance := new(uint256.Int).Add(e.balance, tx.Amount)
		err = e.contract.Fund(ctx, balance, tx.Token)

		// A short deposit is kept and can be topped up.
		if err == nil || errors.Is(err, escrow.ErrUnderfunded) {
			e.balance = balance
		}
		if err == nil && e.fundHeight == 0 {
			e.fundHeight = height
		}
		if errors.Is(err, escrow.ErrUnderfunded) {
			return nil
		}

	case TxWithdraw:
		err = e.contract.Withdraw(ctx, tx.Secret, tx.Caller)

	case TxPublicWithdraw:
		err = e.contract.PublicWithdraw(ctx, tx.Secret, tx.Caller)

	case TxCancel:
		err = e.contract.Cancel(ctx, tx.Caller)

	case TxPublicCancel:
		err = e.contract.PublicCancel(ctx, tx.Caller)

	default:
		return fmt.Errorf("%w: unknown transaction kind %v",
			ErrTxRejected, tx.Kind)
	}

	if err != nil {
		return fmt.Errorf("%w: %w", ErrTxRejected, err)
	}

	switch tx.Kind {
	case TxWithdraw, TxPublicWithdraw, TxCancel, TxPublicCancel:
		e.balance = new(uint256.Int)
	}

	return nil
}

// info returns the on-chain view of the escrow.
func (e *simEscrow) info() *EscrowInfo {
	state := e.contract.Escrow()

	params := e.params
	params.Amount = new(uint256.Int).Set(e.params.Amount)
	params.HashLock = append([]byte(nil), e.params.HashLock...)

	return &EscrowInfo{
		Params:       params,
		Balance:      new(uint256.Int).Set(e.balance),
		BalanceToken: e.params.Token,
		State:        state.State,
		Secret:       state.Secret,
		ClosedBy:     state.ClosedBy,
		DeployHeight: e.deployHeight,
		FundHeight:   e.fundHeight,
	}
}

// deriveAddress derives a deterministic escrow address from the factory and
// the escrow id.
func deriveAddress(factory string, id escrow.ID) string {
	digest := sha256.Sum256([]byte(factory + "/" + string(id)))

	return "0x" + hex.EncodeToString(digest[:20])
}
