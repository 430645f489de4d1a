package order

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Anmol-Dhiman/stellar-fusionX/chain"
	"github.com/Anmol-Dhiman/stellar-fusionX/escrow"
	"github.com/Anmol-Dhiman/stellar-fusionX/fsm"
	"github.com/Anmol-Dhiman/stellar-fusionX/hashlock"
	"github.com/Anmol-Dhiman/stellar-fusionX/notifications"
	"github.com/cenkalti/backoff/v4"
	"github.com/davecgh/go-spew/spew"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/lightningnetwork/lnd/ticker"
)

const (
	// DefaultOrderTTL is the default time after which an order without
	// escrows expires.
	DefaultOrderTTL = time.Hour

	// DefaultTimeoutInterval is the default interval of the timeout
	// watcher.
	DefaultTimeoutInterval = 10 * time.Second

	// DefaultFinalityPollInterval is the default interval confirmations
	// are polled at.
	DefaultFinalityPollInterval = 5 * time.Second

	// DefaultConfDepth is the default destination confirmation depth.
	DefaultConfDepth = 5

	// DefaultMaxCommitRetryDuration is the default bound of commit
	// retries.
	DefaultMaxCommitRetryDuration = 5 * time.Second
)

// orderLock serializes the operations on a single order.
type orderLock struct {
	sync.Mutex

	refs int
}

// Manager is the order coordinator. All operations on an order are
// serialized, operations on different orders run in parallel.
type Manager struct {
	cfg *Config

	escrowCfg *escrow.Config

	locks   map[string]*orderLock
	locksMu sync.Mutex

	// watching holds the orders a finality watcher runs for.
	watching   map[string]struct{}
	watchingMu sync.Mutex

	wg sync.WaitGroup
}

// NewManager creates a coordinator. Optional parameters are set to their
// defaults.
func NewManager(cfg *Config) (*Manager, error) {
	if cfg.Store == nil {
		return nil, errors.New("order store missing")
	}
	if cfg.Clock == nil {
		return nil, errors.New("clock missing")
	}

	if cfg.OrderTTL == 0 {
		cfg.OrderTTL = DefaultOrderTTL
	}
	if cfg.TimeoutInterval == 0 {
		cfg.TimeoutInterval = DefaultTimeoutInterval
	}
	if cfg.TimeoutTicker == nil {
		cfg.TimeoutTicker = ticker.NewForce(cfg.TimeoutInterval)
	}
	if cfg.FinalityPollInterval == 0 {
		cfg.FinalityPollInterval = DefaultFinalityPollInterval
	}
	if cfg.DefaultConfDepth == 0 {
		cfg.DefaultConfDepth = DefaultConfDepth
	}
	if cfg.MaxCommitRetryDuration == 0 {
		cfg.MaxCommitRetryDuration = DefaultMaxCommitRetryDuration
	}
	if cfg.Updates == nil {
		cfg.Updates = notifications.NewManager()
	}

	escrowCfg := &escrow.Config{
		Clock: cfg.Clock,
	}
	if cfg.Solvers != nil {
		escrowCfg.Resolvers = cfg.Solvers
	}

	return &Manager{
		cfg:       cfg,
		escrowCfg: escrowCfg,
		locks:     make(map[string]*orderLock),
		watching:  make(map[string]struct{}),
	}, nil
}

// Run runs the timeout watcher and starts a finality watcher for every
// order whose escrows got funded. It blocks until the context is canceled.
func (m *Manager) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		m.wg.Wait()
	}()

	// Subscribe before resuming the watchers so no update is missed.
	updates := m.cfg.Updates.SubscribeOrderUpdates(ctx)

	funded, err := m.cfg.Store.ListOrdersByStatus(ctx, EscrowFunded)
	if err != nil {
		return err
	}
	for _, o := range funded {
		m.watchFinality(ctx, o.ID)
	}

	m.cfg.TimeoutTicker.Resume()
	defer m.cfg.TimeoutTicker.Stop()

	log.Infof("Order coordinator started, %d orders awaiting finality",
		len(funded))

	for {
		select {
		case <-m.cfg.TimeoutTicker.Ticks():
			if err := m.CheckTimeouts(ctx); err != nil {
				log.Errorf("Unable to check timeouts: %v", err)
			}

		case update, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}

			if update.Status == string(EscrowFunded) {
				m.watchFinality(ctx, update.OrderID)
			}

		case <-ctx.Done():
			log.Infof("Order coordinator stopped")

			return nil
		}
	}
}

// Submit validates the terms and creates an order in the created status.
func (m *Manager) Submit(ctx context.Context, terms *Terms) (*Order,
	error) {

	now := m.cfg.Clock.Now()

	t := *terms
	if t.Receiver == "" {
		t.Receiver = t.Maker
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = now
	}

	if err := validateTerms(&t); err != nil {
		m.cfg.Metrics.rejected("submit")
		return nil, err
	}

	if m.cfg.Chains != nil {
		if _, err := m.cfg.Chains.Get(t.SourceChain); err != nil {
			m.cfg.Metrics.rejected("submit")
			return nil, newInvalidOrderError(
				"source chain", "unsupported chain %v",
				t.SourceChain,
			)
		}
		if _, err := m.cfg.Chains.Get(t.DestinationChain); err != nil {
			m.cfg.Metrics.rejected("submit")
			return nil, newInvalidOrderError(
				"destination chain", "unsupported chain %v",
				t.DestinationChain,
			)
		}
	}

	if err := verifyPermit(m.cfg, &t); err != nil {
		m.cfg.Metrics.rejected("submit")
		return nil, err
	}

	o := &Order{
		ID:        uuid.NewString(),
		Terms:     *cloneTerms(&t),
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(m.cfg.OrderTTL),
	}

	f := newFSM(m.cfg, newSwap(o, nil))
	if err := f.sendEvent(ctx, OnSubmit, nil); err != nil {
		return nil, err
	}

	err := m.cfg.Store.CreateOrder(ctx, o, f.updates)
	if errors.Is(err, ErrDuplicateHashLock) {
		m.cfg.Metrics.rejected("submit")
		return nil, newInvalidOrderError(
			"secret hash", "already used by another order",
		)
	}
	if err != nil {
		return nil, err
	}

	f.Infof("created, selling %v %v on %v for %v %v on %v",
		o.SourceAmount.Dec(), o.SourceToken, o.SourceChain,
		o.DestinationAmount.Dec(), o.DestinationToken,
		o.DestinationChain)

	m.publish(o, f.updates)
	m.notifyNewOrder(ctx, o)

	return o.Clone(), nil
}

// Accept binds the resolver to the order at the given destination amount. A
// nil price accepts the committed destination amount. Accepting again with
// the bound resolver is a no-op.
func (m *Manager) Accept(ctx context.Context, orderID, resolver string,
	price *uint256.Int) (*Order, error) {

	if resolver == "" {
		return nil, newInvalidOrderError("resolver", "missing")
	}

	if m.cfg.Solvers != nil {
		ok, err := m.cfg.Solvers.IsResolver(ctx, resolver)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: %v is not a registered "+
				"resolver", escrow.ErrUnauthorized, resolver)
		}
	}

	return m.updateOrder(ctx, orderID, "accept", func(f *FSM) error {
		o := f.swap.order

		switch {
		case o.Resolver == resolver:
			return nil

		case o.Resolver != "":
			return &AlreadyAcceptedError{
				OrderID:  o.ID,
				Resolver: o.Resolver,
			}
		}

		p := o.DestinationAmount
		if price != nil {
			p = price
		}
		if p.Lt(o.DestinationAmount) {
			return newInvalidOrderError(
				"price", "%v below destination amount %v",
				p.Dec(), o.DestinationAmount.Dec(),
			)
		}

		return f.sendEvent(ctx, OnAccept, &acceptRequest{
			resolver: resolver,
			price:    new(uint256.Int).Set(p),
		})
	})
}

// RecordEscrowDeployed records an escrow observed on chain. Recording the
// same escrow again is a no-op.
func (m *Manager) RecordEscrowDeployed(ctx context.Context,
	params *escrow.Params) (*Order, error) {

	if err := params.Validate(); err != nil {
		return nil, err
	}

	return m.updateOrder(ctx, params.OrderID, "deploy",
		func(f *FSM) error {
			return m.recordDeployed(ctx, f, params)
		},
	)
}

func (m *Manager) recordDeployed(ctx context.Context, f *FSM,
	params *escrow.Params) error {

	o := f.swap.order

	p := *params
	if p.Chain == "" {
		p.Chain = o.ChainOf(p.Side)
	}

	if existing, ok := f.swap.escrows[p.Side]; ok {
		if existing.Chain == p.Chain && existing.Address == p.Address {
			return nil
		}

		return &InvalidStateError{
			Status: o.Status,
			Operation: fmt.Sprintf("record second %v escrow %v",
				p.Side, p.Address),
		}
	}

	contract, err := escrow.Deploy(ctx, m.escrowCfg, &p)
	if err != nil {
		return err
	}

	return f.sendEvent(ctx, OnEscrowDeployed, &escrowEvent{
		escrow: contract.Escrow(),
	})
}

// RecordEscrowFunded records an observed deposit into the escrow of the
// side. A deposit short of the committed amount, or of the wrong token,
// leaves the order unchanged and fails with ErrUnderfunded. Once both escrows
// are funded they are cross-validated against the terms, and the order is
// disputed on any mismatch.
func (m *Manager) RecordEscrowFunded(ctx context.Context, orderID string,
	side escrow.Side, amount *uint256.Int, token string) (*Order, error) {

	return m.updateOrder(ctx, orderID, "fund", func(f *FSM) error {
		return m.recordFunded(ctx, f, side, amount, token)
	})
}

func (m *Manager) recordFunded(ctx context.Context, f *FSM,
	side escrow.Side, amount *uint256.Int, token string) error {

	e, ok := f.swap.escrows[side]
	if !ok {
		return &InvalidStateError{
			Status:    f.swap.order.Status,
			Operation: fmt.Sprintf("fund unrecorded %v escrow", side),
		}
	}

	contract := escrow.NewFSMFromEscrow(m.escrowCfg, e.Copy())
	err := contract.Fund(ctx, amount, token)
	switch {
	case escrow.IsAlreadyApplied(err):
		return nil

	case err != nil:
		return err
	}

	funded := contract.Escrow()
	if funded.State == e.State {
		return nil
	}

	return f.sendEvent(ctx, OnEscrowFunded, &escrowEvent{escrow: funded})
}

// ObserveEscrow queries the escrow contract at the address and records
// whatever the coordinator has not seen yet.
func (m *Manager) ObserveEscrow(ctx context.Context, orderID string,
	side escrow.Side, address string) (*Order, error) {

	o, err := m.cfg.Store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	adapter, err := m.cfg.Chains.Get(o.ChainOf(side))
	if err != nil {
		return nil, err
	}

	// The chain is queried without holding the order lock.
	info, err := adapter.EscrowState(ctx, address)
	if err != nil {
		return nil, err
	}

	if info.Params.OrderID != orderID || info.Params.Side != side {
		return nil, fmt.Errorf("escrow %v belongs to %v escrow of "+
			"order %v", address, info.Params.Side,
			info.Params.OrderID)
	}

	return m.updateOrder(ctx, orderID, "observe", func(f *FSM) error {
		return m.applyObservation(ctx, f, info)
	})
}

// applyObservation catches the escrow up with its on-chain view.
func (m *Manager) applyObservation(ctx context.Context, f *FSM,
	info *chain.EscrowInfo) error {

	side := info.Params.Side

	if err := m.recordDeployed(ctx, f, &info.Params); err != nil {
		return err
	}

	e := f.swap.escrows[side]
	if info.State == escrow.Deployed || e.IsFinal() {
		return nil
	}

	if e.State == escrow.Deployed {
		amount, token := info.Balance, info.BalanceToken
		if info.State != escrow.Funded {
			amount, token = info.Params.Amount, info.Params.Token
		}

		err := m.recordFunded(ctx, f, side, amount, token)
		if err != nil {
			return err
		}
	}

	var tx *chain.Tx
	switch info.State {
	case escrow.Withdrawn:
		tx = &chain.Tx{
			Kind:   chain.TxWithdraw,
			Caller: info.ClosedBy,
			Secret: info.Secret,
		}

	case escrow.Cancelled:
		tx = &chain.Tx{
			Kind:   chain.TxCancel,
			Caller: info.ClosedBy,
		}

	default:
		return nil
	}

	// The chain already enforced the caller and the timelock, pick the
	// path that replays it.
	e = f.swap.escrows[side]
	if tx.Caller != e.Caller || e.TimedOut(m.cfg.Clock.Now()) {
		tx.Kind++
	}

	return m.applyClose(ctx, f, side, tx)
}

// WithdrawEscrow redeems the escrow of the side through the private path.
func (m *Manager) WithdrawEscrow(ctx context.Context, orderID string,
	side escrow.Side, secret []byte, caller string) (*Order, error) {

	return m.closeEscrow(ctx, orderID, side, &chain.Tx{
		Kind:   chain.TxWithdraw,
		Caller: caller,
		Secret: secret,
	})
}

// PublicWithdrawEscrow redeems the escrow of the side through the public
// path.
func (m *Manager) PublicWithdrawEscrow(ctx context.Context, orderID string,
	side escrow.Side, secret []byte, caller string) (*Order, error) {

	return m.closeEscrow(ctx, orderID, side, &chain.Tx{
		Kind:   chain.TxPublicWithdraw,
		Caller: caller,
		Secret: secret,
	})
}

// CancelEscrow refunds the escrow of the side through the private path.
func (m *Manager) CancelEscrow(ctx context.Context, orderID string,
	side escrow.Side, caller string) (*Order, error) {

	return m.closeEscrow(ctx, orderID, side, &chain.Tx{
		Kind:   chain.TxCancel,
		Caller: caller,
	})
}

// PublicCancelEscrow refunds the escrow of the side through the public path.
func (m *Manager) PublicCancelEscrow(ctx context.Context, orderID string,
	side escrow.Side, caller string) (*Order, error) {

	return m.closeEscrow(ctx, orderID, side, &chain.Tx{
		Kind:   chain.TxPublicCancel,
		Caller: caller,
	})
}

// closeEscrow applies a withdrawal or cancellation. In relay mode the
// transaction is submitted on chain first.
func (m *Manager) closeEscrow(ctx context.Context, orderID string,
	side escrow.Side, tx *chain.Tx) (*Order, error) {

	if m.cfg.Relay {
		if err := m.relay(ctx, orderID, side, tx); err != nil {
			m.cfg.Metrics.rejected(tx.Kind.String())
			return nil, err
		}
	}

	return m.updateOrder(ctx, orderID, tx.Kind.String(),
		func(f *FSM) error {
			return m.applyClose(ctx, f, side, tx)
		},
	)
}

// relay simulates and submits the transaction without holding the order
// lock.
func (m *Manager) relay(ctx context.Context, orderID string,
	side escrow.Side, tx *chain.Tx) error {

	s, err := m.loadSwap(ctx, orderID)
	if err != nil {
		return err
	}

	e, ok := s.escrows[side]
	if !ok {
		return &InvalidStateError{
			Status:    s.order.Status,
			Operation: fmt.Sprintf("%v unrecorded %v escrow", tx.Kind, side),
		}
	}

	adapter, err := m.cfg.Chains.Get(e.Chain)
	if err != nil {
		return err
	}

	relayed := *tx
	relayed.Escrow = e.Address

	if err := adapter.Simulate(ctx, &relayed); err != nil {
		return err
	}

	receipt, err := adapter.Submit(ctx, &relayed)
	if err != nil {
		return err
	}

	log.Infof("Order %v: relayed %v of %v escrow in %v at height %d",
		orderID, tx.Kind, side, receipt.TxID, receipt.Height)

	return nil
}

// applyClose applies the transaction to the escrow of the side and records
// the result on the order.
func (m *Manager) applyClose(ctx context.Context, f *FSM, side escrow.Side,
	tx *chain.Tx) error {

	e, ok := f.swap.escrows[side]
	if !ok {
		return &InvalidStateError{
			Status:    f.swap.order.Status,
			Operation: fmt.Sprintf("%v unrecorded %v escrow", tx.Kind, side),
		}
	}

	contract := escrow.NewFSMFromEscrow(m.escrowCfg, e.Copy())

	var (
		err   error
		event fsm.EventType
	)
	switch tx.Kind {
	case chain.TxWithdraw:
		err = contract.Withdraw(ctx, tx.Secret, tx.Caller)
		event = OnEscrowWithdrawn

	case chain.TxPublicWithdraw:
		err = contract.PublicWithdraw(ctx, tx.Secret, tx.Caller)
		event = OnEscrowWithdrawn

	case chain.TxCancel:
		err = contract.Cancel(ctx, tx.Caller)
		event = OnEscrowCancelled

	case chain.TxPublicCancel:
		err = contract.PublicCancel(ctx, tx.Caller)
		event = OnEscrowCancelled

	default:
		return fmt.Errorf("unsupported escrow operation %v", tx.Kind)
	}

	switch {
	case escrow.IsAlreadyApplied(err):
		return nil

	case err != nil:
		return err
	}

	return f.sendEvent(ctx, event, &escrowEvent{escrow: contract.Escrow()})
}

// ConfirmFinality records that the destination deposit reached the given
// confirmation depth. It fails with ErrPrematureFinality before both escrows
// are funded or below the configured depth of the destination chain.
func (m *Manager) ConfirmFinality(ctx context.Context, orderID string,
	depth uint32) (*Order, error) {

	var timedOut bool
	o, err := m.updateOrder(ctx, orderID, "confirm finality",
		func(f *FSM) error {
			o := f.swap.order
			timedOut = false

			switch {
			case reached(o.Status, FinalityConfirmed):
				return nil

			case reached(o.Status, Created) &&
				!reached(o.Status, EscrowFunded):

				return &PrematureFinalityError{Status: o.Status}

			case o.Status != EscrowFunded:
				return &InvalidStateError{
					Status:    o.Status,
					Operation: "confirm finality",
				}
			}

			if f.swap.anyTimedOut(m.cfg.Clock.Now()) {
				timedOut = true
				return m.timeOut(ctx, f)
			}

			required := m.confDepth(o.DestinationChain)
			if depth < required {
				return &PrematureFinalityError{
					Status:   o.Status,
					Required: required,
					Observed: depth,
				}
			}

			return f.sendEvent(ctx, OnFinalityConfirmed,
				&finalityRequest{depth: depth})
		},
	)
	if err != nil {
		return nil, err
	}

	if timedOut {
		return nil, fmt.Errorf("%w: order %v can no longer reach "+
			"finality", ErrTimelockExpired, orderID)
	}

	return o, nil
}

// timeOut moves an order with an elapsed escrow timeout to cancel-pending.
func (m *Manager) timeOut(ctx context.Context, f *FSM) error {
	f.Warnf("escrow timed out before the secret was revealed")

	return f.sendEvent(ctx, OnTimeout, nil)
}

// AwaitFinality polls the confirmations of the destination deposit until
// the configured depth is reached and then confirms finality. The order lock
// is not held while waiting.
func (m *Manager) AwaitFinality(ctx context.Context, orderID string) (*Order,
	error) {

	t := ticker.New(m.cfg.FinalityPollInterval)
	t.Resume()
	defer t.Stop()

	for {
		s, err := m.loadSwap(ctx, orderID)
		if err != nil {
			return nil, err
		}

		o := s.order
		switch {
		case reached(o.Status, FinalityConfirmed):
			return o, nil

		case o.Status != EscrowFunded:
			return nil, &InvalidStateError{
				Status:    o.Status,
				Operation: "await finality",
			}
		}

		dst := s.escrows[escrow.SideDestination]
		adapter, err := m.cfg.Chains.Get(dst.Chain)
		if err != nil {
			return nil, err
		}

		confs, err := adapter.Confirmations(ctx, dst.Address)
		if err != nil {
			log.Warnf("Order %v: unable to query confirmations: %v",
				orderID, err)
		}

		required := m.confDepth(o.DestinationChain)
		if err == nil && confs >= required {
			o, err := m.ConfirmFinality(ctx, orderID, confs)

			// Another caller may have moved the order meanwhile.
			var stateErr *InvalidStateError
			if errors.As(err, &stateErr) {
				continue
			}

			return o, err
		}

		log.Debugf("Order %v: destination deposit at %d of %d "+
			"confirmations", orderID, confs, required)

		select {
		case <-t.Ticks():

		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// RevealSecret records the maker's secret. It is only accepted once finality
// was confirmed and if it matches the hash lock. Revealing the recorded
// secret again is a no-op, a different secret fails with ErrSecretConflict.
// A newly revealed secret is propagated to the resolvers.
func (m *Manager) RevealSecret(ctx context.Context, orderID string,
	secret []byte) (*Order, error) {

	var timedOut bool
	o, changed, err := m.update(ctx, orderID, "reveal secret",
		func(f *FSM) error {
			o := f.swap.order
			timedOut = false

			if o.Secret != nil {
				if subtle.ConstantTimeCompare(secret, o.Secret) == 1 {
					return nil
				}

				return fmt.Errorf("%w: order %v has a different "+
					"secret", ErrSecretConflict, o.ID)
			}

			switch {
			case reached(o.Status, Created) &&
				!reached(o.Status, FinalityConfirmed):

				return &PrematureFinalityError{Status: o.Status}

			case o.Status != FinalityConfirmed:
				return &InvalidStateError{
					Status:    o.Status,
					Operation: "reveal secret",
				}
			}

			if !hashlock.VerifySecret(secret, o.HashLock) {
				return ErrSecretMismatch
			}

			// A timed out escrow can be refunded while the secret
			// unlocks the other one.
			if f.swap.anyTimedOut(m.cfg.Clock.Now()) {
				timedOut = true
				return m.timeOut(ctx, f)
			}

			return f.sendEvent(ctx, OnSecretRevealed, &secretRequest{
				secret: secret,
			})
		},
	)
	if err != nil {
		return nil, err
	}

	if timedOut {
		return nil, fmt.Errorf("%w: secret of order %v not accepted",
			ErrTimelockExpired, orderID)
	}

	if changed {
		if err := m.PropagateSecret(ctx, orderID); err != nil {
			log.Warnf("Order %v: unable to propagate secret: %v",
				orderID, err)
		}
	}

	return o, nil
}

// PropagateSecret shares the revealed secret with the bound resolver, or with
// all resolvers in broadcast mode. Delivery is best effort and never changes
// the status of the order.
func (m *Manager) PropagateSecret(ctx context.Context, orderID string) error {
	o, err := m.cfg.Store.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}

	if o.Secret == nil {
		return &InvalidStateError{
			Status:    o.Status,
			Operation: "propagate unrevealed secret",
		}
	}

	if m.cfg.Notifier == nil || m.cfg.Solvers == nil {
		return nil
	}

	var recipients []notifications.Recipient
	if m.cfg.BroadcastSecrets {
		recipients, err = m.cfg.Solvers.Recipients(ctx)
		if err != nil {
			return err
		}
	} else {
		solver, err := m.cfg.Solvers.GetByWallet(ctx, o.Resolver)
		if err != nil {
			return fmt.Errorf("unable to look up resolver %v: %w",
				o.Resolver, err)
		}
		recipients = append(recipients, solver.Recipient())
	}

	m.cfg.Notifier.NotifySecret(
		o.ID, hex.EncodeToString(o.Secret), recipients,
		func(results []notifications.DeliveryResult) {
			delivered := notifications.Delivered(results)

			log.Infof("Order %v: secret delivered to %d of %d "+
				"resolvers", orderID, delivered, len(results))

			if !m.cfg.BroadcastSecrets || delivered == 0 {
				return
			}

			err := m.markSharedToNetwork(orderID)
			if err != nil {
				log.Warnf("Order %v: unable to mark secret "+
					"shared: %v", orderID, err)
			}
		},
	)

	return nil
}

// markSharedToNetwork sets the network flag of the order.
func (m *Manager) markSharedToNetwork(orderID string) error {
	ctx, cancel := context.WithTimeout(
		context.Background(), m.cfg.MaxCommitRetryDuration,
	)
	defer cancel()

	_, err := m.updateOrder(ctx, orderID, "share secret",
		func(f *FSM) error {
			if f.swap.order.SecretSharedToNetwork {
				return nil
			}

			f.swap.order.SecretSharedToNetwork = true
			f.swap.order.UpdatedAt = m.cfg.Clock.Now()
			f.dirty = true

			return nil
		},
	)

	return err
}

// MarkCompleted settles the order. It fails unless the secret was revealed
// and both escrows are withdrawn.
func (m *Manager) MarkCompleted(ctx context.Context, orderID string) (*Order,
	error) {

	return m.updateOrder(ctx, orderID, "complete", func(f *FSM) error {
		o := f.swap.order

		switch {
		case o.Status == Settled:
			return nil

		case o.Status != SecretRevealed ||
			!f.swap.allState(escrow.Withdrawn):

			return &InvalidStateError{
				Status:    o.Status,
				Operation: "complete before both escrows are withdrawn",
			}
		}

		return f.sendEvent(ctx, OnSettled, nil)
	})
}

// MarkCancelled cancels the order. It fails while an escrow still holds
// funds or once the secret was revealed.
func (m *Manager) MarkCancelled(ctx context.Context, orderID string) (*Order,
	error) {

	return m.updateOrder(ctx, orderID, "cancel", func(f *FSM) error {
		o := f.swap.order

		switch o.Status {
		case Cancelled:
			return nil

		case Created, Accepted:

		case EscrowPending, Disputed, CancelPending:
			if f.swap.anyLocked() {
				return &InvalidStateError{
					Status:    o.Status,
					Operation: "cancel with funded escrows",
				}
			}

		default:
			return &InvalidStateError{
				Status:    o.Status,
				Operation: "cancel",
			}
		}

		return f.sendEvent(ctx, OnCancelled, nil)
	})
}

// CheckTimeouts expires stale orders without escrows and moves orders whose
// escrows timed out before the secret was revealed to cancel-pending.
func (m *Manager) CheckTimeouts(ctx context.Context) error {
	now := m.cfg.Clock.Now()

	for _, status := range []fsm.StateType{Created, Accepted} {
		orders, err := m.cfg.Store.ListOrdersByStatus(ctx, status)
		if err != nil {
			return err
		}

		for _, o := range orders {
			if now.Before(o.ExpiresAt) {
				continue
			}

			_, err := m.updateOrder(ctx, o.ID, "expire",
				func(f *FSM) error {
					if f.swap.order.Status != Created &&
						f.swap.order.Status != Accepted {

						return nil
					}

					return f.sendEvent(ctx, OnExpire, nil)
				},
			)
			if err != nil {
				log.Warnf("Unable to expire order %v: %v", o.ID,
					err)
			}
		}
	}

	for status := range preReveal {
		orders, err := m.cfg.Store.ListOrdersByStatus(ctx, status)
		if err != nil {
			return err
		}

		for _, o := range orders {
			_, err := m.updateOrder(ctx, o.ID, "timeout",
				func(f *FSM) error {
					if !preReveal[f.swap.order.Status] ||
						!f.swap.anyTimedOut(now) {

						return nil
					}

					return m.timeOut(ctx, f)
				},
			)
			if err != nil {
				log.Warnf("Unable to time out order %v: %v",
					o.ID, err)
			}
		}
	}

	return nil
}

// GetOrder returns the order.
func (m *Manager) GetOrder(ctx context.Context, orderID string) (*Order,
	error) {

	return m.cfg.Store.GetOrder(ctx, orderID)
}

// GetPayload returns the json representation of the order and its escrows.
func (m *Manager) GetPayload(ctx context.Context, orderID string) (*Payload,
	error) {

	s, err := m.loadSwap(ctx, orderID)
	if err != nil {
		return nil, err
	}

	return NewPayload(s.order, s.escrowList()), nil
}

// GetEscrows returns the escrows of the order.
func (m *Manager) GetEscrows(ctx context.Context,
	orderID string) ([]*escrow.Escrow, error) {

	return m.cfg.Store.GetEscrows(ctx, orderID)
}

// GetOrderUpdates returns the status history of the order.
func (m *Manager) GetOrderUpdates(ctx context.Context,
	orderID string) ([]*Update, error) {

	return m.cfg.Store.GetOrderUpdates(ctx, orderID)
}

// ListOrders returns all orders.
func (m *Manager) ListOrders(ctx context.Context) ([]*Order, error) {
	return m.cfg.Store.ListOrders(ctx)
}

// updateOrder applies the operation and returns the resulting order.
func (m *Manager) updateOrder(ctx context.Context, orderID, operation string,
	apply func(f *FSM) error) (*Order, error) {

	o, _, err := m.update(ctx, orderID, operation, apply)

	return o, err
}

// update applies the operation to a copy of the order under the order lock
// and commits the copy. Nothing is committed if the operation fails. Commits
// that lose against a concurrent writer are retried from a fresh read. The
// returned flag reports whether anything was committed.
func (m *Manager) update(ctx context.Context, orderID, operation string,
	apply func(f *FSM) error) (*Order, bool, error) {

	unlock := m.lockOrder(orderID)
	defer unlock()

	var (
		result  *swap
		updates []*Update
		changed bool
	)
	commit := func() error {
		s, err := m.loadSwap(ctx, orderID)
		if err != nil {
			return backoff.Permanent(err)
		}

		work := s.clone()
		f := newFSM(m.cfg, work)
		if err := apply(f); err != nil {
			return backoff.Permanent(err)
		}

		if len(f.updates) == 0 && !f.dirty {
			result, updates, changed = s, nil, false
			return nil
		}

		err = m.cfg.Store.UpdateOrder(
			ctx, work.order, work.escrowList(), f.updates,
		)
		switch {
		case errors.Is(err, ErrVersionConflict):
			return err

		case err != nil:
			return backoff.Permanent(err)
		}

		result, updates, changed = work, f.updates, true

		return nil
	}

	notify := func(err error, wait time.Duration) {
		log.Debugf("Order %v: retrying %v in %v: %v", orderID,
			operation, wait, err)
	}

	expBackOff := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(10*time.Millisecond),
		backoff.WithMaxInterval(time.Second),
		backoff.WithMaxElapsedTime(m.cfg.MaxCommitRetryDuration),
	)
	err := backoff.RetryNotify(
		commit, backoff.WithContext(expBackOff, ctx), notify,
	)
	if err != nil {
		log.Debugf("Order %v: %v rejected: %v", orderID, operation, err)
		m.cfg.Metrics.rejected(operation)

		return nil, false, err
	}

	if changed {
		m.publish(result.order, updates)
	}

	return result.order.Clone(), changed, nil
}

// loadSwap reads the order and its escrows.
func (m *Manager) loadSwap(ctx context.Context, orderID string) (*swap,
	error) {

	o, err := m.cfg.Store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	escrows, err := m.cfg.Store.GetEscrows(ctx, orderID)
	if err != nil {
		return nil, err
	}

	return newSwap(o, escrows), nil
}

// lockOrder acquires the lock of the order and returns its release func.
func (m *Manager) lockOrder(orderID string) func() {
	m.locksMu.Lock()
	l, ok := m.locks[orderID]
	if !ok {
		l = &orderLock{}
		m.locks[orderID] = l
	}
	l.refs++
	m.locksMu.Unlock()

	l.Lock()

	return func() {
		l.Unlock()

		m.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, orderID)
		}
		m.locksMu.Unlock()
	}
}

// publish reports the committed transitions.
func (m *Manager) publish(o *Order, updates []*Update) {
	log.Tracef("Order %v committed: %v", o.ID, spew.Sdump(o))

	for _, u := range updates {
		m.cfg.Metrics.transition(u.Status)

		m.cfg.Updates.PublishOrderUpdate(&notifications.OrderUpdate{
			OrderID:        o.ID,
			PreviousStatus: string(u.PreviousStatus),
			Status:         string(u.Status),
			Event:          string(u.Event),
			Timestamp:      u.Timestamp,
		})
	}
}

// notifyNewOrder announces the order to all resolvers.
func (m *Manager) notifyNewOrder(ctx context.Context, o *Order) {
	if m.cfg.Notifier == nil || m.cfg.Solvers == nil {
		return
	}

	recipients, err := m.cfg.Solvers.Recipients(ctx)
	if err != nil {
		log.Warnf("Order %v: unable to list resolvers: %v", o.ID, err)
		return
	}

	m.cfg.Notifier.NotifyNewOrder(
		o.ID, NewPayload(o, nil), recipients,
		func(results []notifications.DeliveryResult) {
			log.Debugf("Order %v: announced to %d of %d resolvers",
				o.ID, notifications.Delivered(results),
				len(results))
		},
	)
}

// watchFinality starts a finality watcher for the order unless one is
// running.
func (m *Manager) watchFinality(ctx context.Context, orderID string) {
	m.watchingMu.Lock()
	defer m.watchingMu.Unlock()

	if _, ok := m.watching[orderID]; ok {
		return
	}
	m.watching[orderID] = struct{}{}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			m.watchingMu.Lock()
			delete(m.watching, orderID)
			m.watchingMu.Unlock()
		}()

		_, err := m.AwaitFinality(ctx, orderID)
		if err != nil && ctx.Err() == nil {
			log.Warnf("Order %v: finality watcher stopped: %v",
				orderID, err)
		}
	}()
}

// confDepth returns the confirmation depth of the chain.
func (m *Manager) confDepth(chainID string) uint32 {
	if m.cfg.Chains != nil {
		if adapter, err := m.cfg.Chains.Get(chainID); err == nil {
			return adapter.Params().ConfDepth
		}
	}

	return m.cfg.DefaultConfDepth
}

// cloneTerms returns a deep copy of the terms.
func cloneTerms(t *Terms) *Terms {
	c := *t
	c.SourceAmount = new(uint256.Int).Set(t.SourceAmount)
	c.DestinationAmount = new(uint256.Int).Set(t.DestinationAmount)
	c.Signature = cloneBytes(t.Signature)
	c.MakerPubKey = cloneBytes(t.MakerPubKey)

	return &c
}
