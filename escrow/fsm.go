package escrow

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/Anmol-Dhiman/stellar-fusionX/fsm"
	"github.com/Anmol-Dhiman/stellar-fusionX/hashlock"
	"github.com/holiman/uint256"
	"github.com/lightningnetwork/lnd/clock"
)

const (
	// defaultObserverSize is the size of the fsm observer channel.
	defaultObserverSize = 10
)

// States.
var (
	// Deployed is the state of an escrow contract that exists on chain but
	// holds no funds yet.
	Deployed = fsm.StateType("Deployed")

	// Funded is the state of an escrow that locks at least its committed
	// amount.
	Funded = fsm.StateType("Funded")

	// Withdrawn is the terminal state of an escrow redeemed with the
	// secret.
	Withdrawn = fsm.StateType("Withdrawn")

	// Cancelled is the terminal state of an escrow whose funds went back
	// to the depositor.
	Cancelled = fsm.StateType("Cancelled")
)

// Events.
var (
	// OnDeploy is sent when the escrow contract is observed on chain.
	OnDeploy = fsm.EventType("OnDeploy")

	// OnFund is sent when a sufficient deposit is observed.
	OnFund = fsm.EventType("OnFund")

	// OnWithdraw is sent when the escrow is redeemed with the secret.
	OnWithdraw = fsm.EventType("OnWithdraw")

	// OnCancel is sent when the escrow is refunded.
	OnCancel = fsm.EventType("OnCancel")
)

// Config contains the services the escrow FSM needs to operate.
type Config struct {
	// Clock is used to evaluate timeouts.
	Clock clock.Clock

	// Resolvers answers whether a caller is a registered resolver. If nil,
	// public withdrawals are rejected.
	Resolvers ResolverChecker
}

// FSM is the state machine that manages a single escrow.
type FSM struct {
	*fsm.StateMachine

	cfg *Config

	escrow *Escrow

	// mu serializes the precondition checks of operations with the event
	// they send.
	mu sync.Mutex
}

// Deploy validates the parameters and returns a machine for a freshly
// deployed escrow.
func Deploy(ctx context.Context, cfg *Config, params *Params) (*FSM, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	escrow := &Escrow{
		ID:          MakeID(params.OrderID, params.Side),
		OrderID:     params.OrderID,
		Side:        params.Side,
		Chain:       params.Chain,
		Address:     params.Address,
		Token:       params.Token,
		Amount:      new(uint256.Int).Set(params.Amount),
		Timeout:     params.Timeout,
		Caller:      params.Caller,
		Beneficiary: params.Beneficiary,
		Depositor:   params.Depositor,
		State:       fsm.EmptyState,
	}
	copy(escrow.HashLock[:], params.HashLock)

	f := NewFSMFromEscrow(cfg, escrow)
	if err := f.sendEvent(ctx, OnDeploy, nil); err != nil {
		return nil, err
	}

	return f, nil
}

// NewFSMFromEscrow creates an escrow FSM from an existing escrow, resuming at
// its recorded state.
func NewFSMFromEscrow(cfg *Config, escrow *Escrow) *FSM {
	escrowFsm := &FSM{
		cfg:    cfg,
		escrow: escrow,
	}

	escrowFsm.StateMachine = fsm.NewStateMachineWithState(
		escrowFsm.GetEscrowStates(), escrow.State, defaultObserverSize,
	)
	escrowFsm.ActionEntryFunc = escrowFsm.updateEscrow

	return escrowFsm
}

// GetEscrowStates returns the state map that defines the escrow state
// machine.
func (f *FSM) GetEscrowStates() fsm.States {
	return fsm.States{
		fsm.EmptyState: fsm.State{
			Transitions: fsm.Transitions{
				OnDeploy: Deployed,
			},
			Action: nil,
		},
		Deployed: fsm.State{
			Transitions: fsm.Transitions{
				OnFund: Funded,
			},
			Action: f.DeployedAction,
		},
		Funded: fsm.State{
			Transitions: fsm.Transitions{
				OnWithdraw: Withdrawn,
				OnCancel:   Cancelled,
			},
			Action: f.FundedAction,
		},
		Withdrawn: fsm.State{
			Action: f.WithdrawnAction,
		},
		Cancelled: fsm.State{
			Action: f.CancelledAction,
		},
	}
}

// Escrow returns a copy of the escrow.
func (f *FSM) Escrow() *Escrow {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.escrow.Copy()
}

// Fund records an observed deposit. The escrow moves to Funded only if the
// deposit is of the committed token and at least the committed amount.
// Repeating a valid observation on a funded escrow is a no-op.
func (f *FSM) Fund(ctx context.Context, observed *uint256.Int,
	token string) error {

	f.mu.Lock()
	defer f.mu.Unlock()

	switch f.escrow.State {
	case Deployed:

	case Funded:
		if f.satisfies(observed, token) {
			return nil
		}

		return f.invalidState("fund", false)

	default:
		return f.invalidState("fund", f.escrow.FundedAmount != nil)
	}

	if !f.satisfies(observed, token) {
		err := &UnderfundedError{
			Required:      f.escrow.Amount,
			Observed:      observed,
			RequiredToken: f.escrow.Token,
			ObservedToken: token,
		}
		if observed == nil {
			err.Observed = new(uint256.Int)
		}

		f.Warnf("funding anomaly: %v", err)

		return err
	}

	return f.sendEvent(ctx, OnFund, &fundRequest{
		amount: new(uint256.Int).Set(observed),
	})
}

// Withdraw redeems the escrow with the secret. Only the designated caller may
// withdraw, and only before the timeout.
func (f *FSM) Withdraw(ctx context.Context, secret []byte,
	caller string) error {

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.checkWithdrawable(secret); err != nil {
		return err
	}

	if f.escrow.TimedOut(f.cfg.Clock.Now()) {
		return ErrTimelockExpired
	}

	if caller != f.escrow.Caller {
		return fmt.Errorf("%w: %v is not the designated caller",
			ErrUnauthorized, caller)
	}

	return f.sendEvent(ctx, OnWithdraw, &closeRequest{
		secret: secret,
		caller: caller,
	})
}

// PublicWithdraw redeems the escrow with the secret after the timeout. Any
// registered resolver may call it.
func (f *FSM) PublicWithdraw(ctx context.Context, secret []byte,
	caller string) error {

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.checkWithdrawable(secret); err != nil {
		return err
	}

	if !f.escrow.TimedOut(f.cfg.Clock.Now()) {
		return ErrTimelockActive
	}

	if f.cfg.Resolvers == nil {
		return fmt.Errorf("%w: no resolver registry", ErrUnauthorized)
	}

	ok, err := f.cfg.Resolvers.IsResolver(ctx, caller)
	if err != nil {
		return fmt.Errorf("unable to check resolver %v: %w", caller,
			err)
	}
	if !ok {
		return fmt.Errorf("%w: %v is not a registered resolver",
			ErrUnauthorized, caller)
	}

	return f.sendEvent(ctx, OnWithdraw, &closeRequest{
		secret: secret,
		caller: caller,
		public: true,
	})
}

// Cancel refunds the depositor. Only the designated caller may cancel, and
// only before the timeout.
func (f *FSM) Cancel(ctx context.Context, caller string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.checkCancellable(); err != nil {
		return err
	}

	if f.escrow.TimedOut(f.cfg.Clock.Now()) {
		return ErrTimelockExpired
	}

	if caller != f.escrow.Caller {
		return fmt.Errorf("%w: %v is not the designated caller",
			ErrUnauthorized, caller)
	}

	return f.sendEvent(ctx, OnCancel, &closeRequest{caller: caller})
}

// PublicCancel refunds the depositor after the timeout. Anyone may call it.
func (f *FSM) PublicCancel(ctx context.Context, caller string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.checkCancellable(); err != nil {
		return err
	}

	if !f.escrow.TimedOut(f.cfg.Clock.Now()) {
		return ErrTimelockActive
	}

	return f.sendEvent(ctx, OnCancel, &closeRequest{
		caller: caller,
		public: true,
	})
}

// checkWithdrawable checks the state and secret preconditions shared by both
// withdraw paths.
func (f *FSM) checkWithdrawable(secret []byte) error {
	switch f.escrow.State {
	case Funded:

	case Withdrawn:
		return f.invalidState(
			"withdraw", bytes.Equal(secret, f.escrow.Secret),
		)

	default:
		return f.invalidState("withdraw", false)
	}

	if !hashlock.VerifySecret(secret, f.escrow.HashLock) {
		return ErrSecretMismatch
	}

	return nil
}

// checkCancellable checks the state preconditions shared by both cancel
// paths.
func (f *FSM) checkCancellable() error {
	switch f.escrow.State {
	case Funded:
		return nil

	case Cancelled:
		return f.invalidState("cancel", true)

	default:
		return f.invalidState("cancel", false)
	}
}

func (f *FSM) satisfies(observed *uint256.Int, token string) bool {
	return observed != nil && token == f.escrow.Token &&
		!observed.Lt(f.escrow.Amount)
}

func (f *FSM) invalidState(operation string,
	alreadyApplied bool) *InvalidStateError {

	return &InvalidStateError{
		State:          f.escrow.State,
		Operation:      operation,
		AlreadyApplied: alreadyApplied,
	}
}

// sendEvent sends the event and surfaces action failures as errors.
func (f *FSM) sendEvent(ctx context.Context, event fsm.EventType,
	eventCtx fsm.EventContext) error {

	f.LastActionError = nil

	err := f.SendEvent(ctx, event, eventCtx)
	if err != nil {
		return err
	}

	return f.LastActionError
}

// updateEscrow records the new state. It is called on every transition.
func (f *FSM) updateEscrow(notification fsm.Notification) {
	f.Debugf("NextState: %v, PreviousState: %v, Event: %v",
		notification.NextState, notification.PreviousState,
		notification.Event)

	f.escrow.State = notification.NextState
	f.escrow.UpdatedAt = f.cfg.Clock.Now()
}

// Infof logs an info message with the escrow id.
func (f *FSM) Infof(format string, args ...interface{}) {
	log.Infof(
		"Escrow %v: "+format,
		append([]interface{}{f.escrow.ID}, args...)...,
	)
}

// Debugf logs a debug message with the escrow id.
func (f *FSM) Debugf(format string, args ...interface{}) {
	log.Debugf(
		"Escrow %v: "+format,
		append([]interface{}{f.escrow.ID}, args...)...,
	)
}

// Warnf logs a warning message with the escrow id.
func (f *FSM) Warnf(format string, args ...interface{}) {
	log.Warnf(
		"Escrow %v: "+format,
		append([]interface{}{f.escrow.ID}, args...)...,
	)
}
