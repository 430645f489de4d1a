package order

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/Anmol-Dhiman/stellar-fusionX/escrow"
	"github.com/Anmol-Dhiman/stellar-fusionX/fsm"
)

// Order statuses.
var (
	// Created is the status of a submitted order.
	Created = fsm.StateType("created")

	// Accepted is the status of an order bound to a resolver.
	Accepted = fsm.StateType("accepted")

	// EscrowPending is the status while the escrows are being deployed and
	// funded.
	EscrowPending = fsm.StateType("escrow-pending")

	// EscrowFunded is the status once both escrows are funded and agree
	// with the terms.
	EscrowFunded = fsm.StateType("escrow-funded")

	// FinalityConfirmed is the status once the destination deposit is
	// final.
	FinalityConfirmed = fsm.StateType("finality-confirmed")

	// SecretRevealed is the status once the maker revealed the secret.
	SecretRevealed = fsm.StateType("secret-revealed")

	// Settled is the terminal status of a completed swap.
	Settled = fsm.StateType("settled")

	// Disputed is the status of an order whose escrows disagree with its
	// terms.
	Disputed = fsm.StateType("disputed")

	// CancelPending is the status of an order that has to be unwound by
	// cancelling its funded escrows.
	CancelPending = fsm.StateType("cancel-pending")

	// Cancelled is the terminal status of an unwound order.
	Cancelled = fsm.StateType("cancelled")

	// Expired is the terminal status of an order that never got escrows.
	Expired = fsm.StateType("expired")
)

// Events.
var (
	// OnSubmit creates the order.
	OnSubmit = fsm.EventType("OnSubmit")

	// OnAccept binds the resolver.
	OnAccept = fsm.EventType("OnAccept")

	// OnEscrowDeployed records a deployed escrow.
	OnEscrowDeployed = fsm.EventType("OnEscrowDeployed")

	// OnEscrowFunded records a funded escrow.
	OnEscrowFunded = fsm.EventType("OnEscrowFunded")

	// OnAllEscrowsFunded is sent once both escrows are funded.
	OnAllEscrowsFunded = fsm.EventType("OnAllEscrowsFunded")

	// OnTermsMismatch is sent when the escrows disagree with the terms.
	OnTermsMismatch = fsm.EventType("OnTermsMismatch")

	// OnFinalityConfirmed records destination finality.
	OnFinalityConfirmed = fsm.EventType("OnFinalityConfirmed")

	// OnSecretRevealed records the secret.
	OnSecretRevealed = fsm.EventType("OnSecretRevealed")

	// OnEscrowWithdrawn records a withdrawn escrow.
	OnEscrowWithdrawn = fsm.EventType("OnEscrowWithdrawn")

	// OnEscrowCancelled records a cancelled escrow.
	OnEscrowCancelled = fsm.EventType("OnEscrowCancelled")

	// OnTimeout is sent when an escrow timed out before the secret was
	// revealed.
	OnTimeout = fsm.EventType("OnTimeout")

	// OnSettled completes the order.
	OnSettled = fsm.EventType("OnSettled")

	// OnCancelled terminates the order on the cancellation branch.
	OnCancelled = fsm.EventType("OnCancelled")

	// OnExpire terminates an order that never got escrows.
	OnExpire = fsm.EventType("OnExpire")
)

// IsFinalStatus returns true if the status is terminal.
func IsFinalStatus(status fsm.StateType) bool {
	return status == Settled || status == Cancelled || status == Expired
}

// preReveal are the statuses in which an escrow timeout cancels the order.
var preReveal = map[fsm.StateType]bool{
	EscrowPending:     true,
	EscrowFunded:      true,
	FinalityConfirmed: true,
	Disputed:          true,
}

// progress orders the statuses of the main branch.
var progress = map[fsm.StateType]int{
	Created:           1,
	Accepted:          2,
	EscrowPending:     3,
	EscrowFunded:      4,
	FinalityConfirmed: 5,
	SecretRevealed:    6,
	Settled:           7,
}

// reached returns true if the status is on the main branch at or after the
// target.
func reached(status, target fsm.StateType) bool {
	p, ok := progress[status]
	return ok && p >= progress[target]
}

// swap is an order together with its escrows. It is the unit the
// coordinator mutates and commits.
type swap struct {
	order   *Order
	escrows map[escrow.Side]*escrow.Escrow
}

func newSwap(o *Order, escrows []*escrow.Escrow) *swap {
	s := &swap{
		order:   o,
		escrows: make(map[escrow.Side]*escrow.Escrow, len(escrows)),
	}
	for _, e := range escrows {
		s.escrows[e.Side] = e
	}
	s.order.setEscrowRefs(escrows)

	return s
}

// clone returns a deep copy of the swap.
func (s *swap) clone() *swap {
	c := &swap{
		order:   s.order.Clone(),
		escrows: make(map[escrow.Side]*escrow.Escrow, len(s.escrows)),
	}
	for side, e := range s.escrows {
		c.escrows[side] = e.Copy()
	}

	return c
}

// escrowList returns the escrows ordered by side.
func (s *swap) escrowList() []*escrow.Escrow {
	list := make([]*escrow.Escrow, 0, len(s.escrows))
	for _, e := range s.escrows {
		list = append(list, e)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Side < list[j].Side
	})

	return list
}

// setEscrow records the escrow and refreshes the derived order fields.
func (s *swap) setEscrow(e *escrow.Escrow) {
	s.escrows[e.Side] = e
	s.order.setEscrowRefs([]*escrow.Escrow{e})
}

// allFunded returns true if both escrows got funded.
func (s *swap) allFunded() bool {
	return s.order.SourceFunded && s.order.DestinationFunded
}

// anyLocked returns true if an escrow still holds funds.
func (s *swap) anyLocked() bool {
	for _, e := range s.escrows {
		if e.State == escrow.Funded {
			return true
		}
	}

	return false
}

// anyTimedOut returns true if an open escrow timed out at the given time.
func (s *swap) anyTimedOut(now time.Time) bool {
	for _, e := range s.escrows {
		if !e.IsFinal() && e.TimedOut(now) {
			return true
		}
	}

	return false
}

// allState returns true if both escrows are in the state.
func (s *swap) allState(state fsm.StateType) bool {
	if len(s.escrows) != len(escrow.Sides) {
		return false
	}

	for _, e := range s.escrows {
		if e.State != state {
			return false
		}
	}

	return true
}

// allFinal returns true if all recorded escrows are closed.
func (s *swap) allFinal() bool {
	for _, e := range s.escrows {
		if !e.IsFinal() {
			return false
		}
	}

	return true
}

// FSM is the state machine of a single order. A machine is created per
// operation around a cloned swap, which is only committed if the operation
// succeeds.
type FSM struct {
	*fsm.StateMachine

	cfg *Config

	swap *swap

	// updates collects the transitions of the current operation.
	updates []*Update

	// dirty is set by operations that change the order without a
	// transition.
	dirty bool
}

// newFSM creates the machine at the status of the order.
func newFSM(cfg *Config, s *swap) *FSM {
	orderFsm := &FSM{
		cfg:  cfg,
		swap: s,
	}

	orderFsm.StateMachine = fsm.NewStateMachineWithState(
		orderFsm.GetOrderStates(), s.order.Status, 0,
	)
	orderFsm.ActionEntryFunc = orderFsm.updateOrder

	return orderFsm
}

// GetOrderStates returns the state map that defines the order state
// machine.
func (f *FSM) GetOrderStates() fsm.States {
	return fsm.States{
		fsm.EmptyState: fsm.State{
			Transitions: fsm.Transitions{
				OnSubmit: Created,
			},
			Action: fsm.NoOpAction,
		},
		Created: fsm.State{
			Transitions: fsm.Transitions{
				OnAccept:    Accepted,
				OnExpire:    Expired,
				OnCancelled: Cancelled,
			},
			Action: fsm.NoOpAction,
		},
		Accepted: fsm.State{
			Transitions: fsm.Transitions{
				OnEscrowDeployed: EscrowPending,
				OnExpire:         Expired,
				OnCancelled:      Cancelled,
			},
			Action: f.AcceptedAction,
		},
		EscrowPending: fsm.State{
			Transitions: fsm.Transitions{
				OnEscrowDeployed:   EscrowPending,
				OnEscrowFunded:     EscrowPending,
				OnAllEscrowsFunded: EscrowFunded,
				OnEscrowCancelled:  CancelPending,
				OnTimeout:          CancelPending,
				OnCancelled:        Cancelled,
			},
			Action: f.EscrowPendingAction,
		},
		EscrowFunded: fsm.State{
			Transitions: fsm.Transitions{
				OnTermsMismatch:     Disputed,
				OnFinalityConfirmed: FinalityConfirmed,
				OnEscrowCancelled:   CancelPending,
				OnTimeout:           CancelPending,
			},
			Action: f.EscrowFundedAction,
		},
		FinalityConfirmed: fsm.State{
			Transitions: fsm.Transitions{
				OnSecretRevealed:  SecretRevealed,
				OnEscrowWithdrawn: SecretRevealed,
				OnEscrowCancelled: CancelPending,
				OnTimeout:         CancelPending,
			},
			Action: f.FinalityConfirmedAction,
		},
		SecretRevealed: fsm.State{
			Transitions: fsm.Transitions{
				OnEscrowWithdrawn: SecretRevealed,
				OnEscrowCancelled: SecretRevealed,
				OnSettled:         Settled,
				OnCancelled:       Cancelled,
			},
			Action: f.SecretRevealedAction,
		},
		Settled: fsm.State{
			Action: fsm.NoOpAction,
		},
		Disputed: fsm.State{
			Transitions: fsm.Transitions{
				OnEscrowCancelled: CancelPending,
				OnTimeout:         CancelPending,
				OnCancelled:       Cancelled,
			},
			Action: f.DisputedAction,
		},
		CancelPending: fsm.State{
			Transitions: fsm.Transitions{
				OnEscrowCancelled: CancelPending,
				OnEscrowWithdrawn: CancelPending,
				OnCancelled:       Cancelled,
			},
			Action: f.CancelPendingAction,
		},
		Cancelled: fsm.State{
			Action: fsm.NoOpAction,
		},
		Expired: fsm.State{
			Action: fsm.NoOpAction,
		},
	}
}

// sendEvent sends the event and surfaces action failures as errors. A
// rejected event is reported as an InvalidStateError.
func (f *FSM) sendEvent(ctx context.Context, event fsm.EventType,
	eventCtx fsm.EventContext) error {

	status := f.swap.order.Status

	f.LastActionError = nil
	err := f.SendEvent(ctx, event, eventCtx)
	if f.LastActionError != nil {
		return f.LastActionError
	}
	if errors.Is(err, fsm.ErrEventRejected) {
		return &InvalidStateError{
			Status:    status,
			Operation: string(event),
		}
	}

	return err
}

// updateOrder records the transition. It is called on every transition.
func (f *FSM) updateOrder(notification fsm.Notification) {
	f.Debugf("NextState: %v, PreviousState: %v, Event: %v",
		notification.NextState, notification.PreviousState,
		notification.Event)

	now := f.cfg.Clock.Now()

	f.swap.order.Status = notification.NextState
	f.swap.order.UpdatedAt = now

	f.updates = append(f.updates, &Update{
		PreviousStatus: notification.PreviousState,
		Status:         notification.NextState,
		Event:          notification.Event,
		Timestamp:      now,
	})
}

// Infof logs an info message with the order id.
func (f *FSM) Infof(format string, args ...interface{}) {
	log.Infof(
		"Order %v: "+format,
		append([]interface{}{f.swap.order.ID}, args...)...,
	)
}

// Debugf logs a debug message with the order id.
func (f *FSM) Debugf(format string, args ...interface{}) {
	log.Debugf(
		"Order %v: "+format,
		append([]interface{}{f.swap.order.ID}, args...)...,
	)
}

// Warnf logs a warning message with the order id.
func (f *FSM) Warnf(format string, args ...interface{}) {
	log.Warnf(
		"Order %v: "+format,
		append([]interface{}{f.swap.order.ID}, args...)...,
	)
}
