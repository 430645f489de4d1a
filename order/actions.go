package order

import (
	"context"

	"github.com/Anmol-Dhiman/stellar-fusionX/escrow"
	"github.com/Anmol-Dhiman/stellar-fusionX/fsm"
	"github.com/holiman/uint256"
)

// acceptRequest is the event context of OnAccept.
type acceptRequest struct {
	resolver string
	price    *uint256.Int
}

// escrowEvent is the event context of the escrow events. It carries the
// escrow after its transition.
type escrowEvent struct {
	escrow *escrow.Escrow
}

// finalityRequest is the event context of OnFinalityConfirmed.
type finalityRequest struct {
	depth uint32
}

// secretRequest is the event context of OnSecretRevealed.
type secretRequest struct {
	secret []byte
}

// AcceptedAction binds the resolver.
func (f *FSM) AcceptedAction(_ context.Context,
	eventCtx fsm.EventContext) fsm.EventType {

	req, ok := eventCtx.(*acceptRequest)
	if !ok {
		return f.HandleError(fsm.ErrInvalidContextType)
	}

	f.swap.order.Resolver = req.resolver
	f.swap.order.Price = req.price

	f.Infof("accepted by %v at %v", req.resolver, req.price.Dec())

	return fsm.NoOp
}

// EscrowPendingAction records the escrow and moves on once both escrows are
// funded.
func (f *FSM) EscrowPendingAction(_ context.Context,
	eventCtx fsm.EventContext) fsm.EventType {

	ev, ok := eventCtx.(*escrowEvent)
	if !ok {
		return f.HandleError(fsm.ErrInvalidContextType)
	}

	f.swap.setEscrow(ev.escrow)

	f.Infof("%v escrow %v at %v", ev.escrow.Side, ev.escrow.State,
		ev.escrow.Address)

	if f.swap.allFunded() {
		return OnAllEscrowsFunded
	}

	return fsm.NoOp
}

// EscrowFundedAction cross-validates both escrows against the terms.
func (f *FSM) EscrowFundedAction(_ context.Context,
	_ fsm.EventContext) fsm.EventType {

	if err := crossValidate(f.swap); err != nil {
		f.Warnf("escrows disagree with terms: %v", err)

		return OnTermsMismatch
	}

	f.Infof("both escrows funded and match the terms")

	return fsm.NoOp
}

// DisputedAction logs the dispute. The order waits for its escrows to be
// cancelled.
func (f *FSM) DisputedAction(_ context.Context,
	_ fsm.EventContext) fsm.EventType {

	f.Warnf("disputed, escrows have to be cancelled")

	return fsm.NoOp
}

// FinalityConfirmedAction records the confirmation depth.
func (f *FSM) FinalityConfirmedAction(_ context.Context,
	eventCtx fsm.EventContext) fsm.EventType {

	req, ok := eventCtx.(*finalityRequest)
	if !ok {
		return f.HandleError(fsm.ErrInvalidContextType)
	}

	f.swap.order.FinalityDepth = req.depth

	f.Infof("destination deposit final at %d confirmations", req.depth)

	return fsm.NoOp
}

// SecretRevealedAction records the secret, or an escrow closed after the
// reveal, and settles the order once both escrows are withdrawn.
func (f *FSM) SecretRevealedAction(_ context.Context,
	eventCtx fsm.EventContext) fsm.EventType {

	o := f.swap.order

	switch req := eventCtx.(type) {
	case *secretRequest:
		o.Secret = cloneBytes(req.secret)
		o.SecretSharedToResolver = true

		f.Infof("secret revealed")

		return fsm.NoOp

	case *escrowEvent:
		f.swap.setEscrow(req.escrow)

		// A withdrawal publishes the secret on chain.
		if o.Secret == nil && req.escrow.Secret != nil {
			o.Secret = cloneBytes(req.escrow.Secret)
			f.Infof("secret learned from %v escrow withdrawal",
				req.escrow.Side)
		}

	default:
		return f.HandleError(fsm.ErrInvalidContextType)
	}

	switch {
	case f.swap.allState(escrow.Withdrawn):
		return OnSettled

	case len(f.swap.escrows) == len(escrow.Sides) && f.swap.allFinal():
		f.Warnf("escrows closed with mixed outcome")

		return OnCancelled
	}

	return fsm.NoOp
}

// CancelPendingAction records a closed escrow and cancels the order once no
// escrow holds funds anymore.
func (f *FSM) CancelPendingAction(_ context.Context,
	eventCtx fsm.EventContext) fsm.EventType {

	if ev, ok := eventCtx.(*escrowEvent); ok {
		f.swap.setEscrow(ev.escrow)
	}

	if f.swap.anyLocked() {
		f.Infof("waiting for funded escrows to be cancelled")

		return fsm.NoOp
	}

	return OnCancelled
}
