package escrow

import (
	"context"

	"github.com/Anmol-Dhiman/stellar-fusionX/fsm"
	"github.com/holiman/uint256"
)

// fundRequest is the event context of OnFund.
type fundRequest struct {
	amount *uint256.Int
}

// closeRequest is the event context of OnWithdraw and OnCancel.
type closeRequest struct {
	secret []byte
	caller string
	public bool
}

// DeployedAction stamps the deployment time of the escrow.
func (f *FSM) DeployedAction(_ context.Context,
	_ fsm.EventContext) fsm.EventType {

	f.escrow.DeployedAt = f.escrow.UpdatedAt

	f.Infof("deployed on %v at %v, locking %v %v until %v",
		f.escrow.Chain, f.escrow.Address, f.escrow.Amount.Dec(),
		f.escrow.Token, f.escrow.Timeout)

	return fsm.NoOp
}

// FundedAction records the observed deposit.
func (f *FSM) FundedAction(_ context.Context,
	eventCtx fsm.EventContext) fsm.EventType {

	req, ok := eventCtx.(*fundRequest)
	if !ok {
		return f.HandleError(fsm.ErrInvalidContextType)
	}

	f.escrow.FundedAmount = req.amount

	f.Infof("funded with %v", req.amount.Dec())

	return fsm.NoOp
}

// WithdrawnAction records the secret and the redeeming caller.
func (f *FSM) WithdrawnAction(_ context.Context,
	eventCtx fsm.EventContext) fsm.EventType {

	req, ok := eventCtx.(*closeRequest)
	if !ok {
		return f.HandleError(fsm.ErrInvalidContextType)
	}

	f.escrow.Secret = append([]byte(nil), req.secret...)
	f.escrow.ClosedBy = req.caller

	f.Infof("withdrawn by %v (public=%v)", req.caller, req.public)

	return fsm.NoOp
}

// CancelledAction records the cancelling caller.
func (f *FSM) CancelledAction(_ context.Context,
	eventCtx fsm.EventContext) fsm.EventType {

	req, ok := eventCtx.(*closeRequest)
	if !ok {
		return f.HandleError(fsm.ErrInvalidContextType)
	}

	f.escrow.ClosedBy = req.caller

	f.Infof("cancelled by %v (public=%v), refunding %v", req.caller,
		req.public, f.escrow.Depositor)

	return fsm.NoOp
}
