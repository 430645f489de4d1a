package order

import (
	"errors"
	"fmt"

	"github.com/Anmol-Dhiman/stellar-fusionX/escrow"
	"github.com/Anmol-Dhiman/stellar-fusionX/fsm"
)

var (
	// ErrInvalidOrder is returned for malformed order submissions.
	ErrInvalidOrder = errors.New("invalid order")

	// ErrAlreadyAccepted is returned when a different resolver is already
	// bound to the order.
	ErrAlreadyAccepted = errors.New("order already accepted")

	// ErrPrematureFinality is returned when finality or a secret is
	// submitted before the order can take it.
	ErrPrematureFinality = errors.New("premature finality")

	// ErrSecretConflict is returned when a different secret was already
	// revealed.
	ErrSecretConflict = errors.New("secret conflict")

	// ErrSecretMismatch is returned when a secret does not hash to the
	// hash lock of the order.
	ErrSecretMismatch = escrow.ErrSecretMismatch

	// ErrInvalidState is returned for transitions that are illegal in the
	// current status of the order.
	ErrInvalidState = errors.New("invalid order state")

	// ErrOrderNotFound is returned when no order exists with the id.
	ErrOrderNotFound = errors.New("order not found")

	// ErrUnderfunded is returned when an escrow funding observation does
	// not cover the committed amount.
	ErrUnderfunded = escrow.ErrUnderfunded

	// ErrTimelockExpired is returned when an escrow timed out before
	// finality or the secret could be recorded. The order is moved to
	// cancel-pending instead.
	ErrTimelockExpired = escrow.ErrTimelockExpired

	// ErrVersionConflict is returned by stores when the order changed
	// since it was read.
	ErrVersionConflict = errors.New("order version conflict")

	// ErrDuplicateHashLock is returned by stores when another order uses
	// the same hash lock.
	ErrDuplicateHashLock = errors.New("hash lock already used")
)

// InvalidOrderError describes why an order submission was rejected.
type InvalidOrderError struct {
	// Field is the offending field.
	Field string

	// Reason describes the problem.
	Reason string
}

func newInvalidOrderError(field, format string,
	args ...interface{}) *InvalidOrderError {

	return &InvalidOrderError{
		Field:  field,
		Reason: fmt.Sprintf(format, args...),
	}
}

// Error returns the error message.
func (e *InvalidOrderError) Error() string {
	return fmt.Sprintf("invalid order: %v: %v", e.Field, e.Reason)
}

// Is matches ErrInvalidOrder.
func (e *InvalidOrderError) Is(target error) bool {
	return target == ErrInvalidOrder
}

// AlreadyAcceptedError is returned when another resolver is bound.
type AlreadyAcceptedError struct {
	// OrderID is the order.
	OrderID string

	// Resolver is the bound resolver.
	Resolver string
}

// Error returns the error message.
func (e *AlreadyAcceptedError) Error() string {
	return fmt.Sprintf("order %v already accepted by %v", e.OrderID,
		e.Resolver)
}

// Is matches ErrAlreadyAccepted.
func (e *AlreadyAcceptedError) Is(target error) bool {
	return target == ErrAlreadyAccepted
}

// PrematureFinalityError is returned when an order is not yet final enough
// for the requested operation. Callers should retry later.
type PrematureFinalityError struct {
	// Status is the status of the order.
	Status fsm.StateType

	// Required is the required confirmation depth, zero if the order is
	// not final because of its status.
	Required uint32

	// Observed is the observed confirmation depth.
	Observed uint32
}

// Error returns the error message.
func (e *PrematureFinalityError) Error() string {
	if e.Required != 0 {
		return fmt.Sprintf("premature finality: %d of %d confirmations",
			e.Observed, e.Required)
	}

	return fmt.Sprintf("premature finality: order is %v", e.Status)
}

// Is matches ErrPrematureFinality.
func (e *PrematureFinalityError) Is(target error) bool {
	return target == ErrPrematureFinality
}

// InvalidStateError is returned for an operation that is illegal in the
// status of the order.
type InvalidStateError struct {
	// Status is the status of the order.
	Status fsm.StateType

	// Operation is the rejected operation.
	Operation string
}

// Error returns the error message.
func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid order state: cannot %v in state %v",
		e.Operation, e.Status)
}

// Is matches ErrInvalidState.
func (e *InvalidStateError) Is(target error) bool {
	return target == ErrInvalidState
}
