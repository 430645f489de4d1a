package escrow

import (
	"errors"
	"fmt"

	"github.com/Anmol-Dhiman/stellar-fusionX/fsm"
	"github.com/holiman/uint256"
)

var (
	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("invalid escrow parameters")

	// ErrInvalidState is matched by every *InvalidStateError.
	ErrInvalidState = errors.New("invalid escrow state")

	// ErrSecretMismatch is returned when a secret does not hash to the
	// escrow's hash lock.
	ErrSecretMismatch = errors.New("secret does not match hash lock")

	// ErrTimelockActive is returned when a public path is used before the
	// escrow timed out.
	ErrTimelockActive = errors.New("escrow timeout has not elapsed")

	// ErrTimelockExpired is returned when a private path is used after
	// the escrow timed out.
	ErrTimelockExpired = errors.New("escrow timeout has elapsed")

	// ErrUnauthorized is returned when the caller may not perform the
	// operation.
	ErrUnauthorized = errors.New("unauthorized caller")

	// ErrUnderfunded is matched by every *UnderfundedError.
	ErrUnderfunded = errors.New("escrow underfunded")
)

// ValidationError is returned when deployment parameters are malformed.
type ValidationError struct {
	Field  string
	Reason string
}

func newValidationError(field, format string,
	args ...interface{}) *ValidationError {

	return &ValidationError{
		Field:  field,
		Reason: fmt.Sprintf(format, args...),
	}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid escrow %s: %s", e.Field, e.Reason)
}

// Is allows matching against ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// InvalidStateError is returned when an operation is attempted in a state
// that does not allow it.
type InvalidStateError struct {
	// State is the state the escrow is in.
	State fsm.StateType

	// Operation is the attempted operation.
	Operation string

	// AlreadyApplied is set when the escrow is in the state the operation
	// would have produced. Callers replaying notifications can treat such
	// errors as no-ops.
	AlreadyApplied bool
}

// Error implements the error interface.
func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s escrow in state %s", e.Operation,
		e.State)
}

// Is allows matching against ErrInvalidState.
func (e *InvalidStateError) Is(target error) bool {
	return target == ErrInvalidState
}

// UnderfundedError is returned when an observed deposit does not satisfy the
// escrow's commitment.
type UnderfundedError struct {
	Required      *uint256.Int
	Observed      *uint256.Int
	RequiredToken string
	ObservedToken string
}

// Error implements the error interface.
func (e *UnderfundedError) Error() string {
	if e.RequiredToken != e.ObservedToken {
		return fmt.Sprintf("escrow funded with token %v, expected %v",
			e.ObservedToken, e.RequiredToken)
	}

	return fmt.Sprintf("escrow funded with %v, expected at least %v",
		e.Observed.Dec(), e.Required.Dec())
}

// Is allows matching against ErrUnderfunded.
func (e *UnderfundedError) Is(target error) bool {
	return target == ErrUnderfunded
}

// IsAlreadyApplied returns true if err is an InvalidStateError for an
// operation that already took effect.
func IsAlreadyApplied(err error) bool {
	var stateErr *InvalidStateError
	if errors.As(err, &stateErr) {
		return stateErr.AlreadyApplied
	}

	return false
}
