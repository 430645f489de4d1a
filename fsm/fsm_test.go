package fsm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var (
	errAction = errors.New("action error")
)

// TestStateMachineContext is a test context for the state machine.
type TestStateMachineContext struct {
	*StateMachine
}

// GetStates returns the states for the test state machine.
// The StateMap looks like this:
// State1 -> Event1 -> State2 .
func (c *TestStateMachineContext) GetStates() States {
	return States{
		"State1": State{
			Action: func(_ context.Context, _ EventContext) EventType {
				return "Event1"
			},
			Transitions: Transitions{
				"Event1": "State2",
			},
		},
		"State2": State{
			Action:      NoOpAction,
			Transitions: Transitions{},
		},
	}
}

// errorAction returns an error.
func (c *TestStateMachineContext) errorAction(_ context.Context,
	_ EventContext) EventType {

	return c.StateMachine.HandleError(errAction)
}

func setupTestStateMachineContext() *TestStateMachineContext {
	ctx := &TestStateMachineContext{}

	ctx.StateMachine = NewStateMachineWithState(
		ctx.GetStates(), "State1", 10,
	)

	return ctx
}

// TestStateMachine_Success tests the state machine with a successful event.
func TestStateMachine_Success(t *testing.T) {
	ctx := setupTestStateMachineContext()

	err := ctx.SendEvent(context.Background(), "Event1", nil)
	require.NoError(t, err)

	require.Equal(t, StateType("State2"), ctx.CurrentState())
	require.Equal(
		t, []StateType{"State2"}, ctx.DefaultObserver.Visited(),
	)
}

// TestStateMachine_ConfigurationError tests the state machine with a
// configuration error.
func TestStateMachine_ConfigurationError(t *testing.T) {
	ctx := setupTestStateMachineContext()
	ctx.StateMachine.States = nil

	err := ctx.SendEvent(context.Background(), "Event1", nil)
	require.EqualError(
		t, err,
		NewErrConfigError("state machine config is nil").Error(),
	)
}

// TestStateMachine_Rejected makes sure unknown events leave the machine in
// its current state.
func TestStateMachine_Rejected(t *testing.T) {
	ctx := setupTestStateMachineContext()

	require.False(t, ctx.CanHandle("Unknown"))

	err := ctx.SendEvent(context.Background(), "Unknown", nil)
	require.ErrorIs(t, err, ErrEventRejected)
	require.Equal(t, StateType("State1"), ctx.CurrentState())
}

// TestStateMachine_ActionError tests the state machine with an action error.
func TestStateMachine_ActionError(t *testing.T) {
	ctx := setupTestStateMachineContext()

	states := ctx.StateMachine.States

	// Add a Transition to State2 if the Action on Stat2 fails.
	// The new StateMap looks like this:
	// 	State1 -> Event1 -> State2
	//
	// 	State2 -> OnError -> ErrorState
	states["State2"] = State{
		Action: ctx.errorAction,
		Transitions: Transitions{
			OnError: "ErrorState",
		},
	}

	states["ErrorState"] = State{
		Action:      NoOpAction,
		Transitions: Transitions{},
	}

	err := ctx.SendEvent(context.Background(), "Event1", nil)

	// Sending an event to the state machine should not return an error.
	require.NoError(t, err)

	// Ensure that the last error is set.
	require.Equal(t, errAction, ctx.StateMachine.LastActionError)

	// Expect the state machine to have transitioned to the ErrorState.
	require.Equal(t, StateType("ErrorState"), ctx.CurrentState())
}

// TestCachedObserverWaitForState tests waiting for a state that is reached
// asynchronously and a state that is never reached.
func TestCachedObserverWaitForState(t *testing.T) {
	ctx := setupTestStateMachineContext()
	ctxb := context.Background()

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = ctx.SendEvent(ctxb, "Event1", nil)
	}()

	err := ctx.DefaultObserver.WaitForState(
		ctxb, time.Second, false, "State2",
	)
	require.NoError(t, err)

	err = ctx.DefaultObserver.WaitForState(
		ctxb, 20*time.Millisecond, false, "State3",
	)
	require.ErrorIs(t, err, ErrWaitForStateTimedOut)
}
