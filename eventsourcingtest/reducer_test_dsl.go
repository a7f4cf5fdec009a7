package eventsourcingtest

import (
	"testing"

	"github.com/arkflow-dev/reactor/reducer"
)

// ReducerTest is a fluent given/when/then harness for unit-testing one
// Reducer in isolation, grounded on original_source's
// examples/ticketing/tests/saga_integration_test.rs usage of ReducerTest
// (given_state -> when_action -> then_state -> then_effects -> run).
type ReducerTest[State any, Action any, Environment any] struct {
	t       *testing.T
	reducer reducer.Reducer[State, Action, Environment]
	env     Environment
	state   State
	action  Action

	stateAssertions   []func(*testing.T, State)
	effectAssertions  []func(*testing.T, reducer.Effects[Action])
}

// NewReducerTest creates a test for r, reporting failures against t.
func NewReducerTest[State any, Action any, Environment any](
	t *testing.T,
	r reducer.Reducer[State, Action, Environment],
) *ReducerTest[State, Action, Environment] {
	return &ReducerTest[State, Action, Environment]{t: t, reducer: r}
}

// WithEnv sets the Environment passed to Reduce.
func (rt *ReducerTest[State, Action, Environment]) WithEnv(env Environment) *ReducerTest[State, Action, Environment] {
	rt.env = env
	return rt
}

// GivenState sets the state Reduce starts from.
func (rt *ReducerTest[State, Action, Environment]) GivenState(state State) *ReducerTest[State, Action, Environment] {
	rt.state = state
	return rt
}

// WhenAction sets the action dispatched to the reducer.
func (rt *ReducerTest[State, Action, Environment]) WhenAction(action Action) *ReducerTest[State, Action, Environment] {
	rt.action = action
	return rt
}

// ThenState registers an assertion run against the state after Reduce
// returns. Multiple calls accumulate; all run in registration order.
func (rt *ReducerTest[State, Action, Environment]) ThenState(assert func(*testing.T, State)) *ReducerTest[State, Action, Environment] {
	rt.stateAssertions = append(rt.stateAssertions, assert)
	return rt
}

// ThenEffects registers an assertion run against the effects Reduce
// returns. Multiple calls accumulate; all run in registration order.
func (rt *ReducerTest[State, Action, Environment]) ThenEffects(assert func(*testing.T, reducer.Effects[Action])) *ReducerTest[State, Action, Environment] {
	rt.effectAssertions = append(rt.effectAssertions, assert)
	return rt
}

// Run executes Reduce once against the configured state/action/env and
// runs every registered assertion. It returns the post-Reduce state and the
// returned effects, for tests that want to chain a further step manually.
func (rt *ReducerTest[State, Action, Environment]) Run() (State, reducer.Effects[Action]) {
	rt.t.Helper()
	state := rt.state
	effects := rt.reducer.Reduce(&state, rt.action, rt.env)

	for _, assert := range rt.stateAssertions {
		assert(rt.t, state)
	}
	for _, assert := range rt.effectAssertions {
		assert(rt.t, effects)
	}
	return state, effects
}
