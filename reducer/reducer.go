// Package reducer defines the pure state-transition contract (spec §3, §4.3)
// and its two composition operators, Combine and Scope (spec §4.4).
//
// A Reducer is deliberately not an interface with associated types — Go has
// no associated types — so it is expressed as a generic interface
// parameterized over State, Action and Environment, mirroring the teacher's
// (go-crablet) preference for small, single-method interfaces
// (pkg/dcb/core.go's EventStore, CommandHandler) over deep hierarchies.
package reducer

// Reducer is a pure function of its inputs with respect to observable
// state: any non-determinism (clock, ID generation, RNG) must come from
// Environment. Reduce must not block; long-running work is expressed as an
// Effect and carried out by the store's executor off the dispatch path.
type Reducer[State any, Action any, Environment any] interface {
	// Reduce mutates state in place in response to action and returns the
	// effects to run. It must be deterministic for any fixed
	// (state, action, env) up to env's own non-determinism (spec invariant
	// 1, spec §3).
	Reduce(state *State, action Action, env Environment) Effects[Action]
}

// Func adapts a plain function to the Reducer interface, the same way the
// teacher's CommandHandlerFunc adapts a function to CommandHandler
// (pkg/dcb/command.go).
type Func[State any, Action any, Environment any] func(state *State, action Action, env Environment) Effects[Action]

// Reduce implements Reducer.
func (f Func[State, Action, Environment]) Reduce(state *State, action Action, env Environment) Effects[Action] {
	return f(state, action, env)
}

// combined runs every child reducer, in order, against the same action.
// Children share State, Action and Environment; later children observe
// state mutations made by earlier children (spec §4.4, testable property
// 4).
type combined[State any, Action any, Environment any] struct {
	children []Reducer[State, Action, Environment]
}

// Combine builds a Reducer whose Reduce invokes every child in order with
// the same action and concatenates their effects.
func Combine[State any, Action any, Environment any](children ...Reducer[State, Action, Environment]) Reducer[State, Action, Environment] {
	return &combined[State, Action, Environment]{children: children}
}

func (c *combined[State, Action, Environment]) Reduce(state *State, action Action, env Environment) Effects[Action] {
	var effects Effects[Action]
	for _, child := range c.children {
		effects = append(effects, child.Reduce(state, action, env)...)
	}
	return effects
}

// scoped lifts a Reducer over a sub-state to one over the parent state,
// using a getter/setter pair as a lens (spec §4.4). get and set must
// satisfy the lens law set(parent, get(parent)) == parent; scope does not
// and cannot verify this, it is a caller obligation (spec §8 round-trip
// laws).
type scoped[Parent any, Sub any, Action any, Environment any] struct {
	child Reducer[Sub, Action, Environment]
	get   func(*Parent) Sub
	set   func(*Parent, Sub)
}

// Scope lifts child, a Reducer over Sub, to a Reducer over Parent. On each
// Reduce call it projects the sub-state out of the parent with get, runs
// child against a copy of it, and writes the (possibly mutated) result back
// with set.
func Scope[Parent any, Sub any, Action any, Environment any](
	child Reducer[Sub, Action, Environment],
	get func(*Parent) Sub,
	set func(*Parent, Sub),
) Reducer[Parent, Action, Environment] {
	return &scoped[Parent, Sub, Action, Environment]{child: child, get: get, set: set}
}

func (s *scoped[Parent, Sub, Action, Environment]) Reduce(state *Parent, action Action, env Environment) Effects[Action] {
	sub := s.get(state)
	effects := s.child.Reduce(&sub, action, env)
	s.set(state, sub)
	return effects
}
