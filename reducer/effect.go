package reducer

import "context"

// Kind discriminates the four Effect variants (spec §3 Effect<A>, §4.2).
type Kind int

const (
	// KindNone performs no side effect.
	KindNone Kind = iota
	// KindFuture runs a one-shot async computation yielding an optional
	// follow-up action.
	KindFuture
	// KindStream runs a lazy, finite sequence of follow-up actions.
	KindStream
	// KindFireAndForget runs a one-shot async computation whose result is
	// discarded; only its completion is observable.
	KindFireAndForget
)

// Effect is the descriptive sum type returned by a Reducer. Constructing an
// Effect performs no I/O; the executor (see the store package) is the only
// place side effects actually run. The zero value is the None effect.
type Effect[Action any] struct {
	kind     Kind
	future   func(ctx context.Context) (Action, bool, error)
	stream   func(ctx context.Context) (<-chan Action, <-chan error)
	fireForg func(ctx context.Context) error
}

// Kind reports which variant e is.
func (e Effect[Action]) Kind() Kind { return e.kind }

// None is an effect with no side effect.
func None[Action any]() Effect[Action] {
	return Effect[Action]{kind: KindNone}
}

// Future wraps a one-shot asynchronous computation. fn returns the
// follow-up action and ok=true when there is one, ok=false for "no
// follow-up action", or a non-nil error which the executor logs. No
// follow-up action is dispatched for an error; the executor does not turn
// it into a failure action.
func Future[Action any](fn func(ctx context.Context) (action Action, ok bool, err error)) Effect[Action] {
	return Effect[Action]{kind: KindFuture, future: fn}
}

// Stream wraps a lazy, finite sequence of follow-up actions. fn is invoked
// by the executor and must return promptly; it should honor ctx
// cancellation at every suspension point. Each value sent on the returned
// channel is re-dispatched in arrival order. The error channel, if it
// yields a value, terminates the stream after any actions already sent
// have been dispatched.
func Stream[Action any](fn func(ctx context.Context) (<-chan Action, <-chan error)) Effect[Action] {
	return Effect[Action]{kind: KindStream, stream: fn}
}

// FireAndForget wraps a one-shot asynchronous computation whose result is
// discarded. Its completion is observable only through explicit
// synchronization (graceful shutdown, test assertions), never through the
// action stream.
func FireAndForget[Action any](fn func(ctx context.Context) error) Effect[Action] {
	return Effect[Action]{kind: KindFireAndForget, fireForg: fn}
}

// RunFuture invokes the wrapped future. It panics if e is not a Future
// effect; callers (the executor) dispatch on Kind() first.
func (e Effect[Action]) RunFuture(ctx context.Context) (Action, bool, error) {
	return e.future(ctx)
}

// RunStream invokes the wrapped stream. It panics if e is not a Stream
// effect.
func (e Effect[Action]) RunStream(ctx context.Context) (<-chan Action, <-chan error) {
	return e.stream(ctx)
}

// RunFireAndForget invokes the wrapped fire-and-forget computation. It
// panics if e is not a FireAndForget effect.
func (e Effect[Action]) RunFireAndForget(ctx context.Context) error {
	return e.fireForg(ctx)
}

// Effects is the small, typically 0-4 element, result of one Reduce call.
// The teacher's domain has no smallvec-style library in its dependency
// graph (neither go-crablet nor any other pack repo imports one), so this
// stays a plain slice rather than a hand-rolled stack-allocated vector —
// see DESIGN.md.
type Effects[Action any] []Effect[Action]

// Append is a convenience for building an Effects value inline in a
// Reduce implementation.
func Append[Action any](effects Effects[Action], more ...Effect[Action]) Effects[Action] {
	return append(effects, more...)
}
