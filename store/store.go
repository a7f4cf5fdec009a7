// Package store implements the state-transition loop of spec §4.8: a Store
// hosts State+Reducer+Environment, dispatches Actions one at a time,
// broadcasts dispatched actions to subscribers, and runs each Reduce
// result's effects on its executor. SendAndWaitFor is the mechanism by
// which an external API turns the asynchronous reducer world into a
// synchronous request/response.
//
// There is no teacher file that implements this loop directly — go-crablet
// is a one-shot command/append library, not a long-lived actor — so this
// package generalizes the teacher's CommandExecutor idiom
// (pkg/dcb/command_executor.go: validate, run, wrap every failure in a
// typed error) from "run one command to completion" to "run a queue of
// actions forever, with effects spawned off the dispatch path".
package store

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/arkflow-dev/reactor/reducer"
)

const (
	defaultQueueSize     = 256
	defaultBroadcastSize = 64
)

// Store hosts one State value behind a single-writer dispatch loop. Create
// one per "request scope" for privacy-sensitive workloads (the teacher's
// per-request pattern, generalized at spec §9's "per-request store
// pattern"), or one long-lived Store multiplexing many aggregates by key;
// both are valid.
type Store[State any, Action any, Environment any] struct {
	reducer reducer.Reducer[State, Action, Environment]
	env     Environment

	mu    sync.Mutex
	state State

	queue chan Action

	subMu     sync.Mutex
	subs      map[int]chan Action
	nextSubID int

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	closeMu sync.Mutex
	closed  bool
}

// Option configures a Store at construction time.
type Option[State any, Action any, Environment any] func(*Store[State, Action, Environment])

// WithQueueSize overrides the default bounded action queue capacity.
func WithQueueSize[State any, Action any, Environment any](n int) Option[State, Action, Environment] {
	return func(s *Store[State, Action, Environment]) { s.queue = make(chan Action, n) }
}

// New creates a Store with the given initial state, reducer and
// environment, and starts its dispatch loop.
func New[State any, Action any, Environment any](
	initial State,
	r reducer.Reducer[State, Action, Environment],
	env Environment,
	opts ...Option[State, Action, Environment],
) *Store[State, Action, Environment] {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Store[State, Action, Environment]{
		reducer: r,
		env:     env,
		state:   initial,
		queue:   make(chan Action, defaultQueueSize),
		subs:    make(map[int]chan Action),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.dispatchLoop()
	return s
}

// State returns a copy of the current state. There is no shared-reference
// read path (spec §9): callers needing a live view should subscribe to the
// action broadcast or use SendAndWaitFor instead of polling State.
func (s *Store[State, Action, Environment]) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Send enqueues action for dispatch. It blocks while the queue is full
// (backpressure, spec §5) and returns CancelledError if the store has been
// shut down.
func (s *Store[State, Action, Environment]) Send(action Action) error {
	if s.ctx.Err() != nil {
		return &CancelledError{}
	}
	select {
	case s.queue <- action:
		return nil
	case <-s.ctx.Done():
		return &CancelledError{}
	}
}

func (s *Store[State, Action, Environment]) dispatchLoop() {
	for {
		select {
		case action := <-s.queue:
			s.process(action)
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Store[State, Action, Environment]) process(action Action) {
	s.mu.Lock()
	effects := s.reducer.Reduce(&s.state, action, s.env)
	s.mu.Unlock()

	s.broadcast(action)

	for _, effect := range effects {
		s.runEffect(effect)
	}
}

// broadcast is best-effort and lossy: a subscriber whose buffer is full
// misses the action rather than blocking the dispatch loop (spec §4.8,
// §5).
func (s *Store[State, Action, Environment]) broadcast(action Action) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- action:
		default:
			// Slow consumer: drop. Documented lag signal, not an error.
		}
	}
}

// Subscribe registers a new broadcast listener and returns its channel and
// an unsubscribe function. Call unsubscribe to release the channel.
func (s *Store[State, Action, Environment]) Subscribe() (<-chan Action, func()) {
	s.subMu.Lock()
	id := s.nextSubID
	s.nextSubID++
	ch := make(chan Action, defaultBroadcastSize)
	s.subs[id] = ch
	s.subMu.Unlock()

	return ch, func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// runEffect runs one effect off the dispatch path. Actions it yields
// re-enter the queue via Send; its own context is cancelled when the store
// shuts down.
func (s *Store[State, Action, Environment]) runEffect(effect reducer.Effect[Action]) {
	switch effect.Kind() {
	case reducer.KindNone:
		return

	case reducer.KindFuture:
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			action, ok, err := effect.RunFuture(s.ctx)
			if err != nil {
				log.Printf("store: future effect failed: %v", err)
				return
			}
			if !ok {
				return
			}
			if sendErr := s.Send(action); sendErr != nil {
				log.Printf("store: future effect follow-up dropped: %v", sendErr)
			}
		}()

	case reducer.KindStream:
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			actions, errs := effect.RunStream(s.ctx)
			for {
				select {
				case <-s.ctx.Done():
					return
				case err, ok := <-errs:
					if ok && err != nil {
						log.Printf("store: stream effect failed: %v", err)
					}
					return
				case action, ok := <-actions:
					if !ok {
						return
					}
					if sendErr := s.Send(action); sendErr != nil {
						log.Printf("store: stream effect follow-up dropped: %v", sendErr)
						return
					}
				}
			}
		}()

	case reducer.KindFireAndForget:
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := effect.RunFireAndForget(s.ctx); err != nil {
				log.Printf("store: fire-and-forget effect failed: %v", err)
			}
		}()
	}
}

// SendAndWaitFor subscribes to the broadcast before dispatching action
// (spec §9 open question, resolved by always subscribing first), sends
// action, and waits for the first subsequently broadcast action satisfying
// predicate, up to timeout. It is the mechanism external APIs use to turn
// the asynchronous reducer world into synchronous request/response (spec
// §4.8): dispatch PlaceOrder, wait for OrderPlaced|ValidationFailed.
func (s *Store[State, Action, Environment]) SendAndWaitFor(
	action Action,
	predicate func(Action) bool,
	timeout time.Duration,
) (Action, error) {
	var zero Action

	ch, unsubscribe := s.Subscribe()
	defer unsubscribe()

	if err := s.Send(action); err != nil {
		return zero, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case broadcast := <-ch:
			if predicate(broadcast) {
				return broadcast, nil
			}
		case <-timer.C:
			return zero, &TimeoutError{Timeout: timeout.String()}
		case <-s.ctx.Done():
			return zero, &CancelledError{}
		}
	}
}

// Shutdown stops the dispatch loop from accepting new actions, cancels all
// outstanding effects at their next suspension point, and unblocks any
// SendAndWaitFor waiters with CancelledError. It blocks until every
// spawned effect goroutine has returned, or returns ctx.Err() if ctx is
// done first. Shutdown is idempotent.
func (s *Store[State, Action, Environment]) Shutdown(ctx context.Context) error {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return nil
	}
	s.closed = true
	s.closeMu.Unlock()

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
