package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ShutdownHandler is one named component that needs cleanup on shutdown
// (spec §4.9), grounded on original_source's agent-patterns/src/shutdown.rs
// ShutdownHandler trait.
type ShutdownHandler interface {
	Name() string
	Shutdown(ctx context.Context) error
}

// ShutdownHandlerFunc adapts a plain function to ShutdownHandler.
type ShutdownHandlerFunc struct {
	HandlerName string
	Fn          func(ctx context.Context) error
}

func (f ShutdownHandlerFunc) Name() string                         { return f.HandlerName }
func (f ShutdownHandlerFunc) Shutdown(ctx context.Context) error   { return f.Fn(ctx) }

// HandlerOutcome is one handler's result from a shutdown pass.
type HandlerOutcome struct {
	Name     string
	Err      error
	TimedOut bool
}

// ShutdownCoordinator broadcasts a "shutdown initiated" signal and then
// invokes every registered handler concurrently under a wall-clock timeout
// (spec §4.9). Shutdown is idempotent: repeated calls are no-ops returning
// the first call's result.
type ShutdownCoordinator struct {
	timeout time.Duration

	mu       sync.Mutex
	handlers []ShutdownHandler

	signalOnce sync.Once
	signal     chan struct{}

	shutdownOnce sync.Once
	result       []HandlerOutcome
	resultErr    error
}

// NewShutdownCoordinator creates a coordinator with the given overall
// handler timeout.
func NewShutdownCoordinator(timeout time.Duration) *ShutdownCoordinator {
	return &ShutdownCoordinator{timeout: timeout, signal: make(chan struct{})}
}

// Register adds a handler to be invoked on Shutdown.
func (c *ShutdownCoordinator) Register(h ShutdownHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, h)
}

// Signal returns a channel that is closed once Shutdown has been invoked,
// so long-running components can select on it without registering a full
// ShutdownHandler.
func (c *ShutdownCoordinator) Signal() <-chan struct{} {
	return c.signal
}

// Shutdown broadcasts the shutdown signal, then runs every registered
// handler concurrently with an overall wall-clock timeout. It returns nil
// iff every handler returned nil; otherwise it returns an error aggregating
// every non-nil/timed-out outcome. Shutdown is idempotent — the second and
// later calls return the first call's result without re-running handlers.
func (c *ShutdownCoordinator) Shutdown(ctx context.Context) error {
	c.shutdownOnce.Do(func() {
		c.signalOnce.Do(func() { close(c.signal) })

		c.mu.Lock()
		handlers := append([]ShutdownHandler(nil), c.handlers...)
		c.mu.Unlock()

		deadlineCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		outcomes := make([]HandlerOutcome, len(handlers))
		var wg sync.WaitGroup
		for i, h := range handlers {
			wg.Add(1)
			go func(i int, h ShutdownHandler) {
				defer wg.Done()
				done := make(chan error, 1)
				go func() { done <- h.Shutdown(deadlineCtx) }()
				select {
				case err := <-done:
					outcomes[i] = HandlerOutcome{Name: h.Name(), Err: err}
				case <-deadlineCtx.Done():
					outcomes[i] = HandlerOutcome{Name: h.Name(), TimedOut: true}
				}
			}(i, h)
		}
		wg.Wait()

		c.result = outcomes
		c.resultErr = aggregate(outcomes)
	})
	return c.resultErr
}

func aggregate(outcomes []HandlerOutcome) error {
	var failed []string
	for _, o := range outcomes {
		if o.TimedOut {
			failed = append(failed, fmt.Sprintf("%s: timed out", o.Name))
		} else if o.Err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", o.Name, o.Err))
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return fmt.Errorf("shutdown: %d handler(s) failed: %v", len(failed), failed)
}

// Outcomes returns the per-handler results of the (completed) shutdown
// pass. It returns nil before Shutdown has been called.
func (c *ShutdownCoordinator) Outcomes() []HandlerOutcome {
	return c.result
}
