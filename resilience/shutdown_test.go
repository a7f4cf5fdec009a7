package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestShutdownRunsAllHandlersAndSucceeds(t *testing.T) {
	c := NewShutdownCoordinator(time.Second)

	var aRan, bRan bool
	c.Register(ShutdownHandlerFunc{HandlerName: "a", Fn: func(ctx context.Context) error {
		aRan = true
		return nil
	}})
	c.Register(ShutdownHandlerFunc{HandlerName: "b", Fn: func(ctx context.Context) error {
		bRan = true
		return nil
	}})

	if err := c.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown error: %v", err)
	}
	if !aRan || !bRan {
		t.Fatalf("expected both handlers to run, aRan=%v bRan=%v", aRan, bRan)
	}
}

func TestShutdownAggregatesFailures(t *testing.T) {
	c := NewShutdownCoordinator(time.Second)
	c.Register(ShutdownHandlerFunc{HandlerName: "ok", Fn: func(ctx context.Context) error { return nil }})
	c.Register(ShutdownHandlerFunc{HandlerName: "bad", Fn: func(ctx context.Context) error {
		return errors.New("boom")
	}})

	err := c.Shutdown(context.Background())
	if err == nil {
		t.Fatal("expected aggregated error")
	}

	outcomes := c.Outcomes()
	if len(outcomes) != 2 {
		t.Fatalf("len(outcomes) = %d, want 2", len(outcomes))
	}
}

func TestShutdownHandlerTimeout(t *testing.T) {
	c := NewShutdownCoordinator(10 * time.Millisecond)
	c.Register(ShutdownHandlerFunc{HandlerName: "slow", Fn: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	err := c.Shutdown(context.Background())
	if err == nil {
		t.Fatal("expected timeout error")
	}

	outcomes := c.Outcomes()
	if len(outcomes) != 1 || !outcomes[0].TimedOut {
		t.Fatalf("outcomes = %+v, want one TimedOut outcome", outcomes)
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	c := NewShutdownCoordinator(time.Second)
	runs := 0
	c.Register(ShutdownHandlerFunc{HandlerName: "once", Fn: func(ctx context.Context) error {
		runs++
		return nil
	}})

	_ = c.Shutdown(context.Background())
	_ = c.Shutdown(context.Background())

	if runs != 1 {
		t.Fatalf("runs = %d, want 1 (shutdown must be idempotent)", runs)
	}
}

func TestSignalClosedOnShutdown(t *testing.T) {
	c := NewShutdownCoordinator(time.Second)
	select {
	case <-c.Signal():
		t.Fatal("signal should not be closed before Shutdown")
	default:
	}

	_ = c.Shutdown(context.Background())

	select {
	case <-c.Signal():
	default:
		t.Fatal("signal should be closed after Shutdown")
	}
}
