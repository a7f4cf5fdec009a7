package resilience

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestBulkheadBoundsConcurrency(t *testing.T) {
	b := NewBulkhead("test", BulkheadConfig{MaxConcurrent: 2, AcquireTimeout: time.Second})

	var inFlight int32
	var maxObserved int32
	var wg sync.WaitGroup

	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = b.Execute(context.Background(), func(ctx context.Context) error {
				n := atomic.AddInt32(&inFlight, 1)
				for {
					max := atomic.LoadInt32(&maxObserved)
					if n <= max || atomic.CompareAndSwapInt32(&maxObserved, max, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				atomic.AddInt32(&inFlight, -1)
				return nil
			})
		}()
	}
	wg.Wait()

	if maxObserved > 2 {
		t.Fatalf("observed %d concurrent executions, want <= 2", maxObserved)
	}
}

func TestBulkheadAcquireTimeout(t *testing.T) {
	b := NewBulkhead("test", BulkheadConfig{MaxConcurrent: 1, AcquireTimeout: 10 * time.Millisecond})

	release := make(chan struct{})
	go func() {
		_ = b.Execute(context.Background(), func(ctx context.Context) error {
			<-release
			return nil
		})
	}()
	time.Sleep(5 * time.Millisecond)

	err := b.Execute(context.Background(), func(ctx context.Context) error { return nil })
	close(release)

	if err == nil {
		t.Fatal("expected AcquireTimeoutError")
	}
	if _, ok := err.(*AcquireTimeoutError); !ok {
		t.Fatalf("err = %T, want *AcquireTimeoutError", err)
	}
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	r.Register("db", DefaultBulkheadConfig())

	b, ok := r.Get("db")
	if !ok || b == nil {
		t.Fatal("expected registered bulkhead to be found")
	}

	if _, ok := r.Get("missing"); ok {
		t.Fatal("expected missing bulkhead to not be found")
	}
}
