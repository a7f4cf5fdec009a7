package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// AcquireTimeoutError is returned by Bulkhead.Execute when no permit became
// available within the configured acquire timeout (spec §4.9, §7).
type AcquireTimeoutError struct {
	Name     string
	Duration time.Duration
}

func (e *AcquireTimeoutError) Error() string {
	return fmt.Sprintf("bulkhead %q: acquire timed out after %s", e.Name, e.Duration)
}

// BulkheadConfig configures a named permit pool (spec §4.9), grounded on
// original_source's agent-patterns/src/resilience/bulkhead.rs
// BulkheadConfig.
type BulkheadConfig struct {
	MaxConcurrent  int64
	AcquireTimeout time.Duration
}

// DefaultBulkheadConfig matches original_source's BulkheadConfig::default().
func DefaultBulkheadConfig() BulkheadConfig {
	return BulkheadConfig{MaxConcurrent: 10, AcquireTimeout: 5 * time.Second}
}

// Bulkhead bounds concurrency for one resource class using a semaphore
// permit set (spec §4.9, §5, §8 testable property 6: at any instant the
// number of concurrent Execute invocations holding a permit never exceeds
// MaxConcurrent).
type Bulkhead struct {
	name string
	cfg  BulkheadConfig
	sem  *semaphore.Weighted
}

// NewBulkhead creates a Bulkhead named name (used only for error messages
// and registry lookups), configured by cfg.
func NewBulkhead(name string, cfg BulkheadConfig) *Bulkhead {
	return &Bulkhead{name: name, cfg: cfg, sem: semaphore.NewWeighted(cfg.MaxConcurrent)}
}

// Execute awaits a permit (up to the configured acquire timeout), runs f,
// then releases the permit on every exit path — success, error, panic, or
// cancellation. On timeout it returns AcquireTimeoutError without running
// f.
func (b *Bulkhead) Execute(ctx context.Context, f func(ctx context.Context) error) (err error) {
	acquireCtx, cancel := context.WithTimeout(ctx, b.cfg.AcquireTimeout)
	defer cancel()

	if acquireErr := b.sem.Acquire(acquireCtx, 1); acquireErr != nil {
		return &AcquireTimeoutError{Name: b.name, Duration: b.cfg.AcquireTimeout}
	}
	defer b.sem.Release(1)

	return f(ctx)
}

// Registry maps string names to Bulkheads for heterogeneous resource
// classes (e.g. "llm-api" limited to 5, "database" limited to 20).
// Exhausting one bulkhead never blocks acquires on another (spec §4.9).
type Registry struct {
	mu        sync.RWMutex
	bulkheads map[string]*Bulkhead
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{bulkheads: make(map[string]*Bulkhead)}
}

// Register adds or replaces the bulkhead for name.
func (r *Registry) Register(name string, cfg BulkheadConfig) *Bulkhead {
	b := NewBulkhead(name, cfg)
	r.mu.Lock()
	r.bulkheads[name] = b
	r.mu.Unlock()
	return b
}

// Get returns the bulkhead registered for name, or ok=false if none was
// registered.
func (r *Registry) Get(name string) (*Bulkhead, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bulkheads[name]
	return b, ok
}
