package eventsourcingtest

import (
	"context"
	"testing"

	"github.com/arkflow-dev/reactor/eventstore"
	"github.com/arkflow-dev/reactor/projection"
)

// ProjectionTestHarness drives a Projection with a sequence of events and
// asserts against its backing InMemoryProjectionStore, grounded on
// original_source's testing/src/projection_mocks.rs ProjectionTestHarness
// (given_events -> then_contains / then_not_contains).
type ProjectionTestHarness struct {
	t          *testing.T
	projection projection.Projection
	store      *InMemoryProjectionStore
}

// NewProjectionTestHarness creates a harness for proj, backed by store
// (which must be the same store instance proj writes to).
func NewProjectionTestHarness(t *testing.T, proj projection.Projection, store *InMemoryProjectionStore) *ProjectionTestHarness {
	return &ProjectionTestHarness{t: t, projection: proj, store: store}
}

// GivenEvents applies events to the projection in order, failing the test
// immediately if any application errors.
func (h *ProjectionTestHarness) GivenEvents(ctx context.Context, events ...eventstore.SerializedEvent) *ProjectionTestHarness {
	h.t.Helper()
	for _, e := range events {
		if err := h.projection.ApplyEvent(ctx, e); err != nil {
			h.t.Fatalf("eventsourcingtest: ApplyEvent failed: %v", err)
		}
	}
	return h
}

// ThenContains asserts the backing store holds key.
func (h *ProjectionTestHarness) ThenContains(ctx context.Context, key string) *ProjectionTestHarness {
	h.t.Helper()
	ok, err := h.store.Exists(ctx, key)
	if err != nil {
		h.t.Fatalf("eventsourcingtest: Exists failed: %v", err)
	}
	if !ok {
		h.t.Fatalf("eventsourcingtest: expected projection store to contain %q, but it was not found", key)
	}
	return h
}

// ThenNotContains asserts the backing store does not hold key.
func (h *ProjectionTestHarness) ThenNotContains(ctx context.Context, key string) *ProjectionTestHarness {
	h.t.Helper()
	ok, err := h.store.Exists(ctx, key)
	if err != nil {
		h.t.Fatalf("eventsourcingtest: Exists failed: %v", err)
	}
	if ok {
		h.t.Fatalf("eventsourcingtest: expected projection store to NOT contain %q, but it was found", key)
	}
	return h
}

// Data returns the raw bytes stored under key, if any.
func (h *ProjectionTestHarness) Data(ctx context.Context, key string) ([]byte, bool) {
	h.t.Helper()
	data, ok, err := h.store.Get(ctx, key)
	if err != nil {
		h.t.Fatalf("eventsourcingtest: Get failed: %v", err)
	}
	return data, ok
}
