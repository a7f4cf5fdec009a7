// Package eventsourcingtest provides fast, deterministic in-memory test
// doubles for eventstore.EventStore, eventbus.EventBus, projection.Store and
// projection.Checkpoint, plus a fluent ReducerTest DSL and a
// ProjectionTestHarness, grounded on original_source's testing crate
// (testing/src/projection_mocks.rs's InMemoryProjectionStore /
// InMemoryProjectionCheckpoint / ProjectionTestHarness) and on the teacher's
// pkg/dcb/test_helpers.go + pkg/dcb/support_test.go test-infrastructure
// idiom (small unexported JSON/random helpers alongside ginkgo/gomega
// suites).
package eventsourcingtest

import (
	"context"
	"sync"

	"github.com/arkflow-dev/reactor/eventstore"
	"github.com/arkflow-dev/reactor/ids"
	"github.com/arkflow-dev/reactor/projection"
)

// InMemoryEventStore is a mutex-guarded, map-backed eventstore.EventStore
// for unit tests. It implements the same optimistic-concurrency contract as
// eventstore/postgres.Store without requiring a database.
type InMemoryEventStore struct {
	mu        sync.Mutex
	streams   map[ids.StreamID][]eventstore.StoredEvent
	snapshots map[ids.StreamID]snapshotEntry
}

type snapshotEntry struct {
	version ids.Version
	state   []byte
}

// NewInMemoryEventStore creates an empty store.
func NewInMemoryEventStore() *InMemoryEventStore {
	return &InMemoryEventStore{
		streams:   make(map[ids.StreamID][]eventstore.StoredEvent),
		snapshots: make(map[ids.StreamID]snapshotEntry),
	}
}

func (s *InMemoryEventStore) AppendEvents(
	ctx context.Context,
	stream ids.StreamID,
	expected *ids.Version,
	events []eventstore.SerializedEvent,
) (ids.Version, error) {
	if len(events) == 0 {
		return 0, &eventstore.InvalidInputError{
			StoreError: eventstore.StoreError{Op: "AppendEvents"},
			Field:      "events",
			Value:      "empty",
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.streams[stream]
	actual := ids.Version(len(existing))

	expectedVersion := ids.Initial
	if expected != nil {
		expectedVersion = *expected
	}
	if expectedVersion != actual {
		return actual, &eventstore.ConcurrencyConflictError{
			StoreError: eventstore.StoreError{Op: "AppendEvents"},
			Stream:     stream,
			Expected:   expectedVersion,
			Actual:     actual,
		}
	}

	version := actual
	for _, e := range events {
		version = version.Next()
		existing = append(existing, eventstore.StoredEvent{
			SerializedEvent: e,
			Stream:          stream,
			Version:         version,
		})
	}
	s.streams[stream] = existing
	return version, nil
}

func (s *InMemoryEventStore) LoadEvents(
	ctx context.Context,
	stream ids.StreamID,
	from *ids.Version,
) ([]eventstore.StoredEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var fromVersion ids.Version
	if from != nil {
		fromVersion = *from
	}

	all := s.streams[stream]
	out := make([]eventstore.StoredEvent, 0, len(all))
	for _, e := range all {
		if e.Version >= fromVersion {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *InMemoryEventStore) SaveSnapshot(ctx context.Context, stream ids.StreamID, version ids.Version, state []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(state))
	copy(cp, state)
	s.snapshots[stream] = snapshotEntry{version: version, state: cp}
	return nil
}

func (s *InMemoryEventStore) LoadSnapshot(ctx context.Context, stream ids.StreamID) (ids.Version, []byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.snapshots[stream]
	if !ok {
		return 0, nil, false, nil
	}
	return entry.version, entry.state, true, nil
}

// Clear drops every stream and snapshot, for test isolation between cases
// sharing one store instance.
func (s *InMemoryEventStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streams = make(map[ids.StreamID][]eventstore.StoredEvent)
	s.snapshots = make(map[ids.StreamID]snapshotEntry)
}

var _ eventstore.EventStore = (*InMemoryEventStore)(nil)

// InMemoryProjectionStore is a HashMap-style projection read-model store
// for tests, mirroring original_source's InMemoryProjectionStore.
type InMemoryProjectionStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewInMemoryProjectionStore creates an empty projection store.
func NewInMemoryProjectionStore() *InMemoryProjectionStore {
	return &InMemoryProjectionStore{data: make(map[string][]byte)}
}

func (s *InMemoryProjectionStore) Save(ctx context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.data[key] = cp
	return nil
}

func (s *InMemoryProjectionStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *InMemoryProjectionStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *InMemoryProjectionStore) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[key]
	return ok, nil
}

// Clear empties the store, for test isolation.
func (s *InMemoryProjectionStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string][]byte)
}

// Len reports the number of keys currently stored.
func (s *InMemoryProjectionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

var _ projection.Store = (*InMemoryProjectionStore)(nil)

// InMemoryProjectionCheckpoint tracks projection checkpoint positions in a
// map, mirroring original_source's InMemoryProjectionCheckpoint.
type InMemoryProjectionCheckpoint struct {
	mu        sync.RWMutex
	positions map[string]eventstore.Position
}

// NewInMemoryProjectionCheckpoint creates an empty checkpoint tracker.
func NewInMemoryProjectionCheckpoint() *InMemoryProjectionCheckpoint {
	return &InMemoryProjectionCheckpoint{positions: make(map[string]eventstore.Position)}
}

func (c *InMemoryProjectionCheckpoint) SavePosition(ctx context.Context, projectionName string, position eventstore.Position) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.positions[projectionName] = position
	return nil
}

func (c *InMemoryProjectionCheckpoint) LoadPosition(ctx context.Context, projectionName string) (eventstore.Position, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.positions[projectionName]
	return p, ok, nil
}

var _ projection.Checkpoint = (*InMemoryProjectionCheckpoint)(nil)
