// Package eventstore defines the EventStore contract: append-with-expected-
// version, load-from-version, and snapshot save/load (spec §4.5). The
// interface is intentionally small and boxed-future friendly (context.Context
// plus plain return values) so it stays usable behind dynamic dispatch, the
// same design note the teacher records for its own EventStore interface
// (pkg/dcb/core.go) — concrete implementations (backends) are injected and
// swapped at runtime.
//
// A concrete Postgres-backed implementation lives in the postgres
// subpackage; an in-memory implementation for tests lives in
// eventsourcingtest.
package eventstore

import (
	"context"

	"github.com/arkflow-dev/reactor/ids"
)

// EventStore is the append-only, per-stream-versioned log described in
// spec §4.5. Append is the only operation that assigns versions; callers
// never choose them. Optimistic concurrency is the sole coordination
// mechanism — implementations must not take cross-stream write locks on
// read paths.
type EventStore interface {
	// AppendEvents atomically appends events, in order, starting at
	// version expected+1 (or version 1 when expected is nil and the
	// stream is empty). It fails with ConcurrencyConflictError if the
	// stream's current version differs from expected, and with
	// InvalidInputError if events is empty. On success it returns the
	// final version, which equals expected.Value()+len(events).
	AppendEvents(ctx context.Context, stream ids.StreamID, expected *ids.Version, events []SerializedEvent) (ids.Version, error)

	// LoadEvents returns all events for stream with version >= from (or
	// all events when from is nil), in ascending version order starting
	// at 1. An unknown stream returns an empty, non-nil slice and no
	// error.
	LoadEvents(ctx context.Context, stream ids.StreamID, from *ids.Version) ([]StoredEvent, error)

	// SaveSnapshot records (version, state) as the latest snapshot for
	// stream, overwriting any earlier snapshot.
	SaveSnapshot(ctx context.Context, stream ids.StreamID, version ids.Version, state []byte) error

	// LoadSnapshot returns the most recently saved snapshot for stream,
	// or ok=false if none has been saved. A successful SaveSnapshot(v,
	// ...) guarantees a later LoadSnapshot observes some version v' >= v
	// (spec invariant 4); it does not guarantee ordering with respect to
	// a concurrent append — callers must reconcile by loading events
	// with version > v' (spec §9 open question).
	LoadSnapshot(ctx context.Context, stream ids.StreamID) (version ids.Version, state []byte, ok bool, err error)
}
