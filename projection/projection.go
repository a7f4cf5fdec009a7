// Package projection defines the read-model contracts of spec §4.7:
// Projection (event application), ProjectionStore (a KV for read models),
// ProjectionCheckpoint (a KV for resume positions), and ProjectionStream
// (binding a bus subscription to a checkpoint).
//
// Grounded on the teacher's streaming/projection idiom
// (pkg/dcb/project_state.go, pkg/dcb/streaming_projection.go): a small
// iterator-like type that pulls events one at a time and folds them into
// accumulated state, here generalized from a single SQL cursor to an
// eventbus.Subscription plus a persisted checkpoint.
package projection

import (
	"context"

	"github.com/arkflow-dev/reactor/eventstore"
)

// Projection updates a read model by applying events. ApplyEvent must be
// idempotent modulo the correlation/causation IDs in event metadata (spec
// invariant 6): applying the same event twice must leave the read model in
// the state it would be in after applying it once.
type Projection interface {
	// Name is the stable checkpoint key for this projection.
	Name() string

	// ApplyEvent updates the read model in response to one event.
	ApplyEvent(ctx context.Context, event eventstore.SerializedEvent) error

	// Rebuild resets the read model to empty for a from-scratch replay.
	// Optional: projections that cannot be cheaply reset may return
	// nil and never be driven through a rebuild.
	Rebuild(ctx context.Context) error
}

// Store is a minimal key -> bytes KV for projection read models, with
// atomic single-key writes (spec §4.7, §6).
type Store interface {
	Save(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// Checkpoint is a string (projection name) -> eventstore.Position KV used
// to resume a projection after a restart (spec §4.7, §6).
type Checkpoint interface {
	SavePosition(ctx context.Context, projectionName string, position eventstore.Position) error
	LoadPosition(ctx context.Context, projectionName string) (eventstore.Position, bool, error)
}
