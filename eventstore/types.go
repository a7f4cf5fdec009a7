package eventstore

import (
	"time"

	"github.com/arkflow-dev/reactor/ids"
)

// Metadata is the free-form envelope metadata spec §3 requires at minimum:
// correlation/causation IDs for saga and tracing correlation, the acting
// user, and a wall-clock timestamp. Extra carries anything
// implementation-specific beyond those four.
type Metadata struct {
	CorrelationID string
	CausationID   string
	UserID        string
	Timestamp     time.Time
	Extra         map[string]string
}

// SerializedEvent is the opaque envelope persisted by an EventStore and
// carried over an EventBus (spec §3). EventType is a string tag including
// a version suffix (e.g. "OrderPlaced.v1"); Data is an
// implementation-chosen byte payload (JSON in this module's reference
// implementations, matching the teacher's pkg/dcb JSON event bodies).
type SerializedEvent struct {
	EventType string
	Data      []byte
	Metadata  Metadata
}

// StoredEvent is a SerializedEvent together with the stream version the
// store assigned it on append. EventStore.LoadEvents returns these;
// versions are assigned exclusively by the store, never chosen by callers
// (spec §4.5).
type StoredEvent struct {
	SerializedEvent
	Stream  ids.StreamID
	Version ids.Version
}

// Position is a checkpoint: an offset (bus offset, sequence number, or
// projection-local count, implementation-defined) plus a wall-clock
// timestamp kept only for observability (spec §3 EventPosition).
type Position struct {
	Offset    uint64
	Timestamp time.Time
}
