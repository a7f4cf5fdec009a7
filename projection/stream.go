package projection

import (
	"context"
	"fmt"
	"time"

	"github.com/arkflow-dev/reactor/eventbus"
	"github.com/arkflow-dev/reactor/eventstore"
)

// DefaultCheckpointInterval is the number of committed events between
// persisted checkpoints, matching spec §4.7's stated default of 100.
const DefaultCheckpointInterval = 100

// StreamOption configures a Stream.
type StreamOption func(*Stream)

// WithCheckpointInterval overrides DefaultCheckpointInterval.
func WithCheckpointInterval(n int) StreamOption {
	return func(s *Stream) { s.checkpointInterval = n }
}

// Stream binds an eventbus.EventBus subscription to a Checkpoint (spec
// §4.7). On construction it loads the projection's last saved position (if
// any) for observability, subscribes to topics under the projection's
// consumer group (Projection.Name()), and exposes Next/Commit. At-least-once
// bus delivery, combined with an idempotent Projection.ApplyEvent and
// periodic checkpointing here, yields at-least-once projection updates with
// bounded replay after a crash (spec §4.7, testable property, scenario S5).
type Stream struct {
	projection Projection
	checkpoint Checkpoint
	bus        eventbus.EventBus
	sub        eventbus.Subscription

	checkpointInterval int
	sinceCheckpoint    int

	lastPosition eventstore.Position
	offset       uint64
}

// NewStream constructs and subscribes a Stream. It loads the projection's
// last position (for the caller's observability; resumability itself comes
// from the bus's per-group delivery cursor, see eventbus/channel) before
// subscribing to topics under proj.Name().
func NewStream(ctx context.Context, proj Projection, bus eventbus.EventBus, checkpoint Checkpoint, topics []string, opts ...StreamOption) (*Stream, error) {
	s := &Stream{
		projection:         proj,
		checkpoint:         checkpoint,
		bus:                bus,
		checkpointInterval: DefaultCheckpointInterval,
	}
	for _, opt := range opts {
		opt(s)
	}

	if pos, ok, err := checkpoint.LoadPosition(ctx, proj.Name()); err != nil {
		return nil, fmt.Errorf("projection stream %q: load checkpoint: %w", proj.Name(), err)
	} else if ok {
		s.lastPosition = pos
		s.offset = pos.Offset
	}

	sub, err := bus.Subscribe(ctx, topics, proj.Name())
	if err != nil {
		return nil, fmt.Errorf("projection stream %q: subscribe: %w", proj.Name(), err)
	}
	s.sub = sub
	return s, nil
}

// Next blocks until the next delivery or ctx is done. It does not apply the
// event; callers call Projection.ApplyEvent themselves and then Commit on
// success, mirroring the teacher's EventIterator.Next/Event split
// (pkg/dcb/streaming_projection.go SimpleEventIterator).
func (s *Stream) Next(ctx context.Context) (eventstore.SerializedEvent, error) {
	select {
	case <-ctx.Done():
		return eventstore.SerializedEvent{}, ctx.Err()
	case d, ok := <-s.sub.Deliveries():
		if !ok {
			return eventstore.SerializedEvent{}, fmt.Errorf("projection stream %q: subscription closed", s.projection.Name())
		}
		if d.Err != nil {
			return eventstore.SerializedEvent{}, d.Err
		}
		return d.Event, nil
	}
}

// Commit records that the most recently returned event from Next has been
// successfully applied. It acks the delivery on the underlying
// subscription — which is what actually advances the bus's per-group
// delivery cursor past it (spec §4.6 at-least-once) — then increments an
// internal counter and persists the position every checkpointInterval
// commits. An event Next returned but that never reaches Commit, because
// the process died in between, stays unacked on the bus and is handed to
// whoever subscribes next in the same group.
func (s *Stream) Commit(ctx context.Context) error {
	if err := s.sub.Ack(); err != nil {
		return fmt.Errorf("projection stream %q: ack: %w", s.projection.Name(), err)
	}

	s.offset++
	s.sinceCheckpoint++
	s.lastPosition = eventstore.Position{Offset: s.offset, Timestamp: time.Now().UTC()}

	if s.sinceCheckpoint < s.checkpointInterval {
		return nil
	}
	s.sinceCheckpoint = 0
	return s.checkpoint.SavePosition(ctx, s.projection.Name(), s.lastPosition)
}

// Position returns the position as of the last Commit call (not yet
// necessarily persisted, if below the checkpoint interval).
func (s *Stream) Position() eventstore.Position { return s.lastPosition }

// Close releases the underlying subscription. It does not force a
// checkpoint flush; callers that need a durable final position should call
// Checkpoint.SavePosition explicitly before Close.
func (s *Stream) Close() error {
	return s.sub.Close()
}
