// Package eventbus defines the EventBus contract: topic publish and
// multi-topic subscribe with at-least-once delivery and consumer-group
// semantics (spec §4.6). Consumer-group semantics follow the Kafka-family
// broker model named in spec §6: partitioned, offset-tracked, per-group
// delivery.
//
// channel.Bus (the channel subpackage) is an in-memory reference
// implementation grounded on the teacher's channel-based streaming idiom
// (pkg/dcb/channel_eventstore.go, pkg/dcb/streaming_channel.go): a
// goroutine feeding a buffered channel, context-cancellation-aware, with
// panics recovered and logged rather than crashing the process.
package eventbus

import (
	"context"

	"github.com/arkflow-dev/reactor/eventstore"
)

// Delivery is one item of a subscription's stream: either a successfully
// delivered event or a per-item error. Errors are observable without
// terminating the stream (spec §4.6).
type Delivery struct {
	Topic string
	Event eventstore.SerializedEvent
	Err   error
}

// Subscription is the lazy stream of Deliveries returned by Subscribe.
type Subscription interface {
	// Deliveries yields one Delivery per event delivery. The channel is
	// closed when the subscription is closed or its context is done.
	Deliveries() <-chan Delivery

	// Ack acknowledges the oldest outstanding (delivered but not yet
	// acked) Delivery this subscription produced, advancing its
	// (topic, group) delivery cursor past it. Callers must call Ack in
	// the order Deliveries() produced them — the same one-at-a-time
	// receive/process/ack rhythm projection.Stream's Next/Commit use.
	// A Delivery that is never acked — because the consuming process
	// died before calling Ack — is handed to a later Subscribe call in
	// the same group, which is what gives the bus at-least-once
	// delivery instead of at-most-once.
	Ack() error

	// Close releases the subscription. It is safe to call more than
	// once.
	Close() error
}

// EventBus is the pub/sub transport used to fan events out to projections
// and sagas (spec §4.6).
type EventBus interface {
	// Publish durably enqueues event on topic. It returns only once
	// durability has been established with respect to all current and
	// future subscribers of topic within their retention window.
	Publish(ctx context.Context, topic string, event eventstore.SerializedEvent) error

	// Subscribe returns a Subscription delivering events published to any
	// of topics. group identifies the consumer group: different groups
	// receive independent copies of the stream; members of the same
	// group split the stream between them (load-balanced, as Kafka
	// consumer groups do). The caller is responsible for making its
	// processing of each delivery idempotent.
	Subscribe(ctx context.Context, topics []string, group string) (Subscription, error)
}
