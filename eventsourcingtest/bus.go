package eventsourcingtest

import (
	"context"
	"sync"

	"github.com/arkflow-dev/reactor/eventbus"
	"github.com/arkflow-dev/reactor/eventstore"
)

// InMemoryEventBus is a trivial eventbus.EventBus for unit tests: every
// Subscribe call gets its own channel and sees every Publish from the
// moment it subscribes onward. Unlike eventbus/channel.Bus it has no
// consumer-group fan-out semantics — tests that need those should use
// eventbus/channel.Bus directly.
type InMemoryEventBus struct {
	mu   sync.Mutex
	subs map[int]*inMemorySubscription
	next int
}

// NewInMemoryEventBus creates an empty in-memory bus.
func NewInMemoryEventBus() *InMemoryEventBus {
	return &InMemoryEventBus{subs: make(map[int]*inMemorySubscription)}
}

func (b *InMemoryEventBus) Publish(ctx context.Context, topic string, event eventstore.SerializedEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subs {
		if !s.wantsTopic(topic) {
			continue
		}
		select {
		case s.ch <- eventbus.Delivery{Topic: topic, Event: event}:
		default:
			// Buffered channel full: test consumers are expected to drain
			// promptly, so the delivery is dropped. Unlike the
			// channel-backed bus, which waits until each entry is
			// delivered, this double loses it.
		}
	}
	return nil
}

func (b *InMemoryEventBus) Subscribe(ctx context.Context, topics []string, group string) (eventbus.Subscription, error) {
	if len(topics) == 0 {
		return nil, &eventbus.SubscriptionFailedError{Topics: topics, Reason: errEmptyTopics}
	}
	set := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		set[t] = struct{}{}
	}

	b.mu.Lock()
	id := b.next
	b.next++
	sub := &inMemorySubscription{bus: b, id: id, topics: set, ch: make(chan eventbus.Delivery, 64)}
	b.subs[id] = sub
	b.mu.Unlock()

	return sub, nil
}

var errEmptyTopics = &emptyTopicsError{}

type emptyTopicsError struct{}

func (e *emptyTopicsError) Error() string { return "eventsourcingtest: no topics given" }

type inMemorySubscription struct {
	bus    *InMemoryEventBus
	id     int
	topics map[string]struct{}
	ch     chan eventbus.Delivery
	once   sync.Once
}

func (s *inMemorySubscription) wantsTopic(topic string) bool {
	_, ok := s.topics[topic]
	return ok
}

func (s *inMemorySubscription) Deliveries() <-chan eventbus.Delivery { return s.ch }

// Ack is a no-op: InMemoryEventBus has no per-group delivery cursor to
// advance, so there is nothing to acknowledge.
func (s *inMemorySubscription) Ack() error { return nil }

func (s *inMemorySubscription) Close() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s.id)
		s.bus.mu.Unlock()
		close(s.ch)
	})
	return nil
}

var _ eventbus.EventBus = (*InMemoryEventBus)(nil)
