// Package channel is an in-process EventBus implementation backed by Go
// channels. It is the single-binary/testing reference binding named in
// SPEC_FULL.md's domain stack table; a Kafka/Redpanda-family driver would
// implement the same eventbus.EventBus interface against a real broker.
//
// The delivery loop is grounded on the teacher's channel-streaming idiom
// (pkg/dcb/channel_eventstore.go ReadStreamChannel): a goroutine per
// subscription feeding a buffered channel, recovering and logging panics
// instead of crashing the process, and honoring ctx cancellation at every
// send.
package channel

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/arkflow-dev/reactor/eventbus"
	"github.com/arkflow-dev/reactor/eventstore"
)

type logEntry struct {
	topic string
	event eventstore.SerializedEvent
}

// groupCursor is the Kafka-style per-(topic,group) offset: it survives
// across individual Subscribe calls under the same group name, so a
// consumer that resubscribes after a crash resumes where it left off
// instead of re-reading the whole topic (spec §4.6 at-least-once,
// testable property 8 / scenario S5 bounded replay).
//
// next is the lowest index not yet acknowledged; it is also the index a
// fresh Subscribe call resumes delivery from. delivered counts entries at
// [next, next+delivered) that have been claimed and handed to a
// subscription's channel but not yet acked — they are "in flight". Acking
// the oldest in-flight entry advances next and shrinks delivered; a new
// Subscribe call for the group forgets any in-flight claims (see
// forgetInFlight), so entries a crashed consumer never acked become
// eligible for redelivery to whoever subscribes next, instead of being
// lost forever the moment they were handed out.
type groupCursor struct {
	mu        sync.Mutex
	next      int
	delivered int
}

func (c *groupCursor) forgetInFlight() {
	c.mu.Lock()
	c.delivered = 0
	c.mu.Unlock()
}

// Bus is an in-memory, single-process EventBus. It is safe for concurrent
// use.
type Bus struct {
	mu      sync.Mutex
	logs    map[string][]logEntry              // topic -> append-only log
	cursors map[string]map[string]*groupCursor // topic -> group -> cursor
	notify  map[string]chan struct{}           // topic -> wakeup signal for subscribers
}

// New creates an empty in-memory bus.
func New() *Bus {
	return &Bus{
		logs:    make(map[string][]logEntry),
		cursors: make(map[string]map[string]*groupCursor),
		notify:  make(map[string]chan struct{}),
	}
}

func (b *Bus) wakeupChan(topic string) chan struct{} {
	ch, ok := b.notify[topic]
	if !ok {
		ch = make(chan struct{})
		b.notify[topic] = ch
	}
	return ch
}

// Publish implements eventbus.EventBus.
func (b *Bus) Publish(ctx context.Context, topic string, event eventstore.SerializedEvent) error {
	b.mu.Lock()
	b.logs[topic] = append(b.logs[topic], logEntry{topic: topic, event: event})
	old := b.wakeupChan(topic)
	b.notify[topic] = make(chan struct{})
	b.mu.Unlock()
	close(old) // wake every subscriber blocked waiting for new entries on this topic
	return nil
}

func (b *Bus) cursorFor(topic, group string) *groupCursor {
	b.mu.Lock()
	defer b.mu.Unlock()
	groups, ok := b.cursors[topic]
	if !ok {
		groups = make(map[string]*groupCursor)
		b.cursors[topic] = groups
	}
	c, ok := groups[group]
	if !ok {
		c = &groupCursor{}
		groups[group] = c
	}
	return c
}

// Subscribe implements eventbus.EventBus.
func (b *Bus) Subscribe(ctx context.Context, topics []string, group string) (eventbus.Subscription, error) {
	if len(topics) == 0 {
		return nil, &eventbus.SubscriptionFailedError{Topics: topics, Reason: errNoTopics}
	}

	// A new Subscribe call for this group takes over from wherever the
	// previous member of the group left off, including any entries that
	// were claimed and delivered to it but never acked — those become
	// eligible for redelivery again rather than staying lost in flight
	// forever.
	for _, topic := range topics {
		b.cursorFor(topic, group).forgetInFlight()
	}

	sctx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		bus:    b,
		topics: topics,
		group:  group,
		ch:     make(chan eventbus.Delivery, 64),
		cancel: cancel,
	}
	go sub.run(sctx)
	return sub, nil
}

var errNoTopics = subscribeError("subscribe requires at least one topic")

type subscribeError string

func (e subscribeError) Error() string { return string(e) }

// pendingAck is one delivery this subscription has handed to its channel
// but not yet had acked, in the order it was sent.
type pendingAck struct {
	topic string
	index int
}

type subscription struct {
	bus    *Bus
	topics []string
	group  string
	ch     chan eventbus.Delivery
	cancel context.CancelFunc
	once   sync.Once

	ackMu   sync.Mutex
	pending []pendingAck
}

func (s *subscription) Deliveries() <-chan eventbus.Delivery { return s.ch }

// Ack implements eventbus.Subscription.
func (s *subscription) Ack() error {
	s.ackMu.Lock()
	if len(s.pending) == 0 {
		s.ackMu.Unlock()
		return fmt.Errorf("eventbus/channel: Ack called with no outstanding delivery")
	}
	next := s.pending[0]
	s.pending = s.pending[1:]
	s.ackMu.Unlock()

	return s.bus.ack(next.topic, s.group, next.index)
}

func (s *subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// ack advances cursor.next past index, which must be the oldest
// outstanding claim for (topic, group) — callers (Stream.Commit, directly,
// or tests) ack strictly in delivery order, mirroring the one-at-a-time
// receive/process/ack rhythm the rest of the runtime uses.
func (b *Bus) ack(topic, group string, index int) error {
	cursor := b.cursorFor(topic, group)
	cursor.mu.Lock()
	defer cursor.mu.Unlock()
	if index != cursor.next {
		return fmt.Errorf("eventbus/channel: out-of-order ack on topic %q group %q: got index %d, want %d", topic, group, index, cursor.next)
	}
	cursor.next++
	if cursor.delivered > 0 {
		cursor.delivered--
	}
	return nil
}

// run delivers, in order and at least once, every entry appended to any of
// s.topics since this group's cursor on that topic. Multiple subscriptions
// sharing the same group name load-balance: whichever goroutine claims a
// topic's next entry first delivers it, the same way Kafka brokers
// partition work across a consumer group's members.
func (s *subscription) run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("eventbus/channel: subscription panic recovered: %v", r)
		}
		close(s.ch)
	}()

	for {
		// Capture each topic's current wakeup channel before scanning
		// for new entries. Any Publish that lands after this point
		// closes the captured channel, so the later select never
		// misses a concurrent publish, even one that arrives mid-scan.
		s.bus.mu.Lock()
		wakeups := make([]chan struct{}, 0, len(s.topics))
		for _, topic := range s.topics {
			wakeups = append(wakeups, s.bus.wakeupChan(topic))
		}
		s.bus.mu.Unlock()

		delivered := false
		for _, topic := range s.topics {
			cursor := s.bus.cursorFor(topic, s.group)
			for {
				entry, idx, ok := s.bus.nextEntry(topic, cursor)
				if !ok {
					break
				}
				delivered = true
				s.ackMu.Lock()
				s.pending = append(s.pending, pendingAck{topic: topic, index: idx})
				s.ackMu.Unlock()
				select {
				case s.ch <- eventbus.Delivery{Topic: topic, Event: entry.event}:
				case <-ctx.Done():
					return
				}
			}
		}
		if delivered {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-firstClosed(wakeups):
		}
	}
}

// nextEntry atomically claims the next undelivered entry on topic for
// cursor, if any, and marks it in flight. Claiming (not just peeking) is
// what makes multiple same-group subscribers load-balance instead of all
// seeing every entry; the entry stays in flight (and so unavailable to any
// other subscriber) until it is acked or the group's next Subscribe call
// forgets the claim.
func (b *Bus) nextEntry(topic string, cursor *groupCursor) (logEntry, int, bool) {
	cursor.mu.Lock()
	defer cursor.mu.Unlock()

	b.mu.Lock()
	log := b.logs[topic]
	b.mu.Unlock()

	idx := cursor.next + cursor.delivered
	if idx >= len(log) {
		return logEntry{}, 0, false
	}
	cursor.delivered++
	return log[idx], idx, true
}

func firstClosed(chans []chan struct{}) <-chan struct{} {
	out := make(chan struct{})
	for _, c := range chans {
		go func(c chan struct{}) {
			<-c
			select {
			case out <- struct{}{}:
			default:
			}
		}(c)
	}
	return out
}

var _ eventbus.EventBus = (*Bus)(nil)
