package bus

import (
	"errors"
	"sync"

	"github.com/kokoro-ai/kokoro/core"
	"github.com/kokoro-ai/kokoro/logging"
)

// ErrTopicRequired is returned when publishing or subscribing with an empty
// topic name.
var ErrTopicRequired = errors.New("bus: topic is required")

// ErrClosed is returned for operations on a closed broker.
var ErrClosed = errors.New("bus: broker is closed")

// Options configure broker construction.
type Options struct {
	// RingSize caps the per-topic replay buffer. Oldest entries are evicted
	// past capacity. Zero disables buffering entirely.
	RingSize int
	// SubscriberBuffer sets the per-subscriber channel capacity. A subscriber
	// whose buffer is full misses events rather than blocking the publisher.
	SubscriberBuffer int
	// Logger receives delivery diagnostics; defaults to NoOpLogger.
	Logger logging.Logger
}

// Broker is an in-process pub/sub event bus. Publishers push a payload to a
// topic; every currently-connected subscriber of that topic receives the
// stamped event. Delivery is best-effort and at-most-once per subscriber:
// there is no durable log and no redelivery. A bounded per-topic ring buffer
// retains recent events so late joiners may replay from a cursor via
// EventsSince.
//
// All methods are safe for concurrent use.
type Broker struct {
	mu     sync.RWMutex
	topics map[string]*topic
	opts   Options
	closed bool
}

type topic struct {
	subscribers map[string]*Subscription
	ring        []core.Event
}

// Subscription is a live attachment to a topic. Consume events from Events()
// and call Close when done; Close detaches the subscriber and releases its
// channel so the broker holds no reference to it afterwards.
type Subscription struct {
	id     string
	topic  string
	ch     chan core.Event
	broker *Broker
	once   sync.Once
}

// Events returns the receive channel. It is closed when the subscription or
// the broker is closed.
func (s *Subscription) Events() <-chan core.Event { return s.ch }

// Topic returns the subscribed topic name.
func (s *Subscription) Topic() string { return s.topic }

// Close detaches the subscription from the broker and closes its channel.
// Idempotent.
func (s *Subscription) Close() {
	s.once.Do(func() { s.broker.unsubscribe(s) })
}

// New constructs a Broker with optional overrides.
func New(optFns ...func(o *Options)) *Broker {
	opts := Options{
		RingSize:         100,
		SubscriberBuffer: 16,
		Logger:           logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Broker{topics: make(map[string]*topic), opts: opts}
}

// Publish stamps the payload into an immutable event, records it in the
// topic's ring buffer and pushes it to every current subscriber. It returns
// the event and the number of subscribers that received it. Publishing to a
// topic nobody listens on succeeds with delivered 0. A subscriber whose
// buffer is full is skipped (at-most-once, never block the publisher).
func (b *Broker) Publish(topicName string, payload map[string]any) (core.Event, int, error) {
	if topicName == "" {
		return core.Event{}, 0, ErrTopicRequired
	}

	ev := core.NewEvent(topicName, payload)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return core.Event{}, 0, ErrClosed
	}

	t := b.topicLocked(topicName)
	if b.opts.RingSize > 0 {
		t.ring = append(t.ring, ev)
		if len(t.ring) > b.opts.RingSize {
			t.ring = t.ring[len(t.ring)-b.opts.RingSize:]
		}
	}

	delivered := 0
	for _, sub := range t.subscribers {
		select {
		case sub.ch <- ev:
			delivered++
		default:
			b.opts.Logger.Warn("bus: subscriber buffer full, event skipped", "topic", topicName, "event_id", ev.ID)
		}
	}
	b.opts.Logger.Debug("bus: published", "topic", topicName, "event_id", ev.ID, "delivered", delivered)
	return ev, delivered, nil
}

// Subscribe attaches a new subscriber to the topic. Only events published
// after the subscription is established are delivered; use EventsSince for
// replay.
func (b *Broker) Subscribe(topicName string) (*Subscription, error) {
	if topicName == "" {
		return nil, ErrTopicRequired
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	sub := &Subscription{
		id:     core.NewID(),
		topic:  topicName,
		ch:     make(chan core.Event, b.opts.SubscriberBuffer),
		broker: b,
	}
	b.topicLocked(topicName).subscribers[sub.id] = sub
	return sub, nil
}

// EventsSince returns buffered events for the topic published after the
// event with the given id, oldest first. An empty or unknown cursor returns
// the full buffer (the cursor may have been evicted already). The returned
// slice is a copy.
func (b *Broker) EventsSince(topicName, cursor string) []core.Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	t, ok := b.topics[topicName]
	if !ok {
		return nil
	}
	start := 0
	if cursor != "" {
		for i, ev := range t.ring {
			if ev.ID == cursor {
				start = i + 1
				break
			}
		}
	}
	out := make([]core.Event, len(t.ring)-start)
	copy(out, t.ring[start:])
	return out
}

// SubscriberCount reports the current number of subscribers for a topic.
func (b *Broker) SubscriberCount(topicName string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t, ok := b.topics[topicName]
	if !ok {
		return 0
	}
	return len(t.subscribers)
}

// Close detaches and closes every subscription. Subsequent publishes and
// subscribes fail with ErrClosed. Closing an already-closed broker is a
// no-op.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, t := range b.topics {
		for id, sub := range t.subscribers {
			close(sub.ch)
			delete(t.subscribers, id)
		}
	}
	return nil
}

func (b *Broker) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return // channel already closed by Close
	}
	t, ok := b.topics[sub.topic]
	if !ok {
		return
	}
	if _, ok := t.subscribers[sub.id]; !ok {
		return
	}
	delete(t.subscribers, sub.id)
	close(sub.ch)
}

// topicLocked returns (allocating if needed) the topic entry; caller must
// hold the write lock.
func (b *Broker) topicLocked(name string) *topic {
	t, ok := b.topics[name]
	if !ok {
		t = &topic{subscribers: make(map[string]*Subscription)}
		b.topics[name] = t
	}
	return t
}

var _ core.Publisher = (*Broker)(nil)
