package bus

import (
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/kokoro-ai/kokoro/core"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestPublish_NoSubscribers(t *testing.T) {
	b := New()
	defer b.Close()

	ev, delivered, err := b.Publish("coach.trigger.v1", map[string]any{"user_id": "u1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if delivered != 0 {
		t.Fatalf("expected delivered 0, got %d", delivered)
	}
	if ev.ID == "" || ev.Topic != "coach.trigger.v1" || ev.PublishedAt.IsZero() {
		t.Fatalf("event not stamped: %#v", ev)
	}
}

func TestPublish_EmptyTopic(t *testing.T) {
	b := New()
	defer b.Close()
	if _, _, err := b.Publish("", nil); err != ErrTopicRequired {
		t.Fatalf("expected ErrTopicRequired, got %v", err)
	}
}

func TestSubscribe_ReceivesSubsequentEventsOnly(t *testing.T) {
	b := New()
	defer b.Close()

	if _, _, err := b.Publish("t", map[string]any{"n": 1}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	sub, err := b.Subscribe("t")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer sub.Close()

	if _, delivered, _ := b.Publish("t", map[string]any{"n": 2}); delivered != 1 {
		t.Fatalf("expected delivered 1, got %d", delivered)
	}

	ev := mustReceive(t, sub)
	if ev.Payload["n"].(int) != 2 {
		t.Fatalf("late joiner received backfill: %#v", ev.Payload)
	}
	select {
	case extra := <-sub.Events():
		t.Fatalf("unexpected extra event: %#v", extra)
	default:
	}
}

func TestPublish_NoDeduplication(t *testing.T) {
	b := New()
	defer b.Close()

	sub, _ := b.Subscribe("t")
	defer sub.Close()

	payload := map[string]any{"k": "v"}
	b.Publish("t", payload)
	b.Publish("t", payload)

	first := mustReceive(t, sub)
	second := mustReceive(t, sub)
	if first.ID == second.ID {
		t.Fatalf("expected distinct event ids for repeated publishes")
	}
}

func TestPublish_FanOutToAllSubscribers(t *testing.T) {
	b := New()
	defer b.Close()

	subs := make([]*Subscription, 3)
	for i := range subs {
		s, err := b.Subscribe("fan")
		if err != nil {
			t.Fatalf("subscribe %d failed: %v", i, err)
		}
		subs[i] = s
		defer s.Close()
	}

	_, delivered, _ := b.Publish("fan", map[string]any{"x": true})
	if delivered != 3 {
		t.Fatalf("expected delivered 3, got %d", delivered)
	}
	for i, s := range subs {
		ev := mustReceive(t, s)
		if ev.Topic != "fan" {
			t.Fatalf("subscriber %d got wrong topic %q", i, ev.Topic)
		}
	}
}

func TestPublish_SlowSubscriberSkipped(t *testing.T) {
	b := New(func(o *Options) { o.SubscriberBuffer = 1 })
	defer b.Close()

	slow, _ := b.Subscribe("t")
	defer slow.Close()

	if _, delivered, _ := b.Publish("t", map[string]any{"n": 1}); delivered != 1 {
		t.Fatalf("first publish should deliver, got %d", delivered)
	}
	// buffer now full; the publisher must not block
	done := make(chan int, 1)
	go func() {
		_, delivered, _ := b.Publish("t", map[string]any{"n": 2})
		done <- delivered
	}()
	select {
	case delivered := <-done:
		if delivered != 0 {
			t.Fatalf("expected skipped delivery, got %d", delivered)
		}
	case <-time.After(time.Second):
		t.Fatalf("publish blocked on a slow subscriber")
	}
}

func TestRingBuffer_EvictsOldest(t *testing.T) {
	b := New(func(o *Options) { o.RingSize = 3 })
	defer b.Close()

	var ids []string
	for i := 0; i < 5; i++ {
		ev, _, _ := b.Publish("ring", map[string]any{"n": i})
		ids = append(ids, ev.ID)
	}

	buffered := b.EventsSince("ring", "")
	if len(buffered) != 3 {
		t.Fatalf("expected 3 buffered events, got %d", len(buffered))
	}
	for i, ev := range buffered {
		if ev.ID != ids[i+2] {
			t.Fatalf("buffer order wrong at %d: got %s want %s", i, ev.ID, ids[i+2])
		}
	}
}

func TestEventsSince_Cursor(t *testing.T) {
	b := New()
	defer b.Close()

	var ids []string
	for i := 0; i < 4; i++ {
		ev, _, _ := b.Publish("cur", map[string]any{"n": i})
		ids = append(ids, ev.ID)
	}

	after := b.EventsSince("cur", ids[1])
	if len(after) != 2 || after[0].ID != ids[2] || after[1].ID != ids[3] {
		t.Fatalf("cursor replay wrong: %#v", after)
	}

	// evicted / unknown cursor falls back to the full buffer
	all := b.EventsSince("cur", "no-such-id")
	if len(all) != 4 {
		t.Fatalf("unknown cursor should return full buffer, got %d", len(all))
	}

	if got := b.EventsSince("missing-topic", ""); got != nil {
		t.Fatalf("unknown topic should return nil, got %#v", got)
	}
}

func TestRingBuffer_Disabled(t *testing.T) {
	b := New(func(o *Options) { o.RingSize = 0 })
	defer b.Close()

	b.Publish("t", map[string]any{"n": 1})
	if got := b.EventsSince("t", ""); len(got) != 0 {
		t.Fatalf("expected no buffering, got %d events", len(got))
	}
}

func TestSubscription_CloseRemovesSubscriber(t *testing.T) {
	b := New()
	defer b.Close()

	sub, _ := b.Subscribe("t")
	if n := b.SubscriberCount("t"); n != 1 {
		t.Fatalf("expected 1 subscriber, got %d", n)
	}
	sub.Close()
	sub.Close() // idempotent
	if n := b.SubscriberCount("t"); n != 0 {
		t.Fatalf("expected 0 subscribers after close, got %d", n)
	}
	if _, ok := <-sub.Events(); ok {
		t.Fatalf("expected closed channel")
	}
	if _, delivered, _ := b.Publish("t", nil); delivered != 0 {
		t.Fatalf("closed subscriber still counted: %d", delivered)
	}
}

func TestBroker_Close(t *testing.T) {
	b := New()
	sub, _ := b.Subscribe("t")
	if err := b.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("second close must be a nil no-op, got %v", err)
	}

	if _, ok := <-sub.Events(); ok {
		t.Fatalf("expected subscriber channel closed on broker close")
	}
	if _, _, err := b.Publish("t", nil); err != ErrClosed {
		t.Fatalf("expected ErrClosed on publish, got %v", err)
	}
	if _, err := b.Subscribe("t"); err != ErrClosed {
		t.Fatalf("expected ErrClosed on subscribe, got %v", err)
	}
	sub.Close() // must not panic after broker close
}

func mustReceive(t *testing.T, sub *Subscription) core.Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		if !ok {
			t.Fatalf("subscription closed unexpectedly")
		}
		return ev
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for event")
		return core.Event{}
	}
}
