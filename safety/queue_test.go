package safety

import (
	"fmt"
	"testing"

	"github.com/kokoro-ai/kokoro/core"
)

func TestCommandQueue_FIFO(t *testing.T) {
	q := NewCommandQueue(0)

	for i := 0; i < 3; i++ {
		q.Enqueue(core.SafetyCommand{UserID: "u1", Prompt: fmt.Sprintf("p%d", i)})
	}

	for i := 0; i < 3; i++ {
		cmd, ok := q.Dequeue("u1")
		if !ok {
			t.Fatalf("dequeue %d: expected command", i)
		}
		if want := fmt.Sprintf("p%d", i); cmd.Prompt != want {
			t.Fatalf("dequeue %d: got %q want %q", i, cmd.Prompt, want)
		}
	}
	if _, ok := q.Dequeue("u1"); ok {
		t.Fatalf("expected empty queue after draining")
	}
}

func TestCommandQueue_DropOldestPastCapacity(t *testing.T) {
	q := NewCommandQueue(5)

	for i := 0; i < 8; i++ {
		q.Enqueue(core.SafetyCommand{UserID: "u1", Prompt: fmt.Sprintf("p%d", i)})
	}
	if n := q.Len("u1"); n != 5 {
		t.Fatalf("expected 5 pending, got %d", n)
	}

	// exactly the 5 most recent remain, oldest-first
	for i := 3; i < 8; i++ {
		cmd, ok := q.Dequeue("u1")
		if !ok {
			t.Fatalf("expected command at position %d", i)
		}
		if want := fmt.Sprintf("p%d", i); cmd.Prompt != want {
			t.Fatalf("got %q want %q", cmd.Prompt, want)
		}
	}
	if _, ok := q.Dequeue("u1"); ok {
		t.Fatalf("expected empty after 5 dequeues")
	}
}

func TestCommandQueue_DequeueDestructive(t *testing.T) {
	q := NewCommandQueue(0)
	q.Enqueue(core.SafetyCommand{UserID: "u1", Prompt: "only"})

	if cmd, ok := q.Dequeue("u1"); !ok || cmd.Prompt != "only" {
		t.Fatalf("first dequeue wrong: %v %v", cmd, ok)
	}
	if _, ok := q.Dequeue("u1"); ok {
		t.Fatalf("second dequeue should be empty")
	}
}

func TestCommandQueue_PerUserIsolation(t *testing.T) {
	q := NewCommandQueue(0)
	q.Enqueue(core.SafetyCommand{UserID: "u1", Prompt: "for u1"})
	q.Enqueue(core.SafetyCommand{UserID: "u2", Prompt: "for u2"})

	if cmd, ok := q.Dequeue("u2"); !ok || cmd.Prompt != "for u2" {
		t.Fatalf("u2 dequeue wrong: %v %v", cmd, ok)
	}
	if cmd, ok := q.Dequeue("u1"); !ok || cmd.Prompt != "for u1" {
		t.Fatalf("u1 dequeue wrong: %v %v", cmd, ok)
	}
}
