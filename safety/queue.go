package safety

import (
	"sync"

	"github.com/kokoro-ai/kokoro/core"
)

// DefaultQueueCapacity is the per-user mailbox size. A stale safety nudge is
// less valuable than a fresh one, so insertion past capacity evicts the
// oldest entry instead of rejecting the new one.
const DefaultQueueCapacity = 5

// CommandQueue is the per-user bounded FIFO mailbox of pending safety
// commands. Enqueue never fails; Dequeue is destructive, so a command is
// consumed by at most one turn. Safe for concurrent use.
type CommandQueue struct {
	mu       sync.Mutex
	capacity int
	pending  map[string][]core.SafetyCommand
}

// NewCommandQueue constructs an empty queue. A non-positive capacity falls
// back to DefaultQueueCapacity.
func NewCommandQueue(capacity int) *CommandQueue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &CommandQueue{
		capacity: capacity,
		pending:  make(map[string][]core.SafetyCommand),
	}
}

// Enqueue appends a command to the user's mailbox, evicting the oldest entry
// when the mailbox is full. Eviction is backpressure policy, not an error.
func (q *CommandQueue) Enqueue(cmd core.SafetyCommand) {
	q.mu.Lock()
	defer q.mu.Unlock()

	queue := append(q.pending[cmd.UserID], cmd)
	if len(queue) > q.capacity {
		queue = queue[len(queue)-q.capacity:]
	}
	q.pending[cmd.UserID] = queue
}

// Dequeue removes and returns the oldest pending command for the user. The
// second return is false when the mailbox is empty.
func (q *CommandQueue) Dequeue(userID string) (core.SafetyCommand, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	queue := q.pending[userID]
	if len(queue) == 0 {
		return core.SafetyCommand{}, false
	}
	cmd := queue[0]
	if len(queue) == 1 {
		delete(q.pending, userID)
	} else {
		q.pending[userID] = queue[1:]
	}
	return cmd, true
}

// Len reports the number of pending commands for a user.
func (q *CommandQueue) Len(userID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending[userID])
}
