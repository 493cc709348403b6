// Package agent provides the shared lifecycle plumbing for bus-driven agents
// (coach, safety, the safety command intake). Concrete agents embed Base and
// supply a Run loop consuming their subscription.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Base bundles shared identity and lifecycle state. Embed it in concrete
// agent implementations; guard the Run loop with Begin/End so an agent cannot
// run twice concurrently. All exported methods are goroutine-safe.
type Base struct {
	name    string
	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
}

// NewBase constructs a Base with the given agent name.
func NewBase(name string) Base {
	return Base{name: name}
}

// Name returns the human-readable name for this agent.
func (b *Base) Name() string { return b.name }

// Begin transitions the agent to running state and returns a derived context
// that is cancelled when Stop is invoked. Only the first successful
// invocation changes state; calling Begin while running returns an error.
func (b *Base) Begin(ctx context.Context) (context.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return nil, fmt.Errorf("agent %s is already running", b.name)
	}

	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.running = true
	return ctx, nil
}

// End marks the agent as stopped and releases its cancel func. Call from a
// defer in the Run loop.
func (b *Base) End() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
	b.running = false
}

// Stop cancels the agent's derived context, unblocking its Run loop. It
// returns an error if the agent was not running.
func (b *Base) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running {
		return errors.New("agent is not running")
	}
	if b.cancel != nil {
		b.cancel()
	}
	return nil
}

// Running reports whether the agent's Run loop is active.
func (b *Base) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}
