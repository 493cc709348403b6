package dialogue

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/kokoro-ai/kokoro/core"
	"github.com/kokoro-ai/kokoro/logging"
)

// ContextBuilderOptions configure optional collaborators of a ContextBuilder.
type ContextBuilderOptions struct {
	Physical core.PhysicalStateService
	Mind     core.MindBehaviorService
	Logger   logging.Logger
}

// ContextBuilder assembles the per-turn ConversationContext from the memory
// and state services. Memory is mandatory; the state reads are optional and
// degrade to nil on failure.
type ContextBuilder struct {
	memory   core.MemoryService
	physical core.PhysicalStateService
	mind     core.MindBehaviorService
	logger   logging.Logger
}

// NewContextBuilder constructs a builder over the mandatory memory service.
func NewContextBuilder(memory core.MemoryService, optFns ...func(o *ContextBuilderOptions)) *ContextBuilder {
	opts := ContextBuilderOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &ContextBuilder{
		memory:   memory,
		physical: opts.Physical,
		mind:     opts.Mind,
		logger:   logger,
	}
}

// Build runs the memory retrieve and the two state reads concurrently and
// joins them into a ConversationContext. A memory failure fails the build; a
// state read failure only leaves the corresponding field nil.
func (b *ContextBuilder) Build(ctx context.Context, userID, transcript string) (*core.ConversationContext, error) {
	var (
		snap *core.MemorySnapshot
		phys *core.PhysicalState
		mind *core.MindBehaviorState
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s, err := b.memory.RetrieveForDialogue(gctx, userID, transcript)
		if err != nil {
			return fmt.Errorf("dialogue: memory retrieve for %s: %w", userID, err)
		}
		snap = s
		return nil
	})
	if b.physical != nil {
		g.Go(func() error {
			p, err := b.physical.PhysicalState(gctx, userID)
			if err != nil {
				b.logger.Warn("physical state unavailable, continuing without it", "user_id", userID, "error", err)
				return nil
			}
			phys = p
			return nil
		})
	}
	if b.mind != nil {
		g.Go(func() error {
			m, err := b.mind.MindBehaviorState(gctx, userID)
			if err != nil {
				b.logger.Warn("mind/behavior state unavailable, continuing without it", "user_id", userID, "error", err)
				return nil
			}
			mind = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	cc := &core.ConversationContext{
		Physical:     phys,
		MindBehavior: mind,
	}
	if snap != nil {
		cc.Profile = snap.Profile
		cc.Facts = snap.Facts
		cc.Goals = snap.Goals
		cc.Gratitude = snap.Gratitude
		cc.LastMode = snap.LastMode
		cc.LastEmotion = snap.LastEmotion
	}
	return cc, nil
}
