package ace

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kokoro-ai/kokoro/core"
	"github.com/kokoro-ai/kokoro/logging"
)

// Curation removal rule: a bullet is dropped only on overwhelming negative
// evidence, never on a close call.
const (
	removalHarmfulFloor = 5
	removalRatio        = 3
)

// Defaults for the cycle cadence.
const (
	DefaultWindow      = 7 * 24 * time.Hour
	DefaultMinInterval = 24 * time.Hour
)

// Options configure an Evolver.
type Options struct {
	// Window is how far back turn and retrieval logs are mined.
	Window time.Duration
	// MinInterval is the idempotence guard between completed cycles.
	MinInterval time.Duration
	// Now overrides the clock, for tests.
	Now    func() time.Time
	Logger logging.Logger
}

// Evolver runs the generate/reflect/curate cycle against a playbook store and
// a log source.
type Evolver struct {
	playbooks   core.PlaybookStore
	logs        core.TurnLogSource
	window      time.Duration
	minInterval time.Duration
	now         func() time.Time
	logger      logging.Logger
}

// NewEvolver constructs an evolver over the playbook store and log source.
func NewEvolver(playbooks core.PlaybookStore, logs core.TurnLogSource, optFns ...func(o *Options)) *Evolver {
	opts := Options{Window: DefaultWindow, MinInterval: DefaultMinInterval, Now: time.Now}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.MinInterval <= 0 {
		opts.MinInterval = DefaultMinInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Evolver{
		playbooks:   playbooks,
		logs:        logs,
		window:      opts.Window,
		minInterval: opts.MinInterval,
		now:         opts.Now,
		logger:      logger,
	}
}

// Evolve runs one full cycle for the user. skipped is true when the guard
// suppressed the run; force bypasses the guard. The returned playbook is the
// persisted state after the call either way.
func (e *Evolver) Evolve(ctx context.Context, userID string, force bool) (pb *core.Playbook, skipped bool, err error) {
	if userID == "" {
		return nil, false, errors.New("ace: user id is required")
	}
	now := e.now().UTC()

	pb, err = e.playbooks.Playbook(ctx, userID)
	switch {
	case errors.Is(err, core.ErrPlaybookNotFound):
		pb = core.NewPlaybook(userID)
	case err != nil:
		return nil, false, fmt.Errorf("ace: load playbook for %s: %w", userID, err)
	default:
		pb = pb.Clone()
	}

	if !force && !pb.LastUpdated.IsZero() && now.Sub(pb.LastUpdated) < e.minInterval {
		e.logger.Debug("evolution skipped, playbook updated recently",
			"user_id", userID, "last_updated", pb.LastUpdated)
		return pb, true, nil
	}

	turnLogs, err := e.logs.TurnLogs(ctx, userID, e.window)
	if err != nil {
		return nil, false, fmt.Errorf("ace: load turn logs for %s: %w", userID, err)
	}
	retrievalLogs, err := e.logs.RetrievalLogs(ctx, userID, e.window)
	if err != nil {
		return nil, false, fmt.Errorf("ace: load retrieval logs for %s: %w", userID, err)
	}

	candidates := append(mineStrategies(turnLogs), mineRetrievalRules(retrievalLogs)...)
	tallies := reflect(turnLogs)
	added, removed := curate(pb, candidates, tallies, now)

	pb.Version++
	pb.LastUpdated = now
	if err := e.playbooks.SavePlaybook(ctx, pb); err != nil {
		return nil, false, fmt.Errorf("ace: save playbook for %s: %w", userID, err)
	}
	e.logger.Info("playbook evolved",
		"user_id", userID, "version", pb.Version, "added", added, "removed", removed,
		"turn_logs", len(turnLogs), "retrieval_logs", len(retrievalLogs))
	return pb, false, nil
}

// curate applies one cycle's worth of changes in place: reflection counters
// first, then removals, then deduplicated additions. Returns how many bullets
// were added and removed.
func curate(pb *core.Playbook, candidates []candidate, tallies map[string]tally, now time.Time) (added, removed int) {
	if pb.Sections == nil {
		pb.Sections = make(map[string][]core.Bullet)
	}

	// dedup is content-based across the whole playbook: a candidate is
	// rejected when any bullet already carries the same condition or the same
	// text.
	seenCond := make(map[string]bool)
	seenContent := make(map[string]bool)
	for section, bullets := range pb.Sections {
		kept := bullets[:0]
		for _, b := range bullets {
			if t, ok := tallies[b.ID]; ok {
				if t.helpful() {
					b.Helpful++
				}
				if t.harmful() {
					b.Harmful++
				}
			}
			if b.Harmful > b.Helpful*removalRatio && b.Harmful > removalHarmfulFloor {
				removed++
				continue
			}
			if b.Condition != "" {
				seenCond[normalize(b.Condition)] = true
			}
			seenContent[normalize(b.Content)] = true
			kept = append(kept, b)
		}
		pb.Sections[section] = kept
	}

	for _, c := range candidates {
		if (c.condition != "" && seenCond[normalize(c.condition)]) || seenContent[normalize(c.content)] {
			continue
		}
		if c.condition != "" {
			seenCond[normalize(c.condition)] = true
		}
		seenContent[normalize(c.content)] = true
		pb.Sections[c.section] = append(pb.Sections[c.section], core.Bullet{
			ID:        core.NewID(),
			Condition: c.condition,
			Content:   c.content,
			AddedAt:   now,
		})
		added++
	}
	return added, removed
}
