package ace

import (
	"context"
	"time"

	"github.com/kokoro-ai/kokoro/logging"
)

// UserSource lists the users whose playbooks the nightly job should evolve.
type UserSource interface {
	ActiveUsers(ctx context.Context) ([]string, error)
}

// NightlyOptions configure the nightly runner.
type NightlyOptions struct {
	// Interval is how often the runner wakes up. The per-playbook guard in
	// Evolve makes a short interval safe.
	Interval time.Duration
	Logger   logging.Logger
}

// Nightly periodically evolves the playbook of every active user. It relies
// on the evolver's idempotence guard rather than tracking its own schedule,
// so overlapping deployments or restarts never double-apply a cycle.
type Nightly struct {
	evolver  *Evolver
	users    UserSource
	interval time.Duration
	logger   logging.Logger
}

// NewNightly constructs the nightly runner.
func NewNightly(evolver *Evolver, users UserSource, optFns ...func(o *NightlyOptions)) *Nightly {
	opts := NightlyOptions{Interval: time.Hour}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Hour
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Nightly{evolver: evolver, users: users, interval: opts.Interval, logger: logger}
}

// Run blocks until ctx is done, sweeping all active users once per interval.
func (n *Nightly) Run(ctx context.Context) error {
	ticker := time.NewTicker(n.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n.sweep(ctx)
		}
	}
}

func (n *Nightly) sweep(ctx context.Context) {
	users, err := n.users.ActiveUsers(ctx)
	if err != nil {
		n.logger.Warn("nightly sweep could not list users", "error", err)
		return
	}
	for _, userID := range users {
		if ctx.Err() != nil {
			return
		}
		if _, skipped, err := n.evolver.Evolve(ctx, userID, false); err != nil {
			n.logger.Warn("nightly evolution failed", "user_id", userID, "error", err)
		} else if skipped {
			n.logger.Debug("nightly evolution skipped", "user_id", userID)
		}
	}
}
