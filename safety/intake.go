package safety

import (
	"context"

	"github.com/kokoro-ai/kokoro/agent"
	"github.com/kokoro-ai/kokoro/bus"
	"github.com/kokoro-ai/kokoro/core"
	"github.com/kokoro-ai/kokoro/logging"
)

// Intake is the bus consumer that feeds the command queue: it subscribes to
// safety.command.v1 and enqueues every well-formed command for the addressed
// user. Malformed events are logged and dropped, never retried.
type Intake struct {
	agent.Base
	broker *bus.Broker
	queue  *CommandQueue
	logger logging.Logger
}

// NewIntake constructs the intake consumer.
func NewIntake(broker *bus.Broker, queue *CommandQueue, logger logging.Logger) *Intake {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Intake{
		Base:   agent.NewBase("safety-intake"),
		broker: broker,
		queue:  queue,
		logger: logger,
	}
}

// Run consumes safety command events until the context is cancelled or the
// broker closes.
func (i *Intake) Run(ctx context.Context) error {
	ctx, err := i.Begin(ctx)
	if err != nil {
		return err
	}
	defer i.End()

	sub, err := i.broker.Subscribe(core.TopicSafetyCommand)
	if err != nil {
		return err
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			cmd, err := core.SafetyCommandFromEvent(ev)
			if err != nil {
				i.logger.Warn("safety intake: dropping malformed command event", "error", err)
				continue
			}
			i.queue.Enqueue(cmd)
			i.logger.Debug("safety intake: command queued", "user_id", cmd.UserID, "turn_id", cmd.TurnID)
		}
	}
}
