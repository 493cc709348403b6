package safety

import (
	"context"

	"github.com/kokoro-ai/kokoro/agent"
	"github.com/kokoro-ai/kokoro/bus"
	"github.com/kokoro-ai/kokoro/core"
	"github.com/kokoro-ai/kokoro/internal/jsonx"
	"github.com/kokoro-ai/kokoro/logging"
	"github.com/kokoro-ai/kokoro/model"
)

const commandInstructions = `You are the safety agent of a conversational companion.
A monitoring trigger fired for the user. Write a short, direct check-in prompt
the companion should say verbatim on the user's next turn.
Respond with JSON only: {"prompt": "...", "escalation": "none|notify_contact"}`

// fallbackPrompt is spoken when the model output cannot be parsed. Safety
// directives must be deterministic, so the fallback is a fixed sentence.
const fallbackPrompt = "I want to pause for a moment and check in with you. How are you really feeling right now?"

// commandDraft is the JSON shape expected back from the model.
type commandDraft struct {
	Prompt     string `json:"prompt"`
	Escalation string `json:"escalation,omitempty"`
}

// AgentOptions configure the safety agent.
type AgentOptions struct {
	// Physical and Mind supply fresh state summaries when the trigger payload
	// lacks them. Both are optional; a nil service or failing read degrades to
	// an empty summary.
	Physical core.PhysicalStateService
	Mind     core.MindBehaviorService
	Logger   logging.Logger
}

// Agent reacts to safety.trigger.v1 events: it gathers state summaries, asks
// the model for a check-in prompt and publishes the resulting directive as a
// safety.command.v1 event. It runs the same gather-context, call-LLM, act,
// publish pattern as the dialogue pipeline, just smaller.
type Agent struct {
	agent.Base
	broker   *bus.Broker
	model    model.Model
	physical core.PhysicalStateService
	mind     core.MindBehaviorService
	logger   logging.Logger
}

// NewAgent constructs the safety agent.
func NewAgent(broker *bus.Broker, m model.Model, optFns ...func(o *AgentOptions)) *Agent {
	opts := AgentOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Agent{
		Base:     agent.NewBase("safety-agent"),
		broker:   broker,
		model:    m,
		physical: opts.Physical,
		mind:     opts.Mind,
		logger:   opts.Logger,
	}
}

// Run consumes safety trigger events until the context is cancelled or the
// broker closes.
func (a *Agent) Run(ctx context.Context) error {
	ctx, err := a.Begin(ctx)
	if err != nil {
		return err
	}
	defer a.End()

	sub, err := a.broker.Subscribe(core.TopicSafetyTrigger)
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
			a.handleTrigger(ctx, ev)
		}
	}
}

func (a *Agent) handleTrigger(ctx context.Context, ev core.Event) {
	userID := ev.StringField("user_id")
	if userID == "" {
		a.logger.Warn("safety agent: trigger without user_id, dropping", "event_id", ev.ID)
		return
	}
	turnID := ev.StringField("turn_id")
	reason := ev.StringField("reason")

	physicalSummary := ev.StringField("physical_summary")
	if physicalSummary == "" && a.physical != nil {
		if st, err := a.physical.PhysicalState(ctx, userID); err != nil {
			a.logger.Warn("safety agent: physical state unavailable", "user_id", userID, "error", err)
		} else if st != nil {
			physicalSummary = st.Summary
		}
	}
	mindSummary := ev.StringField("mind_behavior_summary")
	if mindSummary == "" && a.mind != nil {
		if st, err := a.mind.MindBehaviorState(ctx, userID); err != nil {
			a.logger.Warn("safety agent: mind/behavior state unavailable", "user_id", userID, "error", err)
		} else if st != nil {
			mindSummary = st.Summary
		}
	}

	draft := a.draftCommand(ctx, reason, physicalSummary, mindSummary)

	cmd := core.SafetyCommand{
		UserID:     userID,
		TurnID:     turnID,
		Prompt:     draft.Prompt,
		Reason:     reason,
		Escalation: draft.Escalation,
	}
	if _, delivered, err := a.broker.Publish(core.TopicSafetyCommand, cmd.ToPayload()); err != nil {
		a.logger.Warn("safety agent: publish failed", "user_id", userID, "error", err)
	} else {
		a.logger.Info("safety agent: command published", "user_id", userID, "reason", reason, "delivered", delivered)
	}
}

// draftCommand asks the model to phrase the check-in. A transport failure or
// malformed output falls back to the fixed prompt rather than dropping the
// trigger.
func (a *Agent) draftCommand(ctx context.Context, reason, physicalSummary, mindSummary string) commandDraft {
	userMsg := "Trigger reason: " + orUnknown(reason)
	if physicalSummary != "" {
		userMsg += "\nPhysical signals: " + physicalSummary
	}
	if mindSummary != "" {
		userMsg += "\nMind/behavior signals: " + mindSummary
	}

	fallback := commandDraft{Prompt: fallbackPrompt, Escalation: "none"}

	resp, err := a.model.Complete(ctx, model.Request{
		Instructions: commandInstructions,
		Messages:     []model.Message{{Role: "user", Text: userMsg}},
	})
	if err != nil {
		a.logger.Warn("safety agent: model call failed, using fallback prompt", "error", err)
		return fallback
	}

	res := jsonx.Decode(resp.Text, fallback)
	if res.Fallback {
		a.logger.Warn("safety agent: unparseable model output, using fallback prompt")
	}
	if res.Value.Prompt == "" {
		res.Value.Prompt = fallbackPrompt
	}
	return res.Value
}

func orUnknown(s string) string {
	if s == "" {
		return "unspecified"
	}
	return s
}
