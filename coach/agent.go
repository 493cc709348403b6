package coach

import (
	"context"
	"strings"
	"time"

	"github.com/kokoro-ai/kokoro/agent"
	"github.com/kokoro-ai/kokoro/bus"
	"github.com/kokoro-ai/kokoro/core"
	"github.com/kokoro-ai/kokoro/internal/jsonx"
	"github.com/kokoro-ai/kokoro/internal/util"
	"github.com/kokoro-ai/kokoro/logging"
	"github.com/kokoro-ai/kokoro/model"
)

const planInstructions = `You are the coaching agent of a companion for older adults.
The conversation planner asked for a follow-up on a coaching turn. Draft at
most one gentle notification and at most one deferred check-in task. Suggest
tiny, concrete steps; never medical advice.

Goal: {{default "unspecified" .Goal}}
Known about the user:
{{bullet .Facts}}
Active goals:
{{bullet .Goals}}

Respond with JSON only:
{"notification": {"title": "...", "body": "..."}, "task": {"kind": "check_in", "in_hours": 4, "note": "..."}}
Omit a field entirely to skip that action.`

// actionPlan is the JSON shape expected back from the model. Absent fields
// mean no action of that kind.
type actionPlan struct {
	Notification *struct {
		Title string `json:"title"`
		Body  string `json:"body"`
	} `json:"notification,omitempty"`
	Task *struct {
		Kind    string  `json:"kind"`
		InHours float64 `json:"in_hours"`
		Note    string  `json:"note,omitempty"`
	} `json:"task,omitempty"`
}

// AgentOptions configure the coach agent.
type AgentOptions struct {
	Scheduler core.Scheduler
	Notifier  core.Notifier
	Logger    logging.Logger
}

// Agent reacts to coach.trigger.v1 events: it retrieves the user's memory,
// asks the model for a follow-up plan and dispatches the resulting actions.
// Dispatch is best effort; a failing collaborator is logged and skipped.
type Agent struct {
	agent.Base
	broker    *bus.Broker
	model     model.Model
	memory    core.MemoryService
	scheduler core.Scheduler
	notifier  core.Notifier
	logger    logging.Logger
}

// NewAgent constructs the coach agent.
func NewAgent(broker *bus.Broker, m model.Model, memory core.MemoryService, optFns ...func(o *AgentOptions)) *Agent {
	opts := AgentOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Agent{
		Base:      agent.NewBase("coach-agent"),
		broker:    broker,
		model:     m,
		memory:    memory,
		scheduler: opts.Scheduler,
		notifier:  opts.Notifier,
		logger:    opts.Logger,
	}
}

// Run consumes coach trigger events until the context is cancelled or the
// broker closes.
func (a *Agent) Run(ctx context.Context) error {
	ctx, err := a.Begin(ctx)
	if err != nil {
		return err
	}
	defer a.End()

	sub, err := a.broker.Subscribe(core.TopicCoachTrigger)
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
		a.logger.Warn("coach agent: trigger without user_id, dropping", "event_id", ev.ID)
		return
	}
	goal := ev.StringField("goal")

	var facts, goals []string
	if snap, err := a.memory.RetrieveForDialogue(ctx, userID, goal); err != nil {
		a.logger.Warn("coach agent: memory unavailable, planning without it", "user_id", userID, "error", err)
	} else {
		for _, f := range snap.Facts {
			facts = append(facts, f.Text)
		}
		for _, g := range snap.Goals {
			goals = append(goals, g.Text)
		}
	}

	plan, ok := a.draftPlan(ctx, goal, facts, goals)
	if !ok {
		return
	}
	a.dispatch(ctx, userID, plan)
}

// draftPlan asks the model for follow-up actions. Unlike the safety agent
// there is no fixed fallback: an unusable draft simply yields no actions.
func (a *Agent) draftPlan(ctx context.Context, goal string, facts, goals []string) (actionPlan, bool) {
	instructions, err := util.RenderTemplate(planInstructions, map[string]any{
		"Goal":  goal,
		"Facts": facts,
		"Goals": goals,
	})
	if err != nil {
		a.logger.Warn("coach agent: render prompt failed", "error", err)
		return actionPlan{}, false
	}

	resp, err := a.model.Complete(ctx, model.Request{
		Instructions: instructions,
		Messages:     []model.Message{{Role: "user", Text: "Plan the follow-up."}},
	})
	if err != nil {
		a.logger.Warn("coach agent: model call failed, skipping follow-up", "error", err)
		return actionPlan{}, false
	}

	res := jsonx.Decode(resp.Text, actionPlan{})
	if res.Fallback {
		a.logger.Warn("coach agent: unparseable model output, skipping follow-up")
		return actionPlan{}, false
	}
	return res.Value, true
}

func (a *Agent) dispatch(ctx context.Context, userID string, plan actionPlan) {
	if plan.Notification != nil && a.notifier != nil {
		n := core.Notification{
			UserID: userID,
			Title:  strings.TrimSpace(plan.Notification.Title),
			Body:   strings.TrimSpace(plan.Notification.Body),
		}
		if n.Body == "" {
			a.logger.Warn("coach agent: dropping empty notification", "user_id", userID)
		} else if err := a.notifier.SendNotification(ctx, n); err != nil {
			a.logger.Warn("coach agent: notification failed", "user_id", userID, "error", err)
		} else {
			a.logger.Info("coach agent: notification sent", "user_id", userID)
		}
	}
	if plan.Task != nil && a.scheduler != nil {
		kind := strings.TrimSpace(plan.Task.Kind)
		if kind == "" {
			kind = "check_in"
		}
		inHours := plan.Task.InHours
		if inHours <= 0 {
			inHours = 4
		}
		task := core.ScheduledTask{
			UserID: userID,
			Kind:   kind,
			At:     time.Now().UTC().Add(time.Duration(inHours * float64(time.Hour))),
			Note:   plan.Task.Note,
		}
		if err := a.scheduler.ScheduleTask(ctx, task); err != nil {
			a.logger.Warn("coach agent: scheduling failed", "user_id", userID, "error", err)
		} else {
			a.logger.Info("coach agent: task scheduled", "user_id", userID, "kind", kind, "at", task.At)
		}
	}
}
