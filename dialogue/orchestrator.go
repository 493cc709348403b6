package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kokoro-ai/kokoro/core"
	"github.com/kokoro-ai/kokoro/logging"
	"github.com/kokoro-ai/kokoro/model"
	"github.com/kokoro-ai/kokoro/safety"
)

// Validation errors returned before any stage runs.
var (
	ErrUserIDRequired     = errors.New("dialogue: user id is required")
	ErrTranscriptRequired = errors.New("dialogue: transcript is required")
)

// defaultHistoryLimit bounds the recent turns fed to the coach prompt.
const defaultHistoryLimit = 6

// Options configure an Orchestrator.
type Options struct {
	Physical     core.PhysicalStateService
	Mind         core.MindBehaviorService
	Turns        core.TurnStore
	Queue        *safety.CommandQueue
	Logger       logging.Logger
	HistoryLimit int
}

// Orchestrator runs the turn state machine: build context, run the four
// generation stages in order, apply a pending safety override, select the
// tone, then settle the advisory side effects. Stage failures before the
// result exists fail the turn; side effect failures never do.
type Orchestrator struct {
	model        model.Model
	memory       core.MemoryService
	contexts     *ContextBuilder
	turns        core.TurnStore
	queue        *safety.CommandQueue
	publisher    core.Publisher
	logger       logging.Logger
	historyLimit int
}

// NewOrchestrator wires an orchestrator over the model, the mandatory memory
// service and the event publisher.
func NewOrchestrator(m model.Model, memory core.MemoryService, pub core.Publisher, optFns ...func(o *Options)) *Orchestrator {
	opts := Options{HistoryLimit: defaultHistoryLimit}
	for _, fn := range optFns {
		fn(&opts)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = defaultHistoryLimit
	}
	return &Orchestrator{
		model:  m,
		memory: memory,
		contexts: NewContextBuilder(memory, func(o *ContextBuilderOptions) {
			o.Physical = opts.Physical
			o.Mind = opts.Mind
			o.Logger = logger
		}),
		turns:        opts.Turns,
		queue:        opts.Queue,
		publisher:    pub,
		logger:       logger,
		historyLimit: opts.HistoryLimit,
	}
}

// RunTurn executes one synchronous dialogue turn and returns its structured
// result. The caller gets exactly what the persistence and trigger effects
// saw, including a safety override when one was pending.
func (o *Orchestrator) RunTurn(ctx context.Context, req core.TurnRequest) (*core.TurnResult, error) {
	if req.UserID == "" {
		return nil, ErrUserIDRequired
	}
	if strings.TrimSpace(req.Transcript) == "" {
		return nil, ErrTranscriptRequired
	}

	turnID := core.NewID()
	start := time.Now()

	cc, err := o.contexts.Build(ctx, req.UserID, req.Transcript)
	if err != nil {
		o.logTurn(turnID, "", "", false, time.Since(start), err)
		return nil, err
	}

	listener, err := o.runListener(ctx, cc, req)
	if err != nil {
		o.logTurn(turnID, "", "", false, time.Since(start), err)
		return nil, err
	}
	emotion, err := o.runEmotion(ctx, cc, req, listener)
	if err != nil {
		o.logTurn(turnID, "", "", false, time.Since(start), err)
		return nil, err
	}
	plan, err := o.runPlanner(ctx, cc, req, listener, emotion)
	if err != nil {
		o.logTurn(turnID, "", "", false, time.Since(start), err)
		return nil, err
	}
	coach, err := o.runCoach(ctx, cc, req, listener, emotion, plan)
	if err != nil {
		o.logTurn(turnID, plan.Mode, "", false, time.Since(start), err)
		return nil, err
	}

	// A pending safety command replaces the generated reply wholesale. The
	// command is consumed even though the original reply is discarded.
	var override *core.SafetyCommand
	if o.queue != nil {
		if cmd, ok := o.queue.Dequeue(req.UserID); ok {
			override = &cmd
			coach = core.CoachResponse{Text: cmd.Prompt}
			plan.Mode = core.ModeSupport
			plan.Goal = core.GoalReflectFeelings
			o.logger.Info("safety command overrode turn reply",
				"user_id", req.UserID, "turn_id", turnID, "reason", cmd.Reason)
		}
	}

	tone := SelectTone(emotion, plan)
	if override != nil {
		tone = core.ToneSeriousDirect
	}

	result := &core.TurnResult{
		TurnID:        turnID,
		Transcript:    req.Transcript,
		Listener:      listener,
		Emotion:       emotion,
		Plan:          plan,
		Coach:         coach,
		Tone:          tone,
		SafetyCommand: override,
	}

	o.persistTurn(ctx, req, result)
	o.publishTriggers(req, result, cc)
	o.logTurn(turnID, plan.Mode, tone, override != nil, time.Since(start), nil)
	return result, nil
}

// persistTurn runs the persistence batch: both turn records plus extracted
// facts. Each effect is attempted regardless of the others; failures are
// logged and swallowed.
func (o *Orchestrator) persistTurn(ctx context.Context, req core.TurnRequest, res *core.TurnResult) {
	now := time.Now().UTC()
	if o.turns != nil {
		userRec := core.TurnRecord{
			ID:        core.NewID(),
			TurnID:    res.TurnID,
			UserID:    req.UserID,
			SessionID: req.SessionID,
			Role:      core.RoleUser,
			Text:      req.Transcript,
			Emotion:   res.Emotion.Primary,
			CreatedAt: now,
		}
		if err := o.turns.AppendTurn(ctx, userRec); err != nil {
			o.logger.Warn("failed to persist user turn record",
				"user_id", req.UserID, "turn_id", res.TurnID, "error", err)
		}
		assistantRec := core.TurnRecord{
			ID:        core.NewID(),
			TurnID:    res.TurnID,
			UserID:    req.UserID,
			SessionID: req.SessionID,
			Role:      core.RoleAssistant,
			Text:      res.Coach.Text,
			Mode:      res.Plan.Mode,
			Tone:      res.Tone,
			CreatedAt: now,
		}
		if err := o.turns.AppendTurn(ctx, assistantRec); err != nil {
			o.logger.Warn("failed to persist assistant turn record",
				"user_id", req.UserID, "turn_id", res.TurnID, "error", err)
		}
	}
	if len(res.Listener.ExtractedFacts) > 0 {
		if err := o.memory.StoreFacts(ctx, req.UserID, res.Listener.ExtractedFacts); err != nil {
			o.logger.Warn("failed to store extracted facts",
				"user_id", req.UserID, "turn_id", res.TurnID, "error", err)
		}
	}
}

// publishTriggers runs the trigger batch after persistence. The coach trigger
// follows the final (post-override) mode; the safety trigger fires on any
// concerning signal, with the highest-severity reason winning.
func (o *Orchestrator) publishTriggers(req core.TurnRequest, res *core.TurnResult, cc *core.ConversationContext) {
	if o.publisher == nil {
		return
	}
	if res.Plan.Mode == core.ModeCoach {
		payload := core.CoachTriggerPayload(req.UserID, res.TurnID, res.Plan.Mode, res.Plan.Goal, "planner_selected_coach")
		if _, _, err := o.publisher.Publish(core.TopicCoachTrigger, payload); err != nil {
			o.logger.Warn("failed to publish coach trigger",
				"user_id", req.UserID, "turn_id", res.TurnID, "error", err)
		}
	}
	reason := safetyReason(res.Emotion, cc)
	if reason == "" {
		return
	}
	payload := core.SafetyTriggerPayload(req.UserID, res.TurnID, reason,
		physicalSummary(cc.Physical), mindSummary(cc.MindBehavior))
	if _, _, err := o.publisher.Publish(core.TopicSafetyTrigger, payload); err != nil {
		o.logger.Warn("failed to publish safety trigger",
			"user_id", req.UserID, "turn_id", res.TurnID, "error", err)
	}
}

// safetyReason returns the trigger reason for the turn, or "" when nothing is
// concerning. High-risk vitals outrank declining domains outrank a voiced
// need for guidance.
func safetyReason(emotion core.EmotionState, cc *core.ConversationContext) string {
	switch {
	case cc.Physical.HasHighRisk():
		return "high_risk_signal"
	case cc.MindBehavior.HasDeclining():
		return "declining_domain"
	case emotion.SocialNeed == core.SocialNeedWantsGuidance:
		return "wants_guidance"
	}
	return ""
}

func (o *Orchestrator) recentTurnLines(ctx context.Context, userID string) []string {
	if o.turns == nil {
		return nil
	}
	recs, err := o.turns.RecentTurns(ctx, userID, o.historyLimit)
	if err != nil {
		o.logger.Warn("failed to load recent turns for prompt", "user_id", userID, "error", err)
		return nil
	}
	lines := make([]string, 0, len(recs))
	for _, r := range recs {
		lines = append(lines, fmt.Sprintf("%s: %s", r.Role, r.Text))
	}
	return lines
}

// logTurn and logLLM upgrade to the PlatformLogger helpers when one is wired.

func (o *Orchestrator) logTurn(turnID, mode, tone string, overridden bool, dur time.Duration, err error) {
	if pl, ok := o.logger.(*logging.PlatformLogger); ok {
		pl.LogTurn(turnID, mode, tone, overridden, dur, err)
	}
}

func (o *Orchestrator) logLLM(stage string, dur time.Duration, fallback bool, err error) {
	if pl, ok := o.logger.(*logging.PlatformLogger); ok {
		pl.LogLLMCall(o.model.Info().Name, stage, dur, fallback, err)
	}
}
