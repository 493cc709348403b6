package dialogue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kokoro-ai/kokoro/core"
	"github.com/kokoro-ai/kokoro/internal/jsonx"
	"github.com/kokoro-ai/kokoro/internal/util"
	"github.com/kokoro-ai/kokoro/model"
)

// Stage names used in logs.
const (
	stageListener = "listener"
	stageEmotion  = "emotion"
	stagePlanner  = "planner"
	stageCoach    = "coach"
)

// coachFallbackText is the reply used when the coach stage output cannot be
// parsed. Deliberately generic and safe.
const coachFallbackText = "Thank you for sharing that with me. I'm here with you, and I'd love to hear more about how you're feeling."

const listenerInstructions = `You are the listening stage of a voice companion for older adults.
Distill what the user just said. Do not reply to the user.

Known profile: {{.Profile}}
Remembered facts:
{{bullet .Facts}}

Respond with only a JSON object:
{"summary": "<one or two sentences>", "key_points": ["..."], "extracted_facts": ["<new durable facts about the user, if any>"]}`

const emotionInstructions = `You are the emotion-reading stage of a voice companion for older adults.
Assess the user's current emotional state from their words.

Previous emotion: {{default "unknown" .LastEmotion}}
Listener summary: {{.Summary}}

Respond with only a JSON object:
{"primary": "<joy|sadness|anger|fear|loneliness|neutral|...>", "intensity": "<low|mid|high>", "social_need": "<wants_company|wants_guidance|wants_space|none>"}`

const plannerInstructions = `You are the conversation planner of a voice companion for older adults.
Choose the mode for this turn: support, coach, gratitude, game or reminder.
Choose coach only when the user seems ready for a small constructive step.

Previous mode: {{default "none" .LastMode}}
Active goals:
{{bullet .Goals}}
Emotion: {{.Emotion}} ({{.Intensity}}), social need: {{default "none" .SocialNeed}}
Listener summary: {{.Summary}}

Respond with only a JSON object:
{"mode": "<support|coach|gratitude|game|reminder>", "goal": "<reflect_feelings|suggest_tiny_step|celebrate|...>", "topic": "<short topic>"}`

const coachInstructions = `You are the reply stage of a warm voice companion for older adults.
Write the next thing the companion says out loud. Keep it short, concrete and
kind. Never give medical advice.

User: {{.Profile}}
Mode: {{.Mode}}, goal: {{default "none" .Goal}}
Emotion: {{.Emotion}} ({{.Intensity}})
Remembered facts:
{{bullet .Facts}}
Physical signals: {{default "none reported" .PhysicalSummary}}
Mind and behavior signals: {{default "none reported" .MindSummary}}
Recent turns:
{{bullet .Recent}}

Respond with only a JSON object:
{"text": "<the spoken reply>", "follow_up": "<optional gentle question>"}`

func (o *Orchestrator) runListener(ctx context.Context, cc *core.ConversationContext, req core.TurnRequest) (core.ListenerResult, error) {
	instructions, err := util.RenderTemplate(listenerInstructions, map[string]any{
		"Profile": profileLine(cc.Profile),
		"Facts":   factTexts(cc.Facts),
	})
	if err != nil {
		return core.ListenerResult{}, fmt.Errorf("dialogue: render listener prompt: %w", err)
	}
	fallback := core.ListenerResult{Summary: req.Transcript}
	return runStage(ctx, o, stageListener, instructions, req.Transcript, fallback)
}

func (o *Orchestrator) runEmotion(ctx context.Context, cc *core.ConversationContext, req core.TurnRequest, listener core.ListenerResult) (core.EmotionState, error) {
	instructions, err := util.RenderTemplate(emotionInstructions, map[string]any{
		"LastEmotion": cc.LastEmotion,
		"Summary":     listener.Summary,
	})
	if err != nil {
		return core.EmotionState{}, fmt.Errorf("dialogue: render emotion prompt: %w", err)
	}
	fallback := core.EmotionState{Primary: "neutral", Intensity: core.IntensityMid}
	return runStage(ctx, o, stageEmotion, instructions, req.Transcript, fallback)
}

func (o *Orchestrator) runPlanner(ctx context.Context, cc *core.ConversationContext, req core.TurnRequest, listener core.ListenerResult, emotion core.EmotionState) (core.ModePlan, error) {
	instructions, err := util.RenderTemplate(plannerInstructions, map[string]any{
		"LastMode":   cc.LastMode,
		"Goals":      goalTexts(cc.Goals),
		"Emotion":    emotion.Primary,
		"Intensity":  emotion.Intensity,
		"SocialNeed": emotion.SocialNeed,
		"Summary":    listener.Summary,
	})
	if err != nil {
		return core.ModePlan{}, fmt.Errorf("dialogue: render planner prompt: %w", err)
	}
	fallback := core.ModePlan{Mode: core.ModeSupport, Goal: core.GoalReflectFeelings}
	plan, err := runStage(ctx, o, stagePlanner, instructions, req.Transcript, fallback)
	if err != nil {
		return core.ModePlan{}, err
	}
	if !validMode(plan.Mode) {
		o.logger.Warn("planner produced unknown mode, falling back to support", "mode", plan.Mode)
		plan = fallback
	}
	return plan, nil
}

func (o *Orchestrator) runCoach(ctx context.Context, cc *core.ConversationContext, req core.TurnRequest, listener core.ListenerResult, emotion core.EmotionState, plan core.ModePlan) (core.CoachResponse, error) {
	instructions, err := util.RenderTemplate(coachInstructions, map[string]any{
		"Profile":         profileLine(cc.Profile),
		"Mode":            plan.Mode,
		"Goal":            plan.Goal,
		"Emotion":         emotion.Primary,
		"Intensity":       emotion.Intensity,
		"Facts":           factTexts(cc.Facts),
		"PhysicalSummary": physicalSummary(cc.Physical),
		"MindSummary":     mindSummary(cc.MindBehavior),
		"Recent":          o.recentTurnLines(ctx, req.UserID),
	})
	if err != nil {
		return core.CoachResponse{}, fmt.Errorf("dialogue: render coach prompt: %w", err)
	}
	fallback := core.CoachResponse{Text: coachFallbackText}
	resp, err := runStage(ctx, o, stageCoach, instructions, req.Transcript, fallback)
	if err != nil {
		return core.CoachResponse{}, err
	}
	if strings.TrimSpace(resp.Text) == "" {
		resp.Text = coachFallbackText
	}
	return resp, nil
}

// runStage performs one model call and decodes the JSON-shaped reply. A
// transport error fails the turn; a parse failure is absorbed into the
// stage's documented fallback.
func runStage[T any](ctx context.Context, o *Orchestrator, stage, instructions, transcript string, fallback T) (T, error) {
	start := time.Now()
	resp, err := o.model.Complete(ctx, model.Request{
		Instructions: instructions,
		Messages:     []model.Message{{Role: "user", Text: transcript}},
	})
	if err != nil {
		o.logLLM(stage, time.Since(start), false, err)
		var zero T
		return zero, fmt.Errorf("dialogue: %s stage: %w", stage, err)
	}
	res := jsonx.Decode(resp.Text, fallback)
	o.logLLM(stage, time.Since(start), res.Fallback, nil)
	if res.Fallback {
		o.logger.Warn("stage output unparseable, using fallback", "stage", stage)
	}
	return res.Value, nil
}

func validMode(mode string) bool {
	switch mode {
	case core.ModeSupport, core.ModeCoach, core.ModeGratitude, core.ModeGame, core.ModeReminder:
		return true
	}
	return false
}

func profileLine(p *core.Profile) string {
	if p == nil {
		return "unknown user"
	}
	if p.Persona != "" {
		return p.DisplayName + " (" + p.Persona + ")"
	}
	return p.DisplayName
}

func factTexts(facts []core.Fact) []string {
	out := make([]string, 0, len(facts))
	for _, f := range facts {
		out = append(out, f.Text)
	}
	return out
}

func goalTexts(goals []core.Goal) []string {
	out := make([]string, 0, len(goals))
	for _, g := range goals {
		out = append(out, g.Text)
	}
	return out
}

func physicalSummary(p *core.PhysicalState) string {
	if p == nil {
		return ""
	}
	return p.Summary
}

func mindSummary(m *core.MindBehaviorState) string {
	if m == nil {
		return ""
	}
	return m.Summary
}
