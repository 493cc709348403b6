package dialogue

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/kokoro-ai/kokoro/core"
	"github.com/kokoro-ai/kokoro/memory"
	"github.com/kokoro-ai/kokoro/model"
	"github.com/kokoro-ai/kokoro/safety"
	"github.com/kokoro-ai/kokoro/state"
)

// recordingPublisher captures published events without a broker.
type recordingPublisher struct {
	mu     sync.Mutex
	events []core.Event
}

func (p *recordingPublisher) Publish(topic string, payload map[string]any) (core.Event, int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ev := core.NewEvent(topic, payload)
	p.events = append(p.events, ev)
	return ev, 1, nil
}

func (p *recordingPublisher) byTopic(topic string) []core.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []core.Event
	for _, ev := range p.events {
		if ev.Topic == topic {
			out = append(out, ev)
		}
	}
	return out
}

type failingMemory struct{}

func (failingMemory) RetrieveForDialogue(context.Context, string, string) (*core.MemorySnapshot, error) {
	return nil, errors.New("memory service down")
}
func (failingMemory) StoreFacts(context.Context, string, []string) error {
	return errors.New("memory service down")
}

// recordingTurnStore persists in memory and can be told to fail appends.
type recordingTurnStore struct {
	mu        sync.Mutex
	records   []core.TurnRecord
	appendErr error
}

func (s *recordingTurnStore) AppendTurn(_ context.Context, rec core.TurnRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *recordingTurnStore) RecentTurns(_ context.Context, userID string, limit int) ([]core.TurnRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.TurnRecord
	for _, r := range s.records {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func scriptedModel() *model.MockModel {
	m := model.NewMockModel()
	m.AddResponse("listening stage", `{"summary": "feeling a bit lonely today", "key_points": ["lonely"], "extracted_facts": ["misses her sister in Osaka"]}`)
	m.AddResponse("emotion-reading stage", `{"primary": "sadness", "intensity": "mid", "social_need": "wants_company"}`)
	m.AddResponse("conversation planner", `{"mode": "support", "goal": "reflect_feelings", "topic": "loneliness"}`)
	m.AddResponse("reply stage", `{"text": "That sounds lonely. I'm right here with you.", "follow_up": "Would you like to talk about your sister?"}`)
	return m
}

func newTestOrchestrator(m model.Model, optFns ...func(o *Options)) (*Orchestrator, *memory.InMemoryService, *recordingPublisher) {
	mem := memory.NewInMemoryService()
	pub := &recordingPublisher{}
	orc := NewOrchestrator(m, mem, pub, optFns...)
	return orc, mem, pub
}

func TestRunTurn_HappyPath(t *testing.T) {
	turns := &recordingTurnStore{}
	orc, mem, pub := newTestOrchestrator(scriptedModel(), func(o *Options) {
		o.Turns = turns
	})
	mem.SetProfile("u1", core.Profile{DisplayName: "Haru"})

	res, err := orc.RunTurn(context.Background(), core.TurnRequest{
		UserID: "u1", SessionID: "s1", Transcript: "I have been feeling alone lately",
	})
	if err != nil {
		t.Fatalf("RunTurn failed: %v", err)
	}
	if res.TurnID == "" {
		t.Fatal("expected a turn id")
	}
	if res.Emotion.Primary != core.EmotionSadness {
		t.Fatalf("emotion = %q", res.Emotion.Primary)
	}
	if res.Plan.Mode != core.ModeSupport {
		t.Fatalf("mode = %q", res.Plan.Mode)
	}
	if res.Tone != core.ToneWarmEmpathic {
		t.Fatalf("tone = %q, want warm_empathic for support+sadness", res.Tone)
	}
	if res.SafetyCommand != nil {
		t.Fatal("no override expected")
	}

	// persistence batch: user and assistant records
	recs, _ := turns.RecentTurns(context.Background(), "u1", 10)
	if len(recs) != 2 {
		t.Fatalf("expected 2 turn records, got %d", len(recs))
	}
	if recs[0].Role != core.RoleUser || recs[1].Role != core.RoleAssistant {
		t.Fatalf("record roles wrong: %q %q", recs[0].Role, recs[1].Role)
	}
	if recs[1].Tone != core.ToneWarmEmpathic {
		t.Fatalf("assistant record tone = %q", recs[1].Tone)
	}

	// extracted fact stored
	snap, _ := mem.RetrieveForDialogue(context.Background(), "u1", "sister")
	if len(snap.Facts) == 0 || snap.Facts[0].Text != "misses her sister in Osaka" {
		t.Fatalf("extracted fact not stored: %#v", snap.Facts)
	}

	// neither trigger fires for a calm support turn
	if n := len(pub.byTopic(core.TopicCoachTrigger)); n != 0 {
		t.Fatalf("unexpected coach triggers: %d", n)
	}
	if n := len(pub.byTopic(core.TopicSafetyTrigger)); n != 0 {
		t.Fatalf("unexpected safety triggers: %d", n)
	}
}

func TestRunTurn_Validation(t *testing.T) {
	orc, _, _ := newTestOrchestrator(scriptedModel())
	if _, err := orc.RunTurn(context.Background(), core.TurnRequest{Transcript: "hi"}); !errors.Is(err, ErrUserIDRequired) {
		t.Fatalf("want ErrUserIDRequired, got %v", err)
	}
	if _, err := orc.RunTurn(context.Background(), core.TurnRequest{UserID: "u1", Transcript: "   "}); !errors.Is(err, ErrTranscriptRequired) {
		t.Fatalf("want ErrTranscriptRequired, got %v", err)
	}
}

func TestRunTurn_SafetyOverride(t *testing.T) {
	m := scriptedModel()
	// planner would pick coach this turn
	m.AddResponse("conversation planner", `{"mode": "coach", "goal": "suggest_tiny_step"}`)

	queue := safety.NewCommandQueue(0)
	queue.Enqueue(core.SafetyCommand{
		UserID: "u1",
		Prompt: "I noticed your blood pressure reading was high. Please sit down and rest for a moment.",
		Reason: "high_risk_signal",
	})
	orc, _, pub := newTestOrchestrator(m, func(o *Options) { o.Queue = queue })

	res, err := orc.RunTurn(context.Background(), core.TurnRequest{UserID: "u1", Transcript: "let's plan my week"})
	if err != nil {
		t.Fatalf("RunTurn failed: %v", err)
	}
	if res.SafetyCommand == nil {
		t.Fatal("expected override to surface in result")
	}
	if res.Coach.Text != res.SafetyCommand.Prompt {
		t.Fatalf("reply not replaced: %q", res.Coach.Text)
	}
	if res.Plan.Mode != core.ModeSupport || res.Plan.Goal != core.GoalReflectFeelings {
		t.Fatalf("plan not forced to support/reflect: %+v", res.Plan)
	}
	if res.Tone != core.ToneSeriousDirect {
		t.Fatalf("tone = %q, want serious_direct", res.Tone)
	}
	if queue.Len("u1") != 0 {
		t.Fatal("command should be consumed")
	}
	// overridden mode is support, so no coach trigger
	if n := len(pub.byTopic(core.TopicCoachTrigger)); n != 0 {
		t.Fatalf("coach trigger should not fire after override, got %d", n)
	}
}

func TestRunTurn_CoachModePublishesCoachTrigger(t *testing.T) {
	m := scriptedModel()
	m.AddResponse("conversation planner", `{"mode": "coach", "goal": "suggest_tiny_step"}`)
	orc, _, pub := newTestOrchestrator(m)

	res, err := orc.RunTurn(context.Background(), core.TurnRequest{UserID: "u1", Transcript: "I want to get moving again"})
	if err != nil {
		t.Fatalf("RunTurn failed: %v", err)
	}
	if res.Tone != core.ToneCoachGrounded {
		t.Fatalf("tone = %q", res.Tone)
	}
	evs := pub.byTopic(core.TopicCoachTrigger)
	if len(evs) != 1 {
		t.Fatalf("expected 1 coach trigger, got %d", len(evs))
	}
	if evs[0].StringField("user_id") != "u1" || evs[0].StringField("goal") != core.GoalSuggestTinyStep {
		t.Fatalf("trigger payload wrong: %#v", evs[0].Payload)
	}
}

func TestRunTurn_HighRiskVitalPublishesSafetyTrigger(t *testing.T) {
	orc, _, pub := newTestOrchestrator(scriptedModel(), func(o *Options) {
		o.Physical = &state.StaticPhysical{Value: &core.PhysicalState{
			Vitals:  []core.Vital{{Name: "systolic_bp", Value: 185, Risk: core.RiskHigh}},
			Summary: "blood pressure critically elevated",
		}}
		o.Mind = &state.StaticMindBehavior{Value: &core.MindBehaviorState{
			Domains: []core.MindDomain{{Name: "sleep", Status: core.StatusDeclining}},
		}}
	})

	res, err := orc.RunTurn(context.Background(), core.TurnRequest{UserID: "u1", Transcript: "good morning"})
	if err != nil {
		t.Fatalf("RunTurn failed: %v", err)
	}
	// trigger is asynchronous advice, not part of the reply
	if res.SafetyCommand != nil {
		t.Fatal("trigger must not surface as an override in the same turn")
	}
	evs := pub.byTopic(core.TopicSafetyTrigger)
	if len(evs) != 1 {
		t.Fatalf("expected 1 safety trigger, got %d", len(evs))
	}
	if got := evs[0].StringField("reason"); got != "high_risk_signal" {
		t.Fatalf("reason = %q, want high_risk_signal to outrank declining_domain", got)
	}
	if evs[0].StringField("physical_summary") == "" {
		t.Fatal("physical summary missing from trigger payload")
	}
}

func TestRunTurn_WantsGuidancePublishesSafetyTrigger(t *testing.T) {
	m := scriptedModel()
	m.AddResponse("emotion-reading stage", `{"primary": "fear", "intensity": "mid", "social_need": "wants_guidance"}`)
	orc, _, pub := newTestOrchestrator(m)

	if _, err := orc.RunTurn(context.Background(), core.TurnRequest{UserID: "u1", Transcript: "I don't know what to do"}); err != nil {
		t.Fatalf("RunTurn failed: %v", err)
	}
	evs := pub.byTopic(core.TopicSafetyTrigger)
	if len(evs) != 1 || evs[0].StringField("reason") != "wants_guidance" {
		t.Fatalf("expected wants_guidance trigger, got %#v", evs)
	}
}

func TestRunTurn_MemoryFailureAbortsTurn(t *testing.T) {
	pub := &recordingPublisher{}
	orc := NewOrchestrator(scriptedModel(), failingMemory{}, pub)
	if _, err := orc.RunTurn(context.Background(), core.TurnRequest{UserID: "u1", Transcript: "hello"}); err == nil {
		t.Fatal("expected error when memory retrieve fails")
	}
	if len(pub.byTopic(core.TopicSafetyTrigger)) != 0 {
		t.Fatal("no effects should run for an aborted turn")
	}
}

func TestRunTurn_StateFailureDegrades(t *testing.T) {
	orc, _, pub := newTestOrchestrator(scriptedModel(), func(o *Options) {
		o.Physical = &state.StaticPhysical{Err: errors.New("engine offline")}
		o.Mind = &state.StaticMindBehavior{Err: errors.New("engine offline")}
	})
	res, err := orc.RunTurn(context.Background(), core.TurnRequest{UserID: "u1", Transcript: "hello"})
	if err != nil {
		t.Fatalf("turn should degrade, not fail: %v", err)
	}
	if res.Coach.Text == "" {
		t.Fatal("expected a reply")
	}
	if len(pub.byTopic(core.TopicSafetyTrigger)) != 0 {
		t.Fatal("absent state must not count as a concerning signal")
	}
}

func TestRunTurn_PersistenceFailureDoesNotFailTurn(t *testing.T) {
	turns := &recordingTurnStore{appendErr: errors.New("disk full")}
	orc, _, pub := newTestOrchestrator(scriptedModel(), func(o *Options) {
		o.Turns = turns
		o.Physical = &state.StaticPhysical{Value: &core.PhysicalState{
			Vitals: []core.Vital{{Name: "heart_rate", Value: 150, Risk: core.RiskHigh}},
		}}
	})
	res, err := orc.RunTurn(context.Background(), core.TurnRequest{UserID: "u1", Transcript: "hello"})
	if err != nil {
		t.Fatalf("side effect failure must not fail the turn: %v", err)
	}
	if res.Coach.Text == "" {
		t.Fatal("expected a reply")
	}
	// the trigger batch still runs after a failed persistence batch
	if len(pub.byTopic(core.TopicSafetyTrigger)) != 1 {
		t.Fatal("safety trigger should still be published")
	}
}

func TestRunTurn_UnparseableStageOutputFallsBack(t *testing.T) {
	// no canned responses: the mock echoes prose, which no stage can parse
	orc, _, _ := newTestOrchestrator(model.NewMockModel())
	res, err := orc.RunTurn(context.Background(), core.TurnRequest{UserID: "u1", Transcript: "hello there"})
	if err != nil {
		t.Fatalf("parse failures must not fail the turn: %v", err)
	}
	if res.Listener.Summary != "hello there" {
		t.Fatalf("listener fallback = %q, want transcript", res.Listener.Summary)
	}
	if res.Emotion.Primary != "neutral" || res.Emotion.Intensity != core.IntensityMid {
		t.Fatalf("emotion fallback wrong: %+v", res.Emotion)
	}
	if res.Plan.Mode != core.ModeSupport || res.Plan.Goal != core.GoalReflectFeelings {
		t.Fatalf("plan fallback wrong: %+v", res.Plan)
	}
	if res.Coach.Text == "" {
		t.Fatal("coach fallback should produce a reply")
	}
	if res.Tone != core.ToneSupportiveCaring {
		t.Fatalf("tone = %q", res.Tone)
	}
}

func TestRunTurn_ModelTransportErrorFailsTurn(t *testing.T) {
	m := model.NewMockModel()
	m.FailWith(errors.New("connection refused"))
	orc, _, _ := newTestOrchestrator(m)
	if _, err := orc.RunTurn(context.Background(), core.TurnRequest{UserID: "u1", Transcript: "hello"}); err == nil {
		t.Fatal("expected transport error to fail the turn")
	}
}

func TestRunTurn_UnknownPlannerModeFallsBack(t *testing.T) {
	m := scriptedModel()
	m.AddResponse("conversation planner", `{"mode": "lecture", "goal": "teach"}`)
	orc, _, _ := newTestOrchestrator(m)
	res, err := orc.RunTurn(context.Background(), core.TurnRequest{UserID: "u1", Transcript: "hello"})
	if err != nil {
		t.Fatalf("RunTurn failed: %v", err)
	}
	if res.Plan.Mode != core.ModeSupport {
		t.Fatalf("unknown mode should fall back to support, got %q", res.Plan.Mode)
	}
}
