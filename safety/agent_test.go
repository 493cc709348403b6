package safety

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kokoro-ai/kokoro/bus"
	"github.com/kokoro-ai/kokoro/core"
	"github.com/kokoro-ai/kokoro/model"
	"github.com/kokoro-ai/kokoro/state"
)

func TestIntake_EnqueuesCommands(t *testing.T) {
	broker := bus.New()
	defer broker.Close()
	queue := NewCommandQueue(0)
	intake := NewIntake(broker, queue, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- intake.Run(ctx) }()
	waitForSubscriber(t, broker, core.TopicSafetyCommand)

	cmd := core.SafetyCommand{UserID: "u1", TurnID: "t1", Prompt: "take a breath", Reason: "declining_domain"}
	if _, _, err := broker.Publish(core.TopicSafetyCommand, cmd.ToPayload()); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	// malformed event: no prompt
	broker.Publish(core.TopicSafetyCommand, map[string]any{"user_id": "u1"})

	waitFor(t, func() bool { return queue.Len("u1") == 1 })
	got, ok := queue.Dequeue("u1")
	if !ok || got != cmd {
		t.Fatalf("queued command mismatch: %#v ok=%v", got, ok)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("intake run returned error: %v", err)
	}
}

func TestAgent_PublishesCommandFromTrigger(t *testing.T) {
	broker := bus.New()
	defer broker.Close()

	m := model.NewMockModel()
	m.AddResponse("high_risk_signal", `{"prompt": "Let's sit down and talk about those readings.", "escalation": "notify_contact"}`)

	ag := NewAgent(broker, m, func(o *AgentOptions) {
		o.Physical = &state.StaticPhysical{Value: &core.PhysicalState{Summary: "elevated heart rate"}}
	})

	out, err := broker.Subscribe(core.TopicSafetyCommand)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer out.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ag.Run(ctx) }()
	waitForSubscriber(t, broker, core.TopicSafetyTrigger)

	broker.Publish(core.TopicSafetyTrigger, map[string]any{
		"user_id": "u1",
		"turn_id": "t9",
		"reason":  "high_risk_signal",
	})

	select {
	case ev := <-out.Events():
		cmd, err := core.SafetyCommandFromEvent(ev)
		if err != nil {
			t.Fatalf("published command malformed: %v", err)
		}
		if cmd.UserID != "u1" || cmd.TurnID != "t9" || cmd.Reason != "high_risk_signal" {
			t.Fatalf("command fields wrong: %#v", cmd)
		}
		if cmd.Prompt != "Let's sit down and talk about those readings." {
			t.Fatalf("unexpected prompt: %q", cmd.Prompt)
		}
		if cmd.Escalation != "notify_contact" {
			t.Fatalf("unexpected escalation: %q", cmd.Escalation)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for safety command")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("agent run returned error: %v", err)
	}
}

func TestAgent_ModelFailureFallsBackToFixedPrompt(t *testing.T) {
	broker := bus.New()
	defer broker.Close()

	m := model.NewMockModel()
	m.FailWith(errors.New("api down"))

	ag := NewAgent(broker, m)

	out, _ := broker.Subscribe(core.TopicSafetyCommand)
	defer out.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ag.Run(ctx) }()
	waitForSubscriber(t, broker, core.TopicSafetyTrigger)

	broker.Publish(core.TopicSafetyTrigger, map[string]any{"user_id": "u1", "reason": "wants_guidance"})

	select {
	case ev := <-out.Events():
		if got := ev.StringField("prompt"); got != fallbackPrompt {
			t.Fatalf("expected fallback prompt, got %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for fallback command")
	}

	cancel()
	<-done
}

func waitForSubscriber(t *testing.T, broker *bus.Broker, topic string) {
	t.Helper()
	waitFor(t, func() bool { return broker.SubscriberCount(topic) > 0 })
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within deadline")
}
