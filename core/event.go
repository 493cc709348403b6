package core

import (
	"time"

	"github.com/google/uuid"
)

// Well-known bus topics. Topics are free-form strings; payload shape is a
// convention enforced only at the consumer via validation, not a schema
// registry.
const (
	// TopicCoachTrigger asks the coach agent to prepare a follow-up for a turn.
	TopicCoachTrigger = "coach.trigger.v1"
	// TopicSafetyTrigger notifies the safety agent of a concerning signal.
	TopicSafetyTrigger = "safety.trigger.v1"
	// TopicSafetyCommand carries a safety directive for the next dialogue turn.
	TopicSafetyCommand = "safety.command.v1"
)

// Event is the unit of communication on the event bus. Once published it is
// immutable; delivery is best-effort to currently-connected subscribers only.
type Event struct {
	ID          string         `json:"id"`
	Topic       string         `json:"topic"`
	Payload     map[string]any `json:"payload"`
	PublishedAt time.Time      `json:"published_at"`
}

// NewEvent stamps a payload with identity and publish time for a topic.
func NewEvent(topic string, payload map[string]any) Event {
	return Event{
		ID:          NewID(),
		Topic:       topic,
		Payload:     payload,
		PublishedAt: time.Now().UTC(),
	}
}

// StringField returns the named payload field coerced to a string, or ""
// when absent or of a different type. Consumers validate payloads field by
// field rather than trusting publishers.
func (e Event) StringField(key string) string {
	if e.Payload == nil {
		return ""
	}
	s, _ := e.Payload[key].(string)
	return s
}

// NewID generates a unique identifier for events, turns and commands.
func NewID() string { return uuid.NewString() }

// CoachTriggerPayload builds the conventional coach.trigger.v1 payload.
func CoachTriggerPayload(userID, turnID, requestedMode, goal, reason string) map[string]any {
	return map[string]any{
		"user_id":        userID,
		"turn_id":        turnID,
		"requested_mode": requestedMode,
		"goal":           goal,
		"reason":         reason,
		"created_at":     time.Now().UTC().Format(time.RFC3339),
	}
}

// SafetyTriggerPayload builds the conventional safety.trigger.v1 payload.
// Summary fields are omitted when empty.
func SafetyTriggerPayload(userID, turnID, reason, physicalSummary, mindSummary string) map[string]any {
	p := map[string]any{
		"user_id": userID,
		"turn_id": turnID,
		"reason":  reason,
	}
	if physicalSummary != "" {
		p["physical_summary"] = physicalSummary
	}
	if mindSummary != "" {
		p["mind_behavior_summary"] = mindSummary
	}
	return p
}

// Publisher is the minimal bus surface needed by event producers. The broker
// in package bus implements it; tests substitute recording fakes.
type Publisher interface {
	// Publish delivers a payload to all current subscribers of the topic and
	// returns the stamped event plus the number of subscribers reached.
	// Publishing to a topic with zero subscribers succeeds with delivered 0.
	Publish(topic string, payload map[string]any) (Event, int, error)
}
