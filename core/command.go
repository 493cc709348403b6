package core

import "fmt"

// SafetyCommand is an agent-issued conversational directive. It is owned by
// the per-user safety queue: enqueued on receipt of a safety.command.v1
// event, dequeued at most once by the next dialogue turn for that user, and
// silently evicted (oldest first) if more than the queue capacity accumulate.
type SafetyCommand struct {
	UserID     string `json:"user_id"`
	TurnID     string `json:"turn_id"`
	Prompt     string `json:"prompt"`
	Reason     string `json:"reason,omitempty"`
	Escalation string `json:"escalation,omitempty"`
}

// ToPayload renders the command as a safety.command.v1 event payload.
func (c SafetyCommand) ToPayload() map[string]any {
	p := map[string]any{
		"user_id": c.UserID,
		"turn_id": c.TurnID,
		"prompt":  c.Prompt,
	}
	if c.Reason != "" {
		p["reason"] = c.Reason
	}
	if c.Escalation != "" {
		p["escalation"] = c.Escalation
	}
	return p
}

// SafetyCommandFromEvent validates and extracts a command from a
// safety.command.v1 event. user_id and prompt are mandatory; everything else
// is optional by convention.
func SafetyCommandFromEvent(ev Event) (SafetyCommand, error) {
	cmd := SafetyCommand{
		UserID:     ev.StringField("user_id"),
		TurnID:     ev.StringField("turn_id"),
		Prompt:     ev.StringField("prompt"),
		Reason:     ev.StringField("reason"),
		Escalation: ev.StringField("escalation"),
	}
	if cmd.UserID == "" {
		return SafetyCommand{}, fmt.Errorf("safety command event %s: missing user_id", ev.ID)
	}
	if cmd.Prompt == "" {
		return SafetyCommand{}, fmt.Errorf("safety command event %s: missing prompt", ev.ID)
	}
	return cmd, nil
}
