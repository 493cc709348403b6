package core

import "time"

// Risk and status levels reported by the synthetic health-signal engines.
const (
	RiskLow  = "low"
	RiskMid  = "mid"
	RiskHigh = "high"

	StatusStable    = "stable"
	StatusImproving = "improving"
	StatusDeclining = "declining"
)

// Profile carries the stable user attributes surfaced to the dialogue stages.
type Profile struct {
	DisplayName string            `json:"display_name"`
	Persona     string            `json:"persona,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

// Fact is a single remembered statement about the user.
type Fact struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Category  string    `json:"category,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Goal is an active user goal tracked by the memory service.
type Goal struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Status string `json:"status,omitempty"`
}

// GratitudeEntry is one recorded gratitude item.
type GratitudeEntry struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	RecordedAt time.Time `json:"recorded_at"`
}

// MemorySnapshot is the result of a retrieve-for-dialogue call: the slice of
// long-term memory relevant to the current transcript.
type MemorySnapshot struct {
	Profile     *Profile         `json:"profile,omitempty"`
	Facts       []Fact           `json:"facts"`
	Goals       []Goal           `json:"goals"`
	Gratitude   []GratitudeEntry `json:"gratitude"`
	LastMode    string           `json:"last_mode,omitempty"`
	LastEmotion string           `json:"last_emotion,omitempty"`
}

// Vital is a single physical measurement with an engine-assigned risk level.
type Vital struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Unit  string  `json:"unit,omitempty"`
	Risk  string  `json:"risk"`
}

// PhysicalState summarizes the user's physical signals.
type PhysicalState struct {
	Vitals  []Vital `json:"vitals"`
	Summary string  `json:"summary,omitempty"`
}

// HasHighRisk reports whether any vital carries a high risk level. Safe on a
// nil receiver so degraded (absent) state reads short-circuit to false.
func (p *PhysicalState) HasHighRisk() bool {
	if p == nil {
		return false
	}
	for _, v := range p.Vitals {
		if v.Risk == RiskHigh {
			return true
		}
	}
	return false
}

// MindDomain is one tracked mind/behavior dimension (sleep, mood, social...).
type MindDomain struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// MindBehaviorState summarizes the user's mind/behavior signals.
type MindBehaviorState struct {
	Domains []MindDomain `json:"domains"`
	Summary string       `json:"summary,omitempty"`
}

// HasDeclining reports whether any domain is declining. Nil-safe.
func (m *MindBehaviorState) HasDeclining() bool {
	if m == nil {
		return false
	}
	for _, d := range m.Domains {
		if d.Status == StatusDeclining {
			return true
		}
	}
	return false
}

// ConversationContext is the ephemeral per-turn join across the memory and
// state services. It is assembled fresh every turn and never persisted as a
// unit. Physical and MindBehavior are nil when the corresponding read was
// unavailable (degraded, not an error).
type ConversationContext struct {
	Profile      *Profile
	Facts        []Fact
	Goals        []Goal
	Gratitude    []GratitudeEntry
	LastMode     string
	LastEmotion  string
	Physical     *PhysicalState
	MindBehavior *MindBehaviorState
}
