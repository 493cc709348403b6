package core

import "time"

// Playbook section names. Sections hold ordered bullets; unknown sections are
// preserved on read-modify-write cycles.
const (
	SectionRetrievalStrategies     = "retrieval_strategies"
	SectionContextEngineeringRules = "context_engineering_rules"
	SectionCommonMistakes          = "common_mistakes"
)

// Bullet is one playbook entry with helpful/harmful counters maintained by
// the curation stage. Condition describes when the strategy applies and is
// the dedup key alongside Content.
type Bullet struct {
	ID        string    `json:"id"`
	Condition string    `json:"condition,omitempty"`
	Content   string    `json:"content"`
	Helpful   int       `json:"helpful"`
	Harmful   int       `json:"harmful"`
	AddedAt   time.Time `json:"added_at"`
}

// Playbook is the per-user, versioned document of retrieval strategies and
// context rules. Version increments exactly once per completed evolution
// cycle; LastUpdated gates the 24h idempotence guard.
type Playbook struct {
	ID          string              `json:"playbook_id"`
	UserID      string              `json:"user_id"`
	Sections    map[string][]Bullet `json:"sections"`
	LastUpdated time.Time           `json:"last_updated"`
	Version     int                 `json:"version"`
}

// NewPlaybook allocates an empty playbook with the three standard sections.
func NewPlaybook(userID string) *Playbook {
	return &Playbook{
		ID:     NewID(),
		UserID: userID,
		Sections: map[string][]Bullet{
			SectionRetrievalStrategies:     {},
			SectionContextEngineeringRules: {},
			SectionCommonMistakes:          {},
		},
	}
}

// Clone returns a deep copy safe for independent mutation.
func (p *Playbook) Clone() *Playbook {
	clone := &Playbook{
		ID:          p.ID,
		UserID:      p.UserID,
		Sections:    make(map[string][]Bullet, len(p.Sections)),
		LastUpdated: p.LastUpdated,
		Version:     p.Version,
	}
	for name, bullets := range p.Sections {
		cp := make([]Bullet, len(bullets))
		copy(cp, bullets)
		clone.Sections[name] = cp
	}
	return clone
}

// TurnLog is the per-turn outcome record mined by the evolution cycle:
// which bullets were active and how the turn went.
type TurnLog struct {
	TurnID         string    `json:"turn_id"`
	Emotion        string    `json:"emotion"`
	Mode           string    `json:"mode"`
	UserEngagement float64   `json:"user_engagement"`
	EndedAbruptly  bool      `json:"ended_abruptly"`
	ActiveBullets  []string  `json:"active_bullets,omitempty"`
	At             time.Time `json:"at"`
}

// RetrievalLog records how much of a retrieval batch the dialogue actually
// used; chronically low usage rates yield candidate filtering rules.
type RetrievalLog struct {
	BatchID   string    `json:"batch_id"`
	Retrieved int       `json:"retrieved"`
	Used      int       `json:"used"`
	At        time.Time `json:"at"`
}

// UsageRate is Used/Retrieved, or 1.0 for an empty batch (nothing wasted).
func (r RetrievalLog) UsageRate() float64 {
	if r.Retrieved == 0 {
		return 1.0
	}
	return float64(r.Used) / float64(r.Retrieved)
}
