package core

import "time"

// Dialogue modes a planner may select. Anything outside this set falls
// through to the calm default tone.
const (
	ModeSupport   = "support"
	ModeCoach     = "coach"
	ModeGratitude = "gratitude"
	ModeGame      = "game"
	ModeReminder  = "reminder"
)

// Planner goals with special handling downstream.
const (
	GoalSuggestTinyStep = "suggest_tiny_step"
	GoalReflectFeelings = "reflect_feelings"
)

// Emotion attributes recognized by the tone and trigger rules.
const (
	EmotionSadness          = "sadness"
	IntensityLow            = "low"
	IntensityMid            = "mid"
	IntensityHigh           = "high"
	SocialNeedWantsGuidance = "wants_guidance"
)

// Response tones. The tone is a pure function of (emotion, plan) unless a
// safety override forces ToneSeriousDirect.
const (
	ToneWarmEmpathic     = "warm_empathic"
	ToneSupportiveCaring = "supportive_caring"
	ToneCoachGrounded    = "coach_grounded"
	ToneCheerfulLight    = "cheerful_light"
	TonePlayfulEnergetic = "playful_energetic"
	ToneSeriousDirect    = "serious_direct"
	ToneCalmSoothing     = "calm_soothing"
)

// TurnRequest is a single inbound voice/text turn.
type TurnRequest struct {
	UserID     string            `json:"userId"`
	SessionID  string            `json:"sessionId"`
	Transcript string            `json:"transcript"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// ListenerResult is the structured output of the listener stage: what the
// user said, distilled.
type ListenerResult struct {
	Summary        string   `json:"summary"`
	KeyPoints      []string `json:"key_points,omitempty"`
	ExtractedFacts []string `json:"extracted_facts,omitempty"`
}

// EmotionState is the refined emotional read of the current turn.
type EmotionState struct {
	Primary    string `json:"primary"`
	Intensity  string `json:"intensity"`
	SocialNeed string `json:"social_need,omitempty"`
}

// ModePlan is the planner's choice of conversational mode and goal.
type ModePlan struct {
	Mode  string `json:"mode"`
	Goal  string `json:"goal,omitempty"`
	Topic string `json:"topic,omitempty"`
}

// CoachResponse is the generated reply text plus an optional follow-up hook.
type CoachResponse struct {
	Text     string `json:"text"`
	FollowUp string `json:"follow_up,omitempty"`
}

// TurnResult is the structured outcome returned synchronously to the caller.
// SafetyCommand is non-nil only when a pending command overrode the reply.
type TurnResult struct {
	TurnID        string         `json:"turnId"`
	Transcript    string         `json:"transcript"`
	Listener      ListenerResult `json:"listener"`
	Emotion       EmotionState   `json:"emotion"`
	Plan          ModePlan       `json:"plan"`
	Coach         CoachResponse  `json:"coach"`
	Tone          string         `json:"tone"`
	SafetyCommand *SafetyCommand `json:"safetyCommand,omitempty"`
}

// Turn record roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// TurnRecord is one persisted side of a turn (user transcript or assistant
// reply) with the annotations the nightly jobs mine later.
type TurnRecord struct {
	ID        string    `json:"id"`
	TurnID    string    `json:"turn_id"`
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Mode      string    `json:"mode,omitempty"`
	Emotion   string    `json:"emotion,omitempty"`
	Tone      string    `json:"tone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
