package core

import (
	"context"
	"errors"
	"time"
)

// ErrPlaybookNotFound is returned by PlaybookStore.Playbook when the user has
// no playbook yet. The evolution cycle treats it as "start from empty".
var ErrPlaybookNotFound = errors.New("playbook not found")

// MemoryService is the mandatory long-term memory collaborator. A failing
// retrieve aborts the turn; fact storage is a best-effort post-turn effect.
type MemoryService interface {
	RetrieveForDialogue(ctx context.Context, userID, query string) (*MemorySnapshot, error)
	StoreFacts(ctx context.Context, userID string, facts []string) error
}

// PhysicalStateService reads the synthetic physical-signal engine. Optional:
// failures degrade the turn, they never abort it.
type PhysicalStateService interface {
	PhysicalState(ctx context.Context, userID string) (*PhysicalState, error)
}

// MindBehaviorService reads the mind/behavior-signal engine. Optional like
// PhysicalStateService.
type MindBehaviorService interface {
	MindBehaviorState(ctx context.Context, userID string) (*MindBehaviorState, error)
}

// TurnStore persists turn records and serves recent history.
type TurnStore interface {
	AppendTurn(ctx context.Context, rec TurnRecord) error
	RecentTurns(ctx context.Context, userID string, limit int) ([]TurnRecord, error)
}

// PlaybookStore persists per-user playbooks.
type PlaybookStore interface {
	Playbook(ctx context.Context, userID string) (*Playbook, error)
	SavePlaybook(ctx context.Context, pb *Playbook) error
}

// TurnLogSource serves the outcome and retrieval-usage logs the evolution
// cycle mines. The window is measured back from now.
type TurnLogSource interface {
	TurnLogs(ctx context.Context, userID string, window time.Duration) ([]TurnLog, error)
	RetrievalLogs(ctx context.Context, userID string, window time.Duration) ([]RetrievalLog, error)
}

// ScheduledTask is a deferred action handed to the scheduling collaborator.
type ScheduledTask struct {
	UserID string    `json:"user_id"`
	Kind   string    `json:"kind"`
	At     time.Time `json:"at"`
	Note   string    `json:"note,omitempty"`
}

// Scheduler dispatches deferred tasks (external collaborator).
type Scheduler interface {
	ScheduleTask(ctx context.Context, task ScheduledTask) error
}

// Notification is a push message handed to the notification collaborator.
type Notification struct {
	UserID string `json:"user_id"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

// Notifier dispatches notifications (external collaborator).
type Notifier interface {
	SendNotification(ctx context.Context, n Notification) error
}
