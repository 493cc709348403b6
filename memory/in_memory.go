package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/kokoro-ai/kokoro/core"
)

// retrieveLimit caps how many facts a single retrieve returns.
const retrieveLimit = 10

// userMemory is the per-user record held by InMemoryService.
type userMemory struct {
	profile     *core.Profile
	facts       []core.Fact
	goals       []core.Goal
	gratitude   []core.GratitudeEntry
	lastMode    string
	lastEmotion string
}

// InMemoryService is a volatile MemoryService storing user memory in a
// process-local map. It is safe for concurrent access and best suited for
// tests or ephemeral demo servers. Retrieval is a linear substring scan over
// fact text (case insensitive); swap in the HTTP service for semantic
// retrieval in production.
type InMemoryService struct {
	mu    sync.RWMutex
	users map[string]*userMemory
}

// NewInMemoryService constructs an empty in-memory memory service.
func NewInMemoryService() *InMemoryService {
	return &InMemoryService{users: make(map[string]*userMemory)}
}

// RetrieveForDialogue assembles a snapshot of the memory relevant to the
// query: matching facts first, padded with the most recent ones up to the
// retrieve limit, plus profile, goals, gratitude and last-turn hints.
func (s *InMemoryService) RetrieveForDialogue(_ context.Context, userID, query string) (*core.MemorySnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &core.MemorySnapshot{
		Facts:     []core.Fact{},
		Goals:     []core.Goal{},
		Gratitude: []core.GratitudeEntry{},
	}
	u, ok := s.users[userID]
	if !ok {
		return snap, nil
	}

	snap.Profile = u.profile
	snap.LastMode = u.lastMode
	snap.LastEmotion = u.lastEmotion
	snap.Goals = append(snap.Goals, u.goals...)
	snap.Gratitude = append(snap.Gratitude, u.gratitude...)

	q := strings.ToLower(query)
	seen := make(map[string]bool)
	for _, f := range u.facts {
		if len(snap.Facts) >= retrieveLimit {
			break
		}
		if q == "" || strings.Contains(strings.ToLower(f.Text), q) {
			snap.Facts = append(snap.Facts, f)
			seen[f.ID] = true
		}
	}
	// pad with the newest facts so a narrow query still yields context
	for i := len(u.facts) - 1; i >= 0 && len(snap.Facts) < retrieveLimit; i-- {
		if !seen[u.facts[i].ID] {
			snap.Facts = append(snap.Facts, u.facts[i])
			seen[u.facts[i].ID] = true
		}
	}
	return snap, nil
}

// StoreFacts appends extracted facts to the user's memory.
func (s *InMemoryService) StoreFacts(_ context.Context, userID string, facts []string) error {
	if len(facts) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.userLocked(userID)
	now := time.Now().UTC()
	for _, text := range facts {
		if text == "" {
			continue
		}
		u.facts = append(u.facts, core.Fact{ID: core.NewID(), Text: text, CreatedAt: now})
	}
	return nil
}

// SetProfile stores the user profile surfaced in snapshots.
func (s *InMemoryService) SetProfile(userID string, p core.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userLocked(userID).profile = &p
}

// AddGoal appends an active goal.
func (s *InMemoryService) AddGoal(userID string, g core.Goal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g.ID == "" {
		g.ID = core.NewID()
	}
	u := s.userLocked(userID)
	u.goals = append(u.goals, g)
}

// AddGratitude appends a gratitude entry.
func (s *InMemoryService) AddGratitude(userID string, g core.GratitudeEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g.ID == "" {
		g.ID = core.NewID()
	}
	if g.RecordedAt.IsZero() {
		g.RecordedAt = time.Now().UTC()
	}
	u := s.userLocked(userID)
	u.gratitude = append(u.gratitude, g)
}

// SetLastTurn records the previous turn's mode and emotion hints.
func (s *InMemoryService) SetLastTurn(userID, mode, emotion string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.userLocked(userID)
	u.lastMode = mode
	u.lastEmotion = emotion
}

func (s *InMemoryService) userLocked(userID string) *userMemory {
	u, ok := s.users[userID]
	if !ok {
		u = &userMemory{}
		s.users[userID] = u
	}
	return u
}

var _ core.MemoryService = (*InMemoryService)(nil)
