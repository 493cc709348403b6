// Package session tracks live conversation sessions in a process-local map.
// The platform uses it to assign session identifiers, count turns and detect
// sessions that ended without a proper goodbye.
package session

import (
	"sort"
	"sync"
	"time"

	"github.com/kokoro-ai/kokoro/core"
)

// Session is a snapshot of one live conversation.
type Session struct {
	ID         string
	UserID     string
	StartedAt  time.Time
	LastTurnAt time.Time
	Turns      int
	LastTurnID string
}

// Manager is a volatile session registry safe for concurrent access. Each
// returned session is a value copy, so callers cannot mutate internal state.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

// NewManager constructs an empty session manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session), now: time.Now}
}

// Touch records a turn against the session, creating it lazily. An empty
// sessionID allocates a fresh session. Returns the updated snapshot.
func (m *Manager) Touch(userID, sessionID, turnID string) Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sessionID == "" {
		sessionID = core.NewID()
	}
	s, ok := m.sessions[sessionID]
	if !ok {
		s = &Session{ID: sessionID, UserID: userID, StartedAt: m.now().UTC()}
		m.sessions[sessionID] = s
	}
	s.LastTurnAt = m.now().UTC()
	s.Turns++
	s.LastTurnID = turnID
	return *s
}

// End removes the session and returns its final snapshot.
func (m *Manager) End(sessionID string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return Session{}, false
	}
	delete(m.sessions, sessionID)
	return *s, true
}

// Active returns the user's live sessions ordered by start time.
func (m *Manager) Active(userID string) []Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Session
	for _, s := range m.sessions {
		if s.UserID == userID {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}
