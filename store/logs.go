package store

import (
	"context"
	"sync"
	"time"

	"github.com/kokoro-ai/kokoro/core"
)

// LogStore collects the turn outcome and retrieval usage logs that the
// evolution cycle mines. Entries without a timestamp are stamped on insert.
type LogStore struct {
	mu            sync.RWMutex
	turnLogs      map[string][]core.TurnLog
	retrievalLogs map[string][]core.RetrievalLog
	now           func() time.Time
}

// NewLogStore constructs an empty log store.
func NewLogStore() *LogStore {
	return &LogStore{
		turnLogs:      make(map[string][]core.TurnLog),
		retrievalLogs: make(map[string][]core.RetrievalLog),
		now:           time.Now,
	}
}

// AddTurnLog records one turn outcome for a user.
func (s *LogStore) AddTurnLog(userID string, l core.TurnLog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.At.IsZero() {
		l.At = s.now().UTC()
	}
	s.turnLogs[userID] = append(s.turnLogs[userID], l)
}

// AddRetrievalLog records one retrieval batch outcome for a user.
func (s *LogStore) AddRetrievalLog(userID string, l core.RetrievalLog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.At.IsZero() {
		l.At = s.now().UTC()
	}
	s.retrievalLogs[userID] = append(s.retrievalLogs[userID], l)
}

// TurnLogs implements core.TurnLogSource, returning entries within the window.
func (s *LogStore) TurnLogs(_ context.Context, userID string, window time.Duration) ([]core.TurnLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cutoff := s.now().UTC().Add(-window)
	var out []core.TurnLog
	for _, l := range s.turnLogs[userID] {
		if !l.At.Before(cutoff) {
			out = append(out, l)
		}
	}
	return out, nil
}

// RetrievalLogs implements core.TurnLogSource.
func (s *LogStore) RetrievalLogs(_ context.Context, userID string, window time.Duration) ([]core.RetrievalLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cutoff := s.now().UTC().Add(-window)
	var out []core.RetrievalLog
	for _, l := range s.retrievalLogs[userID] {
		if !l.At.Before(cutoff) {
			out = append(out, l)
		}
	}
	return out, nil
}

var _ core.TurnLogSource = (*LogStore)(nil)
