package store

import (
	"context"
	"sort"
	"sync"

	"github.com/kokoro-ai/kokoro/core"
)

// InMemoryTurnStore keeps turn records per user in insertion order.
type InMemoryTurnStore struct {
	mu    sync.RWMutex
	turns map[string][]core.TurnRecord
}

// NewInMemoryTurnStore constructs an empty turn store.
func NewInMemoryTurnStore() *InMemoryTurnStore {
	return &InMemoryTurnStore{turns: make(map[string][]core.TurnRecord)}
}

// AppendTurn implements core.TurnStore.
func (s *InMemoryTurnStore) AppendTurn(_ context.Context, rec core.TurnRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns[rec.UserID] = append(s.turns[rec.UserID], rec)
	return nil
}

// RecentTurns implements core.TurnStore, returning up to limit records in
// chronological order.
func (s *InMemoryTurnStore) RecentTurns(_ context.Context, userID string, limit int) ([]core.TurnRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recs := s.turns[userID]
	if limit > 0 && len(recs) > limit {
		recs = recs[len(recs)-limit:]
	}
	out := make([]core.TurnRecord, len(recs))
	copy(out, recs)
	return out, nil
}

// ActiveUsers lists every user with at least one turn record, sorted for
// deterministic sweeps.
func (s *InMemoryTurnStore) ActiveUsers(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]string, 0, len(s.turns))
	for u := range s.turns {
		users = append(users, u)
	}
	sort.Strings(users)
	return users, nil
}

// InMemoryPlaybookStore keeps playbooks per user. Reads and writes exchange
// deep copies so callers can mutate freely.
type InMemoryPlaybookStore struct {
	mu        sync.RWMutex
	playbooks map[string]*core.Playbook
}

// NewInMemoryPlaybookStore constructs an empty playbook store.
func NewInMemoryPlaybookStore() *InMemoryPlaybookStore {
	return &InMemoryPlaybookStore{playbooks: make(map[string]*core.Playbook)}
}

// Playbook implements core.PlaybookStore.
func (s *InMemoryPlaybookStore) Playbook(_ context.Context, userID string) (*core.Playbook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pb, ok := s.playbooks[userID]
	if !ok {
		return nil, core.ErrPlaybookNotFound
	}
	return pb.Clone(), nil
}

// SavePlaybook implements core.PlaybookStore.
func (s *InMemoryPlaybookStore) SavePlaybook(_ context.Context, pb *core.Playbook) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playbooks[pb.UserID] = pb.Clone()
	return nil
}

var (
	_ core.TurnStore     = (*InMemoryTurnStore)(nil)
	_ core.PlaybookStore = (*InMemoryPlaybookStore)(nil)
)
