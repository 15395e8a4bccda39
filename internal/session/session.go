// Package session keeps the per-connection conversation state.
package session

import (
	"slices"
	"sync"

	"github.com/pavelanni/assessor/internal/model"
)

// Store maps connection identifiers to their accumulated state. Values are
// copied on the way in and out, so callers never share memory with the
// store. Nothing is persisted.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]model.SessionState
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]model.SessionState)}
}

// Open creates the default state for a new connection.
func (s *Store) Open(id string) {
	s.Put(id, model.NewSessionState())
}

// Get returns the state for id, or the default state if there is none.
func (s *Store) Get(id string) model.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sessions[id]
	if !ok {
		return model.NewSessionState()
	}
	return st.Clone()
}

// Put replaces the state for id.
func (s *Store) Put(id string, st model.SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = st.Clone()
}

// Reset forgets everything collected for id but keeps the entry.
func (s *Store) Reset(id string) {
	s.Open(id)
}

// Delete removes the entry for id.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// Len returns the number of active sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// IDs returns the identifiers of the active sessions, sorted.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
