package session

import (
	"sort"
	"sync"
)

// Store holds the introspection state of every loaded session. It is safe
// for concurrent use; readers always get copies.
type Store struct {
	mu        sync.RWMutex
	sessions  map[string]*SessionState
	nextOrder int
}

func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*SessionState),
	}
}

func (s *Store) Get(name string) (*SessionState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sessions[name]
	if !ok {
		return nil, false
	}
	return st.Clone(), true
}

// GetAll returns copies of all states in registration order.
func (s *Store) GetAll() []*SessionState {
	s.mu.RLock()
	result := make([]*SessionState, 0, len(s.sessions))
	for _, st := range s.sessions {
		result = append(result, st.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i].Order < result[j].Order })
	return result
}

// Update stores a copy of state, keeping the original registration order
// when the session is already known.
func (s *Store) Update(state *SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[state.Name]; ok {
		state.Order = existing.Order
	} else {
		state.Order = s.nextOrder
		s.nextOrder++
	}
	s.sessions[state.Name] = state.Clone()
}

// Modify applies fn to the stored state for name under the write lock.
// It reports false when the session is unknown.
func (s *Store) Modify(name string, fn func(*SessionState)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[name]
	if !ok {
		return false
	}
	fn(st)
	return true
}

func (s *Store) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, name)
}

// Count returns the number of sessions with the given status.
func (s *Store) Count(status Status) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, st := range s.sessions {
		if st.Status == status {
			count++
		}
	}
	return count
}

// Len returns the number of known sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
