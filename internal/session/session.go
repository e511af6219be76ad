// Package session is the conversational-state collaborator: a per-user
// phase plus the small data bag the polling loop re-reads each cycle.
package session

import "sync"

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseActive
)

type state struct {
	phase       Phase
	subscribed  bool
	lastMessage string
}

// Store keeps conversational state in memory. It is the source of truth the
// scheduler consults every cycle; nothing here survives a restart, matching
// the chat platform's ephemeral session semantics.
type Store struct {
	mu sync.RWMutex
	m  map[int64]*state
}

func NewStore() *Store {
	return &Store{m: make(map[int64]*state)}
}

func (s *Store) get(userID int64) *state {
	st, ok := s.m[userID]
	if !ok {
		st = &state{}
		s.m[userID] = st
	}
	return st
}

func (s *Store) Phase(userID int64) Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.m[userID]; ok {
		return st.phase
	}
	return PhaseIdle
}

func (s *Store) SetPhase(userID int64, p Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.get(userID).phase = p
}

func (s *Store) Subscribed(userID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.m[userID]; ok {
		return st.subscribed
	}
	return false
}

func (s *Store) SetSubscribed(userID int64, v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.get(userID).subscribed = v
}

func (s *Store) LastMessage(userID int64) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.m[userID]; ok {
		return st.lastMessage
	}
	return ""
}

func (s *Store) SetLastMessage(userID int64, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.get(userID).lastMessage = msg
}
