package social

import (
	"sync"
	"time"
)

type pendingState struct {
	provider  string
	verifier  string
	redirect  string
	expiresAt time.Time
}

// stateStore keeps in-flight authorization states in memory. States are
// single use.
type stateStore struct {
	mu     sync.Mutex
	states map[string]pendingState
}

func newStateStore() *stateStore {
	return &stateStore{states: make(map[string]pendingState)}
}

func (s *stateStore) put(key string, state pendingState, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, pending := range s.states {
		if !pending.expiresAt.After(now) {
			delete(s.states, k)
		}
	}
	s.states[key] = state
}

func (s *stateStore) take(key string, now time.Time) (pendingState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[key]
	if !ok {
		return pendingState{}, false
	}
	delete(s.states, key)
	if !state.expiresAt.After(now) {
		return pendingState{}, false
	}
	return state, true
}

func (s *stateStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}
