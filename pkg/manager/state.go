package manager

import "sync"

// LoadingState describes the library-wide refresh.
type LoadingState struct {
	GlobalLoading    bool   `json:"global_loading"`
	Fetching         bool   `json:"fetching"`
	Processed        int    `json:"processed"`
	Total            int    `json:"total"`
	CurrentGameLabel string `json:"current_game_label"`
	LastErrorMessage string `json:"last_error_message,omitempty"`
	Errored          bool   `json:"errored"`
}

// StateStore holds the LoadingState. Readers get copies; all changes go
// through update and are delivered to subscribers in the order they were
// made.
type StateStore struct {
	mu     sync.Mutex
	state  LoadingState
	subs   map[int]func(LoadingState)
	nextID int

	// deliver serializes subscriber calls.
	deliver sync.Mutex
}

func newStateStore() *StateStore {
	return &StateStore{subs: make(map[int]func(LoadingState))}
}

// Snapshot returns the current state.
func (s *StateStore) Snapshot() LoadingState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers fn to receive every new state. fn must not change the
// state itself. The returned function unsubscribes.
func (s *StateStore) Subscribe(fn func(LoadingState)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// update applies fn. Subscribers are told when fn reports a change.
func (s *StateStore) update(fn func(st *LoadingState) bool) LoadingState {
	s.mu.Lock()
	changed := fn(&s.state)
	snap := s.state
	if !changed || len(s.subs) == 0 {
		s.mu.Unlock()
		return snap
	}
	subs := make([]func(LoadingState), 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.deliver.Lock()
	s.mu.Unlock()

	defer s.deliver.Unlock()
	for _, sub := range subs {
		sub(snap)
	}
	return snap
}
