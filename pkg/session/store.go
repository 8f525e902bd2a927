package session

import (
	"sort"
	"sync"
	"time"

	errs "github.com/matzehuels/forceview/pkg/errors"
)

// Store is an in-memory session registry with a capacity limit.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	max      int
}

// NewStore creates a store holding at most max sessions. A non-positive max
// means no limit.
func NewStore(max int) *Store {
	return &Store{sessions: make(map[string]*Session), max: max}
}

// Add registers s. It fails with ErrLimit when the store is full.
func (st *Store) Add(s *Session) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.max > 0 && len(st.sessions) >= st.max {
		return ErrLimit
	}
	st.sessions[s.ID] = s
	return nil
}

// Get returns the live session with the given ID.
func (st *Store) Get(id string) (*Session, error) {
	if err := errs.ValidateSessionID(id); err != nil {
		return nil, err
	}
	st.mu.RLock()
	s, ok := st.sessions[id]
	st.mu.RUnlock()
	if !ok || s.Closed() {
		return nil, ErrNotFound
	}
	return s, nil
}

// Remove unregisters the session with the given ID and returns it without
// closing it.
func (st *Store) Remove(id string) (*Session, error) {
	if err := errs.ValidateSessionID(id); err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	delete(st.sessions, id)
	return s, nil
}

// Len returns the number of registered sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// List returns every session, oldest first.
func (st *Store) List() []*Session {
	st.mu.RLock()
	out := make([]*Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		out = append(out, s)
	}
	st.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Expired unregisters and returns every session idle past its TTL at now.
func (st *Store) Expired(now time.Time) []*Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	var out []*Session
	for id, s := range st.sessions {
		if s.IsExpired(now) {
			delete(st.sessions, id)
			out = append(out, s)
		}
	}
	return out
}

// Drain unregisters and returns every session.
func (st *Store) Drain() []*Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]*Session, 0, len(st.sessions))
	for id, s := range st.sessions {
		delete(st.sessions, id)
		out = append(out, s)
	}
	return out
}
