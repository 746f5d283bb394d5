// Package session implements the in-memory transcript store keyed by artifact id.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/book-expert/vietforeign-service/internal/core"
)

// Store is a mutex-guarded map of sessions. Readers always receive copies, and
// every mutation is applied atomically per key.
type Store struct {
	now func() time.Time

	mu       sync.RWMutex
	sessions map[string]core.Session
}

var _ core.SessionStore = (*Store)(nil)

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{
		now:      time.Now,
		sessions: make(map[string]core.Session),
	}
}

// Get returns a copy of the session stored under id.
func (s *Store) Get(id string) (core.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	found, ok := s.sessions[id]
	if !ok {
		return core.Session{}, false
	}

	return found.Clone(), true
}

// Update applies fn to the session stored under id.
func (s *Store) Update(id string, fn func(*core.Session) error) error {
	return s.apply(id, false, fn)
}

// Upsert applies fn to the session stored under id, starting from an empty
// session when none exists.
func (s *Store) Upsert(id string, fn func(*core.Session) error) error {
	return s.apply(id, true, fn)
}

func (s *Store) apply(id string, create bool, fn func(*core.Session) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.sessions[id]
	if !ok {
		if !create {
			return fmt.Errorf("%w: session %s", core.ErrNotFound, id)
		}

		current = core.Session{ID: id, Status: core.StatusAbsent}
	}

	working := current.Clone()

	fnErr := fn(&working)
	if fnErr != nil {
		return fnErr
	}

	working.ID = id
	working.UpdatedAt = s.now()
	s.sessions[id] = working

	return nil
}

// Len returns the number of stored sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.sessions)
}

// Clear removes every session.
func (s *Store) Clear() {
	s.mu.Lock()
	s.sessions = make(map[string]core.Session)
	s.mu.Unlock()
}
