package memory

import (
	"context"
	"sync"

	"fils-quiz-bot/internal/app"
)

// SessionStore is an in-memory implementation of app.SessionRepository. Sessions are never evicted;
// at the scale of a single bot this growth is accepted, use the Redis store for TTL-based expiry.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[int64]*app.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[int64]*app.Session),
	}
}

func (s *SessionStore) GetOrCreate(_ context.Context, userID int64) *app.Session {
	s.mu.RLock()
	session, ok := s.sessions[userID]
	s.mu.RUnlock()
	if ok {
		return session
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[userID]; ok {
		return session
	}
	session = app.NewSession()
	s.sessions[userID] = session
	return session
}

func (s *SessionStore) Get(_ context.Context, userID int64) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[userID]
	return session, ok
}

// Save is a no-op: the session pointer held in the map already carries the state.
func (s *SessionStore) Save(context.Context, int64, app.SessionSnapshot) error {
	return nil
}

// Len reports how many sessions are held.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
