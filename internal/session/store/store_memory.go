// Package store persists sessions in memory or Redis.
package store

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"bankguard/internal/session/models"
	"bankguard/pkg/platform/sentinel"
)

// InMemory keeps sessions in a map. Expiry is enforced only by callers and
// DeleteExpired.
type InMemory struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*models.Session
}

func NewInMemory() *InMemory {
	return &InMemory{sessions: make(map[uuid.UUID]*models.Session)}
}

func (s *InMemory) Create(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[session.ID]; exists {
		return sentinel.ErrDuplicate
	}
	s.sessions[session.ID] = session.Clone()
	return nil
}

func (s *InMemory) Get(_ context.Context, id uuid.UUID) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return session.Clone(), nil
}

// SetData writes one key and refreshes the access time. Other keys are untouched.
func (s *InMemory) SetData(_ context.Context, id uuid.UUID, key string, value json.RawMessage, now time.Time) (*models.Session, error) {
	return s.mutate(id, now, func(session *models.Session) {
		session.Data[key] = append(json.RawMessage(nil), value...)
	})
}

func (s *InMemory) RemoveData(_ context.Context, id uuid.UUID, key string, now time.Time) (*models.Session, error) {
	return s.mutate(id, now, func(session *models.Session) {
		delete(session.Data, key)
	})
}

func (s *InMemory) mutate(id uuid.UUID, now time.Time, fn func(*models.Session)) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	fn(session)
	session.Touch(now)
	return session.Clone(), nil
}

func (s *InMemory) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.sessions, id)
	return nil
}

// ListForUser returns the user's sessions, oldest first.
func (s *InMemory) ListForUser(_ context.Context, userID string) ([]*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Session
	for _, session := range s.sessions {
		if session.UserID == userID {
			out = append(out, session.Clone())
		}
	}
	sortByCreation(out)
	return out, nil
}

func (s *InMemory) DeleteForUser(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, session := range s.sessions {
		if session.UserID == userID {
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}

func (s *InMemory) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, session := range s.sessions {
		if session.ExpiredAt(now) {
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}

func sortByCreation(sessions []*models.Session) {
	slices.SortFunc(sessions, func(a, b *models.Session) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
}
