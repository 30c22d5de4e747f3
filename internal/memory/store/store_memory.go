// Package store persists memory records in memory or Postgres.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"bankguard/internal/memory/models"
	"bankguard/pkg/platform/sentinel"
)

type naturalKey struct {
	kind models.Kind
	key  string
}

// InMemory indexes records by id and by (kind, natural key).
type InMemory struct {
	mu    sync.RWMutex
	byID  map[uuid.UUID]*models.Record
	byKey map[naturalKey]uuid.UUID
}

func NewInMemory() *InMemory {
	return &InMemory{
		byID:  make(map[uuid.UUID]*models.Record),
		byKey: make(map[naturalKey]uuid.UUID),
	}
}

// Upsert inserts the record or replaces the content of the record sharing
// its kind and natural key. The stored id, creation time and retention
// deadline survive a replace.
func (s *InMemory) Upsert(_ context.Context, rec *models.Record) (*models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := naturalKey{rec.Kind, rec.NaturalKey}
	if id, ok := s.byKey[k]; ok {
		existing := s.byID[id]
		existing.Owner = rec.Owner
		existing.Content = rec.Content
		existing.Payload = append(existing.Payload[:0:0], rec.Payload...)
		existing.Embedding = append(existing.Embedding[:0:0], rec.Embedding...)
		existing.UpdatedAt = rec.UpdatedAt
		return existing.Clone(), nil
	}
	if _, taken := s.byID[rec.ID]; taken {
		return nil, sentinel.ErrDuplicate
	}
	s.byID[rec.ID] = rec.Clone()
	s.byKey[k] = rec.ID
	return rec.Clone(), nil
}

func (s *InMemory) FindByKey(_ context.Context, kind models.Kind, key string) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byKey[naturalKey{kind, key}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.byID[id].Clone(), nil
}

func (s *InMemory) FindByID(_ context.Context, id uuid.UUID) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return rec.Clone(), nil
}

// Candidates returns a snapshot of every record of kind, restricted to owner
// when owner is non-empty.
func (s *InMemory) Candidates(_ context.Context, kind models.Kind, owner string) ([]*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Record, 0)
	for _, rec := range s.byID {
		if rec.Kind != kind || (owner != "" && rec.Owner != owner) {
			continue
		}
		out = append(out, rec.Clone())
	}
	return out, nil
}

func (s *InMemory) UpdateRetention(_ context.Context, id uuid.UUID, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	rec.RetentionUntil = until
	return nil
}

// ExtendRetention adds years to the stored deadline under the write lock.
func (s *InMemory) ExtendRetention(_ context.Context, id uuid.UUID, years int) (*models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := rec.ExtendRetention(years); err != nil {
		return nil, err
	}
	return rec.Clone(), nil
}

func (s *InMemory) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	delete(s.byID, id)
	delete(s.byKey, naturalKey{rec.Kind, rec.NaturalKey})
	return nil
}

// DeleteExpired removes records whose retention deadline is before now.
func (s *InMemory) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, rec := range s.byID {
		if rec.ExpiredAt(now) {
			delete(s.byID, id)
			delete(s.byKey, naturalKey{rec.Kind, rec.NaturalKey})
			removed++
		}
	}
	return removed, nil
}
