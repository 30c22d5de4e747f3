package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	audit "bankguard/pkg/platform/audit"
)

type InMemoryStore struct {
	mu      sync.RWMutex
	records []audit.Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
}

func (s *InMemoryStore) Append(_ context.Context, record audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

// Query returns matching records, newest first.
func (s *InMemoryStore) Query(_ context.Context, q audit.Query) ([]audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []audit.Record
	for _, r := range s.records {
		if q.Matches(r) {
			out = append(out, r)
		}
	}
	slices.SortStableFunc(out, func(a, b audit.Record) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// DeleteBefore removes records created strictly before cutoff.
func (s *InMemoryStore) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.records[:0]
	var removed int64
	for _, r := range s.records {
		if r.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	s.records = kept
	return removed, nil
}

// All returns every record in insertion order.
func (s *InMemoryStore) All() []audit.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Record(nil), s.records...)
}
