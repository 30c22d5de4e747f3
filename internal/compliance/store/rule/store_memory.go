package rule

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"

	"bankguard/internal/compliance/models"
	"bankguard/pkg/platform/sentinel"
)

type InMemory struct {
	mu    sync.RWMutex
	rules map[uuid.UUID]models.Rule
}

func NewInMemory() *InMemory {
	return &InMemory{rules: make(map[uuid.UUID]models.Rule)}
}

func (s *InMemory) Create(_ context.Context, rule *models.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rules[rule.ID]; exists {
		return sentinel.ErrDuplicate
	}
	s.rules[rule.ID] = *rule
	return nil
}

func (s *InMemory) FindByID(_ context.Context, id uuid.UUID) (*models.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rule, ok := s.rules[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &rule, nil
}

func (s *InMemory) Update(_ context.Context, rule *models.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[rule.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.rules[rule.ID] = *rule
	return nil
}

func (s *InMemory) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[id]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.rules, id)
	return nil
}

// ListActive returns active rules by priority descending, then name.
func (s *InMemory) ListActive(_ context.Context) ([]*models.Rule, error) {
	return s.filter(func(r models.Rule) bool { return r.Active }), nil
}

// ListActiveByCategory is ListActive restricted to one category.
func (s *InMemory) ListActiveByCategory(_ context.Context, category models.Category) ([]*models.Rule, error) {
	return s.filter(func(r models.Rule) bool { return r.Active && r.Category == category }), nil
}

func (s *InMemory) filter(keep func(models.Rule) bool) []*models.Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Rule
	for _, r := range s.rules {
		if keep(r) {
			out = append(out, &r)
		}
	}
	slices.SortFunc(out, func(a, b *models.Rule) int {
		if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return out
}
