package role

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"bankguard/internal/rbac/models"
	"bankguard/pkg/platform/sentinel"
)

// InMemory is a role store guarded by a RWMutex. Reads return copies so a
// caller can never mutate a role another check is reading.
type InMemory struct {
	mu     sync.RWMutex
	byID   map[uuid.UUID]*models.Role
	byName map[string]uuid.UUID
}

func NewInMemory() *InMemory {
	return &InMemory{
		byID:   make(map[uuid.UUID]*models.Role),
		byName: make(map[string]uuid.UUID),
	}
}

func nameKey(name string) string {
	return strings.ToLower(name)
}

// CreateIfNameAvailable inserts role unless its name is taken.
func (s *InMemory) CreateIfNameAvailable(_ context.Context, role *models.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := nameKey(role.Name)
	if _, taken := s.byName[key]; taken {
		return sentinel.ErrDuplicate
	}
	s.byID[role.ID] = role.Clone()
	s.byName[key] = role.ID
	return nil
}

func (s *InMemory) FindByID(_ context.Context, id uuid.UUID) (*models.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	role, ok := s.byID[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return role.Clone(), nil
}

// FindByName matches names case-insensitively.
func (s *InMemory) FindByName(_ context.Context, name string) (*models.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byName[nameKey(name)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.byID[id].Clone(), nil
}

// Update replaces a stored role. Renaming onto another role's name fails
// with ErrDuplicate.
func (s *InMemory) Update(_ context.Context, role *models.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.byID[role.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	newKey := nameKey(role.Name)
	if owner, taken := s.byName[newKey]; taken && owner != role.ID {
		return sentinel.ErrDuplicate
	}
	delete(s.byName, nameKey(existing.Name))
	s.byName[newKey] = role.ID
	s.byID[role.ID] = role.Clone()
	return nil
}

func (s *InMemory) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.byID[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	delete(s.byName, nameKey(role.Name))
	delete(s.byID, id)
	return nil
}

// List returns all roles ordered by name.
func (s *InMemory) List(_ context.Context) ([]*models.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Role, 0, len(s.byID))
	for _, role := range s.byID {
		out = append(out, role.Clone())
	}
	slices.SortFunc(out, func(a, b *models.Role) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out, nil
}
