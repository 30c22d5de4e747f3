package models

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	dErrors "bankguard/pkg/domain-errors"
	pstrings "bankguard/pkg/platform/strings"
)

const maxRoleNameLength = 64

// Role maps a name to a set of permission tokens.
//
// Invariants:
//   - Name is non-empty, at most 64 characters and unique across roles
//   - Permissions are trimmed, non-empty and free of duplicates
//   - CreatedAt is immutable after construction
type Role struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Permissions []string  `json:"permissions"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewRole validates and builds a role.
func NewRole(id uuid.UUID, name, description string, permissions []string, now time.Time) (*Role, error) {
	r := &Role{
		ID:          id,
		Name:        strings.TrimSpace(name),
		Description: strings.TrimSpace(description),
		Permissions: normalizePermissions(permissions),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Apply replaces the mutable fields and bumps UpdatedAt.
func (r *Role) Apply(name, description string, permissions []string, now time.Time) error {
	next := *r
	next.Name = strings.TrimSpace(name)
	next.Description = strings.TrimSpace(description)
	next.Permissions = normalizePermissions(permissions)
	next.UpdatedAt = now
	if err := next.validate(); err != nil {
		return err
	}
	*r = next
	return nil
}

// HasPermission reports whether permission is granted. Matching is exact.
func (r *Role) HasPermission(permission string) bool {
	return slices.Contains(r.Permissions, permission)
}

// Clone returns a deep copy safe to hand out of a store.
func (r *Role) Clone() *Role {
	c := *r
	c.Permissions = slices.Clone(r.Permissions)
	return &c
}

func (r *Role) validate() error {
	if r.Name == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "role name is required")
	}
	if len(r.Name) > maxRoleNameLength {
		return dErrors.New(dErrors.CodeInvariantViolation, "role name must be at most 64 characters")
	}
	return nil
}

func normalizePermissions(permissions []string) []string {
	return pstrings.Tokens(permissions)
}
