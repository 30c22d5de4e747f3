// Package service implements the permission gate and role management.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	rbacmetrics "bankguard/internal/rbac/metrics"
	"bankguard/internal/rbac/models"
	dErrors "bankguard/pkg/domain-errors"
	audit "bankguard/pkg/platform/audit"
	"bankguard/pkg/platform/sentinel"
	"bankguard/pkg/requestcontext"
)

// ResourceTypeRole labels audit records about roles.
const ResourceTypeRole = "ROLE"

type RoleStore interface {
	CreateIfNameAvailable(ctx context.Context, role *models.Role) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Role, error)
	FindByName(ctx context.Context, name string) (*models.Role, error)
	Update(ctx context.Context, role *models.Role) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context) ([]*models.Role, error)
}

// Service checks permissions and manages roles.
type Service struct {
	roles   RoleStore
	logger  *slog.Logger
	auditor audit.Recorder
	metrics *rbacmetrics.Metrics
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher audit.Recorder) Option {
	return func(s *Service) {
		s.auditor = publisher
	}
}

func WithMetrics(m *rbacmetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(roles RoleStore, opts ...Option) *Service {
	s := &Service{
		roles:   roles,
		logger:  slog.Default(),
		auditor: audit.Discard{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Check reports whether role grants permission. An unknown role or a store
// failure denies. Check does not audit; callers record the outcome with their
// own context.
func (s *Service) Check(ctx context.Context, userID, roleName, permission string) bool {
	roleName = strings.TrimSpace(roleName)
	if roleName == "" || permission == "" {
		s.metrics.IncrementCheck("denied")
		return false
	}
	role, err := s.roles.FindByName(ctx, roleName)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.logger.WarnContext(ctx, "permission check for unknown role",
				"user_id", userID,
				"role", roleName,
			)
			s.metrics.IncrementCheck("unknown_role")
			return false
		}
		s.logger.ErrorContext(ctx, "permission check failed",
			"user_id", userID,
			"role", roleName,
			"error", err,
		)
		s.metrics.IncrementCheck("error")
		return false
	}
	if !role.HasPermission(permission) {
		s.metrics.IncrementCheck("denied")
		return false
	}
	s.metrics.IncrementCheck("granted")
	return true
}

// AuditedCheck runs Check for the management API and records a
// PERMISSION_CHECK entry for it. An unknown role is recorded as a failure.
func (s *Service) AuditedCheck(ctx context.Context, userID, roleName, permission string) bool {
	rec := audit.NewRecord(ctx, audit.ActionPermissionCheck)
	rec.Actor = userID
	rec.ResourceType = ResourceTypeRole
	rec.ResourceID = roleName
	rec.Request = "Permission: " + permission

	if _, err := s.roles.FindByName(ctx, strings.TrimSpace(roleName)); errors.Is(err, sentinel.ErrNotFound) {
		rec.Response = "Result: Role not found"
		s.auditor.Record(ctx, rec.Failed("Role not found"))
		s.metrics.IncrementCheck("unknown_role")
		return false
	}

	granted := s.Check(ctx, userID, roleName, permission)
	rec.Response = fmt.Sprintf("Result: %t", granted)
	s.auditor.Record(ctx, rec.Succeeded())
	return granted
}

// Permissions returns the permission set of a role.
func (s *Service) Permissions(ctx context.Context, roleName string) ([]string, error) {
	role, err := s.GetRoleByName(ctx, roleName)
	if err != nil {
		return nil, err
	}
	return role.Permissions, nil
}

// CreateRole fails with conflict when the name is taken.
func (s *Service) CreateRole(ctx context.Context, name, description string, permissions []string) (*models.Role, error) {
	rec := audit.NewRecord(ctx, audit.ActionRoleCreated)
	rec.ResourceType = ResourceTypeRole
	rec.ResourceID = strings.TrimSpace(name)
	rec.Request = encode(map[string]any{"name": name, "description": description, "permissions": permissions})

	role, err := models.NewRole(uuid.New(), name, description, permissions, requestcontext.Now(ctx))
	if err != nil {
		return nil, invariantToValidation(err)
	}

	if err := s.roles.CreateIfNameAvailable(ctx, role); err != nil {
		if errors.Is(err, sentinel.ErrDuplicate) {
			s.auditor.Record(ctx, rec.Failed("Role already exists"))
			return nil, dErrors.New(dErrors.CodeConflict, "role already exists: "+role.Name)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create role")
	}

	rec.ResourceID = role.ID.String()
	rec.Response = encode(role)
	s.auditor.Record(ctx, rec.Succeeded())
	s.metrics.IncrementRoleChange("create")
	s.logger.InfoContext(ctx, "role created", "role_id", role.ID, "role", role.Name)
	return role, nil
}

// UpdateRole replaces name, description and permissions.
func (s *Service) UpdateRole(ctx context.Context, id uuid.UUID, name, description string, permissions []string) (*models.Role, error) {
	role, err := s.GetRole(ctx, id)
	if err != nil {
		return nil, err
	}
	before := encode(role)

	if err := role.Apply(name, description, permissions, requestcontext.Now(ctx)); err != nil {
		return nil, invariantToValidation(err)
	}
	if err := s.roles.Update(ctx, role); err != nil {
		return nil, wrapRoleErr(err, "failed to update role")
	}

	rec := audit.NewRecord(ctx, audit.ActionRoleUpdated)
	rec.ResourceType = ResourceTypeRole
	rec.ResourceID = id.String()
	rec.Request = before
	rec.Response = encode(role)
	s.auditor.Record(ctx, rec.Succeeded())
	s.metrics.IncrementRoleChange("update")
	return role, nil
}

func (s *Service) DeleteRole(ctx context.Context, id uuid.UUID) error {
	role, err := s.GetRole(ctx, id)
	if err != nil {
		return err
	}
	if err := s.roles.Delete(ctx, id); err != nil {
		return wrapRoleErr(err, "failed to delete role")
	}

	rec := audit.NewRecord(ctx, audit.ActionRoleDeleted)
	rec.ResourceType = ResourceTypeRole
	rec.ResourceID = id.String()
	rec.Request = encode(role)
	s.auditor.Record(ctx, rec.Succeeded())
	s.metrics.IncrementRoleChange("delete")
	return nil
}

func (s *Service) ListRoles(ctx context.Context) ([]*models.Role, error) {
	roles, err := s.roles.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list roles")
	}
	return roles, nil
}

func (s *Service) GetRole(ctx context.Context, id uuid.UUID) (*models.Role, error) {
	role, err := s.roles.FindByID(ctx, id)
	if err != nil {
		return nil, wrapRoleErr(err, "failed to load role")
	}
	return role, nil
}

func (s *Service) GetRoleByName(ctx context.Context, name string) (*models.Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "role name is required")
	}
	role, err := s.roles.FindByName(ctx, name)
	if err != nil {
		return nil, wrapRoleErr(err, "failed to load role")
	}
	return role, nil
}

func wrapRoleErr(err error, msg string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "role not found")
	case errors.Is(err, sentinel.ErrDuplicate):
		return dErrors.New(dErrors.CodeConflict, "role name must be unique")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}

func invariantToValidation(err error) error {
	if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
		var de *dErrors.Error
		if errors.As(err, &de) {
			return dErrors.New(dErrors.CodeValidation, de.Message)
		}
	}
	return err
}

func encode(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
