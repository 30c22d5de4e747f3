package handler

import (
	"time"

	"bankguard/internal/rbac/models"
)

type CheckPermissionResponse struct {
	HasPermission bool `json:"hasPermission"`
}

type RoleResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Permissions []string  `json:"permissions"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func FromRole(r *models.Role) *RoleResponse {
	return &RoleResponse{
		ID:          r.ID.String(),
		Name:        r.Name,
		Description: r.Description,
		Permissions: r.Permissions,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func FromRoles(roles []*models.Role) []*RoleResponse {
	out := make([]*RoleResponse, 0, len(roles))
	for _, r := range roles {
		out = append(out, FromRole(r))
	}
	return out
}
