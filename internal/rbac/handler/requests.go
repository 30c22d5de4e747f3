package handler

import (
	"strings"

	dErrors "bankguard/pkg/domain-errors"
)

// CheckPermissionRequest is the body of POST /check-permission.
type CheckPermissionRequest struct {
	UserID     string `json:"userId"`
	RoleName   string `json:"roleName"`
	Permission string `json:"permission"`
}

func (r *CheckPermissionRequest) Normalize() {
	r.UserID = strings.TrimSpace(r.UserID)
	r.RoleName = strings.TrimSpace(r.RoleName)
	r.Permission = strings.TrimSpace(r.Permission)
}

func (r *CheckPermissionRequest) Validate() error {
	if r.UserID == "" || r.RoleName == "" || r.Permission == "" {
		return dErrors.New(dErrors.CodeValidation, "userId, roleName and permission are required")
	}
	return nil
}

// RoleRequest is the body of role create and update.
type RoleRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
}

func (r *RoleRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Description = strings.TrimSpace(r.Description)
}

func (r *RoleRequest) Validate() error {
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	return nil
}
