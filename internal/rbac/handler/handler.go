package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"bankguard/internal/rbac/models"
	dErrors "bankguard/pkg/domain-errors"
	"bankguard/pkg/platform/httputil"
	"bankguard/pkg/requestcontext"
)

// Service defines the RBAC operations exposed over HTTP.
type Service interface {
	AuditedCheck(ctx context.Context, userID, roleName, permission string) bool
	Permissions(ctx context.Context, roleName string) ([]string, error)
	CreateRole(ctx context.Context, name, description string, permissions []string) (*models.Role, error)
	UpdateRole(ctx context.Context, id uuid.UUID, name, description string, permissions []string) (*models.Role, error)
	DeleteRole(ctx context.Context, id uuid.UUID) error
	ListRoles(ctx context.Context) ([]*models.Role, error)
	GetRole(ctx context.Context, id uuid.UUID) (*models.Role, error)
	GetRoleByName(ctx context.Context, name string) (*models.Role, error)
}

// Handler wires RBAC endpoints to the service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the RBAC routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/check-permission", h.HandleCheckPermission)
	r.Get("/roles/{roleName}/permissions", h.HandlePermissions)
	r.Post("/roles", h.HandleCreateRole)
	r.Get("/roles", h.HandleListRoles)
	r.Get("/roles/id/{id}", h.HandleGetRole)
	r.Get("/roles/name/{name}", h.HandleGetRoleByName)
	r.Put("/roles/{id}", h.HandleUpdateRole)
	r.Delete("/roles/{id}", h.HandleDeleteRole)
}

func (h *Handler) HandleCheckPermission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[CheckPermissionRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	granted := h.service.AuditedCheck(ctx, req.UserID, req.RoleName, req.Permission)
	httputil.WriteJSON(w, http.StatusOK, CheckPermissionResponse{HasPermission: granted})
}

func (h *Handler) HandlePermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.Permissions(r.Context(), chi.URLParam(r, "roleName"))
	if err != nil {
		h.fail(w, r, "get permissions", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, perms)
}

func (h *Handler) HandleCreateRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[RoleRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	role, err := h.service.CreateRole(ctx, req.Name, req.Description, req.Permissions)
	if err != nil {
		h.fail(w, r, "create role", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, FromRole(role))
}

func (h *Handler) HandleListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.fail(w, r, "list roles", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromRoles(roles))
}

func (h *Handler) HandleGetRole(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	role, err := h.service.GetRole(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get role", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromRole(role))
}

func (h *Handler) HandleGetRoleByName(w http.ResponseWriter, r *http.Request) {
	role, err := h.service.GetRoleByName(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.fail(w, r, "get role by name", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromRole(role))
}

func (h *Handler) HandleUpdateRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[RoleRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	role, err := h.service.UpdateRole(ctx, id, req.Name, req.Description, req.Permissions)
	if err != nil {
		h.fail(w, r, "update role", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromRole(role))
}

func (h *Handler) HandleDeleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteRole(r.Context(), id); err != nil {
		h.fail(w, r, "delete role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	ctx := r.Context()
	log := h.logger.WarnContext
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		log = h.logger.ErrorContext
	}
	log(ctx, op+" failed",
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
	httputil.WriteError(w, err)
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid role id"))
		return uuid.Nil, false
	}
	return id, true
}
