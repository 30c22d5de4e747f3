package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"bankguard/internal/session/models"
	dErrors "bankguard/pkg/domain-errors"
	"bankguard/pkg/platform/httputil"
	"bankguard/pkg/requestcontext"
)

// Service defines the session operations exposed over HTTP.
type Service interface {
	Create(ctx context.Context, userID, sessionType string) (*models.Session, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Session, error)
	ListForUser(ctx context.Context, userID string) ([]*models.Session, error)
	ListForUserByType(ctx context.Context, userID, sessionType string) ([]*models.Session, error)
	SetData(ctx context.Context, id uuid.UUID, key string, value json.RawMessage) (*models.Session, error)
	GetData(ctx context.Context, id uuid.UUID, key string) (json.RawMessage, error)
	RemoveData(ctx context.Context, id uuid.UUID, key string) (*models.Session, error)
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteForUser(ctx context.Context, userID string) (int, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the session routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/", h.HandleCreate)
	r.Get("/user/{userId}", h.HandleListForUser)
	r.Get("/user/{userId}/type/{sessionType}", h.HandleListForUserByType)
	r.Delete("/user/{userId}", h.HandleDeleteForUser)
	r.Get("/{id}", h.HandleGet)
	r.Delete("/{id}", h.HandleDelete)
	r.Post("/{id}/data", h.HandleSetData)
	r.Get("/{id}/data/{key}", h.HandleGetData)
	r.Delete("/{id}/data/{key}", h.HandleRemoveData)
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[CreateSessionRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	session, err := h.service.Create(ctx, req.UserID, req.SessionType)
	if err != nil {
		h.fail(w, r, "create session", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, FromSession(session))
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	session, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get session", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromSession(session))
}

func (h *Handler) HandleListForUser(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.service.ListForUser(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		h.fail(w, r, "list sessions", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromSessions(sessions))
}

func (h *Handler) HandleListForUserByType(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.service.ListForUserByType(r.Context(), chi.URLParam(r, "userId"), chi.URLParam(r, "sessionType"))
	if err != nil {
		h.fail(w, r, "list sessions by type", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromSessions(sessions))
}

func (h *Handler) HandleSetData(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[SessionDataRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	session, err := h.service.SetData(ctx, id, req.Key, req.Value)
	if err != nil {
		h.fail(w, r, "set session data", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromSession(session))
}

func (h *Handler) HandleGetData(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	value, err := h.service.GetData(r.Context(), id, chi.URLParam(r, "key"))
	if err != nil {
		h.fail(w, r, "get session data", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, value)
}

func (h *Handler) HandleRemoveData(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	session, err := h.service.RemoveData(r.Context(), id, chi.URLParam(r, "key"))
	if err != nil {
		h.fail(w, r, "remove session data", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromSession(session))
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.fail(w, r, "delete session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleDeleteForUser(w http.ResponseWriter, r *http.Request) {
	if _, err := h.service.DeleteForUser(r.Context(), chi.URLParam(r, "userId")); err != nil {
		h.fail(w, r, "delete user sessions", err)
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
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid session id"))
		return uuid.Nil, false
	}
	return id, true
}
