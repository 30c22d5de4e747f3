package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"bankguard/internal/compliance/models"
	dErrors "bankguard/pkg/domain-errors"
	"bankguard/pkg/platform/httputil"
	"bankguard/pkg/requestcontext"
)

// Service defines the compliance operations exposed over HTTP.
type Service interface {
	Validate(ctx context.Context, text string) (*models.Verdict, error)
	ActiveRules(ctx context.Context) ([]*models.Rule, error)
	RulesByCategory(ctx context.Context, category string) ([]*models.Rule, error)
	CreateRule(ctx context.Context, spec models.RuleSpec) (*models.Rule, error)
	UpdateRule(ctx context.Context, id uuid.UUID, spec models.RuleSpec) (*models.Rule, error)
	DeleteRule(ctx context.Context, id uuid.UUID) error
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the compliance routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/validate", h.HandleValidate)
	r.Get("/rules/active", h.HandleActiveRules)
	r.Get("/rules/category/{category}", h.HandleRulesByCategory)
	r.Post("/rules", h.HandleCreateRule)
	r.Put("/rules/{id}", h.HandleUpdateRule)
	r.Delete("/rules/{id}", h.HandleDeleteRule)
}

func (h *Handler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[ValidateRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	verdict, err := h.service.Validate(ctx, req.UserInput)
	if err != nil {
		h.fail(w, r, "validate input", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromVerdict(verdict))
}

func (h *Handler) HandleActiveRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.service.ActiveRules(r.Context())
	if err != nil {
		h.fail(w, r, "list active rules", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromRules(rules))
}

func (h *Handler) HandleRulesByCategory(w http.ResponseWriter, r *http.Request) {
	rules, err := h.service.RulesByCategory(r.Context(), chi.URLParam(r, "category"))
	if err != nil {
		h.fail(w, r, "list rules by category", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromRules(rules))
}

func (h *Handler) HandleCreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[RuleRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	rule, err := h.service.CreateRule(ctx, req.Spec())
	if err != nil {
		h.fail(w, r, "create rule", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, FromRule(rule))
}

func (h *Handler) HandleUpdateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[RuleRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	rule, err := h.service.UpdateRule(ctx, id, req.Spec())
	if err != nil {
		h.fail(w, r, "update rule", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromRule(rule))
}

func (h *Handler) HandleDeleteRule(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteRule(r.Context(), id); err != nil {
		h.fail(w, r, "delete rule", err)
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
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid rule id"))
		return uuid.Nil, false
	}
	return id, true
}
