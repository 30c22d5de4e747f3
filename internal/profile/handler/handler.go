package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"bankguard/internal/profile/models"
	"bankguard/internal/profile/service"
	dErrors "bankguard/pkg/domain-errors"
	"bankguard/pkg/platform/httputil"
	"bankguard/pkg/requestcontext"
)

// Service defines the profile operations exposed over HTTP.
type Service interface {
	Create(ctx context.Context, spec models.Spec) (*models.Profile, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	GetByCustomerID(ctx context.Context, customerID string) (*models.Profile, error)
	Update(ctx context.Context, id uuid.UUID, spec models.Spec) (*models.Profile, error)
	UpdatePreferences(ctx context.Context, customerID string, preferences json.RawMessage) (*models.Profile, error)
	UpdateBehavioralData(ctx context.Context, customerID string, data json.RawMessage) (*models.Profile, error)
	FindSimilar(ctx context.Context, customerID string, threshold float64, limit int) ([]service.Similar, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ExtendRetention(ctx context.Context, customerID string, years int) (*models.Profile, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the profile routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/", h.HandleCreate)
	r.Get("/{id}", h.HandleGet)
	r.Put("/{id}", h.HandleUpdate)
	r.Delete("/{id}", h.HandleDelete)
	r.Get("/customer/{customerId}", h.HandleGetByCustomer)
	r.Put("/customer/{customerId}/preferences", h.HandleUpdatePreferences)
	r.Put("/customer/{customerId}/behavioral", h.HandleUpdateBehavioral)
	r.Get("/customer/{customerId}/similar", h.HandleFindSimilar)
	r.Post("/customer/{customerId}/retention", h.HandleExtendRetention)
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[ProfileRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	profile, err := h.service.Create(ctx, req.Spec())
	if err != nil {
		h.fail(w, r, "create profile", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, FromProfile(profile))
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	profile, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get profile", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromProfile(profile))
}

func (h *Handler) HandleGetByCustomer(w http.ResponseWriter, r *http.Request) {
	profile, err := h.service.GetByCustomerID(r.Context(), chi.URLParam(r, "customerId"))
	if err != nil {
		h.fail(w, r, "get profile by customer", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromProfile(profile))
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ProfileRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	profile, err := h.service.Update(ctx, id, req.Spec())
	if err != nil {
		h.fail(w, r, "update profile", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromProfile(profile))
}

func (h *Handler) HandleUpdatePreferences(w http.ResponseWriter, r *http.Request) {
	h.updateSection(w, r, "update preferences", h.service.UpdatePreferences)
}

func (h *Handler) HandleUpdateBehavioral(w http.ResponseWriter, r *http.Request) {
	h.updateSection(w, r, "update behavioral data", h.service.UpdateBehavioralData)
}

func (h *Handler) updateSection(w http.ResponseWriter, r *http.Request, op string,
	update func(context.Context, string, json.RawMessage) (*models.Profile, error),
) {
	ctx := r.Context()
	body, ok := httputil.DecodeAndPrepare[json.RawMessage](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	profile, err := update(ctx, chi.URLParam(r, "customerId"), *body)
	if err != nil {
		h.fail(w, r, op, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromProfile(profile))
}

func (h *Handler) HandleFindSimilar(w http.ResponseWriter, r *http.Request) {
	threshold := service.DefaultSimilarThreshold
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid threshold"))
			return
		}
		threshold = v
	}
	limit := service.DefaultSimilarLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid limit"))
			return
		}
		limit = v
	}
	similar, err := h.service.FindSimilar(r.Context(), chi.URLParam(r, "customerId"), threshold, limit)
	if err != nil {
		h.fail(w, r, "find similar profiles", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromSimilar(similar))
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.fail(w, r, "delete profile", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleExtendRetention(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[RetentionRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	profile, err := h.service.ExtendRetention(ctx, chi.URLParam(r, "customerId"), req.Years)
	if err != nil {
		h.fail(w, r, "extend retention", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromProfile(profile))
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
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid profile id"))
		return uuid.Nil, false
	}
	return id, true
}
