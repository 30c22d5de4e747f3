package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	dErrors "bankguard/pkg/domain-errors"
	audit "bankguard/pkg/platform/audit"
	"bankguard/pkg/platform/httputil"
	"bankguard/pkg/requestcontext"
)

// Service defines the audit query operations.
type Service interface {
	ByActor(ctx context.Context, actor string) ([]audit.Record, error)
	RecentForActor(ctx context.Context, actor string, days int) ([]audit.Record, error)
	RecentFailures(ctx context.Context, days int) ([]audit.Record, error)
	ByResource(ctx context.Context, resourceType, resourceID string) ([]audit.Record, error)
	ByTimeRange(ctx context.Context, from, to time.Time) ([]audit.Record, error)
	BySource(ctx context.Context, address string) ([]audit.Record, error)
}

// Handler serves read-only audit views.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the audit routes. Callers wrap r with auth middleware.
func (h *Handler) Register(r chi.Router) {
	r.Get("/user/{userId}", h.HandleByActor)
	r.Get("/user/{userId}/recent", h.HandleRecentForActor)
	r.Get("/failed", h.HandleRecentFailures)
	r.Get("/resource/{type}/{id}", h.HandleByResource)
	r.Get("/timerange", h.HandleByTimeRange)
	r.Get("/ip/{ip}", h.HandleBySource)
}

func (h *Handler) HandleByActor(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.ByActor(r.Context(), chi.URLParam(r, "userId"))
	h.respond(w, r, "by_actor", records, err)
}

func (h *Handler) HandleRecentForActor(w http.ResponseWriter, r *http.Request) {
	days, err := daysParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	records, err := h.service.RecentForActor(r.Context(), chi.URLParam(r, "userId"), days)
	h.respond(w, r, "recent_for_actor", records, err)
}

func (h *Handler) HandleRecentFailures(w http.ResponseWriter, r *http.Request) {
	days, err := daysParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	records, err := h.service.RecentFailures(r.Context(), days)
	h.respond(w, r, "recent_failures", records, err)
}

func (h *Handler) HandleByResource(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.ByResource(r.Context(), chi.URLParam(r, "type"), chi.URLParam(r, "id"))
	h.respond(w, r, "by_resource", records, err)
}

// HandleByTimeRange expects RFC3339 start and end query parameters.
func (h *Handler) HandleByTimeRange(w http.ResponseWriter, r *http.Request) {
	from, err := time.Parse(time.RFC3339, r.URL.Query().Get("start"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "start must be an RFC3339 timestamp"))
		return
	}
	to, err := time.Parse(time.RFC3339, r.URL.Query().Get("end"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "end must be an RFC3339 timestamp"))
		return
	}
	records, err := h.service.ByTimeRange(r.Context(), from, to)
	h.respond(w, r, "by_time_range", records, err)
}

func (h *Handler) HandleBySource(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.BySource(r.Context(), chi.URLParam(r, "ip"))
	h.respond(w, r, "by_source", records, err)
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, view string, records []audit.Record, err error) {
	ctx := r.Context()
	if err != nil {
		h.logger.ErrorContext(ctx, "audit query failed",
			"request_id", requestcontext.RequestID(ctx),
			"view", view,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromRecords(records))
}

func daysParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("days")
	if raw == "" {
		return 0, nil
	}
	days, err := strconv.Atoi(raw)
	if err != nil || days <= 0 {
		return 0, dErrors.New(dErrors.CodeBadRequest, "days must be a positive integer")
	}
	return days, nil
}
