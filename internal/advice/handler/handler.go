package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"bankguard/internal/advice/service"
	dErrors "bankguard/pkg/domain-errors"
	"bankguard/pkg/platform/httputil"
	"bankguard/pkg/requestcontext"
)

type Service interface {
	Advise(ctx context.Context, customerID, query string, details map[string]any) (*service.Advice, error)
}

type AdviceRequest struct {
	Query           string         `json:"query"`
	CustomerProfile map[string]any `json:"customerProfile"`
}

func (r *AdviceRequest) Normalize() {
	r.Query = strings.TrimSpace(r.Query)
}

func (r *AdviceRequest) Validate() error {
	if r.Query == "" {
		return dErrors.New(dErrors.CodeValidation, "query is required")
	}
	return nil
}

type AdviceResponse struct {
	Advice   string `json:"advice"`
	Degraded bool   `json:"degraded,omitempty"`
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts POST /{customerId}.
func (h *Handler) Register(r chi.Router) {
	r.Post("/{customerId}", h.HandleAdvise)
}

func (h *Handler) HandleAdvise(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[AdviceRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	customerID := chi.URLParam(r, "customerId")
	h.logger.InfoContext(ctx, "generating financial advice",
		"request_id", requestID,
		"customer_id", customerID,
	)
	advice, err := h.service.Advise(ctx, customerID, req.Query, req.CustomerProfile)
	if err != nil {
		log := h.logger.WarnContext
		if dErrors.CodeOf(err) == dErrors.CodeInternal {
			log = h.logger.ErrorContext
		}
		log(ctx, "financial advice failed", "request_id", requestID, "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, AdviceResponse{Advice: advice.Text, Degraded: advice.Degraded})
}
