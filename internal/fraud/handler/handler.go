package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"bankguard/internal/fraud/models"
	dErrors "bankguard/pkg/domain-errors"
	"bankguard/pkg/platform/httputil"
	"bankguard/pkg/requestcontext"
)

type Service interface {
	Process(ctx context.Context, txn *models.Transaction) (*models.Transaction, error)
	Recent(ctx context.Context, customerID string, days int) ([]*models.Transaction, error)
	Flagged(ctx context.Context) ([]*models.Transaction, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the fraud routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/process", h.HandleProcess)
	r.Get("/transactions/{customerId}", h.HandleRecent)
	r.Get("/flagged", h.HandleFlagged)
}

func (h *Handler) HandleProcess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[TransactionRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	txn, err := h.service.Process(ctx, req.Transaction())
	if err != nil {
		h.fail(w, r, "process transaction", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, txn)
}

func (h *Handler) HandleRecent(w http.ResponseWriter, r *http.Request) {
	days := 0
	if raw := r.URL.Query().Get("days"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid days"))
			return
		}
		days = v
	}
	txns, err := h.service.Recent(r.Context(), chi.URLParam(r, "customerId"), days)
	if err != nil {
		h.fail(w, r, "list transactions", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, txns)
}

func (h *Handler) HandleFlagged(w http.ResponseWriter, r *http.Request) {
	txns, err := h.service.Flagged(r.Context())
	if err != nil {
		h.fail(w, r, "list flagged transactions", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, txns)
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
