package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"bankguard/internal/pipeline"
	"bankguard/pkg/platform/httputil"
	"bankguard/pkg/requestcontext"
)

type Processor interface {
	Process(ctx context.Context, in pipeline.Input) *pipeline.Output
}

// QueryRequest is the body of POST /query. When the request carries an
// authenticated caller, its identity and role replace userId and userRole.
type QueryRequest struct {
	UserID     string `json:"userId"`
	CustomerID string `json:"customerId"`
	UserRole   string `json:"userRole"`
	Query      string `json:"query"`
	SessionID  string `json:"sessionId"`
	IPAddress  string `json:"ipAddress"`
}

func (r *QueryRequest) Normalize() {
	r.UserID = strings.TrimSpace(r.UserID)
	r.CustomerID = strings.TrimSpace(r.CustomerID)
	r.UserRole = strings.TrimSpace(r.UserRole)
	r.Query = strings.TrimSpace(r.Query)
	r.SessionID = strings.TrimSpace(r.SessionID)
	r.IPAddress = strings.TrimSpace(r.IPAddress)
}

type Handler struct {
	processor Processor
	logger    *slog.Logger
}

func New(processor Processor, logger *slog.Logger) *Handler {
	return &Handler{processor: processor, logger: logger}
}

// Register mounts POST /query.
func (h *Handler) Register(r chi.Router) {
	r.Post("/query", h.HandleQuery)
}

// HandleQuery answers 200 for every decodable body. Missing identity or
// query fields are left to the pipeline, which denies and audits them.
func (h *Handler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[QueryRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	if userID := requestcontext.UserID(ctx); userID != "" {
		req.UserID = userID
		req.UserRole = requestcontext.UserRole(ctx)
	}
	if req.IPAddress == "" {
		req.IPAddress = requestcontext.ClientIP(ctx)
	}

	out := h.processor.Process(ctx, pipeline.Input{
		UserID:     req.UserID,
		CustomerID: req.CustomerID,
		UserRole:   req.UserRole,
		Query:      req.Query,
		SessionID:  req.SessionID,
		IPAddress:  req.IPAddress,
	})
	httputil.WriteJSON(w, http.StatusOK, out)
}
