// Package httptransport mounts the feature handlers on one chi router with
// the shared middleware chain.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"bankguard/pkg/platform/httputil"
	"bankguard/pkg/platform/middleware/auth"
	"bankguard/pkg/platform/middleware/metadata"
	"bankguard/pkg/platform/middleware/request"
	"bankguard/pkg/platform/middleware/requesttime"
)

// Permissions required on management routes when bearer auth is enabled.
const (
	PermissionManageRoles = "MANAGE_ROLES"
	PermissionViewAudit   = "VIEW_AUDIT"
)

// Registrar is implemented by every feature handler.
type Registrar interface {
	Register(r chi.Router)
}

// RateLimiter throttles a class of routes. Classes are counted separately.
type RateLimiter interface {
	RateLimit(class string) func(http.Handler) http.Handler
}

// Handlers lists the feature handlers by mount point. Nil entries are skipped.
type Handlers struct {
	RBAC       Registrar
	Compliance Registrar
	Sessions   Registrar
	Profiles   Registrar
	Fraud      Registrar
	Advice     Registrar
	Audit      Registrar
	Pipeline   Registrar
}

// Config carries the cross-cutting pieces of the router.
type Config struct {
	Logger *slog.Logger
	// Tokens enables bearer auth on management routes. Nil leaves them open.
	Tokens auth.JWTValidator
	// Permissions authorizes authenticated callers on management routes.
	Permissions auth.PermissionChecker
	// Metrics is served at /metrics when set.
	Metrics http.Handler
	// RateLimit guards the model-backed routes when set.
	RateLimit RateLimiter
	// Checks are run by /ready, keyed by backend name.
	Checks map[string]func(context.Context) error
}

const readyTimeout = 2 * time.Second

// NewRouter wires all public endpoints.
func NewRouter(h Handlers, cfg Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/ready", readyHandler(cfg.Checks, logger))
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	throttled := func(class string) chi.Router {
		if cfg.RateLimit == nil {
			return r
		}
		return r.With(cfg.RateLimit.RateLimit(class))
	}
	mount(throttled("query"), "/api/banking-ai", h.Pipeline)
	mount(throttled("fraud"), "/api/fraud", h.Fraud)
	mount(throttled("advice"), "/api/financial-advice", h.Advice)
	mount(r, "/api/compliance", h.Compliance)
	mount(r, "/api/memory/session", h.Sessions)
	mount(r, "/api/memory/profile", h.Profiles)

	managed := func(permission string) chi.Router {
		if cfg.Tokens == nil {
			return r
		}
		return r.With(
			auth.RequireAuth(cfg.Tokens, logger),
			auth.RequirePermission(cfg.Permissions, permission, logger),
		)
	}
	mount(managed(PermissionManageRoles), "/api/rbac", h.RBAC)
	mount(managed(PermissionViewAudit), "/api/audit", h.Audit)
	return r
}

// readyHandler answers 503 when any configured backend fails its check.
func readyHandler(checks map[string]func(context.Context) error, logger *slog.Logger) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		status := http.StatusOK
		backends := make(map[string]string, len(names))
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				logger.WarnContext(ctx, "readiness check failed", "backend", name, "error", err)
				backends[name] = "unavailable"
				status = http.StatusServiceUnavailable
				continue
			}
			backends[name] = "ok"
		}
		overall := "ready"
		if status != http.StatusOK {
			overall = "not_ready"
		}
		httputil.WriteJSON(w, status, map[string]any{"status": overall, "backends": backends})
	}
}

func mount(r chi.Router, prefix string, h Registrar) {
	if h == nil {
		return
	}
	r.Route(prefix, func(sub chi.Router) {
		h.Register(sub)
	})
}
