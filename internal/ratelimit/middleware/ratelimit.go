// Package middleware throttles requests per client address before they reach
// routes that call the language model.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"bankguard/internal/ratelimit/metrics"
	"bankguard/internal/ratelimit/models"
	"bankguard/pkg/platform/httputil"
	"bankguard/pkg/requestcontext"
)

// BucketStore is satisfied by the in-memory and Redis bucket stores.
type BucketStore interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.Result, error)
}

type Middleware struct {
	store    BucketStore
	limit    int
	window   time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
	disabled bool
}

type Option func(*Middleware)

// WithDisabled lets every request through.
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(mw *Middleware) {
		mw.metrics = m
	}
}

func New(store BucketStore, limit int, window time.Duration, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{
		store:  store,
		limit:  limit,
		window: window,
		logger: logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled || m.limit <= 0 {
		m.disabled = true
		logger.Info("rate limiting disabled")
	}
	return m
}

// RateLimit counts requests per client IP within class. Store errors fail
// open so an unavailable Redis never takes the API down.
func (m *Middleware) RateLimit(class string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.disabled {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			ip := requestcontext.ClientIP(ctx)
			result, err := m.store.Allow(ctx, models.Key(class, ip), m.limit, m.window)
			if err != nil {
				m.metrics.IncStoreFailure()
				m.logger.ErrorContext(ctx, "failed to check rate limit",
					"error", err,
					"class", class,
					"request_id", requestcontext.RequestID(ctx),
				)
				next.ServeHTTP(w, r)
				return
			}

			addRateLimitHeaders(w, result)
			if !result.Allowed {
				m.metrics.IncRejected(class)
				m.logger.WarnContext(ctx, "rate limit exceeded",
					"class", class,
					"client_ip", ip,
					"request_id", requestcontext.RequestID(ctx),
				)
				writeRateLimitExceeded(w, result)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func addRateLimitHeaders(w http.ResponseWriter, result *models.Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

func writeRateLimitExceeded(w http.ResponseWriter, result *models.Result) {
	w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
	httputil.WriteJSON(w, http.StatusTooManyRequests, &models.ExceededResponse{
		Error:      "rate_limit_exceeded",
		Message:    "Too many requests from this address. Please try again later.",
		RetryAfter: result.RetryAfter,
	})
}
