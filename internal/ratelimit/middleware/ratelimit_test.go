package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bankguard/internal/ratelimit/models"
	"bankguard/internal/ratelimit/store/bucket"
	"bankguard/pkg/platform/middleware/metadata"
)

type failingStore struct{}

func (failingStore) Allow(context.Context, string, int, time.Duration) (*models.Result, error) {
	return nil, errors.New("redis down")
}

func newHandler(mw *Middleware) http.Handler {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return metadata.ClientMetadata(mw.RateLimit("query")(ok))
}

func send(h http.Handler, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/banking-ai/query", nil)
	req.Header.Set("X-Forwarded-For", ip)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRateLimit(t *testing.T) {
	t.Run("allows within limit and sets headers", func(t *testing.T) {
		h := newHandler(New(bucket.NewInMemoryBucketStore(), 2, time.Minute, discard()))

		rec := send(h, "10.0.0.1")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
	})

	t.Run("rejects over limit with 429", func(t *testing.T) {
		h := newHandler(New(bucket.NewInMemoryBucketStore(), 2, time.Minute, discard()))
		send(h, "10.0.0.2")
		send(h, "10.0.0.2")

		rec := send(h, "10.0.0.2")
		require.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("Retry-After"))

		var body models.ExceededResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, "rate_limit_exceeded", body.Error)
		assert.Positive(t, body.RetryAfter)
	})

	t.Run("clients are counted separately", func(t *testing.T) {
		h := newHandler(New(bucket.NewInMemoryBucketStore(), 1, time.Minute, discard()))
		assert.Equal(t, http.StatusOK, send(h, "10.0.0.3").Code)
		assert.Equal(t, http.StatusTooManyRequests, send(h, "10.0.0.3").Code)
		assert.Equal(t, http.StatusOK, send(h, "10.0.0.4").Code)
	})

	t.Run("store failure fails open", func(t *testing.T) {
		h := newHandler(New(failingStore{}, 1, time.Minute, discard()))
		assert.Equal(t, http.StatusOK, send(h, "10.0.0.5").Code)
		assert.Equal(t, http.StatusOK, send(h, "10.0.0.5").Code)
	})

	t.Run("disabled lets everything through", func(t *testing.T) {
		h := newHandler(New(bucket.NewInMemoryBucketStore(), 1, time.Minute, discard(), WithDisabled(true)))
		for range 3 {
			assert.Equal(t, http.StatusOK, send(h, "10.0.0.6").Code)
		}
	})

	t.Run("zero limit disables", func(t *testing.T) {
		h := newHandler(New(bucket.NewInMemoryBucketStore(), 0, time.Minute, discard()))
		assert.Equal(t, http.StatusOK, send(h, "10.0.0.7").Code)
	})
}
