package httputil

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "bankguard/pkg/domain-errors"
)

func decodeError(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

func TestWriteError(t *testing.T) {
	t.Run("internal error hides its message", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeInternal, "db failed"))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		body := decodeError(t, w)
		assert.Equal(t, "internal_error", body["error"])
		assert.NotContains(t, body, "error_description")
	})

	t.Run("client errors carry their message", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeForbidden, "role may not read balances"))

		assert.Equal(t, http.StatusForbidden, w.Code)
		body := decodeError(t, w)
		assert.Equal(t, "forbidden", body["error"])
		assert.Equal(t, "role may not read balances", body["error_description"])
	})
}

type transferRequest struct {
	Account string `json:"account"`
	Amount  int    `json:"amount"`
}

func (r *transferRequest) Normalize() {
	r.Account = strings.ToUpper(strings.TrimSpace(r.Account))
}

func (r *transferRequest) Validate() error {
	if r.Account == "" {
		return dErrors.New(dErrors.CodeValidation, "account is required")
	}
	if r.Amount <= 0 {
		return dErrors.New(dErrors.CodeValidation, "amount must be positive")
	}
	return nil
}

type plainRequest struct {
	Note string `json:"note"`
}

func TestDecodeAndPrepare(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	decode := func(body string) (*transferRequest, bool, *httptest.ResponseRecorder) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/transfer", strings.NewReader(body))
		req, ok := DecodeAndPrepare[transferRequest](w, r, logger, context.Background(), "req-1")
		return req, ok, w
	}

	t.Run("normalizes before validating", func(t *testing.T) {
		req, ok, w := decode(`{"account":"  gb-01 ","amount":5}`)
		require.True(t, ok)
		assert.Equal(t, "GB-01", req.Account)
		assert.Equal(t, 5, req.Amount)
		assert.Zero(t, w.Body.Len(), "nothing is written on success")
	})

	t.Run("blank field fails validation after trimming", func(t *testing.T) {
		req, ok, w := decode(`{"account":"   ","amount":5}`)
		assert.False(t, ok)
		assert.Nil(t, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		body := decodeError(t, w)
		assert.Equal(t, string(dErrors.CodeValidation), body["error"])
		assert.Equal(t, "account is required", body["error_description"])
	})

	t.Run("malformed json", func(t *testing.T) {
		req, ok, w := decode(`{"account":`)
		assert.False(t, ok)
		assert.Nil(t, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		body := decodeError(t, w)
		assert.Equal(t, string(dErrors.CodeBadRequest), body["error"])
		assert.Equal(t, "invalid json payload", body["error_description"])
	})

	t.Run("types without hooks decode as is", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/note", strings.NewReader(`{"note":" hi "}`))
		req, ok := DecodeAndPrepare[plainRequest](w, r, logger, context.Background(), "req-2")
		require.True(t, ok)
		assert.Equal(t, " hi ", req.Note)
	})
}
