// Package reasoning is the boundary to the external inference model. Callers
// build prompts and decode structured answers; transports live behind Model.
package reasoning

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrNotConfigured is returned by models without credentials. Callers treat it
// like any other upstream failure and fall back.
var ErrNotConfigured = errors.New("reasoning model not configured")

// ErrMalformed marks a response that does not match the requested schema.
var ErrMalformed = errors.New("malformed model output")

// Request is a single-turn completion.
type Request struct {
	System    string
	Prompt    string
	MaxTokens int64
}

// Model completes prompts. Implementations must honour ctx cancellation.
type Model interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// ModelFunc adapts a function to Model.
type ModelFunc func(ctx context.Context, req Request) (string, error)

func (f ModelFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Unconfigured always fails with ErrNotConfigured.
type Unconfigured struct{}

func (Unconfigured) Complete(context.Context, Request) (string, error) {
	return "", ErrNotConfigured
}

// DecodeJSON strictly decodes a model answer into v: exactly one JSON object,
// optionally wrapped in a single markdown code fence, with no unknown fields
// and nothing after it. Failures wrap ErrMalformed.
func DecodeJSON(text string, v any) error {
	body := stripFence(strings.TrimSpace(text))
	if !strings.HasPrefix(body, "{") {
		return fmt.Errorf("%w: expected a JSON object", ErrMalformed)
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: trailing content after object", ErrMalformed)
	}
	return nil
}

func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") || len(s) < 6 {
		return s
	}
	inner := strings.TrimSuffix(strings.TrimPrefix(s, "```"), "```")
	// Drop the info string ("json") on the opening line.
	if nl := strings.IndexByte(inner, '\n'); nl >= 0 {
		inner = inner[nl+1:]
	}
	return strings.TrimSpace(inner)
}
