package audit

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"bankguard/pkg/requestcontext"
)

// Recorder is the write side of the audit trail. Implementations must not
// block the caller or report errors.
type Recorder interface {
	Record(ctx context.Context, rec Record)
}

// NewRecord starts a record for action with the caller metadata carried by
// ctx: actor, source address, user agent summary, request id and trace id.
func NewRecord(ctx context.Context, action Action) Record {
	rec := Record{
		Actor:         requestcontext.UserID(ctx),
		Action:        action,
		SourceAddress: requestcontext.ClientIP(ctx),
		RequestID:     requestcontext.RequestID(ctx),
		TraceID:       TraceID(ctx),
	}
	if ua := requestcontext.UserAgent(ctx); ua != "" {
		rec.UserAgent = DescribeUserAgent(ua)
	}
	return rec
}

// TraceID returns the active span's trace id, or a fresh UUID when ctx
// carries no valid span.
func TraceID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return uuid.NewString()
}

// Failed marks rec unsuccessful with msg.
func (r Record) Failed(msg string) Record {
	r.Success = false
	r.ErrorMessage = msg
	return r
}

// Succeeded marks rec successful.
func (r Record) Succeeded() Record {
	r.Success = true
	r.ErrorMessage = ""
	return r
}

// Discard drops every record. Used when auditing is not wired.
type Discard struct{}

func (Discard) Record(context.Context, Record) {}
