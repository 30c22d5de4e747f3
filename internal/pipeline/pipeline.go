// Package pipeline runs a user query through the permission gate, the
// compliance gate, session resolution and the decision engine, and writes
// exactly one audit record per invocation whatever branch ends it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	compliancemodels "bankguard/internal/compliance/models"
	decisionmodels "bankguard/internal/decision/models"
	memorymodels "bankguard/internal/memory/models"
	pipelinemetrics "bankguard/internal/pipeline/metrics"
	profilemodels "bankguard/internal/profile/models"
	sessionmodels "bankguard/internal/session/models"
	dErrors "bankguard/pkg/domain-errors"
	"bankguard/pkg/platform/audit"
	"bankguard/pkg/requestcontext"
)

const (
	PermissionAIQuery = "AI_QUERY"
	ResourceTypeUser  = "USER"
)

// Session data keys written after a decision.
const (
	KeyLastQuery         = "last_query"
	KeyQueryTimestamp    = "query_timestamp"
	KeyLastResponse      = "last_response"
	KeyResponseTimestamp = "response_timestamp"
)

// User-facing messages. Internal detail never reaches the caller.
const (
	MessageDenied       = "You do not have permission to use this feature."
	MessageViolation    = "Your query violates our compliance policies: "
	MessageError        = "An error occurred while processing your query. Please try again later."
	MessageUnavailable  = "I'm unable to answer your question right now. Please try again later or contact your branch."
	errInsufficientPerm = "Insufficient permissions"
)

const assistantInstructions = `You are a banking assistant answering questions from bank staff and customers.
Answer accurately and concisely. Never reveal data about customers other than the one in the subject.
If the question needs an action you cannot perform, explain which team or channel can help.`

var tracer = otel.Tracer("bankguard/pipeline")

// Input is one query invocation.
type Input struct {
	UserID     string
	CustomerID string
	UserRole   string
	Query      string
	SessionID  string
	IPAddress  string
}

// Output is safe to return to the caller as is.
type Output struct {
	Success   bool   `json:"success"`
	Response  string `json:"response"`
	SessionID string `json:"sessionId,omitempty"`
}

type state int

const (
	stateStart state = iota
	statePermission
	stateCompliance
	stateSessionResolve
	stateDecision
	stateDenied
	stateViolation
	stateDone
	stateError
)

var stateNames = map[state]string{
	stateStart:          "START",
	statePermission:     "PERMISSION",
	stateCompliance:     "COMPLIANCE",
	stateSessionResolve: "SESSION_RESOLVE",
	stateDecision:       "DECISION",
	stateDenied:         "DENIED",
	stateViolation:      "VIOLATION",
	stateDone:           "DONE",
	stateError:          "ERROR",
}

func (s state) String() string { return stateNames[s] }

func (s state) terminal() bool {
	return s == stateDenied || s == stateViolation || s == stateDone || s == stateError
}

// run is the mutable state of one invocation.
type run struct {
	in      Input
	state   state
	verdict *compliancemodels.Verdict
	session *sessionmodels.Session
	answer  *decisionmodels.Text
	err     error
	audited bool
}

type Pipeline struct {
	permissions PermissionGate
	compliance  ComplianceGate
	sessions    Sessions
	decider     Decider
	profiles    Profiles
	logger      *slog.Logger
	auditor     audit.Recorder
	metrics     *pipelinemetrics.Metrics
}

type Option func(*Pipeline)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

func WithAuditPublisher(publisher audit.Recorder) Option {
	return func(p *Pipeline) {
		p.auditor = publisher
	}
}

func WithMetrics(m *pipelinemetrics.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithProfiles enables the customer profile as decision subject.
func WithProfiles(profiles Profiles) Option {
	return func(p *Pipeline) {
		p.profiles = profiles
	}
}

func New(permissions PermissionGate, compliance ComplianceGate, sessions Sessions, decider Decider, opts ...Option) *Pipeline {
	p := &Pipeline{
		permissions: permissions,
		compliance:  compliance,
		sessions:    sessions,
		decider:     decider,
		logger:      slog.Default(),
		auditor:     audit.Discard{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process never returns an error: every failure ends in the ERROR branch
// with a generic message. Panics raised by any step are recovered there too.
func (p *Pipeline) Process(ctx context.Context, in Input) (out *Output) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "pipeline.Process", trace.WithAttributes(
		attribute.String("user.id", in.UserID),
		attribute.String("user.role", in.UserRole),
	))
	defer span.End()

	r := &run{in: in, state: stateStart}
	defer func() {
		if rec := recover(); rec != nil {
			r.err = fmt.Errorf("panic in %s: %v", r.state, rec)
			r.state = stateError
			out = p.finish(ctx, span, r)
		}
		p.metrics.ObserveOutcome(strings.ToLower(r.state.String()), time.Since(start))
	}()

	p.logger.InfoContext(ctx, "processing user query",
		"trace_id", span.SpanContext().TraceID().String(),
		"user_id", in.UserID,
		"role", in.UserRole,
	)
	for !r.state.terminal() {
		r.state = p.step(ctx, r)
	}
	return p.finish(ctx, span, r)
}

func (p *Pipeline) step(ctx context.Context, r *run) state {
	switch r.state {
	case stateStart:
		return statePermission
	case statePermission:
		return p.checkPermission(ctx, r)
	case stateCompliance:
		return p.checkCompliance(ctx, r)
	case stateSessionResolve:
		return p.resolveSession(ctx, r)
	case stateDecision:
		return p.decide(ctx, r)
	}
	r.err = fmt.Errorf("no transition from %s", r.state)
	return stateError
}

func (p *Pipeline) checkPermission(ctx context.Context, r *run) state {
	ctx, span := tracer.Start(ctx, "pipeline.permission")
	defer span.End()
	if !p.permissions.Check(ctx, r.in.UserID, r.in.UserRole, PermissionAIQuery) {
		p.logger.WarnContext(ctx, "permission denied",
			"user_id", r.in.UserID,
			"role", r.in.UserRole,
		)
		return stateDenied
	}
	return stateCompliance
}

func (p *Pipeline) checkCompliance(ctx context.Context, r *run) state {
	ctx, span := tracer.Start(ctx, "pipeline.compliance")
	defer span.End()
	verdict, err := p.compliance.Validate(ctx, r.in.Query)
	if err != nil {
		r.err = fmt.Errorf("compliance validation: %w", err)
		return stateError
	}
	r.verdict = verdict
	span.SetAttributes(attribute.Bool("compliance.compliant", verdict.Compliant))
	if !verdict.Compliant {
		p.logger.WarnContext(ctx, "compliance violation detected",
			"user_id", r.in.UserID,
			"violations", verdict.Violations,
		)
		return stateViolation
	}
	return stateSessionResolve
}

// resolveSession never fails the invocation. Without a session the answer
// is still produced, it is just not remembered.
func (p *Pipeline) resolveSession(ctx context.Context, r *run) state {
	ctx, span := tracer.Start(ctx, "pipeline.session")
	defer span.End()
	session, created, err := p.sessions.Resolve(ctx, r.in.SessionID, r.in.UserID, sessionmodels.TypeConversation)
	if err != nil {
		p.logger.WarnContext(ctx, "session resolution failed, continuing without session",
			"user_id", r.in.UserID,
			"error", err,
		)
		return stateDecision
	}
	if created {
		p.metrics.IncrementSessionsCreated()
	}
	r.session = session
	span.SetAttributes(attribute.String("session.id", session.ID.String()), attribute.Bool("session.created", created))
	p.remember(ctx, r, map[string]any{
		KeyLastQuery:      r.in.Query,
		KeyQueryTimestamp: requestcontext.Now(ctx).UnixMilli(),
	})
	return stateDecision
}

func (p *Pipeline) decide(ctx context.Context, r *run) state {
	ctx, span := tracer.Start(ctx, "pipeline.decision")
	defer span.End()

	req := decisionmodels.Request{
		Instructions: assistantInstructions,
		Query:        r.in.Query,
	}
	if profile := p.customerProfile(ctx, r.in.CustomerID); profile != nil {
		req.Subject = profile
		req.Retrievals = []decisionmodels.Retrieval{{
			Label: "Recent transactions of this customer",
			Kind:  memorymodels.KindTransaction,
			Owner: profile.CustomerID,
		}}
	}
	answer, err := p.decider.Generate(ctx, req, MessageUnavailable)
	if err != nil {
		r.err = fmt.Errorf("decision: %w", err)
		return stateError
	}
	r.answer = answer
	span.SetAttributes(attribute.Bool("decision.degraded", answer.Degraded))
	p.remember(ctx, r, map[string]any{
		KeyLastResponse:      answer.Text,
		KeyResponseTimestamp: requestcontext.Now(ctx).UnixMilli(),
	})
	return stateDone
}

func (p *Pipeline) customerProfile(ctx context.Context, customerID string) *profilemodels.Profile {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" || p.profiles == nil {
		return nil
	}
	profile, err := p.profiles.GetByCustomerID(ctx, customerID)
	if err != nil {
		if !dErrors.Is(err, dErrors.CodeNotFound) {
			p.logger.WarnContext(ctx, "customer profile lookup failed", "customer_id", customerID, "error", err)
		}
		return nil
	}
	return profile
}

// remember writes session data best effort.
func (p *Pipeline) remember(ctx context.Context, r *run, values map[string]any) {
	if r.session == nil {
		return
	}
	if err := p.sessions.SetValues(ctx, r.session.ID, values); err != nil {
		p.logger.WarnContext(ctx, "failed to update session data",
			"session_id", r.session.ID,
			"error", err,
		)
	}
}

// finish writes the single audit record for a terminal state and builds the
// caller's result. It is a no-op for the audit trail when already called.
func (p *Pipeline) finish(ctx context.Context, span trace.Span, r *run) *Output {
	out := &Output{}
	rec := audit.NewRecord(ctx, "")
	rec.Actor = r.in.UserID
	rec.ResourceType = ResourceTypeUser
	rec.ResourceID = r.in.UserID
	rec.Request = r.in.Query
	if r.in.IPAddress != "" {
		rec.SourceAddress = r.in.IPAddress
	}

	switch r.state {
	case stateDenied:
		rec.Action = audit.ActionAIQueryPermissionDenied
		rec.Response = "Permission denied"
		rec = rec.Failed(errInsufficientPerm)
		out.Response = MessageDenied
	case stateViolation:
		rec.Action = audit.ActionAIQueryComplianceViolation
		rec.Response = r.verdict.Explanation
		rec = rec.Failed("Compliance violation: " + strings.Join(r.verdict.Violations, ", "))
		out.Response = MessageViolation + r.verdict.Explanation
	case stateDone:
		rec.Action = audit.ActionAIQuerySuccess
		rec.Response = r.answer.Text
		rec = rec.Succeeded()
		out.Success = true
		out.Response = r.answer.Text
		if r.session != nil {
			out.SessionID = r.session.ID.String()
		}
	default:
		if r.err == nil {
			r.err = errors.New("pipeline ended without a result")
		}
		rec.Action = audit.ActionAIQueryError
		rec = rec.Failed(r.err.Error())
		out.Response = MessageError
		span.RecordError(r.err)
		span.SetStatus(codes.Error, "pipeline error")
		p.logger.ErrorContext(ctx, "error processing user query",
			"user_id", r.in.UserID,
			"error", r.err,
		)
	}
	span.SetAttributes(attribute.String("pipeline.branch", r.state.String()))

	if !r.audited {
		r.audited = true
		p.auditor.Record(ctx, rec)
	}
	return out
}
