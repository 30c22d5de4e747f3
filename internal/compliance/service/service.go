// Package service implements the compliance gate: rule management and
// validation of free text against the active rules through the reasoning model.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	compliancemetrics "bankguard/internal/compliance/metrics"
	"bankguard/internal/compliance/models"
	"bankguard/internal/reasoning"
	dErrors "bankguard/pkg/domain-errors"
	audit "bankguard/pkg/platform/audit"
	"bankguard/pkg/platform/resilience"
	"bankguard/pkg/platform/sentinel"
	"bankguard/pkg/requestcontext"
)

// ResourceTypeRule labels audit records about compliance rules.
const ResourceTypeRule = "COMPLIANCE_RULE"

const (
	ExplanationNoRules     = "No active compliance rules to validate against"
	ExplanationNoRulesDeny = "No active compliance rules; input rejected by policy"
	ExplanationCompliant   = "Input complies with all rules"
	ExplanationUnavailable = "Compliance validation unavailable; input rejected until it can be verified"
	ExplanationMalformed   = "Compliance validation returned an unreadable answer; input rejected"
)

// ViolationUnverified is reported when no model verdict could be obtained.
const ViolationUnverified = "COMPLIANCE_CHECK_UNAVAILABLE"

type RuleStore interface {
	Create(ctx context.Context, rule *models.Rule) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Rule, error)
	Update(ctx context.Context, rule *models.Rule) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListActive(ctx context.Context) ([]*models.Rule, error)
	ListActiveByCategory(ctx context.Context, category models.Category) ([]*models.Rule, error)
}

// Service validates input and manages rules.
type Service struct {
	rules            RuleStore
	model            reasoning.Model
	wrapper          *resilience.Wrapper
	allowWhenNoRules bool
	maxTokens        int64
	logger           *slog.Logger
	auditor          audit.Recorder
	metrics          *compliancemetrics.Metrics
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher audit.Recorder) Option {
	return func(s *Service) {
		s.auditor = publisher
	}
}

func WithMetrics(m *compliancemetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithAllowWhenNoRules sets the verdict returned while no rule is active.
func WithAllowWhenNoRules(allow bool) Option {
	return func(s *Service) {
		s.allowWhenNoRules = allow
	}
}

func WithMaxTokens(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxTokens = n
		}
	}
}

func New(rules RuleStore, model reasoning.Model, wrapper *resilience.Wrapper, opts ...Option) *Service {
	s := &Service{
		rules:            rules,
		model:            model,
		wrapper:          wrapper,
		allowWhenNoRules: true,
		maxTokens:        512,
		logger:           slog.Default(),
		auditor:          audit.Discard{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Validate checks text against every active rule in one model call. Only a
// well-formed compliant answer passes; model failures and unreadable answers
// produce a degraded non-compliant verdict. The returned error is reserved for
// bad input and rule store failures.
func (s *Service) Validate(ctx context.Context, text string) (*models.Verdict, error) {
	if strings.TrimSpace(text) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "input text is required")
	}
	rules, err := s.rules.ListActive(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load compliance rules")
	}
	s.metrics.ObserveActiveRules(len(rules))

	if len(rules) == 0 {
		s.metrics.IncrementValidation("no_rules")
		if s.allowWhenNoRules {
			return &models.Verdict{Compliant: true, Violations: []string{}, Explanation: ExplanationNoRules}, nil
		}
		return &models.Verdict{Compliant: false, Violations: []string{}, Explanation: ExplanationNoRulesDeny}, nil
	}

	req := reasoning.Request{
		System:    BuildSystemPrompt(rules),
		Prompt:    text,
		MaxTokens: s.maxTokens,
	}
	verdict, _ := resilience.Execute(ctx, s.wrapper,
		func(ctx context.Context) (*models.Verdict, error) {
			answer, err := s.model.Complete(ctx, req)
			if err != nil {
				if errors.Is(err, reasoning.ErrNotConfigured) {
					return nil, resilience.Permanent(err)
				}
				return nil, err
			}
			v, err := decodeVerdict(answer)
			if err != nil {
				return nil, resilience.Permanent(err)
			}
			return v, nil
		},
		func(ctx context.Context, cause error) (*models.Verdict, error) {
			return s.rejectUnverified(ctx, cause), nil
		},
	)

	switch {
	case verdict.Degraded:
		s.metrics.IncrementValidation("degraded")
	case verdict.Compliant:
		s.metrics.IncrementValidation("compliant")
	default:
		s.metrics.IncrementValidation("violation")
	}
	return verdict, nil
}

func (s *Service) rejectUnverified(ctx context.Context, cause error) *models.Verdict {
	explanation := ExplanationUnavailable
	if errors.Is(cause, reasoning.ErrMalformed) {
		explanation = ExplanationMalformed
	}
	s.logger.WarnContext(ctx, "compliance verdict unavailable, rejecting input",
		"error", cause,
	)
	return &models.Verdict{
		Compliant:   false,
		Violations:  []string{ViolationUnverified},
		Explanation: explanation,
		Degraded:    true,
	}
}

func (s *Service) ActiveRules(ctx context.Context) ([]*models.Rule, error) {
	rules, err := s.rules.ListActive(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list compliance rules")
	}
	return rules, nil
}

// RulesByCategory returns the active rules of one category.
func (s *Service) RulesByCategory(ctx context.Context, category string) ([]*models.Rule, error) {
	c, err := models.ParseCategory(category)
	if err != nil {
		return nil, err
	}
	rules, err := s.rules.ListActiveByCategory(ctx, c)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list compliance rules")
	}
	return rules, nil
}

func (s *Service) GetRule(ctx context.Context, id uuid.UUID) (*models.Rule, error) {
	rule, err := s.rules.FindByID(ctx, id)
	if err != nil {
		return nil, wrapRuleErr(err, "failed to load compliance rule")
	}
	return rule, nil
}

func (s *Service) CreateRule(ctx context.Context, spec models.RuleSpec) (*models.Rule, error) {
	rule, err := models.NewRule(uuid.New(), spec, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.rules.Create(ctx, rule); err != nil {
		return nil, wrapRuleErr(err, "failed to create compliance rule")
	}

	rec := audit.NewRecord(ctx, audit.ActionRuleCreated)
	rec.ResourceType = ResourceTypeRule
	rec.ResourceID = rule.ID.String()
	rec.Response = encode(rule)
	s.auditor.Record(ctx, rec.Succeeded())
	s.metrics.IncrementRuleChange("create")
	s.logger.InfoContext(ctx, "compliance rule created",
		"rule_id", rule.ID,
		"category", rule.Category,
	)
	return rule, nil
}

func (s *Service) UpdateRule(ctx context.Context, id uuid.UUID, spec models.RuleSpec) (*models.Rule, error) {
	rule, err := s.GetRule(ctx, id)
	if err != nil {
		return nil, err
	}
	before := encode(rule)

	if err := rule.Apply(spec, requestcontext.Now(ctx)); err != nil {
		return nil, err
	}
	if err := s.rules.Update(ctx, rule); err != nil {
		return nil, wrapRuleErr(err, "failed to update compliance rule")
	}

	rec := audit.NewRecord(ctx, audit.ActionRuleUpdated)
	rec.ResourceType = ResourceTypeRule
	rec.ResourceID = id.String()
	rec.Request = before
	rec.Response = encode(rule)
	s.auditor.Record(ctx, rec.Succeeded())
	s.metrics.IncrementRuleChange("update")
	return rule, nil
}

func (s *Service) DeleteRule(ctx context.Context, id uuid.UUID) error {
	rule, err := s.GetRule(ctx, id)
	if err != nil {
		return err
	}
	if err := s.rules.Delete(ctx, id); err != nil {
		return wrapRuleErr(err, "failed to delete compliance rule")
	}

	rec := audit.NewRecord(ctx, audit.ActionRuleDeleted)
	rec.ResourceType = ResourceTypeRule
	rec.ResourceID = id.String()
	rec.Request = encode(rule)
	s.auditor.Record(ctx, rec.Succeeded())
	s.metrics.IncrementRuleChange("delete")
	return nil
}

func wrapRuleErr(err error, msg string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "compliance rule not found")
	case errors.Is(err, sentinel.ErrDuplicate):
		return dErrors.New(dErrors.CodeConflict, "compliance rule already exists")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}

func encode(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
