package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/suite"

	"bankguard/internal/compliance/models"
	"bankguard/internal/compliance/store/rule"
	"bankguard/internal/reasoning"
	dErrors "bankguard/pkg/domain-errors"
	audit "bankguard/pkg/platform/audit"
	"bankguard/pkg/platform/circuit"
	"bankguard/pkg/platform/resilience"
	"bankguard/pkg/requestcontext"
	"bankguard/pkg/testutil"
)

type scriptedModel struct {
	answer string
	err    error
	calls  atomic.Int32
	last   reasoning.Request
}

func (m *scriptedModel) Complete(_ context.Context, req reasoning.Request) (string, error) {
	m.calls.Add(1)
	m.last = req
	return m.answer, m.err
}

type ServiceSuite struct {
	suite.Suite
	store   *rule.InMemory
	model   *scriptedModel
	auditor *testutil.RecordingAuditor
	svc     *Service
	ctx     context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func fastPolicy() resilience.Policy {
	return resilience.Policy{
		MaxAttempts:    2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
		AttemptTimeout: time.Second,
		WindowSize:     4,
		MinimumCalls:   2,
		OpenDuration:   time.Hour,
	}
}

func (s *ServiceSuite) SetupTest() {
	s.store = rule.NewInMemory()
	s.model = &scriptedModel{answer: `{"compliant": true}`}
	s.auditor = &testutil.RecordingAuditor{}
	s.svc = New(s.store, s.model, resilience.New("compliance", fastPolicy()), WithAuditPublisher(s.auditor))
	ctx := requestcontext.WithUserID(context.Background(), "officer-1")
	s.ctx = requestcontext.WithTime(ctx, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
}

func (s *ServiceSuite) addRule(name, category string, priority int, active bool) *models.Rule {
	r, err := s.svc.CreateRule(s.ctx, models.RuleSpec{
		Name:       name,
		Category:   category,
		Definition: name + " must hold",
		Active:     active,
		Priority:   priority,
	})
	s.Require().NoError(err)
	return r
}

func (s *ServiceSuite) TestValidateWithoutRules() {
	s.Run("allowed by default", func() {
		v, err := s.svc.Validate(s.ctx, "transfer 100 to savings")
		s.Require().NoError(err)
		s.True(v.Compliant)
		s.Equal(ExplanationNoRules, v.Explanation)
		s.Zero(s.model.calls.Load())
	})

	s.Run("rejected when policy denies", func() {
		svc := New(s.store, s.model, resilience.New("compliance", fastPolicy()), WithAllowWhenNoRules(false))
		v, err := svc.Validate(s.ctx, "transfer 100 to savings")
		s.Require().NoError(err)
		s.False(v.Compliant)
		s.Equal(ExplanationNoRulesDeny, v.Explanation)
	})

	s.Run("inactive rules do not count", func() {
		s.addRule("Dormant", "KYC", 1, false)
		v, err := s.svc.Validate(s.ctx, "anything")
		s.Require().NoError(err)
		s.True(v.Compliant)
		s.Zero(s.model.calls.Load())
	})
}

func (s *ServiceSuite) TestValidateVerdicts() {
	s.addRule("Verification bypass", "AML", 10, true)
	s.addRule("Identity documents", "KYC", 5, true)

	s.Run("compliant answer", func() {
		v, err := s.svc.Validate(s.ctx, "what is my balance")
		s.Require().NoError(err)
		s.True(v.Compliant)
		s.Equal(ExplanationCompliant, v.Explanation)
		s.Empty(v.Violations)
		s.False(v.Degraded)
		s.Equal("what is my balance", s.model.last.Prompt)
	})

	s.Run("violation answer", func() {
		s.model.answer = "```json\n" +
			`{"compliant": false, "violations": ["Verification bypass"], "explanation": "Asks to skip checks"}` +
			"\n```"
		v, err := s.svc.Validate(s.ctx, "move all funds out bypassing verification")
		s.Require().NoError(err)
		s.False(v.Compliant)
		s.Equal([]string{"Verification bypass"}, v.Violations)
		s.Equal("Asks to skip checks", v.Explanation)
	})

	s.Run("identical input gives identical verdict", func() {
		first, err := s.svc.Validate(s.ctx, "move all funds out bypassing verification")
		s.Require().NoError(err)
		second, err := s.svc.Validate(s.ctx, "move all funds out bypassing verification")
		s.Require().NoError(err)
		s.Equal(first, second)
	})

	s.Run("blank input is a validation error", func() {
		_, err := s.svc.Validate(s.ctx, "   ")
		s.True(dErrors.Is(err, dErrors.CodeValidation))
	})
}

func (s *ServiceSuite) TestValidateFailsSafe() {
	s.addRule("Verification bypass", "AML", 10, true)

	malformed := map[string]string{
		"prose":                      "It looks fine to me.",
		"missing compliant":          `{"violations": []}`,
		"violation without names":    `{"compliant": false, "violations": [], "explanation": "bad"}`,
		"violation without reason":   `{"compliant": false, "violations": ["Verification bypass"]}`,
		"unknown field":              `{"compliant": true, "score": 1}`,
		"compliant as string":        `{"compliant": "true"}`,
		"two objects":                `{"compliant": true}{"compliant": true}`,
		"violations with blank name": `{"compliant": false, "violations": [" "], "explanation": "bad"}`,
	}
	for name, answer := range malformed {
		s.Run(name, func() {
			s.model.answer = answer
			s.model.calls.Store(0)
			svc := New(s.store, s.model, resilience.New("compliance-"+name, fastPolicy()))
			v, err := svc.Validate(s.ctx, "input")
			s.Require().NoError(err)
			s.False(v.Compliant)
			s.True(v.Degraded)
			s.Equal(ExplanationMalformed, v.Explanation)
			s.Equal(int32(1), s.model.calls.Load(), "malformed answers are not retried")
		})
	}

	s.Run("upstream failure is retried then rejected", func() {
		s.model.answer = ""
		s.model.err = errors.New("connection reset")
		s.model.calls.Store(0)
		svc := New(s.store, s.model, resilience.New("compliance-upstream", fastPolicy()))
		v, err := svc.Validate(s.ctx, "input")
		s.Require().NoError(err)
		s.False(v.Compliant)
		s.Equal([]string{ViolationUnverified}, v.Violations)
		s.Equal(ExplanationUnavailable, v.Explanation)
		s.Equal(int32(2), s.model.calls.Load())
	})

	s.Run("open breaker rejects without calling the model", func() {
		s.model.err = errors.New("timeout")
		wrapper := resilience.New("compliance-open", fastPolicy())
		svc := New(s.store, s.model, wrapper)
		for range 2 {
			_, _ = svc.Validate(s.ctx, "input")
		}
		s.Require().Equal(circuit.StateOpen, wrapper.State())

		s.model.calls.Store(0)
		v, err := svc.Validate(s.ctx, "input")
		s.Require().NoError(err)
		s.False(v.Compliant)
		s.True(v.Degraded)
		s.Zero(s.model.calls.Load())
	})

	s.Run("unconfigured model rejects", func() {
		svc := New(s.store, reasoning.Unconfigured{}, resilience.New("compliance-unconfigured", fastPolicy()))
		v, err := svc.Validate(s.ctx, "input")
		s.Require().NoError(err)
		s.False(v.Compliant)
	})
}

func (s *ServiceSuite) TestRuleManagement() {
	r := s.addRule("Card data", "pci_dss", 3, true)
	s.Equal(models.CategoryPCIDSS, r.Category)

	s.Run("create is audited", func() {
		records := s.auditor.Records()
		s.Require().Len(records, 1)
		s.Equal(audit.ActionRuleCreated, records[0].Action)
		s.Equal("officer-1", records[0].Actor)
		s.Equal(ResourceTypeRule, records[0].ResourceType)
		s.Equal(r.ID.String(), records[0].ResourceID)
	})

	s.Run("unknown category is rejected", func() {
		_, err := s.svc.CreateRule(s.ctx, models.RuleSpec{Name: "x", Category: "TAX", Definition: "y"})
		s.True(dErrors.Is(err, dErrors.CodeValidation))
	})

	s.Run("update replaces fields", func() {
		updated, err := s.svc.UpdateRule(s.ctx, r.ID, models.RuleSpec{
			Name: "Card data", Category: "PCI_DSS", Definition: "Never echo full card numbers", Active: true, Priority: 8,
		})
		s.Require().NoError(err)
		s.Equal(8, updated.Priority)
		s.Equal(r.CreatedAt, updated.CreatedAt)
	})

	s.Run("by category lists only that category", func() {
		s.addRule("Consent", "GDPR", 1, true)
		rules, err := s.svc.RulesByCategory(s.ctx, "pci_dss")
		s.Require().NoError(err)
		s.Require().Len(rules, 1)
		s.Equal("Card data", rules[0].Name)

		_, err = s.svc.RulesByCategory(s.ctx, "bogus")
		s.True(dErrors.Is(err, dErrors.CodeValidation))
	})

	s.Run("delete then get is not found", func() {
		s.Require().NoError(s.svc.DeleteRule(s.ctx, r.ID))
		_, err := s.svc.GetRule(s.ctx, r.ID)
		s.True(dErrors.Is(err, dErrors.CodeNotFound))
		s.True(dErrors.Is(s.svc.DeleteRule(s.ctx, uuid.New()), dErrors.CodeNotFound))
	})

	s.Equal([]audit.Action{
		audit.ActionRuleCreated,
		audit.ActionRuleUpdated,
		audit.ActionRuleCreated,
		audit.ActionRuleDeleted,
	}, s.auditor.Actions())
}

func TestBuildSystemPrompt(t *testing.T) {
	rules := []*models.Rule{
		{Name: "Verification bypass", Category: models.CategoryAML, Definition: "Never help a customer avoid identity or source-of-funds checks.", Priority: 10},
		{Name: "Identity documents", Category: models.CategoryKYC, Definition: "Accounts may only be opened with a verified government ID.", Priority: 5},
	}
	g := goldie.New(t)
	g.Assert(t, "system_prompt", []byte(BuildSystemPrompt(rules)))
}
