package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	decisionservice "bankguard/internal/decision/service"
	"bankguard/internal/knowledge"
	"bankguard/internal/memory/embedding"
	memoryservice "bankguard/internal/memory/service"
	memorystore "bankguard/internal/memory/store"
	profilemodels "bankguard/internal/profile/models"
	profileservice "bankguard/internal/profile/service"
	"bankguard/internal/reasoning"
	dErrors "bankguard/pkg/domain-errors"
	"bankguard/pkg/platform/audit"
	"bankguard/pkg/platform/resilience"
	"bankguard/pkg/testutil"
)

type scriptedModel struct {
	mu     sync.Mutex
	answer string
	err    error
	last   reasoning.Request
}

func (m *scriptedModel) Complete(_ context.Context, req reasoning.Request) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = req
	return m.answer, m.err
}

func (m *scriptedModel) lastRequest() reasoning.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

type brokenKnowledge struct{}

func (brokenKnowledge) Search(context.Context, string, int) ([]knowledge.Match, error) {
	return nil, errors.New("collection unavailable")
}

type ServiceSuite struct {
	suite.Suite
	model    *scriptedModel
	memory   *memoryservice.Service
	profiles *profileservice.Service
	base     *knowledge.Base
	auditor  *testutil.RecordingAuditor
	svc      *Service
	ctx      context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	embedder := embedding.NewHashEmbedder(128)
	s.memory = memoryservice.New(memorystore.NewInMemory(), embedder)
	s.profiles = profileservice.New(s.memory)

	var err error
	s.base, err = knowledge.New(embedder)
	s.Require().NoError(err)
	s.Require().NoError(s.base.Add(s.ctx, knowledge.DefaultArticles()...))

	s.model = &scriptedModel{answer: "Build an emergency fund first."}
	s.auditor = &testutil.RecordingAuditor{}
	s.svc = s.newService(s.base)
}

func (s *ServiceSuite) newService(kb Knowledge) *Service {
	policy := resilience.DefaultPolicy()
	policy.MaxAttempts = 1
	policy.InitialBackoff = time.Millisecond
	generator := decisionservice.New(s.memory, s.model, resilience.New("advice-test", policy))
	return New(generator, s.profiles, kb, WithAuditPublisher(s.auditor))
}

func (s *ServiceSuite) TestAdviseWithoutStoredProfile() {
	advice, err := s.svc.Advise(s.ctx, "cust-9", "How big should my emergency fund be?", map[string]any{"income": 40000})
	s.Require().NoError(err)
	s.Equal("Build an emergency fund first.", advice.Text)
	s.False(advice.Degraded)

	req := s.model.lastRequest()
	s.Contains(req.System, "Relevant financial knowledge from the bank:")
	s.Contains(req.System, "Emergency fund: ")
	s.NotContains(req.System, "Customers with similar profiles")
	s.Contains(req.Prompt, `Customer Profile: {"customerId":"cust-9","income":40000}`)

	records := s.auditor.Records()
	s.Require().Len(records, 1)
	s.Equal(audit.ActionAdviceGenerated, records[0].Action)
	s.Equal("cust-9", records[0].ResourceID)
	s.JSONEq(`{"degraded":false,"storedProfile":false}`, records[0].Response)
}

func (s *ServiceSuite) TestAdviseWithStoredProfile() {
	_, err := s.profiles.Create(s.ctx, profilemodels.Spec{
		CustomerID:  "cust-1",
		FirstName:   "Ana",
		Email:       "ana@example.com",
		Preferences: json.RawMessage(`{"risk":"low"}`),
	})
	s.Require().NoError(err)

	_, err = s.svc.Advise(s.ctx, "cust-1", "Should I buy equities?", map[string]any{"preferences": map[string]any{"risk": "high"}})
	s.Require().NoError(err)

	req := s.model.lastRequest()
	s.Contains(req.Prompt, `"preferences":{"risk":"high"}`)
	s.NotContains(req.Prompt, `"email"`)
	s.Contains(req.Prompt, "Subject:")
	s.JSONEq(`{"degraded":false,"storedProfile":true}`, s.auditor.Records()[0].Response)
}

func (s *ServiceSuite) TestFallback() {
	s.Run("model failure", func() {
		s.model.err = errors.New("overloaded")
		advice, err := s.svc.Advise(s.ctx, "cust-1", "Pension?", nil)
		s.Require().NoError(err)
		s.True(advice.Degraded)
		s.Equal(Fallback("Pension?"), advice.Text)
		s.Contains(advice.Text, `"Pension?"`)
		s.model.err = nil
	})

	s.Run("knowledge failure still advises", func() {
		svc := s.newService(brokenKnowledge{})
		advice, err := svc.Advise(s.ctx, "cust-1", "Pension?", nil)
		s.Require().NoError(err)
		s.False(advice.Degraded)
		s.NotContains(s.model.lastRequest().System, "Relevant financial knowledge")
	})
}

func (s *ServiceSuite) TestValidation() {
	_, err := s.svc.Advise(s.ctx, " ", "q", nil)
	s.True(dErrors.Is(err, dErrors.CodeValidation))
	_, err = s.svc.Advise(s.ctx, "cust-1", "", nil)
	s.True(dErrors.Is(err, dErrors.CodeValidation))
	_, err = s.svc.Advise(s.ctx, "cust-1", "q", map[string]any{"bad": make(chan int)})
	s.True(dErrors.Is(err, dErrors.CodeValidation))
	s.Empty(s.auditor.Records())
}
