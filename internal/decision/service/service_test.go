package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/suite"

	"bankguard/internal/decision/models"
	"bankguard/internal/memory/embedding"
	memorymodels "bankguard/internal/memory/models"
	memoryservice "bankguard/internal/memory/service"
	memorystore "bankguard/internal/memory/store"
	"bankguard/internal/reasoning"
	dErrors "bankguard/pkg/domain-errors"
	"bankguard/pkg/platform/circuit"
	"bankguard/pkg/platform/resilience"
	"bankguard/pkg/requestcontext"
)

type payment struct {
	ID       string `json:"id"`
	Customer string `json:"customer"`
	Amount   string `json:"amount"`
	Location string `json:"location"`
}

func (p payment) Kind() memorymodels.Kind { return memorymodels.KindTransaction }
func (p payment) NaturalKey() string      { return p.ID }
func (p payment) Owner() string           { return p.Customer }
func (p payment) Fields() []memorymodels.Field {
	return []memorymodels.Field{
		{Name: "Transaction", Value: p.ID},
		{Name: "Amount", Value: p.Amount},
		{Name: "Location", Value: p.Location},
	}
}

type scriptedModel struct {
	mu     sync.Mutex
	answer string
	err    error
	calls  atomic.Int32
	last   reasoning.Request
}

func (m *scriptedModel) Complete(_ context.Context, req reasoning.Request) (string, error) {
	m.calls.Add(1)
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

type failingMemory struct{ calls atomic.Int32 }

func (f *failingMemory) Embed(context.Context, string) ([]float32, error) {
	return make([]float32, 8), nil
}

func (f *failingMemory) SimilaritySearch(context.Context, memoryservice.Query) ([]memorymodels.Match, error) {
	f.calls.Add(1)
	return nil, errors.New("connection reset")
}

type ServiceSuite struct {
	suite.Suite
	memory *memoryservice.Service
	model  *scriptedModel
	ctx    context.Context
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
	s.memory = memoryservice.New(memorystore.NewInMemory(), embedding.NewHashEmbedder(64))
	s.model = &scriptedModel{answer: `{"score": 0.2, "explanation": "Matches history", "recommendedAction": "APPROVE"}`}
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC))

	for _, p := range []payment{
		{ID: "t-1", Customer: "cust-1", Amount: "42.00 EUR", Location: "Lisbon"},
		{ID: "t-2", Customer: "cust-1", Amount: "38.50 EUR", Location: "Lisbon"},
		{ID: "t-3", Customer: "cust-2", Amount: "12.00 EUR", Location: "Oslo"},
	} {
		_, err := s.memory.Store(s.ctx, p)
		s.Require().NoError(err)
	}
}

func (s *ServiceSuite) newService(wrapper *resilience.Wrapper) *Service {
	return New(s.memory, s.model, wrapper, WithSimilarity(2, 5))
}

func (s *ServiceSuite) request(subject payment) models.Request {
	return models.Request{
		Instructions: "Assess fraud risk.",
		Query:        "Is this payment fraudulent?",
		Subject:      subject,
		Retrievals: []models.Retrieval{
			{Label: "Past transactions of this customer", Kind: memorymodels.KindTransaction, Owner: subject.Customer},
		},
	}
}

func (s *ServiceSuite) TestScore() {
	svc := s.newService(resilience.New("decision", fastPolicy()))
	subject := payment{ID: "t-9", Customer: "cust-1", Amount: "9800.00 EUR", Location: "Singapore"}

	s.Run("valid answer is decoded and flagged by threshold", func() {
		s.model.answer = `{"score": 0.6, "explanation": "Unusual amount", "recommendedAction": "HOLD"}`
		result, err := svc.Score(s.ctx, s.request(subject))
		s.Require().NoError(err)
		s.Equal(&models.Result{Score: 0.6, Explanation: "Unusual amount", RecommendedAction: "HOLD", Flagged: true}, result)
	})

	s.Run("low score is not flagged", func() {
		s.model.answer = "```json\n{\"score\": 0.59, \"explanation\": \"ok\", \"recommendedAction\": \"APPROVE\"}\n```"
		result, err := svc.Score(s.ctx, s.request(subject))
		s.Require().NoError(err)
		s.False(result.Flagged)
		s.False(result.Degraded)
	})

	s.Run("context holds only the owner's history", func() {
		req := s.model.lastRequest()
		s.Contains(req.System, "Past transactions of this customer:")
		s.Contains(req.System, "Transaction: t-1.")
		s.Contains(req.System, "Transaction: t-2.")
		s.NotContains(req.System, "Transaction: t-3.")
		s.Contains(req.Prompt, "Transaction: t-9. Amount: 9800.00 EUR. Location: Singapore.")
	})

	s.Run("subject is required", func() {
		_, err := svc.Score(s.ctx, models.Request{Query: "?"})
		s.True(dErrors.Is(err, dErrors.CodeValidation))
	})
}

func (s *ServiceSuite) TestScoreExcludesSubjectFromItsOwnContext() {
	svc := s.newService(resilience.New("decision", fastPolicy()))
	stored := payment{ID: "t-1", Customer: "cust-1", Amount: "42.00 EUR", Location: "Lisbon"}

	_, err := svc.Score(s.ctx, s.request(stored))
	s.Require().NoError(err)
	req := s.model.lastRequest()
	s.NotContains(req.System, "Transaction: t-1.")
	s.Contains(req.System, "Transaction: t-2.")
}

func (s *ServiceSuite) TestMalformedAnswersFallBack() {
	subject := payment{ID: "t-9", Customer: "cust-1", Amount: "10.00 EUR"}
	cases := map[string]string{
		"score above one":  `{"score": 1.5, "explanation": "x", "recommendedAction": "y"}`,
		"negative score":   `{"score": -0.1, "explanation": "x", "recommendedAction": "y"}`,
		"score as string":  `{"score": "0.9", "explanation": "x", "recommendedAction": "y"}`,
		"missing score":    `{"explanation": "x", "recommendedAction": "y"}`,
		"unknown field":    `{"score": 0.1, "fraudScore": 0.1}`,
		"prose":            `The score is 0.3`,
		"trailing content": `{"score": 0.1} and more`,
	}
	for name, answer := range cases {
		s.Run(name, func() {
			s.model.calls.Store(0)
			s.model.answer = answer
			svc := s.newService(resilience.New("decision", fastPolicy()))
			result, err := svc.Score(s.ctx, s.request(subject))
			s.Require().NoError(err)
			s.Equal(models.Fallback(), result)
			s.Equal(int32(1), s.model.calls.Load(), "malformed output is not retried")
		})
	}
}

func (s *ServiceSuite) TestUpstreamFailure() {
	subject := payment{ID: "t-9", Customer: "cust-1", Amount: "10.00 EUR"}
	wrapper := resilience.New("decision", fastPolicy())
	svc := s.newService(wrapper)
	s.model.err = errors.New("503 overloaded")

	s.Run("retried then falls back", func() {
		result, err := svc.Score(s.ctx, s.request(subject))
		s.Require().NoError(err)
		s.Equal(models.Fallback(), result)
		s.Equal(int32(2), s.model.calls.Load())
	})

	s.Run("open breaker never reaches the model", func() {
		_, err := svc.Score(s.ctx, s.request(subject))
		s.Require().NoError(err)
		s.Require().Equal(circuit.StateOpen, wrapper.State())

		s.model.calls.Store(0)
		s.model.err = nil
		for range 3 {
			result, err := svc.Score(s.ctx, s.request(subject))
			s.Require().NoError(err)
			s.Equal(0.7, result.Score)
			s.True(result.Flagged)
			s.True(result.Degraded)
		}
		s.Equal(int32(0), s.model.calls.Load())
	})
}

func (s *ServiceSuite) TestUnconfiguredModelFallsBackWithoutRetry() {
	calls := atomic.Int32{}
	model := reasoning.ModelFunc(func(ctx context.Context, req reasoning.Request) (string, error) {
		calls.Add(1)
		return reasoning.Unconfigured{}.Complete(ctx, req)
	})
	svc := New(s.memory, model, resilience.New("decision", fastPolicy()))
	result, err := svc.Score(s.ctx, s.request(payment{ID: "t-9", Customer: "cust-1"}))
	s.Require().NoError(err)
	s.True(result.Degraded)
	s.Equal(int32(1), calls.Load())
}

func (s *ServiceSuite) TestRetrievalFailureIsAnError() {
	mem := &failingMemory{}
	svc := New(mem, s.model, resilience.New("decision", fastPolicy()))
	_, err := svc.Score(s.ctx, s.request(payment{ID: "t-9", Customer: "cust-1"}))
	s.True(dErrors.Is(err, dErrors.CodeInternal))
	s.Equal(int32(2), mem.calls.Load(), "searches are retried")
	s.Equal(int32(0), s.model.calls.Load())
}

func (s *ServiceSuite) TestGenerate() {
	wrapper := resilience.New("advice", fastPolicy())
	svc := s.newService(wrapper)

	s.Run("returns the model text", func() {
		s.model.answer = "  Build an emergency fund first.  "
		text, err := svc.Generate(s.ctx, models.Request{Instructions: "Advise.", Query: "How do I save?"}, "sorry")
		s.Require().NoError(err)
		s.Equal(&models.Text{Text: "Build an emergency fund first."}, text)
		s.Equal("How do I save?", s.model.lastRequest().Prompt)
	})

	s.Run("empty answer falls back", func() {
		s.model.answer = "   "
		text, err := svc.Generate(s.ctx, models.Request{Query: "?"}, "sorry")
		s.Require().NoError(err)
		s.Equal(&models.Text{Text: "sorry", Degraded: true}, text)
	})
}

func TestBuildSystemPrompt(t *testing.T) {
	prompt := buildSystemPrompt("You are a fraud analyst for a retail bank.", []contextBlock{
		{Label: "Past transactions of this customer", Entries: []string{
			"Transaction: t-1. Amount: 42.00 EUR. Location: Lisbon.",
			"Transaction: t-2. Amount: 38.50 EUR. Location: Lisbon.",
		}},
		{Label: "Similar customers", Entries: nil},
	}, []string{"Flag anything above the customer's usual range."}, true)

	g := goldie.New(t)
	g.Assert(t, "score_system_prompt", []byte(prompt))
}
