package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	decisionmodels "bankguard/internal/decision/models"
	decisionservice "bankguard/internal/decision/service"
	"bankguard/internal/fraud/models"
	"bankguard/internal/fraud/store"
	"bankguard/internal/memory/embedding"
	memorymodels "bankguard/internal/memory/models"
	memoryservice "bankguard/internal/memory/service"
	memorystore "bankguard/internal/memory/store"
	"bankguard/internal/reasoning"
	dErrors "bankguard/pkg/domain-errors"
	"bankguard/pkg/platform/audit"
	"bankguard/pkg/platform/resilience"
	"bankguard/pkg/requestcontext"
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

type brokenIndexer struct{}

func (brokenIndexer) Store(context.Context, memorymodels.Document) (*memorymodels.Record, error) {
	return nil, errors.New("disk full")
}

type ServiceSuite struct {
	suite.Suite
	model   *scriptedModel
	memory  *memoryservice.Service
	store   *store.InMemory
	auditor *testutil.RecordingAuditor
	svc     *Service
	ctx     context.Context
	now     time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.now = time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.model = &scriptedModel{answer: `{"score": 0.1, "explanation": "Consistent with history", "recommendedAction": "APPROVE"}`}
	s.memory = memoryservice.New(memorystore.NewInMemory(), embedding.NewHashEmbedder(64))
	s.store = store.NewInMemory()
	s.auditor = &testutil.RecordingAuditor{}
	s.svc = s.newService(s.memory)
}

func (s *ServiceSuite) newService(indexer Indexer) *Service {
	policy := resilience.Policy{
		MaxAttempts:    1,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
		AttemptTimeout: time.Second,
		WindowSize:     10,
		MinimumCalls:   10,
		OpenDuration:   time.Minute,
	}
	scorer := decisionservice.New(s.memory, s.model, resilience.New("fraud-test", policy))
	return New(s.store, scorer, indexer, WithAuditPublisher(s.auditor))
}

func groceries(id string) *models.Transaction {
	return &models.Transaction{
		ID:           id,
		AccountID:    "acc-1",
		CustomerID:   "cust-1",
		Amount:       "54.20",
		Currency:     "eur",
		Type:         "debit",
		MerchantName: "Pingo Doce",
		Location:     "Lisbon",
	}
}

func (s *ServiceSuite) TestProcess() {
	s.Run("clear transaction is persisted and indexed", func() {
		txn, err := s.svc.Process(s.ctx, groceries("t-1"))
		s.Require().NoError(err)
		s.Require().NotNil(txn.FraudScore)
		s.InDelta(0.1, *txn.FraudScore, 1e-9)
		s.False(txn.FlaggedForReview)
		s.False(txn.Degraded)
		s.Equal("EUR", txn.Currency)
		s.Equal(models.TypeDebit, txn.Type)
		s.Equal(s.now, txn.Timestamp)

		stored, err := s.store.FindByID(s.ctx, "t-1")
		s.Require().NoError(err)
		s.Equal(txn, stored)

		_, err = s.memory.Get(s.ctx, memorymodels.KindTransaction, "t-1")
		s.NoError(err)
	})

	s.Run("history of the same customer is retrieved as context", func() {
		_, err := s.svc.Process(s.ctx, groceries("t-2"))
		s.Require().NoError(err)
		s.Contains(s.model.lastRequest().System, "Previous transactions of this customer")
		s.Contains(s.model.lastRequest().System, "Pingo Doce")
	})

	s.Run("suspicious score flags for review", func() {
		s.model.answer = `{"score": 0.92, "explanation": "New device abroad", "recommendedAction": "BLOCK"}`
		big := groceries("t-3")
		big.Amount = "9800"
		big.Location = "Singapore"
		txn, err := s.svc.Process(s.ctx, big)
		s.Require().NoError(err)
		s.True(txn.FlaggedForReview)
		s.Equal("New device abroad", txn.FraudReason)

		flagged, err := s.svc.Flagged(s.ctx)
		s.Require().NoError(err)
		s.Require().Len(flagged, 1)
		s.Equal("t-3", flagged[0].ID)
	})

	s.Run("duplicate id conflicts", func() {
		_, err := s.svc.Process(s.ctx, groceries("t-1"))
		s.True(dErrors.Is(err, dErrors.CodeConflict))
	})

	s.Run("missing id is generated", func() {
		txn, err := s.svc.Process(s.ctx, groceries(""))
		s.Require().NoError(err)
		s.NotEmpty(txn.ID)
	})

	s.Run("scoring output on input is ignored", func() {
		in := groceries("t-4")
		forged := 0.0
		in.FraudScore = &forged
		in.FlaggedForReview = true
		s.model.answer = `{"score": 0.3, "explanation": "ok", "recommendedAction": "APPROVE"}`
		txn, err := s.svc.Process(s.ctx, in)
		s.Require().NoError(err)
		s.InDelta(0.3, *txn.FraudScore, 1e-9)
		s.False(txn.FlaggedForReview)
	})
}

func (s *ServiceSuite) TestProcessDegraded() {
	s.model.err = errors.New("upstream 503")
	txn, err := s.svc.Process(s.ctx, groceries("t-1"))
	s.Require().NoError(err)
	s.True(txn.Degraded)
	s.True(txn.FlaggedForReview)
	s.InDelta(decisionmodels.FallbackScore, *txn.FraudScore, 1e-9)
	s.Equal(decisionmodels.FallbackExplanation, txn.FraudReason)
}

func (s *ServiceSuite) TestProcessValidation() {
	cases := map[string]func(*models.Transaction){
		"missing account": func(t *models.Transaction) { t.AccountID = "" },
		"negative amount": func(t *models.Transaction) { t.Amount = "-5" },
		"zero amount":     func(t *models.Transaction) { t.Amount = "0.00" },
		"too precise":     func(t *models.Transaction) { t.Amount = "1.00001" },
		"bad currency":    func(t *models.Transaction) { t.Currency = "EURO" },
		"unknown type":    func(t *models.Transaction) { t.Type = "REFUND" },
	}
	for name, mutate := range cases {
		s.Run(name, func() {
			txn := groceries("t-v")
			mutate(txn)
			_, err := s.svc.Process(s.ctx, txn)
			s.True(dErrors.Is(err, dErrors.CodeValidation), err)
		})
	}
	_, err := s.store.FindByID(s.ctx, "t-v")
	s.Error(err)
}

func (s *ServiceSuite) TestIndexFailureIsInternal() {
	svc := s.newService(brokenIndexer{})
	_, err := svc.Process(s.ctx, groceries("t-1"))
	s.True(dErrors.Is(err, dErrors.CodeInternal))

	records := s.auditor.Records()
	s.Require().Len(records, 1)
	s.Equal(audit.ActionFraudScored, records[0].Action)
	s.False(records[0].Success)
}

func (s *ServiceSuite) TestAudit() {
	_, err := s.svc.Process(s.ctx, groceries("t-1"))
	s.Require().NoError(err)

	records := s.auditor.Records()
	s.Require().Len(records, 1)
	s.Equal(ResourceTypeTransaction, records[0].ResourceType)
	s.Equal("t-1", records[0].ResourceID)
	s.True(records[0].Success)
	s.JSONEq(`{"fraudScore":0.1,"flaggedForReview":false,"degraded":false}`, records[0].Response)
}

func (s *ServiceSuite) TestRecent() {
	for i, age := range []time.Duration{time.Hour, 10 * 24 * time.Hour, 45 * 24 * time.Hour} {
		txn := groceries("")
		txn.ID = []string{"recent", "older", "stale"}[i]
		txn.Timestamp = s.now.Add(-age)
		_, err := s.svc.Process(s.ctx, txn)
		s.Require().NoError(err)
	}
	other := groceries("other-customer")
	other.CustomerID = "cust-2"
	_, err := s.svc.Process(s.ctx, other)
	s.Require().NoError(err)

	txns, err := s.svc.Recent(s.ctx, "cust-1", 0)
	s.Require().NoError(err)
	ids := make([]string, 0, len(txns))
	for _, t := range txns {
		ids = append(ids, t.ID)
	}
	s.Equal([]string{"recent", "older"}, ids)

	txns, err = s.svc.Recent(s.ctx, "cust-1", 60)
	s.Require().NoError(err)
	s.Len(txns, 3)

	_, err = s.svc.Recent(s.ctx, "cust-1", -1)
	s.True(dErrors.Is(err, dErrors.CodeValidation))
	_, err = s.svc.Recent(s.ctx, " ", 30)
	s.True(dErrors.Is(err, dErrors.CodeValidation))
}
