// Package service scores transactions for fraud against the customer's own
// history, then persists and indexes them.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	decisionmodels "bankguard/internal/decision/models"
	fraudmetrics "bankguard/internal/fraud/metrics"
	"bankguard/internal/fraud/models"
	memorymodels "bankguard/internal/memory/models"
	dErrors "bankguard/pkg/domain-errors"
	"bankguard/pkg/platform/audit"
	"bankguard/pkg/platform/sentinel"
	"bankguard/pkg/requestcontext"
)

const (
	ResourceTypeTransaction = "TRANSACTION"
	DefaultRecentDays       = 30
)

const fraudInstructions = `You are a fraud detection analyst for a retail bank. Assess whether the transaction in the user message is fraudulent.
Compare it with the customer's previous transactions listed below, considering:
1. Amount relative to the customer's usual spending
2. Location relative to the customer's usual locations
3. Time of day and frequency
4. Merchant and merchant category
5. Device and IP address
Scores: 0.0-0.2 very likely legitimate, 0.2-0.4 probably legitimate, 0.4-0.6 uncertain, 0.6-0.8 suspicious, 0.8-1.0 very likely fraudulent.
Recommend one action such as APPROVE, VERIFY_WITH_CUSTOMER, HOLD or BLOCK.`

type Store interface {
	Save(ctx context.Context, txn *models.Transaction) error
	FindByID(ctx context.Context, id string) (*models.Transaction, error)
	ListForCustomer(ctx context.Context, customerID string, from, to time.Time) ([]*models.Transaction, error)
	ListFlagged(ctx context.Context) ([]*models.Transaction, error)
}

// Scorer is the scored form of the decision engine.
type Scorer interface {
	Score(ctx context.Context, req decisionmodels.Request) (*decisionmodels.Result, error)
}

// Indexer adds documents to similarity memory.
type Indexer interface {
	Store(ctx context.Context, doc memorymodels.Document) (*memorymodels.Record, error)
}

type Service struct {
	store   Store
	scorer  Scorer
	indexer Indexer
	tx      Transactor
	logger  *slog.Logger
	auditor audit.Recorder
	metrics *fraudmetrics.Metrics

	recentDays int
}

type Option func(*Service)

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

func WithMetrics(m *fraudmetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTransactor makes persist-and-index atomic in the database.
func WithTransactor(tx Transactor) Option {
	return func(s *Service) {
		s.tx = tx
	}
}

// WithRecentDays sets the window Recent uses when the caller passes zero days.
func WithRecentDays(days int) Option {
	return func(s *Service) {
		if days > 0 {
			s.recentDays = days
		}
	}
}

func New(store Store, scorer Scorer, indexer Indexer, opts ...Option) *Service {
	s := &Service{
		store:   store,
		scorer:  scorer,
		indexer: indexer,
		tx:      &lockTx{},
		logger:  slog.Default(),
		auditor: audit.Discard{},

		recentDays: DefaultRecentDays,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Process scores txn against the customer's indexed history, then stores it
// and indexes it in one atomic step. The transaction is added to memory only
// after it has been persisted, so a failed persist leaves no index entry.
func (s *Service) Process(ctx context.Context, txn *models.Transaction) (*models.Transaction, error) {
	txn = txn.Clone()
	if err := s.prepare(ctx, txn); err != nil {
		return nil, err
	}
	if _, err := s.store.FindByID(ctx, txn.ID); err == nil {
		return nil, dErrors.New(dErrors.CodeConflict, "transaction already processed")
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check transaction")
	}

	result, err := s.scorer.Score(ctx, decisionmodels.Request{
		Instructions: fraudInstructions,
		Query:        "Assess this transaction for fraud.",
		Subject:      txn,
		Retrievals: []decisionmodels.Retrieval{{
			Label: "Previous transactions of this customer",
			Kind:  memorymodels.KindTransaction,
			Owner: txn.CustomerID,
		}},
	})
	if err != nil {
		s.audit(ctx, txn, err)
		return nil, err
	}
	score := result.Score
	txn.FraudScore = &score
	txn.FraudReason = result.Explanation
	txn.FlaggedForReview = result.Flagged
	txn.Degraded = result.Degraded

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.Save(ctx, txn); err != nil {
			if errors.Is(err, sentinel.ErrDuplicate) {
				return dErrors.New(dErrors.CodeConflict, "transaction already processed")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save transaction")
		}
		if _, err := s.indexer.Store(ctx, txn); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to index transaction")
		}
		return nil
	})
	if err != nil {
		s.audit(ctx, txn, err)
		return nil, err
	}

	s.audit(ctx, txn, nil)
	s.metrics.ObserveProcessed(score, txn.FlaggedForReview, txn.Degraded)
	s.logger.InfoContext(ctx, "transaction scored",
		"transaction_id", txn.ID,
		"customer_id", txn.CustomerID,
		"fraud_score", score,
		"flagged", txn.FlaggedForReview,
		"degraded", txn.Degraded,
	)
	return txn, nil
}

// Recent returns the customer's transactions from the last days days, newest
// first. Zero days selects the configured window.
func (s *Service) Recent(ctx context.Context, customerID string, days int) ([]*models.Transaction, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "customerId is required")
	}
	if days < 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "days must be positive")
	}
	if days == 0 {
		days = s.recentDays
	}
	now := requestcontext.Now(ctx)
	txns, err := s.store.ListForCustomer(ctx, customerID, now.AddDate(0, 0, -days), now)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list transactions")
	}
	return txns, nil
}

// Flagged returns every transaction awaiting manual review, newest first.
func (s *Service) Flagged(ctx context.Context) ([]*models.Transaction, error) {
	txns, err := s.store.ListFlagged(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list flagged transactions")
	}
	return txns, nil
}

func (s *Service) prepare(ctx context.Context, txn *models.Transaction) error {
	txn.ID = strings.TrimSpace(txn.ID)
	if txn.ID == "" {
		txn.ID = uuid.NewString()
	}
	if txn.Timestamp.IsZero() {
		txn.Timestamp = requestcontext.Now(ctx)
	}
	txn.Timestamp = txn.Timestamp.UTC()
	txn.Currency = strings.ToUpper(strings.TrimSpace(txn.Currency))
	if t, err := models.ParseType(string(txn.Type)); err == nil {
		txn.Type = t
	}
	txn.FraudScore = nil
	txn.FraudReason = ""
	txn.FlaggedForReview = false
	txn.Degraded = false
	if err := txn.Validate(); err != nil {
		return err
	}
	txn.Amount = models.CanonicalAmount(txn.Amount)
	return nil
}

func (s *Service) audit(ctx context.Context, txn *models.Transaction, err error) {
	rec := audit.NewRecord(ctx, audit.ActionFraudScored)
	rec.ResourceType = ResourceTypeTransaction
	rec.ResourceID = txn.ID
	if err != nil {
		s.auditor.Record(ctx, rec.Failed(err.Error()))
		return
	}
	summary, _ := json.Marshal(struct {
		FraudScore *float64 `json:"fraudScore"`
		Flagged    bool     `json:"flaggedForReview"`
		Degraded   bool     `json:"degraded"`
	}{txn.FraudScore, txn.FlaggedForReview, txn.Degraded})
	rec.Response = string(summary)
	s.auditor.Record(ctx, rec.Succeeded())
}
