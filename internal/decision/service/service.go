// Package service runs retrieval-augmented decisions: similar records are
// pulled from memory, folded into the model context, and the model is
// called through a resilience wrapper with a fixed fallback.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	decisionmetrics "bankguard/internal/decision/metrics"
	"bankguard/internal/decision/models"
	memorymodels "bankguard/internal/memory/models"
	memoryservice "bankguard/internal/memory/service"
	"bankguard/internal/reasoning"
	dErrors "bankguard/pkg/domain-errors"
	"bankguard/pkg/platform/resilience"
)

// Retrieval and flagging defaults.
const (
	DefaultSimilarityThreshold = 0.7
	DefaultSimilarityTopK      = 5
	DefaultFlagThreshold       = 0.6
	defaultMaxTokens           = 1024
)

// Memory is the read side of the memory service used for retrieval.
type Memory interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	SimilaritySearch(ctx context.Context, q memoryservice.Query) ([]memorymodels.Match, error)
}

type Service struct {
	memory        Memory
	model         reasoning.Model
	wrapper       *resilience.Wrapper
	threshold     float64
	topK          int
	flagThreshold float64
	maxTokens     int64
	logger        *slog.Logger
	metrics       *decisionmetrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *decisionmetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithSimilarity sets the retrieval threshold and result count.
func WithSimilarity(threshold float64, topK int) Option {
	return func(s *Service) {
		if threshold > 0 {
			s.threshold = threshold
		}
		if topK > 0 {
			s.topK = topK
		}
	}
}

// WithFlagThreshold sets the score at or above which results are flagged.
func WithFlagThreshold(threshold float64) Option {
	return func(s *Service) {
		if threshold > 0 && threshold <= 1 {
			s.flagThreshold = threshold
		}
	}
}

func WithMaxTokens(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxTokens = n
		}
	}
}

func New(memory Memory, model reasoning.Model, wrapper *resilience.Wrapper, opts ...Option) *Service {
	s := &Service{
		memory:        memory,
		model:         model,
		wrapper:       wrapper,
		threshold:     DefaultSimilarityThreshold,
		topK:          DefaultSimilarityTopK,
		flagThreshold: DefaultFlagThreshold,
		maxTokens:     defaultMaxTokens,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FlagThreshold is the score at or above which a result is flagged.
func (s *Service) FlagThreshold() float64 {
	return s.flagThreshold
}

// Score retrieves context for req.Subject, asks the model for a score and
// decodes it strictly. When the model is unavailable, the breaker is open or
// the answer is malformed, the fixed fallback is returned with no error.
// Errors are returned only for retrieval failures.
func (s *Service) Score(ctx context.Context, req models.Request) (*models.Result, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveDecideLatency(time.Since(start)) }()

	if req.Subject == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "subject is required")
	}
	blocks, err := s.retrieve(ctx, req)
	if err != nil {
		return nil, err
	}
	modelReq := reasoning.Request{
		System:    buildSystemPrompt(req.Instructions, blocks, req.Background, true),
		Prompt:    buildPrompt(req.Query, req.Subject),
		MaxTokens: s.maxTokens,
	}

	result, err := resilience.Execute(ctx, s.wrapper,
		func(ctx context.Context) (*models.Result, error) {
			text, err := s.model.Complete(ctx, modelReq)
			if err != nil {
				if errors.Is(err, reasoning.ErrNotConfigured) {
					return nil, resilience.Permanent(err)
				}
				return nil, err
			}
			result, err := decodeScore(text, s.flagThreshold)
			if err != nil {
				return nil, resilience.Permanent(err)
			}
			return result, nil
		},
		func(ctx context.Context, cause error) (*models.Result, error) {
			s.logger.WarnContext(ctx, "decision fell back to manual review",
				"subject", req.Subject.NaturalKey(),
				"error", cause,
			)
			return models.Fallback(), nil
		},
	)
	if err != nil {
		return nil, err
	}
	s.metrics.IncrementOutcome("score", result.Degraded)
	if result.Flagged {
		s.metrics.IncrementFlagged()
	}
	return result, nil
}

// Generate is the free-text form of Score. fallback is returned verbatim,
// marked degraded, when no answer can be obtained.
func (s *Service) Generate(ctx context.Context, req models.Request, fallback string) (*models.Text, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveDecideLatency(time.Since(start)) }()

	blocks, err := s.retrieve(ctx, req)
	if err != nil {
		return nil, err
	}
	modelReq := reasoning.Request{
		System:    buildSystemPrompt(req.Instructions, blocks, req.Background, false),
		Prompt:    buildPrompt(req.Query, req.Subject),
		MaxTokens: s.maxTokens,
	}

	text, err := resilience.Execute(ctx, s.wrapper,
		func(ctx context.Context) (*models.Text, error) {
			answer, err := s.model.Complete(ctx, modelReq)
			if err != nil {
				if errors.Is(err, reasoning.ErrNotConfigured) {
					return nil, resilience.Permanent(err)
				}
				return nil, err
			}
			answer = strings.TrimSpace(answer)
			if answer == "" {
				return nil, resilience.Permanent(reasoning.ErrMalformed)
			}
			return &models.Text{Text: answer}, nil
		},
		func(ctx context.Context, cause error) (*models.Text, error) {
			s.logger.WarnContext(ctx, "text generation fell back", "error", cause)
			return &models.Text{Text: fallback, Degraded: true}, nil
		},
	)
	if err != nil {
		return nil, err
	}
	s.metrics.IncrementOutcome("text", text.Degraded)
	return text, nil
}

// retrieve runs every retrieval concurrently with the subject's embedding as
// the query vector. Searches are read-only and retried per the wrapper policy.
// The subject itself is dropped from its own results.
func (s *Service) retrieve(ctx context.Context, req models.Request) ([]contextBlock, error) {
	if req.Subject == nil || len(req.Retrievals) == 0 {
		return nil, nil
	}
	vector, err := s.memory.Embed(ctx, memorymodels.CanonicalText(req.Subject.Fields()))
	if err != nil {
		return nil, err
	}

	blocks := make([]contextBlock, len(req.Retrievals))
	g, gctx := errgroup.WithContext(ctx)
	for i, r := range req.Retrievals {
		g.Go(func() error {
			start := time.Now()
			matches, err := resilience.Retry(gctx, s.wrapper.Policy(), func(ctx context.Context) ([]memorymodels.Match, error) {
				matches, err := s.memory.SimilaritySearch(ctx, memoryservice.Query{
					Kind:      r.Kind,
					Owner:     r.Owner,
					Vector:    vector,
					Threshold: s.threshold,
					TopK:      s.topK + 1,
				})
				if dErrors.Is(err, dErrors.CodeValidation) {
					return nil, resilience.Permanent(err)
				}
				return matches, err
			})
			s.metrics.ObserveRetrievalLatency(string(r.Kind), time.Since(start))
			if err != nil {
				return err
			}
			block := contextBlock{Label: r.Label}
			for _, m := range matches {
				if m.Record.Kind == req.Subject.Kind() && m.Record.NaturalKey == req.Subject.NaturalKey() {
					continue
				}
				if len(block.Entries) == s.topK {
					break
				}
				block.Entries = append(block.Entries, m.Record.Content)
			}
			blocks[i] = block
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.ErrorContext(ctx, "decision context retrieval failed", "error", err)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to retrieve decision context")
	}
	return blocks, nil
}
