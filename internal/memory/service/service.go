// Package service stores structured documents with their embeddings and
// answers threshold-bounded nearest-neighbour queries over them.
package service

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"bankguard/internal/memory/embedding"
	memorymetrics "bankguard/internal/memory/metrics"
	"bankguard/internal/memory/models"
	dErrors "bankguard/pkg/domain-errors"
	"bankguard/pkg/platform/sentinel"
	"bankguard/pkg/requestcontext"
)

// DefaultRetentionYears applies to kinds without a WithRetention option.
const DefaultRetentionYears = 5

type Store interface {
	Upsert(ctx context.Context, rec *models.Record) (*models.Record, error)
	FindByKey(ctx context.Context, kind models.Kind, key string) (*models.Record, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Record, error)
	Candidates(ctx context.Context, kind models.Kind, owner string) ([]*models.Record, error)
	UpdateRetention(ctx context.Context, id uuid.UUID, until time.Time) error
	ExtendRetention(ctx context.Context, id uuid.UUID, years int) (*models.Record, error)
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// Query selects the search vector either directly or from a stored record.
// A record used as the query is never returned as its own match.
type Query struct {
	Kind      models.Kind
	Owner     string
	Vector    []float32
	RecordID  uuid.UUID
	Threshold float64
	TopK      int
}

type Service struct {
	store     Store
	embedder  embedding.Embedder
	retention map[models.Kind]int
	logger    *slog.Logger
	metrics   *memorymetrics.Metrics
	now       func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *memorymetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock sets the time source used by the sweeper.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithRetention sets how many years new records of kind are kept.
func WithRetention(kind models.Kind, years int) Option {
	return func(s *Service) {
		if years > 0 {
			s.retention[kind] = years
		}
	}
}

func New(store Store, embedder embedding.Embedder, opts ...Option) *Service {
	s := &Service{
		store:     store,
		embedder:  embedder,
		retention: make(map[models.Kind]int),
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dimensions is the embedding length every stored record carries.
func (s *Service) Dimensions() int {
	return s.embedder.Dimensions()
}

// Prepare renders doc and computes its embedding without persisting it.
// The embedding is always recomputed from the current fields.
func (s *Service) Prepare(ctx context.Context, doc models.Document) (*models.Record, error) {
	key := strings.TrimSpace(doc.NaturalKey())
	if key == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "natural key is required")
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode memory document")
	}
	content := models.CanonicalText(doc.Fields())
	vec, err := s.Embed(ctx, content)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	return &models.Record{
		ID:             uuid.New(),
		Kind:           doc.Kind(),
		NaturalKey:     key,
		Owner:          doc.Owner(),
		Content:        content,
		Payload:        payload,
		Embedding:      vec,
		CreatedAt:      now,
		UpdatedAt:      now,
		RetentionUntil: now.AddDate(s.retentionYears(doc.Kind()), 0, 0),
	}, nil
}

// Put persists a prepared record. A record with the same kind and natural
// key is replaced in place and keeps its id, creation time and retention.
// Put joins any transaction carried by ctx.
func (s *Service) Put(ctx context.Context, rec *models.Record) (*models.Record, error) {
	if len(rec.Embedding) != s.Dimensions() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "embedding dimension mismatch")
	}
	stored, err := s.store.Upsert(ctx, rec)
	if err != nil {
		return nil, wrapMemoryErr(err, "failed to store memory record")
	}
	s.metrics.IncrementStored(string(stored.Kind))
	s.logger.InfoContext(ctx, "memory record stored",
		"record_id", stored.ID,
		"kind", stored.Kind,
		"natural_key", stored.NaturalKey,
	)
	return stored, nil
}

func (s *Service) Store(ctx context.Context, doc models.Document) (*models.Record, error) {
	rec, err := s.Prepare(ctx, doc)
	if err != nil {
		return nil, err
	}
	return s.Put(ctx, rec)
}

// Embed runs the embedding function and checks the vector length.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to embed memory document")
	}
	if len(vec) != s.Dimensions() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "embedding dimension mismatch")
	}
	return vec, nil
}

func (s *Service) Get(ctx context.Context, kind models.Kind, key string) (*models.Record, error) {
	rec, err := s.store.FindByKey(ctx, kind, key)
	if err != nil {
		return nil, wrapMemoryErr(err, "failed to load memory record")
	}
	return rec, nil
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*models.Record, error) {
	rec, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, wrapMemoryErr(err, "failed to load memory record")
	}
	return rec, nil
}

// SimilaritySearch returns at most q.TopK records of q.Kind whose Euclidean
// distance to the query vector is strictly below q.Threshold, nearest first.
// Equal distances put the newest record first. Records past retention are
// skipped. The search runs over a snapshot taken when it starts.
func (s *Service) SimilaritySearch(ctx context.Context, q Query) ([]models.Match, error) {
	if q.Threshold <= 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "threshold must be positive")
	}
	if q.TopK <= 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "topK must be positive")
	}

	vector := q.Vector
	exclude := uuid.Nil
	if vector == nil {
		if q.RecordID == uuid.Nil {
			return nil, dErrors.New(dErrors.CodeValidation, "query vector or record id is required")
		}
		source, err := s.GetByID(ctx, q.RecordID)
		if err != nil {
			return nil, err
		}
		vector = source.Embedding
		exclude = source.ID
	}
	if len(vector) != s.Dimensions() {
		return nil, dErrors.New(dErrors.CodeValidation, "query vector has the wrong dimension")
	}

	candidates, err := s.store.Candidates(ctx, q.Kind, q.Owner)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load memory candidates")
	}

	now := requestcontext.Now(ctx)
	matches := make([]models.Match, 0, min(len(candidates), q.TopK))
	for _, rec := range candidates {
		if rec.ID == exclude || rec.ExpiredAt(now) || len(rec.Embedding) != len(vector) {
			continue
		}
		if d := embedding.Distance(vector, rec.Embedding); d < q.Threshold {
			matches = append(matches, models.Match{Record: rec, Distance: d})
		}
	}
	slices.SortFunc(matches, func(a, b models.Match) int {
		if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
			return c
		}
		if c := b.Record.CreatedAt.Compare(a.Record.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Record.ID.String(), b.Record.ID.String())
	})
	if len(matches) > q.TopK {
		matches = matches[:q.TopK]
	}
	s.metrics.ObserveSearch(string(q.Kind), len(matches))
	return matches, nil
}

// ExtendRetention adds years to the record's retention deadline and changes
// nothing else. The addition happens in the store, so concurrent extensions
// accumulate.
func (s *Service) ExtendRetention(ctx context.Context, kind models.Kind, key string, years int) (*models.Record, error) {
	if years <= 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "years must be positive")
	}
	current, err := s.Get(ctx, kind, key)
	if err != nil {
		return nil, err
	}
	rec, err := s.store.ExtendRetention(ctx, current.ID, years)
	if err != nil {
		return nil, wrapMemoryErr(err, "failed to extend retention")
	}
	s.logger.InfoContext(ctx, "memory retention extended",
		"record_id", rec.ID,
		"kind", kind,
		"retention_until", rec.RetentionUntil,
	)
	return rec, nil
}

func (s *Service) Delete(ctx context.Context, kind models.Kind, key string) error {
	rec, err := s.Get(ctx, kind, key)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, rec.ID); err != nil {
		return wrapMemoryErr(err, "failed to delete memory record")
	}
	s.logger.InfoContext(ctx, "memory record deleted", "record_id", rec.ID, "kind", kind)
	return nil
}

// RemoveExpiredAt deletes every record whose retention deadline is before now.
func (s *Service) RemoveExpiredAt(ctx context.Context, now time.Time) (int, error) {
	n, err := s.store.DeleteExpired(ctx, now)
	if err != nil {
		return n, dErrors.Wrap(err, dErrors.CodeInternal, "failed to remove expired memory records")
	}
	s.metrics.AddExpired(n)
	return n, nil
}

// StartSweeper runs RemoveExpiredAt every interval until ctx is cancelled.
func (s *Service) StartSweeper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n, err := s.RemoveExpiredAt(ctx, s.now())
			if err != nil {
				s.logger.ErrorContext(ctx, "memory retention sweep failed", "error", err)
				continue
			}
			if n > 0 {
				s.logger.InfoContext(ctx, "memory retention sweep", "removed", n)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Service) retentionYears(kind models.Kind) int {
	if years, ok := s.retention[kind]; ok {
		return years
	}
	return DefaultRetentionYears
}

func wrapMemoryErr(err error, msg string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "memory record not found")
	case errors.Is(err, sentinel.ErrDuplicate):
		return dErrors.New(dErrors.CodeConflict, "memory record already exists")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}
