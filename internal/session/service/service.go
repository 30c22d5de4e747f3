// Package service manages TTL-bounded conversational sessions.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	sessionmetrics "bankguard/internal/session/metrics"
	"bankguard/internal/session/models"
	dErrors "bankguard/pkg/domain-errors"
	"bankguard/pkg/platform/sentinel"
	"bankguard/pkg/requestcontext"
)

// DefaultTTL applies when no TTL option is given.
const DefaultTTL = 30 * time.Minute

type Store interface {
	Create(ctx context.Context, session *models.Session) error
	Get(ctx context.Context, id uuid.UUID) (*models.Session, error)
	SetData(ctx context.Context, id uuid.UUID, key string, value json.RawMessage, now time.Time) (*models.Session, error)
	RemoveData(ctx context.Context, id uuid.UUID, key string, now time.Time) (*models.Session, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListForUser(ctx context.Context, userID string) ([]*models.Session, error)
	DeleteForUser(ctx context.Context, userID string) (int, error)
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

type Service struct {
	store   Store
	ttl     time.Duration
	logger  *slog.Logger
	metrics *sessionmetrics.Metrics
	now     func() time.Time
}

type Option func(*Service)

func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *sessionmetrics.Metrics) Option {
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

func New(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		ttl:    DefaultTTL,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Create(ctx context.Context, userID, sessionType string) (*models.Session, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "userId is required")
	}
	sessionType = strings.TrimSpace(sessionType)
	if sessionType == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "sessionType is required")
	}

	session := models.New(uuid.New(), userID, sessionType, s.ttl, requestcontext.Now(ctx))
	if err := s.store.Create(ctx, session); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create session")
	}
	s.metrics.IncrementCreated()
	s.logger.InfoContext(ctx, "session created",
		"session_id", session.ID,
		"user_id", userID,
		"type", sessionType,
	)
	return session, nil
}

// Get returns a live session. A session past its TTL is reported as not
// found and removed.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	session, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, wrapSessionErr(err, "failed to load session")
	}
	if session.ExpiredAt(requestcontext.Now(ctx)) {
		s.expire(ctx, id)
		return nil, dErrors.New(dErrors.CodeNotFound, "session not found")
	}
	return session, nil
}

// Resolve returns the caller's session when rawID names a live session owned
// by userID, and a fresh session of sessionType otherwise. created reports
// which happened.
func (s *Service) Resolve(ctx context.Context, rawID, userID, sessionType string) (session *models.Session, created bool, err error) {
	if id, parseErr := uuid.Parse(strings.TrimSpace(rawID)); parseErr == nil {
		existing, err := s.Get(ctx, id)
		switch {
		case err == nil && existing.UserID == userID:
			s.metrics.IncrementResolved("reused")
			return existing, false, nil
		case err == nil:
			s.logger.WarnContext(ctx, "session belongs to another user, starting a new one",
				"session_id", id,
				"user_id", userID,
			)
		case !dErrors.Is(err, dErrors.CodeNotFound):
			return nil, false, err
		}
	}
	session, err = s.Create(ctx, userID, sessionType)
	if err != nil {
		return nil, false, err
	}
	s.metrics.IncrementResolved("created")
	return session, true, nil
}

// SetData writes one key. Concurrent writers to the same key race and the
// last write wins; writes to different keys never interfere.
func (s *Service) SetData(ctx context.Context, id uuid.UUID, key string, value json.RawMessage) (*models.Session, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "key is required")
	}
	if !json.Valid(value) {
		return nil, dErrors.New(dErrors.CodeValidation, "value must be valid JSON")
	}
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	session, err := s.store.SetData(ctx, id, key, value, requestcontext.Now(ctx))
	if err != nil {
		return nil, wrapSessionErr(err, "failed to update session")
	}
	return session, nil
}

// SetValues marshals each value and writes it with SetData.
func (s *Service) SetValues(ctx context.Context, id uuid.UUID, values map[string]any) error {
	for key, v := range values {
		raw, err := json.Marshal(v)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode session value")
		}
		if _, err := s.SetData(ctx, id, key, raw); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) GetData(ctx context.Context, id uuid.UUID, key string) (json.RawMessage, error) {
	session, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	value, ok := session.Data[key]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "session data not found: "+key)
	}
	return value, nil
}

func (s *Service) RemoveData(ctx context.Context, id uuid.UUID, key string) (*models.Session, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	session, err := s.store.RemoveData(ctx, id, key, requestcontext.Now(ctx))
	if err != nil {
		return nil, wrapSessionErr(err, "failed to update session")
	}
	return session, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return wrapSessionErr(err, "failed to delete session")
	}
	s.logger.InfoContext(ctx, "session deleted", "session_id", id)
	return nil
}

// ListForUser returns the user's live sessions, oldest first.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]*models.Session, error) {
	return s.list(ctx, userID, func(*models.Session) bool { return true })
}

func (s *Service) ListForUserByType(ctx context.Context, userID, sessionType string) ([]*models.Session, error) {
	return s.list(ctx, userID, func(session *models.Session) bool {
		return strings.EqualFold(session.Type, sessionType)
	})
}

func (s *Service) list(ctx context.Context, userID string, keep func(*models.Session) bool) ([]*models.Session, error) {
	sessions, err := s.store.ListForUser(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list sessions")
	}
	now := requestcontext.Now(ctx)
	out := make([]*models.Session, 0, len(sessions))
	for _, session := range sessions {
		if !session.ExpiredAt(now) && keep(session) {
			out = append(out, session)
		}
	}
	return out, nil
}

func (s *Service) DeleteForUser(ctx context.Context, userID string) (int, error) {
	n, err := s.store.DeleteForUser(ctx, userID)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete sessions")
	}
	s.logger.InfoContext(ctx, "user sessions deleted", "user_id", userID, "count", n)
	return n, nil
}

// RemoveExpiredAt deletes every session idle past its TTL as of now.
func (s *Service) RemoveExpiredAt(ctx context.Context, now time.Time) (int, error) {
	n, err := s.store.DeleteExpired(ctx, now)
	if err != nil {
		return n, dErrors.Wrap(err, dErrors.CodeInternal, "failed to remove expired sessions")
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
				s.logger.ErrorContext(ctx, "session sweep failed", "error", err)
				continue
			}
			if n > 0 {
				s.logger.InfoContext(ctx, "session sweep", "removed", n)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Service) expire(ctx context.Context, id uuid.UUID) {
	if err := s.store.Delete(ctx, id); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		s.logger.WarnContext(ctx, "failed to remove expired session",
			"session_id", id,
			"error", err,
		)
		return
	}
	s.metrics.AddExpired(1)
}

func wrapSessionErr(err error, msg string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "session not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}
