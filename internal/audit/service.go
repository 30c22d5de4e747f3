// Package audit exposes read access and retention for the audit trail. Writes
// go through pkg/platform/audit/publisher.
package audit

import (
	"context"
	"log/slog"
	"time"

	dErrors "bankguard/pkg/domain-errors"
	audit "bankguard/pkg/platform/audit"
)

const defaultRecentDays = 7

// Service answers audit queries and enforces the retention window.
type Service struct {
	store      audit.Store
	retention  time.Duration
	recentDays int
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures the Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithRetention sets how long records are kept. Zero keeps them forever.
func WithRetention(d time.Duration) Option {
	return func(s *Service) {
		s.retention = d
	}
}

// WithRecentDays sets the default window of the recent views.
func WithRecentDays(days int) Option {
	return func(s *Service) {
		if days > 0 {
			s.recentDays = days
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func New(store audit.Store, opts ...Option) *Service {
	s := &Service{
		store:      store,
		recentDays: defaultRecentDays,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RecentDays returns the default window of the recent views.
func (s *Service) RecentDays() int {
	return s.recentDays
}

func (s *Service) ByActor(ctx context.Context, actor string) ([]audit.Record, error) {
	if actor == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "user id is required")
	}
	return s.query(ctx, audit.Query{Actor: actor})
}

// RecentForActor returns the actor's records from the last days days.
func (s *Service) RecentForActor(ctx context.Context, actor string, days int) ([]audit.Record, error) {
	if actor == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "user id is required")
	}
	from, err := s.since(days)
	if err != nil {
		return nil, err
	}
	return s.query(ctx, audit.Query{Actor: actor, From: from})
}

// RecentFailures returns unsuccessful records from the last days days.
func (s *Service) RecentFailures(ctx context.Context, days int) ([]audit.Record, error) {
	from, err := s.since(days)
	if err != nil {
		return nil, err
	}
	return s.query(ctx, audit.Query{From: from, FailuresOnly: true})
}

func (s *Service) ByResource(ctx context.Context, resourceType, resourceID string) ([]audit.Record, error) {
	if resourceType == "" || resourceID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "resource type and id are required")
	}
	return s.query(ctx, audit.Query{ResourceType: resourceType, ResourceID: resourceID})
}

// ByTimeRange returns records with from <= timestamp <= to.
func (s *Service) ByTimeRange(ctx context.Context, from, to time.Time) ([]audit.Record, error) {
	if from.IsZero() || to.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "start and end are required")
	}
	if to.Before(from) {
		return nil, dErrors.New(dErrors.CodeValidation, "end must not be before start")
	}
	return s.query(ctx, audit.Query{From: from, To: to})
}

func (s *Service) BySource(ctx context.Context, address string) ([]audit.Record, error) {
	if address == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "ip address is required")
	}
	return s.query(ctx, audit.Query{SourceAddress: address})
}

// RemoveExpiredAt deletes records older than the retention window as of now.
// Exported for testability; the sweeper passes wall-clock time.
func (s *Service) RemoveExpiredAt(ctx context.Context, now time.Time) (int64, error) {
	if s.retention <= 0 {
		return 0, nil
	}
	n, err := s.store.DeleteBefore(ctx, now.Add(-s.retention))
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to remove expired audit records")
	}
	return n, nil
}

// StartSweeper runs RemoveExpiredAt every interval until ctx is cancelled.
// Failed runs are logged and retried on the next tick.
func (s *Service) StartSweeper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n, err := s.RemoveExpiredAt(ctx, s.now())
			if err != nil {
				s.logger.ErrorContext(ctx, "audit retention sweep failed", "error", err)
				continue
			}
			if n > 0 {
				s.logger.InfoContext(ctx, "audit retention sweep", "removed", n)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Service) since(days int) (time.Time, error) {
	if days == 0 {
		days = s.recentDays
	}
	if days < 0 {
		return time.Time{}, dErrors.New(dErrors.CodeValidation, "days must be positive")
	}
	return s.now().AddDate(0, 0, -days), nil
}

func (s *Service) query(ctx context.Context, q audit.Query) ([]audit.Record, error) {
	records, err := s.store.Query(ctx, q)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to query audit records")
	}
	return records, nil
}
