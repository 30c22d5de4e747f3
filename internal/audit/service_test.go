package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	dErrors "bankguard/pkg/domain-errors"
	audit "bankguard/pkg/platform/audit"
	"bankguard/pkg/platform/audit/store/memory"
)

type ServiceSuite struct {
	suite.Suite
	store *memory.InMemoryStore
	svc   *Service
	now   time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.now = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	s.store = memory.NewInMemoryStore()
	s.svc = New(s.store,
		WithRetention(365*24*time.Hour),
		WithClock(func() time.Time { return s.now }),
	)
	ctx := context.Background()
	for _, r := range []audit.Record{
		{Actor: "alice", Action: audit.ActionAIQuerySuccess, Success: true, ResourceType: "USER", ResourceID: "alice", SourceAddress: "10.0.0.1", Timestamp: s.now.Add(-time.Hour)},
		{Actor: "alice", Action: audit.ActionAIQueryComplianceViolation, ResourceType: "USER", ResourceID: "alice", SourceAddress: "10.0.0.1", Timestamp: s.now.AddDate(0, 0, -10)},
		{Actor: "bob", Action: audit.ActionAIQueryPermissionDenied, ResourceType: "USER", ResourceID: "bob", SourceAddress: "10.0.0.2", Timestamp: s.now.AddDate(0, 0, -2)},
		{Actor: "bob", Action: audit.ActionAIQuerySuccess, Success: true, ResourceType: "USER", ResourceID: "bob", SourceAddress: "10.0.0.2", Timestamp: s.now.AddDate(-2, 0, 0)},
	} {
		s.Require().NoError(s.store.Append(ctx, r))
	}
}

func (s *ServiceSuite) TestByActor() {
	records, err := s.svc.ByActor(context.Background(), "alice")
	s.Require().NoError(err)
	s.Require().Len(records, 2)
	s.True(records[0].Timestamp.After(records[1].Timestamp), "newest first")

	_, err = s.svc.ByActor(context.Background(), "")
	s.True(dErrors.Is(err, dErrors.CodeValidation))
}

func (s *ServiceSuite) TestRecentViews() {
	s.Run("recent for actor uses default window", func() {
		records, err := s.svc.RecentForActor(context.Background(), "alice", 0)
		s.Require().NoError(err)
		s.Require().Len(records, 1)
		s.Equal(audit.ActionAIQuerySuccess, records[0].Action)
	})

	s.Run("explicit window widens results", func() {
		records, err := s.svc.RecentForActor(context.Background(), "alice", 30)
		s.Require().NoError(err)
		s.Len(records, 2)
	})

	s.Run("recent failures only returns unsuccessful records", func() {
		records, err := s.svc.RecentFailures(context.Background(), 0)
		s.Require().NoError(err)
		s.Require().Len(records, 1)
		s.Equal("bob", records[0].Actor)
		s.False(records[0].Success)
	})

	s.Run("negative days rejected", func() {
		_, err := s.svc.RecentFailures(context.Background(), -1)
		s.True(dErrors.Is(err, dErrors.CodeValidation))
	})
}

func (s *ServiceSuite) TestByResourceAndSource() {
	records, err := s.svc.ByResource(context.Background(), "USER", "bob")
	s.Require().NoError(err)
	s.Len(records, 2)

	records, err = s.svc.BySource(context.Background(), "10.0.0.1")
	s.Require().NoError(err)
	s.Len(records, 2)

	_, err = s.svc.ByResource(context.Background(), "USER", "")
	s.True(dErrors.Is(err, dErrors.CodeValidation))
}

func (s *ServiceSuite) TestByTimeRange() {
	records, err := s.svc.ByTimeRange(context.Background(), s.now.AddDate(0, 0, -3), s.now)
	s.Require().NoError(err)
	s.Len(records, 2)

	_, err = s.svc.ByTimeRange(context.Background(), s.now, s.now.Add(-time.Minute))
	s.True(dErrors.Is(err, dErrors.CodeValidation))
}

func (s *ServiceSuite) TestRemoveExpiredAt() {
	n, err := s.svc.RemoveExpiredAt(context.Background(), s.now)
	s.Require().NoError(err)
	s.EqualValues(1, n)
	s.Len(s.store.All(), 3)
}

func (s *ServiceSuite) TestRemoveExpiredAtWithoutRetentionKeepsEverything() {
	svc := New(s.store)
	n, err := svc.RemoveExpiredAt(context.Background(), s.now)
	s.Require().NoError(err)
	s.Zero(n)
	s.Len(s.store.All(), 4)
}
