package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"bankguard/internal/session/models"
	"bankguard/internal/session/store"
	dErrors "bankguard/pkg/domain-errors"
	"bankguard/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite
	store *store.InMemory
	svc   *Service
	t0    time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.store = store.NewInMemory()
	s.svc = New(s.store, WithTTL(30*time.Minute))
	s.t0 = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
}

func (s *ServiceSuite) at(offset time.Duration) context.Context {
	return requestcontext.WithTime(context.Background(), s.t0.Add(offset))
}

func (s *ServiceSuite) TestExpiry() {
	session, err := s.svc.Create(s.at(0), "user-1", models.TypeConversation)
	s.Require().NoError(err)
	s.Equal(30*time.Minute, session.TTL)

	s.Run("reachable before the TTL", func() {
		_, err := s.svc.Get(s.at(29*time.Minute), session.ID)
		s.NoError(err)
	})

	s.Run("unreachable at exactly the TTL", func() {
		other, err := s.svc.Create(s.at(0), "user-2", models.TypeConversation)
		s.Require().NoError(err)
		_, err = s.svc.Get(s.at(30*time.Minute), other.ID)
		s.True(dErrors.Is(err, dErrors.CodeNotFound))
	})

	s.Run("unreachable after the TTL and removed", func() {
		_, err := s.svc.Get(s.at(31*time.Minute), session.ID)
		s.True(dErrors.Is(err, dErrors.CodeNotFound))
		_, err = s.store.Get(context.Background(), session.ID)
		s.Error(err)
	})
}

func (s *ServiceSuite) TestMutationsRefreshAccess() {
	session, err := s.svc.Create(s.at(0), "user-1", "SUPPORT")
	s.Require().NoError(err)

	updated, err := s.svc.SetData(s.at(20*time.Minute), session.ID, "topic", json.RawMessage(`"loans"`))
	s.Require().NoError(err)
	s.Equal(s.t0.Add(20*time.Minute), updated.LastAccessedAt)

	s.Run("alive past the original deadline", func() {
		value, err := s.svc.GetData(s.at(45*time.Minute), session.ID, "topic")
		s.Require().NoError(err)
		s.JSONEq(`"loans"`, string(value))
	})

	s.Run("reads do not refresh", func() {
		_, err := s.svc.Get(s.at(49*time.Minute), session.ID)
		s.Require().NoError(err)
		_, err = s.svc.Get(s.at(50*time.Minute-time.Nanosecond), session.ID)
		s.Require().NoError(err)
		_, err = s.svc.Get(s.at(50*time.Minute), session.ID)
		s.True(dErrors.Is(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestData() {
	ctx := s.at(0)
	session, err := s.svc.Create(ctx, "user-1", "SUPPORT")
	s.Require().NoError(err)

	s.Run("missing key is not found", func() {
		_, err := s.svc.GetData(ctx, session.ID, "absent")
		s.True(dErrors.Is(err, dErrors.CodeNotFound))
	})

	s.Run("invalid JSON rejected", func() {
		_, err := s.svc.SetData(ctx, session.ID, "k", json.RawMessage(`{bad`))
		s.True(dErrors.Is(err, dErrors.CodeValidation))
	})

	s.Run("set values and remove one", func() {
		s.Require().NoError(s.svc.SetValues(ctx, session.ID, map[string]any{"a": 1, "b": "two"}))
		updated, err := s.svc.RemoveData(ctx, session.ID, "a")
		s.Require().NoError(err)
		s.NotContains(updated.Data, "a")
		s.JSONEq(`"two"`, string(updated.Data["b"]))
	})

	s.Run("unknown session", func() {
		_, err := s.svc.SetData(ctx, uuid.New(), "k", json.RawMessage(`1`))
		s.True(dErrors.Is(err, dErrors.CodeNotFound))
	})

	s.Run("concurrent writers to distinct keys all land", func() {
		var wg sync.WaitGroup
		for i := range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.svc.SetData(ctx, session.ID, "k"+string(rune('a'+i)), json.RawMessage(`true`))
				s.NoError(err)
			}()
		}
		wg.Wait()
		got, err := s.svc.Get(ctx, session.ID)
		s.Require().NoError(err)
		s.GreaterOrEqual(len(got.Data), 20)
	})
}

func (s *ServiceSuite) TestResolve() {
	ctx := s.at(0)
	existing, err := s.svc.Create(ctx, "user-1", models.TypeConversation)
	s.Require().NoError(err)

	s.Run("reuses a live session of the same user", func() {
		got, created, err := s.svc.Resolve(ctx, existing.ID.String(), "user-1", models.TypeConversation)
		s.Require().NoError(err)
		s.False(created)
		s.Equal(existing.ID, got.ID)
	})

	cases := map[string]string{
		"no id":        "",
		"garbage id":   "not-a-uuid",
		"unknown id":   uuid.NewString(),
		"foreign user": existing.ID.String(),
	}
	for name, raw := range cases {
		s.Run("creates when "+name, func() {
			user := "user-1"
			if name == "foreign user" {
				user = "user-2"
			}
			got, created, err := s.svc.Resolve(ctx, raw, user, models.TypeConversation)
			s.Require().NoError(err)
			s.True(created)
			s.NotEqual(existing.ID, got.ID)
			s.Equal(user, got.UserID)
		})
	}

	s.Run("creates when the session expired", func() {
		got, created, err := s.svc.Resolve(s.at(time.Hour), existing.ID.String(), "user-1", models.TypeConversation)
		s.Require().NoError(err)
		s.True(created)
		s.NotEqual(existing.ID, got.ID)
	})
}

func (s *ServiceSuite) TestListingAndBulkDelete() {
	ctx := s.at(0)
	_, err := s.svc.Create(ctx, "user-1", "SUPPORT")
	s.Require().NoError(err)
	_, err = s.svc.Create(s.at(time.Minute), "user-1", models.TypeConversation)
	s.Require().NoError(err)
	_, err = s.svc.Create(ctx, "user-2", "SUPPORT")
	s.Require().NoError(err)

	all, err := s.svc.ListForUser(s.at(2*time.Minute), "user-1")
	s.Require().NoError(err)
	s.Len(all, 2)
	s.Equal("SUPPORT", all[0].Type)

	typed, err := s.svc.ListForUserByType(s.at(2*time.Minute), "user-1", "ai_conversation")
	s.Require().NoError(err)
	s.Len(typed, 1)

	n, err := s.svc.DeleteForUser(ctx, "user-1")
	s.Require().NoError(err)
	s.Equal(2, n)
	left, err := s.svc.ListForUser(ctx, "user-2")
	s.Require().NoError(err)
	s.Len(left, 1)
}

func (s *ServiceSuite) TestSweep() {
	_, err := s.svc.Create(s.at(0), "user-1", "SUPPORT")
	s.Require().NoError(err)
	fresh, err := s.svc.Create(s.at(20*time.Minute), "user-1", "SUPPORT")
	s.Require().NoError(err)

	n, err := s.svc.RemoveExpiredAt(context.Background(), s.t0.Add(35*time.Minute))
	s.Require().NoError(err)
	s.Equal(1, n)

	_, err = s.store.Get(context.Background(), fresh.ID)
	s.NoError(err)
}

func (s *ServiceSuite) TestSweeperStopsOnCancel() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.svc.StartSweeper(ctx, time.Millisecond) }()
	cancel()
	s.ErrorIs(<-done, context.Canceled)
}

func (s *ServiceSuite) TestCreateValidation() {
	_, err := s.svc.Create(s.at(0), " ", "SUPPORT")
	s.True(dErrors.Is(err, dErrors.CodeValidation))
	_, err = s.svc.Create(s.at(0), "user-1", "")
	s.True(dErrors.Is(err, dErrors.CodeValidation))
}
