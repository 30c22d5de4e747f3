package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"bankguard/internal/session/service"
	"bankguard/internal/session/store"
	"bankguard/pkg/testutil"
)

type HandlerSuite struct {
	suite.Suite
	router chi.Router
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	svc := service.New(store.NewInMemory())
	s.router = chi.NewRouter()
	New(svc, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(s.router)
}

func (s *HandlerSuite) create(userID, sessionType string) *SessionResponse {
	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/",
		CreateSessionRequest{UserID: userID, SessionType: sessionType}))
	s.Require().Equal(http.StatusCreated, rr.Code, rr.Body.String())
	return testutil.UnmarshalResponse[SessionResponse](s.T(), rr)
}

func (s *HandlerSuite) TestSessionLifecycle() {
	created := s.create("user-1", "AI_CONVERSATION")
	s.Equal(int64(30), created.TimeToLive)
	s.Empty(created.Data)

	s.Run("data round trip keeps JSON types", func() {
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/"+created.ID+"/data",
			SessionDataRequest{Key: "limits", Value: json.RawMessage(`{"daily":500}`)}))
		s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())

		rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/"+created.ID+"/data/limits"))
		s.Equal(http.StatusOK, rr.Code)
		s.JSONEq(`{"daily":500}`, rr.Body.String())
	})

	s.Run("remove data", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodDelete, "/"+created.ID+"/data/limits"))
		s.Equal(http.StatusOK, rr.Code)
		rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/"+created.ID+"/data/limits"))
		s.Equal(http.StatusNotFound, rr.Code)
	})

	s.Run("missing value rejected", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequestWithBody(s.T(), http.MethodPost, "/"+created.ID+"/data",
			`{"key":"x"}`))
		s.Equal(http.StatusBadRequest, rr.Code)
	})

	s.Run("delete", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodDelete, "/"+created.ID))
		s.Equal(http.StatusNoContent, rr.Code)
		rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/"+created.ID))
		s.Equal(http.StatusNotFound, rr.Code)
	})
}

func (s *HandlerSuite) TestUserRoutes() {
	s.create("user-1", "AI_CONVERSATION")
	s.create("user-1", "SUPPORT")
	s.create("user-2", "SUPPORT")

	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/user/user-1"))
	s.Require().Equal(http.StatusOK, rr.Code)
	s.Len(*testutil.UnmarshalResponse[[]SessionResponse](s.T(), rr), 2)

	rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/user/user-1/type/SUPPORT"))
	s.Len(*testutil.UnmarshalResponse[[]SessionResponse](s.T(), rr), 1)

	rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodDelete, "/user/user-1"))
	s.Equal(http.StatusNoContent, rr.Code)

	rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/user/user-1"))
	s.JSONEq(`[]`, rr.Body.String())
}

func (s *HandlerSuite) TestBadIDs() {
	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/not-a-uuid"))
	s.Equal(http.StatusBadRequest, rr.Code)
	rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/"+uuid.NewString()))
	s.Equal(http.StatusNotFound, rr.Code)
}
