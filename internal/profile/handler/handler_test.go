package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"bankguard/internal/memory/embedding"
	memoryservice "bankguard/internal/memory/service"
	memorystore "bankguard/internal/memory/store"
	"bankguard/internal/profile/service"
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
	memory := memoryservice.New(memorystore.NewInMemory(), embedding.NewHashEmbedder(64))
	s.router = chi.NewRouter()
	New(service.New(memory), slog.New(slog.NewTextHandler(io.Discard, nil))).Register(s.router)
}

func (s *HandlerSuite) create(customerID, firstName string) *ProfileResponse {
	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/", ProfileRequest{
		CustomerID:  customerID,
		FirstName:   firstName,
		Email:       " " + firstName + "@Example.com ",
		Preferences: json.RawMessage(`{"risk":"low"}`),
	}))
	s.Require().Equal(http.StatusCreated, rr.Code, rr.Body.String())
	return testutil.UnmarshalResponse[ProfileResponse](s.T(), rr)
}

func (s *HandlerSuite) TestLifecycle() {
	created := s.create("cust-1", "Ana")
	s.Equal("ana@example.com", created.Email)

	s.Run("get by id and customer", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/"+created.ID))
		s.Equal(http.StatusOK, rr.Code)
		rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/customer/cust-1"))
		s.Equal(http.StatusOK, rr.Code)
		s.Equal(created.ID, testutil.UnmarshalResponse[ProfileResponse](s.T(), rr).ID)
	})

	s.Run("update preferences", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequestWithBody(s.T(), http.MethodPut,
			"/customer/cust-1/preferences", `{"risk":"medium","goal":"house"}`))
		s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())
		got := testutil.UnmarshalResponse[ProfileResponse](s.T(), rr)
		s.JSONEq(`{"goal":"house","risk":"medium"}`, string(got.Preferences))
	})

	s.Run("behavioral data must be an object", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequestWithBody(s.T(), http.MethodPut,
			"/customer/cust-1/behavioral", `[1,2]`))
		s.Equal(http.StatusBadRequest, rr.Code)
	})

	s.Run("extend retention", func() {
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost,
			"/customer/cust-1/retention", RetentionRequest{Years: 3}))
		s.Require().Equal(http.StatusOK, rr.Code)
		got := testutil.UnmarshalResponse[ProfileResponse](s.T(), rr)
		s.True(created.RetentionUntil.AddDate(3, 0, 0).Equal(got.RetentionUntil))

		rr = testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost,
			"/customer/cust-1/retention", RetentionRequest{Years: 0}))
		s.Equal(http.StatusBadRequest, rr.Code)
	})

	s.Run("delete", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodDelete, "/"+created.ID))
		s.Equal(http.StatusNoContent, rr.Code)
		rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/"+created.ID))
		s.Equal(http.StatusNotFound, rr.Code)
	})
}

func (s *HandlerSuite) TestDuplicateCustomer() {
	s.create("cust-1", "Ana")
	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/",
		ProfileRequest{CustomerID: "cust-1"}))
	s.Equal(http.StatusConflict, rr.Code)
}

func (s *HandlerSuite) TestFindSimilar() {
	s.create("cust-1", "Ana")
	s.create("cust-2", "Anabel")

	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet,
		"/customer/cust-1/similar?threshold=2&limit=5"))
	s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())
	got := testutil.UnmarshalResponse[[]SimilarResponse](s.T(), rr)
	s.Require().Len(*got, 1)
	s.Equal("cust-2", (*got)[0].CustomerID)

	s.Run("bad query parameters", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet,
			"/customer/cust-1/similar?threshold=near"))
		s.Equal(http.StatusBadRequest, rr.Code)
		rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet,
			"/customer/cust-1/similar?limit=0"))
		s.Equal(http.StatusBadRequest, rr.Code)
	})

	s.Run("invalid id", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/not-a-uuid"))
		s.Equal(http.StatusBadRequest, rr.Code)
	})
}
