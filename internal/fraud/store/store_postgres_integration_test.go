//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"bankguard/internal/fraud/models"
	"bankguard/internal/fraud/store"
	"bankguard/internal/platform/postgres"
	"bankguard/pkg/platform/sentinel"
	"bankguard/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *store.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.pg = containers.GetManager().GetPostgres(s.T())
	s.store = store.NewPostgres(s.pg.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.pg.TruncateTables(context.Background(), "transactions"))
}

func (s *PostgresStoreSuite) TestRoundTrip() {
	ctx := context.Background()
	score := 0.82
	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	s.Require().NoError(s.store.Save(ctx, &models.Transaction{
		ID:               "t-1",
		AccountID:        "a-1",
		CustomerID:       "c-1",
		Amount:           "1250.5",
		Currency:         "USD",
		Type:             models.TypeTransfer,
		MerchantName:     "Acme",
		Location:         "Lisbon",
		Timestamp:        at,
		FlaggedForReview: true,
		FraudScore:       &score,
		FraudReason:      "unusual location",
	}))

	got, err := s.store.FindByID(ctx, "t-1")
	s.Require().NoError(err)
	s.Equal("1250.5", got.Amount)
	s.Equal(models.TypeTransfer, got.Type)
	s.True(at.Equal(got.Timestamp))
	s.Require().NotNil(got.FraudScore)
	s.InDelta(0.82, *got.FraudScore, 1e-9)
	s.Equal("unusual location", got.FraudReason)

	s.Run("duplicate id", func() {
		s.ErrorIs(s.store.Save(ctx, &models.Transaction{
			ID: "t-1", AccountID: "a", CustomerID: "c", Amount: "1", Currency: "USD", Type: models.TypeDebit, Timestamp: at,
		}), sentinel.ErrDuplicate)
	})

	s.Run("missing id", func() {
		_, err := s.store.FindByID(ctx, "nope")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *PostgresStoreSuite) TestListing() {
	ctx := context.Background()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, txn := range []*models.Transaction{
		{ID: "b", CustomerID: "c1", Timestamp: t0},
		{ID: "a", CustomerID: "c1", Timestamp: t0, FlaggedForReview: true},
		{ID: "c", CustomerID: "c1", Timestamp: t0.Add(time.Hour)},
		{ID: "old", CustomerID: "c1", Timestamp: t0.Add(-48 * time.Hour)},
		{ID: "d", CustomerID: "c2", Timestamp: t0.Add(time.Hour), FlaggedForReview: true},
	} {
		txn.AccountID, txn.Amount, txn.Currency, txn.Type = "acc", "10", "EUR", models.TypeDebit
		s.Require().NoError(s.store.Save(ctx, txn))
	}

	got, err := s.store.ListForCustomer(ctx, "c1", t0, t0.Add(time.Hour))
	s.Require().NoError(err)
	var ids []string
	for _, txn := range got {
		ids = append(ids, txn.ID)
	}
	s.Equal([]string{"c", "a", "b"}, ids)

	flagged, err := s.store.ListFlagged(ctx)
	s.Require().NoError(err)
	s.Require().Len(flagged, 2)
	s.Equal("d", flagged[0].ID)
}

func (s *PostgresStoreSuite) TestRollbackDiscardsSave() {
	ctx := context.Background()
	err := postgres.NewTransactor(s.pg.DB).RunInTx(ctx, func(ctx context.Context) error {
		s.Require().NoError(s.store.Save(ctx, &models.Transaction{
			ID: "t-rb", AccountID: "a", CustomerID: "c", Amount: "1", Currency: "USD", Type: models.TypeDebit, Timestamp: time.Now(),
		}))
		return sentinel.ErrNotFound
	})
	s.ErrorIs(err, sentinel.ErrNotFound)

	_, err = s.store.FindByID(ctx, "t-rb")
	s.ErrorIs(err, sentinel.ErrNotFound)
}
