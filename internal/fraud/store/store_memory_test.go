package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bankguard/internal/fraud/models"
	"bankguard/pkg/platform/sentinel"
)

func TestInMemoryOrdering(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, txn := range []*models.Transaction{
		{ID: "b", CustomerID: "c1", Timestamp: t0},
		{ID: "a", CustomerID: "c1", Timestamp: t0, FlaggedForReview: true},
		{ID: "c", CustomerID: "c1", Timestamp: t0.Add(time.Hour)},
		{ID: "d", CustomerID: "c2", Timestamp: t0.Add(time.Hour), FlaggedForReview: true},
	} {
		require.NoError(t, s.Save(ctx, txn))
	}

	got, err := s.ListForCustomer(ctx, "c1", t0, t0.Add(time.Hour))
	require.NoError(t, err)
	ids := make([]string, 0, len(got))
	for _, txn := range got {
		ids = append(ids, txn.ID)
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids)

	flagged, err := s.ListFlagged(ctx)
	require.NoError(t, err)
	require.Len(t, flagged, 2)
	assert.Equal(t, "d", flagged[0].ID)

	assert.ErrorIs(t, s.Save(ctx, &models.Transaction{ID: "a"}), sentinel.ErrDuplicate)
	_, err = s.FindByID(ctx, "zz")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestInMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	score := 0.4
	require.NoError(t, s.Save(ctx, &models.Transaction{ID: "a", FraudScore: &score}))

	got, err := s.FindByID(ctx, "a")
	require.NoError(t, err)
	*got.FraudScore = 0.9

	again, err := s.FindByID(ctx, "a")
	require.NoError(t, err)
	assert.InDelta(t, 0.4, *again.FraudScore, 1e-9)
}
