package knowledge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bankguard/internal/memory/embedding"
	dErrors "bankguard/pkg/domain-errors"
)

func TestSearch(t *testing.T) {
	ctx := context.Background()
	base, err := New(embedding.NewHashEmbedder(256))
	require.NoError(t, err)

	matches, err := base.Search(ctx, "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, matches, "empty base")

	require.NoError(t, base.Add(ctx, DefaultArticles()...))
	assert.Equal(t, len(DefaultArticles()), base.Count())

	matches, err = base.Search(ctx, "should I repay high-interest credit cards and overdrafts before investing", 3)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, "debt-priority", matches[0].Article.ID)
	assert.Equal(t, "DEBT", matches[0].Article.Category)
	assert.Equal(t, "Paying down debt: "+matches[0].Article.Content, matches[0].Article.Text())
	for i := 1; i < len(matches); i++ {
		assert.GreaterOrEqual(t, matches[i-1].Similarity, matches[i].Similarity)
	}

	t.Run("topK above count is capped", func(t *testing.T) {
		matches, err := base.Search(ctx, "savings", 100)
		require.NoError(t, err)
		assert.Len(t, matches, base.Count())
	})

	t.Run("reseeding upserts by id", func(t *testing.T) {
		require.NoError(t, base.Add(ctx, DefaultArticles()...))
		assert.Equal(t, len(DefaultArticles()), base.Count())
	})
}

func TestValidation(t *testing.T) {
	ctx := context.Background()
	base, err := New(embedding.NewHashEmbedder(32))
	require.NoError(t, err)

	err = base.Add(ctx, Article{ID: "x"})
	assert.True(t, dErrors.Is(err, dErrors.CodeValidation))

	_, err = base.Search(ctx, " ", 5)
	assert.True(t, dErrors.Is(err, dErrors.CodeValidation))
	_, err = base.Search(ctx, "budget", 0)
	assert.True(t, dErrors.Is(err, dErrors.CodeValidation))
}

func TestPersistence(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	embedder := embedding.NewHashEmbedder(64)

	base, err := New(embedder, WithPersistence(dir, true))
	require.NoError(t, err)
	require.NoError(t, base.Add(ctx, Article{ID: "a", Title: "Budgeting", Category: "BUDGETING", Content: "Track spending monthly."}))

	reopened, err := New(embedder, WithPersistence(dir, true))
	require.NoError(t, err)
	assert.Equal(t, 1, reopened.Count())

	matches, err := reopened.Search(ctx, "monthly spending", 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "Budgeting", matches[0].Article.Title)
}
