package embedding

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"
)

// CachedEmbedder memoizes another Embedder by exact text. Cost is one per
// entry, so maxEntries bounds the cache size.
type CachedEmbedder struct {
	next  Embedder
	cache *ristretto.Cache
}

func NewCachedEmbedder(next Embedder, maxEntries int64) (*CachedEmbedder, error) {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        maxEntries * 10,
		MaxCost:            maxEntries,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &CachedEmbedder{next: next, cache: cache}, nil
}

func (c *CachedEmbedder) Dimensions() int {
	return c.next.Dimensions()
}

// Embed returns a copy so callers may not corrupt cached vectors.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		if vec, ok := v.([]float32); ok {
			return append([]float32(nil), vec...), nil
		}
	}
	vec, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(text, append([]float32(nil), vec...), 1)
	return vec, nil
}

// Wait blocks until pending cache writes are applied.
func (c *CachedEmbedder) Wait() {
	c.cache.Wait()
}

func (c *CachedEmbedder) Close() {
	c.cache.Close()
}
