package embedder

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/54b3r/roomrag-go/internal/logging"
	"github.com/54b3r/roomrag-go/internal/rag"
)

// CachedEmbedder memoises embeddings per input text in an expiring LRU.
// Texts that miss are forwarded to the wrapped embedder in a single call.
type CachedEmbedder struct {
	next  rag.Embedder
	cache *expirable.LRU[string, []float32]
}

// WithCache wraps e with an LRU of size entries expiring after ttl. A
// non-positive size or ttl disables caching and returns e unchanged.
func WithCache(e rag.Embedder, size int, ttl time.Duration) rag.Embedder {
	if e == nil || size <= 0 || ttl <= 0 {
		return e
	}
	return &CachedEmbedder{
		next:  e,
		cache: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

// Embed implements rag.Embedder.
func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var (
		missTexts []string
		missIdx   []int
	)
	for i, t := range texts {
		if v, ok := c.cache.Get(t); ok {
			out[i] = slices.Clone(v)
			continue
		}
		missTexts = append(missTexts, t)
		missIdx = append(missIdx, i)
	}
	if len(missTexts) == 0 {
		logging.FromContext(ctx).Debug("embedding cache hit", "texts", len(texts))
		return out, nil
	}

	vectors, err := c.next.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missTexts) {
		return nil, fmt.Errorf("embedding cache: %w: expected %d embeddings, got %d", rag.ErrEmbedding, len(missTexts), len(vectors))
	}
	for j, v := range vectors {
		c.cache.Add(missTexts[j], slices.Clone(v))
		out[missIdx[j]] = v
	}
	return out, nil
}
