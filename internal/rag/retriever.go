package rag

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
)

const (
	// DefaultTopK is the number of candidates requested from the index when
	// the caller does not specify one.
	DefaultTopK = 10

	// DefaultThreshold is the similarity floor below which a candidate is
	// considered irrelevant.
	DefaultThreshold = 0.5
)

// RetrieverConfig controls candidate count and the relevance floor.
type RetrieverConfig struct {
	// TopK is the default candidate count. Zero means DefaultTopK.
	TopK int

	// Threshold is the exclusive similarity floor. It is used as given, so
	// callers wanting the default must pass DefaultThreshold.
	Threshold float32
}

// Retriever embeds a question and returns the matching chunks of a namespace
// whose score is strictly above the threshold.
type Retriever struct {
	embedder  Embedder
	index     VectorIndex
	topK      int
	threshold float32
}

// NewRetriever constructs a Retriever from the given Embedder and VectorIndex.
func NewRetriever(embedder Embedder, index VectorIndex, cfg RetrieverConfig) (*Retriever, error) {
	if embedder == nil {
		return nil, errors.New("rag: embedder must not be nil")
	}
	if index == nil {
		return nil, errors.New("rag: index must not be nil")
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	return &Retriever{
		embedder:  embedder,
		index:     index,
		topK:      cfg.TopK,
		threshold: cfg.Threshold,
	}, nil
}

// Threshold returns the configured similarity floor.
func (r *Retriever) Threshold() float32 { return r.threshold }

// Retrieve returns at most topK matches from namespace scoring strictly above
// the threshold, ordered by descending score. A topK of zero or less uses the
// configured default. An empty result is not an error.
func (r *Retriever) Retrieve(ctx context.Context, question, namespace string, topK int) ([]Match, error) {
	if topK <= 0 {
		topK = r.topK
	}

	vectors, err := r.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, embeddingError("embedding question", err)
	}
	if len(vectors) != 1 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("rag: %w: expected 1 question vector, got %d", ErrEmbedding, len(vectors))
	}

	candidates, err := r.index.Query(ctx, namespace, vectors[0], topK)
	if err != nil {
		return nil, indexError("querying index", err)
	}

	kept := make([]Match, 0, len(candidates))
	for _, m := range candidates {
		if m.Score > r.threshold {
			kept = append(kept, m)
		}
	}
	slices.SortStableFunc(kept, func(a, b Match) int {
		return cmp.Compare(b.Score, a.Score)
	})
	if len(kept) > topK {
		kept = kept[:topK]
	}
	return kept, nil
}
