package rag

import (
	"context"
	"errors"
	"sync"
)

// ---------------------------------------------------------------------------
// Test doubles shared by the rag tests
// ---------------------------------------------------------------------------

// fakeEmbedder returns a fixed vector for every input text.
type fakeEmbedder struct {
	vector []float32
	err    error
	calls  int
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vector
	}
	return out, nil
}

// fakeIndex returns canned matches and records every upsert batch.
type fakeIndex struct {
	mu       sync.Mutex
	matches  []Match
	queryErr error
	// failOnBatch makes the n-th (1-based) Upsert call fail; 0 disables.
	failOnBatch int
	batches     [][]VectorRecord
	lastTopK    int
}

func (f *fakeIndex) Upsert(_ context.Context, _ string, records []VectorRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, records)
	if f.failOnBatch > 0 && len(f.batches) == f.failOnBatch {
		return errors.New("connection reset")
	}
	return nil
}

func (f *fakeIndex) Query(_ context.Context, _ string, _ []float32, topK int) ([]Match, error) {
	f.lastTopK = topK
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.matches, nil
}

func (f *fakeIndex) Delete(context.Context, string, []string) error { return nil }
func (f *fakeIndex) Close() error                                  { return nil }
