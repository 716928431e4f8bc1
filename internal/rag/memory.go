package rag

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"sync"
)

// MemoryIndex is an in-process brute-force VectorIndex using cosine
// similarity. It is intended for development and tests; contents are lost on
// process exit.
type MemoryIndex struct {
	mu         sync.RWMutex
	namespaces map[string]map[string]VectorRecord
}

// NewMemoryIndex returns an empty MemoryIndex.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{namespaces: make(map[string]map[string]VectorRecord)}
}

// Upsert implements VectorIndex.
func (m *MemoryIndex) Upsert(_ context.Context, namespace string, records []VectorRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ns, ok := m.namespaces[namespace]
	if !ok {
		ns = make(map[string]VectorRecord)
		m.namespaces[namespace] = ns
	}
	for _, r := range records {
		if r.ID == "" {
			return fmt.Errorf("memory index: %w: record without id", ErrVectorIndex)
		}
		if len(r.Vector) == 0 {
			return fmt.Errorf("memory index: %w: record %q has empty vector", ErrVectorIndex, r.ID)
		}
		r.Vector = slices.Clone(r.Vector)
		ns[r.ID] = r
	}
	return nil
}

// Query implements VectorIndex. Ties are broken by vector ID so results are
// deterministic.
func (m *MemoryIndex) Query(_ context.Context, namespace string, vector []float32, topK int) ([]Match, error) {
	if topK <= 0 {
		return []Match{}, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	ns := m.namespaces[namespace]
	matches := make([]Match, 0, len(ns))
	for id, r := range ns {
		if len(r.Vector) != len(vector) {
			return nil, fmt.Errorf("memory index: %w: dimension mismatch: query %d, stored %d",
				ErrVectorIndex, len(vector), len(r.Vector))
		}
		matches = append(matches, Match{ID: id, Score: cosine(vector, r.Vector), Metadata: r.Metadata})
	}

	slices.SortFunc(matches, func(a, b Match) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// Delete implements VectorIndex.
func (m *MemoryIndex) Delete(_ context.Context, namespace string, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ns := m.namespaces[namespace]
	for _, id := range ids {
		delete(ns, id)
	}
	return nil
}

// Len returns the number of vectors stored in namespace.
func (m *MemoryIndex) Len(namespace string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.namespaces[namespace])
}

// Close implements VectorIndex.
func (m *MemoryIndex) Close() error { return nil }

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
