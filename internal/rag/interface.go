// Package rag defines the retrieval-side building blocks of the system:
// embedding, namespaced vector storage and threshold-filtered retrieval.
// Concrete backends (Qdrant, in-process memory) satisfy VectorIndex so the
// ingestion and chat layers never depend on a specific store.
package rag

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"
)

// MaxMetadataText is the maximum number of characters of chunk text stored
// alongside a vector.
const MaxMetadataText = 1000

var (
	// ErrEmbedding classifies failures of the embedding service.
	ErrEmbedding = errors.New("embedding service error")

	// ErrVectorIndex classifies failures of the vector index.
	ErrVectorIndex = errors.New("vector index error")
)

// Metadata is stored with every vector and returned with every match.
type Metadata struct {
	// DocumentID is the owning document.
	DocumentID int64

	// Filename is the display filename of the owning document.
	Filename string

	// ChunkIndex is the 0-based ordinal of the chunk within the document.
	ChunkIndex int

	// Text is the chunk text, truncated to MaxMetadataText characters.
	Text string
}

// VectorRecord is one embedded chunk ready for upsert.
type VectorRecord struct {
	// ID is the deterministic vector ID, see VectorID.
	ID string

	// Vector is the embedding of the chunk text.
	Vector []float32

	// Metadata describes the chunk the vector was computed from.
	Metadata Metadata
}

// Match is a single similarity hit. Higher Score means more similar.
type Match struct {
	ID    string
	Score float32
	Metadata
}

// Embedder converts texts into dense vectors.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorIndex is a namespaced similarity index. Operations in one namespace
// never observe records of another.
// Implementations must be safe to call from multiple goroutines.
type VectorIndex interface {
	// Upsert inserts or replaces records by ID within namespace.
	Upsert(ctx context.Context, namespace string, records []VectorRecord) error

	// Query returns at most topK matches in descending score order.
	Query(ctx context.Context, namespace string, vector []float32, topK int) ([]Match, error)

	// Delete removes the given vector IDs from namespace. Unknown IDs are ignored.
	Delete(ctx context.Context, namespace string, ids []string) error

	// Close releases any resources held by the index.
	Close() error
}

// VectorID returns the vector ID of the ordinal-th chunk of a document.
func VectorID(documentID int64, ordinal int) string {
	return fmt.Sprintf("doc_%d_chunk_%d", documentID, ordinal)
}

// TruncateText cuts s to at most MaxMetadataText characters.
func TruncateText(s string) string {
	if utf8.RuneCountInString(s) <= MaxMetadataText {
		return s
	}
	r := []rune(s)
	return string(r[:MaxMetadataText])
}

// indexError classifies err as ErrVectorIndex unless it already is.
func indexError(op string, err error) error {
	if errors.Is(err, ErrVectorIndex) {
		return fmt.Errorf("rag: %s: %w", op, err)
	}
	return fmt.Errorf("rag: %s: %w: %w", op, ErrVectorIndex, err)
}

// embeddingError classifies err as ErrEmbedding unless it already is.
func embeddingError(op string, err error) error {
	if errors.Is(err, ErrEmbedding) {
		return fmt.Errorf("rag: %s: %w", op, err)
	}
	return fmt.Errorf("rag: %s: %w: %w", op, ErrEmbedding, err)
}
