// Package ingestion turns an uploaded document into indexed vectors. The
// Pipeline runs extract, chunk, embed and upsert strictly in order for one
// document; the Worker consumes ingestion jobs from a Queue in the
// background and records each outcome on the document row.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/54b3r/roomrag-go/internal/chunker"
	"github.com/54b3r/roomrag-go/internal/extract"
	"github.com/54b3r/roomrag-go/internal/filestore"
	"github.com/54b3r/roomrag-go/internal/rag"
	"github.com/54b3r/roomrag-go/internal/store"
)

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// ChunkSize is the maximum number of characters per chunk.
	// Defaults to 1000 if zero.
	ChunkSize int

	// ChunkOverlap is the number of characters carried between consecutive
	// chunks. Defaults to 200 if zero.
	ChunkOverlap int
}

// Result summarises a successful ingestion.
type Result struct {
	// ChunkCount is the number of chunks indexed.
	ChunkCount int
	// VectorIDs lists the indexed vector IDs in chunk order.
	VectorIDs []string
	// TotalCharacters is the length of the extracted text.
	TotalCharacters int
}

// Pipeline orchestrates the extract, chunk, embed and upsert flow.
type Pipeline struct {
	// files provides access to the stored upload.
	files filestore.Store

	// embedder converts chunk texts into vectors.
	embedder rag.Embedder

	// index receives the embedded chunks.
	index rag.VectorIndex

	chunker *chunker.Chunker
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
func NewPipeline(files filestore.Store, embedder rag.Embedder, index rag.VectorIndex, cfg *Config) (*Pipeline, error) {
	if files == nil {
		return nil, errors.New("ingestion: file store must not be nil")
	}
	if embedder == nil {
		return nil, errors.New("ingestion: embedder must not be nil")
	}
	if index == nil {
		return nil, errors.New("ingestion: index must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = chunker.DefaultChunkSize
	}
	if cfg.ChunkOverlap <= 0 {
		cfg.ChunkOverlap = chunker.DefaultOverlap
	}

	return &Pipeline{
		files:    files,
		embedder: embedder,
		index:    index,
		chunker:  chunker.New(chunker.WithChunkSize(cfg.ChunkSize), chunker.WithOverlap(cfg.ChunkOverlap)),
	}, nil
}

// Process ingests doc into namespace. On error nothing is reported as
// indexed; batches already upserted may remain in the index and are
// overwritten by a later run because vector IDs are deterministic.
func (p *Pipeline) Process(ctx context.Context, doc *store.Document, namespace string) (*Result, error) {
	text, err := p.extract(ctx, doc)
	if err != nil {
		return nil, err
	}
	if err := extract.CheckContent(text); err != nil {
		return nil, fmt.Errorf("ingestion: document %d: %w", doc.ID, err)
	}

	chunks := p.chunker.Split(text)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("ingestion: document %d: %w: no chunks produced", doc.ID, extract.ErrInsufficientContent)
	}

	vectors, err := p.embedder.Embed(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("ingestion: document %d: embedding %d chunks: %w", doc.ID, len(chunks), err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("ingestion: document %d: %w: expected %d embeddings, got %d",
			doc.ID, rag.ErrEmbedding, len(chunks), len(vectors))
	}

	records := buildRecords(doc, chunks, vectors)
	if err := rag.UpsertBatched(ctx, p.index, namespace, records); err != nil {
		return nil, fmt.Errorf("ingestion: document %d: %w", doc.ID, err)
	}

	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return &Result{
		ChunkCount:      len(chunks),
		VectorIDs:       ids,
		TotalCharacters: utf8.RuneCountInString(text),
	}, nil
}

func (p *Pipeline) extract(ctx context.Context, doc *store.Document) (string, error) {
	f, err := p.files.Open(ctx, doc.FileKey)
	if err != nil {
		return "", fmt.Errorf("ingestion: document %d: %w", doc.ID, err)
	}
	defer f.Close()

	text, err := extract.Extract(ctx, doc.Filename, f, f.Size())
	if err != nil {
		return "", fmt.Errorf("ingestion: document %d: %w", doc.ID, err)
	}
	return text, nil
}

// buildRecords pairs chunk i with vector i under ID doc_{id}_chunk_{i}.
func buildRecords(doc *store.Document, chunks []string, vectors [][]float32) []rag.VectorRecord {
	records := make([]rag.VectorRecord, len(chunks))
	for i, chunk := range chunks {
		records[i] = rag.VectorRecord{
			ID:     rag.VectorID(doc.ID, i),
			Vector: vectors[i],
			Metadata: rag.Metadata{
				DocumentID: doc.ID,
				Filename:   doc.Filename,
				ChunkIndex: i,
				Text:       rag.TruncateText(chunk),
			},
		}
	}
	return records
}
