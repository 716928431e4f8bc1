package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Status is the ingestion state of a document.
type Status string

const (
	// StatusUnprocessed is the state between upload and ingestion outcome.
	StatusUnprocessed Status = "unprocessed"
	// StatusProcessed means the document's vectors are in the index.
	StatusProcessed Status = "processed"
	// StatusFailed means ingestion ran and failed; no vectors are recorded.
	StatusFailed Status = "failed"
)

// Document is an uploaded file belonging to a room. VectorIDs is non-empty
// exactly when Status is StatusProcessed.
type Document struct {
	ID         int64
	RoomID     int64
	Filename   string
	FileKey    string
	FileSize   int64
	MimeType   string
	Status     Status
	ChunkCount int
	VectorIDs  []string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Processed reports whether ingestion completed successfully.
func (d *Document) Processed() bool { return d.Status == StatusProcessed }

const documentColumns = `id, room_id, filename, file_key, file_size, mime_type, status, chunk_count, vector_ids, created_at, updated_at`

func scanDocument(sc scanner) (*Document, error) {
	var (
		d            Document
		status, ids  string
		created, upd int64
	)
	err := sc.Scan(&d.ID, &d.RoomID, &d.Filename, &d.FileKey, &d.FileSize, &d.MimeType,
		&status, &d.ChunkCount, &ids, &created, &upd)
	if err != nil {
		return nil, err
	}
	d.Status = Status(status)
	if err := json.Unmarshal([]byte(ids), &d.VectorIDs); err != nil {
		return nil, fmt.Errorf("decode vector_ids of document %d: %w", d.ID, err)
	}
	d.CreatedAt = fromMillis(created)
	d.UpdatedAt = fromMillis(upd)
	return &d, nil
}

// CreateDocument inserts d as unprocessed and sets its ID and timestamps.
func (s *SQLiteStore) CreateDocument(ctx context.Context, d *Document) error {
	now := s.timestamp()
	d.Status = StatusUnprocessed
	d.ChunkCount = 0
	d.VectorIDs = nil
	const q = `INSERT INTO documents (room_id, filename, file_key, file_size, mime_type, status, chunk_count, vector_ids, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, 0, '[]', ?, ?)`
	res, err := s.db.ExecContext(ctx, q, d.RoomID, d.Filename, d.FileKey, d.FileSize, d.MimeType, string(d.Status), now, now)
	if err != nil {
		return fmt.Errorf("store: create document: %w", err)
	}
	if d.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("store: create document id: %w", err)
	}
	d.CreatedAt = fromMillis(now)
	d.UpdatedAt = d.CreatedAt
	return nil
}

// GetDocument returns the document with the given id or ErrNotFound.
func (s *SQLiteStore) GetDocument(ctx context.Context, id int64) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	d, err := scanDocument(row)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("document %d", id))
	}
	return d, nil
}

// ListDocuments returns the documents of a room, newest first.
func (s *SQLiteStore) ListDocuments(ctx context.Context, roomID int64) ([]*Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE room_id = ? ORDER BY id DESC`, roomID)
	if err != nil {
		return nil, fmt.Errorf("store: list documents: %w", err)
	}
	defer rows.Close()

	docs := []*Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("store: list documents scan: %w", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list documents rows: %w", err)
	}
	return docs, nil
}

// MarkProcessed records a successful ingestion.
func (s *SQLiteStore) MarkProcessed(ctx context.Context, id int64, chunkCount int, vectorIDs []string) error {
	if len(vectorIDs) == 0 {
		return errors.New("store: mark processed: vector ids must not be empty")
	}
	ids, err := json.Marshal(vectorIDs)
	if err != nil {
		return fmt.Errorf("store: mark processed: encode vector ids: %w", err)
	}
	return s.setOutcome(ctx, id, StatusProcessed, chunkCount, string(ids))
}

// MarkFailed records a failed ingestion and clears any recorded vectors.
func (s *SQLiteStore) MarkFailed(ctx context.Context, id int64) error {
	return s.setOutcome(ctx, id, StatusFailed, 0, "[]")
}

func (s *SQLiteStore) setOutcome(ctx context.Context, id int64, status Status, chunks int, ids string) error {
	const q = `UPDATE documents SET status = ?, chunk_count = ?, vector_ids = ?, updated_at = ? WHERE id = ?`
	res, err := s.db.ExecContext(ctx, q, string(status), chunks, ids, s.timestamp(), id)
	if err != nil {
		return fmt.Errorf("store: mark document %d %s: %w", id, status, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: document %d: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteDocument removes the document row.
func (s *SQLiteStore) DeleteDocument(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete document %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: document %d: %w", id, ErrNotFound)
	}
	return nil
}
