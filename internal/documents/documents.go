// Package documents implements the document lifecycle of a room: validated
// upload, queued ingestion, status reporting and best-effort deletion of the
// stored file and its vectors.
package documents

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/54b3r/roomrag-go/internal/extract"
	"github.com/54b3r/roomrag-go/internal/filestore"
	"github.com/54b3r/roomrag-go/internal/ingestion"
	"github.com/54b3r/roomrag-go/internal/logging"
	"github.com/54b3r/roomrag-go/internal/rag"
	"github.com/54b3r/roomrag-go/internal/store"
)

// DefaultMaxUploadSize is the largest accepted upload in bytes (50 MiB).
const DefaultMaxUploadSize int64 = 50 << 20

var (
	// ErrFileTooLarge is returned when an upload exceeds the size limit.
	ErrFileTooLarge = errors.New("file too large")

	// ErrInvalidFilename is returned when an upload has no usable filename.
	ErrInvalidFilename = errors.New("invalid filename")
)

// Status labels exposed to API clients.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Metadata is the subset of the metadata store the service needs.
type Metadata interface {
	GetRoom(ctx context.Context, id int64) (*store.Room, error)
	DeleteRoom(ctx context.Context, id int64) error
	CreateDocument(ctx context.Context, d *store.Document) error
	GetDocument(ctx context.Context, id int64) (*store.Document, error)
	ListDocuments(ctx context.Context, roomID int64) ([]*store.Document, error)
	MarkFailed(ctx context.Context, id int64) error
	DeleteDocument(ctx context.Context, id int64) error
}

// Config holds the Service dependencies.
type Config struct {
	Metadata Metadata
	Files    filestore.Store
	Index    rag.VectorIndex
	Queue    ingestion.Queue
	// MaxUploadSize defaults to DefaultMaxUploadSize.
	MaxUploadSize int64
}

// Service manages documents.
type Service struct {
	meta    Metadata
	files   filestore.Store
	index   rag.VectorIndex
	queue   ingestion.Queue
	maxSize int64
}

// NewService returns a Service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Metadata == nil || cfg.Files == nil || cfg.Index == nil || cfg.Queue == nil {
		return nil, errors.New("documents: metadata, files, index and queue are required")
	}
	s := &Service{
		meta:    cfg.Metadata,
		files:   cfg.Files,
		index:   cfg.Index,
		queue:   cfg.Queue,
		maxSize: cfg.MaxUploadSize,
	}
	if s.maxSize <= 0 {
		s.maxSize = DefaultMaxUploadSize
	}
	return s, nil
}

// MaxUploadSize returns the configured upload limit in bytes.
func (s *Service) MaxUploadSize() int64 { return s.maxSize }

// Upload is one file submitted to a room.
type Upload struct {
	RoomID   int64
	Filename string
	MimeType string
	Body     io.Reader
}

// Upload validates the file, stores it, records an unprocessed document and
// queues it for ingestion. Validation covers the extension, the size limit
// and the amount of extractable text, and runs before anything is persisted.
func (s *Service) Upload(ctx context.Context, up Upload) (*store.Document, error) {
	log := logging.FromContext(ctx).With(slog.Int64("room_id", up.RoomID))

	if _, err := s.meta.GetRoom(ctx, up.RoomID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(up.Filename) == "" {
		return nil, fmt.Errorf("documents: %w", ErrInvalidFilename)
	}
	if _, err := extract.KindFor(up.Filename); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(up.Body, s.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("documents: read upload: %w", err)
	}
	if int64(len(body)) > s.maxSize {
		return nil, fmt.Errorf("documents: %w: maximum is %.1f MB", ErrFileTooLarge, float64(s.maxSize)/(1<<20))
	}
	size := int64(len(body))
	r := bytes.NewReader(body)

	text, err := extract.Extract(ctx, up.Filename, r, size)
	if err != nil {
		log.Warn("documents: upload rejected, unreadable file",
			slog.String("filename", up.Filename), slog.Any("error", err))
		return nil, err
	}
	if err := extract.CheckContent(text); err != nil {
		return nil, err
	}

	name := SanitizeFilename(up.Filename)
	key := fmt.Sprintf("room_%d/%s_%s", up.RoomID, uniqueID(), name)
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("documents: rewind upload: %w", err)
	}
	if err := s.files.Save(ctx, key, r, size); err != nil {
		return nil, fmt.Errorf("documents: save file: %w", err)
	}

	doc := &store.Document{
		RoomID:   up.RoomID,
		Filename: name,
		FileKey:  key,
		FileSize: size,
		MimeType: up.MimeType,
		Status:   store.StatusUnprocessed,
	}
	if err := s.meta.CreateDocument(ctx, doc); err != nil {
		s.removeFile(ctx, key)
		return nil, err
	}

	if err := s.queue.Enqueue(ctx, ingestion.Job{DocumentID: doc.ID}); err != nil {
		log.Error("documents: could not queue ingestion",
			slog.Int64("document_id", doc.ID), slog.Any("error", err))
		if mErr := s.meta.MarkFailed(context.WithoutCancel(ctx), doc.ID); mErr != nil {
			log.Error("documents: could not mark document failed", slog.Any("error", mErr))
		}
		return nil, fmt.Errorf("documents: queue ingestion: %w", err)
	}

	log.Info("documents: upload accepted",
		slog.Int64("document_id", doc.ID),
		slog.String("filename", name),
		slog.Int64("file_size", size),
	)
	return doc, nil
}

// Requeue queues an existing document for ingestion again.
func (s *Service) Requeue(ctx context.Context, id int64) error {
	if _, err := s.meta.GetDocument(ctx, id); err != nil {
		return err
	}
	if err := s.queue.Enqueue(ctx, ingestion.Job{DocumentID: id}); err != nil {
		return fmt.Errorf("documents: queue ingestion: %w", err)
	}
	return nil
}

// Get returns the document with id.
func (s *Service) Get(ctx context.Context, id int64) (*store.Document, error) {
	return s.meta.GetDocument(ctx, id)
}

// List returns the documents of a room.
func (s *Service) List(ctx context.Context, roomID int64) ([]*store.Document, error) {
	if _, err := s.meta.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}
	return s.meta.ListDocuments(ctx, roomID)
}

// Delete removes a document. Vector and file removal are best effort: a
// failure is logged and the metadata row is deleted regardless.
func (s *Service) Delete(ctx context.Context, id int64) error {
	doc, err := s.meta.GetDocument(ctx, id)
	if err != nil {
		return err
	}
	room, err := s.meta.GetRoom(ctx, doc.RoomID)
	if err != nil {
		return err
	}
	s.purge(ctx, room, doc)
	return s.meta.DeleteDocument(ctx, id)
}

// DeleteRoom removes every document of a room best effort, then the room and
// its history.
func (s *Service) DeleteRoom(ctx context.Context, roomID int64) error {
	room, err := s.meta.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	docs, err := s.meta.ListDocuments(ctx, roomID)
	if err != nil {
		return err
	}
	for _, d := range docs {
		s.purge(ctx, room, d)
	}
	return s.meta.DeleteRoom(ctx, roomID)
}

// purge deletes the vectors and stored file of doc, logging failures.
func (s *Service) purge(ctx context.Context, room *store.Room, doc *store.Document) {
	log := logging.FromContext(ctx).With(slog.Int64("document_id", doc.ID))
	if len(doc.VectorIDs) > 0 {
		if err := s.index.Delete(ctx, room.Namespace, doc.VectorIDs); err != nil {
			log.Warn("documents: vector deletion failed, vectors orphaned",
				slog.String("namespace", room.Namespace),
				slog.Int("orphaned_vectors", len(doc.VectorIDs)),
				slog.Any("error", err),
			)
		} else {
			log.Info("documents: deleted vectors", slog.Int("vectors", len(doc.VectorIDs)))
		}
	}
	s.removeFile(ctx, doc.FileKey)
}

func (s *Service) removeFile(ctx context.Context, key string) {
	if err := s.files.Delete(ctx, key); err != nil && !errors.Is(err, filestore.ErrNotFound) {
		logging.FromContext(ctx).Warn("documents: could not delete stored file",
			slog.String("file_key", key), slog.Any("error", err))
	}
}

// StatusLabel maps the ingestion state of d onto the client-facing label.
func StatusLabel(d *store.Document) string {
	switch d.Status {
	case store.StatusProcessed:
		return StatusCompleted
	case store.StatusFailed:
		return StatusFailed
	default:
		return StatusPending
	}
}

// SanitizeFilename reduces name to a safe base name: characters other than
// letters, digits, underscore, whitespace, dot and hyphen are removed,
// whitespace becomes "_" and ".." sequences are dropped. The extension is
// cleaned separately so it survives; a name left without a stem becomes
// "document" plus its extension.
func SanitizeFilename(name string) string {
	ext := filepath.Ext(name)
	stem := strings.TrimRight(cleanName(strings.TrimSuffix(name, ext)), ".")
	ext = "." + strings.Trim(cleanName(ext), ".")
	if ext == "." {
		ext = ""
	}
	if strings.Trim(stem, "._-") == "" {
		stem = "document"
	}
	return stem + ext
}

func cleanName(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			b.WriteByte('_')
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '_', r == '.', r == '-':
			b.WriteRune(r)
		}
	}
	out := b.String()
	for strings.Contains(out, "..") {
		out = strings.ReplaceAll(out, "..", "")
	}
	return out
}

func uniqueID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:4])
}
