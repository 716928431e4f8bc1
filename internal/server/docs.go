package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/54b3r/roomrag-go/internal/documents"
	"github.com/54b3r/roomrag-go/internal/logging"
	"github.com/54b3r/roomrag-go/internal/store"
)

// uploadAccepted is the status_message of a successful upload.
const uploadAccepted = "File uploaded successfully. Processing..."

// multipartOverhead is the slack allowed above the file size limit for
// multipart framing and headers.
const multipartOverhead = 1 << 20

func toDocumentResponse(d *store.Document) documentResponse {
	return documentResponse{
		DocumentID: d.ID,
		RoomID:     d.RoomID,
		Filename:   d.Filename,
		FileSize:   d.FileSize,
		Processed:  d.Processed(),
		ChunkCount: d.ChunkCount,
		Status:     documents.StatusLabel(d),
		CreatedAt:  d.CreatedAt,
	}
}

// handleUpload handles POST /api/rooms/{id}/documents. The file arrives in
// the multipart field "file"; ingestion runs asynchronously after 201.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	roomID, ok := pathID(w, r)
	if !ok {
		return
	}
	log := logging.FromContext(r.Context())

	limit := s.docs.MaxUploadSize()
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, documents.ErrFileTooLarge)
			return
		}
		writeErrorMessage(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, `multipart field "file" is required`)
		return
	}
	defer file.Close()

	doc, err := s.docs.Upload(r.Context(), documents.Upload{
		RoomID:   roomID,
		Filename: header.Filename,
		MimeType: header.Header.Get("Content-Type"),
		Body:     file,
	})
	if err != nil {
		log.Warn("server: upload rejected",
			slog.Int64("room_id", roomID),
			slog.String("filename", header.Filename),
			slog.Any("error", err),
		)
		writeError(w, r, err)
		return
	}

	log.Info("server: document accepted",
		slog.Int64("room_id", roomID),
		slog.Int64("document_id", doc.ID),
		slog.Int64("file_size", doc.FileSize),
	)
	writeJSON(w, r, http.StatusCreated, uploadResponse{
		ID:            doc.ID,
		Filename:      doc.Filename,
		FileSize:      doc.FileSize,
		StatusMessage: uploadAccepted,
	})
}

// handleListDocuments handles GET /api/rooms/{id}/documents.
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	roomID, ok := pathID(w, r)
	if !ok {
		return
	}
	docs, err := s.docs.List(r.Context(), roomID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := make([]documentResponse, 0, len(docs))
	for _, d := range docs {
		resp = append(resp, toDocumentResponse(d))
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// handleGetDocument handles GET /api/documents/{id}.
func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	doc, err := s.docs.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toDocumentResponse(doc))
}

// handleDeleteDocument handles DELETE /api/documents/{id}. It answers 204
// even when the vectors could not be removed.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.docs.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
