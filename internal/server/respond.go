package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/54b3r/roomrag-go/internal/documents"
	"github.com/54b3r/roomrag-go/internal/extract"
	"github.com/54b3r/roomrag-go/internal/logging"
	"github.com/54b3r/roomrag-go/internal/rag"
	"github.com/54b3r/roomrag-go/internal/store"
	"github.com/54b3r/roomrag-go/internal/synth"
)

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("server: failed to encode response", slog.Any("error", err))
	}
}

// writeErrorMessage writes {"error": msg} with the given status.
func writeErrorMessage(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: msg})
}

// writeError maps err onto an HTTP status. Client errors echo the error
// text; upstream and internal failures are logged and answered with a
// generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	log := logging.FromContext(r.Context())
	var tooLarge *http.MaxBytesError

	switch {
	case errors.Is(err, store.ErrNotFound):
		writeErrorMessage(w, http.StatusNotFound, err.Error())
	case errors.Is(err, documents.ErrFileTooLarge), errors.As(err, &tooLarge):
		writeErrorMessage(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, extract.ErrUnsupportedFormat),
		errors.Is(err, extract.ErrInsufficientContent),
		errors.Is(err, extract.ErrExtractionFailure),
		errors.Is(err, documents.ErrInvalidFilename):
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		log.Warn("server: request timed out", slog.Any("error", err))
		writeErrorMessage(w, http.StatusGatewayTimeout, "request timed out")
	case errors.Is(err, rag.ErrEmbedding),
		errors.Is(err, rag.ErrVectorIndex),
		errors.Is(err, synth.ErrGeneration):
		log.Error("server: upstream failure", slog.Any("error", err))
		writeErrorMessage(w, http.StatusBadGateway, "upstream service unavailable")
	default:
		log.Error("server: internal error", slog.Any("error", err))
		writeErrorMessage(w, http.StatusInternalServerError, "internal server error")
	}
}

// pathID parses the {id} path segment. On failure it writes 400 and
// returns false.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeErrorMessage(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}
