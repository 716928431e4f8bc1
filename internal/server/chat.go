package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/54b3r/roomrag-go/internal/logging"
	"github.com/54b3r/roomrag-go/internal/store"
	"github.com/54b3r/roomrag-go/internal/synth"
)

// defaultHistoryLimit is used when GET /api/rooms/{id}/history has no limit.
const defaultHistoryLimit = 100

// handleChat handles POST /api/rooms/{id}/chat. The whole request, retrieval
// and generation included, is bounded by Config.ChatTimeout.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	roomID, ok := pathID(w, r)
	if !ok {
		return
	}
	log := logging.FromContext(r.Context())

	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		writeErrorMessage(w, http.StatusBadRequest, "question is required")
		return
	}
	if utf8.RuneCountInString(question) > maxQuestionLength {
		writeErrorMessage(w, http.StatusBadRequest, "question must be at most "+strconv.Itoa(maxQuestionLength)+" characters")
		return
	}

	room, err := s.rooms.GetRoom(r.Context(), roomID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ChatTimeout)
	defer cancel()

	start := time.Now()
	ex, err := s.chat.Answer(ctx, question, room.Namespace)
	s.metrics.chatDurationSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		log.Error("server: chat failed",
			slog.Int64("room_id", roomID),
			slog.Any("error", err),
		)
		writeError(w, r, err)
		return
	}

	log.Info("server: chat answered",
		slog.Int64("room_id", roomID),
		slog.Int64("message_id", ex.MessageID),
		slog.Int("sources", len(ex.Sources)),
		slog.Int("tokens_used", ex.TokensUsed),
	)
	writeJSON(w, r, http.StatusOK, chatResponse{
		MessageID:  ex.MessageID,
		Question:   ex.Question,
		Answer:     ex.Answer,
		Sources:    fromSynthSources(ex.Sources),
		TokensUsed: ex.TokensUsed,
		CreatedAt:  ex.CreatedAt,
	})
}

// handleHistory handles GET /api/rooms/{id}/history?limit=N, oldest first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	roomID, ok := pathID(w, r)
	if !ok {
		return
	}
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeErrorMessage(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	if _, err := s.rooms.GetRoom(r.Context(), roomID); err != nil {
		writeError(w, r, err)
		return
	}
	msgs, err := s.rooms.History(r.Context(), roomID, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		resp = append(resp, messageResponse{
			ID:         m.ID,
			Role:       string(m.Role),
			Content:    m.Content,
			Sources:    fromStoreSources(m.Sources),
			TokensUsed: m.TokensUsed,
			CreatedAt:  m.CreatedAt,
		})
	}
	writeJSON(w, r, http.StatusOK, resp)
}

func fromSynthSources(src []synth.Source) []sourceResponse {
	out := make([]sourceResponse, 0, len(src))
	for _, s := range src {
		out = append(out, sourceResponse{
			DocumentID: s.DocumentID,
			Filename:   s.Filename,
			Score:      s.Score,
			ChunkText:  s.ChunkText,
		})
	}
	return out
}

func fromStoreSources(src []store.Source) []sourceResponse {
	out := make([]sourceResponse, 0, len(src))
	for _, s := range src {
		out = append(out, sourceResponse(s))
	}
	return out
}
