package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/54b3r/roomrag-go/internal/logging"
	"github.com/54b3r/roomrag-go/internal/store"
)

// maxRoomNameLength bounds POST /api/rooms names in characters.
const maxRoomNameLength = 200

func toRoomResponse(room *store.Room) roomResponse {
	return roomResponse{
		ID:          room.ID,
		Name:        room.Name,
		Description: room.Description,
		Namespace:   room.Namespace,
		CreatedAt:   room.CreatedAt,
	}
}

// handleCreateRoom handles POST /api/rooms.
func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeErrorMessage(w, http.StatusBadRequest, "name is required")
		return
	}
	if len([]rune(req.Name)) > maxRoomNameLength {
		writeErrorMessage(w, http.StatusBadRequest, "name must be at most "+strconv.Itoa(maxRoomNameLength)+" characters")
		return
	}

	room, err := s.rooms.CreateRoom(r.Context(), req.Name, strings.TrimSpace(req.Description))
	if err != nil {
		writeError(w, r, err)
		return
	}
	logging.FromContext(r.Context()).Info("server: room created",
		slog.Int64("room_id", room.ID),
		slog.String("namespace", room.Namespace),
	)
	writeJSON(w, r, http.StatusCreated, toRoomResponse(room))
}

// handleListRooms handles GET /api/rooms.
func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.rooms.ListRooms(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := make([]roomResponse, 0, len(rooms))
	for _, room := range rooms {
		resp = append(resp, toRoomResponse(room))
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// handleGetRoom handles GET /api/rooms/{id}.
func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	room, err := s.rooms.GetRoom(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toRoomResponse(room))
}

// handleDeleteRoom handles DELETE /api/rooms/{id}. Every document is
// purged best effort before the room row goes.
func (s *Server) handleDeleteRoom(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.docs.DeleteRoom(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	logging.FromContext(r.Context()).Info("server: room deleted", slog.Int64("room_id", id))
	w.WriteHeader(http.StatusNoContent)
}
