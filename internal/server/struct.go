package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/roomrag-go/internal/chat"
	"github.com/54b3r/roomrag-go/internal/documents"
	"github.com/54b3r/roomrag-go/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// ChatTimeout bounds one chat request end to end (default: 2m).
	ChatTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [slog.Default] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on upload and
	// chat (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// Metrics receives HTTP, chat and ingestion observations. If nil a
	// private registry is used and GET /metrics serves it.
	Metrics *Metrics
}

// roomStore is the room and history side of the metadata store.
// *store.SQLiteStore satisfies it.
type roomStore interface {
	CreateRoom(ctx context.Context, name, description string) (*store.Room, error)
	GetRoom(ctx context.Context, id int64) (*store.Room, error)
	ListRooms(ctx context.Context) ([]*store.Room, error)
	History(ctx context.Context, roomID int64, limit int) ([]store.Message, error)
}

// documentService manages uploads. *documents.Service satisfies it.
type documentService interface {
	Upload(ctx context.Context, up documents.Upload) (*store.Document, error)
	Get(ctx context.Context, id int64) (*store.Document, error)
	List(ctx context.Context, roomID int64) ([]*store.Document, error)
	Delete(ctx context.Context, id int64) error
	DeleteRoom(ctx context.Context, roomID int64) error
	MaxUploadSize() int64
}

// answerer answers a question within a namespace. *chat.Orchestrator
// satisfies it; tests inject a fake.
type answerer interface {
	Answer(ctx context.Context, question, namespace string) (*chat.Exchange, error)
}

// Deps are the domain services the handlers call.
type Deps struct {
	Rooms     roomStore
	Documents documentService
	Chat      answerer
}

// Server is the HTTP server exposing rooms, documents and chat.
type Server struct {
	rooms roomStore
	docs  documentService
	chat  answerer
	// cfg holds the resolved server configuration.
	cfg *Config
	// handler is the fully wrapped root handler.
	handler http.Handler
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus collectors.
	metrics *Metrics
	// gatherer backs GET /metrics.
	gatherer prometheus.Gatherer
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// maxQuestionLength is the longest accepted chat question in characters.
const maxQuestionLength = 2000

// createRoomRequest is the JSON body for POST /api/rooms.
type createRoomRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// roomResponse describes a room.
type roomResponse struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Namespace   string    `json:"namespace"`
	CreatedAt   time.Time `json:"created_at"`
}

// uploadResponse is the JSON response for POST /api/rooms/{id}/documents.
type uploadResponse struct {
	ID            int64  `json:"id"`
	Filename      string `json:"filename"`
	FileSize      int64  `json:"file_size"`
	StatusMessage string `json:"status_message"`
}

// documentResponse describes a document and its ingestion state.
type documentResponse struct {
	DocumentID int64     `json:"document_id"`
	RoomID     int64     `json:"room_id"`
	Filename   string    `json:"filename"`
	FileSize   int64     `json:"file_size"`
	Processed  bool      `json:"processed"`
	ChunkCount int       `json:"chunk_count"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

// chatRequest is the JSON body for POST /api/rooms/{id}/chat.
type chatRequest struct {
	Question string `json:"question"`
}

// sourceResponse is one cited chunk.
type sourceResponse struct {
	DocumentID int64   `json:"document_id"`
	Filename   string  `json:"filename"`
	Score      float64 `json:"score"`
	ChunkText  string  `json:"chunk_text,omitempty"`
}

// chatResponse is the JSON response for POST /api/rooms/{id}/chat.
type chatResponse struct {
	MessageID  int64            `json:"message_id"`
	Question   string           `json:"question"`
	Answer     string           `json:"answer"`
	Sources    []sourceResponse `json:"sources"`
	TokensUsed int              `json:"tokens_used"`
	CreatedAt  time.Time        `json:"created_at"`
}

// messageResponse is one entry of GET /api/rooms/{id}/history.
type messageResponse struct {
	ID         int64            `json:"id"`
	Role       string           `json:"role"`
	Content    string           `json:"content"`
	Sources    []sourceResponse `json:"sources"`
	TokensUsed int              `json:"tokens_used"`
	CreatedAt  time.Time        `json:"created_at"`
}

// errorResponse is the body of every non-2xx API response.
type errorResponse struct {
	Error string `json:"error"`
}
