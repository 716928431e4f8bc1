package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/roomrag-go/internal/chat"
	"github.com/54b3r/roomrag-go/internal/documents"
	"github.com/54b3r/roomrag-go/internal/filestore"
	"github.com/54b3r/roomrag-go/internal/ingestion"
	"github.com/54b3r/roomrag-go/internal/rag"
	"github.com/54b3r/roomrag-go/internal/store"
	"github.com/54b3r/roomrag-go/internal/synth"
)

const policyText = "Employees may work remotely two days per week with prior approval from their manager."

// fakeAnswerer is a test double for the chat orchestrator.
type fakeAnswerer struct {
	mu        sync.Mutex
	namespace string
	question  string
	ex        *chat.Exchange
	err       error
	// block waits for ctx to end before returning, for timeout tests.
	block bool
}

func (f *fakeAnswerer) Answer(ctx context.Context, question, namespace string) (*chat.Exchange, error) {
	f.mu.Lock()
	f.namespace, f.question = namespace, question
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	ex := *f.ex
	ex.Question = question
	return &ex, nil
}

// testEnv is a Server over an in-memory store, a local file store, a
// memory index and a memory queue nobody consumes.
type testEnv struct {
	srv   *Server
	db    *store.SQLiteStore
	chat  *fakeAnswerer
	index *rag.MemoryIndex
	reg   *prometheus.Registry
}

func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()
	db, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	files, err := filestore.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("filestore: %v", err)
	}
	index := rag.NewMemoryIndex()
	queue := ingestion.NewMemoryQueue(16)
	t.Cleanup(func() { _ = queue.Close() })

	docs, err := documents.NewService(documents.Config{
		Metadata:      db,
		Files:         files,
		Index:         index,
		Queue:         queue,
		MaxUploadSize: 1 << 10,
	})
	if err != nil {
		t.Fatalf("documents: %v", err)
	}

	answerer := &fakeAnswerer{ex: &chat.Exchange{
		MessageID:  7,
		Answer:     "Two days per week.",
		Sources:    []synth.Source{{DocumentID: 1, Filename: "policy.txt", Score: 0.91, ChunkText: policyText}},
		TokensUsed: 42,
		CreatedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}}

	reg := prometheus.NewRegistry()
	cfg := &Config{Metrics: NewMetrics(reg), RateLimit: 1000, RateBurst: 1000}
	if mutate != nil {
		mutate(cfg)
	}
	srv, err := New(Deps{Rooms: db, Documents: docs, Chat: answerer}, cfg)
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	t.Cleanup(srv.stopRL)
	return &testEnv{srv: srv, db: db, chat: answerer, index: index, reg: reg}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return newTestEnv(t, nil).srv
}

// do sends a request through the fully wrapped handler.
func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, req)
	return w
}

func (e *testEnv) doJSON(t *testing.T, method, path string, v any) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if v != nil {
		b, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		body = bytes.NewReader(b)
	}
	return e.do(t, method, path, body, "application/json")
}

func (e *testEnv) upload(t *testing.T, roomID int64, filename, content string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	if _, err := io.WriteString(fw, content); err != nil {
		t.Fatalf("write form: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close form: %v", err)
	}
	return e.do(t, http.MethodPost, "/api/rooms/"+strconv.FormatInt(roomID, 10)+"/documents", &buf, mw.FormDataContentType())
}

func (e *testEnv) createRoom(t *testing.T, name string) roomResponse {
	t.Helper()
	w := e.doJSON(t, http.MethodPost, "/api/rooms", createRoomRequest{Name: name, Description: "test"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create room: status %d, body %s", w.Code, w.Body.String())
	}
	var room roomResponse
	decode(t, w, &room)
	return room
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorResponse
	decode(t, w, &body)
	return body.Error
}

func TestNew_RequiresDeps(t *testing.T) {
	t.Parallel()
	if _, err := New(Deps{}, nil); err == nil {
		t.Fatal("expected error for missing deps")
	}
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()
	s := newTestEnv(t, nil).srv
	if s.httpServer.Addr != "127.0.0.1:8080" {
		t.Errorf("addr: got %q", s.httpServer.Addr)
	}
	if s.cfg.ChatTimeout != 2*time.Minute {
		t.Errorf("chat timeout: got %v", s.cfg.ChatTimeout)
	}
	if s.httpServer.WriteTimeout <= s.cfg.ChatTimeout {
		t.Errorf("write timeout %v must exceed chat timeout %v", s.httpServer.WriteTimeout, s.cfg.ChatTimeout)
	}
}

func TestStart_ShutsDownOnCancel(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, func(c *Config) { c.Port = freePort(t) })

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- env.srv.Start(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestAuth_ProtectsAPIButNotProbes(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, func(c *Config) { c.APIKey = "secret" })

	if w := env.do(t, http.MethodGet, "/api/rooms", nil, ""); w.Code != http.StatusUnauthorized {
		t.Errorf("GET /api/rooms without token: got %d", w.Code)
	}
	for _, path := range []string{"/api/health", "/api/ready", "/metrics"} {
		if w := env.do(t, http.MethodGet, path, nil, ""); w.Code != http.StatusOK {
			t.Errorf("GET %s: got %d", path, w.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/rooms", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("GET /api/rooms with token: got %d", w.Code)
	}
}
