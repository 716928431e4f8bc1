package filestore

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

func readAll(t *testing.T, f File) string {
	t.Helper()
	b, err := io.ReadAll(io.NewSectionReader(f, 0, f.Size()))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(b)
}

// ---------------------------------------------------------------------------
// Local backend
// ---------------------------------------------------------------------------

func TestLocalStore_RoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s, err := New(ctx, Config{Backend: "local", Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	body := "hello stored document"
	if err := s.Save(ctx, "room_1/abc_notes.txt", strings.NewReader(body), int64(len(body))); err != nil {
		t.Fatalf("save: %v", err)
	}

	f, err := s.Open(ctx, "room_1/abc_notes.txt")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	if f.Size() != int64(len(body)) {
		t.Errorf("size: want %d, got %d", len(body), f.Size())
	}
	if got := readAll(t, f); got != body {
		t.Errorf("content: want %q, got %q", body, got)
	}

	if err := s.Delete(ctx, "room_1/abc_notes.txt"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Open(ctx, "room_1/abc_notes.txt"); !errors.Is(err, ErrNotFound) {
		t.Errorf("after delete: want ErrNotFound, got %v", err)
	}
	if err := s.Delete(ctx, "room_1/abc_notes.txt"); err != nil {
		t.Errorf("deleting a missing key must succeed, got %v", err)
	}
}

func TestLocalStore_RejectsUnsafeKeys(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for _, key := range []string{"", "/etc/passwd", "../escape.txt", "a/../../b", `room\x.txt`, "."} {
		if err := s.Save(ctx, key, strings.NewReader("x"), 1); err == nil {
			t.Errorf("key %q: want error", key)
		}
	}
}

func TestNew_UnknownBackend(t *testing.T) {
	t.Parallel()

	if _, err := New(context.Background(), Config{Backend: "ftp"}); err == nil {
		t.Error("want error for unknown backend")
	}
}

// ---------------------------------------------------------------------------
// S3 backend against an in-process fake
// ---------------------------------------------------------------------------

// fakeS3 serves path-style PUT, GET and DELETE object requests from memory.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.Method {
	case http.MethodPut:
		b, _ := io.ReadAll(r.Body)
		f.objects[r.URL.Path] = b
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		b, ok := f.objects[r.URL.Path]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
			return
		}
		_, _ = w.Write(b)
	case http.MethodDelete:
		delete(f.objects, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestS3Store_RoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	fake := &fakeS3{objects: map[string][]byte{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	s, err := New(ctx, Config{
		Backend:      "s3",
		Bucket:       "uploads",
		Endpoint:     srv.URL,
		AccessKey:    "test",
		SecretKey:    "test",
		Prefix:       "roomrag",
		UsePathStyle: true,
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	body := "bucket stored bytes"
	if err := s.Save(ctx, "room_2/k_file.txt", strings.NewReader(body), int64(len(body))); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, ok := fake.objects["/uploads/roomrag/room_2/k_file.txt"]; !ok {
		t.Fatalf("object not stored under prefixed key, have %v", keys(fake))
	}

	f, err := s.Open(ctx, "room_2/k_file.txt")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if got := readAll(t, f); got != body {
		t.Errorf("content: want %q, got %q", body, got)
	}

	if err := s.Delete(ctx, "room_2/k_file.txt"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(fake.objects) != 0 {
		t.Errorf("want bucket empty after delete, have %v", keys(fake))
	}
}

func keys(f *fakeS3) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.objects))
	for k := range f.objects {
		out = append(out, k)
	}
	return out
}
