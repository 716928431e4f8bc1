package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/54b3r/roomrag-go/internal/chunker"
	"github.com/54b3r/roomrag-go/internal/extract"
	"github.com/54b3r/roomrag-go/internal/filestore"
	"github.com/54b3r/roomrag-go/internal/rag"
	"github.com/54b3r/roomrag-go/internal/store"
)

// ---------------------------------------------------------------------------
// Test doubles
// ---------------------------------------------------------------------------

// fakeEmbedder returns a constant two-dimensional vector per text.
type fakeEmbedder struct {
	err   error
	short bool
	calls atomic.Int32
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	n := len(texts)
	if f.short {
		n--
	}
	out := make([][]float32, n)
	for i := range out {
		out[i] = []float32{1, float32(i)}
	}
	return out, nil
}

// failingIndex wraps a MemoryIndex and fails every Upsert.
type failingIndex struct{ *rag.MemoryIndex }

func (failingIndex) Upsert(context.Context, string, []rag.VectorRecord) error {
	return errors.New("index unavailable")
}

type fixture struct {
	files filestore.Store
	db    *store.SQLiteStore
	index *rag.MemoryIndex
	room  *store.Room
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	files, err := filestore.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("filestore: %v", err)
	}
	db, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	room, err := db.CreateRoom(context.Background(), "test", "")
	if err != nil {
		t.Fatalf("room: %v", err)
	}
	return &fixture{files: files, db: db, index: rag.NewMemoryIndex(), room: room}
}

// addDocument stores body under filename and inserts an unprocessed row.
func (f *fixture) addDocument(t *testing.T, filename, body string) *store.Document {
	t.Helper()
	ctx := context.Background()
	key := fmt.Sprintf("room_%d/%s", f.room.ID, filename)
	if err := f.files.Save(ctx, key, strings.NewReader(body), int64(len(body))); err != nil {
		t.Fatalf("save: %v", err)
	}
	doc := &store.Document{RoomID: f.room.ID, Filename: filename, FileKey: key, FileSize: int64(len(body))}
	if err := f.db.CreateDocument(ctx, doc); err != nil {
		t.Fatalf("create document: %v", err)
	}
	return doc
}

func (f *fixture) pipeline(t *testing.T, emb rag.Embedder, idx rag.VectorIndex) *Pipeline {
	t.Helper()
	p, err := NewPipeline(f.files, emb, idx, &Config{ChunkSize: 100, ChunkOverlap: 20})
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	return p
}

func longText(words int) string {
	var sb strings.Builder
	for i := range words {
		fmt.Fprintf(&sb, "word%03d ", i)
	}
	return sb.String()
}

// ---------------------------------------------------------------------------
// Pipeline
// ---------------------------------------------------------------------------

func TestPipeline_ProcessIndexesChunks(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	doc := f.addDocument(t, "notes.txt", longText(60))

	res, err := f.pipeline(t, &fakeEmbedder{}, f.index).Process(context.Background(), doc, f.room.Namespace)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.ChunkCount < 2 || len(res.VectorIDs) != res.ChunkCount {
		t.Fatalf("unexpected result %+v", res)
	}
	for i, id := range res.VectorIDs {
		if id != rag.VectorID(doc.ID, i) {
			t.Errorf("vector %d: want %s, got %s", i, rag.VectorID(doc.ID, i), id)
		}
	}
	if n := f.index.Len(f.room.Namespace); n != res.ChunkCount {
		t.Errorf("want %d vectors indexed, got %d", res.ChunkCount, n)
	}
	if res.TotalCharacters != len(longText(60)) {
		t.Errorf("total characters: want %d, got %d", len(longText(60)), res.TotalCharacters)
	}
}

func TestPipeline_SingleEmbedCall(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	doc := f.addDocument(t, "notes.txt", longText(200))

	emb := &fakeEmbedder{}
	if _, err := f.pipeline(t, emb, f.index).Process(context.Background(), doc, f.room.Namespace); err != nil {
		t.Fatalf("process: %v", err)
	}
	if emb.calls.Load() != 1 {
		t.Errorf("want one embed call for all chunks, got %d", emb.calls.Load())
	}
}

func TestPipeline_InsufficientContent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	doc := f.addDocument(t, "tiny.txt", "too short")

	emb := &fakeEmbedder{}
	_, err := f.pipeline(t, emb, f.index).Process(context.Background(), doc, f.room.Namespace)
	if !errors.Is(err, extract.ErrInsufficientContent) {
		t.Fatalf("want ErrInsufficientContent, got %v", err)
	}
	if emb.calls.Load() != 0 {
		t.Error("embedder must not be called for rejected content")
	}
}

func TestPipeline_EmbeddingFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	doc := f.addDocument(t, "notes.txt", longText(60))

	_, err := f.pipeline(t, &fakeEmbedder{err: fmt.Errorf("%w: quota", rag.ErrEmbedding)}, f.index).
		Process(context.Background(), doc, f.room.Namespace)
	if !errors.Is(err, rag.ErrEmbedding) {
		t.Fatalf("want ErrEmbedding, got %v", err)
	}
	if n := f.index.Len(f.room.Namespace); n != 0 {
		t.Errorf("want nothing indexed, got %d", n)
	}
}

func TestPipeline_EmbeddingCountMismatch(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	doc := f.addDocument(t, "notes.txt", longText(60))

	_, err := f.pipeline(t, &fakeEmbedder{short: true}, f.index).Process(context.Background(), doc, f.room.Namespace)
	if !errors.Is(err, rag.ErrEmbedding) {
		t.Fatalf("want ErrEmbedding, got %v", err)
	}
}

func TestPipeline_IndexFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	doc := f.addDocument(t, "notes.txt", longText(60))

	_, err := f.pipeline(t, &fakeEmbedder{}, failingIndex{rag.NewMemoryIndex()}).
		Process(context.Background(), doc, f.room.Namespace)
	if !errors.Is(err, rag.ErrVectorIndex) {
		t.Fatalf("want ErrVectorIndex, got %v", err)
	}
}

func TestPipeline_MissingFile(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	doc := &store.Document{ID: 5, Filename: "gone.txt", FileKey: "room_1/gone.txt"}

	_, err := f.pipeline(t, &fakeEmbedder{}, f.index).Process(context.Background(), doc, f.room.Namespace)
	if !errors.Is(err, filestore.ErrNotFound) {
		t.Fatalf("want filestore.ErrNotFound, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Worker
// ---------------------------------------------------------------------------

func TestWorker_HandleMarksProcessed(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	doc := f.addDocument(t, "notes.txt", longText(60))

	var outcomes []string
	w := NewWorker(NewMemoryQueue(1), f.pipeline(t, &fakeEmbedder{}, f.index), f.db, WorkerConfig{
		OnOutcome: func(o string, _ int) { outcomes = append(outcomes, o) },
	})
	if err := w.Handle(context.Background(), Job{DocumentID: doc.ID}); err != nil {
		t.Fatalf("handle: %v", err)
	}

	got, _ := f.db.GetDocument(context.Background(), doc.ID)
	if !got.Processed() || got.ChunkCount == 0 || len(got.VectorIDs) != got.ChunkCount {
		t.Errorf("want processed document with vectors, got %+v", got)
	}
	if len(outcomes) != 1 || outcomes[0] != OutcomeProcessed {
		t.Errorf("unexpected outcomes %v", outcomes)
	}
}

// TestWorker_TenThousandCharacterDocument ingests a 10,000 character text
// file with the default chunking parameters.
func TestWorker_TenThousandCharacterDocument(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	body := longText(1250)[:10000]
	doc := f.addDocument(t, "long.txt", body)

	p, err := NewPipeline(f.files, &fakeEmbedder{}, f.index, &Config{})
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	w := NewWorker(NewMemoryQueue(1), p, f.db, WorkerConfig{})
	if err := w.Handle(context.Background(), Job{DocumentID: doc.ID}); err != nil {
		t.Fatalf("handle: %v", err)
	}

	chunks := chunker.New().Split(body)
	if len(chunks) < 10 {
		t.Fatalf("want at least 10 chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if n := utf8.RuneCountInString(c); n > chunker.DefaultChunkSize {
			t.Errorf("chunk %d: %d characters exceeds %d", i, n, chunker.DefaultChunkSize)
		}
	}

	got, _ := f.db.GetDocument(context.Background(), doc.ID)
	if !got.Processed() || got.ChunkCount != len(chunks) {
		t.Errorf("want processed with %d chunks, got %+v", len(chunks), got)
	}
	if n := f.index.Len(f.room.Namespace); n != len(chunks) {
		t.Errorf("want %d vectors indexed, got %d", len(chunks), n)
	}
}

// TestWorker_FailureMarksFailed covers an unreadable upload: the document
// ends up failed with no vectors and nothing in the index.
func TestWorker_FailureMarksFailed(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	doc := f.addDocument(t, "scan.pdf", "definitely not a pdf but long enough to pass any size checks at all")

	w := NewWorker(NewMemoryQueue(1), f.pipeline(t, &fakeEmbedder{}, f.index), f.db, WorkerConfig{})
	err := w.Handle(context.Background(), Job{DocumentID: doc.ID})
	if !errors.Is(err, extract.ErrExtractionFailure) {
		t.Fatalf("want ErrExtractionFailure, got %v", err)
	}

	got, _ := f.db.GetDocument(context.Background(), doc.ID)
	if got.Status != store.StatusFailed || len(got.VectorIDs) != 0 || got.ChunkCount != 0 {
		t.Errorf("want failed document without vectors, got %+v", got)
	}
	if n := f.index.Len(f.room.Namespace); n != 0 {
		t.Errorf("want empty index, got %d", n)
	}
}

func TestWorker_UnknownDocumentSkipped(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	w := NewWorker(NewMemoryQueue(1), f.pipeline(t, &fakeEmbedder{}, f.index), f.db, WorkerConfig{})
	if err := w.Handle(context.Background(), Job{DocumentID: 404}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("want store.ErrNotFound, got %v", err)
	}
}

// blockingProcessor parks every Process call until release is closed.
type blockingProcessor struct {
	started chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (b *blockingProcessor) Process(ctx context.Context, doc *store.Document, _ string) (*Result, error) {
	b.calls.Add(1)
	b.started <- struct{}{}
	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &Result{ChunkCount: 1, VectorIDs: []string{rag.VectorID(doc.ID, 0)}}, nil
}

func TestWorker_DuplicateInFlightDropped(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	doc := f.addDocument(t, "notes.txt", longText(60))

	proc := &blockingProcessor{started: make(chan struct{}, 1), release: make(chan struct{})}
	w := NewWorker(NewMemoryQueue(1), proc, f.db, WorkerConfig{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = w.Handle(context.Background(), Job{DocumentID: doc.ID})
	}()
	<-proc.started

	if err := w.Handle(context.Background(), Job{DocumentID: doc.ID}); !errors.Is(err, ErrInFlight) {
		t.Errorf("want ErrInFlight for duplicate, got %v", err)
	}
	close(proc.release)
	wg.Wait()

	if proc.calls.Load() != 1 {
		t.Errorf("want exactly one run, got %d", proc.calls.Load())
	}
}

func TestWorker_JobTimeoutMarksFailed(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	doc := f.addDocument(t, "notes.txt", longText(60))

	proc := &blockingProcessor{started: make(chan struct{}, 1), release: make(chan struct{})}
	w := NewWorker(NewMemoryQueue(1), proc, f.db, WorkerConfig{JobTimeout: 20 * time.Millisecond})

	err := w.Handle(context.Background(), Job{DocumentID: doc.ID})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want DeadlineExceeded, got %v", err)
	}
	got, _ := f.db.GetDocument(context.Background(), doc.ID)
	if got.Status != store.StatusFailed {
		t.Errorf("want failed, got %s", got.Status)
	}
}

func TestWorker_RunConsumesQueue(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	a := f.addDocument(t, "a.txt", longText(40))
	b := f.addDocument(t, "b.txt", longText(50))

	queue := NewMemoryQueue(4)
	done := make(chan string, 2)
	w := NewWorker(queue, f.pipeline(t, &fakeEmbedder{}, f.index), f.db, WorkerConfig{
		Concurrency: 2,
		OnOutcome:   func(o string, _ int) { done <- o },
	})

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- w.Run(ctx) }()

	for _, id := range []int64{a.ID, b.ID} {
		if err := queue.Enqueue(ctx, Job{DocumentID: id}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	for range 2 {
		select {
		case o := <-done:
			if o != OutcomeProcessed {
				t.Errorf("unexpected outcome %s", o)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for jobs")
		}
	}

	cancel()
	if err := <-runErr; err != nil {
		t.Errorf("run: %v", err)
	}
	for _, id := range []int64{a.ID, b.ID} {
		got, _ := f.db.GetDocument(context.Background(), id)
		if !got.Processed() {
			t.Errorf("document %d not processed", id)
		}
	}
}

func TestMemoryQueue_EnqueueAfterClose(t *testing.T) {
	t.Parallel()

	q := NewMemoryQueue(1)
	_ = q.Close()
	if err := q.Enqueue(context.Background(), Job{DocumentID: 1}); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("want ErrQueueClosed, got %v", err)
	}
}
