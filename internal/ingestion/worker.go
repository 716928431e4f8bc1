package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/54b3r/roomrag-go/internal/logging"
	"github.com/54b3r/roomrag-go/internal/store"
)

const (
	// DefaultConcurrency is the number of worker goroutines.
	DefaultConcurrency = 2
	// DefaultJobTimeout bounds a single document ingestion.
	DefaultJobTimeout = 5 * time.Minute
)

// Outcome labels reported to WorkerConfig.OnOutcome.
const (
	OutcomeProcessed = "processed"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// ErrInFlight is returned by Handle when the document is already being
// ingested by another goroutine.
var ErrInFlight = errors.New("ingestion: document already in flight")

// Processor ingests one document. *Pipeline satisfies it.
type Processor interface {
	Process(ctx context.Context, doc *store.Document, namespace string) (*Result, error)
}

// DocumentStore is the subset of the metadata store the worker needs.
type DocumentStore interface {
	GetDocument(ctx context.Context, id int64) (*store.Document, error)
	GetRoom(ctx context.Context, id int64) (*store.Room, error)
	MarkProcessed(ctx context.Context, id int64, chunkCount int, vectorIDs []string) error
	MarkFailed(ctx context.Context, id int64) error
}

// WorkerConfig tunes the worker pool.
type WorkerConfig struct {
	// Concurrency is the number of goroutines consuming jobs. Defaults to 2.
	Concurrency int
	// JobTimeout bounds one ingestion. Defaults to 5m.
	JobTimeout time.Duration
	// OnOutcome, when set, is called after every handled job with one of the
	// Outcome labels and the number of chunks indexed.
	OnOutcome func(outcome string, chunks int)
}

// Worker consumes ingestion jobs and records their outcome on the document.
// At most one ingestion per document ID runs at any time.
type Worker struct {
	queue Queue
	proc  Processor
	docs  DocumentStore
	cfg   WorkerConfig

	mu       sync.Mutex
	inFlight map[int64]struct{}
}

// NewWorker constructs a Worker with defaults applied to cfg.
func NewWorker(queue Queue, proc Processor, docs DocumentStore, cfg WorkerConfig) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = DefaultJobTimeout
	}
	return &Worker{
		queue:    queue,
		proc:     proc,
		docs:     docs,
		cfg:      cfg,
		inFlight: make(map[int64]struct{}),
	}
}

// Run consumes jobs until ctx is cancelled, then waits for in-progress jobs
// to return. Job failures are recorded on the document and logged, never
// returned.
func (w *Worker) Run(ctx context.Context) error {
	deliveries, err := w.queue.Consume(ctx)
	if err != nil {
		return fmt.Errorf("ingestion: start consuming: %w", err)
	}

	log := logging.FromContext(ctx)
	log.Info("ingestion: workers started", slog.Int("concurrency", w.cfg.Concurrency))

	var wg sync.WaitGroup
	for range w.cfg.Concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for d := range deliveries {
				if err := w.Handle(ctx, d.Job); err != nil && !errors.Is(err, ErrInFlight) {
					log.Debug("ingestion: job finished with error",
						slog.Int64("document_id", d.Job.DocumentID), slog.Any("error", err))
				}
				if err := d.Ack(); err != nil {
					log.Warn("ingestion: ack failed",
						slog.Int64("document_id", d.Job.DocumentID), slog.Any("error", err))
				}
			}
		}()
	}
	wg.Wait()
	log.Info("ingestion: workers stopped")
	return nil
}

// Handle ingests the job's document synchronously and records the outcome.
// The returned error is informational; the document row already reflects it.
func (w *Worker) Handle(ctx context.Context, job Job) error {
	log := logging.FromContext(ctx).With(slog.Int64("document_id", job.DocumentID))

	if !w.acquire(job.DocumentID) {
		log.Info("ingestion: duplicate job dropped, document already in flight")
		w.report(OutcomeSkipped, 0)
		return ErrInFlight
	}
	defer w.release(job.DocumentID)

	jobCtx, cancel := context.WithTimeout(ctx, w.cfg.JobTimeout)
	defer cancel()
	jobCtx = logging.WithLogger(jobCtx, log)

	start := time.Now()
	res, err := w.process(jobCtx, job.DocumentID)
	if err != nil {
		log.Error("ingestion: document failed", slog.Any("error", err))
		if errors.Is(err, store.ErrNotFound) {
			w.report(OutcomeSkipped, 0)
			return err
		}
		// The job context may be the one that expired; record with the parent.
		if markErr := w.docs.MarkFailed(context.WithoutCancel(ctx), job.DocumentID); markErr != nil {
			log.Error("ingestion: could not mark document failed", slog.Any("error", markErr))
		}
		w.report(OutcomeFailed, 0)
		return err
	}

	if err := w.docs.MarkProcessed(context.WithoutCancel(ctx), job.DocumentID, res.ChunkCount, res.VectorIDs); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Warn("ingestion: document deleted during ingestion, vectors orphaned",
				slog.Int("orphaned_vectors", len(res.VectorIDs)))
			w.report(OutcomeSkipped, 0)
			return err
		}
		log.Error("ingestion: could not mark document processed", slog.Any("error", err))
		w.report(OutcomeFailed, 0)
		return err
	}

	log.Info("ingestion: document processed",
		slog.Int("chunks", res.ChunkCount),
		slog.Int("characters", res.TotalCharacters),
		slog.Duration("duration", time.Since(start)),
	)
	w.report(OutcomeProcessed, res.ChunkCount)
	return nil
}

func (w *Worker) process(ctx context.Context, id int64) (*Result, error) {
	doc, err := w.docs.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	room, err := w.docs.GetRoom(ctx, doc.RoomID)
	if err != nil {
		return nil, err
	}
	return w.proc.Process(ctx, doc, room.Namespace)
}

func (w *Worker) acquire(id int64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, busy := w.inFlight[id]; busy {
		return false
	}
	w.inFlight[id] = struct{}{}
	return true
}

func (w *Worker) release(id int64) {
	w.mu.Lock()
	delete(w.inFlight, id)
	w.mu.Unlock()
}

func (w *Worker) report(outcome string, chunks int) {
	if w.cfg.OnOutcome != nil {
		w.cfg.OnOutcome(outcome, chunks)
	}
}
