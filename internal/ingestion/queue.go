package ingestion

import (
	"context"
	"errors"
	"sync"
)

// ErrQueueClosed is returned by Enqueue after Close.
var ErrQueueClosed = errors.New("ingestion: queue closed")

// Job asks the worker to ingest one document.
type Job struct {
	DocumentID int64 `json:"document_id"`
}

// Delivery is a consumed Job with broker acknowledgement hooks.
type Delivery struct {
	Job Job

	ack  func() error
	nack func() error
}

// Ack confirms the job was handled.
func (d Delivery) Ack() error {
	if d.ack == nil {
		return nil
	}
	return d.ack()
}

// Nack rejects the job without requeueing it.
func (d Delivery) Nack() error {
	if d.nack == nil {
		return nil
	}
	return d.nack()
}

// Queue transports ingestion jobs from the upload path to the workers.
type Queue interface {
	// Enqueue hands a job to the queue. It may block until ctx is done when
	// the queue is full.
	Enqueue(ctx context.Context, job Job) error

	// Consume returns the stream of deliveries. The channel is closed when ctx
	// is done or the queue is closed.
	Consume(ctx context.Context) (<-chan Delivery, error)

	// Close releases the queue.
	Close() error
}

// MemoryQueue is an in-process Queue backed by a buffered channel. Jobs are
// lost on process exit.
type MemoryQueue struct {
	jobs      chan Job
	done      chan struct{}
	closeOnce sync.Once
}

// NewMemoryQueue returns a MemoryQueue holding up to size pending jobs.
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 64
	}
	return &MemoryQueue{jobs: make(chan Job, size), done: make(chan struct{})}
}

// Enqueue implements Queue.
func (q *MemoryQueue) Enqueue(ctx context.Context, job Job) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}
	select {
	case q.jobs <- job:
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume implements Queue.
func (q *MemoryQueue) Consume(ctx context.Context) (<-chan Delivery, error) {
	out := make(chan Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case <-q.done:
				return
			case job := <-q.jobs:
				select {
				case out <- Delivery{Job: job}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close implements Queue.
func (q *MemoryQueue) Close() error {
	q.closeOnce.Do(func() { close(q.done) })
	return nil
}
