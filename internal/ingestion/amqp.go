package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/54b3r/roomrag-go/internal/logging"
)

// consumerPrefetch caps unacknowledged deliveries held by one consumer.
const consumerPrefetch = 8

// AMQPQueue is a Queue on a durable RabbitMQ queue. Jobs survive restarts of
// the server and can be consumed by separate worker processes.
type AMQPQueue struct {
	conn      *amqp.Connection
	queueName string

	mu    sync.Mutex
	pubCh *amqp.Channel
}

// NewAMQPQueue dials url and declares the durable queue.
func NewAMQPQueue(url, queueName string) (*AMQPQueue, error) {
	if queueName == "" {
		queueName = "roomrag.ingest"
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("ingestion: dial rabbitmq: %w", err)
	}
	q := &AMQPQueue{conn: conn, queueName: queueName}

	ch, err := q.channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	q.pubCh = ch
	return q, nil
}

// channel opens a channel with the queue declared on it.
func (q *AMQPQueue) channel() (*amqp.Channel, error) {
	ch, err := q.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("ingestion: open rabbitmq channel: %w", err)
	}
	if _, err := ch.QueueDeclare(q.queueName, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("ingestion: declare queue %q: %w", q.queueName, err)
	}
	return ch, nil
}

// Enqueue implements Queue.
func (q *AMQPQueue) Enqueue(ctx context.Context, job Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("ingestion: marshal job: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	err = q.pubCh.PublishWithContext(ctx, "", q.queueName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         payload,
		DeliveryMode: amqp.Persistent,
	})
	if err != nil {
		return fmt.Errorf("ingestion: publish job for document %d: %w", job.DocumentID, err)
	}
	return nil
}

// Consume implements Queue. Messages that cannot be decoded are rejected
// without requeue.
func (q *AMQPQueue) Consume(ctx context.Context) (<-chan Delivery, error) {
	ch, err := q.channel()
	if err != nil {
		return nil, err
	}
	if err := ch.Qos(consumerPrefetch, 0, false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("ingestion: set prefetch: %w", err)
	}
	deliveries, err := ch.Consume(q.queueName, "", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("ingestion: consume %q: %w", q.queueName, err)
	}

	log := logging.FromContext(ctx)
	out := make(chan Delivery)
	go func() {
		defer close(out)
		defer ch.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				var job Job
				if err := json.Unmarshal(d.Body, &job); err != nil {
					log.Warn("ingestion: dropping undecodable job", slog.Any("error", err))
					_ = d.Nack(false, false)
					continue
				}
				select {
				case out <- Delivery{
					Job:  job,
					ack:  func() error { return d.Ack(false) },
					nack: func() error { return d.Nack(false, false) },
				}:
				case <-ctx.Done():
					_ = d.Nack(false, true)
					return
				}
			}
		}
	}()
	return out, nil
}

// Close implements Queue.
func (q *AMQPQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pubCh != nil {
		_ = q.pubCh.Close()
	}
	if err := q.conn.Close(); err != nil {
		return fmt.Errorf("ingestion: close rabbitmq: %w", err)
	}
	return nil
}
