package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrUnavailable is returned when the broker cannot accept or deliver
// messages. Submission-time callers surface it as a retryable 503 and roll
// back the job row; a job is not considered submitted until enqueue succeeds.
var ErrUnavailable = errors.New("queue unavailable")

// Message is the dispatch payload carried from the submission path to the
// worker pool. It holds everything a worker needs to run one attempt without
// re-reading the job row.
type Message struct {
	JobID    uuid.UUID `json:"job_id"`
	FilePath string    `json:"file_path"`
	Query    string    `json:"query"`
	Filename string    `json:"filename"`
	ClientIP string    `json:"client_ip,omitempty"`
	FileSize int64     `json:"file_size,omitempty"`
}

// Delivery is one claimed message. It stays invisible to other consumers
// until the lease expires; Ack removes it for good.
type Delivery struct {
	Message Message

	// payload is the exact broker-side encoding, kept so Ack can remove the
	// same bytes that were leased.
	payload string
}

// Queue is the at-least-once dispatch channel between the API and workers.
// A message not acked within its lease is redelivered, so consumers must be
// idempotent at the store layer.
type Queue interface {
	Enqueue(ctx context.Context, msg Message) error
	Dequeue(ctx context.Context) (*Delivery, error)
	Ack(ctx context.Context, d *Delivery) error
	RequeueExpired(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
	Close() error
}

// Limiter is the counter interface behind API rate limiting.
type Limiter interface {
	IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error)
}
