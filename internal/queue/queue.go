package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrAlreadyScheduled reports a duplicate enqueue for a dedup key that
// already has a live job. Callers treat it as success.
var ErrAlreadyScheduled = errors.New("job already scheduled for dedup key")

// ErrDrop tells the worker to dead-letter the job without further retries.
var ErrDrop = errors.New("drop job")

type Job struct {
	ID          uuid.UUID
	DedupKey    string
	Kind        string
	RunAfter    time.Time
	Payload     json.RawMessage
	Attempts    int
	MaxAttempts int
}

// Queue is the producer side: delayed, deduplicated, durable enqueue with
// at-least-once delivery. A second enqueue under a live dedup key is a
// no-op, and delivery does not free the key: an acked job leaves a
// tombstone so a re-produced key inside the same planning window stays a
// no-op. Cancel removes pending jobs and tombstones, never a job
// mid-delivery.
type Queue interface {
	Enqueue(ctx context.Context, dedupKey, kind string, runAfter time.Time, payload any, maxAttempts int) error
	Cancel(ctx context.Context, dedupKey string) error
}

// Store is the consumer side used by the worker pool. Lease atomically
// claims due jobs (including jobs whose previous lease expired, which is
// where at-least-once comes from). Ack marks the job delivered without
// releasing its dedup key.
type Store interface {
	Lease(ctx context.Context, now time.Time, limit int, leaseFor time.Duration) ([]Job, error)
	Ack(ctx context.Context, id uuid.UUID) error
	Retry(ctx context.Context, id uuid.UUID, runAfter time.Time) error
	Dead(ctx context.Context, id uuid.UUID) error
}

// Handler processes one job. nil acks; ErrDrop dead-letters; any other
// error retries with backoff until max attempts.
type Handler func(ctx context.Context, job Job) error
