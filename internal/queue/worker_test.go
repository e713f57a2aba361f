package queue_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/muratovtemurbek/healthhub-uz/internal/domain"
	"github.com/muratovtemurbek/healthhub-uz/internal/queue"
	"github.com/muratovtemurbek/healthhub-uz/pkg/clock"
)

// ---------- Mocks ----------

// memStore hands out each job exactly once and records the verdict the
// worker reaches for it.
type memStore struct {
	mu      sync.Mutex
	pending []queue.Job
	acked   []uuid.UUID
	retried []uuid.UUID
	dead    []uuid.UUID
}

func (s *memStore) Lease(_ context.Context, _ time.Time, limit int, _ time.Duration) ([]queue.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return nil, nil
	}
	n := limit
	if n > len(s.pending) {
		n = len(s.pending)
	}
	batch := s.pending[:n]
	s.pending = s.pending[n:]
	out := make([]queue.Job, n)
	copy(out, batch)
	for i := range out {
		out[i].Attempts++
	}
	return out, nil
}

func (s *memStore) Ack(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acked = append(s.acked, id)
	return nil
}

func (s *memStore) Retry(_ context.Context, id uuid.UUID, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retried = append(s.retried, id)
	return nil
}

func (s *memStore) Dead(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dead = append(s.dead, id)
	return nil
}

func (s *memStore) counts() (acked, retried, dead int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.acked), len(s.retried), len(s.dead)
}

func job(kind string, attempts, maxAttempts int) queue.Job {
	return queue.Job{
		ID:          uuid.New(),
		DedupKey:    uuid.NewString(),
		Kind:        kind,
		Payload:     []byte(`{}`),
		Attempts:    attempts,
		MaxAttempts: maxAttempts,
	}
}

func runWorker(t *testing.T, store *memStore, register func(*queue.Worker)) {
	t.Helper()

	w := queue.NewWorker(store, clock.New(), queue.WorkerOptions{
		Workers:      2,
		PollInterval: 5 * time.Millisecond,
		BatchSize:    10,
	})
	register(w)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("worker run: %v", err)
	}
}

// ---------- Tests ----------

func TestWorkerAcksSuccessfulJobs(t *testing.T) {
	store := &memStore{pending: []queue.Job{job("ok", 0, 5), job("ok", 0, 5)}}

	var handled int
	var mu sync.Mutex
	runWorker(t, store, func(w *queue.Worker) {
		w.Register("ok", func(ctx context.Context, j queue.Job) error {
			mu.Lock()
			handled++
			mu.Unlock()
			return nil
		})
	})

	acked, retried, dead := store.counts()
	if handled != 2 || acked != 2 || retried != 0 || dead != 0 {
		t.Fatalf("handled=%d acked=%d retried=%d dead=%d", handled, acked, retried, dead)
	}
}

func TestWorkerRetriesTransientErrors(t *testing.T) {
	store := &memStore{pending: []queue.Job{job("flaky", 0, 5)}}

	runWorker(t, store, func(w *queue.Worker) {
		w.Register("flaky", func(ctx context.Context, j queue.Job) error {
			return errors.New("connection reset")
		})
	})

	_, retried, dead := store.counts()
	if retried != 1 || dead != 0 {
		t.Fatalf("retried=%d dead=%d, want retry", retried, dead)
	}
}

func TestWorkerDeadLettersOnDrop(t *testing.T) {
	store := &memStore{pending: []queue.Job{job("bad", 0, 5)}}

	runWorker(t, store, func(w *queue.Worker) {
		w.Register("bad", func(ctx context.Context, j queue.Job) error {
			return queue.ErrDrop
		})
	})

	_, retried, dead := store.counts()
	if dead != 1 || retried != 0 {
		t.Fatalf("dead=%d retried=%d, want dead-letter", dead, retried)
	}
}

func TestWorkerDeadLettersNonRetryable(t *testing.T) {
	store := &memStore{pending: []queue.Job{job("conflict", 0, 5)}}

	runWorker(t, store, func(w *queue.Worker) {
		w.Register("conflict", func(ctx context.Context, j queue.Job) error {
			return domain.ErrStateConflict
		})
	})

	_, retried, dead := store.counts()
	if dead != 1 || retried != 0 {
		t.Fatalf("dead=%d retried=%d, want dead-letter for tagged error", dead, retried)
	}
}

func TestWorkerDeadLettersAfterMaxAttempts(t *testing.T) {
	// The lease below bumps attempts to max, so this failure is final.
	store := &memStore{pending: []queue.Job{job("flaky", 4, 5)}}

	runWorker(t, store, func(w *queue.Worker) {
		w.Register("flaky", func(ctx context.Context, j queue.Job) error {
			return errors.New("still failing")
		})
	})

	_, retried, dead := store.counts()
	if dead != 1 || retried != 0 {
		t.Fatalf("dead=%d retried=%d, want dead-letter at attempt limit", dead, retried)
	}
}

func TestWorkerDeadLettersUnknownKind(t *testing.T) {
	store := &memStore{pending: []queue.Job{job("unregistered", 0, 5)}}

	runWorker(t, store, func(w *queue.Worker) {})

	_, _, dead := store.counts()
	if dead != 1 {
		t.Fatalf("dead=%d, want unknown kind dead-lettered", dead)
	}
}
