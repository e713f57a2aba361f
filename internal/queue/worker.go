package queue

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/muratovtemurbek/healthhub-uz/internal/domain"
	"github.com/muratovtemurbek/healthhub-uz/pkg/clock"
	"github.com/muratovtemurbek/healthhub-uz/pkg/logger"
)

type WorkerOptions struct {
	Workers        int
	PollInterval   time.Duration
	BatchSize      int
	HandlerTimeout time.Duration
	RetryBase      time.Duration
}

func (o *WorkerOptions) fill() {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 5 * time.Second
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 20
	}
	if o.HandlerTimeout <= 0 {
		o.HandlerTimeout = 30 * time.Second
	}
	if o.RetryBase <= 0 {
		o.RetryBase = 30 * time.Second
	}
}

// Worker drains the queue with a fixed pool. Handlers are registered per
// job kind before Run; a job with no handler is dead-lettered.
type Worker struct {
	store    Store
	clk      clock.Clock
	opts     WorkerOptions
	handlers map[string]Handler
}

func NewWorker(store Store, clk clock.Clock, opts WorkerOptions) *Worker {
	opts.fill()
	return &Worker{
		store:    store,
		clk:      clk,
		opts:     opts,
		handlers: make(map[string]Handler),
	}
}

func (w *Worker) Register(kind string, h Handler) {
	w.handlers[kind] = h
}

// Run blocks until ctx is cancelled. Each pool member leases its own
// batches, so delivery overlaps I/O waits without any shared mutable
// state outside the store.
func (w *Worker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for i := 0; i < w.opts.Workers; i++ {
		g.Go(func() error {
			return w.loop(ctx)
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (w *Worker) loop(ctx context.Context) error {
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for {
		w.drain(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// drain leases and processes batches until the queue has nothing due.
func (w *Worker) drain(ctx context.Context) {
	for {
		jobs, err := w.store.Lease(ctx, w.clk.Now(), w.opts.BatchSize, w.opts.HandlerTimeout+time.Minute)
		if err != nil {
			if ctx.Err() == nil {
				logger.ErrorContext(ctx, "queue lease failed", "error", err)
			}
			return
		}
		if len(jobs) == 0 {
			return
		}

		for _, job := range jobs {
			w.process(ctx, job)
		}
	}
}

func (w *Worker) process(ctx context.Context, job Job) {
	handler, ok := w.handlers[job.Kind]
	if !ok {
		logger.WarnContext(ctx, "no handler for job kind, dead-lettering",
			"kind", job.Kind, "dedup_key", job.DedupKey)
		w.finish(ctx, job, ErrDrop)
		return
	}

	handlerCtx, cancel := context.WithTimeout(ctx, w.opts.HandlerTimeout)
	err := handler(handlerCtx, job)
	cancel()

	w.finish(ctx, job, err)
}

func (w *Worker) finish(ctx context.Context, job Job, err error) {
	switch {
	case err == nil:
		if ackErr := w.store.Ack(ctx, job.ID); ackErr != nil {
			logger.ErrorContext(ctx, "job ack failed", "dedup_key", job.DedupKey, "error", ackErr)
		}
	case errors.Is(err, ErrDrop), !domain.IsRetryable(err), job.Attempts >= job.MaxAttempts:
		logger.WarnContext(ctx, "job dead-lettered",
			"kind", job.Kind, "dedup_key", job.DedupKey, "attempts", job.Attempts, "error", err)
		if deadErr := w.store.Dead(ctx, job.ID); deadErr != nil {
			logger.ErrorContext(ctx, "job dead-letter failed", "dedup_key", job.DedupKey, "error", deadErr)
		}
	default:
		backoff := w.backoff(job.Attempts)
		logger.InfoContext(ctx, "job retry scheduled",
			"kind", job.Kind, "dedup_key", job.DedupKey, "attempts", job.Attempts, "backoff", backoff, "error", err)
		if retryErr := w.store.Retry(ctx, job.ID, w.clk.Now().Add(backoff)); retryErr != nil {
			logger.ErrorContext(ctx, "job retry failed", "dedup_key", job.DedupKey, "error", retryErr)
		}
	}
}

// backoff doubles per attempt, capped at an hour.
func (w *Worker) backoff(attempt int) time.Duration {
	d := w.opts.RetryBase
	for i := 1; i < attempt && d < time.Hour; i++ {
		d *= 2
	}
	if d > time.Hour {
		d = time.Hour
	}
	return d
}
