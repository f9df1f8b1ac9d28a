package counters

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/tendant/simple-pages/pkg/simplepages"
)

const (
	DefaultConcurrency   = 2
	DefaultMaxAttempts   = 3
	DefaultRetryInterval = time.Second
	DefaultMaxInterval   = 30 * time.Second
)

// Worker applies queued counter jobs using a pool of goroutines.
type Worker struct {
	queue         Queue
	registry      *simplepages.Registry
	logger        *slog.Logger
	metrics       *Metrics
	onFailure     func(*FailureError)
	concurrency   int
	maxAttempts   int
	retryInterval time.Duration
	maxInterval   time.Duration
	wg            sync.WaitGroup
}

// WorkerOption configures a Worker
type WorkerOption func(*Worker)

// WithLogger sets the worker logger
func WithLogger(logger *slog.Logger) WorkerOption {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithMetrics records job outcomes on m
func WithMetrics(m *Metrics) WorkerOption {
	return func(w *Worker) {
		w.metrics = m
	}
}

// WithOnFailure is called for every job that exhausts its attempts, after
// the failure is logged.
func WithOnFailure(fn func(*FailureError)) WorkerOption {
	return func(w *Worker) {
		w.onFailure = fn
	}
}

// WithConcurrency sets the number of worker goroutines
func WithConcurrency(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

// WithMaxAttempts sets how many times a job is tried, first try included
func WithMaxAttempts(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.maxAttempts = n
		}
	}
}

// WithRetryInterval sets the initial and maximum backoff between attempts
func WithRetryInterval(initial, max time.Duration) WorkerOption {
	return func(w *Worker) {
		if initial > 0 {
			w.retryInterval = initial
		}
		if max >= w.retryInterval {
			w.maxInterval = max
		}
	}
}

// NewWorker creates a worker pool receiving from queue and resolving stores
// through registry.
func NewWorker(queue Queue, registry *simplepages.Registry, opts ...WorkerOption) *Worker {
	w := &Worker{
		queue:         queue,
		registry:      registry,
		logger:        slog.Default(),
		concurrency:   DefaultConcurrency,
		maxAttempts:   DefaultMaxAttempts,
		retryInterval: DefaultRetryInterval,
		maxInterval:   DefaultMaxInterval,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.maxInterval < w.retryInterval {
		w.maxInterval = w.retryInterval
	}
	return w
}

// Run starts the pool and blocks until ctx is cancelled or the queue is
// closed and drained, then waits for every worker to finish.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("counter worker pool starting",
		"concurrency", w.concurrency,
		"maxAttempts", w.maxAttempts,
		"retryInterval", w.retryInterval.String())

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go func(workerID int) {
			defer w.wg.Done()
			w.loop(ctx, workerID)
		}(i)
	}

	w.wg.Wait()
	w.logger.Info("counter worker pool stopped")
}

func (w *Worker) loop(ctx context.Context, workerID int) {
	for {
		delivery, err := w.queue.Receive(ctx)
		if err != nil {
			if errors.Is(err, ErrQueueClosed) || ctx.Err() != nil {
				return
			}
			w.logger.Error("failed to receive counter job", "workerID", workerID, "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.retryInterval):
			}
			continue
		}

		err = w.Process(ctx, delivery.Job)
		if err != nil && ctx.Err() != nil {
			// Interrupted jobs stay unacknowledged for Recover.
			w.logger.Warn("counter job interrupted", "workerID", workerID, "jobID", delivery.Job.ID)
			return
		}
		if ackErr := delivery.Ack(context.WithoutCancel(ctx)); ackErr != nil {
			w.logger.Error("failed to ack counter job", "jobID", delivery.Job.ID, "err", ackErr)
		}
	}
}

// Process applies one job, retrying up to the attempt limit. Jobs of an
// unregistered kind are skipped. A job that exhausts its attempts is logged,
// reported to the failure hook and returned as a *FailureError.
func (w *Worker) Process(ctx context.Context, job Job) error {
	kind := string(job.Kind)

	store, err := w.registry.Resolve(job.Kind)
	if err != nil {
		w.logger.Warn("skipping counter job", "jobID", job.ID, "kind", job.Kind, "err", err)
		w.metrics.observeJob(kind, ResultSkipped)
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.retryInterval
	b.MaxInterval = w.maxInterval

	attempts := 0
	_, err = backoff.Retry(ctx, func() (map[uuid.UUID]int64, error) {
		attempts++
		return store.IncrementCounters(ctx, job.Deltas)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(w.maxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			w.metrics.observeRetry(kind)
			w.logger.Warn("counter update failed, retrying",
				"jobID", job.ID, "kind", job.Kind, "attempt", attempts, "next", next.String(), "err", err)
		}),
	)
	if err == nil {
		w.metrics.observeJob(kind, ResultSucceeded)
		w.logger.Debug("counter job applied", "jobID", job.ID, "kind", job.Kind, "attempts", attempts)
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	failure := &FailureError{Job: job, Attempts: attempts, Err: err}
	w.metrics.observeJob(kind, ResultFailed)
	w.logger.Error("counter update failed",
		"jobID", job.ID, "kind", job.Kind, "ids", job.IDs(), "attempts", attempts, "err", failure)
	if w.onFailure != nil {
		w.onFailure(failure)
	}
	return failure
}
