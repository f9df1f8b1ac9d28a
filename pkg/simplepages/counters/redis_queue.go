package counters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const defaultPollTimeout = 2 * time.Second

// RedisQueue is a reliable queue on a Redis list. Receive moves a job onto
// a processing list in the same command; Ack removes it from there. Jobs
// left on the processing list by a crashed worker are put back by Recover.
type RedisQueue struct {
	rdb         goredis.UniversalClient
	key         string
	processing  string
	pollTimeout time.Duration
	logger      *slog.Logger
	closed      atomic.Bool
}

// RedisQueueOption configures a RedisQueue
type RedisQueueOption func(*RedisQueue)

// WithPollTimeout bounds each blocking pop, so Receive notices Close.
func WithPollTimeout(d time.Duration) RedisQueueOption {
	return func(q *RedisQueue) {
		if d > 0 {
			q.pollTimeout = d
		}
	}
}

// WithQueueLogger sets the logger for dropped payloads
func WithQueueLogger(logger *slog.Logger) RedisQueueOption {
	return func(q *RedisQueue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// NewRedisQueue creates a queue on the list key. The processing list is
// key + ":processing". The client is owned by the caller.
func NewRedisQueue(rdb goredis.UniversalClient, key string, opts ...RedisQueueOption) *RedisQueue {
	q := &RedisQueue{
		rdb:         rdb,
		key:         key,
		processing:  key + ":processing",
		pollTimeout: defaultPollTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *RedisQueue) Publish(ctx context.Context, job Job) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode counter job: %w", err)
	}
	if err := q.rdb.LPush(ctx, q.key, raw).Err(); err != nil {
		return fmt.Errorf("publish counter job: %w", err)
	}
	return nil
}

func (q *RedisQueue) Receive(ctx context.Context) (*Delivery, error) {
	for {
		if q.closed.Load() {
			return nil, ErrQueueClosed
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		raw, err := q.rdb.BLMove(ctx, q.key, q.processing, "RIGHT", "LEFT", q.pollTimeout).Result()
		if errors.Is(err, goredis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("receive counter job: %w", err)
		}

		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			q.logger.Error("dropping malformed counter job", "queue", q.key, "err", err)
			if remErr := q.rdb.LRem(context.WithoutCancel(ctx), q.processing, 1, raw).Err(); remErr != nil {
				// Recover requeues it; it is dropped again on the next receive.
				q.logger.Error("failed to remove malformed counter job", "queue", q.processing, "err", remErr)
			}
			continue
		}

		return &Delivery{
			Job: job,
			ack: func(ctx context.Context) error {
				return q.rdb.LRem(ctx, q.processing, 1, raw).Err()
			},
		}, nil
	}
}

// Key returns the list jobs are published to.
func (q *RedisQueue) Key() string {
	return q.key
}

// Pending reports the number of jobs waiting to be received.
func (q *RedisQueue) Pending(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.key).Result()
}

// InFlight reports the number of received but unacknowledged jobs.
func (q *RedisQueue) InFlight(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.processing).Result()
}

// Recover moves every unacknowledged job back onto the queue. Call it before
// starting workers; jobs being processed by a live worker would be received
// twice.
func (q *RedisQueue) Recover(ctx context.Context) (int, error) {
	moved := 0
	for {
		err := q.rdb.LMove(ctx, q.processing, q.key, "LEFT", "RIGHT").Err()
		if errors.Is(err, goredis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, fmt.Errorf("recover counter jobs: %w", err)
		}
		moved++
	}
}

// Close makes Publish and Receive return ErrQueueClosed. A blocked Receive
// returns within the poll timeout.
func (q *RedisQueue) Close() error {
	q.closed.Store(true)
	return nil
}
