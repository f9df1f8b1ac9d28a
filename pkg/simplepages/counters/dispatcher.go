package counters

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tendant/simple-pages/pkg/simplepages"
)

// Dispatcher implements simplepages.CounterDispatcher by publishing one job
// per kind group. It never returns counter values: increments become
// visible once a worker applies them.
type Dispatcher struct {
	queue  Queue
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher publishing to queue.
func NewDispatcher(queue Queue, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{queue: queue, logger: logger}
}

func (d *Dispatcher) Dispatch(ctx context.Context, items []simplepages.ContentRef) (simplepages.CounterSnapshot, error) {
	var errs []error
	for _, group := range simplepages.GroupByKind(items) {
		job := NewJob(group)
		if err := d.queue.Publish(ctx, job); err != nil {
			errs = append(errs, fmt.Errorf("enqueue %s counters: %w", group.Kind, err))
			continue
		}
		d.logger.Debug("counter job enqueued", "job_id", job.ID, "kind", job.Kind, "ids", len(job.Deltas))
	}
	return nil, errors.Join(errs...)
}
