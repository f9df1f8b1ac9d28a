package simplepages

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
)

// CounterGroup is the set of increments for one kind. Deltas maps a record id
// to the number of times it occurred in the batch.
type CounterGroup struct {
	Kind   Kind                `json:"kind"`
	Deltas map[uuid.UUID]int64 `json:"deltas"`
}

// IDs returns the group's record ids.
func (g CounterGroup) IDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(g.Deltas))
	for id := range g.Deltas {
		ids = append(ids, id)
	}
	return ids
}

// GroupByKind groups refs by kind, in order of first appearance. An id that
// occurs N times gets a delta of N.
func GroupByKind(items []ContentRef) []CounterGroup {
	var groups []CounterGroup
	index := make(map[Kind]int)
	for _, item := range items {
		i, ok := index[item.Kind]
		if !ok {
			i = len(groups)
			index[item.Kind] = i
			groups = append(groups, CounterGroup{Kind: item.Kind, Deltas: make(map[uuid.UUID]int64)})
		}
		groups[i].Deltas[item.ID]++
	}
	return groups
}

// CounterService applies view-counter increments synchronously. Each kind
// group is one relative update; groups succeed or fail independently.
type CounterService struct {
	registry *Registry
	logger   *slog.Logger
}

// NewCounterService creates a synchronous counter service.
func NewCounterService(registry *Registry, logger *slog.Logger) *CounterService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CounterService{registry: registry, logger: logger}
}

// IncrementBatch increments the counter of every item, once per occurrence.
// Unknown kinds are skipped. Failed groups are reported as *CounterError
// values joined into the returned error; the snapshot holds the counters of
// the groups that succeeded.
func (c *CounterService) IncrementBatch(ctx context.Context, items []ContentRef) (CounterSnapshot, error) {
	snapshot := make(CounterSnapshot, len(items))
	var errs []error

	for _, group := range GroupByKind(items) {
		store, err := c.registry.Resolve(group.Kind)
		if err != nil {
			c.logger.Warn("skipping counter group", "kind", group.Kind, "err", err)
			continue
		}
		counters, err := store.IncrementCounters(ctx, group.Deltas)
		if err != nil {
			errs = append(errs, &CounterError{Kind: group.Kind, Err: err})
			continue
		}
		for id, value := range counters {
			snapshot[ContentRef{Kind: group.Kind, ID: id}] = value
		}
	}

	return snapshot, errors.Join(errs...)
}

// Dispatch implements CounterDispatcher.
func (c *CounterService) Dispatch(ctx context.Context, items []ContentRef) (CounterSnapshot, error) {
	return c.IncrementBatch(ctx, items)
}
