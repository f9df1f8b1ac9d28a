package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/tendant/simple-pages/pkg/simplepages"
)

// KindStore implements simplepages.KindStore for one kind in memory.
// Counter increments run under the store lock, so concurrent increments of
// the same record are never lost.
type KindStore struct {
	kind    simplepages.Kind
	mu      sync.RWMutex
	records map[uuid.UUID]simplepages.Record
}

// NewKindStore creates an in-memory store for records of kind.
func NewKindStore(kind simplepages.Kind) *KindStore {
	return &KindStore{
		kind:    kind,
		records: make(map[uuid.UUID]simplepages.Record),
	}
}

// NewKindStores returns stores for the built-in kinds.
func NewKindStores() []simplepages.KindStore {
	return []simplepages.KindStore{
		NewKindStore(simplepages.KindVideo),
		NewKindStore(simplepages.KindAudio),
		NewKindStore(simplepages.KindText),
	}
}

func (s *KindStore) Kind() simplepages.Kind {
	return s.kind
}

func (s *KindStore) Create(ctx context.Context, record simplepages.Record) error {
	if record.Kind() != s.kind {
		return fmt.Errorf("%w: %s record in %s store", simplepages.ErrUnknownKind, record.Kind(), s.kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := record.Base().ID
	if _, exists := s.records[id]; exists {
		return fmt.Errorf("%s %s already exists", s.kind, id)
	}
	s.records[id] = record.Clone()
	return nil
}

func (s *KindStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[id]; !exists {
		return simplepages.ErrContentNotFound
	}
	delete(s.records, id)
	return nil
}

func (s *KindStore) BulkFetch(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]simplepages.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[uuid.UUID]simplepages.Record, len(ids))
	for _, id := range ids {
		if record, exists := s.records[id]; exists {
			result[id] = record.Clone()
		}
	}
	return result, nil
}

func (s *KindStore) IncrementCounters(ctx context.Context, deltas map[uuid.UUID]int64) (map[uuid.UUID]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make(map[uuid.UUID]int64, len(deltas))
	for id, delta := range deltas {
		record, exists := s.records[id]
		if !exists {
			continue
		}
		base := record.Base()
		base.Counter += delta
		result[id] = base.Counter
	}
	return result, nil
}
