package simplepages

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Registry maps kind tags to the stores that own them.
type Registry struct {
	mu     sync.RWMutex
	stores map[Kind]KindStore
	kinds  []Kind
}

// NewRegistry creates a registry holding the given stores.
func NewRegistry(stores ...KindStore) (*Registry, error) {
	r := &Registry{stores: make(map[Kind]KindStore)}
	for _, store := range stores {
		if err := r.Register(store); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a store for its kind.
func (r *Registry) Register(store KindStore) error {
	if store == nil {
		return fmt.Errorf("kind store is required")
	}
	kind := store.Kind()
	if kind == "" {
		return fmt.Errorf("kind store returned an empty kind")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.stores[kind]; exists {
		return fmt.Errorf("%w: %s", ErrKindRegistered, kind)
	}
	r.stores[kind] = store
	r.kinds = append(r.kinds, kind)
	return nil
}

// Resolve returns the store for kind, or an error wrapping ErrUnknownKind.
func (r *Registry) Resolve(kind Kind) (KindStore, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	store, ok := r.stores[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return store, nil
}

// Kinds returns the registered kinds in registration order.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]Kind, len(r.kinds))
	copy(kinds, r.kinds)
	return kinds
}

// BulkFetch fetches records of one kind by id. Only found ids are returned.
func (r *Registry) BulkFetch(ctx context.Context, kind Kind, ids []uuid.UUID) (map[uuid.UUID]Record, error) {
	store, err := r.Resolve(kind)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return map[uuid.UUID]Record{}, nil
	}
	return store.BulkFetch(ctx, ids)
}
