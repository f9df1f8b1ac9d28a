package simplepages

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines persistence for pages, wrappers and placements
type Repository interface {
	// Page operations
	CreatePage(ctx context.Context, page *Page) error
	GetPage(ctx context.Context, id uuid.UUID) (*Page, error)
	// DeletePage removes the page and its placements.
	DeletePage(ctx context.Context, id uuid.UUID) error
	GetPageSummary(ctx context.Context, id uuid.UUID) (*PageSummary, error)
	// ListPages returns pages newest first with placement counts, computed
	// for the whole listed set at once.
	ListPages(ctx context.Context, params ListPagesParams) ([]*PageSummary, error)
	CountPages(ctx context.Context) (int64, error)

	// Wrapper operations
	GetOrCreateWrapper(ctx context.Context, ref ContentRef) (*Wrapper, error)
	GetWrapper(ctx context.Context, id uuid.UUID) (*Wrapper, error)
	// DeleteWrapper removes the wrapper and every placement referencing it.
	DeleteWrapper(ctx context.Context, id uuid.UUID) error

	// Placement operations

	// AppendPlacement inserts the placement. When placement.Order is zero the
	// store assigns max(order)+1 for the page. The store sets Order, Seq and
	// CreatedAt on the passed placement.
	AppendPlacement(ctx context.Context, placement *Placement) error
	GetPlacement(ctx context.Context, id uuid.UUID) (*Placement, error)
	// ListPlacements returns the page's placements joined with their
	// wrappers, ascending by order then insertion sequence.
	ListPlacements(ctx context.Context, pageID uuid.UUID) ([]*OrderedPlacement, error)
	ReorderPlacement(ctx context.Context, id uuid.UUID, order int) error
	SetPlacementAlias(ctx context.Context, id uuid.UUID, alias string) error
	DeletePlacement(ctx context.Context, id uuid.UUID) error
}

// KindStore owns the records of one content kind.
type KindStore interface {
	Kind() Kind
	Create(ctx context.Context, record Record) error
	Delete(ctx context.Context, id uuid.UUID) error
	// BulkFetch returns the records found among ids. Absent ids are not an error.
	BulkFetch(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]Record, error)
	// IncrementCounters adds deltas[id] to each record's counter with a
	// single relative update evaluated by the store, and returns the
	// resulting counters of the rows that matched.
	IncrementCounters(ctx context.Context, deltas map[uuid.UUID]int64) (map[uuid.UUID]int64, error)
}

// CounterDispatcher receives the refs resolved by a page view. A synchronous
// dispatcher returns the stored counters after the increment; a deferred one
// returns a nil snapshot.
type CounterDispatcher interface {
	Dispatch(ctx context.Context, items []ContentRef) (CounterSnapshot, error)
}

// ListPagesParams contains parameters for listing pages
type ListPagesParams struct {
	Limit  int
	Offset int
}
