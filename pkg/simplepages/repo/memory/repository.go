package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-pages/pkg/simplepages"
)

// Repository implements simplepages.Repository using in-memory storage
type Repository struct {
	mu               sync.RWMutex
	pages            map[uuid.UUID]*simplepages.Page
	wrappers         map[uuid.UUID]*simplepages.Wrapper
	wrappersByRef    map[simplepages.ContentRef]uuid.UUID
	placements       map[uuid.UUID]*simplepages.Placement
	placementsByPage map[uuid.UUID]map[uuid.UUID]uuid.UUID // page_id -> wrapper_id -> placement_id
	seq              int64
}

// New creates a new in-memory repository
func New() simplepages.Repository {
	return &Repository{
		pages:            make(map[uuid.UUID]*simplepages.Page),
		wrappers:         make(map[uuid.UUID]*simplepages.Wrapper),
		wrappersByRef:    make(map[simplepages.ContentRef]uuid.UUID),
		placements:       make(map[uuid.UUID]*simplepages.Placement),
		placementsByPage: make(map[uuid.UUID]map[uuid.UUID]uuid.UUID),
	}
}

// Page operations

func (r *Repository) CreatePage(ctx context.Context, page *simplepages.Page) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pageCopy := *page
	r.pages[page.ID] = &pageCopy
	return nil
}

func (r *Repository) GetPage(ctx context.Context, id uuid.UUID) (*simplepages.Page, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	page, exists := r.pages[id]
	if !exists {
		return nil, simplepages.ErrPageNotFound
	}
	pageCopy := *page
	return &pageCopy, nil
}

func (r *Repository) DeletePage(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.pages[id]; !exists {
		return simplepages.ErrPageNotFound
	}
	for _, placementID := range r.placementsByPage[id] {
		delete(r.placements, placementID)
	}
	delete(r.placementsByPage, id)
	delete(r.pages, id)
	return nil
}

func (r *Repository) GetPageSummary(ctx context.Context, id uuid.UUID) (*simplepages.PageSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	page, exists := r.pages[id]
	if !exists {
		return nil, simplepages.ErrPageNotFound
	}
	return &simplepages.PageSummary{
		Page:           *page,
		PlacementCount: int64(len(r.placementsByPage[id])),
	}, nil
}

func (r *Repository) ListPages(ctx context.Context, params simplepages.ListPagesParams) ([]*simplepages.PageSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pages := make([]*simplepages.Page, 0, len(r.pages))
	for _, page := range r.pages {
		pages = append(pages, page)
	}
	// Newest first, id as tie-break
	sort.Slice(pages, func(i, j int) bool {
		if !pages[i].CreatedAt.Equal(pages[j].CreatedAt) {
			return pages[i].CreatedAt.After(pages[j].CreatedAt)
		}
		return pages[i].ID.String() > pages[j].ID.String()
	})

	start := params.Offset
	if start > len(pages) {
		start = len(pages)
	}
	end := len(pages)
	if params.Limit > 0 && start+params.Limit < end {
		end = start + params.Limit
	}

	result := make([]*simplepages.PageSummary, 0, end-start)
	for _, page := range pages[start:end] {
		result = append(result, &simplepages.PageSummary{
			Page:           *page,
			PlacementCount: int64(len(r.placementsByPage[page.ID])),
		})
	}
	return result, nil
}

func (r *Repository) CountPages(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return int64(len(r.pages)), nil
}

// Wrapper operations

func (r *Repository) GetOrCreateWrapper(ctx context.Context, ref simplepages.ContentRef) (*simplepages.Wrapper, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, exists := r.wrappersByRef[ref]; exists {
		wrapperCopy := *r.wrappers[id]
		return &wrapperCopy, nil
	}

	wrapper := &simplepages.Wrapper{
		ID:        uuid.New(),
		Kind:      ref.Kind,
		ContentID: ref.ID,
		CreatedAt: time.Now().UTC(),
	}
	r.wrappers[wrapper.ID] = wrapper
	r.wrappersByRef[ref] = wrapper.ID

	wrapperCopy := *wrapper
	return &wrapperCopy, nil
}

func (r *Repository) GetWrapper(ctx context.Context, id uuid.UUID) (*simplepages.Wrapper, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wrapper, exists := r.wrappers[id]
	if !exists {
		return nil, simplepages.ErrWrapperNotFound
	}
	wrapperCopy := *wrapper
	return &wrapperCopy, nil
}

func (r *Repository) DeleteWrapper(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	wrapper, exists := r.wrappers[id]
	if !exists {
		return simplepages.ErrWrapperNotFound
	}
	for pageID, byWrapper := range r.placementsByPage {
		if placementID, placed := byWrapper[id]; placed {
			delete(r.placements, placementID)
			delete(byWrapper, id)
			if len(byWrapper) == 0 {
				delete(r.placementsByPage, pageID)
			}
		}
	}
	delete(r.wrappersByRef, wrapper.Ref())
	delete(r.wrappers, id)
	return nil
}

// Placement operations

func (r *Repository) AppendPlacement(ctx context.Context, placement *simplepages.Placement) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.pages[placement.PageID]; !exists {
		return simplepages.ErrPageNotFound
	}
	if _, exists := r.wrappers[placement.WrapperID]; !exists {
		return simplepages.ErrWrapperNotFound
	}
	byWrapper := r.placementsByPage[placement.PageID]
	if _, placed := byWrapper[placement.WrapperID]; placed {
		return simplepages.ErrDuplicatePlacement
	}

	if placement.Order == 0 {
		maxOrder := 0
		for _, placementID := range byWrapper {
			if order := r.placements[placementID].Order; order > maxOrder {
				maxOrder = order
			}
		}
		placement.Order = maxOrder + 1
	}
	r.seq++
	placement.Seq = r.seq
	placement.CreatedAt = time.Now().UTC()

	if byWrapper == nil {
		byWrapper = make(map[uuid.UUID]uuid.UUID)
		r.placementsByPage[placement.PageID] = byWrapper
	}
	placementCopy := *placement
	r.placements[placement.ID] = &placementCopy
	byWrapper[placement.WrapperID] = placement.ID
	return nil
}

func (r *Repository) GetPlacement(ctx context.Context, id uuid.UUID) (*simplepages.Placement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	placement, exists := r.placements[id]
	if !exists {
		return nil, simplepages.ErrPlacementNotFound
	}
	placementCopy := *placement
	return &placementCopy, nil
}

func (r *Repository) ListPlacements(ctx context.Context, pageID uuid.UUID) ([]*simplepages.OrderedPlacement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*simplepages.OrderedPlacement, 0, len(r.placementsByPage[pageID]))
	for _, placementID := range r.placementsByPage[pageID] {
		ordered := &simplepages.OrderedPlacement{Placement: *r.placements[placementID]}
		if wrapper, exists := r.wrappers[ordered.WrapperID]; exists {
			wrapperCopy := *wrapper
			ordered.Wrapper = &wrapperCopy
		}
		result = append(result, ordered)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Order != result[j].Order {
			return result[i].Order < result[j].Order
		}
		return result[i].Seq < result[j].Seq
	})
	return result, nil
}

func (r *Repository) ReorderPlacement(ctx context.Context, id uuid.UUID, order int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	placement, exists := r.placements[id]
	if !exists {
		return simplepages.ErrPlacementNotFound
	}
	placement.Order = order
	return nil
}

func (r *Repository) SetPlacementAlias(ctx context.Context, id uuid.UUID, alias string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	placement, exists := r.placements[id]
	if !exists {
		return simplepages.ErrPlacementNotFound
	}
	placement.Alias = alias
	return nil
}

func (r *Repository) DeletePlacement(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	placement, exists := r.placements[id]
	if !exists {
		return simplepages.ErrPlacementNotFound
	}
	if byWrapper := r.placementsByPage[placement.PageID]; byWrapper != nil {
		delete(byWrapper, placement.WrapperID)
		if len(byWrapper) == 0 {
			delete(r.placementsByPage, placement.PageID)
		}
	}
	delete(r.placements, id)
	return nil
}
