package simplepages

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// service implements the Service interface
type service struct {
	repository      Repository
	registry        *Registry
	counters        CounterDispatcher
	logger          *slog.Logger
	defaultPageSize int
	maxPageSize     int
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the repository for the service
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithRegistry sets the content registry for the service
func WithRegistry(registry *Registry) Option {
	return func(s *service) {
		s.registry = registry
	}
}

// WithCounterDispatcher sets where page views send their counter increments.
// Defaults to a synchronous CounterService over the registry.
func WithCounterDispatcher(dispatcher CounterDispatcher) Option {
	return func(s *service) {
		s.counters = dispatcher
	}
}

// WithLogger sets the logger for the service
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// WithPageSizes sets the default and maximum listing page sizes
func WithPageSizes(defaultSize, maxSize int) Option {
	return func(s *service) {
		s.defaultPageSize = defaultSize
		s.maxPageSize = maxSize
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		defaultPageSize: DefaultPageSize,
		maxPageSize:     MaxPageSize,
	}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if s.registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.counters == nil {
		s.counters = NewCounterService(s.registry, s.logger)
	}
	if s.defaultPageSize <= 0 || s.maxPageSize < s.defaultPageSize {
		return nil, fmt.Errorf("invalid page sizes: default %d, max %d", s.defaultPageSize, s.maxPageSize)
	}

	return s, nil
}

// Page operations

func (s *service) CreatePage(ctx context.Context, req CreatePageRequest) (*Page, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" || len(title) > 255 {
		return nil, fmt.Errorf("page title must be 1-255 characters")
	}

	page := &Page{
		ID:        uuid.New(),
		Title:     title,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repository.CreatePage(ctx, page); err != nil {
		return nil, &PageError{PageID: page.ID, Op: "create", Err: err}
	}
	return page, nil
}

func (s *service) DeletePage(ctx context.Context, id uuid.UUID) error {
	if err := s.repository.DeletePage(ctx, id); err != nil {
		return &PageError{PageID: id, Op: "delete", Err: err}
	}
	return nil
}

func (s *service) GetPageSummary(ctx context.Context, id uuid.UUID) (*PageSummary, error) {
	summary, err := s.repository.GetPageSummary(ctx, id)
	if err != nil {
		return nil, &PageError{PageID: id, Op: "summary", Err: err}
	}
	return summary, nil
}

func (s *service) ListPages(ctx context.Context, req ListPagesRequest) (*PageList, error) {
	size := req.PageSize
	if size <= 0 {
		size = s.defaultPageSize
	}
	if size > s.maxPageSize {
		size = s.maxPageSize
	}
	number := req.Page
	if number < 1 {
		number = 1
	}

	count, err := s.repository.CountPages(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count pages: %w", err)
	}

	offset := (number - 1) * size
	if number > 1 && int64(offset) >= count {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPage, number)
	}

	summaries, err := s.repository.ListPages(ctx, ListPagesParams{Limit: size, Offset: offset})
	if err != nil {
		return nil, fmt.Errorf("failed to list pages: %w", err)
	}

	return &PageList{
		Count:    count,
		Page:     number,
		PageSize: size,
		Results:  summaries,
	}, nil
}

func (s *service) GetPageDetail(ctx context.Context, id uuid.UUID) (*PageDetail, error) {
	page, err := s.repository.GetPage(ctx, id)
	if err != nil {
		return nil, &PageError{PageID: id, Op: "detail", Err: err}
	}

	placements, err := s.repository.ListPlacements(ctx, id)
	if err != nil {
		return nil, &PageError{PageID: id, Op: "detail", Err: err}
	}

	var kinds []Kind
	idsByKind := make(map[Kind][]uuid.UUID)
	for _, p := range placements {
		if p.Wrapper == nil {
			s.logger.Debug("placement wrapper missing", "page_id", id, "placement_id", p.ID)
			continue
		}
		if _, ok := idsByKind[p.Wrapper.Kind]; !ok {
			kinds = append(kinds, p.Wrapper.Kind)
		}
		idsByKind[p.Wrapper.Kind] = append(idsByKind[p.Wrapper.Kind], p.Wrapper.ContentID)
	}

	records := make(map[ContentRef]Record, len(placements))
	for _, kind := range kinds {
		found, err := s.registry.BulkFetch(ctx, kind, idsByKind[kind])
		if err != nil {
			if errors.Is(err, ErrUnknownKind) {
				s.logger.Warn("skipping placements of unregistered kind", "page_id", id, "kind", kind)
				continue
			}
			return nil, &PageError{PageID: id, Op: "detail", Err: err}
		}
		for contentID, record := range found {
			records[ContentRef{Kind: kind, ID: contentID}] = record
		}
	}

	items := make([]ContentPayload, 0, len(placements))
	resolved := make([]ContentRef, 0, len(placements))
	for _, p := range placements {
		if p.Wrapper == nil {
			continue
		}
		ref := p.Wrapper.Ref()
		record, ok := records[ref]
		if !ok {
			s.logger.Debug("placed content missing", "page_id", id, "content", ref.String())
			continue
		}
		items = append(items, NewContentPayload(record, p.Order))
		resolved = append(resolved, ref)
	}

	// An abandoned request must not count as a view.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if len(resolved) > 0 {
		snapshot, err := s.counters.Dispatch(ctx, resolved)
		if err != nil {
			s.logger.Error("failed to update view counters", "page_id", id, "err", err)
		}
		for i := range items {
			if value, ok := snapshot[resolved[i]]; ok {
				items[i].Counter = value
			}
		}
	}

	return &PageDetail{Page: *page, Items: items}, nil
}

// Content operations

func (s *service) CreateContent(ctx context.Context, record Record) error {
	if record == nil {
		return fmt.Errorf("%w: record is required", ErrInvalidContent)
	}
	store, err := s.registry.Resolve(record.Kind())
	if err != nil {
		return err
	}

	base := record.Base()
	if base.ID == uuid.Nil {
		base.ID = uuid.New()
	}
	if base.CreatedAt.IsZero() {
		base.CreatedAt = time.Now().UTC()
	}
	if err := record.Validate(); err != nil {
		return err
	}

	if err := store.Create(ctx, record); err != nil {
		return fmt.Errorf("failed to create %s: %w", RefOf(record), err)
	}
	return nil
}

func (s *service) GetContent(ctx context.Context, ref ContentRef) (Record, error) {
	found, err := s.registry.BulkFetch(ctx, ref.Kind, []uuid.UUID{ref.ID})
	if err != nil {
		return nil, err
	}
	record, ok := found[ref.ID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrContentNotFound, ref)
	}
	return record, nil
}

func (s *service) DeleteContent(ctx context.Context, ref ContentRef) error {
	store, err := s.registry.Resolve(ref.Kind)
	if err != nil {
		return err
	}
	return store.Delete(ctx, ref.ID)
}

// Wrapper operations

func (s *service) WrapContent(ctx context.Context, ref ContentRef) (*Wrapper, error) {
	if _, err := s.registry.Resolve(ref.Kind); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, ref.Kind)
	}
	// Existence is checked once here, never again on read.
	if _, err := s.GetContent(ctx, ref); err != nil {
		return nil, err
	}

	wrapper, err := s.repository.GetOrCreateWrapper(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap %s: %w", ref, err)
	}
	return wrapper, nil
}

func (s *service) Dereference(ctx context.Context, wrapperID uuid.UUID) (ContentRef, error) {
	wrapper, err := s.repository.GetWrapper(ctx, wrapperID)
	if err != nil {
		return ContentRef{}, err
	}
	return wrapper.Ref(), nil
}

func (s *service) DeleteWrapper(ctx context.Context, id uuid.UUID) error {
	return s.repository.DeleteWrapper(ctx, id)
}

// Placement operations

func (s *service) PlaceContent(ctx context.Context, req PlaceContentRequest) (*Placement, error) {
	wrapper, err := s.WrapContent(ctx, req.Content)
	if err != nil {
		return nil, &PlacementError{PageID: req.PageID, Op: "place", Err: err}
	}
	return s.AppendPlacement(ctx, AppendPlacementRequest{
		PageID:    req.PageID,
		WrapperID: wrapper.ID,
		Order:     req.Order,
		Alias:     req.Alias,
	})
}

func (s *service) AppendPlacement(ctx context.Context, req AppendPlacementRequest) (*Placement, error) {
	if req.Order < 0 {
		return nil, &PlacementError{PageID: req.PageID, Op: "append", Err: ErrInvalidOrder}
	}

	placement := &Placement{
		ID:        uuid.New(),
		PageID:    req.PageID,
		WrapperID: req.WrapperID,
		Order:     req.Order,
		Alias:     strings.TrimSpace(req.Alias),
	}
	if err := s.repository.AppendPlacement(ctx, placement); err != nil {
		return nil, &PlacementError{PageID: req.PageID, Op: "append", Err: err}
	}
	return placement, nil
}

func (s *service) ListOrdered(ctx context.Context, pageID uuid.UUID) ([]*OrderedPlacement, error) {
	if _, err := s.repository.GetPage(ctx, pageID); err != nil {
		return nil, &PageError{PageID: pageID, Op: "list_placements", Err: err}
	}
	return s.repository.ListPlacements(ctx, pageID)
}

func (s *service) ReorderPlacement(ctx context.Context, id uuid.UUID, order int) error {
	if order < 0 {
		return &PlacementError{PlacementID: id, Op: "reorder", Err: ErrInvalidOrder}
	}
	if err := s.repository.ReorderPlacement(ctx, id, order); err != nil {
		return &PlacementError{PlacementID: id, Op: "reorder", Err: err}
	}
	return nil
}

func (s *service) SetPlacementAlias(ctx context.Context, id uuid.UUID, alias string) error {
	if err := s.repository.SetPlacementAlias(ctx, id, strings.TrimSpace(alias)); err != nil {
		return &PlacementError{PlacementID: id, Op: "set_alias", Err: err}
	}
	return nil
}

func (s *service) RemovePlacement(ctx context.Context, id uuid.UUID) error {
	if err := s.repository.DeletePlacement(ctx, id); err != nil {
		return &PlacementError{PlacementID: id, Op: "remove", Err: err}
	}
	return nil
}
