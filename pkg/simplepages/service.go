package simplepages

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the main interface for the simple-pages library
type Service interface {
	// Page operations
	CreatePage(ctx context.Context, req CreatePageRequest) (*Page, error)
	DeletePage(ctx context.Context, id uuid.UUID) error
	GetPageSummary(ctx context.Context, id uuid.UUID) (*PageSummary, error)
	ListPages(ctx context.Context, req ListPagesRequest) (*PageList, error)
	// GetPageDetail resolves the page's ordered content and counts the view.
	GetPageDetail(ctx context.Context, id uuid.UUID) (*PageDetail, error)

	// Content operations
	CreateContent(ctx context.Context, record Record) error
	GetContent(ctx context.Context, ref ContentRef) (Record, error)
	DeleteContent(ctx context.Context, ref ContentRef) error

	// Wrapper operations
	WrapContent(ctx context.Context, ref ContentRef) (*Wrapper, error)
	Dereference(ctx context.Context, wrapperID uuid.UUID) (ContentRef, error)
	DeleteWrapper(ctx context.Context, id uuid.UUID) error

	// Placement operations
	PlaceContent(ctx context.Context, req PlaceContentRequest) (*Placement, error)
	AppendPlacement(ctx context.Context, req AppendPlacementRequest) (*Placement, error)
	ListOrdered(ctx context.Context, pageID uuid.UUID) ([]*OrderedPlacement, error)
	ReorderPlacement(ctx context.Context, id uuid.UUID, order int) error
	SetPlacementAlias(ctx context.Context, id uuid.UUID, alias string) error
	RemovePlacement(ctx context.Context, id uuid.UUID) error
}
