package simplepages

import "github.com/google/uuid"

// Request types for service operations

// CreatePageRequest contains parameters for creating a page
type CreatePageRequest struct {
	Title string
}

// ListPagesRequest contains parameters for listing pages. Page is 1-based;
// zero values fall back to the service defaults.
type ListPagesRequest struct {
	Page     int
	PageSize int
}

// AppendPlacementRequest places an existing wrapper on a page. Order zero
// appends after the current last placement.
type AppendPlacementRequest struct {
	PageID    uuid.UUID
	WrapperID uuid.UUID
	Order     int
	Alias     string
}

// PlaceContentRequest wraps a content record and places it on a page.
type PlaceContentRequest struct {
	PageID  uuid.UUID
	Content ContentRef
	Order   int
	Alias   string
}
