package simplepages

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Error types
var (
	// ErrNotFound is the root of every lookup failure
	ErrNotFound = errors.New("not found")

	// ErrPageNotFound indicates a page was not found
	ErrPageNotFound = fmt.Errorf("page %w", ErrNotFound)

	// ErrWrapperNotFound indicates a content wrapper was not found
	ErrWrapperNotFound = fmt.Errorf("content wrapper %w", ErrNotFound)

	// ErrContentNotFound indicates no record exists for a (kind, id) pair
	ErrContentNotFound = fmt.Errorf("content %w", ErrNotFound)

	// ErrPlacementNotFound indicates a placement was not found
	ErrPlacementNotFound = fmt.Errorf("placement %w", ErrNotFound)

	// ErrUnknownKind indicates a kind tag that is not registered
	ErrUnknownKind = errors.New("unknown content kind")

	// ErrInvalidKind is returned when a wrapper is requested for an unregistered kind
	ErrInvalidKind = fmt.Errorf("invalid kind: %w", ErrUnknownKind)

	// ErrKindRegistered indicates a second store was registered for the same kind
	ErrKindRegistered = errors.New("content kind already registered")

	// ErrDuplicatePlacement indicates the wrapper is already placed on the page
	ErrDuplicatePlacement = errors.New("content already placed on page")

	// ErrInvalidOrder indicates a negative placement order
	ErrInvalidOrder = errors.New("placement order must be non-negative")

	// ErrInvalidPage indicates a listing page number past the last page
	ErrInvalidPage = errors.New("invalid page")

	// ErrInvalidContent indicates a record failed validation
	ErrInvalidContent = errors.New("invalid content")

	// ErrCounterUpdateFailure indicates a counter update could not be applied
	ErrCounterUpdateFailure = errors.New("counter update failed")
)

// PageError represents an error related to page operations
type PageError struct {
	PageID uuid.UUID
	Op     string
	Err    error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("page operation %s failed for page %s: %v", e.Op, e.PageID, e.Err)
}

func (e *PageError) Unwrap() error {
	return e.Err
}

// PlacementError represents an error related to placement operations
type PlacementError struct {
	PlacementID uuid.UUID
	PageID      uuid.UUID
	Op          string
	Err         error
}

func (e *PlacementError) Error() string {
	if e.PlacementID == uuid.Nil {
		return fmt.Sprintf("placement operation %s failed on page %s: %v", e.Op, e.PageID, e.Err)
	}
	return fmt.Sprintf("placement operation %s failed for placement %s: %v", e.Op, e.PlacementID, e.Err)
}

func (e *PlacementError) Unwrap() error {
	return e.Err
}

// CounterError represents a failed counter update for one kind group
type CounterError struct {
	Kind Kind
	Err  error
}

func (e *CounterError) Error() string {
	return fmt.Sprintf("%v for kind %s: %v", ErrCounterUpdateFailure, e.Kind, e.Err)
}

// Unwrap exposes both the failure sentinel and the store error.
func (e *CounterError) Unwrap() []error {
	return []error{ErrCounterUpdateFailure, e.Err}
}
