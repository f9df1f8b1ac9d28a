// Package counters runs view-counter increments outside the request path.
//
// A Dispatcher turns the refs resolved by a page view into one Job per kind
// and publishes them on a Queue. A Worker pool receives jobs and applies each
// as a single relative update through the kind's store, retrying with
// exponential backoff. Jobs are acknowledged after they succeed or exhaust
// their attempts; a job interrupted by shutdown stays unacknowledged.
package counters

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-pages/pkg/simplepages"
)

// Job is the increment of one kind group. It is the unit of retry, so a
// failing kind never re-applies another kind's increments.
type Job struct {
	ID         uuid.UUID           `json:"id"`
	Kind       simplepages.Kind    `json:"kind"`
	Deltas     map[uuid.UUID]int64 `json:"deltas"`
	EnqueuedAt time.Time           `json:"enqueued_at"`
}

// NewJob builds a job from a kind group.
func NewJob(group simplepages.CounterGroup) Job {
	return Job{
		ID:         uuid.New(),
		Kind:       group.Kind,
		Deltas:     group.Deltas,
		EnqueuedAt: time.Now().UTC(),
	}
}

// IDs returns the record ids the job increments.
func (j Job) IDs() []uuid.UUID {
	return simplepages.CounterGroup{Kind: j.Kind, Deltas: j.Deltas}.IDs()
}

var (
	// ErrQueueClosed is returned by a queue after Close
	ErrQueueClosed = errors.New("counter queue closed")

	// ErrQueueFull is returned when an in-memory queue has no free slot
	ErrQueueFull = errors.New("counter queue full")
)

// FailureError reports a job that exhausted its attempts.
type FailureError struct {
	Job      Job
	Attempts int
	Err      error
}

func (e *FailureError) Error() string {
	return fmt.Sprintf("counter job %s for kind %s failed after %d attempts: %v", e.Job.ID, e.Job.Kind, e.Attempts, e.Err)
}

// Unwrap exposes both simplepages.ErrCounterUpdateFailure and the last store error.
func (e *FailureError) Unwrap() []error {
	return []error{simplepages.ErrCounterUpdateFailure, e.Err}
}
