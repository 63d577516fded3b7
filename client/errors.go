// Package client talks to the remote pipeline engine: one-shot snapshot
// and run-management calls over HTTP, and a long-lived SSE subscription
// to a run's live event feed.
package client

import (
	"errors"
	"fmt"
)

// Sentinel errors for API failure classification.
// Use errors.Is(err, ErrXxx) for typed assertions.
var (
	// ErrNotFound indicates the run identifier is unknown to the engine.
	// Terminal; retrying cannot succeed.
	ErrNotFound = errors.New("run not found")

	// ErrUnavailable indicates the engine could not be reached or answered
	// with a server-side failure. Transient; retrying may succeed.
	ErrUnavailable = errors.New("engine unavailable")

	// ErrStreamClosed indicates an operation on a subscription that has
	// already ended.
	ErrStreamClosed = errors.New("event stream closed")
)

// APIError wraps an underlying error with request classification.
// It preserves the original error in the chain for errors.As inspection.
type APIError struct {
	// Kind is the sentinel for classification (ErrNotFound, ErrUnavailable).
	Kind error
	// Op is the operation that failed (e.g. "get_run", "subscribe").
	Op string
	// RunID is the run involved, if any.
	RunID string
	// StatusCode is the HTTP status, 0 for transport-level failures.
	StatusCode int
	// Err is the underlying error, may be nil for pure HTTP status failures.
	Err error
}

func (e *APIError) Error() string {
	switch {
	case e.Err != nil && e.RunID != "":
		return fmt.Sprintf("%s %s: %v: %v", e.Op, e.RunID, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	case e.RunID != "":
		return fmt.Sprintf("%s %s: %v (HTTP %d)", e.Op, e.RunID, e.Kind, e.StatusCode)
	default:
		return fmt.Sprintf("%s: %v (HTTP %d)", e.Op, e.Kind, e.StatusCode)
	}
}

// Unwrap returns the underlying error for errors.Is/As chain traversal.
func (e *APIError) Unwrap() error {
	return e.Err
}

// Is reports whether the error matches the target sentinel.
func (e *APIError) Is(target error) bool {
	return errors.Is(e.Kind, target)
}
