// Package apperr defines the error taxonomy shared by every component of the
// ingestion core and its mapping onto HTTP status codes at the handler
// boundary (§7 of the design: engine functions recover nothing, they return a
// tagged result; workers decide retry vs quarantine; handlers translate).
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the error taxonomy every component tags its failures with.
type Kind string

const (
	// Transient is a retryable upstream or network condition.
	Transient Kind = "transient"
	// RateLimited is surfaced by the client layer; retried with the
	// upstream-provided backoff.
	RateLimited Kind = "rate_limited"
	// Permanent is a schema error, 4xx other than 429, or decode failure;
	// never retried, the task is quarantined.
	Permanent Kind = "permanent"
	// InsufficientData means the engine could not produce a derived row
	// (empty window, no valid biomass, missing baseline). Recorded as a
	// task failure without retry and without alert: the normal outcome of
	// a quiet plot.
	InsufficientData Kind = "insufficient_data"
	// Conflict means a concurrent writer already produced the row; the
	// current task no-ops.
	Conflict Kind = "conflict"
	// Cancelled is cooperative cancellation (soft limit or deadline);
	// re-enqueued preserving the attempt counter.
	Cancelled Kind = "cancelled"
	// Fatal is an invariant violation; aborts the task and raises an alert.
	Fatal Kind = "fatal"
)

// Error is the tagged failure value every component returns instead of a
// bare error. Engine code never panics or recovers; it returns one of these.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a tagged error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap tags an underlying error with a kind.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the taxonomy kind from err, defaulting to Fatal for
// anything that was not produced by this package.
func KindOf(err error) Kind {
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Kind
	}
	return Fatal
}

// HTTPStatus maps a taxonomy kind onto the status code the command/query
// surface returns (§7): Transient->502, RateLimited->429, Permanent->422,
// InsufficientData->404, Conflict->409, Fatal->500.
func HTTPStatus(kind Kind) int {
	switch kind {
	case Transient:
		return http.StatusBadGateway
	case RateLimited:
		return http.StatusTooManyRequests
	case Permanent:
		return http.StatusUnprocessableEntity
	case InsufficientData:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case Cancelled:
		return http.StatusInternalServerError
	case Fatal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether a scheduler should retry a task that failed with
// this kind of error (§4.5/§7: only Transient and RateLimited retry; Cancelled
// re-enqueues with the attempt counter preserved, which callers handle
// separately since it is not a retry-count increment).
func Retryable(kind Kind) bool {
	switch kind {
	case Transient, RateLimited:
		return true
	default:
		return false
	}
}
