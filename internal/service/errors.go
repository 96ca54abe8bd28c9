package service

import (
	"fmt"
	"sort"
	"strings"

	"github.com/clinicride/escort-booking/internal/model"
)

// ValidationError reports malformed or out-of-range input, keyed by field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.Fields[k]
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// AuthorizationError means the caller lacks the role or ownership the
// operation requires.
type AuthorizationError struct {
	Message string
}

func (e *AuthorizationError) Error() string { return e.Message }

// NotFoundError means a referenced entity is absent or inactive.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ConflictError means a conditional write lost to a concurrent writer.
// For ACCEPT this is the expected outcome for all but one guardian;
// clients should re-poll the pending list.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// InvalidTransitionError names a status change the lifecycle forbids.
type InvalidTransitionError struct {
	From model.BookingStatus
	To   model.BookingStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("Cannot transition from %s to %s", e.From, e.To)
}

// InternalError wraps an unexpected storage or dependency failure.  The
// cause is for logs only and must not reach callers.
type InternalError struct {
	Op  string
	Err error
}

func (e *InternalError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *InternalError) Unwrap() error { return e.Err }

func internal(op string, err error) error { return &InternalError{Op: op, Err: err} }

func denied(msg string) error { return &AuthorizationError{Message: msg} }
