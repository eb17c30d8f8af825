package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is the sentinel for missing nodes, bindings and phrases.
	ErrNotFound = errors.New("not found")
	// ErrValidation is the sentinel for rejected input. Nothing has been
	// mutated when a validation error is returned.
	ErrValidation = errors.New("validation failed")
	// ErrDuplicateTaxonomy is returned when a node name already exists in
	// its parent scope for the tenant.
	ErrDuplicateTaxonomy = errors.New("taxonomy entry already exists")
	// ErrExternalStore wraps embedding-provider and vector-store failures.
	// Relational state is never committed once one of these is raised, but
	// vector writes flushed before the failure stay in place.
	ErrExternalStore = errors.New("external store failure")
	// ErrConflict is returned when an operation loses to one already in
	// flight, such as a second bulk reconciliation for the same tenant.
	ErrConflict = errors.New("conflicting operation in progress")
)

func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}

func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrNotFound}, args...)...)
}

func Duplicatef(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrDuplicateTaxonomy}, args...)...)
}

func Conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrConflict}, args...)...)
}

func ExternalStore(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrExternalStore, op, err)
}
