package types

import "errors"

// Validation and storage errors shared across packages.
var (
	// ErrEmptyID is returned when an entity reference has no id.
	ErrEmptyID = errors.New("id cannot be empty")

	// ErrInvalidEntityKind is returned for an unrecognized entity kind.
	ErrInvalidEntityKind = errors.New("invalid entity kind")

	// ErrEmptyFactKey is returned when a fact is missing its type or key.
	ErrEmptyFactKey = errors.New("fact type and key cannot be empty")

	// ErrConfidenceRange is returned when a confidence is outside [0,1].
	ErrConfidenceRange = errors.New("confidence must be within [0,1]")

	// ErrNotFound is returned when a lookup names an unknown id.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateKey is returned when an insert collides with the unique
	// canonical-key constraint. Resolvers recover from it with one retry.
	ErrDuplicateKey = errors.New("canonical key already exists")

	// ErrMergeCycle is returned when a merge would make two entities each
	// other's ancestor in the merge history.
	ErrMergeCycle = errors.New("merge would create a cycle in merge history")

	// ErrSelfMerge is returned when primary and duplicate are the same row.
	ErrSelfMerge = errors.New("cannot merge an entity into itself")
)

// ValidationError reports a missing or malformed identity field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return "validation failed on " + e.Field + ": " + e.Reason
}

// Is implements errors.Is support for ValidationError.
// This allows errors.Is(err, &ValidationError{}) to work with wrapped errors.
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)
	return ok
}

// NewValidationError creates a new validation error for a field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// NotFoundError reports a merge or update against an unknown id.
type NotFoundError struct {
	Kind EntityKind
	ID   string
}

func (e *NotFoundError) Error() string {
	return string(e.Kind) + " " + e.ID + " not found"
}

// Is implements errors.Is support for NotFoundError, and also matches the
// ErrNotFound sentinel so both styles of check work.
func (e *NotFoundError) Is(target error) bool {
	if target == ErrNotFound {
		return true
	}
	_, ok := target.(*NotFoundError)
	return ok
}

// NewNotFoundError creates a new not-found error for an entity id.
func NewNotFoundError(kind EntityKind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}
