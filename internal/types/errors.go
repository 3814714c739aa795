package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for fieldflow operations.
var (
	// ErrIndexCountMismatch indicates a multi-placeholder path was resolved
	// with the wrong number of indices.
	ErrIndexCountMismatch = errors.New("array index count mismatch")

	// ErrEmptyTarget indicates an entry without a target field key.
	ErrEmptyTarget = errors.New("derivation target field key is empty")

	// ErrEmptySource indicates an entry without a source field key.
	ErrEmptySource = errors.New("derivation source field key is empty")

	// ErrNoDependencies indicates an entry with an empty dependsOn set.
	ErrNoDependencies = errors.New("derivation has no dependencies")

	// ErrUnknownTrigger indicates a trigger name other than onChange/debounced.
	ErrUnknownTrigger = errors.New("unknown derivation trigger")

	// ErrNegativeDebounce indicates a debounceMs below zero.
	ErrNegativeDebounce = errors.New("debounceMs must not be negative")

	// ErrTooManyPlaceholders indicates a path exceeds the placeholder limit.
	ErrTooManyPlaceholders = errors.New("field path has too many array placeholders")

	// ErrDuplicateEntryID indicates two entries of one form share an id.
	ErrDuplicateEntryID = errors.New("duplicate derivation entry id")

	// ErrDerivationCycle indicates derivations that depend on each other's targets.
	ErrDerivationCycle = errors.New("derivation dependency cycle")

	// ErrFieldNotFound indicates a concrete path could not be resolved in a form value.
	ErrFieldNotFound = errors.New("field not found")

	// ErrNotArray indicates an array placeholder met a non-array value.
	ErrNotArray = errors.New("array placeholder does not address an array")
)

// IndexCountMismatchError reports how a multi-placeholder resolution failed.
// errors.Is matches ErrIndexCountMismatch.
type IndexCountMismatchError struct {
	Path         string
	Placeholders int
	Indices      int
}

func (e *IndexCountMismatchError) Error() string {
	if e.Indices < e.Placeholders {
		return fmt.Sprintf("not enough indices for path %q: expected %d, got %d", e.Path, e.Placeholders, e.Indices)
	}
	return fmt.Sprintf("too many indices for path %q: expected %d, got %d", e.Path, e.Placeholders, e.Indices)
}

func (e *IndexCountMismatchError) Is(target error) bool {
	return target == ErrIndexCountMismatch
}
