package types

import "errors"

// Sentinel errors shared across packages. Callers classify failures with
// errors.Is rather than string matching.
var (
	// ErrMissingProjectID is returned by the store when a symbol write
	// arrives without an owning project. The store is the last line of
	// defense for this invariant.
	ErrMissingProjectID = errors.New("symbol has no project id")

	// ErrProjectNotFound is returned when an operation references an
	// unregistered project.
	ErrProjectNotFound = errors.New("project not found")

	// ErrEmptyQuery is returned by search when the query is empty or
	// whitespace.
	ErrEmptyQuery = errors.New("search query is empty")

	// ErrIndexInProgress is returned when an indexing run is requested
	// for a project that is already being indexed.
	ErrIndexInProgress = errors.New("indexing already in progress for project")

	// ErrUnsupportedLanguage is returned when no parser is registered for
	// a file's extension.
	ErrUnsupportedLanguage = errors.New("unsupported language")

	// ErrDimensionMismatch is returned when an embedding's dimensionality
	// does not match the dimension the index was created with.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)
