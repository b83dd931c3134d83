package shared

import "errors"

// Error taxonomy shared by every ledger component. Domain errors wrap one of
// these so transport layers can map them with errors.Is.
var (
	// ErrValidation indicates malformed input; nothing was persisted.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a uniqueness or state conflict.
	ErrConflict = errors.New("conflict")
	// ErrConsistency indicates the ledger could not be kept consistent and the
	// transaction was aborted.
	ErrConsistency = errors.New("consistency failure")
	// ErrUnauthorized indicates a write without an acting user.
	ErrUnauthorized = errors.New("unauthorized")
)
