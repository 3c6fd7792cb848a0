package relato

import "github.com/soundprediction/relato/pkg/types"

// Re-exported sentinels so callers can match errors without importing
// pkg/types.
var (
	// ErrNotFound is returned when a lookup names an unknown id.
	ErrNotFound = types.ErrNotFound
	// ErrDuplicateKey is returned when an insert collides with a unique
	// canonical-key constraint.
	ErrDuplicateKey = types.ErrDuplicateKey
	// ErrMergeCycle is returned when a merge would create a cycle in merge
	// history.
	ErrMergeCycle = types.ErrMergeCycle
	// ErrSelfMerge is returned when primary and duplicate are the same row.
	ErrSelfMerge = types.ErrSelfMerge
)
