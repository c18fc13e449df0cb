package jobs

import (
	"fmt"

	"jobtrack/internal/store"
)

// ErrNotFound mirrors the store sentinel so HTTP callers only need this
// package to classify failures.
var ErrNotFound = store.ErrNotFound

// ValidationError rejects malformed input before any store write. No state
// is mutated when it is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}
