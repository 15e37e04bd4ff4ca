package ledger

import "errors"

var (
	// ErrConflict reports a unique constraint violation. Callers on idempotent
	// paths treat it as "already written".
	ErrConflict = errors.New("ledger: conflict")
	// ErrNotFound reports a missing row on update paths.
	ErrNotFound = errors.New("ledger: not found")
)
