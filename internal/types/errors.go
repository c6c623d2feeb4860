// README: Error taxonomy shared by every dispatch module.
package types

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidInput = errors.New("invalid input")
	// ErrDegraded marks a failed external dependency. It is logged and replaced by a local
	// fallback, never returned to API callers.
	ErrDegraded = errors.New("external service degraded")
)
