package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates malformed caller input; callers must not retry.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates a contradictory grant already exists for the same key.
	ErrConflict = errors.New("conflicting grant")
	// ErrDependency indicates a backing store was unreachable or timed out.
	// Authorization fails closed on this error but it must stay distinguishable
	// from a policy deny.
	ErrDependency = errors.New("dependency unavailable")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)

// Dependency wraps a storage error so callers can match ErrDependency while
// keeping the underlying cause in the message.
func Dependency(err error) error {
	return fmt.Errorf("%w: %v", ErrDependency, err)
}

