package repository

import "errors"

var (
	// ErrProfileNotFound is returned when an operation names a profile that does not exist.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrProfileIsCurrent is returned when deleting the active profile.
	ErrProfileIsCurrent = errors.New("cannot delete the current profile, select another profile first")
	// ErrPersistence marks writes that failed after retries were exhausted.
	ErrPersistence = errors.New("persistence failure")
)

// IsPolicy reports whether err is a rejection of the request itself rather
// than a transient or storage failure.
func IsPolicy(err error) bool {
	return errors.Is(err, ErrProfileNotFound) || errors.Is(err, ErrProfileIsCurrent)
}
