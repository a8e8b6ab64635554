package internalerr

import "errors"

// Sentinel errors for common cases
var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrInvalidConfig = errors.New("invalid configuration")

	// Fatal: the run stops.
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrBackupFailed     = errors.New("backup failed")
	ErrLocked           = errors.New("store is locked by another run")
	ErrStoreChanged     = errors.New("store changed since it was loaded")

	// Recoverable: counted, logged, run continues.
	ErrCategoryParseIncomplete = errors.New("category parse incomplete")
	ErrCategoryNotFound        = errors.New("category not found")
	ErrSampleUnreadable        = errors.New("sample unreadable")
)

// IsFatal reports whether err stops a run outright.
func IsFatal(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) ||
		errors.Is(err, ErrBackupFailed) ||
		errors.Is(err, ErrLocked) ||
		errors.Is(err, ErrStoreChanged) ||
		errors.Is(err, ErrInvalidConfig)
}
