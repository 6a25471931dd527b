package storage

import "errors"

var (
	// ErrConflict reports a uniqueness violation.
	ErrConflict = errors.New("storage conflict")
	// ErrNotFound reports a missing record.
	ErrNotFound = errors.New("record not found")
	// ErrUnavailable reports that the store is not ready.
	ErrUnavailable = errors.New("storage unavailable")
)
