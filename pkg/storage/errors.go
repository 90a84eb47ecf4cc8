package storage

import "errors"

// Sentinel errors for storage operations.
var (
	// ErrNotFound is returned when a conversation does not exist or has
	// been deleted.
	ErrNotFound = errors.New("conversation not found")

	// ErrConflict is returned when a conversation with the given ID
	// already exists.
	ErrConflict = errors.New("conversation already exists")
)
