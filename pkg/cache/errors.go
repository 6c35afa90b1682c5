package cache

import "errors"

var (
	// ErrCacheFull is returned when eviction cannot free enough space to
	// admit a new entry under the configured ceiling.
	ErrCacheFull = errors.New("cache full")

	// ErrEntryNotFound is returned when the requested entry does not exist.
	ErrEntryNotFound = errors.New("cache entry not found")
)
