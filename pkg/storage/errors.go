package storage

import "errors"

// ErrDatabase is returned when a database operation fails.
var ErrDatabase = errors.New("database error")
