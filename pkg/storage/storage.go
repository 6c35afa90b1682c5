// Package storage owns the sqlite database shared by the token, link,
// session, and cache stores. Durable state lives here; every counter
// mutation in the domain packages is a conditional UPDATE so that
// concurrent requests serialize in the database, not in Go.
package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Open opens the sqlite database at dbPath, applies the connection pragmas,
// and creates the schema if needed.
func Open(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %w", ErrDatabase, err)
	}

	ctx := context.Background()

	// Enable foreign keys
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: failed to enable foreign keys: %w", ErrDatabase, err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: failed to enable WAL mode: %w", ErrDatabase, err)
	}

	if _, err := db.ExecContext(ctx, Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: failed to initialize schema: %w", ErrDatabase, err)
	}

	return db, nil
}
