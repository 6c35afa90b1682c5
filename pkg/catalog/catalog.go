// Package catalog reads the file and category metadata maintained by the
// cataloging bot. This service never writes these tables.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"sharegate/pkg/models"
	"sharegate/pkg/storage"
)

var (
	// ErrFileNotFound is returned when the requested file does not exist.
	ErrFileNotFound = errors.New("file not found")

	// ErrCategoryNotFound is returned when the requested category does not exist.
	ErrCategoryNotFound = errors.New("category not found")
)

// Store provides catalog lookups.
type Store struct {
	db *sql.DB
}

// NewStore creates a catalog store on an open database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// GetFile retrieves file metadata by id.
func (s *Store) GetFile(id string) (*models.FileRecord, error) {
	var (
		record models.FileRecord
		catID  sql.NullString
		mime   sql.NullString
	)
	err := s.db.QueryRowContext(context.Background(),
		`SELECT id, category_id, name, size, mime_type, storage_ref, created_at FROM files WHERE id = ?`, id,
	).Scan(&record.ID, &catID, &record.Name, &record.Size, &mime, &record.StorageRef, &record.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrDatabase, err)
	}
	record.CategoryID = catID.String
	record.MimeType = mime.String
	return &record, nil
}

// ListCategoryFiles returns the files directly in a category, ordered by name.
func (s *Store) ListCategoryFiles(categoryID string) ([]*models.FileRecord, error) {
	ctx := context.Background()

	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM categories WHERE id = ?)`, categoryID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrDatabase, err)
	}
	if !exists {
		return nil, ErrCategoryNotFound
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, category_id, name, size, mime_type, storage_ref, created_at FROM files WHERE category_id = ? ORDER BY name`, categoryID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrDatabase, err)
	}
	defer func() { _ = rows.Close() }()

	var files []*models.FileRecord
	for rows.Next() {
		var (
			record models.FileRecord
			catID  sql.NullString
			mime   sql.NullString
		)
		if scanErr := rows.Scan(&record.ID, &catID, &record.Name, &record.Size, &mime, &record.StorageRef, &record.CreatedAt); scanErr != nil {
			return nil, fmt.Errorf("%w: %w", storage.ErrDatabase, scanErr)
		}
		record.CategoryID = catID.String
		record.MimeType = mime.String
		files = append(files, &record)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrDatabase, err)
	}
	return files, nil
}
