package models

import "time"

// FileRecord is the catalog metadata for a stored file. The catalog is
// maintained by the file cataloging bot; this service only reads it.
type FileRecord struct {
	ID         string    `json:"id"`
	CategoryID string    `json:"category_id,omitempty"`
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	MimeType   string    `json:"mime_type,omitempty"`
	StorageRef string    `json:"storage_ref"`
	CreatedAt  time.Time `json:"created_at"`
}

// Category is a node in the catalog's category tree.
type Category struct {
	ID       string `json:"id"`
	ParentID string `json:"parent_id,omitempty"`
	Name     string `json:"name"`
}
