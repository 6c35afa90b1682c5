package models

import "time"

// CacheEntry is the metadata for one locally staged copy of a file.
type CacheEntry struct {
	FileID       string     `json:"file_id"`
	Path         string     `json:"path"`
	Size         int64      `json:"size"`
	AccessCount  int64      `json:"access_count"`
	LastAccessAt time.Time  `json:"last_access_at"`
	CreatedAt    time.Time  `json:"created_at"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	Valid        bool       `json:"valid"`
}

// Expired reports whether the entry has an expiry in the past.
func (e *CacheEntry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && now.After(*e.ExpiresAt)
}

// CacheUsage summarizes cache occupancy against the configured ceiling.
type CacheUsage struct {
	Entries     int64   `json:"entries"`
	UsedBytes   int64   `json:"used_bytes"`
	MaxBytes    int64   `json:"max_bytes"`
	UsedPercent float64 `json:"used_percent"`
}
