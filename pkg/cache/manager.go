// Package cache stages file bytes on local disk under a global size ceiling.
// Entry metadata lives in sqlite; bytes live under the cache directory named
// by file id. Eviction removes expired entries first, then proceeds
// least-recently-used until the incoming entry fits.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"sharegate/pkg/log"
	"sharegate/pkg/models"
	"sharegate/pkg/storage"
)

const cacheDirPerm = 0750

// FetchFunc retrieves a file's bytes from the origin into w. The cache does
// not know how to reach the source store; callers inject the retrieval.
type FetchFunc func(ctx context.Context, w io.Writer) error

// Manager is the disk cache.
type Manager struct {
	db       *sql.DB
	dir      string
	maxBytes int64
	entryTTL time.Duration // zero = entries never expire
	mu       sync.Mutex
	logger   zerolog.Logger
}

// NewManager creates a cache manager. dir is created if missing. maxBytes is
// the global ceiling for the sum of all valid entries. entryTTL, when
// non-zero, gives every admitted entry an expiry.
func NewManager(db *sql.DB, dir string, maxBytes int64, entryTTL time.Duration) (*Manager, error) {
	if err := os.MkdirAll(dir, cacheDirPerm); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &Manager{
		db:       db,
		dir:      dir,
		maxBytes: maxBytes,
		entryTTL: entryTTL,
		logger:   log.With("cache"),
	}, nil
}

// GetOrFetch returns the local path of the file's cached bytes, fetching from
// the origin on a miss. On a hit the access counter and timestamp are bumped
// and fetch is not invoked. On a miss the bytes are fetched to a temp file,
// space is reclaimed by eviction, and the entry is admitted; if eviction
// cannot make room the fetch result is discarded and ErrCacheFull returned.
func (m *Manager) GetOrFetch(ctx context.Context, fileID string, fetch FetchFunc) (string, error) {
	if path, ok, err := m.hit(ctx, fileID); err != nil {
		return "", err
	} else if ok {
		return path, nil
	}

	// Miss: fetch outside the lock so hits are not blocked by origin I/O.
	tmp, err := os.CreateTemp(m.dir, "fetch-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if err := fetch(ctx, tmp); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("failed to finalize temp file: %w", err)
	}

	info, err := os.Stat(tmpPath)
	if err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("failed to stat temp file: %w", err)
	}

	path, err := m.admit(ctx, fileID, tmpPath, info.Size())
	if err != nil {
		_ = os.Remove(tmpPath)
		return "", err
	}
	return path, nil
}

// hit looks up a valid, non-expired entry and bumps its access stats.
func (m *Manager) hit(ctx context.Context, fileID string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, err := m.getEntry(ctx, fileID)
	if errors.Is(err, ErrEntryNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	now := time.Now().UTC()
	if !entry.Valid || entry.Expired(now) {
		m.removeEntry(ctx, entry)
		return "", false, nil
	}
	if _, statErr := os.Stat(entry.Path); statErr != nil {
		// Bytes vanished from disk; drop the stale metadata and re-fetch.
		m.removeEntry(ctx, entry)
		return "", false, nil
	}

	_, err = m.db.ExecContext(ctx,
		`UPDATE cache_entries SET access_count = access_count + 1, last_access_at = ? WHERE file_id = ?`,
		now, fileID,
	)
	if err != nil {
		return "", false, fmt.Errorf("%w: %w", storage.ErrDatabase, err)
	}
	return entry.Path, true, nil
}

// admit moves fetched bytes into place after making room under the ceiling.
func (m *Manager) admit(ctx context.Context, fileID, tmpPath string, size int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if size > m.maxBytes {
		return "", fmt.Errorf("%w: entry of %s exceeds ceiling of %s",
			ErrCacheFull, humanize.IBytes(uint64(size)), humanize.IBytes(uint64(m.maxBytes)))
	}
	if err := m.evictFor(ctx, size); err != nil {
		return "", err
	}

	path := filepath.Join(m.dir, fileID)
	if err := os.Rename(tmpPath, path); err != nil {
		return "", fmt.Errorf("failed to place cache file: %w", err)
	}

	now := time.Now().UTC()
	var expires *time.Time
	if m.entryTTL > 0 {
		t := now.Add(m.entryTTL)
		expires = &t
	}

	_, err := m.db.ExecContext(ctx,
		`INSERT INTO cache_entries (file_id, path, size, access_count, last_access_at, created_at, expires_at, valid)
		 VALUES (?, ?, ?, 1, ?, ?, ?, TRUE)
		 ON CONFLICT(file_id) DO UPDATE SET
		 path = excluded.path,
		 size = excluded.size,
		 access_count = access_count + 1,
		 last_access_at = excluded.last_access_at,
		 expires_at = excluded.expires_at,
		 valid = TRUE`,
		fileID, path, size, now, now, expires,
	)
	if err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("%w: %w", storage.ErrDatabase, err)
	}

	m.logger.Debug().Str("file_id", fileID).Str("size", humanize.IBytes(uint64(size))).
		Msg("Cache entry admitted")
	return path, nil
}

// evictFor frees space until incoming bytes fit under the ceiling. Expired
// entries go first regardless of recency, then valid entries in ascending
// last-access order.
func (m *Manager) evictFor(ctx context.Context, incoming int64) error {
	entries, err := m.listEntries(ctx)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	var used int64
	live := entries[:0]
	for _, entry := range entries {
		if !entry.Valid || entry.Expired(now) {
			m.removeEntry(ctx, entry)
			continue
		}
		used += entry.Size
		live = append(live, entry)
	}

	// live is already sorted by ascending last-access time.
	for _, entry := range live {
		if used+incoming <= m.maxBytes {
			break
		}
		m.removeEntry(ctx, entry)
		used -= entry.Size
		m.logger.Debug().Str("file_id", entry.FileID).Msg("Cache entry evicted")
	}

	if used+incoming > m.maxBytes {
		return fmt.Errorf("%w: cannot free %s", ErrCacheFull, humanize.IBytes(uint64(incoming)))
	}
	return nil
}

// Invalidate removes one entry outright. Safe to call concurrently with
// in-flight GetOrFetch calls; a removal mid-fetch just causes a re-fetch.
func (m *Manager) Invalidate(fileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx := context.Background()
	entry, err := m.getEntry(ctx, fileID)
	if errors.Is(err, ErrEntryNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	m.removeEntry(ctx, entry)
	return nil
}

// ClearAll removes every entry. Admin operation.
func (m *Manager) ClearAll() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx := context.Background()
	entries, err := m.listEntries(ctx)
	if err != nil {
		return 0, err
	}
	for _, entry := range entries {
		m.removeEntry(ctx, entry)
	}
	return int64(len(entries)), nil
}

// CleanupExpired removes expired and invalidated entries.
func (m *Manager) CleanupExpired() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx := context.Background()
	entries, err := m.listEntries(ctx)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	var removed int64
	for _, entry := range entries {
		if !entry.Valid || entry.Expired(now) {
			m.removeEntry(ctx, entry)
			removed++
		}
	}
	return removed, nil
}

// StartCleanup runs CleanupExpired on a ticker until ctx is cancelled.
func (m *Manager) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := m.CleanupExpired()
				if err != nil {
					m.logger.Error().Err(err).Msg("Cache cleanup failed")
					continue
				}
				if removed > 0 {
					m.logger.Info().Int64("removed", removed).Msg("Cache cleanup finished")
				}
			}
		}
	}()
}

// Usage reports current occupancy against the ceiling.
func (m *Manager) Usage() (*models.CacheUsage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	usage := &models.CacheUsage{MaxBytes: m.maxBytes}
	err := m.db.QueryRowContext(context.Background(),
		`SELECT COUNT(*), COALESCE(SUM(size), 0) FROM cache_entries WHERE valid = TRUE`,
	).Scan(&usage.Entries, &usage.UsedBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrDatabase, err)
	}
	if m.maxBytes > 0 {
		usage.UsedPercent = float64(usage.UsedBytes) / float64(m.maxBytes) * 100
	}
	return usage, nil
}

func (m *Manager) getEntry(ctx context.Context, fileID string) (*models.CacheEntry, error) {
	var (
		entry   models.CacheEntry
		expires sql.NullTime
	)
	err := m.db.QueryRowContext(ctx,
		`SELECT file_id, path, size, access_count, last_access_at, created_at, expires_at, valid
		 FROM cache_entries WHERE file_id = ?`, fileID,
	).Scan(&entry.FileID, &entry.Path, &entry.Size, &entry.AccessCount,
		&entry.LastAccessAt, &entry.CreatedAt, &expires, &entry.Valid)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrDatabase, err)
	}
	if expires.Valid {
		t := expires.Time
		entry.ExpiresAt = &t
	}
	return &entry, nil
}

func (m *Manager) listEntries(ctx context.Context) ([]*models.CacheEntry, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT file_id, path, size, access_count, last_access_at, created_at, expires_at, valid
		 FROM cache_entries ORDER BY last_access_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrDatabase, err)
	}
	defer func() { _ = rows.Close() }()

	var entries []*models.CacheEntry
	for rows.Next() {
		var (
			entry   models.CacheEntry
			expires sql.NullTime
		)
		scanErr := rows.Scan(&entry.FileID, &entry.Path, &entry.Size, &entry.AccessCount,
			&entry.LastAccessAt, &entry.CreatedAt, &expires, &entry.Valid)
		if scanErr != nil {
			return nil, fmt.Errorf("%w: %w", storage.ErrDatabase, scanErr)
		}
		if expires.Valid {
			t := expires.Time
			entry.ExpiresAt = &t
		}
		entries = append(entries, &entry)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrDatabase, err)
	}
	return entries, nil
}

// removeEntry deletes metadata and bytes; disk errors are logged, not fatal.
func (m *Manager) removeEntry(ctx context.Context, entry *models.CacheEntry) {
	if _, err := m.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE file_id = ?`, entry.FileID); err != nil {
		m.logger.Error().Err(err).Str("file_id", entry.FileID).Msg("Failed to delete cache row")
		return
	}
	if err := os.Remove(entry.Path); err != nil && !os.IsNotExist(err) {
		m.logger.Error().Err(err).Str("path", entry.Path).Msg("Failed to delete cache file")
	}
}
