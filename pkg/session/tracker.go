// Package session tracks download sessions through their lifecycle:
// pending -> downloading -> completed | failed | cancelled. Terminal states
// are final; mutation attempts on a finished session are ignored rather than
// raised, so callers need not guarantee single finalization.
package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"sharegate/pkg/log"
	"sharegate/pkg/models"
	"sharegate/pkg/storage"
)

// Tracker manages download session records in sqlite.
type Tracker struct {
	db     *sql.DB
	mu     sync.RWMutex
	logger zerolog.Logger
}

// NewTracker creates a session tracker on an open database.
func NewTracker(db *sql.DB) *Tracker {
	return &Tracker{db: db, logger: log.With("sessions")}
}

// ChooseMethod selects the retrieval method for a transfer: the direct path
// for files under the configured ceiling, the relay path otherwise. Decided
// once per session and recorded for observability.
func ChooseMethod(fileSize, directLimit int64) models.RetrievalMethod {
	if directLimit > 0 && fileSize > directLimit {
		return models.MethodRelay
	}
	return models.MethodDirect
}

// Begin opens a session for one redemption attempt in the pending state.
func (t *Tracker) Begin(linkCode, fileID, clientIP, userAgent string, totalBytes, directLimit int64) (*models.Session, error) {
	record := &models.Session{
		ID:         uuid.NewString(),
		LinkCode:   linkCode,
		FileID:     fileID,
		ClientIP:   clientIP,
		UserAgent:  userAgent,
		Method:     ChooseMethod(totalBytes, directLimit),
		TotalBytes: totalBytes,
		Status:     models.SessionPending,
		StartedAt:  time.Now().UTC(),
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	_, err := t.db.ExecContext(context.Background(),
		`INSERT INTO sessions (id, link_code, file_id, client_ip, user_agent, method, total_bytes, downloaded_bytes, status, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		record.ID, record.LinkCode, record.FileID, record.ClientIP, record.UserAgent,
		string(record.Method), record.TotalBytes, string(record.Status), record.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrDatabase, err)
	}
	return record, nil
}

// Start transitions a pending session to downloading when the first bytes are
// requested. Starting a session that has moved on is a no-op.
func (t *Tracker) Start(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, err := t.db.ExecContext(context.Background(),
		`UPDATE sessions SET status = ? WHERE id = ? AND status = ?`,
		string(models.SessionDownloading), id, string(models.SessionPending),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", storage.ErrDatabase, err)
	}
	return nil
}

// Progress adds delta to the session's byte counter. Deltas are positive, so
// the counter is monotonically non-decreasing within a session. Updates on a
// terminal session are ignored.
func (t *Tracker) Progress(id string, delta int64) error {
	if delta <= 0 {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	_, err := t.db.ExecContext(context.Background(),
		`UPDATE sessions SET downloaded_bytes = downloaded_bytes + ?
		 WHERE id = ? AND status = ?`,
		delta, id, string(models.SessionDownloading),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", storage.ErrDatabase, err)
	}
	return nil
}

// Finish finalizes a session as completed or failed. Finalization is
// idempotent: the conditional update only touches non-terminal sessions, so a
// second call finds nothing to do and the state set by the first call stands.
func (t *Tracker) Finish(id string, success bool, errorDetail string) error {
	status := models.SessionCompleted
	if !success {
		status = models.SessionFailed
	}
	return t.finalize(id, status, errorDetail)
}

// Cancel moves a session to cancelled. Cancelled sessions never count against
// their link's download quota.
func (t *Tracker) Cancel(id string) error {
	return t.finalize(id, models.SessionCancelled, "")
}

func (t *Tracker) finalize(id string, status models.SessionStatus, errorDetail string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	result, err := t.db.ExecContext(context.Background(),
		`UPDATE sessions SET status = ?, error_detail = ?, completed_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		string(status), errorDetail, time.Now().UTC(), id,
		string(models.SessionPending), string(models.SessionDownloading),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", storage.ErrDatabase, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %w", storage.ErrDatabase, err)
	}
	if affected == 0 {
		t.logger.Debug().Str("session_id", id).Str("status", string(status)).
			Msg("Ignoring finalization of already-terminal session")
	}
	return nil
}

// Get retrieves a session by id.
func (t *Tracker) Get(id string) (*models.Session, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	row := t.db.QueryRowContext(context.Background(),
		`SELECT id, link_code, file_id, client_ip, user_agent, method, total_bytes, downloaded_bytes, status, error_detail, started_at, completed_at
		 FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

// ListActive returns sessions in the pending or downloading state.
func (t *Tracker) ListActive() ([]*models.Session, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rows, err := t.db.QueryContext(context.Background(),
		`SELECT id, link_code, file_id, client_ip, user_agent, method, total_bytes, downloaded_bytes, status, error_detail, started_at, completed_at
		 FROM sessions WHERE status IN (?, ?) ORDER BY started_at`,
		string(models.SessionPending), string(models.SessionDownloading),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrDatabase, err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*models.Session
	for rows.Next() {
		record, scanErr := scanSession(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		sessions = append(sessions, record)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrDatabase, err)
	}
	return sessions, nil
}

// CountActive returns the number of in-flight sessions.
func (t *Tracker) CountActive() (int64, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var count int64
	err := t.db.QueryRowContext(context.Background(),
		`SELECT COUNT(*) FROM sessions WHERE status IN (?, ?)`,
		string(models.SessionPending), string(models.SessionDownloading),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", storage.ErrDatabase, err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	var (
		record    models.Session
		method    string
		status    string
		clientIP  sql.NullString
		userAgent sql.NullString
		errDetail sql.NullString
		completed sql.NullTime
	)
	err := row.Scan(&record.ID, &record.LinkCode, &record.FileID, &clientIP, &userAgent,
		&method, &record.TotalBytes, &record.DownloadedBytes, &status, &errDetail,
		&record.StartedAt, &completed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrDatabase, err)
	}

	record.Method = models.RetrievalMethod(method)
	record.Status = models.SessionStatus(status)
	record.ClientIP = clientIP.String
	record.UserAgent = userAgent.String
	record.ErrorDetail = errDetail.String
	if completed.Valid {
		t := completed.Time
		record.CompletedAt = &t
	}
	return &record, nil
}
