// Package link maps short human-shareable codes to catalog targets. Expiry
// and quota are soft state evaluated at resolve time; links are never purged,
// only deactivated.
package link

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"sharegate/pkg/models"
	"sharegate/pkg/storage"
)

// Registry manages share link records in sqlite.
type Registry struct {
	db       *sql.DB
	mu       sync.RWMutex
	nextCode CodeFunc
}

// NewRegistry creates a link registry on an open database.
func NewRegistry(db *sql.DB) *Registry {
	return NewRegistryWithCodeFunc(db, RandomCode)
}

// NewRegistryWithCodeFunc creates a registry with a custom code source.
func NewRegistryWithCodeFunc(db *sql.DB, nextCode CodeFunc) *Registry {
	return &Registry{db: db, nextCode: nextCode}
}

// CreateOptions holds the optional settings of a new share link.
type CreateOptions struct {
	Title          string
	Description    string
	MaxDownloads   int64         // zero = unlimited
	ExpiresIn      time.Duration // zero = never expires
	Password       string        // hashed before storage, empty = none
	AllowedIPs     []string      // empty = any address
	BandwidthLimit int64         // bytes/sec, zero = none
	WebhookURL     string
}

// CreateLink mints a share code for the given target. On a code collision a
// fresh code is drawn; after maxCodeAttempts collisions creation fails with
// ErrCodeSpaceExhausted.
func (r *Registry) CreateLink(kind models.LinkTarget, refs []string, createdBy string, opts *CreateOptions) (*models.Link, error) {
	if !kind.Valid() || len(refs) == 0 {
		return nil, ErrInvalidTarget
	}
	if kind != models.TargetCollection && len(refs) != 1 {
		return nil, fmt.Errorf("%w: %s links take exactly one reference", ErrInvalidTarget, kind)
	}
	if opts == nil {
		opts = &CreateOptions{}
	}

	record := &models.Link{
		ID:             uuid.NewString(),
		TargetKind:     kind,
		TargetRefs:     refs,
		CreatedBy:      createdBy,
		Title:          opts.Title,
		Description:    opts.Description,
		MaxDownloads:   opts.MaxDownloads,
		AllowedIPs:     opts.AllowedIPs,
		BandwidthLimit: opts.BandwidthLimit,
		WebhookURL:     opts.WebhookURL,
		Active:         true,
		CreatedAt:      time.Now().UTC(),
	}
	if opts.ExpiresIn != 0 {
		expires := record.CreatedAt.Add(opts.ExpiresIn)
		record.ExpiresAt = &expires
	}
	if opts.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(opts.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		record.PasswordHash = string(hash)
	}

	refsJSON, err := json.Marshal(refs)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to serialize refs: %w", storage.ErrDatabase, err)
	}
	ipsJSON, err := json.Marshal(record.AllowedIPs)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to serialize allow-list: %w", storage.ErrDatabase, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ctx := context.Background()
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, codeErr := r.nextCode(CodeLength)
		if codeErr != nil {
			return nil, codeErr
		}

		_, err = r.db.ExecContext(ctx,
			`INSERT INTO links (id, code, target_kind, target_refs, created_by, title, description,
			                    max_downloads, downloads, expires_at, password_hash, allowed_ips,
			                    bandwidth_limit, webhook_url, active, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?, ?, ?, TRUE, ?)`,
			record.ID, code, string(record.TargetKind), string(refsJSON), record.CreatedBy,
			record.Title, record.Description, record.MaxDownloads, record.ExpiresAt,
			record.PasswordHash, string(ipsJSON), record.BandwidthLimit, record.WebhookURL,
			record.CreatedAt,
		)
		if err == nil {
			record.Code = code
			return record, nil
		}
		if !strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, fmt.Errorf("%w: %w", storage.ErrDatabase, err)
		}
		// Collision: redraw rather than overwrite the existing link.
	}
	return nil, ErrCodeSpaceExhausted
}

// ResolveLink checks whether a code can be redeemed by the given client.
// Checks run in a fixed order — existence, active flag, expiry, quota, IP
// allow-list, password — and the first failure is reported, so the denial
// reason is deterministic.
func (r *Registry) ResolveLink(code, clientIP, password string) (*models.Link, error) {
	r.mu.RLock()
	record, err := r.getLink(context.Background(), code)
	r.mu.RUnlock()
	if errors.Is(err, ErrLinkNotFound) {
		return nil, &RedemptionError{Reason: ReasonNotFound}
	}
	if err != nil {
		return nil, err
	}

	switch {
	case !record.Active:
		return nil, &RedemptionError{Reason: ReasonInactive}
	case record.Expired(time.Now().UTC()):
		return nil, &RedemptionError{Reason: ReasonExpired}
	case record.QuotaExhausted():
		return nil, &RedemptionError{Reason: ReasonQuotaExceeded}
	case !record.IPAllowed(clientIP):
		return nil, &RedemptionError{Reason: ReasonIPDenied}
	case record.PasswordHash != "":
		if bcrypt.CompareHashAndPassword([]byte(record.PasswordHash), []byte(password)) != nil {
			return nil, &RedemptionError{Reason: ReasonBadPassword}
		}
	}
	return record, nil
}

// RecordRedemption increments the download counter for a confirmed completed
// transfer. The check and increment happen in one statement, so a link with
// max_downloads = N never records more than N completions under concurrent
// redemption. Callers invoke this once per completed session, never per
// attempt.
func (r *Registry) RecordRedemption(code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctx := context.Background()
	result, err := r.db.ExecContext(ctx,
		`UPDATE links SET downloads = downloads + 1
		 WHERE code = ? AND active = TRUE AND (max_downloads = 0 OR downloads < max_downloads)`,
		code,
	)
	if err != nil {
		return fmt.Errorf("%w: %w", storage.ErrDatabase, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %w", storage.ErrDatabase, err)
	}
	if affected == 0 {
		var exists bool
		if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM links WHERE code = ?)`, code).Scan(&exists); err != nil {
			return fmt.Errorf("%w: %w", storage.ErrDatabase, err)
		}
		if !exists {
			return ErrLinkNotFound
		}
		return &RedemptionError{Reason: ReasonQuotaExceeded}
	}
	return nil
}

// DeactivateLink clears the active flag. Only the creating token or an admin
// override may deactivate; deactivating an already-inactive link succeeds.
func (r *Registry) DeactivateLink(code, requesterTokenID string, adminOverride bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctx := context.Background()
	record, err := r.getLink(ctx, code)
	if err != nil {
		return err
	}
	if !adminOverride && record.CreatedBy != requesterTokenID {
		return ErrForbidden
	}

	if _, err := r.db.ExecContext(ctx, `UPDATE links SET active = FALSE WHERE code = ?`, code); err != nil {
		return fmt.Errorf("%w: %w", storage.ErrDatabase, err)
	}
	return nil
}

// GetLink retrieves a link record by code without redemption checks.
func (r *Registry) GetLink(code string) (*models.Link, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.getLink(context.Background(), code)
}

// Stats returns the link together with its session aggregates.
func (r *Registry) Stats(code string) (*models.LinkStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ctx := context.Background()
	record, err := r.getLink(ctx, code)
	if err != nil {
		return nil, err
	}

	stats := &models.LinkStats{Link: record}
	err = r.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(downloaded_bytes), 0)
		 FROM sessions WHERE link_code = ?`,
		code,
	).Scan(&stats.TotalSessions, &stats.CompletedSessions, &stats.FailedSessions, &stats.BytesServed)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrDatabase, err)
	}
	return stats, nil
}

func (r *Registry) getLink(ctx context.Context, code string) (*models.Link, error) {
	var (
		record   models.Link
		kind     string
		refsJSON string
		title    sql.NullString
		desc     sql.NullString
		expires  sql.NullTime
		pwHash   sql.NullString
		ipsJSON  sql.NullString
		webhook  sql.NullString
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, code, target_kind, target_refs, created_by, title, description,
		        max_downloads, downloads, expires_at, password_hash, allowed_ips,
		        bandwidth_limit, webhook_url, active, created_at
		 FROM links WHERE code = ?`, code,
	).Scan(&record.ID, &record.Code, &kind, &refsJSON, &record.CreatedBy, &title, &desc,
		&record.MaxDownloads, &record.Downloads, &expires, &pwHash, &ipsJSON,
		&record.BandwidthLimit, &webhook, &record.Active, &record.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrLinkNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrDatabase, err)
	}

	record.TargetKind = models.LinkTarget(kind)
	record.Title = title.String
	record.Description = desc.String
	record.PasswordHash = pwHash.String
	record.WebhookURL = webhook.String
	if expires.Valid {
		t := expires.Time
		record.ExpiresAt = &t
	}
	if err := json.Unmarshal([]byte(refsJSON), &record.TargetRefs); err != nil {
		return nil, fmt.Errorf("%w: failed to parse refs: %w", storage.ErrDatabase, err)
	}
	if ipsJSON.Valid && ipsJSON.String != "" {
		if err := json.Unmarshal([]byte(ipsJSON.String), &record.AllowedIPs); err != nil {
			return nil, fmt.Errorf("%w: failed to parse allow-list: %w", storage.ErrDatabase, err)
		}
	}
	return &record, nil
}
