// Package auth issues, validates, and revokes bearer tokens. Validation
// failures are deliberately indistinguishable: absent, revoked, expired, and
// quota-exhausted tokens all validate to nil so the boundary rejects with a
// uniform unauthorized response.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"sharegate/pkg/models"
	"sharegate/pkg/permission"
	"sharegate/pkg/storage"
)

// secretBytes is the entropy of a generated bearer secret.
const secretBytes = 32

// Manager manages bearer token records in sqlite.
type Manager struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewManager creates a token manager on an open database.
func NewManager(db *sql.DB) *Manager {
	return &Manager{db: db}
}

// CreateOptions holds the optional attributes of a new token.
type CreateOptions struct {
	OwnerUserID string
	ExpiresIn   time.Duration // zero = never expires
	MaxUsage    int64         // zero = unlimited
}

// CreateToken mints a new bearer token. The returned plaintext secret exists
// only in the response; the database keeps its SHA-256 hash. An empty
// permission set takes the class default bundle.
func (m *Manager) CreateToken(name string, class models.TokenClass, permissions []string, opts *CreateOptions) (string, *models.Token, error) {
	if !class.Valid() {
		return "", nil, fmt.Errorf("%w: %q", ErrInvalidClass, class)
	}
	if len(permissions) == 0 {
		permissions = permission.DefaultsFor(class)
	}
	if opts == nil {
		opts = &CreateOptions{}
	}

	secret, err := generateSecret()
	if err != nil {
		return "", nil, err
	}

	record := &models.Token{
		ID:          uuid.NewString(),
		Name:        name,
		Class:       class,
		OwnerUserID: opts.OwnerUserID,
		Permissions: permissions,
		CreatedAt:   time.Now().UTC(),
		MaxUsage:    opts.MaxUsage,
		Active:      true,
	}
	if opts.ExpiresIn != 0 {
		expires := record.CreatedAt.Add(opts.ExpiresIn)
		record.ExpiresAt = &expires
	}

	permsJSON, err := json.Marshal(permissions)
	if err != nil {
		return "", nil, fmt.Errorf("%w: failed to serialize permissions: %w", storage.ErrDatabase, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	_, err = m.db.ExecContext(context.Background(),
		`INSERT INTO tokens (id, name, class, owner_user_id, token_hash, permissions, created_at, expires_at, max_usage, usage_count, active)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, TRUE)`,
		record.ID, record.Name, string(record.Class), record.OwnerUserID,
		hashSecret(secret), string(permsJSON), record.CreatedAt, record.ExpiresAt, record.MaxUsage,
	)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", storage.ErrDatabase, err)
	}

	return secret, record, nil
}

// ValidateToken resolves a presented secret to its token record. It returns
// (nil, nil) when the secret is unknown, revoked, expired, or out of usage
// quota; the caller must not distinguish these cases. On success the usage
// counter and last-used timestamp are updated atomically; a validation that
// loses the race at the quota boundary is absent.
func (m *Manager) ValidateToken(secret string) (*models.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx := context.Background()
	record, err := m.queryToken(ctx, `token_hash = ?`, hashSecret(secret))
	if errors.Is(err, ErrTokenNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if !record.Active || record.Expired(now) || record.Exhausted() {
		return nil, nil
	}

	// Check-and-increment in one statement so concurrent validations cannot
	// overshoot max_usage.
	result, err := m.db.ExecContext(ctx,
		`UPDATE tokens SET usage_count = usage_count + 1, last_used_at = ?
		 WHERE id = ? AND active = TRUE AND (max_usage = 0 OR usage_count < max_usage)`,
		now, record.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrDatabase, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrDatabase, err)
	}
	if affected == 0 {
		return nil, nil
	}

	record.UsageCount++
	record.LastUsedAt = &now
	return record, nil
}

// CheckPermission reports whether the token may perform the operation guarded
// by required. Admin-class tokens and the wildcard grant pass unconditionally.
func (m *Manager) CheckPermission(token *models.Token, required string) bool {
	if token == nil {
		return false
	}
	if token.Class == models.ClassAdmin {
		return true
	}
	for _, granted := range token.Permissions {
		if granted == permission.All || granted == required {
			return true
		}
	}
	return false
}

// RevokeToken clears the active flag. Revoking a token that is already
// inactive reports ErrAlreadyInactive rather than generic success.
func (m *Manager) RevokeToken(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx := context.Background()
	result, err := m.db.ExecContext(ctx, `UPDATE tokens SET active = FALSE WHERE id = ? AND active = TRUE`, id)
	if err != nil {
		return fmt.Errorf("%w: %w", storage.ErrDatabase, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %w", storage.ErrDatabase, err)
	}
	if affected > 0 {
		return nil
	}

	var exists bool
	if err := m.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM tokens WHERE id = ?)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("%w: %w", storage.ErrDatabase, err)
	}
	if !exists {
		return ErrTokenNotFound
	}
	return ErrAlreadyInactive
}

// GetToken retrieves a token record by id.
func (m *Manager) GetToken(id string) (*models.Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.queryToken(context.Background(), `id = ?`, id)
}

// ListTokens returns all token records, newest first. Secrets are not
// recoverable; only hashes are stored.
func (m *Manager) ListTokens() ([]*models.Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rows, err := m.db.QueryContext(context.Background(),
		`SELECT id, name, class, owner_user_id, permissions, created_at, expires_at, max_usage, usage_count, active, last_used_at
		 FROM tokens ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrDatabase, err)
	}
	defer func() { _ = rows.Close() }()

	var tokens []*models.Token
	for rows.Next() {
		record, scanErr := scanToken(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		tokens = append(tokens, record)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrDatabase, err)
	}
	return tokens, nil
}

func (m *Manager) queryToken(ctx context.Context, where string, arg any) (*models.Token, error) {
	row := m.db.QueryRowContext(ctx,
		`SELECT id, name, class, owner_user_id, permissions, created_at, expires_at, max_usage, usage_count, active, last_used_at
		 FROM tokens WHERE `+where, arg)
	record, err := scanToken(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTokenNotFound
	}
	return record, err
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanToken(row rowScanner) (*models.Token, error) {
	var (
		record    models.Token
		class     string
		owner     sql.NullString
		permsJSON string
		expires   sql.NullTime
		lastUsed  sql.NullTime
	)
	err := row.Scan(&record.ID, &record.Name, &class, &owner, &permsJSON,
		&record.CreatedAt, &expires, &record.MaxUsage, &record.UsageCount, &record.Active, &lastUsed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrDatabase, err)
	}

	record.Class = models.TokenClass(class)
	if owner.Valid {
		record.OwnerUserID = owner.String
	}
	if expires.Valid {
		t := expires.Time
		record.ExpiresAt = &t
	}
	if lastUsed.Valid {
		t := lastUsed.Time
		record.LastUsedAt = &t
	}
	if err := json.Unmarshal([]byte(permsJSON), &record.Permissions); err != nil {
		return nil, fmt.Errorf("%w: failed to parse permissions: %w", storage.ErrDatabase, err)
	}
	return &record, nil
}

func generateSecret() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func hashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
