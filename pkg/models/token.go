package models

import "time"

// TokenClass identifies the kind of bearer credential.
type TokenClass string

const (
	ClassUser  TokenClass = "user"
	ClassAPI   TokenClass = "api"
	ClassAdmin TokenClass = "admin"
)

// Valid reports whether the class is one of the known credential classes.
func (c TokenClass) Valid() bool {
	switch c {
	case ClassUser, ClassAPI, ClassAdmin:
		return true
	}
	return false
}

// Token represents a bearer credential record. The plaintext secret is never
// stored; only its SHA-256 hash.
type Token struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Class       TokenClass `json:"class"`
	OwnerUserID string     `json:"owner_user_id,omitempty"`
	Permissions []string   `json:"permissions"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	MaxUsage    int64      `json:"max_usage,omitempty"` // 0 = unlimited
	UsageCount  int64      `json:"usage_count"`
	Active      bool       `json:"active"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
}

// Expired reports whether the token has an expiry in the past.
func (t *Token) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && now.After(*t.ExpiresAt)
}

// Exhausted reports whether the token's usage quota is spent.
func (t *Token) Exhausted() bool {
	return t.MaxUsage > 0 && t.UsageCount >= t.MaxUsage
}

// TokenCreateResponse is returned once at creation time and is the only place
// the plaintext secret ever appears.
type TokenCreateResponse struct {
	Token  *Token `json:"token"`
	Secret string `json:"secret"`
}
