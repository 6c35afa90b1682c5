package models

import "time"

// LinkTarget identifies what a share link points at.
type LinkTarget string

const (
	TargetFile       LinkTarget = "file"
	TargetCategory   LinkTarget = "category"
	TargetCollection LinkTarget = "collection"
)

// Valid reports whether the target kind is known.
func (t LinkTarget) Valid() bool {
	switch t {
	case TargetFile, TargetCategory, TargetCollection:
		return true
	}
	return false
}

// Link represents a redeemable share link.
type Link struct {
	ID             string     `json:"id"`
	Code           string     `json:"code"`
	TargetKind     LinkTarget `json:"target_kind"`
	TargetRefs     []string   `json:"target_refs"`
	CreatedBy      string     `json:"created_by"`
	Title          string     `json:"title,omitempty"`
	Description    string     `json:"description,omitempty"`
	MaxDownloads   int64      `json:"max_downloads,omitempty"` // 0 = unlimited
	Downloads      int64      `json:"downloads"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	PasswordHash   string     `json:"-"`
	AllowedIPs     []string   `json:"allowed_ips,omitempty"`
	BandwidthLimit int64      `json:"bandwidth_limit,omitempty"` // bytes/sec, 0 = none
	WebhookURL     string     `json:"webhook_url,omitempty"`
	Active         bool       `json:"active"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Expired reports whether the link has an expiry in the past.
func (l *Link) Expired(now time.Time) bool {
	return l.ExpiresAt != nil && now.After(*l.ExpiresAt)
}

// QuotaExhausted reports whether the download quota is spent.
func (l *Link) QuotaExhausted() bool {
	return l.MaxDownloads > 0 && l.Downloads >= l.MaxDownloads
}

// IPAllowed reports whether the client IP may redeem the link.
// An empty allow-list admits any address.
func (l *Link) IPAllowed(ip string) bool {
	if len(l.AllowedIPs) == 0 {
		return true
	}
	for _, allowed := range l.AllowedIPs {
		if allowed == ip {
			return true
		}
	}
	return false
}

// LinkStats aggregates a link's redemption history.
type LinkStats struct {
	Link              *Link `json:"link"`
	TotalSessions     int64 `json:"total_sessions"`
	CompletedSessions int64 `json:"completed_sessions"`
	FailedSessions    int64 `json:"failed_sessions"`
	BytesServed       int64 `json:"bytes_served"`
}
