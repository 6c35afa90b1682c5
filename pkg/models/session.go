package models

import "time"

// SessionStatus is the state of a download session.
// Transitions are one-directional: pending -> downloading -> terminal.
type SessionStatus string

const (
	SessionPending     SessionStatus = "pending"
	SessionDownloading SessionStatus = "downloading"
	SessionCompleted   SessionStatus = "completed"
	SessionFailed      SessionStatus = "failed"
	SessionCancelled   SessionStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s SessionStatus) Terminal() bool {
	switch s {
	case SessionCompleted, SessionFailed, SessionCancelled:
		return true
	}
	return false
}

// RetrievalMethod is how a session's bytes are fetched from the origin.
type RetrievalMethod string

const (
	// MethodDirect is the low-latency path, limited to files under a
	// configured size ceiling.
	MethodDirect RetrievalMethod = "direct"
	// MethodRelay works for any size at the cost of added latency.
	MethodRelay RetrievalMethod = "relay"
)

// Session records one redemption attempt of a share link.
type Session struct {
	ID              string          `json:"id"`
	LinkCode        string          `json:"link_code"`
	FileID          string          `json:"file_id"`
	ClientIP        string          `json:"client_ip"`
	UserAgent       string          `json:"user_agent,omitempty"`
	Method          RetrievalMethod `json:"method"`
	TotalBytes      int64           `json:"total_bytes"`
	DownloadedBytes int64           `json:"downloaded_bytes"`
	Status          SessionStatus   `json:"status"`
	ErrorDetail     string          `json:"error_detail,omitempty"`
	StartedAt       time.Time       `json:"started_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
}

// ProgressPercent returns downloaded/total as a percentage clamped to [0, 100].
func (s *Session) ProgressPercent() float64 {
	if s.TotalBytes <= 0 {
		return 0
	}
	pct := float64(s.DownloadedBytes) / float64(s.TotalBytes) * 100
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}
