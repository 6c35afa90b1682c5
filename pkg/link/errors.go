package link

import "errors"

var (
	// ErrLinkNotFound is returned when the requested link does not exist.
	ErrLinkNotFound = errors.New("link not found")

	// ErrForbidden is returned when the requester neither created the link
	// nor holds an admin override.
	ErrForbidden = errors.New("not link owner")

	// ErrInvalidTarget is returned when a link is created with an unknown
	// target kind or no target references.
	ErrInvalidTarget = errors.New("invalid link target")

	// ErrCodeSpaceExhausted is returned when repeated random draws keep
	// colliding with existing codes. Practically unreachable at this
	// alphabet size, but handled rather than assumed away.
	ErrCodeSpaceExhausted = errors.New("code space exhausted")
)

// Redemption denial reasons, in the order checks are evaluated.
const (
	ReasonNotFound      = "not_found"
	ReasonInactive      = "inactive"
	ReasonExpired       = "expired"
	ReasonQuotaExceeded = "quota_exceeded"
	ReasonIPDenied      = "ip_denied"
	ReasonBadPassword   = "bad_password"
)

// RedemptionError reports why a link cannot be redeemed. The reason is
// link-specific business state, not identity, so it is safe to surface.
type RedemptionError struct {
	Reason string
}

func (e *RedemptionError) Error() string {
	return "redemption denied: " + e.Reason
}
