// Package permission holds the closed catalog of capability names a bearer
// token may carry, with default bundles per credential class. The catalog is
// compiled in; there is no state.
package permission

import "sharegate/pkg/models"

// Permission names known to the registry.
const (
	FilesRead      = "files.read"
	FilesDownload  = "files.download"
	LinksCreate    = "links.create"
	LinksRead      = "links.read"
	LinksDelete    = "links.delete"
	SessionsRead   = "sessions.read"
	SessionsCancel = "sessions.cancel"
	TokensCreate   = "tokens.create"
	TokensRead     = "tokens.read"
	TokensRevoke   = "tokens.revoke"
	SystemControl  = "system.control"

	// All is the wildcard grant; it bypasses every specific check.
	All = "all"
)

var descriptions = map[string]string{
	FilesRead:      "Read file and category metadata",
	FilesDownload:  "Download file content",
	LinksCreate:    "Create share links",
	LinksRead:      "Read share links and their statistics",
	LinksDelete:    "Deactivate share links",
	SessionsRead:   "List and inspect download sessions",
	SessionsCancel: "Cancel in-flight download sessions",
	TokensCreate:   "Create bearer tokens",
	TokensRead:     "List bearer tokens",
	TokensRevoke:   "Revoke bearer tokens",
	SystemControl:  "Cache administration and system control",
	All:            "All permissions",
}

var defaults = map[models.TokenClass][]string{
	models.ClassUser: {FilesRead, FilesDownload, LinksCreate},
	models.ClassAPI:  {FilesRead, FilesDownload, LinksCreate, LinksRead, SessionsRead},
	models.ClassAdmin: {
		All,
	},
}

// Valid reports whether name is a known permission.
func Valid(name string) bool {
	_, ok := descriptions[name]
	return ok
}

// ValidSet reports whether every name in the set is known, returning the
// first unknown name otherwise.
func ValidSet(names []string) (string, bool) {
	for _, name := range names {
		if !Valid(name) {
			return name, false
		}
	}
	return "", true
}

// Describe returns the human description for a permission name, or an empty
// string for unknown names.
func Describe(name string) string {
	return descriptions[name]
}

// DefaultsFor returns the default permission bundle assigned to a credential
// class when no explicit set is given at creation.
func DefaultsFor(class models.TokenClass) []string {
	bundle := defaults[class]
	out := make([]string, len(bundle))
	copy(out, bundle)
	return out
}

// List returns every registry entry sorted by declaration order.
func List() []models.PermissionInfo {
	names := []string{
		FilesRead, FilesDownload,
		LinksCreate, LinksRead, LinksDelete,
		SessionsRead, SessionsCancel,
		TokensCreate, TokensRead, TokensRevoke,
		SystemControl, All,
	}
	out := make([]models.PermissionInfo, 0, len(names))
	for _, name := range names {
		out = append(out, models.PermissionInfo{Name: name, Description: descriptions[name]})
	}
	return out
}
