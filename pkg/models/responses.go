package models

// HealthResponse is the JSON body of the public health endpoint.
type HealthResponse struct {
	Status          string     `json:"status"`
	Version         string     `json:"version"`
	UptimeSeconds   int64      `json:"uptime_seconds"`
	ActiveDownloads int64      `json:"active_downloads"`
	Cache           CacheUsage `json:"cache"`
	CacheUsedHuman  string     `json:"cache_used_human"`
}

// LinkCreateResponse is returned after a share link is minted.
type LinkCreateResponse struct {
	Code string `json:"code"`
	URL  string `json:"url"`
}

// PermissionInfo describes one entry of the permission registry.
type PermissionInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}
