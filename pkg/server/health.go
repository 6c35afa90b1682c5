package server

import (
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/labstack/echo/v4"

	"sharegate/pkg/log"
	"sharegate/pkg/models"
)

// health handles GET /health. Public, no auth.
func (s *Server) health(ctx echo.Context) error {
	active, err := s.sessions.CountActive()
	if err != nil {
		log.Error().Err(err).Msg("Failed to count active sessions")
		return ctx.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
		})
	}

	usage, err := s.cache.Usage()
	if err != nil {
		log.Error().Err(err).Msg("Failed to read cache usage")
		return ctx.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
		})
	}

	return ctx.JSON(http.StatusOK, models.HealthResponse{
		Status:          "ok",
		Version:         s.cfg.Version,
		UptimeSeconds:   int64(time.Since(s.started).Seconds()),
		ActiveDownloads: active,
		Cache:           *usage,
		CacheUsedHuman:  humanize.IBytes(uint64(usage.UsedBytes)),
	})
}
