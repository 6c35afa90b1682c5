package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"sharegate/pkg/log"
)

func (s *Server) clearCache(ctx echo.Context) error {
	removed, err := s.cache.ClearAll()
	if err != nil {
		log.Error().Err(err).Msg("Failed to clear cache")
		return ctx.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to clear cache",
		})
	}

	log.Info().Int64("removed", removed).Msg("Cache cleared")
	return ctx.JSON(http.StatusOK, map[string]int64{"removed": removed})
}

func (s *Server) cleanupCache(ctx echo.Context) error {
	removed, err := s.cache.CleanupExpired()
	if err != nil {
		log.Error().Err(err).Msg("Failed to clean up cache")
		return ctx.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to clean up cache",
		})
	}
	return ctx.JSON(http.StatusOK, map[string]int64{"removed": removed})
}
