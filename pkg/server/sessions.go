package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"sharegate/pkg/log"
	"sharegate/pkg/models"
	"sharegate/pkg/session"
)

func (s *Server) listSessions(ctx echo.Context) error {
	sessions, err := s.sessions.ListActive()
	if err != nil {
		log.Error().Err(err).Msg("Failed to list sessions")
		return ctx.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to list sessions",
		})
	}
	if sessions == nil {
		sessions = []*models.Session{}
	}
	return ctx.JSON(http.StatusOK, sessions)
}

func (s *Server) cancelSession(ctx echo.Context) error {
	id := ctx.Param("id")

	if _, err := s.sessions.Get(id); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return ctx.JSON(http.StatusNotFound, map[string]string{
				"error": "session not found",
			})
		}
		log.Error().Err(err).Str("session_id", id).Msg("Failed to load session")
		return ctx.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to load session",
		})
	}

	if err := s.sessions.Cancel(id); err != nil {
		log.Error().Err(err).Str("session_id", id).Msg("Failed to cancel session")
		return ctx.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to cancel session",
		})
	}

	log.Info().Str("session_id", id).Msg("Session cancelled")
	return ctx.JSON(http.StatusOK, map[string]string{"status": "cancelled"})
}
