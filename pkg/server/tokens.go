package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"sharegate/pkg/auth"
	"sharegate/pkg/log"
	"sharegate/pkg/models"
	"sharegate/pkg/permission"
)

type tokenRequest struct {
	Name         string   `json:"name"`
	Class        string   `json:"class"`
	Permissions  []string `json:"permissions"`
	OwnerUserID  string   `json:"owner_user_id"`
	ExpiresHours int64    `json:"expires_hours"`
	MaxUsage     int64    `json:"max_usage"`
}

func (s *Server) createToken(ctx echo.Context) error {
	var req tokenRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body",
		})
	}
	if req.Name == "" {
		return ctx.JSON(http.StatusBadRequest, map[string]string{
			"error": "name is required",
		})
	}

	class := models.TokenClass(req.Class)
	if !class.Valid() {
		return ctx.JSON(http.StatusBadRequest, map[string]string{
			"error": "class must be user, api, or admin",
		})
	}
	if unknown, ok := permission.ValidSet(req.Permissions); !ok {
		return ctx.JSON(http.StatusBadRequest, map[string]string{
			"error": "unknown permission: " + unknown,
		})
	}

	secret, record, err := s.tokens.CreateToken(req.Name, class, req.Permissions, &auth.CreateOptions{
		OwnerUserID: req.OwnerUserID,
		ExpiresIn:   time.Duration(req.ExpiresHours) * time.Hour,
		MaxUsage:    req.MaxUsage,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to create token")
		return ctx.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to create token",
		})
	}

	log.Info().Str("token_id", record.ID).Str("class", string(record.Class)).Msg("Token created")
	return ctx.JSON(http.StatusCreated, models.TokenCreateResponse{
		Token:  record,
		Secret: secret,
	})
}

func (s *Server) listTokens(ctx echo.Context) error {
	tokens, err := s.tokens.ListTokens()
	if err != nil {
		log.Error().Err(err).Msg("Failed to list tokens")
		return ctx.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to list tokens",
		})
	}
	if tokens == nil {
		tokens = []*models.Token{}
	}
	return ctx.JSON(http.StatusOK, tokens)
}

func (s *Server) revokeToken(ctx echo.Context) error {
	id := ctx.Param("id")

	err := s.tokens.RevokeToken(id)
	switch {
	case errors.Is(err, auth.ErrTokenNotFound):
		return ctx.JSON(http.StatusNotFound, map[string]string{
			"error": "token not found",
		})
	case errors.Is(err, auth.ErrAlreadyInactive):
		return ctx.JSON(http.StatusOK, map[string]string{
			"status": "already inactive",
		})
	case err != nil:
		log.Error().Err(err).Str("token_id", id).Msg("Failed to revoke token")
		return ctx.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to revoke token",
		})
	}

	log.Info().Str("token_id", id).Msg("Token revoked")
	return ctx.JSON(http.StatusOK, map[string]string{"status": "revoked"})
}

func (s *Server) listPermissions(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, permission.List())
}
