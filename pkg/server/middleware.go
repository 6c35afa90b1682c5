package server

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"sharegate/pkg/log"
	"sharegate/pkg/models"
)

// tokenContextKey is where the authenticated token record is stored on the
// request context.
const tokenContextKey = "sharegate.token"

// bearerAuth validates the Authorization header. Every failure — missing
// header, unknown secret, revoked, expired, or quota-exhausted token — gets
// the same 401 body so callers cannot probe credential state.
func (s *Server) bearerAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		header := ctx.Request().Header.Get(echo.HeaderAuthorization)
		secret, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || secret == "" {
			return unauthorized(ctx)
		}

		record, err := s.tokens.ValidateToken(secret)
		if err != nil {
			log.Error().Err(err).Msg("Token validation failed")
			return ctx.JSON(http.StatusInternalServerError, map[string]string{
				"error": "internal error",
			})
		}
		if record == nil {
			return unauthorized(ctx)
		}

		ctx.Set(tokenContextKey, record)
		return next(ctx)
	}
}

// requirePermission gates a route on one permission name. The 403 body names
// the missing permission for admin usability.
func (s *Server) requirePermission(required string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			record := currentToken(ctx)
			if record == nil {
				return unauthorized(ctx)
			}
			if !s.tokens.CheckPermission(record, required) {
				return ctx.JSON(http.StatusForbidden, map[string]string{
					"error":              "forbidden",
					"missing_permission": required,
				})
			}
			return next(ctx)
		}
	}
}

// currentToken returns the authenticated token record, or nil outside the
// authenticated group.
func currentToken(ctx echo.Context) *models.Token {
	record, _ := ctx.Get(tokenContextKey).(*models.Token)
	return record
}

func unauthorized(ctx echo.Context) error {
	return ctx.JSON(http.StatusUnauthorized, map[string]string{
		"error": "unauthorized",
	})
}
