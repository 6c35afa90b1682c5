package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"sharegate/pkg/catalog"
	"sharegate/pkg/link"
	"sharegate/pkg/log"
	"sharegate/pkg/models"
	"sharegate/pkg/permission"
)

type linkRequest struct {
	TargetKind     string   `json:"target_kind"`
	TargetRefs     []string `json:"target_refs"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	MaxDownloads   int64    `json:"max_downloads"`
	ExpiresHours   int64    `json:"expires_hours"`
	Password       string   `json:"password"`
	AllowedIPs     []string `json:"allowed_ips"`
	BandwidthLimit int64    `json:"bandwidth_limit"`
	WebhookURL     string   `json:"webhook_url"`
}

func (s *Server) createLink(ctx echo.Context) error {
	var req linkRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body",
		})
	}

	kind := models.LinkTarget(req.TargetKind)
	if err := s.validateTarget(kind, req.TargetRefs); err != nil {
		if errors.Is(err, catalog.ErrFileNotFound) || errors.Is(err, catalog.ErrCategoryNotFound) {
			return ctx.JSON(http.StatusNotFound, map[string]string{
				"error": err.Error(),
			})
		}
		return ctx.JSON(http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
	}

	record, err := s.links.CreateLink(kind, req.TargetRefs, currentToken(ctx).ID, &link.CreateOptions{
		Title:          req.Title,
		Description:    req.Description,
		MaxDownloads:   req.MaxDownloads,
		ExpiresIn:      time.Duration(req.ExpiresHours) * time.Hour,
		Password:       req.Password,
		AllowedIPs:     req.AllowedIPs,
		BandwidthLimit: req.BandwidthLimit,
		WebhookURL:     req.WebhookURL,
	})
	if errors.Is(err, link.ErrInvalidTarget) {
		return ctx.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid link target",
		})
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to create link")
		return ctx.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to create link",
		})
	}

	log.Info().Str("code", record.Code).Str("kind", string(record.TargetKind)).Msg("Link created")
	return ctx.JSON(http.StatusCreated, models.LinkCreateResponse{
		Code: record.Code,
		URL:  s.cfg.PublicBaseURL + "/d/" + record.Code,
	})
}

// validateTarget checks the target references against the catalog before a
// link is minted, so dead links cannot be created.
func (s *Server) validateTarget(kind models.LinkTarget, refs []string) error {
	if !kind.Valid() || len(refs) == 0 {
		return link.ErrInvalidTarget
	}
	switch kind {
	case models.TargetCategory:
		_, err := s.catalog.ListCategoryFiles(refs[0])
		return err
	default:
		for _, ref := range refs {
			if _, err := s.catalog.GetFile(ref); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Server) linkStats(ctx echo.Context) error {
	code := ctx.Param("code")

	stats, err := s.links.Stats(code)
	if errors.Is(err, link.ErrLinkNotFound) {
		return ctx.JSON(http.StatusNotFound, map[string]string{
			"error": "link not found",
		})
	}
	if err != nil {
		log.Error().Err(err).Str("code", code).Msg("Failed to load link stats")
		return ctx.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to load link stats",
		})
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (s *Server) deactivateLink(ctx echo.Context) error {
	code := ctx.Param("code")
	requester := currentToken(ctx)

	adminOverride := s.tokens.CheckPermission(requester, permission.LinksDelete)
	err := s.links.DeactivateLink(code, requester.ID, adminOverride)
	switch {
	case errors.Is(err, link.ErrLinkNotFound):
		return ctx.JSON(http.StatusNotFound, map[string]string{
			"error": "link not found",
		})
	case errors.Is(err, link.ErrForbidden):
		return ctx.JSON(http.StatusForbidden, map[string]string{
			"error":              "forbidden",
			"missing_permission": permission.LinksDelete,
		})
	case err != nil:
		log.Error().Err(err).Str("code", code).Msg("Failed to deactivate link")
		return ctx.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to deactivate link",
		})
	}

	log.Info().Str("code", code).Msg("Link deactivated")
	return ctx.JSON(http.StatusOK, map[string]string{"status": "deactivated"})
}
