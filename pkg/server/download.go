package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"sharegate/pkg/cache"
	"sharegate/pkg/catalog"
	"sharegate/pkg/fetch"
	"sharegate/pkg/link"
	"sharegate/pkg/log"
	"sharegate/pkg/models"
)

// streamChunkSize is the unit of transfer between cache file and client;
// progress updates and bandwidth pacing happen per chunk.
const streamChunkSize = 64 * 1024

// redeemLink handles GET /d/:code — the public redemption endpoint.
func (s *Server) redeemLink(ctx echo.Context) error {
	code := ctx.Param("code")
	clientIP := ctx.RealIP()

	record, err := s.links.ResolveLink(code, clientIP, ctx.QueryParam("password"))
	if err != nil {
		return redemptionDenied(ctx, err)
	}

	file, err := s.pickTarget(record, ctx.QueryParam("file"))
	if err != nil {
		return ctx.JSON(http.StatusNotFound, map[string]string{
			"error": err.Error(),
		})
	}

	sess, err := s.sessions.Begin(code, file.ID, clientIP, ctx.Request().UserAgent(), file.Size, s.cfg.DirectLimit)
	if err != nil {
		log.Error().Err(err).Str("code", code).Msg("Failed to open session")
		return ctx.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to open session",
		})
	}

	log.Info().Str("code", code).Str("file_id", file.ID).
		Str("session_id", sess.ID).Str("method", string(sess.Method)).
		Msg("Redemption started")

	reqCtx := ctx.Request().Context()
	path, err := s.cache.GetOrFetch(reqCtx, file.ID, func(fetchCtx context.Context, w io.Writer) error {
		return s.fetcher.Fetch(fetchCtx, file, sess.Method, w)
	})
	if err != nil {
		detail := err.Error()
		_ = s.sessions.Finish(sess.ID, false, detail)
		log.Error().Err(err).Str("session_id", sess.ID).Msg("Fetch failed")
		status := http.StatusBadGateway
		if errors.Is(err, cache.ErrCacheFull) {
			status = http.StatusInsufficientStorage
		}
		return ctx.JSON(status, map[string]string{
			"error": "transfer failed",
		})
	}

	return s.stream(ctx, record, sess, file, path)
}

// pickTarget resolves the link's target to one concrete file. Category and
// collection links accept a ?file= member selector and default to the first
// member; the selector must belong to the link.
func (s *Server) pickTarget(record *models.Link, selected string) (*models.FileRecord, error) {
	switch record.TargetKind {
	case models.TargetFile:
		return s.catalog.GetFile(record.TargetRefs[0])

	case models.TargetCategory:
		files, err := s.catalog.ListCategoryFiles(record.TargetRefs[0])
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			return nil, catalog.ErrFileNotFound
		}
		if selected == "" {
			return files[0], nil
		}
		for _, file := range files {
			if file.ID == selected {
				return file, nil
			}
		}
		return nil, catalog.ErrFileNotFound

	case models.TargetCollection:
		member := record.TargetRefs[0]
		if selected != "" {
			member = ""
			for _, ref := range record.TargetRefs {
				if ref == selected {
					member = ref
					break
				}
			}
			if member == "" {
				return nil, catalog.ErrFileNotFound
			}
		}
		return s.catalog.GetFile(member)
	}
	return nil, catalog.ErrFileNotFound
}

// stream copies the cached bytes to the client, pacing by the link's
// bandwidth ceiling and feeding session progress. Already-streamed bytes are
// never rolled back; the byte counters reflect what actually left.
func (s *Server) stream(ctx echo.Context, record *models.Link, sess *models.Session, file *models.FileRecord, path string) error {
	src, err := os.Open(path)
	if err != nil {
		_ = s.sessions.Finish(sess.ID, false, err.Error())
		log.Error().Err(err).Str("session_id", sess.ID).Msg("Failed to open cached file")
		return ctx.JSON(http.StatusInternalServerError, map[string]string{
			"error": "transfer failed",
		})
	}
	defer func() { _ = src.Close() }()

	if err := s.sessions.Start(sess.ID); err != nil {
		log.Error().Err(err).Str("session_id", sess.ID).Msg("Failed to start session")
	}

	mime := file.MimeType
	if mime == "" {
		mime = "application/octet-stream"
	}
	resp := ctx.Response()
	resp.Header().Set(echo.HeaderContentType, mime)
	resp.Header().Set(echo.HeaderContentLength, strconv.FormatInt(file.Size, 10))
	resp.Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+file.Name+`"`)
	resp.WriteHeader(http.StatusOK)

	var limiter *rate.Limiter
	if record.BandwidthLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(record.BandwidthLimit), streamChunkSize)
	}

	reqCtx := ctx.Request().Context()
	copyErr := s.copyPaced(reqCtx, resp, src, sess.ID, limiter)
	if copyErr != nil {
		if reqCtx.Err() != nil {
			// Client went away mid-transfer: cancelled, not failed, and the
			// link's download counter stays untouched.
			_ = s.sessions.Cancel(sess.ID)
			log.Info().Str("session_id", sess.ID).Msg("Redemption cancelled by client")
			return nil
		}
		_ = s.sessions.Finish(sess.ID, false, copyErr.Error())
		log.Error().Err(copyErr).Str("session_id", sess.ID).Msg("Transfer failed")
		return nil
	}

	_ = s.sessions.Finish(sess.ID, true, "")

	if err := s.links.RecordRedemption(record.Code); err != nil {
		// The bytes are already delivered; a lost race at the quota boundary
		// is logged, not surfaced.
		log.Warn().Err(err).Str("code", record.Code).Msg("Failed to record redemption")
	}

	if record.WebhookURL != "" && s.notifier != nil {
		go s.notifier.Notify(context.Background(), record.WebhookURL, &fetch.WebhookEvent{
			Code:      record.Code,
			FileID:    file.ID,
			SessionID: sess.ID,
			Bytes:     file.Size,
			Status:    string(models.SessionCompleted),
		})
	}

	log.Info().Str("session_id", sess.ID).Str("code", record.Code).Msg("Redemption completed")
	return nil
}

// copyPaced copies src to dst in chunks, waiting on the limiter between
// chunks and recording progress after each.
func (s *Server) copyPaced(ctx context.Context, dst io.Writer, src io.Reader, sessionID string, limiter *rate.Limiter) error {
	buf := make([]byte, streamChunkSize)
	flusher, _ := dst.(http.Flusher)

	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if limiter != nil {
				if err := limiter.WaitN(ctx, n); err != nil {
					return err
				}
			}
			if _, writeErr := dst.Write(buf[:n]); writeErr != nil {
				return writeErr
			}
			if flusher != nil {
				flusher.Flush()
			}
			if err := s.sessions.Progress(sessionID, int64(n)); err != nil {
				log.Error().Err(err).Str("session_id", sessionID).Msg("Failed to record progress")
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return readErr
		}
	}
}

// redemptionDenied maps a resolve failure to its HTTP response. Denial
// reasons are link business state and are surfaced specifically, unlike
// credential failures.
func redemptionDenied(ctx echo.Context, err error) error {
	var denial *link.RedemptionError
	if !errors.As(err, &denial) {
		log.Error().Err(err).Msg("Failed to resolve link")
		return ctx.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to resolve link",
		})
	}

	status := http.StatusGone
	switch denial.Reason {
	case link.ReasonNotFound:
		status = http.StatusNotFound
	case link.ReasonQuotaExceeded:
		status = http.StatusTooManyRequests
	case link.ReasonIPDenied:
		status = http.StatusForbidden
	case link.ReasonBadPassword:
		status = http.StatusUnauthorized
	}
	return ctx.JSON(status, map[string]string{
		"error":  "redemption denied",
		"reason": denial.Reason,
	})
}
