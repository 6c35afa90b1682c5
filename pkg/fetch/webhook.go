package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"

	"sharegate/pkg/log"
)

// WebhookEvent is posted to a link's webhook URL when a redemption completes.
type WebhookEvent struct {
	Code      string `json:"code"`
	FileID    string `json:"file_id"`
	SessionID string `json:"session_id"`
	Bytes     int64  `json:"bytes"`
	Status    string `json:"status"`
}

// Notifier posts completion events to link webhooks. Delivery failures are
// logged and dropped; a webhook never affects the download outcome.
type Notifier struct {
	client  *retryablehttp.Client
	timeout time.Duration
	logger  zerolog.Logger
}

// NewNotifier creates a webhook notifier sharing the origin's retryable client.
func NewNotifier(client *retryablehttp.Client, timeout time.Duration) *Notifier {
	return &Notifier{client: client, timeout: timeout, logger: log.With("webhook")}
}

// Notify posts the event to url. Best effort.
func (n *Notifier) Notify(ctx context.Context, url string, event *WebhookEvent) {
	body, err := json.Marshal(event)
	if err != nil {
		n.logger.Error().Err(err).Msg("Failed to serialize webhook event")
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	req, err := retryablehttp.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		n.logger.Error().Err(err).Str("url", url).Msg("Failed to build webhook request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Warn().Err(err).Str("url", url).Msg("Webhook delivery failed")
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		n.logger.Warn().Int("status", resp.StatusCode).Str("url", url).Msg("Webhook rejected")
		return
	}
	n.logger.Debug().Str("url", url).Str("session_id", event.SessionID).Msg("Webhook delivered")
}
