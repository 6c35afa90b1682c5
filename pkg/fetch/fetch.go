// Package fetch retrieves file bytes from the origin store. The delivery
// core only sees the Fetcher interface; how bytes actually arrive is an
// injected concern.
package fetch

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"sharegate/pkg/models"
)

// Fetcher retrieves a file's bytes from the origin into w.
type Fetcher interface {
	Fetch(ctx context.Context, file *models.FileRecord, method models.RetrievalMethod, w io.Writer) error
}

// OriginError is returned when the origin answers with a non-OK status.
type OriginError struct {
	StatusCode int
}

func (e *OriginError) Error() string {
	return "origin returned status " + http.StatusText(e.StatusCode)
}

// NewRetryableClient creates the HTTP client used against the origin and for
// webhook delivery. Only transport errors are retried; origin error responses
// are forwarded as-is instead of being retried into a generic failure.
func NewRetryableClient(retryMax int, retryWaitMin, retryWaitMax time.Duration) *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.RetryMax = retryMax
	client.RetryWaitMin = retryWaitMin
	client.RetryWaitMax = retryWaitMax
	client.Logger = nil // Disable retryablehttp logging
	client.CheckRetry = transportOnlyRetryPolicy
	return client
}

// transportOnlyRetryPolicy retries on connection/timeout errors, never on
// HTTP status errors, so origin 4xx/5xx responses reach the caller.
func transportOnlyRetryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	// Do not retry if context is cancelled
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	// A response, even an error response, is forwarded rather than retried
	if resp != nil {
		return false, nil
	}

	if err != nil {
		return true, nil //nolint:nilerr // retryablehttp handles the error internally
	}

	return false, nil
}
