package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"sharegate/pkg/models"
)

// OriginFetcher pulls file bytes over HTTP from the origin store. The two
// retrieval methods map to separate origin endpoints: the direct path is the
// origin's size-limited low-latency API, the relay path accepts any size.
type OriginFetcher struct {
	baseURL string
	client  *retryablehttp.Client
	timeout time.Duration
}

// NewOriginFetcher creates a fetcher against the origin base URL.
func NewOriginFetcher(baseURL string, client *retryablehttp.Client, timeout time.Duration) *OriginFetcher {
	return &OriginFetcher{baseURL: baseURL, client: client, timeout: timeout}
}

// Fetch streams the file's bytes into w using the chosen retrieval method.
func (f *OriginFetcher) Fetch(ctx context.Context, file *models.FileRecord, method models.RetrievalMethod, w io.Writer) error {
	endpoint := "relay"
	if method == models.MethodDirect {
		endpoint = "direct"
	}

	reqCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	target := f.baseURL + "/origin/" + endpoint + "/" + url.PathEscape(file.StorageRef)
	req, err := retryablehttp.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("failed to build origin request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("origin request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return &OriginError{StatusCode: resp.StatusCode}
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("origin stream failed: %w", err)
	}
	return nil
}
