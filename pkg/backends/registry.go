package backends

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// DefaultRegistryURL is the JSON API base used when the config names none
const DefaultRegistryURL = "https://pypi.org/pypi"

// HTTPRegistry checks artifact availability against a registry's JSON API.
// A 200 means published, a 404 means not published; anything else is an
// error so the caller can decide rather than silently assuming either way.
type HTTPRegistry struct {
	baseURL string
	client  *http.Client
}

// NewHTTPRegistry creates a registry client. An empty baseURL falls back to
// DefaultRegistryURL.
func NewHTTPRegistry(baseURL string) *HTTPRegistry {
	if baseURL == "" {
		baseURL = DefaultRegistryURL
	}
	return &HTTPRegistry{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// CheckPublished reports whether name@version is available
func (r *HTTPRegistry) CheckPublished(ctx context.Context, name, version string) (bool, error) {
	endpoint := fmt.Sprintf("%s/%s/%s/json", r.baseURL, url.PathEscape(name), url.PathEscape(version))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("registry request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("registry returned %s for %s@%s", resp.Status, name, version)
	}
}
