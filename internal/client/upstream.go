package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/l0p7/aquacache/internal/cache"
)

// StatusError reports a non-2xx upstream response. The fetch contract
// treats these as failures, so strategies can degrade to cached data.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream: status %d", e.StatusCode)
}

// Upstream issues requests against the records API the daemon fronts
// and decodes JSON responses. It is the external fetch primitive every
// strategy read and mutation closes over.
type Upstream struct {
	base       *url.URL
	httpClient *http.Client
}

// NewUpstream validates the base URL and prepares the HTTP client.
// Timeouts are the fetch function's concern, not the cache core's, so
// they live here.
func NewUpstream(baseURL string, timeout time.Duration) (*Upstream, error) {
	parsed, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("upstream: base url %q is not absolute", baseURL)
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Upstream{
		base:       parsed,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Fetch returns a fetch function for one logical request. The returned
// function rejects on transport failure and on any non-2xx status, and
// resolves with already-decoded JSON on success.
func (u *Upstream) Fetch(method, path string, params map[string]string, body []byte) cache.FetchFunc {
	return func(ctx context.Context) (any, error) {
		target := *u.base
		target.Path = strings.TrimSuffix(target.Path, "/") + path
		if len(params) > 0 {
			query := target.Query()
			for name, value := range params {
				query.Set(name, value)
			}
			target.RawQuery = query.Encode()
		}

		var reader io.Reader
		if len(body) > 0 {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
		if err != nil {
			return nil, fmt.Errorf("upstream: build request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if len(body) > 0 {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := u.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("upstream: %s %s: %w", method, path, err)
		}
		defer func() { _ = resp.Body.Close() }()

		payload, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
		if err != nil {
			return nil, fmt.Errorf("upstream: read response: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(payload)}
		}
		if len(bytes.TrimSpace(payload)) == 0 {
			return nil, nil
		}
		var decoded any
		if err := json.Unmarshal(payload, &decoded); err != nil {
			return nil, fmt.Errorf("upstream: decode response: %w", err)
		}
		return decoded, nil
	}
}

// IsStatusError extracts a StatusError from err when present.
func IsStatusError(err error) (*StatusError, bool) {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr, true
	}
	return nil, false
}
