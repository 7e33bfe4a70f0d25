package scrape

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hdtickets/scout/internal/domain"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

// client is the HTTP layer shared by all adapters. Each request runs under
// the borrowed identity: its proxy (when set) and its User-Agent, so the
// rotation service controls how traffic looks to the platform.
type client struct {
	timeout time.Duration
}

func newClient(timeout time.Duration) *client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &client{timeout: timeout}
}

func (c *client) get(
	ctx context.Context,
	platform domain.Platform,
	ident domain.Identity,
	rawURL string,
	headers map[string]string,
) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &PermanentError{Platform: platform, Err: err}
	}

	ua := ident.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	httpClient, err := c.httpClient(ident)
	if err != nil {
		return nil, &PermanentError{Platform: platform, Err: err}
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, &TransientError{Platform: platform, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, &TransientError{Platform: platform, Status: resp.StatusCode, Err: err}
	}

	if err := classifyStatus(platform, resp.StatusCode); err != nil {
		return nil, err
	}

	return body, nil
}

func (c *client) httpClient(ident domain.Identity) (*http.Client, error) {
	if ident.ProxyURL == "" {
		return &http.Client{Timeout: c.timeout}, nil
	}

	proxy, err := url.Parse(ident.ProxyURL)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy url: %w", err)
	}

	return &http.Client{
		Timeout:   c.timeout,
		Transport: &http.Transport{Proxy: http.ProxyURL(proxy)},
	}, nil
}

func classifyStatus(platform domain.Platform, status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &PermanentError{
			Platform: platform,
			Status:   status,
			Err:      fmt.Errorf("auth rejected"),
		}
	case status == http.StatusTooManyRequests || status >= 500:
		return &TransientError{
			Platform: platform,
			Status:   status,
			Err:      fmt.Errorf("platform throttling or unavailable"),
		}
	default:
		// 4xx outside auth usually means the request shape no longer
		// matches the platform API.
		return &PermanentError{
			Platform: platform,
			Status:   status,
			Err:      fmt.Errorf("unexpected status"),
		}
	}
}
