// Package shortener is a thin client for an is.gd-style link shortening API.
package shortener

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client shortens outbound links. Shortening is best effort: any failure
// falls back to the original URL, because a devotional without a short link
// still beats no devotional at all.
type Client struct {
	endpoint string
	http     *http.Client
	logger   *slog.Logger
}

// New creates a Client for the given API endpoint
// (e.g. "https://is.gd/create.php"). httpClient may be nil.
func New(endpoint string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{endpoint: endpoint, http: httpClient, logger: logger}
}

// Shorten returns a shortened form of longURL, or longURL itself when the
// shortener is unavailable or answers nonsense.
func (c *Client) Shorten(ctx context.Context, longURL string) string {
	reqURL := c.endpoint + "?format=simple&url=" + url.QueryEscape(longURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		c.logger.Warn("shorten request build failed", "url", longURL, "error", err)
		return longURL
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("shorten request failed", "url", longURL, "error", err)
		return longURL
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("shortener returned non-200", "url", longURL, "status", resp.StatusCode)
		return longURL
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		c.logger.Warn("shortener response read failed", "url", longURL, "error", err)
		return longURL
	}

	short := strings.TrimSpace(string(body))
	if !strings.HasPrefix(short, "http://") && !strings.HasPrefix(short, "https://") {
		c.logger.Warn("shortener returned unexpected body", "url", longURL)
		return longURL
	}
	return short
}
