// Package transport submits guesses to the remote endpoint.
package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/KafClaw/pinguess/internal/classify"
)

const maxBodyBytes = 1 << 20

// Client posts one candidate per request as form data.
type Client struct {
	endpoint   string
	field      string
	width      int
	httpClient *http.Client
}

// NewClient creates a form-post client. Empty field defaults to "guess",
// non-positive width to 4, non-positive timeout to 30s.
func NewClient(endpoint, field string, width int, timeout time.Duration) *Client {
	if field == "" {
		field = "guess"
	}
	if width <= 0 {
		width = 4
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint: endpoint,
		field:    field,
		width:    width,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// FormatCandidate zero-pads value to width digits.
func FormatCandidate(value, width int) string {
	return fmt.Sprintf("%0*d", width, value)
}

// Submit sends the candidate and returns the response body. Any failure to
// send the request or read the reply wraps classify.ErrTransport; non-2xx
// statuses still return their body so the classifier can inspect it.
func (c *Client) Submit(ctx context.Context, candidate int) (string, error) {
	form := url.Values{}
	form.Set(c.field, FormatCandidate(candidate, c.width))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: execute request: %w", classify.ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("%w: read response: %w", classify.ErrTransport, err)
	}
	return string(body), nil
}
