package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/voyagen/streamshelf/internal/models"
)

// Getter is the HTTP transport the ingestion core depends on.
type Getter interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// FetchError reports a failed GET. StatusCode is 0 when no response was received.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: HTTP %d", redact(e.URL), e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", redact(e.URL), e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Client is a Getter backed by net/http.
type Client struct {
	httpClient *http.Client
	userAgent  string
}

// NewClient returns a Client. userAgent is optional; timeout bounds every request.
func NewClient(userAgent string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  userAgent,
	}
}

// Get fetches url and returns the body. Non-2xx responses are errors.
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: fmt.Errorf("NewRequest: %w", err)}
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{URL: rawURL, StatusCode: resp.StatusCode}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: fmt.Errorf("ReadAll: %w", err)}
	}
	return body, nil
}

// FetchM3U fetches the M3U playlist at url and parses it.
func FetchM3U(ctx context.Context, g Getter, url string) ([]models.Channel, error) {
	body, err := g.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	channels, err := ParseM3U(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	return channels, nil
}

// redact hides the password query parameter so Xtream credentials never reach logs.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	if q.Has("password") {
		q.Set("password", "xxxxx")
		u.RawQuery = q.Encode()
	}
	if u.User != nil {
		u.User = url.User(u.User.Username())
	}
	return u.String()
}
