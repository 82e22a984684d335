// Package client talks to a running flamekit server.
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

	"github.com/theirongolddev/flamekit/internal/daemon"
	"github.com/theirongolddev/flamekit/internal/model"
)

const (
	requestTimeout = 30 * time.Second
	maxBodySize    = 64 << 20 // 64 MB
	userAgent      = "flamekit-client/1.0"
)

var (
	// ErrRateLimited indicates the server rejected the request with 429.
	ErrRateLimited = errors.New("client: rate limited")
	// ErrSuperseded indicates a newer request for the same session won.
	ErrSuperseded = errors.New("client: superseded by a newer request")
	// ErrNotFound indicates the profile does not exist on the server.
	ErrNotFound = errors.New("client: not found")
)

// Client calls the flamekit HTTP API.
type Client struct {
	base string
	http *http.Client
}

// New creates a client for addr, either host:port or a full URL.
// Returns nil if addr is empty.
func New(addr string) *Client {
	addr = strings.TrimRight(strings.TrimSpace(addr), "/")
	if addr == "" {
		return nil
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	return &Client{
		base: addr,
		http: &http.Client{Timeout: requestTimeout},
	}
}

// WithTimeout returns a copy of c using timeout for every request.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	cp := *c
	cp.http = &http.Client{Timeout: timeout}
	return &cp
}

// Status returns the server runtime status.
func (c *Client) Status(ctx context.Context) (daemon.Status, error) {
	var st daemon.Status
	err := c.do(ctx, http.MethodGet, "/v1/status", nil, &st)
	return st, err
}

// Profiles lists the profiles stored on the server.
func (c *Client) Profiles(ctx context.Context) ([]model.ProfileInfo, error) {
	var out []model.ProfileInfo
	err := c.do(ctx, http.MethodGet, "/v1/profiles", nil, &out)
	return out, err
}

// Metrics lists the metrics of a stored profile.
func (c *Client) Metrics(ctx context.Context, profile string) ([]daemon.MetricInfo, error) {
	var out []daemon.MetricInfo
	err := c.do(ctx, http.MethodGet, "/v1/metrics?profile="+url.QueryEscape(profile), nil, &out)
	return out, err
}

// Flamegraph asks the server to compute a flame graph. A request overtaken
// by a newer one for the same session returns ErrSuperseded.
func (c *Client) Flamegraph(ctx context.Context, req daemon.FlamegraphRequest) (daemon.FlamegraphResponse, error) {
	var out daemon.FlamegraphResponse
	body, err := json.Marshal(req)
	if err != nil {
		return out, fmt.Errorf("client: encoding request: %w", err)
	}
	err = c.do(ctx, http.MethodPost, "/v1/flamegraph", body, &out)
	return out, err
}

// do sends a request and decodes a 2xx JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return fmt.Errorf("client: creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	//nolint:gosec // URL is the server address configured by the local user
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("client: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("client: reading response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusConflict:
		return ErrSuperseded
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, serverError(data))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("client: HTTP %d: %s", resp.StatusCode, serverError(data))
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("client: parsing %s: %w", path, err)
	}
	return nil
}

// serverError extracts the message of an {"error": ...} body.
func serverError(data []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &e) == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(data))
}
