// Package odata is a thin client for the PLM system's OData endpoint. It only
// knows how to issue authenticated JSON reads and writes and how to turn an
// OData error body into a typed error; query construction stays with callers.
package odata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client talks to one OData base URL on behalf of whichever bearer token the
// caller passes per request. It holds no per-user state.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client with its own http.Client bounded by timeout.
func New(baseURL string, timeout time.Duration) *Client {
	return NewWithHTTPClient(baseURL, &http.Client{Timeout: timeout})
}

// NewWithHTTPClient creates a client around an existing http.Client.
func NewWithHTTPClient(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: WithTrailingSlash(baseURL), httpClient: hc}
}

// BaseURL returns the normalised base URL (always ending in "/").
func (c *Client) BaseURL() string { return c.baseURL }

// Get issues GET <base><path> and decodes a JSON response into result.
func (c *Client) Get(ctx context.Context, token, path string, result any) error {
	return c.do(ctx, http.MethodGet, token, path, nil, result)
}

// Post issues POST <base><path> with a JSON body, asking the server to echo the
// created entity back, and decodes it into result.
func (c *Client) Post(ctx context.Context, token, path string, body, result any) error {
	return c.do(ctx, http.MethodPost, token, path, body, result)
}

func (c *Client) do(ctx context.Context, method, token, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+strings.TrimPrefix(path, "/"), bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("OData-Version", "4.0")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Prefer", "return=representation")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+StripBearer(token))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ParseError(resp.StatusCode, respBody)
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// StripBearer removes a leading "Bearer " (any case) and surrounding spaces.
func StripBearer(token string) string {
	t := strings.TrimSpace(token)
	if len(t) >= 7 && strings.EqualFold(t[:7], "bearer ") {
		t = strings.TrimSpace(t[7:])
	}
	return t
}

// WithTrailingSlash returns u with exactly one trailing "/".
func WithTrailingSlash(u string) string {
	return strings.TrimRight(strings.TrimSpace(u), "/") + "/"
}
