// Package remote provides adapters that delegate to external HTTP
// services: the revenue ledger and the billing system.
package remote

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

// defaultTimeout bounds calls when the config leaves the timeout unset.
// Billing collaborators run off the request path, so this only limits
// how long a background job can hang.
const defaultTimeout = 10 * time.Second

// maxErrorBody caps how much of an error response is kept for the
// RemoteError message.
const maxErrorBody = 4 << 10

// RemoteError is a non-2xx answer from the collaborator, carrying the
// status and a truncated response body.
type RemoteError struct {
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error %d: %s", e.StatusCode, e.Message)
}

// ClientConfig configures the remote client.
type ClientConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Headers map[string]string
}

// Client is a JSON-over-HTTP caller for a single collaborator service.
// Authentication and static headers are fixed at construction; every
// request carries them.
type Client struct {
	httpClient *http.Client
	baseURL    string
	header     http.Header
}

// NewClient builds a client with the bearer credential and static
// headers baked in.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("Accept", "application/json")
	if cfg.APIKey != "" {
		header.Set("Authorization", "Bearer "+cfg.APIKey)
	}
	for k, v := range cfg.Headers {
		header.Set(k, v)
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		header:     header,
	}
}

// Request sends a JSON request and decodes a JSON response into result
// (which may be nil). A status of 400 or higher becomes a *RemoteError.
func (c *Client) Request(ctx context.Context, method, path string, body, result any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return remoteErrorFrom(resp)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header = c.header.Clone()
	return req, nil
}

func remoteErrorFrom(resp *http.Response) *RemoteError {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &RemoteError{
		StatusCode: resp.StatusCode,
		Message:    strings.TrimSpace(string(msg)),
	}
}
