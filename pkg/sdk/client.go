// Package sdk is the thin Go client for a tape host's execution route: it
// marshals a program into the envelope shape and decodes the resulting
// ResultEnvelope, so callers never hand-build the wire format themselves.
package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Config holds the client's connection settings.
type Config struct {
	// BaseURL is the tape host's HTTP surface, e.g. "http://localhost:3000".
	BaseURL string

	// Timeout bounds a single Run call (default 30s).
	Timeout time.Duration
}

// Client talks to one tape host's /run, /proxy/{id} and /health routes.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a Client against the given config.
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// ResultEnvelope mirrors core.ResultEnvelope so callers don't need to
// import the host's internal packages.
type ResultEnvelope struct {
	OK      bool                   `json:"ok"`
	Result  map[string]interface{} `json:"result,omitempty"`
	Error   string                 `json:"error,omitempty"`
	Message string                 `json:"message,omitempty"`
	Backend string                 `json:"backend,omitempty"`
}

type envelope struct {
	Program struct {
		Type  string                 `json:"type"`
		Input map[string]interface{} `json:"input"`
	} `json:"program"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Run invokes handlerName with input and returns the decoded result
// envelope. A non-nil error means the call itself failed (network,
// non-2xx status, malformed response) — a handler-level failure is still
// a successful Run call with ResultEnvelope.OK == false.
func (c *Client) Run(ctx context.Context, handlerName string, input map[string]interface{}, reqContext map[string]interface{}) (*ResultEnvelope, error) {
	var env envelope
	env.Program.Type = handlerName
	env.Program.Input = input
	env.Context = reqContext

	body, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("tapehost-sdk: failed to marshal envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/run", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("tapehost-sdk: failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Handler-Name", handlerName)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tapehost-sdk: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("tapehost-sdk: host returned status %d", resp.StatusCode)
	}

	var result ResultEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("tapehost-sdk: failed to decode response: %w", err)
	}
	return &result, nil
}

// Proxy sends a request to tapeID via the host's inter-tape proxy route.
func (c *Client) Proxy(ctx context.Context, tapeID, path, method string, payload map[string]interface{}) (*ResultEnvelope, error) {
	return c.postJSON(ctx, fmt.Sprintf("/proxy/%s", tapeID), map[string]interface{}{
		"path": path, "method": method, "payload": payload,
	})
}

// Health fetches the host's liveness/handler-inventory report.
func (c *Client) Health(ctx context.Context) (map[string]interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body map[string]interface{}) (*ResultEnvelope, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("tapehost-sdk: host returned status %d", resp.StatusCode)
	}

	var result ResultEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}
