// Package client provides an HTTP client for the procman API, suitable
// for the CLI's remote mode and for embedding in other tools.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Config holds client configuration.
type Config struct {
	BaseURL string // e.g. http://localhost:8080/api
	Token   string // bearer token, empty disables the header
	Timeout time.Duration
}

// DefaultConfig returns default client configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8080/api",
		Timeout: 10 * time.Second,
	}
}

// Client talks to a running procman daemon.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8080/api"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

// Start launches a new process on the daemon.
func (c *Client) Start(ctx context.Context, req StartRequest) (ProcessRecord, error) {
	var rec ProcessRecord
	err := c.do(ctx, "POST", "/processes", req, &rec)
	return rec, err
}

// Stop stops the named process.
func (c *Client) Stop(ctx context.Context, name string) error {
	return c.do(ctx, "PUT", "/processes/"+url.PathEscape(name)+"/stop", nil, nil)
}

// Restart restarts the named process.
func (c *Client) Restart(ctx context.Context, name string) (ProcessRecord, error) {
	var rec ProcessRecord
	err := c.do(ctx, "PUT", "/processes/"+url.PathEscape(name)+"/restart", nil, &rec)
	return rec, err
}

// Delete removes the named process.
func (c *Client) Delete(ctx context.Context, name string) error {
	return c.do(ctx, "DELETE", "/processes/"+url.PathEscape(name), nil, nil)
}

// List returns all process records.
func (c *Client) List(ctx context.Context) ([]ProcessRecord, error) {
	var recs []ProcessRecord
	err := c.do(ctx, "GET", "/processes", nil, &recs)
	return recs, err
}

// Status returns the reconciled record for one process.
func (c *Client) Status(ctx context.Context, name string) (ProcessRecord, error) {
	var rec ProcessRecord
	err := c.do(ctx, "GET", "/processes/"+url.PathEscape(name), nil, &rec)
	return rec, err
}

// Logs returns the tail of the process log. maxLines <= 0 fetches the
// whole file.
func (c *Client) Logs(ctx context.Context, name string, maxLines int) (string, error) {
	path := "/processes/" + url.PathEscape(name) + "/logs"
	if maxLines > 0 {
		path += "?lines=" + strconv.Itoa(maxLines)
	}
	var logs string
	err := c.do(ctx, "GET", path, nil, &logs)
	return logs, err
}

// RotatedLogs returns the rotated backup paths for the process.
func (c *Client) RotatedLogs(ctx context.Context, name string) ([]string, error) {
	var files []string
	err := c.do(ctx, "GET", "/processes/"+url.PathEscape(name)+"/logs?rotated=true", nil, &files)
	return files, err
}

// RotateLogs rotates the live log file of the process.
func (c *Client) RotateLogs(ctx context.Context, name string) error {
	return c.do(ctx, "PUT", "/processes/"+url.PathEscape(name)+"/rotate", nil, nil)
}

// Clear removes processes; all=false clears only stopped/failed ones.
func (c *Client) Clear(ctx context.Context, all bool) (ClearResult, error) {
	path := "/processes"
	if all {
		path += "?all=true"
	}
	var result ClearResult
	err := c.do(ctx, "DELETE", path, nil, &result)
	return result, err
}

// do issues one API request and decodes the response envelope into out
// when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return &APIError{StatusCode: resp.StatusCode, Message: string(data)}
	}
	if resp.StatusCode != http.StatusOK || !envelope.Success {
		return &APIError{StatusCode: resp.StatusCode, Message: envelope.Error}
	}
	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
