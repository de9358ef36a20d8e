// Package upstream implements the HTTP client for the origin API, with
// exponential-backoff retry on transient failures.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"reqflow/internal/config"
)

// StatusError is returned when the upstream answers with a non-2xx status
type StatusError struct {
	Code int
	Body string
}

// Error implements the error interface
func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d: %s", e.Code, e.Body)
}

// Client talks to a single origin API
type Client struct {
	baseURL    *url.URL
	headers    map[string]string
	httpClient *http.Client
	retry      RetryPolicy
	logger     zerolog.Logger
}

// Config for creating a new Client
type Config struct {
	BaseURL        string
	Headers        map[string]string
	RequestTimeout time.Duration
	Retry          RetryPolicy
	Logger         zerolog.Logger
}

// NewClient creates a new Client instance
func NewClient(cfg Config) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
	}

	httpClient := &http.Client{
		Transport: transport,
		Timeout:   cfg.RequestTimeout,
	}

	return &Client{
		baseURL:    base,
		headers:    cfg.Headers,
		httpClient: httpClient,
		retry:      cfg.Retry,
		logger:     cfg.Logger.With().Str("component", "upstream").Logger(),
	}, nil
}

// NewClientFromConfig creates a Client from config
func NewClientFromConfig(cfg *config.Config, logger zerolog.Logger) (*Client, error) {
	return NewClient(Config{
		BaseURL:        cfg.Upstream.BaseURL,
		Headers:        cfg.Upstream.Headers,
		RequestTimeout: cfg.GetRequestTimeoutDuration(),
		Retry: RetryPolicy{
			Enabled:     cfg.Upstream.Retry.Enabled,
			MaxAttempts: cfg.Upstream.Retry.MaxAttempts,
			BaseDelay:   cfg.Upstream.Retry.GetBaseDelayDuration(),
			MaxDelay:    cfg.Upstream.Retry.GetMaxDelayDuration(),
		},
		Logger: logger,
	})
}

// Get fetches path with the given query from the origin API and returns the
// raw JSON body. Transient failures are retried per the client's policy.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	return c.doWithRetry(ctx, func(ctx context.Context) (json.RawMessage, error) {
		return c.getOnce(ctx, path, query)
	})
}

// getOnce executes a single GET against the origin
func (c *Client) getOnce(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	target := c.resolve(path, query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Body: truncate(string(body), 256)}
	}

	return json.RawMessage(body), nil
}

// resolve joins the base URL, resource path and query into a full URL
func (c *Client) resolve(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// truncate caps a string for error messages and logs
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
