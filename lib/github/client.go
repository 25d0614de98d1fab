// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/bureau-foundation/ccengine/lib/clock"
)

// apiVersion is sent as X-GitHub-Api-Version on every request.
const apiVersion = "2022-11-28"

const defaultBaseURL = "https://api.github.com"

// maxResponseSize bounds how much of a response body is read.
const maxResponseSize = 8 << 20

// Config holds configuration for creating a Client.
type Config struct {
	// BaseURL defaults to https://api.github.com. Must use HTTPS.
	BaseURL string

	// Token is a personal access token or fine-grained token.
	// Required.
	Token string

	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client

	// Clock defaults to clock.Real().
	Clock clock.Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Client is a read-only GitHub REST API client. Safe for concurrent
// use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	authHeader string
	quota      *quotaWindow
	clock      clock.Clock
	logger     *slog.Logger
}

// NewClient validates config and returns a client.
func NewClient(config Config) (*Client, error) {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("github: API client requires HTTPS (got %q)", baseURL)
	}
	if config.Token == "" {
		return nil, fmt.Errorf("github: Token is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		authHeader: "Bearer " + config.Token,
		quota:      &quotaWindow{clock: clk},
		clock:      clk,
		logger:     logger,
	}, nil
}

// get performs an authenticated GET of path (relative to the base URL)
// and decodes the JSON response into result.
func (client *Client) get(ctx context.Context, path string, result any) error {
	body, err := client.getWithRetry(ctx, path, false)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("github: decoding %s: %w", path, err)
	}
	return nil
}

func (client *Client) getWithRetry(ctx context.Context, path string, isRetry bool) ([]byte, error) {
	if err := client.quota.wait(ctx); err != nil {
		return nil, err
	}

	url := client.baseURL + path
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("github: creating request: %w", err)
	}
	request.Header.Set("Authorization", client.authHeader)
	request.Header.Set("Accept", "application/vnd.github+json")
	request.Header.Set("X-GitHub-Api-Version", apiVersion)

	response, err := client.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("github: GET %s: %w", url, err)
	}
	defer response.Body.Close()
	client.quota.observe(response.Header)

	body, err := io.ReadAll(io.LimitReader(response.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("github: reading response body: %w", err)
	}

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return body, nil
	}

	// One retry after a rate-limit response; persistent limiting
	// surfaces as an APIError.
	if !isRetry && (response.StatusCode == http.StatusTooManyRequests ||
		(response.StatusCode == http.StatusForbidden && isRateLimitMessage(string(body)))) {
		if retryDuration := client.quota.backoff(response.Header); retryDuration > 0 {
			client.logger.Info("rate limited, backing off", "duration", retryDuration, "path", path)
			select {
			case <-client.clock.After(retryDuration):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			return client.getWithRetry(ctx, path, true)
		}
	}
	return nil, parseAPIError(response.StatusCode, body)
}
