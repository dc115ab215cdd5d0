// Package appdaemon is a thin HTTP client for the AppDaemon instance in the
// test environment. AppDaemon apps observe the same faked clock as Home
// Assistant, so tests mostly drive them indirectly through entity state; the
// client covers liveness and the app endpoint API.
package appdaemon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/TheTarry/ha-harness/pkg/retry"
)

// Config configures the AppDaemon client.
type Config struct {
	// BaseURL of the instance, e.g. "http://localhost:49154".
	BaseURL string

	// HTTPClient defaults to a client with a 10 second timeout.
	HTTPClient *http.Client

	// Retry controls transport-level retries. Defaults to retry.APIConfig.
	Retry *retry.Config

	Logger *slog.Logger
}

// Client talks to one AppDaemon instance.
type Client struct {
	baseURL string
	http    *http.Client
	retry   retry.Config
	logger  *slog.Logger
}

// New creates an AppDaemon client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("appdaemon: base URL is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	retryCfg := retry.APIConfig()
	if cfg.Retry != nil {
		retryCfg = *cfg.Retry
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    httpClient,
		retry:   retryCfg,
		logger:  logger,
	}, nil
}

// Ping reports whether the AppDaemon HTTP server is responding.
func (c *Client) Ping(ctx context.Context) error {
	return retry.Do(ctx, c.retry, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
		if err != nil {
			return err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode >= 500 {
			return fmt.Errorf("appdaemon returned status %d", resp.StatusCode)
		}
		return nil
	})
}

// CallApp posts a payload to a registered app endpoint
// (/api/appdaemon/<endpoint>) and returns the raw response body.
func (c *Client) CallApp(ctx context.Context, endpoint string, payload map[string]any) ([]byte, error) {
	var body []byte
	var err error
	if payload != nil {
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode payload for app %s: %w", endpoint, err)
		}
	}

	return retry.DoWithValue(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.baseURL+"/api/appdaemon/"+url.PathEscape(endpoint), bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("app endpoint %s returned status %d: %s",
				endpoint, resp.StatusCode, strings.TrimSpace(string(data)))
		}
		return data, nil
	})
}
