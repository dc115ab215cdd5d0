// Package hass is an HTTP client for the Home Assistant REST API, covering
// the surface the harness needs: entity state management, service calls,
// state polling with predicate support, and token lifecycle under time
// manipulation.
package hass

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

	"github.com/TheTarry/ha-harness/pkg/clock"
	"github.com/TheTarry/ha-harness/pkg/retry"
	"github.com/TheTarry/ha-harness/pkg/timemachine"
)

// Config configures the Home Assistant client.
type Config struct {
	// BaseURL of the instance, e.g. "http://localhost:49153".
	BaseURL string

	// Auth supplies access tokens. Required.
	Auth *AuthManager

	// HTTPClient defaults to a client with a 10 second timeout.
	HTTPClient *http.Client

	// Retry controls transport-level retries. Defaults to retry.APIConfig.
	Retry *retry.Config

	// Clock drives state polling. Defaults to real time.
	Clock clock.Clock

	// Observer, when set, is called with the status code of every API
	// response. Used to feed request metrics.
	Observer func(status int)

	Logger *slog.Logger
}

// Client talks to one Home Assistant instance.
type Client struct {
	baseURL  string
	auth     *AuthManager
	http     *http.Client
	retry    retry.Config
	clk      clock.Clock
	observer func(status int)
	logger   *slog.Logger
}

// State is an entity state as returned by /api/states.
type State struct {
	EntityID    string         `json:"entity_id"`
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes"`
	LastChanged time.Time      `json:"last_changed"`
	LastUpdated time.Time      `json:"last_updated"`
}

// statusError is an HTTP error response from the API.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.status, e.body)
}

// New creates a Home Assistant client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("hass: base URL is required")
	}
	if cfg.Auth == nil {
		return nil, errors.New("hass: auth manager is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	retryCfg := retry.APIConfig()
	if cfg.Retry != nil {
		retryCfg = *cfg.Retry
	}
	// HTTP status responses reach the caller unchanged; only transport
	// failures are worth retrying here.
	retryCfg.RetryableFunc = func(err error) bool {
		var se *statusError
		return !errors.As(err, &se)
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		auth:     cfg.Auth,
		http:     httpClient,
		retry:    retryCfg,
		clk:      clk,
		observer: cfg.Observer,
		logger:   logger,
	}, nil
}

// RegenerateAccessToken forces a fresh access token. Useful after a time
// jump has expired the current one.
func (c *Client) RegenerateAccessToken(ctx context.Context) error {
	_, err := c.auth.Regenerate(ctx)
	return err
}

// TokenRefreshHook adapts the client into a hook that regenerates the access
// token after every successful time change. Failures are logged: the next
// API call will retry regeneration on its own when it hits a 401.
func (c *Client) TokenRefreshHook() timemachine.Hook {
	return timemachine.HookFunc(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.RegenerateAccessToken(ctx); err != nil {
			c.logger.Warn("failed to regenerate access token after time change",
				slog.String("error", err.Error()))
		}
	})
}

// SetState sets the state and optional attributes of an entity.
func (c *Client) SetState(ctx context.Context, entityID, state string, attributes map[string]any) error {
	body := map[string]any{"state": state}
	if attributes != nil {
		body["attributes"] = attributes
	}
	_, err := c.do(ctx, http.MethodPost, "/api/states/"+url.PathEscape(entityID), body)
	if err != nil {
		return fmt.Errorf("failed to set state for entity %s: %w", entityID, err)
	}
	return nil
}

// GetState returns the state of an entity, or nil when the entity does not
// exist.
func (c *Client) GetState(ctx context.Context, entityID string) (*State, error) {
	data, err := c.do(ctx, http.MethodGet, "/api/states/"+url.PathEscape(entityID), nil)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && se.status == http.StatusNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get state for entity %s: %w", entityID, err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("unparseable state response for entity %s: %w", entityID, err)
	}
	return &state, nil
}

// EntityState implements the oracle consulted for preset resolution.
func (c *Client) EntityState(ctx context.Context, entityID string) (*timemachine.EntityState, error) {
	state, err := c.GetState(ctx, entityID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, nil
	}
	return &timemachine.EntityState{State: state.State, Attributes: state.Attributes}, nil
}

// RemoveEntity deletes an entity. Removing an entity that does not exist is
// not an error.
func (c *Client) RemoveEntity(ctx context.Context, entityID string) error {
	_, err := c.do(ctx, http.MethodDelete, "/api/states/"+url.PathEscape(entityID), nil)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && se.status == http.StatusNotFound {
			return nil
		}
		return fmt.Errorf("failed to remove entity %s: %w", entityID, err)
	}
	return nil
}

// CallService invokes a Home Assistant service, e.g. ("light", "turn_on").
func (c *Client) CallService(ctx context.Context, domain, service string, data map[string]any) error {
	path := fmt.Sprintf("/api/services/%s/%s", url.PathEscape(domain), url.PathEscape(service))
	if _, err := c.do(ctx, http.MethodPost, path, data); err != nil {
		return fmt.Errorf("failed to call service %s.%s: %w", domain, service, err)
	}
	return nil
}

// WaitForState polls an entity every second until its state equals want or
// the timeout elapses.
func (c *Client) WaitForState(ctx context.Context, entityID, want string, timeout time.Duration) error {
	return c.waitFor(ctx, entityID, timeout, fmt.Sprintf("%q", want), func(s *State) (bool, error) {
		return s.State == want, nil
	})
}

// WaitForCondition polls an entity until the CEL expression evaluates true.
// The expression sees the variables `state` (string) and `attributes` (map),
// e.g. `state == "on" && attributes.brightness >= 128`.
func (c *Client) WaitForCondition(ctx context.Context, entityID, expr string, timeout time.Duration) error {
	pred, err := CompilePredicate(expr)
	if err != nil {
		return err
	}
	return c.waitFor(ctx, entityID, timeout, expr, pred.Matches)
}

func (c *Client) waitFor(ctx context.Context, entityID string, timeout time.Duration, desc string, match func(*State) (bool, error)) error {
	deadline := c.clk.Now().Add(timeout)
	var last string
	for {
		state, err := c.GetState(ctx, entityID)
		if err != nil {
			return err
		}
		if state != nil {
			ok, err := match(state)
			if err != nil {
				return fmt.Errorf("condition %s failed for entity %s: %w", desc, entityID, err)
			}
			if ok {
				return nil
			}
			last = state.State
		}

		if !c.clk.Now().Before(deadline) {
			if state == nil {
				return fmt.Errorf("entity %s not found within %s", entityID, timeout)
			}
			return fmt.Errorf("entity %s did not satisfy %s within %s (current state: %q)",
				entityID, desc, timeout, last)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.clk.After(time.Second):
		}
	}
}

// do performs one API request with transport retries and a single
// regenerate-and-retry on 401, mirroring how long test sessions survive
// access token expiry.
func (c *Client) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	data, err := retry.DoWithValue(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		return c.doOnce(ctx, method, path, body)
	})
	if err == nil {
		return data, nil
	}

	var se *statusError
	if !errors.As(err, &se) || se.status != http.StatusUnauthorized {
		return nil, err
	}

	c.logger.Debug("received 401, regenerating access token and retrying",
		slog.String("method", method),
		slog.String("path", path),
	)
	if _, regenErr := c.auth.Regenerate(ctx); regenErr != nil {
		return nil, fmt.Errorf("failed to complete request after token regeneration (original error: %w): %w", err, regenErr)
	}
	return retry.DoWithValue(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		return c.doOnce(ctx, method, path, body)
	})
}

func (c *Client) doOnce(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	token, err := c.auth.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if c.observer != nil {
		c.observer(resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, &statusError{status: resp.StatusCode, body: strings.TrimSpace(string(data))}
	}
	return data, nil
}
