// Package api is the authenticated request gateway for the Quento coaching
// service. It owns credential state, executes requests against the REST
// surface, transparently refreshes the access token on expiry, and
// classifies failures into branchable error types.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/dbbuilder-org/quento/internal/domain"
)

const (
	defaultTimeout = 30 * time.Second

	// refreshSkew is how close to expiry the access token may get before a
	// request proactively refreshes it instead of waiting for a 401.
	refreshSkew = 30 * time.Second

	maxBodyBytes = 4 << 20
)

// Config configures the gateway client.
type Config struct {
	BaseURL string        // e.g. http://localhost:8080/api/v1
	Timeout time.Duration // transport timeout; 0 uses the default
	Logger  *slog.Logger
}

// Client executes authenticated requests against the coaching service.
//
// Concurrency: safe for concurrent use. At most one token refresh is in
// flight at a time; concurrent 401 recoveries wait on refreshMu and reuse
// the first caller's result instead of issuing their own refresh.
type Client struct {
	baseURL string
	httpc   *http.Client
	creds   *CredentialStore
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger

	refreshMu sync.Mutex
}

// New creates a gateway client around the given credential store.
func New(cfg Config, creds *CredentialStore) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// The breaker sheds load when the service itself is failing. It counts
	// transport errors and 5xx only; 4xx responses pass through untouched.
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     "quento-api",
		Interval: time.Minute,
		Timeout:  15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Gateway circuit state changed", "from", from.String(), "to", to.String())
		},
	})

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpc:   &http.Client{Timeout: timeout},
		creds:   creds,
		breaker: breaker,
		logger:  logger,
	}
}

// Credentials exposes the shared credential store.
func (c *Client) Credentials() *CredentialStore {
	return c.creds
}

// httpResult is a fully drained HTTP response.
type httpResult struct {
	status     int
	statusText string
	body       []byte
}

// do executes an authenticated request and decodes the envelope data into
// out (which may be nil for 204-style calls).
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	_, err := c.doPage(ctx, method, path, in, out)
	return err
}

// doPage is do plus the pagination object for list endpoints.
func (c *Client) doPage(ctx context.Context, method, path string, in, out any) (*Pagination, error) {
	var payload []byte
	if in != nil {
		var err error
		payload, err = json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
	}

	if creds := c.creds.Get(); creds.RefreshToken != "" && c.creds.ExpiresWithin(refreshSkew) {
		// Best effort. If the refresh is rejected the credentials are gone
		// and the request below surfaces its own 401.
		if err := c.refresh(ctx, creds.AccessToken); err != nil {
			c.logger.Debug("Proactive token refresh failed", "error", err)
		}
	}

	token := c.creds.Get().AccessToken
	res, err := c.send(ctx, method, path, payload, token)
	if err != nil {
		return nil, err
	}

	if res.status == http.StatusUnauthorized && c.creds.Get().RefreshToken != "" {
		if err := c.refresh(ctx, token); err != nil {
			// Refresh failed; surface the original 401. No further retry.
			return nil, responseError(res)
		}
		res, err = c.send(ctx, method, path, payload, c.creds.Get().AccessToken)
		if err != nil {
			return nil, err
		}
	}

	return decode(res, out)
}

// doUnauth executes an unauthenticated request (login, register). It never
// attaches a token and never retries.
func (c *Client) doUnauth(ctx context.Context, method, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request body: %w", err)
	}
	res, err := c.send(ctx, method, path, payload, "")
	if err != nil {
		return err
	}
	_, err = decode(res, out)
	return err
}

// send issues a single HTTP request through the circuit breaker and drains
// the response.
func (c *Client) send(ctx context.Context, method, path string, payload []byte, token string) (*httpResult, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	out, err := c.breaker.Execute(func() (any, error) {
		resp, err := c.httpc.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", method, path, err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		res := &httpResult{
			status:     resp.StatusCode,
			statusText: http.StatusText(resp.StatusCode),
			body:       data,
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, responseError(res)
		}
		return res, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("gateway unavailable: %w", err)
		}
		return nil, err
	}
	return out.(*httpResult), nil
}

// refresh performs the single-flight token refresh. staleToken is the
// access token the caller observed when it decided to refresh; if the store
// already holds a different one, a concurrent caller refreshed first and
// its result is reused.
func (c *Client) refresh(ctx context.Context, staleToken string) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	current := c.creds.Get()
	if current.RefreshToken == "" {
		return &AuthError{Op: "refresh", Err: ErrNotAuthenticated}
	}
	if current.AccessToken != staleToken {
		return nil
	}

	payload, err := json.Marshal(map[string]string{"refresh_token": current.RefreshToken})
	if err != nil {
		return fmt.Errorf("encode refresh request: %w", err)
	}

	res, err := c.send(ctx, http.MethodPost, "/auth/refresh", payload, "")
	if err != nil {
		// Transport failure: the server never rejected the refresh token,
		// so keep the credentials for a later attempt.
		return fmt.Errorf("refresh token: %w", err)
	}

	var tokens TokenResponse
	if _, err := decode(res, &tokens); err != nil {
		c.creds.Clear(ctx)
		c.logger.Warn("Token refresh rejected, credentials cleared", "error", err)
		return &AuthError{Op: "refresh", Err: err}
	}

	c.creds.Set(ctx, domain.Credentials{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	})
	c.logger.Debug("Access token refreshed")
	return nil
}

// responseError converts a non-2xx result into a RequestError, pulling the
// server's error message out of the failure envelope when present.
func responseError(res *httpResult) error {
	re := &RequestError{Status: res.status, StatusText: res.statusText}
	var env envelope
	if len(res.body) > 0 && json.Unmarshal(res.body, &env) == nil && env.Error != nil {
		re.Code = env.Error.Code
		re.Message = env.Error.Message
	}
	return re
}

// decode maps a drained response onto the envelope contract. 204 and empty
// bodies are an empty success.
func decode(res *httpResult, out any) (*Pagination, error) {
	if res.status < http.StatusOK || res.status >= http.StatusMultipleChoices {
		return nil, responseError(res)
	}
	if res.status == http.StatusNoContent || len(res.body) == 0 {
		return nil, nil
	}

	var env envelope
	if err := json.Unmarshal(res.body, &env); err != nil {
		return nil, fmt.Errorf("decode response envelope: %w", err)
	}
	if !env.Success {
		re := &RequestError{Status: res.status, StatusText: res.statusText}
		if env.Error != nil {
			re.Code = env.Error.Code
			re.Message = env.Error.Message
		}
		return nil, re
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return nil, fmt.Errorf("decode response data: %w", err)
		}
	}
	return env.Pagination, nil
}
