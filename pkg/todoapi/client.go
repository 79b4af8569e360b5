// Package todoapi is the client for the to-do REST API. Every call carries the
// session's bearer token and recovers from an expired token with at most one
// refresh and one retry.
package todoapi

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
	"time"

	"github.com/aussiebroadwan/todo/pkg/idx"
	"github.com/aussiebroadwan/todo/pkg/slogx"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is where the API lives in the local development stack.
const DefaultBaseURL = "http://localhost:8000/api"

// RefreshMinValidity is the validity asked of the session after a 401.
const RefreshMinValidity = 30 * time.Second

// ErrAuthRequired means a call was rejected with 401 and the session could not
// be refreshed. The caller decides how to get the user logged in again.
var ErrAuthRequired = errors.New("authentication required")

// Authenticator is the part of the session the client needs.
type Authenticator interface {
	Token() string
	Refresh(ctx context.Context, minValidity time.Duration) (bool, error)
}

type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	// Auth supplies the bearer token. Nil sends requests without one.
	Auth Authenticator

	// OnAuthRequired runs just before ErrAuthRequired is returned.
	OnAuthRequired func(ctx context.Context)

	// Limiter, when set, paces outgoing requests, retries included.
	Limiter *rate.Limiter

	Logger *slog.Logger
}

// NewClient returns a client whose transport logs each call at debug level
// through the context logger.
func NewClient(baseURL string, auth Authenticator) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Transport: &slogx.Transport{},
		},
		Auth: auth,
	}
}

func (c *Client) url(path string) string {
	return c.BaseURL + path
}

func (c *Client) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) token() string {
	if c.Auth == nil {
		return ""
	}
	return c.Auth.Token()
}

// call sends one request and decodes a 2xx body into out. A 401 earns a
// single refresh and a single retry; whatever the retry returns is final.
func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		payload = b
	}

	reqID := idx.New().String()
	ctx = slogx.WithRequestID(slogx.WithContext(ctx, c.logger()), reqID)
	logger := slogx.FromContext(ctx)

	resp, err := c.send(ctx, method, path, payload, reqID)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		drain(resp)

		if !c.renew(ctx) {
			logger.Info("session could not be renewed", "method", method, "path", path)
			if c.OnAuthRequired != nil {
				c.OnAuthRequired(ctx)
			}
			return ErrAuthRequired
		}

		logger.Debug("retrying with refreshed token", "method", method, "path", path)
		resp, err = c.send(ctx, method, path, payload, reqID)
		if err != nil {
			return err
		}
	}

	return decodeResponse(resp, out)
}

// renew reports whether the session produced a new token worth retrying with.
func (c *Client) renew(ctx context.Context) bool {
	if c.Auth == nil {
		return false
	}

	refreshed, err := c.Auth.Refresh(ctx, RefreshMinValidity)
	if err != nil {
		slogx.FromContext(ctx).Debug("token refresh failed", "err", err)
		return false
	}
	return refreshed && c.Auth.Token() != ""
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, reqID string) (*http.Response, error) {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	if token := c.token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	return resp, nil
}

func decodeResponse(resp *http.Response, out any) error {
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseHTTPError(resp.StatusCode, bodyBytes)
	}

	if out == nil || len(bytes.TrimSpace(bodyBytes)) == 0 {
		return nil
	}
	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
