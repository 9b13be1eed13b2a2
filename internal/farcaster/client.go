// Package farcaster talks to the Farcaster HTTP API: it reads profile cast
// history, mints bearer tokens from a signing key and publishes recasts.
package farcaster

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"

	"ncbot/pkg/clients"
	"ncbot/pkg/logging"
)

// DefaultBaseURL is the public Farcaster API.
const DefaultBaseURL = "https://api.farcaster.xyz"

var (
	// ErrUnauthorized is wrapped by APIError for 401 and 403 responses.
	ErrUnauthorized = errors.New("farcaster: unauthorized")
	// ErrNoToken is returned by write calls on a client without a bearer token.
	ErrNoToken = errors.New("farcaster: no bearer token configured")
)

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Path       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("farcaster %s returned status %d: %s", e.Path, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("farcaster %s returned status %d", e.Path, e.StatusCode)
}

func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden {
		return ErrUnauthorized
	}
	return nil
}

// Client is safe for concurrent use. History reads and writes (recasts,
// token minting) run behind separate circuit breakers, so failing writes
// never stop history from being read.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	breaker *clients.CircuitBreakerConfig
	reads   failsafe.Executor[*http.Response]
	writes  failsafe.Executor[*http.Response]
	logger  logging.Logger
}

type Option func(*Client)

// NewClient creates a client for baseURL ("" selects DefaultBaseURL).
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	cb := clients.DefaultCircuitBreakerConfig("farcaster")
	c := &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout:   10 * time.Second,
			Transport: clients.DefaultTransport(),
		},
		breaker: &cb,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.reads = c.newExecutor("read")
	c.writes = c.newExecutor("write")
	return c
}

// WithTimeout bounds every individual request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.client.Timeout = d
		}
	}
}

// WithCircuitBreaker sets the template for the read and write breakers. A
// nil cfg sends every request directly.
func WithCircuitBreaker(cfg *clients.CircuitBreakerConfig) Option {
	return func(c *Client) {
		c.breaker = cfg
	}
}

// WithBearerToken authenticates write calls.
func WithBearerToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

func WithLogger(logger logging.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithToken returns a copy of c that authenticates with token. The copy
// shares the HTTP client and circuit breakers.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

func (c *Client) newExecutor(scope string) failsafe.Executor[*http.Response] {
	if c.breaker == nil {
		return nil
	}
	cfg := *c.breaker
	cfg.Name = cfg.Name + "-" + scope
	if cfg.Logger == nil {
		cfg.Logger = c.logger
	}
	return clients.NewHTTPExecutor(clients.HTTPExecutorConfig{CircuitBreaker: &cfg})
}

// do sends a JSON request through exec and decodes a 2xx JSON response into out.
func (c *Client) do(ctx context.Context, exec failsafe.Executor[*http.Response], method, url, path string, body []byte, header http.Header, out any) error {
	resp, err := clients.ExecuteHTTP(ctx, exec, func() (*http.Response, error) {
		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, rd)
		if err != nil {
			return nil, err
		}
		for k, v := range header {
			req.Header[k] = v
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		return c.client.Do(req)
	})
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Path: path, Message: errorMessage(resp.Body)}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

// errorMessage extracts {"errors":[{"message":...}]} if the body has it.
func errorMessage(body io.Reader) string {
	var payload struct {
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.NewDecoder(io.LimitReader(body, 64<<10)).Decode(&payload); err != nil || len(payload.Errors) == 0 {
		return ""
	}
	return payload.Errors[0].Message
}

func (c *Client) bearer() (http.Header, error) {
	if c.token == "" {
		return nil, ErrNoToken
	}
	return http.Header{"Authorization": {"Bearer " + c.token}}, nil
}
