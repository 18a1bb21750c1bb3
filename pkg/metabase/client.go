// Package metabase is a client for the Metabase card query API. It owns the
// engine session and executes saved cards with template-tag parameters.
package metabase

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

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout bounds every request to the engine.
	DefaultTimeout = 30 * time.Second

	// SessionHeader carries the session token on authenticated requests.
	SessionHeader = "X-Metabase-Session"

	maxAttempts     = 2
	maxResponseBody = 64 << 20
)

// Config configures the engine client.
type Config struct {
	URL        string
	Username   string
	Password   string
	Token      string
	SessionTTL time.Duration
	Timeout    time.Duration

	// RateLimit is the sustained request rate per second. Zero disables limiting.
	RateLimit float64
	RateBurst int

	Breaker BreakerConfig
}

// BreakerConfig configures the circuit breaker in front of the engine.
type BreakerConfig struct {
	Enabled          bool
	FailureThreshold uint32
	OpenTimeout      time.Duration
	HalfOpenRequests uint32
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. Its Timeout is left untouched.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLoginObserver registers a callback invoked after every login attempt.
func WithLoginObserver(fn func(err error)) Option {
	return func(c *Client) { c.sessions.onLogin = fn }
}

// Client executes cards against a Metabase instance.
type Client struct {
	cfg      Config
	baseURL  string
	http     *http.Client
	sessions *SessionManager
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker[*response]
}

type response struct {
	status int
	body   []byte
}

// errServerFault marks 5xx answers so the breaker counts them as failures.
var errServerFault = errors.New("metabase server error")

// NewClient creates a client. The URL is required; credentials are only
// checked when a login is actually needed.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("metabase url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	c := &Client{
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.URL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
	}
	c.sessions = NewSessionManager(c.login, cfg.SessionTTL)
	c.sessions.Seed(cfg.Token)

	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	if cfg.Breaker.Enabled {
		c.breaker = newBreaker(cfg.Breaker)
	}

	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func newBreaker(cfg BreakerConfig) *gobreaker.CircuitBreaker[*response] {
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	return gobreaker.NewCircuitBreaker[*response](gobreaker.Settings{
		Name:        "metabase",
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
}

// Sessions exposes the session manager.
func (c *Client) Sessions() *SessionManager {
	return c.sessions
}

// Authenticated reports whether a valid engine session is held.
func (c *Client) Authenticated() bool {
	return c.sessions.Authenticated()
}

// ExecuteCard runs a saved card with the given parameters, bypassing the
// engine's own result cache. A rejected session triggers exactly one fresh
// login and retry.
func (c *Client) ExecuteCard(ctx context.Context, cardID int, params Parameters) (*Result, error) {
	if cardID <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCard, cardID)
	}

	body, err := json.Marshal(queryRequest{IgnoreCache: true, Parameters: templateParameters(params)})
	if err != nil {
		return nil, fmt.Errorf("encoding parameters for card %d: %w", cardID, err)
	}

	resp, err := c.authorized(ctx, http.MethodPost, fmt.Sprintf("/api/card/%d/query", cardID), body)
	if err != nil {
		return nil, fmt.Errorf("executing card %d: %w", cardID, err)
	}
	if resp.status != http.StatusOK && resp.status != http.StatusAccepted {
		return nil, &QueryError{CardID: cardID, StatusCode: resp.status, Body: truncate(resp.body)}
	}
	return decodeResult(cardID, resp.body)
}

// CardInfo fetches the card's metadata.
func (c *Client) CardInfo(ctx context.Context, cardID int) (*CardInfo, error) {
	if cardID <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCard, cardID)
	}

	resp, err := c.authorized(ctx, http.MethodGet, fmt.Sprintf("/api/card/%d", cardID), nil)
	if err != nil {
		return nil, fmt.Errorf("fetching card %d: %w", cardID, err)
	}
	if resp.status != http.StatusOK {
		return nil, &QueryError{CardID: cardID, StatusCode: resp.status, Body: truncate(resp.body)}
	}

	var info CardInfo
	if err := json.Unmarshal(resp.body, &info); err != nil {
		return nil, fmt.Errorf("%w: decoding card %d: %v", ErrInvalidResponse, cardID, err)
	}
	return &info, nil
}

// Ping checks the engine's health endpoint. It does not require a session.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.roundTrip(ctx, http.MethodGet, "/api/health", "", nil)
	if err != nil {
		return err
	}
	if resp.status != http.StatusOK {
		return fmt.Errorf("%w: health check returned HTTP %d", ErrEngineUnavailable, resp.status)
	}
	return nil
}

func (c *Client) authorized(ctx context.Context, method, path string, body []byte) (*response, error) {
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		token, err := c.sessions.Token(ctx)
		if err != nil {
			return nil, err
		}

		resp, err := c.roundTrip(ctx, method, path, token, body)
		if err != nil {
			return nil, err
		}
		if resp.status != http.StatusUnauthorized {
			return resp, nil
		}

		slog.Warn("metabase rejected session", "path", path, "attempt", attempt)
		c.sessions.InvalidateToken(token)
	}
	return nil, ErrDownstreamAuth
}

func (c *Client) login(ctx context.Context) (string, error) {
	if c.cfg.Username == "" || c.cfg.Password == "" {
		return "", fmt.Errorf("%w: username and password are required", ErrAuthentication)
	}

	body, err := json.Marshal(map[string]string{
		"username": c.cfg.Username,
		"password": c.cfg.Password,
	})
	if err != nil {
		return "", fmt.Errorf("%w: encoding credentials: %v", ErrAuthentication, err)
	}

	resp, err := c.roundTrip(ctx, http.MethodPost, "/api/session", "", body)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAuthentication, err)
	}
	if resp.status != http.StatusOK {
		return "", fmt.Errorf("%w: login returned HTTP %d: %s", ErrAuthentication, resp.status, truncate(resp.body))
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(resp.body, &out); err != nil || out.ID == "" {
		return "", fmt.Errorf("%w: login response carried no session id", ErrAuthentication)
	}
	return out.ID, nil
}

func (c *Client) roundTrip(ctx context.Context, method, path, token string, body []byte) (*response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: waiting for rate limiter: %w", ErrEngineUnavailable, err)
		}
	}

	call := func() (*response, error) {
		return c.send(ctx, method, path, token, body)
	}
	if c.breaker == nil {
		resp, err := call()
		if errors.Is(err, errServerFault) {
			err = nil
		}
		return resp, err
	}

	resp, err := c.breaker.Execute(call)
	switch {
	case errors.Is(err, errServerFault):
		return resp, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, fmt.Errorf("%w: %w", ErrEngineUnavailable, err)
	}
	return resp, err
}

func (c *Client) send(ctx context.Context, method, path, token string, body []byte) (*response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set(SessionHeader, token)
	}

	httpResp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEngineUnavailable, err)
	}
	defer httpResp.Body.Close() //nolint:errcheck // read-only body

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %w", ErrEngineUnavailable, err)
	}

	resp := &response{status: httpResp.StatusCode, body: data}
	if resp.status >= http.StatusInternalServerError {
		return resp, errServerFault
	}
	return resp, nil
}

// statusCompleted is the only query status that carries usable rows.
const statusCompleted = "completed"

func decodeResult(cardID int, body []byte) (*Result, error) {
	var qr queryResponse
	if err := json.Unmarshal(body, &qr); err != nil {
		return nil, fmt.Errorf("%w: decoding card %d result: %v", ErrInvalidResponse, cardID, err)
	}
	if qr.Status != statusCompleted {
		return nil, fmt.Errorf("%w: card %d query status %q: %s", ErrInvalidResponse, cardID, qr.Status, qr.Error)
	}
	if qr.Data == nil || qr.Data.Cols == nil || qr.Data.Rows == nil {
		return nil, fmt.Errorf("%w: card %d result has no data", ErrInvalidResponse, cardID)
	}
	return &Result{Columns: qr.Data.Cols, Rows: qr.Data.Rows}, nil
}
