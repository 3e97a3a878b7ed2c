// Package api is the HTTP client for the call-assist session endpoints.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	ErrBaseURLRequired   = errors.New("api: base url required")
	ErrSessionIDRequired = errors.New("api: session id required")
	ErrCreateSession     = errors.New("api: failed to create session")
	ErrFetchSession      = errors.New("api: failed to fetch session")
	ErrEndSession        = errors.New("api: failed to end session")
)

const (
	defaultTimeout     = 15 * time.Second
	maxBodyBytes       = 1 << 20
	endSessionFallback = "Failed to end session"
)

type CreateSessionRequest struct {
	TenantID   string `json:"tenant_id,omitempty"`
	OrgID      string `json:"org_id,omitempty"`
	LocationID string `json:"location_id,omitempty"`
	CampaignID string `json:"campaign_id,omitempty"`
}

// Session is the server's session descriptor. Unknown fields are ignored.
type Session struct {
	ID          string     `json:"id" yaml:"id"`
	CreatedAt   *time.Time `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	Status      string     `json:"status,omitempty" yaml:"status,omitempty"`
	TenantID    string     `json:"tenant_id,omitempty" yaml:"tenant_id,omitempty"`
	OrgID       string     `json:"org_id,omitempty" yaml:"org_id,omitempty"`
	LocationID  string     `json:"location_id,omitempty" yaml:"location_id,omitempty"`
	CampaignID  string     `json:"campaign_id,omitempty" yaml:"campaign_id,omitempty"`
	EndedAt     *time.Time `json:"ended_at,omitempty" yaml:"ended_at,omitempty"`
	Summary     string     `json:"summary,omitempty" yaml:"summary,omitempty"`
	Disposition string     `json:"disposition,omitempty" yaml:"disposition,omitempty"`
}

type SessionSummary struct {
	SessionID   string `json:"session_id" yaml:"session_id"`
	Summary     string `json:"summary" yaml:"summary"`
	Disposition string `json:"disposition" yaml:"disposition"`
}

// EndSessionError carries the server's error body text.
type EndSessionError struct {
	StatusCode int
	Message    string
}

func (e *EndSessionError) Error() string {
	return e.Message
}

func (e *EndSessionError) Unwrap() error {
	return ErrEndSession
}

// Client talks to the session REST endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
	header     http.Header
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient = &http.Client{Timeout: d}
		}
	}
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.header.Set(key, value)
	}
}

func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSuffix(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, ErrBaseURLRequired
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("api: parse base url: %w", err)
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		header:     make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// CreateSession calls POST /sessions.
func (c *Client) CreateSession(ctx context.Context, req CreateSessionRequest) (Session, error) {
	var out Session
	status, body, err := c.do(ctx, http.MethodPost, "/sessions", req)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrCreateSession, err)
	}
	if !ok(status) {
		return Session{}, fmt.Errorf("%w: status %d", ErrCreateSession, status)
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return Session{}, fmt.Errorf("%w: decode: %v", ErrCreateSession, err)
	}
	if strings.TrimSpace(out.ID) == "" {
		return Session{}, fmt.Errorf("%w: response missing id", ErrCreateSession)
	}
	return out, nil
}

// GetSession calls GET /sessions/{id}.
func (c *Client) GetSession(ctx context.Context, sessionID string) (Session, error) {
	path, err := sessionPath(sessionID, "")
	if err != nil {
		return Session{}, err
	}
	status, body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrFetchSession, err)
	}
	if !ok(status) {
		return Session{}, fmt.Errorf("%w: status %d", ErrFetchSession, status)
	}
	var out Session
	if err := json.Unmarshal(body, &out); err != nil {
		return Session{}, fmt.Errorf("%w: decode: %v", ErrFetchSession, err)
	}
	return out, nil
}

// EndSession calls POST /sessions/{id}/end. A non-2xx response is returned
// as *EndSessionError carrying the body text.
func (c *Client) EndSession(ctx context.Context, sessionID string) (SessionSummary, error) {
	path, err := sessionPath(sessionID, "/end")
	if err != nil {
		return SessionSummary{}, err
	}
	status, body, err := c.do(ctx, http.MethodPost, path, nil)
	if err != nil {
		return SessionSummary{}, fmt.Errorf("%w: %v", ErrEndSession, err)
	}
	if !ok(status) {
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = endSessionFallback
		}
		return SessionSummary{}, &EndSessionError{StatusCode: status, Message: msg}
	}
	var out SessionSummary
	if err := json.Unmarshal(body, &out); err != nil {
		return SessionSummary{}, fmt.Errorf("%w: decode: %v", ErrEndSession, err)
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	for key, values := range c.header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("method", method).Str("path", path).Msg("api.request failed")
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("api.request")
	return resp.StatusCode, body, nil
}

func sessionPath(sessionID, suffix string) (string, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return "", ErrSessionIDRequired
	}
	return "/sessions/" + url.PathEscape(sessionID) + suffix, nil
}

func ok(status int) bool {
	return status >= 200 && status < 300
}
