// Package authtransport is the one-shot HTTP request/response envelope
// for the Supabase-style auth token endpoint.
package authtransport

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/http2"
)

// Config is immutable, read-only once built.
type Config struct {
	APIKey               string
	BaseURL              *url.URL
	MaxReconnectAttempts uint8
	ReconnectInterval    time.Duration
}

// NewConfig validates and builds a Config. An invalid base URL is a
// construction-time, non-retryable ConfigError.
func NewConfig(apiKey, baseURL string, maxReconnectAttempts uint8, reconnectInterval time.Duration) (Config, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil || !parsed.IsAbs() {
		return Config{}, fmt.Errorf("%w: base URL %q is not an absolute URL", ErrConfig, baseURL)
	}
	if apiKey == "" {
		return Config{}, fmt.Errorf("%w: api key is required", ErrConfig)
	}
	return Config{
		APIKey:               apiKey,
		BaseURL:              parsed,
		MaxReconnectAttempts: maxReconnectAttempts,
		ReconnectInterval:    reconnectInterval,
	}, nil
}

// Client executes one-shot requests against the auth endpoint over a
// pooled, HTTP/2-capable *http.Client.
type Client struct {
	cfg        Config
	httpClient *http.Client
	bearer     string // empty for the unauthenticated client used by jwtstream
}

// New builds an unauthenticated Client, the one jwtstream uses to sign in
// and refresh, since it has no bearer token yet.
func New(cfg Config) *Client {
	return &Client{cfg: cfg, httpClient: newPooledClient()}
}

// WithBearer returns a Client that attaches "Authorization: Bearer token"
// to every request. jwtstream's own Client never carries a bearer.
func (c *Client) WithBearer(token string) *Client {
	return &Client{cfg: c.cfg, httpClient: c.httpClient, bearer: token}
}

// newPooledClient configures a connection-pooling, HTTP/2 keep-alive
// capable transport.
func newPooledClient() *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
	}
	// http2.ConfigureTransport wires ALPN negotiation so the same
	// *http.Transport serves HTTP/2 keep-alive connections whenever the
	// server advertises it, without giving up the connection pool above.
	_ = http2.ConfigureTransport(transport)

	return &http.Client{
		Transport: transport,
		Timeout:   30 * time.Second,
	}
}

// RequestDescriptor describes one call against the auth endpoint: method,
// a path relative to <base_url>/auth/v1/, and an optional JSON body.
type RequestDescriptor struct {
	Method string
	Path   string // relative to auth/v1/, may include a raw query string
	Body   any    // marshaled as JSON if non-nil
}

// Describe builds a RequestDescriptor for any non-token auth endpoint
// (logout, signup, user, MFA, admin, SSO, SAML, settings). This module
// implements none of those as typed wrappers, but callers can still drive
// them through the same pooled, bearer-aware Client used internally.
func Describe(method, path string, body any) RequestDescriptor {
	return RequestDescriptor{Method: method, Path: path, Body: body}
}

// TokenGrant builds the POST /auth/v1/token?grant_type=... descriptor.
// The grant type in the query string is authoritative; the opposite
// credential field is never consulted.
func TokenGrant(creds Credentials) RequestDescriptor {
	grant := creds.GrantType()
	return RequestDescriptor{
		Method: http.MethodPost,
		Path:   "token?grant_type=" + string(grant),
		Body:   creds.requestBody(),
	}
}

// Execute runs a descriptor and decodes the response into T on a 2xx
// status, or into ErrorResponse (wrapped as *AuthError) otherwise. A
// decode failure on either branch is a ProtocolError.
func Execute[T any](ctx context.Context, c *Client, d RequestDescriptor) (T, error) {
	var zero T

	endpoint, err := c.cfg.BaseURL.Parse("auth/v1/" + d.Path)
	if err != nil {
		return zero, fmt.Errorf("%w: joining path %q: %v", ErrConfig, d.Path, err)
	}

	var bodyReader io.Reader
	if d.Body != nil {
		payload, err := json.Marshal(d.Body)
		if err != nil {
			return zero, fmt.Errorf("%w: marshaling request body: %v", ErrProtocol, err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, d.Method, endpoint.String(), bodyReader)
	if err != nil {
		return zero, fmt.Errorf("%w: building request: %v", ErrTransport, err)
	}
	req.Header.Set("apikey", c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return zero, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return zero, fmt.Errorf("%w: reading response body: %v", ErrTransport, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp ErrorResponse
		if err := json.Unmarshal(raw, &errResp); err != nil {
			return zero, fmt.Errorf("%w: decoding error body (status %d): %v", ErrProtocol, resp.StatusCode, err)
		}
		return zero, &AuthError{Response: errResp, Status: resp.StatusCode}
	}

	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return zero, fmt.Errorf("%w: decoding success body: %v", ErrProtocol, err)
	}
	return out, nil
}
