// Package baas is an HTTP client for the managed backend-as-a-service (Supabase-compatible
// auth, PostgREST tables, object storage).
package baas

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTimeout = 15 * time.Second

// Client talks to one BaaS project. Every call carries the project's anon key in the apikey header.
type Client struct {
	BaseURL    string
	AnonKey    string
	HTTPClient *http.Client

	// tokenFn returns the signed-in user's access token for table and storage calls; "" falls back to the anon key.
	tokenFn func() string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.HTTPClient = hc
		}
	}
}

// WithTimeout sets the per-call timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.HTTPClient.Timeout = d
		}
	}
}

// WithAccessToken sets the source of the user access token for table and storage calls.
func WithAccessToken(fn func() string) Option {
	return func(c *Client) { c.tokenFn = fn }
}

// New returns a client for the project at baseURL (e.g. https://xyz.supabase.co).
func New(baseURL, anonKey string, opts ...Option) *Client {
	c := &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		AnonKey:    anonKey,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SetAccessToken replaces the access token source after construction (the session store is
// usually built after the client).
func (c *Client) SetAccessToken(fn func() string) {
	c.tokenFn = fn
}

func (c *Client) bearer() string {
	if c.tokenFn != nil {
		if t := c.tokenFn(); t != "" {
			return t
		}
	}
	return c.AnonKey
}

// request describes one HTTP call to the project.
type request struct {
	method string
	path   string
	query  url.Values
	body   interface{} // JSON-encoded unless raw is set
	raw    io.Reader
	header http.Header
	bearer string // overrides the default bearer when set
}

// do sends r and decodes a JSON response into out (if non-nil). Non-2xx responses become *Error.
// The response headers are returned so callers can read Content-Range.
func (c *Client) do(ctx context.Context, r request, out interface{}) (http.Header, error) {
	if c.BaseURL == "" || c.AnonKey == "" {
		return nil, ErrNotConfigured
	}
	u := c.BaseURL + r.path
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}

	var body io.Reader
	contentType := ""
	switch {
	case r.raw != nil:
		body = r.raw
	case r.body != nil:
		raw, err := json.Marshal(r.body)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(raw)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u, body)
	if err != nil {
		return nil, err
	}
	for k, vs := range r.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if contentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", contentType)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	req.Header.Set("apikey", c.AnonKey)
	bearer := r.bearer
	if bearer == "" {
		bearer = c.bearer()
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("baas: %s %s: %w", r.method, r.path, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.Header, fmt.Errorf("baas: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.Header, decodeError(resp.StatusCode, b)
	}
	if out != nil && len(bytes.TrimSpace(b)) > 0 {
		if err := json.Unmarshal(b, out); err != nil {
			return resp.Header, fmt.Errorf("baas: decode response: %w", err)
		}
	}
	return resp.Header, nil
}
