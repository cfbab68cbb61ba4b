// Package client is an HTTP client for the gitdm API.
//
// Every call returns the correlation id of the response next to its result
// so that failures can be traced in the server logs.
package client

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTransport sets the round tripper of the underlying HTTP client, e.g.
// the session-aware transport that attaches and refreshes access tokens.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		hc := *c.httpClient
		hc.Transport = rt
		c.httpClient = &hc
	}
}

// WithTimeout sets the timeout of every request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		hc := *c.httpClient
		hc.Timeout = d
		c.httpClient = &hc
	}
}

// New creates a client for the API rooted at baseURL, e.g.
// "http://localhost:8000/api".
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url '%s' must be absolute", baseURL)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")

	c := &Client{
		baseURL:    u,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

type urlBuilder struct {
	base   url.URL
	path   string
	params map[string]string
	query  url.Values
}

func (c *Client) url() *urlBuilder {
	return &urlBuilder{
		base:   *c.baseURL,
		params: make(map[string]string),
		query:  make(url.Values),
	}
}

// setPath sets a route relative to the API root.
func (b *urlBuilder) setPath(route string) *urlBuilder {
	b.path = b.base.Path + route
	return b
}

// setRootPath sets a route relative to the host, ignoring the API root.
func (b *urlBuilder) setRootPath(route string) *urlBuilder {
	b.path = route
	return b
}

func (b *urlBuilder) setPathParam(name, value string) *urlBuilder {
	b.params[name] = value
	return b
}

func (b *urlBuilder) addQueryParam(name string, value any) *urlBuilder {
	b.query.Add(name, fmt.Sprint(value))
	return b
}

func (b *urlBuilder) build() string {
	p := b.path
	for name, value := range b.params {
		p = strings.ReplaceAll(p, "{"+name+"}", value)
	}
	u := b.base
	u.Path = p
	u.RawPath = ""
	u.RawQuery = b.query.Encode()
	return u.String()
}
