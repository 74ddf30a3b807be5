// Package github is the rate-limit-aware request layer in front of the
// GitHub REST API: an HTTP client, error classification, and a caching
// dispatcher.
package github

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Strob0t/repo-oracle/internal/domain"
)

const (
	defaultBaseURL    = "https://api.github.com"
	defaultAPIVersion = "2022-11-28"
	defaultTimeout    = 12 * time.Second

	// maxBodyBytes bounds a single response body read.
	maxBodyBytes = 16 << 20
)

// TokenSource returns the current bearer token, or "" when none is
// configured. It is consulted on every request so a rotated token takes
// effect without a restart.
type TokenSource func() string

// StaticToken returns a TokenSource for a fixed token.
func StaticToken(token string) TokenSource {
	return func() string { return token }
}

// ClientConfig configures a Client.
type ClientConfig struct {
	BaseURL    string
	Token      TokenSource
	APIVersion string
	UserAgent  string
	Timeout    time.Duration
	// HTTPClient overrides the default client. Its Timeout is left as is.
	HTTPClient *http.Client
}

// Client performs single GitHub REST requests. It does not cache, retry or
// track quota; see Dispatcher.
type Client struct {
	baseURL    string
	token      TokenSource
	apiVersion string
	userAgent  string
	httpClient *http.Client
}

// response is a fully read HTTP response.
type response struct {
	status int
	header http.Header
	body   []byte
}

// NewClient creates a GitHub REST client.
func NewClient(cfg ClientConfig) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	if cfg.Token == nil {
		cfg.Token = StaticToken("")
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = defaultAPIVersion
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "repo-oracle"
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    base,
		token:      cfg.Token,
		apiVersion: cfg.APIVersion,
		userAgent:  cfg.UserAgent,
		httpClient: httpClient,
	}
}

// BaseURL returns the API root without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// HasToken reports whether a bearer token is currently configured.
func (c *Client) HasToken() bool { return c.token() != "" }

// get issues GET baseURL+path?query. Network, timeout and body read
// failures are returned as *domain.TransportError; every HTTP status,
// including errors, is returned as a response for the caller to classify.
func (c *Client) get(ctx context.Context, path string, query url.Values) (*response, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("github: creating request: %w", err)
	}

	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", c.apiVersion)
	req.Header.Set("User-Agent", c.userAgent)
	if token := c.token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.TransportError{Path: path, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &domain.TransportError{Path: path, Err: fmt.Errorf("reading body: %w", err)}
	}

	slog.DebugContext(ctx, "github request",
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	return &response{status: resp.StatusCode, header: resp.Header, body: body}, nil
}
