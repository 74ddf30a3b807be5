// Package ghapi defines the port between tool services and the GitHub
// request layer.
package ghapi

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/Strob0t/repo-oracle/internal/domain/ratelimit"
	"github.com/Strob0t/repo-oracle/internal/domain/repo"
)

// Page is one GitHub response body. HasNext reports a rel="next" link on the
// live response that produced it; FromCache reports that no outbound call
// was made.
type Page struct {
	Body      json.RawMessage
	HasNext   bool
	FromCache bool
}

// API issues cached GET requests against the GitHub REST API.
type API interface {
	// Get returns the page for endpoint and params, serving it from the
	// response cache when possible.
	Get(ctx context.Context, endpoint string, params url.Values) (*Page, error)

	// Blob returns the decoded content of a git blob. Blobs are cached by
	// SHA outside the response cache.
	Blob(ctx context.Context, ref repo.Ref, sha string) ([]byte, error)
}

// Monitor exposes the request layer's health to health_check.
type Monitor interface {
	// Probe performs an uncached reachability check. It reports whether
	// GitHub answered at all, even with an error status.
	Probe(ctx context.Context) (reachable bool, err error)
	RateStatus() ratelimit.Status
	HasToken() bool
	CachedKeys() int
	BreakerState() string
}
