// Package domain provides the shared error taxonomy for repo-oracle.
//
// Every failure that reaches a tool boundary is classified by KindOf into
// one of a small set of kinds the MCP host can render.
package domain

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies a tool failure.
type Kind string

const (
	KindNoRepositoryContext Kind = "no_repository_context"
	KindUnauthenticated     Kind = "unauthenticated"
	KindUpstream            Kind = "upstream_error"
	KindTransport           Kind = "transport_error"
	KindValidation          Kind = "validation_error"
	KindInternal            Kind = "internal_error"
)

// SubKind refines KindUpstream.
type SubKind string

const (
	SubKindRateLimited SubKind = "rate_limit_exceeded"
	SubKindNotFound    SubKind = "not_found"
	SubKindForbidden   SubKind = "forbidden"
	SubKindMalformed   SubKind = "malformed_response"
	SubKindHTTP        SubKind = "http_error"
)

// ErrNoRepositoryContext indicates a repository-scoped tool was called with
// no connected repository and no explicit owner/repo.
var ErrNoRepositoryContext = errors.New("no repository connected: call connect_repo or pass owner and repo")

// ErrUnauthenticated indicates the GitHub credential is missing or was rejected.
var ErrUnauthenticated = errors.New("GITHUB_TOKEN is not set or was rejected by GitHub")

// ErrValidation indicates malformed tool parameters. Wrap it with details:
//
//	fmt.Errorf("%w: limit must be >= 1", domain.ErrValidation)
var ErrValidation = errors.New("invalid parameters")

// ErrMalformedResponse indicates a 2xx upstream body that does not match the
// expected schema.
var ErrMalformedResponse = errors.New("malformed upstream response")

// Validationf returns an ErrValidation wrapping a formatted message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// UpstreamError is a non-success response from GitHub.
type UpstreamError struct {
	StatusCode int
	Path       string
	Body       string
	Kind       SubKind
	// ResetAt is the rate-limit reset time when known.
	ResetAt time.Time
}

func (e *UpstreamError) Error() string {
	switch e.Kind {
	case SubKindRateLimited:
		if !e.ResetAt.IsZero() {
			return fmt.Sprintf("github rate limit exceeded on %s (HTTP %d); resets at %s",
				e.Path, e.StatusCode, e.ResetAt.UTC().Format(time.RFC3339))
		}
		return fmt.Sprintf("github rate limit exceeded on %s (HTTP %d)", e.Path, e.StatusCode)
	case SubKindNotFound:
		return fmt.Sprintf("github %s: not found (HTTP %d)", e.Path, e.StatusCode)
	default:
		return fmt.Sprintf("github %s: HTTP %d: %s", e.Path, e.StatusCode, e.Body)
	}
}

// TransportError is a failure to complete an HTTP exchange: DNS, connect,
// TLS, timeout, or an open circuit.
type TransportError struct {
	Path string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("github %s: %v", e.Path, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// KindOf classifies err. Unknown errors are KindInternal.
func KindOf(err error) Kind {
	var (
		upstream  *UpstreamError
		transport *TransportError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoRepositoryContext):
		return KindNoRepositoryContext
	case errors.Is(err, ErrUnauthenticated):
		return KindUnauthenticated
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.As(err, &upstream), errors.Is(err, ErrMalformedResponse):
		return KindUpstream
	case errors.As(err, &transport):
		return KindTransport
	default:
		return KindInternal
	}
}

// SubKindOf returns the upstream sub-kind of err, or "" when err is not an
// upstream failure.
func SubKindOf(err error) SubKind {
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return upstream.Kind
	}
	if errors.Is(err, ErrMalformedResponse) {
		return SubKindMalformed
	}
	return ""
}

// IsRateLimited reports whether err is a GitHub rate-limit rejection.
func IsRateLimited(err error) bool {
	return SubKindOf(err) == SubKindRateLimited
}

// IsNotFound reports whether err is a GitHub 404.
func IsNotFound(err error) bool {
	return SubKindOf(err) == SubKindNotFound
}
