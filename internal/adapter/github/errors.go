package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Strob0t/repo-oracle/internal/domain"
	"github.com/Strob0t/repo-oracle/internal/domain/ratelimit"
)

// maxErrorBody bounds the body text carried by an UpstreamError.
const maxErrorBody = 200

// classify converts a non-2xx response into a domain error.
func classify(path string, resp *response) error {
	message := errorMessage(resp.body)

	if resp.status == http.StatusUnauthorized {
		return fmt.Errorf("github %s: HTTP 401 %s: %w", path, message, domain.ErrUnauthenticated)
	}

	upstream := &domain.UpstreamError{
		StatusCode: resp.status,
		Path:       path,
		Body:       message,
		Kind:       domain.SubKindHTTP,
	}

	switch {
	case isRateLimited(resp.status, resp.header, message):
		upstream.Kind = domain.SubKindRateLimited
		upstream.ResetAt = resetTime(resp.header)
	case resp.status == http.StatusNotFound:
		upstream.Kind = domain.SubKindNotFound
	case resp.status == http.StatusForbidden:
		upstream.Kind = domain.SubKindForbidden
	}
	return upstream
}

// isRateLimited reports whether a response is a primary or secondary rate
// limit rejection. GitHub answers 429 for secondary limits and 403 for both;
// a 403 is a rate limit when the quota header reads zero or the message
// says so.
func isRateLimited(status int, header http.Header, message string) bool {
	switch status {
	case http.StatusTooManyRequests:
		return true
	case http.StatusForbidden:
		return header.Get("X-RateLimit-Remaining") == "0" || isRateLimitMessage(message)
	}
	return false
}

// isRateLimitMessage checks whether a 403 error message indicates a rate
// limit rather than a permission issue.
func isRateLimitMessage(message string) bool {
	lower := strings.ToLower(message)
	return strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "abuse detection")
}

// resetTime prefers Retry-After (secondary limits) and falls back to
// X-RateLimit-Reset.
func resetTime(header http.Header) time.Time {
	if retry := header.Get("Retry-After"); retry != "" {
		var seconds int
		if _, err := fmt.Sscanf(retry, "%d", &seconds); err == nil && seconds > 0 {
			return time.Now().Add(time.Duration(seconds) * time.Second).UTC()
		}
	}
	if status, ok := ratelimit.ParseHeader(header); ok {
		return status.ResetAt
	}
	return time.Time{}
}

// errorMessage extracts GitHub's {"message": ...} field, falling back to the
// raw body, truncated to maxErrorBody bytes.
func errorMessage(body []byte) string {
	var wire struct {
		Message string `json:"message"`
	}
	text := string(body)
	if json.Unmarshal(body, &wire) == nil && wire.Message != "" {
		text = wire.Message
	}
	text = strings.TrimSpace(text)
	if len(text) > maxErrorBody {
		text = text[:maxErrorBody]
	}
	return text
}

// TripsBreaker reports whether err indicates GitHub itself is unhealthy:
// transport failures other than caller cancellation, and 5xx responses.
func TripsBreaker(err error) bool {
	var transport *domain.TransportError
	if errors.As(err, &transport) {
		return !errors.Is(err, context.Canceled)
	}
	var upstream *domain.UpstreamError
	if errors.As(err, &upstream) {
		return upstream.StatusCode >= 500
	}
	return false
}
