// Package repo holds the repository identity and the session-scoped
// "connected repository" default.
package repo

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/Strob0t/repo-oracle/internal/domain"
)

// Ref identifies a GitHub repository.
type Ref struct {
	Owner string `json:"owner"`
	Name  string `json:"repo"`
}

// String returns "owner/repo".
func (r Ref) String() string {
	return r.Owner + "/" + r.Name
}

// IsZero reports whether both fields are empty.
func (r Ref) IsZero() bool {
	return r.Owner == "" && r.Name == ""
}

// GitHub logins are at most 39 alphanumerics with single inner hyphens;
// repository names also allow dots and underscores.
const maxOwnerLen = 39

var (
	ownerPattern = regexp.MustCompile(`^[A-Za-z0-9](?:-?[A-Za-z0-9])*$`)
	namePattern  = regexp.MustCompile(`^[A-Za-z0-9._-]{1,100}$`)
)

// Validate checks both fields against GitHub's naming rules.
func (r Ref) Validate() error {
	if len(r.Owner) > maxOwnerLen || !ownerPattern.MatchString(r.Owner) {
		return domain.Validationf("invalid owner %q", r.Owner)
	}
	if !namePattern.MatchString(r.Name) || r.Name == "." || r.Name == ".." {
		return domain.Validationf("invalid repo %q", r.Name)
	}
	return nil
}

// ParseRef accepts "owner/repo", an HTTPS repository URL
// (https://github.com/owner/repo[.git]) or an SSH remote
// (git@github.com:owner/repo.git).
func ParseRef(raw string) (Ref, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Ref{}, domain.Validationf("empty repository reference")
	}

	var pathPart string
	switch {
	case strings.HasPrefix(raw, "git@"):
		_, after, ok := strings.Cut(strings.TrimPrefix(raw, "git@"), ":")
		if !ok {
			return Ref{}, domain.Validationf("invalid SSH remote %q: missing colon separator", raw)
		}
		pathPart = after
	case strings.HasPrefix(raw, "https://"), strings.HasPrefix(raw, "http://"):
		u, err := url.Parse(raw)
		if err != nil {
			return Ref{}, domain.Validationf("invalid URL %q: %v", raw, err)
		}
		pathPart = strings.TrimPrefix(u.Path, "/")
	default:
		pathPart = raw
	}

	pathPart = strings.TrimSuffix(strings.TrimSuffix(pathPart, "/"), ".git")
	parts := strings.Split(pathPart, "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return Ref{}, domain.Validationf("invalid repository reference %q: expected owner/repo", raw)
	}

	ref := Ref{Owner: parts[0], Name: parts[1]}
	if err := ref.Validate(); err != nil {
		return Ref{}, fmt.Errorf("parse %q: %w", raw, err)
	}
	return ref, nil
}
