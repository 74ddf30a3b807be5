package repo

import (
	"strings"
	"sync"

	"github.com/Strob0t/repo-oracle/internal/domain"
)

// Session holds the connected-repository default for the lifetime of the
// process. The zero value is an unconnected session and is safe for
// concurrent use.
type Session struct {
	mu      sync.RWMutex
	current Ref
}

// NewSession returns an unconnected session.
func NewSession() *Session {
	return &Session{}
}

// Connect validates and stores the default repository.
func (s *Session) Connect(owner, name string) (Ref, error) {
	ref := Ref{Owner: strings.TrimSpace(owner), Name: strings.TrimSpace(name)}
	if err := ref.Validate(); err != nil {
		return Ref{}, err
	}

	s.mu.Lock()
	s.current = ref
	s.mu.Unlock()
	return ref, nil
}

// Current returns the connected repository, if any.
func (s *Session) Current() (Ref, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, !s.current.IsZero()
}

// Resolve combines explicit overrides with the session default. Each
// non-empty override field wins over the corresponding session field; the
// session itself is never modified. Returns ErrNoRepositoryContext when
// either field is still missing.
func (s *Session) Resolve(owner, name string) (Ref, error) {
	ref := Ref{Owner: strings.TrimSpace(owner), Name: strings.TrimSpace(name)}

	current, _ := s.Current()
	if ref.Owner == "" {
		ref.Owner = current.Owner
	}
	if ref.Name == "" {
		ref.Name = current.Name
	}

	if ref.Owner == "" || ref.Name == "" {
		return Ref{}, domain.ErrNoRepositoryContext
	}
	if err := ref.Validate(); err != nil {
		return Ref{}, err
	}
	return ref, nil
}
