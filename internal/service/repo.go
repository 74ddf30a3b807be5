package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/Strob0t/repo-oracle/internal/domain/report"
	"github.com/Strob0t/repo-oracle/internal/domain/repo"
)

// RepoService manages the connected-repository default.
type RepoService struct {
	session *repo.Session
}

// NewRepoService creates a new RepoService.
func NewRepoService(session *repo.Session) *RepoService {
	return &RepoService{session: session}
}

// Connect stores owner/repo as the session default. When name is empty,
// owner may instead hold "owner/repo" or a repository URL.
func (s *RepoService) Connect(ctx context.Context, owner, name string) (*report.Connected, error) {
	if strings.TrimSpace(name) == "" && strings.Contains(owner, "/") {
		ref, err := repo.ParseRef(owner)
		if err != nil {
			return nil, err
		}
		owner, name = ref.Owner, ref.Name
	}

	ref, err := s.session.Connect(owner, name)
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "repository connected", "repo", ref.String())
	return &report.Connected{Connected: true, Owner: ref.Owner, Repo: ref.Name}, nil
}
