package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/Strob0t/repo-oracle/internal/domain"
	"github.com/Strob0t/repo-oracle/internal/domain/report"
	"github.com/Strob0t/repo-oracle/internal/domain/repo"
	"github.com/Strob0t/repo-oracle/internal/port/ghapi"
)

// largeDiffLines is the additions+deletions threshold for the large diff risk.
const largeDiffLines = 1500

// Risk and next-step labels produced by summarize_pr.
const (
	RiskDraft         = "Draft PR"
	RiskConflicts     = "Merge conflicts"
	RiskLargeDiff     = "Large diff (>1500 LOC)"
	RiskConfigChanges = "Config changes included"
	RiskCIChanges     = "CI workflow changes"

	StepResolveConflicts = "Rebase/resolve conflicts"
	StepMarkReady        = "Mark ready for review"
	StepRequestReviews   = "Request/collect reviews"
)

// PullService summarizes pull requests.
type PullService struct {
	api     ghapi.API
	session *repo.Session
}

// NewPullService creates a new PullService.
func NewPullService(api ghapi.API, session *repo.Session) *PullService {
	return &PullService{api: api, session: session}
}

// Summarize builds a deterministic digest of pull request number.
func (s *PullService) Summarize(ctx context.Context, owner, name string, number int) (*report.PRSummary, error) {
	ref, err := s.session.Resolve(owner, name)
	if err != nil {
		return nil, err
	}
	if number < 1 {
		return nil, domain.Validationf("number must be >= 1")
	}

	endpoint := fmt.Sprintf("/repos/%s/%s/pulls/%d", ref.Owner, ref.Name, number)
	page, err := s.api.Get(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("get pull %s#%d: %w", ref, number, err)
	}
	var pr ghPull
	if err := decodeObject(page.Body, &pr); err != nil {
		return nil, fmt.Errorf("%s: %w", endpoint, err)
	}

	summary := &report.PRSummary{
		Header: report.PRHeader{
			Title:     pr.Title,
			State:     pr.State,
			Draft:     pr.Draft,
			Mergeable: pr.Mergeable,
		},
		Changes: report.PRChanges{
			FilesChanged: pr.ChangedFiles,
			Additions:    pr.Additions,
			Deletions:    pr.Deletions,
			Filenames:    []string{},
		},
	}
	if pr.User != nil {
		summary.Header.Author = pr.User.Login
	}

	files, err := s.files(ctx, endpoint+"/files")
	if err != nil {
		slog.WarnContext(ctx, "pull request files unavailable", "repo", ref.String(), "number", number, "error", err)
		summary.Note = report.NoteFilesUnavailable
	} else {
		summary.Changes.Filenames = files
	}

	summary.Risks = risks(&pr, summary.Changes.Filenames)
	summary.NextSteps = nextSteps(&pr)
	return summary, nil
}

func (s *PullService) files(ctx context.Context, endpoint string) ([]string, error) {
	params := url.Values{"per_page": {perPage(maxPerPage)}}
	it := newPageIterator(s.api, endpoint, params, filesMaxPages)
	items, _, err := collect[ghPullFile](ctx, it, filesMaxPages*maxPerPage, nil)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(items))
	for _, f := range items {
		names = append(names, f.Filename)
	}
	return names, nil
}

func risks(pr *ghPull, filenames []string) []string {
	out := []string{}
	if pr.Draft {
		out = append(out, RiskDraft)
	}
	if pr.Mergeable != nil && !*pr.Mergeable {
		out = append(out, RiskConflicts)
	}
	if pr.Additions+pr.Deletions > largeDiffLines {
		out = append(out, RiskLargeDiff)
	}

	var config, ci bool
	for _, name := range filenames {
		lower := strings.ToLower(name)
		if strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml") || strings.HasSuffix(lower, ".json") {
			config = true
		}
		if strings.HasPrefix(name, ".github/workflows/") {
			ci = true
		}
	}
	if config {
		out = append(out, RiskConfigChanges)
	}
	if ci {
		out = append(out, RiskCIChanges)
	}
	return out
}

func nextSteps(pr *ghPull) []string {
	var out []string
	if pr.Mergeable != nil && !*pr.Mergeable {
		out = append(out, StepResolveConflicts)
	}
	if pr.Draft {
		out = append(out, StepMarkReady)
	}
	if len(out) == 0 {
		out = append(out, StepRequestReviews)
	}
	return out
}
