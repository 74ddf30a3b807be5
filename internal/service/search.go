package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/Strob0t/repo-oracle/internal/domain"
	"github.com/Strob0t/repo-oracle/internal/domain/report"
	"github.com/Strob0t/repo-oracle/internal/domain/repo"
	"github.com/Strob0t/repo-oracle/internal/port/ghapi"
)

// Search types accepted by search.
const (
	SearchIssues = "issues"
	SearchPRs    = "prs"
	SearchCode   = "code"
)

// DefaultSearchLimit applies when search is called without a limit.
const DefaultSearchLimit = 10

// SearchQuery holds search parameters.
type SearchQuery struct {
	Query string
	Type  string
	Owner string
	Repo  string
	Limit int
}

// SearchService wraps the GitHub search API.
type SearchService struct {
	api     ghapi.API
	session *repo.Session
}

// NewSearchService creates a new SearchService.
func NewSearchService(api ghapi.API, session *repo.Session) *SearchService {
	return &SearchService{api: api, session: session}
}

// Search runs an issue, pull request or code search. The query is scoped to
// a repository when owner/repo are given or a repository is connected.
func (s *SearchService) Search(ctx context.Context, q SearchQuery) (*report.SearchResult, error) {
	kind := strings.ToLower(strings.TrimSpace(q.Type))
	if kind == "" {
		kind = SearchIssues
	}
	switch kind {
	case SearchIssues, SearchPRs, SearchCode:
	default:
		return nil, domain.Validationf("type must be one of: issues | prs | code")
	}

	query := strings.TrimSpace(q.Query)
	if query == "" {
		return nil, domain.Validationf("query is required")
	}
	if q.Limit < 1 {
		return nil, domain.Validationf("limit must be >= 1")
	}

	switch kind {
	case SearchPRs:
		if !strings.Contains(query, "is:pr") {
			query += " is:pr"
		}
	case SearchIssues:
		if !strings.Contains(query, "is:issue") && !strings.Contains(query, "is:pr") {
			query += " is:issue"
		}
	}

	scoped, err := s.scope(query, q.Owner, q.Repo)
	if err != nil {
		return nil, err
	}

	params := url.Values{"q": {scoped}, "per_page": {perPage(q.Limit)}}
	result := &report.SearchResult{Query: scoped}

	if kind == SearchCode {
		it := newPageIterator(s.api, "/search/code", params, searchMaxPages)
		hits, truncated, err := collect[ghCodeHit](ctx, it, q.Limit, nil)
		if err != nil {
			return nil, fmt.Errorf("search code: %w", err)
		}
		result.Items = make([]report.SearchItem, 0, len(hits))
		for _, h := range hits {
			result.Items = append(result.Items, report.SearchItem{
				Path:  h.Path,
				Repo:  h.Repository.FullName,
				Score: h.Score,
				URL:   h.HTMLURL,
			})
		}
		result.Truncated = truncated
	} else {
		it := newPageIterator(s.api, "/search/issues", params, searchMaxPages)
		hits, truncated, err := collect[ghIssue](ctx, it, q.Limit, nil)
		if err != nil {
			return nil, fmt.Errorf("search issues: %w", err)
		}
		result.Items = make([]report.SearchItem, 0, len(hits))
		for i := range hits {
			h := &hits[i]
			itemType := "issue"
			if h.isPullRequest() {
				itemType = "pr"
			}
			result.Items = append(result.Items, report.SearchItem{
				Type:   itemType,
				Number: h.Number,
				Title:  h.Title,
				State:  h.State,
				Score:  h.Score,
				URL:    h.HTMLURL,
			})
		}
		result.Truncated = truncated
	}

	result.Count = len(result.Items)
	return result, nil
}

// scope appends a repo: qualifier. Explicit overrides must resolve; without
// overrides the connected repository is used when there is one.
func (s *SearchService) scope(query, owner, name string) (string, error) {
	if strings.Contains(query, "repo:") {
		return query, nil
	}
	if strings.TrimSpace(owner) == "" && strings.TrimSpace(name) == "" {
		if _, ok := s.session.Current(); !ok {
			return query, nil
		}
	}
	ref, err := s.session.Resolve(owner, name)
	if err != nil {
		return "", err
	}
	return query + " repo:" + ref.String(), nil
}
