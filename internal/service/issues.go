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

// DefaultIssueLimit applies when list_issues is called without a limit.
const DefaultIssueLimit = 20

// IssueQuery holds list_issues parameters. Owner and Repo override the
// session default.
type IssueQuery struct {
	Owner    string
	Repo     string
	State    string
	Labels   string
	Assignee string
	Limit    int
}

// IssueService lists repository issues.
type IssueService struct {
	api     ghapi.API
	session *repo.Session
}

// NewIssueService creates a new IssueService.
func NewIssueService(api ghapi.API, session *repo.Session) *IssueService {
	return &IssueService{api: api, session: session}
}

// List returns up to q.Limit issues, excluding pull requests.
func (s *IssueService) List(ctx context.Context, q IssueQuery) (*report.IssueList, error) {
	ref, err := s.session.Resolve(q.Owner, q.Repo)
	if err != nil {
		return nil, err
	}

	state := strings.ToLower(strings.TrimSpace(q.State))
	switch state {
	case "":
		state = "open"
	case "open", "closed", "all":
	default:
		return nil, domain.Validationf("state must be one of: open | closed | all")
	}
	if q.Limit < 1 {
		return nil, domain.Validationf("limit must be >= 1")
	}

	params := url.Values{
		"state":    {state},
		"per_page": {perPage(q.Limit)},
		"labels":   {q.Labels},
		"assignee": {q.Assignee},
	}
	endpoint := fmt.Sprintf("/repos/%s/%s/issues", ref.Owner, ref.Name)

	it := newPageIterator(s.api, endpoint, params, issueMaxPages)
	items, truncated, err := collect(ctx, it, q.Limit, func(i *ghIssue) bool {
		return !i.isPullRequest()
	})
	if err != nil {
		return nil, fmt.Errorf("list issues %s: %w", ref, err)
	}

	issues := make([]report.Issue, 0, len(items))
	for i := range items {
		issues = append(issues, toIssue(&items[i]))
	}
	return &report.IssueList{Count: len(issues), Issues: issues, Truncated: truncated}, nil
}

func toIssue(i *ghIssue) report.Issue {
	labels := make([]string, 0, len(i.Labels))
	for _, l := range i.Labels {
		labels = append(labels, l.Name)
	}
	var assignee *string
	if i.Assignee != nil {
		login := i.Assignee.Login
		assignee = &login
	}
	return report.Issue{
		Number:    i.Number,
		Title:     i.Title,
		State:     i.State,
		Labels:    labels,
		Assignee:  assignee,
		UpdatedAt: i.UpdatedAt,
		URL:       i.HTMLURL,
	}
}
