// Package report defines the JSON result schemas returned by the tools.
package report

import (
	"time"

	"github.com/Strob0t/repo-oracle/internal/domain/repo"
)

// Connected is the result of connect_repo.
type Connected struct {
	Connected bool   `json:"connected"`
	Owner     string `json:"owner"`
	Repo      string `json:"repo"`
}

// Issue is one normalized issue.
type Issue struct {
	Number    int      `json:"number"`
	Title     string   `json:"title"`
	State     string   `json:"state"`
	Labels    []string `json:"labels"`
	Assignee  *string  `json:"assignee"`
	UpdatedAt string   `json:"updated_at"`
	URL       string   `json:"url"`
}

// IssueList is the result of list_issues.
type IssueList struct {
	Count     int     `json:"count"`
	Issues    []Issue `json:"issues"`
	Truncated bool    `json:"truncated"`
}

// PRHeader identifies a pull request.
type PRHeader struct {
	Title  string `json:"title"`
	Author string `json:"author"`
	State  string `json:"state"`
	Draft  bool   `json:"draft"`
	// Mergeable is nil while GitHub is still computing it.
	Mergeable *bool `json:"mergeable"`
}

// PRChanges summarizes the diff of a pull request.
type PRChanges struct {
	FilesChanged int      `json:"files_changed"`
	Additions    int      `json:"additions"`
	Deletions    int      `json:"deletions"`
	Filenames    []string `json:"filenames"`
}

// PRSummary is the result of summarize_pr.
type PRSummary struct {
	Header    PRHeader  `json:"header"`
	Changes   PRChanges `json:"changes"`
	Risks     []string  `json:"risks"`
	NextSteps []string  `json:"next_steps"`
	Note      string    `json:"note,omitempty"`
}

// Note values for PRSummary.
const NoteFilesUnavailable = "files_unavailable"

// SearchItem is one search hit. Issue and PR hits carry Type, Number, Title
// and State; code hits carry Path and Repo.
type SearchItem struct {
	Type   string  `json:"type,omitempty"`
	Number int     `json:"number,omitempty"`
	Title  string  `json:"title,omitempty"`
	State  string  `json:"state,omitempty"`
	Path   string  `json:"path,omitempty"`
	Repo   string  `json:"repo,omitempty"`
	Score  float64 `json:"score"`
	URL    string  `json:"url"`
}

// SearchResult is the result of search.
type SearchResult struct {
	Count     int          `json:"count"`
	Items     []SearchItem `json:"items"`
	Query     string       `json:"query"`
	Truncated bool         `json:"truncated"`
}

// Todo is one marker found by find_todos.
type Todo struct {
	File string `json:"file"`
	Line int    `json:"line"`
	Tag  string `json:"tag"`
	Text string `json:"text"`
}

// TodoReport is the result of find_todos.
type TodoReport struct {
	Count        int     `json:"count"`
	Ref          string  `json:"ref"`
	ScannedFiles int     `json:"scanned_files"`
	SkippedFiles int     `json:"skipped_files"`
	Todos        []Todo  `json:"todos"`
	Note         *string `json:"note"`
}

// RateLimit renders a rate tracker snapshot. State is "unknown" until a
// live response has been observed, and the numeric fields are then omitted.
type RateLimit struct {
	State     string     `json:"state"`
	Limit     *int       `json:"limit,omitempty"`
	Remaining *int       `json:"remaining,omitempty"`
	Used      *int       `json:"used,omitempty"`
	Resource  string     `json:"resource,omitempty"`
	ResetAt   *time.Time `json:"reset_at,omitempty"`
}

// Health is the result of health_check.
type Health struct {
	Status     string    `json:"status"`
	HasToken   bool      `json:"has_token"`
	Reachable  bool      `json:"reachable"`
	ProbeError string    `json:"probe_error,omitempty"`
	CachedKeys int       `json:"cached_keys"`
	RateLimit  RateLimit `json:"rate_limit"`
	Breaker    string    `json:"breaker"`
	Connected  *repo.Ref `json:"connected"`
}
