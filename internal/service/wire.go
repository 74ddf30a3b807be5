package service

import (
	"encoding/json"
	"fmt"

	"github.com/Strob0t/repo-oracle/internal/domain"
)

// GitHub REST payloads, decoded only as far as the tools need.

type ghUser struct {
	Login string `json:"login"`
}

type ghLabel struct {
	Name string `json:"name"`
}

type ghIssue struct {
	Number      int             `json:"number"`
	Title       string          `json:"title"`
	State       string          `json:"state"`
	Labels      []ghLabel       `json:"labels"`
	Assignee    *ghUser         `json:"assignee"`
	UpdatedAt   string          `json:"updated_at"`
	HTMLURL     string          `json:"html_url"`
	PullRequest json.RawMessage `json:"pull_request"`
	Score       float64         `json:"score"`
}

func (i *ghIssue) isPullRequest() bool {
	return len(i.PullRequest) > 0 && string(i.PullRequest) != "null"
}

type ghPull struct {
	Title        string  `json:"title"`
	State        string  `json:"state"`
	User         *ghUser `json:"user"`
	Draft        bool    `json:"draft"`
	Mergeable    *bool   `json:"mergeable"`
	ChangedFiles int     `json:"changed_files"`
	Additions    int     `json:"additions"`
	Deletions    int     `json:"deletions"`
}

type ghPullFile struct {
	Filename string `json:"filename"`
}

type ghCodeHit struct {
	Path       string  `json:"path"`
	HTMLURL    string  `json:"html_url"`
	Score      float64 `json:"score"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
}

type ghRepository struct {
	DefaultBranch string `json:"default_branch"`
}

type ghTree struct {
	SHA       string        `json:"sha"`
	Tree      []ghTreeEntry `json:"tree"`
	Truncated bool          `json:"truncated"`
}

type ghTreeEntry struct {
	Path string `json:"path"`
	Type string `json:"type"`
	SHA  string `json:"sha"`
	Size int64  `json:"size"`
}

// decodeObject unmarshals a single-object response body into v.
func decodeObject(body json.RawMessage, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}
	return nil
}
