package service

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Strob0t/repo-oracle/internal/domain"
	"github.com/Strob0t/repo-oracle/internal/domain/report"
	"github.com/Strob0t/repo-oracle/internal/domain/repo"
	"github.com/Strob0t/repo-oracle/internal/port/ghapi"
)

// Notes attached to a TodoReport.
const (
	NoteMaxFiles      = "max_files limit reached; results truncated"
	NoteTreeTruncated = "repository tree listing was truncated by GitHub; some files were not considered"
)

// DefaultTodoPaths are scanned when find_todos gets no paths.
var DefaultTodoPaths = []string{"src", "app", "."}

var todoPattern = regexp.MustCompile(`(?i)\b(TODO|FIXME|HACK|NOTE)\b[:\- ]?(.*)`)

var textExtensions = map[string]bool{
	".md": true, ".txt": true, ".py": true, ".js": true, ".ts": true, ".tsx": true,
	".jsx": true, ".java": true, ".go": true, ".rb": true, ".rs": true, ".cpp": true,
	".c": true, ".cs": true, ".json": true, ".yml": true, ".yaml": true, ".toml": true,
	".ini": true, ".sh": true, ".bat": true, ".ps1": true,
}

// ScanConfig bounds a TODO scan.
type ScanConfig struct {
	MaxFiles     int
	Concurrency  int
	MaxFileBytes int64
}

// TodoQuery holds find_todos parameters. An empty Ref means the default
// branch; MaxFiles 0 means the configured default.
type TodoQuery struct {
	Owner    string
	Repo     string
	Ref      string
	Paths    []string
	MaxFiles int
}

// TodoService scans repository files for TODO-style markers.
type TodoService struct {
	api     ghapi.API
	session *repo.Session
	cfg     ScanConfig
}

// NewTodoService creates a new TodoService.
func NewTodoService(api ghapi.API, session *repo.Session, cfg ScanConfig) *TodoService {
	if cfg.MaxFiles < 1 {
		cfg.MaxFiles = 120
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &TodoService{api: api, session: session, cfg: cfg}
}

// Find lists the tree at q.Ref, scans up to MaxFiles text blobs under
// q.Paths and returns every marker ordered by file then line. Skipped blobs
// do not count toward MaxFiles.
func (s *TodoService) Find(ctx context.Context, q TodoQuery) (*report.TodoReport, error) {
	ref, err := s.session.Resolve(q.Owner, q.Repo)
	if err != nil {
		return nil, err
	}

	maxFiles := q.MaxFiles
	if maxFiles == 0 {
		maxFiles = s.cfg.MaxFiles
	}
	if maxFiles < 1 {
		return nil, domain.Validationf("max_files must be >= 1")
	}

	gitRef := strings.TrimSpace(q.Ref)
	if gitRef == "" {
		if gitRef, err = s.defaultBranch(ctx, ref); err != nil {
			return nil, err
		}
	}

	tree, err := s.tree(ctx, ref, gitRef)
	if err != nil {
		return nil, err
	}

	paths := q.Paths
	if len(paths) == 0 {
		paths = DefaultTodoPaths
	}

	var (
		candidates []ghTreeEntry
		oversized  int
		notes      []string
	)
	for _, e := range tree.Tree {
		if e.Type != "blob" || !isTextFile(e.Path) || !underAny(e.Path, paths) {
			continue
		}
		if s.cfg.MaxFileBytes > 0 && e.Size > s.cfg.MaxFileBytes {
			oversized++
			continue
		}
		candidates = append(candidates, e)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Path < candidates[j].Path })

	if tree.Truncated {
		notes = append(notes, NoteTreeTruncated)
	}

	todos, scanned, skipped, rest, err := s.scanBlobs(ctx, ref, candidates, maxFiles)
	if err != nil {
		return nil, err
	}
	if rest > 0 {
		notes = append(notes, NoteMaxFiles)
	}

	result := &report.TodoReport{
		Ref:          gitRef,
		ScannedFiles: scanned,
		SkippedFiles: skipped + oversized,
		Todos:        todos,
	}
	result.Count = len(result.Todos)
	if len(notes) > 0 {
		note := strings.Join(notes, "; ")
		result.Note = &note
	}
	return result, nil
}

func (s *TodoService) defaultBranch(ctx context.Context, ref repo.Ref) (string, error) {
	endpoint := fmt.Sprintf("/repos/%s/%s", ref.Owner, ref.Name)
	page, err := s.api.Get(ctx, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("resolve default branch of %s: %w", ref, err)
	}
	var meta ghRepository
	if err := decodeObject(page.Body, &meta); err != nil {
		return "", fmt.Errorf("%s: %w", endpoint, err)
	}
	if meta.DefaultBranch == "" {
		return "main", nil
	}
	return meta.DefaultBranch, nil
}

func (s *TodoService) tree(ctx context.Context, ref repo.Ref, gitRef string) (*ghTree, error) {
	endpoint := fmt.Sprintf("/repos/%s/%s/git/trees/%s", ref.Owner, ref.Name, url.PathEscape(gitRef))
	page, err := s.api.Get(ctx, endpoint, url.Values{"recursive": {"1"}})
	if err != nil {
		return nil, fmt.Errorf("list tree %s@%s: %w", ref, gitRef, err)
	}
	var tree ghTree
	if err := decodeObject(page.Body, &tree); err != nil {
		return nil, fmt.Errorf("%s: %w", endpoint, err)
	}
	return &tree, nil
}

// scanBlobs walks entries in order until limit files have been scanned.
// Each round fetches only as many entries as are still needed, so a skipped
// blob is replaced by the next candidate. rest counts entries never fetched.
func (s *TodoService) scanBlobs(ctx context.Context, ref repo.Ref, entries []ghTreeEntry, limit int) (todos []report.Todo, scanned, skipped, rest int, err error) {
	todos = []report.Todo{}
	next := 0
	for scanned < limit && next < len(entries) {
		batch := entries[next:min(len(entries), next+limit-scanned)]
		next += len(batch)

		found, skips, err := s.fetchBatch(ctx, ref, batch)
		if err != nil {
			return nil, 0, 0, 0, err
		}
		for i := range batch {
			if skips[i] {
				skipped++
				continue
			}
			scanned++
			todos = append(todos, found[i]...)
		}
	}
	return todos, scanned, skipped, len(entries) - next, nil
}

// fetchBatch fetches and scans entries with bounded concurrency. Results keep
// the order of entries. Blobs GitHub refuses individually (404, 403, bad
// payload) or that look binary are marked skipped; any other failure aborts.
func (s *TodoService) fetchBatch(ctx context.Context, ref repo.Ref, entries []ghTreeEntry) ([][]report.Todo, []bool, error) {
	found := make([][]report.Todo, len(entries))
	skipped := make([]bool, len(entries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i, e := range entries {
		g.Go(func() error {
			data, err := s.api.Blob(gctx, ref, e.SHA)
			if err != nil {
				if skippable(err) {
					skipped[i] = true
					return nil
				}
				return fmt.Errorf("fetch %s: %w", e.Path, err)
			}
			if bytes.IndexByte(data, 0) >= 0 {
				skipped[i] = true
				return nil
			}
			found[i] = ScanText(e.Path, data)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return found, skipped, nil
}

func skippable(err error) bool {
	switch domain.SubKindOf(err) {
	case domain.SubKindNotFound, domain.SubKindForbidden, domain.SubKindMalformed:
		return true
	}
	return false
}

// ScanText returns the markers in content with 1-based line numbers.
func ScanText(file string, content []byte) []report.Todo {
	var todos []report.Todo
	sc := bufio.NewScanner(bytes.NewReader(content))
	sc.Buffer(make([]byte, 0, 64*1024), len(content)+1)
	for line := 1; sc.Scan(); line++ {
		text := strings.ToValidUTF8(sc.Text(), "�")
		m := todoPattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		body := strings.TrimSpace(m[2])
		if body == "" {
			body = strings.TrimSpace(text)
		}
		todos = append(todos, report.Todo{
			File: file,
			Line: line,
			Tag:  strings.ToUpper(m[1]),
			Text: body,
		})
	}
	return todos
}

func isTextFile(p string) bool {
	return textExtensions[strings.ToLower(path.Ext(p))]
}

// underAny reports whether p lies under one of prefixes. "", "." and "/"
// select the whole repository.
func underAny(p string, prefixes []string) bool {
	for _, prefix := range prefixes {
		prefix = strings.Trim(strings.TrimSpace(prefix), "/")
		prefix = strings.TrimPrefix(prefix, "./")
		if prefix == "" || prefix == "." {
			return true
		}
		if p == prefix || strings.HasPrefix(p, prefix+"/") {
			return true
		}
	}
	return false
}
