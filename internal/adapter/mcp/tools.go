package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	cfotel "github.com/Strob0t/repo-oracle/internal/adapter/otel"
	"github.com/Strob0t/repo-oracle/internal/domain"
	"github.com/Strob0t/repo-oracle/internal/logger"
	"github.com/Strob0t/repo-oracle/internal/service"
)

// toolFunc is the body of a tool handler. Its result is rendered as JSON and
// its error as a tool error.
type toolFunc func(ctx context.Context, req mcplib.CallToolRequest) (any, error)

// registerTools registers all MCP tools on the server.
func (s *Server) registerTools() {
	s.mcpServer.AddTools(
		s.connectRepoTool(),
		s.listIssuesTool(),
		s.summarizePRTool(),
		s.searchTool(),
		s.findTodosTool(),
		s.healthCheckTool(),
	)
}

// repoOverrides are the optional owner/repo arguments shared by every
// repository-scoped tool.
func repoOverrides() []mcplib.ToolOption {
	return []mcplib.ToolOption{
		mcplib.WithString("owner",
			mcplib.Description("Repository owner; defaults to the connected repository"),
		),
		mcplib.WithString("repo",
			mcplib.Description("Repository name; defaults to the connected repository"),
		),
	}
}

func newTool(name string, opts ...mcplib.ToolOption) mcplib.Tool {
	return mcplib.NewTool(name, opts...)
}

func (s *Server) connectRepoTool() mcpserver.ServerTool {
	tool := newTool("connect_repo",
		mcplib.WithDescription("Set the default repository for subsequent tool calls"),
		mcplib.WithString("owner",
			mcplib.Required(),
			mcplib.Description(`Repository owner, or "owner/repo" when repo is omitted`),
		),
		mcplib.WithString("repo",
			mcplib.Description("Repository name"),
		),
		mcplib.WithIdempotentHintAnnotation(true),
		mcplib.WithOpenWorldHintAnnotation(false),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.tool("connect_repo", s.handleConnectRepo)}
}

func (s *Server) listIssuesTool() mcpserver.ServerTool {
	opts := []mcplib.ToolOption{
		mcplib.WithDescription("List issues of a repository, excluding pull requests"),
		mcplib.WithString("state",
			mcplib.Description("Issue state filter"),
			mcplib.Enum("open", "closed", "all"),
			mcplib.DefaultString("open"),
		),
		mcplib.WithString("labels",
			mcplib.Description("Comma-separated label names"),
		),
		mcplib.WithString("assignee",
			mcplib.Description(`Assignee login, "none" or "*"`),
		),
		mcplib.WithNumber("limit",
			mcplib.Description("Maximum number of issues to return"),
			mcplib.DefaultNumber(service.DefaultIssueLimit),
			mcplib.Min(1),
		),
		mcplib.WithReadOnlyHintAnnotation(true),
	}
	tool := newTool("list_issues", append(opts, repoOverrides()...)...)
	return mcpserver.ServerTool{Tool: tool, Handler: s.tool("list_issues", s.handleListIssues)}
}

func (s *Server) summarizePRTool() mcpserver.ServerTool {
	opts := []mcplib.ToolOption{
		mcplib.WithDescription("Summarize a pull request: header, changed files, risks and next steps"),
		mcplib.WithNumber("number",
			mcplib.Required(),
			mcplib.Description("Pull request number"),
			mcplib.Min(1),
		),
		mcplib.WithReadOnlyHintAnnotation(true),
	}
	tool := newTool("summarize_pr", append(opts, repoOverrides()...)...)
	return mcpserver.ServerTool{Tool: tool, Handler: s.tool("summarize_pr", s.handleSummarizePR)}
}

func (s *Server) searchTool() mcpserver.ServerTool {
	opts := []mcplib.ToolOption{
		mcplib.WithDescription("Search issues, pull requests or code, scoped to the connected repository when one is set"),
		mcplib.WithString("query",
			mcplib.Required(),
			mcplib.Description("GitHub search query"),
		),
		mcplib.WithString("type",
			mcplib.Description("What to search"),
			mcplib.Enum(service.SearchIssues, service.SearchPRs, service.SearchCode),
			mcplib.DefaultString(service.SearchIssues),
		),
		mcplib.WithNumber("limit",
			mcplib.Description("Maximum number of results to return"),
			mcplib.DefaultNumber(service.DefaultSearchLimit),
			mcplib.Min(1),
		),
		mcplib.WithReadOnlyHintAnnotation(true),
	}
	tool := newTool("search", append(opts, repoOverrides()...)...)
	return mcpserver.ServerTool{Tool: tool, Handler: s.tool("search", s.handleSearch)}
}

func (s *Server) findTodosTool() mcpserver.ServerTool {
	opts := []mcplib.ToolOption{
		mcplib.WithDescription("Scan repository files for TODO, FIXME, HACK and NOTE markers"),
		mcplib.WithArray("paths",
			mcplib.Description(`Path prefixes to scan; "." scans the whole repository (default: src, app, .)`),
			mcplib.WithStringItems(),
		),
		mcplib.WithString("ref",
			mcplib.Description("Branch, tag or commit SHA; defaults to the default branch"),
		),
		mcplib.WithNumber("max_files",
			mcplib.Description("Maximum number of files to fetch"),
			mcplib.Min(1),
		),
		mcplib.WithReadOnlyHintAnnotation(true),
	}
	tool := newTool("find_todos", append(opts, repoOverrides()...)...)
	return mcpserver.ServerTool{Tool: tool, Handler: s.tool("find_todos", s.handleFindTodos)}
}

func (s *Server) healthCheckTool() mcpserver.ServerTool {
	tool := newTool("health_check",
		mcplib.WithDescription("Report token presence, GitHub reachability, cache size and the last known rate limit"),
		mcplib.WithReadOnlyHintAnnotation(true),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.tool("health_check", s.handleHealthCheck)}
}

// tool wraps fn with request ID, span, metrics and logging, and renders its
// outcome as a tool result.
func (s *Server) tool(name string, fn toolFunc) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
		requestID := logger.RequestID(ctx)
		if requestID == "" {
			requestID = uuid.NewString()
			ctx = logger.WithRequestID(ctx, requestID)
		}
		ctx, span := cfotel.StartToolSpan(ctx, requestID, name)
		defer span.End()

		start := time.Now()
		out, err := fn(ctx, req)
		elapsed := time.Since(start)

		kind := string(domain.KindOf(err))
		s.deps.Metrics.RecordTool(ctx, name, elapsed.Seconds(), kind)
		if err != nil {
			cfotel.MarkError(span, err, kind)
			level := slog.LevelWarn
			if kind == string(domain.KindInternal) {
				level = slog.LevelError
			}
			slog.Log(ctx, level, "tool call failed", "tool", name, "kind", kind, "duration", elapsed, "error", err)
			return toolError(err, s.deps.Redact), nil
		}

		slog.DebugContext(ctx, "tool call completed", "tool", name, "duration", elapsed)
		return toolResultJSON(out), nil
	}
}

func notConfigured(what string) error {
	return fmt.Errorf("%s not configured", what)
}

func (s *Server) handleConnectRepo(ctx context.Context, req mcplib.CallToolRequest) (any, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Repos == nil {
		return nil, notConfigured("repository connector")
	}
	owner, err := req.RequireString("owner")
	if err != nil {
		return nil, domain.Validationf("owner is required")
	}
	return s.deps.Repos.Connect(ctx, owner, req.GetString("repo", ""))
}

func (s *Server) handleListIssues(ctx context.Context, req mcplib.CallToolRequest) (any, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Issues == nil {
		return nil, notConfigured("issue lister")
	}
	return s.deps.Issues.List(ctx, service.IssueQuery{
		Owner:    req.GetString("owner", ""),
		Repo:     req.GetString("repo", ""),
		State:    req.GetString("state", ""),
		Labels:   req.GetString("labels", ""),
		Assignee: req.GetString("assignee", ""),
		Limit:    req.GetInt("limit", service.DefaultIssueLimit),
	})
}

func (s *Server) handleSummarizePR(ctx context.Context, req mcplib.CallToolRequest) (any, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Pulls == nil {
		return nil, notConfigured("pull request summarizer")
	}
	number, err := req.RequireInt("number")
	if err != nil {
		return nil, domain.Validationf("number is required and must be an integer")
	}
	return s.deps.Pulls.Summarize(ctx, req.GetString("owner", ""), req.GetString("repo", ""), number)
}

func (s *Server) handleSearch(ctx context.Context, req mcplib.CallToolRequest) (any, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Search == nil {
		return nil, notConfigured("searcher")
	}
	return s.deps.Search.Search(ctx, service.SearchQuery{
		Query: req.GetString("query", ""),
		Type:  req.GetString("type", ""),
		Owner: req.GetString("owner", ""),
		Repo:  req.GetString("repo", ""),
		Limit: req.GetInt("limit", service.DefaultSearchLimit),
	})
}

func (s *Server) handleFindTodos(ctx context.Context, req mcplib.CallToolRequest) (any, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Todos == nil {
		return nil, notConfigured("todo finder")
	}
	maxFiles := req.GetInt("max_files", 0)
	if _, given := req.GetArguments()["max_files"]; given && maxFiles < 1 {
		return nil, domain.Validationf("max_files must be >= 1")
	}
	return s.deps.Todos.Find(ctx, service.TodoQuery{
		Owner:    req.GetString("owner", ""),
		Repo:     req.GetString("repo", ""),
		Ref:      req.GetString("ref", ""),
		Paths:    stringList(req, "paths"),
		MaxFiles: maxFiles,
	})
}

func (s *Server) handleHealthCheck(ctx context.Context, _ mcplib.CallToolRequest) (any, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Health == nil {
		return nil, notConfigured("health checker")
	}
	return s.deps.Health.Check(ctx), nil
}

// stringList reads key as either a JSON array of strings or a
// comma-separated string.
func stringList(req mcplib.CallToolRequest, key string) []string { //nolint:gocritic // hugeParam: mcp-go request type
	raw, ok := req.GetArguments()[key].(string)
	if !ok {
		return req.GetStringSlice(key, nil)
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
