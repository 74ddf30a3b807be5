package mcp_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	ghadapter "github.com/Strob0t/repo-oracle/internal/adapter/github"
	"github.com/Strob0t/repo-oracle/internal/adapter/lru"
	cfmcp "github.com/Strob0t/repo-oracle/internal/adapter/mcp"
	"github.com/Strob0t/repo-oracle/internal/domain/ratelimit"
	"github.com/Strob0t/repo-oracle/internal/domain/report"
	"github.com/Strob0t/repo-oracle/internal/domain/repo"
	"github.com/Strob0t/repo-oracle/internal/service"
)

// --- Fake GitHub ---

type fakeGitHub struct {
	mu    sync.Mutex
	paths []string
}

func (f *fakeGitHub) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.paths...)
}

func (f *fakeGitHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.paths = append(f.paths, r.URL.Path)
	f.mu.Unlock()

	reset := strconv.FormatInt(time.Now().Add(time.Hour).Unix(), 10)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-RateLimit-Limit", "5000")
	w.Header().Set("X-RateLimit-Reset", reset)

	switch r.URL.Path {
	case "/rate_limit":
		_, _ = w.Write([]byte(`{"resources":{}}`))
	case "/repos/acme/widgets/issues":
		w.Header().Set("X-RateLimit-Remaining", "4999")
		_, _ = w.Write([]byte(`[
			{"number":1,"title":"Crash on start","state":"open","labels":[{"name":"bug"}],
			 "assignee":{"login":"alice"},"updated_at":"2024-01-02T00:00:00Z","html_url":"https://github.com/acme/widgets/issues/1"},
			{"number":2,"title":"A pull request","state":"open","labels":[],"pull_request":{"url":"x"},
			 "updated_at":"2024-01-03T00:00:00Z","html_url":"https://github.com/acme/widgets/pull/2"}
		]`))
	case "/repos/other/thing/issues":
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"API rate limit exceeded for user ID 1."}`))
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Not Found"}`))
	}
}

type stack struct {
	server  *cfmcp.Server
	github  *fakeGitHub
	session *repo.Session
}

func newStack(t *testing.T, token string) stack {
	t.Helper()
	fake := &fakeGitHub{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	d := ghadapter.NewDispatcher(ghadapter.DispatcherConfig{
		Client: ghadapter.NewClient(ghadapter.ClientConfig{
			BaseURL: srv.URL,
			Token:   ghadapter.StaticToken(token),
			Timeout: 2 * time.Second,
		}),
		Cache:   lru.New(32),
		TTL:     time.Minute,
		Blobs:   lru.New(32),
		Tracker: ratelimit.NewTracker(),
	})
	session := repo.NewSession()

	s := cfmcp.NewServer(cfmcp.ServerConfig{Name: "repo-oracle", Version: "test"}, cfmcp.ServerDeps{
		Repos:   service.NewRepoService(session),
		Issues:  service.NewIssueService(d, session),
		Pulls:   service.NewPullService(d, session),
		Search:  service.NewSearchService(d, session),
		Todos:   service.NewTodoService(d, session, service.ScanConfig{MaxFiles: 10, Concurrency: 2}),
		Health:  service.NewHealthService(d, session),
		Session: session,
		Rate:    d,
	})
	return stack{server: s, github: fake, session: session}
}

func callTool(t *testing.T, s *cfmcp.Server, name string, args map[string]any) *mcplib.CallToolResult {
	t.Helper()
	tool, ok := s.MCPServer().ListTools()[name]
	if !ok {
		t.Fatalf("tool %q not registered", name)
	}
	result, err := tool.Handler(context.Background(), mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{Name: name, Arguments: args},
	})
	if err != nil {
		t.Fatalf("%s handler error: %v", name, err)
	}
	if result == nil || len(result.Content) == 0 {
		t.Fatalf("%s returned no content", name)
	}
	return result
}

func decodeResult(t *testing.T, result *mcplib.CallToolResult, v any) {
	t.Helper()
	tc, ok := result.Content[0].(mcplib.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	if err := json.Unmarshal([]byte(tc.Text), v); err != nil {
		t.Fatalf("decode %q: %v", tc.Text, err)
	}
}

func expectToolError(t *testing.T, result *mcplib.CallToolResult) cfmcp.ToolErrorDetail {
	t.Helper()
	if !result.IsError {
		t.Fatalf("expected isError result, got %+v", result.Content)
	}
	var body cfmcp.ToolError
	decodeResult(t, result, &body)
	return body.Error
}

// --- Tests ---

func TestNewServer(t *testing.T) {
	s := cfmcp.NewServer(cfmcp.ServerConfig{Name: "test-server", Version: "0.1.0"}, cfmcp.ServerDeps{})
	if s == nil {
		t.Fatal("NewServer returned nil")
	}
	if s.MCPServer() == nil {
		t.Fatal("MCPServer() returned nil")
	}
}

func TestToolRegistration(t *testing.T) {
	s := cfmcp.NewServer(cfmcp.ServerConfig{Name: "test", Version: "0.1.0"}, cfmcp.ServerDeps{})

	tools := s.MCPServer().ListTools()
	if len(tools) != 6 {
		t.Fatalf("expected 6 tools, got %d", len(tools))
	}
	for _, name := range []string{"connect_repo", "list_issues", "summarize_pr", "search", "find_todos", "health_check"} {
		if _, ok := tools[name]; !ok {
			t.Errorf("tool %q not registered", name)
		}
	}
	if !*tools["list_issues"].Tool.Annotations.ReadOnlyHint {
		t.Error("list_issues should be read-only")
	}
}

func TestConnectThenListIssuesUsesSession(t *testing.T) {
	st := newStack(t, "tok")

	var connected report.Connected
	decodeResult(t, callTool(t, st.server, "connect_repo", map[string]any{"owner": "acme", "repo": "widgets"}), &connected)
	if !connected.Connected || connected.Owner != "acme" || connected.Repo != "widgets" {
		t.Fatalf("unexpected connect result %+v", connected)
	}

	result := callTool(t, st.server, "list_issues", map[string]any{})
	if result.IsError {
		t.Fatalf("list_issues failed: %+v", result.Content)
	}
	var list report.IssueList
	decodeResult(t, result, &list)
	if list.Count != 1 || list.Issues[0].Number != 1 {
		t.Fatalf("expected only issue #1, got %+v", list)
	}
	if list.Issues[0].Assignee == nil || *list.Issues[0].Assignee != "alice" {
		t.Errorf("expected assignee alice, got %v", list.Issues[0].Assignee)
	}

	paths := st.github.seen()
	if len(paths) != 1 || paths[0] != "/repos/acme/widgets/issues" {
		t.Errorf("unexpected upstream calls %v", paths)
	}
}

func TestConnectRepoAcceptsSlug(t *testing.T) {
	st := newStack(t, "tok")

	var connected report.Connected
	decodeResult(t, callTool(t, st.server, "connect_repo", map[string]any{"owner": "acme/widgets"}), &connected)
	if connected.Owner != "acme" || connected.Repo != "widgets" {
		t.Fatalf("unexpected connect result %+v", connected)
	}
}

func TestOverrideDoesNotMutateSession(t *testing.T) {
	st := newStack(t, "tok")
	callTool(t, st.server, "connect_repo", map[string]any{"owner": "acme", "repo": "widgets"})

	callTool(t, st.server, "list_issues", map[string]any{"owner": "other", "repo": "thing"})

	ref, ok := st.session.Current()
	if !ok || ref.String() != "acme/widgets" {
		t.Fatalf("session changed to %v", ref)
	}
}

func TestRepositoryToolsWithoutContext(t *testing.T) {
	st := newStack(t, "tok")

	cases := map[string]map[string]any{
		"list_issues":  {},
		"summarize_pr": {"number": float64(3)},
		"find_todos":   {},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			detail := expectToolError(t, callTool(t, st.server, name, args))
			if detail.Kind != "no_repository_context" {
				t.Errorf("expected no_repository_context, got %+v", detail)
			}
		})
	}
	if paths := st.github.seen(); len(paths) != 0 {
		t.Errorf("expected no upstream calls, got %v", paths)
	}
}

func TestRateLimitedThenHealthCheck(t *testing.T) {
	st := newStack(t, "tok")

	detail := expectToolError(t, callTool(t, st.server, "list_issues", map[string]any{"owner": "other", "repo": "thing"}))
	if detail.Kind != "upstream_error" || detail.SubKind != "rate_limit_exceeded" {
		t.Fatalf("expected rate_limit_exceeded, got %+v", detail)
	}
	if detail.StatusCode != http.StatusForbidden {
		t.Errorf("expected status 403, got %d", detail.StatusCode)
	}
	if detail.ResetAt == nil {
		t.Error("expected reset_at to be set")
	}

	var health report.Health
	decodeResult(t, callTool(t, st.server, "health_check", nil), &health)
	if health.RateLimit.State != "known" {
		t.Fatalf("expected known rate state, got %+v", health.RateLimit)
	}
	if health.RateLimit.Remaining == nil || *health.RateLimit.Remaining != 0 {
		t.Errorf("expected remaining 0, got %v", health.RateLimit.Remaining)
	}
	if health.Status != "degraded" {
		t.Errorf("expected degraded while exhausted, got %s", health.Status)
	}
	if !health.Reachable {
		t.Errorf("expected reachable, probe error %q", health.ProbeError)
	}
}

func TestHealthCheckBeforeAnyCall(t *testing.T) {
	st := newStack(t, "")

	var health report.Health
	decodeResult(t, callTool(t, st.server, "health_check", nil), &health)
	if health.RateLimit.State != "unknown" || health.RateLimit.Remaining != nil {
		t.Errorf("expected unknown rate state, got %+v", health.RateLimit)
	}
	if health.HasToken {
		t.Error("expected has_token=false")
	}
	if health.Status != "degraded" {
		t.Errorf("expected degraded without token, got %s", health.Status)
	}
	if health.Connected != nil {
		t.Errorf("expected no connected repository, got %v", health.Connected)
	}
}

func TestMissingTokenIsUnauthenticated(t *testing.T) {
	st := newStack(t, "")

	detail := expectToolError(t, callTool(t, st.server, "list_issues", map[string]any{"owner": "acme", "repo": "widgets"}))
	if detail.Kind != "unauthenticated" {
		t.Errorf("expected unauthenticated, got %+v", detail)
	}
	if paths := st.github.seen(); len(paths) != 0 {
		t.Errorf("expected no upstream calls, got %v", paths)
	}
}

func TestSearchUnknownType(t *testing.T) {
	st := newStack(t, "tok")

	detail := expectToolError(t, callTool(t, st.server, "search", map[string]any{"query": "bug", "type": "wiki"}))
	if detail.Kind != "validation_error" {
		t.Fatalf("expected validation_error, got %+v", detail)
	}
	if !strings.Contains(detail.Message, "type must be one of: issues | prs | code") {
		t.Errorf("unexpected message %q", detail.Message)
	}
}

func TestArgumentValidation(t *testing.T) {
	st := newStack(t, "tok")
	callTool(t, st.server, "connect_repo", map[string]any{"owner": "acme", "repo": "widgets"})

	tests := []struct {
		tool string
		args map[string]any
	}{
		{"connect_repo", map[string]any{}},
		{"connect_repo", map[string]any{"owner": "bad owner", "repo": "x"}},
		{"summarize_pr", map[string]any{}},
		{"summarize_pr", map[string]any{"number": float64(0)}},
		{"list_issues", map[string]any{"limit": float64(0)}},
		{"list_issues", map[string]any{"state": "merged"}},
		{"find_todos", map[string]any{"max_files": float64(0)}},
	}
	for _, tt := range tests {
		detail := expectToolError(t, callTool(t, st.server, tt.tool, tt.args))
		if detail.Kind != "validation_error" {
			t.Errorf("%s(%v): expected validation_error, got %+v", tt.tool, tt.args, detail)
		}
	}
}

func TestToolsWithoutDeps(t *testing.T) {
	s := cfmcp.NewServer(cfmcp.ServerConfig{Name: "test", Version: "0.1.0"}, cfmcp.ServerDeps{})

	for name := range s.MCPServer().ListTools() {
		detail := expectToolError(t, callTool(t, s, name, map[string]any{"owner": "a", "number": float64(1), "query": "q"}))
		if detail.Kind != "internal_error" || !strings.Contains(detail.Message, "not configured") {
			t.Errorf("%s: expected not configured internal_error, got %+v", name, detail)
		}
	}
}

func readResource(t *testing.T, s *cfmcp.Server, uri string) string {
	t.Helper()
	msg := `{"jsonrpc":"2.0","id":1,"method":"resources/read","params":{"uri":"` + uri + `"}}`
	resp := s.MCPServer().HandleMessage(context.Background(), json.RawMessage(msg))
	raw, err := json.Marshal(resp)
	if err != nil {
		t.Fatal(err)
	}
	var out struct {
		Result struct {
			Contents []struct {
				URI  string `json:"uri"`
				Text string `json:"text"`
			} `json:"contents"`
		} `json:"result"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	if len(out.Result.Contents) != 1 {
		t.Fatalf("expected one content block, got %s", raw)
	}
	return out.Result.Contents[0].Text
}

func TestResources(t *testing.T) {
	st := newStack(t, "tok")

	var session report.Connected
	if err := json.Unmarshal([]byte(readResource(t, st.server, cfmcp.ResourceSession)), &session); err != nil {
		t.Fatal(err)
	}
	if session.Connected {
		t.Errorf("expected unconnected session, got %+v", session)
	}

	callTool(t, st.server, "connect_repo", map[string]any{"owner": "acme", "repo": "widgets"})
	if err := json.Unmarshal([]byte(readResource(t, st.server, cfmcp.ResourceSession)), &session); err != nil {
		t.Fatal(err)
	}
	if !session.Connected || session.Owner != "acme" {
		t.Errorf("expected acme/widgets, got %+v", session)
	}

	var rate report.RateLimit
	if err := json.Unmarshal([]byte(readResource(t, st.server, cfmcp.ResourceRateLimit)), &rate); err != nil {
		t.Fatal(err)
	}
	if rate.State != "unknown" {
		t.Errorf("expected unknown before any call, got %+v", rate)
	}
}

func TestServerStartStop(t *testing.T) {
	s := cfmcp.NewServer(cfmcp.ServerConfig{
		Addr:    "127.0.0.1:0",
		Name:    "test-server",
		Version: "0.1.0",
		APIKey:  "secret",
	}, cfmcp.ServerDeps{})

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	base := "http://" + s.Addr()

	resp, err := http.Get(base + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID on response")
	}

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("second Stop failed: %v", err)
	}
}

const initializeBody = `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","capabilities":{},"clientInfo":{"name":"test","version":"1"}}}`

func TestHTTPTransportAuth(t *testing.T) {
	s := cfmcp.NewServer(cfmcp.ServerConfig{Name: "test", Version: "0.1.0", APIKey: "secret"}, cfmcp.ServerDeps{})
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	tests := []struct {
		name   string
		header map[string]string
		want   int
	}{
		{"missing", nil, http.StatusUnauthorized},
		{"wrong bearer", map[string]string{"Authorization": "Bearer nope"}, http.StatusForbidden},
		{"bearer", map[string]string{"Authorization": "Bearer secret"}, http.StatusOK},
		{"api key header", map[string]string{"X-API-Key": "secret"}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodPost, srv.URL+"/mcp", strings.NewReader(initializeBody))
			req.Header.Set("Content-Type", "application/json")
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			_ = resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("expected %d, got %d", tt.want, resp.StatusCode)
			}
		})
	}
}

func TestHTTPTransportThrottle(t *testing.T) {
	s := cfmcp.NewServer(cfmcp.ServerConfig{Name: "test", Version: "0.1.0", RequestsPerSecond: 0.001, Burst: 1}, cfmcp.ServerDeps{})
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	for i, want := range []int{http.StatusOK, http.StatusTooManyRequests} {
		resp, err := http.Get(srv.URL + "/healthz")
		if err != nil {
			t.Fatal(err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode != want {
			t.Errorf("request %d: expected %d, got %d", i, want, resp.StatusCode)
		}
	}
}

func TestAuthMiddlewareDisabled(t *testing.T) {
	called := false
	h := cfmcp.AuthMiddleware("", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/mcp", nil))
	if !called || rec.Code != http.StatusNoContent {
		t.Errorf("expected passthrough, got %d", rec.Code)
	}
}

type mockRepoConnector struct {
	err error
}

func (m *mockRepoConnector) Connect(_ context.Context, owner, name string) (*report.Connected, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &report.Connected{Connected: true, Owner: owner, Repo: name}, nil
}

func TestToolErrorRedactsSecrets(t *testing.T) {
	s := cfmcp.NewServer(cfmcp.ServerConfig{Name: "test", Version: "0.1.0"}, cfmcp.ServerDeps{
		Repos: &mockRepoConnector{err: errors.New("dial with token ghp_secretvalue failed")},
		Redact: func(msg string) string {
			return strings.ReplaceAll(msg, "ghp_secretvalue", "gh****")
		},
	})

	detail := expectToolError(t, callTool(t, s, "connect_repo", map[string]any{"owner": "acme", "repo": "widgets"}))
	if strings.Contains(detail.Message, "ghp_secretvalue") {
		t.Fatalf("secret leaked in %q", detail.Message)
	}
	if detail.Kind != "internal_error" {
		t.Errorf("expected internal_error, got %s", detail.Kind)
	}
}
