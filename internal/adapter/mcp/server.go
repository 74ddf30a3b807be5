// Package mcp exposes the repo-oracle tools and resources over the Model
// Context Protocol, on stdio or on a streamable HTTP endpoint.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	mcpserver "github.com/mark3labs/mcp-go/server"

	cfotel "github.com/Strob0t/repo-oracle/internal/adapter/otel"
	"github.com/Strob0t/repo-oracle/internal/domain/ratelimit"
	"github.com/Strob0t/repo-oracle/internal/domain/report"
	"github.com/Strob0t/repo-oracle/internal/domain/repo"
	"github.com/Strob0t/repo-oracle/internal/middleware"
	"github.com/Strob0t/repo-oracle/internal/service"
)

const instructions = `repo-oracle answers questions about a GitHub repository.
Call connect_repo once to set the default repository; every other tool then
targets it unless owner and repo are passed explicitly. Failed calls return
{"error":{"kind":...}} with isError set.`

// throttle bucket housekeeping
const (
	throttleCleanupInterval = time.Minute
	throttleMaxIdle         = 10 * time.Minute
)

// ServerConfig holds MCP server configuration.
type ServerConfig struct {
	Addr    string // listen address for the HTTP transport
	Name    string
	Version string
	APIKey  string // empty disables HTTP auth

	RequestsPerSecond float64 // per-client HTTP throttle; 0 disables it
	Burst             int
}

// RepoConnector sets the session repository.
type RepoConnector interface {
	Connect(ctx context.Context, owner, name string) (*report.Connected, error)
}

// IssueLister lists repository issues.
type IssueLister interface {
	List(ctx context.Context, q service.IssueQuery) (*report.IssueList, error)
}

// PRSummarizer builds a pull request digest.
type PRSummarizer interface {
	Summarize(ctx context.Context, owner, name string, number int) (*report.PRSummary, error)
}

// Searcher runs GitHub searches.
type Searcher interface {
	Search(ctx context.Context, q service.SearchQuery) (*report.SearchResult, error)
}

// TodoFinder scans repository files for markers.
type TodoFinder interface {
	Find(ctx context.Context, q service.TodoQuery) (*report.TodoReport, error)
}

// HealthChecker reports server health.
type HealthChecker interface {
	Check(ctx context.Context) *report.Health
}

// SessionReader reads the connected repository.
type SessionReader interface {
	Current() (repo.Ref, bool)
}

// RateReader reads the last observed rate-limit state.
type RateReader interface {
	RateStatus() ratelimit.Status
}

// ServerDeps holds the dependencies the MCP server needs. Nil members make
// the corresponding tool or resource report "not configured".
type ServerDeps struct {
	Repos   RepoConnector
	Issues  IssueLister
	Pulls   PRSummarizer
	Search  Searcher
	Todos   TodoFinder
	Health  HealthChecker
	Session SessionReader
	Rate    RateReader
	Metrics *cfotel.Metrics
	// Redact scrubs secrets from error messages returned to the host.
	Redact func(string) string
}

// Server wraps the mcp-go server and its optional HTTP listener.
type Server struct {
	cfg       ServerConfig
	deps      ServerDeps
	mcpServer *mcpserver.MCPServer
	throttle  *middleware.Throttle

	mu          sync.Mutex
	httpServer  *http.Server
	listenAddr  string
	stopCleanup context.CancelFunc
}

// NewServer creates an MCP server with all tools and resources registered.
func NewServer(cfg ServerConfig, deps ServerDeps) *Server {
	s := &Server{cfg: cfg, deps: deps}
	s.mcpServer = mcpserver.NewMCPServer(
		cfg.Name,
		cfg.Version,
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithResourceCapabilities(false, false),
		mcpserver.WithRecovery(),
		mcpserver.WithInstructions(instructions),
	)
	if cfg.RequestsPerSecond > 0 {
		s.throttle = middleware.NewThrottle(cfg.RequestsPerSecond, cfg.Burst)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// ServeStdio serves MCP on in/out until in reaches EOF or ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := mcpserver.NewStdioServer(s.mcpServer)
	stdio.SetErrorLogger(slog.NewLogLogger(slog.Default().Handler(), slog.LevelError))

	slog.Info("mcp stdio transport ready", "name", s.cfg.Name, "version", s.cfg.Version)
	if err := stdio.Listen(ctx, in, out); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcp stdio: %w", err)
	}
	return nil
}

// Handler returns the HTTP handler for the streamable transport: MCP on
// /mcp behind API-key auth plus an unauthenticated /healthz.
func (s *Server) Handler() http.Handler {
	streamable := mcpserver.NewStreamableHTTPServer(s.mcpServer,
		mcpserver.WithEndpointPath("/mcp"),
	)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(cfotel.HTTPMiddleware(s.cfg.Name))
	r.Use(s.throttle.Handler)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/mcp", AuthMiddleware(s.cfg.APIKey, streamable))
	return r
}

// Start begins serving the HTTP transport in the background. The listener
// is bound before Start returns.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.httpServer != nil {
		return errors.New("mcp server already started")
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("mcp listen %s: %w", s.cfg.Addr, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if s.throttle != nil {
		s.throttle.StartCleanup(ctx, throttleCleanupInterval, throttleMaxIdle)
	}
	s.stopCleanup = cancel
	s.listenAddr = ln.Addr().String()
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	srv := s.httpServer
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("mcp http server failed", "error", err)
		}
	}()
	slog.Info("mcp http transport listening", "addr", s.listenAddr, "path", "/mcp")
	return nil
}

// Addr returns the bound listen address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listenAddr
}

// Stop gracefully shuts down the HTTP transport. It is a no-op when the
// server was never started.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv, cancel := s.httpServer, s.stopCleanup
	s.httpServer, s.stopCleanup, s.listenAddr = nil, nil, ""
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("mcp shutdown: %w", err)
	}
	slog.Info("mcp http transport stopped")
	return nil
}
