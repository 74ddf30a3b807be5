// Command repo-oracle is an MCP tool server that answers questions about a
// GitHub repository. It speaks MCP on stdio by default, or on a streamable
// HTTP endpoint when server.transport is "http".
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/term"

	ghadapter "github.com/Strob0t/repo-oracle/internal/adapter/github"
	"github.com/Strob0t/repo-oracle/internal/adapter/lru"
	cfmcp "github.com/Strob0t/repo-oracle/internal/adapter/mcp"
	cfotel "github.com/Strob0t/repo-oracle/internal/adapter/otel"
	cfristretto "github.com/Strob0t/repo-oracle/internal/adapter/ristretto"
	"github.com/Strob0t/repo-oracle/internal/config"
	"github.com/Strob0t/repo-oracle/internal/domain/ratelimit"
	"github.com/Strob0t/repo-oracle/internal/domain/repo"
	"github.com/Strob0t/repo-oracle/internal/logger"
	"github.com/Strob0t/repo-oracle/internal/resilience"
	"github.com/Strob0t/repo-oracle/internal/secrets"
	"github.com/Strob0t/repo-oracle/internal/service"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	flags, err := config.ParseFlags(os.Args[1:])
	if errors.Is(err, config.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}
	cfg, cfgPath, err := config.LoadWithCLI(flags)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// Logs go to stderr; stdout carries the MCP stream.
	log, logCloser := logger.New(cfg.Logging)
	defer logCloser.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"config_file", cfgPath,
		"version", version,
		"transport", cfg.Server.Transport,
		"github_base", cfg.GitHub.BaseURL,
		"cache_capacity", cfg.Cache.Capacity,
		"cache_ttl", cfg.Cache.TTL,
		"log_level", cfg.Logging.Level,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Telemetry ---

	shutdownOTEL, err := cfotel.Init(ctx, cfg.OTEL, version)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTEL(flushCtx); err != nil {
			slog.Warn("otel shutdown", "error", err)
		}
	}()

	metrics, err := cfotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("otel metrics: %w", err)
	}

	// --- Secrets ---

	vault, err := secrets.NewVault(secrets.EnvLoader(secrets.GitHubToken))
	if err != nil {
		return fmt.Errorf("secrets: %w", err)
	}
	if vault.Get(secrets.GitHubToken) == "" {
		slog.Warn("GITHUB_TOKEN is not set; repository tools will report unauthenticated")
	} else {
		slog.Info("github token loaded", "token", vault.Redacted(secrets.GitHubToken))
	}
	go reloadOnHangup(ctx, vault)

	// --- GitHub ---

	responses := lru.New(cfg.Cache.Capacity, lru.WithEvictHook(func(string) {
		metrics.RecordEviction(context.Background())
	}))
	blobs, err := cfristretto.New(cfg.Cache.BlobMaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("blob cache: %w", err)
	}
	defer blobs.Close()

	client := ghadapter.NewClient(ghadapter.ClientConfig{
		BaseURL:    cfg.GitHub.BaseURL,
		Token:      vault.Source(secrets.GitHubToken),
		APIVersion: cfg.GitHub.APIVersion,
		UserAgent:  "repo-oracle/" + version,
		Timeout:    cfg.GitHub.Timeout,
		HTTPClient: &http.Client{
			Timeout:   cfg.GitHub.Timeout,
			Transport: cfotel.Transport(http.DefaultTransport),
		},
	})
	dispatcher := ghadapter.NewDispatcher(ghadapter.DispatcherConfig{
		Client:  client,
		Cache:   responses,
		TTL:     cfg.Cache.TTL,
		Blobs:   blobs,
		Tracker: ratelimit.NewTracker(),
		Breaker: resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout,
			resilience.WithTrip(ghadapter.TripsBreaker)),
		Metrics: metrics,
	})

	// --- Services ---

	session := repo.NewSession()
	srv := cfmcp.NewServer(cfmcp.ServerConfig{
		Addr:              cfg.Server.Addr,
		Name:              "repo-oracle",
		Version:           version,
		APIKey:            cfg.Server.APIKey,
		RequestsPerSecond: cfg.Server.RequestsPerSecond,
		Burst:             cfg.Server.Burst,
	}, cfmcp.ServerDeps{
		Repos:  service.NewRepoService(session),
		Issues: service.NewIssueService(dispatcher, session),
		Pulls:  service.NewPullService(dispatcher, session),
		Search: service.NewSearchService(dispatcher, session),
		Todos: service.NewTodoService(dispatcher, session, service.ScanConfig{
			MaxFiles:     cfg.Scan.MaxFiles,
			Concurrency:  cfg.Scan.Concurrency,
			MaxFileBytes: cfg.Scan.MaxFileBytes,
		}),
		Health:  service.NewHealthService(dispatcher, session),
		Session: session,
		Rate:    dispatcher,
		Metrics: metrics,
		Redact:  vault.RedactString,
	})

	// --- Transport ---

	if cfg.Server.Transport == "http" {
		if err := srv.Start(); err != nil {
			return err
		}
		<-ctx.Done()
		slog.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Stop(shutdownCtx)
	}

	if term.IsTerminal(int(os.Stdin.Fd())) { //nolint:gosec // G115: file descriptors fit in int
		slog.Warn("stdin is a terminal; repo-oracle expects to be launched by an MCP host")
	}
	return srv.ServeStdio(ctx, os.Stdin, os.Stdout)
}

// reloadOnHangup re-reads secrets on SIGHUP until ctx is done.
func reloadOnHangup(ctx context.Context, vault *secrets.Vault) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := vault.Reload(); err != nil {
				slog.Error("secret reload failed", "error", err)
				continue
			}
			slog.Info("secrets reloaded", "keys", vault.Keys(), "github_token", vault.Redacted(secrets.GitHubToken))
		}
	}
}
