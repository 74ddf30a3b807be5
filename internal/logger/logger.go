// Package logger provides structured logging setup for repo-oracle.
//
// stdout carries the MCP stdio stream, so every handler built here writes to
// stderr (or a caller-supplied writer in tests).
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/Strob0t/repo-oracle/internal/config"
)

const (
	asyncBuffer  = 1024
	asyncWorkers = 1
)

// New creates a *slog.Logger from the given Logging config, writing JSON to
// stderr with a "service" attribute on every record. The returned Closer
// flushes the async handler when cfg.Async is set and is a no-op otherwise.
func New(cfg config.Logging) (*slog.Logger, Closer) {
	return NewWithWriter(cfg, os.Stderr)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(cfg config.Logging, w io.Writer) (*slog.Logger, Closer) {
	var handler slog.Handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	})
	handler = &requestIDHandler{inner: handler}

	var closer Closer = nopCloser{}
	if cfg.Async {
		// One worker keeps records in emission order.
		ah := NewAsyncHandler(handler, asyncBuffer, asyncWorkers)
		handler, closer = ah, ah
	}

	return slog.New(handler).With("service", cfg.Service), closer
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
