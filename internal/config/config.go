// Package config provides hierarchical configuration loading for repo-oracle.
// Precedence: defaults < YAML file < environment variables.
package config

import "time"

// Config holds all runtime configuration for the repo-oracle MCP server.
type Config struct {
	GitHub  GitHub  `yaml:"github"`
	Cache   Cache   `yaml:"cache"`
	Scan    Scan    `yaml:"scan"`
	Breaker Breaker `yaml:"breaker"`
	Server  Server  `yaml:"server"`
	Logging Logging `yaml:"logging"`
	OTEL    OTEL    `yaml:"otel"`
}

// GitHub holds outbound REST API configuration. The bearer token is not part
// of the config file; it is read from GITHUB_TOKEN through the secrets vault.
type GitHub struct {
	BaseURL    string        `yaml:"base_url"`    // GITHUB_BASE (default: https://api.github.com)
	Timeout    time.Duration `yaml:"timeout"`     // Per-request timeout (default: 12s)
	APIVersion string        `yaml:"api_version"` // X-GitHub-Api-Version header (default: 2022-11-28)
}

// Cache holds response and blob cache configuration.
type Cache struct {
	Capacity      int           `yaml:"capacity"`         // Max LRU entries; 0 disables caching (default: 128)
	TTL           time.Duration `yaml:"ttl"`              // Entry lifetime; 0 means no expiry (default: 5m)
	BlobMaxSizeMB int64         `yaml:"blob_max_size_mb"` // Decoded file content cache budget (default: 32)
}

// Scan holds find_todos configuration.
type Scan struct {
	MaxFiles     int   `yaml:"max_files"`      // Default max_files when the caller omits it (default: 120)
	Concurrency  int   `yaml:"concurrency"`    // Parallel blob fetches (default: 4)
	MaxFileBytes int64 `yaml:"max_file_bytes"` // Larger blobs are skipped (default: 1 MiB)
}

// Breaker holds circuit breaker configuration for GitHub calls.
type Breaker struct {
	MaxFailures int           `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Server holds MCP transport configuration.
type Server struct {
	Transport string `yaml:"transport"` // "stdio" | "http" (default: "stdio")
	Addr      string `yaml:"addr"`      // Listen address for the http transport (default: 127.0.0.1:8765)
	APIKey    string `yaml:"api_key"`   // Required bearer key for the http transport; empty disables auth

	// Per-client throttle for the http transport; 0 disables it.
	RequestsPerSecond float64 `yaml:"requests_per_second"` // default: 10
	Burst             int     `yaml:"burst"`               // default: 20
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
	Async   bool   `yaml:"async"`
}

// OTEL holds OpenTelemetry export configuration.
type OTEL struct {
	Endpoint    string        `yaml:"endpoint"` // OTLP gRPC endpoint; empty keeps no-op providers
	Insecure    bool          `yaml:"insecure"`
	ServiceName string        `yaml:"service_name"`
	Interval    time.Duration `yaml:"interval"` // Metric export interval (default: 30s)
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		GitHub: GitHub{
			BaseURL:    "https://api.github.com",
			Timeout:    12 * time.Second,
			APIVersion: "2022-11-28",
		},
		Cache: Cache{
			Capacity:      128,
			TTL:           5 * time.Minute,
			BlobMaxSizeMB: 32,
		},
		Scan: Scan{
			MaxFiles:     120,
			Concurrency:  4,
			MaxFileBytes: 1 << 20,
		},
		Breaker: Breaker{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		},
		Server: Server{
			Transport:         "stdio",
			Addr:              "127.0.0.1:8765",
			RequestsPerSecond: 10,
			Burst:             20,
		},
		Logging: Logging{
			Level:   "info",
			Service: "repo-oracle",
		},
		OTEL: OTEL{
			ServiceName: "repo-oracle",
			Interval:    30 * time.Second,
		},
	}
}
