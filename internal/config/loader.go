package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "repo-oracle.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// The YAML path is REPO_ORACLE_CONFIG when set, DefaultConfigFile otherwise.
// A missing file is not an error.
func Load() (*Config, error) {
	path := DefaultConfigFile
	if v := os.Getenv("REPO_ORACLE_CONFIG"); v != "" {
		path = v
	}
	return LoadFrom(path)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)
	normalize(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: operator-supplied config path
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.GitHub.BaseURL, "GITHUB_BASE")
	setDuration(&cfg.GitHub.Timeout, "REPO_ORACLE_GITHUB_TIMEOUT")
	setString(&cfg.GitHub.APIVersion, "REPO_ORACLE_GITHUB_API_VERSION")

	// Cache
	setInt(&cfg.Cache.Capacity, "REPO_ORACLE_CACHE_CAPACITY")
	setDuration(&cfg.Cache.TTL, "REPO_ORACLE_CACHE_TTL")
	setInt64(&cfg.Cache.BlobMaxSizeMB, "REPO_ORACLE_BLOB_CACHE_MB")

	// Scan
	setInt(&cfg.Scan.MaxFiles, "REPO_ORACLE_SCAN_MAX_FILES")
	setInt(&cfg.Scan.Concurrency, "REPO_ORACLE_SCAN_CONCURRENCY")
	setInt64(&cfg.Scan.MaxFileBytes, "REPO_ORACLE_SCAN_MAX_FILE_BYTES")

	setInt(&cfg.Breaker.MaxFailures, "REPO_ORACLE_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "REPO_ORACLE_BREAKER_TIMEOUT")

	setString(&cfg.Server.Transport, "REPO_ORACLE_TRANSPORT")
	setString(&cfg.Server.Addr, "REPO_ORACLE_ADDR")
	setString(&cfg.Server.APIKey, "REPO_ORACLE_API_KEY")
	setFloat(&cfg.Server.RequestsPerSecond, "REPO_ORACLE_HTTP_RPS")
	setInt(&cfg.Server.Burst, "REPO_ORACLE_HTTP_BURST")

	setString(&cfg.Logging.Level, "REPO_ORACLE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "REPO_ORACLE_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "REPO_ORACLE_LOG_ASYNC")

	// Telemetry
	setString(&cfg.OTEL.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setBool(&cfg.OTEL.Insecure, "OTEL_EXPORTER_OTLP_INSECURE")
	setString(&cfg.OTEL.ServiceName, "OTEL_SERVICE_NAME")
	setDuration(&cfg.OTEL.Interval, "REPO_ORACLE_OTEL_INTERVAL")
}

// normalize cleans values that have a canonical form.
func normalize(cfg *Config) {
	cfg.GitHub.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.GitHub.BaseURL), "/")
	cfg.Server.Transport = strings.ToLower(strings.TrimSpace(cfg.Server.Transport))
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.GitHub.BaseURL == "" {
		return errors.New("github.base_url is required")
	}
	if !strings.HasPrefix(cfg.GitHub.BaseURL, "http://") && !strings.HasPrefix(cfg.GitHub.BaseURL, "https://") {
		return fmt.Errorf("github.base_url must be an http(s) URL, got %q", cfg.GitHub.BaseURL)
	}
	if cfg.GitHub.Timeout <= 0 {
		return errors.New("github.timeout must be > 0")
	}
	if cfg.Cache.Capacity < 0 {
		return errors.New("cache.capacity must be >= 0")
	}
	if cfg.Cache.TTL < 0 {
		return errors.New("cache.ttl must be >= 0")
	}
	if cfg.Cache.BlobMaxSizeMB < 1 {
		return errors.New("cache.blob_max_size_mb must be >= 1")
	}
	if cfg.Scan.MaxFiles < 1 {
		return errors.New("scan.max_files must be >= 1")
	}
	if cfg.Scan.Concurrency < 1 {
		return errors.New("scan.concurrency must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	switch cfg.Server.Transport {
	case "stdio", "http":
	default:
		return fmt.Errorf("server.transport must be stdio or http, got %q", cfg.Server.Transport)
	}
	if cfg.Server.Transport == "http" && cfg.Server.Addr == "" {
		return errors.New("server.addr is required for the http transport")
	}
	if cfg.Server.RequestsPerSecond < 0 {
		return errors.New("server.requests_per_second must be >= 0")
	}
	if cfg.Server.RequestsPerSecond > 0 && cfg.Server.Burst < 1 {
		return errors.New("server.burst must be >= 1 when throttling is enabled")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
