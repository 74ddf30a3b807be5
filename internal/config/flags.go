package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"
)

// CLIFlags holds optional command-line overrides. A nil field means the
// flag was not given.
type CLIFlags struct {
	ConfigPath *string
	Transport  *string
	Addr       *string
	LogLevel   *string
}

// ErrHelp is returned by ParseFlags after printing usage for -h/--help.
var ErrHelp = pflag.ErrHelp

// ParseFlags parses command-line arguments (without the program name).
func ParseFlags(args []string) (CLIFlags, error) {
	fs := pflag.NewFlagSet("repo-oracle", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configPath, transport, addr, logLevel string
		flags                                 CLIFlags
	)
	fs.StringVarP(&configPath, "config", "c", "", "path to YAML config")
	fs.StringVar(&transport, "transport", "", "stdio or http")
	fs.StringVar(&addr, "addr", "", "listen address for the http transport")
	fs.StringVar(&logLevel, "log-level", "", "debug, info, warn or error")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			fmt.Fprintln(os.Stderr, "Usage: repo-oracle [flags]")
			fs.SetOutput(os.Stderr)
			fs.PrintDefaults()
		}
		return CLIFlags{}, fmt.Errorf("parse flags: %w", err)
	}

	fs.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "config":
			flags.ConfigPath = &configPath
		case "transport":
			flags.Transport = &transport
		case "addr":
			flags.Addr = &addr
		case "log-level":
			flags.LogLevel = &logLevel
		}
	})
	return flags, nil
}

// LoadWithCLI loads configuration with the hierarchy
// defaults < YAML < ENV < CLI and returns the YAML path that was used.
func LoadWithCLI(flags CLIFlags) (*Config, string, error) {
	path := DefaultConfigFile
	if v := os.Getenv("REPO_ORACLE_CONFIG"); v != "" {
		path = v
	}
	if flags.ConfigPath != nil {
		path = *flags.ConfigPath
	}

	cfg := Defaults()
	if err := loadYAML(&cfg, path); err != nil {
		return nil, path, fmt.Errorf("config yaml: %w", err)
	}
	loadEnv(&cfg)
	applyCLI(&cfg, flags)
	normalize(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, path, fmt.Errorf("config validate: %w", err)
	}
	return &cfg, path, nil
}

// applyCLI overlays non-nil flags onto cfg.
func applyCLI(cfg *Config, flags CLIFlags) {
	if flags.Transport != nil {
		cfg.Server.Transport = *flags.Transport
	}
	if flags.Addr != nil {
		cfg.Server.Addr = *flags.Addr
	}
	if flags.LogLevel != nil {
		cfg.Logging.Level = *flags.LogLevel
	}
}
