// Package config loads fraudgen configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	"github.com/opensource-finance/fraudgen/internal/domain"
)

// EnvPrefix prefixes every environment variable fraudgen reads.
const EnvPrefix = "FRAUDGEN_"

// Load returns domain.DefaultConfig overlaid with FRAUDGEN_* variables.
// Variables from envFile are loaded first when the file exists; variables
// already set in the process environment win.
func Load(envFile string) (*domain.Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read %s: %w", envFile, err)
			}
			slog.Debug("no env file found", "path", envFile)
		}
	}

	cfg := domain.DefaultConfig()
	if err := env.Parse(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	cfg.Output.Sinks = NormalizeSinks(cfg.Output.Sinks)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseSinks splits a comma-separated sink list.
func ParseSinks(v string) []string {
	return NormalizeSinks(strings.Split(v, ","))
}

// NormalizeSinks trims sink names and drops empty ones.
func NormalizeSinks(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// Validate rejects configurations no run could satisfy.
func Validate(cfg *domain.Config) error {
	g := cfg.Generation
	switch {
	case g.Users < 0:
		return fmt.Errorf("users must not be negative, got %d", g.Users)
	case g.Merchants < 0:
		return fmt.Errorf("merchants must not be negative, got %d", g.Merchants)
	case g.Transactions < 0:
		return fmt.Errorf("transactions must not be negative, got %d", g.Transactions)
	case g.AttemptMultiplier < 1:
		return fmt.Errorf("attempt multiplier must be at least 1, got %d", g.AttemptMultiplier)
	case g.Workers < 1:
		return fmt.Errorf("workers must be at least 1, got %d", g.Workers)
	}

	for _, s := range cfg.Output.Sinks {
		switch strings.TrimSpace(s) {
		case domain.SinkCSV, domain.SinkSQL, domain.SinkBus, domain.SinkKafka, domain.SinkCache:
		default:
			return fmt.Errorf("unknown sink: %q", s)
		}
	}

	switch cfg.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("unknown log format: %q", cfg.Logging.Format)
	}
	return nil
}

// Logger builds the process logger from cfg.Logging.
func Logger(cfg domain.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
