// Package config loads relayd's process configuration from the
// environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Environment variables understood by relayd.
const (
	EnvAddr      = "RELAY_ADDR"
	EnvOpsAddr   = "RELAY_OPS_ADDR"
	EnvLanes     = "RELAY_LANES"
	EnvLogLevel  = "RELAY_LOG_LEVEL"
	EnvLogFormat = "RELAY_LOG_FORMAT"
)

// Config is the process-level configuration: where to listen, how
// many lanes to run and how to log. Zero values defer to the relay
// package defaults.
type Config struct {
	// Addr is the chat listener address, e.g. ":1967".
	Addr string

	// OpsAddr is the HTTP ops listener address. Empty disables it.
	OpsAddr string

	// Lanes bounds the worker pool. Zero means ideal concurrency.
	Lanes int

	// LogLevel is the minimum level emitted.
	LogLevel slog.Level

	// LogFormat is "text" or "json".
	LogFormat string
}

// FromEnv reads the RELAY_* variables, leaving unset ones at their
// defaults.
func FromEnv() (*Config, error) {
	cfg := &Config{
		OpsAddr:   ":8080",
		LogLevel:  slog.LevelInfo,
		LogFormat: "text",
	}
	cfg.Addr = os.Getenv(EnvAddr)
	if v, ok := os.LookupEnv(EnvOpsAddr); ok {
		cfg.OpsAddr = v
	}
	if v := os.Getenv(EnvLanes); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("config: %s=%q is not a non-negative integer", EnvLanes, v)
		}
		cfg.Lanes = n
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		level, err := parseLevel(v)
		if err != nil {
			return nil, err
		}
		cfg.LogLevel = level
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		format := strings.ToLower(v)
		if format != "text" && format != "json" {
			return nil, fmt.Errorf("config: %s=%q, want text or json", EnvLogFormat, v)
		}
		cfg.LogFormat = format
	}
	return cfg, nil
}

func parseLevel(v string) (slog.Level, error) {
	switch strings.ToLower(v) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("config: %s=%q, want debug, info, warn or error", EnvLogLevel, v)
}

// Logger builds the process logger described by the config.
func (c *Config) Logger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
