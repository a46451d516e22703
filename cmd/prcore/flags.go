package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"
)

// CLIConfig holds command-line configuration.
type CLIConfig struct {
	ConfigPath      string
	LogLevel        string
	LogFormat       string
	MetricsPort     int
	ShutdownTimeout time.Duration
	ShowVersion     bool
}

// parseFlags parses the flags; the second return is true when the process
// should exit immediately (version request).
func parseFlags() (*CLIConfig, bool) {
	cfg := &CLIConfig{}

	flag.StringVar(&cfg.ConfigPath, "config",
		getEnv("PRCORE_CONFIG", ""),
		"Path to configuration file (env: PRCORE_CONFIG)")
	flag.StringVar(&cfg.LogLevel, "log-level",
		getEnv("PRCORE_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: PRCORE_LOG_LEVEL)")
	flag.StringVar(&cfg.LogFormat, "log-format",
		getEnv("PRCORE_LOG_FORMAT", "json"),
		"Log format: json, text (env: PRCORE_LOG_FORMAT)")
	flag.IntVar(&cfg.MetricsPort, "metrics-port",
		getEnvInt("PRCORE_METRICS_PORT", 8080),
		"Prometheus metrics port, 0 to disable (env: PRCORE_METRICS_PORT)")
	flag.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration("PRCORE_SHUTDOWN_TIMEOUT", 30*time.Second),
		"Graceful shutdown timeout (env: PRCORE_SHUTDOWN_TIMEOUT)")
	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")

	flag.Parse()

	if cfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return cfg, true
	}
	return cfg, false
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
