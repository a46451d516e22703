// Package main implements the prcore algorithm worker. The -algorithm flag
// selects a registered algorithm; the worker then reports presence, trains
// models when asked and serves prescription requests.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/prcore/prcore/config"
	"github.com/prcore/prcore/metric"
	"github.com/prcore/prcore/plugin"
)

const version = "0.1.0"

func main() {
	if err := run(); err != nil {
		slog.Error("plugin worker failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  = flag.String("config", os.Getenv("PRCORE_CONFIG"), "Path to configuration file")
		algorithm   = flag.String("algorithm", os.Getenv("PRCORE_ALGORITHM"), "Algorithm key to run")
		logLevel    = flag.String("log-level", envOr("PRCORE_LOG_LEVEL", "info"), "Log level")
		metricsPort = flag.Int("metrics-port", 0, "Prometheus metrics port, 0 to disable")
		showVersion = flag.Bool("version", false, "Show version information")
		listAlgos   = flag.Bool("list", false, "List registered algorithms and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("prcore-plugin version %s\n", version)
		return nil
	}
	if *listAlgos {
		for _, key := range plugin.Keys() {
			fmt.Println(key)
		}
		return nil
	}

	logger := newLogger(*logLevel)
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *algorithm != "" {
		cfg.Worker.Algorithm = *algorithm
	}
	if cfg.Worker.Algorithm == "" {
		return fmt.Errorf("no algorithm selected; pass -algorithm or set worker.algorithm (registered: %s)",
			strings.Join(plugin.Keys(), ", "))
	}

	registry := metric.NewMetricsRegistry()
	worker, err := plugin.NewWorker(cfg, registry.Metrics, logger)
	if err != nil {
		return fmt.Errorf("wire worker: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := worker.Start(ctx); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	defer worker.Stop()

	if *metricsPort > 0 {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(
				registry.PrometheusRegistry(), promhttp.HandlerOpts{}))
			srv := &http.Server{
				Addr:              fmt.Sprintf(":%d", *metricsPort),
				Handler:           mux,
				ReadHeaderTimeout: 5 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("metrics server failed", "error", err)
			}
		}()
	}

	slog.Info("plugin worker ready", "algorithm", cfg.Worker.Algorithm, "version", version)
	<-ctx.Done()
	slog.Info("shutting down")
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: l})
	return slog.New(handler).With("service", "prcore-plugin", "pid", os.Getpid())
}
