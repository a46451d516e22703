// Package main implements the prcore coordinator: the orchestration hub of
// the prescriptive process monitoring platform. It owns the project
// lifecycle, plugin presence, pre-processing and prescription fan-outs, and
// the streaming sessions.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/prcore/prcore/config"
	"github.com/prcore/prcore/coordinator"
	"github.com/prcore/prcore/metric"
)

const (
	// Version is the build version, overridden at link time.
	Version = "0.1.0"
	appName = "prcore"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("coordinator failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cliCfg, exit := parseFlags()
	if exit {
		return nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)
	slog.Info("starting coordinator", "version", Version, "config_path", cliCfg.ConfigPath)

	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	registry := metric.NewMetricsRegistry()
	svc, err := coordinator.NewService(cfg, registry.Metrics, registry, logger)
	if err != nil {
		return fmt.Errorf("wire coordinator: %w", err)
	}

	signalCtx, signalCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	if err := svc.Start(signalCtx); err != nil {
		return fmt.Errorf("start coordinator: %w", err)
	}
	defer svc.Stop(cliCfg.ShutdownTimeout)

	if cliCfg.MetricsPort > 0 {
		go serveMetrics(cliCfg.MetricsPort, registry)
	}

	slog.Info("coordinator ready")
	<-signalCtx.Done()
	slog.Info("shutting down", "timeout", cliCfg.ShutdownTimeout)
	return nil
}

// serveMetrics exposes the Prometheus registry. Errors are logged, not
// fatal: the coordinator keeps serving without metrics.
func serveMetrics(port int, registry *metric.MetricsRegistry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(
		registry.PrometheusRegistry(), promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("metrics server failed", "error", err)
	}
}
