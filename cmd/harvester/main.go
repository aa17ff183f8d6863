// Command harvester discovers freely-licensed text archives from a paginated
// catalog, extracts one plain-text book per archive, and publishes the book
// lines to a message queue. It performs one full pass and exits.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/michaelprice232/book-harvester/internal/archive"
	"github.com/michaelprice232/book-harvester/internal/config"
	"github.com/michaelprice232/book-harvester/internal/discovery"
	"github.com/michaelprice232/book-harvester/internal/observability"
	"github.com/michaelprice232/book-harvester/internal/pipeline"
	"github.com/michaelprice232/book-harvester/internal/publish"
	"github.com/michaelprice232/book-harvester/internal/queue"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "harvester: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(cfg.ServiceName, cfg.LogLevel, cfg.LogJSON, os.Stdout)
	metrics := observability.NewMetrics(cfg.ServiceName)

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, metrics, logger)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	broker, err := queue.Create(&cfg.Queue, logger.WithFields(map[string]interface{}{"component": "queue"}))
	if err != nil {
		return fmt.Errorf("create queue broker: %w", err)
	}
	defer broker.Close()

	// All temporary directories for this run live under one parent, removed
	// when the run ends.
	workDir := filepath.Join(cfg.Fetch.WorkDir, "book-harvester-"+uuid.NewString())
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	// One shared limiter keeps the combined listing and archive request rate
	// polite towards the remote host.
	limiter := rate.NewLimiter(rate.Limit(cfg.Fetch.RatePerSecond), 1)

	discoverer := discovery.New(
		cfg.Listing.URL, cfg.Fetch.UserAgent, cfg.Listing.Timeout, limiter,
		logger.WithFields(map[string]interface{}{"component": "discovery"}), metrics)

	fetcher := archive.NewFetcher(
		workDir, cfg.Fetch.UserAgent, cfg.Fetch.Timeout, cfg.Fetch.MaxArchiveSize, limiter,
		logger.WithFields(map[string]interface{}{"component": "fetcher"}), metrics)

	publisher := publish.New(
		broker, cfg.Queue.Topic, cfg.Queue.FlushTimeout,
		logger.WithFields(map[string]interface{}{"component": "publisher"}), metrics)

	runner := pipeline.NewRunner(
		discoverer, fetcher, publisher,
		cfg.Listing.TargetCount, cfg.Pipeline.Workers,
		logger.WithFields(map[string]interface{}{"component": "pipeline"}), metrics)

	logger.Info("starting harvest run",
		"listing_url", cfg.Listing.URL, "target_count", cfg.Listing.TargetCount,
		"queue_adapter", cfg.Queue.Adapter, "topic", cfg.Queue.Topic,
		"workers", cfg.Pipeline.Workers)

	report, err := runner.Run(ctx)
	if err != nil {
		return fmt.Errorf("harvest run: %w", err)
	}

	report.Render(os.Stdout)
	logger.Info("harvest run complete",
		"processed", report.Processed,
		"succeeded", len(report.Successes),
		"failed", len(report.Failures))

	return nil
}

func serveMetrics(addr string, metrics *observability.Metrics, logger observability.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))

	logger.Info("metrics endpoint listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics endpoint failed", "error", err)
	}
}
