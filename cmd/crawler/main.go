package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lsst-dm/imgcrawl/internal/catalog"
	"github.com/lsst-dm/imgcrawl/internal/clock"
	"github.com/lsst-dm/imgcrawl/internal/config"
	"github.com/lsst-dm/imgcrawl/internal/db"
	"github.com/lsst-dm/imgcrawl/internal/eventbus"
	"github.com/lsst-dm/imgcrawl/internal/logger"
	"github.com/lsst-dm/imgcrawl/internal/metrics"
	"github.com/lsst-dm/imgcrawl/internal/notifier"
	"github.com/lsst-dm/imgcrawl/internal/ops"
	"github.com/lsst-dm/imgcrawl/internal/services"
)

func main() {
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.BoolVar(showVersion, "v", false, "Print version and exit (shorthand)")

	// Configuration flags - all can also be set via environment variables (IMGCRAWL_*)
	flagCatalogURL := flag.String("catalog-url", "", "Base URL of the dataset catalog REST service (env: IMGCRAWL_CATALOG_URL)")
	flagWatchFolder := flag.String("watch-folder", "", "Catalog folder to scan (env: IMGCRAWL_WATCH_FOLDER, default: /LSST)")
	flagWatchSite := flag.String("watch-site", "", "Storage site to verify replicas at (env: IMGCRAWL_WATCH_SITE, default: NCSA)")
	flagDatasetVersion := flag.String("dataset-version", "", "Catalog version selector (env: IMGCRAWL_DATASET_VERSION, default: current)")
	flagPollInterval := flag.Duration("poll-interval", 0, "Cadence between scan cycles (env: IMGCRAWL_POLL_INTERVAL, default: 5s)")
	flagMaxResults := flag.Int("max-results", 0, "Max datasets fetched per cycle (env: IMGCRAWL_MAX_RESULTS, default: 1000)")
	flagRequestTimeout := flag.Duration("request-timeout", 0, "Per-call catalog timeout (env: IMGCRAWL_REQUEST_TIMEOUT, default: 30s)")
	flagDryRun := flag.Bool("dry-run", false, "Compute checksums but skip catalog patches (env: IMGCRAWL_DRY_RUN)")
	flagOpsPort := flag.String("ops-port", "", "Operator HTTP server port (env: IMGCRAWL_OPS_PORT, default: 3095)")
	flagLogLevel := flag.String("log-level", "", "Log level: debug, info, warn, error (env: IMGCRAWL_LOG_LEVEL, default: info)")
	flagNotifyURLs := flag.String("notify-urls", "", "Comma-separated shoutrrr URLs for alerts (env: IMGCRAWL_NOTIFY_URLS)")
	flagRetentionDays := flag.Int("retention-days", -1, "Days to keep journal data, 0 to disable pruning (env: IMGCRAWL_RETENTION_DAYS, default: 90)")
	flagDataDir := flag.String("data-dir", "", "Data directory path (env: IMGCRAWL_DATA_DIR)")
	flagDatabasePath := flag.String("database-path", "", "Journal database file path (env: IMGCRAWL_DATABASE_PATH)")

	flag.Parse()

	if *showVersion {
		fmt.Printf("imgcrawl %s\n", config.Version)
		os.Exit(0)
	}

	if _, err := config.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	flagOverrides := config.FlagOverrides{
		CatalogURL:     flagCatalogURL,
		WatchFolder:    flagWatchFolder,
		WatchSite:      flagWatchSite,
		DatasetVersion: flagDatasetVersion,
		PollInterval:   flagPollInterval,
		MaxResults:     flagMaxResults,
		RequestTimeout: flagRequestTimeout,
		DryRun:         flagDryRun,
		OpsPort:        flagOpsPort,
		LogLevel:       flagLogLevel,
		NotifyURLs:     flagNotifyURLs,
		DataDir:        flagDataDir,
		DatabasePath:   flagDatabasePath,
	}
	// -1 means not set; 0 is a valid value that disables pruning.
	if *flagRetentionDays >= 0 {
		flagOverrides.RetentionDays = flagRetentionDays
	}
	config.ApplyFlags(flagOverrides)

	if err := config.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	cfg := config.Get()

	logger.Init(cfg.LogDir)
	logger.SetLevel(cfg.LogLevel)

	logger.Infof("Starting imgcrawl %s...", config.Version)
	logger.Infof("Configuration:")
	logger.Infof("  Catalog URL: %s", cfg.CatalogURL)
	logger.Infof("  Watch Folder: %s", cfg.WatchFolder)
	logger.Infof("  Watch Site: %s", cfg.WatchSite)
	logger.Infof("  Dataset Version: %s", cfg.DatasetVersion)
	logger.Infof("  Poll Interval: %s", cfg.PollInterval)
	logger.Infof("  Max Results: %d", cfg.MaxResults)
	logger.Infof("  Request Timeout: %s", cfg.RequestTimeout)
	logger.Infof("  Ops Port: %s", cfg.OpsPort)
	logger.Infof("  Journal: %s", cfg.DatabasePath)
	if cfg.RetentionDays > 0 {
		logger.Infof("  Journal Retention: %d days", cfg.RetentionDays)
	} else {
		logger.Infof("  Journal Retention: disabled (no automatic pruning)")
	}
	if cfg.DryRun {
		logger.Infof("  DRY-RUN MODE: no patches will be sent to the catalog")
	}

	repo, err := db.NewRepository(cfg.DatabasePath)
	if err != nil {
		logger.Errorf("Failed to initialize journal database: %v", err)
		os.Exit(1)
	}

	eb := eventbus.NewEventBus(repo.DB)

	registry := prometheus.NewRegistry()
	metricsService := metrics.NewMetricsService(eb, registry)
	metricsService.Start()

	clk := clock.NewRealClock()

	notifierService := notifier.NewNotifier(eb, cfg.NotifyURLs, clk)
	notifierService.Start()

	catalogClient := catalog.NewRESTClient(cfg.CatalogURL, cfg.RequestTimeout)

	executor := services.NewScanExecutor(cfg.WatchSite, nil, clk)
	scheduler := services.NewScheduler(catalogClient, executor, eb, repo, clk, services.SchedulerConfig{
		WatchFolder:    cfg.WatchFolder,
		WatchSite:      cfg.WatchSite,
		DatasetVersion: cfg.DatasetVersion,
		PollInterval:   cfg.PollInterval,
		MaxResults:     cfg.MaxResults,
		RequestTimeout: cfg.RequestTimeout,
		DryRun:         cfg.DryRun,
	})

	maintenance := services.NewMaintenanceService(repo, cfg.RetentionDays)
	if err := maintenance.Start(); err != nil {
		logger.Errorf("Failed to schedule journal maintenance: %v", err)
	}

	opsServer := ops.NewServer(ops.ServerDeps{
		Scheduler: scheduler,
		Repo:      repo,
		Catalog:   catalogClient,
		Metrics:   metricsService.Handler(),
	})
	opsServer.Start(cfg.OpsPort)

	scheduler.Start()
	logger.Infof("imgcrawl %s started", config.Version)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Infof("Received signal %v, shutting down...", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Reverse order of startup. The scheduler stops first so no new
	// catalog writes begin once shutdown is underway.
	scheduler.Stop()
	maintenance.Stop()
	if err := opsServer.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Ops server shutdown error: %v", err)
	}
	eb.Shutdown()

	if err := repo.Close(); err != nil {
		logger.Errorf("Failed to close journal database: %v", err)
	}
	logger.Infof("imgcrawl shutdown complete")
}
