package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// Config holds all crawler configuration loaded from environment variables.
// Every field except CatalogURL has a sensible default.
type Config struct {
	// CatalogURL is the base URL of the dataset catalog REST service.
	// Required; the crawler refuses to start without it.
	CatalogURL string

	// WatchFolder is the catalog folder whose datasets are scanned (default: /LSST)
	WatchFolder string

	// WatchSite is the storage site this crawler verifies replicas at (default: NCSA)
	WatchSite string

	// DatasetVersion is the catalog version selector for searches (default: current)
	DatasetVersion string

	// PollInterval is the minimum cadence between scan cycles, measured from
	// the previous cycle's scheduled start (default: 5s)
	PollInterval time.Duration

	// MaxResults bounds how many unscanned datasets one cycle fetches (default: 1000).
	// Datasets beyond the bound stay UNSCANNED and are picked up next cycle.
	MaxResults int

	// RequestTimeout is the per-call timeout for catalog search and patch (default: 30s)
	RequestTimeout time.Duration

	// DryRun computes checksums and logs the would-be patch without calling
	// the catalog patch operation (default: false)
	DryRun bool

	// OpsPort is the listen port for the operator HTTP server (default: 3095)
	OpsPort string

	// LogLevel controls verbosity: "debug", "info", "warn", "error" (default: "info")
	LogLevel string

	// NotifyURLs are shoutrrr service URLs for operator alerts (comma-separated, optional)
	NotifyURLs []string

	// RetentionDays is how long journal entries are kept; 0 disables pruning (default: 90)
	RetentionDays int

	// DataDir is the directory for persistent data (journal database, logs)
	DataDir string

	// DatabasePath is the journal SQLite file (default: <DataDir>/imgcrawl.db)
	DatabasePath string

	// LogDir is the directory for log files (default: <DataDir>/logs)
	LogDir string
}

// Global singleton
var cfg *Config

// Load reads configuration from IMGCRAWL_* environment variables.
// Should be called once at startup. Returns an error for settings the
// crawler cannot run without; callers report it and exit non-zero.
func Load() (*Config, error) {
	dataDir := getEnvOrDefault("IMGCRAWL_DATA_DIR", "")
	if dataDir == "" {
		if info, err := os.Stat("/config"); err == nil && info.IsDir() {
			dataDir = "/config"
		} else if cwd, err := os.Getwd(); err == nil {
			dataDir = filepath.Join(cwd, "config")
		} else {
			dataDir = "./config"
		}
	}
	if absDataDir, err := filepath.Abs(dataDir); err == nil {
		dataDir = absDataDir
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create data directory %s: %w", dataDir, err)
	}

	dbPath := getEnvOrDefault("IMGCRAWL_DATABASE_PATH", "")
	if dbPath == "" {
		dbPath = filepath.Join(dataDir, "imgcrawl.db")
	}

	logDir := filepath.Join(dataDir, "logs")

	cfg = &Config{
		CatalogURL:     strings.TrimRight(getEnvOrDefault("IMGCRAWL_CATALOG_URL", ""), "/"),
		WatchFolder:    getEnvOrDefault("IMGCRAWL_WATCH_FOLDER", "/LSST"),
		WatchSite:      getEnvOrDefault("IMGCRAWL_WATCH_SITE", "NCSA"),
		DatasetVersion: getEnvOrDefault("IMGCRAWL_DATASET_VERSION", "current"),
		PollInterval:   getEnvDurationOrDefault("IMGCRAWL_POLL_INTERVAL", 5*time.Second),
		MaxResults:     getEnvIntOrDefault("IMGCRAWL_MAX_RESULTS", 1000),
		RequestTimeout: getEnvDurationOrDefault("IMGCRAWL_REQUEST_TIMEOUT", 30*time.Second),
		DryRun:         getEnvBoolOrDefault("IMGCRAWL_DRY_RUN", false),
		OpsPort:        getEnvOrDefault("IMGCRAWL_OPS_PORT", "3095"),
		LogLevel:       strings.ToLower(getEnvOrDefault("IMGCRAWL_LOG_LEVEL", "info")),
		NotifyURLs:     splitList(getEnvOrDefault("IMGCRAWL_NOTIFY_URLS", "")),
		RetentionDays:  getEnvIntOrDefault("IMGCRAWL_RETENTION_DAYS", 90),
		DataDir:        dataDir,
		DatabasePath:   dbPath,
		LogDir:         logDir,
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		cfg.LogLevel = "info"
	}

	return cfg, nil
}

// Validate checks settings that cannot be defaulted. Separate from Load so
// flag overrides can be applied in between.
func Validate() error {
	if cfg == nil {
		return fmt.Errorf("config not loaded")
	}
	if cfg.CatalogURL == "" {
		return fmt.Errorf("catalog URL is required (set IMGCRAWL_CATALOG_URL or --catalog-url)")
	}
	if cfg.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", cfg.PollInterval)
	}
	if cfg.MaxResults <= 0 {
		return fmt.Errorf("max results must be positive, got %d", cfg.MaxResults)
	}
	return nil
}

// Get returns the current configuration. Panics if Load() hasn't been called.
func Get() *Config {
	if cfg == nil {
		panic("config.Load() must be called before config.Get()")
	}
	return cfg
}

// SetForTesting allows tests to set the global config without calling Load().
func SetForTesting(c *Config) {
	cfg = c
}

// NewTestConfig returns a minimal Config suitable for unit tests.
func NewTestConfig() *Config {
	return &Config{
		CatalogURL:     "http://127.0.0.1:8180/rest-datacat-v1/r",
		WatchFolder:    "/LSST",
		WatchSite:      "NCSA",
		DatasetVersion: "current",
		PollInterval:   5 * time.Second,
		MaxResults:     1000,
		RequestTimeout: 30 * time.Second,
		OpsPort:        "3095",
		LogLevel:       "debug",
		RetentionDays:  90,
		DataDir:        "/tmp/imgcrawl-test",
		DatabasePath:   "/tmp/imgcrawl-test/imgcrawl.db",
		LogDir:         "/tmp/imgcrawl-test/logs",
	}
}

// FlagOverrides holds command-line flag values that override environment variables.
type FlagOverrides struct {
	CatalogURL     *string
	WatchFolder    *string
	WatchSite      *string
	DatasetVersion *string
	PollInterval   *time.Duration
	MaxResults     *int
	RequestTimeout *time.Duration
	DryRun         *bool
	OpsPort        *string
	LogLevel       *string
	NotifyURLs     *string
	RetentionDays  *int
	DataDir        *string
	DatabasePath   *string
}

// ApplyFlags applies command-line flag overrides to the configuration.
// Call after Load() and flag parsing; only set, non-empty values override.
func ApplyFlags(flags FlagOverrides) {
	if cfg == nil {
		return
	}

	if flags.CatalogURL != nil && *flags.CatalogURL != "" {
		cfg.CatalogURL = strings.TrimRight(*flags.CatalogURL, "/")
	}
	if flags.WatchFolder != nil && *flags.WatchFolder != "" {
		cfg.WatchFolder = *flags.WatchFolder
	}
	if flags.WatchSite != nil && *flags.WatchSite != "" {
		cfg.WatchSite = *flags.WatchSite
	}
	if flags.DatasetVersion != nil && *flags.DatasetVersion != "" {
		cfg.DatasetVersion = *flags.DatasetVersion
	}
	if flags.PollInterval != nil && *flags.PollInterval != 0 {
		cfg.PollInterval = *flags.PollInterval
	}
	if flags.MaxResults != nil && *flags.MaxResults != 0 {
		cfg.MaxResults = *flags.MaxResults
	}
	if flags.RequestTimeout != nil && *flags.RequestTimeout != 0 {
		cfg.RequestTimeout = *flags.RequestTimeout
	}
	if flags.DryRun != nil {
		cfg.DryRun = *flags.DryRun
	}
	if flags.OpsPort != nil && *flags.OpsPort != "" {
		cfg.OpsPort = *flags.OpsPort
	}
	if flags.LogLevel != nil && *flags.LogLevel != "" {
		cfg.LogLevel = strings.ToLower(*flags.LogLevel)
	}
	if flags.NotifyURLs != nil && *flags.NotifyURLs != "" {
		cfg.NotifyURLs = splitList(*flags.NotifyURLs)
	}
	if flags.RetentionDays != nil {
		cfg.RetentionDays = *flags.RetentionDays
	}
	if flags.DataDir != nil && *flags.DataDir != "" {
		cfg.DataDir = *flags.DataDir
	}
	if flags.DatabasePath != nil && *flags.DatabasePath != "" {
		cfg.DatabasePath = *flags.DatabasePath
	}
}

// splitList parses a comma-separated list, trimming whitespace and
// dropping empty items.
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// getEnvOrDefault returns the environment variable value or the default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvIntOrDefault returns the environment variable as an int or the default if not set/invalid.
func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

// getEnvDurationOrDefault returns the environment variable as a duration or
// the default if not set/invalid. Accepts Go duration strings like "5s", "2m".
func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvBoolOrDefault returns the environment variable as a bool or the default if not set.
// Accepts "true", "1", "yes" as true values (case-insensitive).
func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "true" || lower == "1" || lower == "yes"
	}
	return defaultValue
}
