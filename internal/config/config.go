// Package config loads scraper configuration from the environment, with
// an optional YAML file for per-retailer settings.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/JoshuaVanStraaten/retailer-scrapers/internal/retailer"
)

// Config is the full runtime configuration.
type Config struct {
	Logging   LoggingConfig             `yaml:"logging"`
	Storage   StorageConfig             `yaml:"storage"`
	Catalog   CatalogConfig             `yaml:"catalog"`
	Metrics   MetricsConfig             `yaml:"metrics"`
	LedgerDir string                    `yaml:"ledger_dir"`
	BackupDir string                    `yaml:"backup_dir"`
	Backup    bool                      `yaml:"backup"`
	Retailers map[string]RetailerConfig `yaml:"retailers"`
}

type LoggingConfig struct {
	Format string `yaml:"format"` // "json" | "text"
	Level  string `yaml:"level"`  // "debug" | "info" | "warn" | "error"
}

type StorageConfig struct {
	Backend    string `yaml:"backend"` // "local" | "gcs" | "s3"
	LocalDir   string `yaml:"local_dir"`
	GCSBucket  string `yaml:"gcs_bucket"`
	S3Bucket   string `yaml:"s3_bucket"`
	S3Endpoint string `yaml:"s3_endpoint"`
	S3Region   string `yaml:"s3_region"`
}

type CatalogConfig struct {
	PostgresDSN string `yaml:"dsn"`
	BatchSize   int    `yaml:"batch_size"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// RetailerConfig holds one retailer's run parameters. Zero values fall
// back to the retailer's defaults at load time.
type RetailerConfig struct {
	BaseURL        string `yaml:"base_url"`
	PageSize       int    `yaml:"page_size"`
	StartPage      int    `yaml:"start_page"`
	EndPage        int    `yaml:"end_page"`
	Workers        int    `yaml:"workers"`
	MaxAttempts    int    `yaml:"max_attempts"`
	MinIntervalSec int    `yaml:"min_interval_seconds"`
	WindowStart    string `yaml:"window_start"` // "HH:MM" UTC, empty = always allowed
	WindowEnd      string `yaml:"window_end"`
	PlaceholderURL string `yaml:"placeholder_url"`
}

// MinInterval returns the inter-request throttle as a duration.
func (c RetailerConfig) MinInterval() time.Duration {
	return time.Duration(c.MinIntervalSec) * time.Second
}

// Load builds the configuration from the environment, then overlays the
// YAML file at path if one is given.
func Load(path string) (Config, error) {
	cfg := Config{
		Logging: LoggingConfig{
			Format: getenvDefault("LOG_FORMAT", "text"),
			Level:  getenvDefault("LOG_LEVEL", "info"),
		},
		Storage: StorageConfig{
			Backend:    getenvDefault("STORAGE_BACKEND", "local"),
			LocalDir:   getenvDefault("STORAGE_LOCAL_DIR", "./data/images"),
			GCSBucket:  getenvDefault("STORAGE_GCS_BUCKET", "product_images"),
			S3Bucket:   os.Getenv("STORAGE_S3_BUCKET"),
			S3Endpoint: os.Getenv("STORAGE_S3_ENDPOINT"),
			S3Region:   os.Getenv("STORAGE_S3_REGION"),
		},
		Catalog: CatalogConfig{
			PostgresDSN: os.Getenv("CATALOG_DSN"),
			BatchSize:   parseInt(getenvDefault("CATALOG_BATCH_SIZE", "500")),
		},
		Metrics: MetricsConfig{
			Enabled: os.Getenv("METRICS_ENABLED") == "true",
			Address: getenvDefault("METRICS_ADDRESS", ":9090"),
		},
		LedgerDir: getenvDefault("LEDGER_DIR", "./data"),
		BackupDir: getenvDefault("BACKUP_DIR", "./data/backup"),
		Backup:    os.Getenv("LEDGER_BACKUP") != "false",
		Retailers: make(map[string]RetailerConfig),
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	for _, r := range retailer.All() {
		rc := cfg.Retailers[r.Slug()]
		applyDefaults(&rc, r)
		cfg.Retailers[r.Slug()] = rc
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyDefaults fills zero values with the retailer's known parameters.
func applyDefaults(rc *RetailerConfig, r retailer.Retailer) {
	if rc.PageSize == 0 {
		rc.PageSize = r.DefaultPageSize()
	}
	if rc.EndPage == 0 {
		rc.EndPage = rc.StartPage + 49
	}
	if rc.Workers == 0 {
		rc.Workers = 4
	}
	if rc.MaxAttempts == 0 {
		rc.MaxAttempts = 3
	}
	if rc.MinIntervalSec == 0 {
		if r == retailer.PickNPay {
			rc.MinIntervalSec = 10
		} else {
			rc.MinIntervalSec = 5
		}
	}
	if rc.WindowStart == "" && rc.WindowEnd == "" && r == retailer.PickNPay {
		// The PnP site throttles aggressively outside the early-morning
		// crawl window.
		rc.WindowStart, rc.WindowEnd = "04:00", "08:45"
	}
}

// Validate rejects configuration the pipeline cannot run with. A
// validation failure is fatal for the whole process.
func (c Config) Validate() error {
	switch c.Storage.Backend {
	case "local", "gcs", "s3":
	default:
		return fmt.Errorf("storage backend %q: must be local, gcs, or s3", c.Storage.Backend)
	}
	if c.LedgerDir == "" {
		return fmt.Errorf("ledger_dir must be set")
	}
	if c.Catalog.BatchSize < 1 {
		return fmt.Errorf("catalog batch_size %d: must be positive", c.Catalog.BatchSize)
	}

	for slug, rc := range c.Retailers {
		if rc.BaseURL != "" {
			u, err := url.Parse(rc.BaseURL)
			if err != nil {
				return fmt.Errorf("retailer %s: base_url: %w", slug, err)
			}
			if u.Scheme != "http" && u.Scheme != "https" {
				return fmt.Errorf("retailer %s: base_url %q: unsupported scheme", slug, rc.BaseURL)
			}
		}
		if rc.StartPage < 0 || rc.EndPage < rc.StartPage {
			return fmt.Errorf("retailer %s: page range [%d, %d] is invalid", slug, rc.StartPage, rc.EndPage)
		}
		if rc.Workers < 1 {
			return fmt.Errorf("retailer %s: workers %d: must be positive", slug, rc.Workers)
		}
		if (rc.WindowStart == "") != (rc.WindowEnd == "") {
			return fmt.Errorf("retailer %s: window_start and window_end must be set together", slug)
		}
	}
	return nil
}

func getenvDefault(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func parseInt(v string) int {
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return parsed
}
