package app

import (
	"errors"
	"net/url"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds runtime configuration for the application.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"60s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"45s"`
	AppMaxUploadBytes int64         `envconfig:"APP_MAX_UPLOAD_BYTES" default:"20971520"`
	AppRateLimit      int           `envconfig:"APP_RATE_LIMIT" default:"120"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	RedisAddr     string        `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	SessionSecret string        `envconfig:"SESSION_SECRET" required:"true"`
	SessionTTL    time.Duration `envconfig:"SESSION_TTL" default:"12h"`

	CSRFSecret string `envconfig:"CSRF_SECRET" required:"true"`
	// SealSecret keys the sealing of the catalog API cookie. Defaults to SESSION_SECRET.
	SealSecret string `envconfig:"SEAL_SECRET"`

	CatalogAPIURL      string        `envconfig:"CATALOG_API_URL" required:"true"`
	CatalogAPITimeout  time.Duration `envconfig:"CATALOG_API_TIMEOUT" default:"10s"`
	CatalogAPIUsername string        `envconfig:"CATALOG_API_USERNAME"`
	CatalogAPIPassword string        `envconfig:"CATALOG_API_PASSWORD"`

	SubmitGuardTTL   time.Duration `envconfig:"SUBMIT_GUARD_TTL" default:"10m"`
	SupplierCacheTTL time.Duration `envconfig:"SUPPLIER_CACHE_TTL" default:"5m"`
	SnapshotTTL      time.Duration `envconfig:"SNAPSHOT_TTL" default:"48h"`

	LowStockScanCron  string `envconfig:"LOW_STOCK_SCAN_CRON" default:"0 7 * * *"`
	ExportCron        string `envconfig:"EXPORT_CRON"`
	ExportFormat      string `envconfig:"EXPORT_FORMAT" default:"excel"`
	ExportDir         string `envconfig:"EXPORT_DIR" default:"./exports"`
	WorkerMetricsAddr string `envconfig:"WORKER_METRICS_ADDR"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if cfg.SessionSecret == "" {
		return nil, errors.New("session secret must be provided")
	}
	if cfg.CSRFSecret == "" {
		return nil, errors.New("csrf secret must be provided")
	}
	if u, err := url.Parse(cfg.CatalogAPIURL); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.New("catalog api url must be an absolute url")
	}
	if cfg.SealSecret == "" {
		cfg.SealSecret = cfg.SessionSecret
	}
	return &cfg, nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

// HasServiceAccount reports whether background jobs can sign in to the catalog API.
func (c *Config) HasServiceAccount() bool {
	return c != nil && c.CatalogAPIUsername != "" && c.CatalogAPIPassword != ""
}
