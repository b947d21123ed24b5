// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/igboarchives/harvester/internal/harvest"
)

// Source identifiers with built-in defaults.
const (
	SourceUkpuru        = "ukpuru"
	SourceGIJones       = "gijones"
	SourceBritishMuseum = "british_museum"
)

// EnvConfigPath names the variable holding an optional config file path.
const EnvConfigPath = "HARVEST_CONFIG"

// Config captures all harvester configuration knobs loaded via Viper.
type Config struct {
	Logging LoggingConfig           `mapstructure:"logging"`
	HTTP    HTTPConfig              `mapstructure:"http"`
	Crawl   CrawlConfig             `mapstructure:"crawl"`
	Storage StorageConfig           `mapstructure:"storage"`
	Sources map[string]SourceConfig `mapstructure:"sources"`
	Publish PublishConfig           `mapstructure:"publish"`
	Notify  NotifyConfig            `mapstructure:"notify"`
	Index   IndexConfig             `mapstructure:"index"`
	Metrics MetricsConfig           `mapstructure:"metrics"`
}

// LoggingConfig toggles zap development features and an optional run log file.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	File        string `mapstructure:"file"`
}

// HTTPConfig bounds page and asset requests.
type HTTPConfig struct {
	PageTimeout  time.Duration `mapstructure:"page_timeout"`
	AssetTimeout time.Duration `mapstructure:"asset_timeout"`
}

// CrawlConfig sizes the worker pools.
type CrawlConfig struct {
	Concurrency         int `mapstructure:"concurrency"`
	ValidateConcurrency int `mapstructure:"validate_concurrency"`
	MaxPages            int `mapstructure:"max_pages"`
}

// StorageConfig roots the per-source data directories.
type StorageConfig struct {
	Root string `mapstructure:"root"`
}

// SourceConfig holds everything a single source needs.
type SourceConfig struct {
	Name            string        `mapstructure:"name"`
	BaseURL         string        `mapstructure:"base_url"`
	FilePrefix      string        `mapstructure:"file_prefix"`
	Delay           time.Duration `mapstructure:"delay"`
	UserAgent       string        `mapstructure:"user_agent"`
	InsecureTLS     bool          `mapstructure:"insecure_tls"`
	RespectRobots   bool          `mapstructure:"respect_robots"`
	EmptyPolicy     string        `mapstructure:"empty_policy"`
	ProbeDimensions bool          `mapstructure:"probe_dimensions"`
	CSVPath         string        `mapstructure:"csv_path"`
	DatasetID       string        `mapstructure:"dataset_id"`
	License         string        `mapstructure:"license"`
	RawDir          string        `mapstructure:"raw_dir"`
	CleanDir        string        `mapstructure:"clean_dir"`
}

// PublishConfig controls the dataset upload.
type PublishConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Bucket      string        `mapstructure:"bucket"`
	Prefix      string        `mapstructure:"prefix"`
	ProjectID   string        `mapstructure:"project_id"`
	Token       string        `mapstructure:"token"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	Backoff     time.Duration `mapstructure:"backoff"`
	// MaxBackoff switches to jittered exponential backoff capped at this
	// value when it exceeds Backoff.
	MaxBackoff  time.Duration `mapstructure:"max_backoff"`
}

// NotifyConfig holds the Pub/Sub topic announcing finished publications.
type NotifyConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// IndexConfig selects the completed-asset index backend. An empty DSN keeps
// the index in a manifest file beside the raw store.
type IndexConfig struct {
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

// MetricsConfig configures the Pushgateway target for run metrics.
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.file", "")
	v.SetDefault("http.page_timeout", 20*time.Second)
	v.SetDefault("http.asset_timeout", 15*time.Second)
	v.SetDefault("crawl.concurrency", 4)
	v.SetDefault("crawl.validate_concurrency", 8)
	v.SetDefault("crawl.max_pages", 0)
	v.SetDefault("storage.root", "data")

	v.SetDefault("publish.enabled", true)
	v.SetDefault("publish.bucket", "")
	v.SetDefault("publish.prefix", "")
	v.SetDefault("publish.project_id", "")
	v.SetDefault("publish.token", "")
	v.SetDefault("publish.max_attempts", 3)
	v.SetDefault("publish.backoff", 10*time.Second)
	v.SetDefault("publish.max_backoff", time.Duration(0))
	v.SetDefault("notify.project_id", "")
	v.SetDefault("notify.topic", "")
	v.SetDefault("index.dsn", "")
	v.SetDefault("index.table", "fetched_assets")
	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.job", "heritage_harvest")

	const botAgent = "IgboArchives-ScraperBot/1.0"
	setSourceDefaults(v, SourceUkpuru, map[string]any{
		"name":             "Ukpuru Blog",
		"base_url":         "https://blog.ukpuru.org/",
		"file_prefix":      "ukpuru",
		"delay":            200 * time.Millisecond,
		"user_agent":       botAgent,
		"insecure_tls":     false,
		"empty_policy":     string(harvest.KeepRegardless),
		"probe_dimensions": false,
		"csv_path":         "",
		"dataset_id":       "igbo-archives/ukpuru",
		"license":          "© Ukpuru Blog (Assumed)",
	})
	setSourceDefaults(v, SourceGIJones, map[string]any{
		"name":             "G.I. Jones Archive",
		"base_url":         "https://jonesarchive.siu.edu/",
		"file_prefix":      "gijones",
		"delay":            time.Second,
		"user_agent":       botAgent,
		"insecure_tls":     false,
		"empty_policy":     string(harvest.DropIfEmpty),
		"probe_dimensions": true,
		"csv_path":         "",
		"dataset_id":       "igbo-archives/gi-jones",
		"license":          "© G.I. Jones Estate (Handled by MAA Cambridge)",
	})
	setSourceDefaults(v, SourceBritishMuseum, map[string]any{
		"name":        "The British Museum",
		"base_url":    "https://www.britishmuseum.org/collection",
		"file_prefix": "bm",
		"delay":       time.Duration(0),
		"user_agent": "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
			"(KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
		"insecure_tls":     true,
		"empty_policy":     string(harvest.DropIfEmpty),
		"probe_dimensions": false,
		"csv_path":         "british_museum.csv",
		"dataset_id":       "igbo-archives/british-museum",
		"license":          "© The Trustees of the British Museum",
	})
}

func setSourceDefaults(v *viper.Viper, id string, values map[string]any) {
	for key, value := range values {
		v.SetDefault("sources."+id+"."+key, value)
	}
	v.SetDefault("sources."+id+".respect_robots", false)
	v.SetDefault("sources."+id+".raw_dir", "")
	v.SetDefault("sources."+id+".clean_dir", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Crawl.Concurrency <= 0 {
		return fmt.Errorf("crawl.concurrency must be > 0")
	}
	if c.Crawl.ValidateConcurrency <= 0 {
		return fmt.Errorf("crawl.validate_concurrency must be > 0")
	}
	if c.HTTP.PageTimeout <= 0 || c.HTTP.AssetTimeout <= 0 {
		return fmt.Errorf("http timeouts must be > 0")
	}
	if c.Storage.Root == "" {
		return fmt.Errorf("storage.root must be set")
	}
	if c.Publish.MaxAttempts <= 0 {
		return fmt.Errorf("publish.max_attempts must be > 0")
	}
	if c.Publish.Backoff < 0 || c.Publish.MaxBackoff < 0 {
		return fmt.Errorf("publish backoff values must be >= 0")
	}
	for id, src := range c.Sources {
		if src.Delay < 0 {
			return fmt.Errorf("sources.%s.delay must be >= 0", id)
		}
		if _, err := harvest.ParseEmptyPolicy(src.EmptyPolicy); err != nil {
			return fmt.Errorf("sources.%s.empty_policy: %w", id, err)
		}
	}
	return nil
}

// Source returns the configuration of one source with its data directories
// resolved under storage.root.
func (c Config) Source(id string) (SourceConfig, error) {
	src, ok := c.Sources[id]
	if !ok {
		return SourceConfig{}, fmt.Errorf("unknown source %q", id)
	}
	if src.RawDir == "" {
		src.RawDir = filepath.Join(c.Storage.Root, id, "raw")
	}
	if src.CleanDir == "" {
		src.CleanDir = filepath.Join(c.Storage.Root, id, "clean")
	}
	return src, nil
}

// PublishReady reports whether publishing has everything it needs.
func (c Config) PublishReady() bool {
	return c.Publish.Enabled && c.Publish.Token != "" && c.Publish.Bucket != ""
}
