package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment variable the config reads
const EnvPrefix = "IMGSCRAPER_"

// MaxConcurrency bounds how many images may load at once
const MaxConcurrency = 32

// Config holds all configuration options for the image scraper client
type Config struct {
	// Scrape backend connection
	Backend BackendConfig `yaml:"backend" json:"backend"`

	// Lazy-loading gallery behaviour
	Gallery GalleryConfig `yaml:"gallery" json:"gallery"`

	// Outgoing request budget towards the backend
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Proxy response cache
	Cache CacheConfig `yaml:"cache" json:"cache"`

	// Output settings
	Output OutputConfig `yaml:"output" json:"output"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`

	// Terminal UI settings
	UI UIConfig `yaml:"ui" json:"ui"`
}

// BackendConfig holds the scrape backend endpoint configuration
type BackendConfig struct {
	BaseURL   string        `yaml:"base_url" json:"base_url"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
	UserAgent string        `yaml:"user_agent" json:"user_agent"`
	Mode      string        `yaml:"mode" json:"mode"`
	// Retries is how many times a failed scrape, download or health check is
	// repeated. Zero keeps every failure final.
	Retries    int           `yaml:"retries" json:"retries"`
	RetryDelay time.Duration `yaml:"retry_delay" json:"retry_delay"`
}

// GalleryConfig holds pagination and loading configuration
type GalleryConfig struct {
	BatchSize        int           `yaml:"batch_size" json:"batch_size"`
	Concurrency      int           `yaml:"concurrency" json:"concurrency"`
	MinStartInterval time.Duration `yaml:"min_start_interval" json:"min_start_interval"`
	PreloadMargin    int           `yaml:"preload_margin" json:"preload_margin"`
	Columns          int           `yaml:"columns" json:"columns"`
	RowHeight        int           `yaml:"row_height" json:"row_height"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled           bool   `yaml:"enabled" json:"enabled"`
	Strategy          string `yaml:"strategy" json:"strategy"`
	RequestsPerMinute int    `yaml:"requests_per_minute" json:"requests_per_minute"`
	BurstSize         int    `yaml:"burst_size" json:"burst_size"`
}

// CacheConfig holds proxy cache configuration
type CacheConfig struct {
	Size int `yaml:"size" json:"size"`
}

// OutputConfig holds output directory configuration
type OutputConfig struct {
	BaseDirectory     string `yaml:"base_directory" json:"base_directory"`
	OverwriteExisting bool   `yaml:"overwrite_existing" json:"overwrite_existing"`
	WriteManifest     bool   `yaml:"write_manifest" json:"write_manifest"`
	ManifestFormat    string `yaml:"manifest_format" json:"manifest_format"`
	SnapshotDirectory string `yaml:"snapshot_directory" json:"snapshot_directory"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// UIConfig holds terminal UI preferences
type UIConfig struct {
	Theme   string `yaml:"theme" json:"theme"`
	NoColor bool   `yaml:"no_color" json:"no_color"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			BaseURL:    "http://localhost:5001",
			Timeout:    30 * time.Second,
			UserAgent:  "imgscraper/1.0",
			Mode:       "fast",
			Retries:    0,
			RetryDelay: 500 * time.Millisecond,
		},
		Gallery: GalleryConfig{
			BatchSize:        50,
			Concurrency:      3,
			MinStartInterval: 0,
			PreloadMargin:    200,
			Columns:          4,
			RowHeight:        240,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			Strategy:          "token_bucket",
			RequestsPerMinute: 600,
			BurstSize:         20,
		},
		Cache: CacheConfig{
			Size: 256,
		},
		Output: OutputConfig{
			BaseDirectory:     "./downloads",
			OverwriteExisting: false,
			WriteManifest:     true,
			ManifestFormat:    "json",
			SnapshotDirectory: "",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		UI: UIConfig{
			Theme: "neon",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	if v := getenv("BACKEND_URL"); v != "" {
		c.Backend.BaseURL = v
	}
	if v := getenv("BACKEND_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sBACKEND_TIMEOUT: %w", EnvPrefix, err))
		} else {
			c.Backend.Timeout = d
		}
	}
	if v := getenv("MODE"); v != "" {
		c.Backend.Mode = strings.ToLower(v)
	}
	if v := getenv("RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Backend.Retries = n
		} else {
			errs = append(errs, fmt.Errorf("%sRETRIES: invalid value %q", EnvPrefix, v))
		}
	}

	// Gallery
	if v := getenv("BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Gallery.BatchSize = n
		} else {
			errs = append(errs, fmt.Errorf("%sBATCH_SIZE: invalid value %q", EnvPrefix, v))
		}
	}
	if v := getenv("CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Gallery.Concurrency = n
		} else {
			errs = append(errs, fmt.Errorf("%sCONCURRENCY: invalid value %q", EnvPrefix, v))
		}
	}
	if v := getenv("MIN_START_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sMIN_START_INTERVAL: %w", EnvPrefix, err))
		} else {
			c.Gallery.MinStartInterval = d
		}
	}

	// Rate limiting
	if v := getenv("REQUESTS_PER_MINUTE"); v != "" {
		var val int
		fmt.Sscanf(v, "%d", &val)
		if val > 0 {
			c.RateLimit.RequestsPerMinute = val
		}
	}
	if v := getenv("RATE_LIMIT_ENABLED"); v != "" {
		c.RateLimit.Enabled = strings.ToLower(v) == "true"
	}

	if v := getenv("CACHE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Cache.Size = n
		}
	}

	// Output directory
	if v := getenv("OUTPUT_DIR"); v != "" {
		c.Output.BaseDirectory = v
	}
	if v := getenv("MANIFEST_FORMAT"); v != "" {
		c.Output.ManifestFormat = strings.ToLower(v)
	}

	// Logging
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := getenv("LOG_FILE"); v != "" {
		c.Logging.File = v
	}

	if v := getenv("NO_COLOR"); v != "" {
		c.UI.NoColor = strings.ToLower(v) == "true" || v == "1"
	}

	return errors.Join(errs...)
}

func getenv(key string) string {
	return os.Getenv(EnvPrefix + key)
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// DefaultConfigPath is where `config init` writes when no path is given
func DefaultConfigPath() string {
	return filepath.Join(os.Getenv("HOME"), ".config", "imgscraper", "config.yaml")
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".imgscraper.yaml",
		".imgscraper.yml",
		filepath.Join(home, ".config", "imgscraper", "config.yaml"),
		filepath.Join(home, ".config", "imgscraper", "config.yml"),
		filepath.Join(home, ".imgscraper.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	// Backend
	if c.Backend.BaseURL == "" {
		errs = append(errs, errors.New("backend base URL is required"))
	} else if u, err := url.Parse(c.Backend.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("backend base URL %q is not an absolute URL", c.Backend.BaseURL))
	}
	if c.Backend.Timeout <= 0 {
		errs = append(errs, errors.New("backend timeout must be positive"))
	}
	if m := strings.ToLower(c.Backend.Mode); m != "fast" && m != "deep" {
		errs = append(errs, errors.New("scrape mode must be fast or deep"))
	}
	if c.Backend.Retries < 0 || c.Backend.Retries > 10 {
		errs = append(errs, errors.New("retries must be between 0 and 10"))
	}
	if c.Backend.RetryDelay < 0 {
		errs = append(errs, errors.New("retry delay cannot be negative"))
	}

	// Gallery
	if c.Gallery.BatchSize <= 0 {
		errs = append(errs, errors.New("batch size must be positive"))
	}
	if c.Gallery.Concurrency <= 0 {
		errs = append(errs, errors.New("concurrency must be positive"))
	}
	if c.Gallery.Concurrency > MaxConcurrency {
		errs = append(errs, fmt.Errorf("concurrency should not exceed %d", MaxConcurrency))
	}
	if c.Gallery.MinStartInterval < 0 {
		errs = append(errs, errors.New("min start interval cannot be negative"))
	}
	if c.Gallery.PreloadMargin < 0 {
		errs = append(errs, errors.New("preload margin cannot be negative"))
	}
	if c.Gallery.Columns <= 0 || c.Gallery.RowHeight <= 0 {
		errs = append(errs, errors.New("gallery columns and row height must be positive"))
	}

	// Rate limiting
	if c.RateLimit.Enabled {
		if c.RateLimit.RequestsPerMinute <= 0 {
			errs = append(errs, errors.New("requests per minute must be positive"))
		}
		if c.RateLimit.BurstSize <= 0 {
			errs = append(errs, errors.New("burst size must be positive"))
		}
		switch c.RateLimit.Strategy {
		case "token_bucket", "sliding_window":
		default:
			errs = append(errs, fmt.Errorf("invalid rate limit strategy %q", c.RateLimit.Strategy))
		}
	}

	if c.Cache.Size < 0 {
		errs = append(errs, errors.New("cache size cannot be negative"))
	}

	// Output
	if c.Output.BaseDirectory == "" {
		errs = append(errs, errors.New("output directory is required"))
	}
	if f := strings.ToLower(c.Output.ManifestFormat); f != "json" && f != "yaml" {
		errs = append(errs, errors.New("manifest format must be json or yaml"))
	}

	// Logging
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration.
// Only flags the user actually set should be present in the map.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["backend"].(string); ok && v != "" {
		c.Backend.BaseURL = v
	}
	if v, ok := flags["timeout"].(time.Duration); ok && v > 0 {
		c.Backend.Timeout = v
	}
	if v, ok := flags["retries"].(int); ok && v >= 0 {
		c.Backend.Retries = v
	}
	if v, ok := flags["deep"].(bool); ok {
		if v {
			c.Backend.Mode = "deep"
		} else {
			c.Backend.Mode = "fast"
		}
	}
	if v, ok := flags["batch-size"].(int); ok && v > 0 {
		c.Gallery.BatchSize = v
	}
	if v, ok := flags["concurrency"].(int); ok && v > 0 {
		c.Gallery.Concurrency = v
	}
	if v, ok := flags["delay"].(time.Duration); ok && v >= 0 {
		c.Gallery.MinStartInterval = v
	}
	if v, ok := flags["output"].(string); ok && v != "" {
		c.Output.BaseDirectory = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := flags["no-color"].(bool); ok && v {
		c.UI.NoColor = true
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// .env files are optional
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".imgscraper.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
