package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Ingest    IngestConfig    `yaml:"ingest"`
	YouTube   YouTubeConfig   `yaml:"youtube"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
}

// DatabaseConfig selects the store backend.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "postgres"
	Path   string `yaml:"path"`   // sqlite file
	DSN    string `yaml:"dsn"`    // postgres connection string
}

// Target returns the path or DSN for the configured driver.
func (d DatabaseConfig) Target() string {
	if d.Driver == "postgres" {
		return d.DSN
	}
	return d.Path
}

// IngestConfig configures the polling cycle.
type IngestConfig struct {
	SearchQuery           string `yaml:"search_query"`
	PollIntervalMinutes   int    `yaml:"poll_interval_minutes"`
	Workers               int    `yaml:"workers"`
	FetchTimeout          string `yaml:"fetch_timeout"`
	EmbedTimeout          string `yaml:"embed_timeout"`
	StoreFailureThreshold int    `yaml:"store_failure_threshold"`
}

// PollInterval returns the poll interval as time.Duration.
func (i IngestConfig) PollInterval() time.Duration {
	return time.Duration(i.PollIntervalMinutes) * time.Minute
}

// ParseFetchTimeout returns the search timeout as time.Duration.
func (i IngestConfig) ParseFetchTimeout() time.Duration {
	d, err := time.ParseDuration(i.FetchTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// ParseEmbedTimeout returns the per-item embedding timeout as time.Duration.
func (i IngestConfig) ParseEmbedTimeout() time.Duration {
	d, err := time.ParseDuration(i.EmbedTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// YouTubeConfig configures the search client. APIKey is normally supplied via YOUTUBE_API_KEY.
type YouTubeConfig struct {
	APIKey     string `yaml:"api_key"`
	Endpoint   string `yaml:"endpoint"`
	MaxResults int    `yaml:"max_results"`
}

// EmbeddingConfig configures the vector producer.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"` // "openai", "local" or "hash"
	Model      string `yaml:"model"`
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Dimensions int    `yaml:"dimensions"`
	RateLimit  int    `yaml:"rate_limit"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "console" or "json"
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Driver: "sqlite", Path: "./tubeindex.db"},
		Ingest: IngestConfig{
			SearchQuery:           "rocket launch",
			PollIntervalMinutes:   10,
			Workers:               1,
			FetchTimeout:          "30s",
			EmbedTimeout:          "30s",
			StoreFailureThreshold: 5,
		},
		YouTube: YouTubeConfig{
			Endpoint:   "https://youtube.googleapis.com/youtube/v3/search",
			MaxResults: 25,
		},
		Embedding: EmbeddingConfig{
			Provider:  "hash",
			RateLimit: 1,
		},
		Server: ServerConfig{Port: 8080},
		Log:    LogConfig{Level: "info", Format: "console"},
	}
}

// Load reads .env, the YAML file at path (if any) and environment overrides.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides overrides config values with environment variables.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("TUBEINDEX_DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("TUBEINDEX_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("TUBEINDEX_DB_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("TUBEINDEX_SEARCH_QUERY"); v != "" {
		cfg.Ingest.SearchQuery = v
	}
	if v := os.Getenv("TUBEINDEX_POLL_INTERVAL_MINUTES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TUBEINDEX_POLL_INTERVAL_MINUTES: %w", err)
		}
		cfg.Ingest.PollIntervalMinutes = n
	}
	if v := os.Getenv("YOUTUBE_API_KEY"); v != "" {
		cfg.YouTube.APIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("TUBEINDEX_EMBEDDING_PROVIDER"); v != "" {
		cfg.Embedding.Provider = v
	}
	if v := os.Getenv("TUBEINDEX_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	return nil
}

// Validate checks the options the ingestion cycle depends on.
func (c *Config) Validate() error {
	if c.Ingest.SearchQuery == "" {
		return errors.New("config: ingest.search_query is required")
	}
	if c.Ingest.PollIntervalMinutes <= 0 {
		return fmt.Errorf("config: ingest.poll_interval_minutes must be > 0, got %d", c.Ingest.PollIntervalMinutes)
	}
	if c.Ingest.Workers < 1 {
		return fmt.Errorf("config: ingest.workers must be >= 1, got %d", c.Ingest.Workers)
	}
	if c.Ingest.StoreFailureThreshold < 0 {
		return fmt.Errorf("config: ingest.store_failure_threshold must be >= 0, got %d", c.Ingest.StoreFailureThreshold)
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return errors.New("config: database.path is required for sqlite")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return errors.New("config: database.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("config: unknown database.driver %q", c.Database.Driver)
	}

	switch c.Embedding.Provider {
	case "openai", "local", "hash":
	default:
		return fmt.Errorf("config: unknown embedding.provider %q", c.Embedding.Provider)
	}
	return nil
}
