// ABOUTME: Configuration loading from YAML and environment with storage backend selection
// ABOUTME: Builds one immutable Config at startup and provides the storage backend factory

package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/harper/nexifeed/internal/storage"
)

// Config is the complete runtime configuration. It is built once by Load
// and passed by value or pointer into component constructors.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	HTTP      HTTPConfig      `yaml:"http"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Events    EventsConfig    `yaml:"events"`
	NATS      NATSConfig      `yaml:"nats"`
	Auth      AuthConfig      `yaml:"auth"`
	Log       LogConfig       `yaml:"log"`
}

// StorageConfig selects and configures the storage backend.
type StorageConfig struct {
	// Backend is "sqlite" (default), "postgres", or "mongo".
	Backend string `yaml:"backend"`
	// DataDir holds the SQLite database. Supports ~ expansion.
	DataDir       string `yaml:"data_dir"`
	PostgresDSN   string `yaml:"postgres_dsn"`
	MongoURI      string `yaml:"mongo_uri"`
	MongoDatabase string `yaml:"mongo_database"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type FetchConfig struct {
	Timeout  time.Duration `yaml:"timeout"`
	MaxItems int           `yaml:"max_items"`
}

type SchedulerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Interval    time.Duration `yaml:"interval"`
	FeedTimeout time.Duration `yaml:"feed_timeout"`
}

type IngestConfig struct {
	Concurrency    int `yaml:"concurrency"`
	ImportMaxItems int `yaml:"import_max_items"`
}

type EventsConfig struct {
	QueueSize int `yaml:"queue_size"`
	Workers   int `yaml:"workers"`
}

// NATSConfig enables the message bus bridge when URL is set.
type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// AuthConfig maps bearer tokens to user IDs.
type AuthConfig struct {
	Tokens map[string]string `yaml:"tokens"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a Config populated with default values.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Backend:       DefaultBackend,
			MongoDatabase: DefaultMongoDatabase,
		},
		HTTP:      HTTPConfig{Addr: DefaultHTTPAddr},
		Fetch:     FetchConfig{Timeout: DefaultHTTPTimeout, MaxItems: DefaultMaxItems},
		Scheduler: SchedulerConfig{Enabled: true, Interval: DefaultSchedulerInterval, FeedTimeout: DefaultFeedTimeout},
		Ingest:    IngestConfig{Concurrency: DefaultConcurrency, ImportMaxItems: DefaultImportMaxItems},
		Events:    EventsConfig{QueueSize: DefaultEventQueueSize, Workers: DefaultEventWorkers},
		NATS:      NATSConfig{Subject: DefaultNATSSubject},
		Auth:      AuthConfig{Tokens: map[string]string{}},
		Log:       LogConfig{Level: "info", Format: "json"},
	}
}

// GetConfigPath returns the default config file path.
func GetConfigPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, _ := os.UserHomeDir()
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "nexifeed", "config.yaml")
}

// Load reads the YAML file at path (the default path when empty), applies
// NEXIFEED_* environment overrides, and validates the result. A missing
// file is not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = GetConfigPath()
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) error {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
		return nil
	}

	str("NEXIFEED_STORAGE_BACKEND", &c.Storage.Backend)
	str("NEXIFEED_DATA_DIR", &c.Storage.DataDir)
	str("NEXIFEED_POSTGRES_DSN", &c.Storage.PostgresDSN)
	str("NEXIFEED_MONGO_URI", &c.Storage.MongoURI)
	str("NEXIFEED_MONGO_DATABASE", &c.Storage.MongoDatabase)
	str("NEXIFEED_HTTP_ADDR", &c.HTTP.Addr)
	str("NEXIFEED_NATS_URL", &c.NATS.URL)
	str("NEXIFEED_NATS_SUBJECT", &c.NATS.Subject)
	str("NEXIFEED_LOG_LEVEL", &c.Log.Level)
	str("NEXIFEED_LOG_FORMAT", &c.Log.Format)

	if err := dur("NEXIFEED_FETCH_TIMEOUT", &c.Fetch.Timeout); err != nil {
		return err
	}
	if err := dur("NEXIFEED_SCHEDULER_INTERVAL", &c.Scheduler.Interval); err != nil {
		return err
	}
	if err := dur("NEXIFEED_FEED_TIMEOUT", &c.Scheduler.FeedTimeout); err != nil {
		return err
	}

	if v, ok := lookup("NEXIFEED_SCHEDULER_ENABLED"); ok && v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("NEXIFEED_SCHEDULER_ENABLED: %w", err)
		}
		c.Scheduler.Enabled = enabled
	}

	// NEXIFEED_AUTH_TOKENS is a comma separated list of token:user pairs.
	if v, ok := lookup("NEXIFEED_AUTH_TOKENS"); ok && v != "" {
		if c.Auth.Tokens == nil {
			c.Auth.Tokens = map[string]string{}
		}
		for _, pair := range strings.Split(v, ",") {
			token, user, found := strings.Cut(strings.TrimSpace(pair), ":")
			if !found {
				return fmt.Errorf("NEXIFEED_AUTH_TOKENS: malformed pair %q", pair)
			}
			c.Auth.Tokens[token] = user
		}
	}
	return nil
}

// Validate checks the configuration for values the components cannot use.
func (c *Config) Validate() error {
	switch c.GetBackend() {
	case "sqlite":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("storage.postgres_dsn is required for the postgres backend")
		}
	case "mongo":
		if c.Storage.MongoURI == "" {
			return fmt.Errorf("storage.mongo_uri is required for the mongo backend")
		}
	default:
		return fmt.Errorf("unknown backend: %q", c.Storage.Backend)
	}

	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be positive")
	}
	if c.Fetch.MaxItems <= 0 {
		return fmt.Errorf("fetch.max_items must be positive")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be positive")
	}
	if c.Scheduler.FeedTimeout <= 0 {
		return fmt.Errorf("scheduler.feed_timeout must be positive")
	}
	if c.Ingest.Concurrency <= 0 {
		return fmt.Errorf("ingest.concurrency must be positive")
	}
	if c.Ingest.ImportMaxItems <= 0 {
		return fmt.Errorf("ingest.import_max_items must be positive")
	}
	if c.Events.QueueSize <= 0 || c.Events.Workers <= 0 {
		return fmt.Errorf("events.queue_size and events.workers must be positive")
	}
	for token, user := range c.Auth.Tokens {
		if token == "" || user == "" {
			return fmt.Errorf("auth.tokens entries need both a token and a user")
		}
	}
	return nil
}

// GetBackend returns the configured backend, defaulting to "sqlite".
func (c *Config) GetBackend() string {
	if c.Storage.Backend == "" {
		return DefaultBackend
	}
	return c.Storage.Backend
}

// GetDataDir returns the configured data directory with ~ expanded,
// defaulting to the standard XDG data directory.
func (c *Config) GetDataDir() string {
	if c.Storage.DataDir == "" {
		return defaultDataDir()
	}
	return ExpandPath(c.Storage.DataDir)
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) string {
	if path == "" {
		return ""
	}
	if path == "~" {
		home, _ := os.UserHomeDir()
		return home
	}
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// OpenStorage creates a Store implementation based on the configured backend.
func (c *Config) OpenStorage(ctx context.Context) (storage.Store, error) {
	switch c.GetBackend() {
	case "sqlite":
		return storage.NewSQLiteStore(filepath.Join(c.GetDataDir(), DefaultDBFilename))
	case "postgres":
		return storage.NewPostgresStore(ctx, c.Storage.PostgresDSN)
	case "mongo":
		return storage.NewMongoStore(ctx, c.Storage.MongoURI, c.Storage.MongoDatabase)
	default:
		return nil, fmt.Errorf("unknown backend: %q", c.Storage.Backend)
	}
}

func defaultDataDir() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "."
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}
	return filepath.Join(dataDir, "nexifeed")
}
