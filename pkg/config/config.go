package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/glossa-app/glossa/pkg/models"
)

// Config holds all glossa configuration.
type Config struct {
	Listen      string            `yaml:"listen"`
	Store       StoreConfig       `yaml:"store"`
	Cache       CacheConfig       `yaml:"cache"`
	Retry       RetryConfig       `yaml:"retry"`
	Coordinator CoordinatorConfig `yaml:"coordinator"`
	Backends    BackendsConfig    `yaml:"backends"`
	Ledger      LedgerConfig      `yaml:"ledger"`
}

// Store kinds.
const (
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// StoreConfig selects and configures the backing key-value store.
type StoreConfig struct {
	Kind          string `yaml:"kind"`
	Path          string `yaml:"path"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	KeyPrefix     string `yaml:"key_prefix"`
	QuotaBytes    int64  `yaml:"quota_bytes"`
}

// NamespaceConfig bounds one cache namespace. Zero and negative values are
// accepted: a TTL of zero or less expires entries immediately and
// MaxEntries of zero or less disables the size bound.
type NamespaceConfig struct {
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
}

// CacheConfig controls the result cache.
type CacheConfig struct {
	Article             NamespaceConfig `yaml:"article"`
	Translation         NamespaceConfig `yaml:"translation"`
	Processed           NamespaceConfig `yaml:"processed"`
	Vocabulary          NamespaceConfig `yaml:"vocabulary"`
	MaintenanceInterval time.Duration   `yaml:"maintenance_interval"`
}

// Namespaces returns the per-namespace settings keyed by namespace.
func (c CacheConfig) Namespaces() map[models.Namespace]NamespaceConfig {
	return map[models.Namespace]NamespaceConfig{
		models.NamespaceArticle:     c.Article,
		models.NamespaceTranslation: c.Translation,
		models.NamespaceProcessed:   c.Processed,
		models.NamespaceVocabulary:  c.Vocabulary,
	}
}

// RetryConfig controls per-backend retries.
type RetryConfig struct {
	MaxRetries int           `yaml:"max_retries"`
	BaseDelay  time.Duration `yaml:"base_delay"`
}

// CoordinatorConfig controls backend selection.
type CoordinatorConfig struct {
	AvailabilityTTL time.Duration `yaml:"availability_ttl"`
	// DefaultOrder is the fallback chain for capabilities without an entry
	// in Preferences.
	DefaultOrder []models.BackendID                       `yaml:"default_order"`
	Preferences  map[models.Capability][]models.BackendID `yaml:"preferences"`
}

// BackendsConfig configures each AI backend.
type BackendsConfig struct {
	Local LocalConfig `yaml:"local"`
	Cloud CloudConfig `yaml:"cloud"`
}

// LocalConfig configures the local inference server.
type LocalConfig struct {
	Enabled bool          `yaml:"enabled"`
	URL     string        `yaml:"url"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// CloudConfig configures the OpenAI-compatible API.
type CloudConfig struct {
	Enabled           bool          `yaml:"enabled"`
	URL               string        `yaml:"url"`
	APIKey            string        `yaml:"api_key"`
	Model             string        `yaml:"model"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
}

// LedgerConfig controls the attempt ledger.
type LedgerConfig struct {
	Enabled       bool   `yaml:"enabled"`
	DBPath        string `yaml:"db_path"`
	RetentionDays int    `yaml:"retention_days"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen: ":8080",
		Store: StoreConfig{
			Kind:       StoreSQLite,
			Path:       "glossa.db",
			RedisAddr:  "localhost:6379",
			KeyPrefix:  "glossa:",
			QuotaBytes: 10 << 20,
		},
		Cache: CacheConfig{
			Article:             NamespaceConfig{TTL: 24 * time.Hour, MaxEntries: 100},
			Translation:         NamespaceConfig{TTL: 7 * 24 * time.Hour, MaxEntries: 5000},
			Processed:           NamespaceConfig{TTL: 6 * time.Hour, MaxEntries: 500},
			Vocabulary:          NamespaceConfig{TTL: 24 * time.Hour, MaxEntries: 1000},
			MaintenanceInterval: 10 * time.Minute,
		},
		Retry: RetryConfig{
			MaxRetries: 3,
			BaseDelay:  time.Second,
		},
		Coordinator: CoordinatorConfig{
			AvailabilityTTL: 30 * time.Second,
			DefaultOrder:    []models.BackendID{models.BackendLocal, models.BackendCloud},
		},
		Backends: BackendsConfig{
			Local: LocalConfig{
				Enabled: true,
				URL:     "http://localhost:11434",
				Model:   "llama3.2",
				Timeout: 2 * time.Minute,
			},
			Cloud: CloudConfig{
				Enabled:           true,
				URL:               "https://api.openai.com/v1",
				Model:             "gpt-4o-mini",
				Timeout:           60 * time.Second,
				RequestsPerSecond: 5,
				Burst:             10,
			},
		},
		Ledger: LedgerConfig{
			Enabled:       true,
			DBPath:        "glossa-ledger.db",
			RetentionDays: 30,
		},
	}
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault loads path when it is set and returns the defaults
// otherwise. The cloud API key falls back to OPENAI_API_KEY.
func LoadOrDefault(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = Load(path); err != nil {
			return nil, err
		}
	}
	if cfg.Backends.Cloud.APIKey == "" {
		cfg.Backends.Cloud.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	return cfg, nil
}
