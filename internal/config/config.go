// Package config loads and validates the Pagewise configuration.
// Precedence: built-in defaults < YAML file < environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	pwerrors "github.com/pagewise-ai/pagewise/internal/errors"
	"github.com/pagewise-ai/pagewise/internal/store"
)

// EnvPrefix is the prefix for environment variable overrides.
const EnvPrefix = "PAGEWISE_"

// Config represents the complete Pagewise configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store"`
	Search   SearchConfig   `yaml:"search"`
	Embed    EmbedConfig    `yaml:"embeddings"`
	Reranker RerankerConfig `yaml:"reranker"`
	Rebuild  RebuildConfig  `yaml:"rebuild"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// StoreConfig configures the chunk store.
type StoreConfig struct {
	// Path is the SQLite database path (default: ./pagewise.db).
	Path string `yaml:"path"`
}

// SearchConfig configures the orchestrator and fusion.
type SearchConfig struct {
	// Alpha is the vector weight in score fusion (0-1, default: 0.65).
	Alpha float64 `yaml:"alpha"`

	// CandidatesPerIndex is the top-M fetched from each index (default: 50).
	CandidatesPerIndex int `yaml:"candidates_per_index"`

	// FuseTopN is the fused pool size handed to the reranker (default: 20).
	FuseTopN int `yaml:"fuse_top_n"`

	// DefaultTopK is the default result count (default: 10).
	DefaultTopK int `yaml:"default_top_k"`

	// MaxTopK caps the requested result count (default: 100).
	MaxTopK int `yaml:"max_top_k"`

	// IndexTimeout bounds each index search (default: 2s).
	IndexTimeout time.Duration `yaml:"index_timeout"`

	// StructuredBoost is the additive boost for entity matches (default: 0.1).
	StructuredBoost float64 `yaml:"structured_boost"`

	// BoostEnabled gates the structured boost signal (default: true).
	BoostEnabled bool `yaml:"boost_enabled"`

	// FilterPolicy is the missing-metadata policy: "strict" or "lenient"
	// (default: lenient).
	FilterPolicy string `yaml:"filter_policy"`
}

// EmbedConfig configures the embedding provider.
type EmbedConfig struct {
	// Provider selects the embedder: "static" or "service" (default: static).
	Provider string `yaml:"provider"`

	// Endpoint is the embedding service URL (service provider only).
	Endpoint string `yaml:"endpoint"`

	// Model is the embedding model alias.
	Model string `yaml:"model"`

	// BatchSize caps texts per embedding request (default: 32).
	BatchSize int `yaml:"batch_size"`

	// CacheSize is the query-embedding LRU size (default: 2000).
	CacheSize int `yaml:"cache_size"`

	// Timeout is the per-request timeout (default: 30s).
	Timeout time.Duration `yaml:"timeout"`
}

// RerankerConfig configures the cross-encoder client.
type RerankerConfig struct {
	// Enabled turns the reranker on (default: false; queries can still
	// opt in only when a client is configured).
	Enabled bool `yaml:"enabled"`

	// Endpoint is the scoring service URL.
	Endpoint string `yaml:"endpoint"`

	// Model is the cross-encoder model alias.
	Model string `yaml:"model"`

	// Timeout bounds the whole rerank phase (default: 10s).
	Timeout time.Duration `yaml:"timeout"`

	// BatchSize is documents per scoring request (default: 8).
	BatchSize int `yaml:"batch_size"`

	// Workers bounds concurrent scoring batches (default: 2).
	Workers int `yaml:"workers"`
}

// RebuildConfig configures generation rebuilds.
type RebuildConfig struct {
	// WatchEnabled turns on the store file watcher (default: true).
	WatchEnabled bool `yaml:"watch_enabled"`

	// Debounce coalesces write bursts before a rebuild (default: 2s).
	Debounce time.Duration `yaml:"debounce"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is the minimum log level (default: info).
	Level string `yaml:"level"`

	// FilePath enables file logging when set.
	FilePath string `yaml:"file_path"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Path: "./pagewise.db",
		},
		Search: SearchConfig{
			Alpha:              0.65,
			CandidatesPerIndex: 50,
			FuseTopN:           20,
			DefaultTopK:        10,
			MaxTopK:            100,
			IndexTimeout:       2 * time.Second,
			StructuredBoost:    0.1,
			BoostEnabled:       true,
			FilterPolicy:       string(store.DefaultFilterPolicy),
		},
		Embed: EmbedConfig{
			Provider:  "static",
			BatchSize: 32,
			CacheSize: 2000,
			Timeout:   30 * time.Second,
		},
		Reranker: RerankerConfig{
			Enabled:   false,
			Timeout:   10 * time.Second,
			BatchSize: 8,
			Workers:   2,
		},
		Rebuild: RebuildConfig{
			WatchEnabled: true,
			Debounce:     2 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads the config file (optional), applies environment overrides, and
// validates. An empty path skips the file and uses defaults plus env.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, pwerrors.New(pwerrors.ErrCodeInvalidConfig,
				fmt.Sprintf("parse config file %s: %v", path, err), err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv applies PAGEWISE_* environment overrides to the highest-traffic
// settings.
func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvPrefix + "STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv(EnvPrefix + "ALPHA"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Search.Alpha = f
		}
	}
	if v := os.Getenv(EnvPrefix + "FILTER_POLICY"); v != "" {
		cfg.Search.FilterPolicy = v
	}
	if v := os.Getenv(EnvPrefix + "EMBED_PROVIDER"); v != "" {
		cfg.Embed.Provider = v
	}
	if v := os.Getenv(EnvPrefix + "EMBED_ENDPOINT"); v != "" {
		cfg.Embed.Endpoint = v
	}
	if v := os.Getenv(EnvPrefix + "RERANKER_ENABLED"); v != "" {
		cfg.Reranker.Enabled = isTruthy(v)
	}
	if v := os.Getenv(EnvPrefix + "RERANKER_ENDPOINT"); v != "" {
		cfg.Reranker.Endpoint = v
	}
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func isTruthy(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	if c.Search.Alpha <= 0 || c.Search.Alpha > 1 {
		return pwerrors.New(pwerrors.ErrCodeInvalidConfig,
			fmt.Sprintf("search.alpha must be in (0, 1], got %g", c.Search.Alpha), nil)
	}
	if c.Search.FuseTopN < 1 {
		return pwerrors.New(pwerrors.ErrCodeInvalidConfig,
			fmt.Sprintf("search.fuse_top_n must be >= 1, got %d", c.Search.FuseTopN), nil)
	}
	if c.Search.DefaultTopK < 1 {
		return pwerrors.New(pwerrors.ErrCodeInvalidConfig,
			fmt.Sprintf("search.default_top_k must be >= 1, got %d", c.Search.DefaultTopK), nil)
	}
	if c.Search.MaxTopK < c.Search.DefaultTopK {
		return pwerrors.New(pwerrors.ErrCodeInvalidConfig,
			"search.max_top_k must be >= search.default_top_k", nil)
	}

	switch store.FilterPolicy(c.Search.FilterPolicy) {
	case store.FilterPolicyStrict, store.FilterPolicyLenient:
	default:
		return pwerrors.New(pwerrors.ErrCodeInvalidConfig,
			fmt.Sprintf("search.filter_policy must be %q or %q, got %q",
				store.FilterPolicyStrict, store.FilterPolicyLenient, c.Search.FilterPolicy), nil)
	}

	switch c.Embed.Provider {
	case "static", "service":
	default:
		return pwerrors.New(pwerrors.ErrCodeInvalidConfig,
			fmt.Sprintf("embeddings.provider must be \"static\" or \"service\", got %q", c.Embed.Provider), nil)
	}
	if c.Embed.Provider == "service" && c.Embed.Endpoint == "" {
		return pwerrors.New(pwerrors.ErrCodeInvalidConfig,
			"embeddings.endpoint is required for the service provider", nil)
	}

	if c.Reranker.Enabled && c.Reranker.Endpoint == "" {
		return pwerrors.New(pwerrors.ErrCodeInvalidConfig,
			"reranker.endpoint is required when the reranker is enabled", nil)
	}

	return nil
}

// FilterPolicy returns the validated filter policy as its typed form.
func (c *Config) FilterPolicy() store.FilterPolicy {
	return store.FilterPolicy(c.Search.FilterPolicy)
}
