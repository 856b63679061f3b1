package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pwerrors "github.com/pagewise-ai/pagewise/internal/errors"
	"github.com/pagewise-ai/pagewise/internal/store"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 0.65, cfg.Search.Alpha)
	assert.Equal(t, "static", cfg.Embed.Provider)
	assert.Equal(t, store.FilterPolicyLenient, cfg.FilterPolicy())
	assert.False(t, cfg.Reranker.Enabled)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))

	require.NoError(t, err)
	assert.Equal(t, Default().Search.Alpha, cfg.Search.Alpha)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
search:
  alpha: 0.8
  index_timeout: 5s
embeddings:
  provider: service
  endpoint: http://localhost:9999
reranker:
  enabled: true
  endpoint: http://localhost:9998
`), 0o644))

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, 0.8, cfg.Search.Alpha)
	assert.Equal(t, 5*time.Second, cfg.Search.IndexTimeout)
	assert.Equal(t, "service", cfg.Embed.Provider)
	assert.True(t, cfg.Reranker.Enabled)

	// Untouched sections keep their defaults.
	assert.Equal(t, 50, cfg.Search.CandidatesPerIndex)
}

func TestLoad_MalformedFileRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("search: [not a map"), 0o644))

	_, err := Load(path)

	require.Error(t, err)
	assert.Equal(t, pwerrors.ErrCodeInvalidConfig, pwerrors.GetCode(err))
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv(EnvPrefix+"ALPHA", "0.9")
	t.Setenv(EnvPrefix+"FILTER_POLICY", "strict")
	t.Setenv(EnvPrefix+"RERANKER_ENABLED", "true")
	t.Setenv(EnvPrefix+"RERANKER_ENDPOINT", "http://localhost:9991")

	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, 0.9, cfg.Search.Alpha)
	assert.Equal(t, store.FilterPolicyStrict, cfg.FilterPolicy())
	assert.True(t, cfg.Reranker.Enabled)
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"alpha above one", func(c *Config) { c.Search.Alpha = 1.5 }},
		{"alpha zero", func(c *Config) { c.Search.Alpha = 0 }},
		{"fuse_top_n zero", func(c *Config) { c.Search.FuseTopN = 0 }},
		{"default_top_k zero", func(c *Config) { c.Search.DefaultTopK = 0 }},
		{"max below default", func(c *Config) { c.Search.MaxTopK = 5; c.Search.DefaultTopK = 10 }},
		{"unknown filter policy", func(c *Config) { c.Search.FilterPolicy = "maybe" }},
		{"unknown embed provider", func(c *Config) { c.Embed.Provider = "quantum" }},
		{"service provider without endpoint", func(c *Config) { c.Embed.Provider = "service" }},
		{"reranker enabled without endpoint", func(c *Config) { c.Reranker.Enabled = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()

			require.Error(t, err)
			assert.Equal(t, pwerrors.ErrCodeInvalidConfig, pwerrors.GetCode(err))
		})
	}
}
