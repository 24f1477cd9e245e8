package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "chromem", cfg.VectorStore.Provider)
	assert.Equal(t, "restaurants", cfg.VectorStore.Chromem.Collection)
	assert.Equal(t, 1536, cfg.VectorStore.Chromem.VectorSize)
	assert.Equal(t, "localhost", cfg.VectorStore.Qdrant.Host)
	assert.Equal(t, 6334, cfg.VectorStore.Qdrant.Port)

	assert.Equal(t, "text-embedding-3-small", cfg.Embeddings.Model)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, "gpt-4o", cfg.Vision.Model)
	assert.Equal(t, "2025-06-17", cfg.Places.APIVersion)

	assert.Equal(t, 10, cfg.Indexing.BatchSize)
	assert.Equal(t, time.Second, cfg.Indexing.Cooldown)
	assert.Equal(t, 3, cfg.Retrieval.TopK)

	require.NoError(t, cfg.Validate())
}

func TestLoadFromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
vectorstore:
  provider: qdrant
  qdrant:
    host: qdrant.internal
    port: 7001
embeddings:
  api_key: sk-embed
indexing:
  batch_size: 5
  cooldown: 2s
retrieval:
  top_k: 7
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "qdrant", cfg.VectorStore.Provider)
	assert.Equal(t, "qdrant.internal", cfg.VectorStore.Qdrant.Host)
	assert.Equal(t, 7001, cfg.VectorStore.Qdrant.Port)
	assert.Equal(t, "sk-embed", cfg.Embeddings.APIKey)
	assert.Equal(t, 5, cfg.Indexing.BatchSize)
	assert.Equal(t, 2*time.Second, cfg.Indexing.Cooldown)
	assert.Equal(t, 7, cfg.Retrieval.TopK)

	// Untouched sections keep their defaults.
	assert.Equal(t, "restaurants", cfg.VectorStore.Qdrant.Collection)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm:\n  model: gpt-4o-mini\n"), 0600))

	t.Setenv("MAKANRAG_LLM_MODEL", "gpt-4.1-mini")
	t.Setenv("MAKANRAG_LLM_API_KEY", "sk-from-env")
	t.Setenv("MAKANRAG_RETRIEVAL_TOP_K", "5")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "gpt-4.1-mini", cfg.LLM.Model)
	assert.Equal(t, "sk-from-env", cfg.LLM.APIKey)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "chromem", cfg.VectorStore.Provider)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("vectorstore: [unterminated"), 0600))

	_, err := Load(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown provider", func(c *Config) { c.VectorStore.Provider = "pinecone" }},
		{"zero batch size", func(c *Config) { c.Indexing.BatchSize = -1 }},
		{"negative cooldown", func(c *Config) { c.Indexing.Cooldown = -time.Second }},
		{"zero top_k", func(c *Config) { c.Retrieval.TopK = -3 }},
		{"qdrant port out of range", func(c *Config) { c.VectorStore.Qdrant.Port = 70000 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}
