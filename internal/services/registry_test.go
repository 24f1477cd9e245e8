package services

import (
	"path/filepath"
	"testing"

	"github.com/makanlah/makanrag/internal/config"
	"github.com/makanlah/makanrag/internal/documents"
	"github.com/makanlah/makanrag/internal/rag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.VectorStore.Chromem.Path = filepath.Join(t.TempDir(), "vectorstore")
	cfg.Embeddings.APIKey = "sk-embed"
	cfg.LLM.APIKey = "sk-llm"
	cfg.Vision.APIKey = "sk-vision"
	return cfg
}

func TestBuild(t *testing.T) {
	reg, err := Build(testConfig(t), nil)
	require.NoError(t, err)
	defer reg.Close()

	assert.NotNil(t, reg.VectorStore())
	assert.NotNil(t, reg.Embeddings())
	assert.NotNil(t, reg.LLM())
	assert.NotNil(t, reg.Vision())
	assert.NotNil(t, reg.Processor())
	assert.NotNil(t, reg.RAG())
	assert.NotNil(t, reg.VisionRAG())

	// Without a Foursquare key there is nothing to collect with.
	assert.Nil(t, reg.Collector())
}

func TestBuildWithPlaces(t *testing.T) {
	cfg := testConfig(t)
	cfg.Places.APIKey = "fsq-key"

	reg, err := Build(cfg, nil)
	require.NoError(t, err)
	defer reg.Close()

	assert.NotNil(t, reg.Collector())
}

func TestBuildRejectsUnknownProvider(t *testing.T) {
	cfg := testConfig(t)
	cfg.VectorStore.Provider = "pinecone"

	_, err := Build(cfg, nil)
	require.Error(t, err)
}

func TestStoreConfigs(t *testing.T) {
	cfg := config.Default()
	cfg.VectorStore.Chromem.Path = "/tmp/vs"
	cfg.VectorStore.Qdrant.Host = "qdrant.internal"
	cfg.VectorStore.Qdrant.VectorSize = 768

	chromemCfg, qdrantCfg := storeConfigs(cfg)

	assert.Equal(t, "/tmp/vs", chromemCfg.Path)
	assert.Equal(t, 1536, chromemCfg.VectorSize)
	assert.Equal(t, "qdrant.internal", qdrantCfg.Host)
	assert.Equal(t, uint64(768), qdrantCfg.VectorSize)
	assert.Equal(t, "restaurants", qdrantCfg.Collection)
}

func TestNewRegistryAccessors(t *testing.T) {
	processor := documents.NewProcessor(nil, nil, nil)
	ragService := rag.NewService(processor, nil, nil, rag.Config{}, nil)

	reg := NewRegistry(Options{
		Processor: processor,
		RAG:       ragService,
	})

	assert.Same(t, processor, reg.Processor())
	assert.Same(t, ragService, reg.RAG())
	assert.Nil(t, reg.VectorStore())
	require.NoError(t, reg.Close())
}
