// Package services wires the makanrag services together and exposes them
// through a single registry.
package services

import (
	"fmt"

	"github.com/makanlah/makanrag/internal/chunking"
	"github.com/makanlah/makanrag/internal/config"
	"github.com/makanlah/makanrag/internal/documents"
	"github.com/makanlah/makanrag/internal/embeddings"
	"github.com/makanlah/makanrag/internal/llm"
	"github.com/makanlah/makanrag/internal/places"
	"github.com/makanlah/makanrag/internal/rag"
	"github.com/makanlah/makanrag/internal/vectorstore"
	"github.com/makanlah/makanrag/internal/vision"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Registry provides access to all makanrag services.
// Use accessor methods to retrieve individual services.
type Registry interface {
	VectorStore() vectorstore.Store
	Embeddings() *embeddings.Service
	LLM() llm.Client
	Vision() vision.Analyzer
	Processor() *documents.Processor
	RAG() *rag.Service
	VisionRAG() *rag.VisionRAG
	Collector() *places.Collector

	// Close releases the registry's long-lived resources.
	Close() error
}

// Options configures the registry with service instances.
type Options struct {
	VectorStore vectorstore.Store
	Embeddings  *embeddings.Service
	LLM         llm.Client
	Vision      vision.Analyzer
	Processor   *documents.Processor
	RAG         *rag.Service
	VisionRAG   *rag.VisionRAG
	Collector   *places.Collector
}

// registry is the concrete implementation of Registry.
type registry struct {
	vectorStore vectorstore.Store
	embeddings  *embeddings.Service
	llm         llm.Client
	vision      vision.Analyzer
	processor   *documents.Processor
	rag         *rag.Service
	visionRAG   *rag.VisionRAG
	collector   *places.Collector
}

// NewRegistry creates a new service registry.
func NewRegistry(opts Options) Registry {
	return &registry{
		vectorStore: opts.VectorStore,
		embeddings:  opts.Embeddings,
		llm:         opts.LLM,
		vision:      opts.Vision,
		processor:   opts.Processor,
		rag:         opts.RAG,
		visionRAG:   opts.VisionRAG,
		collector:   opts.Collector,
	}
}

func (r *registry) VectorStore() vectorstore.Store { return r.vectorStore }
func (r *registry) Embeddings() *embeddings.Service { return r.embeddings }
func (r *registry) LLM() llm.Client                { return r.llm }
func (r *registry) Vision() vision.Analyzer        { return r.vision }
func (r *registry) Processor() *documents.Processor { return r.processor }
func (r *registry) RAG() *rag.Service              { return r.rag }
func (r *registry) VisionRAG() *rag.VisionRAG      { return r.visionRAG }
func (r *registry) Collector() *places.Collector   { return r.collector }

func (r *registry) Close() error {
	if r.vectorStore == nil {
		return nil
	}
	return r.vectorStore.Close()
}

// storeConfigs maps the loaded configuration onto both backend configs. The
// struct shapes differ: chromem sizes vectors with int, qdrant with uint64.
func storeConfigs(cfg *config.Config) (*vectorstore.ChromemConfig, *vectorstore.QdrantConfig) {
	chromemCfg := &vectorstore.ChromemConfig{
		Path:       cfg.VectorStore.Chromem.Path,
		Compress:   cfg.VectorStore.Chromem.Compress,
		Collection: cfg.VectorStore.Chromem.Collection,
		VectorSize: cfg.VectorStore.Chromem.VectorSize,
	}
	qdrantCfg := &vectorstore.QdrantConfig{
		Host:       cfg.VectorStore.Qdrant.Host,
		Port:       cfg.VectorStore.Qdrant.Port,
		Collection: cfg.VectorStore.Qdrant.Collection,
		VectorSize: uint64(cfg.VectorStore.Qdrant.VectorSize),
		UseTLS:     cfg.VectorStore.Qdrant.UseTLS,
	}
	return chromemCfg, qdrantCfg
}

// Build constructs the full service graph from configuration.
func Build(cfg *config.Config, logger *zap.Logger) (Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	chromemCfg, qdrantCfg := storeConfigs(cfg)
	store, err := vectorstore.NewStore(cfg.VectorStore.Provider, chromemCfg, qdrantCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("building vector store: %w", err)
	}

	embedder, err := embeddings.NewService(embeddings.Config{
		BaseURL: cfg.Embeddings.BaseURL,
		Model:   cfg.Embeddings.Model,
		APIKey:  cfg.Embeddings.APIKey,
		Timeout: cfg.Embeddings.Timeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("building embeddings service: %w", err)
	}

	llmClient, err := llm.NewOpenAIClient(llm.Config{
		BaseURL:           cfg.LLM.BaseURL,
		Model:             cfg.LLM.Model,
		APIKey:            cfg.LLM.APIKey,
		Timeout:           cfg.LLM.Timeout,
		MaxTokens:         cfg.LLM.MaxTokens,
		Temperature:       cfg.LLM.Temperature,
		RequestsPerSecond: cfg.LLM.RequestsPerSecond,
		MaxRetries:        cfg.LLM.MaxRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("building llm client: %w", err)
	}

	analyzer, err := vision.NewOpenAIAnalyzer(vision.Config{
		BaseURL: cfg.Vision.BaseURL,
		Model:   cfg.Vision.Model,
		APIKey:  cfg.Vision.APIKey,
		Timeout: cfg.Vision.Timeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("building vision analyzer: %w", err)
	}

	processor := documents.NewProcessor(llmClient, chunking.NewStrategy(chunking.DefaultMaxChunkSize), logger)

	ragService := rag.NewService(processor, embedder, store, rag.Config{
		BatchSize:     cfg.Indexing.BatchSize,
		BatchCooldown: cfg.Indexing.Cooldown,
		DefaultTopK:   cfg.Retrieval.TopK,
	}, logger)

	visionRAG := rag.NewVisionRAG(analyzer, ragService, llmClient, logger)

	var collector *places.Collector
	if cfg.Places.APIKey != "" {
		var cache places.Cache
		if cfg.Places.RedisAddr != "" {
			cache = places.NewRedisCache(redis.NewClient(&redis.Options{
				Addr:     cfg.Places.RedisAddr,
				Password: cfg.Places.RedisPassword,
				DB:       cfg.Places.RedisDB,
			}))
		}

		fetcher, err := places.NewFetcher(places.Config{
			BaseURL:       cfg.Places.BaseURL,
			APIKey:        cfg.Places.APIKey,
			APIVersion:    cfg.Places.APIVersion,
			Timeout:       cfg.Places.Timeout,
			SearchLimit:   cfg.Places.SearchLimit,
			MinRating:     cfg.Places.MinRating,
			MinPopularity: cfg.Places.MinPopularity,
		}, cache, logger)
		if err != nil {
			return nil, fmt.Errorf("building places fetcher: %w", err)
		}
		collector = places.NewCollector(fetcher, cache, nil, logger)
	}

	return NewRegistry(Options{
		VectorStore: store,
		Embeddings:  embedder,
		LLM:         llmClient,
		Vision:      analyzer,
		Processor:   processor,
		RAG:         ragService,
		VisionRAG:   visionRAG,
		Collector:   collector,
	}), nil
}
