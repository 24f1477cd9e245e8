// Package config provides configuration loading for makanrag.
//
// Configuration is loaded from a YAML file, then overridden by environment
// variables. Defaults cover everything except API credentials.
package config

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig indicates configuration that fails validation.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config holds the complete makanrag configuration.
type Config struct {
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	LLM         LLMConfig         `koanf:"llm"`
	Vision      VisionConfig      `koanf:"vision"`
	Places      PlacesConfig      `koanf:"places"`
	Indexing    IndexingConfig    `koanf:"indexing"`
	Retrieval   RetrievalConfig   `koanf:"retrieval"`
}

// VectorStoreConfig selects and configures the vector store backend.
type VectorStoreConfig struct {
	// Provider selects the backend: "chromem" (embedded, default) or
	// "qdrant".
	Provider string `koanf:"provider"`

	Chromem ChromemConfig `koanf:"chromem"`
	Qdrant  QdrantConfig  `koanf:"qdrant"`
}

// ChromemConfig holds settings for the embedded chromem backend.
type ChromemConfig struct {
	Path       string `koanf:"path"`
	Compress   bool   `koanf:"compress"`
	Collection string `koanf:"collection"`
	VectorSize int    `koanf:"vector_size"`
}

// QdrantConfig holds settings for the Qdrant gRPC backend.
type QdrantConfig struct {
	Host       string `koanf:"host"`
	Port       int    `koanf:"port"`
	Collection string `koanf:"collection"`
	VectorSize int    `koanf:"vector_size"`
	UseTLS     bool   `koanf:"use_tls"`
}

// EmbeddingsConfig holds embedding provider settings.
type EmbeddingsConfig struct {
	BaseURL string        `koanf:"base_url"`
	Model   string        `koanf:"model"`
	APIKey  string        `koanf:"api_key"`
	Timeout time.Duration `koanf:"timeout"`
}

// LLMConfig holds chat completion provider settings.
type LLMConfig struct {
	BaseURL           string        `koanf:"base_url"`
	Model             string        `koanf:"model"`
	APIKey            string        `koanf:"api_key"`
	Timeout           time.Duration `koanf:"timeout"`
	MaxTokens         int           `koanf:"max_tokens"`
	Temperature       float64       `koanf:"temperature"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
	MaxRetries        int           `koanf:"max_retries"`
}

// VisionConfig holds vision model settings.
type VisionConfig struct {
	BaseURL string        `koanf:"base_url"`
	Model   string        `koanf:"model"`
	APIKey  string        `koanf:"api_key"`
	Timeout time.Duration `koanf:"timeout"`
}

// PlacesConfig holds Foursquare Places API and cache settings.
type PlacesConfig struct {
	BaseURL       string        `koanf:"base_url"`
	APIKey        string        `koanf:"api_key"`
	APIVersion    string        `koanf:"api_version"`
	Timeout       time.Duration `koanf:"timeout"`
	SearchLimit   int           `koanf:"search_limit"`
	MinRating     float64       `koanf:"min_rating"`
	MinPopularity float64       `koanf:"min_popularity"`

	// RedisAddr enables the Redis cache when set, e.g. "localhost:6379".
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`
}

// IndexingConfig tunes the batch indexing job.
type IndexingConfig struct {
	BatchSize int           `koanf:"batch_size"`
	Cooldown  time.Duration `koanf:"cooldown"`
}

// RetrievalConfig tunes retrieval.
type RetrievalConfig struct {
	TopK int `koanf:"top_k"`
}

// applyDefaults fills in defaults for unset values.
func applyDefaults(cfg *Config) {
	if cfg.VectorStore.Provider == "" {
		cfg.VectorStore.Provider = "chromem"
	}
	if cfg.VectorStore.Chromem.Collection == "" {
		cfg.VectorStore.Chromem.Collection = "restaurants"
	}
	if cfg.VectorStore.Chromem.VectorSize == 0 {
		cfg.VectorStore.Chromem.VectorSize = 1536
	}
	if cfg.VectorStore.Qdrant.Host == "" {
		cfg.VectorStore.Qdrant.Host = "localhost"
	}
	if cfg.VectorStore.Qdrant.Port == 0 {
		cfg.VectorStore.Qdrant.Port = 6334
	}
	if cfg.VectorStore.Qdrant.Collection == "" {
		cfg.VectorStore.Qdrant.Collection = "restaurants"
	}
	if cfg.VectorStore.Qdrant.VectorSize == 0 {
		cfg.VectorStore.Qdrant.VectorSize = 1536
	}

	if cfg.Embeddings.BaseURL == "" {
		cfg.Embeddings.BaseURL = "https://api.openai.com"
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "text-embedding-3-small"
	}
	if cfg.Embeddings.Timeout == 0 {
		cfg.Embeddings.Timeout = 60 * time.Second
	}

	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "https://api.openai.com"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o-mini"
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = 120 * time.Second
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 1024
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = 0.7
	}
	if cfg.LLM.RequestsPerSecond == 0 {
		cfg.LLM.RequestsPerSecond = 2
	}
	if cfg.LLM.MaxRetries == 0 {
		cfg.LLM.MaxRetries = 3
	}

	if cfg.Vision.BaseURL == "" {
		cfg.Vision.BaseURL = "https://api.openai.com"
	}
	if cfg.Vision.Model == "" {
		cfg.Vision.Model = "gpt-4o"
	}
	if cfg.Vision.Timeout == 0 {
		cfg.Vision.Timeout = 120 * time.Second
	}

	if cfg.Places.BaseURL == "" {
		cfg.Places.BaseURL = "https://places-api.foursquare.com"
	}
	if cfg.Places.APIVersion == "" {
		cfg.Places.APIVersion = "2025-06-17"
	}
	if cfg.Places.Timeout == 0 {
		cfg.Places.Timeout = 30 * time.Second
	}
	if cfg.Places.SearchLimit == 0 {
		cfg.Places.SearchLimit = 50
	}
	if cfg.Places.MinRating == 0 {
		cfg.Places.MinRating = 6
	}
	if cfg.Places.MinPopularity == 0 {
		cfg.Places.MinPopularity = 0.6
	}

	if cfg.Indexing.BatchSize == 0 {
		cfg.Indexing.BatchSize = 10
	}
	if cfg.Indexing.Cooldown == 0 {
		cfg.Indexing.Cooldown = time.Second
	}

	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 3
	}
}

// Validate checks the configuration for internal consistency. API keys are
// checked lazily by the services that need them, so a config without keys
// still validates.
func (c *Config) Validate() error {
	switch c.VectorStore.Provider {
	case "chromem", "qdrant":
	default:
		return fmt.Errorf("%w: unknown vectorstore provider %q", ErrInvalidConfig, c.VectorStore.Provider)
	}

	if c.VectorStore.Chromem.VectorSize <= 0 {
		return fmt.Errorf("%w: chromem vector_size must be positive", ErrInvalidConfig)
	}
	if c.VectorStore.Qdrant.VectorSize <= 0 {
		return fmt.Errorf("%w: qdrant vector_size must be positive", ErrInvalidConfig)
	}
	if c.VectorStore.Qdrant.Port <= 0 || c.VectorStore.Qdrant.Port > 65535 {
		return fmt.Errorf("%w: qdrant port %d out of range", ErrInvalidConfig, c.VectorStore.Qdrant.Port)
	}
	if c.Indexing.BatchSize <= 0 {
		return fmt.Errorf("%w: indexing batch_size must be positive", ErrInvalidConfig)
	}
	if c.Indexing.Cooldown < 0 {
		return fmt.Errorf("%w: indexing cooldown must not be negative", ErrInvalidConfig)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("%w: retrieval top_k must be positive", ErrInvalidConfig)
	}
	return nil
}
