package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// chromemTracer for OpenTelemetry instrumentation.
var chromemTracer = otel.Tracer("makanrag.vectorstore.chromem")

// ChromemConfig holds configuration for the embedded chromem-go backend.
type ChromemConfig struct {
	// Path is the directory for persistent storage.
	// Default: "~/.config/makanrag/vectorstore"
	Path string

	// Compress enables gzip compression for stored data.
	Compress bool

	// Collection is the collection holding restaurant chunks.
	// Default: "restaurants"
	Collection string

	// VectorSize is the expected embedding dimension.
	// Must match the embedding model's output dimension.
	// Default: 1536 (text-embedding-3-small)
	VectorSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "~/.config/makanrag/vectorstore"
	}
	if c.Collection == "" {
		c.Collection = "restaurants"
	}
	if c.VectorSize == 0 {
		c.VectorSize = 1536
	}
}

// Validate validates the configuration.
func (c *ChromemConfig) Validate() error {
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	if c.Collection == "" {
		return fmt.Errorf("%w: collection required", ErrInvalidConfig)
	}
	return nil
}

// ChromemStore implements Store using chromem-go, an embeddable pure-Go
// vector database with gob-file persistence. Vectors are computed upstream
// by the embeddings service and stored as-is; chromem's own embedding hook
// is never invoked. chromem always searches exhaustively with cosine
// similarity, so Query scores are cosine scores.
type ChromemStore struct {
	db     *chromem.DB
	config ChromemConfig
	logger *zap.Logger
}

// NewChromemStore creates a ChromemStore with the given configuration.
func NewChromemStore(config ChromemConfig, logger *zap.Logger) (*ChromemStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	path, err := expandPath(config.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", path, err)
	}

	db, err := chromem.NewPersistentDB(path, config.Compress)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	store := &ChromemStore{
		db:     db,
		config: config,
		logger: logger,
	}

	logger.Info("chromem store initialized",
		zap.String("path", path),
		zap.String("collection", config.Collection),
		zap.Int("vector_size", config.VectorSize),
	)

	return store, nil
}

// expandPath expands a leading ~ to the home directory.
func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// noEmbed rejects any attempt by chromem to embed content itself; all
// vectors must be provided by the caller.
func noEmbed(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("chromem store does not embed; vectors must be precomputed")
}

func (s *ChromemStore) collection() (*chromem.Collection, error) {
	c, err := s.db.GetOrCreateCollection(s.config.Collection, nil, noEmbed)
	if err != nil {
		return nil, fmt.Errorf("getting/creating collection %s: %w", s.config.Collection, err)
	}
	return c, nil
}

// Upsert inserts or replaces records by ID.
func (s *ChromemStore) Upsert(ctx context.Context, records []Record) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Upsert")
	defer span.End()

	span.SetAttributes(attribute.Int("record_count", len(records)))

	if len(records) == 0 {
		return ErrEmptyRecords
	}

	collection, err := s.collection()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	docs := make([]chromem.Document, len(records))
	for i, rec := range records {
		if rec.ID == "" {
			return fmt.Errorf("%w: record at index %d has no ID", ErrEmptyRecords, i)
		}
		if len(rec.Vector) != s.config.VectorSize {
			return fmt.Errorf("%w: record %s vector size %d does not match configured size %d",
				ErrInvalidConfig, rec.ID, len(rec.Vector), s.config.VectorSize)
		}

		content, _ := rec.Metadata["content"].(string)
		docs[i] = chromem.Document{
			ID:        rec.ID,
			Content:   content,
			Metadata:  flattenMetadata(rec.Metadata),
			Embedding: rec.Vector,
		}
	}

	if err := collection.AddDocuments(ctx, docs, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upserting %d records: %w", len(records), err)
	}

	span.SetStatus(codes.Ok, "success")

	s.logger.Debug("upserted records to chromem",
		zap.String("collection", s.config.Collection),
		zap.Int("count", len(records)),
	)

	return nil
}

// Query returns up to topK nearest records ordered by descending cosine
// similarity.
func (s *ChromemStore) Query(ctx context.Context, vector []float32, topK int) ([]Match, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Query")
	defer span.End()

	span.SetAttributes(attribute.Int("top_k", topK))

	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive, got %d", topK)
	}
	if len(vector) != s.config.VectorSize {
		return nil, fmt.Errorf("%w: query vector size %d does not match configured size %d",
			ErrInvalidConfig, len(vector), s.config.VectorSize)
	}

	collection := s.db.GetCollection(s.config.Collection, noEmbed)
	if collection == nil {
		// Nothing indexed yet.
		return []Match{}, nil
	}

	// chromem requires nResults <= document count.
	count := collection.Count()
	if count == 0 {
		return []Match{}, nil
	}
	if topK > count {
		topK = count
	}

	results, err := collection.QueryEmbedding(ctx, vector, topK, nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", s.config.Collection, err)
	}

	matches := make([]Match, len(results))
	for i, r := range results {
		matches[i] = Match{
			ID:       r.ID,
			Score:    r.Similarity,
			Metadata: unflattenMetadata(r.Metadata),
		}
	}

	span.SetAttributes(attribute.Int("result_count", len(matches)))
	span.SetStatus(codes.Ok, "success")

	return matches, nil
}

// Delete removes records by ID. Missing IDs are ignored.
func (s *ChromemStore) Delete(ctx context.Context, ids []string) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Delete")
	defer span.End()

	span.SetAttributes(attribute.Int("id_count", len(ids)))

	if len(ids) == 0 {
		return nil
	}

	collection := s.db.GetCollection(s.config.Collection, noEmbed)
	if collection == nil {
		return nil
	}

	if err := collection.Delete(ctx, nil, nil, ids...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting %d records: %w", len(ids), err)
	}

	span.SetStatus(codes.Ok, "success")

	s.logger.Debug("deleted records from chromem",
		zap.String("collection", s.config.Collection),
		zap.Int("count", len(ids)),
	)

	return nil
}

// Close closes the store. chromem persists on write, so this is a no-op.
func (s *ChromemStore) Close() error {
	return nil
}

// flattenMetadata converts metadata to chromem's string-only map. Scalars
// are formatted directly; slices and nested maps are JSON-encoded.
func flattenMetadata(metadata map[string]any) map[string]string {
	if metadata == nil {
		return nil
	}

	result := make(map[string]string, len(metadata))
	for k, v := range metadata {
		switch val := v.(type) {
		case string:
			result[k] = val
		case int:
			result[k] = fmt.Sprintf("%d", val)
		case int64:
			result[k] = fmt.Sprintf("%d", val)
		case float64:
			result[k] = fmt.Sprintf("%g", val)
		case bool:
			result[k] = fmt.Sprintf("%t", val)
		default:
			if b, err := json.Marshal(val); err == nil {
				result[k] = string(b)
			} else {
				result[k] = fmt.Sprintf("%v", val)
			}
		}
	}
	return result
}

// unflattenMetadata widens chromem's string map back to map[string]any.
// Values stay strings; consumers that need structure decode JSON themselves.
func unflattenMetadata(metadata map[string]string) map[string]any {
	if metadata == nil {
		return nil
	}

	result := make(map[string]any, len(metadata))
	for k, v := range metadata {
		result[k] = v
	}
	return result
}

// Ensure ChromemStore implements Store.
var _ Store = (*ChromemStore)(nil)
