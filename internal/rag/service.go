// Package rag orchestrates restaurant indexing and retrieval over the
// embeddings service and the vector store.
package rag

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/makanlah/makanrag/internal/documents"
	"github.com/makanlah/makanrag/internal/restaurant"
	"github.com/makanlah/makanrag/internal/vectorstore"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// tracer for OpenTelemetry instrumentation.
var tracer = otel.Tracer("makanrag.rag")

// Embedder is the embedding capability the service depends on.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
	GenerateEmbeddingsBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// DocumentProcessor turns one restaurant into chunk documents.
type DocumentProcessor interface {
	CreateRestaurantDocuments(ctx context.Context, r restaurant.Metadata) ([]documents.ChunkDocument, error)
}

// QueryResult is one retrieved restaurant with its best supporting chunks.
// Results are produced fresh per query and never persisted.
type QueryResult struct {
	// RestaurantID is the place identifier the chunks were grouped by.
	RestaurantID string

	// RestaurantName is the display name from chunk metadata.
	RestaurantName string

	// Content joins the restaurant's top chunks with a single space.
	Content string

	// Metadata is the highest-scoring chunk's stored metadata.
	Metadata map[string]any

	// RelevanceScore is the mean similarity across all of the
	// restaurant's returned chunks.
	RelevanceScore float64
}

// Config holds tuning knobs for indexing and retrieval.
type Config struct {
	// BatchSize is the number of restaurants whose descriptions are
	// generated concurrently per indexing batch.
	// Default: 10
	BatchSize int

	// BatchCooldown is the pause between indexing batches. It is simple
	// static backpressure against the model provider, not an adaptive
	// scheduler.
	// Default: 1s
	BatchCooldown time.Duration

	// DefaultTopK is the result count when the caller requests none.
	// Default: 3
	DefaultTopK int

	// MaxChunksPerRestaurant caps the chunks joined into one result's
	// content.
	// Default: 2
	MaxChunksPerRestaurant int
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.BatchSize == 0 {
		c.BatchSize = 10
	}
	if c.BatchCooldown == 0 {
		c.BatchCooldown = time.Second
	}
	if c.DefaultTopK == 0 {
		c.DefaultTopK = 3
	}
	if c.MaxChunksPerRestaurant == 0 {
		c.MaxChunksPerRestaurant = 2
	}
}

// Service is the top-level RAG orchestrator.
//
// Indexing and retrieval behavior:
//   - IndexRestaurants fans document generation out per batch, embeds all
//     accumulated chunks in a single batch call, and upserts one record per
//     chunk. Re-running indexing for the same corpus overwrites records at
//     the same chunk IDs; descriptions are regenerated by the model, so
//     chunk counts and boundaries may legitimately differ between runs.
//   - RetrieveRelevantRestaurants never returns an error: any internal
//     failure degrades to an empty result so the caller can still answer
//     without restaurant context.
type Service struct {
	processor DocumentProcessor
	embedder  Embedder
	store     vectorstore.Store
	limiter   *rate.Limiter
	config    Config
	logger    *zap.Logger
}

// NewService creates the orchestrator with explicit dependencies.
func NewService(processor DocumentProcessor, embedder Embedder, store vectorstore.Store, config Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()

	// One batch per cooldown interval; burst 1 lets the first batch
	// start immediately.
	limiter := rate.NewLimiter(rate.Every(config.BatchCooldown), 1)

	return &Service{
		processor: processor,
		embedder:  embedder,
		store:     store,
		limiter:   limiter,
		config:    config,
		logger:    logger,
	}
}

// IndexRestaurants processes restaurants in batches, embeds every chunk in
// one call, and upserts the resulting records.
//
// Failure asymmetry, by design: a failed description generation skips that
// one restaurant and the batch continues, while a failed corpus-wide
// embedding or upsert aborts the whole run so the caller can retry the job.
func (s *Service) IndexRestaurants(ctx context.Context, restaurants []restaurant.Metadata) error {
	ctx, span := tracer.Start(ctx, "Service.IndexRestaurants")
	defer span.End()

	span.SetAttributes(attribute.Int("restaurant_count", len(restaurants)))

	if len(restaurants) == 0 {
		return nil
	}

	// Invalid records are skipped with the same semantics as a failed
	// description generation: one bad restaurant never fails the run.
	valid := restaurants[:0:0]
	for _, r := range restaurants {
		if err := r.Validate(); err != nil {
			s.logger.Error("skipping restaurant: invalid metadata",
				zap.String("fsq_place_id", r.ID),
				zap.String("name", r.Name),
				zap.Error(err),
			)
			continue
		}
		valid = append(valid, r)
	}
	restaurants = valid
	if len(restaurants) == 0 {
		s.logger.Warn("no valid restaurants to index")
		return nil
	}

	s.logger.Info("indexing restaurants",
		zap.Int("count", len(restaurants)),
		zap.Int("batch_size", s.config.BatchSize),
	)

	var allDocs []documents.ChunkDocument
	totalBatches := (len(restaurants) + s.config.BatchSize - 1) / s.config.BatchSize

	for start := 0; start < len(restaurants); start += s.config.BatchSize {
		if err := s.limiter.Wait(ctx); err != nil {
			span.RecordError(err)
			return fmt.Errorf("waiting for batch cooldown: %w", err)
		}

		end := start + s.config.BatchSize
		if end > len(restaurants) {
			end = len(restaurants)
		}
		batch := restaurants[start:end]

		s.logger.Debug("processing batch",
			zap.Int("batch", start/s.config.BatchSize+1),
			zap.Int("total_batches", totalBatches),
		)

		allDocs = append(allDocs, s.processBatch(ctx, batch)...)
	}

	if len(allDocs) == 0 {
		s.logger.Warn("no chunk documents generated, nothing to index")
		return nil
	}

	s.logger.Info("generated chunks",
		zap.Int("chunks", len(allDocs)),
		zap.Int("restaurants", len(restaurants)),
	)

	texts := make([]string, len(allDocs))
	for i, doc := range allDocs {
		texts[i] = doc.Content
	}

	vectors, err := s.embedder.GenerateEmbeddingsBatch(ctx, texts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("embedding %d chunks: %w", len(texts), err)
	}

	records := make([]vectorstore.Record, len(allDocs))
	for i, doc := range allDocs {
		metadata := make(map[string]any, len(doc.Metadata)+3)
		for k, v := range doc.Metadata {
			metadata[k] = v
		}
		metadata["content"] = doc.Content
		metadata["chunkIndex"] = doc.ChunkIndex
		metadata["totalChunks"] = doc.TotalChunks

		records[i] = vectorstore.Record{
			ID:       doc.ID,
			Vector:   vectors[i],
			Metadata: metadata,
		}
	}

	if err := s.store.Upsert(ctx, records); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upserting %d records: %w", len(records), err)
	}

	span.SetAttributes(attribute.Int("chunks_indexed", len(records)))
	span.SetStatus(codes.Ok, "success")

	s.logger.Info("indexing complete", zap.Int("chunks_indexed", len(records)))
	return nil
}

// processBatch fans document generation out across the batch and collects
// results in input order. A restaurant whose generation fails is logged and
// skipped; it does not fail the batch.
func (s *Service) processBatch(ctx context.Context, batch []restaurant.Metadata) []documents.ChunkDocument {
	results := make([][]documents.ChunkDocument, len(batch))

	var wg sync.WaitGroup
	for i, r := range batch {
		wg.Add(1)
		go func(i int, r restaurant.Metadata) {
			defer wg.Done()
			docs, err := s.processor.CreateRestaurantDocuments(ctx, r)
			if err != nil {
				s.logger.Error("skipping restaurant: description generation failed",
					zap.String("fsq_place_id", r.ID),
					zap.String("name", r.Name),
					zap.Error(err),
				)
				return
			}
			results[i] = docs
		}(i, r)
	}
	wg.Wait()

	var flat []documents.ChunkDocument
	for _, docs := range results {
		flat = append(flat, docs...)
	}
	return flat
}

// restaurantGroup accumulates the chunks of one restaurant during grouping.
type restaurantGroup struct {
	id      string
	matches []vectorstore.Match
}

// RetrieveRelevantRestaurants embeds the query, over-fetches 2*topK chunks,
// groups them by restaurant, and re-ranks restaurants by mean chunk score.
//
// Any internal failure (embedding, vector search) returns an empty slice;
// retrieval degradation must never abort the caller's response generation.
func (s *Service) RetrieveRelevantRestaurants(ctx context.Context, query string, topK int) []QueryResult {
	ctx, span := tracer.Start(ctx, "Service.RetrieveRelevantRestaurants")
	defer span.End()

	if topK <= 0 {
		topK = s.config.DefaultTopK
	}
	span.SetAttributes(attribute.Int("top_k", topK))

	vector, err := s.embedder.GenerateEmbedding(ctx, query)
	if err != nil {
		span.RecordError(err)
		s.logger.Error("retrieval degraded: query embedding failed", zap.Error(err))
		return []QueryResult{}
	}

	// Over-fetch so enough distinct restaurants survive grouping when
	// multiple top chunks belong to the same one.
	matches, err := s.store.Query(ctx, vector, topK*2)
	if err != nil {
		span.RecordError(err)
		s.logger.Error("retrieval degraded: vector search failed", zap.Error(err))
		return []QueryResult{}
	}

	// Group chunks by restaurant id. Chunks without an id collide under
	// the "" key and surface as one fictitious restaurant; this mirrors
	// the historical behavior and is covered by a test rather than
	// silently fixed.
	groups := make(map[string]*restaurantGroup)
	var order []string
	for _, m := range matches {
		id, _ := m.Metadata["fsq_place_id"].(string)
		g, ok := groups[id]
		if !ok {
			g = &restaurantGroup{id: id}
			groups[id] = g
			order = append(order, id)
		}
		g.matches = append(g.matches, m)
	}

	type rankedGroup struct {
		group    *restaurantGroup
		avgScore float64
	}

	ranked := make([]rankedGroup, 0, len(order))
	for _, id := range order {
		g := groups[id]

		var sum float64
		for _, m := range g.matches {
			sum += float64(m.Score)
		}

		// Sort the group's chunks by descending score; only the top
		// ones contribute content, but every chunk counts toward the
		// average so restaurants with several relevant chunks rank
		// higher.
		sort.SliceStable(g.matches, func(i, j int) bool {
			return g.matches[i].Score > g.matches[j].Score
		})

		ranked = append(ranked, rankedGroup{
			group:    g,
			avgScore: sum / float64(len(g.matches)),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].avgScore > ranked[j].avgScore
	})

	if len(ranked) > topK {
		ranked = ranked[:topK]
	}

	results := make([]QueryResult, 0, len(ranked))
	for _, rg := range ranked {
		kept := rg.group.matches
		if len(kept) > s.config.MaxChunksPerRestaurant {
			kept = kept[:s.config.MaxChunksPerRestaurant]
		}

		content := ""
		for i, m := range kept {
			text, _ := m.Metadata["content"].(string)
			if i > 0 {
				content += " "
			}
			content += text
		}

		name, _ := kept[0].Metadata["name"].(string)

		results = append(results, QueryResult{
			RestaurantID:   rg.group.id,
			RestaurantName: name,
			Content:        content,
			Metadata:       kept[0].Metadata,
			RelevanceScore: rg.avgScore,
		})
	}

	span.SetAttributes(attribute.Int("result_count", len(results)))
	span.SetStatus(codes.Ok, "success")

	return results
}

// DeleteRestaurantChunks removes all chunk records for a restaurant given
// its chunk count.
func (s *Service) DeleteRestaurantChunks(ctx context.Context, restaurantID string, totalChunks int) error {
	ids := make([]string, 0, totalChunks)
	for i := 0; i < totalChunks; i++ {
		ids = append(ids, fmt.Sprintf("%s_chunk_%d", restaurantID, i))
	}
	if err := s.store.Delete(ctx, ids); err != nil {
		return fmt.Errorf("deleting chunks for restaurant %s: %w", restaurantID, err)
	}
	return nil
}
