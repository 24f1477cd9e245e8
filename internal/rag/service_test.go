package rag

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/makanlah/makanrag/internal/documents"
	"github.com/makanlah/makanrag/internal/restaurant"
	"github.com/makanlah/makanrag/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubProcessor returns one single-chunk document per restaurant and can be
// told to fail for specific restaurant IDs.
type stubProcessor struct {
	failFor map[string]bool
	calls   []string
}

func (p *stubProcessor) CreateRestaurantDocuments(_ context.Context, r restaurant.Metadata) ([]documents.ChunkDocument, error) {
	p.calls = append(p.calls, r.ID)
	if p.failFor[r.ID] {
		return nil, errors.New("model unavailable")
	}
	return []documents.ChunkDocument{
		{
			ID:          r.ID + "_chunk_0",
			Content:     "about " + r.Name,
			ChunkIndex:  0,
			TotalChunks: 1,
			Metadata: map[string]any{
				"fsq_place_id": r.ID,
				"name":         r.Name,
			},
		},
	}, nil
}

type stubEmbedder struct {
	batchCalls [][]string
	queryErr   error
	batchErr   error
}

func (e *stubEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if e.queryErr != nil {
		return nil, e.queryErr
	}
	return []float32{1, 0, 0}, nil
}

func (e *stubEmbedder) GenerateEmbeddingsBatch(_ context.Context, texts []string) ([][]float32, error) {
	e.batchCalls = append(e.batchCalls, texts)
	if e.batchErr != nil {
		return nil, e.batchErr
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{float32(i), 1, 0}
	}
	return vectors, nil
}

type stubStore struct {
	upserted  []vectorstore.Record
	matches   []vectorstore.Match
	queryTopK int
	upsertErr error
	queryErr  error
}

func (s *stubStore) Upsert(_ context.Context, records []vectorstore.Record) error {
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.upserted = append(s.upserted, records...)
	return nil
}

func (s *stubStore) Query(_ context.Context, _ []float32, topK int) ([]vectorstore.Match, error) {
	s.queryTopK = topK
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	if len(s.matches) > topK {
		return s.matches[:topK], nil
	}
	return s.matches, nil
}

func (s *stubStore) Delete(_ context.Context, _ []string) error { return nil }
func (s *stubStore) Close() error                               { return nil }

func metas(ids ...string) []restaurant.Metadata {
	out := make([]restaurant.Metadata, len(ids))
	for i, id := range ids {
		out[i] = restaurant.Metadata{ID: id, Name: "Restoran " + id, Location: "KL"}
	}
	return out
}

func TestIndexRestaurants(t *testing.T) {
	processor := &stubProcessor{}
	embedder := &stubEmbedder{}
	store := &stubStore{}
	svc := NewService(processor, embedder, store, Config{BatchCooldown: time.Millisecond}, nil)

	err := svc.IndexRestaurants(context.Background(), metas("R1", "R2", "R3"))
	require.NoError(t, err)

	// One embedding call for the whole corpus, texts in input order.
	require.Len(t, embedder.batchCalls, 1)
	assert.Equal(t, []string{"about Restoran R1", "about Restoran R2", "about Restoran R3"}, embedder.batchCalls[0])

	require.Len(t, store.upserted, 3)
	assert.Equal(t, "R1_chunk_0", store.upserted[0].ID)
	assert.Equal(t, "about Restoran R1", store.upserted[0].Metadata["content"])
	assert.Equal(t, 0, store.upserted[0].Metadata["chunkIndex"])
	assert.Equal(t, 1, store.upserted[0].Metadata["totalChunks"])
	assert.Equal(t, "R1", store.upserted[0].Metadata["fsq_place_id"])
}

func TestIndexRestaurantsSkipsFailedRestaurant(t *testing.T) {
	processor := &stubProcessor{failFor: map[string]bool{"R2": true}}
	embedder := &stubEmbedder{}
	store := &stubStore{}
	svc := NewService(processor, embedder, store, Config{BatchCooldown: time.Millisecond}, nil)

	err := svc.IndexRestaurants(context.Background(), metas("R1", "R2", "R3"))
	require.NoError(t, err)

	// R2's failure skips only R2.
	require.Len(t, store.upserted, 2)
	assert.Equal(t, "R1_chunk_0", store.upserted[0].ID)
	assert.Equal(t, "R3_chunk_0", store.upserted[1].ID)
}

func TestIndexRestaurantsEmbeddingFailureAborts(t *testing.T) {
	processor := &stubProcessor{}
	embedder := &stubEmbedder{batchErr: errors.New("quota exceeded")}
	store := &stubStore{}
	svc := NewService(processor, embedder, store, Config{BatchCooldown: time.Millisecond}, nil)

	err := svc.IndexRestaurants(context.Background(), metas("R1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding")
	assert.Empty(t, store.upserted)
}

func TestIndexRestaurantsUpsertFailureAborts(t *testing.T) {
	processor := &stubProcessor{}
	embedder := &stubEmbedder{}
	store := &stubStore{upsertErr: errors.New("connection refused")}
	svc := NewService(processor, embedder, store, Config{BatchCooldown: time.Millisecond}, nil)

	err := svc.IndexRestaurants(context.Background(), metas("R1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upserting")
}

func TestIndexRestaurantsEmptyInput(t *testing.T) {
	processor := &stubProcessor{}
	embedder := &stubEmbedder{}
	store := &stubStore{}
	svc := NewService(processor, embedder, store, Config{}, nil)

	err := svc.IndexRestaurants(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, processor.calls)
	assert.Empty(t, embedder.batchCalls)
}

func TestIndexRestaurantsSkipsInvalidMetadata(t *testing.T) {
	processor := &stubProcessor{}
	embedder := &stubEmbedder{}
	store := &stubStore{}
	svc := NewService(processor, embedder, store, Config{BatchCooldown: time.Millisecond}, nil)

	// The middle record has no id and no location: it fails validation
	// and must not reach the processor.
	restaurants := []restaurant.Metadata{
		{ID: "R1", Name: "Restoran R1", Location: "KL"},
		{Name: "Nameless Stall"},
		{ID: "R3", Name: "Restoran R3", Location: "KL"},
	}

	err := svc.IndexRestaurants(context.Background(), restaurants)
	require.NoError(t, err)

	assert.Equal(t, []string{"R1", "R3"}, processor.calls)
	require.Len(t, store.upserted, 2)
	assert.Equal(t, "R1_chunk_0", store.upserted[0].ID)
	assert.Equal(t, "R3_chunk_0", store.upserted[1].ID)
}

func TestIndexRestaurantsAllInvalidYieldsNothing(t *testing.T) {
	processor := &stubProcessor{}
	embedder := &stubEmbedder{}
	store := &stubStore{}
	svc := NewService(processor, embedder, store, Config{BatchCooldown: time.Millisecond}, nil)

	err := svc.IndexRestaurants(context.Background(), []restaurant.Metadata{{Name: "Nameless Stall"}})
	require.NoError(t, err)
	assert.Empty(t, processor.calls)
	assert.Empty(t, embedder.batchCalls)
}

func TestIndexRestaurantsAllFailedYieldsNothing(t *testing.T) {
	processor := &stubProcessor{failFor: map[string]bool{"R1": true}}
	embedder := &stubEmbedder{}
	store := &stubStore{}
	svc := NewService(processor, embedder, store, Config{BatchCooldown: time.Millisecond}, nil)

	err := svc.IndexRestaurants(context.Background(), metas("R1"))
	require.NoError(t, err)
	assert.Empty(t, embedder.batchCalls)
	assert.Empty(t, store.upserted)
}

func TestIndexRestaurantsBatchCooldown(t *testing.T) {
	processor := &stubProcessor{}
	embedder := &stubEmbedder{}
	store := &stubStore{}
	cooldown := 30 * time.Millisecond
	svc := NewService(processor, embedder, store, Config{BatchSize: 1, BatchCooldown: cooldown}, nil)

	start := time.Now()
	err := svc.IndexRestaurants(context.Background(), metas("R1", "R2", "R3"))
	require.NoError(t, err)

	// Three batches of one: the first runs immediately, the next two
	// each wait out the cooldown.
	assert.GreaterOrEqual(t, time.Since(start), 2*cooldown)
	require.Len(t, store.upserted, 3)
}

func match(placeID, name, content string, score float32) vectorstore.Match {
	return vectorstore.Match{
		ID:    fmt.Sprintf("%s_chunk_%s", placeID, content),
		Score: score,
		Metadata: map[string]any{
			"fsq_place_id": placeID,
			"name":         name,
			"content":      content,
		},
	}
}

func TestRetrieveRelevantRestaurants(t *testing.T) {
	store := &stubStore{matches: []vectorstore.Match{
		match("A", "Restoran A", "a1", 0.9),
		match("B", "Restoran B", "b1", 0.85),
		match("A", "Restoran A", "a2", 0.8),
		match("A", "Restoran A", "a3", 0.1),
		match("C", "Restoran C", "c1", 0.5),
	}}
	svc := NewService(&stubProcessor{}, &stubEmbedder{}, store, Config{}, nil)

	results := svc.RetrieveRelevantRestaurants(context.Background(), "best nasi lemak", 2)

	// topK*2 chunks are fetched to survive grouping.
	assert.Equal(t, 4, store.queryTopK)

	// With topK=2 the store returns the first four matches: A has chunks
	// 0.9, 0.8, 0.1 (avg 0.6), B has 0.85. B outranks A on average.
	require.Len(t, results, 2)

	assert.Equal(t, "B", results[0].RestaurantID)
	assert.Equal(t, "Restoran B", results[0].RestaurantName)
	assert.InDelta(t, 0.85, results[0].RelevanceScore, 1e-6)
	assert.Equal(t, "b1", results[0].Content)

	// A contributes only its top two chunks to the content, but all
	// three to the average.
	assert.Equal(t, "A", results[1].RestaurantID)
	assert.Equal(t, "a1 a2", results[1].Content)
	assert.InDelta(t, 0.6, results[1].RelevanceScore, 1e-6)
	assert.Equal(t, "a1", results[1].Metadata["content"])
}

func TestRetrieveRelevantRestaurantsCapsAtTopK(t *testing.T) {
	// Five distinct restaurants survive grouping; topK=3 must cap the
	// result at the three best averages.
	store := &stubStore{matches: []vectorstore.Match{
		match("A", "Restoran A", "a1", 0.9),
		match("B", "Restoran B", "b1", 0.8),
		match("C", "Restoran C", "c1", 0.7),
		match("D", "Restoran D", "d1", 0.6),
		match("E", "Restoran E", "e1", 0.5),
	}}
	svc := NewService(&stubProcessor{}, &stubEmbedder{}, store, Config{}, nil)

	results := svc.RetrieveRelevantRestaurants(context.Background(), "best dinner spots", 3)

	require.Len(t, results, 3)
	assert.Equal(t, "A", results[0].RestaurantID)
	assert.Equal(t, "B", results[1].RestaurantID)
	assert.Equal(t, "C", results[2].RestaurantID)
}

func TestRetrieveRelevantRestaurantsDefaultTopK(t *testing.T) {
	store := &stubStore{}
	svc := NewService(&stubProcessor{}, &stubEmbedder{}, store, Config{}, nil)

	results := svc.RetrieveRelevantRestaurants(context.Background(), "laksa", 0)
	assert.Empty(t, results)
	assert.Equal(t, 6, store.queryTopK)
}

func TestRetrieveRelevantRestaurantsMissingPlaceID(t *testing.T) {
	// Chunks without a restaurant id group under the empty key.
	store := &stubStore{matches: []vectorstore.Match{
		{ID: "x", Score: 0.9, Metadata: map[string]any{"content": "orphan one"}},
		{ID: "y", Score: 0.7, Metadata: map[string]any{"content": "orphan two"}},
	}}
	svc := NewService(&stubProcessor{}, &stubEmbedder{}, store, Config{}, nil)

	results := svc.RetrieveRelevantRestaurants(context.Background(), "satay", 3)
	require.Len(t, results, 1)
	assert.Equal(t, "", results[0].RestaurantID)
	assert.Equal(t, "orphan one orphan two", results[0].Content)
}

func TestRetrieveRelevantRestaurantsEmbeddingFailure(t *testing.T) {
	embedder := &stubEmbedder{queryErr: errors.New("quota exceeded")}
	svc := NewService(&stubProcessor{}, embedder, &stubStore{}, Config{}, nil)

	results := svc.RetrieveRelevantRestaurants(context.Background(), "cendol", 3)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestRetrieveRelevantRestaurantsSearchFailure(t *testing.T) {
	store := &stubStore{queryErr: errors.New("connection refused")}
	svc := NewService(&stubProcessor{}, &stubEmbedder{}, store, Config{}, nil)

	results := svc.RetrieveRelevantRestaurants(context.Background(), "cendol", 3)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestDeleteRestaurantChunks(t *testing.T) {
	deleted := make([]string, 0)
	store := &deleteRecordingStore{stubStore: &stubStore{}, deleted: &deleted}
	svc := NewService(&stubProcessor{}, &stubEmbedder{}, store, Config{}, nil)

	err := svc.DeleteRestaurantChunks(context.Background(), "R1", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"R1_chunk_0", "R1_chunk_1"}, deleted)
}

type deleteRecordingStore struct {
	*stubStore
	deleted *[]string
}

func (s *deleteRecordingStore) Delete(_ context.Context, ids []string) error {
	*s.deleted = append(*s.deleted, ids...)
	return nil
}
