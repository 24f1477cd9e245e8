package embeddings_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/makanlah/makanrag/internal/embeddings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeProvider returns one deterministic vector per input, deliberately
// shuffling the data order to exercise index realignment.
func fakeProvider(t *testing.T) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/embeddings", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		type datum struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		}
		data := make([]datum, 0, len(req.Input))
		for i := range req.Input {
			data = append(data, datum{
				Index:     i,
				Embedding: []float32{float32(i), float32(len(req.Input[i]))},
			})
		}
		// Reverse so the client has to sort by index.
		for l, r := 0, len(data)-1; l < r; l, r = l+1, r-1 {
			data[l], data[r] = data[r], data[l]
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
}

func newTestService(t *testing.T, baseURL string) *embeddings.Service {
	t.Helper()

	svc, err := embeddings.NewService(embeddings.Config{
		BaseURL: baseURL,
		Model:   "text-embedding-3-small",
		APIKey:  "test-key",
	}, zap.NewNop())
	require.NoError(t, err)
	return svc
}

func TestGenerateEmbeddingsBatch_OrderPreserved(t *testing.T) {
	server := fakeProvider(t)
	defer server.Close()

	svc := newTestService(t, server.URL)
	texts := []string{"nasi lemak", "laksa", "roti canai satu"}

	vectors, err := svc.GenerateEmbeddingsBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, len(texts))

	// Index alignment: batch result i matches the single-text result for
	// texts[i] in the second component (deterministic provider).
	for i, text := range texts {
		assert.Equal(t, float32(i), vectors[i][0])
		assert.Equal(t, float32(len(text)), vectors[i][1])
	}
}

func TestGenerateEmbedding_Single(t *testing.T) {
	server := fakeProvider(t)
	defer server.Close()

	svc := newTestService(t, server.URL)

	vector, err := svc.GenerateEmbedding(context.Background(), "char kway teow")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, float32(len("char kway teow"))}, vector)
}

func TestGenerateEmbeddings_EmptyInput(t *testing.T) {
	svc := newTestService(t, "http://localhost:0")

	_, err := svc.GenerateEmbedding(context.Background(), "")
	assert.ErrorIs(t, err, embeddings.ErrEmptyInput)

	_, err = svc.GenerateEmbeddingsBatch(context.Background(), nil)
	assert.ErrorIs(t, err, embeddings.ErrEmptyInput)
}

func TestGenerateEmbeddingsBatch_ProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	svc := newTestService(t, server.URL)

	_, err := svc.GenerateEmbeddingsBatch(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.ErrorIs(t, err, embeddings.ErrEmbeddingFailed)
}

func TestGenerateEmbeddingsBatch_CountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []any{}})
	}))
	defer server.Close()

	svc := newTestService(t, server.URL)

	_, err := svc.GenerateEmbeddingsBatch(context.Background(), []string{"a", "b"})
	require.Error(t, err)
	assert.ErrorIs(t, err, embeddings.ErrEmbeddingFailed)
}

func TestNewService_ConfigDefaults(t *testing.T) {
	cfg := embeddings.Config{}
	cfg.ApplyDefaults()

	assert.Equal(t, "https://api.openai.com", cfg.BaseURL)
	assert.Equal(t, "text-embedding-3-small", cfg.Model)
}
