package places

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/makanlah/makanrag/internal/restaurant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapCache is an in-memory Cache for tests.
type mapCache struct {
	mu   sync.Mutex
	data map[string]string
	sets int
}

func newMapCache() *mapCache {
	return &mapCache{data: make(map[string]string)}
}

func (c *mapCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	val, ok := c.data[key]
	if !ok {
		return "", ErrCacheMiss
	}
	return val, nil
}

func (c *mapCache) Set(_ context.Context, key, value string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	c.sets++
	return nil
}

func placesPayload() map[string]any {
	return map[string]any{
		"results": []map[string]any{
			{
				"fsq_place_id": "R1",
				"name":         "Restoran Rebung",
				"categories": []map[string]any{
					{"short_name": "Malay"},
					{"short_name": "Buffet"},
				},
				"location":    map[string]any{"formatted_address": "Jalan Tugu, Kuala Lumpur"},
				"description": "Traditional Malay buffet.",
				"price":       2,
				"rating":      8.7,
				"popularity":  0.95,
				"tastes":      []string{"rendang"},
			},
			{
				"fsq_place_id": "R2",
				"name":         "Quiet Corner Cafe",
				"location":     map[string]any{"formatted_address": "Bangsar, Kuala Lumpur"},
				"rating":       5.1,
				"popularity":   0.9,
			},
			{
				"fsq_place_id": "R3",
				"name":         "Empty Stall",
				"location":     map[string]any{"formatted_address": "KLCC"},
				"rating":       8.0,
				"popularity":   0.2,
			},
		},
	}
}

func newTestServer(t *testing.T, hits *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*hits++
		assert.Equal(t, "/places/search", r.URL.Path)
		assert.Equal(t, restaurantCategory, r.URL.Query().Get("categories"))
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		assert.Equal(t, "Bearer fsq-test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "2025-06-17", r.Header.Get("X-Places-Api-Version"))

		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(placesPayload()))
	}))
}

func TestTopRestaurantsInArea(t *testing.T) {
	hits := 0
	server := newTestServer(t, &hits)
	defer server.Close()

	fetcher, err := NewFetcher(Config{BaseURL: server.URL, APIKey: "fsq-test-key"}, nil, nil)
	require.NoError(t, err)

	results := fetcher.TopRestaurantsInArea(context.Background(), "Bukit Bintang", 3.1478, 101.7072, 2000)

	// R2 fails the rating floor, R3 the popularity floor.
	require.Len(t, results, 1)
	assert.Equal(t, "R1", results[0].ID)
	assert.Equal(t, []string{"Malay", "Buffet"}, results[0].Categories)
	assert.Equal(t, "Jalan Tugu, Kuala Lumpur", results[0].Location)
	assert.Equal(t, 2, results[0].Price)
	assert.InDelta(t, 8.7, results[0].Rating, 1e-9)
}

func TestTopRestaurantsInAreaUsesCache(t *testing.T) {
	hits := 0
	server := newTestServer(t, &hits)
	defer server.Close()

	cache := newMapCache()
	fetcher, err := NewFetcher(Config{BaseURL: server.URL, APIKey: "fsq-test-key"}, cache, nil)
	require.NoError(t, err)

	first := fetcher.TopRestaurantsInArea(context.Background(), "KLCC", 3.1579, 101.7116, 1500)
	second := fetcher.TopRestaurantsInArea(context.Background(), "KLCC", 3.1579, 101.7116, 1500)

	assert.Equal(t, 1, hits)
	assert.Equal(t, first, second)
	assert.Contains(t, cache.data, "restaurantsInArea:3.1579,101.7116:1500")
}

func TestTopRestaurantsInAreaDegradesOnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"message":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	fetcher, err := NewFetcher(Config{BaseURL: server.URL, APIKey: "fsq-test-key"}, nil, nil)
	require.NoError(t, err)

	results := fetcher.TopRestaurantsInArea(context.Background(), "Bangsar", 3.1291, 101.6737, 2000)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestNewFetcherRequiresAPIKey(t *testing.T) {
	_, err := NewFetcher(Config{}, nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestCollectTopRestaurantsDeduplicates(t *testing.T) {
	hits := 0
	server := newTestServer(t, &hits)
	defer server.Close()

	fetcher, err := NewFetcher(Config{BaseURL: server.URL, APIKey: "fsq-test-key"}, nil, nil)
	require.NoError(t, err)

	// Both areas return the same payload, so R1 appears twice upstream.
	areas := []Area{
		{Name: "Bukit Bintang", Lat: 3.1478, Lng: 101.7072, Radius: 2000},
		{Name: "KLCC", Lat: 3.1579, Lng: 101.7116, Radius: 1500},
	}
	collector := NewCollector(fetcher, nil, areas, nil)

	results := collector.CollectTopRestaurants(context.Background())
	require.Len(t, results, 1)
	assert.Equal(t, "R1", results[0].ID)
	assert.Equal(t, 2, hits)
}

func TestCollectTopRestaurantsCachesCuratedResults(t *testing.T) {
	hits := 0
	server := newTestServer(t, &hits)
	defer server.Close()

	cache := newMapCache()
	fetcher, err := NewFetcher(Config{BaseURL: server.URL, APIKey: "fsq-test-key"}, nil, nil)
	require.NoError(t, err)

	areas := []Area{{Name: "Bangsar", Lat: 3.1291, Lng: 101.6737, Radius: 2000}}
	collector := NewCollector(fetcher, cache, areas, nil)

	collector.CollectTopRestaurants(context.Background())
	collector.CollectTopRestaurants(context.Background())

	assert.Equal(t, 1, hits)
	assert.Contains(t, cache.data, "topRestaurants:Bangsar")
}

func TestCollectorDefaultsToKLAreas(t *testing.T) {
	collector := NewCollector(nil, nil, nil, nil)
	assert.Equal(t, DefaultKLAreas, collector.areas)
}

func TestCachedEntriesRoundTripMetadata(t *testing.T) {
	cached := []restaurant.Metadata{{ID: "R9", Name: "Warung Satu", Location: "PJ", Rating: 7.5, Popularity: 0.8}}
	payload, err := json.Marshal(cached)
	require.NoError(t, err)

	cache := newMapCache()
	require.NoError(t, cache.Set(context.Background(), "restaurantsInArea:3.0738,101.5183:3000", string(payload), 0))

	fetcher, err := NewFetcher(Config{BaseURL: "http://127.0.0.1:1", APIKey: "fsq-test-key"}, cache, nil)
	require.NoError(t, err)

	// The server is unreachable; only the cache can satisfy this.
	results := fetcher.TopRestaurantsInArea(context.Background(), "Petaling Jaya", 3.0738, 101.5183, 3000)
	require.Len(t, results, 1)
	assert.Equal(t, "Warung Satu", results[0].Name)
}
