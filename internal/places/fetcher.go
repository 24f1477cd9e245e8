// Package places fetches restaurant data from the Foursquare Places API
// with a Redis read-through cache.
package places

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/makanlah/makanrag/internal/restaurant"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// tracer for OpenTelemetry instrumentation.
var tracer = otel.Tracer("makanrag.places")

// restaurantCategory is Foursquare's category ID for restaurants.
const restaurantCategory = "4d4b7105d754a06374d81259"

// searchFields are the place fields requested from the search endpoint.
var searchFields = strings.Join([]string{
	"fsq_place_id",
	"name",
	"categories",
	"location",
	"description",
	"attributes",
	"price",
	"rating",
	"popularity",
	"menu",
	"tastes",
}, ",")

var (
	// ErrInvalidConfig indicates missing or invalid fetcher configuration.
	ErrInvalidConfig = errors.New("places: invalid config")

	// ErrCacheMiss indicates the key is not in the cache.
	ErrCacheMiss = errors.New("places: cache miss")
)

// Cache is the read-through cache for Foursquare responses. Get returns
// ErrCacheMiss when the key is absent; ttl 0 means no expiry.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// RedisCache implements Cache on a Redis client.
type RedisCache struct {
	client *redis.Client
}

var _ Cache = (*RedisCache)(nil)

// NewRedisCache wraps an existing Redis client.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	if err != nil {
		return "", fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, nil
}

func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Config holds Foursquare Places API settings.
type Config struct {
	// BaseURL is the Places API endpoint.
	// Default: https://places-api.foursquare.com
	BaseURL string

	// APIKey is the Foursquare service key. Required.
	APIKey string

	// APIVersion is sent as the X-Places-Api-Version header.
	// Default: 2025-06-17
	APIVersion string

	// Timeout bounds a single search request.
	// Default: 30s
	Timeout time.Duration

	// SearchLimit is the maximum places returned per area search.
	// Default: 50
	SearchLimit int

	// MinRating filters out places rated below this (0-10 scale).
	// Default: 6
	MinRating float64

	// MinPopularity filters out places below this popularity (0-1 scale).
	// Default: 0.6
	MinPopularity float64
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://places-api.foursquare.com"
	}
	if c.APIVersion == "" {
		c.APIVersion = "2025-06-17"
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.SearchLimit == 0 {
		c.SearchLimit = 50
	}
	if c.MinRating == 0 {
		c.MinRating = 6
	}
	if c.MinPopularity == 0 {
		c.MinPopularity = 0.6
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("%w: api key is required", ErrInvalidConfig)
	}
	return nil
}

// Fetcher queries the Foursquare Places API for restaurants. A nil cache
// disables caching; every lookup goes to the API.
type Fetcher struct {
	config Config
	client *http.Client
	cache  Cache
	logger *zap.Logger
}

// NewFetcher creates a Places API fetcher.
func NewFetcher(config Config, cache Cache, logger *zap.Logger) (*Fetcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Fetcher{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		cache:  cache,
		logger: logger,
	}, nil
}

// searchResponse mirrors the Places API search payload, with categories and
// location kept in their nested API shapes.
type searchResponse struct {
	Results []searchResult `json:"results"`
}

type searchResult struct {
	FsqPlaceID  string         `json:"fsq_place_id"`
	Name        string         `json:"name"`
	Categories  []category     `json:"categories"`
	Location    location       `json:"location"`
	Description string         `json:"description"`
	Attributes  map[string]any `json:"attributes"`
	Price       int            `json:"price"`
	Rating      float64        `json:"rating"`
	Popularity  float64        `json:"popularity"`
	Tastes      []string       `json:"tastes"`
}

type category struct {
	ShortName string `json:"short_name"`
}

type location struct {
	FormattedAddress string `json:"formatted_address"`
}

// TopRestaurantsInArea fetches restaurants around a point and keeps only
// well-rated popular ones. Fetch failures degrade to an empty slice so one
// bad area never aborts a collection run.
func (f *Fetcher) TopRestaurantsInArea(ctx context.Context, areaName string, lat, lng float64, radius int) []restaurant.Metadata {
	ctx, span := tracer.Start(ctx, "Fetcher.TopRestaurantsInArea")
	defer span.End()

	span.SetAttributes(attribute.String("area", areaName))

	ll := fmt.Sprintf("%g,%g", lat, lng)
	results, err := f.restaurantsInArea(ctx, ll, radius)
	if err != nil {
		span.RecordError(err)
		f.logger.Error("fetching restaurants failed",
			zap.String("area", areaName),
			zap.Error(err),
		)
		return []restaurant.Metadata{}
	}

	top := make([]restaurant.Metadata, 0, len(results))
	for _, r := range results {
		if r.Rating >= f.config.MinRating && r.Popularity >= f.config.MinPopularity {
			top = append(top, r)
		}
	}

	f.logger.Info("collected top restaurants",
		zap.String("area", areaName),
		zap.Int("fetched", len(results)),
		zap.Int("kept", len(top)),
	)
	span.SetAttributes(attribute.Int("kept", len(top)))
	return top
}

// restaurantsInArea returns all restaurants around ll, serving from the
// cache when possible. Cached entries have no expiry; the collector layer
// applies its own TTL for curated results.
func (f *Fetcher) restaurantsInArea(ctx context.Context, ll string, radius int) ([]restaurant.Metadata, error) {
	cacheKey := fmt.Sprintf("restaurantsInArea:%s:%d", ll, radius)

	if f.cache != nil {
		cached, err := f.cache.Get(ctx, cacheKey)
		switch {
		case err == nil:
			var results []restaurant.Metadata
			if err := json.Unmarshal([]byte(cached), &results); err == nil {
				f.logger.Debug("cache hit for restaurants in area", zap.String("key", cacheKey))
				return results, nil
			}
			f.logger.Warn("discarding corrupt cache entry", zap.String("key", cacheKey))
		case !errors.Is(err, ErrCacheMiss):
			f.logger.Warn("cache lookup failed", zap.String("key", cacheKey), zap.Error(err))
		}
	}

	results, err := f.search(ctx, ll, radius)
	if err != nil {
		return nil, err
	}

	if f.cache != nil {
		payload, err := json.Marshal(results)
		if err == nil {
			if err := f.cache.Set(ctx, cacheKey, string(payload), 0); err != nil {
				f.logger.Warn("caching restaurants failed", zap.String("key", cacheKey), zap.Error(err))
			}
		}
	}
	return results, nil
}

func (f *Fetcher) search(ctx context.Context, ll string, radius int) ([]restaurant.Metadata, error) {
	query := url.Values{}
	query.Set("categories", restaurantCategory)
	query.Set("fields", searchFields)
	query.Set("ll", ll)
	query.Set("radius", fmt.Sprintf("%d", radius))
	query.Set("limit", fmt.Sprintf("%d", f.config.SearchLimit))

	endpoint := fmt.Sprintf("%s/places/search?%s", f.config.BaseURL, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating search request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Places-Api-Version", f.config.APIVersion)
	req.Header.Set("Authorization", "Bearer "+f.config.APIKey)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("searching places: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading search response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("places api returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}

	results := make([]restaurant.Metadata, 0, len(parsed.Results))
	for _, item := range parsed.Results {
		categories := make([]string, 0, len(item.Categories))
		for _, c := range item.Categories {
			categories = append(categories, c.ShortName)
		}
		results = append(results, restaurant.Metadata{
			ID:          item.FsqPlaceID,
			Name:        item.Name,
			Categories:  categories,
			Location:    item.Location.FormattedAddress,
			Description: item.Description,
			Attributes:  item.Attributes,
			Price:       item.Price,
			Rating:      item.Rating,
			Popularity:  item.Popularity,
			Tastes:      item.Tastes,
		})
	}
	return results, nil
}
