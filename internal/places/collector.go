package places

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/makanlah/makanrag/internal/restaurant"
	"go.uber.org/zap"
)

// Area is a named search center.
type Area struct {
	Name   string
	Lat    float64
	Lng    float64
	Radius int
}

// DefaultKLAreas covers the Kuala Lumpur neighborhoods the assistant serves.
var DefaultKLAreas = []Area{
	{Name: "Bukit Bintang", Lat: 3.1478, Lng: 101.7072, Radius: 2000},
	{Name: "KLCC", Lat: 3.1579, Lng: 101.7116, Radius: 1500},
	{Name: "Bangsar", Lat: 3.1291, Lng: 101.6737, Radius: 2000},
	{Name: "Damansara Heights", Lat: 3.1557, Lng: 101.6647, Radius: 2000},
	{Name: "Mont Kiara", Lat: 3.1569, Lng: 101.6578, Radius: 2000},
	{Name: "Petaling Jaya", Lat: 3.0738, Lng: 101.5183, Radius: 3000},
	{Name: "Subang Jaya", Lat: 3.0738, Lng: 101.5183, Radius: 3000},
}

// areaCacheTTL bounds how long a curated per-area result stays fresh.
const areaCacheTTL = 24 * time.Hour

// Collector gathers the top restaurants across a set of areas, caching the
// curated per-area results and deduplicating across overlapping areas.
type Collector struct {
	fetcher *Fetcher
	cache   Cache
	areas   []Area
	logger  *zap.Logger
}

// NewCollector creates a collector over the given areas. Empty areas falls
// back to DefaultKLAreas; a nil cache disables per-area caching.
func NewCollector(fetcher *Fetcher, cache Cache, areas []Area, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(areas) == 0 {
		areas = DefaultKLAreas
	}
	return &Collector{
		fetcher: fetcher,
		cache:   cache,
		areas:   areas,
		logger:  logger,
	}
}

// CollectTopRestaurants fetches every area concurrently and returns the
// deduplicated union, in area order. Restaurants straddling overlapping
// areas keep their first occurrence.
func (c *Collector) CollectTopRestaurants(ctx context.Context) []restaurant.Metadata {
	ctx, span := tracer.Start(ctx, "Collector.CollectTopRestaurants")
	defer span.End()

	perArea := make([][]restaurant.Metadata, len(c.areas))

	var wg sync.WaitGroup
	for i, area := range c.areas {
		wg.Add(1)
		go func(i int, area Area) {
			defer wg.Done()
			perArea[i] = c.topRestaurantsInArea(ctx, area)
		}(i, area)
	}
	wg.Wait()

	seen := make(map[string]bool)
	var unique []restaurant.Metadata
	for _, restaurants := range perArea {
		for _, r := range restaurants {
			if seen[r.ID] {
				continue
			}
			seen[r.ID] = true
			unique = append(unique, r)
		}
	}

	c.logger.Info("collected unique top restaurants", zap.Int("count", len(unique)))
	return unique
}

// topRestaurantsInArea serves one area, preferring the curated cache entry.
func (c *Collector) topRestaurantsInArea(ctx context.Context, area Area) []restaurant.Metadata {
	cacheKey := fmt.Sprintf("topRestaurants:%s", area.Name)

	if c.cache != nil {
		cached, err := c.cache.Get(ctx, cacheKey)
		switch {
		case err == nil:
			var results []restaurant.Metadata
			if err := json.Unmarshal([]byte(cached), &results); err == nil {
				c.logger.Debug("cache hit for top restaurants", zap.String("area", area.Name))
				return results
			}
			c.logger.Warn("discarding corrupt cache entry", zap.String("key", cacheKey))
		case !errors.Is(err, ErrCacheMiss):
			c.logger.Warn("cache lookup failed", zap.String("key", cacheKey), zap.Error(err))
		}
	}

	results := c.fetcher.TopRestaurantsInArea(ctx, area.Name, area.Lat, area.Lng, area.Radius)

	if c.cache != nil {
		payload, err := json.Marshal(results)
		if err == nil {
			if err := c.cache.Set(ctx, cacheKey, string(payload), areaCacheTTL); err != nil {
				c.logger.Warn("caching top restaurants failed", zap.String("key", cacheKey), zap.Error(err))
			}
		}
	}
	return results
}
