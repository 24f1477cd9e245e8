// Package documents turns restaurant records into embeddable chunk
// documents.
package documents

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/makanlah/makanrag/internal/chunking"
	"github.com/makanlah/makanrag/internal/llm"
	"github.com/makanlah/makanrag/internal/restaurant"
	"go.uber.org/zap"
)

// ChunkDocument is one bounded-size slice of a restaurant's generated
// description, ready for embedding.
//
// Metadata carries the full restaurant record plus the chunk content and
// position, so every chunk is self-describing once stored. Chunks of one
// restaurant concatenate (in ChunkIndex order) to the full generated
// description, and TotalChunks is the same on all of them.
type ChunkDocument struct {
	// ID is "{restaurantID}_chunk_{index}", deterministic per position.
	ID string

	// Content is the chunk text.
	Content string

	// ChunkIndex is the position within the restaurant's chunk sequence.
	ChunkIndex int

	// TotalChunks is the number of chunks for this restaurant.
	TotalChunks int

	// Metadata is the denormalized payload stored with the vector.
	Metadata map[string]any
}

// Processor generates a rich description for a restaurant via the describer
// and splits it into chunk documents.
//
// The describer is an injected llm.Client so tests can substitute a
// deterministic stub. If the describer fails, the restaurant is skipped for
// this indexing pass: the error propagates and no placeholder description is
// ever substituted.
type Processor struct {
	describer llm.Client
	chunker   *chunking.Strategy
	logger    *zap.Logger
}

// NewProcessor creates a Processor. A nil chunker falls back to the default
// chunk size budget.
func NewProcessor(describer llm.Client, chunker *chunking.Strategy, logger *zap.Logger) *Processor {
	if chunker == nil {
		chunker = chunking.NewStrategy(chunking.DefaultMaxChunkSize)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		describer: describer,
		chunker:   chunker,
		logger:    logger,
	}
}

// CreateRestaurantDocuments synthesizes a comprehensive description for the
// restaurant and wraps each chunk with position metadata and a full copy of
// the restaurant record.
func (p *Processor) CreateRestaurantDocuments(ctx context.Context, r restaurant.Metadata) ([]ChunkDocument, error) {
	description, err := p.describer.Complete(ctx, descriptionPrompt(r))
	if err != nil {
		return nil, fmt.Errorf("generating description for restaurant %s (%s): %w", r.Name, r.ID, err)
	}

	chunks := p.chunker.ChunkSemantically(description)

	docs := make([]ChunkDocument, len(chunks))
	for i, chunk := range chunks {
		docs[i] = ChunkDocument{
			ID:          fmt.Sprintf("%s_chunk_%d", r.ID, i),
			Content:     chunk,
			ChunkIndex:  i,
			TotalChunks: len(chunks),
			Metadata: map[string]any{
				"fsq_place_id": r.ID,
				"name":         r.Name,
				"categories":   r.Categories,
				"location":     r.Location,
				"description":  r.Description,
				"price":        r.Price,
				"rating":       r.Rating,
				"popularity":   r.Popularity,
				"tastes":       r.Tastes,
				"attributes":   r.Attributes,
			},
		}
	}

	p.logger.Debug("created restaurant chunks",
		zap.String("restaurant", r.Name),
		zap.String("fsq_place_id", r.ID),
		zap.Int("chunks", len(docs)),
	)

	return docs, nil
}

// descriptionPrompt builds the description synthesis prompt, substituting
// fallback text for missing fields.
func descriptionPrompt(r restaurant.Metadata) string {
	categories := strings.Join(r.Categories, ", ")
	if categories == "" {
		categories = "No categories available"
	}
	location := r.Location
	if location == "" {
		location = "Address not available"
	}
	description := r.Description
	if description == "" {
		description = "No description available"
	}
	price := "Price not specified"
	if r.Price > 0 {
		price = fmt.Sprintf("%d", r.Price)
	}
	rating := "No rating"
	if r.Rating > 0 {
		rating = fmt.Sprintf("%.1f", r.Rating)
	}
	popularity := "No popularity score"
	if r.Popularity > 0 {
		popularity = fmt.Sprintf("%.2f", r.Popularity)
	}
	tastes := strings.Join(r.Tastes, ", ")
	if tastes == "" {
		tastes = "No tastes available"
	}

	// Sorted keys keep the prompt byte-identical across runs for the
	// same restaurant.
	keys := make([]string, 0, len(r.Attributes))
	for k := range r.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	attrs := make([]string, 0, len(keys))
	for _, k := range keys {
		attrs = append(attrs, fmt.Sprintf("%s=%v", k, r.Attributes[k]))
	}
	attributes := strings.Join(attrs, ", ")
	if attributes == "" {
		attributes = "No attributes available"
	}

	return fmt.Sprintf(`Create a comprehensive description of this restaurant for a food recommendation system.

Restaurant data:
- Name: %s
- Category: %s
- Address: %s
- Description: %s
- Price: %s
- Rating: %s
- Popularity: %s
- Tastes: %s
- Attributes: %s

Write a detailed 4-6 sentence description that covers:
1. What type of restaurant it is and what they serve
2. Their specialties and what they're known for
3. Location and accessibility
4. Rating, pricing, and atmosphere
5. Any unique features or highlights

Make it natural and comprehensive for food recommendations.

Description:`,
		r.Name, categories, location, description, price, rating, popularity, tastes, attributes)
}
