package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/makanlah/makanrag/internal/llm"
	"github.com/makanlah/makanrag/internal/vision"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// visionRetrievalTopK is how many restaurants ground a vision answer. Food
// photos are ambiguous, so the net is cast wider than for text queries.
const visionRetrievalTopK = 5

// Retriever is the retrieval capability the vision pipeline depends on.
type Retriever interface {
	RetrieveRelevantRestaurants(ctx context.Context, query string, topK int) []QueryResult
}

var _ Retriever = (*Service)(nil)

// VisionRAGResult carries the full output of a vision-grounded answer.
type VisionRAGResult struct {
	// VisionAnalysis is the structured food analysis of the images.
	VisionAnalysis *vision.FoodAnalysisResult

	// RAGContext is the retrieved restaurant content, one restaurant per
	// paragraph. Empty when retrieval degraded or matched nothing.
	RAGContext string

	// Response is the final grounded answer text.
	Response string
}

// VisionRAG answers food-photo questions by analyzing the images, retrieving
// matching restaurants, and generating a grounded response.
//
// Unlike text retrieval, a vision analysis failure propagates: without the
// analysis there is nothing to build a query or an answer from. Retrieval
// inside the pipeline still degrades to an empty context.
type VisionRAG struct {
	analyzer  vision.Analyzer
	retriever Retriever
	generator llm.Client
	logger    *zap.Logger
}

// NewVisionRAG creates the vision pipeline with explicit dependencies.
func NewVisionRAG(analyzer vision.Analyzer, retriever Retriever, generator llm.Client, logger *zap.Logger) *VisionRAG {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VisionRAG{
		analyzer:  analyzer,
		retriever: retriever,
		generator: generator,
		logger:    logger,
	}
}

// ProcessVisionWithRAG runs the full pipeline: analyze images, derive a
// search query from the detected foods, retrieve restaurant context, and
// generate the final answer.
func (v *VisionRAG) ProcessVisionWithRAG(ctx context.Context, images []vision.Image, userMessage string) (*VisionRAGResult, error) {
	ctx, span := tracer.Start(ctx, "VisionRAG.ProcessVisionWithRAG")
	defer span.End()

	span.SetAttributes(attribute.Int("image_count", len(images)))

	analysis, err := v.analyzer.Analyze(ctx, images, userMessage)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("analyzing images: %w", err)
	}

	query := buildSearchQuery(analysis, userMessage)
	v.logger.Debug("derived search query from vision analysis",
		zap.String("query", query),
		zap.Strings("food_items", analysis.FoodItems),
		zap.String("cuisine", analysis.Cuisine),
	)

	results := v.retriever.RetrieveRelevantRestaurants(ctx, query, visionRetrievalTopK)

	contents := make([]string, 0, len(results))
	for _, r := range results {
		contents = append(contents, r.Content)
	}
	ragContext := strings.Join(contents, "\n\n")

	response, err := v.generator.Complete(ctx, combinedPrompt(analysis, ragContext, userMessage))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("generating grounded response: %w", err)
	}

	span.SetAttributes(attribute.Int("retrieved_restaurants", len(results)))
	span.SetStatus(codes.Ok, "success")

	return &VisionRAGResult{
		VisionAnalysis: analysis,
		RAGContext:     ragContext,
		Response:       response,
	}, nil
}

// buildSearchQuery joins the detected food items, the cuisine, and the
// user's message into one retrieval query.
func buildSearchQuery(analysis *vision.FoodAnalysisResult, userMessage string) string {
	parts := make([]string, 0, len(analysis.FoodItems)+2)
	parts = append(parts, analysis.FoodItems...)
	if analysis.Cuisine != "" {
		parts = append(parts, analysis.Cuisine)
	}
	if userMessage != "" {
		parts = append(parts, userMessage)
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

// combinedPrompt merges the vision analysis, the retrieved restaurant
// context, and the user's question into the generation prompt.
func combinedPrompt(analysis *vision.FoodAnalysisResult, ragContext, userMessage string) string {
	var b strings.Builder

	b.WriteString("You are a Malaysian food expert assistant helping users discover great food in Kuala Lumpur.\n\n")

	b.WriteString("Image analysis:\n")
	fmt.Fprintf(&b, "- Detected food items: %s\n", joinOrNone(analysis.FoodItems))
	fmt.Fprintf(&b, "- Cuisine: %s\n", orNone(analysis.Cuisine))
	fmt.Fprintf(&b, "- Description: %s\n", orNone(analysis.Description))
	fmt.Fprintf(&b, "- Suggestions: %s\n\n", joinOrNone(analysis.Recommendations))

	if ragContext != "" {
		b.WriteString("Relevant restaurants from our database:\n")
		b.WriteString(ragContext)
		b.WriteString("\n\n")
	} else {
		b.WriteString("No matching restaurants were found in our database.\n\n")
	}

	fmt.Fprintf(&b, "User's question: %s\n\n", userMessage)

	b.WriteString("Answer the user's question about the food in the image. ")
	b.WriteString("If relevant restaurants were found, recommend specific ones by name and explain why they match. ")
	b.WriteString("If none were found, answer from the image analysis alone and say you could not find a matching restaurant.")

	return b.String()
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
