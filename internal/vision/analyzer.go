// Package vision analyzes food photos with a vision-capable model and
// returns structured identification results.
package vision

import (
	"context"
	"errors"
)

var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrNoImages indicates an analysis request without images.
	ErrNoImages = errors.New("no images provided")

	// ErrAnalysisFailed indicates the vision provider call failed or
	// returned an unusable response.
	ErrAnalysisFailed = errors.New("vision analysis failed")
)

// Image is one uploaded food photo.
type Image struct {
	// Data is the raw image bytes.
	Data []byte

	// MimeType is the content type, e.g. "image/jpeg".
	MimeType string
}

// FoodAnalysisResult is the structured output of food image analysis.
type FoodAnalysisResult struct {
	// FoodItems lists all identifiable food items.
	FoodItems []string `json:"foodItems"`

	// Cuisine is the identified cuisine type.
	Cuisine string `json:"cuisine"`

	// Description briefly describes the food and where to find it.
	Description string `json:"description"`

	// Recommendations suggests similar dishes or alternatives.
	Recommendations []string `json:"recommendations"`

	// Confidence is the identification confidence in [0, 1].
	Confidence float64 `json:"confidence"`
}

// Analyzer extracts a FoodAnalysisResult from food photos.
//
// Analysis failures are returned as errors; falling back to text-only
// retrieval is the caller's decision, not the analyzer's.
type Analyzer interface {
	Analyze(ctx context.Context, images []Image, userMessage string) (*FoodAnalysisResult, error)
}
