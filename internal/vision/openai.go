package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// foodAnalysisPrompt is tuned for Malaysian and Southeast Asian street food
// recognition.
const foodAnalysisPrompt = `You are a food analysis expert. Analyze the food in the provided images and respond with a single JSON object with these fields:

- foodItems: array of all identifiable food items
- cuisine: the cuisine type (e.g. Malaysian, Chinese, Indian)
- description: brief description of the food and where to get it (e.g. palak paneer from an Indian restaurant)
- recommendations: array of similar dishes or alternatives
- confidence: confidence score between 0 and 1 for the identification

Focus on:
- Traditional Malaysian/South East Asian dishes
- Street food identification
- Ingredient recognition
- Cultural context of the food

Respond with JSON only, no prose.`

// Config holds configuration for the OpenAI-compatible vision client.
type Config struct {
	// BaseURL is the base URL for the chat completions API.
	// Default: "https://api.openai.com"
	BaseURL string

	// Model is a vision-capable model.
	// Default: "gpt-4o-mini"
	Model string

	// APIKey is the bearer token for the provider.
	APIKey string

	// Timeout bounds each provider call.
	// Default: 120s
	Timeout time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com"
	}
	if c.Model == "" {
		c.Model = "gpt-4o-mini"
	}
	if c.Timeout == 0 {
		c.Timeout = 120 * time.Second
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	if c.Model == "" {
		return fmt.Errorf("%w: model required", ErrInvalidConfig)
	}
	return nil
}

// OpenAIAnalyzer implements Analyzer against an OpenAI-compatible chat API
// with image inputs. Images are sent inline as base64 data URLs.
type OpenAIAnalyzer struct {
	config Config
	client *http.Client
	logger *zap.Logger
}

// NewOpenAIAnalyzer creates an analyzer with the given configuration.
func NewOpenAIAnalyzer(config Config, logger *zap.Logger) (*OpenAIAnalyzer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if config.APIKey == "" {
		return nil, fmt.Errorf("%w: API key required", ErrInvalidConfig)
	}

	return &OpenAIAnalyzer{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		logger: logger,
	}, nil
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type visionMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type visionRequest struct {
	Model          string          `json:"model"`
	Messages       []visionMessage `json:"messages"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

type visionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Analyze sends the images and user message to the vision model and parses
// the structured result. Confidence is clamped to [0, 1].
func (a *OpenAIAnalyzer) Analyze(ctx context.Context, images []Image, userMessage string) (*FoodAnalysisResult, error) {
	if len(images) == 0 {
		return nil, ErrNoImages
	}
	if userMessage == "" {
		userMessage = "What food do you see in this image?"
	}

	parts := make([]contentPart, 0, len(images)+1)
	parts = append(parts, contentPart{
		Type: "text",
		Text: foodAnalysisPrompt + "\n\nUser query: " + userMessage,
	})
	for _, img := range images {
		mime := img.MimeType
		if mime == "" {
			mime = "image/jpeg"
		}
		parts = append(parts, contentPart{
			Type: "image_url",
			ImageURL: &imageURL{
				URL:    fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(img.Data)),
				Detail: "high",
			},
		})
	}

	req := visionRequest{
		Model:    a.config.Model,
		Messages: []visionMessage{{Role: "user", Content: parts}},
	}
	req.ResponseFormat.Type = "json_object"

	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.BaseURL+"/v1/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.config.APIKey)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAnalysisFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: status %d: %s", ErrAnalysisFailed, resp.StatusCode, string(body))
	}

	var parsed visionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrAnalysisFailed, err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty response", ErrAnalysisFailed)
	}

	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	// Some models wrap the JSON in a markdown fence despite json_object mode.
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var result FoodAnalysisResult
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return nil, fmt.Errorf("%w: parsing analysis JSON: %v", ErrAnalysisFailed, err)
	}

	if result.Confidence < 0 {
		result.Confidence = 0
	}
	if result.Confidence > 1 {
		result.Confidence = 1
	}

	a.logger.Debug("vision analysis complete",
		zap.Int("images", len(images)),
		zap.Strings("food_items", result.FoodItems),
		zap.String("cuisine", result.Cuisine),
		zap.Float64("confidence", result.Confidence),
	)

	return &result, nil
}

// Ensure OpenAIAnalyzer implements Analyzer.
var _ Analyzer = (*OpenAIAnalyzer)(nil)
