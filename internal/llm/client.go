// Package llm provides text completion via an OpenAI-compatible chat API.
//
// The client is used for restaurant description synthesis at indexing time
// and for composing grounded answers at query time.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrCompletionFailed indicates the provider call failed
	// (network, auth, rate limit, malformed response).
	ErrCompletionFailed = errors.New("completion failed")
)

// Client generates a text completion for a prompt.
//
// Implementations own their retry and rate-limit policy; callers treat a
// returned error as final.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Config holds configuration for the OpenAI-compatible client.
type Config struct {
	// BaseURL is the base URL for the chat completions API.
	// Default: "https://api.openai.com"
	BaseURL string

	// Model is the completion model.
	// Default: "gpt-4o-mini"
	Model string

	// APIKey is the bearer token for the provider.
	APIKey string

	// Timeout bounds each provider call.
	// Default: 120s
	Timeout time.Duration

	// MaxTokens caps the completion length.
	// Default: 1024
	MaxTokens int

	// Temperature controls sampling randomness.
	// Default: 0.7
	Temperature float64

	// RequestsPerSecond is the client-side rate limit.
	// Default: 2
	RequestsPerSecond float64

	// MaxRetries is the retry budget for 429/5xx responses.
	// Default: 3
	MaxRetries int
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
	if c.MaxTokens == 0 {
		c.MaxTokens = 1024
	}
	if c.Temperature == 0 {
		c.Temperature = 0.7
	}
	if c.RequestsPerSecond == 0 {
		c.RequestsPerSecond = 2
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
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

// retryableError marks provider failures worth retrying (429, 5xx, network).
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

func isRetryableError(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}
