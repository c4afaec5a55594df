// Package llm implements the fallback language-model classifier, the most
// expensive and last-consulted classification source.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Client defines the interface for LLM providers.
type Client interface {
	Classify(ctx context.Context, prompt string) (ClassificationResponse, error)
	Provider() string
	Model() string
}

// ClassificationResponse contains the LLM's classification result.
type ClassificationResponse struct {
	Account    string
	Rationale  string
	Confidence float64
}

// Config holds configuration for the LLM classifier.
type Config struct {
	Provider         string
	APIKey           string
	Model            string
	MaxRetries       int
	RetryDelay       time.Duration
	CacheTTL         time.Duration
	RequestTimeout   time.Duration
	RateLimit        int
	Temperature      float64
	MaxTokens        int
	CostPerCallCents int64
}

// newClient builds a provider client from config.
func newClient(cfg Config) (Client, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		return newOpenAIClient(cfg)
	case "anthropic":
		return newAnthropicClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}
