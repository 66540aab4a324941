// Package llm adapts the completion service behind a model-fallback client.
// Callers ask for a completion with a preferred model; the client handles
// rate-limit retries and walks the configured model hierarchy when a model
// keeps failing.
package llm

import (
	"context"
	"fmt"

	"github.com/dugoutai/dugout/config"
)

// Provider is a raw completion backend for a single vendor.
type Provider interface {
	// GenerateWithTokens produces a completion and reports token usage.
	GenerateWithTokens(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, int64, int64, error)

	// GetModelInfo returns information about a configured model.
	GetModelInfo(model string) (ModelInfo, error)

	// CalculateCost calculates the cost for a given number of tokens.
	CalculateCost(inputTokens, outputTokens int64, model string) float64
}

// ModelInfo describes one configured model.
type ModelInfo struct {
	Name            string
	Provider        string
	MaxTokens       int
	CostPer1KInput  float64
	CostPer1KOutput float64
	Description     string
}

// NewProvider creates a completion provider based on configuration.
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	switch cfg.Provider {
	case "gemini", "":
		return NewGeminiProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider type: %s", cfg.Provider)
	}
}
