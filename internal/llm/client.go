package llm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/dugoutai/dugout/config"
	"github.com/dugoutai/dugout/internal/telemetry"
)

// ErrAllModelsExhausted is returned when every model in the hierarchy has
// been rate limited past its retry budget.
var ErrAllModelsExhausted = errors.New("all models in fallback hierarchy exhausted")

// Options controls a single completion call.
type Options struct {
	// Operation names the pipeline phase for cost attribution (intent,
	// plan, extract, respond...).
	Operation string

	Temperature    *float64
	MaxTokens      int
	ResponseFormat string // "json" requests a JSON document
	ResponseSchema interface{}
}

// Result is a completed generation.
type Result struct {
	Text         string
	Model        string
	InputTokens  int64
	OutputTokens int64
	Cost         float64
}

// Client wraps a Provider with rate-limit retries and model downgrade.
//
// The hierarchy is ordered cheapest first. A preferred model is tried first;
// when a model keeps returning rate-limit errors past the retry budget the
// client moves to the next model in the hierarchy. Models are never
// revisited within one call.
type Client struct {
	provider  Provider
	cfg       config.LLMConfig
	telemetry *telemetry.Telemetry
	logger    *log.Logger
}

// NewClient creates a completion client.
func NewClient(provider Provider, cfg config.LLMConfig, tel *telemetry.Telemetry) *Client {
	return &Client{
		provider:  provider,
		cfg:       cfg,
		telemetry: tel,
		logger:    log.New(log.Writer(), "[LLM] ", log.LstdFlags),
	}
}

// Complete runs one completion with retry and model fallback. preferredModel
// may be empty, in which case the hierarchy is walked from the top.
func (c *Client) Complete(ctx context.Context, prompt string, opts Options, preferredModel string) (Result, error) {
	models := c.candidateModels(preferredModel)
	if len(models) == 0 {
		return Result{}, fmt.Errorf("no models configured")
	}

	options := map[string]interface{}{}
	if opts.Temperature != nil {
		options["temperature"] = *opts.Temperature
	}
	if opts.MaxTokens > 0 {
		options["max_tokens"] = opts.MaxTokens
	}
	if opts.ResponseFormat == "json" {
		options["response_format"] = "json"
	}
	if opts.ResponseSchema != nil {
		options["response_schema"] = opts.ResponseSchema
	}

	for _, model := range models {
		text, inTok, outTok, err := c.completeWithRetry(ctx, prompt, model, options)
		if err == nil {
			if opts.ResponseFormat == "json" || opts.ResponseSchema != nil {
				text = StripCodeFences(text)
			}
			cost := c.provider.CalculateCost(inTok, outTok, model)
			if c.telemetry != nil {
				c.telemetry.RecordLLMEvent(ctx, telemetry.LLMEvent{
					Operation:    opts.Operation,
					Model:        model,
					InputTokens:  inTok,
					OutputTokens: outTok,
					Cost:         cost,
				})
			}
			return Result{Text: text, Model: model, InputTokens: inTok, OutputTokens: outTok, Cost: cost}, nil
		}
		if !IsRateLimited(err) {
			return Result{}, fmt.Errorf("completion with model %s: %w", model, err)
		}
		c.logger.Printf("model %s rate limited past retry budget, falling back", model)
	}

	return Result{}, ErrAllModelsExhausted
}

// completeWithRetry retries a single model on rate-limit errors. Any other
// error, including context cancellation, stops the retry loop immediately.
func (c *Client) completeWithRetry(ctx context.Context, prompt, model string, options map[string]interface{}) (string, int64, int64, error) {
	var text string
	var inTok, outTok int64

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.cfg.RetryBackoff
	policy.Multiplier = 1
	policy.MaxInterval = c.cfg.RetryBackoffCap
	policy.MaxElapsedTime = 0
	policy.RandomizationFactor = 0

	attempts := c.cfg.RateLimitRetries
	if attempts <= 0 {
		attempts = 1
	}

	operation := func() error {
		var err error
		text, inTok, outTok, err = c.provider.GenerateWithTokens(ctx, prompt, model, options)
		if err == nil {
			return nil
		}
		if IsRateLimited(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	err := backoff.Retry(operation,
		backoff.WithContext(backoff.WithMaxRetries(policy, uint64(attempts-1)), ctx))
	if err != nil {
		return "", 0, 0, err
	}
	return text, inTok, outTok, nil
}

// candidateModels orders the hierarchy starting from the preferred model.
// Models cheaper than the preferred one are skipped; a preferred model
// outside the hierarchy is tried first and then the full hierarchy follows.
func (c *Client) candidateModels(preferred string) []string {
	hierarchy := c.cfg.Hierarchy
	if preferred == "" {
		return hierarchy
	}
	for i, m := range hierarchy {
		if m == preferred {
			return hierarchy[i:]
		}
	}
	out := make([]string, 0, len(hierarchy)+1)
	out = append(out, preferred)
	out = append(out, hierarchy...)
	return out
}

// IsRateLimited reports whether an error represents a completion service
// rate limit.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "RESOURCE_EXHAUSTED") ||
		strings.Contains(strings.ToLower(msg), "rate limit")
}

// StripCodeFences removes a surrounding markdown code fence from a model
// response. Models often wrap JSON in ```json blocks even when asked not to.
func StripCodeFences(s string) string {
	out := strings.TrimSpace(s)
	if !strings.HasPrefix(out, "```") {
		return out
	}
	out = strings.TrimPrefix(out, "```json")
	out = strings.TrimPrefix(out, "```python")
	out = strings.TrimPrefix(out, "```")
	out = strings.TrimSuffix(strings.TrimSpace(out), "```")
	return strings.TrimSpace(out)
}

// RetryBudget reports the configured per-model retry schedule. Used by
// callers that want to log expected worst-case latency.
func (c *Client) RetryBudget() (attempts int, initial, cap time.Duration) {
	return c.cfg.RateLimitRetries, c.cfg.RetryBackoff, c.cfg.RetryBackoffCap
}
