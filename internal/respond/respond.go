// Package respond turns executed plan results into user-facing text: the
// formatted data summary, conversational replies, and follow-up
// suggestions. Every path degrades to a fixed default rather than an error.
package respond

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/dugoutai/dugout/internal/intent"
	"github.com/dugoutai/dugout/internal/llm"
)

const defaultSummary = "Here's what I found about the baseball stats."

const defaultConversation = "I'd be happy to talk baseball with you! What would you like to know about the game?"

const errorMessage = "I encountered an issue processing your request."

var defaultSuggestions = []string{
	"Tell me about today's games",
	"Who are the top players this season?",
	"Show me the latest standings",
	"What are some exciting home runs?",
	"Tell me about your favorite baseball moment",
}

var errorSuggestions = []string{
	"Try asking about today's games",
	"Look up a specific player",
	"Check team standings",
}

// Formatted is the composed data answer: a prose summary plus the details
// and media references the model chose to surface.
type Formatted struct {
	Summary string      `json:"summary"`
	Details interface{} `json:"details,omitempty"`
	Media   interface{} `json:"media,omitempty"`
}

// Composer builds user-facing responses from plan results.
type Composer struct {
	llm    *llm.Client
	model  string
	logger *log.Logger
}

// NewComposer creates a response composer. model is the preferred
// composition model.
func NewComposer(client *llm.Client, model string) *Composer {
	return &Composer{
		llm:    client,
		model:  model,
		logger: log.New(log.Writer(), "[RESPOND] ", log.LstdFlags),
	}
}

// FormatResponse summarizes the executed plan results for the user. Any
// failure yields the default summary with the raw results attached.
func (c *Composer) FormatResponse(ctx context.Context, message string, analysis intent.Analysis, results map[string]interface{}) Formatted {
	fallback := Formatted{Summary: defaultSummary, Details: results}

	resultsJSON, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fallback
	}
	intentJSON, _ := json.Marshal(analysis)

	prompt := fmt.Sprintf(`You are a friendly baseball assistant. Summarize the retrieved data to answer the user's question.

User question: %s

Intent analysis:
%s

Retrieved data:
%s

Respond with a JSON object:
{
    "summary": "conversational answer grounded in the data",
    "details": {"any structured details worth surfacing"},
    "media": []
}

Keep the summary natural and specific to the data. Do not invent statistics.`,
		message, string(intentJSON), string(resultsJSON))

	result, err := c.llm.Complete(ctx, prompt, llm.Options{
		Operation:      "format_response",
		ResponseFormat: "json",
	}, c.model)
	if err != nil {
		c.logger.Printf("response formatting failed: %v", err)
		return fallback
	}

	var formatted Formatted
	if err := json.Unmarshal([]byte(llm.StripCodeFences(result.Text)), &formatted); err != nil {
		c.logger.Printf("response parse failed: %v", err)
		return fallback
	}
	if formatted.Summary == "" {
		formatted.Summary = defaultSummary
	}
	return formatted
}

// Conversation generates a reply for messages that need no data retrieval.
func (c *Composer) Conversation(ctx context.Context, message string, history string) string {
	prompt := fmt.Sprintf(`You are a friendly baseball assistant having a casual conversation.

Conversation history:
%s

User message: %s

Reply naturally in one or two sentences. Stay on baseball when you can,
but answer the user's message directly.`, history, message)

	result, err := c.llm.Complete(ctx, prompt, llm.Options{Operation: "conversation"}, c.model)
	if err != nil || result.Text == "" {
		c.logger.Printf("conversation generation failed: %v", err)
		return defaultConversation
	}
	return result.Text
}

// Suggestions proposes 3-5 follow-up questions for the user. Failure or an
// out-of-range count yields the fixed defaults.
func (c *Composer) Suggestions(ctx context.Context, message string, analysis intent.Analysis) []string {
	intentJSON, _ := json.Marshal(analysis)

	prompt := fmt.Sprintf(`Suggest follow-up questions for a baseball conversation.

User message: %s

Intent analysis:
%s

Return a JSON array of 3 to 5 short follow-up questions the user might ask
next.`, message, string(intentJSON))

	result, err := c.llm.Complete(ctx, prompt, llm.Options{
		Operation:      "suggestions",
		ResponseFormat: "json",
		ResponseSchema: map[string]interface{}{
			"type":     "array",
			"items":    map[string]interface{}{"type": "string"},
			"minItems": 3,
			"maxItems": 5,
		},
	}, c.model)
	if err != nil {
		c.logger.Printf("suggestion generation failed: %v", err)
		return defaults()
	}

	var suggestions []string
	if err := json.Unmarshal([]byte(llm.StripCodeFences(result.Text)), &suggestions); err != nil {
		c.logger.Printf("suggestion parse failed: %v", err)
		return defaults()
	}
	if len(suggestions) < 3 || len(suggestions) > 5 {
		return defaults()
	}
	for _, s := range suggestions {
		if s == "" {
			return defaults()
		}
	}
	return suggestions
}

// ErrorReply is the fixed catastrophic-failure response. The technical
// detail goes only into data.error.
func ErrorReply(err error) (message string, dataType string, data map[string]interface{}, suggestions []string) {
	detail := "unknown error"
	if err != nil {
		detail = err.Error()
	}
	out := make([]string, len(errorSuggestions))
	copy(out, errorSuggestions)
	return errorMessage, "error", map[string]interface{}{"error": detail}, out
}

func defaults() []string {
	out := make([]string, len(defaultSuggestions))
	copy(out, defaultSuggestions)
	return out
}
