// Package translate localizes the user-visible fields of a reply. English
// passes through untouched, and any translation failure falls back to the
// original text.
package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/dugoutai/dugout/internal/llm"
)

// Translator localizes reply text via the completion adapter.
type Translator struct {
	llm    *llm.Client
	logger *log.Logger
}

// NewTranslator creates a translator.
func NewTranslator(client *llm.Client) *Translator {
	return &Translator{
		llm:    client,
		logger: log.New(log.Writer(), "[TRANSLATE] ", log.LstdFlags),
	}
}

// Fields translates each value of the map into the target language, keeping
// keys and skipping empty values. Failure returns the input unchanged.
func (t *Translator) Fields(ctx context.Context, fields map[string]string, language string) map[string]string {
	if skipLanguage(language) || len(fields) == 0 {
		return fields
	}

	payload, err := json.Marshal(fields)
	if err != nil {
		return fields
	}

	prompt := fmt.Sprintf(`Translate the values of this JSON object into %s.
Keep the keys unchanged, keep baseball terms and proper nouns recognizable,
and return only the translated JSON object.

%s`, language, string(payload))

	result, err := t.llm.Complete(ctx, prompt, llm.Options{
		Operation:      "translate",
		ResponseFormat: "json",
	}, "")
	if err != nil {
		t.logger.Printf("translation to %s failed: %v", language, err)
		return fields
	}

	var translated map[string]string
	if err := json.Unmarshal([]byte(llm.StripCodeFences(result.Text)), &translated); err != nil {
		t.logger.Printf("translation parse failed: %v", err)
		return fields
	}
	for key, original := range fields {
		if translated[key] == "" {
			translated[key] = original
		}
	}
	return translated
}

// Strings translates a list of strings, preserving order and length.
// Failure returns the input unchanged.
func (t *Translator) Strings(ctx context.Context, values []string, language string) []string {
	if skipLanguage(language) || len(values) == 0 {
		return values
	}

	fields := make(map[string]string, len(values))
	for i, v := range values {
		fields[fmt.Sprintf("%d", i)] = v
	}
	translated := t.Fields(ctx, fields, language)

	out := make([]string, len(values))
	for i := range values {
		out[i] = translated[fmt.Sprintf("%d", i)]
		if out[i] == "" {
			out[i] = values[i]
		}
	}
	return out
}

func skipLanguage(language string) bool {
	lang := strings.ToLower(strings.TrimSpace(language))
	return lang == "" || lang == "en" || lang == "english"
}
