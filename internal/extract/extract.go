// Package extract narrows raw step results down to the fields a plan asked
// for. Small payloads go straight through the model; large ones are reduced
// by generated python executed in the sandbox. Extraction never destroys
// data: every failure path returns the input unchanged.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/dugoutai/dugout/internal/llm"
	"github.com/dugoutai/dugout/internal/planner"
	"github.com/dugoutai/dugout/internal/sandbox"
)

const (
	// extractSizeThreshold is the serialized size above which extraction
	// switches from a direct model call to generated code.
	extractSizeThreshold = 500_000

	// filterSizeThreshold is the equivalent cutoff for filtering, which
	// embeds the data in a reasoning prompt and needs far less room.
	filterSizeThreshold = 10_000

	// sampleSize caps the data sample shown to the model when asking it
	// to write reduction code.
	sampleSize = 10_000
)

// Engine applies extraction and filtering specs to step results.
type Engine struct {
	llm     *llm.Client
	sandbox *sandbox.Runner
	logger  *log.Logger
}

// NewEngine creates an extraction engine.
func NewEngine(client *llm.Client, runner *sandbox.Runner) *Engine {
	return &Engine{
		llm:     client,
		sandbox: runner,
		logger:  log.New(log.Writer(), "[EXTRACT] ", log.LstdFlags),
	}
}

// ProcessExtraction applies an extract spec to data. The spec's fields are
// rendered as the extraction instruction; the optional filter runs after.
func (e *Engine) ProcessExtraction(ctx context.Context, data interface{}, spec *planner.ExtractSpec) interface{} {
	if spec == nil || len(spec.Fields) == 0 {
		return data
	}

	instruction, err := json.MarshalIndent(spec.Fields, "", "  ")
	if err != nil {
		return data
	}

	result := e.Extract(ctx, data, string(instruction))
	if spec.Filter != "" && spec.Filter != "none" {
		result = e.Filter(ctx, result, spec.Filter)
	}
	return result
}

// Extract pulls the described fields out of data. Returns data unchanged on
// any failure.
func (e *Engine) Extract(ctx context.Context, data interface{}, instruction string) interface{} {
	serialized, size := serialize(data)
	if size <= extractSizeThreshold {
		return e.direct(ctx, serialized, data, directExtractPrompt(serialized, instruction))
	}
	return e.viaCode(ctx, serialized, data, instruction, "extract_data")
}

// Filter narrows data with a natural-language filter condition. Returns
// data unchanged on any failure.
func (e *Engine) Filter(ctx context.Context, data interface{}, condition string) interface{} {
	serialized, size := serialize(data)
	if size <= filterSizeThreshold {
		return e.direct(ctx, serialized, data, directFilterPrompt(serialized, condition))
	}
	return e.viaCode(ctx, serialized, data, condition, "filter_data")
}

// direct asks the model to do the reduction inline and parses its JSON
// reply.
func (e *Engine) direct(ctx context.Context, serialized string, data interface{}, prompt string) interface{} {
	result, err := e.llm.Complete(ctx, prompt, llm.Options{Operation: "extract"}, "")
	if err != nil {
		e.logger.Printf("direct extraction failed: %v", err)
		return data
	}

	var out interface{}
	if err := json.Unmarshal([]byte(llm.StripCodeFences(result.Text)), &out); err != nil {
		e.logger.Printf("direct extraction parse failed: %v", err)
		return data
	}
	return out
}

// viaCode asks the model for a python reduction function, splices it into a
// runner that reads the full data from a temp file, and executes it in the
// sandbox.
func (e *Engine) viaCode(ctx context.Context, serialized string, data interface{}, instruction, funcName string) interface{} {
	sample := serialized
	if len(sample) > sampleSize {
		sample = sample[:sampleSize]
	}

	prompt := fmt.Sprintf(`Generate Python code to reduce data according to this specification.

Data structure (truncated sample):
%s

Reduction needed:
%s

Return a Python function named %s that takes the data as input and returns the reduced result.`, sample, instruction, funcName)

	result, err := e.llm.Complete(ctx, prompt, llm.Options{Operation: "extract"}, "")
	if err != nil {
		e.logger.Printf("code generation failed: %v", err)
		return data
	}
	code := llm.StripCodeFences(result.Text)

	tempDir, err := os.MkdirTemp("", "dugout-extract-*")
	if err != nil {
		e.logger.Printf("temp dir failed: %v", err)
		return data
	}
	defer os.RemoveAll(tempDir)

	dataFile := filepath.Join(tempDir, "data.json")
	if err := os.WriteFile(dataFile, []byte(serialized), 0o600); err != nil {
		e.logger.Printf("writing data file failed: %v", err)
		return data
	}

	executionCode := fmt.Sprintf(`import json

%s

with open(%q, 'r') as f:
    data = json.load(f)

result = %s(data)
print(json.dumps(result))`, code, dataFile, funcName)

	replResult := e.sandbox.Run(ctx, executionCode)
	if !replResult.Success() {
		e.logger.Printf("sandboxed extraction failed: %s", replResult.Error)
		return data
	}
	if replResult.Output == "" {
		e.logger.Printf("sandboxed extraction produced no output")
		return data
	}

	var out interface{}
	if err := json.Unmarshal([]byte(replResult.Output), &out); err != nil {
		e.logger.Printf("sandboxed extraction parse failed: %v", err)
		return data
	}
	if m, ok := out.(map[string]interface{}); ok {
		if msg, found := m["error"]; found {
			e.logger.Printf("sandboxed extraction reported error: %v", msg)
			return data
		}
	}
	return out
}

func directExtractPrompt(serialized, instruction string) string {
	return fmt.Sprintf(`Given this data:
%s

Extract data given its instruction/schema:
%s

Return only the extracted data in valid JSON format.`, serialized, instruction)
}

func directFilterPrompt(serialized, condition string) string {
	return fmt.Sprintf(`Given this data:
%s

Filter the data to only keep entries matching this condition:
%s

Return only the filtered data in valid JSON format.`, serialized, condition)
}

// serialize renders data to its canonical JSON form and reports its size in
// characters.
func serialize(data interface{}) (string, int) {
	switch v := data.(type) {
	case string:
		return v, len(v)
	}
	b, err := json.Marshal(data)
	if err != nil {
		s := fmt.Sprintf("%v", data)
		return s, len(s)
	}
	return string(b), len(b)
}
