package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/dugoutai/dugout/internal/catalog"
	"github.com/dugoutai/dugout/internal/llm"
	"github.com/dugoutai/dugout/internal/planner"
)

// executeFunctionStep runs a statistics-library function step: resolve the
// parameter template, generate python for the call, run it sandboxed, and
// parse the printed JSON result.
func (e *Executor) executeFunctionStep(ctx context.Context, name string, params planner.Parameters, results map[string]interface{}) (interface{}, error) {
	fn, ok := e.catalog.Function(name)
	if !ok {
		return nil, fmt.Errorf("unknown function %q", name)
	}

	formatted := e.formatParameters(ctx, fn, params, results)

	code, err := e.generateExecutionCode(ctx, fn, formatted)
	if err != nil {
		return nil, fmt.Errorf("code generation for %s: %w", name, err)
	}

	result := e.sandbox.Run(ctx, sanitizeCode(code))
	if !result.Success() {
		return nil, fmt.Errorf("execution of %s failed: %s", name, result.Error)
	}
	if result.Output == "" {
		return nil, nil
	}

	var data interface{}
	if err := json.Unmarshal([]byte(result.Output), &data); err != nil {
		return nil, fmt.Errorf("parsing %s output: %w", name, err)
	}
	if m, ok := data.(map[string]interface{}); ok {
		if msg, found := m["error"]; found {
			return nil, fmt.Errorf("%s reported error: %v", name, msg)
		}
	}
	return data, nil
}

// formatParameters resolves a parameter template into concrete name=value
// pairs. The model sees the function documentation and the prior step
// results and returns a JSON object; if it fails, references are resolved
// locally with the dotted-path walker.
func (e *Executor) formatParameters(ctx context.Context, fn catalog.Function, params planner.Parameters, results map[string]interface{}) map[string]string {
	if params.Value == "" {
		return resolveParams(params, results)
	}

	resultsJSON, _ := json.Marshal(results)
	fnDoc, _ := json.MarshalIndent(fn, "", "  ")

	prompt := fmt.Sprintf(`Format the parameters for a baseball statistics function call.

Function documentation:
%s

Parameter template (may reference prior step results with ${step.field}):
%s

Prior step results:
%s

Resolve every reference against the prior results and return the final
parameters as a flat JSON object mapping parameter names to string values.
Join multiple values for one parameter with commas.

Example output:
{"personIds": "660271,592450", "season": "2024", "group": "hitting"}`,
		string(fnDoc), params.Value, string(resultsJSON))

	result, err := e.llm.Complete(ctx, prompt, llm.Options{
		Operation:      "format_parameters",
		ResponseFormat: "json",
	}, "")
	if err == nil {
		var formatted map[string]string
		if jsonErr := json.Unmarshal([]byte(llm.StripCodeFences(result.Text)), &formatted); jsonErr == nil {
			return mergeSourceParams(formatted, params, results)
		}
	}

	e.logger.Printf("parameter formatting via model failed for %s, resolving locally", fn.Name)
	return resolveParams(params, results)
}

// generateExecutionCode asks the model for the python snippet that performs
// the call and prints its result as JSON.
func (e *Executor) generateExecutionCode(ctx context.Context, fn catalog.Function, params map[string]string) (string, error) {
	fnDoc, _ := json.MarshalIndent(fn, "", "  ")
	paramsJSON, _ := json.Marshal(params)

	prompt := fmt.Sprintf(`Generate Python code to call a baseball statistics function.

Function documentation:
%s

Parameters to use:
%s

Requirements:
1. Import only statsapi and json
2. Use explicit parameter values
3. No try-catch blocks
4. For multiple values, use list comprehension to aggregate results
5. Return results with print(json.dumps())

Return only the Python code.`, string(fnDoc), string(paramsJSON))

	result, err := e.llm.Complete(ctx, prompt, llm.Options{Operation: "generate_code"}, "")
	if err != nil {
		return "", err
	}
	code := llm.StripCodeFences(result.Text)
	if strings.TrimSpace(code) == "" {
		return "", fmt.Errorf("model returned empty code")
	}
	return code, nil
}

// parseParamString splits a "a=1&b=2" parameter string into a map. Segments
// without "=" are ignored.
func parseParamString(value string) map[string]string {
	params := make(map[string]string)
	for _, pair := range strings.Split(value, "&") {
		if pair == "" {
			continue
		}
		key, val, found := strings.Cut(pair, "=")
		if !found {
			continue
		}
		params[strings.TrimSpace(key)] = strings.TrimSpace(val)
	}
	return params
}

// sortedKeys returns map keys in stable order for deterministic URL and
// prompt construction.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
