package executor

import (
	"fmt"
	"strings"

	"github.com/dugoutai/dugout/internal/planner"
)

// resolveReferencesLocally substitutes every ${step.field} reference in a
// parameter template with the value found in prior step results. Used as the
// deterministic fallback when model-based parameter formatting fails.
// Unresolvable references become empty strings.
func resolveReferencesLocally(value string, results map[string]interface{}) string {
	for _, ref := range planner.ParseReferences(value) {
		resolved := ""
		if stepResult, ok := results[ref.StepID]; ok {
			if v, ok := lookupPath(stepResult, planner.NormalizePath(ref.Path)); ok {
				resolved = renderValue(v)
			}
		}
		value = strings.ReplaceAll(value, ref.Raw, resolved)
	}
	return value
}

// resolveParams turns a step's parameter declaration into concrete
// name=value pairs without model help: template references resolve through
// the dotted-path walker, then any source_step/source_path object
// contributes its fields.
func resolveParams(params planner.Parameters, results map[string]interface{}) map[string]string {
	out := parseParamString(resolveReferencesLocally(params.Value, results))
	return mergeSourceParams(out, params, results)
}

// mergeSourceParams merges the fields of the result object named by
// source_step (optionally dug into with source_path) into out. Keys already
// present win: the template form is the more specific declaration.
func mergeSourceParams(out map[string]string, params planner.Parameters, results map[string]interface{}) map[string]string {
	if out == nil {
		out = make(map[string]string)
	}
	if params.SourceStep == "" {
		return out
	}
	data, ok := results[params.SourceStep]
	if !ok {
		return out
	}
	if path := planner.NormalizePath(params.SourcePath); path != "" {
		if data, ok = lookupPath(data, path); !ok {
			return out
		}
	}
	m, ok := data.(map[string]interface{})
	if !ok {
		return out
	}
	for key, v := range m {
		if _, exists := out[key]; exists {
			continue
		}
		if s := renderValue(v); s != "" {
			out[key] = s
		}
	}
	return out
}

// lookupPath walks a dotted path through nested maps. Array wildcards and
// indexes are not interpreted here; a path segment that misses ends the
// walk.
func lookupPath(data interface{}, path string) (interface{}, bool) {
	if path == "" {
		return data, true
	}
	current := data
	for _, segment := range strings.Split(path, ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// renderValue flattens a resolved reference value into parameter-string
// form. Lists join with commas, matching how the statistics API accepts
// multi-valued parameters.
func renderValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	case bool:
		return fmt.Sprintf("%t", val)
	case []interface{}:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			parts = append(parts, renderValue(item))
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprintf("%v", val)
	}
}

// isFalsy reports whether a step result carries no usable data: nil, empty
// string, empty collection, or zero number.
func isFalsy(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case bool:
		return !val
	case float64:
		return val == 0
	case []interface{}:
		return len(val) == 0
	case map[string]interface{}:
		return len(val) == 0
	}
	return false
}
