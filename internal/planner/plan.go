// Package planner turns an intent analysis into a validated data retrieval
// plan over the statistics catalog. Synthesis failures never propagate; a
// deterministic single-step fallback plan takes over instead.
package planner

import (
	"regexp"
	"strings"
)

// Step types.
const (
	StepTypeFunction = "function"
	StepTypeEndpoint = "endpoint"
)

// Parameters holds a step's parameter specification. Value is a template
// string that may reference prior step results with ${step.field} syntax.
type Parameters struct {
	Value      string `json:"value,omitempty"`
	SourceStep string `json:"source_step,omitempty"`
	SourcePath string `json:"source_path,omitempty"`
	Filter     string `json:"filter,omitempty"`
}

// ExtractSpec names the fields to pull out of a step's raw result, each as
// a JSONPath expression, plus an optional natural-language filter.
type ExtractSpec struct {
	Fields map[string]string `json:"fields"`
	Filter string            `json:"filter,omitempty"`
}

// StepFallback is an alternative step tried when the primary step fails.
type StepFallback struct {
	Type       string      `json:"type"`
	Name       string      `json:"name"`
	Parameters *Parameters `json:"parameters,omitempty"`
}

// Step is one unit of the retrieval plan.
type Step struct {
	ID          string        `json:"id"`
	Type        string        `json:"type"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Parameters  Parameters    `json:"parameters"`
	Extract     *ExtractSpec  `json:"extract,omitempty"`
	DependsOn   []string      `json:"depends_on"`
	Fallback    *StepFallback `json:"fallback,omitempty"`
}

// FallbackPlan is a plan-level alternative used when every main step fails.
type FallbackPlan struct {
	Enabled  bool   `json:"enabled"`
	Strategy string `json:"strategy"`
	Steps    []Step `json:"steps"`
}

// Plan is a validated retrieval plan. Steps execute in order; references
// may only point backwards.
type Plan struct {
	Steps        []Step              `json:"steps"`
	Fallback     *FallbackPlan       `json:"fallback,omitempty"`
	Dependencies map[string][]string `json:"dependencies"`
}

// Reference is a parsed ${step.field} parameter reference.
type Reference struct {
	StepID string
	Path   string
	Raw    string
}

var refPattern = regexp.MustCompile(`\$\{([a-zA-Z0-9_\-]+)\.([^}]+)\}`)

// ParseReferences extracts every ${step.field} reference in a parameter
// template.
func ParseReferences(value string) []Reference {
	matches := refPattern.FindAllStringSubmatch(value, -1)
	refs := make([]Reference, 0, len(matches))
	for _, m := range matches {
		refs = append(refs, Reference{StepID: m[1], Path: m[2], Raw: m[0]})
	}
	return refs
}

// References returns all parameter references of a step.
func (s Step) References() []Reference {
	return ParseReferences(s.Parameters.Value)
}

// StepIDs returns the plan's step ids in order.
func (p Plan) StepIDs() []string {
	ids := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		ids[i] = s.ID
	}
	return ids
}

// NormalizePath strips a leading "$." JSONPath prefix so references and
// extract paths share one dotted form.
func NormalizePath(path string) string {
	path = strings.TrimSpace(path)
	path = strings.TrimPrefix(path, "$.")
	return strings.TrimPrefix(path, "$")
}
