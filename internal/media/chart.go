package media

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/dugoutai/dugout/internal/llm"
)

// Chart is the visualization decision for a reply. RequiresChart false
// means render nothing.
type Chart struct {
	RequiresChart bool        `json:"requires_chart"`
	ChartType     string      `json:"chart_type,omitempty"`
	Variant       string      `json:"variant,omitempty"`
	Data          interface{} `json:"data,omitempty"`
}

// chartTypes are the renderable chart families.
var chartTypes = map[string]bool{
	"area":   true,
	"bar":    true,
	"pie":    true,
	"radar":  true,
	"radial": true,
}

// ChartResolver decides whether and how to visualize retrieved data. The
// chart docs describe each chart family's variants and expected data shape.
type ChartResolver struct {
	llm    *llm.Client
	docs   map[string]interface{}
	logger *log.Logger
}

// NewChartResolver loads the chart documentation from docsPath. A missing
// file disables charts rather than failing startup.
func NewChartResolver(client *llm.Client, docsPath string) *ChartResolver {
	r := &ChartResolver{
		llm:    client,
		logger: log.New(log.Writer(), "[CHART] ", log.LstdFlags),
	}
	if docsPath == "" {
		return r
	}
	data, err := os.ReadFile(docsPath)
	if err != nil {
		r.logger.Printf("chart docs unavailable, charts disabled: %v", err)
		return r
	}
	if err := json.Unmarshal(data, &r.docs); err != nil {
		r.logger.Printf("chart docs invalid, charts disabled: %v", err)
		r.docs = nil
	}
	return r
}

// Resolve picks a chart for the retrieved data. Any failure, including a
// chart type or variant outside the docs, yields requires_chart=false.
func (r *ChartResolver) Resolve(ctx context.Context, message string, results map[string]interface{}) Chart {
	none := Chart{RequiresChart: false}
	if r.docs == nil || len(results) == 0 {
		return none
	}

	docsJSON, _ := json.Marshal(r.docs)
	resultsJSON, _ := json.Marshal(results)

	prompt := fmt.Sprintf(`Decide whether a chart would help present this baseball data, and build it.

User message: %s

Retrieved data:
%s

Available chart types and variants:
%s

Respond with a JSON object:
{
    "requires_chart": true or false,
    "chart_type": "area | bar | pie | radar | radial",
    "variant": "a variant listed in the docs for that chart type",
    "data": {"chart data in the shape the docs describe"}
}

Set requires_chart to false when the data does not benefit from a chart.`,
		message, string(resultsJSON), string(docsJSON))

	result, err := r.llm.Complete(ctx, prompt, llm.Options{
		Operation:      "chart",
		ResponseFormat: "json",
	}, "")
	if err != nil {
		r.logger.Printf("chart resolution failed: %v", err)
		return none
	}

	var chart Chart
	if err := json.Unmarshal([]byte(llm.StripCodeFences(result.Text)), &chart); err != nil {
		r.logger.Printf("chart parse failed: %v", err)
		return none
	}
	if !chart.RequiresChart {
		return none
	}
	if !chartTypes[chart.ChartType] {
		r.logger.Printf("unknown chart type %q", chart.ChartType)
		return none
	}
	if !r.validVariant(chart.ChartType, chart.Variant) {
		r.logger.Printf("unknown variant %q for chart type %q", chart.Variant, chart.ChartType)
		return none
	}
	if chart.Data == nil {
		return none
	}
	return chart
}

// validVariant checks the variant against the docs entry for the chart
// type. Docs entries may list variants as an array or as an object keyed by
// variant name.
func (r *ChartResolver) validVariant(chartType, variant string) bool {
	if variant == "" {
		return false
	}
	entry, ok := r.docs[chartType]
	if !ok {
		return false
	}
	switch v := entry.(type) {
	case map[string]interface{}:
		if variants, ok := v["variants"]; ok {
			return containsVariant(variants, variant)
		}
		_, ok := v[variant]
		return ok
	case []interface{}:
		return containsVariant(v, variant)
	}
	return false
}

func containsVariant(variants interface{}, variant string) bool {
	switch v := variants.(type) {
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok && s == variant {
				return true
			}
			if m, ok := item.(map[string]interface{}); ok {
				if name, ok := m["name"].(string); ok && name == variant {
					return true
				}
			}
		}
	case map[string]interface{}:
		_, ok := v[variant]
		return ok
	}
	return false
}
