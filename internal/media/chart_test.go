package media

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dugoutai/dugout/config"
	"github.com/dugoutai/dugout/internal/llm"
)

type chartStubProvider struct {
	text string
	err  error
}

func (p *chartStubProvider) GenerateWithTokens(ctx context.Context, prompt, model string, options map[string]interface{}) (string, int64, int64, error) {
	return p.text, 5, 5, p.err
}

func (p *chartStubProvider) GetModelInfo(model string) (llm.ModelInfo, error) {
	return llm.ModelInfo{Name: model}, nil
}

func (p *chartStubProvider) CalculateCost(in, out int64, model string) float64 { return 0 }

func chartDocsFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "charts.json")
	docs := `{
		"bar": {"variants": ["default", "stacked"]},
		"pie": {"variants": ["default", "donut"]}
	}`
	if err := os.WriteFile(path, []byte(docs), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func chartClient(p *chartStubProvider) *llm.Client {
	cfg := config.LLMConfig{
		Hierarchy:        []string{"flash"},
		RateLimitRetries: 1,
		RetryBackoff:     time.Millisecond,
		RetryBackoffCap:  time.Millisecond,
	}
	return llm.NewClient(p, cfg, nil)
}

func TestChartResolveAcceptsDocumentedVariant(t *testing.T) {
	p := &chartStubProvider{text: `{
		"requires_chart": true,
		"chart_type": "bar",
		"variant": "stacked",
		"data": {"labels": ["NYY", "BOS"], "series": [{"name": "wins", "values": [92, 88]}]}
	}`}
	r := NewChartResolver(chartClient(p), chartDocsFile(t))

	chart := r.Resolve(context.Background(), "compare wins", map[string]interface{}{"wins": 1})
	if !chart.RequiresChart || chart.ChartType != "bar" || chart.Variant != "stacked" {
		t.Fatalf("unexpected chart: %+v", chart)
	}
}

func TestChartResolveRejectsUnknownVariant(t *testing.T) {
	p := &chartStubProvider{text: `{
		"requires_chart": true,
		"chart_type": "bar",
		"variant": "exploded",
		"data": {}
	}`}
	r := NewChartResolver(chartClient(p), chartDocsFile(t))

	chart := r.Resolve(context.Background(), "x", map[string]interface{}{"wins": 1})
	if chart.RequiresChart {
		t.Fatal("undocumented variant must disable the chart")
	}
}

func TestChartResolveRejectsUnknownType(t *testing.T) {
	p := &chartStubProvider{text: `{
		"requires_chart": true,
		"chart_type": "sankey",
		"variant": "default",
		"data": {}
	}`}
	r := NewChartResolver(chartClient(p), chartDocsFile(t))

	if r.Resolve(context.Background(), "x", map[string]interface{}{"a": 1}).RequiresChart {
		t.Fatal("unknown chart type must disable the chart")
	}
}

func TestChartResolveNoDocs(t *testing.T) {
	r := NewChartResolver(chartClient(&chartStubProvider{text: "{}"}), "")
	if r.Resolve(context.Background(), "x", map[string]interface{}{"a": 1}).RequiresChart {
		t.Fatal("missing docs must disable charts")
	}
}

func TestChartResolveEmptyResults(t *testing.T) {
	r := NewChartResolver(chartClient(&chartStubProvider{text: "{}"}), chartDocsFile(t))
	if r.Resolve(context.Background(), "x", nil).RequiresChart {
		t.Fatal("no data means no chart")
	}
}
