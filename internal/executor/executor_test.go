package executor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dugoutai/dugout/config"
	"github.com/dugoutai/dugout/internal/catalog"
	"github.com/dugoutai/dugout/internal/extract"
	"github.com/dugoutai/dugout/internal/llm"
	"github.com/dugoutai/dugout/internal/planner"
	"github.com/dugoutai/dugout/internal/sandbox"
	"github.com/dugoutai/dugout/internal/telemetry"
)

// failingProvider rejects every completion with a non-rate-limit error, so
// model-assisted paths always take their local fallbacks.
type failingProvider struct{}

func (failingProvider) GenerateWithTokens(ctx context.Context, prompt, model string, options map[string]interface{}) (string, int64, int64, error) {
	return "", 0, 0, errors.New("completion backend unavailable")
}

func (failingProvider) GetModelInfo(model string) (llm.ModelInfo, error) {
	return llm.ModelInfo{Name: model}, nil
}

func (failingProvider) CalculateCost(in, out int64, model string) float64 { return 0 }

func testExecutor(t *testing.T, endpointsJSON string) *Executor {
	t.Helper()

	cat, err := catalog.Parse([]byte(`[{"name": "schedule", "description": "schedule"}]`), []byte(endpointsJSON))
	if err != nil {
		t.Fatalf("parsing catalog: %v", err)
	}

	llmCfg := config.LLMConfig{
		Hierarchy:        []string{"flash"},
		RateLimitRetries: 1,
		RetryBackoff:     time.Millisecond,
		RetryBackoffCap:  time.Millisecond,
	}
	tel := telemetry.NewTelemetry(config.TelemetryConfig{})
	client := llm.NewClient(failingProvider{}, llmCfg, tel)

	runner, err := sandbox.NewRunner(config.SandboxConfig{
		Provider:       "subprocess",
		PythonBinary:   "python3",
		DefaultTimeout: time.Second,
	}, tel)
	if err != nil {
		t.Fatalf("creating sandbox runner: %v", err)
	}

	return New(cat, client, runner, extract.NewEngine(client, runner), tel)
}

func TestExecuteContinuesPastFailedStep(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/item/1":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"value": 1})
		case "/item/3":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"value": 3})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	endpoints := `{"item": {"url": "` + srv.URL + `/item/{id}"}}`
	e := testExecutor(t, endpoints)

	plan := planner.Plan{
		Steps: []planner.Step{
			{ID: "first", Type: planner.StepTypeEndpoint, Name: "item", Parameters: planner.Parameters{Value: "id=1"}},
			{ID: "second", Type: planner.StepTypeEndpoint, Name: "item", Parameters: planner.Parameters{Value: "id=404"}},
			{ID: "third", Type: planner.StepTypeEndpoint, Name: "item", Parameters: planner.Parameters{Value: "id=3"}},
		},
		Dependencies: map[string][]string{},
	}

	results, outcomes := e.Execute(context.Background(), plan)

	if len(outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(outcomes))
	}
	if !outcomes[0].Success || outcomes[1].Success || !outcomes[2].Success {
		t.Fatalf("unexpected outcome pattern: %+v", outcomes)
	}
	if outcomes[1].Error == "" {
		t.Error("failed step should record its error")
	}

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d: %v", len(results), results)
	}
	if _, ok := results["first"]; !ok {
		t.Error("first step result missing")
	}
	if _, ok := results["second"]; ok {
		t.Error("failed step must leave no result entry")
	}
	if _, ok := results["third"]; !ok {
		t.Error("third step result missing")
	}
}

func TestExecuteEndpointSourceStepParameters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/seed":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"id": 7})
		case "/item/7":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"value": "seven"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	endpoints := `{
		"seed": {"url": "` + srv.URL + `/seed"},
		"item": {"url": "` + srv.URL + `/item/{id}"}
	}`
	e := testExecutor(t, endpoints)

	plan := planner.Plan{
		Steps: []planner.Step{
			{ID: "seed", Type: planner.StepTypeEndpoint, Name: "seed"},
			{
				ID:         "item",
				Type:       planner.StepTypeEndpoint,
				Name:       "item",
				Parameters: planner.Parameters{SourceStep: "seed"},
				DependsOn:  []string{"seed"},
			},
		},
		Dependencies: map[string][]string{"item": {"seed"}},
	}

	results, outcomes := e.Execute(context.Background(), plan)

	if len(outcomes) != 2 || !outcomes[0].Success || !outcomes[1].Success {
		t.Fatalf("both steps should succeed: %+v", outcomes)
	}
	data, ok := results["item"].(map[string]interface{})
	if !ok || data["value"] != "seven" {
		t.Fatalf("source_step parameters should fill the path template, got %v", results["item"])
	}
}

func TestExecuteStepFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/backup" {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"source": "backup"})
			return
		}
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	endpoints := `{
		"primary": {"url": "` + srv.URL + `/primary"},
		"backup": {"url": "` + srv.URL + `/backup"}
	}`
	e := testExecutor(t, endpoints)

	plan := planner.Plan{
		Steps: []planner.Step{
			{
				ID:   "data",
				Type: planner.StepTypeEndpoint,
				Name: "primary",
				Fallback: &planner.StepFallback{
					Type:       planner.StepTypeEndpoint,
					Name:       "backup",
					Parameters: &planner.Parameters{},
				},
			},
		},
		Dependencies: map[string][]string{},
	}

	results, outcomes := e.Execute(context.Background(), plan)

	if !outcomes[0].Success {
		t.Fatalf("fallback should succeed: %+v", outcomes[0])
	}
	if !outcomes[0].Fallback {
		t.Error("outcome should be marked as fallback")
	}
	data, ok := results["data"].(map[string]interface{})
	if !ok || data["source"] != "backup" {
		t.Fatalf("expected backup data, got %v", results["data"])
	}
}

func TestExecuteSkipsFalsyResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{})
	}))
	defer srv.Close()

	endpoints := `{"empty": {"url": "` + srv.URL + `/empty"}}`
	e := testExecutor(t, endpoints)

	plan := planner.Plan{
		Steps: []planner.Step{
			{ID: "nothing", Type: planner.StepTypeEndpoint, Name: "empty"},
		},
		Dependencies: map[string][]string{},
	}

	results, outcomes := e.Execute(context.Background(), plan)
	if !outcomes[0].Success {
		t.Fatalf("empty result is not a failure: %+v", outcomes[0])
	}
	if len(results) != 0 {
		t.Fatalf("falsy result must leave no entry, got %v", results)
	}
}

func TestExecuteUnknownStepType(t *testing.T) {
	e := testExecutor(t, `{}`)
	plan := planner.Plan{
		Steps:        []planner.Step{{ID: "bad", Type: "script", Name: "x"}},
		Dependencies: map[string][]string{},
	}
	_, outcomes := e.Execute(context.Background(), plan)
	if outcomes[0].Success {
		t.Fatal("unknown step type should fail the step")
	}
}
