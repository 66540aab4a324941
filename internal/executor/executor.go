// Package executor runs validated retrieval plans step by step. Execution is
// strictly in plan order and never aborts: a failed step falls back to its
// declared alternative when one exists, otherwise the failure is recorded
// and the remaining steps still run. Steps that produce no usable data leave
// no entry in the result set.
package executor

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dugoutai/dugout/internal/catalog"
	"github.com/dugoutai/dugout/internal/extract"
	"github.com/dugoutai/dugout/internal/llm"
	"github.com/dugoutai/dugout/internal/planner"
	"github.com/dugoutai/dugout/internal/sandbox"
	"github.com/dugoutai/dugout/internal/telemetry"
)

// StepOutcome records how one plan step went, whether or not it produced
// data.
type StepOutcome struct {
	ID       string        `json:"id"`
	Type     string        `json:"type"`
	Name     string        `json:"name"`
	Success  bool          `json:"success"`
	Fallback bool          `json:"fallback"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Executor runs plans against the statistics catalog.
type Executor struct {
	catalog   *catalog.Catalog
	llm       *llm.Client
	sandbox   *sandbox.Runner
	extract   *extract.Engine
	telemetry *telemetry.Telemetry
	client    *http.Client
	tracer    trace.Tracer
	logger    *log.Logger
}

// New creates a plan executor.
func New(cat *catalog.Catalog, client *llm.Client, runner *sandbox.Runner, engine *extract.Engine, tel *telemetry.Telemetry) *Executor {
	return &Executor{
		catalog:   cat,
		llm:       client,
		sandbox:   runner,
		extract:   engine,
		telemetry: tel,
		client:    &http.Client{Timeout: 30 * time.Second},
		tracer:    otel.Tracer("dugout/executor"),
		logger:    log.New(log.Writer(), "[EXECUTOR] ", log.LstdFlags),
	}
}

// Execute runs every step of the plan in order. The returned map holds the
// extracted result of each step that produced data, keyed by step id. The
// outcomes slice has one entry per step regardless.
func (e *Executor) Execute(ctx context.Context, plan planner.Plan) (map[string]interface{}, []StepOutcome) {
	results := make(map[string]interface{}, len(plan.Steps))
	outcomes := make([]StepOutcome, 0, len(plan.Steps))

	for _, step := range plan.Steps {
		outcome := e.executeStep(ctx, step, results)
		outcomes = append(outcomes, outcome)

		e.telemetry.RecordStepEvent(ctx, telemetry.StepEvent{
			ID:       step.ID,
			StepType: step.Type,
			Name:     step.Name,
			Duration: outcome.Duration,
			Success:  outcome.Success,
			Fallback: outcome.Fallback,
			Error:    outcome.Error,
		})
	}

	return results, outcomes
}

// executeStep runs one step, applying its declared fallback if the primary
// attempt fails, and stores the extracted result into results when the step
// yields usable data.
func (e *Executor) executeStep(ctx context.Context, step planner.Step, results map[string]interface{}) StepOutcome {
	ctx, span := e.tracer.Start(ctx, "executor.step", trace.WithAttributes(
		attribute.String("step.id", step.ID),
		attribute.String("step.type", step.Type),
		attribute.String("step.name", step.Name),
	))
	defer span.End()

	start := time.Now()
	outcome := StepOutcome{ID: step.ID, Type: step.Type, Name: step.Name}

	raw, err := e.runStep(ctx, step.Type, step.Name, step.Parameters, results)
	if err != nil && step.Fallback != nil {
		e.logger.Printf("step %s failed (%v), trying fallback %s", step.ID, err, step.Fallback.Name)
		outcome.Fallback = true
		params := step.Parameters
		if step.Fallback.Parameters != nil {
			params = *step.Fallback.Parameters
		}
		raw, err = e.runStep(ctx, step.Fallback.Type, step.Fallback.Name, params, results)
	}
	outcome.Duration = time.Since(start)

	if err != nil {
		outcome.Error = err.Error()
		e.logger.Printf("step %s failed: %v", step.ID, err)
		span.RecordError(err)
		return outcome
	}

	outcome.Success = true
	if isFalsy(raw) {
		e.logger.Printf("step %s produced no data, skipping", step.ID)
		return outcome
	}

	results[step.ID] = e.extract.ProcessExtraction(ctx, raw, step.Extract)
	return outcome
}

// RunFunction executes a single catalog function outside a plan. Entity
// workflows and lookups use this to reuse the codegen and sandbox path.
func (e *Executor) RunFunction(ctx context.Context, name string, params planner.Parameters, results map[string]interface{}) (interface{}, error) {
	return e.executeFunctionStep(ctx, name, params, results)
}

// runStep dispatches to the function or endpoint runner.
func (e *Executor) runStep(ctx context.Context, stepType, name string, params planner.Parameters, results map[string]interface{}) (interface{}, error) {
	switch stepType {
	case planner.StepTypeFunction:
		return e.executeFunctionStep(ctx, name, params, results)
	case planner.StepTypeEndpoint:
		return e.executeEndpointStep(ctx, name, params, results)
	default:
		return nil, fmt.Errorf("unknown step type %q", stepType)
	}
}
