package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/dugoutai/dugout/internal/catalog"
	"github.com/dugoutai/dugout/internal/intent"
	"github.com/dugoutai/dugout/internal/llm"
)

// Synthesizer creates data retrieval plans from intent analyses.
type Synthesizer struct {
	catalog *catalog.Catalog
	llm     *llm.Client
	model   string
	logger  *log.Logger
}

// NewSynthesizer creates a plan synthesizer. model is the preferred planning
// model.
func NewSynthesizer(cat *catalog.Catalog, client *llm.Client, model string) *Synthesizer {
	return &Synthesizer{
		catalog: cat,
		llm:     client,
		model:   model,
		logger:  log.New(log.Writer(), "[PLANNER] ", log.LstdFlags),
	}
}

// Plan synthesizes and validates a retrieval plan for the analysis. It never
// returns an error: any synthesis or validation failure yields the
// deterministic fallback plan, which always validates.
func (s *Synthesizer) Plan(ctx context.Context, analysis intent.Analysis) Plan {
	startTime := time.Now()

	prompt := s.createPlanningPrompt(analysis)

	temp := 0.2
	result, err := s.llm.Complete(ctx, prompt, llm.Options{
		Operation:      "plan",
		Temperature:    &temp,
		ResponseFormat: "json",
	}, s.model)
	if err != nil {
		s.logger.Printf("plan synthesis failed, using fallback: %v", err)
		return FallbackFor(analysis)
	}

	plan, err := s.parsePlanResponse(result.Text)
	if err != nil {
		s.logger.Printf("plan parse failed, using fallback: %v", err)
		return FallbackFor(analysis)
	}

	if err := s.Validate(plan); err != nil {
		s.logger.Printf("plan validation failed, using fallback: %v", err)
		return FallbackFor(analysis)
	}

	s.logger.Printf("planning completed in %v with %d steps", time.Since(startTime), len(plan.Steps))
	return plan
}

// parsePlanResponse extracts and decodes the plan JSON from a model
// response using balanced brace scanning.
func (s *Synthesizer) parsePlanResponse(response string) (Plan, error) {
	jsonStr := ""
	start := -1
	depth := 0
	for i, ch := range response {
		if ch == '{' {
			if depth == 0 {
				start = i
			}
			depth++
		} else if ch == '}' {
			if depth > 0 {
				depth--
			}
			if depth == 0 && start != -1 {
				jsonStr = response[start : i+1]
				break
			}
		}
	}
	if jsonStr == "" {
		return Plan{}, fmt.Errorf("no JSON found in response")
	}

	if err := validateDocument(jsonStr); err != nil {
		return Plan{}, err
	}

	var plan Plan
	if err := json.Unmarshal([]byte(jsonStr), &plan); err != nil {
		return Plan{}, fmt.Errorf("failed to parse JSON: %w", err)
	}
	if plan.Dependencies == nil {
		plan.Dependencies = map[string][]string{}
	}
	return plan, nil
}

// Validate checks plan structure: step types, catalog names, dependency
// ids, acyclicity, and that parameter references only point to earlier
// steps.
func (s *Synthesizer) Validate(plan Plan) error {
	if len(plan.Steps) == 0 {
		return fmt.Errorf("plan has no steps")
	}

	seen := make(map[string]bool, len(plan.Steps))
	for _, step := range plan.Steps {
		if seen[step.ID] {
			return fmt.Errorf("duplicate step id: %s", step.ID)
		}
		seen[step.ID] = true

		switch step.Type {
		case StepTypeFunction:
			if !s.catalog.HasFunction(step.Name) {
				return fmt.Errorf("step %s: unknown function %q", step.ID, step.Name)
			}
		case StepTypeEndpoint:
			if !s.catalog.HasEndpoint(step.Name) {
				return fmt.Errorf("step %s: unknown endpoint %q", step.ID, step.Name)
			}
		default:
			return fmt.Errorf("step %s: invalid step type %q", step.ID, step.Type)
		}
	}

	if err := s.checkMissingDependencies(plan); err != nil {
		return err
	}
	if err := s.checkCircularDependencies(plan); err != nil {
		return err
	}
	if err := s.checkReferences(plan); err != nil {
		return err
	}
	return nil
}

// checkMissingDependencies verifies every depends_on and dependency-map id
// exists in the plan.
func (s *Synthesizer) checkMissingDependencies(plan Plan) error {
	stepIDs := make(map[string]bool, len(plan.Steps))
	for _, step := range plan.Steps {
		stepIDs[step.ID] = true
	}

	for _, step := range plan.Steps {
		for _, depID := range step.DependsOn {
			if !stepIDs[depID] {
				return fmt.Errorf("step %s depends on missing step %s", step.ID, depID)
			}
		}
	}
	for stepID, deps := range plan.Dependencies {
		if !stepIDs[stepID] {
			return fmt.Errorf("dependencies reference missing step %s", stepID)
		}
		for _, depID := range deps {
			if !stepIDs[depID] {
				return fmt.Errorf("step %s depends on missing step %s", stepID, depID)
			}
		}
	}
	return nil
}

// checkCircularDependencies runs a DFS over the dependency graph.
func (s *Synthesizer) checkCircularDependencies(plan Plan) error {
	deps := make(map[string][]string)
	for _, step := range plan.Steps {
		deps[step.ID] = step.DependsOn
	}
	for stepID, extra := range plan.Dependencies {
		deps[stepID] = append(deps[stepID], extra...)
	}

	visited := make(map[string]bool)
	recStack := make(map[string]bool)

	var hasCycle func(string) bool
	hasCycle = func(stepID string) bool {
		if recStack[stepID] {
			return true
		}
		if visited[stepID] {
			return false
		}

		visited[stepID] = true
		recStack[stepID] = true

		for _, dep := range deps[stepID] {
			if hasCycle(dep) {
				return true
			}
		}

		recStack[stepID] = false
		return false
	}

	for _, step := range plan.Steps {
		if !visited[step.ID] {
			if hasCycle(step.ID) {
				return fmt.Errorf("circular dependency detected")
			}
		}
	}
	return nil
}

// checkReferences ensures ${step.field} references only point to steps
// earlier in plan order, since execution is strictly in order.
func (s *Synthesizer) checkReferences(plan Plan) error {
	executed := make(map[string]bool, len(plan.Steps))
	for _, step := range plan.Steps {
		for _, ref := range step.References() {
			if ref.StepID == step.ID {
				return fmt.Errorf("step %s references itself", step.ID)
			}
			if !executed[ref.StepID] {
				return fmt.Errorf("step %s references %s before it executes", step.ID, ref.StepID)
			}
		}
		executed[step.ID] = true
	}
	return nil
}

// FallbackFor builds the deterministic single-step plan used when synthesis
// fails. Standings intents get league standings; everything else gets the
// daily schedule. The result is pure in its inputs and always validates.
func FallbackFor(analysis intent.Analysis) Plan {
	name := "schedule"
	value := "sportId=1"
	statsPath := "$.dates[*].games[*]"
	infoPath := "$.dates[*].date"
	if analysis.Intent.Type == intent.TypeStandings {
		name = "standings"
		value = "leagueId=103,104"
		statsPath = "$.records[*].teamRecords[*]"
		infoPath = "$.records[*].division"
	}

	return Plan{
		Steps: []Step{
			{
				ID:          "basic_data",
				Type:        StepTypeFunction,
				Name:        name,
				Description: "Get basic MLB data",
				Parameters:  Parameters{Value: value},
				Extract: &ExtractSpec{
					Fields: map[string]string{
						"stats": statsPath,
						"info":  infoPath,
					},
				},
				DependsOn: []string{},
			},
		},
		Dependencies: map[string][]string{},
	}
}
