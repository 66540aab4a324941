package planner

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"github.com/dugoutai/dugout/internal/catalog"
	"github.com/dugoutai/dugout/internal/intent"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	functions := `[
		{"name": "standings", "description": "standings"},
		{"name": "schedule", "description": "schedule"},
		{"name": "lookup_player", "description": "lookup"},
		{"name": "player_stat_data", "description": "stats"}
	]`
	endpoints := `{
		"game_feed_live": {"url": "https://statsapi.mlb.com/api/v1.1/game/{gamePk}/feed/live"}
	}`
	cat, err := catalog.Parse([]byte(functions), []byte(endpoints))
	if err != nil {
		t.Fatalf("parsing test catalog: %v", err)
	}
	return cat
}

func testSynthesizer(t *testing.T) *Synthesizer {
	return NewSynthesizer(testCatalog(t), nil, "")
}

func validPlan() Plan {
	return Plan{
		Steps: []Step{
			{
				ID:         "players",
				Type:       StepTypeFunction,
				Name:       "lookup_player",
				Parameters: Parameters{Value: "names=Judge"},
				Extract:    &ExtractSpec{Fields: map[string]string{"player_ids": "$.players[*].id"}},
				DependsOn:  []string{},
			},
			{
				ID:         "stats",
				Type:       StepTypeFunction,
				Name:       "player_stat_data",
				Parameters: Parameters{Value: "personIds=${players.player_ids}"},
				DependsOn:  []string{"players"},
			},
		},
		Dependencies: map[string][]string{"stats": {"players"}},
	}
}

func TestValidateAcceptsWellFormedPlan(t *testing.T) {
	if err := testSynthesizer(t).Validate(validPlan()); err != nil {
		t.Fatalf("valid plan rejected: %v", err)
	}
}

func TestValidateRejectsEmptyPlan(t *testing.T) {
	if err := testSynthesizer(t).Validate(Plan{}); err == nil {
		t.Fatal("empty plan should be rejected")
	}
}

func TestValidateRejectsDuplicateIDs(t *testing.T) {
	plan := validPlan()
	plan.Steps[1].ID = "players"
	plan.Steps[1].Parameters.Value = "personIds=1"
	if err := testSynthesizer(t).Validate(plan); err == nil {
		t.Fatal("duplicate step ids should be rejected")
	}
}

func TestValidateRejectsUnknownNames(t *testing.T) {
	plan := validPlan()
	plan.Steps[0].Name = "no_such_function"
	if err := testSynthesizer(t).Validate(plan); err == nil {
		t.Fatal("unknown function should be rejected")
	}

	plan = validPlan()
	plan.Steps[0].Type = StepTypeEndpoint
	if err := testSynthesizer(t).Validate(plan); err == nil {
		t.Fatal("function name used as endpoint should be rejected")
	}
}

func TestValidateRejectsInvalidType(t *testing.T) {
	plan := validPlan()
	plan.Steps[0].Type = "script"
	if err := testSynthesizer(t).Validate(plan); err == nil {
		t.Fatal("invalid step type should be rejected")
	}
}

func TestValidateRejectsMissingDependency(t *testing.T) {
	plan := validPlan()
	plan.Steps[1].DependsOn = []string{"ghost"}
	if err := testSynthesizer(t).Validate(plan); err == nil {
		t.Fatal("missing dependency should be rejected")
	}

	plan = validPlan()
	plan.Dependencies["ghost"] = []string{"players"}
	if err := testSynthesizer(t).Validate(plan); err == nil {
		t.Fatal("dependency map key for missing step should be rejected")
	}
}

func TestValidateRejectsCycle(t *testing.T) {
	plan := validPlan()
	plan.Steps[0].DependsOn = []string{"stats"}
	if err := testSynthesizer(t).Validate(plan); err == nil {
		t.Fatal("cycle should be rejected")
	}
}

func TestValidateRejectsForwardReference(t *testing.T) {
	plan := validPlan()
	// Reverse the steps so the reference points forward in plan order.
	plan.Steps[0], plan.Steps[1] = plan.Steps[1], plan.Steps[0]
	plan.Steps[0].DependsOn = []string{}
	plan.Dependencies = map[string][]string{}
	err := testSynthesizer(t).Validate(plan)
	if err == nil {
		t.Fatal("forward reference should be rejected")
	}
	if !strings.Contains(err.Error(), "before it executes") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsSelfReference(t *testing.T) {
	plan := validPlan()
	plan.Steps[0].Parameters.Value = "names=${players.player_ids}"
	if err := testSynthesizer(t).Validate(plan); err == nil {
		t.Fatal("self reference should be rejected")
	}
}

func TestFallbackForIsIdempotentAndValid(t *testing.T) {
	s := testSynthesizer(t)

	standings := intent.Default()
	standings.Intent.Type = intent.TypeStandings

	for _, analysis := range []intent.Analysis{intent.Default(), standings} {
		first := FallbackFor(analysis)
		second := FallbackFor(analysis)
		if !reflect.DeepEqual(first, second) {
			t.Fatal("fallback plan must be deterministic")
		}
		if err := s.Validate(first); err != nil {
			t.Fatalf("fallback plan must validate: %v", err)
		}
		if len(first.Steps) != 1 || first.Steps[0].ID != "basic_data" {
			t.Fatalf("fallback must be the single basic_data step, got %+v", first.Steps)
		}
	}

	if FallbackFor(standings).Steps[0].Name != "standings" {
		t.Error("standings intent should fall back to the standings function")
	}
	if FallbackFor(intent.Default()).Steps[0].Name != "schedule" {
		t.Error("non-standings intent should fall back to the schedule function")
	}
}

func TestParsePlanResponseExtractsEmbeddedJSON(t *testing.T) {
	s := testSynthesizer(t)
	raw, err := json.Marshal(validPlan())
	if err != nil {
		t.Fatal(err)
	}
	response := "Here is the plan you asked for:\n" + string(raw) + "\nLet me know if it needs changes."

	plan, err := s.parsePlanResponse(response)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(plan.Steps) != 2 || plan.Steps[0].ID != "players" {
		t.Fatalf("unexpected plan: %+v", plan)
	}
}

func TestParsePlanResponseRejectsSchemaViolations(t *testing.T) {
	s := testSynthesizer(t)

	// steps entries missing required keys fail the schema gate.
	if _, err := s.parsePlanResponse(`{"steps": [{"id": "a"}], "dependencies": {}}`); err == nil {
		t.Fatal("schema violation should be rejected")
	}
	if _, err := s.parsePlanResponse("no json here"); err == nil {
		t.Fatal("response without JSON should be rejected")
	}
}

func TestParseReferences(t *testing.T) {
	refs := ParseReferences("personIds=${players.player_ids}&season=${meta.season.year}")
	if len(refs) != 2 {
		t.Fatalf("expected 2 references, got %d", len(refs))
	}
	if refs[0].StepID != "players" || refs[0].Path != "player_ids" {
		t.Errorf("unexpected first reference: %+v", refs[0])
	}
	if refs[1].StepID != "meta" || refs[1].Path != "season.year" {
		t.Errorf("unexpected second reference: %+v", refs[1])
	}
}

func TestNormalizePath(t *testing.T) {
	if got := NormalizePath("$.records[*]"); got != "records[*]" {
		t.Errorf("got %q", got)
	}
	if got := NormalizePath("plain.path"); got != "plain.path" {
		t.Errorf("got %q", got)
	}
}
