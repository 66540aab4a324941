package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dugoutai/dugout/config"
	"github.com/dugoutai/dugout/internal/catalog"
	"github.com/dugoutai/dugout/internal/executor"
	"github.com/dugoutai/dugout/internal/extract"
	"github.com/dugoutai/dugout/internal/intent"
	"github.com/dugoutai/dugout/internal/llm"
	"github.com/dugoutai/dugout/internal/media"
	"github.com/dugoutai/dugout/internal/planner"
	"github.com/dugoutai/dugout/internal/respond"
	"github.com/dugoutai/dugout/internal/sandbox"
	"github.com/dugoutai/dugout/internal/session"
	"github.com/dugoutai/dugout/internal/telemetry"
	"github.com/dugoutai/dugout/internal/translate"
)

// scriptedProvider answers each pipeline phase from a canned table keyed by
// a distinctive prompt fragment. Phases without an entry fail, which drives
// their local fallbacks.
type scriptedProvider struct {
	responses map[string]string
}

func (p *scriptedProvider) GenerateWithTokens(ctx context.Context, prompt, model string, options map[string]interface{}) (string, int64, int64, error) {
	for marker, text := range p.responses {
		if strings.Contains(prompt, marker) {
			return text, 10, 10, nil
		}
	}
	return "", 0, 0, errors.New("no scripted response for prompt")
}

func (p *scriptedProvider) GetModelInfo(model string) (llm.ModelInfo, error) {
	return llm.ModelInfo{Name: model}, nil
}

func (p *scriptedProvider) CalculateCost(in, out int64, model string) float64 { return 0 }

const playerInfoAnalysis = `{
	"is_mlb_related": true,
	"intent": {"type": "player_info", "description": "Player performance", "specificity": "specific", "timeframe": "current", "complexity": "simple"},
	"entities": {"teams": [], "players": ["Aaron Judge"], "dates": [], "stats": [], "locations": [], "events": []},
	"context": {"time_frame": "current", "comparison_type": "none", "stat_focus": "offensive", "sentiment": "neutral", "requires_data": true, "follow_up": false, "data_requirements": ["player stats"]}
}`

func testAgent(t *testing.T, provider llm.Provider, endpointsJSON string) (*Agent, *session.MemoryHistory) {
	t.Helper()

	functions := `[{"name": "schedule", "description": "Game schedule"}, {"name": "standings", "description": "League standings"}]`
	cat, err := catalog.Parse([]byte(functions), []byte(endpointsJSON))
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
	client := llm.NewClient(provider, llmCfg, tel)

	runner, err := sandbox.NewRunner(config.SandboxConfig{
		Provider:       "subprocess",
		PythonBinary:   "python3",
		DefaultTimeout: time.Second,
	}, tel)
	if err != nil {
		t.Fatalf("creating sandbox runner: %v", err)
	}

	exec := executor.New(cat, client, runner, extract.NewEngine(client, runner), tel)
	history := session.NewMemoryHistory(time.Hour, 10)

	a := New(
		intent.NewClassifier(client, "flash"),
		planner.NewSynthesizer(cat, client, "flash"),
		exec,
		respond.NewComposer(client, "flash"),
		media.NewResolver(client, nil, 3),
		media.NewChartResolver(client, ""),
		translate.NewTranslator(client),
		history,
		nil,
		tel,
	)
	return a, history
}

func TestProcessMessageDataPipeline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/people/660271":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"people": []interface{}{map[string]interface{}{"fullName": "Aaron Judge", "avg": ".315"}},
			})
		case "/sched":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"dates": []interface{}{map[string]interface{}{"date": "2025-08-29"}},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	endpoints := `{
		"people": {"url": "` + srv.URL + `/people/{personId}"},
		"sched": {"url": "` + srv.URL + `/sched"}
	}`

	plan := `{
		"steps": [
			{"id": "player", "type": "endpoint", "name": "people", "description": "Player info", "parameters": {"value": "personId=660271"}, "depends_on": []},
			{"id": "recent", "type": "endpoint", "name": "sched", "description": "Recent games", "parameters": {"value": "sportId=1"}, "depends_on": []}
		],
		"dependencies": {}
	}`

	provider := &scriptedProvider{responses: map[string]string{
		"Analyze this baseball-related message": playerInfoAnalysis,
		"You are a baseball data planning agent": plan,
		"Resolve the final request URL":          "cannot determine",
		"Summarize the retrieved data":           `{"summary": "Aaron Judge is hitting .315 this season.", "details": {"avg": ".315"}}`,
		"Suggest follow-up questions":            `["How many home runs does Judge have?", "How are the Yankees doing?", "Who leads the league in average?", "When do the Yankees play next?"]`,
		"Decide what media":                      `{}`,
	}}

	a, history := testAgent(t, provider, endpoints)

	reply := a.ProcessMessage(context.Background(), Request{
		Message:  "How's Judge doing?",
		UserData: UserData{UserID: "u1", Language: "en"},
	})

	if reply.Conversation {
		t.Fatal("data question must not take the conversation path")
	}
	if reply.DataType != intent.TypePlayerInfo {
		t.Fatalf("data type = %q", reply.DataType)
	}
	if reply.Message != "Aaron Judge is hitting .315 this season." {
		t.Fatalf("message = %q", reply.Message)
	}
	if len(reply.Suggestions) != 4 {
		t.Fatalf("got %d suggestions", len(reply.Suggestions))
	}

	results, ok := reply.Data["results"].(map[string]interface{})
	if !ok || len(results) != 2 {
		t.Fatalf("expected 2 result keys, got %v", reply.Data["results"])
	}
	if _, ok := results["player"]; !ok {
		t.Error("player step result missing")
	}
	if _, ok := results["recent"]; !ok {
		t.Error("recent step result missing")
	}

	if reply.Media != nil {
		t.Error("empty media plan must not be attached")
	}
	if reply.Chart != nil {
		t.Error("chart must stay disabled without chart docs")
	}

	turns, _ := history.Recent(context.Background(), "u1")
	if len(turns) != 2 || turns[0].Role != "user" || turns[1].Role != "assistant" {
		t.Fatalf("history not recorded: %+v", turns)
	}
}

func TestProcessMessagePlannerFailureStillAnswers(t *testing.T) {
	analysis := strings.Replace(playerInfoAnalysis, `"type": "player_info"`, `"type": "stats"`, 1)

	// No plan, parameter, codegen, or composition entries: synthesis falls
	// back to the deterministic plan, its function step fails in codegen,
	// and composition degrades to the default summary.
	provider := &scriptedProvider{responses: map[string]string{
		"Analyze this baseball-related message": analysis,
		"Decide what media":                     `{}`,
	}}

	a, _ := testAgent(t, provider, `{}`)

	reply := a.ProcessMessage(context.Background(), Request{Message: "Who leads the league in WAR?"})

	if reply.DataType == "error" {
		t.Fatalf("degraded pipeline must not produce the error reply: %+v", reply)
	}
	if reply.DataType != intent.TypeStats {
		t.Fatalf("data type = %q", reply.DataType)
	}
	if reply.Message == "" {
		t.Fatal("reply must carry the default summary")
	}
	if len(reply.Suggestions) < 3 || len(reply.Suggestions) > 5 {
		t.Fatalf("got %d suggestions", len(reply.Suggestions))
	}

	steps, ok := reply.Data["steps"].([]executor.StepOutcome)
	if !ok || len(steps) != 1 {
		t.Fatalf("expected the single fallback step outcome, got %v", reply.Data["steps"])
	}
	if steps[0].Success {
		t.Fatal("fallback step should have failed without a scripted codegen response")
	}
}

func TestProcessMessageConversationPath(t *testing.T) {
	conversational := `{
		"is_mlb_related": true,
		"intent": {"type": "conversation", "description": "Small talk", "specificity": "general", "timeframe": "current", "complexity": "simple"},
		"entities": {"teams": [], "players": [], "dates": [], "stats": [], "locations": [], "events": []},
		"context": {"time_frame": "current", "comparison_type": "none", "stat_focus": "none", "sentiment": "positive", "requires_data": false, "follow_up": false, "data_requirements": []}
	}`
	provider := &scriptedProvider{responses: map[string]string{
		"Analyze this baseball-related message": conversational,
		"casual conversation":                   "I love baseball too! Nothing beats a summer night game.",
		"Suggest follow-up questions":           `["What's your favorite team?", "Want to see today's schedule?", "Curious about any player?"]`,
	}}

	a, _ := testAgent(t, provider, `{}`)

	reply := a.ProcessMessage(context.Background(), Request{Message: "I love baseball"})

	if !reply.Conversation {
		t.Fatal("expected the conversation path")
	}
	if reply.DataType != intent.TypeConversation {
		t.Fatalf("data type = %q", reply.DataType)
	}
	if !strings.Contains(reply.Message, "summer night game") {
		t.Fatalf("message = %q", reply.Message)
	}
	if len(reply.Suggestions) != 3 {
		t.Fatalf("got %d suggestions", len(reply.Suggestions))
	}
	if reply.Data != nil {
		t.Error("conversation replies carry no data")
	}
}

func TestProcessMessageClassificationFailureConverses(t *testing.T) {
	// Nothing scripted at all: classification collapses to the default
	// analysis, which routes to conversation, and the conversational reply
	// degrades to its fixed default.
	a, _ := testAgent(t, &scriptedProvider{}, `{}`)

	reply := a.ProcessMessage(context.Background(), Request{Message: "hello"})

	if !reply.Conversation || reply.DataType != intent.TypeConversation {
		t.Fatalf("expected conversational default, got %+v", reply)
	}
	if reply.Message == "" {
		t.Fatal("default conversational text must be present")
	}
	if len(reply.Suggestions) != 5 {
		t.Fatalf("expected default suggestions, got %d", len(reply.Suggestions))
	}
}

func TestProcessMessageRecoversFromPanic(t *testing.T) {
	provider := &scriptedProvider{responses: map[string]string{
		"Analyze this baseball-related message": playerInfoAnalysis,
	}}
	a, _ := testAgent(t, provider, `{}`)
	a.executor = nil // force a pipeline defect

	reply := a.ProcessMessage(context.Background(), Request{Message: "How's Judge doing?"})

	if reply.DataType != "error" {
		t.Fatalf("panic must produce the error reply, got %+v", reply)
	}
	if reply.Message == "" || len(reply.Suggestions) != 3 {
		t.Fatalf("error reply malformed: %+v", reply)
	}
}
