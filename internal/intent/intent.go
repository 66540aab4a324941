// Package intent classifies user messages into a structured analysis that
// drives the rest of the pipeline. Classification never fails: any error
// collapses to a safe conversational default.
package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/dugoutai/dugout/internal/llm"
)

// Intent type enum values.
const (
	TypeTeamInfo     = "team_info"
	TypePlayerInfo   = "player_info"
	TypeGameInfo     = "game_info"
	TypeStats        = "stats"
	TypeStandings    = "standings"
	TypeSchedule     = "schedule"
	TypeHighlights   = "highlights"
	TypeConversation = "conversation"
)

var (
	intentTypes     = []string{TypeTeamInfo, TypePlayerInfo, TypeGameInfo, TypeStats, TypeStandings, TypeSchedule, TypeHighlights, TypeConversation}
	specificities   = []string{"general", "specific", "comparative", "analytical"}
	timeframes      = []string{"historical", "current", "upcoming", "season", "career"}
	complexities    = []string{"simple", "moderate", "complex"}
	comparisonTypes = []string{"none", "player_vs_player", "team_vs_team", "historical"}
	statFocuses     = []string{"none", "offensive", "defensive", "both"}
	sentiments      = []string{"neutral", "positive", "negative"}
)

// Details describes what the user is asking for.
type Details struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Specificity string `json:"specificity"`
	Timeframe   string `json:"timeframe"`
	Complexity  string `json:"complexity"`
}

// Entities are the named things mentioned in the message. Slices are always
// non-nil.
type Entities struct {
	Teams     []string `json:"teams"`
	Players   []string `json:"players"`
	Dates     []string `json:"dates"`
	Stats     []string `json:"stats"`
	Locations []string `json:"locations"`
	Events    []string `json:"events"`
}

// UnmarshalJSON accepts a bare scalar as well as a list for every entity
// field. Models occasionally return "players": "Judge"; wrapping the scalar
// keeps the rest of the analysis instead of failing the whole decode.
func (e *Entities) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.Teams = stringList(raw["teams"])
	e.Players = stringList(raw["players"])
	e.Dates = stringList(raw["dates"])
	e.Stats = stringList(raw["stats"])
	e.Locations = stringList(raw["locations"])
	e.Events = stringList(raw["events"])
	return nil
}

// stringList decodes a JSON list of strings, wrapping a bare scalar into a
// single-element list. Missing, null, and undecodable values become empty
// lists.
func stringList(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return []string{}
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		if list == nil {
			return []string{}
		}
		return list
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		if single == "" {
			return []string{}
		}
		return []string{single}
	}
	return []string{}
}

// Context carries conversational qualifiers for downstream phases.
type Context struct {
	TimeFrame        string   `json:"time_frame"`
	ComparisonType   string   `json:"comparison_type"`
	StatFocus        string   `json:"stat_focus"`
	Sentiment        string   `json:"sentiment"`
	RequiresData     bool     `json:"requires_data"`
	FollowUp         bool     `json:"follow_up"`
	DataRequirements []string `json:"data_requirements"`
}

// Analysis is the full classification of one message. It is immutable once
// produced.
type Analysis struct {
	IsMLBRelated bool     `json:"is_mlb_related"`
	Intent       Details  `json:"intent"`
	Entities     Entities `json:"entities"`
	Context      Context  `json:"context"`
}

// Default returns the safe fallback analysis used when classification fails
// for any reason.
func Default() Analysis {
	return Analysis{
		IsMLBRelated: false,
		Intent: Details{
			Type:        TypeConversation,
			Description: "General conversation",
			Specificity: "general",
			Timeframe:   "current",
			Complexity:  "simple",
		},
		Entities: Entities{
			Teams:     []string{},
			Players:   []string{},
			Dates:     []string{},
			Stats:     []string{},
			Locations: []string{},
			Events:    []string{},
		},
		Context: Context{
			TimeFrame:        "current",
			ComparisonType:   "none",
			StatFocus:        "none",
			Sentiment:        "neutral",
			RequiresData:     false,
			FollowUp:         false,
			DataRequirements: []string{},
		},
	}
}

// ParseEnumOrDefault returns value if it is one of allowed, otherwise def.
func ParseEnumOrDefault(value string, allowed []string, def string) string {
	for _, a := range allowed {
		if value == a {
			return value
		}
	}
	return def
}

const classifyPrompt = `Analyze this baseball-related message and classify it.

Determine:
1. Whether the message relates to MLB baseball at all (is_mlb_related)
2. The intent type: one of team_info, player_info, game_info, stats, standings, schedule, highlights, conversation
3. All entities mentioned: teams, players, dates, stats, locations, events
4. Conversational context: timeframe, comparison type, stat focus, sentiment,
   whether answering requires retrieving data, whether it follows up on prior
   conversation, and what data would be required

Conversation so far:
%s

Message:
%s

Return a single JSON object matching the schema exactly.`

// responseSchema constrains the structured completion for classification.
var responseSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"is_mlb_related": map[string]interface{}{"type": "boolean"},
		"intent": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"type":        map[string]interface{}{"type": "string", "enum": intentTypes},
				"description": map[string]interface{}{"type": "string"},
				"specificity": map[string]interface{}{"type": "string", "enum": specificities},
				"timeframe":   map[string]interface{}{"type": "string", "enum": timeframes},
				"complexity":  map[string]interface{}{"type": "string", "enum": complexities},
			},
			"required": []string{"type", "description", "specificity", "timeframe", "complexity"},
		},
		"entities": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"teams":     map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
				"players":   map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
				"dates":     map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
				"stats":     map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
				"locations": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
				"events":    map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
			},
		},
		"context": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"time_frame":        map[string]interface{}{"type": "string", "enum": timeframes},
				"comparison_type":   map[string]interface{}{"type": "string", "enum": comparisonTypes},
				"stat_focus":        map[string]interface{}{"type": "string", "enum": statFocuses},
				"sentiment":         map[string]interface{}{"type": "string", "enum": sentiments},
				"requires_data":     map[string]interface{}{"type": "boolean"},
				"follow_up":         map[string]interface{}{"type": "boolean"},
				"data_requirements": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
			},
		},
	},
	"required": []string{"is_mlb_related", "intent", "entities", "context"},
}

// Classifier analyzes messages with a structured completion call.
type Classifier struct {
	llm    *llm.Client
	model  string
	logger *log.Logger
}

// NewClassifier creates an intent classifier. model is the preferred
// (cheapest adequate) model for classification.
func NewClassifier(client *llm.Client, model string) *Classifier {
	return &Classifier{
		llm:    client,
		model:  model,
		logger: log.New(log.Writer(), "[INTENT] ", log.LstdFlags),
	}
}

// Analyze classifies a message. It always returns a usable Analysis; every
// failure path collapses to Default().
func (c *Classifier) Analyze(ctx context.Context, message string, history string) Analysis {
	prompt := fmt.Sprintf(classifyPrompt, history, message)

	result, err := c.llm.Complete(ctx, prompt, llm.Options{
		Operation:      "intent",
		ResponseFormat: "json",
		ResponseSchema: responseSchema,
	}, c.model)
	if err != nil {
		c.logger.Printf("classification failed, using default: %v", err)
		return Default()
	}

	var analysis Analysis
	if err := json.Unmarshal([]byte(result.Text), &analysis); err != nil {
		c.logger.Printf("classification parse failed, using default: %v", err)
		return Default()
	}

	return coerce(analysis)
}

// coerce clamps enum fields to their domains and guarantees non-nil entity
// slices.
func coerce(a Analysis) Analysis {
	a.Intent.Type = ParseEnumOrDefault(a.Intent.Type, intentTypes, TypeConversation)
	a.Intent.Specificity = ParseEnumOrDefault(a.Intent.Specificity, specificities, "general")
	a.Intent.Timeframe = ParseEnumOrDefault(a.Intent.Timeframe, timeframes, "current")
	a.Intent.Complexity = ParseEnumOrDefault(a.Intent.Complexity, complexities, "simple")

	a.Context.TimeFrame = ParseEnumOrDefault(a.Context.TimeFrame, timeframes, "current")
	a.Context.ComparisonType = ParseEnumOrDefault(a.Context.ComparisonType, comparisonTypes, "none")
	a.Context.StatFocus = ParseEnumOrDefault(a.Context.StatFocus, statFocuses, "none")
	a.Context.Sentiment = ParseEnumOrDefault(a.Context.Sentiment, sentiments, "neutral")

	if a.Entities.Teams == nil {
		a.Entities.Teams = []string{}
	}
	if a.Entities.Players == nil {
		a.Entities.Players = []string{}
	}
	if a.Entities.Dates == nil {
		a.Entities.Dates = []string{}
	}
	if a.Entities.Stats == nil {
		a.Entities.Stats = []string{}
	}
	if a.Entities.Locations == nil {
		a.Entities.Locations = []string{}
	}
	if a.Entities.Events == nil {
		a.Entities.Events = []string{}
	}
	if a.Context.DataRequirements == nil {
		a.Context.DataRequirements = []string{}
	}
	return a
}
