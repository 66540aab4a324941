package planner

import (
	"encoding/json"
	"fmt"

	"github.com/dugoutai/dugout/internal/intent"
)

// createPlanningPrompt builds the full synthesis prompt: catalog
// documentation, worked examples with dependency graphs, the output schema
// and its validation rules, and the current intent.
func (s *Synthesizer) createPlanningPrompt(analysis intent.Analysis) string {
	intentJSON, _ := json.MarshalIndent(analysis, "", "  ")

	return fmt.Sprintf(`You are a baseball data planning agent. Create a data retrieval plan that answers the user's intent using the available functions and endpoints.

AVAILABLE FUNCTIONS:
%s

AVAILABLE ENDPOINTS:
%s

EXAMPLE PLANS:

1. League Standings and Statistics:
{
    "steps": [
        {
            "id": "standings",
            "type": "function",
            "name": "standings",
            "description": "Get current league standings",
            "parameters": {
                "value": "leagueId=103,104&season=2024"
            },
            "extract": {
                "fields": {
                    "stats": "$.records[*].teamRecords[*]",
                    "team_ids": "$.records[*].teamRecords[*].team.id",
                    "info": "$.records[*].division"
                }
            },
            "depends_on": []
        },
        {
            "id": "league_leaders",
            "type": "function",
            "name": "league_leader_data",
            "description": "Get league statistical leaders",
            "parameters": {
                "value": "leaderCategories=homeRuns,battingAverage,era,strikeouts&season=2024"
            },
            "extract": {
                "fields": {
                    "player_ids": "$.leagueLeaders[*].person.id",
                    "names": "$.leagueLeaders[*].person.fullName",
                    "stats": "$.leagueLeaders[*]"
                }
            },
            "depends_on": []
        }
    ],
    "dependencies": {}
}

2. Player Comparison Analysis:
{
    "steps": [
        {
            "id": "players_lookup",
            "type": "function",
            "name": "lookup_player",
            "description": "Get player IDs and basic info",
            "parameters": {
                "value": "names=Ohtani,Judge,Trout"
            },
            "extract": {
                "fields": {
                    "player_ids": "$.players[*].id",
                    "names": "$.players[*].fullName",
                    "team_ids": "$.players[*].currentTeam.id"
                }
            },
            "depends_on": []
        },
        {
            "id": "comparison_stats",
            "type": "function",
            "name": "player_stat_data",
            "description": "Get detailed statistics for comparison",
            "parameters": {
                "value": "personIds=${players_lookup.player_ids}&group=hitting&type=season"
            },
            "extract": {
                "fields": {
                    "stats": "$.stats[*].splits[*]",
                    "info": "$.stats[*].group"
                }
            },
            "depends_on": ["players_lookup"]
        }
    ],
    "dependencies": {
        "comparison_stats": ["players_lookup"]
    }
}

3. Live Game Lookup via Endpoints:
{
    "steps": [
        {
            "id": "schedule_lookup",
            "type": "function",
            "name": "schedule",
            "description": "Get today's game IDs",
            "parameters": {
                "value": "sportId=1"
            },
            "extract": {
                "fields": {
                    "game_ids": "$.dates[0].games[*].gamePk",
                    "dates": "$.dates[0].date"
                }
            },
            "depends_on": []
        },
        {
            "id": "game_feed",
            "type": "endpoint",
            "name": "game_feed_live",
            "description": "Get live game feed",
            "parameters": {
                "value": "gamePk=${schedule_lookup.game_ids}"
            },
            "extract": {
                "fields": {
                    "stats": "$.liveData.boxscore.teams",
                    "scores": "$.liveData.linescore"
                }
            },
            "depends_on": ["schedule_lookup"]
        }
    ],
    "dependencies": {
        "game_feed": ["schedule_lookup"]
    }
}

OUTPUT SCHEMA:
{
    "steps": [
        {
            "id": "step_id",
            "type": "function or endpoint",
            "name": "name from available functions/endpoints",
            "description": "what this step does",
            "parameters": {
                "value": "parameter string that can reference prior results with ${step.field}"
            },
            "extract": {
                "fields": {
                    "field_name": "jsonpath expression"
                }
            },
            "depends_on": ["earlier step ids"]
        }
    ],
    "fallback": {
        "enabled": true,
        "strategy": "fallback approach name",
        "steps": []
    },
    "dependencies": {
        "step2": ["step1"]
    }
}

SCHEMA RULES:
1. type must be exactly "function" or "endpoint" for every step.
2. Step ids must be unique and descriptive.
3. Parameter references must use ${step_id.field} syntax; every referenced
   step must appear EARLIER in the steps array, and every referenced field
   must be defined in that step's extract.fields.
4. Extract fields must be valid JSONPath expressions.
5. The dependencies object must only reference existing step ids and must
   form a directed acyclic graph.
6. name must be one of the available functions/endpoints above.

Current Intent:
%s

Return the complete plan as a single valid JSON object strictly following this schema.`,
		s.catalog.FunctionsPromptBlock(),
		s.catalog.EndpointsPromptBlock(),
		string(intentJSON))
}
