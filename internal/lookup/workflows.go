package lookup

import (
	"context"
	"fmt"

	"github.com/dugoutai/dugout/internal/planner"
)

// workflowStep is one fixed call in an entity workflow. The parameter
// template receives the entity ID.
type workflowStep struct {
	key      string
	function string
	params   string
}

// Entity workflows are fixed call sequences that skip plan synthesis
// entirely: once an entity is resolved, the data to fetch for it is always
// the same.
var (
	teamWorkflow = []workflowStep{
		{key: "stats", function: "team_stats", params: "teamId=%d&season=2025"},
		{key: "roster", function: "roster", params: "teamId=%d"},
		{key: "recent_games", function: "schedule", params: "teamId=%d&sportId=1"},
	}
	playerWorkflow = []workflowStep{
		{key: "career_stats", function: "player_stat_data", params: "personIds=%d&group=hitting,pitching&type=career"},
		{key: "recent_games", function: "player_stat_data", params: "personIds=%d&group=hitting,pitching&type=lastTen"},
	}
)

// RunWorkflow resolves the entity and runs its fixed workflow. Step
// failures are recorded under "<key>_error" and do not stop the workflow.
func (s *Service) RunWorkflow(ctx context.Context, kind, name string) (map[string]interface{}, error) {
	id, err := s.Resolve(ctx, kind, name)
	if err != nil {
		return nil, err
	}

	var steps []workflowStep
	switch kind {
	case KindTeam:
		steps = teamWorkflow
	case KindPlayer:
		steps = playerWorkflow
	default:
		return nil, fmt.Errorf("no workflow for kind %q", kind)
	}

	out := map[string]interface{}{
		"id":   id,
		"name": name,
	}
	for _, step := range steps {
		raw, err := s.runner.RunFunction(ctx, step.function, planner.Parameters{
			Value: fmt.Sprintf(step.params, id),
		}, nil)
		if err != nil {
			s.logger.Printf("workflow step %s for %s %q failed: %v", step.key, kind, name, err)
			out[step.key+"_error"] = err.Error()
			continue
		}
		out[step.key] = raw
	}
	return out, nil
}
