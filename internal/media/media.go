package media

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/dugoutai/dugout/internal/intent"
	"github.com/dugoutai/dugout/internal/llm"
)

// HomerunSearch describes the clip search a media plan requested.
type HomerunSearch struct {
	Keywords      []string      `json:"keywords,omitempty"`
	StatsCriteria StatsCriteria `json:"stats_criteria,omitempty"`
	PlayerNames   []string      `json:"player_names,omitempty"`
}

// Plan is the resolved media for one reply: media references already present
// in the retrieved data plus ranked home-run clips from the index.
type Plan struct {
	DirectMedia   []interface{}  `json:"direct_media,omitempty"`
	HomerunSearch *HomerunSearch `json:"homerun_search,omitempty"`
	Clips         []HomeRun      `json:"clips,omitempty"`
}

// Empty reports whether the plan carries nothing to show.
func (p Plan) Empty() bool {
	return len(p.DirectMedia) == 0 && len(p.Clips) == 0
}

// Resolver produces media plans from a reply's context.
type Resolver struct {
	llm        *llm.Client
	index      *Index
	maxResults int
	logger     *log.Logger
}

// NewResolver creates a media resolver. index may be nil when no home-run
// data is configured; clip search is then skipped.
func NewResolver(client *llm.Client, index *Index, maxResults int) *Resolver {
	if maxResults <= 0 {
		maxResults = 5
	}
	return &Resolver{
		llm:        client,
		index:      index,
		maxResults: maxResults,
		logger:     log.New(log.Writer(), "[MEDIA] ", log.LstdFlags),
	}
}

// Resolve decides what media fits the reply and runs the clip search when
// one is requested. Any failure returns an empty plan.
func (r *Resolver) Resolve(ctx context.Context, message string, analysis intent.Analysis, results map[string]interface{}) Plan {
	plan, err := r.planMedia(ctx, message, analysis, results)
	if err != nil {
		r.logger.Printf("media planning failed: %v", err)
		return Plan{}
	}

	if plan.HomerunSearch != nil && r.index != nil {
		clips, err := r.index.Search(
			plan.HomerunSearch.Keywords,
			plan.HomerunSearch.PlayerNames,
			plan.HomerunSearch.StatsCriteria,
			r.maxResults,
		)
		if err != nil {
			r.logger.Printf("clip search failed: %v", err)
		} else {
			plan.Clips = clips
		}
	}
	return plan
}

func (r *Resolver) planMedia(ctx context.Context, message string, analysis intent.Analysis, results map[string]interface{}) (Plan, error) {
	resultsJSON, _ := json.Marshal(results)
	intentJSON, _ := json.Marshal(analysis)

	prompt := fmt.Sprintf(`Decide what media should accompany a baseball answer.

User message: %s

Intent analysis:
%s

Retrieved data:
%s

Respond with a JSON object:
{
    "direct_media": ["media URLs already present in the retrieved data"],
    "homerun_search": {
        "keywords": ["search terms for home run clips"],
        "stats_criteria": {
            "min_exit_velocity": null,
            "max_exit_velocity": null,
            "min_launch_angle": null,
            "max_launch_angle": null,
            "min_distance": null,
            "max_distance": null
        },
        "player_names": ["players whose home runs to find"]
    }
}

Omit homerun_search entirely when the answer does not call for highlight
clips. Use null for unbounded criteria.`, message, string(intentJSON), string(resultsJSON))

	result, err := r.llm.Complete(ctx, prompt, llm.Options{
		Operation:      "media_plan",
		ResponseFormat: "json",
	}, "")
	if err != nil {
		return Plan{}, err
	}

	var plan Plan
	if err := json.Unmarshal([]byte(llm.StripCodeFences(result.Text)), &plan); err != nil {
		return Plan{}, fmt.Errorf("parsing media plan: %w", err)
	}
	return plan, nil
}
