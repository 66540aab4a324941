// Package media resolves highlight videos for a reply: a model-produced
// media plan plus a searchable index of home-run clips with their Statcast
// measurements. Media is always best-effort; failures produce an empty
// plan, never an error visible to the user.
package media

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/blevesearch/bleve"
	"github.com/blevesearch/bleve/mapping"
)

// HomeRun is one indexed home-run clip with its Statcast measurements.
type HomeRun struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	Video        string  `json:"video"`
	ExitVelocity float64 `json:"exit_velocity"`
	LaunchAngle  float64 `json:"launch_angle"`
	Distance     float64 `json:"distance"`
}

// StatsCriteria bounds a home-run search by Statcast measurements. Nil
// fields are unbounded.
type StatsCriteria struct {
	MinExitVelocity *float64 `json:"min_exit_velocity,omitempty"`
	MaxExitVelocity *float64 `json:"max_exit_velocity,omitempty"`
	MinLaunchAngle  *float64 `json:"min_launch_angle,omitempty"`
	MaxLaunchAngle  *float64 `json:"max_launch_angle,omitempty"`
	MinDistance     *float64 `json:"min_distance,omitempty"`
	MaxDistance     *float64 `json:"max_distance,omitempty"`
}

// Index is a BM25 index over home-run clip titles with the full records
// kept alongside for retrieval and ranking.
type Index struct {
	idx  bleve.Index
	meta map[string]HomeRun
	mu   sync.RWMutex
}

// OpenIndex opens an on-disk index, or builds one from the CSV when the
// index does not exist yet.
func OpenIndex(indexPath, csvPath string) (*Index, error) {
	if _, err := os.Stat(indexPath); err == nil {
		idx, err := bleve.Open(indexPath)
		if err != nil {
			return nil, fmt.Errorf("opening media index: %w", err)
		}
		mi := &Index{idx: idx, meta: make(map[string]HomeRun)}
		if err := mi.loadMeta(csvPath); err != nil {
			return nil, err
		}
		return mi, nil
	}
	return BuildIndex(indexPath, csvPath)
}

// BuildIndex creates a fresh index at indexPath from the home-run CSV. An
// empty indexPath builds an in-memory index.
func BuildIndex(indexPath, csvPath string) (*Index, error) {
	var idx bleve.Index
	var err error
	if indexPath == "" {
		idx, err = bleve.NewMemOnly(indexMapping())
	} else {
		idx, err = bleve.New(indexPath, indexMapping())
	}
	if err != nil {
		return nil, fmt.Errorf("creating media index: %w", err)
	}

	mi := &Index{idx: idx, meta: make(map[string]HomeRun)}
	if err := mi.loadMeta(csvPath); err != nil {
		idx.Close()
		return nil, err
	}

	batch := idx.NewBatch()
	for id, hr := range mi.meta {
		if err := batch.Index(id, hr); err != nil {
			idx.Close()
			return nil, fmt.Errorf("indexing clip %s: %w", id, err)
		}
	}
	if err := idx.Batch(batch); err != nil {
		idx.Close()
		return nil, fmt.Errorf("writing media index: %w", err)
	}
	return mi, nil
}

func indexMapping() mapping.IndexMapping {
	m := bleve.NewIndexMapping()
	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("title", bleve.NewTextFieldMapping())
	doc.AddFieldMappingsAt("exit_velocity", bleve.NewNumericFieldMapping())
	doc.AddFieldMappingsAt("launch_angle", bleve.NewNumericFieldMapping())
	doc.AddFieldMappingsAt("distance", bleve.NewNumericFieldMapping())
	m.DefaultMapping = doc
	return m
}

// loadMeta reads the home-run CSV into the meta map. Expected columns:
// play_id, title, video, ExitVelocity, LaunchAngle, HitDistance. Rows with
// unparseable measurements are skipped.
func (mi *Index) loadMeta(csvPath string) error {
	f, err := os.Open(csvPath)
	if err != nil {
		return fmt.Errorf("opening home run data: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("reading home run header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}

	field := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading home run data: %w", err)
		}

		ev, err1 := strconv.ParseFloat(field(row, "exitvelocity"), 64)
		la, err2 := strconv.ParseFloat(field(row, "launchangle"), 64)
		dist, err3 := strconv.ParseFloat(field(row, "hitdistance"), 64)
		if err1 != nil || err2 != nil || err3 != nil {
			continue
		}

		hr := HomeRun{
			ID:           field(row, "play_id"),
			Title:        field(row, "title"),
			Video:        field(row, "video"),
			ExitVelocity: ev,
			LaunchAngle:  la,
			Distance:     dist,
		}
		if hr.ID == "" || hr.Title == "" {
			continue
		}
		mi.meta[hr.ID] = hr
	}
	return nil
}

// Close releases the underlying index.
func (mi *Index) Close() error {
	return mi.idx.Close()
}

// Count returns the number of indexed clips.
func (mi *Index) Count() int {
	mi.mu.RLock()
	defer mi.mu.RUnlock()
	return len(mi.meta)
}

// Search finds clips matching the keywords, then filters by player-name
// similarity and Statcast criteria. With no keywords every clip is a
// candidate.
func (mi *Index) Search(keywords []string, playerNames []string, criteria StatsCriteria, limit int) ([]HomeRun, error) {
	mi.mu.RLock()
	defer mi.mu.RUnlock()

	var candidates []HomeRun
	if q := strings.TrimSpace(strings.Join(keywords, " ")); q != "" {
		query := bleve.NewQueryStringQuery(q)
		req := bleve.NewSearchRequestOptions(query, limit*10, 0, false)
		res, err := mi.idx.Search(req)
		if err != nil {
			return nil, fmt.Errorf("searching media index: %w", err)
		}
		for _, hit := range res.Hits {
			if hr, ok := mi.meta[hit.ID]; ok {
				candidates = append(candidates, hr)
			}
		}
	} else {
		for _, hr := range mi.meta {
			candidates = append(candidates, hr)
		}
	}

	matched := make([]HomeRun, 0, len(candidates))
	for _, hr := range candidates {
		if !matchesPlayers(hr.Title, playerNames) {
			continue
		}
		if !matchesCriteria(hr, criteria) {
			continue
		}
		matched = append(matched, hr)
	}

	rankClips(matched)
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func matchesCriteria(hr HomeRun, c StatsCriteria) bool {
	if c.MinExitVelocity != nil && hr.ExitVelocity < *c.MinExitVelocity {
		return false
	}
	if c.MaxExitVelocity != nil && hr.ExitVelocity > *c.MaxExitVelocity {
		return false
	}
	if c.MinLaunchAngle != nil && hr.LaunchAngle < *c.MinLaunchAngle {
		return false
	}
	if c.MaxLaunchAngle != nil && hr.LaunchAngle > *c.MaxLaunchAngle {
		return false
	}
	if c.MinDistance != nil && hr.Distance < *c.MinDistance {
		return false
	}
	if c.MaxDistance != nil && hr.Distance > *c.MaxDistance {
		return false
	}
	return true
}
