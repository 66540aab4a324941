// Package lookup resolves player and team names to their numeric IDs, with
// TTL-cached results and a bounded worker pool for batch resolution.
// Lookups ride the same function runner the plan executor uses.
package lookup

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	gocache "github.com/patrickmn/go-cache"

	"github.com/dugoutai/dugout/config"
	"github.com/dugoutai/dugout/internal/planner"
)

// FunctionRunner executes one catalog function with resolved parameters.
type FunctionRunner interface {
	RunFunction(ctx context.Context, name string, params planner.Parameters, results map[string]interface{}) (interface{}, error)
}

// Entity kinds.
const (
	KindPlayer = "player"
	KindTeam   = "team"
)

// Result is one resolved entity.
type Result struct {
	Name string
	ID   int64
	Err  error
}

// Service memoizes name-to-ID lookups.
type Service struct {
	runner  FunctionRunner
	cache   *gocache.Cache
	workers int
	logger  *log.Logger
}

// NewService creates a lookup service.
func NewService(runner FunctionRunner, cfg config.LookupConfig) *Service {
	workers := cfg.MaxWorkers
	if workers <= 0 {
		workers = 4
	}
	return &Service{
		runner:  runner,
		cache:   gocache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		workers: workers,
		logger:  log.New(log.Writer(), "[LOOKUP] ", log.LstdFlags),
	}
}

// Resolve returns the entity ID for a name, from cache when possible.
func (s *Service) Resolve(ctx context.Context, kind, name string) (int64, error) {
	key := cacheKey(kind, name)
	if cached, ok := s.cache.Get(key); ok {
		return cached.(int64), nil
	}

	id, err := s.resolve(ctx, kind, name)
	if err != nil {
		return 0, err
	}
	s.cache.Set(key, id, gocache.DefaultExpiration)
	return id, nil
}

// ResolveBatch resolves a set of names concurrently with a bounded worker
// pool. The returned slice has one entry per input name in input order.
func (s *Service) ResolveBatch(ctx context.Context, kind string, names []string) []Result {
	results := make([]Result, len(names))
	sem := make(chan struct{}, s.workers)
	var wg sync.WaitGroup

	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			id, err := s.Resolve(ctx, kind, name)
			results[i] = Result{Name: name, ID: id, Err: err}
		}(i, name)
	}
	wg.Wait()
	return results
}

func (s *Service) resolve(ctx context.Context, kind, name string) (int64, error) {
	var fn, idsField string
	switch kind {
	case KindPlayer:
		fn = "lookup_player"
		idsField = "player_ids"
	case KindTeam:
		fn = "lookup_team"
		idsField = "team_ids"
	default:
		return 0, fmt.Errorf("unknown lookup kind %q", kind)
	}

	raw, err := s.runner.RunFunction(ctx, fn, planner.Parameters{
		Value: fmt.Sprintf("names=%s", name),
	}, nil)
	if err != nil {
		return 0, fmt.Errorf("looking up %s %q: %w", kind, name, err)
	}

	id, ok := firstID(raw, idsField)
	if !ok {
		return 0, fmt.Errorf("no %s found for %q", kind, name)
	}
	return id, nil
}

// firstID digs the first numeric id out of a lookup result. Lookup results
// arrive either as {"<ids_field>": [id, ...]} or as a bare list of entities
// with an "id" field.
func firstID(raw interface{}, idsField string) (int64, bool) {
	switch v := raw.(type) {
	case map[string]interface{}:
		if ids, ok := v[idsField].([]interface{}); ok && len(ids) > 0 {
			return toID(ids[0])
		}
		if id, ok := v["id"]; ok {
			return toID(id)
		}
		for _, nested := range v {
			if list, ok := nested.([]interface{}); ok && len(list) > 0 {
				if entity, ok := list[0].(map[string]interface{}); ok {
					if id, ok := entity["id"]; ok {
						return toID(id)
					}
				}
			}
		}
	case []interface{}:
		if len(v) > 0 {
			if entity, ok := v[0].(map[string]interface{}); ok {
				if id, ok := entity["id"]; ok {
					return toID(id)
				}
			}
		}
	}
	return 0, false
}

func toID(v interface{}) (int64, bool) {
	switch id := v.(type) {
	case float64:
		return int64(id), true
	case int64:
		return id, true
	}
	return 0, false
}

func cacheKey(kind, name string) string {
	return kind + ":" + strings.ToLower(strings.TrimSpace(name))
}
