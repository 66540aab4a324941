package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dugoutai/dugout/internal/catalog"
	"github.com/dugoutai/dugout/internal/llm"
	"github.com/dugoutai/dugout/internal/planner"
)

// executeEndpointStep runs a raw HTTP endpoint step: resolve the concrete
// URL, fetch it, and decode the JSON body.
func (e *Executor) executeEndpointStep(ctx context.Context, name string, params planner.Parameters, results map[string]interface{}) (interface{}, error) {
	ep, ok := e.catalog.Endpoint(name)
	if !ok {
		return nil, fmt.Errorf("unknown endpoint %q", name)
	}

	resolved := resolveParams(params, results)

	target := e.resolveURL(ctx, name, ep, params.Value, results)
	if target == "" {
		var err error
		target, err = constructURL(ep.URL, resolved)
		if err != nil {
			return nil, fmt.Errorf("constructing URL for %s: %w", name, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", name, err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("endpoint %s returned status %d", name, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", name, err)
	}

	var data interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("decoding %s response: %w", name, err)
	}
	return data, nil
}

// resolveURL asks the model to produce the final request URL from the
// endpoint documentation and the parameter template. Returns "" when the
// model cannot produce a usable URL, in which case the caller constructs it
// locally.
func (e *Executor) resolveURL(ctx context.Context, name string, ep catalog.Endpoint, paramValue string, results map[string]interface{}) string {
	epDoc, _ := json.MarshalIndent(ep, "", "  ")
	resultsJSON, _ := json.Marshal(results)

	prompt := fmt.Sprintf(`Resolve the final request URL for a baseball API endpoint.

Endpoint documentation:
%s

Parameter template (may reference prior step results with ${step.field}):
%s

Prior step results:
%s

Current date: %s

Substitute path parameters into the URL template and append the remaining
parameters as a query string. Resolve references against the prior results.

Example resolved URLs:
https://statsapi.mlb.com/api/v1.1/game/717676/feed/live
https://statsapi.mlb.com/api/v1/schedule?sportId=1&date=2024-07-04

Return only the final URL.`,
		string(epDoc), paramValue, string(resultsJSON), time.Now().Format("2006-01-02"))

	result, err := e.llm.Complete(ctx, prompt, llm.Options{Operation: "resolve_url"}, "")
	if err != nil {
		e.logger.Printf("URL resolution via model failed for %s, constructing locally", name)
		return ""
	}

	candidate := strings.TrimSpace(llm.StripCodeFences(result.Text))
	candidate = strings.Trim(candidate, "`\"' \n")
	if !strings.HasPrefix(candidate, "http://") && !strings.HasPrefix(candidate, "https://") {
		return ""
	}
	if strings.ContainsAny(candidate, " \n{") {
		return ""
	}
	return candidate
}

// constructURL substitutes {param} path segments in the template and
// appends the rest of the parameters as a query string.
func constructURL(template string, params map[string]string) (string, error) {
	remaining := make(map[string]string, len(params))
	for k, v := range params {
		remaining[k] = v
	}

	target := template
	for key := range params {
		placeholder := "{" + key + "}"
		if strings.Contains(target, placeholder) {
			target = strings.ReplaceAll(target, placeholder, url.PathEscape(params[key]))
			delete(remaining, key)
		}
	}
	if strings.Contains(target, "{") {
		return "", fmt.Errorf("unresolved path parameters in %s", target)
	}

	if len(remaining) == 0 {
		return target, nil
	}
	query := url.Values{}
	for _, key := range sortedKeys(remaining) {
		query.Set(key, remaining[key])
	}
	sep := "?"
	if strings.Contains(target, "?") {
		sep = "&"
	}
	return target + sep + query.Encode(), nil
}
