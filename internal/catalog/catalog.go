// Package catalog loads the statistics function and endpoint documentation
// used for plan synthesis and validation. The documents are read once at
// startup; changing them requires a restart.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Function describes one callable statistics library function.
type Function struct {
	Name           string                 `json:"name"`
	Description    string                 `json:"description"`
	Parameters     map[string]interface{} `json:"parameters,omitempty"`
	RequiredParams []string               `json:"required_params,omitempty"`
	Returns        string                 `json:"returns,omitempty"`
	Example        string                 `json:"example,omitempty"`
}

// Endpoint describes one raw HTTP API endpoint.
type Endpoint struct {
	URL            string                 `json:"url"`
	Description    string                 `json:"description,omitempty"`
	Parameters     map[string]interface{} `json:"parameters,omitempty"`
	RequiredParams []string               `json:"required_params,omitempty"`
	Example        string                 `json:"example,omitempty"`
}

// Catalog is the read-only registry of functions and endpoints a plan may
// reference.
type Catalog struct {
	functions map[string]Function
	ordered   []Function
	endpoints map[string]Endpoint
}

// Load reads the functions and endpoints documents from disk.
func Load(functionsPath, endpointsPath string) (*Catalog, error) {
	fnData, err := os.ReadFile(functionsPath)
	if err != nil {
		return nil, fmt.Errorf("reading functions catalog: %w", err)
	}
	epData, err := os.ReadFile(endpointsPath)
	if err != nil {
		return nil, fmt.Errorf("reading endpoints catalog: %w", err)
	}
	return Parse(fnData, epData)
}

// Parse builds a catalog from raw JSON documents. The functions document is
// a list; the endpoints document is a name-keyed object.
func Parse(functionsJSON, endpointsJSON []byte) (*Catalog, error) {
	var functions []Function
	if err := json.Unmarshal(functionsJSON, &functions); err != nil {
		return nil, fmt.Errorf("parsing functions catalog: %w", err)
	}
	var endpoints map[string]Endpoint
	if err := json.Unmarshal(endpointsJSON, &endpoints); err != nil {
		return nil, fmt.Errorf("parsing endpoints catalog: %w", err)
	}

	c := &Catalog{
		functions: make(map[string]Function, len(functions)),
		ordered:   functions,
		endpoints: endpoints,
	}
	for _, fn := range functions {
		if strings.TrimSpace(fn.Name) == "" {
			return nil, fmt.Errorf("functions catalog contains an entry without a name")
		}
		if _, dup := c.functions[fn.Name]; dup {
			return nil, fmt.Errorf("functions catalog contains duplicate entry %q", fn.Name)
		}
		c.functions[fn.Name] = fn
	}
	for name, ep := range endpoints {
		if strings.TrimSpace(ep.URL) == "" {
			return nil, fmt.Errorf("endpoint %q has no url", name)
		}
	}
	return c, nil
}

// Function returns the named function definition.
func (c *Catalog) Function(name string) (Function, bool) {
	fn, ok := c.functions[name]
	return fn, ok
}

// Endpoint returns the named endpoint definition.
func (c *Catalog) Endpoint(name string) (Endpoint, bool) {
	ep, ok := c.endpoints[name]
	return ep, ok
}

// HasFunction reports whether a function with the given name exists.
func (c *Catalog) HasFunction(name string) bool {
	_, ok := c.functions[name]
	return ok
}

// HasEndpoint reports whether an endpoint with the given name exists.
func (c *Catalog) HasEndpoint(name string) bool {
	_, ok := c.endpoints[name]
	return ok
}

// Functions returns the functions in document order.
func (c *Catalog) Functions() []Function {
	out := make([]Function, len(c.ordered))
	copy(out, c.ordered)
	return out
}

// Endpoints returns a copy of the endpoint registry.
func (c *Catalog) Endpoints() map[string]Endpoint {
	out := make(map[string]Endpoint, len(c.endpoints))
	for k, v := range c.endpoints {
		out[k] = v
	}
	return out
}

// FunctionsPromptBlock renders the function documentation for embedding into
// a plan synthesis prompt.
func (c *Catalog) FunctionsPromptBlock() string {
	data, err := json.MarshalIndent(c.ordered, "", "  ")
	if err != nil {
		return "[]"
	}
	return string(data)
}

// EndpointsPromptBlock renders the endpoint documentation for embedding into
// a plan synthesis prompt.
func (c *Catalog) EndpointsPromptBlock() string {
	data, err := json.MarshalIndent(c.endpoints, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}
