// Package tools is the function-calling registry the LLM worker dispatches
// into. Grounded on the original system's tool set: current date/time,
// current weather, and loading a saved context file.
package tools

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Spec is a JSON-schema function descriptor sent to the LLM provider.
type Spec struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// Handler executes one tool call given its already-parsed arguments.
type Handler func(args map[string]interface{}) (string, error)

// Registry holds the available tools and dispatches calls by name.
type Registry struct {
	specs    []Spec
	handlers map[string]Handler
}

// NewRegistry builds the default registry.
func NewRegistry() *Registry {
	r := &Registry{handlers: make(map[string]Handler)}
	r.register(Spec{
		Name:        "get_local_date_time",
		Description: "Get the current local date and time.",
		Parameters: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{},
		},
	}, handleLocalDateTime)

	r.register(Spec{
		Name:        "get_current_weather",
		Description: "Get the current weather for a location.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"location": map[string]interface{}{
					"type":        "string",
					"description": "City and country, e.g. 'Paris, France'",
				},
			},
			"required": []string{"location"},
		},
	}, handleWeather)

	r.register(Spec{
		Name:        "load_context",
		Description: "Load a saved context document by name.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"name": map[string]interface{}{
					"type":        "string",
					"description": "Name of the context file, without extension",
				},
			},
			"required": []string{"name"},
		},
	}, r.handleLoadContext)

	return r
}

func (r *Registry) register(spec Spec, h Handler) {
	r.specs = append(r.specs, spec)
	r.handlers[spec.Name] = h
}

// Specs returns the function descriptors for the LLM request.
func (r *Registry) Specs() []Spec {
	return r.specs
}

// Call parses argsJSON and dispatches to the named handler. Unknown names and
// parse failures return a structured error string rather than panicking, so
// the caller can feed it back to the model as the tool result.
func (r *Registry) Call(name string, argsJSON string) string {
	h, ok := r.handlers[name]
	if !ok {
		return fmt.Sprintf(`{"error":"unknown tool %q"}`, name)
	}

	var args map[string]interface{}
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return fmt.Sprintf(`{"error":"invalid arguments: %s"}`, err.Error())
		}
	}

	result, err := h(args)
	if err != nil {
		return fmt.Sprintf(`{"error":%q}`, err.Error())
	}
	return result
}

func handleLocalDateTime(map[string]interface{}) (string, error) {
	now := time.Now()
	return fmt.Sprintf(`{"date_time":%q,"weekday":%q}`, now.Format(time.RFC3339), now.Weekday().String()), nil
}

func handleWeather(args map[string]interface{}) (string, error) {
	location, _ := args["location"].(string)
	if location == "" {
		return "", fmt.Errorf("location is required")
	}
	// No real weather vendor is wired; the model is told this tool is a stub
	// for locations it has no live data for.
	return fmt.Sprintf(`{"location":%q,"note":"live weather lookup is not configured"}`, location), nil
}

func (r *Registry) handleLoadContext(args map[string]interface{}) (string, error) {
	name, _ := args["name"].(string)
	if name == "" {
		return "", fmt.Errorf("name is required")
	}
	path := "context/" + name + ".txt"
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("could not load context %q: %w", name, err)
	}
	return string(data), nil
}
