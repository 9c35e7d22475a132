// Package tools holds the agent's tool registry, the parallel dispatcher
// that executes a batch of tool calls, and the Drive research tools.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/codefionn/driveagent/internal/llm"
)

// Tool names exposed to the model.
const (
	ToolNameSearchDrive  = "search_drive"
	ToolNameListFiles    = "list_files"
	ToolNameReadDocument = "read_document"
)

// Spec describes a tool to the model.
type Spec struct {
	Name        string
	Description string
	// Schema is the JSON schema of the input object. Defaults declared here
	// are filled in before Execute runs.
	Schema *openapi3.Schema
}

// Definition renders the spec in the backend-neutral wire form.
func (s Spec) Definition() (llm.ToolDefinition, error) {
	def := llm.ToolDefinition{Name: s.Name, Description: s.Description}
	schema := s.Schema
	if schema == nil {
		schema = openapi3.NewObjectSchema()
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return def, fmt.Errorf("marshal schema for %s: %w", s.Name, err)
	}
	if err := json.Unmarshal(raw, &def.InputSchema); err != nil {
		return def, fmt.Errorf("unmarshal schema for %s: %w", s.Name, err)
	}
	if _, ok := def.InputSchema["properties"]; !ok {
		def.InputSchema["properties"] = map[string]any{}
	}
	return def, nil
}

// Tool is a read-only capability the model can invoke. Execute returns the
// textual result; an error becomes a tool failure visible to the model.
type Tool interface {
	Spec() Spec
	Execute(ctx context.Context, input map[string]any) (string, error)
}

// Registry maps tool names to tools. It is filled once at startup and then
// only read, so concurrent lookups are safe.
type Registry struct {
	mu    sync.RWMutex
	order []string
	tools map[string]Tool
	defs  map[string]llm.ToolDefinition
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool), defs: make(map[string]llm.ToolDefinition)}
}

// Register adds t. Duplicate names are rejected.
func (r *Registry) Register(t Tool) error {
	spec := t.Spec()
	if spec.Name == "" {
		return fmt.Errorf("tool name must not be empty")
	}
	def, err := spec.Definition()
	if err != nil {
		return err
	}
	if spec.Schema != nil {
		if err := spec.Schema.Validate(context.Background()); err != nil {
			return fmt.Errorf("invalid schema for %s: %w", spec.Name, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[spec.Name]; exists {
		return fmt.Errorf("tool %q already registered", spec.Name)
	}
	r.tools[spec.Name] = t
	r.defs[spec.Name] = def
	r.order = append(r.order, spec.Name)
	return nil
}

// MustRegister panics on registration errors; for wiring built-in tools.
func (r *Registry) MustRegister(tools ...Tool) *Registry {
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
	return r
}

func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Definitions returns tool definitions in registration order.
func (r *Registry) Definitions() []llm.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]llm.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.defs[name])
	}
	return out
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Execute runs one invocation and always produces a result: unknown tools,
// invalid input and tool errors all become text for the model.
func (r *Registry) Execute(ctx context.Context, inv llm.ToolInvocation) llm.ToolResult {
	result := llm.ToolResult{ToolUseID: inv.ID}

	t, ok := r.Lookup(inv.Name)
	if !ok {
		result.Content = "unknown tool: " + inv.Name
		result.IsError = true
		return result
	}

	input := copyInput(inv.Input)
	if schema := t.Spec().Schema; schema != nil {
		if err := schema.VisitJSON(input, openapi3.VisitAsRequest(), openapi3.DefaultsSet(func() {})); err != nil {
			result.Content = fmt.Sprintf("error: invalid input for %s: %v", inv.Name, err)
			result.IsError = true
			return result
		}
	}

	content, err := t.Execute(ctx, input)
	if err != nil {
		result.Content = "error: " + err.Error()
		result.IsError = true
		return result
	}
	result.Content = content
	return result
}

func copyInput(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// StringArg reads a string argument.
func StringArg(input map[string]any, key string) string {
	s, _ := input[key].(string)
	return s
}

// IntArg reads a numeric argument, accepting JSON numbers and Go ints.
func IntArg(input map[string]any, key string, fallback int) int {
	switch v := input[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	}
	return fallback
}
