// Package tools executes the function calls an assistant run asks for.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Tool is a function the assistant can call.
type Tool interface {
	Name() string
	Description() string

	// Schema is the JSON Schema of the arguments object.
	Schema() json.RawMessage

	// Execute runs the call for one conversation. The returned string is
	// sent back to the assistant as the call's output.
	Execute(ctx context.Context, conversationID string, params json.RawMessage) (string, error)
}

type registeredTool struct {
	tool   Tool
	schema *jsonschema.Schema
}

// Registry holds tools by name with their compiled argument schemas.
type Registry struct {
	tools map[string]registeredTool
	names []string
}

// NewRegistry compiles each tool's schema. Duplicate names are an error.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]registeredTool, len(tools))}
	for _, t := range tools {
		name := t.Name()
		if _, dup := r.tools[name]; dup {
			return nil, fmt.Errorf("tool %q registered twice", name)
		}
		compiled, err := jsonschema.CompileString("tool_"+name+".json", string(t.Schema()))
		if err != nil {
			return nil, fmt.Errorf("compile schema for %q: %w", name, err)
		}
		r.tools[name] = registeredTool{tool: t, schema: compiled}
		r.names = append(r.names, name)
	}
	sort.Strings(r.names)
	return r, nil
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	rt, ok := r.tools[name]
	return rt.tool, ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// Validate checks raw arguments against the tool's schema. Empty arguments
// are treated as an empty object.
func (r *Registry) Validate(name string, raw json.RawMessage) error {
	rt, ok := r.tools[name]
	if !ok {
		return fmt.Errorf("unknown function %q", name)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = json.RawMessage("{}")
	}
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("arguments are not valid JSON: %w", err)
	}
	if err := rt.schema.Validate(payload); err != nil {
		return fmt.Errorf("invalid arguments: %s", validationSummary(err))
	}
	return nil
}

func validationSummary(err error) string {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return err.Error()
	}
	var leaves []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := e.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			leaves = append(leaves, loc+": "+e.Message)
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(verr)
	return strings.Join(leaves, "; ")
}

// Definitions returns the tools as assistant function definitions.
func (r *Registry) Definitions() []openai.Tool {
	defs := make([]openai.Tool, 0, len(r.names))
	for _, name := range r.names {
		t := r.tools[name].tool
		var params map[string]any
		if err := json.Unmarshal(t.Schema(), &params); err != nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		defs = append(defs, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        name,
				Description: t.Description(),
				Parameters:  params,
			},
		})
	}
	return defs
}
