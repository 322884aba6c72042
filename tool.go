package diagent

import "context"

// ParameterType is the closed set of types a tool parameter may declare.
type ParameterType string

const (
	ParamString  ParameterType = "string"
	ParamNumber  ParameterType = "number"
	ParamBoolean ParameterType = "boolean"
	ParamArray   ParameterType = "array"
	ParamObject  ParameterType = "object"
)

// ParameterSpec describes one parameter of a tool.
type ParameterSpec struct {
	Name        string
	Type        ParameterType
	Description string
	Required    bool
	Default     any
	Enum        []any
}

// ToolDefinition describes a callable tool: its name, what it does, and the
// parameters it accepts. Definitions are what the orchestrator hands to the
// backend on every call, and what the validator checks responses against.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  []ParameterSpec
	Examples    []string
}

// ParameterSchema renders the definition's parameters as a JSON Schema
// object, the shape providers and the validator both consume.
func (d ToolDefinition) ParameterSchema() map[string]any {
	props := make(map[string]any, len(d.Parameters))
	var required []string
	for _, p := range d.Parameters {
		prop := map[string]any{
			"type":        string(p.Type),
			"description": p.Description,
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// ToolRegistry is the capability the orchestration core consumes. It maps
// tool names to callables and their schemas; tool logic itself lives outside
// the core.
//
// Execute must never panic or return a Go error for an unknown tool name: it
// returns a ToolOutcome with Success=false and an error message, so the
// orchestration loop never needs a dispatch error path.
type ToolRegistry interface {
	// Definitions returns all registered tool definitions.
	Definitions() []ToolDefinition

	// Definition returns the definition for name, or ok=false if unknown.
	Definition(name string) (ToolDefinition, bool)

	// Execute runs the given call and returns its outcome.
	Execute(ctx context.Context, call ToolCall) ToolOutcome
}
