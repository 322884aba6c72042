// Package validator checks LLM responses against the live tool registry:
// hallucinated tool names, malformed or out-of-contract arguments, and
// out-of-sequence calls. Findings are split into errors (confidence
// penalties) and warnings (audit only); validation never aborts a turn.
package validator

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/arkadyv/diagent"
)

// Result is the outcome of validating one response or one tool call.
// Transient per call.
type Result struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// merge folds other into r, recomputing Valid.
func (r *Result) merge(other Result) {
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
	r.Valid = len(r.Errors) == 0
}

func (r *Result) addError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Valid = false
}

func (r *Result) addWarning(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// proseToolPattern matches tool-like identifiers mentioned in prose, used to
// flag hallucinated tools that were referenced but never invoked.
var proseToolPattern = regexp.MustCompile(`\b(?:check|get|ping|resolve|run|list)_[a-z0-9_]+\b`)

// Validator validates responses against a tool registry. Validation is a
// pure function of the registry contents and the input: identical inputs
// yield identical results. Safe for concurrent use.
type Validator struct {
	registry diagent.ToolRegistry

	mu      sync.Mutex
	schemas map[string]*jsonschema.Schema
}

// New creates a Validator over the given registry.
func New(registry diagent.ToolRegistry) *Validator {
	return &Validator{
		registry: registry,
		schemas:  make(map[string]*jsonschema.Schema),
	}
}

// ValidateResponse checks a full LLM response: every tool call it carries,
// the optional expected sequence, and the textual content. expectedSequence
// may be nil to skip ordering checks.
func (v *Validator) ValidateResponse(
	resp *diagent.LLMResponse,
	expectedSequence []string,
) Result {
	result := Result{Valid: true}
	if resp == nil {
		result.addError("nil response")
		return result
	}

	for _, call := range resp.ToolCalls {
		callResult := v.validateCall(call)
		result.merge(callResult)
	}

	if len(expectedSequence) > 0 {
		v.checkSequence(&result, resp.ToolCalls, expectedSequence)
	}

	v.checkContent(&result, resp)
	return result
}

// ValidateToolCall checks a single call by name and decoded arguments.
func (v *Validator) ValidateToolCall(name string, args map[string]any) Result {
	return v.validateCall(diagent.ToolCall{Name: name, Args: args})
}

// validateCall checks tool name, argument decode, required parameters,
// unknown parameters, types, and enums.
func (v *Validator) validateCall(call diagent.ToolCall) Result {
	result := Result{Valid: true}

	def, ok := v.registry.Definition(call.Name)
	if !ok {
		if suggestion, found := v.SuggestToolName(call.Name); found {
			result.addError("unknown tool %q (did you mean %q?)", call.Name, suggestion)
		} else {
			result.addError("unknown tool %q", call.Name)
		}
		return result
	}

	args := call.Args
	if args == nil && call.RawArgs != "" {
		repaired, ok := RepairArguments(call.RawArgs)
		if !ok {
			result.addError("tool %s: malformed JSON arguments", call.Name)
			return result
		}
		result.addWarning("tool %s: arguments repaired from malformed JSON", call.Name)
		args = repaired
	}

	specByName := make(map[string]diagent.ParameterSpec, len(def.Parameters))
	for _, p := range def.Parameters {
		specByName[p.Name] = p
		if p.Required {
			if _, present := args[p.Name]; !present {
				result.addError("tool %s: missing required parameter %q", call.Name, p.Name)
			}
		}
	}

	for name, value := range args {
		spec, known := specByName[name]
		if !known {
			result.addWarning("tool %s: unknown parameter %q", call.Name, name)
			continue
		}
		if !typeMatches(spec.Type, value) {
			result.addWarning("tool %s: parameter %q expects %s, got %T",
				call.Name, name, spec.Type, value)
		}
		if len(spec.Enum) > 0 && !enumContains(spec.Enum, value) {
			result.addError("tool %s: parameter %q value %v not in allowed set %v",
				call.Name, name, value, spec.Enum)
		}
	}

	// Catch-all schema validation for constraints the manual checks do not
	// cover. Providers vary in strictness, so residual findings are
	// warnings unless they duplicate an error above.
	if schema := v.compiledSchema(def); schema != nil && len(result.Errors) == 0 {
		if err := schema.Validate(normalizeForSchema(args)); err != nil {
			result.addWarning("tool %s: schema validation: %v", call.Name, err)
		}
	}

	return result
}

// checkSequence warns on calls issued out of order relative to the expected
// diagnostic ordering. Tools absent from the ordering are ignored.
func (v *Validator) checkSequence(result *Result, calls []diagent.ToolCall, expected []string) {
	rank := make(map[string]int, len(expected))
	for i, name := range expected {
		rank[name] = i
	}

	last := -1
	for _, call := range calls {
		r, ok := rank[call.Name]
		if !ok {
			continue
		}
		if r < last {
			result.addWarning("tool %s called out of sequence (expected order: %s)",
				call.Name, strings.Join(expected, " -> "))
		}
		last = r
	}
}

// checkContent flags empty content on tool-free responses and tool-like
// names referenced in prose that are not registered tools.
func (v *Validator) checkContent(result *Result, resp *diagent.LLMResponse) {
	if strings.TrimSpace(resp.Content) == "" {
		if len(resp.ToolCalls) == 0 {
			result.addWarning("response has no content and no tool calls")
		}
		return
	}

	seen := make(map[string]bool)
	for _, match := range proseToolPattern.FindAllString(resp.Content, -1) {
		if seen[match] {
			continue
		}
		seen[match] = true
		if _, ok := v.registry.Definition(match); !ok {
			result.addWarning("content references %q which is not a registered tool", match)
		}
	}
}

// compiledSchema returns the compiled JSON Schema for a definition, caching
// by tool name. Returns nil when compilation fails; manual checks still ran.
func (v *Validator) compiledSchema(def diagent.ToolDefinition) *jsonschema.Schema {
	v.mu.Lock()
	defer v.mu.Unlock()

	if schema, ok := v.schemas[def.Name]; ok {
		return schema
	}

	raw, err := json.Marshal(def.ParameterSchema())
	if err != nil {
		v.schemas[def.Name] = nil
		return nil
	}
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		v.schemas[def.Name] = nil
		return nil
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(def.Name+".json", doc); err != nil {
		v.schemas[def.Name] = nil
		return nil
	}
	schema, err := compiler.Compile(def.Name + ".json")
	if err != nil {
		v.schemas[def.Name] = nil
		return nil
	}
	v.schemas[def.Name] = schema
	return schema
}

// normalizeForSchema round-trips args through JSON so numeric types match
// what the schema validator expects.
func normalizeForSchema(args map[string]any) any {
	raw, err := json.Marshal(args)
	if err != nil {
		return args
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return args
	}
	return out
}

// typeMatches reports whether a decoded JSON value satisfies the declared
// parameter type. JSON numbers decode as float64; integers are accepted for
// number parameters.
func typeMatches(t diagent.ParameterType, value any) bool {
	switch t {
	case diagent.ParamString:
		_, ok := value.(string)
		return ok
	case diagent.ParamNumber:
		switch value.(type) {
		case float64, float32, int, int32, int64:
			return true
		}
		return false
	case diagent.ParamBoolean:
		_, ok := value.(bool)
		return ok
	case diagent.ParamArray:
		_, ok := value.([]any)
		return ok
	case diagent.ParamObject:
		_, ok := value.(map[string]any)
		return ok
	}
	return true
}

// enumContains compares enum members by their string rendering, so "4" and
// 4.0 both satisfy an enum of 4.
func enumContains(enum []any, value any) bool {
	vs := fmt.Sprintf("%v", value)
	for _, e := range enum {
		if fmt.Sprintf("%v", e) == vs {
			return true
		}
	}
	return false
}
