// Package tools exposes read-only corpus retrieval operations to the agent.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"CorpusAgent/pkg/engine/api"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Tool defines the unified interface for all tools exposed to the agent.
// Tool schemas are safe to send to the model. Execution errors are returned
// as data (status "error") so the agent can adapt instead of aborting the
// turn; the second return value is reserved for infrastructure failures.
type Tool interface {
	Name() string
	Schema() Schema
	Execute(ctx context.Context, args api.Args) (Result, error)
}

// Schema is the model-facing tool description.
type Schema struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  any    `json:"parameters"` // JSON Schema object
}

// Result represents the outcome of a tool execution.
type Result struct {
	Content string `json:"content"`
	Status  string `json:"status"` // "success" | "error"
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// ParameterDef describes a single parameter for building JSON-schema tool
// parameters.
type ParameterDef struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // "string", "integer", "boolean"
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// BaseTool provides naming, schema generation and argument validation.
// The parameter schema is compiled once; malformed arguments are rejected
// before Execute runs.
type BaseTool struct {
	name        string
	description string
	params      []ParameterDef
	compiled    *jsonschema.Schema
}

// NewBaseTool creates a BaseTool and compiles its parameter schema.
func NewBaseTool(name, description string, params []ParameterDef) BaseTool {
	b := BaseTool{name: name, description: description, params: params}

	raw, err := json.Marshal(b.parameters())
	if err != nil {
		return b
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name+".json", bytes.NewReader(raw)); err != nil {
		return b
	}
	if schema, err := compiler.Compile(name + ".json"); err == nil {
		b.compiled = schema
	}
	return b
}

func (b BaseTool) Name() string { return b.name }

func (b BaseTool) Schema() Schema {
	return Schema{
		Name:        b.name,
		Description: b.description,
		Parameters:  b.parameters(),
	}
}

func (b BaseTool) parameters() map[string]any {
	properties := make(map[string]any)
	var required []string
	for _, p := range b.params {
		properties[p.Name] = map[string]any{
			"type":        p.Type,
			"description": p.Description,
		}
		if p.Required {
			required = append(required, p.Name)
		}
	}
	params := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		params["required"] = required
	}
	return params
}

// ValidateArgs checks args against the compiled parameter schema.
func (b BaseTool) ValidateArgs(args api.Args) error {
	if b.compiled == nil {
		return nil
	}
	if args == nil {
		args = api.Args{}
	}
	if err := b.compiled.Validate(map[string]any(args)); err != nil {
		return fmt.Errorf("%s: %v", api.ErrValidation, err)
	}
	return nil
}

func successResult(content string, data any) Result {
	return Result{Content: content, Status: "success", Data: data}
}

func successText(content string) Result { return successResult(content, nil) }

func toolError(err error) Result {
	if err == nil {
		return Result{Status: "error", Error: "unknown error"}
	}
	return Result{Status: "error", Error: err.Error()}
}

func toolErrorf(format string, args ...any) Result {
	return Result{Status: "error", Error: fmt.Sprintf(format, args...)}
}

// GetStringArg extracts a string argument with a default value.
func GetStringArg(args api.Args, key, defaultVal string) string {
	if v, ok := args[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return defaultVal
}

// GetIntArg extracts an integer argument with a default value.
func GetIntArg(args api.Args, key string, defaultVal int) int {
	if v, ok := args[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case float64:
			return int(n)
		case int64:
			return int(n)
		}
	}
	return defaultVal
}

// GetBoolArg extracts a boolean argument with a default value.
func GetBoolArg(args api.Args, key string, defaultVal bool) bool {
	if v, ok := args[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return defaultVal
}
